package scsi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwlehman/peripety/peripety"
)

func fakeScsiSysfs(t *testing.T, name, wwid string) peripety.Sysfs {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, "block", name, "device", "wwid")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(wwid+"\n"), 0o644))
	return peripety.Sysfs{Root: root}
}

func TestParseEventDropsHostOnlyKdev(t *testing.T) {
	e := peripety.NewStorageEvent()
	e.Kdev = "+scsi:host3"
	_, ok := parseEvent(peripety.Sysfs{Root: t.TempDir()}, e)
	assert.False(t, ok)
}

func TestParseEventStripsScsiPrefixAndResolves(t *testing.T) {
	sysfs := fakeScsiSysfs(t, "sda", "wwid-sda")
	e := peripety.NewStorageEvent()
	e.Kdev = "+scsi:sda"
	e.RawMsg = "sd 0:0:0:0: [sda] some error"

	enriched, ok := parseEvent(sysfs, e)
	require.True(t, ok)
	assert.Equal(t, "/dev/sda", enriched.DevPath)
	assert.Equal(t, "wwid-sda", enriched.DevWWID)
	assert.Equal(t, "sd 0:0:0:0: [sda] some error, wwid: 'wwid-sda'", enriched.Msg)
}

func TestParseEventDropsWhenBlkUnresolvable(t *testing.T) {
	e := peripety.NewStorageEvent()
	e.Kdev = "sdzz"
	_, ok := parseEvent(peripety.Sysfs{Root: t.TempDir()}, e)
	assert.False(t, ok)
}

func TestParseEventSenseKeyRemapMediumError(t *testing.T) {
	sysfs := fakeScsiSysfs(t, "sda", "wwid-sda")
	e := peripety.NewStorageEvent()
	e.Kdev = "sda"
	e.EventType = "SCSI_SENSE_KEY"
	e.Extension["sense_key"] = "Medium Error"
	e.RawMsg = "sd 0:0:0:0: [sda] Sense Key : Medium Error [current]"

	enriched, ok := parseEvent(sysfs, e)
	require.True(t, ok)
	assert.Equal(t, "SCSI_MEDIUM_ERROR", enriched.EventType)
}

func TestParseEventSenseKeyRemapHardwareError(t *testing.T) {
	sysfs := fakeScsiSysfs(t, "sda", "wwid-sda")
	e := peripety.NewStorageEvent()
	e.Kdev = "sda"
	e.EventType = "SCSI_SENSE_KEY"
	e.Extension["sense_key"] = "Hardware Error"

	enriched, ok := parseEvent(sysfs, e)
	require.True(t, ok)
	assert.Equal(t, "SCSI_HARDWARE_ERROR", enriched.EventType)
}

func TestParseEventSenseKeyUnmappedLeavesEventTypeAlone(t *testing.T) {
	sysfs := fakeScsiSysfs(t, "sda", "wwid-sda")
	e := peripety.NewStorageEvent()
	e.Kdev = "sda"
	e.EventType = "SCSI_SENSE_KEY"
	e.Extension["sense_key"] = "Recovered Error"

	enriched, ok := parseEvent(sysfs, e)
	require.True(t, ok)
	assert.Equal(t, "SCSI_SENSE_KEY", enriched.EventType)
}
