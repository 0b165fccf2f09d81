package multipath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwlehman/peripety/internal/plog"
	"github.com/dwlehman/peripety/peripety"
)

func mkfile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// fakeMultipathSysfs builds a tree where "8:16" is dev/block's symlink to a
// SCSI disk (sda) whose sole holder is a multipath device (dm-0), so
// both MpathInfoFromBlk("8:16") and NewBlkInfoWithSysfs(sysfs, "8:16", true)
// resolve against the same underlying disk.
func fakeMultipathSysfs(t *testing.T) peripety.Sysfs {
	t.Helper()
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "block", "sda", "device", "wwid"), "path-wwid-sda\n")
	mkfile(t, filepath.Join(root, "block", "sda", "holders", "dm-0", "dm", "uuid"), "mpath-3600a09803830447a4f244c4657596665\n")
	mkfile(t, filepath.Join(root, "block", "sda", "holders", "dm-0", "dm", "name"), "mpatha\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dev", "block"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "block", "sda"), filepath.Join(root, "dev", "block", "8:16")))
	return peripety.Sysfs{Root: root}
}

func TestParseEventMultipathFailedScenario(t *testing.T) {
	sysfs := fakeMultipathSysfs(t)
	e := peripety.NewStorageEvent()
	e.Kdev = "8:16"
	e.EventType = "DM_MPATH_PATH_FAILED"
	e.SubSystem = peripety.Multipath

	enriched, ok := parseEvent(sysfs, e)
	require.True(t, ok)
	assert.Equal(t, "/dev/mapper/mpatha", enriched.DevPath)
	assert.Equal(t, "mpatha", enriched.DevName)
	assert.Equal(t, "3600a09803830447a4f244c4657596665", enriched.DevWWID)
	assert.Equal(t, "8:16", enriched.Extension["blk_major_minor"])
}

func TestParseEventDropsWhenNoHolder(t *testing.T) {
	sysfs := peripety.Sysfs{Root: t.TempDir()}
	e := peripety.NewStorageEvent()
	e.Kdev = "8:16"
	e.EventType = "DM_MPATH_PATH_FAILED"

	_, ok := parseEvent(sysfs, e)
	assert.False(t, ok, "a kdev with no holder in sysfs must be dropped")
}

func TestParseEventOwnersPopulatedFromFailingPath(t *testing.T) {
	sysfs := fakeMultipathSysfs(t)
	e := peripety.NewStorageEvent()
	e.Kdev = "8:16"
	e.EventType = "DM_MPATH_PATH_REINSTATED"

	enriched, ok := parseEvent(sysfs, e)
	require.True(t, ok)
	require.Len(t, enriched.OwnersNames, 1)
	assert.Equal(t, "sda", enriched.OwnersNames[0])
	assert.Equal(t, "path-wwid-sda", enriched.OwnersWWIDs[0])
	assert.Equal(t, "/dev/sda", enriched.OwnersPaths[0])
	assert.Equal(t, "Scsi", enriched.OwnersTypes[0])
	assert.Len(t, enriched.OwnersWWIDs, len(enriched.OwnersNames))
	assert.Len(t, enriched.OwnersPaths, len(enriched.OwnersNames))
	assert.Len(t, enriched.OwnersTypes, len(enriched.OwnersNames))
}

func TestParseEventMergesScsiHostInfoForScsiFailingPath(t *testing.T) {
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "block", "sda", "device", "wwid"), "path-wwid-sda\n")
	mkfile(t, filepath.Join(root, "block", "sda", "holders", "dm-0", "dm", "uuid"), "mpath-abc\n")
	mkfile(t, filepath.Join(root, "block", "sda", "holders", "dm-0", "dm", "name"), "mpatha\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dev", "block"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "block", "sda"), filepath.Join(root, "dev", "block", "8:16")))

	hostDir := filepath.Join(root, "devices", "pci0000:00", "host5", "target5:0:0", "5:0:0:0", "block", "sda")
	require.NoError(t, os.MkdirAll(hostDir, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "class", "block"), 0o755))
	require.NoError(t, os.Symlink(hostDir, filepath.Join(root, "class", "block", "sda")))
	mkfile(t, filepath.Join(root, "class", "scsi_host", "host5", "proc_name"), "qla2xxx\n")

	sysfs := peripety.Sysfs{Root: root}
	e := peripety.NewStorageEvent()
	e.Kdev = "8:16"
	e.EventType = "DM_MPATH_PATH_FAILED"

	enriched, ok := parseEvent(sysfs, e)
	require.True(t, ok)
	assert.Equal(t, "qla2xxx", enriched.Extension["driver_name"])
}

func TestParseEventUnknownEventTypeIsDroppedByRun(t *testing.T) {
	// run() itself (not parseEvent) is responsible for filtering unknown
	// event types; parseEvent has no opinion on EventType beyond using the
	// kdev, so this checks both sides of that boundary.
	sysfs := fakeMultipathSysfs(t)
	e := peripety.NewStorageEvent()
	e.Kdev = "8:16"
	e.EventType = "SOME_OTHER_EVENT"

	// parseEvent still succeeds if called directly: the drop-on-unknown-type
	// behavior lives in run's switch statement, not here.
	_, ok := parseEvent(sysfs, e)
	assert.True(t, ok)

	in := make(chan peripety.StorageEvent, 1)
	out := make(chan peripety.StorageEvent, 1)
	in <- e
	close(in)
	run(plog.NewDiscard(), sysfs, in, out)
	assert.Empty(t, out, "run must drop an event type it does not handle")
}
