package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwlehman/peripety/internal/plog"
	"github.com/dwlehman/peripety/peripety"
	"github.com/dwlehman/peripety/peripetyd/config"
)

func newTestCollector() (*Collector, chan peripety.StorageEvent) {
	out := make(chan peripety.StorageEvent, 4)
	return New(plog.NewDiscard(), out, nil), out
}

func TestProcessEntryScsiSenseKeyScenario(t *testing.T) {
	c, out := newTestCollector()
	c.processEntry(map[string]string{
		"MESSAGE":              "sd 0:0:0:0: [sda] Sense Key : Medium Error [current]",
		"SYSLOG_IDENTIFIER":    "kernel",
		"PRIORITY":             "3",
		"__REALTIME_TIMESTAMP": "1700000000000000",
	})

	require.Len(t, out, 1)
	e := <-out
	assert.Equal(t, peripety.Scsi, e.SubSystem)
	assert.Equal(t, peripety.Error, e.Severity)
	assert.Equal(t, "sda", e.Kdev)
	assert.Equal(t, "Medium Error", e.Extension["sense_key"])
}

func TestProcessEntryMultipathFailingScenario(t *testing.T) {
	c, out := newTestCollector()
	c.processEntry(map[string]string{
		"MESSAGE":              "device-mapper: multipath: Failing path 8:16.",
		"SYSLOG_IDENTIFIER":    "kernel",
		"PRIORITY":             "4",
		"__REALTIME_TIMESTAMP": "1700000000000000",
	})

	require.Len(t, out, 1)
	e := <-out
	assert.Equal(t, peripety.Multipath, e.SubSystem)
	assert.Equal(t, "DM_MPATH_PATH_FAILED", e.EventType)
	assert.Equal(t, "8:16", e.Kdev)
}

func TestProcessEntryDropsNonKernelSource(t *testing.T) {
	c, out := newTestCollector()
	c.processEntry(map[string]string{
		"MESSAGE":           "Accepted publickey for root",
		"SYSLOG_IDENTIFIER": "sshd",
	})
	assert.Empty(t, out)
}

func TestProcessEntryDropsEmptyMessage(t *testing.T) {
	c, out := newTestCollector()
	c.processEntry(map[string]string{
		"MESSAGE":           "",
		"SYSLOG_IDENTIFIER": "kernel",
	})
	assert.Empty(t, out)
}

func TestProcessEntryDropsSelfEmitted(t *testing.T) {
	c, out := newTestCollector()
	c.processEntry(map[string]string{
		"MESSAGE":              "sd 0:0:0:0: [sda] Sense Key : Medium Error [current]",
		"SYSLOG_IDENTIFIER":    "kernel",
		"IS_PERIPETY":          "TRUE",
		"__REALTIME_TIMESTAMP": "1700000000000000",
	})
	assert.Empty(t, out)
}

func TestProcessEntryDropsUnmatchedMessage(t *testing.T) {
	c, out := newTestCollector()
	c.processEntry(map[string]string{
		"MESSAGE":              "Linux version 6.1.0 (build@host)",
		"SYSLOG_IDENTIFIER":    "kernel",
		"__REALTIME_TIMESTAMP": "1700000000000000",
	})
	assert.Empty(t, out, "sub_system==Unknown or kdev==\"\" must never be emitted")
}

func TestProcessEntryUserRegexOnlyUsedWhenBuiltinsMiss(t *testing.T) {
	c, out := newTestCollector()
	src := peripety.RegexConfSource{
		Regex:     `custom marker (?P<kdev>\d+:\d+)`,
		SubSystem: "Block",
		EventType: "CUSTOM_EVENT",
	}
	conf, err := src.Compile()
	require.NoError(t, err)
	c.userCfg = []peripety.RegexConf{conf}

	c.processEntry(map[string]string{
		"MESSAGE":              "custom marker 8:0 happened",
		"SYSLOG_IDENTIFIER":    "kernel",
		"__REALTIME_TIMESTAMP": "1700000000000000",
	})

	require.Len(t, out, 1)
	e := <-out
	assert.Equal(t, "CUSTOM_EVENT", e.EventType)
	assert.Equal(t, "8:0", e.Kdev)
}

func TestApplyDeltaSkipsBadRegexKeepsRest(t *testing.T) {
	c, _ := newTestCollector()
	c.applyDelta(config.Delta{Regexes: []peripety.RegexConfSource{
		{Regex: `(unterminated`},
		{Regex: `ok (?P<kdev>\d+:\d+)`, SubSystem: "Block"},
	}})
	assert.Len(t, c.userCfg, 1)
}
