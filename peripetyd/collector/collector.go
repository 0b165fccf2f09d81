// Package collector tails the systemd journal, recognizes kernel-origin
// storage events via the regex dispatch table, and forwards raw
// StorageEvents to the Router.
//
// Much of the dispatch logic mirrors a Rust storage-event monitor this
// daemon descends from (originally itself derived from Tony Asleson's
// storage_event_monitor).
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/sdjournal"

	"github.com/dwlehman/peripety/internal/buildinregex"
	"github.com/dwlehman/peripety/internal/plog"
	"github.com/dwlehman/peripety/peripety"
	"github.com/dwlehman/peripety/peripetyd/config"
)

const (
	fieldMessage          = "MESSAGE"
	fieldSyslogIdentifier = "SYSLOG_IDENTIFIER"
	fieldIsPeripety       = "IS_PERIPETY"
	fieldKernelSubSystem  = "_KERNEL_SUBSYSTEM"
	fieldKernelDevice     = "_KERNEL_DEVICE"
	fieldHostname         = "_HOSTNAME"
	fieldRealtime         = "__REALTIME_TIMESTAMP"
	fieldPriority         = "PRIORITY"
)

// Collector owns the built-in regex table for its lifetime and the
// current user regex set, replaced wholesale on each config.Delta.
type Collector struct {
	log     *plog.Logger
	out     chan<- peripety.StorageEvent
	deltas  <-chan config.Delta
	userCfg []peripety.RegexConf
}

// New builds a Collector that forwards emitted events to out and accepts
// live regex-set replacements from deltas. deltas may be nil for a
// collector with no user regex configuration.
func New(log *plog.Logger, out chan<- peripety.StorageEvent, deltas <-chan config.Delta) *Collector {
	return &Collector{log: log, out: out, deltas: deltas}
}

// Run opens the journal, seeks to its tail (peripetyd never replays old
// entries), and blocks dispatching entries until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	j, err := sdjournal.NewJournal()
	if err != nil {
		return fmt.Errorf("%w: open journal: %v", peripety.ErrJournalRead, err)
	}
	defer j.Close()

	if err := j.SeekTail(); err != nil {
		return fmt.Errorf("%w: seek tail: %v", peripety.ErrJournalRead, err)
	}
	// SeekTail positions just past the last entry; Next() must be called
	// once to settle there before Wait()/Next() start returning new data.
	if _, err := j.Next(); err != nil {
		return fmt.Errorf("%w: settle at tail: %v", peripety.ErrJournalRead, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delta, ok := <-c.deltas:
			if ok {
				c.applyDelta(delta)
			}
		default:
		}

		advanced, err := j.Next()
		if err != nil {
			c.log.Errorf("collector: journal read failed: %v", err)
			continue
		}
		if advanced == 0 {
			// Caught up with the tail; wait for more, but not so long that a
			// config delta or shutdown request is left unserviced.
			if _, err := j.Wait(journalWaitInterval); err != nil {
				c.log.Errorf("collector: journal wait failed: %v", err)
			}
			continue
		}

		entry, err := j.GetEntry()
		if err != nil {
			c.log.Errorf("collector: journal parse failed: %v", err)
			continue
		}
		c.processEntry(entry.Fields)
	}
}

func (c *Collector) applyDelta(delta config.Delta) {
	compiled := make([]peripety.RegexConf, 0, len(delta.Regexes))
	for _, src := range delta.Regexes {
		conf, err := src.Compile()
		if err != nil {
			c.log.Errorf("collector: invalid user regex config %q: %v", src.Regex, err)
			continue
		}
		compiled = append(compiled, conf)
	}
	c.userCfg = compiled
}

// processEntry implements the dispatch and drop rules from spec.md §4.2 and
// §8 invariants 1-2.
func (c *Collector) processEntry(fields map[string]string) {
	msg := fields[fieldMessage]
	if msg == "" {
		return
	}
	if _, ok := fields[fieldSyslogIdentifier]; !ok {
		return
	}
	if fields[fieldIsPeripety] == "TRUE" {
		return
	}
	// /dev/kmsg can carry userspace log lines too, so SYSLOG_IDENTIFIER,
	// not _TRANSPORT, is the correct kernel-origin test.
	if fields[fieldSyslogIdentifier] != "kernel" {
		return
	}

	event := peripety.NewStorageEvent()

	if s := fields[fieldKernelSubSystem]; s != "" {
		if sub, err := peripety.ParseStorageSubSystem(s); err == nil {
			event.SubSystem = sub
		}
	}
	event.Kdev = fields[fieldKernelDevice]

	kdev := event.Kdev
	subSystem := event.SubSystem
	knownSub := event.SubSystem
	var eventType string

	matched := false
	for _, conf := range buildinregex.Table {
		if dispatchOne(conf, msg, knownSub, &kdev, &subSystem, &eventType, event.Extension) {
			matched = true
			break
		}
	}
	if !matched {
		for _, conf := range c.userCfg {
			if dispatchOne(conf, msg, knownSub, &kdev, &subSystem, &eventType, event.Extension) {
				break
			}
		}
	}

	event.Kdev = kdev
	event.SubSystem = subSystem
	event.EventType = eventType

	if event.SubSystem == peripety.Unknown || event.Kdev == "" {
		return
	}

	event.Hostname = fields[fieldHostname]

	us, ok := peripety.ParseRealtimeTimestampField(fields[fieldRealtime])
	if !ok {
		return
	}
	event.Timestamp = peripety.FormatTimestamp(us)
	event.Severity = peripety.ParsePriorityField(fields[fieldPriority])
	event.RawMsg = msg

	// Blocking send: backpressure, never drop.
	c.out <- event
}

// dispatchOne applies a single candidate, honoring the "save CPU" early-out
// the source uses: skip a candidate whose declared sub_system disagrees
// with an already-known (non-Unknown) sub_system.
func dispatchOne(conf peripety.RegexConf, msg string, knownSub peripety.StorageSubSystem, kdev *string, subSystem *peripety.StorageSubSystem, eventType *string, ext map[string]string) bool {
	if knownSub != peripety.Unknown && conf.SubSystem != peripety.Unknown && conf.SubSystem != knownSub {
		return false
	}
	return conf.Apply(msg, kdev, subSystem, eventType, ext)
}

// journalWaitInterval bounds how long Run can be unresponsive to a context
// cancellation or a config reload while idle.
const journalWaitInterval = 2 * time.Second
