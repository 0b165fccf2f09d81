// Package sink writes enriched StorageEvents back to the systemd journal,
// marked so the Collector can recognize and skip peripetyd's own output on
// the next pass.
package sink

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/journal"

	"github.com/dwlehman/peripety/internal/plog"
	"github.com/dwlehman/peripety/peripety"
)

// Sink reads from a single fan-in channel (see Merge) and writes each event
// to the journal as a single structured entry.
type Sink struct {
	log *plog.Logger
	in  <-chan peripety.StorageEvent
}

// New returns a Sink reading from in. Wire every parser's output channel
// into a single fan-in channel (e.g. via Merge) before
// constructing one.
func New(log *plog.Logger, in <-chan peripety.StorageEvent) *Sink {
	return &Sink{log: log, in: in}
}

// Run writes events until in is closed or ctx is canceled.
func (s *Sink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-s.in:
			if !ok {
				return nil
			}
			if err := s.write(event); err != nil {
				s.log.Warnf("sink: failed to write event for kdev %q: %v", event.Kdev, err)
			}
		}
	}
}

func (s *Sink) write(event peripety.StorageEvent) error {
	js, err := event.ToJSONString()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	vars := map[string]string{
		"IS_PERIPETY": "TRUE",
		"JSON":        js,
		"SUB_SYSTEM":  event.SubSystem.String(),
		"EVENT_TYPE":  event.EventType,
		"KDEV":        event.Kdev,
	}

	return journal.Send(event.Msg, severityToPriority(event.Severity), vars)
}

// severityToPriority maps peripety.LogSeverity onto the journal's syslog
// priority scale; both are already 0 (most severe) to 7 (Debug), so this is
// a clamp against SeverityUnknown rather than a real remap.
func severityToPriority(sev peripety.LogSeverity) journal.Priority {
	if sev < peripety.Emergency || sev > peripety.Debug {
		return journal.PriInfo
	}
	return journal.Priority(sev)
}

// Merge fans multiple parser output channels into one, closing the result
// once every source channel has closed. It is the wiring glue between the
// parsers' per-package output channels and a single Sink.
func Merge(chans ...<-chan peripety.StorageEvent) <-chan peripety.StorageEvent {
	out := make(chan peripety.StorageEvent)
	done := make(chan struct{}, len(chans))
	for _, c := range chans {
		go func(c <-chan peripety.StorageEvent) {
			for e := range c {
				out <- e
			}
			done <- struct{}{}
		}(c)
	}
	go func() {
		for range chans {
			<-done
		}
		close(out)
	}()
	return out
}
