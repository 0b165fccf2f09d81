package peripety

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// EventType tags the pipeline stage that produced an event. It is distinct
// from StorageEvent.EventType, the free-form label (e.g. DM_MPATH_PATH_FAILED)
// carried alongside it.
type EventType int

const (
	// Raw is produced by the Collector.
	Raw EventType = iota
	// Synthetic is produced by a Parser.
	Synthetic
)

func (e EventType) String() string {
	switch e {
	case Raw:
		return "Raw"
	case Synthetic:
		return "Synthetic"
	default:
		return "Unknown"
	}
}

// timestampLayout is RFC3339 with microsecond precision, local time. It is
// the wire form stored in StorageEvent.Timestamp and must round-trip with
// ParseTimestamp for every microsecond-resolution input.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatTimestamp converts a journal __REALTIME_TIMESTAMP (microseconds
// since the Unix epoch) into the RFC3339-micros local-time wire form.
func FormatTimestamp(microseconds int64) string {
	sec := microseconds / 1_000_000
	usec := microseconds % 1_000_000
	if usec < 0 {
		usec += 1_000_000
		sec--
	}
	t := time.Unix(sec, usec*1000).Local()
	return t.Format(timestampLayout)
}

// ParseTimestamp is the inverse of FormatTimestamp.
func ParseTimestamp(s string) (int64, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid timestamp %q: %v", ErrJournalParse, s, err)
	}
	return t.Unix()*1_000_000 + int64(t.Nanosecond())/1000, nil
}

// StorageEvent is the unit that flows end-to-end through the pipeline: from
// Collector, through zero or more Parsers, to the journal sink, and back out
// through the CLI's JSON deserialization of the JSON field.
type StorageEvent struct {
	Timestamp string           `json:"timestamp"`
	Hostname  string           `json:"hostname"`
	Severity  LogSeverity      `json:"severity"`
	SubSystem StorageSubSystem `json:"sub_system"`
	EventType string           `json:"event_type"`
	Kdev      string           `json:"kdev"`

	RawMsg string `json:"raw_msg"`
	Msg    string `json:"msg"`

	DevPath string `json:"dev_path"`
	DevName string `json:"dev_name"`
	DevWWID string `json:"dev_wwid"`

	OwnersWWIDs []string `json:"owners_wwids"`
	OwnersNames []string `json:"owners_names"`
	OwnersPaths []string `json:"owners_paths"`
	OwnersTypes []string `json:"owners_types"`

	Extension map[string]string `json:"extension"`
}

// NewStorageEvent returns a StorageEvent with its maps/slices initialized so
// callers never need a nil check before indexing Extension.
func NewStorageEvent() StorageEvent {
	return StorageEvent{Extension: make(map[string]string)}
}

// Clone makes a deep-enough copy for a parser to mutate without racing
// other parsers: the Router sends each matching parser its own clone, so no
// two parsers share the Extension map or the owners slices, and the parsers
// clone again before enriching.
func (e StorageEvent) Clone() StorageEvent {
	c := e
	c.OwnersWWIDs = append([]string(nil), e.OwnersWWIDs...)
	c.OwnersNames = append([]string(nil), e.OwnersNames...)
	c.OwnersPaths = append([]string(nil), e.OwnersPaths...)
	c.OwnersTypes = append([]string(nil), e.OwnersTypes...)
	c.Extension = make(map[string]string, len(e.Extension))
	for k, v := range e.Extension {
		c.Extension[k] = v
	}
	return c
}

// ToJSONString serializes the event as the JSON field of an outbound
// journal entry.
func (e StorageEvent) ToJSONString() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONStringPretty is used by the CLI's -J output mode.
func (e StorageEvent) ToJSONStringPretty() (string, error) {
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// StorageEventFromJSONString parses the JSON field of a Peripety-marked
// journal entry, as consumed by the CLI's monitor/query commands.
func StorageEventFromJSONString(s string) (StorageEvent, error) {
	var e StorageEvent
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return StorageEvent{}, fmt.Errorf("%w: %v", ErrJournalParse, err)
	}
	if e.Extension == nil {
		e.Extension = make(map[string]string)
	}
	return e, nil
}

func marshalJSONString(s string) ([]byte, error) {
	return json.Marshal(s)
}

func unmarshalJSONString(b []byte) (string, error) {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEnum, err)
	}
	return s, nil
}

// ParsePriorityField parses the journal PRIORITY field, falling back to
// SeverityUnknown on any parse failure rather than erroring the whole entry
// (spec.md §7: recovered locally).
func ParsePriorityField(raw string) LogSeverity {
	if raw == "" {
		return SeverityUnknown
	}
	sev, err := ParseLogSeverity(raw)
	if err != nil {
		return SeverityUnknown
	}
	return sev
}

// ParseRealtimeTimestampField parses __REALTIME_TIMESTAMP, a decimal
// microsecond count, returning ok=false on malformed input.
func ParseRealtimeTimestampField(raw string) (microseconds int64, ok bool) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
