package peripety

import (
	"fmt"
	"strconv"
)

// LogSeverity mirrors syslog priority: total-ordered, lower is more severe.
// It parses from the decimal PRIORITY field the journal attaches to every
// entry.
type LogSeverity int

const (
	Emergency LogSeverity = iota
	Alert
	Critical
	Error
	Warning
	Notice
	Info
	Debug
)

// Unknown severity is returned when PRIORITY is absent or unparseable; it
// sorts as more severe than Emergency would be surprising, so callers
// should treat it as a distinct failure case rather than compare it
// numerically.
const SeverityUnknown LogSeverity = -1

var severityNames = [...]string{
	Emergency: "Emergency",
	Alert:     "Alert",
	Critical:  "Critical",
	Error:     "Error",
	Warning:   "Warning",
	Notice:    "Notice",
	Info:      "Info",
	Debug:     "Debug",
}

func (l LogSeverity) String() string {
	if int(l) < 0 || int(l) >= len(severityNames) {
		return "Unknown"
	}
	return severityNames[l]
}

// ParseLogSeverity parses the journal's decimal PRIORITY field (0-7).
func ParseLogSeverity(s string) (LogSeverity, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < int(Emergency) || n > int(Debug) {
		return SeverityUnknown, fmt.Errorf("%w: invalid severity %q", ErrInvalidEnum, s)
	}
	return LogSeverity(n), nil
}

// ParseLogSeverityName parses the CLI's case-insensitive name form
// (Emergency..Debug) used by --severity.
func ParseLogSeverityName(s string) (LogSeverity, error) {
	for i, name := range severityNames {
		if equalFold(name, s) {
			return LogSeverity(i), nil
		}
	}
	return SeverityUnknown, fmt.Errorf("%w: invalid severity name %q", ErrInvalidEnum, s)
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func (l LogSeverity) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(l))), nil
}

func (l *LogSeverity) UnmarshalJSON(b []byte) error {
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("%w: invalid severity json %q", ErrInvalidEnum, b)
	}
	*l = LogSeverity(n)
	return nil
}
