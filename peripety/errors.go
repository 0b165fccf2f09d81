package peripety

import "errors"

// Error kinds from spec.md §7. Callers use errors.Is against these
// sentinels; wrapping functions add context with fmt.Errorf("...: %w", ...).
var (
	ErrJournalRead  = errors.New("journal read error")
	ErrJournalParse = errors.New("malformed journal field")
	ErrSysfsMissing = errors.New("expected sysfs path absent")
	ErrSysfsRead    = errors.New("sysfs read error")
	ErrRegexCompile = errors.New("regex compile error")
	ErrInvalidEnum  = errors.New("invalid enum value")
	ErrChannelSend  = errors.New("channel peer gone")
	ErrBlkNotFound  = errors.New("block device not found")
)
