package peripety

// ParserInfo is a Parser's registration record with the Router: its name,
// the channel the Router sends matching raw events down, and the filter
// that decides which events match.
//
// A nil SubSystemFilter means "all subsystems". A non-nil, empty
// EventTypeFilter means "no events" (the parser is explicitly disabled) —
// so EventTypeFilter is never nil in a live registration; an empty map is
// the deliberate "disabled" state, not an unset one.
type ParserInfo struct {
	Name            string
	Sender          chan<- StorageEvent
	EventTypeFilter map[EventType]bool
	SubSystemFilter map[StorageSubSystem]bool // nil == all subsystems
}

// Accepts reports whether this registration's filter matches the given
// event.
func (p ParserInfo) Accepts(et EventType, sub StorageSubSystem) bool {
	if !p.EventTypeFilter[et] {
		return false
	}
	if p.SubSystemFilter == nil {
		return true
	}
	return p.SubSystemFilter[sub]
}

// NewEventTypeSet is a small helper for building the common case of a
// single-event-type filter, e.g. NewEventTypeSet(Raw).
func NewEventTypeSet(types ...EventType) map[EventType]bool {
	set := make(map[EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

// NewSubSystemSet builds a subsystem filter set; pass no arguments paired
// with a nil assignment (not NewSubSystemSet()) to mean "all subsystems" —
// NewSubSystemSet with zero args returns an empty, non-nil set, which means
// "no subsystems", distinct from nil.
func NewSubSystemSet(systems ...StorageSubSystem) map[StorageSubSystem]bool {
	set := make(map[StorageSubSystem]bool, len(systems))
	for _, s := range systems {
		set[s] = true
	}
	return set
}
