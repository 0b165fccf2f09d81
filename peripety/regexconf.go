package peripety

import (
	"fmt"
	"regexp"
	"strings"
)

// RegexConfSource is the unvalidated, declarative form of a RegexConf: what
// a config file or the built-in table literally spells out. Compile turns
// it into a RegexConf with the pattern already compiled, per the design
// note "compile once at registration time; do not recompile per message."
type RegexConfSource struct {
	Regex      string
	StartsWith string
	SubSystem  string
	EventType  string
}

// Compile validates and compiles a RegexConfSource. A bad pattern or an
// unknown sub_system name is an ErrRegexCompile / ErrInvalidEnum,
// respectively; the caller (Collector config reload, built-in table init)
// decides whether that drops just this entry or aborts.
func (s RegexConfSource) Compile() (RegexConf, error) {
	sub := Unknown
	if s.SubSystem != "" {
		var err error
		if sub, err = ParseStorageSubSystem(s.SubSystem); err != nil {
			return RegexConf{}, err
		}
	}
	re, err := regexp.Compile(s.Regex)
	if err != nil {
		return RegexConf{}, fmt.Errorf("%w: %v", ErrRegexCompile, err)
	}
	return RegexConf{
		Regex:      re,
		SubSystem:  sub,
		EventType:  s.EventType,
		StartsWith: s.StartsWith,
	}, nil
}

// RegexConf pairs a compiled pattern with the subsystem/event-type it
// dispatches to, and an optional cheap literal prefix used as a pre-filter
// before the (relatively expensive) regexp match is attempted.
//
// Invariant: if Regex declares a named capture group "kdev", a match's
// kernel device field is taken from that capture; every other named group
// becomes a key in the event's Extension map.
type RegexConf struct {
	Regex      *regexp.Regexp
	SubSystem  StorageSubSystem
	EventType  string
	StartsWith string
}

// Matches reports whether msg could possibly match, without running the
// (potentially expensive) capture — i.e. it enforces the starts_with
// pre-filter invariant from spec.md §8 property 3.
func (c RegexConf) Matches(msg string) bool {
	if c.StartsWith != "" && !strings.HasPrefix(msg, c.StartsWith) {
		return false
	}
	return true
}

// Apply runs the regex against msg and, on a match, fills kdev/subSystem/
// eventType/extension into the fields it governs. It returns ok=false on no
// match (callers should try the next RegexConf in the dispatch table).
func (c RegexConf) Apply(msg string, kdev *string, subSystem *StorageSubSystem, eventType *string, extension map[string]string) bool {
	if !c.Matches(msg) {
		return false
	}
	cap := c.Regex.FindStringSubmatch(msg)
	if cap == nil {
		return false
	}
	names := c.Regex.SubexpNames()

	kdevIdx := -1
	for i, name := range names {
		if name == "kdev" {
			kdevIdx = i
			break
		}
	}
	if kdevIdx != -1 && cap[kdevIdx] != "" {
		*kdev = cap[kdevIdx]
	}
	if *kdev == "" {
		return false
	}

	if c.SubSystem != Unknown {
		*subSystem = c.SubSystem
	}
	if c.EventType != "" {
		*eventType = c.EventType
	}
	for i, name := range names {
		if name == "" || name == "kdev" {
			continue
		}
		if cap[i] != "" {
			extension[name] = cap[i]
		}
	}
	return true
}
