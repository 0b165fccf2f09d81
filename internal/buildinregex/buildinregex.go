// Package buildinregex is the Collector's compiled-in dispatch table: the
// kernel log patterns peripetyd recognizes with no user configuration at
// all. It always takes precedence over user-supplied regexes (see
// peripety.RegexConf and the Collector's dispatch order).
package buildinregex

import (
	"fmt"

	"github.com/dwlehman/peripety/peripety"
)

// sources is the declared order; built-ins are tried in this order before
// any user regex, and the first match wins.
var sources = []peripety.RegexConfSource{
	{
		Regex:      `device-mapper: multipath: Failing path (?P<kdev>\d+:\d+)\.`,
		StartsWith: "device-mapper: multipath:",
		SubSystem:  "Multipath",
		EventType:  "DM_MPATH_PATH_FAILED",
	},
	{
		Regex:      `device-mapper: multipath: Reinstating path (?P<kdev>\d+:\d+)\.`,
		StartsWith: "device-mapper: multipath:",
		SubSystem:  "Multipath",
		EventType:  "DM_MPATH_PATH_REINSTATED",
	},
	{
		Regex:     `^(?P<kdev>sd[a-zA-Z]+): `,
		SubSystem: "Scsi",
		EventType: "SCSI_DEVICE_ERROR",
	},
	{
		Regex:     `\[(?P<kdev>sd[a-zA-Z]+)\] Sense Key : (?P<sense_key>[A-Za-z ]+) \[`,
		SubSystem: "Scsi",
		EventType: "SCSI_SENSE_KEY",
	},
	{
		Regex:     `\[(?P<kdev>sd[a-zA-Z]+)\] Add\. Sense: (?P<additional_sense>.+)$`,
		SubSystem: "Scsi",
		EventType: "SCSI_SENSE_KEY",
	},
	{
		Regex:     `Buffer I/O error on dev (?P<kdev>[a-zA-Z0-9]+), logical block`,
		SubSystem: "Block",
		EventType: "BLOCK_IO_ERROR",
	},
}

// Table compiles every built-in source once at package init. A compile
// failure here is a programming error in this table, not a runtime
// condition, so it panics rather than returning an error — there is no
// caller that could meaningfully recover from a broken built-in.
var Table = mustCompileAll(sources)

func mustCompileAll(srcs []peripety.RegexConfSource) []peripety.RegexConf {
	out := make([]peripety.RegexConf, 0, len(srcs))
	for _, src := range srcs {
		conf, err := src.Compile()
		if err != nil {
			panic(fmt.Sprintf("buildinregex: %v", err))
		}
		out = append(out, conf)
	}
	return out
}
