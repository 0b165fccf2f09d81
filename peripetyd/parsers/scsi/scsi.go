// Package scsi enriches Raw/Scsi storage events with block-device
// identity resolved from sysfs.
package scsi

import (
	"strings"

	"github.com/dwlehman/peripety/internal/plog"
	"github.com/dwlehman/peripety/peripety"
)

const name = "scsi"

// New registers this parser's filter with the Router and returns both the
// registration and a receive-only channel of its enriched output, which
// the daemon wires to the sink.
func New(log *plog.Logger, bufSize int) (peripety.ParserInfo, <-chan peripety.StorageEvent) {
	in := make(chan peripety.StorageEvent, bufSize)
	out := make(chan peripety.StorageEvent, bufSize)
	info := peripety.ParserInfo{
		Name:            name,
		Sender:          in,
		EventTypeFilter: peripety.NewEventTypeSet(peripety.Raw),
		SubSystemFilter: peripety.NewSubSystemSet(peripety.Scsi),
	}
	sysfs := peripety.DefaultSysfs
	sysfs.Log = log
	go run(log, sysfs, in, out)
	return info, out
}

func run(log *plog.Logger, sysfs peripety.Sysfs, in <-chan peripety.StorageEvent, out chan<- peripety.StorageEvent) {
	for event := range in {
		if enriched, ok := parseEvent(sysfs, event); ok {
			out <- enriched
		} else {
			log.Debugf("scsi: dropped event for kdev %q", event.Kdev)
		}
	}
}

// parseEvent mirrors the upstream scsi_parser: normalize kdev, resolve
// BlkInfo without the holders/uuid/mount-point walk, remap the sense-key
// event type, and compose the human message.
func parseEvent(sysfs peripety.Sysfs, event peripety.StorageEvent) (peripety.StorageEvent, bool) {
	kdev := event.Kdev
	if strings.HasPrefix(kdev, "+scsi:host") {
		return peripety.StorageEvent{}, false
	}
	kdev = strings.TrimPrefix(kdev, "+scsi:")

	info, err := peripety.NewBlkInfoWithSysfs(sysfs, kdev, false)
	if err != nil {
		return peripety.StorageEvent{}, false
	}

	event = event.Clone()
	event.DevPath = info.BlkPath
	event.DevWWID = info.WWID

	if event.EventType == "SCSI_SENSE_KEY" {
		switch event.Extension["sense_key"] {
		case "Medium Error":
			event.EventType = "SCSI_MEDIUM_ERROR"
		case "Hardware Error":
			event.EventType = "SCSI_HARDWARE_ERROR"
		}
	}

	event.Msg = event.RawMsg + ", wwid: '" + event.DevWWID + "'"
	return event, true
}
