// Package multipath enriches DM_MPATH_PATH_FAILED / DM_MPATH_PATH_REINSTATED
// events with the owning mapper device's identity and the failing path's
// own block and transport details.
package multipath

import (
	"github.com/dwlehman/peripety/internal/plog"
	"github.com/dwlehman/peripety/peripety"
)

const name = "mpath"

// New registers this parser's filter with the Router and returns both the
// registration and a receive-only channel of its enriched output.
func New(log *plog.Logger, bufSize int) (peripety.ParserInfo, <-chan peripety.StorageEvent) {
	in := make(chan peripety.StorageEvent, bufSize)
	out := make(chan peripety.StorageEvent, bufSize)
	info := peripety.ParserInfo{
		Name:            name,
		Sender:          in,
		EventTypeFilter: peripety.NewEventTypeSet(peripety.Raw),
		SubSystemFilter: peripety.NewSubSystemSet(peripety.Multipath),
	}
	sysfs := peripety.DefaultSysfs
	sysfs.Log = log
	go run(log, sysfs, in, out)
	return info, out
}

func run(log *plog.Logger, sysfs peripety.Sysfs, in <-chan peripety.StorageEvent, out chan<- peripety.StorageEvent) {
	for event := range in {
		switch event.EventType {
		case "DM_MPATH_PATH_FAILED", "DM_MPATH_PATH_REINSTATED":
			if enriched, ok := parseEvent(sysfs, event); ok {
				out <- enriched
			} else {
				log.Debugf("mpath: dropped event for kdev %q, no holder in sysfs", event.Kdev)
			}
		default:
			log.Debugf("mpath: got unknown event type %q", event.EventType)
		}
	}
}

// parseEvent mirrors the upstream mpath_parser algorithm from spec.md
// §4.3.2.
func parseEvent(sysfs peripety.Sysfs, event peripety.StorageEvent) (peripety.StorageEvent, bool) {
	name, wwid, ok := sysfs.MpathInfoFromBlk(event.Kdev)
	if !ok {
		return peripety.StorageEvent{}, false
	}

	event = event.Clone()
	event.DevPath = "/dev/mapper/" + name
	event.DevName = name
	event.DevWWID = wwid

	if pathInfo, err := peripety.NewBlkInfoWithSysfs(sysfs, event.Kdev, true); err == nil {
		event.OwnersWWIDs = append(event.OwnersWWIDs, pathInfo.WWID)
		event.OwnersNames = append(event.OwnersNames, pathInfo.Name)
		event.OwnersPaths = append(event.OwnersPaths, pathInfo.BlkPath)
		event.OwnersTypes = append(event.OwnersTypes, pathInfo.BlkType.String())

		if pathInfo.BlkType == peripety.BlkTypeScsi {
			for k, v := range sysfs.SCSIHostInfo(pathInfo.Name) {
				event.Extension[k] = v
			}
		}
	}

	event.Extension["blk_major_minor"] = event.Kdev
	return event, true
}
