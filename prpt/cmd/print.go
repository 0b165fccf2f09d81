package cmd

import (
	"fmt"
	"time"

	"github.com/dwlehman/peripety/peripety"
)

// printEvent renders event either as pretty JSON or as the upstream CLI's
// one-line "timestamp hostname sub_system message" summary.
func printEvent(event peripety.StorageEvent, jsonOutput bool) {
	if jsonOutput {
		s, err := event.ToJSONStringPretty()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Println(s)
		return
	}

	ts := event.Timestamp
	if t, err := time.Parse("2006-01-02T15:04:05.000000Z07:00", event.Timestamp); err == nil {
		ts = t.Local().Format(time.RFC1123Z)
	}
	msg := event.RawMsg
	if event.Msg != "" {
		msg = event.Msg
	}
	fmt.Printf("%s %s %s %s\n", ts, event.Hostname, event.SubSystem, msg)
}
