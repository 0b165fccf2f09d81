package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/sdjournal"
	"github.com/spf13/cobra"

	"github.com/dwlehman/peripety/peripety"
)

var (
	queryFlags filter
	querySince string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query previously saved peripety events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cf, err := queryFlags.compile()
		if err != nil {
			return err
		}

		j, err := sdjournal.NewJournal()
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()

		if err := j.AddMatch("IS_PERIPETY=TRUE"); err != nil {
			return fmt.Errorf("filter to peripety entries: %w", err)
		}

		if querySince != "" {
			t, err := time.ParseInLocation("2006-01-02", querySince, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --since %q, want 2006-01-02: %w", querySince, err)
			}
			if err := j.SeekRealtimeUsec(uint64(t.UnixMicro())); err != nil {
				return fmt.Errorf("seek to %q: %w", querySince, err)
			}
		} else if err := j.SeekHead(); err != nil {
			return fmt.Errorf("seek head: %w", err)
		}

		for {
			advanced, err := j.Next()
			if err != nil {
				return fmt.Errorf("read journal: %w", err)
			}
			if advanced == 0 {
				return nil
			}
			entry, err := j.GetEntry()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error retrieving the journal entry: %v\n", err)
				continue
			}
			js, ok := entry.Fields["JSON"]
			if !ok {
				continue
			}
			event, err := peripety.StorageEventFromJSONString(js)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			if cf.matches(event) {
				printEvent(event, cf.jsonOutput)
			}
		}
	},
}

func init() {
	addFilterFlags(queryCmd, &queryFlags, true, &querySince)
	rootCmd.AddCommand(queryCmd)
}
