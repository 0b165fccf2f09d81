package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/sdjournal"
	"github.com/spf13/cobra"

	"github.com/dwlehman/peripety/peripety"
)

const journalPollInterval = 2 * time.Second

var monitorFlags filter

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor incoming peripety events as they are written",
	RunE: func(cmd *cobra.Command, args []string) error {
		cf, err := monitorFlags.compile()
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
		if err := j.SeekTail(); err != nil {
			return fmt.Errorf("seek tail: %w", err)
		}
		if _, err := j.Next(); err != nil {
			return fmt.Errorf("settle at tail: %w", err)
		}

		ctx := signalContext()
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			advanced, err := j.Next()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error retrieving the journal entry: %v\n", err)
				continue
			}
			if advanced == 0 {
				if _, err := j.Wait(journalPollInterval); err != nil {
					fmt.Fprintf(os.Stderr, "Error waiting on journal: %v\n", err)
				}
				continue
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
	addFilterFlags(monitorCmd, &monitorFlags, false, nil)
	rootCmd.AddCommand(monitorCmd)
}
