// Package cmd implements prpt's cobra subcommands: monitor, query, info.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dwlehman/peripety/peripety"
)

var rootCmd = &cobra.Command{
	Use:           "prpt",
	Short:         "CLI utility for peripety events",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns its exit code: 0 on success, 1
// on any argument or runtime error, matching the upstream CLI's quit_with_msg
// convention of always exiting 1 rather than distinguishing error classes.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// signalContext returns a context canceled on SIGINT/SIGTERM, for the
// monitor subcommand's otherwise-unbounded journal tail.
func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

// filter holds the shared --severity/--event-type/--sub-system/--blk
// selection flags common to monitor and query.
type filter struct {
	severityStr  string
	eventTypes   []string
	subSystemStr []string
	blk          string
	jsonOutput   bool
}

func addFilterFlags(c *cobra.Command, f *filter, includeSince bool, since *string) {
	c.Flags().StringVar(&f.severityStr, "severity", "Debug", "only show events at or above this severity (Emergency..Debug)")
	c.Flags().StringSliceVar(&f.eventTypes, "event-type", nil, "only show events with this event type (repeatable)")
	c.Flags().StringSliceVar(&f.subSystemStr, "sub-system", nil, "only show events from this sub-system (repeatable)")
	c.Flags().StringVar(&f.blk, "blk", "", "only show events touching this block device")
	c.Flags().BoolVarP(&f.jsonOutput, "json", "J", false, "print full JSON instead of a one-line summary")
	if includeSince {
		c.Flags().StringVar(since, "since", "", "only show events on or after this date (2006-01-02)")
	}
}

// compiledFilter is the parsed, ready-to-match form of filter.
type compiledFilter struct {
	minSeverity peripety.LogSeverity
	eventTypes  map[string]bool
	subSystems  map[peripety.StorageSubSystem]bool
	blkWWID     string
	jsonOutput  bool
}

func (f filter) compile() (compiledFilter, error) {
	sev, err := peripety.ParseLogSeverityName(f.severityStr)
	if err != nil {
		return compiledFilter{}, fmt.Errorf("invalid --severity %q: %w", f.severityStr, err)
	}

	var subs map[peripety.StorageSubSystem]bool
	if len(f.subSystemStr) > 0 {
		subs = make(map[peripety.StorageSubSystem]bool, len(f.subSystemStr))
		for _, s := range f.subSystemStr {
			sub, err := peripety.ParseStorageSubSystem(s)
			if err != nil {
				return compiledFilter{}, fmt.Errorf("invalid --sub-system %q: %w", s, err)
			}
			subs[sub] = true
		}
	}

	var ets map[string]bool
	if len(f.eventTypes) > 0 {
		ets = make(map[string]bool, len(f.eventTypes))
		for _, et := range f.eventTypes {
			ets[et] = true
		}
	}

	cf := compiledFilter{
		minSeverity: sev,
		eventTypes:  ets,
		subSystems:  subs,
		jsonOutput:  f.jsonOutput,
	}

	if f.blk != "" {
		info, err := peripety.NewBlkInfoSkipExtra(f.blk)
		if err != nil {
			return compiledFilter{}, fmt.Errorf("invalid --blk %q: %w", f.blk, err)
		}
		cf.blkWWID = info.WWID
	}

	return cf, nil
}

// matches reports whether event satisfies every active filter dimension.
// Severity is "equal or higher", i.e. numerically less-or-equal, since
// LogSeverity is ordered most-severe-first.
func (f compiledFilter) matches(event peripety.StorageEvent) bool {
	if event.Severity > f.minSeverity {
		return false
	}
	if len(f.subSystems) > 0 && !f.subSystems[event.SubSystem] {
		return false
	}
	if len(f.eventTypes) > 0 && !f.eventTypes[event.EventType] {
		return false
	}
	if f.blkWWID != "" {
		if event.DevWWID != f.blkWWID && !contains(event.OwnersWWIDs, f.blkWWID) {
			return false
		}
	}
	return true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
