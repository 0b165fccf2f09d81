// Command peripetyd tails the systemd journal for kernel storage events,
// enriches them with block-device identity, and writes the results back to
// the journal as structured JSON for prpt and other consumers to read.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dwlehman/peripety/internal/plog"
	"github.com/dwlehman/peripety/peripety"
	"github.com/dwlehman/peripety/peripetyd/collector"
	"github.com/dwlehman/peripety/peripetyd/config"
	"github.com/dwlehman/peripety/peripetyd/parsers/multipath"
	"github.com/dwlehman/peripety/peripetyd/parsers/scsi"
	"github.com/dwlehman/peripety/peripetyd/router"
	"github.com/dwlehman/peripety/peripetyd/sink"
)

const (
	defaultConfigLoc = "/etc/peripetyd.conf"
	appName          = "peripetyd"

	// parserBufSize bounds how far a slow parser can lag the Router before
	// its send blocks, which in turn blocks the Collector: a deliberately
	// small number, since a parser stalling for long enough to fill this is
	// already a problem worth surfacing as journal backpressure.
	parserBufSize = 64
)

var (
	confLoc = flag.String("config-file", defaultConfigLoc, "Location of the peripetyd configuration file")
	ver     = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()
	if *ver {
		fmt.Println("peripetyd (unversioned development build)")
		os.Exit(0)
	}

	lg := plog.New(os.Stderr)

	cfg, err := config.Load(*confLoc)
	if err != nil {
		lg.Warnf("peripetyd: no usable config at %q, starting with built-ins only: %v", *confLoc, err)
	} else {
		applyGlobals(lg, cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deltas := make(chan config.Delta, 1)
	if err == nil {
		deltas <- config.Delta{Regexes: cfg.Regexes}
	}

	watcher, err := config.NewWatcher(*confLoc, lg)
	if err != nil {
		lg.Warnf("peripetyd: config watch disabled for %q: %v", *confLoc, err)
	} else {
		go forwardDeltas(ctx, watcher.Deltas(), deltas)
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				lg.Errorf("peripetyd: config watcher exited: %v", err)
			}
		}()
	}

	rawEvents := make(chan peripety.StorageEvent, parserBufSize)
	coll := collector.New(lg, rawEvents, deltas)

	rtr := router.New(lg, rawEvents)

	scsiInfo, scsiOut := scsi.New(lg, parserBufSize)
	mpathInfo, mpathOut := multipath.New(lg, parserBufSize)
	rtr.Register(scsiInfo)
	rtr.Register(mpathInfo)

	snk := sink.New(lg, sink.Merge(scsiOut, mpathOut))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	errs := make(chan error, 3)
	go func() { errs <- coll.Run(ctx) }()
	go func() { errs <- rtr.Run(ctx) }()
	go func() { errs <- snk.Run(ctx) }()

	select {
	case sig := <-quit:
		lg.Infof("peripetyd: received %v, shutting down", sig)
	case err := <-errs:
		lg.Errorf("peripetyd: a pipeline stage exited unexpectedly: %v", err)
	}

	cancel()
	for i := 0; i < 3; i++ {
		<-errs
	}
	lg.Close()
}

func applyGlobals(lg *plog.Logger, cfg config.Config) {
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
		if err != nil {
			lg.Errorf("peripetyd: failed to open Log-File %q: %v", cfg.LogFile, err)
		} else if err := lg.AddWriter(f); err != nil {
			lg.Errorf("peripetyd: failed to attach Log-File writer: %v", err)
		}
	}
	if cfg.LogLevel != "" {
		lvl, err := plog.LevelFromString(cfg.LogLevel)
		if err != nil {
			lg.Errorf("peripetyd: invalid Log-Level %q: %v", cfg.LogLevel, err)
		} else if err := lg.SetLevel(lvl); err != nil {
			lg.Errorf("peripetyd: failed to set log level: %v", err)
		}
	}
}

// forwardDeltas relays every watcher-produced Delta onto the Collector's
// input channel, which already carries the one-time initial load.
func forwardDeltas(ctx context.Context, in <-chan config.Delta, out chan<- config.Delta) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}
}
