// Package config loads peripetyd's INI-style configuration file and
// watches it for changes, emitting a Delta each time the user regex set is
// replaced.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/gravwell/gcfg"

	"github.com/dwlehman/peripety/internal/plog"
	"github.com/dwlehman/peripety/peripety"
)

const maxConfigSize int64 = 1024 * 1024 // config files are hand-written, 1MB is already absurd

// regexSection is one [RegexConf "name"] stanza.
type regexSection struct {
	Regex       string
	Starts_With string
	Sub_System  string
	Event_Type  string
}

type globalSection struct {
	Log_File  string
	Log_Level string
}

// fileForm is the literal shape gcfg decodes the INI text into.
type fileForm struct {
	Global    globalSection
	RegexConf map[string]*regexSection
}

// Config is the validated, daemon-ready form of a loaded file.
type Config struct {
	LogFile  string
	LogLevel string
	Regexes  []peripety.RegexConfSource
}

// Load reads and parses path. A missing or malformed file is returned as an
// error (peripetyd then starts with the built-in regexes only); a malformed
// individual regex section is
// not validated here (Compile happens at the Collector) so a bad pattern
// never blocks loading the rest of the file.
func Load(path string) (Config, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: stat %q: %w", path, err)
	}
	if fi.Size() > maxConfigSize {
		return Config{}, fmt.Errorf("config: %q exceeds %d bytes", path, maxConfigSize)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}
	var form fileForm
	if err := gcfg.ReadStringInto(&form, string(b)); err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return form.toConfig(), nil
}

func (f fileForm) toConfig() Config {
	c := Config{
		LogFile:  f.Global.Log_File,
		LogLevel: f.Global.Log_Level,
	}
	for name, section := range f.RegexConf {
		c.Regexes = append(c.Regexes, peripety.RegexConfSource{
			Regex:      section.Regex,
			StartsWith: section.Starts_With,
			SubSystem:  section.Sub_System,
			EventType:  nameOrEventType(name, section.Event_Type),
		})
	}
	return c
}

func nameOrEventType(name, eventType string) string {
	if eventType != "" {
		return eventType
	}
	return name
}

// Delta is what the Collector applies on a live reload: a whole-set
// replacement of the user regex set, per spec ("replace-all of the user
// regex set").
type Delta struct {
	Regexes []peripety.RegexConfSource
}

// Watcher tails a config file for writes/renames (editors commonly do
// rename-into-place) and republishes its regex set as a Delta. It never
// closes its output channel; callers select on ctx.Done() alongside it.
type Watcher struct {
	path string
	log  *plog.Logger
	out  chan Delta
	fsw  *fsnotify.Watcher
}

// NewWatcher opens an fsnotify watch on path's containing directory (not
// the file itself — editors replace the inode on save, which would orphan
// a direct watch). It does not load the file itself; Run publishes a Delta
// only for changes made after the watch starts.
func NewWatcher(path string, log *plog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watch %q: %w", dir, err)
	}
	return &Watcher{
		path: path,
		log:  log,
		out:  make(chan Delta, 1),
		fsw:  fsw,
	}, nil
}

// Deltas returns the channel new deltas are published on.
func (w *Watcher) Deltas() <-chan Delta {
	return w.out
}

// Run blocks, pushing a Delta each time path changes, until ctx is
// cancelled. A parse failure is logged and the previous delta stays live.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Errorf("config: watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Errorf("config: reload %q failed, keeping previous regex set: %v", w.path, err)
		return
	}
	select {
	case w.out <- Delta{Regexes: cfg.Regexes}:
	default:
		// A delta is already pending; drain it and push the fresher one so
		// the Collector always applies the latest file contents.
		select {
		case <-w.out:
		default:
		}
		w.out <- Delta{Regexes: cfg.Regexes}
	}
}
