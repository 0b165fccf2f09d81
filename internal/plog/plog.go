// Package plog is peripetyd's diagnostic logger: where the
// StorageEvent it produces goes to the journal as structured JSON, plog
// carries the daemon's own operational chatter (dropped entries, config
// reloads, sysfs trouble) as RFC5424 syslog lines.
package plog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

const (
	defaultDepth = 3
	defaultMsgID = `peripetyd`

	maxAppname  = 48
	maxHostname = 255
)

var ErrNotOpen = errors.New("plog: logger is not open")
var ErrInvalidLevel = errors.New("plog: invalid log level")

func (l Level) String() string {
	switch l {
	case OFF:
		return "OFF"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

func (l Level) Valid() bool {
	return l >= OFF && l <= CRITICAL
}

func (l Level) priority() rfc5424.Priority {
	switch l {
	case OFF:
		return 0
	case DEBUG:
		return rfc5424.User | rfc5424.Debug
	case INFO:
		return rfc5424.User | rfc5424.Info
	case WARN:
		return rfc5424.User | rfc5424.Warning
	case ERROR:
		return rfc5424.User | rfc5424.Error
	case CRITICAL:
		return rfc5424.User | rfc5424.Crit
	}
	return rfc5424.User | rfc5424.Debug
}

// LevelFromString parses a config-file log level, case-insensitively.
func LevelFromString(s string) (Level, error) {
	switch strings.ToUpper(s) {
	case "OFF":
		return OFF, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "CRITICAL":
		return CRITICAL, nil
	}
	return OFF, ErrInvalidLevel
}

// Logger is a minimal RFC5424 syslog writer fanning out to one or more
// io.WriteClosers. It is concurrency-safe; every caller-facing method may
// be called from any goroutine.
type Logger struct {
	mtx      sync.Mutex
	wtrs     []io.WriteCloser
	lvl      Level
	hot      bool
	appname  string
	hostname string
}

// New wraps wtr as a logger at INFO level, using the running binary's name
// as appname and the kernel hostname.
func New(wtr io.WriteCloser) *Logger {
	l := &Logger{
		wtrs: []io.WriteCloser{wtr},
		lvl:  INFO,
		hot:  true,
	}
	l.appname = guessAppname()
	if h, err := os.Hostname(); err == nil {
		l.hostname = trimLength(maxHostname, h)
	}
	return l
}

// NewFile opens f in append mode (creating it if necessary) and wraps it.
func NewFile(f string) (*Logger, error) {
	fout, err := os.OpenFile(f, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("plog: open %q: %w", f, err)
	}
	return New(fout), nil
}

// NewDiscard returns a logger that drops everything, for tests.
func NewDiscard() *Logger {
	return New(discardCloser{})
}

func guessAppname() string {
	if len(os.Args) == 0 {
		return "peripetyd"
	}
	exe := filepath.Base(os.Args[0])
	if ext := filepath.Ext(exe); len(ext) > 0 && len(ext) < len(exe) {
		exe = strings.TrimSuffix(exe, ext)
	}
	return trimLength(maxAppname, exe)
}

func (l *Logger) ready() error {
	if !l.hot || len(l.wtrs) == 0 {
		return ErrNotOpen
	}
	return nil
}

// SetLevel changes the minimum level that is written out.
func (l *Logger) SetLevel(lvl Level) error {
	if !lvl.Valid() {
		return ErrInvalidLevel
	}
	l.mtx.Lock()
	l.lvl = lvl
	l.mtx.Unlock()
	return nil
}

func (l *Logger) GetLevel() Level {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.lvl
}

// AddWriter fans subsequent log lines out to an additional writer, e.g. so
// peripetyd writes to its configured Log-File as well as to stderr.
func (l *Logger) AddWriter(wtr io.WriteCloser) error {
	if wtr == nil {
		return errors.New("plog: nil writer")
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err := l.ready(); err != nil {
		return err
	}
	l.wtrs = append(l.wtrs, wtr)
	return nil
}

// Close closes every writer and marks the logger unusable.
func (l *Logger) Close() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err := l.ready(); err != nil {
		return err
	}
	l.hot = false
	var err error
	for _, w := range l.wtrs {
		if lerr := w.Close(); lerr != nil {
			err = lerr
		}
	}
	return err
}

func (l *Logger) Debugf(f string, args ...interface{}) { l.outputf(defaultDepth, DEBUG, f, args...) }
func (l *Logger) Infof(f string, args ...interface{})  { l.outputf(defaultDepth, INFO, f, args...) }
func (l *Logger) Warnf(f string, args ...interface{})  { l.outputf(defaultDepth, WARN, f, args...) }
func (l *Logger) Errorf(f string, args ...interface{}) { l.outputf(defaultDepth, ERROR, f, args...) }
func (l *Logger) Criticalf(f string, args ...interface{}) {
	l.outputf(defaultDepth, CRITICAL, f, args...)
}

// Debug, Info, Warn, Error carry structured data (e.g. kdev, sub_system)
// alongside a free-form message, mirroring RFC5424's SD-PARAM mechanism
// rather than interpolating the fields into the text.
func (l *Logger) Debug(msg string, sds ...rfc5424.SDParam)    { l.outputStructured(DEBUG, msg, sds...) }
func (l *Logger) Info(msg string, sds ...rfc5424.SDParam)     { l.outputStructured(INFO, msg, sds...) }
func (l *Logger) Warn(msg string, sds ...rfc5424.SDParam)     { l.outputStructured(WARN, msg, sds...) }
func (l *Logger) Error(msg string, sds ...rfc5424.SDParam)    { l.outputStructured(ERROR, msg, sds...) }
func (l *Logger) Critical(msg string, sds ...rfc5424.SDParam) { l.outputStructured(CRITICAL, msg, sds...) }

func (l *Logger) outputf(depth int, lvl Level, f string, args ...interface{}) {
	l.emit(depth, lvl, fmt.Sprintf(f, args...))
}

func (l *Logger) outputStructured(lvl Level, msg string, sds ...rfc5424.SDParam) {
	l.emitSD(defaultDepth, lvl, msg, sds...)
}

func (l *Logger) emit(depth int, lvl Level, msg string) {
	l.emitSD(depth+1, lvl, msg)
}

func (l *Logger) emitSD(depth int, lvl Level, msg string, sds ...rfc5424.SDParam) {
	l.mtx.Lock()
	cur := l.lvl
	l.mtx.Unlock()
	if cur == OFF || lvl < cur {
		return
	}
	b, err := genRFCMessage(time.Now(), lvl.priority(), l.hostname, l.appname, callLoc(depth), msg, sds...)
	if err != nil || len(b) == 0 {
		return
	}
	l.write(append(b, '\n'))
}

func (l *Logger) write(b []byte) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err := l.ready(); err != nil {
		return
	}
	for _, w := range l.wtrs {
		w.Write(b)
	}
}

// genRFCMessage builds an RFC5424 message per
// https://www.rfc-editor.org/rfc/rfc5424.html#section-6.2.7, trimming
// fields to the lengths that section specifies.
func genRFCMessage(ts time.Time, prio rfc5424.Priority, hostname, appname, msgid, msg string, sds ...rfc5424.SDParam) ([]byte, error) {
	m := rfc5424.Message{
		Priority:  prio,
		Timestamp: ts,
		Hostname:  trimLength(maxHostname, hostname),
		AppName:   trimLength(maxAppname, appname),
		MessageID: trimPathLength(32, msgid),
		Message:   []byte(msg),
	}
	if len(sds) > 0 {
		m.StructuredData = []rfc5424.StructuredData{{ID: defaultMsgID, Parameters: sds}}
	}
	return m.MarshalBinary()
}

func callLoc(depth int) string {
	if _, file, line, ok := runtime.Caller(depth); ok {
		dir, file := filepath.Split(file)
		file = filepath.Join(filepath.Base(dir), file)
		return fmt.Sprintf("%s:%d", file, line)
	}
	return ""
}

func trimLength(n int, s string) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func trimPathLength(n int, s string) string {
	if len(s) <= n {
		return s
	}
	return trimLength(n, filepath.Base(s))
}

type discardCloser struct{}

func (discardCloser) Write(b []byte) (int, error) { return len(b), nil }
func (discardCloser) Close() error                { return nil }
