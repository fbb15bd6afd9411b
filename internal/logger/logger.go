package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	consolePrefix = "[RAID-REVIEW]"
	dumpPrefix    = "[RAID-REVIEW:DUMP]"
	ioPrefix      = "[RAID-REVIEW:IO]"

	// Matches the millisecond precision UTC form, e.g. 2024-05-01T12:00:00.000Z
	isoTimeFormat = "2006-01-02T15:04:05.000Z"
)

// Sink names reported to the Recorder
const (
	SinkConsole = "console"
	SinkFile    = "file"
)

// Config holds logger configuration
type Config struct {
	EnableLogFiles        bool   // master switch for any file output
	MaximumLogFiles       int    // retention cap
	EnableDebugLogs       bool   // gates debug output entirely
	EnableVerboseLogFiles bool   // persist debug and warn lines too
	Directory             string // session log directory
	Redaction             bool   // mask credentials in emitted lines
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		EnableLogFiles:  true,
		MaximumLogFiles: 10,
		Directory:       "logs",
	}
}

// Recorder receives counts of what the logger did
type Recorder interface {
	LineEmitted(level, sink string)
	SessionStarted()
	FileEvicted()
	AppendFailed()
}

type nopRecorder struct{}

func (nopRecorder) LineEmitted(string, string) {}
func (nopRecorder) SessionStarted()            {}
func (nopRecorder) FileEvicted()               {}
func (nopRecorder) AppendFailed()              {}

// Option customises a Logger
type Option func(*Logger)

// WithConsole sets the console sink (default os.Stdout)
func WithConsole(w io.Writer) Option {
	return func(l *Logger) { l.out = w }
}

// WithStore sets the file collaborator (default host filesystem)
func WithStore(s Store) Option {
	return func(l *Logger) { l.store = s }
}

// WithClock sets the time source used for session names and line timestamps
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(l *Logger) { l.recorder = r }
}

// Logger routes leveled messages to the console and the current session file.
//
// A Logger starts Inactive. Init makes it Active by adopting a fresh
// session file name; each later Init replaces that name. Files are opened
// per write, so there is nothing to close. The configuration is fixed for
// the lifetime of a Logger; use Derive for a different one.
type Logger struct {
	cfg       Config
	out       io.Writer
	console   zerolog.Logger
	store     Store
	retention *Retention
	redactor  *Redactor
	recorder  Recorder
	now       func() time.Time

	mu          sync.RWMutex
	sessionFile string
}

// New creates a new logger
func New(cfg Config, opts ...Option) *Logger {
	l := &Logger{
		cfg:      cfg,
		out:      os.Stdout,
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.store == nil {
		l.store = NewOSStore()
	}
	l.retention = NewRetention(l.store, cfg.Directory, cfg.MaximumLogFiles)

	out := l.out
	if cfg.Redaction {
		l.redactor = NewRedactor()
		out = l.redactor.Wrap(out)
	}
	l.console = newConsole(out)

	return l
}

// Derive returns a new Inactive logger for cfg that shares this logger's
// console, store, clock and recorder.
func (l *Logger) Derive(cfg Config) *Logger {
	return New(cfg,
		WithConsole(l.out),
		WithStore(l.store),
		WithClock(l.now),
		WithRecorder(l.recorder),
	)
}

// newConsole renders only the message part, one line per event
func newConsole(w io.Writer) zerolog.Logger {
	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		PartsOrder: []string{zerolog.MessageFieldName},
		FormatMessage: func(i interface{}) string {
			if i == nil {
				return ""
			}
			return fmt.Sprintf("%s", i)
		},
	}
	return zerolog.New(cw).Level(zerolog.DebugLevel)
}

// Init starts a new session. With file logging disabled it does nothing.
//
// The oldest session file is evicted first when the directory is over the
// cap, then a new session name is adopted and announced. A retention
// failure is returned and leaves the current session untouched.
func (l *Logger) Init() error {
	if !l.cfg.EnableLogFiles {
		return nil
	}

	if _, err := l.Prune(); err != nil {
		return err
	}

	name := SessionFileName(l.now().UnixMilli())

	l.mu.Lock()
	l.sessionFile = name
	l.mu.Unlock()

	l.recorder.SessionStarted()
	l.Info(fmt.Sprintf("New log file created for session '%s', this can be found in the '%s' directory.", name, l.cfg.Directory))

	return nil
}

// Prune runs one retention pass over the log directory, removing at most
// the single oldest session file.
func (l *Logger) Prune() (RetentionResult, error) {
	result, err := l.retention.Enforce()
	for _, name := range result.Skipped {
		l.Warn(fmt.Sprintf("Ignoring log file '%s' during retention, its name has no timestamp prefix", name))
	}
	if err != nil {
		return result, err
	}
	if result.Evicted != "" {
		l.recorder.FileEvicted()
		l.Debug(fmt.Sprintf("Removed oldest log file '%s' (%d files, limit %d)", result.Evicted, result.Count, l.cfg.MaximumLogFiles))
	}

	return result, nil
}

// Info logs to the console, and to the session file when file logging is on
func (l *Logger) Info(msg string) {
	l.emit(zerolog.InfoLevel, consolePrefix, msg)

	if l.cfg.EnableLogFiles {
		l.appendToLogFile(zerolog.InfoLevel, msg)
	}
}

// Debug does nothing unless debug logs are enabled. Debug lines reach the
// session file only with verbose log files.
func (l *Logger) Debug(msg string) {
	if !l.cfg.EnableDebugLogs {
		return
	}

	l.emit(zerolog.DebugLevel, consolePrefix, msg)

	if l.cfg.EnableVerboseLogFiles {
		l.appendToLogFile(zerolog.DebugLevel, msg)
	}
}

// Warn always logs to the console; verbose log files also persist it
func (l *Logger) Warn(msg string) {
	l.emit(zerolog.WarnLevel, consolePrefix, msg)

	if l.cfg.EnableVerboseLogFiles {
		l.appendToLogFile(zerolog.WarnLevel, msg)
	}
}

// Error logs to the console only. When a non-nil dump is given a second
// DUMP line repeats msg; the dump value itself is not rendered.
func (l *Logger) Error(msg string, dump ...any) {
	l.emit(zerolog.ErrorLevel, consolePrefix, msg)

	if len(dump) > 0 && dump[0] != nil {
		l.emit(zerolog.ErrorLevel, dumpPrefix, msg)
	}
}

// SessionFile returns the current session file name, empty while Inactive
func (l *Logger) SessionFile() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionFile
}

// Active reports whether a session file has been adopted
func (l *Logger) Active() bool {
	return l.SessionFile() != ""
}

// Config returns the configuration the logger was built with
func (l *Logger) Config() Config {
	return l.cfg
}

// Retention returns the retention manager bound to the log directory
func (l *Logger) Retention() *Retention {
	return l.retention
}

func (l *Logger) emit(level zerolog.Level, prefix, msg string) {
	l.console.WithLevel(level).Msg(prefix + " " + msg)
	l.recorder.LineEmitted(level.String(), SinkConsole)
}

// appendToLogFile is skipped while Inactive. Failures are reported on the
// console and never reach the caller.
func (l *Logger) appendToLogFile(level zerolog.Level, msg string) {
	name := l.SessionFile()
	if name == "" {
		return
	}

	line := fmt.Sprintf("%s - %s\n", l.now().UTC().Format(isoTimeFormat), validUTF8(msg))
	if l.redactor != nil {
		line = l.redactor.Redact(line)
	}

	if err := l.store.Append(l.cfg.Directory, name, line); err != nil {
		l.recorder.AppendFailed()
		l.console.Error().Msg(fmt.Sprintf("%s failed to append to '%s': %v", ioPrefix, name, err))
		return
	}
	l.recorder.LineEmitted(level.String(), SinkFile)
}

// validUTF8 replaces each byte that is not valid UTF-8 with U+FFFD, the
// same substitution the console encoder makes, so both sinks carry the
// same text.
func validUTF8(msg string) string {
	if utf8.ValidString(msg) {
		return msg
	}

	var b strings.Builder
	b.Grow(len(msg))
	for _, r := range msg {
		b.WriteRune(r)
	}
	return b.String()
}
