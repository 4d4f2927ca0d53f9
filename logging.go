// logging.go - structured logging for the scheduler and reactor.
//
// Package-level configuration for structured logging, mirroring the
// a low-overhead built-in
// implementation for basic usage, plus a thin seam (NewLogifaceLogger) for
// routing through github.com/joeycumines/logiface when an application
// wants leveled, structured output via stumpy/zerolog/slog/etc.
//
// Usage:
//
//	loomrt.SetStructuredLogger(loomrt.NewDefaultLoggerLevel(loomrt.LevelInfo))
//
// Design Decision: package-level global variable is appropriate here
// because logging is an infrastructure cross-cutting concern, every
// worker and reactor shares logging semantics, and it avoids per-Scheduler
// logging configuration surface area bloat.
package loomrt

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

var (
	// globalLogger is the package-level structured logger, read by logger()
	// and the S* convenience functions.
	globalLogger struct {
		sync.RWMutex
		logger Logger
	}
)

// SetStructuredLogger sets the global structured logger. newScheduler calls
// this with whatever WithLogger configured (or the default), so logger()
// always has something to return once the scheduler has been constructed.
func SetStructuredLogger(l Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = l
}

// getGlobalLogger safely retrieves the global logger, falling back to a
// NoOpLogger before any Scheduler has set one.
func getGlobalLogger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.logger != nil {
		return globalLogger.logger
	}
	return NewNoOpLogger()
}

// logger is what worker.run and the rest of the scheduler package call;
// it is just a short alias for getGlobalLogger kept separate so call sites
// read "logger()" rather than the more implementation-flavored name.
func logger() Logger { return getGlobalLogger() }

// LogLevel represents the severity of a log message.
type LogLevel int32

const (
	// LevelDebug for detailed diagnostic information (steal attempts,
	// timer scheduling, individual reactor registrations).
	LevelDebug LogLevel = iota
	// LevelInfo for general informational messages (worker start/stop).
	LevelInfo
	// LevelWarn for warning conditions (a single reactor poll failure that
	// stayed within the failure budget).
	LevelWarn
	// LevelError for error conditions (reactor init failure, failure
	// budget exceeded, an uncaught panic inside a coroutine).
	LevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// LogEntry is a structured log entry describing a scheduler, reactor, or
// timer event.
type LogEntry struct {
	Level       LogLevel
	Category    string // "scheduler", "reactor", "timer", "coroutine", "poison"
	WorkerID    int64
	CoroutineID int64
	TimerID     int64
	Context     map[string]interface{}
	Message     string
	Err         error
	Timestamp   time.Time
}

// Logger is the structured logging interface. The Debugf/Infof/Warnf/Errorf
// convenience methods are what the scheduler's hot paths call directly;
// Log/IsEnabled are for callers building a LogEntry explicitly (via
// LogEntryBuilder) when they have worker/coroutine/timer ids to attach.
type Logger interface {
	Log(entry LogEntry)
	IsEnabled(level LogLevel) bool
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// logf is the shared implementation behind every concrete Logger's
// Debugf/Infof/Warnf/Errorf, so each type need only forward to it.
func logf(l Logger, level LogLevel, format string, args ...interface{}) {
	if !l.IsEnabled(level) {
		return
	}
	l.Log(LogEntry{
		Level:     level,
		Category:  "scheduler",
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	})
}

// DefaultLogger implements Logger by writing to an *os.File, pretty-printed
// for a terminal and as single-line JSON otherwise.
type DefaultLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	Out   *os.File // exported for tests that want to capture output
}

// NewDefaultLogger creates a logger writing to os.Stdout at LevelInfo.
func NewDefaultLogger() *DefaultLogger {
	l := &DefaultLogger{Out: os.Stdout}
	l.level.Store(int32(LevelInfo))
	return l
}

// NewDefaultLoggerLevel creates a logger writing to os.Stdout at the given
// minimum level.
func NewDefaultLoggerLevel(level LogLevel) *DefaultLogger {
	l := &DefaultLogger{Out: os.Stdout}
	l.level.Store(int32(level))
	return l
}

// NewFileLogger creates a logger writing to the named file.
func NewFileLogger(level LogLevel, filename string) (*DefaultLogger, error) {
	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l := &DefaultLogger{Out: file}
	l.level.Store(int32(level))
	return l, nil
}

// SetLevel dynamically changes the minimum log level.
func (l *DefaultLogger) SetLevel(level LogLevel) { l.level.Store(int32(level)) }

func (l *DefaultLogger) getLevel() int32 { return l.level.Load() }

// IsEnabled checks if the specified level would be logged.
func (l *DefaultLogger) IsEnabled(level LogLevel) bool {
	return level >= LogLevel(l.getLevel())
}

// Log writes a structured log entry.
func (l *DefaultLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if isTerminal(l.Out) {
		l.logPretty(entry)
	} else {
		l.logJSON(entry)
	}
}

func (l *DefaultLogger) Debugf(format string, args ...interface{}) { logf(l, LevelDebug, format, args...) }
func (l *DefaultLogger) Infof(format string, args ...interface{})  { logf(l, LevelInfo, format, args...) }
func (l *DefaultLogger) Warnf(format string, args ...interface{})  { logf(l, LevelWarn, format, args...) }
func (l *DefaultLogger) Errorf(format string, args ...interface{}) { logf(l, LevelError, format, args...) }

func (l *DefaultLogger) logPretty(entry LogEntry) {
	colorReset := "\033[0m"
	colorError := "\033[31m"
	colorWarn := "\033[33m"
	colorInfo := "\033[36m"
	colorDebug := "\033[90m"
	colorDim := "\033[2m"

	var color string
	switch entry.Level {
	case LevelDebug:
		color = colorDebug
	case LevelInfo:
		color = colorInfo
	case LevelWarn:
		color = colorWarn
	case LevelError:
		color = colorError
	}

	fmt.Fprintf(l.Out, "%s%s%s %s [%-10s] %s%s",
		color, entry.Level.String(), colorReset,
		entry.Timestamp.Format("15:04:05.000"),
		entry.Category,
		entry.Message,
		colorReset,
	)

	if len(entry.Context) > 0 || entry.WorkerID != 0 || entry.CoroutineID != 0 || entry.TimerID != 0 {
		fmt.Fprint(l.Out, colorDim)
		if entry.WorkerID != 0 {
			fmt.Fprintf(l.Out, " worker=%d", entry.WorkerID)
		}
		if entry.CoroutineID != 0 {
			fmt.Fprintf(l.Out, " coroutine=%d", entry.CoroutineID)
		}
		if entry.TimerID != 0 {
			fmt.Fprintf(l.Out, " timer=%d", entry.TimerID)
		}
		for k, v := range entry.Context {
			fmt.Fprintf(l.Out, " %s=%v", k, v)
		}
		fmt.Fprint(l.Out, colorReset)
	}

	if entry.Err != nil {
		fmt.Fprintf(l.Out, " %s%v%s\n", colorError, entry.Err, colorReset)
	} else {
		fmt.Fprintln(l.Out)
	}
}

func (l *DefaultLogger) logJSON(entry LogEntry) {
	fmt.Fprintf(l.Out, "{\"timestamp\":\"%s\",\"level\":\"%s\",\"category\":\"%s\"",
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.Level,
		entry.Category,
	)

	jsonFields := make([]byte, 0, 256)
	if entry.WorkerID != 0 {
		jsonFields = append(jsonFields, fmt.Sprintf(",\"worker\":%d", entry.WorkerID)...)
	}
	if entry.CoroutineID != 0 {
		jsonFields = append(jsonFields, fmt.Sprintf(",\"coroutine\":%d", entry.CoroutineID)...)
	}
	if entry.TimerID != 0 {
		jsonFields = append(jsonFields, fmt.Sprintf(",\"timer\":%d", entry.TimerID)...)
	}
	for k, v := range entry.Context {
		jsonFields = append(jsonFields, fmt.Sprintf(",\"%s\":\"%s\"", escapeJSON(k), escapeJSON(fmt.Sprint(v)))...)
	}

	message := escapeJSON(entry.Message)
	fmt.Fprintf(l.Out, ",\"message\":\"%s\"%s", message, jsonFields)

	if entry.Err != nil {
		fmt.Fprintf(l.Out, ",\"error\":\"%s\"}\n", escapeJSON(entry.Err.Error()))
	} else {
		fmt.Fprintln(l.Out, "}")
	}
}

// escapeJSON escapes special JSON characters.
func escapeJSON(s string) string {
	b := make([]byte, 0, len(s)*6)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\', '"', '/':
			b = append(b, '\\', c)
		case '\b':
			b = append(b, '\\', 'b')
		case '\f':
			b = append(b, '\\', 'f')
		case '\n':
			b = append(b, '\\', 'n')
		case '\r':
			b = append(b, '\\', 'r')
		case '\t':
			b = append(b, '\\', 't')
		default:
			if c < ' ' {
				b = append(b, '\\', 'u', '0', '0', "0123456789abcdef"[c>>4], "0123456789abcdef"[c&0xF])
			} else {
				b = append(b, c)
			}
		}
	}
	return *(*string)(unsafe.Pointer(&b))
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// LogEntryBuilder provides a fluent API for building log entries that carry
// worker/coroutine/timer ids, for callers that go through Log directly
// rather than the Debugf/Infof/Warnf/Errorf shorthand.
type LogEntryBuilder struct {
	entry LogEntry
}

// NewLogEntry creates a new log entry builder.
func NewLogEntry(level LogLevel, category string, message string) LogEntryBuilder {
	return LogEntryBuilder{
		entry: LogEntry{
			Level:     level,
			Category:  category,
			Message:   message,
			Context:   make(map[string]interface{}),
			Timestamp: time.Now(),
		},
	}
}

func (b LogEntryBuilder) WorkerID(id int64) LogEntryBuilder {
	b.entry.WorkerID = id
	return b
}

func (b LogEntryBuilder) CoroutineID(id int64) LogEntryBuilder {
	b.entry.CoroutineID = id
	return b
}

func (b LogEntryBuilder) TimerID(id int64) LogEntryBuilder {
	b.entry.TimerID = id
	return b
}

func (b LogEntryBuilder) Field(key string, value interface{}) LogEntryBuilder {
	b.entry.Context[key] = value
	return b
}

func (b LogEntryBuilder) Fields(fields map[string]interface{}) LogEntryBuilder {
	for k, v := range fields {
		b.entry.Context[k] = v
	}
	return b
}

func (b LogEntryBuilder) Err(err error) LogEntryBuilder {
	b.entry.Err = err
	return b
}

func (b LogEntryBuilder) Build() LogEntry {
	return b.entry
}

// ContextFields extracts log fields worth attaching from a context.Context,
// for callers that thread one through (net and syncx operations mostly).
func ContextFields(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{})
	if id := getCorrelationID(ctx); id != "" {
		fields["correlationID"] = id
	}
	if id := getTraceID(ctx); id != "" {
		fields["traceID"] = id
	}
	return fields
}

type contextKey string

const (
	correlationIDKey contextKey = "correlationID"
	traceIDKey       contextKey = "traceID"
)

func getCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

func getTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID attaches a correlation id to ctx for ContextFields.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// WithTraceID attaches a trace id to ctx for ContextFields.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// NoOpLogger discards everything; it is the default before any Scheduler
// has been constructed (or before SetStructuredLogger has ever been
// called).
type NoOpLogger struct{}

func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (l *NoOpLogger) Log(entry LogEntry)             {}
func (l *NoOpLogger) IsEnabled(level LogLevel) bool  { return false }
func (l *NoOpLogger) Debugf(format string, a ...interface{}) {}
func (l *NoOpLogger) Infof(format string, a ...interface{})  {}
func (l *NoOpLogger) Warnf(format string, a ...interface{})  {}
func (l *NoOpLogger) Errorf(format string, a ...interface{}) {}

// WriterLogger writes plain-text lines (no ANSI color, no JSON) to an
// arbitrary io.Writer; useful for tests asserting on log output via a
// bytes.Buffer.
type WriterLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	out   io.Writer
}

func NewWriterLogger(level LogLevel, out io.Writer) *WriterLogger {
	l := &WriterLogger{out: out}
	l.level.Store(int32(level))
	return l
}

func (l *WriterLogger) SetLevel(level LogLevel) { l.level.Store(int32(level)) }

func (l *WriterLogger) IsEnabled(level LogLevel) bool {
	return level >= LogLevel(l.level.Load())
}

func (l *WriterLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logText(entry)
}

func (l *WriterLogger) Debugf(format string, args ...interface{}) { logf(l, LevelDebug, format, args...) }
func (l *WriterLogger) Infof(format string, args ...interface{})  { logf(l, LevelInfo, format, args...) }
func (l *WriterLogger) Warnf(format string, args ...interface{})  { logf(l, LevelWarn, format, args...) }
func (l *WriterLogger) Errorf(format string, args ...interface{}) { logf(l, LevelError, format, args...) }

func (l *WriterLogger) logText(entry LogEntry) {
	fmt.Fprintf(l.out, "%s %s [%s] %s",
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.Level,
		entry.Category,
		entry.Message,
	)
	if entry.WorkerID != 0 {
		fmt.Fprintf(l.out, " worker=%d", entry.WorkerID)
	}
	if entry.CoroutineID != 0 {
		fmt.Fprintf(l.out, " coroutine=%d", entry.CoroutineID)
	}
	if entry.TimerID != 0 {
		fmt.Fprintf(l.out, " timer=%d", entry.TimerID)
	}
	for k, v := range entry.Context {
		fmt.Fprintf(l.out, " %s=%v", k, v)
	}
	if entry.Err != nil {
		fmt.Fprintf(l.out, " err=%v", entry.Err)
	}
	fmt.Fprintln(l.out)
}

// logifaceLogger adapts a logiface.Logger[*stumpy.Event] into this
// package's Logger interface, letting an application route scheduler
// events through whatever backend logiface is configured with (stumpy by
// default here, since that's what the rest of this module depends on;
// zerolog/logrus/slog all work equally well through logiface's own
// adapters in the wider ecosystem).
type logifaceLogger struct {
	level atomic.Int32
	inner *logiface.Logger[*stumpy.Event]
}

// NewLogifaceLogger wraps a *logiface.Logger[*stumpy.Event] (typically
// built via stumpy.L.New(stumpy.WithStumpy(...))) as a Logger, so it can
// be passed to WithLogger/SetStructuredLogger.
func NewLogifaceLogger(level LogLevel, inner *logiface.Logger[*stumpy.Event]) Logger {
	l := &logifaceLogger{inner: inner}
	l.level.Store(int32(level))
	return l
}

func (l *logifaceLogger) IsEnabled(level LogLevel) bool {
	return level >= LogLevel(l.level.Load())
}

func (l *logifaceLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	b := l.builder(entry.Level)
	if b == nil {
		return
	}
	if entry.WorkerID != 0 {
		b = b.Int64("worker", entry.WorkerID)
	}
	if entry.CoroutineID != 0 {
		b = b.Int64("coroutine", entry.CoroutineID)
	}
	if entry.TimerID != 0 {
		b = b.Int64("timer", entry.TimerID)
	}
	for k, v := range entry.Context {
		b = b.Any(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

func (l *logifaceLogger) builder(level LogLevel) *logiface.Builder[*stumpy.Event] {
	switch level {
	case LevelDebug:
		return l.inner.Debug()
	case LevelWarn:
		return l.inner.Warning()
	case LevelError:
		return l.inner.Err()
	default:
		return l.inner.Info()
	}
}

func (l *logifaceLogger) Debugf(format string, args ...interface{}) { logf(l, LevelDebug, format, args...) }
func (l *logifaceLogger) Infof(format string, args ...interface{})  { logf(l, LevelInfo, format, args...) }
func (l *logifaceLogger) Warnf(format string, args ...interface{})  { logf(l, LevelWarn, format, args...) }
func (l *logifaceLogger) Errorf(format string, args ...interface{}) { logf(l, LevelError, format, args...) }

// Package-level shorthand, operating against the global logger.

func SDebug(category, message string, fields ...map[string]interface{}) {
	sLog(LevelDebug, category, message, nil, fields...)
}

func SInfo(category, message string, fields ...map[string]interface{}) {
	sLog(LevelInfo, category, message, nil, fields...)
}

func SWarn(category, message string, fields ...map[string]interface{}) {
	sLog(LevelWarn, category, message, nil, fields...)
}

func SError(category, message string, err error, fields ...map[string]interface{}) {
	sLog(LevelError, category, message, err, fields...)
}

func SErrorf(category, format string, args ...interface{}) {
	sLog(LevelError, category, fmt.Sprintf(format, args...), nil)
}

func sLog(level LogLevel, category, message string, err error, fields ...map[string]interface{}) {
	l := getGlobalLogger()
	if !l.IsEnabled(level) {
		return
	}
	entry := LogEntry{
		Level:     level,
		Category:  category,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
	if len(fields) > 0 {
		entry.Context = fields[0]
	}
	l.Log(entry)
}

// Domain-specific convenience wrappers, matching this package's
// LogTimerScheduled/LogTimerFired/LogCoroutinePanicked family, generalized from
// per-loop timer/promise vocabulary to per-scheduler timer/coroutine
// vocabulary.

func LogTimerScheduled(timerID int64, d time.Duration, description string) {
	logWithTimer(LevelDebug, "timer", timerID, fmt.Sprintf("scheduled %s: %s", d, description))
}

func LogTimerFired(timerID int64, elapsed time.Duration) {
	logWithTimer(LevelDebug, "timer", timerID, fmt.Sprintf("fired after %s", elapsed))
}

func LogTimerCancelled(timerID int64, elapsed time.Duration) {
	logWithTimer(LevelDebug, "timer", timerID, fmt.Sprintf("cancelled after %s", elapsed))
}

func logWithTimer(level LogLevel, category string, timerID int64, message string) {
	l := getGlobalLogger()
	if !l.IsEnabled(level) {
		return
	}
	l.Log(LogEntry{Level: level, Category: category, TimerID: timerID, Message: message, Timestamp: time.Now()})
}

// LogCoroutinePanicked records an uncaught panic recovered by a
// coroutine's trampoline.
func LogCoroutinePanicked(coroutineID int64, panicVal interface{}) {
	l := getGlobalLogger()
	if !l.IsEnabled(LevelError) {
		return
	}
	l.Log(LogEntry{
		Level:       LevelError,
		Category:    "coroutine",
		CoroutineID: coroutineID,
		Message:     fmt.Sprintf("coroutine panicked: %v", panicVal),
		Timestamp:   time.Now(),
	})
}

// LogReactorPollError records a single failed PollIO call; critical
// indicates the worker's failure budget was exhausted and it is about to
// stop, per the reactor failure budget policy.
func LogReactorPollError(workerID int64, err error, critical bool) {
	l := getGlobalLogger()
	level := LevelWarn
	if critical {
		level = LevelError
	}
	if !l.IsEnabled(level) {
		return
	}
	l.Log(LogEntry{
		Level:     level,
		Category:  "reactor",
		WorkerID:  workerID,
		Message:   "reactor poll failed",
		Err:       err,
		Timestamp: time.Now(),
	})
}
