// Package logging provides leveled, component-scoped console logging for
// workkit services. Output is one line per entry:
//
//	LEVEL TIMESTAMP [component] message key=value ...
//
// Asynchronous failures in the background-work subsystem have no caller to
// return to, so these lines are the only place they surface.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	werrors "github.com/vinayprograms/workkit/errors"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel converts a case-insensitive level name. Unknown names yield
// LevelInfo and false.
func ParseLevel(s string) (Level, bool) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelPriority[l]; ok {
		return l, true
	}
	return LevelInfo, false
}

// sink is shared by a logger and every logger derived from it.
type sink struct {
	mu       sync.Mutex
	output   io.Writer
	minLevel Level
}

// Logger writes structured lines to its output.
type Logger struct {
	sink      *sink
	component string
	fields    map[string]interface{}
}

// New creates a Logger writing to stdout at INFO.
func New() *Logger {
	return &Logger{
		sink: &sink{output: os.Stdout, minLevel: LevelInfo},
	}
}

// Discard returns a Logger that drops everything. Handy as a default in tests
// and library constructors.
func Discard() *Logger {
	return &Logger{
		sink: &sink{output: io.Discard, minLevel: LevelError},
	}
}

// WithComponent returns a logger tagging every line with component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		sink:      l.sink,
		component: component,
		fields:    l.fields,
	}
}

// WithFields returns a logger that adds fields to every line.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{
		sink:      l.sink,
		component: l.component,
		fields:    merged,
	}
}

// SetLevel sets the minimum log level for this logger and its relatives.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	l.sink.minLevel = level
	l.sink.mu.Unlock()
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	l.sink.output = w
	l.sink.mu.Unlock()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields renders fields as sorted key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if levelPriority[level] < levelPriority[l.sink.minLevel] {
		return
	}

	all := l.fields
	if len(fields) > 0 && fields[0] != nil {
		all = make(map[string]interface{}, len(l.fields)+len(fields[0]))
		for k, v := range l.fields {
			all[k] = v
		}
		for k, v := range fields[0] {
			all[k] = v
		}
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	fieldStr := formatFields(all)

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.sink.output.Write([]byte(line))
}

// --- Work lifecycle ---

// WorkAdmitted logs that a work item passed the admission gate and started.
func (l *Logger) WorkAdmitted(itemID, key string, waited time.Duration) {
	l.Debug("work_admitted", map[string]interface{}{
		"item":   itemID,
		"key":    key,
		"waited": waited.String(),
	})
}

// WorkComplete logs a work item that returned without error.
func (l *Logger) WorkComplete(itemID, key string, duration time.Duration) {
	l.Debug("work_complete", map[string]interface{}{
		"item":     itemID,
		"key":      key,
		"duration": duration.String(),
	})
}

// WorkFailed logs a work item whose body returned an error or panicked.
func (l *Logger) WorkFailed(itemID, key string, duration time.Duration, err error) {
	l.Error("work_failed", map[string]interface{}{
		"item":     itemID,
		"key":      key,
		"duration": duration.String(),
		"code":     string(werrors.CodeOf(err)),
		"error":    err.Error(),
	})
}

// WorkRejected logs a work item dropped by the admission gate.
func (l *Logger) WorkRejected(itemID, key string, err error) {
	l.Error("work_rejected", map[string]interface{}{
		"item":  itemID,
		"key":   key,
		"code":  string(werrors.CodeOf(err)),
		"error": err.Error(),
	})
}

// DrainStart logs the beginning of a shutdown drain.
func (l *Logger) DrainStart(inflight int, timeout time.Duration) {
	l.Info("drain_start", map[string]interface{}{
		"inflight": inflight,
		"timeout":  timeout.String(),
	})
}

// DrainComplete logs a drain that finished inside its window.
func (l *Logger) DrainComplete(duration time.Duration) {
	l.Info("drain_complete", map[string]interface{}{
		"duration": duration.String(),
	})
}

// DrainTimeout logs a drain window that elapsed with tasks still running.
func (l *Logger) DrainTimeout(abandoned int, timeout time.Duration) {
	l.Warn("drain_timeout", map[string]interface{}{
		"abandoned": abandoned,
		"timeout":   timeout.String(),
	})
}
