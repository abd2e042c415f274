package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Color codes for terminal output
const (
	ColorReset   = "\033[0m"
	ColorGreen   = "\033[32m"
	ColorYellow  = "\033[33m"
	ColorBlue    = "\033[34m"
	ColorMagenta = "\033[35m"
	ColorCyan    = "\033[36m"
	ColorBold    = "\033[1m"
	ColorRed     = "\033[31m"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var severity = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
}

var (
	mu          sync.Mutex
	globalLevel           = LogLevelInfo
	out         io.Writer = os.Stdout
)

// SetGlobalLevel sets the level picked up by every subsequent New().
// Unknown names leave the level unchanged.
func SetGlobalLevel(level string) {
	l := LogLevel(strings.ToLower(strings.TrimSpace(level)))
	if _, ok := severity[l]; !ok {
		return
	}
	mu.Lock()
	globalLevel = l
	mu.Unlock()
}

// SetOutput redirects all loggers. Returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := out
	out = w
	return prev
}

type Log struct {
	level LogLevel
	err   error
}

func New() *Log {
	mu.Lock()
	defer mu.Unlock()
	return &Log{
		level: globalLevel,
	}
}

func (l *Log) SetLevel(level LogLevel) {
	l.level = level
}

func (l *Log) WithError(err error) *Log {
	return &Log{level: l.level, err: err}
}

func (l *Log) enabled(level LogLevel) bool {
	return severity[level] >= severity[l.level]
}

func (l *Log) timestamp() string {
	return time.Now().Format("15:04:05")
}

func (l *Log) print(color, icon, msg string) {
	mu.Lock()
	defer mu.Unlock()
	if l.err != nil {
		fmt.Fprintf(out, "%s[%s]%s %s %s: %v%s\n", color, l.timestamp(), ColorReset, icon, msg, l.err, ColorReset)
		return
	}
	fmt.Fprintf(out, "%s[%s]%s %s %s%s\n", color, l.timestamp(), ColorReset, icon, msg, ColorReset)
}

func (l *Log) Debug(msg string) {
	if !l.enabled(LogLevelDebug) {
		return
	}
	l.print(ColorCyan, "🔎", msg)
}

func (l *Log) Info(msg string) {
	if !l.enabled(LogLevelInfo) {
		return
	}
	l.print(ColorBlue, "ℹ️ ", msg)
}

// View logs a message scoped to one browser view.
func (l *Log) View(viewID, msg string) {
	if !l.enabled(LogLevelInfo) {
		return
	}
	l.print(ColorMagenta, "🔊", fmt.Sprintf("%s[%s]%s %s", ColorBold, shortID(viewID), ColorReset, msg))
}

func (l *Log) Warn(msg string) {
	if !l.enabled(LogLevelWarn) {
		return
	}
	l.print(ColorYellow, "⚠️ ", msg)
}

func (l *Log) Error(msg string) {
	l.print(ColorRed, "❌", msg)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
