package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/TheMichaelB/formsync/internal/config"
)

// LogLevel represents logging severity.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger provides structured logging.
type Logger struct {
	mu        *sync.Mutex
	level     LogLevel
	format    string
	output    io.Writer
	closer    io.Closer
	colored   bool
	timestamp bool
	fields    map[string]interface{}
	hostname  string
}

var levelColors = map[LogLevel]*color.Color{
	DebugLevel: color.New(color.FgCyan),
	InfoLevel:  color.New(color.FgGreen),
	WarnLevel:  color.New(color.FgYellow),
	ErrorLevel: color.New(color.FgRed, color.Bold),
}

// NewLogger creates a logger from config. File output is rotated.
func NewLogger(cfg *config.LogConfig) (*Logger, error) {
	level := parseLevel(cfg.Level)

	var (
		output  io.Writer = os.Stdout
		closer  io.Closer
		colored = cfg.Color && !color.NoColor
	)
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
		// Probe the path now so a bad location fails at startup.
		if _, err := rotator.Write(nil); err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		output = rotator
		closer = rotator
		colored = false
	}

	hostname, _ := os.Hostname()

	return &Logger{
		mu:        &sync.Mutex{},
		level:     level,
		format:    cfg.Format,
		output:    output,
		closer:    closer,
		colored:   colored,
		timestamp: cfg.Timestamp,
		fields:    make(map[string]interface{}),
		hostname:  hostname,
	}, nil
}

// NewTestLogger creates a logger for testing.
func NewTestLogger(level LogLevel, format string, output io.Writer) *Logger {
	return &Logger{
		mu:        &sync.Mutex{},
		level:     level,
		format:    format,
		output:    output,
		timestamp: true,
		fields:    make(map[string]interface{}),
		hostname:  "test-host",
	}
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// WithField returns a logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	child := *l
	child.fields = newFields
	return &child
}

// WithError adds an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string) {
	l.log(DebugLevel, msg)
}

// Info logs at info level.
func (l *Logger) Info(msg string) {
	l.log(InfoLevel, msg)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string) {
	l.log(WarnLevel, msg)
}

// Error logs at error level.
func (l *Logger) Error(msg string) {
	l.log(ErrorLevel, msg)
}

func (l *Logger) log(level LogLevel, msg string) {
	if level < l.level {
		return
	}

	entry := l.buildEntry(level, msg)

	// Children share the parent's mutex, so writes never interleave.
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		l.writeJSON(entry)
	} else {
		l.writeText(level, entry)
	}
}

func (l *Logger) buildEntry(level LogLevel, msg string) map[string]interface{} {
	_, file, line, _ := runtime.Caller(3)
	if idx := strings.LastIndex(file, "/"); idx >= 0 {
		file = file[idx+1:]
	}

	entry := map[string]interface{}{
		"level":    levelString(level),
		"msg":      msg,
		"hostname": l.hostname,
		"caller":   fmt.Sprintf("%s:%d", file, line),
	}
	if l.timestamp {
		entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	for k, v := range l.fields {
		entry[k] = v
	}

	return entry
}

func (l *Logger) writeJSON(entry map[string]interface{}) {
	data, err := json.Marshal(entry)
	if err != nil {
		// Fall back to stringified values for anything json cannot encode.
		safe := make(map[string]string, len(entry))
		for k, v := range entry {
			safe[k] = fmt.Sprint(v)
		}
		data, _ = json.Marshal(safe)
	}
	data = append(data, '\n')
	_, _ = l.output.Write(data)
}

// writeText outputs: TIME [LEVEL] Message key=value key=value
func (l *Logger) writeText(level LogLevel, entry map[string]interface{}) {
	label := "[" + strings.ToUpper(levelString(level)) + "]"
	if l.colored {
		label = levelColors[level].Sprint(label)
	}

	var sb strings.Builder
	if ts, ok := entry["time"]; ok {
		sb.WriteString(fmt.Sprint(ts))
		sb.WriteByte(' ')
	}
	sb.WriteString(label)
	sb.WriteByte(' ')
	sb.WriteString(fmt.Sprint(entry["msg"]))

	keys := make([]string, 0, len(entry))
	for k := range entry {
		switch k {
		case "time", "level", "msg", "hostname", "caller":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, entry[k])
	}
	sb.WriteByte('\n')

	_, _ = io.WriteString(l.output, sb.String())
}

func parseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func levelString(l LogLevel) string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}
