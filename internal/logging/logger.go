package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract.
//
// Components depend on this interface rather than a concrete logger so tests
// can swap in a nop or recording implementation.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

type multiLogger struct {
	loggers []Logger
}

// Multi returns a logger fan-out that calls every non-nil logger in order.
func Multi(loggers ...Logger) Logger {
	flattened := make([]Logger, 0, len(loggers))
	for _, logger := range loggers {
		if IsNil(logger) {
			continue
		}
		if ml, ok := logger.(*multiLogger); ok {
			flattened = append(flattened, ml.loggers...)
			continue
		}
		flattened = append(flattened, logger)
	}
	switch len(flattened) {
	case 0:
		return Nop()
	case 1:
		return flattened[0]
	default:
		return &multiLogger{loggers: flattened}
	}
}

func (m *multiLogger) Debug(format string, args ...any) {
	for _, l := range m.loggers {
		l.Debug(format, args...)
	}
}

func (m *multiLogger) Info(format string, args ...any) {
	for _, l := range m.loggers {
		l.Info(format, args...)
	}
}

func (m *multiLogger) Warn(format string, args ...any) {
	for _, l := range m.loggers {
		l.Warn(format, args...)
	}
}

func (m *multiLogger) Error(format string, args ...any) {
	for _, l := range m.loggers {
		l.Error(format, args...)
	}
}

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
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
		return "UNKNOWN"
	}
}

var (
	fileLoggerInstance *fileLogger
	fileLoggerOnce     sync.Once
)

// fileLogger appends timestamped lines to aide-debug.log in the user's home
// directory and mirrors them to stdout.
type fileLogger struct {
	mu        sync.Mutex
	file      *os.File
	sink      *log.Logger
	level     Level
	component string
}

func sharedFileLogger() *fileLogger {
	fileLoggerOnce.Do(func() {
		fileLoggerInstance = &fileLogger{level: LevelDebug}
		home, err := os.UserHomeDir()
		if err != nil {
			log.Printf("logging: failed to resolve home directory: %v", err)
			return
		}
		path := filepath.Join(home, "aide-debug.log")
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Printf("logging: failed to open log file: %v", err)
			return
		}
		fileLoggerInstance.file = file
		fileLoggerInstance.sink = log.New(file, "", 0)
	})
	return fileLoggerInstance
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	shared := sharedFileLogger()
	return &fileLogger{
		file:      shared.file,
		sink:      shared.sink,
		level:     shared.level,
		component: component,
	}
}

// SetLevel sets the minimum level emitted by this logger.
func (l *fileLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *fileLogger) log(level Level, format string, args ...any) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	component := l.component
	if component == "" {
		component = "AIDE"
	}

	// Format: 2026-01-15 12:34:56 [INFO] [Poller] poller.go:42 - Message
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	logLine := sanitizeLogLine(fmt.Sprintf("%s [%s] [%s] %s:%d - %s\n",
		timestamp, level, component, file, line, message))

	if l.sink != nil {
		l.sink.Print(logLine)
	}
	fmt.Print(logLine)
}

func (l *fileLogger) Debug(format string, args ...any) {
	l.log(LevelDebug, format, args...)
}

func (l *fileLogger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *fileLogger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *fileLogger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

var (
	bearerTokenPattern = regexp.MustCompile(`(?i)(authorization:\s*bearer\s+)\S+`)
	apiKeyPattern      = regexp.MustCompile(`(?i)((?:api[_-]?key|token|secret)["']?\s*[:=]\s*["']?)[A-Za-z0-9._\-]{8,}`)
)

// sanitizeLogLine masks credentials so handler configuration never leaks into
// the debug log.
func sanitizeLogLine(line string) string {
	line = bearerTokenPattern.ReplaceAllString(line, "${1}***")
	line = apiKeyPattern.ReplaceAllString(line, "${1}***")
	return line
}
