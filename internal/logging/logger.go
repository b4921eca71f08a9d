// Package logging provides the runtime's printf-style component logger.
// Output goes to $HOME/.openclaw/openclaw.log; the file handle is shared
// by every component logger through a package singleton.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Logger is the minimal logging contract subsystems depend on.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger { return nopLogger{} }

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	if fl, ok := logger.(*FileLogger); ok && fl == nil {
		return Nop()
	}
	return logger
}

// FileLogger writes levelled, component-tagged lines to a shared file.
type FileLogger struct {
	mu        sync.Mutex
	logger    *log.Logger
	file      *os.File
	level     LogLevel
	component string
}

var (
	rootLogger *FileLogger
	rootOnce   sync.Once
)

func root() *FileLogger {
	rootOnce.Do(func() {
		rootLogger = newFileLogger()
	})
	return rootLogger
}

func newFileLogger() *FileLogger {
	l := &FileLogger{level: INFO}
	home, err := os.UserHomeDir()
	if err != nil {
		return l
	}
	dir := filepath.Join(home, ".openclaw")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return l
	}
	file, err := os.OpenFile(filepath.Join(dir, "openclaw.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return l
	}
	l.file = file
	l.logger = log.New(file, "", 0)
	return l
}

// NewComponentLogger returns the shared file logger scoped to a component.
func NewComponentLogger(component string) Logger {
	r := root()
	return &FileLogger{
		logger:    r.logger,
		file:      r.file,
		level:     r.level,
		component: component,
	}
}

// SetLevel adjusts the minimum level of the shared logger. New component
// loggers created after the call inherit the level.
func SetLevel(level LogLevel) {
	r := root()
	r.mu.Lock()
	r.level = level
	r.mu.Unlock()
}

func (l *FileLogger) write(level LogLevel, name, format string, args ...any) {
	if l == nil || l.logger == nil || level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	_, file, line, ok := runtime.Caller(2)
	caller := ""
	if ok {
		caller = fmt.Sprintf(" %s:%d", filepath.Base(file), line)
	}
	component := l.component
	if component == "" {
		component = "main"
	}
	l.mu.Lock()
	l.logger.Printf("%s [%s] [%s]%s %s",
		time.Now().Format("2006-01-02 15:04:05.000"), name, component, caller, msg)
	l.mu.Unlock()
}

func (l *FileLogger) Debug(format string, args ...any) { l.write(DEBUG, "DEBUG", format, args...) }
func (l *FileLogger) Info(format string, args ...any)  { l.write(INFO, "INFO", format, args...) }
func (l *FileLogger) Warn(format string, args ...any)  { l.write(WARN, "WARN", format, args...) }
func (l *FileLogger) Error(format string, args ...any) { l.write(ERROR, "ERROR", format, args...) }
