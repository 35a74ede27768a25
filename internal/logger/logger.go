// Package logger provides leveled logging to standard error.
// Standard output stays reserved for command results.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// ParseLevel maps a configuration string to a Level.
func ParseLevel(level string) (Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, true
	case "info":
		return InfoLevel, true
	case "warn":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	default:
		return InfoLevel, false
	}
}

// Logger provides leveled logging in text or JSON lines.
type Logger struct {
	level  Level
	json   bool
	logger *log.Logger

	mu sync.Mutex
	w  io.Writer
}

var defaultLogger *Logger

// Init initializes the default logger writing to standard error.
func Init(level string, format string) {
	InitWithWriter(os.Stderr, level, format)
}

// InitWithWriter initializes the default logger writing to w.
func InitWithWriter(w io.Writer, level string, format string) {
	l, _ := ParseLevel(level)

	jsonFormat := strings.ToLower(format) == "json"
	flags := log.LstdFlags | log.Lmicroseconds
	if !jsonFormat {
		flags |= log.Lshortfile
	}

	defaultLogger = &Logger{
		level:  l,
		json:   jsonFormat,
		logger: log.New(w, "", flags),
		w:      w,
	}
}

type jsonLine struct {
	Time  string `json:"time"`
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

func (l *Logger) emit(level Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !l.json {
		_ = l.logger.Output(3, "["+level.String()+"] "+msg)
		return
	}

	line, err := json.Marshal(jsonLine{
		Time:  time.Now().UTC().Format(time.RFC3339Nano),
		Level: strings.ToLower(level.String()),
		Msg:   msg,
	})
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(append(line, '\n'))
}

func logAt(level Level, format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= level {
		defaultLogger.emit(level, format, args...)
	}
}

func Debug(format string, args ...interface{}) {
	logAt(DebugLevel, format, args...)
}

func Info(format string, args ...interface{}) {
	logAt(InfoLevel, format, args...)
}

func Warn(format string, args ...interface{}) {
	logAt(WarnLevel, format, args...)
}

func Error(format string, args ...interface{}) {
	logAt(ErrorLevel, format, args...)
}

// Fatal logs regardless of level and exits with status 1.
func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.emit(ErrorLevel+1, format, args...)
	} else {
		fmt.Fprintln(os.Stderr, "[FATAL] "+fmt.Sprintf(format, args...))
	}
	os.Exit(1)
}
