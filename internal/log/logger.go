// Package log provides a global logger with configurable logging level. The callback paths of
// the peripheral log through this package so that diagnostics end up on a single stream.

package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs anomalies that are not expected to occur during normal use.
	LevelWarning              // Logs anomalies that are expected to occur occasionally, such as late completions.
	LevelInfo                 // Logs major events (stack bring-up, registrations).
	LevelDebug                // Logs every stack callback and command.
)

var globalLogLevel Level = LevelWarning
var output io.Writer = os.Stderr
var logMutex sync.Mutex

var labels = map[Level]string{
	LevelDebug:   "[debug]",
	LevelInfo:    "[info ]",
	LevelWarning: "[warn ]",
	LevelError:   "[error]",
}

var levelNames = map[string]Level{
	"none":    LevelNone,
	"error":   LevelError,
	"warn":    LevelWarning,
	"warning": LevelWarning,
	"info":    LevelInfo,
	"debug":   LevelDebug,
}

func SetLevel(level Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	globalLogLevel = level
}

// ParseLevel converts a level name such as "debug" or "warn" into a Level.
func ParseLevel(name string) (Level, error) {
	level, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return LevelNone, fmt.Errorf("unknown log level '%s'", name)
	}
	return level, nil
}

// SetOutput redirects log messages to w. Passing nil restores stderr.
func SetOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	if w == nil {
		w = os.Stderr
	}
	output = w
}

func logLevel() Level {
	logMutex.Lock()
	defer logMutex.Unlock()
	return globalLogLevel
}

func log(level Level, format string, a ...interface{}) {
	if level <= logLevel() {
		msg := fmt.Sprintf("%s %s ", time.Now().Format(time.RFC3339), labels[level])
		msg += fmt.Sprintf(format, a...)
		logMutex.Lock()
		fmt.Fprintln(output, msg)
		logMutex.Unlock()
	}
}

func Debug(format string, a ...interface{}) {
	log(LevelDebug, format, a...)
}
func Info(format string, a ...interface{}) {
	log(LevelInfo, format, a...)
}
func Warning(format string, a ...interface{}) {
	log(LevelWarning, format, a...)
}
func Error(format string, a ...interface{}) {
	log(LevelError, format, a...)
}
