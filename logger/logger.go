package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/journal"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO ",
	WARN:  "WARN ",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var journalPriorities = map[Level]journal.Priority{
	DEBUG: journal.PriDebug,
	INFO:  journal.PriInfo,
	WARN:  journal.PriWarning,
	ERROR: journal.PriErr,
	FATAL: journal.PriCrit,
}

type Logger struct {
	mu            sync.RWMutex
	level         Level
	packageLevels map[string]Level
	journal       bool
	identifier    string
	logger        *log.Logger
}

// Global logger instance
var defaultLogger *Logger

func init() {
	defaultLogger = New(INFO)
}

// New creates a new logger with the specified level
func New(level Level) *Logger {
	return &Logger{
		level:         level,
		packageLevels: map[string]Level{},
		logger:        log.New(os.Stderr, "", log.LstdFlags),
	}
}

// ParseLevel converts a level name to a Level, WARN when unknown.
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return WARN
	}
}

// SetLevel sets the global logger level
func SetLevel(level Level) {
	defaultLogger.mu.Lock()
	defaultLogger.level = level
	defaultLogger.mu.Unlock()
}

// SetPackageLevels sets per-component level overrides.
// Keys match the [component] prefix used in log messages (e.g. "ag", "soundio").
func SetPackageLevels(levels map[string]Level) {
	defaultLogger.mu.Lock()
	defaultLogger.packageLevels = levels
	defaultLogger.mu.Unlock()
}

// SetOutput redirects the stderr sink.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defaultLogger.logger.SetOutput(w)
	defaultLogger.mu.Unlock()
}

// UseJournal routes messages to the systemd journal when it is reachable.
// It returns false and keeps the stderr sink otherwise.
func UseJournal(identifier string) bool {
	if !journal.Enabled() {
		return false
	}
	defaultLogger.mu.Lock()
	defaultLogger.journal = true
	defaultLogger.identifier = identifier
	defaultLogger.mu.Unlock()
	return true
}

// extractComponent returns the component name from a "[component] ..." message, or "".
func extractComponent(msg string) string {
	if len(msg) < 3 || msg[0] != '[' {
		return ""
	}
	end := strings.IndexByte(msg[1:], ']')
	if end < 0 {
		return ""
	}
	return msg[1 : end+1]
}

// shouldLog checks if a message at this level should be logged,
// applying a component override when the message carries a [component] prefix.
func (l *Logger) shouldLog(level Level, msg string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if pkg := extractComponent(msg); pkg != "" {
		if pkgLevel, ok := l.packageLevels[pkg]; ok {
			return level >= pkgLevel
		}
	}
	return level >= l.level
}

// format creates a formatted message with level prefix
func (l *Logger) format(level Level, msg string) string {
	return fmt.Sprintf("[%s] %s", levelNames[level], msg)
}

func (l *Logger) emit(level Level, msg string, args []interface{}) {
	if level < FATAL && !l.shouldLog(level, msg) {
		return
	}
	formatted := fmt.Sprintf(msg, args...)

	l.mu.RLock()
	useJournal, identifier := l.journal, l.identifier
	l.mu.RUnlock()

	if useJournal {
		vars := map[string]string{"SYSLOG_IDENTIFIER": identifier}
		if c := extractComponent(formatted); c != "" {
			vars["HFPD_COMPONENT"] = strings.ToUpper(c)
		}
		if err := journal.Send(formatted, journalPriorities[level], vars); err == nil {
			return
		}
	}
	l.logger.Println(l.format(level, formatted))
}

// Debug logs a debug message
func Debug(msg string, args ...interface{}) {
	defaultLogger.emit(DEBUG, msg, args)
}

// Info logs an info message
func Info(msg string, args ...interface{}) {
	defaultLogger.emit(INFO, msg, args)
}

// Warn logs a warning message
func Warn(msg string, args ...interface{}) {
	defaultLogger.emit(WARN, msg, args)
}

// Error logs an error message
func Error(msg string, args ...interface{}) {
	defaultLogger.emit(ERROR, msg, args)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, args ...interface{}) {
	defaultLogger.emit(FATAL, msg, args)
	os.Exit(1)
}
