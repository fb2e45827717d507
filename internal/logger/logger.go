package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"eventcam/internal/config"

	"github.com/lmittmann/tint"
)

// Logger provides leveled logging (debug/info/warning/error) to per-level
// files and a colored console handler.
type Logger struct {
	console    *slog.Logger
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	level      slog.Level
	logDir     string
	mu         sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) *Logger {
	logger, err := New(config.LogDirectory, ParseLevel(config.LogLevel), os.Stdout)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}

// New creates a Logger writing to console and, when logDir is not empty,
// to info.log, warning.log and error.log inside logDir.
func New(logDir string, level slog.Level, console io.Writer) (*Logger, error) {
	logger := &Logger{
		level:  level,
		logDir: logDir,
		console: slog.New(tint.NewHandler(console, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})),
	}

	if logDir == "" {
		return logger, nil
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := logger.setupLoggers(); err != nil {
		return nil, err
	}
	return logger, nil
}

// Discard returns a Logger that drops everything. Useful in tests.
func Discard() *Logger {
	logger, _ := New("", slog.LevelError+1, io.Discard)
	return logger
}

// setupLoggers initializes per-level file loggers.
func (l *Logger) setupLoggers() error {
	files := make(map[string]*os.File, 3)
	for _, name := range []string{"info.log", "warning.log", "error.log"} {
		file, err := l.openLogFile(filepath.Join(l.logDir, name))
		if err != nil {
			return err
		}
		files[name] = file
	}

	l.infoLog = log.New(files["info.log"], "INFO    ", log.Ldate|log.Ltime)
	l.warningLog = log.New(files["warning.log"], "WARNING ", log.Ldate|log.Ltime)
	l.errorLog = log.New(files["error.log"], "ERROR   ", log.Ldate|log.Ltime)
	return nil
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(filename string) (*os.File, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filename, err)
	}
	return file, nil
}

// Debug writes a formatted debug-level entry to the console only.
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level > slog.LevelDebug {
		return
	}
	l.console.Debug(fmt.Sprintf(format, v...))
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.write(slog.LevelInfo, l.infoLog, format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.write(slog.LevelWarn, l.warningLog, format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.write(slog.LevelError, l.errorLog, format, v...)
}

func (l *Logger) write(level slog.Level, file *log.Logger, format string, v ...interface{}) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, v...)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.console.Log(context.Background(), level, msg)
	if file != nil {
		file.Print(msg)
	}
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}
	filePath := filepath.Join(l.logDir, filepath.Base(fileName))
	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		l.Error("Error opening file: %v", err)
		return err
	}
	defer file.Close()

	l.Info("File %s has been cleared.", fileName)
	return nil
}

// ParseLevel maps a level name to a slog level; unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
