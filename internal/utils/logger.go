package utils

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logger is a leveled wrapper around the standard logger.
type Logger struct {
	file   *os.File
	logger *log.Logger
}

// NewLogger creates a logger appending to the file at filePath.
func NewLogger(filePath string) (*Logger, error) {
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		file:   file,
		logger: log.New(file, "", log.LstdFlags),
	}, nil
}

// NewStreamLogger creates a logger writing to w.
func NewStreamLogger(w io.Writer) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{logger: log.New(w, "", log.LstdFlags)}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewStreamLogger(io.Discard)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.output("INFO: ", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.output("WARN: ", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.output("ERROR: ", msg)
}

func (l *Logger) Infof(format string, args ...any)  { l.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.Error(fmt.Sprintf(format, args...)) }

// The level is part of the message rather than the logger prefix so
// concurrent callers never see each other's level.
func (l *Logger) output(level, msg string) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Println(level + msg)
}

// Close closes the log file, if any.
func (l *Logger) Close() {
	if l == nil || l.file == nil {
		return
	}
	l.file.Close()
}
