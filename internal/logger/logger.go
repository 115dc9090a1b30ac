// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Logger wraps the standard log package with file output and broadcasting.
// There is no package-level instance: every collaborator that logs is
// constructed with one explicitly.
type Logger struct {
	file        *os.File
	logger      *log.Logger
	broadcast   chan string
	subscribers map[chan string]bool
	subMu       sync.RWMutex
	mu          sync.RWMutex
	closed      bool
}

// New creates a logger that writes to stdout and, if logFile is
// non-empty, appends to that file as well.
func New(logFile string) (*Logger, error) {
	var w io.Writer = os.Stdout
	var file *os.File

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		w = io.MultiWriter(os.Stdout, f)
	}

	l := &Logger{
		file:        file,
		logger:      log.New(w, "", log.LstdFlags|log.Lshortfile),
		broadcast:   make(chan string, 100),
		subscribers: make(map[chan string]bool),
	}

	go l.broadcastLoop()

	return l, nil
}

// Subscribe creates a per-client channel that receives every logged
// line, for fan-out to e.g. an SSE stream. Returns nil if the logger is
// closed.
func (l *Logger) Subscribe() (<-chan string, chan string) {
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return nil, nil
	}

	clientChan := make(chan string, 10)

	l.subMu.Lock()
	l.subscribers[clientChan] = true
	l.subMu.Unlock()

	return clientChan, clientChan
}

// Unsubscribe removes a client channel from subscribers.
func (l *Logger) Unsubscribe(ch chan string) {
	if ch == nil {
		return
	}

	l.subMu.Lock()
	defer l.subMu.Unlock()

	if l.subscribers[ch] {
		delete(l.subscribers, ch)
		close(ch)
	}
}

func (l *Logger) broadcastLoop() {
	defer func() {
		l.subMu.Lock()
		for ch := range l.subscribers {
			close(ch)
		}
		l.subscribers = make(map[chan string]bool)
		l.subMu.Unlock()
	}()

	for logLine := range l.broadcast {
		l.subMu.RLock()
		subscribers := make([]chan string, 0, len(l.subscribers))
		for ch := range l.subscribers {
			subscribers = append(subscribers, ch)
		}
		l.subMu.RUnlock()

		for _, ch := range subscribers {
			select {
			case ch <- logLine:
			default:
			}
		}
	}
}

func (l *Logger) logMessage(level, format string, v ...interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return
	}

	message := fmt.Sprintf(format, v...)
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	logLine := fmt.Sprintf("[%s] [%s] %s", timestamp, level, message)

	if l.logger != nil {
		l.logger.Output(3, logLine)
	}

	select {
	case l.broadcast <- logLine:
	default:
	}
}

func (l *Logger) Printf(format string, v ...interface{}) { l.logMessage("INFO", format, v...) }
func (l *Logger) Print(v ...interface{})                 { l.logMessage("INFO", "%s", fmt.Sprint(v...)) }
func (l *Logger) Println(v ...interface{})               { l.logMessage("INFO", "%s", fmt.Sprint(v...)) }
func (l *Logger) Errorf(format string, v ...interface{}) { l.logMessage("ERROR", format, v...) }
func (l *Logger) Error(v ...interface{})                 { l.logMessage("ERROR", "%s", fmt.Sprint(v...)) }
func (l *Logger) Warnf(format string, v ...interface{})  { l.logMessage("WARN", format, v...) }
func (l *Logger) Warn(v ...interface{})                  { l.logMessage("WARN", "%s", fmt.Sprint(v...)) }
func (l *Logger) Debugf(format string, v ...interface{}) { l.logMessage("DEBUG", format, v...) }
func (l *Logger) Debug(v ...interface{})                 { l.logMessage("DEBUG", "%s", fmt.Sprint(v...)) }

// Fatal logs at FATAL level and exits the process.
func (l *Logger) Fatal(v ...interface{}) {
	l.logMessage("FATAL", "%s", fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf logs at FATAL level and exits the process.
func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.logMessage("FATAL", format, v...)
	os.Exit(1)
}

// Close closes the log file (if any) and stops broadcasting.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	close(l.broadcast)

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
