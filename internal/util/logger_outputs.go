package util

import (
	"fmt"
	"os"
	"sync"

	"github.com/bytedance/sonic"
)

// ConsoleOutput writes human-readable log lines to stderr, for debug mode.
type ConsoleOutput struct {
	mu sync.Mutex
}

// NewConsoleOutput creates a new console output
func NewConsoleOutput() Output {
	return &ConsoleOutput{}
}

// Write writes a log entry to console
func (c *ConsoleOutput) Write(entry LogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	timestamp := entry.Timestamp.Format("2006/01/02 15:04:05")
	_, err := fmt.Fprintf(os.Stderr, "%s [%s] %s\n", timestamp, entry.Level, entry.Message)
	return err
}

// Close closes the console output
func (c *ConsoleOutput) Close() error {
	return nil
}

// FileOutput appends log entries to a file as JSON Lines, so session logs can
// be filtered and replayed with the same tooling as trial files.
type FileOutput struct {
	file *os.File
	mu   sync.Mutex
}

// NewFileOutput creates a new file output
func NewFileOutput(path string) (Output, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileOutput{file: file}, nil
}

// Write writes a log entry to file
func (f *FileOutput) Write(entry LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := sonic.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.file, string(data))
	return err
}

// Close closes the file
func (f *FileOutput) Close() error {
	return f.file.Close()
}
