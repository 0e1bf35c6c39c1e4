package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultMaxSizeMB = 100

// fileWriter appends log lines to a file and rotates it once it grows past maxBytes.
// Rotated files are named <base>-<timestamp><ext> next to the active file.
type fileWriter struct {
	filename   string
	maxBytes   int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

func newFileWriter(filename string, maxSizeMB, maxBackups int) (*fileWriter, error) {
	if filename == "" {
		return nil, fmt.Errorf("log file path is required for file output")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}

	w := &fileWriter{
		filename:   filename,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write implements io.Writer
func (w *fileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		if err := w.open(); err != nil {
			return 0, err
		}
	}

	if w.size+int64(len(p)) > w.maxBytes && w.size > 0 {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Sync flushes the file to disk
func (w *fileWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close implements io.Closer
func (w *fileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.close()
}

func (w *fileWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.filename), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(w.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	w.file = file
	w.size = info.Size()
	return nil
}

func (w *fileWriter) close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.size = 0
	return err
}

func (w *fileWriter) rotate() error {
	if err := w.close(); err != nil {
		return err
	}

	ext := filepath.Ext(w.filename)
	base := strings.TrimSuffix(w.filename, ext)
	backup := fmt.Sprintf("%s-%s%s", base, time.Now().Format("20060102T150405.000"), ext)

	if err := os.Rename(w.filename, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	w.prune(base, ext)
	return w.open()
}

// prune removes the oldest rotated files beyond maxBackups
func (w *fileWriter) prune(base, ext string) {
	if w.maxBackups <= 0 {
		return
	}

	matches, err := filepath.Glob(base + "-*" + ext)
	if err != nil || len(matches) <= w.maxBackups {
		return
	}

	// timestamps sort lexically
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-w.maxBackups] {
		_ = os.Remove(old)
	}
}
