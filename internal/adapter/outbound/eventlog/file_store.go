// Package eventlog provides file-based audit persistence in JSON Lines
// format with date-stamped files.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/intent-gate/intentgate/internal/domain/audit"
)

// FileStore implements audit.Sink on top of date-stamped JSONL files in a
// single directory. One file per UTC day; records append as compact JSON
// lines.
type FileStore struct {
	dir         string
	mu          sync.Mutex
	currentFile *os.File
	currentDate string
	logger      *slog.Logger
	closed      bool
}

// NewFileStore creates the audit directory (0700) if missing and opens
// today's log file.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	s := &FileStore{dir: dir, logger: logger}
	if err := s.openLocked(time.Now().UTC().Format("2006-01-02")); err != nil {
		return nil, err
	}
	return s, nil
}

// Append writes records as JSON lines, rotating to a new file on date
// change. Records without an event id are assigned one.
func (s *FileStore) Append(_ context.Context, records ...audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("audit store is closed")
	}

	for i := range records {
		rec := &records[i]
		if rec.EventID == "" {
			rec.EventID = uuid.NewString()
		}

		dateStr := rec.Timestamp.UTC().Format("2006-01-02")
		if dateStr != s.currentDate {
			if err := s.rotateLocked(dateStr); err != nil {
				return fmt.Errorf("date rotation: %w", err)
			}
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal audit record: %w", err)
		}
		if _, err := s.currentFile.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write audit record: %w", err)
		}
	}
	return nil
}

// Flush syncs the current file to disk.
func (s *FileStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentFile != nil {
		return s.currentFile.Sync()
	}
	return nil
}

// Close syncs and closes the current file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.currentFile != nil {
		_ = s.currentFile.Sync()
		err := s.currentFile.Close()
		s.currentFile = nil
		return err
	}
	return nil
}

func (s *FileStore) openLocked(dateStr string) error {
	path := filepath.Join(s.dir, fmt.Sprintf("ifw-%s.log", dateStr))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open audit file %s: %w", path, err)
	}
	s.currentFile = f
	s.currentDate = dateStr
	return nil
}

func (s *FileStore) rotateLocked(dateStr string) error {
	if s.currentFile != nil {
		_ = s.currentFile.Sync()
		if err := s.currentFile.Close(); err != nil {
			s.logger.Error("failed to close audit file", "error", err)
		}
		s.currentFile = nil
	}
	return s.openLocked(dateStr)
}

// Compile-time interface verification.
var _ audit.Sink = (*FileStore)(nil)
