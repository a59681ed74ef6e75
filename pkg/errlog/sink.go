package errlog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Sink receives complete JSON lines, newline included.
type Sink interface {
	Append(line []byte) error
}

// FileSink appends lines to a file. The file is opened for every write so
// the destination can be moved or removed between writes.
type FileSink struct {
	path string
	perm fs.FileMode
	mu   sync.Mutex
}

func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, ErrEmptyLogPath
	}
	return &FileSink{path: path, perm: 0o644}, nil
}

func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) Append(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}

	n, err := f.Write(line)
	if err == nil && n < len(line) {
		err = io.ErrShortWrite
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("append to %s: %w", s.path, err)
	}
	return nil
}

func (s *FileSink) open() (*os.File, error) {
	const flags = os.O_APPEND | os.O_CREATE | os.O_WRONLY

	f, err := os.OpenFile(s.path, flags, s.perm)
	if errors.Is(err, fs.ErrNotExist) {
		if mkErr := os.MkdirAll(filepath.Dir(s.path), 0o755); mkErr != nil {
			return nil, mkErr
		}
		f, err = os.OpenFile(s.path, flags, s.perm)
	}
	return f, err
}
