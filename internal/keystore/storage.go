package keystore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Storage abstracts where the serialized key pair lives so tests can run
// against an in-memory substitute.
type Storage interface {
	// Read returns the stored bytes, or ok=false when nothing is stored yet.
	Read() (data []byte, ok bool, err error)
	Write(data []byte) error
	Exists() bool
	Remove() error
}

// FileStorage persists the key pair to a single JSON file, creating parent
// directories on first write. The file is owner read/write only.
type FileStorage struct {
	Path string
}

// NewFileStorage creates a file-backed storage at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{Path: path}
}

// DefaultPath returns <home>/.trade-republic-mcp/keys.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".trade-republic-mcp", "keys.json"), nil
}

// Read returns the file contents, or ok=false when the file does not exist.
func (s *FileStorage) Read() ([]byte, bool, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key file: %w", err)
	}
	return data, true, nil
}

// Write stores data, creating the parent directory if needed.
func (s *FileStorage) Write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// Exists reports whether the key file is present.
func (s *FileStorage) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// Remove deletes the key file. Missing files are not an error.
func (s *FileStorage) Remove() error {
	err := os.Remove(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryStorage is an in-memory Storage for tests.
type MemoryStorage struct {
	data   []byte
	stored bool
}

// Read returns the stored bytes.
func (s *MemoryStorage) Read() ([]byte, bool, error) {
	if !s.stored {
		return nil, false, nil
	}
	return s.data, true, nil
}

// Write stores data.
func (s *MemoryStorage) Write(data []byte) error {
	s.data = append([]byte(nil), data...)
	s.stored = true
	return nil
}

// Exists reports whether anything is stored.
func (s *MemoryStorage) Exists() bool {
	return s.stored
}

// Remove clears the stored bytes.
func (s *MemoryStorage) Remove() error {
	s.data = nil
	s.stored = false
	return nil
}
