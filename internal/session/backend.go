package session

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
)

type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (m *MemoryBackend) String(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key]
}

func (m *MemoryBackend) SetString(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *MemoryBackend) RemoveValue(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

// FileBackend keeps values in a small JSON file, rewritten on every change.
// Write failures are logged rather than returned so the type fits Backend.
type FileBackend struct {
	path   string
	logger *log.Logger
	mu     sync.Mutex
}

func NewFileBackend(path string, logger *log.Logger) *FileBackend {
	if logger == nil {
		logger = log.New(os.Stderr, "SESSION: ", log.LstdFlags)
	}
	return &FileBackend{path: path, logger: logger}
}

// DefaultPath is ~/.config/drizzle/session.json (or the platform equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "drizzle", "session.json"), nil
}

func (f *FileBackend) String(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		f.logger.Printf("read %s: %v", f.path, err)
		return ""
	}
	return values[key]
}

func (f *FileBackend) SetString(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		f.logger.Printf("read %s: %v", f.path, err)
		values = make(map[string]string)
	}
	values[key] = value
	if err := f.save(values); err != nil {
		f.logger.Printf("write %s: %v", f.path, err)
	}
}

func (f *FileBackend) RemoveValue(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		f.logger.Printf("read %s: %v", f.path, err)
		return
	}
	if _, ok := values[key]; !ok {
		return
	}
	delete(values, key)
	if err := f.save(values); err != nil {
		f.logger.Printf("write %s: %v", f.path, err)
	}
}

func (f *FileBackend) load() (map[string]string, error) {
	values := make(map[string]string)
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(b, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (f *FileBackend) save(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
