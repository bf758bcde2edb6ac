package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileName is the preferences file kept inside the base directory.
const FileName = "preferences.json"

// Store provides persistent key/value storage for theme preferences. Every
// process pointed at the same base directory shares the same values.
type Store struct {
	baseDir string
	logger  *slog.Logger

	mu    sync.Mutex
	known map[string]string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by Watch.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a new Store instance with the given base directory.
func New(baseDir string, opts ...Option) *Store {
	s := &Store{
		baseDir: baseDir,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "storage"))
	return s
}

// EnsureDirs creates the base directory.
func (s *Store) EnsureDirs() error {
	return os.MkdirAll(s.baseDir, 0o755)
}

// Path returns the preferences file path.
func (s *Store) Path() string {
	return filepath.Join(s.baseDir, FileName)
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	if err := s.save(values); err != nil {
		return err
	}
	s.remember(values)
	return nil
}

// Remove deletes key.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	if err := s.save(values); err != nil {
		return err
	}
	s.remember(values)
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) load() (map[string]string, error) {
	f, err := os.Open(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	defer f.Close()

	values := make(map[string]string)
	if err := json.NewDecoder(f).Decode(&values); err != nil {
		if errors.Is(err, io.EOF) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return values, nil
}

func (s *Store) save(values map[string]string) error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}

	path := s.Path()
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create preferences: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(values); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("encode preferences: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close preferences: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}

// remember records values as seen by this process so Watch does not report
// our own writes.
func (s *Store) remember(values map[string]string) {
	s.known = make(map[string]string, len(values))
	for k, v := range values {
		s.known[k] = v
	}
}
