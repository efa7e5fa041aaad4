package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Store is an in-memory key/value store with optional per-key expiry and a
// best-effort disk snapshot. Every Set is written through to one JSON file
// per key; the snapshot is loaded eagerly when the store is created.
type Store struct {
	logger *zap.Logger
	dir    string

	mu     sync.RWMutex
	cache  map[string]any
	expiry map[string]time.Time

	persistFailures atomic.Uint64

	now func() time.Time
}

// Option defines a functional option for Store
type Option func(*Store)

// WithClock overrides the store's time source (used in tests)
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store. If dir is non-empty, the directory is created and any
// previously persisted entries are loaded before the store is returned.
func New(logger *zap.Logger, dir string, opts ...Option) (*Store, error) {
	s := &Store{
		logger: logger,
		dir:    dir,
		cache:  make(map[string]any),
		expiry: make(map[string]time.Time),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		s.loadFromDisk()
	}

	return s, nil
}

// Get returns the value stored under key. An expired key is removed and
// reported as absent.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	deadline, hasTTL := s.expiry[key]
	value, ok := s.cache[key]
	s.mu.RUnlock()

	if hasTTL && s.now().After(deadline) {
		s.Delete(key)
		return nil, false
	}

	return value, ok
}

// Set stores value under key. A non-zero ttl expires the key after the given
// duration. The value is persisted synchronously when a snapshot directory is
// configured; persist failures are logged and counted, never returned.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	s.cache[key] = value
	if ttl > 0 {
		s.expiry[key] = s.now().Add(ttl)
	} else {
		delete(s.expiry, key)
	}
	s.mu.Unlock()

	s.persist(key, value)
}

// Delete removes key from the store and its snapshot file
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	delete(s.expiry, key)
	s.mu.Unlock()

	if s.dir != "" {
		path := s.filePath(key)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove snapshot file",
				zap.String("key", key),
				zap.Error(err))
		}
	}
}

// Exists reports whether key holds a live value
func (s *Store) Exists(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Keys returns all keys, filtered to those containing pattern when pattern is
// non-empty
func (s *Store) Keys(pattern string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.cache))
	for k := range s.cache {
		if pattern == "" || strings.Contains(k, pattern) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Clear removes all keys and snapshot files
func (s *Store) Clear() {
	s.mu.Lock()
	s.cache = make(map[string]any)
	s.expiry = make(map[string]time.Time)
	s.mu.Unlock()

	if s.dir == "" {
		return
	}

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			s.logger.Warn("failed to remove snapshot file", zap.String("path", m), zap.Error(err))
		}
	}
}

// PersistFailures returns the number of snapshot writes that failed since the
// store was created
func (s *Store) PersistFailures() uint64 {
	return s.persistFailures.Load()
}

// safeKey converts a key to a filename-safe form. Reserved characters are
// replaced with underscores.
func safeKey(key string) string {
	r := strings.NewReplacer(":", "_", "/", "_", " ", "_")
	return r.Replace(key)
}

func (s *Store) filePath(key string) string {
	return filepath.Join(s.dir, safeKey(key)+".json")
}

func (s *Store) persist(key string, value any) {
	if s.dir == "" {
		return
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		s.persistFailures.Add(1)
		s.logger.Warn("failed to encode value for snapshot",
			zap.String("key", key),
			zap.Error(err))
		return
	}

	if err := os.WriteFile(s.filePath(key), data, 0o600); err != nil {
		s.persistFailures.Add(1)
		s.logger.Warn("failed to persist value",
			zap.String("key", key),
			zap.Error(err))
	}
}

func (s *Store) loadFromDisk() {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return
	}

	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable snapshot file", zap.String("path", path), zap.Error(err))
			continue
		}

		var value any
		if err := json.Unmarshal(data, &value); err != nil {
			s.logger.Warn("skipping corrupted snapshot file", zap.String("path", path), zap.Error(err))
			continue
		}

		// Restore the original key shape from the sanitized filename.
		stem := strings.TrimSuffix(filepath.Base(path), ".json")
		key := strings.ReplaceAll(stem, "_", ":")
		s.cache[key] = value
	}

	s.logger.Info("memory snapshot loaded",
		zap.String("dir", s.dir),
		zap.Int("keys", len(s.cache)))
}
