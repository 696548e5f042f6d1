package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrVersionConflict is returned by [Store.PutAtomic] when the persisted
// record's version no longer matches the version the write was based on.
// Callers retry once with a refreshed version, then drop the update
// (last-writer-wins), since turn summaries are idempotent.
var ErrVersionConflict = errors.New("session version conflict")

// Store is durable key-value persistence for sessions.
//
// Get returns (nil, nil) for an absent session; corruption in the backing
// medium is also reported as absence, never as an error that could abort the
// host's turn. PutAtomic must be all-or-nothing: a write interrupted midway
// must leave either the old record or the new one, never a torn file.
type Store interface {
	Get(sessionID string) (*Session, error)
	PutAtomic(s *Session) error
	Delete(sessionID string) error
}

// EnvStateDir overrides the file store's state directory.
const EnvStateDir = "FLOWGATE_STATE_DIR"

// DefaultStateDir resolves the session state directory: the
// FLOWGATE_STATE_DIR environment variable if set, otherwise
// flowgate/sessions under the user cache directory.
func DefaultStateDir() string {
	if dir := os.Getenv(EnvStateDir); dir != "" {
		return dir
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "flowgate", "sessions")
	}
	return filepath.Join(cache, "flowgate", "sessions")
}

// FileStore persists one JSON document per session id under a state
// directory.
//
// Writes go to a temp file in the same directory and are renamed into place,
// so an interrupted write never leaves a torn record. Concurrent writers for
// the same session id are detected with the record's Version field.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates a [FileStore] rooted at dir, creating the directory
// if needed. Pass nil to use the default logger.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// path maps a session id to its backing file. Session ids come from the
// host and may contain path-hostile characters; anything outside the safe
// set is replaced.
func (fs *FileStore) path(sessionID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, sessionID)
	return filepath.Join(fs.dir, safe+".json")
}

// Get reads the session record for sessionID.
//
// An absent file returns (nil, nil). An unreadable or unparseable file is
// treated the same way: the record is reported absent and will be
// overwritten on the next write, never repaired in place.
func (fs *FileStore) Get(sessionID string) (*Session, error) {
	data, err := os.ReadFile(fs.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		fs.logger.Warn("session file unreadable, treating as absent",
			slog.String("session", sessionID),
			slog.String("error", err.Error()))
		return nil, nil
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		fs.logger.Warn("session file corrupted, treating as absent",
			slog.String("session", sessionID),
			slog.String("error", err.Error()))
		return nil, nil
	}

	return &s, nil
}

// PutAtomic writes the session record with optimistic version checking.
//
// The write fails with [ErrVersionConflict] when the record on disk carries
// a different version than the one s was read at. On success the stored
// record's version is incremented. The file is written to a temp path and
// renamed into place.
func (fs *FileStore) PutAtomic(s *Session) error {
	current, err := fs.Get(s.ID)
	if err != nil {
		return err
	}
	if current != nil && current.Version != s.Version {
		return fmt.Errorf("session %s: %w", s.ID, ErrVersionConflict)
	}

	next := *s
	next.Version++

	data, err := json.MarshalIndent(&next, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Each writer gets its own temp file so two racing writers can never
	// tear each other's pending write; the loser of the rename race is
	// caught by the version check on its next read.
	fullPath := fs.path(s.ID)
	tmp, err := os.CreateTemp(fs.dir, filepath.Base(fullPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write session: %w", err)
	}

	s.Version = next.Version
	return nil
}

// Delete removes the session record. Deleting an absent session is not an
// error.
func (fs *FileStore) Delete(sessionID string) error {
	err := os.Remove(fs.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// MemoryStore is an in-memory [Store] for tests and for hosts that opt out
// of durability. It applies the same version-check semantics as [FileStore].
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Get returns a copy of the stored record, or (nil, nil) when absent.
func (ms *MemoryStore) Get(sessionID string) (*Session, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	s, ok := ms.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// PutAtomic stores a copy of s, enforcing the optimistic version check.
func (ms *MemoryStore) PutAtomic(s *Session) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if current, ok := ms.sessions[s.ID]; ok && current.Version != s.Version {
		return fmt.Errorf("session %s: %w", s.ID, ErrVersionConflict)
	}

	cp := *s
	cp.Version++
	ms.sessions[s.ID] = &cp
	s.Version = cp.Version
	return nil
}

// Delete removes the record; absent sessions are not an error.
func (ms *MemoryStore) Delete(sessionID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.sessions, sessionID)
	return nil
}
