// Package session keeps per-client context between goal executions: the last page the
// client was on, free-form variables and a log of the runs executed under the session.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrNotFound is returned for ids with no session file.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidID is returned for ids that are not UUIDs.
	ErrInvalidID = errors.New("invalid session id")
)

// DefaultMaxRuns bounds the run log kept per session.
const DefaultMaxRuns = 50

const fileExt = ".json"

// Tab is the page a session was last left on.
type Tab struct {
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Run summarizes one goal executed under a session.
type Run struct {
	GoalID       string    `json:"goal_id"`
	Command      string    `json:"command"`
	Status       string    `json:"status"`
	Results      int       `json:"results"`
	QualityScore int       `json:"quality_score"`
	Duration     float64   `json:"duration_seconds"`
	FinalURL     string    `json:"final_url,omitempty"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// Session is the persisted context of one client.
type Session struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	CurrentTab *Tab           `json:"current_tab,omitempty"`
	Variables  map[string]any `json:"variables"`
	Runs       []Run          `json:"runs"`
}

// Manager stores sessions as one JSON file each under a directory.
type Manager struct {
	dir     string
	logger  *zap.Logger
	maxRuns int
	now     func() time.Time

	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxRuns overrides DefaultMaxRuns.
func WithMaxRuns(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxRuns = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// NewManager creates the session directory if needed. A leading ~ is expanded.
func NewManager(dir string, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("session directory cannot be empty")
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand session directory %q: %w", dir, err)
	}
	if err := os.MkdirAll(expanded, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	m := &Manager{
		dir:     expanded,
		logger:  logger.Named("session"),
		maxRuns: DefaultMaxRuns,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Dir is the expanded storage directory.
func (m *Manager) Dir() string { return m.dir }

// Create starts a new session with a copy of vars.
func (m *Manager) Create(vars map[string]any) (*Session, error) {
	now := m.now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Variables: make(map[string]any, len(vars)),
		Runs:      []Run{},
	}
	for k, v := range vars {
		s.Variables[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(s); err != nil {
		return nil, err
	}
	m.logger.Debug("Session created", zap.String("session_id", s.ID))
	return s, nil
}

// Get loads a session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(id)
}

// Save persists s and bumps its UpdatedAt.
func (m *Manager) Save(s *Session) error {
	if s == nil {
		return errors.New("session cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = m.now().UTC()
	return m.write(s)
}

// Delete removes a session file.
func (m *Manager) Delete(id string) error {
	path, err := m.path(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// List returns every stored session, most recently updated first. Unreadable files
// are skipped with a warning.
func (m *Manager) List() ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list()
}

// Cleanup deletes sessions not updated within maxAge and reports how many it removed.
func (m *Manager) Cleanup(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, err := m.list()
	if err != nil {
		return 0, err
	}
	cutoff := m.now().UTC().Add(-maxAge)
	removed := 0
	for _, s := range sessions {
		if !s.UpdatedAt.Before(cutoff) {
			continue
		}
		path, _ := m.path(s.ID)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove expired session %s: %w", s.ID, err)
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("Expired sessions removed", zap.Int("count", removed), zap.Duration("max_age", maxAge))
	}
	return removed, nil
}

// AppendRun logs run under session id and moves its current tab to the run's final page.
// The oldest runs are dropped past the configured maximum.
func (m *Manager) AppendRun(id string, run Run) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.read(id)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	if run.ExecutedAt.IsZero() {
		run.ExecutedAt = now
	}
	s.Runs = append(s.Runs, run)
	if over := len(s.Runs) - m.maxRuns; over > 0 {
		s.Runs = append([]Run(nil), s.Runs[over:]...)
	}
	if run.FinalURL != "" {
		s.CurrentTab = &Tab{URL: run.FinalURL, UpdatedAt: now}
	}
	s.UpdatedAt = now
	if err := m.write(s); err != nil {
		return nil, err
	}
	return s, nil
}

// -- File handling (callers hold m.mu) --

func (m *Manager) path(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(m.dir, id+fileExt), nil
}

func (m *Manager) read(id string) (*Session, error) {
	path, err := m.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	if s.Variables == nil {
		s.Variables = map[string]any{}
	}
	return &s, nil
}

// write replaces the session file through a temp file and rename.
func (m *Manager) write(s *Session) error {
	path, err := m.path(s.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	tmp, err := os.CreateTemp(m.dir, s.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write session %s: %w", s.ID, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session %s: %w", s.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session %s: %w", s.ID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write session %s: %w", s.ID, err)
	}
	return nil
}

func (m *Manager) list() ([]*Session, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions := make([]*Session, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		id := strings.TrimSuffix(e.Name(), fileExt)
		s, err := m.read(id)
		if err != nil {
			m.logger.Warn("Skipping unreadable session file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}
