// Package statestore persists agent state to disk so the loop survives
// restarts. The current snapshot lives in current_state.json; every
// save rotates the previous snapshot into a bounded backup set.
package statestore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/payops/sentinel/internal/core"
)

const (
	currentStateFile = "current_state.json"
	backupDir        = "backups"
	maxBackups       = 10
)

// Store reads and writes agent state under one directory.
type Store struct {
	dir string
	log *slog.Logger
	now func() time.Time
}

// NewStore builds a store rooted at dir, creating it if needed.
func NewStore(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(dir, backupDir), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{dir: dir, log: log, now: time.Now}, nil
}

// SetClock overrides the wall clock for tests.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Save writes the state snapshot, rotating the previous one into the
// backup set first. Failures are logged and returned but never panic.
func (s *Store) Save(state *core.AgentState) error {
	path := filepath.Join(s.dir, currentStateFile)

	if _, err := os.Stat(path); err == nil {
		if err := s.backup(path); err != nil {
			s.log.Warn("state backup failed", "err", err)
		}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		s.log.Error("state marshal failed", "err", err)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.log.Error("state write failed", "path", path, "err", err)
		return err
	}
	s.log.Info("state saved", "path", path)
	return nil
}

func (s *Store) backup(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	t := s.now()
	name := fmt.Sprintf("state_%s_%06d.json",
		t.Format("20060102_150405"), t.Nanosecond()/1000)
	if err := os.WriteFile(filepath.Join(s.dir, backupDir, name), data, 0o644); err != nil {
		return err
	}
	return s.pruneBackups()
}

func (s *Store) pruneBackups() error {
	names, err := s.backupNames()
	if err != nil {
		return err
	}
	for len(names) > maxBackups {
		oldest := names[0]
		if err := os.Remove(filepath.Join(s.dir, backupDir, oldest)); err != nil {
			return err
		}
		names = names[1:]
	}
	return nil
}

// backupNames lists backups sorted oldest first. Timestamped names sort
// lexically in time order.
func (s *Store) backupNames() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, backupDir))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Load reads the current snapshot. A missing file is not an error; the
// caller gets (nil, nil) and starts fresh.
func (s *Store) Load() (*core.AgentState, error) {
	path := filepath.Join(s.dir, currentStateFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.log.Info("no saved state, starting fresh")
		return nil, nil
	}
	if err != nil {
		s.log.Error("state read failed", "path", path, "err", err)
		return nil, err
	}
	var state core.AgentState
	if err := json.Unmarshal(data, &state); err != nil {
		s.log.Error("state unmarshal failed", "path", path, "err", err)
		return nil, err
	}
	s.log.Info("state loaded", "path", path)
	return &state, nil
}

// Backups lists available backups, newest first.
func (s *Store) Backups() ([]string, error) {
	names, err := s.backupNames()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names, nil
}

// RecoverFromBackup replaces the current snapshot with the backup at
// index, where 0 is the newest.
func (s *Store) RecoverFromBackup(index int) (*core.AgentState, error) {
	names, err := s.Backups()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(names) {
		return nil, fmt.Errorf("backup index %d out of range (%d available)", index, len(names))
	}
	data, err := os.ReadFile(filepath.Join(s.dir, backupDir, names[index]))
	if err != nil {
		return nil, err
	}
	var state core.AgentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(s.dir, currentStateFile), data, 0o644); err != nil {
		return nil, err
	}
	s.log.Info("state recovered from backup", "backup", names[index])
	return &state, nil
}
