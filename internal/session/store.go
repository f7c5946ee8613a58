// Package session persists the mapping from chat conversations to backend
// sessions so conversations survive restarts.
//
// File format (sessions.json):
//
//	{ "feishu:oc_123": { "sessionId": "ses_abc", "lastActivity": 1700000000000 } }
//
// lastActivity is milliseconds since the Unix epoch. The document is loaded
// once and rewritten whole on every mutation.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/crystaldolphin/chatbridge/internal/bus"
)

// FileName is the store document name inside the session directory.
const FileName = "sessions.json"

// Record is one persisted conversation → backend session mapping.
type Record struct {
	SessionID    string `json:"sessionId"`
	LastActivity int64  `json:"lastActivity"`
}

// Entry is a Record together with its decoded key, used for listing.
type Entry struct {
	Key          string
	Channel      bus.Channel
	ChatID       string
	SessionID    string
	LastActivity time.Time
}

// Store is a durable, mutex-guarded map of routing key → Record.
type Store struct {
	path string
	now  func() time.Time

	mu      sync.Mutex
	records map[string]Record
}

// NewStore opens the store in dir. A missing or unreadable document yields an
// empty store; it never fails.
func NewStore(dir string) *Store {
	s := &Store{
		path:    filepath.Join(dir, FileName),
		now:     time.Now,
		records: make(map[string]Record),
	}
	if err := s.load(); err != nil {
		slog.Warn("session: load failed, starting empty", "path", s.path, "err", err)
		s.records = make(map[string]Record)
	}
	slog.Debug("session: store loaded", "path", s.path, "records", len(s.records))
	return s
}

// Path returns the location of the backing document.
func (s *Store) Path() string { return s.path }

// Get returns the backend session id for the conversation, if any.
func (s *Store) Get(channel bus.Channel, chatID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[bus.RoutingKey(channel, chatID)]
	return rec.SessionID, ok
}

// Set maps the conversation to sessionID, replacing any previous mapping, and
// persists the store. The in-memory mapping is updated even when the write fails.
func (s *Store) Set(channel bus.Channel, chatID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[bus.RoutingKey(channel, chatID)] = Record{
		SessionID:    sessionID,
		LastActivity: s.now().UnixMilli(),
	}
	return s.saveLocked()
}

// Touch refreshes the activity timestamp of an existing mapping.
// It is a no-op when the conversation has no mapping.
func (s *Store) Touch(channel bus.Channel, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bus.RoutingKey(channel, chatID)
	rec, ok := s.records[key]
	if !ok {
		return nil
	}
	rec.LastActivity = s.now().UnixMilli()
	s.records[key] = rec
	return s.saveLocked()
}

// Delete removes the mapping so the next message starts a fresh backend session.
func (s *Store) Delete(channel bus.Channel, chatID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bus.RoutingKey(channel, chatID)
	if _, ok := s.records[key]; !ok {
		return false, nil
	}
	delete(s.records, key)
	return true, s.saveLocked()
}

// Prune removes mappings idle for longer than maxAge and reports how many
// were removed.
func (s *Store) Prune(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-maxAge).UnixMilli()
	removed := 0
	for key, rec := range s.records {
		if rec.LastActivity < cutoff {
			delete(s.records, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.saveLocked()
}

// List returns all mappings, most recently active first.
func (s *Store) List() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.records))
	for key, rec := range s.records {
		ch, chat := bus.ParseRoutingKey(key)
		out = append(out, Entry{
			Key:          key,
			Channel:      ch,
			ChatID:       chat,
			SessionID:    rec.SessionID,
			LastActivity: time.UnixMilli(rec.LastActivity),
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].Key < out[j].Key
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Len reports the number of stored mappings.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var records map[string]Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	if records != nil {
		s.records = records
	}
	return nil
}

// saveLocked rewrites the whole document through a temp file in the same
// directory followed by a rename, so readers never observe a partial file.
func (s *Store) saveLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", tmpPath, err)
	}
	return nil
}
