package permission

import (
	"errors"
	"slices"
	"sync"
)

// ErrEmptyEntry is returned when Add is called with an empty entry.
var ErrEmptyEntry = errors.New("session allowlist entry cannot be empty")

// SessionAllowlist tracks commands approved for the rest of a session.
// Entries are matched the same way as Policy.Allow entries. The list is
// ephemeral and never persisted.
// All methods are thread-safe. The zero value is an empty list ready to use,
// and a nil *SessionAllowlist behaves as an empty list for reads.
type SessionAllowlist struct {
	mu      sync.RWMutex
	entries map[string]struct{}
	order   []string
}

// NewSessionAllowlist creates an empty SessionAllowlist.
func NewSessionAllowlist() *SessionAllowlist {
	return &SessionAllowlist{
		entries: make(map[string]struct{}),
	}
}

// Add records an approved command root or prefix.
func (s *SessionAllowlist) Add(entry string) error {
	e := normalizeEntry(entry)
	if e == "" {
		return ErrEmptyEntry
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		s.entries = make(map[string]struct{})
	}
	if _, ok := s.entries[e]; ok {
		return nil
	}
	s.entries[e] = struct{}{}
	s.order = append(s.order, e)
	return nil
}

// AddAll records every entry, stopping at the first empty one.
func (s *SessionAllowlist) AddAll(entries []string) error {
	for _, e := range entries {
		if err := s.Add(e); err != nil {
			return err
		}
	}
	return nil
}

// Contains reports whether entry was added verbatim (after normalization).
func (s *SessionAllowlist) Contains(entry string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[normalizeEntry(entry)]
	return ok
}

// Matches reports whether any entry covers the sub-command.
func (s *SessionAllowlist) Matches(sub string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.order {
		if matchesEntry(sub, e) {
			return true
		}
	}
	return false
}

// List returns the entries in insertion order.
func (s *SessionAllowlist) List() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// Len returns the number of entries.
func (s *SessionAllowlist) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Clear removes all entries.
func (s *SessionAllowlist) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]struct{})
	s.order = nil
}
