// Package usecase contains the app-lock business logic: the locked-package
// registry, the overlay presenter and the foreground-switch monitor.
package usecase

import (
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// MaxPackageIDLength bounds a package identifier.
const MaxPackageIDLength = 255

// LockedSet is the set of package identifiers that must be obscured.
// Writers replace the whole set; readers on any goroutine see either the
// old or the new set, never a mix.
type LockedSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewLockedSet creates a set seeded with ids.
func NewLockedSet(ids ...string) *LockedSet {
	s := &LockedSet{}
	s.ReplaceAll(ids)
	return s
}

// ReplaceAll clears the set and repopulates it from ids.
func (s *LockedSet) ReplaceAll(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}

	s.mu.Lock()
	s.ids = next
	s.mu.Unlock()
}

// Contains reports whether id is locked.
func (s *LockedSet) Contains(id string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Snapshot returns the identifiers, sorted.
func (s *LockedSet) Snapshot() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	s.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Len returns the number of locked identifiers.
func (s *LockedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// ValidPackageID reports whether id is usable as a package identifier:
// non-empty, valid UTF-8, bounded, with no whitespace or control characters.
func ValidPackageID(id string) bool {
	if id == "" || len(id) > MaxPackageIDLength || !utf8.ValidString(id) {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) < 0
}
