// Package queue owns the folders an operator has staged before a job exists
// for them. Entries are deduplicated twice: once on the raw trimmed input
// (cheap, no round-trip) and once on the server-resolved path, since two
// different raw inputs can denote the same folder.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kmg/ocrdesk/internal/api"
)

// Validation outcomes. These are local notices, never sent to the server.
var (
	ErrEmptyPath = errors.New("enter a folder path first")
	ErrDuplicate = errors.New("folder is already in the queue")
)

// StatsLookup resolves a folder and counts its supported images.
type StatsLookup interface {
	FolderStats(ctx context.Context, path string) (api.FolderStats, error)
}

// Persister saves the pending queue across console sessions. It is optional;
// a nil Persister leaves the queue purely in-memory.
type Persister interface {
	SavePending(entries []Entry) error
	LoadPending() ([]Entry, error)
}

// Entry is one staged folder. Path is the server-resolved canonical path and
// is unique within the queue (case-sensitive exact match). A zero-image
// folder is still staged, with Note explaining why it will produce nothing,
// so the operator can see and remove it rather than wonder where it went.
type Entry struct {
	Path       string
	ImageCount int
	Note       string
}

// Manager holds the pending queue. It is safe for concurrent use.
type Manager struct {
	lookup    StatsLookup
	persister Persister

	mu      sync.Mutex
	entries []Entry
}

// NewManager returns an empty queue. When persister is non-nil, previously
// staged folders are restored from it; restore failures are ignored (an
// empty queue is always a valid starting point).
func NewManager(lookup StatsLookup, persister Persister) *Manager {
	m := &Manager{lookup: lookup, persister: persister}
	if persister != nil {
		if entries, err := persister.LoadPending(); err == nil {
			m.entries = entries
		}
	}
	return m
}

// AddFolder validates, resolves and stages one folder. The returned notice
// is queue-scoped operator feedback; err is non-nil when nothing was staged.
func (m *Manager) AddFolder(ctx context.Context, raw string) (notice string, err error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		return "", ErrEmptyPath
	}

	m.mu.Lock()
	dup := m.containsLocked(normalized)
	m.mu.Unlock()
	if dup {
		return "", ErrDuplicate
	}

	stats, err := m.lookup.FolderStats(ctx, normalized)
	if err != nil {
		return "", fmt.Errorf("adding folder failed: %w", err)
	}
	resolved := stats.Path
	if resolved == "" {
		resolved = normalized
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Resolution may have revealed that this raw input names a folder that
	// is already staged under its canonical path.
	if m.containsLocked(resolved) {
		return "", ErrDuplicate
	}

	entry := Entry{Path: resolved, ImageCount: stats.ImageCount}
	if stats.ImageCount <= 0 {
		entry.Note = "no supported images (png/jpg/jpeg/webp)"
		notice = fmt.Sprintf("folder has no supported images: %s", resolved)
	} else {
		notice = fmt.Sprintf("folder added: %s (%d images)", resolved, stats.ImageCount)
	}
	m.entries = append(m.entries, entry)
	m.saveLocked()
	return notice, nil
}

// Entries returns a copy of the staged folders in insertion order.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Paths returns just the resolved paths, in insertion order. This is the
// folder list a job is created from.
func (m *Manager) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, len(m.entries))
	for i, e := range m.entries {
		paths[i] = e.Path
	}
	return paths
}

// Len reports how many folders are staged.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Clear empties the queue unconditionally.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.saveLocked()
}

func (m *Manager) containsLocked(path string) bool {
	for _, e := range m.entries {
		if e.Path == path {
			return true
		}
	}
	return false
}

func (m *Manager) saveLocked() {
	if m.persister == nil {
		return
	}
	// Persistence is convenience, not correctness; a failed save should not
	// undo a staging decision the operator already saw succeed.
	_ = m.persister.SavePending(m.entries)
}
