// Package state holds the console's canonical view of the server's world:
// credentials, jobs and the external-links metadata. The server is the sole
// authority; every refresh replaces a whole collection with the latest fetch
// (last-write-wins per collection) instead of merging deltas, which keeps
// overlapping stream- and poll-triggered refreshes convergent without locks
// beyond a snapshot mutex.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kmg/ocrdesk/internal/api"
)

// Fetcher is the slice of the transport adapter the store needs.
type Fetcher interface {
	Credentials(ctx context.Context) ([]api.Credential, error)
	Jobs(ctx context.Context) ([]api.Job, error)
	ExternalLinks(ctx context.Context) (api.ExternalLinks, error)
}

// LogEntry is one operator-facing trace line.
type LogEntry struct {
	Message string
	At      time.Time
}

// logCap bounds the ring; entries beyond it fall off the old end.
const logCap = 80

// Store is the single source of truth on the client side. The stream
// listener and the poll scheduler both write to it; derived views and the
// action coordinator read from it.
type Store struct {
	fetcher Fetcher
	logger  *slog.Logger
	group   singleflight.Group

	mu          sync.RWMutex
	credentials []api.Credential
	jobs        []api.Job
	links       *api.ExternalLinks
	logs        []LogEntry
	lastSync    time.Time
}

// New returns an empty store backed by f.
func New(f Fetcher, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{fetcher: f, logger: logger}
}

// ReconcileCredentials replaces the credential collection with a fresh
// fetch. Concurrent calls are coalesced into one request.
func (s *Store) ReconcileCredentials(ctx context.Context) error {
	_, err, _ := s.group.Do("credentials", func() (any, error) {
		creds, err := s.fetcher.Credentials(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching credentials: %w", err)
		}
		s.mu.Lock()
		s.credentials = creds
		s.lastSync = time.Now()
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

// ReconcileJobs replaces the job collection with a fresh fetch.
func (s *Store) ReconcileJobs(ctx context.Context) error {
	_, err, _ := s.group.Do("jobs", func() (any, error) {
		jobs, err := s.fetcher.Jobs(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching jobs: %w", err)
		}
		s.mu.Lock()
		s.jobs = jobs
		s.lastSync = time.Now()
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

// ReconcileLinks refreshes the external-links metadata.
func (s *Store) ReconcileLinks(ctx context.Context) error {
	_, err, _ := s.group.Do("links", func() (any, error) {
		links, err := s.fetcher.ExternalLinks(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching external links: %w", err)
		}
		s.mu.Lock()
		s.links = &links
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

// ReplaceCredentials installs a server-confirmed credential list directly,
// bypassing a fetch. Used by the scan action, whose response body is already
// the post-sync collection.
func (s *Store) ReplaceCredentials(creds []api.Credential) {
	s.mu.Lock()
	s.credentials = creds
	s.lastSync = time.Now()
	s.mu.Unlock()
}

// ReconcileAll refreshes every collection concurrently. Collections that
// succeed stay applied even when another fails; the first failure is
// returned so the caller can surface it.
func (s *Store) ReconcileAll(ctx context.Context) error {
	// Deliberately not errgroup.WithContext: one collection failing must
	// not cancel the fetches that are about to succeed.
	var g errgroup.Group
	g.Go(func() error { return s.ReconcileCredentials(ctx) })
	g.Go(func() error { return s.ReconcileJobs(ctx) })
	g.Go(func() error { return s.ReconcileLinks(ctx) })
	return g.Wait()
}

// ReconcileActive refreshes the two collections the stream and the poller
// care about: jobs and credentials. Link metadata is static per session.
func (s *Store) ReconcileActive(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return s.ReconcileJobs(ctx) })
	g.Go(func() error { return s.ReconcileCredentials(ctx) })
	return g.Wait()
}

// Snapshot returns a point-in-time copy of the reconciled state. The slices
// are shared with the store; callers must treat them as read-only.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Credentials: s.credentials,
		Jobs:        s.jobs,
		Links:       s.links,
		LastSync:    s.lastSync,
	}
}

// Log prepends a trace line, keeping the most recent logCap entries.
func (s *Store) Log(format string, args ...any) {
	entry := LogEntry{Message: fmt.Sprintf(format, args...), At: time.Now()}
	s.mu.Lock()
	s.logs = append([]LogEntry{entry}, s.logs...)
	if len(s.logs) > logCap {
		s.logs = s.logs[:logCap]
	}
	s.mu.Unlock()
	s.logger.Debug("console log", "message", entry.Message)
}

// Logs returns the trace ring, most recent first.
func (s *Store) Logs() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}
