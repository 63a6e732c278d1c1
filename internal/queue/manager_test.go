package queue

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kmg/ocrdesk/internal/api"
)

type fakeLookup struct {
	calls   int
	resolve func(path string) (api.FolderStats, error)
}

func (f *fakeLookup) FolderStats(ctx context.Context, path string) (api.FolderStats, error) {
	f.calls++
	if f.resolve != nil {
		return f.resolve(path)
	}
	return api.FolderStats{Path: path, ImageCount: 3}, nil
}

var ctx = context.Background()

func TestAddFolderStagesResolvedPath(t *testing.T) {
	lookup := &fakeLookup{resolve: func(path string) (api.FolderStats, error) {
		return api.FolderStats{Path: "/resolved" + path, ImageCount: 7}, nil
	}}
	m := NewManager(lookup, nil)

	notice, err := m.AddFolder(ctx, "  /scans/a  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(notice, "/resolved/scans/a") || !strings.Contains(notice, "7 images") {
		t.Errorf("notice should name the resolved path and count, got %q", notice)
	}

	entries := m.Entries()
	if len(entries) != 1 || entries[0].Path != "/resolved/scans/a" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestAddFolderRejectsEmptyPath(t *testing.T) {
	lookup := &fakeLookup{}
	m := NewManager(lookup, nil)

	if _, err := m.AddFolder(ctx, "   "); !errors.Is(err, ErrEmptyPath) {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
	if lookup.calls != 0 {
		t.Errorf("empty path must not reach the server, got %d calls", lookup.calls)
	}
}

func TestAddFolderRejectsRawDuplicateWithoutServerCall(t *testing.T) {
	lookup := &fakeLookup{}
	m := NewManager(lookup, nil)

	if _, err := m.AddFolder(ctx, "/scans/a"); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	callsAfterFirst := lookup.calls

	if _, err := m.AddFolder(ctx, "/scans/a"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if lookup.calls != callsAfterFirst {
		t.Errorf("raw duplicate must be rejected before the stats call")
	}
}

func TestAddFolderRejectsResolvedDuplicateAfterOneStatsCall(t *testing.T) {
	// Two distinct raw inputs resolving to the same canonical folder.
	lookup := &fakeLookup{resolve: func(path string) (api.FolderStats, error) {
		return api.FolderStats{Path: "/canonical", ImageCount: 2}, nil
	}}
	m := NewManager(lookup, nil)

	if _, err := m.AddFolder(ctx, "/scans/link-a"); err != nil {
		t.Fatalf("first add failed: %v", err)
	}

	lookup.calls = 0
	if _, err := m.AddFolder(ctx, "/scans/link-b"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if lookup.calls != 1 {
		t.Errorf("resolved duplicate should cost exactly one stats call, got %d", lookup.calls)
	}
	if m.Len() != 1 {
		t.Errorf("queue should be unchanged, got %d entries", m.Len())
	}
}

func TestAddFolderWithZeroImagesIsStagedWithNote(t *testing.T) {
	lookup := &fakeLookup{resolve: func(path string) (api.FolderStats, error) {
		return api.FolderStats{Path: path, ImageCount: 0}, nil
	}}
	m := NewManager(lookup, nil)

	notice, err := m.AddFolder(ctx, "/scans/empty")
	if err != nil {
		t.Fatalf("zero-image folder should still stage: %v", err)
	}
	if !strings.Contains(notice, "no supported images") {
		t.Errorf("notice should flag the empty folder, got %q", notice)
	}

	entries := m.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected the folder staged, got %d entries", len(entries))
	}
	if entries[0].Note == "" {
		t.Error("staged empty folder should carry an explanatory note")
	}
}

func TestAddFolderLookupFailureLeavesQueueUnchanged(t *testing.T) {
	lookup := &fakeLookup{resolve: func(path string) (api.FolderStats, error) {
		return api.FolderStats{}, errors.New("folder does not exist")
	}}
	m := NewManager(lookup, nil)

	if _, err := m.AddFolder(ctx, "/nope"); err == nil {
		t.Fatal("expected lookup failure to surface")
	}
	if m.Len() != 0 {
		t.Errorf("failed add must not stage anything, got %d entries", m.Len())
	}
}

func TestClearEmptiesQueue(t *testing.T) {
	m := NewManager(&fakeLookup{}, nil)
	for _, p := range []string{"/a", "/b", "/c"} {
		if _, err := m.AddFolder(ctx, p); err != nil {
			t.Fatalf("add %s: %v", p, err)
		}
	}
	if m.Len() != 3 {
		t.Fatalf("expected 3 staged folders, got %d", m.Len())
	}

	m.Clear()
	if m.Len() != 0 {
		t.Errorf("Clear should empty the queue, got %d entries", m.Len())
	}
	if len(m.Paths()) != 0 {
		t.Errorf("Paths should be empty after Clear")
	}
}

type memPersister struct {
	saved []Entry
}

func (p *memPersister) SavePending(entries []Entry) error {
	p.saved = append([]Entry(nil), entries...)
	return nil
}

func (p *memPersister) LoadPending() ([]Entry, error) {
	return append([]Entry(nil), p.saved...), nil
}

func TestQueueRestoresFromPersister(t *testing.T) {
	p := &memPersister{}
	m := NewManager(&fakeLookup{}, p)

	if _, err := m.AddFolder(ctx, "/a"); err != nil {
		t.Fatalf("add: %v", err)
	}

	restored := NewManager(&fakeLookup{}, p)
	if restored.Len() != 1 || restored.Paths()[0] != "/a" {
		t.Errorf("expected queue restored from persister, got %+v", restored.Entries())
	}
}
