package storage

import (
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPendingFoldersRoundTrip(t *testing.T) {
	s := openTestStore(t)

	in := []PendingFolder{
		{Path: "/scans/a", ImageCount: 12},
		{Path: "/scans/b", ImageCount: 0, Note: "no supported images"},
	}
	if err := s.SavePendingFolders(in); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, err := s.LoadPendingFolders()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 folders, got %d", len(out))
	}
	if out[0].Path != "/scans/a" || out[1].Note != "no supported images" {
		t.Errorf("unexpected round trip: %+v", out)
	}
}

func TestSaveReplacesPreviousQueue(t *testing.T) {
	s := openTestStore(t)

	if err := s.SavePendingFolders([]PendingFolder{{Path: "/old"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SavePendingFolders(nil); err != nil {
		t.Fatal(err)
	}

	out, err := s.LoadPendingFolders()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("cleared queue should persist as empty, got %+v", out)
	}
}

func TestActionLogMostRecentFirst(t *testing.T) {
	s := openTestStore(t)

	for _, a := range []string{"jobs.create", "jobs.start", "jobs.stop"} {
		if err := s.RecordAction(a, "job-1"); err != nil {
			t.Fatalf("record %s: %v", a, err)
		}
	}

	actions, err := s.RecentActions(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected limit applied, got %d", len(actions))
	}
	if actions[0].Action != "jobs.stop" {
		t.Errorf("expected most recent first, got %q", actions[0].Action)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("re-running migrations should be a no-op: %v", err)
	}
}
