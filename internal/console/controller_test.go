package console

import (
	"context"
	"errors"
	"testing"

	"github.com/kmg/ocrdesk/internal/api"
	"github.com/kmg/ocrdesk/internal/queue"
	"github.com/kmg/ocrdesk/internal/state"
)

type fakeBackend struct {
	creds []api.Credential
	jobs  []api.Job

	adjustments []api.UsageAdjustment
	created     []api.CreateJobRequest
	started     []string
	stopped     []string

	scanErr   error
	adjustErr error
	createErr error
	startErr  error
	pick      api.PickFolderResult
}

func (f *fakeBackend) ScanCredentials(ctx context.Context) ([]api.Credential, error) {
	return f.creds, f.scanErr
}

func (f *fakeBackend) AdjustUsage(ctx context.Context, id string, adj api.UsageAdjustment) error {
	if f.adjustErr != nil {
		return f.adjustErr
	}
	f.adjustments = append(f.adjustments, adj)
	return nil
}

func (f *fakeBackend) CreateJob(ctx context.Context, req api.CreateJobRequest) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, req)
	return "job-1", nil
}

func (f *fakeBackend) StartJob(ctx context.Context, id string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, id)
	return nil
}

func (f *fakeBackend) StopJob(ctx context.Context, id string) error {
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeBackend) PickFolder(ctx context.Context) (api.PickFolderResult, error) {
	return f.pick, nil
}

// Fetcher side for the store; jobs/credentials come from the same fake.
func (f *fakeBackend) Credentials(ctx context.Context) ([]api.Credential, error) {
	return f.creds, nil
}

func (f *fakeBackend) Jobs(ctx context.Context) ([]api.Job, error) {
	return f.jobs, nil
}

func (f *fakeBackend) ExternalLinks(ctx context.Context) (api.ExternalLinks, error) {
	return api.ExternalLinks{}, nil
}

func (f *fakeBackend) FolderStats(ctx context.Context, path string) (api.FolderStats, error) {
	return api.FolderStats{Path: path, ImageCount: 4}, nil
}

var ctx = context.Background()

func newController(f *fakeBackend) (*Controller, *state.Store, *queue.Manager) {
	store := state.New(f, nil)
	q := queue.NewManager(f, nil)
	return NewController(f, store, q, nil, nil), store, q
}

func TestValidateUsageOverride(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		reason  string
		want    int
		wantErr error
	}{
		{"valid", "120", "audit", 120, nil},
		{"valid float truncates", "120.9", "audit", 120, nil},
		{"zero is allowed", "0", "reset", 0, nil},
		{"negative", "-1", "audit", 0, ErrInvalidOverride},
		{"not a number", "abc", "audit", 0, ErrInvalidOverride},
		{"empty value", "", "audit", 0, ErrInvalidOverride},
		{"infinite", "+Inf", "audit", 0, ErrInvalidOverride},
		{"missing reason", "5", "  ", 0, ErrMissingReason},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateUsageOverride(tt.value, tt.reason)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("value = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAdjustUsageNeverSendsInvalidInput(t *testing.T) {
	f := &fakeBackend{}
	c, _, _ := newController(f)

	for _, in := range [][2]string{{"-5", "reason"}, {"NaN", "reason"}, {"10", ""}} {
		if err := c.AdjustUsage(ctx, "cred-1", in[0], in[1]); err == nil {
			t.Errorf("expected validation error for %v", in)
		}
	}
	if len(f.adjustments) != 0 {
		t.Fatalf("invalid input must never reach the server, got %d requests", len(f.adjustments))
	}
}

func TestAdjustUsageSubmitsAndRefreshes(t *testing.T) {
	f := &fakeBackend{creds: []api.Credential{{ID: "cred-1", UsedUnits: 42}}}
	c, store, _ := newController(f)

	if err := c.AdjustUsage(ctx, "cred-1", "42", "counter drift"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.adjustments) != 1 || f.adjustments[0].UsedOverride != 42 {
		t.Fatalf("unexpected adjustments: %+v", f.adjustments)
	}
	// The corrected value comes back from the server, not a local guess.
	if got := store.Snapshot().Credentials[0].UsedUnits; got != 42 {
		t.Errorf("expected refreshed credentials, got used=%d", got)
	}
}

func TestClampParallelism(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"3", 3},
		{"0", 2},
		{"", 2},
		{"garbage", 2},
		{"-4", 1},
		{"99", 8},
		{"8", 8},
		{"1", 1},
	}
	for _, tt := range tests {
		if got := ClampParallelism(tt.raw); got != tt.want {
			t.Errorf("ClampParallelism(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestCreateJobRequiresFolders(t *testing.T) {
	f := &fakeBackend{}
	c, _, _ := newController(f)

	if _, err := c.CreateJob(ctx, false); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("expected ErrEmptyQueue, got %v", err)
	}
	if len(f.created) != 0 {
		t.Error("empty queue must not produce a create request")
	}
}

func TestCreateJobSubmitsQueueAndDiscardsIt(t *testing.T) {
	f := &fakeBackend{}
	c, _, q := newController(f)

	for _, p := range []string{"/a", "/b"} {
		if err := c.AddFolder(ctx, p); err != nil {
			t.Fatalf("add %s: %v", p, err)
		}
	}
	c.SetJobForm(api.StrategyRoundRobin, "3")

	jobID, err := c.CreateJob(ctx, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobID != "job-1" {
		t.Errorf("jobID = %q", jobID)
	}

	req := f.created[0]
	if len(req.Folders) != 2 || req.Strategy != api.StrategyRoundRobin || req.Parallelism != 3 {
		t.Errorf("unexpected request: %+v", req)
	}
	// The server owns these folders now; the pending queue is discarded.
	if q.Len() != 0 {
		t.Errorf("queue should be discarded after job creation, got %d entries", q.Len())
	}
	if c.Session().CreatedJobID != "job-1" {
		t.Errorf("session should remember the created job")
	}
}

func TestCreateJobAutoStart(t *testing.T) {
	f := &fakeBackend{}
	c, _, _ := newController(f)
	if err := c.AddFolder(ctx, "/a"); err != nil {
		t.Fatal(err)
	}

	if _, err := c.CreateJob(ctx, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.started) != 1 || f.started[0] != "job-1" {
		t.Errorf("autoStart should start the created job, got %v", f.started)
	}
}

func TestStartStopBlankIDIsNoOp(t *testing.T) {
	f := &fakeBackend{}
	c, _, _ := newController(f)

	if err := c.StartJob(ctx, ""); err != nil {
		t.Errorf("blank start should be a no-op, got %v", err)
	}
	if err := c.StopJob(ctx, ""); err != nil {
		t.Errorf("blank stop should be a no-op, got %v", err)
	}
	if len(f.started)+len(f.stopped) != 0 {
		t.Error("no requests expected for blank ids")
	}
}

func TestActionFailurePopulatesGlobalErrorSlot(t *testing.T) {
	f := &fakeBackend{scanErr: errors.New("scanner offline")}
	c, _, _ := newController(f)

	if err := c.ScanCredentials(ctx); err == nil {
		t.Fatal("expected scan failure")
	}
	if c.LastError() != "scanner offline" {
		t.Errorf("LastError() = %q", c.LastError())
	}

	// Last error wins.
	f.scanErr = errors.New("still offline")
	c.ScanCredentials(ctx)
	if c.LastError() != "still offline" {
		t.Errorf("expected last error to win, got %q", c.LastError())
	}

	c.ClearError()
	if c.LastError() != "" {
		t.Error("ClearError should empty the slot")
	}
}

func TestQueueNoticeDoesNotClobberGlobalError(t *testing.T) {
	f := &fakeBackend{startErr: errors.New("cannot start")}
	c, _, _ := newController(f)

	c.StartJob(ctx, "job-1")
	c.AddFolder(ctx, "   ")

	if c.LastError() != "cannot start" {
		t.Errorf("queue validation must not touch the global slot, got %q", c.LastError())
	}
	if c.QueueNotice() == "" {
		t.Error("expected a queue-scoped notice")
	}
}

func TestPickFolderCancelledIsNotice(t *testing.T) {
	f := &fakeBackend{pick: api.PickFolderResult{Cancelled: true, Message: "dialog dismissed"}}
	c, _, q := newController(f)

	if err := c.PickFolder(ctx); err != nil {
		t.Fatalf("cancel is not an error: %v", err)
	}
	if c.QueueNotice() != "dialog dismissed" {
		t.Errorf("QueueNotice() = %q", c.QueueNotice())
	}
	if q.Len() != 0 {
		t.Error("cancelled pick must stage nothing")
	}
}

func TestPickFolderStagesChosenPath(t *testing.T) {
	f := &fakeBackend{pick: api.PickFolderResult{Path: "/scans/chosen"}}
	c, _, q := newController(f)

	if err := c.PickFolder(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Len() != 1 || q.Paths()[0] != "/scans/chosen" {
		t.Errorf("expected chosen folder staged, got %v", q.Paths())
	}
}

func TestSetTabIgnoresUnknown(t *testing.T) {
	c, _, _ := newController(&fakeBackend{})

	c.SetTab("queue")
	if c.Session().Tab != "queue" {
		t.Errorf("Tab = %q", c.Session().Tab)
	}
	c.SetTab("bogus")
	if c.Session().Tab != "queue" {
		t.Errorf("unknown tab should be ignored, got %q", c.Session().Tab)
	}
}
