// Package console coordinates operator actions against the manager and owns
// the session's presentation state. Every mutation goes through the server
// and is followed by a reconcile, so the store never holds speculative data;
// the only client-owned state is the pending folder queue and the form
// fields kept in Session.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/kmg/ocrdesk/internal/api"
	"github.com/kmg/ocrdesk/internal/queue"
	"github.com/kmg/ocrdesk/internal/state"
)

// Local precondition failures. These never reach the server.
var (
	ErrInvalidOverride = errors.New("override must be a non-negative number")
	ErrMissingReason   = errors.New("a justification is required for usage correction")
	ErrEmptyQueue      = errors.New("no folders in the queue")
)

// Tabs of the console, in presentation order.
var Tabs = []string{"dashboard", "credentials", "queue", "history"}

// Session is the serializable presentation state: which tab is open and what
// the job-creation form currently holds. It replaces the original UI's
// ad-hoc globals with one explicit struct.
type Session struct {
	Tab          string
	ManualPath   string
	Strategy     string
	Parallelism  int
	CreatedJobID string
}

// Backend is the slice of the transport adapter the coordinator acts
// through.
type Backend interface {
	ScanCredentials(ctx context.Context) ([]api.Credential, error)
	AdjustUsage(ctx context.Context, id string, adj api.UsageAdjustment) error
	CreateJob(ctx context.Context, req api.CreateJobRequest) (string, error)
	StartJob(ctx context.Context, id string) error
	StopJob(ctx context.Context, id string) error
	PickFolder(ctx context.Context) (api.PickFolderResult, error)
}

// Auditor records operator actions for the local audit trail. Optional.
type Auditor interface {
	RecordAction(action, detail string) error
}

// Controller executes user-triggered operations and routes their outcomes:
// transport failures land in one global last-error-wins slot, queue-scoped
// outcomes in a separate notice so they never clobber unrelated errors.
type Controller struct {
	backend Backend
	store   *state.Store
	queue   *queue.Manager
	audit   Auditor
	logger  *slog.Logger

	mu          sync.Mutex
	session     Session
	lastError   string
	queueNotice string
}

// NewController wires the coordinator. audit may be nil.
func NewController(backend Backend, store *state.Store, q *queue.Manager, audit Auditor, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		backend: backend,
		store:   store,
		queue:   q,
		audit:   audit,
		logger:  logger,
		session: Session{
			Tab:         Tabs[0],
			Strategy:    api.StrategyMaxRemaining,
			Parallelism: 2,
		},
	}
}

// ValidateUsageOverride checks an adjustment before anything is sent: the
// override must parse to a finite non-negative number and the reason must be
// non-empty. Pure, so the gate is testable without any UI or transport.
func ValidateUsageOverride(rawValue, reason string) (int, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(rawValue), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) || v < 0 {
		return 0, ErrInvalidOverride
	}
	if strings.TrimSpace(reason) == "" {
		return 0, ErrMissingReason
	}
	return int(v), nil
}

// ClampParallelism folds arbitrary form input into the presented range
// [1,8], defaulting to 2 when unparsable.
func ClampParallelism(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n == 0 {
		return 2
	}
	return clampParallelism(n)
}

func clampParallelism(n int) int {
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}

// ScanCredentials triggers server-side key discovery and installs the
// post-scan list.
func (c *Controller) ScanCredentials(ctx context.Context) error {
	creds, err := c.backend.ScanCredentials(ctx)
	if err != nil {
		c.setError(err)
		return err
	}
	c.store.ReplaceCredentials(creds)
	c.store.Log("Credentials scanned")
	c.recordAction("credentials.scan", fmt.Sprintf("%d keys", len(creds)))
	return nil
}

// AdjustUsage submits a used-units correction after the local validation
// gate, then re-fetches credentials so the displayed value is the server's,
// not an optimistic local guess.
func (c *Controller) AdjustUsage(ctx context.Context, id, rawValue, reason string) error {
	used, err := ValidateUsageOverride(rawValue, reason)
	if err != nil {
		return err
	}

	if err := c.backend.AdjustUsage(ctx, id, api.UsageAdjustment{UsedOverride: used, Reason: reason}); err != nil {
		c.setError(err)
		return err
	}
	if err := c.store.ReconcileCredentials(ctx); err != nil {
		c.logger.Warn("post-adjust credential refresh failed", "error", err)
	}
	c.store.Log("Usage adjusted: %s", id)
	c.recordAction("credentials.adjust", fmt.Sprintf("%s used=%d reason=%s", id, used, reason))
	return nil
}

// AddFolder stages a folder through the queue manager; all outcomes land in
// the queue-scoped notice.
func (c *Controller) AddFolder(ctx context.Context, raw string) error {
	notice, err := c.queue.AddFolder(ctx, raw)
	if err != nil {
		c.setQueueNotice(err.Error())
		return err
	}
	c.setQueueNotice(notice)
	c.store.Log("%s", notice)
	c.mu.Lock()
	c.session.ManualPath = ""
	c.mu.Unlock()
	return nil
}

// PickFolder runs the host-side dialog and stages the chosen folder. A
// cancelled dialog is a queue notice, not an error.
func (c *Controller) PickFolder(ctx context.Context) error {
	result, err := c.backend.PickFolder(ctx)
	if err != nil {
		c.setError(err)
		return err
	}
	if result.Cancelled || result.Path == "" {
		msg := result.Message
		if msg == "" {
			msg = "folder selection cancelled"
		}
		c.setQueueNotice(msg)
		c.store.Log("%s", msg)
		return nil
	}
	return c.AddFolder(ctx, result.Path)
}

// ClearQueue drops every staged folder. Already-created jobs are untouched;
// the server owns those.
func (c *Controller) ClearQueue() {
	c.queue.Clear()
	c.setQueueNotice("queue cleared")
}

// CreateJob submits the staged folders as a new job. On success the pending
// queue is discarded (the server owns the folders from here on) and jobs are
// re-fetched; with autoStart the job is started immediately.
func (c *Controller) CreateJob(ctx context.Context, autoStart bool) (string, error) {
	folders := c.queue.Paths()
	if len(folders) == 0 {
		return "", ErrEmptyQueue
	}

	c.mu.Lock()
	req := api.CreateJobRequest{
		Folders:     folders,
		Strategy:    c.session.Strategy,
		Parallelism: c.session.Parallelism,
	}
	c.mu.Unlock()
	req.Parallelism = clampParallelism(req.Parallelism)

	jobID, err := c.backend.CreateJob(ctx, req)
	if err != nil {
		c.setError(err)
		return "", err
	}

	c.mu.Lock()
	c.session.CreatedJobID = jobID
	c.mu.Unlock()
	c.queue.Clear()
	c.store.Log("Job created: %s", jobID)
	c.recordAction("jobs.create", fmt.Sprintf("%s folders=%d strategy=%s", jobID, len(folders), req.Strategy))

	if err := c.store.ReconcileJobs(ctx); err != nil {
		c.logger.Warn("post-create job refresh failed", "error", err)
	}

	if autoStart {
		if err := c.StartJob(ctx, jobID); err != nil {
			return jobID, err
		}
	}
	return jobID, nil
}

// StartJob asks the scheduler to run a job. A blank id is a no-op. Jobs are
// re-fetched afterward regardless of outcome so the display shows the
// server's authoritative post-action state.
func (c *Controller) StartJob(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	err := c.backend.StartJob(ctx, id)
	if err != nil {
		c.setError(err)
	} else {
		c.store.Log("Job started: %s", id)
		c.recordAction("jobs.start", id)
	}
	if rerr := c.store.ReconcileJobs(ctx); rerr != nil {
		c.logger.Warn("post-start job refresh failed", "error", rerr)
	}
	return err
}

// StopJob asks the scheduler to stop a job. Safe to repeat; stopping a job
// that is no longer running is the server's call to reject or ignore.
func (c *Controller) StopJob(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	err := c.backend.StopJob(ctx, id)
	if err != nil {
		c.setError(err)
	} else {
		c.store.Log("Stop requested: %s", id)
		c.recordAction("jobs.stop", id)
	}
	if rerr := c.store.ReconcileJobs(ctx); rerr != nil {
		c.logger.Warn("post-stop job refresh failed", "error", rerr)
	}
	return err
}

// Session returns a copy of the presentation state.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SetTab switches the active tab; unknown names are ignored.
func (c *Controller) SetTab(tab string) {
	for _, t := range Tabs {
		if t == tab {
			c.mu.Lock()
			c.session.Tab = tab
			c.mu.Unlock()
			return
		}
	}
}

// SetJobForm updates the job-creation form fields, clamping parallelism.
func (c *Controller) SetJobForm(strategy, parallelism string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range api.Strategies {
		if s == strategy {
			c.session.Strategy = strategy
			break
		}
	}
	c.session.Parallelism = ClampParallelism(parallelism)
}

// LastError returns the global error slot (last action failure wins).
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// ClearError empties the global error slot.
func (c *Controller) ClearError() {
	c.mu.Lock()
	c.lastError = ""
	c.mu.Unlock()
}

// QueueNotice returns the queue-scoped notice.
func (c *Controller) QueueNotice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueNotice
}

func (c *Controller) setError(err error) {
	c.mu.Lock()
	c.lastError = err.Error()
	c.mu.Unlock()
}

func (c *Controller) setQueueNotice(msg string) {
	c.mu.Lock()
	c.queueNotice = msg
	c.mu.Unlock()
}

func (c *Controller) recordAction(action, detail string) {
	if c.audit == nil {
		return
	}
	if err := c.audit.RecordAction(action, detail); err != nil {
		c.logger.Warn("recording action failed", "action", action, "error", err)
	}
}
