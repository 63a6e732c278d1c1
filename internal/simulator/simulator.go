// Package simulator is an in-process stand-in for the OCR manager: every
// console route, an event stream, and a crude pipeline that can be stepped
// forward. It backs `ocrdesk demo` and the end-to-end tests; the real
// manager, quota accounting and OCR engine live outside this repository.
package simulator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kmg/ocrdesk/internal/api"
)

// Simulator holds the fake manager's world. Safe for concurrent use.
type Simulator struct {
	mu          sync.Mutex
	credentials []api.Credential
	jobs        []api.Job
	folders     map[string]int
	pickQueue   []api.PickFolderResult
	links       api.ExternalLinks
	subscribers map[chan api.Event]struct{}
}

// New returns a simulator with one seeded active credential.
func New() *Simulator {
	return &Simulator{
		credentials: []api.Credential{{
			ID:                  "cred-demo-1",
			FileName:            "demo-key.json",
			ServiceAccountEmail: "ocr-demo@project.iam.gserviceaccount.com",
			CapUnits:            1000,
			UsedUnits:           120,
			RemainingUnits:      880,
			Status:              api.CredentialActive,
		}},
		folders: make(map[string]int),
		links: api.ExternalLinks{
			KeyCreationURL:   "https://console.cloud.example/iam/keys/new",
			KeyMonitoringURL: "https://console.cloud.example/apis/quotas",
		},
		subscribers: make(map[chan api.Event]struct{}),
	}
}

// RegisterFolder makes a folder known to the stats endpoint.
func (s *Simulator) RegisterFolder(path string, imageCount int) {
	s.mu.Lock()
	s.folders[filepath.Clean(path)] = imageCount
	s.mu.Unlock()
}

// QueuePickResult scripts the next native-dialog outcome.
func (s *Simulator) QueuePickResult(r api.PickFolderResult) {
	s.mu.Lock()
	s.pickQueue = append(s.pickQueue, r)
	s.mu.Unlock()
}

// Handler returns the HTTP surface of the fake manager.
func (s *Simulator) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/api/credentials", s.handleCredentials)
	r.Post("/api/credentials/scan", s.handleScan)
	r.Patch("/api/credentials/{id}/usage", s.handleAdjustUsage)
	r.Get("/api/jobs", s.handleJobs)
	r.Post("/api/jobs", s.handleCreateJob)
	r.Post("/api/jobs/{id}/start", s.handleStartJob)
	r.Post("/api/jobs/{id}/stop", s.handleStopJob)
	r.Get("/api/folders/stats", s.handleFolderStats)
	r.Post("/api/system/pick-folder", s.handlePickFolder)
	r.Get("/api/meta/external-links", s.handleLinks)
	r.Get("/api/events", s.handleEvents)

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": fmt.Sprintf(format, args...)})
}

func (s *Simulator) handleCredentials(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	creds := append([]api.Credential(nil), s.credentials...)
	s.mu.Unlock()
	writeJSON(w, creds)
}

func (s *Simulator) handleScan(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	creds := append([]api.Credential(nil), s.credentials...)
	s.mu.Unlock()
	s.Emit("CREDENTIALS_SCANNED", fmt.Sprintf("%d keys", len(creds)))
	writeJSON(w, creds)
}

func (s *Simulator) handleAdjustUsage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req api.UsageAdjustment
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UsedOverride < 0 {
		httpError(w, http.StatusBadRequest, "usedOverride must be >= 0")
		return
	}
	if req.Reason == "" {
		httpError(w, http.StatusBadRequest, "reason is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.credentials {
		if s.credentials[i].ID == id {
			s.credentials[i].UsedUnits = req.UsedOverride
			s.credentials[i].RemainingUnits = s.credentials[i].CapUnits - req.UsedOverride
			writeJSON(w, s.credentials[i])
			return
		}
	}
	httpError(w, http.StatusNotFound, "credential not found: %s", id)
}

func (s *Simulator) handleJobs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	jobs := append([]api.Job(nil), s.jobs...)
	s.mu.Unlock()
	writeJSON(w, jobs)
}

func (s *Simulator) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req api.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Folders) == 0 {
		httpError(w, http.StatusBadRequest, "folders must not be empty")
		return
	}
	if req.Parallelism < 1 || req.Parallelism > 8 {
		httpError(w, http.StatusBadRequest, "parallelism must be between 1 and 8")
		return
	}

	job := api.Job{
		ID:          uuid.NewString(),
		Strategy:    req.Strategy,
		Parallelism: req.Parallelism,
		Status:      api.JobPending,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		TotalItems:  len(req.Folders),
	}
	s.mu.Lock()
	for i, folder := range req.Folders {
		count := s.folders[filepath.Clean(folder)]
		job.Items = append(job.Items, api.Item{
			ID:         uuid.NewString(),
			QueueIndex: i,
			FolderPath: folder,
			ImageTotal: count,
			Status:     api.JobPending,
		})
	}
	// Most-recent-first, the ordering contract the client's derived views
	// depend on.
	s.jobs = append([]api.Job{job}, s.jobs...)
	s.mu.Unlock()

	s.Emit("JOB_CREATED", job.ID)
	writeJSON(w, api.CreateJobResponse{JobID: job.ID})
}

func (s *Simulator) handleStartJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	job := s.findJobLocked(id)
	if job == nil {
		s.mu.Unlock()
		httpError(w, http.StatusNotFound, "job not found: %s", id)
		return
	}
	if job.Status == api.JobPending {
		job.Status = api.JobRunning
		job.StartedAt = time.Now().UTC().Format(time.RFC3339)
		if len(job.Items) > 0 {
			job.Items[0].Status = api.JobRunning
			job.Items[0].StartedAt = job.StartedAt
		}
	}
	s.mu.Unlock()

	s.Emit("JOB_STARTED", id)
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Simulator) handleStopJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	job := s.findJobLocked(id)
	if job == nil {
		s.mu.Unlock()
		httpError(w, http.StatusNotFound, "job not found: %s", id)
		return
	}
	// Stopping a job that is no longer running is acknowledged, not
	// rejected; the operator may race the pipeline's own completion.
	if job.Status == api.JobRunning || job.Status == api.JobPending {
		job.Status = api.JobStopped
		job.StopReason = "operator request"
		job.EndedAt = time.Now().UTC().Format(time.RFC3339)
		for i := range job.Items {
			if job.Items[i].Status == api.JobRunning {
				job.Items[i].Status = api.JobStopped
			}
		}
	}
	s.mu.Unlock()

	s.Emit("JOB_STOPPED", id)
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Simulator) handleFolderStats(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		httpError(w, http.StatusBadRequest, "path is required")
		return
	}
	resolved := filepath.Clean(raw)

	s.mu.Lock()
	count, ok := s.folders[resolved]
	s.mu.Unlock()
	if !ok {
		httpError(w, http.StatusNotFound, "folder does not exist: %s", resolved)
		return
	}
	writeJSON(w, api.FolderStats{Path: resolved, ImageCount: count})
}

func (s *Simulator) handlePickFolder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	result := api.PickFolderResult{Cancelled: true, Message: "no folder selected"}
	if len(s.pickQueue) > 0 {
		result = s.pickQueue[0]
		s.pickQueue = s.pickQueue[1:]
	}
	s.mu.Unlock()
	writeJSON(w, result)
}

func (s *Simulator) handleLinks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	links := s.links
	s.mu.Unlock()
	writeJSON(w, links)
}

func (s *Simulator) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch := make(chan api.Event, 16)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subscribers, ch)
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// Emit broadcasts one event to every stream subscriber. Slow subscribers
// drop events rather than block the pipeline.
func (s *Simulator) Emit(eventType, message string) {
	evt := api.Event{Type: eventType, Message: message}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Advance steps the fake pipeline: one image of the running item completes,
// items roll over in queue order, and the job completes after the last one.
// The demo command calls this on a ticker.
func (s *Simulator) Advance() {
	s.mu.Lock()

	var progressed, finished string
	for j := range s.jobs {
		job := &s.jobs[j]
		if job.Status != api.JobRunning {
			continue
		}

		idx := -1
		for i := range job.Items {
			if job.Items[i].Status == api.JobRunning {
				idx = i
				break
			}
		}
		if idx == -1 {
			// Between folders: run the first pending item, if any.
			for i := range job.Items {
				if job.Items[i].Status == api.JobPending {
					job.Items[i].Status = api.JobRunning
					job.Items[i].StartedAt = time.Now().UTC().Format(time.RFC3339)
					idx = i
					break
				}
			}
		}
		if idx == -1 {
			job.Status = api.JobCompleted
			job.EndedAt = time.Now().UTC().Format(time.RFC3339)
			finished = job.ID
			break
		}

		item := &job.Items[idx]
		item.ImageDone++
		if item.ImageDone >= item.ImageTotal {
			item.Status = api.JobCompleted
			item.EndedAt = time.Now().UTC().Format(time.RFC3339)
			item.PdfPath = filepath.Join(item.FolderPath, "searchable.pdf")
			job.ProcessedItems++
			if job.ProcessedItems >= job.TotalItems {
				job.Status = api.JobCompleted
				job.EndedAt = item.EndedAt
				finished = job.ID
			}
		}
		progressed = job.ID
		break
	}
	s.mu.Unlock()

	if finished != "" {
		s.Emit("JOB_COMPLETED", finished)
	} else if progressed != "" {
		s.Emit("JOB_PROGRESS", progressed)
	}
}

func (s *Simulator) findJobLocked(id string) *api.Job {
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			return &s.jobs[i]
		}
	}
	return nil
}
