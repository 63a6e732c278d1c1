package api

// Enumerations mirror the server's values verbatim; the client never invents
// states of its own.
const (
	JobPending   = "PENDING"
	JobRunning   = "RUNNING"
	JobCompleted = "COMPLETED"
	JobFailed    = "FAILED"
	JobStopped   = "STOPPED"
)

const (
	CredentialActive    = "ACTIVE"
	CredentialExhausted = "EXHAUSTED"
	CredentialDisabled  = "DISABLED"
)

// Strategy labels are opaque to the client; the scheduler defines their
// semantics.
const (
	StrategyMaxRemaining  = "MAX_REMAINING"
	StrategyRoundRobin    = "ROUND_ROBIN"
	StrategyFilenameOrder = "FILENAME_ORDER"
)

// Strategies lists the labels the server accepts, in presentation order.
var Strategies = []string{StrategyMaxRemaining, StrategyRoundRobin, StrategyFilenameOrder}

// Credential is one OCR service-account key with its usage quota.
// RemainingUnits is computed server-side; the client treats it as
// authoritative and never recomputes it from cap and used.
type Credential struct {
	ID                  string `json:"id"`
	FileName            string `json:"fileName"`
	FilePath            string `json:"filePath"`
	AccountLabel        string `json:"accountLabel"`
	ProjectID           string `json:"projectId"`
	ServiceAccountEmail string `json:"serviceAccountEmail"`
	CapUnits            int    `json:"capUnits"`
	UsedUnits           int    `json:"usedUnits"`
	RemainingUnits      int    `json:"remainingUnits"`
	PeriodPt            string `json:"periodPt"`
	ResetAt             string `json:"resetAt"`
	Status              string `json:"status"`
}

// Job is one batch run over an ordered list of folders.
type Job struct {
	ID                  string `json:"id"`
	Strategy            string `json:"strategy"`
	Parallelism         int    `json:"parallelism"`
	Status              string `json:"status"`
	CreatedAt           string `json:"createdAt"`
	StartedAt           string `json:"startedAt"`
	EndedAt             string `json:"endedAt"`
	StopReason          string `json:"stopReason"`
	TotalItems          int    `json:"totalItems"`
	ProcessedItems      int    `json:"processedItems"`
	CurrentCredentialID string `json:"currentCredentialId"`
	LastError           string `json:"lastError"`
	Items               []Item `json:"items"`
}

// Item is one folder's processing record within a Job. QueueIndex is the
// 0-based position in the job's processing order and is contiguous within
// the job.
type Item struct {
	ID          string `json:"id"`
	QueueIndex  int    `json:"queueIndex"`
	FolderPath  string `json:"folderPath"`
	ImageTotal  int    `json:"imageTotal"`
	ImageDone   int    `json:"imageDone"`
	Status      string `json:"status"`
	PdfPath     string `json:"pdfPath"`
	ErrorReason string `json:"errorReason"`
	StartedAt   string `json:"startedAt"`
	EndedAt     string `json:"endedAt"`
}

// FolderStats is the server's verdict on a candidate folder: its resolved
// canonical path and how many supported images it contains.
type FolderStats struct {
	Path       string `json:"path"`
	ImageCount int    `json:"imageCount"`
}

// PickFolderResult reports the outcome of the host-side folder dialog.
type PickFolderResult struct {
	Path      string `json:"path"`
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
}

// ExternalLinks are cloud-console shortcuts surfaced in the UI.
type ExternalLinks struct {
	KeyCreationURL   string `json:"keyCreationUrl"`
	KeyMonitoringURL string `json:"keyMonitoringUrl"`
}

// CreateJobRequest is the payload for POST /api/jobs.
type CreateJobRequest struct {
	Folders     []string `json:"folders"`
	Strategy    string   `json:"strategy"`
	Parallelism int      `json:"parallelism"`
}

// CreateJobResponse carries the id of a freshly created job.
type CreateJobResponse struct {
	JobID string `json:"jobId"`
}

// UsageAdjustment is the payload for PATCH /api/credentials/{id}/usage.
type UsageAdjustment struct {
	UsedOverride int    `json:"usedOverride"`
	Reason       string `json:"reason"`
}

// Event is one server-push notification. The stream carries no differential
// data; any message, whatever its type, is a signal to re-fetch.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
