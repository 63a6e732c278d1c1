package state

import (
	"fmt"
	"time"

	"github.com/kmg/ocrdesk/internal/api"
)

// NoData is the placeholder shown when a derived view has no operand. It is
// always preferred over a numeric artifact like "0/0" or a negative index.
const NoData = "-"

// Snapshot is a read-only view of the store at one point in time. All
// derived values are plain functions over it, recomputed on every call, so
// there is no cache to invalidate.
type Snapshot struct {
	Credentials []api.Credential
	Jobs        []api.Job
	Links       *api.ExternalLinks
	LastSync    time.Time
}

// RunningJob returns the first job the server reports as RUNNING, or nil.
// "First" means first in server-returned order; the client never re-sorts.
// The server lists jobs most-recent-first.
func (s Snapshot) RunningJob() *api.Job {
	for i := range s.Jobs {
		if s.Jobs[i].Status == api.JobRunning {
			return &s.Jobs[i]
		}
	}
	return nil
}

// LatestCompletedJob returns the first COMPLETED job in server order, or nil.
func (s Snapshot) LatestCompletedJob() *api.Job {
	for i := range s.Jobs {
		if s.Jobs[i].Status == api.JobCompleted {
			return &s.Jobs[i]
		}
	}
	return nil
}

// RunningItem returns the running job's currently processing item, or nil.
func (s Snapshot) RunningItem() *api.Item {
	job := s.RunningJob()
	if job == nil {
		return nil
	}
	for i := range job.Items {
		if job.Items[i].Status == api.JobRunning {
			return &job.Items[i]
		}
	}
	return nil
}

// FolderProgress renders "current/total" for the running job's queue
// position, counting the in-flight folder as current.
func (s Snapshot) FolderProgress() string {
	job := s.RunningJob()
	item := s.RunningItem()
	if job == nil || item == nil {
		return NoData
	}
	return fmt.Sprintf("%d/%d", item.QueueIndex+1, job.TotalItems)
}

// FileProgress renders "current/total" for images inside the running item.
// While work remains the in-flight file counts as current (done+1), so the
// display reads "working on file N", not "N files finished". Only when
// every image is done does it show total/total.
func (s Snapshot) FileProgress() string {
	item := s.RunningItem()
	if item == nil {
		return NoData
	}
	current := item.ImageDone + 1
	if item.ImageDone >= item.ImageTotal {
		current = item.ImageTotal
	}
	return fmt.Sprintf("%d/%d", current, item.ImageTotal)
}

// CompletedProgress renders processed/total for the latest completed job.
func (s Snapshot) CompletedProgress() string {
	job := s.LatestCompletedJob()
	if job == nil {
		return NoData
	}
	return fmt.Sprintf("%d/%d", job.ProcessedItems, job.TotalItems)
}

// ActiveCredentialCount counts keys the server reports as ACTIVE.
func (s Snapshot) ActiveCredentialCount() int {
	n := 0
	for _, c := range s.Credentials {
		if c.Status == api.CredentialActive {
			n++
		}
	}
	return n
}

// TotalRemainingUnits sums the server-computed remaining quota across keys.
func (s Snapshot) TotalRemainingUnits() int {
	total := 0
	for _, c := range s.Credentials {
		total += c.RemainingUnits
	}
	return total
}
