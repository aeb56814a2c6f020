package job

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FinetuneJob is a point-in-time copy of a fine-tuning job.
type FinetuneJob struct {
	JobID        string    `json:"job_id"`
	Status       Status    `json:"status"`
	Progress     float64   `json:"progress"`
	CurrentEpoch int       `json:"current_epoch"`
	TotalEpochs  int       `json:"total_epochs"`
	CurrentLoss  *float64  `json:"current_loss,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	ModelPath    string    `json:"model_path,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (j *FinetuneJob) clone() FinetuneJob {
	out := *j
	if j.CurrentLoss != nil {
		loss := *j.CurrentLoss
		out.CurrentLoss = &loss
	}
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		out.ErrorMessage = &msg
	}
	return out
}

// Registry is the in-memory table of fine-tuning jobs. Transition methods are
// no-ops for unknown ids and report whether they changed anything.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*FinetuneJob
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*FinetuneJob),
		now:  time.Now,
	}
}

func (r *Registry) Create(totalEpochs int) FinetuneJob {
	now := r.now()
	j := &FinetuneJob{
		JobID:       uuid.NewString(),
		Status:      StatusPending,
		TotalEpochs: totalEpochs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.mu.Lock()
	r.jobs[j.JobID] = j
	r.mu.Unlock()
	return j.clone()
}

func (r *Registry) Get(id string) (FinetuneJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return FinetuneJob{}, false
	}
	return j.clone(), true
}

// List returns all jobs, oldest first.
func (r *Registry) List() []FinetuneJob {
	r.mu.RLock()
	out := make([]FinetuneJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.clone())
	}
	r.mu.RUnlock()
	sortJobs(out)
	return out
}

func (r *Registry) Running() []FinetuneJob {
	r.mu.RLock()
	out := make([]FinetuneJob, 0)
	for _, j := range r.jobs {
		if j.Status == StatusRunning {
			out = append(out, j.clone())
		}
	}
	r.mu.RUnlock()
	sortJobs(out)
	return out
}

func sortJobs(jobs []FinetuneJob) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].JobID < jobs[k].JobID
		}
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return false
	}
	delete(r.jobs, id)
	return true
}

// RemoveFinishedBefore drops terminal jobs last updated before cutoff.
func (r *Registry) RemoveFinishedBefore(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, j := range r.jobs {
		if j.Status.Terminal() && j.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

func (r *Registry) SetRunning(id string) bool {
	return r.mutate(id, func(j *FinetuneJob) bool {
		if j.Status != StatusPending {
			return false
		}
		j.Status = StatusRunning
		return true
	})
}

func (r *Registry) UpdateProgress(id string, epoch int, loss float64) bool {
	return r.mutate(id, func(j *FinetuneJob) bool {
		if j.Status != StatusRunning {
			return false
		}
		j.CurrentEpoch = epoch
		j.CurrentLoss = &loss
		if j.TotalEpochs > 0 {
			j.Progress = 100 * float64(epoch) / float64(j.TotalEpochs)
		}
		return true
	})
}

func (r *Registry) SetCompleted(id string, modelPath string) bool {
	return r.mutate(id, func(j *FinetuneJob) bool {
		if j.Status != StatusRunning {
			return false
		}
		j.Status = StatusCompleted
		j.ModelPath = modelPath
		return true
	})
}

// SetFailed moves a pending or running job to failed.
func (r *Registry) SetFailed(id string, message string) bool {
	return r.mutate(id, func(j *FinetuneJob) bool {
		if j.Status.Terminal() {
			return false
		}
		j.Status = StatusFailed
		j.ErrorMessage = &message
		return true
	})
}

func (r *Registry) mutate(id string, fn func(j *FinetuneJob) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return false
	}
	if !fn(j) {
		return false
	}
	j.UpdatedAt = r.now()
	return true
}
