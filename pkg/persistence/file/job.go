package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/persistence"
)

// JobRepository stores jobs as JSON files under <root>/jobs. A single
// mutex serializes writes so the coordinator's progress updates and
// the API's cancel writes cannot interleave on one file.
type JobRepository struct {
	root string
	mu   sync.Mutex
}

func NewJobRepository(root string) *JobRepository {
	return &JobRepository{root: root}
}

func (jr *JobRepository) jobPath(id string) string {
	return filepath.Clean(path.Join(jr.root, "jobs", id+".json"))
}

// Save writes the full job record.
func (jr *JobRepository) Save(_ context.Context, job *models.Job) error {
	jr.mu.Lock()
	defer jr.mu.Unlock()

	return jr.writeLocked(job)
}

func (jr *JobRepository) writeLocked(job *models.Job) error {
	err := os.MkdirAll(path.Join(jr.root, "jobs"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create jobs directory: %w", err)
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return persistence.NewJobError("Save", job.ID, err)
	}

	return os.WriteFile(jr.jobPath(job.ID), data, 0600)
}

// GetByID loads one job.
func (jr *JobRepository) GetByID(_ context.Context, id string) (*models.Job, error) {
	return jr.read(id)
}

func (jr *JobRepository) read(id string) (*models.Job, error) {
	body, err := os.ReadFile(jr.jobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewJobError("GetByID", id, persistence.ErrJobNotFound)
		}

		return nil, persistence.NewJobError("GetByID", id, err)
	}

	var job models.Job

	err = json.Unmarshal(body, &job)
	if err != nil {
		return nil, persistence.NewJobError("GetByID", id, err)
	}

	return &job, nil
}

// List returns jobs sorted by creation time, newest first.
func (jr *JobRepository) List(ctx context.Context, opts persistence.ListJobsOptions) (*persistence.JobListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.Offset < 0 {
		opts.Offset = 0
	}

	root := os.DirFS(path.Join(jr.root, "jobs"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list job files: %w", err)
	}

	all := make([]*models.Job, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		job, err := jr.read(file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		if opts.Status != nil && job.Status != *opts.Status {
			continue
		}

		all = append(all, job)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)

	start := opts.Offset
	if start > total {
		start = total
	}

	end := start + opts.Limit
	if end > total {
		end = total
	}

	return &persistence.JobListResult{
		Jobs:        all[start:end],
		TotalCount:  total,
		HasNextPage: end < total,
	}, nil
}

// Delete removes a job record; deleting a missing job is not an error.
func (jr *JobRepository) Delete(_ context.Context, id string) error {
	jr.mu.Lock()
	defer jr.mu.Unlock()

	err := os.Remove(jr.jobPath(id))
	if err != nil && !os.IsNotExist(err) {
		return persistence.NewJobError("Delete", id, err)
	}

	return nil
}

// UpdateStage persists the current stage and its progress map.
func (jr *JobRepository) UpdateStage(_ context.Context, jobID, stage string, progress map[string]any) error {
	jr.mu.Lock()
	defer jr.mu.Unlock()

	job, err := jr.read(jobID)
	if err != nil {
		return err
	}

	job.CurrentStage = &stage

	if job.StageProgress == nil {
		job.StageProgress = make(map[string]map[string]any)
	}

	job.StageProgress[stage] = progress

	return jr.writeLocked(job)
}

// RequestCancel flips the cancel flag for a running job.
func (jr *JobRepository) RequestCancel(_ context.Context, jobID string) error {
	jr.mu.Lock()
	defer jr.mu.Unlock()

	job, err := jr.read(jobID)
	if err != nil {
		return err
	}

	job.CancelRequested = true

	return jr.writeLocked(job)
}

// IsCancelled reads the cancel flag. The coordinator polls this at
// stage boundaries.
func (jr *JobRepository) IsCancelled(_ context.Context, jobID string) (bool, error) {
	job, err := jr.read(jobID)
	if err != nil {
		return false, err
	}

	return job.CancelRequested, nil
}

var _ persistence.JobRepository = (*JobRepository)(nil)
