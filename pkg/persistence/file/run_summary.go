package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/persistence"
)

// RunSummaryRepository stores run summaries as JSON files under
// <root>/runs.
type RunSummaryRepository struct {
	root string
	mu   sync.Mutex
}

func NewRunSummaryRepository(root string) *RunSummaryRepository {
	return &RunSummaryRepository{root: root}
}

func (rr *RunSummaryRepository) runPath(id string) string {
	return filepath.Clean(path.Join(rr.root, "runs", id+".json"))
}

func (rr *RunSummaryRepository) Save(_ context.Context, summary *models.RunSummary) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	return rr.writeLocked(summary)
}

func (rr *RunSummaryRepository) writeLocked(summary *models.RunSummary) error {
	err := os.MkdirAll(path.Join(rr.root, "runs"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary %s: %w", summary.ID, err)
	}

	return os.WriteFile(rr.runPath(summary.ID), data, 0600)
}

func (rr *RunSummaryRepository) GetByID(_ context.Context, id string) (*models.RunSummary, error) {
	return rr.read(id)
}

func (rr *RunSummaryRepository) read(id string) (*models.RunSummary, error) {
	body, err := os.ReadFile(rr.runPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrRunSummaryNotFound
		}

		return nil, fmt.Errorf("failed to read run summary %s: %w", id, err)
	}

	var summary models.RunSummary

	err = json.Unmarshal(body, &summary)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run summary %s: %w", id, err)
	}

	return &summary, nil
}

// GetByJobID scans for the summary belonging to a job.
func (rr *RunSummaryRepository) GetByJobID(_ context.Context, jobID string) (*models.RunSummary, error) {
	root := os.DirFS(path.Join(rr.root, "runs"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run summaries: %w", err)
	}

	for _, file := range jsonFiles {
		summary, err := rr.read(file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		if summary.JobID == jobID {
			return summary, nil
		}
	}

	return nil, persistence.ErrRunSummaryNotFound
}

// AttachEvaluation adds the evaluation stage's result to an existing
// summary.
func (rr *RunSummaryRepository) AttachEvaluation(_ context.Context, id string, eval *models.EvaluationResult) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	summary, err := rr.read(id)
	if err != nil {
		return err
	}

	summary.Evaluation = eval

	return rr.writeLocked(summary)
}

var _ persistence.RunSummaryRepository = (*RunSummaryRepository)(nil)
