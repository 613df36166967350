// Package file provides file-based persistence for jobs and run
// summaries, used for development and tests.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/unspun/unspun/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root     string
	jobRepo  *JobRepository
	runsRepo *RunSummaryRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory. A "file://" prefix is stripped.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:     cleanRoot,
		jobRepo:  NewJobRepository(cleanRoot),
		runsRepo: NewRunSummaryRepository(cleanRoot),
	}
}

func (fp *Persistence) JobRepository() persistence.JobRepository {
	return fp.jobRepo
}

func (fp *Persistence) RunSummaryRepository() persistence.RunSummaryRepository {
	return fp.runsRepo
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close is a no-op for file persistence.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

var _ persistence.Persistence = (*Persistence)(nil)
