package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/persistence"
)

// MockJobRepository is a mock implementation of persistence.JobRepository interface.
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Save(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)

	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *MockJobRepository) List(ctx context.Context, opts persistence.ListJobsOptions) (*persistence.JobListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.JobListResult), args.Error(1)
}

func (m *MockJobRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockJobRepository) UpdateStage(ctx context.Context, jobID string, stage string, progress map[string]any) error {
	args := m.Called(ctx, jobID, stage, progress)

	return args.Error(0)
}

func (m *MockJobRepository) RequestCancel(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)

	return args.Error(0)
}

func (m *MockJobRepository) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	args := m.Called(ctx, jobID)

	return args.Bool(0), args.Error(1)
}

// MockRunSummaryRepository is a mock implementation of persistence.RunSummaryRepository interface.
type MockRunSummaryRepository struct {
	mock.Mock
}

func (m *MockRunSummaryRepository) Save(ctx context.Context, summary *models.RunSummary) error {
	args := m.Called(ctx, summary)

	return args.Error(0)
}

func (m *MockRunSummaryRepository) GetByID(ctx context.Context, id string) (*models.RunSummary, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.RunSummary), args.Error(1)
}

func (m *MockRunSummaryRepository) GetByJobID(ctx context.Context, jobID string) (*models.RunSummary, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.RunSummary), args.Error(1)
}

func (m *MockRunSummaryRepository) AttachEvaluation(ctx context.Context, id string, eval *models.EvaluationResult) error {
	args := m.Called(ctx, id, eval)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	jobRepo     *MockJobRepository
	summaryRepo *MockRunSummaryRepository
}

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		jobRepo:     &MockJobRepository{},
		summaryRepo: &MockRunSummaryRepository{},
	}
}

// GetMockJobRepository returns the underlying mock job repository for setting up expectations.
func (m *MockPersistence) GetMockJobRepository() *MockJobRepository {
	return m.jobRepo
}

// GetMockRunSummaryRepository returns the underlying mock run summary repository for setting up expectations.
func (m *MockPersistence) GetMockRunSummaryRepository() *MockRunSummaryRepository {
	return m.summaryRepo
}

func (m *MockPersistence) JobRepository() persistence.JobRepository {
	return m.jobRepo
}

func (m *MockPersistence) RunSummaryRepository() persistence.RunSummaryRepository {
	return m.summaryRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
