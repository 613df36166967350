package stages

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/protocol"
)

var errCollaborator = errors.New("collaborator unavailable")

type fakeIngestor struct {
	counters models.IngestCounters
	err      error
}

func (f *fakeIngestor) IngestAll(_ context.Context, _ int, _ string) (models.IngestCounters, error) {
	return f.counters, f.err
}

type fakeClassifier struct {
	counters models.ClassifyCounters
	err      error
}

func (f *fakeClassifier) ClassifyPending(_ context.Context, _ int) (models.ClassifyCounters, error) {
	return f.counters, f.err
}

type fakeNeutralizer struct {
	counters    models.NeutralizeCounters
	err         error
	seenWorkers int
}

func (f *fakeNeutralizer) NeutralizePending(_ context.Context, _, workerCount int) (models.NeutralizeCounters, error) {
	f.seenWorkers = workerCount

	return f.counters, f.err
}

type fakeQualityChecker struct {
	counters models.QualityCounters
	err      error
}

func (f *fakeQualityChecker) RunBatch(_ context.Context, _ string) (models.QualityCounters, error) {
	return f.counters, f.err
}

type fakeAssembler struct {
	counters  models.DigestCounters
	err       error
	seenForce bool
}

func (f *fakeAssembler) AssembleBrief(_ context.Context, _ int, force bool) (models.DigestCounters, error) {
	f.seenForce = force

	return f.counters, f.err
}

type fakeLinkValidator struct {
	outcomes map[string]int
	err      error
}

func (f *fakeLinkValidator) ValidateBatch(_ context.Context, _ int) (map[string]int, error) {
	return f.outcomes, f.err
}

type fakeEvaluator struct {
	result     *models.EvaluationResult
	err        error
	seenRunID  string
	seenSample int
}

func (f *fakeEvaluator) RunEvaluation(_ context.Context, runID string, sampleSize int) (*models.EvaluationResult, error) {
	f.seenRunID = runID
	f.seenSample = sampleSize

	return f.result, f.err
}

type fakeOptimizer struct {
	applied   int
	err       error
	seenEval  string
	seenApply bool
}

func (f *fakeOptimizer) AnalyzeAndImprove(_ context.Context, evaluationID string, autoApply bool) (int, error) {
	f.seenEval = evaluationID
	f.seenApply = autoApply

	return f.applied, f.err
}

func buildStage(t *testing.T, factory protocol.StageFactory) protocol.Stage {
	t.Helper()

	stage, err := factory.Create(nil, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, factory.Kind(), stage.Kind())

	return stage
}

func TestOutputStatus(t *testing.T) {
	tests := []struct {
		name      string
		succeeded int
		failed    int
		want      models.StageStatus
	}{
		{"no failures", 10, 0, models.StageCompleted},
		{"nothing at all", 0, 0, models.StageCompleted},
		{"mixed", 7, 3, models.StagePartial},
		{"all failed", 0, 5, models.StageFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, outputStatus(tc.succeeded, tc.failed))
		})
	}
}

func TestIngestStage(t *testing.T) {
	ingestor := &fakeIngestor{counters: models.IngestCounters{
		Ingested:         40,
		SkippedDuplicate: 5,
		BodiesDownloaded: 38,
		BodyFailures:     2,
		Errors:           1,
	}}

	stage := buildStage(t, NewIngestFactory(ingestor))
	assert.True(t, stage.Critical())

	output, err := stage.Run(context.Background(), &models.Job{TraceID: "trace-1"})
	require.NoError(t, err)

	assert.Equal(t, models.StagePartial, output.Status)
	assert.Equal(t, 40, output.Metrics["ingested"])
	assert.Equal(t, 5, output.Metrics["skipped_duplicate"])
	assert.Equal(t, 1, output.Metrics["errors"])
}

func TestIngestStage_CollaboratorError(t *testing.T) {
	stage := buildStage(t, NewIngestFactory(&fakeIngestor{err: errCollaborator}))

	output, err := stage.Run(context.Background(), &models.Job{})
	require.ErrorIs(t, err, errCollaborator)
	assert.Nil(t, output)
}

func TestClassifyStage(t *testing.T) {
	classifier := &fakeClassifier{counters: models.ClassifyCounters{
		Total:       30,
		Succeeded:   30,
		ViaModel:    25,
		ViaFallback: 5,
	}}

	stage := buildStage(t, NewClassifyFactory(classifier))

	output, err := stage.Run(context.Background(), &models.Job{})
	require.NoError(t, err)

	assert.Equal(t, models.StageCompleted, output.Status)
	assert.Equal(t, 25, output.Metrics["via_model"])
	assert.Equal(t, 5, output.Metrics["via_fallback"])
}

func TestNeutralizeStage_WorkerCountFromConfig(t *testing.T) {
	neutralizer := &fakeNeutralizer{counters: models.NeutralizeCounters{Attempted: 10, Succeeded: 10}}
	stage := buildStage(t, NewNeutralizeFactory(neutralizer))

	job := &models.Job{Config: map[string]any{"neutralize_workers": 7}}

	output, err := stage.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, 7, neutralizer.seenWorkers)
	assert.Equal(t, models.StageCompleted, output.Status)
	assert.Equal(t, 10, output.Metrics["attempted"])
}

func TestNeutralizeStage_DefaultWorkerCount(t *testing.T) {
	neutralizer := &fakeNeutralizer{}
	stage := buildStage(t, NewNeutralizeFactory(neutralizer))

	_, err := stage.Run(context.Background(), &models.Job{})
	require.NoError(t, err)

	assert.Equal(t, 2, neutralizer.seenWorkers)
}

func TestQualityStage_StoryFailuresDoNotFailStage(t *testing.T) {
	checker := &fakeQualityChecker{counters: models.QualityCounters{Checked: 20, Passed: 12, Failed: 8}}
	stage := buildStage(t, NewQualityFactory(checker))

	output, err := stage.Run(context.Background(), &models.Job{})
	require.NoError(t, err)

	assert.Equal(t, models.StageCompleted, output.Status)
	assert.Equal(t, 8, output.Metrics["failed"])
}

func TestDigestStage_ForceFlag(t *testing.T) {
	assembler := &fakeAssembler{counters: models.DigestCounters{Stories: 12, Sections: 4}}
	stage := buildStage(t, NewDigestFactory(assembler))

	job := &models.Job{Config: map[string]any{"force_digest": true}}

	output, err := stage.Run(context.Background(), job)
	require.NoError(t, err)

	assert.True(t, assembler.seenForce)
	assert.Equal(t, models.StageCompleted, output.Status)
	assert.Equal(t, 12, output.Metrics["stories"])
	assert.Equal(t, false, output.Metrics["empty"])
}

func TestLinkCheckStage_IsAdvisory(t *testing.T) {
	validator := &fakeLinkValidator{outcomes: map[string]int{
		"ok":         17,
		"broken":     2,
		"redirected": 1,
	}}

	stage := buildStage(t, NewLinkCheckFactory(validator))
	assert.False(t, stage.Critical())

	output, err := stage.Run(context.Background(), &models.Job{})
	require.NoError(t, err)

	assert.Equal(t, models.StageCompleted, output.Status)
	assert.Equal(t, 17, output.Metrics["ok"])
	assert.Equal(t, 2, output.Metrics["broken"])
}

func TestEvaluationStage(t *testing.T) {
	evaluator := &fakeEvaluator{result: &models.EvaluationResult{
		EvaluationID:  "eval-1",
		AccuracyScore: 0.93,
		QualityScore:  0.88,
		EstimatedCost: 0.12,
	}}

	stage := buildStage(t, NewEvaluationFactory(evaluator))
	assert.False(t, stage.Critical())

	summaryID := "summary-1"

	output, err := stage.Run(context.Background(), &models.Job{RunSummaryID: &summaryID})
	require.NoError(t, err)

	assert.Equal(t, "summary-1", evaluator.seenRunID)
	assert.Equal(t, DefaultSampleSize, evaluator.seenSample)
	assert.Equal(t, models.StageCompleted, output.Status)
	assert.Equal(t, "eval-1", output.Metrics["evaluation_id"])
	assert.Equal(t, 0.93, output.Metrics["accuracy_score"])
}

func TestEvaluationStage_RequiresRunSummary(t *testing.T) {
	stage := buildStage(t, NewEvaluationFactory(&fakeEvaluator{}))

	_, err := stage.Run(context.Background(), &models.Job{})
	assert.ErrorIs(t, err, ErrNoRunSummary)
}

func TestOptimizationStage(t *testing.T) {
	optimizer := &fakeOptimizer{applied: 3}
	stage := buildStage(t, NewOptimizationFactory(optimizer))

	evalID := "eval-1"
	job := &models.Job{
		EvaluationID: &evalID,
		Config:       map[string]any{"auto_apply": true},
	}

	output, err := stage.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "eval-1", optimizer.seenEval)
	assert.True(t, optimizer.seenApply)
	assert.Equal(t, models.StageCompleted, output.Status)
	assert.Equal(t, 3, output.Metrics["applied"])
}

func TestOptimizationStage_SkipsWithoutEvaluation(t *testing.T) {
	optimizer := &fakeOptimizer{}
	stage := buildStage(t, NewOptimizationFactory(optimizer))

	output, err := stage.Run(context.Background(), &models.Job{})
	require.NoError(t, err)

	assert.Equal(t, models.StageSkipped, output.Status)
	assert.Empty(t, optimizer.seenEval)
}
