package registry

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/protocol"
)

type mockStage struct {
	kind models.StageKind
}

func (m *mockStage) Kind() models.StageKind { return m.kind }
func (m *mockStage) Critical() bool         { return true }

func (m *mockStage) Run(_ context.Context, _ *models.Job) (*protocol.StageOutput, error) {
	return &protocol.StageOutput{Status: models.StageCompleted}, nil
}

type mockStageFactory struct {
	kind models.StageKind
}

func (m *mockStageFactory) Kind() models.StageKind { return m.kind }

func (m *mockStageFactory) Create(_ map[string]any, _ *slog.Logger) (protocol.Stage, error) {
	return &mockStage{kind: m.kind}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRegistry_RegisterAndCreateStage(t *testing.T) {
	r := NewRegistry(testLogger())

	r.RegisterStage(&mockStageFactory{kind: models.StageIngest})

	stage, err := r.CreateStage(models.StageIngest, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, models.StageIngest, stage.Kind())
}

func TestRegistry_CreateUnregisteredStage(t *testing.T) {
	r := NewRegistry(testLogger())

	_, err := r.CreateStage(models.StageNeutralize, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegistry_ReplacesFactoryForSameKind(t *testing.T) {
	r := NewRegistry(testLogger())

	first := &mockStageFactory{kind: models.StageClassify}
	second := &mockStageFactory{kind: models.StageClassify}

	r.RegisterStage(first)
	r.RegisterStage(second)

	kinds := r.RegisteredKinds()
	assert.Equal(t, []models.StageKind{models.StageClassify}, kinds)
}

func TestRegistry_HealthCheck(t *testing.T) {
	r := NewRegistry(testLogger())

	message, healthy := r.HealthCheck()
	assert.False(t, healthy)
	assert.Contains(t, message, "ingest")

	for _, kind := range models.StageOrder {
		if _, optional := models.OptionalStages[kind]; optional {
			continue
		}

		r.RegisterStage(&mockStageFactory{kind: kind})
	}

	message, healthy = r.HealthCheck()
	assert.True(t, healthy)
	assert.Contains(t, message, "registered")
}

func TestRegistry_RegisteredKindsFollowChainOrder(t *testing.T) {
	r := NewRegistry(testLogger())

	// Register out of order; RegisteredKinds must follow the chain.
	r.RegisterStage(&mockStageFactory{kind: models.StageDigest})
	r.RegisterStage(&mockStageFactory{kind: models.StageIngest})
	r.RegisterStage(&mockStageFactory{kind: models.StageNeutralize})

	kinds := r.RegisteredKinds()
	assert.Equal(t, []models.StageKind{
		models.StageIngest,
		models.StageNeutralize,
		models.StageDigest,
	}, kinds)
}
