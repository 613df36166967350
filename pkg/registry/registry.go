// Package registry wires stage implementations into the pipeline, either
// registered natively or loaded from Go plugins.
package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"strings"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/protocol"
)

type Registry struct {
	logger         *slog.Logger
	stageFactories map[models.StageKind]protocol.StageFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:         log,
		stageFactories: make(map[models.StageKind]protocol.StageFactory),
	}
}

// LoadStagePlugins loads every .so under <pluginsPath>/stages, each
// exporting a Stage symbol implementing protocol.StageFactory.
func (r *Registry) LoadStagePlugins(pluginsPath string) ([]protocol.StageFactory, error) {
	return loadPlugin[protocol.StageFactory](r.logger, pluginsPath, "Stage")
}

func (r *Registry) RegisterStage(factory protocol.StageFactory) {
	r.stageFactories[factory.Kind()] = factory
}

func (r *Registry) CreateStage(kind models.StageKind, config map[string]any) (protocol.Stage, error) {
	factory, ok := r.stageFactories[kind]
	if !ok {
		return nil, fmt.Errorf("stage kind '%s' not registered", kind)
	}

	return factory.Create(config, r.logger)
}

// HealthCheck reports whether the chain's mandatory stages all have a
// registered factory.
func (r *Registry) HealthCheck() (string, bool) {
	missing := make([]string, 0)

	for _, kind := range models.StageOrder {
		if _, optional := models.OptionalStages[kind]; optional {
			continue
		}

		if _, ok := r.stageFactories[kind]; !ok {
			missing = append(missing, string(kind))
		}
	}

	if len(missing) > 0 {
		return "Missing stage factories: " + strings.Join(missing, ", "), false
	}

	return fmt.Sprintf("%d stage factories registered", len(r.stageFactories)), true
}

// RegisteredKinds returns the stage kinds with a factory, in chain order.
func (r *Registry) RegisteredKinds() []models.StageKind {
	kinds := make([]models.StageKind, 0, len(r.stageFactories))

	for _, kind := range models.StageOrder {
		if _, ok := r.stageFactories[kind]; ok {
			kinds = append(kinds, kind)
		}
	}

	return kinds
}

func loadPlugin[T interface{}](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s does not export %s: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s: %s symbol has wrong type", p, symbolName)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded stage plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
