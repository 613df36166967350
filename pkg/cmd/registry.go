// Package cmd provides common initialization functions for the
// command-line binaries.
package cmd

import (
	"log/slog"

	"github.com/unspun/unspun/pkg/protocol"
	"github.com/unspun/unspun/pkg/registry"
)

func registerStagePlugins(reg *registry.Registry, pluginsPath string) {
	stagePlugins, err := reg.LoadStagePlugins(pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range stagePlugins {
		reg.RegisterStage(plugin)
	}
}

// NewRegistry builds a stage registry from plugins plus any natively
// compiled factories the binary carries.
func NewRegistry(logger *slog.Logger, pluginsPath string, native ...protocol.StageFactory) *registry.Registry {
	reg := registry.NewRegistry(logger)

	registerStagePlugins(reg, pluginsPath)

	for _, factory := range native {
		reg.RegisterStage(factory)
	}

	return reg
}
