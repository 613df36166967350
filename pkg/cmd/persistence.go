package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/unspun/unspun/pkg/persistence"
	"github.com/unspun/unspun/pkg/persistence/file"
	"github.com/unspun/unspun/pkg/persistence/postgresql"
)

// NewPersistence builds a persistence layer from a database URL.
// postgres:// and postgresql:// select PostgreSQL; anything else is
// treated as a file root (optionally prefixed file://).
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return p
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch provider {
	case "postgres", "postgresql":
		return "postgresql"
	default:
		return "file"
	}
}
