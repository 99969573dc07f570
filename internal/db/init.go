package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"github.com/RezaEskandarii/genfire/internal/constants"
	"github.com/RezaEskandarii/genfire/internal/lock"
	"go.uber.org/zap"
	"io/fs"
	"sort"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Init creates the schema and applies every migration script in file name order.
// The scripts are idempotent. The migration advisory lock keeps instances that start
// together from running them concurrently.
func Init(ctx context.Context, db *sql.DB, distributedLock lock.DistributedLockManager, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := distributedLock.Acquire(ctx, constants.MigrationLock); err != nil {
		return err
	}
	defer func() {
		if err := distributedLock.Release(context.WithoutCancel(ctx), constants.MigrationLock); err != nil {
			logger.Warn("migration lock release failed", zap.Error(err))
		}
	}()

	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", constants.Schema)); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	scripts, err := readSQLScripts()
	if err != nil {
		return err
	}
	for _, script := range scripts {
		logger.Info("applying migration", zap.String("file", script.name))
		if _, err := db.ExecContext(ctx, script.body); err != nil {
			return fmt.Errorf("failed to apply %s: %w", script.name, err)
		}
	}
	return nil
}

type sqlScript struct {
	name string
	body string
}

func readSQLScripts() ([]sqlScript, error) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	scripts := make([]sqlScript, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(migrations, "migrations/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		scripts = append(scripts, sqlScript{name: name, body: string(content)})
	}
	return scripts, nil
}
