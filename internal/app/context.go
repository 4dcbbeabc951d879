// Package app wires the shared pieces a command needs: database, store,
// config and engine for one workspace.
package app

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	appconfig "dealflow/internal/config"
	"dealflow/internal/db"
	"dealflow/internal/domain"
	"dealflow/internal/engine"
	"dealflow/internal/migrate"
	"dealflow/internal/notify"
	"dealflow/internal/repo"
)

type Context struct {
	DB     *sql.DB
	Store  *repo.Repo
	Config *appconfig.Config
	Engine engine.Engine
	Log    *slog.Logger
}

// Open opens the workspace database, applies migrations and builds the
// engine. Config is optional; without one the engine falls back to default
// thresholds and accepts any non-empty close reason.
func Open(workspace string, log *slog.Logger) (*Context, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	cfg, err := appconfig.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	store := repo.New(conn)
	eng := engine.New(store, cfg, log)
	eng.Notifier = notify.Multi{notify.LogNotifier{Log: log}}
	return &Context{
		DB:     conn,
		Store:  store,
		Config: cfg,
		Engine: eng,
		Log:    log,
	}, nil
}

func (c *Context) Close() error {
	return c.DB.Close()
}

// ResolvePipeline picks the pipeline a command operates on: the explicit
// ID, then the configured one, then the only pipeline in the workspace.
func (c *Context) ResolvePipeline(ctx context.Context, pipelineID string) (domain.Pipeline, error) {
	if pipelineID != "" {
		return c.Store.GetPipeline(ctx, pipelineID)
	}
	if c.Config != nil && c.Config.Pipeline.ID != "" {
		p, err := c.Store.GetPipeline(ctx, c.Config.Pipeline.ID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.Pipeline{}, err
		}
	}
	return c.Store.SinglePipeline(ctx)
}
