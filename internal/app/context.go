// Package app wires the workspace database, migrations, and config into a
// ready-to-use lifecycle engine for the CLI and the API server.
package app

import (
	"database/sql"
	"fmt"

	"tasktrail/internal/config"
	"tasktrail/internal/db"
	"tasktrail/internal/lifecycle"
	"tasktrail/internal/migrate"
)

type Context struct {
	DB        *sql.DB
	Config    *config.Config
	Lifecycle lifecycle.Lifecycle
}

// Open prepares the workspace: ensures the directory, opens the database,
// applies pending migrations, and loads tasktrail.yml (defaults when absent).
func Open(workspace string) (*Context, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Context{
		DB:        conn,
		Config:    cfg,
		Lifecycle: lifecycle.New(conn, cfg),
	}, nil
}

func (c *Context) Close() error {
	return c.DB.Close()
}
