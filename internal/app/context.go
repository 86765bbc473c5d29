package app

import (
	"database/sql"
	"fmt"

	"plinkage/internal/config"
	"plinkage/internal/db"
	"plinkage/internal/engine"
	"plinkage/internal/migrate"
)

// Context bundles the open database, the loaded config and a ready engine.
// CLI commands and the server share this bootstrap.
type Context struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open prepares the workspace: opens the database, applies pending
// migrations and loads plinkage.yml when present. Close the returned
// context when done.
func Open(workspace string) (*Context, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
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
		DB:     conn,
		Config: cfg,
		Engine: engine.New(conn, cfg),
	}, nil
}

func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
