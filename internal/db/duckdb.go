package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
}

// Path returns the database file location for cfg.
func (c Config) Path() string {
	return filepath.Join(c.DataDir, "duckdb", c.DBName+".duckdb")
}

// Open opens (creating if needed) the DuckDB database for cfg and loads
// the json extension used for attribute queries.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path()), 0755); err != nil {
		return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
	}

	conn, err := sql.Open("duckdb", cfg.Path())
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	// Extensions might already be installed or built in; LOAD is enough.
	for _, ext := range []string{"json"} {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			if _, err := conn.ExecContext(ctx, "LOAD "+ext); err != nil {
				conn.Close()
				return nil, fmt.Errorf("load %s extension: %w", ext, err)
			}
		}
	}
	return conn, nil
}
