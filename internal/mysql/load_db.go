package mysql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

//go:embed *.sql
var schema embed.FS

var files = []string{
	"sessions.sql",
}

// LoadDB opens the pool, pings and applies the schema. clientFoundRows makes
// RowsAffected count matched rows, which the session store relies on.
func LoadDB(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("bad MYSQL_DSN: %w", err)
	}
	cfg.ClientFoundRows = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot connect to DB: %w", err)
	}
	if err := exec(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create tables: %w", err)
	}
	return db, nil
}

func exec(ctx context.Context, db *sql.DB) error {
	for _, file := range files {
		query, err := schema.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		if _, err := db.ExecContext(ctx, string(query)); err != nil {
			return fmt.Errorf("failed to execute %s: %w", file, err)
		}
	}
	return nil
}
