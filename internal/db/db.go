package db

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"
)

const defaultName = "minigames"

// Config names the in-memory database. Connections opened with the same
// Name share one database for the life of the process.
type Config struct {
	Name string
}

func dsn(name string) string {
	if name == "" {
		name = defaultName
	}
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", url.PathEscape(name))
}

// Open opens the in-memory SQLite journal with foreign keys on. The pool is
// pinned to one connection so the database lives until Close.
func Open(cfg Config) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dsn(cfg.Name))
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return conn, nil
}
