package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const SchemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    novel_id TEXT NOT NULL,
    source TEXT,
    status TEXT,
    started_at TEXT,
    completed_at TEXT,
    chapters INTEGER,
    characters INTEGER,
    keywords INTEGER
);

CREATE TABLE IF NOT EXISTS labels (
    run_id TEXT NOT NULL,
    tier TEXT NOT NULL,
    label_id TEXT NOT NULL,
    display_name TEXT,
    confidence REAL,
    PRIMARY KEY (run_id, tier, label_id)
);
`

func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(SchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}
