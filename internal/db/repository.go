package db

import (
	"database/sql"
	"fmt"
)

// Label is one resolved genre or tag row. Tier is "genre" or "tag".
type Label struct {
	Tier        string
	LabelID     string
	DisplayName string
	Confidence  float64
}

// RunRecord is the registry view of one analysis run. Timestamps are
// RFC 3339 strings so the table stays portable and sortable.
type RunRecord struct {
	RunID       string
	NovelID     string
	Source      string
	Status      string
	StartedAt   string
	CompletedAt string
	Chapters    int
	Characters  int
	Keywords    int
	Labels      []Label
}

// PersistRun upserts a run and replaces its labels in one transaction.
func PersistRun(dbPath string, rec RunRecord) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO runs(run_id, novel_id, source, status, started_at, completed_at, chapters, characters, keywords)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		rec.RunID,
		rec.NovelID,
		rec.Source,
		rec.Status,
		rec.StartedAt,
		rec.CompletedAt,
		rec.Chapters,
		rec.Characters,
		rec.Keywords,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM labels WHERE run_id = ?`, rec.RunID); err != nil {
		return fmt.Errorf("clear labels: %w", err)
	}
	for _, l := range rec.Labels {
		if _, err := tx.Exec(
			`INSERT INTO labels(run_id, tier, label_id, display_name, confidence) VALUES(?,?,?,?,?)`,
			rec.RunID,
			l.Tier,
			l.LabelID,
			l.DisplayName,
			l.Confidence,
		); err != nil {
			return fmt.Errorf("insert label: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs with their labels attached.
func ListRuns(dbPath string, limit int) ([]RunRecord, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if limit <= 0 {
		limit = 20
	}
	rows, err := conn.Query(
		`SELECT run_id, novel_id, source, status, started_at, completed_at, chapters, characters, keywords
		 FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(
			&rec.RunID,
			&rec.NovelID,
			&rec.Source,
			&rec.Status,
			&rec.StartedAt,
			&rec.CompletedAt,
			&rec.Chapters,
			&rec.Characters,
			&rec.Keywords,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	for i := range recs {
		labels, err := labelsForConn(conn, recs[i].RunID)
		if err != nil {
			return nil, err
		}
		recs[i].Labels = labels
	}
	return recs, nil
}

func labelsForConn(conn *sql.DB, runID string) ([]Label, error) {
	rows, err := conn.Query(
		`SELECT tier, label_id, display_name, confidence FROM labels
		 WHERE run_id = ? ORDER BY tier, confidence DESC, label_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	var labels []Label
	for rows.Next() {
		var l Label
		if err := rows.Scan(&l.Tier, &l.LabelID, &l.DisplayName, &l.Confidence); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return labels, nil
}

// CountRows is a small helper for tests and sanity checks.
func CountRows(dbPath, table string) (int, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return countRowsConn(conn, table)
}

func countRowsConn(conn *sql.DB, table string) (int, error) {
	row := conn.QueryRow(`SELECT COUNT(*) FROM ` + table)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("scan count: %w", err)
	}
	return count, nil
}
