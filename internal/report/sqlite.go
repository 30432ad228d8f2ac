package report

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/phobologic/sprocscan/internal/model"
)

const schema = `
DROP TABLE IF EXISTS command_texts;
CREATE TABLE command_texts (
	id           INTEGER PRIMARY KEY,
	run_id       TEXT NOT NULL,
	file         TEXT NOT NULL,
	line_number  INTEGER NOT NULL,
	command_text TEXT NOT NULL,
	is_variable  INTEGER NOT NULL,
	error_msg    TEXT NOT NULL
);
CREATE INDEX idx_command_texts_text ON command_texts(command_text);`

// WriteSQLite replaces the command_texts table of the database at path
// with rows. runID tags every row.
func WriteSQLite(ctx context.Context, path, runID string, rows []model.Row) error {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := insertRows(ctx, tx, runID, rows); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, runID string, rows []model.Row) error {
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO command_texts (run_id, file, line_number, command_text, is_variable, error_msg) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, runID, r.File, r.LineNumber, r.CommandText, r.IsVariable, r.ErrorMsg); err != nil {
			return fmt.Errorf("insert %s:%d: %w", r.File, r.LineNumber, err)
		}
	}
	return nil
}
