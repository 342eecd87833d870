package corpusfile

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/FocuswithJustin/JuniperBot/core/corpus"
	"github.com/FocuswithJustin/JuniperBot/core/sqlite"
)

const versesSchema = `CREATE TABLE verses (
	translation TEXT    NOT NULL,
	chapter     INTEGER NOT NULL,
	verse       INTEGER NOT NULL,
	text        TEXT    NOT NULL,
	PRIMARY KEY (translation, chapter, verse)
)`

// LoadSQLite reads the verses table of the database at path.
func LoadSQLite(path string) (*corpus.Corpus, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	db, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT translation, chapter, verse, text FROM verses ORDER BY translation, chapter, verse`)
	if err != nil {
		return nil, fmt.Errorf("query verses: %w", err)
	}
	defer rows.Close()

	b := corpus.NewBuilder()
	for rows.Next() {
		var (
			translation string
			key         corpus.Key
			text        string
		)
		if err := rows.Scan(&translation, &key.Chapter, &key.Verse, &text); err != nil {
			return nil, fmt.Errorf("scan verse: %w", err)
		}
		if err := b.Add(translation, key, text); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read verses: %w", err)
	}
	return b.Build(), nil
}

// ExportSQLite writes c to a new database at path. An existing file is
// an error.
func ExportSQLite(ctx context.Context, c *corpus.Corpus, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("export target already exists: %s", path)
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, versesSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export: %w", err)
	}
	if err := insertVerses(ctx, tx, c); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}
	return nil
}

func insertVerses(ctx context.Context, tx *sql.Tx, c *corpus.Corpus) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO verses (translation, chapter, verse, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	return c.Each(func(translation string, key corpus.Key, text string) error {
		if _, err := stmt.ExecContext(ctx, translation, key.Chapter, key.Verse, text); err != nil {
			return fmt.Errorf("insert %s %s: %w", translation, key, err)
		}
		return nil
	})
}
