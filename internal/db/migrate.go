package db

import (
	"bytes"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies every .sql file in name order. The files ship
// embedded in the binary; a non-empty dir overrides them, which is handy
// when iterating on the schema locally.
func RunMigrations(sqlDB *sql.DB, dir string) error {
	source, err := migrationSource(dir)
	if err != nil {
		return err
	}
	names, err := fs.Glob(source, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		stmts, err := fs.ReadFile(source, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if len(bytes.TrimSpace(stmts)) == 0 {
			continue
		}
		if _, err := sqlDB.Exec(string(stmts)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// migrationSource prefers an on-disk directory and falls back to the
// embedded files when dir is empty or absent.
func migrationSource(dir string) (fs.FS, error) {
	if dir != "" {
		info, err := os.Stat(dir)
		switch {
		case err == nil && info.IsDir():
			return os.DirFS(dir), nil
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read migrations dir: %w", err)
		}
	}
	return fs.Sub(embeddedMigrations, "migrations")
}
