package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

// BackupInfo describes a verified backup file.
type BackupInfo struct {
	Integrity     string         `json:"integrity"`
	TableCounts   map[string]int `json:"table_counts"`
	SchemaVersion int            `json:"schema_version"`
}

var backupTables = []string{"items", "sprints", "risks"}

// Backup writes a consistent copy of the database to dest. dest must not
// exist yet.
func (s *Store) Backup(ctx context.Context, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("store: backup target %s already exists", dest)
	}
	if _, err := s.db.ExecContext(sanitizeContext(ctx), `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("store: backup to %s: %w", dest, err)
	}
	return nil
}

// VerifyBackup opens a backup read-only, runs an integrity check and counts
// the rows of each tracker table.
func VerifyBackup(ctx context.Context, path string) (BackupInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return BackupInfo{}, fmt.Errorf("store: backup %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return BackupInfo{}, fmt.Errorf("store: open backup %s: %w", path, err)
	}
	defer db.Close()

	ctx = sanitizeContext(ctx)
	info := BackupInfo{TableCounts: make(map[string]int, len(backupTables))}
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&info.Integrity); err != nil {
		return BackupInfo{}, fmt.Errorf("store: integrity check: %w", err)
	}
	if info.Integrity != "ok" {
		return info, fmt.Errorf("store: integrity check failed: %s", info.Integrity)
	}

	for _, table := range backupTables {
		var count int
		if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			return info, fmt.Errorf("store: backup is missing table %s: %w", table, err)
		}
		info.TableCounts[table] = count
	}
	if err := db.QueryRowContext(ctx, `PRAGMA schema_version`).Scan(&info.SchemaVersion); err != nil {
		return info, fmt.Errorf("store: schema version: %w", err)
	}
	return info, nil
}
