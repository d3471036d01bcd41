package server

import (
	"context"
	"fmt"
	"time"
)

func (s *Server) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`
CREATE TABLE IF NOT EXISTS audit_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  payload TEXT NOT NULL,
  occurred_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS extractions (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  amount REAL NOT NULL,
  percent REAL NOT NULL,
  reinvested INTEGER NOT NULL DEFAULT 0,
  seeded_account_id TEXT,
  seeded_amount REAL NOT NULL DEFAULT 0,
  withdrawn_amount REAL NOT NULL DEFAULT 0,
  occurred_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_name ON audit_events(name);`,
		`CREATE INDEX IF NOT EXISTS idx_extractions_account ON extractions(account_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
