package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/betbot/fleet/internal/events"
)

type auditEventRow struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type extractionRow struct {
	ID              string    `json:"id"`
	AccountID       string    `json:"account_id"`
	Amount          float64   `json:"amount"`
	Percent         float64   `json:"percent"`
	Reinvested      bool      `json:"reinvested"`
	SeededAccountID *string   `json:"seeded_account_id,omitempty"`
	SeededAmount    float64   `json:"seeded_amount"`
	WithdrawnAmount float64   `json:"withdrawn_amount"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// insertEvent 把一条总线事件写入审计表
// 提取事件额外落入 extractions 表，便于按账户查询。
func (s *Server) insertEvent(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
INSERT INTO audit_events (name,payload,occurred_at) VALUES (?,?,?)
`, e.EventName(), string(payload), e.OccurredAt().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}

	if pe, ok := e.(events.ProfitExtractedEvent); ok {
		return s.insertExtraction(ctx, pe)
	}
	return nil
}

func (s *Server) insertExtraction(ctx context.Context, e events.ProfitExtractedEvent) error {
	rec := e.Extraction
	var seeded *string
	if rec.SeededAccountID != "" {
		seeded = &rec.SeededAccountID
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO extractions
  (id,account_id,amount,percent,reinvested,seeded_account_id,seeded_amount,withdrawn_amount,occurred_at)
VALUES (?,?,?,?,?,?,?,?,?)
`, rec.ID, rec.AccountID, rec.Amount, rec.Percent, boolToInt(rec.Reinvested),
		seeded, rec.SeededAmount, rec.WithdrawnAmount, rec.Timestamp.Format(time.RFC3339Nano))
	return err
}

func (s *Server) listAuditEvents(ctx context.Context, name string, limit int) ([]auditEventRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT id,name,payload,occurred_at FROM audit_events ORDER BY id DESC LIMIT ?`
	args := []any{limit}
	if name != "" {
		query = `SELECT id,name,payload,occurred_at FROM audit_events WHERE name=? ORDER BY id DESC LIMIT ?`
		args = []any{name, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []auditEventRow{}
	for rows.Next() {
		var r auditEventRow
		var payload, occurred string
		if err := rows.Scan(&r.ID, &r.Name, &payload, &occurred); err != nil {
			return nil, err
		}
		r.Payload = json.RawMessage(payload)
		r.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurred)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Server) listExtractionRows(ctx context.Context, accountID string, limit int) ([]extractionRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
SELECT id,account_id,amount,percent,reinvested,seeded_account_id,seeded_amount,withdrawn_amount,occurred_at
FROM extractions ORDER BY occurred_at DESC LIMIT ?`
	args := []any{limit}
	if accountID != "" {
		query = `
SELECT id,account_id,amount,percent,reinvested,seeded_account_id,seeded_amount,withdrawn_amount,occurred_at
FROM extractions WHERE account_id=? ORDER BY occurred_at DESC LIMIT ?`
		args = []any{accountID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []extractionRow{}
	for rows.Next() {
		var r extractionRow
		var reinvested int
		var occurred string
		if err := rows.Scan(&r.ID, &r.AccountID, &r.Amount, &r.Percent, &reinvested,
			&r.SeededAccountID, &r.SeededAmount, &r.WithdrawnAmount, &occurred); err != nil {
			return nil, err
		}
		r.Reinvested = reinvested != 0
		r.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurred)
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
