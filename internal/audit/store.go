package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"LECS-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

// InsertTx: 裁決のUPDATEと同一トランザクションに載せるためDBTXを受ける
func (s *Store) InsertTx(ctx context.Context, tx db.DBTX, e *Entry) error {
	const q = `
INSERT INTO audit_log (actor_id, action, entity, entity_id, detail, created_at)
VALUES (?, ?, ?, ?, ?, NOW(6))`

	var detail any
	if e.Detail != nil {
		b, err := json.Marshal(e.Detail)
		if err != nil {
			return err
		}
		detail = string(b)
	}
	_, err := tx.ExecContext(ctx, q, e.ActorID, e.Action, e.Entity, e.EntityID, detail)
	return err
}

func (s *Store) Insert(ctx context.Context, e *Entry) error {
	return s.InsertTx(ctx, s.db, e)
}

type Filter struct {
	ActorID string
	Action  string
	Entity  string
	Limit   int
	Offset  int
}

func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	q := `
SELECT audit_id, actor_id, action, entity, entity_id, detail, created_at
FROM audit_log
WHERE (? = '' OR actor_id = ?)
  AND (? = '' OR action = ?)
  AND (? = '' OR entity = ?)
ORDER BY audit_id DESC
LIMIT ? OFFSET ?`

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, q,
		f.ActorID, f.ActorID, f.Action, f.Action, f.Entity, f.Entity, limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]Entry, 0, 16)
	for rows.Next() {
		var (
			e         Entry
			detailRaw sql.NullString
		)
		if err := rows.Scan(&e.AuditID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &detailRaw, &e.CreatedAt); err != nil {
			return nil, err
		}
		if detailRaw.Valid && detailRaw.String != "" {
			_ = json.Unmarshal([]byte(detailRaw.String), &e.Detail)
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
