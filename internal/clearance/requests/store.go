package requests

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"LECS-backend/internal/audit"
	"LECS-backend/internal/platform/db"
)

// Decision: 裁決1回分の書き込み内容。監査行も同一Txで書く
type Decision struct {
	ULID       string
	Status     string
	ReviewerID string
	Notes      string
	DecidedAt  time.Time
	Snapshot   []byte
	Audit      *audit.Entry
}

type Store interface {
	Insert(ctx context.Context, r *Request, entry *audit.Entry) error
	GetByULID(ctx context.Context, ulid string) (*Request, error)
	HasOpen(ctx context.Context, userID string) (bool, error)
	MarkUnderReview(ctx context.Context, ulid, reviewerID string, entry *audit.Entry) (int64, error)
	Decide(ctx context.Context, d Decision) (int64, error)
	List(ctx context.Context, f Filter) ([]Request, error)
}

type mysqlStore struct {
	db    *sql.DB
	audit *audit.Store
}

func NewStore(conn *sql.DB, auditStore *audit.Store) Store {
	return &mysqlStore{db: conn, audit: auditStore}
}

func (s *mysqlStore) Insert(ctx context.Context, r *Request, entry *audit.Entry) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const q = `
INSERT INTO clearance_requests (request_ulid, user_id, status, requested_at)
VALUES (?, ?, 'pending', ?)`
		res, err := tx.ExecContext(ctx, q, r.RequestULID, r.UserID, r.RequestedAt)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		r.RequestID = id

		if entry != nil {
			return s.audit.InsertTx(ctx, tx, entry)
		}
		return nil
	})
}

func (s *mysqlStore) GetByULID(ctx context.Context, ulid string) (*Request, error) {
	const q = `
SELECT request_id, request_ulid, user_id, status, reviewer_id, review_notes,
       requested_at, decided_at, eligibility_snapshot
FROM clearance_requests
WHERE request_ulid = ?
LIMIT 1`

	var (
		r        Request
		snapshot sql.NullString
	)
	err := s.db.QueryRowContext(ctx, q, ulid).Scan(
		&r.RequestID, &r.RequestULID, &r.UserID, &r.Status, &r.ReviewerID, &r.ReviewNotes,
		&r.RequestedAt, &r.DecidedAt, &snapshot,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if snapshot.Valid {
		r.EligibilitySnapshot = []byte(snapshot.String)
	}
	return &r, nil
}

func (s *mysqlStore) HasOpen(ctx context.Context, userID string) (bool, error) {
	const q = `
SELECT 1 FROM clearance_requests
WHERE user_id = ? AND status IN ('pending', 'under_review')
LIMIT 1`
	var one int
	err := s.db.QueryRowContext(ctx, q, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkUnderReview: pending の行だけを条件付きUPDATEで引き取る
func (s *mysqlStore) MarkUnderReview(ctx context.Context, ulid, reviewerID string, entry *audit.Entry) (int64, error) {
	var affected int64
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const q = `
UPDATE clearance_requests
SET status = 'under_review', reviewer_id = ?
WHERE request_ulid = ? AND status = 'pending'`
		res, err := tx.ExecContext(ctx, q, reviewerID, ulid)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 1 && entry != nil {
			return s.audit.InsertTx(ctx, tx, entry)
		}
		return nil
	})
	return affected, err
}

// Decide: 非終端状態の行だけを条件付きUPDATEで裁決する。
// read-then-write にしないことで同時裁決の競合を店側で潰す。
// 0行更新 = 他のレビュアーに先を越された（ALREADY_DECIDED）
func (s *mysqlStore) Decide(ctx context.Context, d Decision) (int64, error) {
	var affected int64
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const q = `
UPDATE clearance_requests
SET status = ?, reviewer_id = ?, review_notes = ?, decided_at = ?, eligibility_snapshot = ?
WHERE request_ulid = ? AND status IN ('pending', 'under_review')`

		var notes any
		if d.Notes != "" {
			notes = d.Notes
		}
		var snapshot any
		if len(d.Snapshot) > 0 {
			snapshot = string(d.Snapshot)
		}

		res, err := tx.ExecContext(ctx, q, d.Status, d.ReviewerID, notes, d.DecidedAt, snapshot, d.ULID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 1 && d.Audit != nil {
			return s.audit.InsertTx(ctx, tx, d.Audit)
		}
		return nil
	})
	return affected, err
}

func (s *mysqlStore) List(ctx context.Context, f Filter) ([]Request, error) {
	var (
		buf    bytes.Buffer
		args   []any
		wheres []string
	)

	buf.WriteString(`
SELECT request_id, request_ulid, user_id, status, reviewer_id, review_notes,
       requested_at, decided_at, eligibility_snapshot
FROM clearance_requests
`)
	if f.UserID != "" {
		wheres = append(wheres, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		wheres = append(wheres, "status = ?")
		args = append(args, f.Status)
	}
	if len(wheres) > 0 {
		buf.WriteString(" WHERE " + strings.Join(wheres, " AND "))
	}
	buf.WriteString(" ORDER BY request_id DESC LIMIT ? OFFSET ?")

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, buf.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]Request, 0, 16)
	for rows.Next() {
		var (
			r        Request
			snapshot sql.NullString
		)
		if err := rows.Scan(
			&r.RequestID, &r.RequestULID, &r.UserID, &r.Status, &r.ReviewerID, &r.ReviewNotes,
			&r.RequestedAt, &r.DecidedAt, &snapshot,
		); err != nil {
			return nil, err
		}
		if snapshot.Valid {
			r.EligibilitySnapshot = []byte(snapshot.String)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
