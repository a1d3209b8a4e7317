package borrows

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// スキーマ名はプレースホルダにできないため文字列連結になる。
// 必ずService層のホワイトリスト検証を通ったものだけが渡ってくる
func qualify(schema, table string) string {
	return fmt.Sprintf("`%s`.`%s`", schema, table)
}

func (s *Store) InsertBorrow(ctx context.Context, schema string, b *Borrow) error {
	q := fmt.Sprintf(`
INSERT INTO %s (borrow_ulid, equipment_id, borrower_id, borrowed_at, due_on, note)
VALUES (?, ?, ?, ?, ?, ?)`, qualify(schema, "borrow_requests"))

	var dueOn any
	if b.DueOn.Valid {
		dueOn = b.DueOn.Time.Format("2006-01-02")
	}
	var note any
	if b.Note.Valid {
		note = b.Note.String
	}

	res, err := s.db.ExecContext(ctx, q, b.BorrowULID, b.EquipmentID, b.BorrowerID, b.BorrowedAt, dueOn, note)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.BorrowID = id
	return nil
}

func (s *Store) GetByULID(ctx context.Context, schema, ulid string) (*Borrow, error) {
	q := fmt.Sprintf(`
SELECT b.borrow_id, b.borrow_ulid, b.equipment_id, COALESCE(e.name, ''), b.borrower_id,
       b.borrowed_at, b.due_on, b.returned_at, b.processed_by_id, b.note
FROM %s b
LEFT JOIN %s e ON e.equipment_id = b.equipment_id
WHERE b.borrow_ulid = ?
LIMIT 1`, qualify(schema, "borrow_requests"), qualify(schema, "equipment"))

	var b Borrow
	err := s.db.QueryRowContext(ctx, q, ulid).Scan(
		&b.BorrowID, &b.BorrowULID, &b.EquipmentID, &b.EquipmentName, &b.BorrowerID,
		&b.BorrowedAt, &b.DueOn, &b.ReturnedAt, &b.ProcessedByID, &b.Note,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// MarkReturned: 未返却の行だけを条件付きUPDATEで閉じる。
// 0行更新 = すでに返却済み（read-then-writeにしない）
func (s *Store) MarkReturned(ctx context.Context, schema, ulid string, processedBy *string, note *string) (int64, error) {
	q := fmt.Sprintf(`
UPDATE %s
SET returned_at = UTC_TIMESTAMP(6), processed_by_id = ?, note = COALESCE(?, note)
WHERE borrow_ulid = ? AND returned_at IS NULL`, qualify(schema, "borrow_requests"))

	var pb any
	if processedBy != nil && *processedBy != "" {
		pb = *processedBy
	}
	var n any
	if note != nil && *note != "" {
		n = *note
	}

	res, err := s.db.ExecContext(ctx, q, pb, n, ulid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// List: 条件に応じて動的WHERE + LIMIT/OFFSET
func (s *Store) List(ctx context.Context, schema string, f Filter) ([]Borrow, error) {
	var (
		buf    bytes.Buffer
		args   []any
		wheres []string
	)

	fmt.Fprintf(&buf, `
SELECT b.borrow_id, b.borrow_ulid, b.equipment_id, COALESCE(e.name, ''), b.borrower_id,
       b.borrowed_at, b.due_on, b.returned_at, b.processed_by_id, b.note
FROM %s b
LEFT JOIN %s e ON e.equipment_id = b.equipment_id
`, qualify(schema, "borrow_requests"), qualify(schema, "equipment"))

	if f.BorrowerID != "" {
		wheres = append(wheres, "b.borrower_id = ?")
		args = append(args, f.BorrowerID)
	}
	if f.EquipmentID != nil {
		wheres = append(wheres, "b.equipment_id = ?")
		args = append(args, *f.EquipmentID)
	}
	if f.OnlyOutstanding {
		wheres = append(wheres, "b.returned_at IS NULL")
	}
	if len(wheres) > 0 {
		buf.WriteString(" WHERE " + strings.Join(wheres, " AND "))
	}
	buf.WriteString(" ORDER BY b.borrow_id DESC LIMIT ? OFFSET ?")

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

	res := make([]Borrow, 0, 16)
	for rows.Next() {
		var b Borrow
		if err := rows.Scan(
			&b.BorrowID, &b.BorrowULID, &b.EquipmentID, &b.EquipmentName, &b.BorrowerID,
			&b.BorrowedAt, &b.DueOn, &b.ReturnedAt, &b.ProcessedByID, &b.Note,
		); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Availability: ストアドプロシージャ経由（在庫計算はDB側の責務）
func (s *Store) Availability(ctx context.Context, schema string, equipmentID int64) (*Availability, error) {
	q := fmt.Sprintf(`CALL %s.sp_equipment_available(?)`, fmt.Sprintf("`%s`", schema))

	var a Availability
	err := s.db.QueryRowContext(ctx, q, equipmentID).Scan(&a.EquipmentID, &a.Total, &a.Borrowed, &a.Available)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
