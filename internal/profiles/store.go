package profiles

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) GetByUserID(ctx context.Context, userID string) (*Profile, error) {
	const q = `
SELECT user_id, display_name, role, department, assigned_labs, is_active, created_at, updated_at
FROM profiles
WHERE user_id = ?
LIMIT 1
`
	var (
		p           Profile
		labsCSV     string
		isActiveInt int
	)
	err := s.db.QueryRowContext(ctx, q, userID).Scan(
		&p.UserID,
		&p.DisplayName,
		&p.Role,
		&p.Department,
		&labsCSV,
		&isActiveInt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.AssignedLabs = splitLabs(labsCSV)
	p.IsActive = isActiveInt != 0
	return &p, nil
}

func (s *Store) Upsert(ctx context.Context, p *Profile) error {
	const q = `
INSERT INTO profiles (user_id, display_name, role, department, assigned_labs, is_active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 1, NOW(6), NOW(6))
ON DUPLICATE KEY UPDATE
display_name  = VALUES(display_name),
role          = VALUES(role),
department    = VALUES(department),
assigned_labs = VALUES(assigned_labs),
updated_at    = NOW(6)
`
	_, err := s.db.ExecContext(ctx, q, p.UserID, p.DisplayName, p.Role, p.Department, joinLabs(p.AssignedLabs))
	return err
}

// Deactivate: 物理削除しない。貸出・申請の参照を残すため論理削除のみ
func (s *Store) Deactivate(ctx context.Context, userID string) (int64, error) {
	const q = `UPDATE profiles SET is_active = 0, updated_at = NOW(6) WHERE user_id = ? AND is_active = 1`
	res, err := s.db.ExecContext(ctx, q, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// List: 条件に応じて動的WHERE + LIMIT/OFFSET
func (s *Store) List(ctx context.Context, f Filter) ([]Profile, error) {
	var (
		buf    bytes.Buffer
		args   []any
		wheres []string
	)

	buf.WriteString(`
SELECT user_id, display_name, role, department, assigned_labs, is_active, created_at, updated_at
FROM profiles
`)
	if f.Role != "" {
		wheres = append(wheres, "role = ?")
		args = append(args, f.Role)
	}
	if f.Department != "" {
		wheres = append(wheres, "department = ?")
		args = append(args, f.Department)
	}
	if f.Lab != "" {
		// CSVカラムへの部分一致。件数規模的に許容
		wheres = append(wheres, "FIND_IN_SET(?, assigned_labs) > 0")
		args = append(args, f.Lab)
	}
	if f.ActiveOnly {
		wheres = append(wheres, "is_active = 1")
	}
	if len(wheres) > 0 {
		buf.WriteString(" WHERE " + strings.Join(wheres, " AND "))
	}
	buf.WriteString(" ORDER BY user_id LIMIT ? OFFSET ?")

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

	res := make([]Profile, 0, 16)
	for rows.Next() {
		var (
			p           Profile
			labsCSV     string
			isActiveInt int
			createdAt   time.Time
			updatedAt   time.Time
		)
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.Role, &p.Department, &labsCSV, &isActiveInt, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.AssignedLabs = splitLabs(labsCSV)
		p.IsActive = isActiveInt != 0
		p.CreatedAt = createdAt
		p.UpdatedAt = updatedAt
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
