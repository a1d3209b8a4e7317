package issues

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

// スキーマ名はService層で検証済みのものだけ渡ってくる
func qualify(schema, table string) string {
	return fmt.Sprintf("`%s`.`%s`", schema, table)
}

func (s *Store) Insert(ctx context.Context, schema string, i *Issue) error {
	q := fmt.Sprintf(`
INSERT INTO %s (issue_ulid, equipment_id, reporter_id, issue_type, severity, status, cost, cost_paid, reported_at, note)
VALUES (?, ?, ?, ?, ?, 'open', ?, 0, ?, ?)`, qualify(schema, "equipment_issues"))

	var cost any
	if i.Cost.Valid {
		cost = i.Cost.Float64
	}
	var note any
	if i.Note.Valid {
		note = i.Note.String
	}

	res, err := s.db.ExecContext(ctx, q, i.IssueULID, i.EquipmentID, i.ReporterID, i.IssueType, i.Severity, cost, i.ReportedAt, note)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	i.IssueID = id
	return nil
}

func (s *Store) GetByULID(ctx context.Context, schema, ulid string) (*Issue, error) {
	q := fmt.Sprintf(`
SELECT i.issue_id, i.issue_ulid, i.equipment_id, COALESCE(e.name, ''), i.reporter_id,
       i.issue_type, i.severity, i.status, i.cost, i.cost_paid, i.reported_at, i.resolved_at, i.note
FROM %s i
LEFT JOIN %s e ON e.equipment_id = i.equipment_id
WHERE i.issue_ulid = ?
LIMIT 1`, qualify(schema, "equipment_issues"), qualify(schema, "equipment"))

	var (
		i           Issue
		costPaidInt int
	)
	err := s.db.QueryRowContext(ctx, q, ulid).Scan(
		&i.IssueID, &i.IssueULID, &i.EquipmentID, &i.EquipmentName, &i.ReporterID,
		&i.IssueType, &i.Severity, &i.Status, &i.Cost, &costPaidInt, &i.ReportedAt, &i.ResolvedAt, &i.Note,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	i.CostPaid = costPaidInt != 0
	return &i, nil
}

// Resolve: 未解決の行だけを条件付きUPDATEで閉じる
func (s *Store) Resolve(ctx context.Context, schema, ulid string, note *string) (int64, error) {
	q := fmt.Sprintf(`
UPDATE %s
SET status = 'resolved', resolved_at = UTC_TIMESTAMP(6), note = COALESCE(?, note)
WHERE issue_ulid = ? AND status <> 'resolved'`, qualify(schema, "equipment_issues"))

	var n any
	if note != nil && *note != "" {
		n = *note
	}
	res, err := s.db.ExecContext(ctx, q, n, ulid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkPaid: 費用納付済みフラグ。二重納付は0行更新になる
func (s *Store) MarkPaid(ctx context.Context, schema, ulid string) (int64, error) {
	q := fmt.Sprintf(`
UPDATE %s
SET cost_paid = 1
WHERE issue_ulid = ? AND cost IS NOT NULL AND cost_paid = 0`, qualify(schema, "equipment_issues"))

	res, err := s.db.ExecContext(ctx, q, ulid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) List(ctx context.Context, schema string, f Filter) ([]Issue, error) {
	var (
		buf    bytes.Buffer
		args   []any
		wheres []string
	)

	fmt.Fprintf(&buf, `
SELECT i.issue_id, i.issue_ulid, i.equipment_id, COALESCE(e.name, ''), i.reporter_id,
       i.issue_type, i.severity, i.status, i.cost, i.cost_paid, i.reported_at, i.resolved_at, i.note
FROM %s i
LEFT JOIN %s e ON e.equipment_id = i.equipment_id
`, qualify(schema, "equipment_issues"), qualify(schema, "equipment"))

	if f.ReporterID != "" {
		wheres = append(wheres, "i.reporter_id = ?")
		args = append(args, f.ReporterID)
	}
	if f.EquipmentID != nil {
		wheres = append(wheres, "i.equipment_id = ?")
		args = append(args, *f.EquipmentID)
	}
	if f.Status != "" {
		wheres = append(wheres, "i.status = ?")
		args = append(args, f.Status)
	}
	if f.IssueType != "" {
		wheres = append(wheres, "i.issue_type = ?")
		args = append(args, f.IssueType)
	}
	if f.OnlyOutstanding {
		wheres = append(wheres, "(i.status <> 'resolved' OR (i.cost IS NOT NULL AND i.cost_paid = 0))")
	}
	if len(wheres) > 0 {
		buf.WriteString(" WHERE " + strings.Join(wheres, " AND "))
	}
	buf.WriteString(" ORDER BY i.issue_id DESC LIMIT ? OFFSET ?")

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

	res := make([]Issue, 0, 16)
	for rows.Next() {
		var (
			i           Issue
			costPaidInt int
		)
		if err := rows.Scan(
			&i.IssueID, &i.IssueULID, &i.EquipmentID, &i.EquipmentName, &i.ReporterID,
			&i.IssueType, &i.Severity, &i.Status, &i.Cost, &costPaidInt, &i.ReportedAt, &i.ResolvedAt, &i.Note,
		); err != nil {
			return nil, err
		}
		i.CostPaid = costPaidInt != 0
		res = append(res, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// AutoResolve: 古い軽微な不具合をまとめて解決するメンテナンス用プロシージャ
func (s *Store) AutoResolve(ctx context.Context, schema string, days int) (int64, error) {
	q := fmt.Sprintf(`CALL %s.sp_auto_resolve_issues(?)`, fmt.Sprintf("`%s`", schema))

	var resolved int64
	if err := s.db.QueryRowContext(ctx, q, days).Scan(&resolved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return resolved, nil
}
