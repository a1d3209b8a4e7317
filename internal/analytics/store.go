package analytics

import (
	"context"
	"database/sql"
	"fmt"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func qualify(schema, table string) string {
	return fmt.Sprintf("`%s`.`%s`", schema, table)
}

// BorrowMonthly: スキーマ1つ分の月次貸出件数
func (s *Store) BorrowMonthly(ctx context.Context, schema, from, to string) ([]MonthlyBorrowRow, error) {
	q := fmt.Sprintf(`
SELECT DATE_FORMAT(borrowed_at, '%%Y-%%m') AS m, COUNT(*) AS cnt
FROM %s
WHERE borrowed_at >= ? AND borrowed_at < DATE_ADD(?, INTERVAL 1 DAY)
GROUP BY m
ORDER BY m`, qualify(schema, "borrow_requests"))

	rows, err := s.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MonthlyBorrowRow
	for rows.Next() {
		r := MonthlyBorrowRow{Schema: schema}
		if err := rows.Scan(&r.Month, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Outstanding: スキーマ1つ分の未返却・未解決の件数
func (s *Store) Outstanding(ctx context.Context, schema string) (borrowCnt, issueCnt int64, err error) {
	qb := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE returned_at IS NULL`, qualify(schema, "borrow_requests"))
	if err = s.db.QueryRowContext(ctx, qb).Scan(&borrowCnt); err != nil {
		return 0, 0, err
	}

	qi := fmt.Sprintf(`
SELECT COUNT(*) FROM %s
WHERE status <> 'resolved' OR (cost IS NOT NULL AND cost_paid = 0)`, qualify(schema, "equipment_issues"))
	if err = s.db.QueryRowContext(ctx, qi).Scan(&issueCnt); err != nil {
		return 0, 0, err
	}
	return borrowCnt, issueCnt, nil
}

// IssueByType: 種別×深刻度の件数
func (s *Store) IssueByType(ctx context.Context, schema string) ([]IssueTypeRow, error) {
	q := fmt.Sprintf(`
SELECT issue_type, severity, COUNT(*) AS cnt
FROM %s
GROUP BY issue_type, severity
ORDER BY issue_type, severity`, qualify(schema, "equipment_issues"))

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IssueTypeRow
	for rows.Next() {
		r := IssueTypeRow{Schema: schema}
		if err := rows.Scan(&r.IssueType, &r.Severity, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ClearanceThroughput: 共有テーブルの状態別件数
func (s *Store) ClearanceThroughput(ctx context.Context, from, to string) ([]ClearanceStatusRow, error) {
	const q = `
SELECT status, COUNT(*) AS cnt
FROM clearance_requests
WHERE requested_at >= ? AND requested_at < DATE_ADD(?, INTERVAL 1 DAY)
GROUP BY status
ORDER BY status`

	rows, err := s.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClearanceStatusRow
	for rows.Next() {
		var r ClearanceStatusRow
		if err := rows.Scan(&r.Status, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
