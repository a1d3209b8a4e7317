package eligibility

import (
	"context"
	"database/sql"
	"fmt"
)

// Store: スキーマ単位の存在クエリ2本。テストではフェイクに差し替える
type Store interface {
	OutstandingBorrows(ctx context.Context, schema, userID string) ([]Blocker, error)
	OutstandingIssues(ctx context.Context, schema, userID string, costThreshold float64) ([]Blocker, error)
}

type mysqlStore struct{ db *sql.DB }

func NewStore(db *sql.DB) Store { return &mysqlStore{db: db} }

func qualify(schema, table string) string {
	return fmt.Sprintf("`%s`.`%s`", schema, table)
}

// OutstandingBorrows: returned_at IS NULL の貸出をブロッカーとして返す。
// 並び順はIDの昇順で固定（評価結果の再現性のため）
func (s *mysqlStore) OutstandingBorrows(ctx context.Context, schema, userID string) ([]Blocker, error) {
	q := fmt.Sprintf(`
SELECT b.borrow_ulid, b.equipment_id, COALESCE(e.name, ''),
       DATE_FORMAT(b.borrowed_at, '%%Y-%%m-%%d'), DATE_FORMAT(b.due_on, '%%Y-%%m-%%d')
FROM %s b
LEFT JOIN %s e ON e.equipment_id = b.equipment_id
WHERE b.borrower_id = ? AND b.returned_at IS NULL
ORDER BY b.borrow_id`, qualify(schema, "borrow_requests"), qualify(schema, "equipment"))

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Blocker
	for rows.Next() {
		var (
			ulid       string
			equipID    int64
			name       string
			borrowedOn string
			dueOn      sql.NullString
		)
		if err := rows.Scan(&ulid, &equipID, &name, &borrowedOn, &dueOn); err != nil {
			return nil, err
		}
		desc := fmt.Sprintf("unreturned equipment %q (borrowed %s", name, borrowedOn)
		if dueOn.Valid {
			desc += ", due " + dueOn.String
		}
		desc += ")"
		out = append(out, Blocker{
			Schema:      schema,
			Kind:        KindBorrowedEquipment,
			RecordULID:  ulid,
			EquipmentID: equipID,
			Description: desc,
		})
	}
	return out, rows.Err()
}

// OutstandingIssues: 未解決は常にブロッカー。解決済みでも費用が未納で
// 閾値を超えていればブロッカー（閾値は clearance.unpaid_cost_threshold）
func (s *mysqlStore) OutstandingIssues(ctx context.Context, schema, userID string, costThreshold float64) ([]Blocker, error) {
	q := fmt.Sprintf(`
SELECT i.issue_ulid, i.equipment_id, COALESCE(e.name, ''), i.issue_type, i.status, i.cost, i.cost_paid
FROM %s i
LEFT JOIN %s e ON e.equipment_id = i.equipment_id
WHERE i.reporter_id = ?
  AND (i.status <> 'resolved' OR (i.cost IS NOT NULL AND i.cost_paid = 0 AND i.cost > ?))
ORDER BY i.issue_id`, qualify(schema, "equipment_issues"), qualify(schema, "equipment"))

	rows, err := s.db.QueryContext(ctx, q, userID, costThreshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Blocker
	for rows.Next() {
		var (
			ulid        string
			equipID     int64
			name        string
			issueType   string
			status      string
			cost        sql.NullFloat64
			costPaidInt int
		)
		if err := rows.Scan(&ulid, &equipID, &name, &issueType, &status, &cost, &costPaidInt); err != nil {
			return nil, err
		}

		b := Blocker{
			Schema:      schema,
			Kind:        KindUnpaidIssue,
			RecordULID:  ulid,
			EquipmentID: equipID,
		}
		if cost.Valid {
			v := cost.Float64
			b.Cost = &v
		}
		switch {
		case status != "resolved":
			b.Description = fmt.Sprintf("unresolved %s issue on equipment %q", issueType, name)
		default:
			b.Description = fmt.Sprintf("unpaid cost on %s issue for equipment %q", issueType, name)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
