package issues

import (
	"database/sql"
	"time"
)

// Issue は各研究室スキーマの equipment_issues テーブルの1行を表す。
// 未解決、または費用未納の行がクリアランスのブロッカーになる
type Issue struct {
	IssueID       int64
	IssueULID     string
	EquipmentID   int64
	EquipmentName string
	ReporterID    string
	IssueType     string // damage | malfunction | lost | other
	Severity      string // low | medium | high
	Status        string // open | in_progress | resolved
	Cost          sql.NullFloat64
	CostPaid      bool
	ReportedAt    time.Time
	ResolvedAt    sql.NullTime
	Note          sql.NullString
}

const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
)

var issueTypes = map[string]struct{}{
	"damage":      {},
	"malfunction": {},
	"lost":        {},
	"other":       {},
}

var severities = map[string]struct{}{
	"low":    {},
	"medium": {},
	"high":   {},
}

// 一覧取得用の検索条件
type Filter struct {
	ReporterID      string
	EquipmentID     *int64
	Status          string
	IssueType       string
	OnlyOutstanding bool // 未解決 or 費用未納
	Limit           int
	Offset          int
}
