package requests

import (
	"database/sql"
	"time"
)

// Request は共有スキーマの clearance_requests テーブルの1行を表す。
// approved / rejected は終端。再オープンは無い
type Request struct {
	RequestID   int64
	RequestULID string
	UserID      string
	Status      string
	ReviewerID  sql.NullString
	ReviewNotes sql.NullString
	RequestedAt time.Time
	DecidedAt   sql.NullTime
	// 承認時点の評価結果JSON。証明書はこれを引き写す
	EligibilitySnapshot []byte
}

const (
	StatusPending     = "pending"
	StatusUnderReview = "under_review"
	StatusApproved    = "approved"
	StatusRejected    = "rejected"
)

func isTerminal(status string) bool {
	return status == StatusApproved || status == StatusRejected
}

// 一覧取得用の検索条件
type Filter struct {
	UserID string
	Status string
	Limit  int
	Offset int
}
