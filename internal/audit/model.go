package audit

import "time"

// Entry は共有スキーマの audit_log テーブルの1行を表す
type Entry struct {
	AuditID   int64           `json:"audit_id"`
	ActorID   string          `json:"actor_id"`
	Action    string          `json:"action"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Detail    map[string]any  `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// 主要アクション名（自由文字列だが揃えておく）
const (
	ActionClearanceSubmitted = "clearance.submitted"
	ActionClearanceOpened    = "clearance.opened"
	ActionClearanceApproved  = "clearance.approved"
	ActionClearanceRejected  = "clearance.rejected"
	ActionCertificateIssued  = "certificate.issued"
)
