package eligibility

import "time"

type BlockerKind string

const (
	KindBorrowedEquipment BlockerKind = "borrowed_equipment"
	KindUnpaidIssue       BlockerKind = "unpaid_issue"
)

// Blocker はクリアランスを妨げている事実1件。
// どの研究室スキーマ由来かを必ず持つ（横断JOINできないため出所が命）
type Blocker struct {
	Schema      string      `json:"lab_schema"`
	Kind        BlockerKind `json:"kind"`
	RecordULID  string      `json:"record_ulid"`
	EquipmentID int64       `json:"equipment_id"`
	Description string      `json:"description"`
	Cost        *float64    `json:"cost,omitempty"`
}

// Eligibility は評価結果。永続化しない（毎回その場で再計算する）
type Eligibility struct {
	UserID      string    `json:"user_id"`
	Eligible    bool      `json:"eligible"`
	Blockers    []Blocker `json:"blockers"`
	Schemas     []string  `json:"schemas"` // 評価対象（設定順）
	EvaluatedAt time.Time `json:"evaluated_at"`
}
