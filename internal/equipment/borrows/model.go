package borrows

import (
	"database/sql"
	"time"
)

// Borrow は各研究室スキーマの borrow_requests テーブルの1行を表す。
// returned_at IS NULL の行が「未返却」＝クリアランスのブロッカーになる
type Borrow struct {
	BorrowID      int64
	BorrowULID    string
	EquipmentID   int64
	EquipmentName string // equipment テーブルからのJOINで埋める
	BorrowerID    string
	BorrowedAt    time.Time
	DueOn         sql.NullTime
	ReturnedAt    sql.NullTime
	ProcessedByID sql.NullString
	Note          sql.NullString
}

// 貸出リスト取得用の検索条件
type Filter struct {
	BorrowerID      string
	EquipmentID     *int64
	OnlyOutstanding bool
	Limit           int
	Offset          int
}

// Availability は sp_equipment_available の結果行
type Availability struct {
	EquipmentID int64
	Total       int
	Borrowed    int
	Available   int
}
