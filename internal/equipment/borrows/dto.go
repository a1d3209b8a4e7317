package borrows

import "time"

// 貸出登録リクエスト
type CreateBorrowRequest struct {
	EquipmentID int64  `json:"equipment_id" binding:"required"`
	BorrowerID  string `json:"borrower_id" binding:"required"`
	// "2006-01-02" 形式の文字列を想定（DATE）
	DueOn *string `json:"due_on,omitempty"`
	Note  *string `json:"note,omitempty"`
}

// 返却リクエスト
type ReturnRequest struct {
	ProcessedByID *string `json:"processed_by_id,omitempty"`
	Note          *string `json:"note,omitempty"`
}

// 貸出レスポンス
type BorrowResponse struct {
	BorrowID      int64      `json:"borrow_id"`
	BorrowULID    string     `json:"borrow_ulid"`
	Schema        string     `json:"lab_schema"`
	EquipmentID   int64      `json:"equipment_id"`
	EquipmentName string     `json:"equipment_name,omitempty"`
	BorrowerID    string     `json:"borrower_id"`
	BorrowedAt    time.Time  `json:"borrowed_at"`
	DueOn         *time.Time `json:"due_on,omitempty"`
	ReturnedAt    *time.Time `json:"returned_at,omitempty"`
	ProcessedByID *string    `json:"processed_by_id,omitempty"`
	Note          *string    `json:"note,omitempty"`
}

type AvailabilityResponse struct {
	Schema      string `json:"lab_schema"`
	EquipmentID int64  `json:"equipment_id"`
	Total       int    `json:"total"`
	Borrowed    int    `json:"borrowed"`
	Available   int    `json:"available"`
}

func buildBorrowResponse(schema string, b *Borrow) BorrowResponse {
	resp := BorrowResponse{
		BorrowID:      b.BorrowID,
		BorrowULID:    b.BorrowULID,
		Schema:        schema,
		EquipmentID:   b.EquipmentID,
		EquipmentName: b.EquipmentName,
		BorrowerID:    b.BorrowerID,
		BorrowedAt:    b.BorrowedAt,
	}
	if b.DueOn.Valid {
		val := b.DueOn.Time
		resp.DueOn = &val
	}
	if b.ReturnedAt.Valid {
		val := b.ReturnedAt.Time
		resp.ReturnedAt = &val
	}
	if b.ProcessedByID.Valid {
		val := b.ProcessedByID.String
		resp.ProcessedByID = &val
	}
	if b.Note.Valid {
		val := b.Note.String
		resp.Note = &val
	}
	return resp
}
