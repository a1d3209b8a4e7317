package issues

import "time"

// 不具合報告リクエスト
type ReportIssueRequest struct {
	EquipmentID int64    `json:"equipment_id" binding:"required"`
	IssueType   string   `json:"issue_type" binding:"required"`
	Severity    string   `json:"severity" binding:"required"`
	Cost        *float64 `json:"cost,omitempty"`
	Note        *string  `json:"note,omitempty"`
}

type ResolveRequest struct {
	Note *string `json:"note,omitempty"`
}

type IssueResponse struct {
	IssueID       int64      `json:"issue_id"`
	IssueULID     string     `json:"issue_ulid"`
	Schema        string     `json:"lab_schema"`
	EquipmentID   int64      `json:"equipment_id"`
	EquipmentName string     `json:"equipment_name,omitempty"`
	ReporterID    string     `json:"reporter_id"`
	IssueType     string     `json:"issue_type"`
	Severity      string     `json:"severity"`
	Status        string     `json:"status"`
	Cost          *float64   `json:"cost,omitempty"`
	CostPaid      bool       `json:"cost_paid"`
	ReportedAt    time.Time  `json:"reported_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	Note          *string    `json:"note,omitempty"`
}

func buildIssueResponse(schema string, i *Issue) IssueResponse {
	resp := IssueResponse{
		IssueID:       i.IssueID,
		IssueULID:     i.IssueULID,
		Schema:        schema,
		EquipmentID:   i.EquipmentID,
		EquipmentName: i.EquipmentName,
		ReporterID:    i.ReporterID,
		IssueType:     i.IssueType,
		Severity:      i.Severity,
		Status:        i.Status,
		CostPaid:      i.CostPaid,
		ReportedAt:    i.ReportedAt,
	}
	if i.Cost.Valid {
		val := i.Cost.Float64
		resp.Cost = &val
	}
	if i.ResolvedAt.Valid {
		val := i.ResolvedAt.Time
		resp.ResolvedAt = &val
	}
	if i.Note.Valid {
		val := i.Note.String
		resp.Note = &val
	}
	return resp
}
