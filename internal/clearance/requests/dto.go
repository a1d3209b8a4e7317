package requests

import (
	"encoding/json"
	"time"
)

type DecideRequest struct {
	Decision string  `json:"decision" binding:"required"` // approved | rejected
	Notes    *string `json:"notes,omitempty"`
}

type RequestResponse struct {
	RequestULID string          `json:"request_ulid"`
	UserID      string          `json:"user_id"`
	Status      string          `json:"status"`
	ReviewerID  *string         `json:"reviewer_id,omitempty"`
	ReviewNotes *string         `json:"review_notes,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
	DecidedAt   *time.Time      `json:"decided_at,omitempty"`
	Eligibility json.RawMessage `json:"eligibility,omitempty"` // 承認時スナップショット
}

func buildResponse(r *Request) RequestResponse {
	resp := RequestResponse{
		RequestULID: r.RequestULID,
		UserID:      r.UserID,
		Status:      r.Status,
		RequestedAt: r.RequestedAt,
	}
	if r.ReviewerID.Valid {
		val := r.ReviewerID.String
		resp.ReviewerID = &val
	}
	if r.ReviewNotes.Valid {
		val := r.ReviewNotes.String
		resp.ReviewNotes = &val
	}
	if r.DecidedAt.Valid {
		val := r.DecidedAt.Time
		resp.DecidedAt = &val
	}
	if len(r.EligibilitySnapshot) > 0 {
		resp.Eligibility = json.RawMessage(r.EligibilitySnapshot)
	}
	return resp
}
