package certificates

import (
	"encoding/json"
	"time"
)

// Certificate は共有スキーマの certificates テーブルの1行を表す。
// 発行後は不変。request_ulid に UNIQUE 制約があり、1申請につき1枚
type Certificate struct {
	CertID      int64
	Number      string
	RequestULID string
	UserID      string
	IssuedAt    time.Time
	// 承認時点の適格性スナップショット。再計算はしない
	Snapshot []byte
}

type CertificateResponse struct {
	Number      string          `json:"certificate_number"`
	RequestULID string          `json:"request_ulid"`
	UserID      string          `json:"user_id"`
	IssuedAt    time.Time       `json:"issued_at"`
	Eligibility json.RawMessage `json:"eligibility,omitempty"`
}

func buildResponse(c *Certificate) CertificateResponse {
	resp := CertificateResponse{
		Number:      c.Number,
		RequestULID: c.RequestULID,
		UserID:      c.UserID,
		IssuedAt:    c.IssuedAt,
	}
	if len(c.Snapshot) > 0 {
		resp.Eligibility = json.RawMessage(c.Snapshot)
	}
	return resp
}

// 証明書番号は申請ULIDから決定的に導出する（衝突しない・再発行で変わらない）
func NumberFor(requestULID string) string {
	return "LEC-" + requestULID
}
