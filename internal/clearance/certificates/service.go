package certificates

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"LECS-backend/internal/audit"
	"LECS-backend/internal/clearance/requests"
	"LECS-backend/internal/platform/apperr"
	"LECS-backend/internal/platform/logging"
	"LECS-backend/internal/platform/rbac"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Requests: 申請の状態とスナップショットを引くための依存
type Requests interface {
	GetByULID(ctx context.Context, ulid string) (*requests.Request, error)
}

type Service struct {
	store Store
	reqs  Requests
	clock Clock
}

func NewService(conn *sql.DB, auditStore *audit.Store, reqs Requests) *Service {
	return &Service{store: NewStore(conn, auditStore), reqs: reqs, clock: realClock{}}
}

// NewServiceWith: テスト用
func NewServiceWith(store Store, reqs Requests, clock Clock) *Service {
	return &Service{store: store, reqs: reqs, clock: clock}
}

// Issue: 承認済み申請への証明書発行。冪等。
// すでに発行済みなら同じ証明書をそのまま返す。発行レースに負けた場合も同様
func (s *Service) Issue(ctx context.Context, actor rbac.Actor, requestULID string) (*CertificateResponse, error) {
	if requestULID == "" {
		return nil, apperr.ErrInvalid("request_ulid is required")
	}

	r, err := s.reqs.GetByULID(ctx, requestULID)
	if err != nil {
		logging.L().Error("request lookup failed",
			zap.String("op", "certificates.Issue"), zap.String("request_ulid", requestULID), zap.Error(err))
		return nil, apperr.ErrInternal("request lookup failed")
	}
	if r == nil {
		return nil, apperr.ErrNotFound("clearance request not found")
	}
	if r.UserID != actor.UserID && !actor.Can(rbac.PermReviewClearance) {
		return nil, apperr.ErrForbidden("forbidden")
	}
	if r.Status != requests.StatusApproved {
		return nil, apperr.New(apperr.CodeNotApproved, "certificate requires an approved request")
	}

	existing, err := s.store.GetByRequest(ctx, requestULID)
	if err != nil {
		logging.L().Error("certificate lookup failed",
			zap.String("op", "certificates.Issue"), zap.String("request_ulid", requestULID), zap.Error(err))
		return nil, apperr.ErrInternal("certificate lookup failed")
	}
	if existing != nil {
		resp := buildResponse(existing)
		return &resp, nil
	}

	cert := &Certificate{
		Number:      NumberFor(requestULID),
		RequestULID: requestULID,
		UserID:      r.UserID,
		IssuedAt:    s.clock.Now(),
		Snapshot:    r.EligibilitySnapshot,
	}
	entry := &audit.Entry{
		ActorID:  actor.UserID,
		Action:   audit.ActionCertificateIssued,
		Entity:   "certificate",
		EntityID: cert.Number,
		Detail:   map[string]any{"user_id": r.UserID, "request_ulid": requestULID},
	}

	if err := s.store.Insert(ctx, cert, entry); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// 同時発行で先を越された。相手の1枚を返す
			won, err := s.store.GetByRequest(ctx, requestULID)
			if err != nil || won == nil {
				return nil, apperr.ErrInternal("certificate lookup failed")
			}
			resp := buildResponse(won)
			return &resp, nil
		}
		logging.L().Error("certificate insert failed",
			zap.String("op", "certificates.Issue"), zap.String("request_ulid", requestULID), zap.Error(err))
		return nil, apperr.ErrInternal("certificate insert failed")
	}

	resp := buildResponse(cert)
	return &resp, nil
}

func (s *Service) GetByNumber(ctx context.Context, actor rbac.Actor, number string) (*CertificateResponse, error) {
	c, err := s.store.GetByNumber(ctx, number)
	if err != nil {
		logging.L().Error("certificate lookup failed",
			zap.String("op", "certificates.GetByNumber"), zap.String("cert_number", number), zap.Error(err))
		return nil, apperr.ErrInternal("certificate lookup failed")
	}
	if c == nil {
		return nil, apperr.ErrNotFound("certificate not found")
	}
	if c.UserID != actor.UserID && !actor.Can(rbac.PermReviewClearance) {
		return nil, apperr.ErrForbidden("forbidden")
	}
	resp := buildResponse(c)
	return &resp, nil
}
