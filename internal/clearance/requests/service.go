package requests

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"LECS-backend/internal/audit"
	"LECS-backend/internal/clearance/eligibility"
	"LECS-backend/internal/platform/apperr"
	"LECS-backend/internal/platform/logging"
	"LECS-backend/internal/platform/rbac"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Evaluator: 裁決のたびに必ず評価し直すための依存。
// キャッシュ済みの過去の評価を信用してはいけない
type Evaluator interface {
	Evaluate(ctx context.Context, userID string, schemas []string) (*eligibility.Eligibility, error)
	AllSchemas() []string
}

type Profiles interface {
	AssignedLabs(ctx context.Context, userID string) ([]string, error)
}

// ===== Service本体 =====

type Service struct {
	store    Store
	eval     Evaluator
	profiles Profiles
	clock    Clock
	id       IDGen
}

func NewService(conn *sql.DB, auditStore *audit.Store, eval Evaluator, profiles Profiles) *Service {
	return &Service{
		store:    NewStore(conn, auditStore),
		eval:     eval,
		profiles: profiles,
		clock:    realClock{},
		id:       ulidGen{},
	}
}

// NewServiceWith: テスト用
func NewServiceWith(store Store, eval Evaluator, profiles Profiles, clock Clock, id IDGen) *Service {
	return &Service{store: store, eval: eval, profiles: profiles, clock: clock, id: id}
}

// Submit: 本人がクリアランス申請を出す。
// 未決着の申請が既にあれば DUPLICATE_REQUEST
func (s *Service) Submit(ctx context.Context, actor rbac.Actor) (*RequestResponse, error) {
	if !actor.Can(rbac.PermRequestClearance) {
		return nil, apperr.ErrForbidden("request_clearance permission required")
	}

	open, err := s.store.HasOpen(ctx, actor.UserID)
	if err != nil {
		logging.L().Error("open request lookup failed",
			zap.String("op", "requests.Submit"), zap.String("user_id", actor.UserID), zap.Error(err))
		return nil, apperr.ErrInternal("request lookup failed")
	}
	if open {
		return nil, apperr.New(apperr.CodeDuplicateRequest, "an open clearance request already exists")
	}

	idStr, err := s.id.New()
	if err != nil {
		return nil, apperr.ErrInternal("id generation failed")
	}

	r := &Request{
		RequestULID: idStr,
		UserID:      actor.UserID,
		Status:      StatusPending,
		RequestedAt: s.clock.Now(),
	}
	entry := &audit.Entry{
		ActorID:  actor.UserID,
		Action:   audit.ActionClearanceSubmitted,
		Entity:   "clearance_request",
		EntityID: idStr,
	}
	if err := s.store.Insert(ctx, r, entry); err != nil {
		logging.L().Error("request insert failed",
			zap.String("op", "requests.Submit"), zap.String("user_id", actor.UserID), zap.Error(err))
		return nil, apperr.ErrInternal("request insert failed")
	}

	resp := buildResponse(r)
	return &resp, nil
}

// checkReviewScope: lab_admin は対象ユーザの全研究室が担当範囲に
// 収まっている時だけ裁決できる（admin は常に可）
func (s *Service) checkReviewScope(ctx context.Context, actor rbac.Actor, targetUserID string) ([]string, error) {
	if !actor.Can(rbac.PermReviewClearance) {
		return nil, apperr.ErrForbidden("review_clearance permission required")
	}

	userLabs, err := s.profiles.AssignedLabs(ctx, targetUserID)
	if err != nil {
		return nil, err
	}
	scope := userLabs
	if len(scope) == 0 {
		scope = s.eval.AllSchemas()
	}
	if !actor.CoversLabs(scope) {
		return nil, apperr.ErrForbidden("user labs outside reviewer scope")
	}
	return userLabs, nil
}

// Open: pending → under_review。すでに under_review なら何もしない
func (s *Service) Open(ctx context.Context, actor rbac.Actor, requestULID string) (*RequestResponse, error) {
	r, err := s.getRequest(ctx, requestULID)
	if err != nil {
		return nil, err
	}
	if _, err := s.checkReviewScope(ctx, actor, r.UserID); err != nil {
		return nil, err
	}
	if isTerminal(r.Status) {
		return nil, apperr.New(apperr.CodeAlreadyDecided, "request already decided")
	}
	if r.Status == StatusUnderReview {
		resp := buildResponse(r)
		return &resp, nil
	}

	entry := &audit.Entry{
		ActorID:  actor.UserID,
		Action:   audit.ActionClearanceOpened,
		Entity:   "clearance_request",
		EntityID: requestULID,
	}
	n, err := s.store.MarkUnderReview(ctx, requestULID, actor.UserID, entry)
	if err != nil {
		logging.L().Error("mark under_review failed",
			zap.String("op", "requests.Open"), zap.String("request_ulid", requestULID), zap.Error(err))
		return nil, apperr.ErrInternal("request update failed")
	}
	if n == 0 {
		// 先に他のレビュアーが動かした。裁決済みなら ALREADY_DECIDED、
		// 引き取られただけなら under_review をそのまま返す
		cur, err := s.getRequest(ctx, requestULID)
		if err != nil {
			return nil, err
		}
		if isTerminal(cur.Status) {
			return nil, apperr.New(apperr.CodeAlreadyDecided, "request already decided")
		}
		resp := buildResponse(cur)
		return &resp, nil
	}

	return s.get(ctx, requestULID)
}

// Decide: 裁決。approved はその場で適格性を評価し直し、
// ブロッカーが残っていれば INELIGIBLE（一覧つき）で拒否する。
// 状態遷移は条件付きUPDATEで、同時裁決は片方が ALREADY_DECIDED になる
func (s *Service) Decide(ctx context.Context, actor rbac.Actor, requestULID string, in DecideRequest) (*RequestResponse, error) {
	if in.Decision != StatusApproved && in.Decision != StatusRejected {
		return nil, apperr.ErrInvalid("decision must be approved or rejected")
	}

	r, err := s.getRequest(ctx, requestULID)
	if err != nil {
		return nil, err
	}

	userLabs, err := s.checkReviewScope(ctx, actor, r.UserID)
	if err != nil {
		return nil, err
	}

	if isTerminal(r.Status) {
		return nil, apperr.New(apperr.CodeAlreadyDecided, "request already decided")
	}

	d := Decision{
		ULID:       requestULID,
		Status:     in.Decision,
		ReviewerID: actor.UserID,
		DecidedAt:  s.clock.Now(),
	}

	switch in.Decision {
	case StatusApproved:
		elig, err := s.eval.Evaluate(ctx, r.UserID, userLabs)
		if err != nil {
			return nil, err
		}
		if !elig.Eligible {
			return nil, apperr.New(apperr.CodeIneligible, "user has outstanding blockers").WithDetails(elig.Blockers)
		}
		snapshot, err := json.Marshal(elig)
		if err != nil {
			return nil, apperr.ErrInternal("snapshot marshal failed")
		}
		d.Snapshot = snapshot
		d.Audit = &audit.Entry{
			ActorID:  actor.UserID,
			Action:   audit.ActionClearanceApproved,
			Entity:   "clearance_request",
			EntityID: requestULID,
			Detail:   map[string]any{"user_id": r.UserID},
		}
	case StatusRejected:
		if in.Notes == nil || *in.Notes == "" {
			return nil, apperr.New(apperr.CodeMissingReviewNotes, "rejection requires review notes")
		}
		d.Notes = *in.Notes
		d.Audit = &audit.Entry{
			ActorID:  actor.UserID,
			Action:   audit.ActionClearanceRejected,
			Entity:   "clearance_request",
			EntityID: requestULID,
			Detail:   map[string]any{"user_id": r.UserID},
		}
	}
	if in.Notes != nil {
		d.Notes = *in.Notes
	}

	n, err := s.store.Decide(ctx, d)
	if err != nil {
		logging.L().Error("decide update failed",
			zap.String("op", "requests.Decide"), zap.String("request_ulid", requestULID),
			zap.String("decision", in.Decision), zap.Error(err))
		return nil, apperr.ErrInternal("request update failed")
	}
	if n == 0 {
		return nil, apperr.New(apperr.CodeAlreadyDecided, "request was decided concurrently")
	}

	return s.get(ctx, requestULID)
}

func (s *Service) Get(ctx context.Context, actor rbac.Actor, requestULID string) (*RequestResponse, error) {
	r, err := s.getRequest(ctx, requestULID)
	if err != nil {
		return nil, err
	}
	if r.UserID != actor.UserID && !actor.Can(rbac.PermReviewClearance) {
		return nil, apperr.ErrForbidden("forbidden")
	}
	resp := buildResponse(r)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, actor rbac.Actor, f Filter) ([]RequestResponse, error) {
	// レビュー権限がなければ自分の申請だけ
	if !actor.Can(rbac.PermReviewClearance) {
		f.UserID = actor.UserID
	}

	rows, err := s.store.List(ctx, f)
	if err != nil {
		logging.L().Error("request list failed", zap.String("op", "requests.List"), zap.Error(err))
		return nil, apperr.ErrInternal("request list failed")
	}
	out := make([]RequestResponse, 0, len(rows))
	for i := range rows {
		out = append(out, buildResponse(&rows[i]))
	}
	return out, nil
}

// ---------- helpers ----------

func (s *Service) getRequest(ctx context.Context, requestULID string) (*Request, error) {
	if requestULID == "" {
		return nil, apperr.ErrInvalid("request_ulid is required")
	}
	r, err := s.store.GetByULID(ctx, requestULID)
	if err != nil {
		logging.L().Error("request lookup failed",
			zap.String("op", "requests.getRequest"), zap.String("request_ulid", requestULID), zap.Error(err))
		return nil, apperr.ErrInternal("request lookup failed")
	}
	if r == nil {
		return nil, apperr.ErrNotFound("clearance request not found")
	}
	return r, nil
}

func (s *Service) get(ctx context.Context, requestULID string) (*RequestResponse, error) {
	r, err := s.getRequest(ctx, requestULID)
	if err != nil {
		return nil, err
	}
	resp := buildResponse(r)
	return &resp, nil
}
