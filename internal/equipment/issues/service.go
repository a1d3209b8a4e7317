package issues

import (
	"context"
	"crypto/rand"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"LECS-backend/internal/platform/apperr"
	"LECS-backend/internal/platform/db"
	"LECS-backend/internal/platform/logging"
)

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

type Service struct {
	store       *Store
	labs        []db.LabConfig
	defaultDays int
	clock       Clock
	id          IDGen
}

func NewService(conn *sql.DB, labs []db.LabConfig, autoResolveAfterDays int) *Service {
	return &Service{
		store:       NewStore(conn),
		labs:        labs,
		defaultDays: autoResolveAfterDays,
		clock:       realClock{},
		id:          ulidGen{},
	}
}

func (s *Service) checkSchema(schema string) error {
	for _, l := range s.labs {
		if l.Schema == schema {
			return nil
		}
	}
	return apperr.ErrInvalid("unknown lab schema: " + schema)
}

// 不具合報告
func (s *Service) Report(ctx context.Context, schema, reporterID string, req ReportIssueRequest) (*IssueResponse, error) {
	if err := s.checkSchema(schema); err != nil {
		return nil, err
	}
	if req.EquipmentID <= 0 {
		return nil, apperr.ErrInvalid("equipment_id must be > 0")
	}
	if _, ok := issueTypes[req.IssueType]; !ok {
		return nil, apperr.ErrInvalid("issue_type must be damage|malfunction|lost|other")
	}
	if _, ok := severities[req.Severity]; !ok {
		return nil, apperr.ErrInvalid("severity must be low|medium|high")
	}
	if req.Cost != nil && *req.Cost < 0 {
		return nil, apperr.ErrInvalid("cost must be >= 0")
	}

	idStr, err := s.id.New()
	if err != nil {
		return nil, apperr.ErrInternal("id generation failed")
	}

	i := &Issue{
		IssueULID:   idStr,
		EquipmentID: req.EquipmentID,
		ReporterID:  reporterID,
		IssueType:   req.IssueType,
		Severity:    req.Severity,
		Status:      StatusOpen,
		ReportedAt:  s.clock.Now(),
	}
	if req.Cost != nil {
		i.Cost = sql.NullFloat64{Float64: *req.Cost, Valid: true}
	}
	if req.Note != nil && *req.Note != "" {
		i.Note = sql.NullString{String: *req.Note, Valid: true}
	}

	if err := s.store.Insert(ctx, schema, i); err != nil {
		logging.L().Error("issue insert failed",
			zap.String("op", "issues.Report"), zap.String("schema", schema),
			zap.String("reporter_id", reporterID), zap.Error(err))
		return nil, apperr.ErrInternal("issue insert failed")
	}

	resp := buildIssueResponse(schema, i)
	return &resp, nil
}

// 解決処理
func (s *Service) Resolve(ctx context.Context, schema, issueULID string, req ResolveRequest) (*IssueResponse, error) {
	if err := s.checkSchema(schema); err != nil {
		return nil, err
	}

	n, err := s.store.Resolve(ctx, schema, issueULID, req.Note)
	if err != nil {
		logging.L().Error("issue resolve failed",
			zap.String("op", "issues.Resolve"), zap.String("schema", schema),
			zap.String("issue_ulid", issueULID), zap.Error(err))
		return nil, apperr.ErrInternal("issue resolve failed")
	}
	if n == 0 {
		i, err := s.store.GetByULID(ctx, schema, issueULID)
		if err != nil {
			return nil, apperr.ErrInternal("issue lookup failed")
		}
		if i == nil {
			return nil, apperr.ErrNotFound("issue not found")
		}
		return nil, apperr.ErrConflict("already resolved")
	}

	i, err := s.store.GetByULID(ctx, schema, issueULID)
	if err != nil || i == nil {
		return nil, apperr.ErrInternal("issue lookup failed")
	}
	resp := buildIssueResponse(schema, i)
	return &resp, nil
}

// 費用納付
func (s *Service) MarkPaid(ctx context.Context, schema, issueULID string) (*IssueResponse, error) {
	if err := s.checkSchema(schema); err != nil {
		return nil, err
	}

	n, err := s.store.MarkPaid(ctx, schema, issueULID)
	if err != nil {
		logging.L().Error("issue pay failed",
			zap.String("op", "issues.MarkPaid"), zap.String("schema", schema),
			zap.String("issue_ulid", issueULID), zap.Error(err))
		return nil, apperr.ErrInternal("issue pay failed")
	}
	if n == 0 {
		i, err := s.store.GetByULID(ctx, schema, issueULID)
		if err != nil {
			return nil, apperr.ErrInternal("issue lookup failed")
		}
		if i == nil {
			return nil, apperr.ErrNotFound("issue not found")
		}
		return nil, apperr.ErrConflict("no unpaid cost on this issue")
	}

	i, err := s.store.GetByULID(ctx, schema, issueULID)
	if err != nil || i == nil {
		return nil, apperr.ErrInternal("issue lookup failed")
	}
	resp := buildIssueResponse(schema, i)
	return &resp, nil
}

// 一覧
func (s *Service) List(ctx context.Context, schema string, f Filter) ([]IssueResponse, error) {
	if err := s.checkSchema(schema); err != nil {
		return nil, err
	}

	rows, err := s.store.List(ctx, schema, f)
	if err != nil {
		logging.L().Error("issue list failed",
			zap.String("op", "issues.List"), zap.String("schema", schema), zap.Error(err))
		return nil, apperr.ErrInternal("issue list failed")
	}

	out := make([]IssueResponse, 0, len(rows))
	for i := range rows {
		out = append(out, buildIssueResponse(schema, &rows[i]))
	}
	return out, nil
}

// AutoResolve: 指定日数より古い open な不具合をDB側プロシージャで一括解決
func (s *Service) AutoResolve(ctx context.Context, schema string, days int) (int64, error) {
	if err := s.checkSchema(schema); err != nil {
		return 0, err
	}
	if days <= 0 {
		days = s.defaultDays
	}

	n, err := s.store.AutoResolve(ctx, schema, days)
	if err != nil {
		logging.L().Error("auto-resolve failed",
			zap.String("op", "issues.AutoResolve"), zap.String("schema", schema),
			zap.Int("days", days), zap.Error(err))
		return 0, apperr.ErrInternal("auto-resolve failed")
	}
	return n, nil
}
