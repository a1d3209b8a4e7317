package borrows

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

// ===== Service本体 =====

type Service struct {
	store *Store
	labs  []db.LabConfig
	clock Clock
	id    IDGen
}

func NewService(conn *sql.DB, labs []db.LabConfig) *Service {
	return &Service{
		store: NewStore(conn),
		labs:  labs,
		clock: realClock{},
		id:    ulidGen{},
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

// 貸出登録
func (s *Service) CreateBorrow(ctx context.Context, schema string, req CreateBorrowRequest) (*BorrowResponse, error) {
	if err := s.checkSchema(schema); err != nil {
		return nil, err
	}
	if req.EquipmentID <= 0 {
		return nil, apperr.ErrInvalid("equipment_id must be > 0")
	}
	if req.BorrowerID == "" {
		return nil, apperr.ErrInvalid("borrower_id is required")
	}

	// 在庫確認（DB側プロシージャ）
	avail, err := s.store.Availability(ctx, schema, req.EquipmentID)
	if err != nil {
		logging.L().Error("availability query failed",
			zap.String("op", "borrows.CreateBorrow"), zap.String("schema", schema),
			zap.Int64("equipment_id", req.EquipmentID), zap.Error(err))
		return nil, apperr.ErrInternal("availability check failed")
	}
	if avail == nil {
		return nil, apperr.ErrNotFound("equipment not found")
	}
	if avail.Available <= 0 {
		return nil, apperr.ErrConflict("equipment not available")
	}

	idStr, err := s.id.New()
	if err != nil {
		return nil, apperr.ErrInternal("id generation failed")
	}

	b := &Borrow{
		BorrowULID:  idStr,
		EquipmentID: req.EquipmentID,
		BorrowerID:  req.BorrowerID,
		BorrowedAt:  s.clock.Now(),
	}
	if req.DueOn != nil && *req.DueOn != "" {
		parsed, err := time.Parse("2006-01-02", *req.DueOn)
		if err != nil {
			return nil, apperr.ErrInvalid("invalid due_on format, expected YYYY-MM-DD")
		}
		b.DueOn = sql.NullTime{Time: parsed, Valid: true}
	}
	if req.Note != nil && *req.Note != "" {
		b.Note = sql.NullString{String: *req.Note, Valid: true}
	}

	if err := s.store.InsertBorrow(ctx, schema, b); err != nil {
		logging.L().Error("borrow insert failed",
			zap.String("op", "borrows.CreateBorrow"), zap.String("schema", schema),
			zap.String("borrower_id", req.BorrowerID), zap.Error(err))
		return nil, apperr.ErrInternal("borrow insert failed")
	}

	resp := buildBorrowResponse(schema, b)
	return &resp, nil
}

// 返却処理。条件付きUPDATEなので二重返却は CONFLICT になる
func (s *Service) Return(ctx context.Context, schema, borrowULID string, req ReturnRequest) (*BorrowResponse, error) {
	if err := s.checkSchema(schema); err != nil {
		return nil, err
	}
	if borrowULID == "" {
		return nil, apperr.ErrInvalid("borrow_ulid is required")
	}

	n, err := s.store.MarkReturned(ctx, schema, borrowULID, req.ProcessedByID, req.Note)
	if err != nil {
		logging.L().Error("return update failed",
			zap.String("op", "borrows.Return"), zap.String("schema", schema),
			zap.String("borrow_ulid", borrowULID), zap.Error(err))
		return nil, apperr.ErrInternal("return update failed")
	}
	if n == 0 {
		// 行が無いか返却済みかを区別して返す
		b, err := s.store.GetByULID(ctx, schema, borrowULID)
		if err != nil {
			return nil, apperr.ErrInternal("borrow lookup failed")
		}
		if b == nil {
			return nil, apperr.ErrNotFound("borrow not found")
		}
		return nil, apperr.ErrConflict("already returned")
	}

	b, err := s.store.GetByULID(ctx, schema, borrowULID)
	if err != nil || b == nil {
		return nil, apperr.ErrInternal("borrow lookup failed")
	}
	resp := buildBorrowResponse(schema, b)
	return &resp, nil
}

// 貸出一覧
func (s *Service) List(ctx context.Context, schema string, f Filter) ([]BorrowResponse, error) {
	if err := s.checkSchema(schema); err != nil {
		return nil, err
	}

	rows, err := s.store.List(ctx, schema, f)
	if err != nil {
		logging.L().Error("borrow list failed",
			zap.String("op", "borrows.List"), zap.String("schema", schema), zap.Error(err))
		return nil, apperr.ErrInternal("borrow list failed")
	}

	out := make([]BorrowResponse, 0, len(rows))
	for i := range rows {
		out = append(out, buildBorrowResponse(schema, &rows[i]))
	}
	return out, nil
}

// 在庫照会
func (s *Service) Availability(ctx context.Context, schema string, equipmentID int64) (*AvailabilityResponse, error) {
	if err := s.checkSchema(schema); err != nil {
		return nil, err
	}

	a, err := s.store.Availability(ctx, schema, equipmentID)
	if err != nil {
		logging.L().Error("availability query failed",
			zap.String("op", "borrows.Availability"), zap.String("schema", schema),
			zap.Int64("equipment_id", equipmentID), zap.Error(err))
		return nil, apperr.ErrInternal("availability check failed")
	}
	if a == nil {
		return nil, apperr.ErrNotFound("equipment not found")
	}
	return &AvailabilityResponse{
		Schema:      schema,
		EquipmentID: a.EquipmentID,
		Total:       a.Total,
		Borrowed:    a.Borrowed,
		Available:   a.Available,
	}, nil
}
