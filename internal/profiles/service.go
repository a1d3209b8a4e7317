package profiles

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"LECS-backend/internal/platform/apperr"
	"LECS-backend/internal/platform/db"
	"LECS-backend/internal/platform/logging"
	"LECS-backend/internal/platform/rbac"
)

type Service struct {
	store *Store
	labs  []db.LabConfig
}

func NewService(conn *sql.DB, labs []db.LabConfig) *Service {
	return &Service{store: NewStore(conn), labs: labs}
}

func (s *Service) hasLab(schema string) bool {
	for _, l := range s.labs {
		if l.Schema == schema {
			return true
		}
	}
	return false
}

func (s *Service) Get(ctx context.Context, userID string) (*ProfileResponse, error) {
	p, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		logging.L().Error("profile lookup failed", zap.String("op", "profiles.Get"), zap.String("user_id", userID), zap.Error(err))
		return nil, apperr.ErrInternal("profile lookup failed")
	}
	if p == nil {
		return nil, apperr.ErrNotFound("profile not found")
	}
	resp := toResponse(p)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]ProfileResponse, error) {
	rows, err := s.store.List(ctx, f)
	if err != nil {
		logging.L().Error("profile list failed", zap.String("op", "profiles.List"), zap.Error(err))
		return nil, apperr.ErrInternal("profile list failed")
	}
	out := make([]ProfileResponse, 0, len(rows))
	for i := range rows {
		out = append(out, toResponse(&rows[i]))
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, userID string, req UpdateProfileRequest) (*ProfileResponse, error) {
	if _, ok := rbac.ParseRole(req.Role); !ok {
		return nil, apperr.ErrInvalid("unknown role")
	}
	for _, lab := range req.AssignedLabs {
		if !s.hasLab(lab) {
			return nil, apperr.ErrInvalid("unknown lab schema: " + lab)
		}
	}

	p := &Profile{
		UserID:       userID,
		DisplayName:  req.DisplayName,
		Role:         req.Role,
		Department:   req.Department,
		AssignedLabs: req.AssignedLabs,
	}
	if err := s.store.Upsert(ctx, p); err != nil {
		logging.L().Error("profile upsert failed", zap.String("op", "profiles.Update"), zap.String("user_id", userID), zap.Error(err))
		return nil, apperr.ErrInternal("profile update failed")
	}
	return s.Get(ctx, userID)
}

func (s *Service) Deactivate(ctx context.Context, userID string) error {
	n, err := s.store.Deactivate(ctx, userID)
	if err != nil {
		logging.L().Error("profile deactivate failed", zap.String("op", "profiles.Deactivate"), zap.String("user_id", userID), zap.Error(err))
		return apperr.ErrInternal("profile deactivate failed")
	}
	if n == 0 {
		return apperr.ErrNotFound("profile not found or already inactive")
	}
	return nil
}

// AssignedLabs: クリアランス評価側が対象スキーマを決めるのに使う。
// プロフィール未登録は「全研究室対象」を意味する nil を返す
func (s *Service) AssignedLabs(ctx context.Context, userID string) ([]string, error) {
	p, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.ErrInternal("profile lookup failed")
	}
	if p == nil {
		return nil, nil
	}
	return p.AssignedLabs, nil
}

// Resolve: 認証ミドルウェアの ActorSource 実装。
// 停止済みプロフィールはここで弾く
func (s *Service) Resolve(ctx context.Context, userID string, role rbac.Role) (rbac.Actor, error) {
	p, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		logging.L().Error("actor resolve failed", zap.String("op", "profiles.Resolve"), zap.String("user_id", userID), zap.Error(err))
		return rbac.Actor{}, apperr.ErrInternal("profile lookup failed")
	}
	if p == nil {
		// アカウントのみ先行作成された状態。担当研究室なしで通す
		return rbac.Actor{UserID: userID, Role: role}, nil
	}
	if !p.IsActive {
		return rbac.Actor{}, apperr.ErrForbidden("account deactivated")
	}
	return rbac.Actor{UserID: userID, Role: role, Labs: p.AssignedLabs}, nil
}
