package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"LECS-backend/internal/platform/apperr"
	"LECS-backend/internal/platform/logging"
	"LECS-backend/internal/platform/rbac"
	"LECS-backend/internal/platform/session"
)

type Service struct {
	store    AccountStore
	sessions *session.Store
	secret   []byte
	ttl      time.Duration
}

func NewService(db *sql.DB, sessions *session.Store, secret []byte, ttl time.Duration) *Service {
	return &Service{
		store:    NewStore(db),
		sessions: sessions,
		secret:   secret,
		ttl:      ttl,
	}
}

type LoginResult struct {
	Token     string
	SessionID string
	Role      string
}

// Login: ブラウザ向けにクッキーセッション、APIクライアント向けにJWTの両方を発行する
func (s *Service) Login(ctx context.Context, id, password string) (*LoginResult, error) {
	acct, err := s.store.GetByID(ctx, id)
	if err != nil {
		logging.L().Error("account lookup failed",
			zap.String("op", "auth.Login"), zap.String("account_id", id), zap.Error(err))
		return nil, apperr.ErrInternal("login lookup failed")
	}
	if acct == nil {
		return nil, apperr.ErrUnauthorized("authentication failed")
	}
	if acct.IsDisabled {
		return nil, apperr.ErrUnauthorized("account disabled")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.ErrUnauthorized("authentication failed")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  acct.ID,
		"role": acct.Role,
		"exp":  time.Now().Add(s.ttl).Unix(),
	})
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, apperr.ErrInternal("token signing failed")
	}

	sessionID := uuid.NewString()
	if err := s.sessions.Create(ctx, sessionID, acct.ID, acct.Role); err != nil {
		return nil, apperr.ErrInternal("session create failed")
	}

	return &LoginResult{Token: tokenString, SessionID: sessionID, Role: acct.Role}, nil
}

func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.Delete(ctx, sessionID)
}

func (s *Service) Register(ctx context.Context, id, password, role string) error {
	if id == "" || password == "" {
		return apperr.ErrInvalid("id and password are required")
	}
	if _, ok := rbac.ParseRole(role); !ok {
		return apperr.ErrInvalid("unknown role")
	}

	exists, err := s.store.GetByID(ctx, id)
	if err != nil {
		logging.L().Error("account lookup failed",
			zap.String("op", "auth.Register"), zap.String("account_id", id), zap.Error(err))
		return apperr.ErrInternal("register lookup failed")
	}
	if exists != nil {
		return apperr.ErrConflict("id already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.ErrInternal("hash failed")
	}

	if err := s.store.Create(ctx, &Account{
		ID:           id,
		PasswordHash: string(hash),
		Role:         role,
		IsDisabled:   false,
	}); err != nil {
		logging.L().Error("account insert failed",
			zap.String("op", "auth.Register"), zap.String("account_id", id), zap.Error(err))
		return apperr.ErrInternal("register failed")
	}
	return nil
}

// Disable: アカウント停止と同時に全セッションを失効させる
func (s *Service) Disable(ctx context.Context, id string) error {
	n, err := s.store.Disable(ctx, id)
	if err != nil {
		logging.L().Error("account disable failed",
			zap.String("op", "auth.Disable"), zap.String("account_id", id), zap.Error(err))
		return apperr.ErrInternal("disable failed")
	}
	if n == 0 {
		return apperr.ErrNotFound("account not found or already disabled")
	}
	if err := s.sessions.RevokeAllForUser(ctx, id); err != nil {
		return apperr.ErrInternal("session revoke failed")
	}
	return nil
}
