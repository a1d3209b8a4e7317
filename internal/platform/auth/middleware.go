package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"LECS-backend/internal/platform/apperr"
	"LECS-backend/internal/platform/rbac"
	"LECS-backend/internal/platform/session"
)

const (
	CtxUserIDKey = "user_id"
	CtxRoleKey   = "role"
	ctxActorKey  = "actor"
)

// ActorSource: 認証後にプロフィール（担当研究室・有効フラグ）を付加する
type ActorSource interface {
	Resolve(ctx context.Context, userID string, role rbac.Role) (rbac.Actor, error)
}

// Identity: Bearer JWT（APIクライアント）→ セッションクッキー（ブラウザ）の順で解決する。
// セッション不整合は500にせず未認証として扱う
func Identity(secret []byte, sessions *session.Store, cookieName string, src ActorSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID, role string

		if h := c.GetHeader("Authorization"); h != "" {
			uid, r, ok := parseBearer(h, secret)
			if !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Payload(apperr.ErrUnauthorized("invalid token")))
				return
			}
			userID, role = uid, r
		} else {
			ck, err := c.Request.Cookie(cookieName)
			if err != nil || ck.Value == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Payload(apperr.ErrUnauthorized("unauthenticated")))
				return
			}
			sess, err := sessions.Get(c.Request.Context(), ck.Value)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Payload(apperr.ErrUnauthorized("session unavailable")))
				return
			}
			if sess == nil {
				// 失効済み。クッキーも消しておく
				c.SetCookie(cookieName, "", -1, "/", "", true, true)
				c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Payload(apperr.ErrUnauthorized("session expired")))
				return
			}
			_ = sessions.Refresh(c.Request.Context(), ck.Value)
			userID, role = sess.UserID, sess.Role
		}

		r, ok := rbac.ParseRole(role)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Payload(apperr.ErrUnauthorized("invalid role")))
			return
		}

		actor, err := src.Resolve(c.Request.Context(), userID, r)
		if err != nil {
			c.AbortWithStatusJSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
			return
		}

		c.Set(CtxUserIDKey, actor.UserID)
		c.Set(CtxRoleKey, string(actor.Role))
		c.Set(ctxActorKey, actor)
		c.Next()
	}
}

func parseBearer(header string, secret []byte) (userID, role string, ok bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "", false
	}
	tokenStr := strings.TrimSpace(parts[1])
	if tokenStr == "" {
		return "", "", false
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		// alg 固定（none攻撃とか回避）
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || token == nil || !token.Valid {
		return "", "", false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", false
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", "", false
	}
	r, _ := claims["role"].(string)
	return sub, r, true
}

// ActorFrom: Identity 通過後のハンドラで使う
func ActorFrom(c *gin.Context) (rbac.Actor, bool) {
	v, ok := c.Get(ctxActorKey)
	if !ok {
		return rbac.Actor{}, false
	}
	actor, ok := v.(rbac.Actor)
	return actor, ok
}

// RequirePermission: 例) 監査ログは view_audit のみ許可したい時に追加
func RequirePermission(p rbac.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Payload(apperr.ErrUnauthorized("unauthenticated")))
			return
		}
		if !actor.Can(p) {
			c.AbortWithStatusJSON(http.StatusForbidden, apperr.Payload(apperr.ErrForbidden("forbidden")))
			return
		}
		c.Next()
	}
}
