package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"LECS-backend/internal/platform/rbac"
	"LECS-backend/internal/platform/session"
)

const testCookie = "lecs_session"

type staticActorSource struct{}

func (staticActorSource) Resolve(_ context.Context, userID string, role rbac.Role) (rbac.Actor, error) {
	return rbac.Actor{UserID: userID, Role: role}, nil
}

func newIdentityRouter(t *testing.T) (*gin.Engine, *session.Store, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	sessions := session.NewStore(rdb, time.Hour)

	r := gin.New()
	r.Use(Identity([]byte("test-secret"), sessions, testCookie, staticActorSource{}))
	r.GET("/whoami", func(c *gin.Context) {
		actor, _ := ActorFrom(c)
		c.JSON(http.StatusOK, gin.H{"user_id": actor.UserID, "role": string(actor.Role)})
	})
	return r, sessions, mr
}

func TestIdentityNoCredential(t *testing.T) {
	r, _, _ := newIdentityRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestIdentityCookieSession(t *testing.T) {
	r, sessions, _ := newIdentityRouter(t)
	if err := sessions.Create(context.Background(), "sid1", "u100", "student"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "sid1"})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"user_id":"u100"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

// 失効セッションは 401 + クッキー破棄。500にしない
func TestIdentityExpiredSession(t *testing.T) {
	r, sessions, mr := newIdentityRouter(t)
	if err := sessions.Create(context.Background(), "sid1", "u100", "student"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "sid1"})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	setCookie := w.Header().Get("Set-Cookie")
	if !strings.Contains(setCookie, testCookie+"=") || !strings.Contains(setCookie, "Max-Age=0") {
		t.Errorf("Set-Cookie = %q, want cleared cookie", setCookie)
	}
}

// 壊れたセッション値でもリクエストは401で済む（プロセスは落ちない）
func TestIdentityCorruptSession(t *testing.T) {
	r, _, mr := newIdentityRouter(t)
	if err := mr.Set("lecs:sess:sid1", "not-json{{{"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "sid1"})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestIdentityInvalidBearer(t *testing.T) {
	r, _, _ := newIdentityRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
