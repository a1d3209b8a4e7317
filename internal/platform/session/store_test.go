package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, ttl), mr
}

func TestCreateAndGet(t *testing.T) {
	st, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := st.Create(ctx, "sid1", "u100", "student"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	sess, err := st.Get(ctx, "sid1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess == nil {
		t.Fatal("作成直後のセッションが取れない")
	}
	if sess.UserID != "u100" || sess.Role != "student" {
		t.Errorf("session = %+v", sess)
	}
}

func TestGetMissing(t *testing.T) {
	st, _ := newTestStore(t, time.Hour)

	sess, err := st.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess != nil {
		t.Errorf("未登録IDで session = %+v, want nil", sess)
	}
}

// 期限切れは (nil, nil)。エラーにはしない
func TestGetExpired(t *testing.T) {
	st, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	if err := st.Create(ctx, "sid1", "u100", "student"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	sess, err := st.Get(ctx, "sid1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess != nil {
		t.Errorf("期限切れで session = %+v, want nil", sess)
	}
}

// 壊れた値は未認証扱いで捨てる。Get/Delete が互いを呼び合って
// スタックを食い潰さないこと
func TestGetCorruptValueDiscarded(t *testing.T) {
	st, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := mr.Set(key("sid1"), "not-json{{{"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sess, err := st.Get(ctx, "sid1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess != nil {
		t.Errorf("壊れた値で session = %+v, want nil", sess)
	}
	if mr.Exists(key("sid1")) {
		t.Error("壊れたキーが残っている")
	}
}

func TestDelete(t *testing.T) {
	st, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := st.Create(ctx, "sid1", "u100", "student"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := st.Delete(ctx, "sid1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if mr.Exists(key("sid1")) {
		t.Error("セッションキーが残っている")
	}

	sess, err := st.Get(ctx, "sid1")
	if err != nil || sess != nil {
		t.Errorf("Get after Delete = (%+v, %v), want (nil, nil)", sess, err)
	}
}

func TestRefreshSlidesTTL(t *testing.T) {
	st, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	if err := st.Create(ctx, "sid1", "u100", "student"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	mr.FastForward(40 * time.Second)
	if err := st.Refresh(ctx, "sid1"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	// 元のTTLなら切れているはずの時点でもまだ生きている
	mr.FastForward(40 * time.Second)

	sess, err := st.Get(ctx, "sid1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess == nil {
		t.Error("Refresh後にセッションが失効している")
	}
}

func TestRevokeAllForUser(t *testing.T) {
	st, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := st.Create(ctx, "sid1", "u100", "student"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := st.Create(ctx, "sid2", "u100", "student"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := st.Create(ctx, "sid3", "u200", "faculty"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := st.RevokeAllForUser(ctx, "u100"); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}

	for _, sid := range []string{"sid1", "sid2"} {
		if sess, _ := st.Get(ctx, sid); sess != nil {
			t.Errorf("%s が失効していない", sid)
		}
	}
	if mr.Exists(userSetKey("u100")) {
		t.Error("ユーザのセッション集合キーが残っている")
	}
	// 他ユーザは無傷
	if sess, _ := st.Get(ctx, "sid3"); sess == nil {
		t.Error("無関係なユーザのセッションまで消えている")
	}
}
