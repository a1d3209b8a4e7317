package certificates

import (
	"context"
	"testing"
	"time"

	"LECS-backend/internal/audit"
	"LECS-backend/internal/clearance/requests"
	"LECS-backend/internal/platform/apperr"
	"LECS-backend/internal/platform/rbac"
)

type fakeStore struct {
	byRequest map[string]*Certificate
	entries   []*audit.Entry
	// Insert 直前に別プロセスが1枚発行した状況を作る
	raceWith *Certificate
}

func newFakeStore() *fakeStore {
	return &fakeStore{byRequest: map[string]*Certificate{}}
}

func (f *fakeStore) GetByRequest(_ context.Context, requestULID string) (*Certificate, error) {
	c, ok := f.byRequest[requestULID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) GetByNumber(_ context.Context, number string) (*Certificate, error) {
	for _, c := range f.byRequest {
		if c.Number == number {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Insert(_ context.Context, cert *Certificate, entry *audit.Entry) error {
	if f.raceWith != nil {
		f.byRequest[f.raceWith.RequestULID] = f.raceWith
		f.raceWith = nil
		return ErrDuplicate
	}
	if _, ok := f.byRequest[cert.RequestULID]; ok {
		return ErrDuplicate
	}
	cert.CertID = int64(len(f.byRequest) + 1)
	cp := *cert
	f.byRequest[cert.RequestULID] = &cp
	if entry != nil {
		f.entries = append(f.entries, entry)
	}
	return nil
}

type fakeRequests struct {
	byULID map[string]*requests.Request
}

func (f *fakeRequests) GetByULID(_ context.Context, ulid string) (*requests.Request, error) {
	r, ok := f.byULID[ulid]
	if !ok {
		return nil, nil
	}
	return r, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

const reqULID = "01J5TESTREQUESTULID0000000"

func approvedRequest() *requests.Request {
	return &requests.Request{
		RequestULID:         reqULID,
		UserID:              "s001",
		Status:              requests.StatusApproved,
		EligibilitySnapshot: []byte(`{"eligible":true,"blockers":[]}`),
	}
}

func newTestService(store Store, reqs Requests) *Service {
	return NewServiceWith(store, reqs, fixedClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)})
}

var owner = rbac.Actor{UserID: "s001", Role: rbac.RoleStudent}

func TestIssue(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeRequests{byULID: map[string]*requests.Request{reqULID: approvedRequest()}})

	got, err := svc.Issue(context.Background(), owner, reqULID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if got.Number != NumberFor(reqULID) {
		t.Errorf("number = %s, want %s", got.Number, NumberFor(reqULID))
	}
	// 承認時点のスナップショットを引き写す（再計算しない）
	if string(got.Eligibility) != `{"eligible":true,"blockers":[]}` {
		t.Errorf("eligibility = %s", got.Eligibility)
	}
	if len(store.entries) != 1 || store.entries[0].Action != audit.ActionCertificateIssued {
		t.Error("発行の監査行が書かれていない")
	}
}

// 冪等性: 2回目以降は同じ1枚をそのまま返す
func TestIssueIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeRequests{byULID: map[string]*requests.Request{reqULID: approvedRequest()}})

	first, err := svc.Issue(context.Background(), owner, reqULID)
	if err != nil {
		t.Fatalf("Issue(1): %v", err)
	}
	second, err := svc.Issue(context.Background(), owner, reqULID)
	if err != nil {
		t.Fatalf("Issue(2): %v", err)
	}
	if first.Number != second.Number {
		t.Errorf("number changed: %s -> %s", first.Number, second.Number)
	}
	if !first.IssuedAt.Equal(second.IssuedAt) {
		t.Error("再発行で issued_at が変わってはいけない")
	}
	if len(store.entries) != 1 {
		t.Errorf("audit entries = %d, want 1", len(store.entries))
	}
}

func TestIssueNotApproved(t *testing.T) {
	for _, status := range []string{requests.StatusPending, requests.StatusUnderReview, requests.StatusRejected} {
		r := approvedRequest()
		r.Status = status
		svc := newTestService(newFakeStore(), &fakeRequests{byULID: map[string]*requests.Request{reqULID: r}})

		_, err := svc.Issue(context.Background(), owner, reqULID)
		if apperr.CodeOf(err) != apperr.CodeNotApproved {
			t.Errorf("status=%s: code = %s, want NOT_APPROVED", status, apperr.CodeOf(err))
		}
	}
}

func TestIssueRequestNotFound(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeRequests{byULID: map[string]*requests.Request{}})
	_, err := svc.Issue(context.Background(), owner, "missing")
	if apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("code = %s, want NOT_FOUND", apperr.CodeOf(err))
	}
}

func TestIssueForbiddenForOtherStudent(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeRequests{byULID: map[string]*requests.Request{reqULID: approvedRequest()}})

	other := rbac.Actor{UserID: "s999", Role: rbac.RoleStudent}
	_, err := svc.Issue(context.Background(), other, reqULID)
	if apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Errorf("code = %s, want FORBIDDEN", apperr.CodeOf(err))
	}

	// レビュー権限があれば他人の申請にも発行できる
	reviewer := rbac.Actor{UserID: "la001", Role: rbac.RoleLabAdmin, Labs: []string{"lab1"}}
	if _, err := svc.Issue(context.Background(), reviewer, reqULID); err != nil {
		t.Errorf("reviewer Issue: %v", err)
	}
}

// 発行レースに負けた側は勝者の1枚を返す（エラーにしない）
func TestIssueRaceLoserGetsWinner(t *testing.T) {
	store := newFakeStore()
	winner := &Certificate{
		CertID:      1,
		Number:      NumberFor(reqULID),
		RequestULID: reqULID,
		UserID:      "s001",
		IssuedAt:    time.Date(2026, 4, 1, 8, 59, 59, 0, time.UTC),
	}
	store.raceWith = winner
	svc := newTestService(store, &fakeRequests{byULID: map[string]*requests.Request{reqULID: approvedRequest()}})

	got, err := svc.Issue(context.Background(), owner, reqULID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !got.IssuedAt.Equal(winner.IssuedAt) {
		t.Error("勝者の証明書が返っていない")
	}
}

func TestGetByNumber(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeRequests{byULID: map[string]*requests.Request{reqULID: approvedRequest()}})

	issued, err := svc.Issue(context.Background(), owner, reqULID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := svc.GetByNumber(context.Background(), owner, issued.Number)
	if err != nil {
		t.Fatalf("GetByNumber: %v", err)
	}
	if got.RequestULID != reqULID {
		t.Errorf("request_ulid = %s, want %s", got.RequestULID, reqULID)
	}

	_, err = svc.GetByNumber(context.Background(), owner, "LEC-UNKNOWN")
	if apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("code = %s, want NOT_FOUND", apperr.CodeOf(err))
	}

	other := rbac.Actor{UserID: "s999", Role: rbac.RoleStudent}
	_, err = svc.GetByNumber(context.Background(), other, issued.Number)
	if apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Errorf("code = %s, want FORBIDDEN", apperr.CodeOf(err))
	}
}
