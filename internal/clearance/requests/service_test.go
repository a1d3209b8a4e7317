package requests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"LECS-backend/internal/audit"
	"LECS-backend/internal/clearance/eligibility"
	"LECS-backend/internal/platform/apperr"
	"LECS-backend/internal/platform/rbac"
)

// ===== フェイク =====

type fakeStore struct {
	byULID  map[string]*Request
	entries []*audit.Entry
	seq     int
	// Decide の条件付きUPDATEを競合で0行にしたい時に立てる
	forceZeroRows bool
	// MarkUnderReview 直前に他レビュアーが状態を動かした状況を作る
	claimRaceStatus string
}

func newFakeStore() *fakeStore {
	return &fakeStore{byULID: map[string]*Request{}}
}

func (f *fakeStore) Insert(_ context.Context, r *Request, entry *audit.Entry) error {
	f.seq++
	r.RequestID = int64(f.seq)
	cp := *r
	f.byULID[r.RequestULID] = &cp
	if entry != nil {
		f.entries = append(f.entries, entry)
	}
	return nil
}

func (f *fakeStore) GetByULID(_ context.Context, ulid string) (*Request, error) {
	r, ok := f.byULID[ulid]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) HasOpen(_ context.Context, userID string) (bool, error) {
	for _, r := range f.byULID {
		if r.UserID == userID && !isTerminal(r.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) MarkUnderReview(_ context.Context, ulid, reviewerID string, entry *audit.Entry) (int64, error) {
	r, ok := f.byULID[ulid]
	if !ok {
		return 0, nil
	}
	if f.claimRaceStatus != "" {
		r.Status = f.claimRaceStatus
		r.ReviewerID.String = "rival"
		r.ReviewerID.Valid = true
		return 0, nil
	}
	if r.Status != StatusPending {
		return 0, nil
	}
	r.Status = StatusUnderReview
	r.ReviewerID.String = reviewerID
	r.ReviewerID.Valid = true
	if entry != nil {
		f.entries = append(f.entries, entry)
	}
	return 1, nil
}

func (f *fakeStore) Decide(_ context.Context, d Decision) (int64, error) {
	r, ok := f.byULID[d.ULID]
	if !ok || isTerminal(r.Status) || f.forceZeroRows {
		return 0, nil
	}
	r.Status = d.Status
	r.ReviewerID.String = d.ReviewerID
	r.ReviewerID.Valid = true
	if d.Notes != "" {
		r.ReviewNotes.String = d.Notes
		r.ReviewNotes.Valid = true
	}
	r.DecidedAt.Time = d.DecidedAt
	r.DecidedAt.Valid = true
	r.EligibilitySnapshot = d.Snapshot
	if d.Audit != nil {
		f.entries = append(f.entries, d.Audit)
	}
	return 1, nil
}

func (f *fakeStore) List(_ context.Context, filter Filter) ([]Request, error) {
	out := make([]Request, 0, len(f.byULID))
	for _, r := range f.byULID {
		if filter.UserID != "" && r.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

type fakeEval struct {
	result *eligibility.Eligibility
	err    error
}

func (f *fakeEval) Evaluate(_ context.Context, userID string, schemas []string) (*eligibility.Eligibility, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &eligibility.Eligibility{UserID: userID, Eligible: true, Blockers: []eligibility.Blocker{}, Schemas: schemas}, nil
}

func (f *fakeEval) AllSchemas() []string { return []string{"lab1", "lab2", "lab3"} }

type fakeProfiles struct {
	labs map[string][]string
}

func (f *fakeProfiles) AssignedLabs(_ context.Context, userID string) ([]string, error) {
	return f.labs[userID], nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqID struct{ n int }

func (g *seqID) New() (string, error) {
	g.n++
	return fmt.Sprintf("01TESTULID%016d", g.n), nil
}

func newTestService(store Store, eval Evaluator, profiles Profiles) *Service {
	return NewServiceWith(store, eval, profiles,
		fixedClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}, &seqID{})
}

var (
	student  = rbac.Actor{UserID: "s001", Role: rbac.RoleStudent, Labs: []string{"lab1"}}
	admin    = rbac.Actor{UserID: "a001", Role: rbac.RoleAdmin}
	labAdmin = rbac.Actor{UserID: "la001", Role: rbac.RoleLabAdmin, Labs: []string{"lab1"}}
)

// ===== Submit =====

func TestSubmit(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEval{}, &fakeProfiles{})

	got, err := svc.Submit(context.Background(), student)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.UserID != student.UserID {
		t.Errorf("user_id = %s, want %s", got.UserID, student.UserID)
	}
	if len(store.entries) != 1 || store.entries[0].Action != audit.ActionClearanceSubmitted {
		t.Error("提出の監査行が書かれていない")
	}
}

func TestSubmitDuplicateOpenRequest(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEval{}, &fakeProfiles{})

	if _, err := svc.Submit(context.Background(), student); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, err := svc.Submit(context.Background(), student)
	if apperr.CodeOf(err) != apperr.CodeDuplicateRequest {
		t.Errorf("code = %s, want DUPLICATE_REQUEST", apperr.CodeOf(err))
	}
}

func TestSubmitRequiresPermission(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeEval{}, &fakeProfiles{})

	// lab_admin には request_clearance が無い
	_, err := svc.Submit(context.Background(), labAdmin)
	if apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Errorf("code = %s, want FORBIDDEN", apperr.CodeOf(err))
	}
}

// ===== Open =====

func submitOne(t *testing.T, svc *Service) string {
	t.Helper()
	r, err := svc.Submit(context.Background(), student)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return r.RequestULID
}

func TestOpenMovesToUnderReview(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEval{}, &fakeProfiles{labs: map[string][]string{"s001": {"lab1"}}})
	ulid := submitOne(t, svc)

	got, err := svc.Open(context.Background(), labAdmin, ulid)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got.Status != StatusUnderReview {
		t.Errorf("status = %s, want under_review", got.Status)
	}

	// すでに under_review の場合はエラーにせずそのまま返す
	again, err := svc.Open(context.Background(), labAdmin, ulid)
	if err != nil {
		t.Fatalf("Open(再): %v", err)
	}
	if again.Status != StatusUnderReview {
		t.Errorf("status = %s, want under_review", again.Status)
	}
}

func TestOpenOutOfScope(t *testing.T) {
	store := newFakeStore()
	// 対象ユーザは lab2 所属。lab1 担当の lab_admin は触れない
	svc := newTestService(store, &fakeEval{}, &fakeProfiles{labs: map[string][]string{"s001": {"lab2"}}})
	ulid := submitOne(t, svc)

	_, err := svc.Open(context.Background(), labAdmin, ulid)
	if apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Errorf("code = %s, want FORBIDDEN", apperr.CodeOf(err))
	}
}

// 引き取り競合: 相手が under_review にしただけなら成功扱いでそのまま返す
func TestOpenConcurrentClaim(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEval{}, &fakeProfiles{labs: map[string][]string{"s001": {"lab1"}}})
	ulid := submitOne(t, svc)

	store.claimRaceStatus = StatusUnderReview
	got, err := svc.Open(context.Background(), labAdmin, ulid)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got.Status != StatusUnderReview {
		t.Errorf("status = %s, want under_review", got.Status)
	}
}

// 引き取り競合: 相手がその場で裁決まで済ませていたら ALREADY_DECIDED
func TestOpenConcurrentDecision(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEval{}, &fakeProfiles{labs: map[string][]string{"s001": {"lab1"}}})
	ulid := submitOne(t, svc)

	store.claimRaceStatus = StatusApproved
	_, err := svc.Open(context.Background(), labAdmin, ulid)
	if apperr.CodeOf(err) != apperr.CodeAlreadyDecided {
		t.Errorf("code = %s, want ALREADY_DECIDED", apperr.CodeOf(err))
	}
}

func TestOpenDecidedRequest(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEval{}, &fakeProfiles{labs: map[string][]string{"s001": {"lab1"}}})
	ulid := submitOne(t, svc)

	notes := "返却確認済み"
	if _, err := svc.Decide(context.Background(), admin, ulid, DecideRequest{Decision: StatusRejected, Notes: &notes}); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	_, err := svc.Open(context.Background(), admin, ulid)
	if apperr.CodeOf(err) != apperr.CodeAlreadyDecided {
		t.Errorf("code = %s, want ALREADY_DECIDED", apperr.CodeOf(err))
	}
}

// ===== Decide =====

func TestDecideApproveStoresSnapshot(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEval{}, &fakeProfiles{labs: map[string][]string{"s001": {"lab1"}}})
	ulid := submitOne(t, svc)

	got, err := svc.Decide(context.Background(), admin, ulid, DecideRequest{Decision: StatusApproved})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got.Status != StatusApproved {
		t.Errorf("status = %s, want approved", got.Status)
	}
	if len(got.Eligibility) == 0 {
		t.Error("承認時の評価スナップショットが保存されていない")
	}
	found := false
	for _, e := range store.entries {
		if e.Action == audit.ActionClearanceApproved {
			found = true
		}
	}
	if !found {
		t.Error("承認の監査行が書かれていない")
	}
}

func TestDecideApproveIneligible(t *testing.T) {
	store := newFakeStore()
	blockers := []eligibility.Blocker{
		{Schema: "lab1", Kind: eligibility.KindBorrowedEquipment, RecordULID: "B1", Description: "オシロスコープ"},
	}
	eval := &fakeEval{result: &eligibility.Eligibility{Eligible: false, Blockers: blockers}}
	svc := newTestService(store, eval, &fakeProfiles{labs: map[string][]string{"s001": {"lab1"}}})
	ulid := submitOne(t, svc)

	_, err := svc.Decide(context.Background(), admin, ulid, DecideRequest{Decision: StatusApproved})
	if apperr.CodeOf(err) != apperr.CodeIneligible {
		t.Fatalf("code = %s, want INELIGIBLE", apperr.CodeOf(err))
	}
	// ブロッカー一覧が details に乗ること
	api, ok := err.(*apperr.APIError)
	if !ok {
		t.Fatal("APIError ではない")
	}
	ds, ok := api.Details.([]eligibility.Blocker)
	if !ok || len(ds) != 1 || ds[0].RecordULID != "B1" {
		t.Errorf("details = %+v, want blocker list", api.Details)
	}
	// 申請は pending のまま
	r, _ := store.GetByULID(context.Background(), ulid)
	if r.Status != StatusPending {
		t.Errorf("status = %s, want pending", r.Status)
	}
}

func TestDecideApproveEvaluationFailure(t *testing.T) {
	store := newFakeStore()
	eval := &fakeEval{err: apperr.New(apperr.CodeIncompleteEvaluation, "evaluation aborted: lab query failed")}
	svc := newTestService(store, eval, &fakeProfiles{labs: map[string][]string{"s001": {"lab1"}}})
	ulid := submitOne(t, svc)

	_, err := svc.Decide(context.Background(), admin, ulid, DecideRequest{Decision: StatusApproved})
	if apperr.CodeOf(err) != apperr.CodeIncompleteEvaluation {
		t.Errorf("code = %s, want INCOMPLETE_EVALUATION", apperr.CodeOf(err))
	}
}

func TestDecideRejectRequiresNotes(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEval{}, &fakeProfiles{labs: map[string][]string{"s001": {"lab1"}}})
	ulid := submitOne(t, svc)

	_, err := svc.Decide(context.Background(), admin, ulid, DecideRequest{Decision: StatusRejected})
	if apperr.CodeOf(err) != apperr.CodeMissingReviewNotes {
		t.Errorf("code = %s, want MISSING_REVIEW_NOTES", apperr.CodeOf(err))
	}

	empty := ""
	_, err = svc.Decide(context.Background(), admin, ulid, DecideRequest{Decision: StatusRejected, Notes: &empty})
	if apperr.CodeOf(err) != apperr.CodeMissingReviewNotes {
		t.Errorf("code = %s, want MISSING_REVIEW_NOTES", apperr.CodeOf(err))
	}
}

func TestDecideRejectWithNotes(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEval{}, &fakeProfiles{labs: map[string][]string{"s001": {"lab1"}}})
	ulid := submitOne(t, svc)

	notes := "未返却機材あり。返却後に再申請のこと"
	got, err := svc.Decide(context.Background(), admin, ulid, DecideRequest{Decision: StatusRejected, Notes: &notes})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got.Status != StatusRejected {
		t.Errorf("status = %s, want rejected", got.Status)
	}
	if got.ReviewNotes == nil || *got.ReviewNotes != notes {
		t.Error("却下理由が保存されていない")
	}
}

func TestDecideConcurrentLoser(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEval{}, &fakeProfiles{labs: map[string][]string{"s001": {"lab1"}}})
	ulid := submitOne(t, svc)

	// 条件付きUPDATEが0行 = 別のレビュアーが先に裁決した
	store.forceZeroRows = true
	_, err := svc.Decide(context.Background(), admin, ulid, DecideRequest{Decision: StatusApproved})
	if apperr.CodeOf(err) != apperr.CodeAlreadyDecided {
		t.Errorf("code = %s, want ALREADY_DECIDED", apperr.CodeOf(err))
	}
}

func TestDecideTerminalRequest(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEval{}, &fakeProfiles{labs: map[string][]string{"s001": {"lab1"}}})
	ulid := submitOne(t, svc)

	if _, err := svc.Decide(context.Background(), admin, ulid, DecideRequest{Decision: StatusApproved}); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	_, err := svc.Decide(context.Background(), admin, ulid, DecideRequest{Decision: StatusApproved})
	if apperr.CodeOf(err) != apperr.CodeAlreadyDecided {
		t.Errorf("code = %s, want ALREADY_DECIDED", apperr.CodeOf(err))
	}
}

func TestDecideInvalidDecision(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeEval{}, &fakeProfiles{})
	_, err := svc.Decide(context.Background(), admin, "X", DecideRequest{Decision: "maybe"})
	if apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Errorf("code = %s, want INVALID_ARGUMENT", apperr.CodeOf(err))
	}
}

func TestDecideRequiresReviewPermission(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEval{}, &fakeProfiles{labs: map[string][]string{"s001": {"lab1"}}})
	ulid := submitOne(t, svc)

	_, err := svc.Decide(context.Background(), student, ulid, DecideRequest{Decision: StatusApproved})
	if apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Errorf("code = %s, want FORBIDDEN", apperr.CodeOf(err))
	}
}

// ===== Get / List =====

func TestGetScope(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEval{}, &fakeProfiles{labs: map[string][]string{"s001": {"lab1"}}})
	ulid := submitOne(t, svc)

	if _, err := svc.Get(context.Background(), student, ulid); err != nil {
		t.Errorf("本人が取得できない: %v", err)
	}
	if _, err := svc.Get(context.Background(), labAdmin, ulid); err != nil {
		t.Errorf("レビュアーが取得できない: %v", err)
	}

	other := rbac.Actor{UserID: "s999", Role: rbac.RoleStudent}
	_, err := svc.Get(context.Background(), other, ulid)
	if apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Errorf("code = %s, want FORBIDDEN", apperr.CodeOf(err))
	}
}

func TestGetNotFound(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeEval{}, &fakeProfiles{})
	_, err := svc.Get(context.Background(), admin, "missing")
	if apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("code = %s, want NOT_FOUND", apperr.CodeOf(err))
	}
}

func TestListNonReviewerSeesOwnOnly(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEval{}, &fakeProfiles{})
	submitOne(t, svc)

	other := rbac.Actor{UserID: "s002", Role: rbac.RoleStudent}
	if _, err := svc.Submit(context.Background(), other); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got, err := svc.List(context.Background(), other, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].UserID != other.UserID {
		t.Errorf("list = %+v, want only own requests", got)
	}

	all, err := svc.List(context.Background(), admin, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("admin list = %d, want 2", len(all))
	}
}
