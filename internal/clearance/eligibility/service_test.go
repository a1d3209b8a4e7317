package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"LECS-backend/internal/platform/apperr"
	"LECS-backend/internal/platform/db"
)

var testLabs = []db.LabConfig{
	{Schema: "lab1", Name: "物性研"},
	{Schema: "lab2", Name: "情報研"},
	{Schema: "lab3", Name: "化学研"},
}

type fakeStore struct {
	borrows map[string][]Blocker // schema -> blockers
	issues  map[string][]Blocker
	failOn  string // このスキーマのクエリを失敗させる
}

func (f *fakeStore) OutstandingBorrows(_ context.Context, schema, _ string) ([]Blocker, error) {
	if schema == f.failOn {
		return nil, errors.New("connection refused")
	}
	return f.borrows[schema], nil
}

func (f *fakeStore) OutstandingIssues(_ context.Context, schema, _ string, _ float64) ([]Blocker, error) {
	if schema == f.failOn {
		return nil, errors.New("connection refused")
	}
	return f.issues[schema], nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestService(store Store) *Service {
	return NewServiceWith(store, testLabs, 0, fixedClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)})
}

func TestEvaluateEligibleWhenNoBlockers(t *testing.T) {
	svc := newTestService(&fakeStore{})

	got, err := svc.Evaluate(context.Background(), "u100", nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !got.Eligible {
		t.Error("ブロッカーなしなのに eligible=false")
	}
	if len(got.Blockers) != 0 {
		t.Errorf("blockers = %d, want 0", len(got.Blockers))
	}
	// 空指定は全スキーマ評価
	if len(got.Schemas) != len(testLabs) {
		t.Errorf("schemas = %v, want all labs", got.Schemas)
	}
}

func TestEvaluateCollectsBlockersInConfigOrder(t *testing.T) {
	store := &fakeStore{
		borrows: map[string][]Blocker{
			"lab3": {{Schema: "lab3", Kind: KindBorrowedEquipment, RecordULID: "B3"}},
			"lab1": {{Schema: "lab1", Kind: KindBorrowedEquipment, RecordULID: "B1"}},
		},
		issues: map[string][]Blocker{
			"lab1": {{Schema: "lab1", Kind: KindUnpaidIssue, RecordULID: "I1"}},
		},
	}
	svc := newTestService(store)

	// 逆順で要求しても結果は設定順
	got, err := svc.Evaluate(context.Background(), "u100", []string{"lab3", "lab1"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.Eligible {
		t.Error("ブロッカーがあるのに eligible=true")
	}
	wantULIDs := []string{"B1", "I1", "B3"}
	if len(got.Blockers) != len(wantULIDs) {
		t.Fatalf("blockers = %d, want %d", len(got.Blockers), len(wantULIDs))
	}
	for i, w := range wantULIDs {
		if got.Blockers[i].RecordULID != w {
			t.Errorf("blockers[%d] = %s, want %s", i, got.Blockers[i].RecordULID, w)
		}
	}
	if got.Schemas[0] != "lab1" || got.Schemas[1] != "lab3" {
		t.Errorf("schemas = %v, want config order", got.Schemas)
	}
}

func TestEvaluateUnknownSchema(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.Evaluate(context.Background(), "u100", []string{"lab9"})
	if apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Errorf("code = %s, want INVALID_ARGUMENT", apperr.CodeOf(err))
	}
}

// 1スキーマでも失敗したら評価全体が失敗になる。
// 失敗を「ブロッカーなし」と読み替えて合格にしてはいけない
func TestEvaluateAbortsOnSchemaFailure(t *testing.T) {
	store := &fakeStore{failOn: "lab2"}
	svc := newTestService(store)

	got, err := svc.Evaluate(context.Background(), "u100", nil)
	if err == nil {
		t.Fatalf("err = nil, got %+v", got)
	}
	if apperr.CodeOf(err) != apperr.CodeIncompleteEvaluation {
		t.Errorf("code = %s, want INCOMPLETE_EVALUATION", apperr.CodeOf(err))
	}
	if got != nil {
		t.Error("失敗時に評価結果を返してはいけない")
	}
}

func TestEvaluateRequiresUserID(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.Evaluate(context.Background(), "", nil)
	if apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Errorf("code = %s, want INVALID_ARGUMENT", apperr.CodeOf(err))
	}
}
