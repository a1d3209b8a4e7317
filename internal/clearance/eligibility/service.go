package eligibility

import (
	"context"
	"database/sql"
	"time"

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

// Service: ユーザ1人分の事実をスキーマ横断で集めて合否に畳み込む。
// 読み取り専用。結果はキャッシュしない（評価時点の状態を映す）
type Service struct {
	store     Store
	labs      []db.LabConfig
	threshold float64
	clock     Clock
}

func NewService(conn *sql.DB, labs []db.LabConfig, costThreshold float64) *Service {
	return &Service{
		store:     NewStore(conn),
		labs:      labs,
		threshold: costThreshold,
		clock:     realClock{},
	}
}

// NewServiceWith: テスト用にストアと時計を差し替える
func NewServiceWith(store Store, labs []db.LabConfig, costThreshold float64, clock Clock) *Service {
	return &Service{store: store, labs: labs, threshold: costThreshold, clock: clock}
}

// AllSchemas: 設定順の全スキーマ。担当範囲チェックの母集合に使う
func (s *Service) AllSchemas() []string {
	out := make([]string, 0, len(s.labs))
	for _, l := range s.labs {
		out = append(out, l.Schema)
	}
	return out
}

// orderSchemas: 要求スキーマを設定順に正規化する。
// 空なら全研究室。未知のスキーマは INVALID_ARGUMENT
func (s *Service) orderSchemas(requested []string) ([]string, error) {
	if len(requested) == 0 {
		out := make([]string, 0, len(s.labs))
		for _, l := range s.labs {
			out = append(out, l.Schema)
		}
		return out, nil
	}

	set := make(map[string]struct{}, len(requested))
	for _, r := range requested {
		found := false
		for _, l := range s.labs {
			if l.Schema == r {
				found = true
				break
			}
		}
		if !found {
			return nil, apperr.ErrInvalid("unknown lab schema: " + r)
		}
		set[r] = struct{}{}
	}

	// 設定順で並べ直す = ブロッカー整列の固定順序
	out := make([]string, 0, len(set))
	for _, l := range s.labs {
		if _, ok := set[l.Schema]; ok {
			out = append(out, l.Schema)
		}
	}
	return out, nil
}

// Evaluate: 対象スキーマごとに「未返却貸出」「未解決・未納の不具合」を
// この順で集める。1スキーマでもクエリが失敗したら評価全体を
// INCOMPLETE_EVALUATION で打ち切る。失敗を「ブロッカーなし」と
// 読み替えて eligible=true を返すことは絶対にしない
func (s *Service) Evaluate(ctx context.Context, userID string, schemas []string) (*Eligibility, error) {
	if userID == "" {
		return nil, apperr.ErrInvalid("user_id is required")
	}

	ordered, err := s.orderSchemas(schemas)
	if err != nil {
		return nil, err
	}

	blockers := make([]Blocker, 0, 4)
	for _, schema := range ordered {
		bs, err := s.store.OutstandingBorrows(ctx, schema, userID)
		if err != nil {
			logging.L().Error("outstanding borrows query failed",
				zap.String("op", "eligibility.Evaluate"), zap.String("schema", schema),
				zap.String("user_id", userID), zap.Error(err))
			return nil, apperr.New(apperr.CodeIncompleteEvaluation,
				"evaluation aborted: lab query failed").WithDetails(map[string]string{"lab_schema": schema})
		}
		blockers = append(blockers, bs...)

		is, err := s.store.OutstandingIssues(ctx, schema, userID, s.threshold)
		if err != nil {
			logging.L().Error("outstanding issues query failed",
				zap.String("op", "eligibility.Evaluate"), zap.String("schema", schema),
				zap.String("user_id", userID), zap.Error(err))
			return nil, apperr.New(apperr.CodeIncompleteEvaluation,
				"evaluation aborted: lab query failed").WithDetails(map[string]string{"lab_schema": schema})
		}
		blockers = append(blockers, is...)
	}

	return &Eligibility{
		UserID:      userID,
		Eligible:    len(blockers) == 0,
		Blockers:    blockers,
		Schemas:     ordered,
		EvaluatedAt: s.clock.Now(),
	}, nil
}
