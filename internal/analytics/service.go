package analytics

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"LECS-backend/internal/platform/apperr"
	"LECS-backend/internal/platform/db"
	"LECS-backend/internal/platform/logging"
)

type Service struct {
	store *Store
	labs  []db.LabConfig
}

func NewService(conn *sql.DB, labs []db.LabConfig) *Service {
	return &Service{store: NewStore(conn), labs: labs}
}

func (s *Service) normalizeRange(from, to string) (string, string, error) {
	now := time.Now().UTC()
	if to == "" {
		to = now.Format(DateLayout)
	}
	if from == "" {
		from = now.AddDate(0, 0, -DefaultRangeDays).Format(DateLayout)
	}
	if _, err := time.Parse(DateLayout, from); err != nil {
		return "", "", apperr.ErrInvalid("from must be YYYY-MM-DD")
	}
	if _, err := time.Parse(DateLayout, to); err != nil {
		return "", "", apperr.ErrInvalid("to must be YYYY-MM-DD")
	}
	return from, to, nil
}

// BorrowStats: 全研究室の月次貸出件数（設定順）
func (s *Service) BorrowStats(ctx context.Context, from, to string) ([]MonthlyBorrowRow, error) {
	from, to, err := s.normalizeRange(from, to)
	if err != nil {
		return nil, err
	}

	out := make([]MonthlyBorrowRow, 0, 32)
	for _, lab := range s.labs {
		rows, err := s.store.BorrowMonthly(ctx, lab.Schema, from, to)
		if err != nil {
			logging.L().Error("borrow stats query failed",
				zap.String("op", "analytics.BorrowStats"), zap.String("schema", lab.Schema), zap.Error(err))
			return nil, apperr.ErrInternal("borrow stats failed")
		}
		out = append(out, rows...)
	}
	return out, nil
}

// OutstandingByLab: ダッシュボードの「研究室別未処理」パネル用
func (s *Service) OutstandingByLab(ctx context.Context) ([]LabOutstandingRow, error) {
	out := make([]LabOutstandingRow, 0, len(s.labs))
	for _, lab := range s.labs {
		b, i, err := s.store.Outstanding(ctx, lab.Schema)
		if err != nil {
			logging.L().Error("outstanding query failed",
				zap.String("op", "analytics.OutstandingByLab"), zap.String("schema", lab.Schema), zap.Error(err))
			return nil, apperr.ErrInternal("outstanding stats failed")
		}
		out = append(out, LabOutstandingRow{
			Schema:            lab.Schema,
			LabName:           lab.Name,
			OutstandingBorrow: b,
			OutstandingIssues: i,
		})
	}
	return out, nil
}

func (s *Service) IssueStats(ctx context.Context) ([]IssueTypeRow, error) {
	out := make([]IssueTypeRow, 0, 32)
	for _, lab := range s.labs {
		rows, err := s.store.IssueByType(ctx, lab.Schema)
		if err != nil {
			logging.L().Error("issue stats query failed",
				zap.String("op", "analytics.IssueStats"), zap.String("schema", lab.Schema), zap.Error(err))
			return nil, apperr.ErrInternal("issue stats failed")
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *Service) ClearanceStats(ctx context.Context, from, to string) ([]ClearanceStatusRow, error) {
	from, to, err := s.normalizeRange(from, to)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.ClearanceThroughput(ctx, from, to)
	if err != nil {
		logging.L().Error("clearance stats query failed",
			zap.String("op", "analytics.ClearanceStats"), zap.Error(err))
		return nil, apperr.ErrInternal("clearance stats failed")
	}
	return rows, nil
}

// ExportOutstandingCSV: 事務のExcel取り込み用にcp932でCSVを出す
func (s *Service) ExportOutstandingCSV(ctx context.Context) ([]byte, error) {
	rows, err := s.OutstandingByLab(ctx)
	if err != nil {
		return nil, err
	}

	var utf8buf bytes.Buffer
	w := csv.NewWriter(&utf8buf)
	_ = w.Write([]string{"スキーマ", "研究室名", "未返却", "未解決・未納"})
	for _, r := range rows {
		_ = w.Write([]string{
			r.Schema,
			r.LabName,
			strconv.FormatInt(r.OutstandingBorrow, 10),
			strconv.FormatInt(r.OutstandingIssues, 10),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, apperr.ErrInternal("csv write failed")
	}

	// cp932へ変換（Excel互換）
	var sjisBuf bytes.Buffer
	tw := transform.NewWriter(&sjisBuf, japanese.ShiftJIS.NewEncoder())
	if _, err := tw.Write(utf8buf.Bytes()); err != nil {
		return nil, apperr.ErrInternal("cp932 encode failed")
	}
	if err := tw.Close(); err != nil {
		return nil, apperr.ErrInternal("cp932 encode failed")
	}
	return sjisBuf.Bytes(), nil
}
