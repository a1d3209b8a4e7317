package profiles

import (
	"strings"
	"time"
)

// Profile は共有スキーマの profiles テーブルの1行を表す
type Profile struct {
	UserID       string
	DisplayName  string
	Role         string
	Department   string
	AssignedLabs []string // DB上はカンマ区切り
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func joinLabs(labs []string) string {
	return strings.Join(labs, ",")
}

func splitLabs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// 一覧取得用の検索条件
type Filter struct {
	Role       string
	Department string
	Lab        string
	ActiveOnly bool
	Limit      int
	Offset     int
}
