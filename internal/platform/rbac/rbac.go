package rbac

// 静的なロール→権限マッピング。
// 起動後に書き換えない前提（ハンドラから参照するだけ）

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleLabAdmin Role = "lab_admin"
	RoleStudent  Role = "student"
	RoleFaculty  Role = "faculty"
)

type Permission string

const (
	PermBorrowEquipment  Permission = "borrow_equipment"
	PermReportIssue      Permission = "report_issue"
	PermManageEquipment  Permission = "manage_equipment"
	PermRequestClearance Permission = "request_clearance"
	PermReviewClearance  Permission = "review_clearance"
	PermViewAnalytics    Permission = "view_analytics"
	PermManageAccounts   Permission = "manage_accounts"
	PermViewAudit        Permission = "view_audit"
)

var rolePerms = map[Role]map[Permission]struct{}{
	RoleAdmin: permSet(
		PermBorrowEquipment, PermReportIssue, PermManageEquipment,
		PermRequestClearance, PermReviewClearance, PermViewAnalytics,
		PermManageAccounts, PermViewAudit,
	),
	RoleLabAdmin: permSet(
		PermBorrowEquipment, PermReportIssue, PermManageEquipment,
		PermReviewClearance, PermViewAnalytics,
	),
	RoleStudent: permSet(
		PermBorrowEquipment, PermReportIssue, PermRequestClearance,
	),
	RoleFaculty: permSet(
		PermBorrowEquipment, PermReportIssue, PermRequestClearance,
		PermViewAnalytics,
	),
}

func permSet(ps ...Permission) map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(ps))
	for _, p := range ps {
		m[p] = struct{}{}
	}
	return m
}

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleLabAdmin, RoleStudent, RoleFaculty:
		return Role(s), true
	}
	return "", false
}

// Has: 集合メンバーシップで判定（散在するif文にしない）
func Has(role Role, p Permission) bool {
	ps, ok := rolePerms[role]
	if !ok {
		return false
	}
	_, ok = ps[p]
	return ok
}

// Actor: 認証済み呼び出し元。Labs は担当研究室スキーマ（プロフィール由来）
type Actor struct {
	UserID string
	Role   Role
	Labs   []string
}

func (a Actor) Can(p Permission) bool { return Has(a.Role, p) }

// CanAccessLab: admin は全研究室、それ以外は担当研究室のみ
func (a Actor) CanAccessLab(schema string) bool {
	if a.Role == RoleAdmin {
		return true
	}
	for _, s := range a.Labs {
		if s == schema {
			return true
		}
	}
	return false
}

// CoversLabs: 対象の全スキーマが担当範囲に収まっているか。
// lab_admin が他研究室ぶんを含む申請を裁決できないようにするための判定
func (a Actor) CoversLabs(schemas []string) bool {
	if a.Role == RoleAdmin {
		return true
	}
	for _, s := range schemas {
		if !a.CanAccessLab(s) {
			return false
		}
	}
	return len(schemas) > 0
}
