package rbac

import "testing"

func TestParseRole(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"admin", true},
		{"lab_admin", true},
		{"student", true},
		{"faculty", true},
		{"root", false},
		{"", false},
	}
	for _, c := range cases {
		if _, ok := ParseRole(c.in); ok != c.ok {
			t.Errorf("ParseRole(%q) ok = %v, want %v", c.in, ok, c.ok)
		}
	}
}

func TestHas(t *testing.T) {
	cases := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleAdmin, PermManageAccounts, true},
		{RoleAdmin, PermRequestClearance, true},
		{RoleLabAdmin, PermReviewClearance, true},
		{RoleLabAdmin, PermRequestClearance, false},
		{RoleLabAdmin, PermManageAccounts, false},
		{RoleStudent, PermRequestClearance, true},
		{RoleStudent, PermReviewClearance, false},
		{RoleStudent, PermViewAnalytics, false},
		{RoleFaculty, PermViewAnalytics, true},
		{RoleFaculty, PermManageEquipment, false},
		{Role("unknown"), PermBorrowEquipment, false},
	}
	for _, c := range cases {
		if got := Has(c.role, c.perm); got != c.want {
			t.Errorf("Has(%s, %s) = %v, want %v", c.role, c.perm, got, c.want)
		}
	}
}

func TestActorCanAccessLab(t *testing.T) {
	admin := Actor{UserID: "u1", Role: RoleAdmin}
	if !admin.CanAccessLab("lab3") {
		t.Error("admin は全研究室にアクセスできるはず")
	}

	la := Actor{UserID: "u2", Role: RoleLabAdmin, Labs: []string{"lab1", "lab2"}}
	if !la.CanAccessLab("lab1") {
		t.Error("担当研究室にアクセスできない")
	}
	if la.CanAccessLab("lab3") {
		t.Error("担当外の研究室にアクセスできてしまう")
	}
}

func TestActorCoversLabs(t *testing.T) {
	admin := Actor{Role: RoleAdmin}
	if !admin.CoversLabs([]string{"lab1", "lab5"}) {
		t.Error("admin は常に全スキーマをカバーするはず")
	}

	la := Actor{Role: RoleLabAdmin, Labs: []string{"lab1", "lab2"}}
	if !la.CoversLabs([]string{"lab1", "lab2"}) {
		t.Error("担当範囲内なのにカバー判定が false")
	}
	if la.CoversLabs([]string{"lab1", "lab3"}) {
		t.Error("担当外スキーマを含むのにカバー判定が true")
	}
	// 空のスキーマ集合はカバーとみなさない
	if la.CoversLabs(nil) {
		t.Error("空集合を true にしてはいけない")
	}
}
