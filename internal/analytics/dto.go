package analytics

const (
	DateLayout       = "2006-01-02"
	DefaultRangeDays = 180
)

type MonthlyBorrowRow struct {
	Schema string `json:"lab_schema"`
	Month  string `json:"month"` // YYYY-MM
	Count  int64  `json:"count"`
}

type LabOutstandingRow struct {
	Schema            string `json:"lab_schema"`
	LabName           string `json:"lab_name"`
	OutstandingBorrow int64  `json:"outstanding_borrows"`
	OutstandingIssues int64  `json:"outstanding_issues"`
}

type IssueTypeRow struct {
	Schema    string `json:"lab_schema"`
	IssueType string `json:"issue_type"`
	Severity  string `json:"severity"`
	Count     int64  `json:"count"`
}

type ClearanceStatusRow struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}
