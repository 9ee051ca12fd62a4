package report

import (
	"time"

	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
)

// Filter restricts the dashboard to leads dated in [From, To) of one branch.
// Zero values are unbounded.
type Filter struct {
	From     time.Time
	To       time.Time
	BranchID int64
}

type StatusCount struct {
	Status lead.Status `boil:"status" json:"status"`
	Count  int         `boil:"count" json:"count"`
}

type BranchCount struct {
	BranchID   int64  `boil:"branch_id" json:"branch_id"`
	BranchName string `boil:"branch_name" json:"branch_name"`
	Total      int    `boil:"total" json:"total"`
	Converted  int    `boil:"converted" json:"converted"`
}

type SourceCount struct {
	SourceID   *int64 `boil:"source_id" json:"source_id"`
	SourceName string `boil:"source_name" json:"source_name"`
	Count      int    `boil:"count" json:"count"`
}

type StageCount struct {
	Stage string `boil:"stage" json:"stage"`
	Label string `boil:"-" json:"label"`
	Count int    `boil:"count" json:"count"`
}

type FollowUpStats struct {
	DueToday  int `boil:"due_today" json:"due_today"`
	Overdue   int `boil:"overdue" json:"overdue"`
	Completed int `boil:"completed" json:"completed"`
}

type MarketingPerformance struct {
	UserID             int64  `boil:"user_id" json:"user_id"`
	Name               string `boil:"name" json:"name"`
	Leads              int    `boil:"leads" json:"leads"`
	Converted          int    `boil:"converted" json:"converted"`
	CompletedFollowUps int    `boil:"completed_followups" json:"completed_followups"`
	Visits             int    `boil:"visits" json:"visits"`
}

type MonthlyCount struct {
	Month     string `boil:"month" json:"month"` // YYYY-MM
	Leads     int    `boil:"leads" json:"leads"`
	Converted int    `boil:"converted" json:"converted"`
}

type Dashboard struct {
	From           *time.Time             `json:"from"`
	To             *time.Time             `json:"to"`
	Total          int                    `json:"total"`
	ConversionRate float64                `json:"conversion_rate"`
	ByStatus       []StatusCount          `json:"by_status"`
	ByBranch       []BranchCount          `json:"by_branch"`
	BySource       []SourceCount          `json:"by_source"`
	ByStage        []StageCount           `json:"by_stage"`
	FollowUps      FollowUpStats          `json:"followups"`
	Marketing      []MarketingPerformance `json:"marketing"`
	Trend          []MonthlyCount         `json:"trend"`
}
