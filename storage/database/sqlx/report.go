package sqlxrepos

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/followup"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
	"github.com/arishrdi/leads-aladdin-sub001/core/report"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
)

const (
	convertedSum = "COALESCE(SUM(CASE WHEN l.status = '" + string(lead.StatusConverted) + "' THEN 1 ELSE 0 END), 0) AS converted"
	monthExpr    = "substr(CAST(l.lead_date AS TEXT), 1, 7)"
)

type reportRepository struct {
	repo
}

var _ report.Repository = (*reportRepository)(nil)

func NewReportRepository(exec core.DBExecutor) *reportRepository {
	return &reportRepository{repo{exec: exec}}
}

// leadReportMods restricts "leads l" to the scope and to leads dated within f.
func leadReportMods(scope policy.Scope, f report.Filter) []qm.QueryMod {
	mods := scopeMods(scope, "l.branch_id", "l.owner_id")
	return append(mods, periodMods("l.lead_date", f)...)
}

func periodMods(col string, f report.Filter) []qm.QueryMod {
	var mods []qm.QueryMod
	if !f.From.IsZero() {
		mods = append(mods, qm.Where(col+" >= ?", dbTime(f.From)))
	}
	if !f.To.IsZero() {
		mods = append(mods, qm.Where(col+" < ?", dbTime(f.To)))
	}
	return mods
}

// bind runs the query built from mods and binds the rows to dest using its boil tags.
func (r reportRepository) bind(ctx context.Context, exec []core.DBExecutor, dest interface{}, mods ...qm.QueryMod) error {
	exe := r.getExec(exec)
	return newQuery(exe, mods...).Bind(ctx, exe, dest)
}

func (r reportRepository) CountByStatus(ctx context.Context, scope policy.Scope, f report.Filter, exec ...core.DBExecutor) ([]report.StatusCount, error) {
	mods := []qm.QueryMod{qm.Select("l.status AS status", "COUNT(*) AS count"), qm.From("leads l")}
	mods = append(mods, leadReportMods(scope, f)...)
	mods = append(mods, qm.GroupBy("l.status"))

	counts := []report.StatusCount{}
	err := r.bind(ctx, exec, &counts, mods...)
	return counts, errors.Wrap(err, "counting leads by status")
}

func (r reportRepository) CountByBranch(ctx context.Context, scope policy.Scope, f report.Filter, exec ...core.DBExecutor) ([]report.BranchCount, error) {
	mods := []qm.QueryMod{
		qm.Select("b.id AS branch_id", "b.name AS branch_name", "COUNT(*) AS total", convertedSum),
		qm.From("leads l"),
		qm.InnerJoin("branches b ON b.id = l.branch_id"),
	}
	mods = append(mods, leadReportMods(scope, f)...)
	mods = append(mods, qm.GroupBy("b.id, b.name"), qm.OrderBy("total DESC, b.name ASC"))

	counts := []report.BranchCount{}
	err := r.bind(ctx, exec, &counts, mods...)
	return counts, errors.Wrap(err, "counting leads by branch")
}

func (r reportRepository) CountBySource(ctx context.Context, scope policy.Scope, f report.Filter, exec ...core.DBExecutor) ([]report.SourceCount, error) {
	mods := []qm.QueryMod{
		qm.Select("s.id AS source_id", "COALESCE(s.name, '') AS source_name", "COUNT(*) AS count"),
		qm.From("leads l"),
		qm.LeftOuterJoin("lead_sources s ON s.id = l.source_id"),
	}
	mods = append(mods, leadReportMods(scope, f)...)
	mods = append(mods, qm.GroupBy("s.id, s.name"), qm.OrderBy("count DESC, source_name ASC"))

	var rows []sourceCountRow
	if err := r.bind(ctx, exec, &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "counting leads by source")
	}
	counts := make([]report.SourceCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, report.SourceCount{
			SourceID:   row.SourceID.Ptr(),
			SourceName: row.SourceName,
			Count:      row.Count,
		})
	}
	return counts, nil
}

// leads without a source are grouped under a NULL source_id
type sourceCountRow struct {
	SourceID   null.Int64 `boil:"source_id"`
	SourceName string     `boil:"source_name"`
	Count      int        `boil:"count"`
}

// CountByStage counts the active leads per follow-up stage.
func (r reportRepository) CountByStage(ctx context.Context, scope policy.Scope, f report.Filter, exec ...core.DBExecutor) ([]report.StageCount, error) {
	mods := []qm.QueryMod{qm.Select("l.stage AS stage", "COUNT(*) AS count"), qm.From("leads l")}
	mods = append(mods, leadReportMods(scope, f)...)
	mods = append(mods, qm.WhereIn("l.status NOT IN ?", terminalStatuses()...), qm.GroupBy("l.stage"))

	counts := []report.StageCount{}
	err := r.bind(ctx, exec, &counts, mods...)
	return counts, errors.Wrap(err, "counting leads by stage")
}

func (r reportRepository) FollowUpStats(ctx context.Context, scope policy.Scope, f report.Filter, dayStart, dayEnd time.Time, exec ...core.DBExecutor) (report.FollowUpStats, error) {
	var stats report.FollowUpStats
	count := func(dest *int, extra ...qm.QueryMod) error {
		mods := []qm.QueryMod{
			qm.Select("COUNT(*) AS count"),
			qm.From("follow_ups f"),
			qm.InnerJoin("leads l ON l.id = f.lead_id"),
		}
		mods = append(mods, scopeMods(scope, "l.branch_id", "l.owner_id")...)
		mods = append(mods, extra...)
		var row struct {
			Count int `boil:"count"`
		}
		if err := r.bind(ctx, exec, &row, mods...); err != nil {
			return err
		}
		*dest = row.Count
		return nil
	}

	err := count(&stats.DueToday,
		qm.Where("f.status = ?", followup.StatusScheduled),
		qm.Where("f.scheduled_at >= ? AND f.scheduled_at < ?", dbTime(dayStart), dbTime(dayEnd)))
	if err != nil {
		return stats, errors.Wrap(err, "counting follow-ups due today")
	}
	err = count(&stats.Overdue,
		qm.Where("f.status = ?", followup.StatusScheduled),
		qm.Where("f.scheduled_at < ?", dbTime(dayStart)))
	if err != nil {
		return stats, errors.Wrap(err, "counting overdue follow-ups")
	}
	completed := append([]qm.QueryMod{qm.Where("f.status = ?", followup.StatusCompleted)}, periodMods("f.completed_at", f)...)
	if err = count(&stats.Completed, completed...); err != nil {
		return stats, errors.Wrap(err, "counting completed follow-ups")
	}
	return stats, nil
}

// MarketingPerformance aggregates, per marketing user, the leads they own dated within f,
// the follow-ups they completed and the visits they made within f.
func (r reportRepository) MarketingPerformance(ctx context.Context, scope policy.Scope, f report.Filter, exec ...core.DBExecutor) ([]report.MarketingPerformance, error) {
	type userCount struct {
		UserID int64  `boil:"user_id"`
		Name   string `boil:"name"`
		Count  int    `boil:"count"`
	}

	perf := make(map[int64]*report.MarketingPerformance)
	entry := func(id int64, name string) *report.MarketingPerformance {
		mp, ok := perf[id]
		if !ok {
			mp = &report.MarketingPerformance{UserID: id, Name: name}
			perf[id] = mp
		}
		return mp
	}
	marketing := qm.Where("u.role = ?", user.RoleMarketing)

	mods := []qm.QueryMod{
		qm.Select("l.owner_id AS user_id", "u.name AS name", "COUNT(*) AS leads", convertedSum),
		qm.From("leads l"),
		qm.InnerJoin("users u ON u.id = l.owner_id"),
		marketing,
	}
	mods = append(mods, leadReportMods(scope, f)...)
	mods = append(mods, qm.GroupBy("l.owner_id, u.name"))
	var owned []struct {
		UserID    int64  `boil:"user_id"`
		Name      string `boil:"name"`
		Leads     int    `boil:"leads"`
		Converted int    `boil:"converted"`
	}
	if err := r.bind(ctx, exec, &owned, mods...); err != nil {
		return nil, errors.Wrap(err, "counting leads per marketing user")
	}
	for _, o := range owned {
		mp := entry(o.UserID, o.Name)
		mp.Leads, mp.Converted = o.Leads, o.Converted
	}

	mods = []qm.QueryMod{
		qm.Select("f.user_id AS user_id", "u.name AS name", "COUNT(*) AS count"),
		qm.From("follow_ups f"),
		qm.InnerJoin("leads l ON l.id = f.lead_id"),
		qm.InnerJoin("users u ON u.id = f.user_id"),
		marketing,
		qm.Where("f.status = ?", followup.StatusCompleted),
	}
	mods = append(mods, scopeMods(scope, "l.branch_id", "l.owner_id")...)
	mods = append(mods, periodMods("f.completed_at", f)...)
	mods = append(mods, qm.GroupBy("f.user_id, u.name"))
	var completed []userCount
	if err := r.bind(ctx, exec, &completed, mods...); err != nil {
		return nil, errors.Wrap(err, "counting follow-ups per marketing user")
	}
	for _, c := range completed {
		entry(c.UserID, c.Name).CompletedFollowUps = c.Count
	}

	mods = []qm.QueryMod{
		qm.Select("v.user_id AS user_id", "u.name AS name", "COUNT(*) AS count"),
		qm.From("visits v"),
		qm.InnerJoin("leads l ON l.id = v.lead_id"),
		qm.InnerJoin("users u ON u.id = v.user_id"),
		marketing,
	}
	mods = append(mods, scopeMods(scope, "l.branch_id", "l.owner_id")...)
	mods = append(mods, periodMods("v.visited_at", f)...)
	mods = append(mods, qm.GroupBy("v.user_id, u.name"))
	var visits []userCount
	if err := r.bind(ctx, exec, &visits, mods...); err != nil {
		return nil, errors.Wrap(err, "counting visits per marketing user")
	}
	for _, v := range visits {
		entry(v.UserID, v.Name).Visits = v.Count
	}

	result := make([]report.MarketingPerformance, 0, len(perf))
	for _, mp := range perf {
		result = append(result, *mp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Converted != result[j].Converted {
			return result[i].Converted > result[j].Converted
		}
		if result[i].Leads != result[j].Leads {
			return result[i].Leads > result[j].Leads
		}
		return result[i].UserID < result[j].UserID
	})
	return result, nil
}

// MonthlyTrend counts leads and conversions per month of lead date (UTC).
func (r reportRepository) MonthlyTrend(ctx context.Context, scope policy.Scope, f report.Filter, exec ...core.DBExecutor) ([]report.MonthlyCount, error) {
	mods := []qm.QueryMod{
		qm.Select(monthExpr+" AS month", "COUNT(*) AS leads", convertedSum),
		qm.From("leads l"),
	}
	mods = append(mods, leadReportMods(scope, f)...)
	mods = append(mods, qm.GroupBy(monthExpr), qm.OrderBy("month ASC"))

	counts := []report.MonthlyCount{}
	err := r.bind(ctx, exec, &counts, mods...)
	return counts, errors.Wrap(err, "computing monthly trend")
}
