package report

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/followup"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
)

type (
	// Repository runs the dashboard aggregates over the leads within scope.
	Repository interface {
		CountByStatus(ctx context.Context, scope policy.Scope, f Filter, exec ...core.DBExecutor) ([]StatusCount, error)
		CountByBranch(ctx context.Context, scope policy.Scope, f Filter, exec ...core.DBExecutor) ([]BranchCount, error)
		CountBySource(ctx context.Context, scope policy.Scope, f Filter, exec ...core.DBExecutor) ([]SourceCount, error)
		CountByStage(ctx context.Context, scope policy.Scope, f Filter, exec ...core.DBExecutor) ([]StageCount, error)
		// FollowUpStats counts scheduled follow-ups due in [dayStart, dayEnd) or before dayStart,
		// and follow-ups completed within f.
		FollowUpStats(ctx context.Context, scope policy.Scope, f Filter, dayStart, dayEnd time.Time, exec ...core.DBExecutor) (FollowUpStats, error)
		MarketingPerformance(ctx context.Context, scope policy.Scope, f Filter, exec ...core.DBExecutor) ([]MarketingPerformance, error)
		MonthlyTrend(ctx context.Context, scope policy.Scope, f Filter, exec ...core.DBExecutor) ([]MonthlyCount, error)
	}

	Service interface {
		Dashboard(ctx context.Context, actor policy.Actor, f Filter) (Dashboard, error)
		// ExportLeads writes the leads matching filter within the actor's scope as CSV.
		ExportLeads(ctx context.Context, actor policy.Actor, filter *lead.QueryFilter, w io.Writer) error
	}

	service struct {
		repo     Repository
		leadRepo lead.Repository
		pipeline *followup.Pipeline
		loc      *time.Location
	}
)

var idPrinter = message.NewPrinter(language.Indonesian)

var _ Service = (*service)(nil)

func NewService(repo Repository, leadRepo lead.Repository, pipeline *followup.Pipeline, conf *core.Config) Service {
	loc := conf.Timezone
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		repo:     repo,
		leadRepo: leadRepo,
		pipeline: pipeline,
		loc:      loc,
	}
}

func (svc *service) Dashboard(ctx context.Context, actor policy.Actor, f Filter) (Dashboard, error) {
	if !policy.ViewReports(actor) {
		return Dashboard{}, core.ErrForbidden
	}
	dash := Dashboard{
		ByStatus:  make([]StatusCount, 0, len(lead.AllStatuses)),
		ByBranch:  []BranchCount{},
		BySource:  []SourceCount{},
		ByStage:   []StageCount{},
		Marketing: []MarketingPerformance{},
		Trend:     []MonthlyCount{},
	}
	if !f.From.IsZero() {
		from := f.From.UTC()
		dash.From = &from
	}
	if !f.To.IsZero() {
		to := f.To.UTC()
		dash.To = &to
	}

	scope := policy.ScopeOf(actor).Narrow(f.BranchID)
	if scope.IsEmpty() {
		for _, st := range lead.AllStatuses {
			dash.ByStatus = append(dash.ByStatus, StatusCount{Status: st})
		}
		return dash, nil
	}

	lt := time.Now().In(svc.loc)
	dayStart := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, svc.loc).UTC()
	dayEnd := dayStart.Add(24 * time.Hour)

	var byStatus []StatusCount
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		byStatus, err = svc.repo.CountByStatus(gctx, scope, f)
		return errors.Wrap(err, "counting by status")
	})
	g.Go(func() (err error) {
		dash.ByBranch, err = svc.repo.CountByBranch(gctx, scope, f)
		return errors.Wrap(err, "counting by branch")
	})
	g.Go(func() (err error) {
		dash.BySource, err = svc.repo.CountBySource(gctx, scope, f)
		return errors.Wrap(err, "counting by source")
	})
	g.Go(func() (err error) {
		dash.ByStage, err = svc.repo.CountByStage(gctx, scope, f)
		return errors.Wrap(err, "counting by stage")
	})
	g.Go(func() (err error) {
		dash.FollowUps, err = svc.repo.FollowUpStats(gctx, scope, f, dayStart, dayEnd)
		return errors.Wrap(err, "counting follow-ups")
	})
	g.Go(func() (err error) {
		dash.Marketing, err = svc.repo.MarketingPerformance(gctx, scope, f)
		return errors.Wrap(err, "computing marketing performance")
	})
	g.Go(func() (err error) {
		dash.Trend, err = svc.repo.MonthlyTrend(gctx, scope, f)
		return errors.Wrap(err, "computing monthly trend")
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	counts := make(map[lead.Status]int, len(byStatus))
	for _, sc := range byStatus {
		counts[sc.Status] = sc.Count
		dash.Total += sc.Count
	}
	for _, st := range lead.AllStatuses {
		dash.ByStatus = append(dash.ByStatus, StatusCount{Status: st, Count: counts[st]})
	}
	dash.ConversionRate = ConversionRate(counts[lead.StatusConverted], dash.Total)

	for i, sc := range dash.ByStage {
		dash.ByStage[i].Label = sc.Stage
		if st, ok := svc.pipeline.Stage(sc.Stage); ok {
			dash.ByStage[i].Label = st.Label
		}
	}
	dash.ByStage = svc.orderStages(dash.ByStage)
	return dash, nil
}

// ConversionRate returns converted/total as a percentage rounded to 2 decimals.
func ConversionRate(converted, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(converted)*10000/float64(total)) / 100
}

// orderStages sorts stage counts in pipeline order; unknown stages go last.
func (svc *service) orderStages(counts []StageCount) []StageCount {
	ordered := make([]StageCount, 0, len(counts))
	used := make([]bool, len(counts))
	for _, st := range svc.pipeline.Stages {
		for i, sc := range counts {
			if !used[i] && sc.Stage == st.Name {
				ordered = append(ordered, sc)
				used[i] = true
			}
		}
	}
	for i, sc := range counts {
		if !used[i] {
			ordered = append(ordered, sc)
		}
	}
	return ordered
}

var exportHeader = []string{
	"ID", "Tanggal", "Cabang", "Marketing", "Sumber", "Nama", "Institusi", "WhatsApp",
	"Kota", "Jenis Karpet", "Status", "Tahap", "Percobaan", "Nilai Estimasi",
}

func (svc *service) ExportLeads(ctx context.Context, actor policy.Actor, filter *lead.QueryFilter, w io.Writer) error {
	if !policy.ViewReports(actor) {
		return core.ErrForbidden
	}
	if filter == nil {
		filter = new(lead.QueryFilter)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return errors.Wrap(err, "writing csv header")
	}

	scope := policy.ScopeOf(actor)
	if !scope.IsEmpty() {
		ordering := []core.DBOrdering{{Field: "lead_date", Ascending: true}, {Field: "id", Ascending: true}}
		leads, _, err := svc.leadRepo.QueryLeads(ctx, scope, filter, ordering, nil)
		if err != nil {
			return errors.Wrap(err, "querying leads")
		}
		for _, l := range leads {
			if err = cw.Write(svc.exportRow(l)); err != nil {
				return errors.Wrap(err, "writing csv row")
			}
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}

func (svc *service) exportRow(l lead.Lead) []string {
	stage := l.Stage
	if st, ok := svc.pipeline.Stage(l.Stage); ok {
		stage = st.Label
	}
	return []string{
		strconv.FormatInt(l.ID, 10),
		l.LeadDate.In(svc.loc).Format("02/01/2006"),
		l.BranchName,
		l.OwnerName,
		l.SourceName,
		l.CustomerName,
		l.Institution,
		l.Phone,
		l.City,
		l.CarpetType,
		string(l.Status),
		stage,
		strconv.Itoa(l.StageAttempt),
		FormatIDR(l.EstimatedValue),
	}
}

// FormatIDR formats an amount of rupiah the id-ID way, e.g. "Rp 15.000.000".
func FormatIDR(amount int64) string {
	return idPrinter.Sprintf("Rp %d", amount)
}
