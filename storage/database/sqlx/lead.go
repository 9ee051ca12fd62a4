package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
)

var leadColumns = []string{
	"branch_id", "owner_id", "source_id", "customer_name", "phone", "institution", "address", "city",
	"carpet_type", "needs", "estimated_value", "notes", "status", "stage", "stage_attempt", "exit_reason",
	"lead_date", "converted_at", "created_at", "updated_at",
}

var leadSelect = qm.Select(
	"l.id AS id", "l.branch_id AS branch_id", "l.owner_id AS owner_id", "l.source_id AS source_id",
	"l.customer_name AS customer_name", "l.phone AS phone", "l.institution AS institution",
	"l.address AS address", "l.city AS city", "l.carpet_type AS carpet_type", "l.needs AS needs",
	"l.estimated_value AS estimated_value", "l.notes AS notes", "l.status AS status", "l.stage AS stage",
	"l.stage_attempt AS stage_attempt", "l.exit_reason AS exit_reason", "l.lead_date AS lead_date",
	"l.converted_at AS converted_at", "l.created_at AS created_at", "l.updated_at AS updated_at",
	"b.name AS branch_name", "u.name AS owner_name", "s.name AS source_name",
)

func leadFrom() []qm.QueryMod {
	return []qm.QueryMod{
		qm.From("leads l"),
		qm.InnerJoin("branches b ON b.id = l.branch_id"),
		qm.InnerJoin("users u ON u.id = l.owner_id"),
		qm.LeftOuterJoin("lead_sources s ON s.id = l.source_id"),
	}
}

type leadRow struct {
	ID             int64       `db:"id"`
	BranchID       int64       `db:"branch_id"`
	OwnerID        int64       `db:"owner_id"`
	SourceID       null.Int64  `db:"source_id"`
	CustomerName   string      `db:"customer_name"`
	Phone          string      `db:"phone"`
	Institution    string      `db:"institution"`
	Address        string      `db:"address"`
	City           string      `db:"city"`
	CarpetType     string      `db:"carpet_type"`
	Needs          string      `db:"needs"`
	EstimatedValue int64       `db:"estimated_value"`
	Notes          string      `db:"notes"`
	Status         string      `db:"status"`
	Stage          string      `db:"stage"`
	StageAttempt   int         `db:"stage_attempt"`
	ExitReason     string      `db:"exit_reason"`
	LeadDate       time.Time   `db:"lead_date"`
	ConvertedAt    null.Time   `db:"converted_at"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
	BranchName     string      `db:"branch_name"`
	OwnerName      string      `db:"owner_name"`
	SourceName     null.String `db:"source_name"`
}

func (row leadRow) unboil() lead.Lead {
	l := lead.Lead{
		ID:             row.ID,
		BranchID:       row.BranchID,
		OwnerID:        row.OwnerID,
		SourceID:       row.SourceID.Ptr(),
		CustomerName:   row.CustomerName,
		Phone:          row.Phone,
		Institution:    row.Institution,
		Address:        row.Address,
		City:           row.City,
		CarpetType:     row.CarpetType,
		Needs:          row.Needs,
		EstimatedValue: row.EstimatedValue,
		Notes:          row.Notes,
		Status:         lead.Status(row.Status),
		Stage:          row.Stage,
		StageAttempt:   row.StageAttempt,
		ExitReason:     row.ExitReason,
		LeadDate:       row.LeadDate.UTC(),
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
		BranchName:     row.BranchName,
		OwnerName:      row.OwnerName,
		SourceName:     row.SourceName.String,
	}
	if row.ConvertedAt.Valid {
		t := row.ConvertedAt.Time.UTC()
		l.ConvertedAt = &t
	}
	return l
}

func leadArgs(l lead.Lead) []interface{} {
	var convertedAt null.Time
	if l.ConvertedAt != nil {
		convertedAt = null.TimeFrom(dbTime(*l.ConvertedAt))
	}
	return []interface{}{
		l.BranchID, l.OwnerID, null.Int64FromPtr(l.SourceID), l.CustomerName, l.Phone, l.Institution,
		l.Address, l.City, l.CarpetType, l.Needs, l.EstimatedValue, l.Notes, string(l.Status), l.Stage,
		l.StageAttempt, l.ExitReason, dbTime(l.LeadDate), convertedAt, dbTime(l.CreatedAt), dbTime(l.UpdatedAt),
	}
}

type leadRepository struct {
	repo
}

var _ lead.Repository = (*leadRepository)(nil)

func NewLeadRepository(exec core.DBExecutor) *leadRepository {
	return &leadRepository{repo{exec: exec}}
}

func terminalStatuses() []interface{} {
	args := make([]interface{}, 0, 3)
	for _, st := range lead.AllStatuses {
		if st.IsTerminal() {
			args = append(args, string(st))
		}
	}
	return args
}

func (r leadRepository) PhoneExists(ctx context.Context, branchID int64, phone string, excludedID int64, exec ...core.DBExecutor) (bool, error) {
	found, err := exists(ctx, r.getExec(exec),
		qm.From("leads"),
		qm.Where("branch_id = ? AND phone = ? AND id <> ?", branchID, phone, excludedID),
		qm.WhereIn("status NOT IN ?", terminalStatuses()...),
	)
	return found, errors.Wrap(err, "checking lead phone")
}

func (r leadRepository) CreateLead(ctx context.Context, l lead.Lead, exec ...core.DBExecutor) (lead.Lead, error) {
	exe := r.getExec(exec)
	id, err := insert(ctx, exe, "leads", leadColumns, leadArgs(l)...)
	if err != nil {
		return lead.Lead{}, errors.Wrap(err, "inserting lead")
	}
	return r.GetLead(ctx, id, exe)
}

// leadFilterMods translates the scope and filter into where clauses on "leads l".
func leadFilterMods(scope policy.Scope, filter *lead.QueryFilter) []qm.QueryMod {
	mods := scopeMods(scope, "l.branch_id", "l.owner_id")
	if filter == nil {
		return mods
	}
	if filter.Search != "" {
		mods = append(mods, searchMod(filter.Search, "l.customer_name", "l.institution", "l.phone"))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]interface{}, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		mods = append(mods, qm.WhereIn("l.status IN ?", statuses...))
	}
	if filter.BranchID != 0 {
		mods = append(mods, qm.Where("l.branch_id = ?", filter.BranchID))
	}
	if filter.OwnerID != 0 {
		mods = append(mods, qm.Where("l.owner_id = ?", filter.OwnerID))
	}
	if filter.SourceID != 0 {
		mods = append(mods, qm.Where("l.source_id = ?", filter.SourceID))
	}
	if filter.Stage != "" {
		mods = append(mods, qm.Where("l.stage = ?", filter.Stage))
	}
	if !filter.DateFrom.IsZero() {
		mods = append(mods, qm.Where("l.lead_date >= ?", dbTime(filter.DateFrom)))
	}
	if !filter.DateTo.IsZero() {
		mods = append(mods, qm.Where("l.lead_date < ?", dbTime(filter.DateTo)))
	}
	return mods
}

func (r leadRepository) QueryLeads(ctx context.Context, scope policy.Scope, filter *lead.QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]lead.Lead, int, error) {
	exe := r.getExec(exec)
	where := leadFilterMods(scope, filter)

	mods := append([]qm.QueryMod{leadSelect}, leadFrom()...)
	mods = append(mods, where...)
	mods = append(mods, qm.OrderBy(core.OrderBy(ordering, lead.SortableFields, "l.lead_date DESC, l.id DESC")))
	if page != nil {
		mods = append(mods, qm.Limit(page.Limit()), qm.Offset(page.Offset()))
	}

	var rows []leadRow
	if err := selectAll(ctx, exe, &rows, mods...); err != nil {
		return nil, 0, errors.Wrap(err, "querying leads")
	}
	leads := make([]lead.Lead, 0, len(rows))
	for _, row := range rows {
		leads = append(leads, row.unboil())
	}

	total := len(leads)
	if page != nil {
		countMods := append([]qm.QueryMod{qm.Select("COUNT(*) AS total"), qm.From("leads l")}, where...)
		if err := selectOne(ctx, exe, &total, countMods...); err != nil {
			return nil, 0, errors.Wrap(err, "counting leads")
		}
	}
	return leads, total, nil
}

func (r leadRepository) GetLead(ctx context.Context, id int64, exec ...core.DBExecutor) (lead.Lead, error) {
	mods := append([]qm.QueryMod{leadSelect}, leadFrom()...)
	mods = append(mods, qm.Where("l.id = ?", id))

	var row leadRow
	if err := selectOne(ctx, r.getExec(exec), &row, mods...); err != nil {
		return lead.Lead{}, trapNoRowsErr(err, lead.ErrNotFound, "finding lead")
	}
	return row.unboil(), nil
}

func (r leadRepository) UpdateLead(ctx context.Context, l lead.Lead, exec ...core.DBExecutor) (lead.Lead, error) {
	exe := r.getExec(exec)
	found, err := update(ctx, exe, "leads", l.ID, leadColumns, leadArgs(l)...)
	if err != nil {
		return lead.Lead{}, errors.Wrap(err, "updating lead")
	}
	if !found {
		return lead.Lead{}, lead.ErrNotFound
	}
	return r.GetLead(ctx, l.ID, exe)
}

// DeleteLead deletes the lead; follow-ups, visits and documents go with it.
func (r leadRepository) DeleteLead(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	found, err := deleteByID(ctx, r.getExec(exec), "leads", id)
	if err != nil {
		return errors.Wrap(err, "deleting lead")
	}
	if !found {
		return lead.ErrNotFound
	}
	return nil
}

// Lead sources

type sourceRow struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

func (row sourceRow) unboil() lead.Source {
	return lead.Source{ID: row.ID, Name: row.Name, IsActive: row.IsActive, CreatedAt: row.CreatedAt.UTC()}
}

func (r leadRepository) SourceNameExists(ctx context.Context, name string, excludedID int64, exec ...core.DBExecutor) (bool, error) {
	found, err := exists(ctx, r.getExec(exec),
		qm.From("lead_sources"), qm.Where("LOWER(name) = ? AND id <> ?", core.CleanString(name, true), excludedID))
	return found, errors.Wrap(err, "checking lead source name")
}

func (r leadRepository) QuerySources(ctx context.Context, activeOnly bool, exec ...core.DBExecutor) ([]lead.Source, error) {
	mods := []qm.QueryMod{qm.From("lead_sources"), qm.OrderBy("name ASC")}
	if activeOnly {
		mods = append(mods, qm.Where("is_active = ?", true))
	}
	var rows []sourceRow
	if err := selectAll(ctx, r.getExec(exec), &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "querying lead sources")
	}
	sources := make([]lead.Source, 0, len(rows))
	for _, row := range rows {
		sources = append(sources, row.unboil())
	}
	return sources, nil
}

func (r leadRepository) GetSource(ctx context.Context, id int64, exec ...core.DBExecutor) (lead.Source, error) {
	var row sourceRow
	if err := selectOne(ctx, r.getExec(exec), &row, qm.From("lead_sources"), qm.Where("id = ?", id)); err != nil {
		return lead.Source{}, trapNoRowsErr(err, lead.ErrSourceNotFound, "finding lead source")
	}
	return row.unboil(), nil
}

func (r leadRepository) CreateSource(ctx context.Context, src lead.Source, exec ...core.DBExecutor) (lead.Source, error) {
	exe := r.getExec(exec)
	id, err := insert(ctx, exe, "lead_sources", []string{"name", "is_active", "created_at"},
		src.Name, src.IsActive, dbTime(src.CreatedAt))
	if err != nil {
		return lead.Source{}, errors.Wrap(err, "inserting lead source")
	}
	return r.GetSource(ctx, id, exe)
}

func (r leadRepository) UpdateSource(ctx context.Context, src lead.Source, exec ...core.DBExecutor) (lead.Source, error) {
	exe := r.getExec(exec)
	found, err := update(ctx, exe, "lead_sources", src.ID, []string{"name", "is_active"}, src.Name, src.IsActive)
	if err != nil {
		return lead.Source{}, errors.Wrap(err, "updating lead source")
	}
	if !found {
		return lead.Source{}, lead.ErrSourceNotFound
	}
	return r.GetSource(ctx, src.ID, exe)
}

// DeleteSource deletes the source; its leads keep existing without a source.
func (r leadRepository) DeleteSource(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	found, err := deleteByID(ctx, r.getExec(exec), "lead_sources", id)
	if err != nil {
		return errors.Wrap(err, "deleting lead source")
	}
	if !found {
		return lead.ErrSourceNotFound
	}
	return nil
}
