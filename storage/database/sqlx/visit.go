package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/visit"
)

type categoryRow struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Kind      string    `db:"kind"`
	Position  int       `db:"position"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

type optionRow struct {
	ID         int64  `db:"id"`
	CategoryID int64  `db:"category_id"`
	Label      string `db:"label"`
	Position   int    `db:"position"`
}

var visitColumns = []string{"lead_id", "user_id", "visited_at", "address", "summary", "notes", "created_at", "updated_at"}

var visitSelect = qm.Select(
	"v.id AS id", "v.lead_id AS lead_id", "v.user_id AS user_id", "v.visited_at AS visited_at",
	"v.address AS address", "v.summary AS summary", "v.notes AS notes", "v.created_at AS created_at",
	"v.updated_at AS updated_at", "u.name AS user_name", "l.branch_id AS branch_id", "l.owner_id AS owner_id",
)

type visitRow struct {
	ID        int64       `db:"id"`
	LeadID    int64       `db:"lead_id"`
	UserID    null.Int64  `db:"user_id"`
	VisitedAt time.Time   `db:"visited_at"`
	Address   string      `db:"address"`
	Summary   string      `db:"summary"`
	Notes     string      `db:"notes"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
	UserName  null.String `db:"user_name"`
	BranchID  int64       `db:"branch_id"`
	OwnerID   int64       `db:"owner_id"`
}

func (row visitRow) unboil() visit.Visit {
	return visit.Visit{
		ID:        row.ID,
		LeadID:    row.LeadID,
		UserID:    row.UserID.Ptr(),
		VisitedAt: row.VisitedAt.UTC(),
		Address:   row.Address,
		Summary:   row.Summary,
		Notes:     row.Notes,
		Answers:   []visit.Answer{},
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
		UserName:  row.UserName.String,
		BranchID:  row.BranchID,
		OwnerID:   row.OwnerID,
	}
}

func visitArgs(v visit.Visit) []interface{} {
	return []interface{}{
		v.LeadID, null.Int64FromPtr(v.UserID), dbTime(v.VisitedAt), v.Address, v.Summary, v.Notes,
		dbTime(v.CreatedAt), dbTime(v.UpdatedAt),
	}
}

type visitRepository struct {
	repo
}

var _ visit.Repository = (*visitRepository)(nil)

func NewVisitRepository(exec core.DBExecutor) *visitRepository {
	return &visitRepository{repo{exec: exec}}
}

// Checklist categories

// loadOptions fills the options of cats, ordered by position.
func (r visitRepository) loadOptions(ctx context.Context, exe core.DBExecutor, cats []visit.Category) error {
	if len(cats) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(cats))
	idx := make(map[int64]int, len(cats))
	for i, c := range cats {
		ids = append(ids, c.ID)
		idx[c.ID] = i
	}

	var rows []optionRow
	err := selectAll(ctx, exe, &rows,
		qm.From("checklist_options"),
		qm.WhereIn("category_id IN ?", int64Args(ids)...),
		qm.OrderBy("position ASC, id ASC"),
	)
	if err != nil {
		return err
	}
	for _, row := range rows {
		c := &cats[idx[row.CategoryID]]
		c.Options = append(c.Options, visit.Option(row))
	}
	return nil
}

func (r visitRepository) QueryCategories(ctx context.Context, activeOnly bool, exec ...core.DBExecutor) ([]visit.Category, error) {
	exe := r.getExec(exec)
	mods := []qm.QueryMod{qm.From("checklist_categories"), qm.OrderBy("position ASC, id ASC")}
	if activeOnly {
		mods = append(mods, qm.Where("is_active = ?", true))
	}

	var rows []categoryRow
	if err := selectAll(ctx, exe, &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "querying checklist categories")
	}
	cats := make([]visit.Category, 0, len(rows))
	for _, row := range rows {
		cats = append(cats, unboilCategory(row))
	}
	if err := r.loadOptions(ctx, exe, cats); err != nil {
		return nil, errors.Wrap(err, "loading checklist options")
	}
	return cats, nil
}

func unboilCategory(row categoryRow) visit.Category {
	return visit.Category{
		ID:        row.ID,
		Name:      row.Name,
		Kind:      row.Kind,
		Position:  row.Position,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt.UTC(),
		Options:   []visit.Option{},
	}
}

func (r visitRepository) GetCategory(ctx context.Context, id int64, exec ...core.DBExecutor) (visit.Category, error) {
	exe := r.getExec(exec)
	var row categoryRow
	if err := selectOne(ctx, exe, &row, qm.From("checklist_categories"), qm.Where("id = ?", id)); err != nil {
		return visit.Category{}, trapNoRowsErr(err, visit.ErrCategoryNotFound, "finding checklist category")
	}
	cats := []visit.Category{unboilCategory(row)}
	if err := r.loadOptions(ctx, exe, cats); err != nil {
		return visit.Category{}, errors.Wrap(err, "loading checklist options")
	}
	return cats[0], nil
}

func (r visitRepository) insertOptions(ctx context.Context, exe core.DBExecutor, catID int64, opts []visit.Option) error {
	rows := make([][]interface{}, 0, len(opts))
	for _, opt := range opts {
		rows = append(rows, []interface{}{catID, opt.Label, opt.Position})
	}
	return insertMany(ctx, exe, "checklist_options", []string{"category_id", "label", "position"}, rows)
}

func (r visitRepository) CreateCategory(ctx context.Context, cat visit.Category, exec ...core.DBExecutor) (visit.Category, error) {
	exe := r.getExec(exec)
	id, err := insert(ctx, exe, "checklist_categories",
		[]string{"name", "kind", "position", "is_active", "created_at"},
		cat.Name, cat.Kind, cat.Position, cat.IsActive, dbTime(cat.CreatedAt))
	if err != nil {
		return visit.Category{}, errors.Wrap(err, "inserting checklist category")
	}
	if err = r.insertOptions(ctx, exe, id, cat.Options); err != nil {
		return visit.Category{}, errors.Wrap(err, "inserting checklist options")
	}
	return r.GetCategory(ctx, id, exe)
}

func (r visitRepository) UpdateCategory(ctx context.Context, cat visit.Category, exec ...core.DBExecutor) (visit.Category, error) {
	exe := r.getExec(exec)
	found, err := update(ctx, exe, "checklist_categories", cat.ID,
		[]string{"name", "kind", "position", "is_active"}, cat.Name, cat.Kind, cat.Position, cat.IsActive)
	if err != nil {
		return visit.Category{}, errors.Wrap(err, "updating checklist category")
	}
	if !found {
		return visit.Category{}, visit.ErrCategoryNotFound
	}

	var (
		kept  []int64
		added []visit.Option
	)
	for _, opt := range cat.Options {
		if opt.ID == 0 {
			added = append(added, opt)
			continue
		}
		kept = append(kept, opt.ID)
		query := exe.Rebind("UPDATE checklist_options SET label = ?, position = ? WHERE id = ? AND category_id = ?")
		if _, err = exe.ExecContext(ctx, query, opt.Label, opt.Position, opt.ID, cat.ID); err != nil {
			return visit.Category{}, errors.Wrap(err, "updating checklist option")
		}
	}

	// removed options take their answers with them
	query, args := "DELETE FROM checklist_options WHERE category_id = ?", []interface{}{cat.ID}
	if len(kept) > 0 {
		query, args, err = sqlx.In(query+" AND id NOT IN (?)", cat.ID, kept)
		if err != nil {
			return visit.Category{}, errors.Wrap(err, "deleting checklist options")
		}
	}
	if _, err = exe.ExecContext(ctx, exe.Rebind(query), args...); err != nil {
		return visit.Category{}, errors.Wrap(err, "deleting checklist options")
	}
	if err = r.insertOptions(ctx, exe, cat.ID, added); err != nil {
		return visit.Category{}, errors.Wrap(err, "inserting checklist options")
	}
	return r.GetCategory(ctx, cat.ID, exe)
}

func (r visitRepository) DeleteCategory(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	found, err := deleteByID(ctx, r.getExec(exec), "checklist_categories", id)
	if err != nil {
		return errors.Wrap(err, "deleting checklist category")
	}
	if !found {
		return visit.ErrCategoryNotFound
	}
	return nil
}

// Visits

func visitFrom() []qm.QueryMod {
	return []qm.QueryMod{
		visitSelect,
		qm.From("visits v"),
		qm.InnerJoin("leads l ON l.id = v.lead_id"),
		qm.LeftOuterJoin("users u ON u.id = v.user_id"),
	}
}

// loadAnswers fills the answers of visits.
func (r visitRepository) loadAnswers(ctx context.Context, exe core.DBExecutor, visits []visit.Visit) error {
	if len(visits) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(visits))
	idx := make(map[int64]int, len(visits))
	for i, v := range visits {
		ids = append(ids, v.ID)
		idx[v.ID] = i
	}

	var rows []struct {
		VisitID    int64 `db:"visit_id"`
		CategoryID int64 `db:"category_id"`
		OptionID   int64 `db:"option_id"`
	}
	err := selectAll(ctx, exe, &rows,
		qm.From("visit_answers"),
		qm.WhereIn("visit_id IN ?", int64Args(ids)...),
		qm.OrderBy("category_id ASC, option_id ASC"),
	)
	if err != nil {
		return err
	}
	for _, row := range rows {
		v := &visits[idx[row.VisitID]]
		v.Answers = append(v.Answers, visit.Answer{CategoryID: row.CategoryID, OptionID: row.OptionID})
	}
	return nil
}

func (r visitRepository) setAnswers(ctx context.Context, exe core.DBExecutor, visitID int64, answers []visit.Answer) error {
	if _, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM visit_answers WHERE visit_id = ?"), visitID); err != nil {
		return err
	}
	rows := make([][]interface{}, 0, len(answers))
	for _, a := range answers {
		rows = append(rows, []interface{}{visitID, a.CategoryID, a.OptionID})
	}
	return insertMany(ctx, exe, "visit_answers", []string{"visit_id", "category_id", "option_id"}, rows)
}

func (r visitRepository) CreateVisit(ctx context.Context, v visit.Visit, exec ...core.DBExecutor) (visit.Visit, error) {
	exe := r.getExec(exec)
	id, err := insert(ctx, exe, "visits", visitColumns, visitArgs(v)...)
	if err != nil {
		return visit.Visit{}, errors.Wrap(err, "inserting visit")
	}
	if err = r.setAnswers(ctx, exe, id, v.Answers); err != nil {
		return visit.Visit{}, errors.Wrap(err, "inserting visit answers")
	}
	return r.GetVisit(ctx, id, exe)
}

func (r visitRepository) GetVisit(ctx context.Context, id int64, exec ...core.DBExecutor) (visit.Visit, error) {
	exe := r.getExec(exec)
	var row visitRow
	if err := selectOne(ctx, exe, &row, append(visitFrom(), qm.Where("v.id = ?", id))...); err != nil {
		return visit.Visit{}, trapNoRowsErr(err, visit.ErrNotFound, "finding visit")
	}
	visits := []visit.Visit{row.unboil()}
	if err := r.loadAnswers(ctx, exe, visits); err != nil {
		return visit.Visit{}, errors.Wrap(err, "loading visit answers")
	}
	return visits[0], nil
}

func (r visitRepository) ListVisits(ctx context.Context, leadID int64, exec ...core.DBExecutor) ([]visit.Visit, error) {
	exe := r.getExec(exec)
	mods := append(visitFrom(), qm.Where("v.lead_id = ?", leadID), qm.OrderBy("v.visited_at DESC, v.id DESC"))

	var rows []visitRow
	if err := selectAll(ctx, exe, &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "listing visits")
	}
	visits := make([]visit.Visit, 0, len(rows))
	for _, row := range rows {
		visits = append(visits, row.unboil())
	}
	if err := r.loadAnswers(ctx, exe, visits); err != nil {
		return nil, errors.Wrap(err, "loading visit answers")
	}
	return visits, nil
}

func (r visitRepository) UpdateVisit(ctx context.Context, v visit.Visit, exec ...core.DBExecutor) (visit.Visit, error) {
	exe := r.getExec(exec)
	found, err := update(ctx, exe, "visits", v.ID, visitColumns, visitArgs(v)...)
	if err != nil {
		return visit.Visit{}, errors.Wrap(err, "updating visit")
	}
	if !found {
		return visit.Visit{}, visit.ErrNotFound
	}
	if err = r.setAnswers(ctx, exe, v.ID, v.Answers); err != nil {
		return visit.Visit{}, errors.Wrap(err, "updating visit answers")
	}
	return r.GetVisit(ctx, v.ID, exe)
}

func (r visitRepository) DeleteVisit(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	found, err := deleteByID(ctx, r.getExec(exec), "visits", id)
	if err != nil {
		return errors.Wrap(err, "deleting visit")
	}
	if !found {
		return visit.ErrNotFound
	}
	return nil
}
