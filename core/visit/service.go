package visit

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
)

var (
	ErrNotFound         = core.NewNotFoundError("visit")
	ErrCategoryNotFound = core.NewNotFoundError("checklist category")
)

type (
	Repository interface {
		QueryCategories(ctx context.Context, activeOnly bool, exec ...core.DBExecutor) ([]Category, error)
		GetCategory(ctx context.Context, id int64, exec ...core.DBExecutor) (Category, error)
		// CreateCategory inserts the category with its options.
		CreateCategory(ctx context.Context, cat Category, exec ...core.DBExecutor) (Category, error)
		// UpdateCategory updates the category and syncs its options: options without an ID are
		// inserted, the others updated, and the stored ones missing from cat.Options deleted.
		UpdateCategory(ctx context.Context, cat Category, exec ...core.DBExecutor) (Category, error)
		DeleteCategory(ctx context.Context, id int64, exec ...core.DBExecutor) error

		// CreateVisit inserts the visit with its answers.
		CreateVisit(ctx context.Context, v Visit, exec ...core.DBExecutor) (Visit, error)
		GetVisit(ctx context.Context, id int64, exec ...core.DBExecutor) (Visit, error)
		ListVisits(ctx context.Context, leadID int64, exec ...core.DBExecutor) ([]Visit, error)
		// UpdateVisit updates the visit and replaces its answers.
		UpdateVisit(ctx context.Context, v Visit, exec ...core.DBExecutor) (Visit, error)
		DeleteVisit(ctx context.Context, id int64, exec ...core.DBExecutor) error
	}

	Service interface {
		Categories(ctx context.Context, activeOnly bool) ([]Category, error)
		GetCategory(ctx context.Context, id int64) (Category, error)
		CreateCategory(ctx context.Context, actor policy.Actor, data CategoryData) (Category, error)
		UpdateCategory(ctx context.Context, actor policy.Actor, cat Category, data CategoryData) (Category, error)
		DeleteCategory(ctx context.Context, actor policy.Actor, id int64) error

		Create(ctx context.Context, actor policy.Actor, l lead.Lead, nv NewVisit) (Visit, error)
		Get(ctx context.Context, actor policy.Actor, id int64) (Visit, error)
		ListByLead(ctx context.Context, actor policy.Actor, l lead.Lead) ([]Visit, error)
		Update(ctx context.Context, actor policy.Actor, v Visit, uv UpdateVisit) (Visit, error)
		Delete(ctx context.Context, actor policy.Actor, v Visit) error
	}

	service struct {
		db   core.DB
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository) Service {
	return &service{db: db, repo: repo}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Checklist

func (svc *service) Categories(ctx context.Context, activeOnly bool) ([]Category, error) {
	cats, err := svc.repo.QueryCategories(ctx, activeOnly)
	return cats, errors.Wrap(err, "querying checklist categories")
}

func (svc *service) GetCategory(ctx context.Context, id int64) (Category, error) {
	return svc.repo.GetCategory(ctx, id)
}

func categoryOptions(catID int64, data []OptionData) []Option {
	opts := make([]Option, 0, len(data))
	for i, od := range data {
		pos := od.Position
		if pos == 0 {
			pos = i + 1
		}
		opts = append(opts, Option{ID: od.ID, CategoryID: catID, Label: od.Label, Position: pos})
	}
	return opts
}

func (svc *service) CreateCategory(ctx context.Context, actor policy.Actor, data CategoryData) (Category, error) {
	if !policy.ManageReferences(actor) {
		return Category{}, core.ErrForbidden
	}
	cat := Category{
		Name:      data.Name,
		Kind:      data.Kind,
		Position:  data.Position,
		IsActive:  true,
		CreatedAt: now(),
	}
	if data.IsActive != nil {
		cat.IsActive = *data.IsActive
	}
	cat.Options = categoryOptions(0, data.Options)
	for i := range cat.Options {
		cat.Options[i].ID = 0
	}

	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		cat, err = svc.repo.CreateCategory(ctx, cat, tx)
		return err
	})
	if err != nil {
		return Category{}, errors.Wrap(err, "creating checklist category")
	}
	return svc.repo.GetCategory(ctx, cat.ID)
}

func (svc *service) UpdateCategory(ctx context.Context, actor policy.Actor, cat Category, data CategoryData) (Category, error) {
	if !policy.ManageReferences(actor) {
		return Category{}, core.ErrForbidden
	}
	known := make(map[int64]bool, len(cat.Options))
	for _, opt := range cat.Options {
		known[opt.ID] = true
	}
	for _, od := range data.Options {
		if od.ID != 0 && !known[od.ID] {
			return Category{}, core.NewFieldError("options", "option does not belong to the category")
		}
	}
	if data.Kind != cat.Kind && data.Kind == KindRadio {
		// existing checkbox answers could violate the single-answer rule
		return Category{}, core.NewFieldError("kind", "a checkbox category cannot become a radio category")
	}

	cat.Name = data.Name
	cat.Kind = data.Kind
	cat.Position = data.Position
	if data.IsActive != nil {
		cat.IsActive = *data.IsActive
	}
	cat.Options = categoryOptions(cat.ID, data.Options)

	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		_, err := svc.repo.UpdateCategory(ctx, cat, tx)
		return err
	})
	if err != nil {
		return Category{}, errors.Wrap(err, "updating checklist category")
	}
	return svc.repo.GetCategory(ctx, cat.ID)
}

func (svc *service) DeleteCategory(ctx context.Context, actor policy.Actor, id int64) error {
	if !policy.ManageReferences(actor) {
		return core.ErrForbidden
	}
	return errors.Wrap(svc.repo.DeleteCategory(ctx, id), "deleting checklist category")
}

// Visits

func (svc *service) checkAnswers(ctx context.Context, answers []Answer) ([]Answer, error) {
	cats, err := svc.repo.QueryCategories(ctx, true)
	if err != nil {
		return nil, errors.Wrap(err, "querying checklist categories")
	}
	return CheckAnswers(cats, answers)
}

func (svc *service) Create(ctx context.Context, actor policy.Actor, l lead.Lead, nv NewVisit) (Visit, error) {
	if !policy.EditLead(actor, l.BranchID, l.OwnerID) {
		return Visit{}, core.ErrForbidden
	}
	answers, err := svc.checkAnswers(ctx, nv.Answers)
	if err != nil {
		return Visit{}, err
	}

	tstamp := now()
	actorID := actor.ID
	v := Visit{
		LeadID:    l.ID,
		UserID:    &actorID,
		VisitedAt: tstamp,
		Address:   nv.Address,
		Summary:   nv.Summary,
		Notes:     nv.Notes,
		Answers:   answers,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if nv.VisitedAt != nil {
		v.VisitedAt = nv.VisitedAt.UTC().Truncate(time.Microsecond)
	}
	if v.Address == "" {
		v.Address = l.Address
	}

	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		v, err = svc.repo.CreateVisit(ctx, v, tx)
		return err
	})
	if err != nil {
		return Visit{}, errors.Wrap(err, "creating visit")
	}
	return svc.repo.GetVisit(ctx, v.ID)
}

// Get returns the visit if the actor may see its lead.
func (svc *service) Get(ctx context.Context, actor policy.Actor, id int64) (Visit, error) {
	v, err := svc.repo.GetVisit(ctx, id)
	if err != nil {
		return Visit{}, err
	}
	if !policy.ViewLead(actor, v.BranchID, v.OwnerID) {
		return Visit{}, ErrNotFound
	}
	return v, nil
}

func (svc *service) ListByLead(ctx context.Context, actor policy.Actor, l lead.Lead) ([]Visit, error) {
	if !policy.ViewLead(actor, l.BranchID, l.OwnerID) {
		return nil, lead.ErrNotFound
	}
	visits, err := svc.repo.ListVisits(ctx, l.ID)
	return visits, errors.Wrap(err, "listing visits")
}

func (svc *service) Update(ctx context.Context, actor policy.Actor, v Visit, uv UpdateVisit) (Visit, error) {
	if !policy.EditLead(actor, v.BranchID, v.OwnerID) {
		return Visit{}, core.ErrForbidden
	}
	uv.apply(&v)
	if uv.Answers != nil {
		answers, err := svc.checkAnswers(ctx, v.Answers)
		if err != nil {
			return Visit{}, err
		}
		v.Answers = answers
	}
	v.UpdatedAt = now()

	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		_, err := svc.repo.UpdateVisit(ctx, v, tx)
		return err
	})
	if err != nil {
		return Visit{}, errors.Wrap(err, "updating visit")
	}
	return svc.repo.GetVisit(ctx, v.ID)
}

func (svc *service) Delete(ctx context.Context, actor policy.Actor, v Visit) error {
	if !policy.EditLead(actor, v.BranchID, v.OwnerID) {
		return core.ErrForbidden
	}
	return errors.Wrap(svc.repo.DeleteVisit(ctx, v.ID), "deleting visit")
}
