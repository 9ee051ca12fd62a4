package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/branch"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
)

var branchColumns = []string{"code", "name", "address", "city", "phone", "is_active", "created_at", "updated_at"}

type branchRow struct {
	ID        int64     `db:"id"`
	Code      string    `db:"code"`
	Name      string    `db:"name"`
	Address   string    `db:"address"`
	City      string    `db:"city"`
	Phone     string    `db:"phone"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row branchRow) unboil() branch.Branch {
	return branch.Branch{
		ID:        row.ID,
		Code:      row.Code,
		Name:      row.Name,
		Address:   row.Address,
		City:      row.City,
		Phone:     row.Phone,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type branchRepository struct {
	repo
}

var (
	_ branch.Repository  = (*branchRepository)(nil)
	_ user.BranchChecker = (*branchRepository)(nil)
)

func NewBranchRepository(exec core.DBExecutor) *branchRepository {
	return &branchRepository{repo{exec: exec}}
}

func (r branchRepository) CodeExists(ctx context.Context, code string, excludedID int64, exec ...core.DBExecutor) (bool, error) {
	found, err := exists(ctx, r.getExec(exec), qm.From("branches"), qm.Where("code = ? AND id <> ?", code, excludedID))
	return found, errors.Wrap(err, "checking branch code")
}

func (r branchRepository) CreateBranch(ctx context.Context, b branch.Branch, exec ...core.DBExecutor) (branch.Branch, error) {
	exe := r.getExec(exec)
	id, err := insert(ctx, exe, "branches", branchColumns,
		b.Code, b.Name, b.Address, b.City, b.Phone, b.IsActive, dbTime(b.CreatedAt), dbTime(b.UpdatedAt))
	if err != nil {
		return branch.Branch{}, errors.Wrap(err, "inserting branch")
	}
	return r.GetBranch(ctx, id, exe)
}

func (r branchRepository) QueryBranches(ctx context.Context, filter *branch.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]branch.Branch, error) {
	mods := []qm.QueryMod{qm.From("branches")}
	if filter != nil {
		if filter.Search != "" {
			mods = append(mods, searchMod(filter.Search, "code", "name", "city"))
		}
		if filter.IsActive != nil {
			mods = append(mods, qm.Where("is_active = ?", *filter.IsActive))
		}
		if filter.IDs != nil {
			if len(filter.IDs) == 0 {
				return []branch.Branch{}, nil
			}
			mods = append(mods, qm.WhereIn("id IN ?", int64Args(filter.IDs)...))
		}
	}
	mods = append(mods, qm.OrderBy(core.OrderBy(ordering, branch.SortableFields, "code ASC")))

	var rows []branchRow
	if err := selectAll(ctx, r.getExec(exec), &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "querying branches")
	}
	branches := make([]branch.Branch, 0, len(rows))
	for _, row := range rows {
		branches = append(branches, row.unboil())
	}
	return branches, nil
}

func (r branchRepository) GetBranch(ctx context.Context, id int64, exec ...core.DBExecutor) (branch.Branch, error) {
	var row branchRow
	if err := selectOne(ctx, r.getExec(exec), &row, qm.From("branches"), qm.Where("id = ?", id)); err != nil {
		return branch.Branch{}, trapNoRowsErr(err, branch.ErrNotFound, "finding branch")
	}
	return row.unboil(), nil
}

func (r branchRepository) UpdateBranch(ctx context.Context, b branch.Branch, exec ...core.DBExecutor) (branch.Branch, error) {
	exe := r.getExec(exec)
	found, err := update(ctx, exe, "branches", b.ID, branchColumns,
		b.Code, b.Name, b.Address, b.City, b.Phone, b.IsActive, dbTime(b.CreatedAt), dbTime(b.UpdatedAt))
	if err != nil {
		return branch.Branch{}, errors.Wrap(err, "updating branch")
	}
	if !found {
		return branch.Branch{}, branch.ErrNotFound
	}
	return r.GetBranch(ctx, b.ID, exe)
}

func (r branchRepository) DeleteBranch(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	for _, table := range []string{"user_branches", "leads"} {
		inUse, err := exists(ctx, exe, qm.From(table), qm.Where("branch_id = ?", id))
		if err != nil {
			return errors.Wrap(err, "checking branch references")
		}
		if inUse {
			return branch.ErrInUse
		}
	}

	found, err := deleteByID(ctx, exe, "branches", id)
	if err != nil {
		return errors.Wrap(err, "deleting branch")
	}
	if !found {
		return branch.ErrNotFound
	}
	return nil
}

func (r branchRepository) ActiveBranchIDs(ctx context.Context, ids []int64, exec ...core.DBExecutor) ([]int64, error) {
	active := make([]int64, 0, len(ids))
	if len(ids) == 0 {
		return active, nil
	}
	exe := r.getExec(exec)
	query, args := buildQuery(exe,
		qm.Select("id"), qm.From("branches"), qm.WhereIn("id IN ?", int64Args(ids)...), qm.Where("is_active = ?", true))
	if err := sqlx.SelectContext(ctx, exe, &active, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying active branches")
	}
	return active, nil
}
