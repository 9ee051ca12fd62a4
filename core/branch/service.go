package branch

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
)

var (
	ErrNotFound   = core.NewNotFoundError("branch")
	ErrCodeExists = errors.New("a branch with this code already exists")
	ErrInUse      = errors.New("branch still has users or leads")
)

type (
	Repository interface {
		CodeExists(ctx context.Context, code string, excludedID int64, exec ...core.DBExecutor) (bool, error)
		CreateBranch(ctx context.Context, b Branch, exec ...core.DBExecutor) (Branch, error)
		QueryBranches(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Branch, error)
		GetBranch(ctx context.Context, id int64, exec ...core.DBExecutor) (Branch, error)
		UpdateBranch(ctx context.Context, b Branch, exec ...core.DBExecutor) (Branch, error)
		// DeleteBranch returns ErrInUse while users or leads reference the branch.
		DeleteBranch(ctx context.Context, id int64, exec ...core.DBExecutor) error
		ActiveBranchIDs(ctx context.Context, ids []int64, exec ...core.DBExecutor) ([]int64, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, code string, excludedID ...int64) error
		Create(ctx context.Context, actor policy.Actor, nb NewBranch) (Branch, error)
		Query(ctx context.Context, actor policy.Actor, filter *QueryFilter, ordering []core.DBOrdering) ([]Branch, error)
		Get(ctx context.Context, actor policy.Actor, id int64) (Branch, error)
		Update(ctx context.Context, actor policy.Actor, b Branch, ub UpdateBranch) (Branch, error)
		Delete(ctx context.Context, actor policy.Actor, id int64) error
		ListUsers(ctx context.Context, actor policy.Actor, id int64) ([]user.User, error)
	}

	service struct {
		repo    Repository
		usrRepo user.Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrRepo user.Repository) Service {
	return &service{repo: repo, usrRepo: usrRepo}
}

func (svc *service) CheckUniqueness(ctx context.Context, code string, excludedID ...int64) error {
	var excl int64
	if len(excludedID) > 0 {
		excl = excludedID[0]
	}
	exists, err := svc.repo.CodeExists(ctx, code, excl)
	if err != nil {
		return errors.Wrap(err, "checking branch code")
	}
	if exists {
		return core.NewFieldError("code", ErrCodeExists.Error())
	}
	return nil
}

func (svc *service) Create(ctx context.Context, actor policy.Actor, nb NewBranch) (Branch, error) {
	if !policy.ManageBranches(actor) {
		return Branch{}, core.ErrForbidden
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	b, err := svc.repo.CreateBranch(ctx, Branch{
		Code:      nb.Code,
		Name:      nb.Name,
		Address:   nb.Address,
		City:      nb.City,
		Phone:     nb.Phone,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return b, errors.Wrap(err, "creating branch")
}

// Query lists the branches visible to the actor.
func (svc *service) Query(ctx context.Context, actor policy.Actor, filter *QueryFilter, ordering []core.DBOrdering) ([]Branch, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	if !actor.IsSuperUser() {
		filter.IDs = append([]int64{}, actor.BranchIDs...)
	}
	branches, err := svc.repo.QueryBranches(ctx, filter, ordering)
	return branches, errors.Wrap(err, "querying branches")
}

func (svc *service) Get(ctx context.Context, actor policy.Actor, id int64) (Branch, error) {
	if !policy.ViewBranch(actor, id) {
		return Branch{}, ErrNotFound
	}
	return svc.repo.GetBranch(ctx, id)
}

func (svc *service) Update(ctx context.Context, actor policy.Actor, b Branch, ub UpdateBranch) (Branch, error) {
	if !policy.ManageBranches(actor) {
		return Branch{}, core.ErrForbidden
	}
	b.Code = ub.Code
	b.Name = ub.Name
	b.Address = ub.Address
	b.City = ub.City
	b.Phone = ub.Phone
	if ub.IsActive != nil {
		b.IsActive = *ub.IsActive
	}
	b.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

	b, err := svc.repo.UpdateBranch(ctx, b)
	return b, errors.Wrap(err, "updating branch")
}

func (svc *service) Delete(ctx context.Context, actor policy.Actor, id int64) error {
	if !policy.ManageBranches(actor) {
		return core.ErrForbidden
	}
	if err := svc.repo.DeleteBranch(ctx, id); err != nil {
		if errors.Cause(err) == ErrInUse {
			return core.NewValidationError(ErrInUse)
		}
		return errors.Wrap(err, "deleting branch")
	}
	return nil
}

// ListUsers returns the users assigned to the branch.
func (svc *service) ListUsers(ctx context.Context, actor policy.Actor, id int64) ([]user.User, error) {
	if _, err := svc.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	users, err := svc.usrRepo.QueryUsers(
		ctx,
		&user.QueryFilter{BranchIDs: []int64{id}},
		[]core.DBOrdering{{Field: "name", Ascending: true}},
	)
	return users, errors.Wrap(err, "querying branch users")
}
