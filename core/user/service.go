package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("user")
	ErrEmailExists       = errors.New("a user with this email already exists")
	ErrUsernameExists    = errors.New("a user with this username already exists")
	ErrOwnsLeads         = errors.New("user still owns leads; reassign them first")
	ErrInvalidBranches   = errors.New("unknown or inactive branch")
	errMarketingBranches = errors.New("a marketing user must be assigned to exactly one branch")
	errSupervisorBranch  = errors.New("a supervisor must be assigned to at least one branch")
)

type (
	Repository interface {
		// CheckUsernameUniqueness returns ErrUsernameExists or ErrEmailExists when another user
		// (not in excludedIDs) already uses the username or email.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedIDs []int64, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// DeleteUsersByID returns ErrOwnsLeads if any of the users still owns a lead.
		DeleteUsersByID(ctx context.Context, ids []int64, exec ...core.DBExecutor) (int, error)
	}

	// BranchChecker resolves branch references of user accounts.
	BranchChecker interface {
		// ActiveBranchIDs returns the subset of ids naming existing, active branches.
		ActiveBranchIDs(ctx context.Context, ids []int64, exec ...core.DBExecutor) ([]int64, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, uname, email string, excludedUsers ...User) error
		ValidateBranches(ctx context.Context, role string, branchIDs []int64) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id int64) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		Update(ctx context.Context, usr User, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		Delete(ctx context.Context, ids ...int64) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
	}

	service struct {
		db       core.DB
		repo     Repository
		branches BranchChecker
		mailSvc  core.EmailService
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, branches BranchChecker, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		db:       db,
		repo:     repo,
		branches: branches,
		mailSvc:  mailSvc,
		conf:     conf,
	}
}

func (svc *service) CheckUniqueness(ctx context.Context, uname, email string, excludedUsers ...User) error {
	excludedIDs := make([]int64, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		excludedIDs = append(excludedIDs, u.ID)
	}

	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, excludedIDs); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking username uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// ValidateBranches enforces the branch assignment rules of each role.
func (svc *service) ValidateBranches(ctx context.Context, role string, branchIDs []int64) error {
	switch role {
	case RoleMarketing:
		if len(branchIDs) != 1 {
			return core.NewFieldError("branch_ids", errMarketingBranches.Error())
		}
	case RoleSupervisor:
		if len(branchIDs) == 0 {
			return core.NewFieldError("branch_ids", errSupervisorBranch.Error())
		}
	}
	if len(branchIDs) == 0 {
		return nil
	}

	active, err := svc.branches.ActiveBranchIDs(ctx, branchIDs)
	if err != nil {
		return errors.Wrap(err, "checking branches")
	}
	for _, id := range branchIDs {
		if !core.ContainsInt64(active, id) {
			return core.NewFieldError("branch_ids", fmt.Sprintf("%s: %d", ErrInvalidBranches, id))
		}
	}
	return nil
}

func uniqueIDs(ids []int64) []int64 {
	uniq := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !core.ContainsInt64(uniq, id) {
			uniq = append(uniq, id)
		}
	}
	return uniq
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Role:      nu.Role,
		BranchIDs: uniqueIDs(nu.BranchIDs),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		usr, err = svc.repo.CreateUser(ctx, usr, tx)
		return err
	})
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	users, err := svc.repo.QueryUsers(ctx, filter, ordering)
	return users, errors.Wrap(err, "querying users")
}

func (svc *service) GetByID(ctx context.Context, id int64) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	usr.Role = uu.Role
	usr.BranchIDs = uniqueIDs(uu.BranchIDs)
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		usr, err = svc.repo.UpdateUser(ctx, usr, tx)
		return err
	})
	if err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC().Truncate(time.Microsecond)
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		usr, err = svc.repo.UpdateUser(ctx, usr, tx)
		return err
	})
	return usr, errors.Wrap(err, "setting last login")
}

func (svc *service) Delete(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := svc.repo.DeleteUsersByID(ctx, ids); err != nil {
		if errors.Cause(err) == ErrOwnsLeads {
			return core.NewValidationError(ErrOwnsLeads)
		}
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return nil
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": makeToken(usr, svc.conf.SecretKey),
		},
	})
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	errInvalid := core.NewValidationError(errors.New("invalid token"))

	uid, err := decodeUID(data.UID)
	if err != nil {
		return errInvalid
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		if core.IsNotFound(err) {
			return errInvalid
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return errInvalid
	}

	if err = verifyToken(usr, data.Token, svc.conf.SecretKey, svc.conf.PasswordResetTimeoutDelta); err != nil {
		if err == errTokenExpired {
			return core.NewValidationError(err)
		}
		return errInvalid
	}

	if err = validatePasswordPolicy(data.Password, usr.Name, usr.Username, usr.Email); err != nil {
		return err
	}
	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

	return core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		_, err := svc.repo.UpdateUser(ctx, usr, tx)
		return errors.Wrap(err, "updating password")
	})
}
