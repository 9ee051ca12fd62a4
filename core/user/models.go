package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/arishrdi/leads-aladdin-sub001/core"
)

// Roles
const (
	RoleSuperUser  = "super_user"
	RoleSupervisor = "supervisor"
	RoleMarketing  = "marketing"
)

var (
	AllRoles = []string{RoleSuperUser, RoleSupervisor, RoleMarketing}

	rolePriorities = map[string]int{
		RoleSuperUser:  30,
		RoleSupervisor: 20,
		RoleMarketing:  10,
	}

	Roles = []Role{
		{Name: "Marketing", Value: RoleMarketing},
		{Name: "Supervisor", Value: RoleSupervisor},
		{Name: "Super User", Value: RoleSuperUser},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func IsValidRole(role string) bool {
	_, ok := rolePriorities[role]
	return ok
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	BranchIDs    []int64   `json:"branch_ids"`
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsSuperUser() bool  { return u.Role == RoleSuperUser }
func (u User) IsSupervisor() bool { return u.Role == RoleSupervisor }
func (u User) IsMarketing() bool  { return u.Role == RoleMarketing }

func (u User) HasBranch(id int64) bool {
	return core.ContainsInt64(u.BranchIDs, id)
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string  `json:"name" validate:"required"`
	Username        string  `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string  `json:"email" validate:"omitempty,email"`
	Password        string  `json:"password" validate:"required"`
	PasswordConfirm string  `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string  `json:"role" validate:"required,userrole"`
	BranchIDs       []int64 `json:"branch_ids"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	if err := svc.CheckUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return err
	}
	return svc.ValidateBranches(ctx, nu.Role, nu.BranchIDs)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Empty strings and nil slices keep the current values.
type UpdateUser struct {
	Name            string  `json:"name"`
	Username        string  `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string  `json:"email" validate:"omitempty,email"`
	IsActive        *bool   `json:"is_active"`
	Role            string  `json:"role" validate:"omitempty,userrole"`
	BranchIDs       []int64 `json:"branch_ids"`
	Password        string  `json:"password" validate:"omitempty"`
	PasswordConfirm string  `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if uname := core.CleanString(uu.Username, true /* lower */); uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
	if uu.Role == "" {
		uu.Role = origUsr.Role
	}
	if uu.BranchIDs == nil {
		uu.BranchIDs = origUsr.BranchIDs
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	if err := svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr); err != nil {
		return err
	}
	return svc.ValidateBranches(ctx, uu.Role, uu.BranchIDs)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search      string
	Roles       []string
	BranchIDs   []int64 // users assigned to any of these branches
	IsActive    *bool
	CreatedFrom time.Time
	CreatedTo   time.Time
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.BranchIDs == nil && qf.IsActive == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single User; the first non-empty field wins.
type GetFilter struct {
	ID              int64
	Username        string
	Email           string
	UsernameOrEmail string
}

// SortableFields maps the public ordering names to user columns.
var SortableFields = map[string]string{
	"id":         "id",
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"role":       "role",
	"is_active":  "is_active",
	"created_at": "created_at",
	"last_login": "last_login",
}
