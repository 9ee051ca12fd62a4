package branch

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/arishrdi/leads-aladdin-sub001/core"
)

// Branch is a sales outlet (cabang). Marketing and supervisors are assigned to branches.
type Branch struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	Phone     string    `json:"phone"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NewBranch struct {
	Code    string `json:"code" validate:"required,max=16,alphanum_"`
	Name    string `json:"name" validate:"required,notblank,max=128"`
	Address string `json:"address"`
	City    string `json:"city" validate:"max=64"`
	Phone   string `json:"phone" validate:"omitempty,phone_id"`
}

func (nb *NewBranch) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nb.Code = strings.ToUpper(core.CleanString(nb.Code))
	nb.Name = core.CleanString(nb.Name)
	nb.Address = core.CleanString(nb.Address)
	nb.City = core.CleanString(nb.City)
	nb.Phone = core.NormalizePhone(nb.Phone)

	if err := validate.Struct(nb); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nb.Code)
}

// UpdateBranch holds the modifiable fields of a Branch; empty strings keep the current values.
type UpdateBranch struct {
	Code     string `json:"code" validate:"omitempty,max=16,alphanum_"`
	Name     string `json:"name" validate:"max=128"`
	Address  string `json:"address"`
	City     string `json:"city" validate:"max=64"`
	Phone    string `json:"phone" validate:"omitempty,phone_id"`
	IsActive *bool  `json:"is_active"`
}

func (ub *UpdateBranch) Validate(ctx context.Context, orig Branch, validate *validator.Validate, svc Service) error {
	keep := func(val, origVal string) string {
		if val = core.CleanString(val); val != "" {
			return val
		}
		return origVal
	}
	ub.Code = strings.ToUpper(keep(ub.Code, orig.Code))
	ub.Name = keep(ub.Name, orig.Name)
	ub.Address = keep(ub.Address, orig.Address)
	ub.City = keep(ub.City, orig.City)
	if phone := core.NormalizePhone(ub.Phone); phone != "" {
		ub.Phone = phone
	} else {
		ub.Phone = orig.Phone
	}

	if err := validate.Struct(ub); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, ub.Code, orig.ID)
}

type QueryFilter struct {
	Search   string
	IsActive *bool
	IDs      []int64 // restricts the result to these branches when not nil
}

// SortableFields maps the public ordering names to branch columns.
var SortableFields = map[string]string{
	"id":         "id",
	"code":       "code",
	"name":       "name",
	"city":       "city",
	"is_active":  "is_active",
	"created_at": "created_at",
}
