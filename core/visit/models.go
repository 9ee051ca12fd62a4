package visit

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/arishrdi/leads-aladdin-sub001/core"
)

// Checklist category kinds
const (
	KindRadio    = "radio"
	KindCheckbox = "checkbox"
)

// Category is a question of the site-visit checklist.
// Radio categories take exactly one answer, checkbox categories any number of distinct ones.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Position  int       `json:"position"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	Options   []Option  `json:"options"`
}

type Option struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"category_id"`
	Label      string `json:"label"`
	Position   int    `json:"position"`
}

// CategoryData creates or replaces a Category with its options.
// Options carrying an ID are kept (and relabeled); the others are created; missing ones are removed.
type CategoryData struct {
	Name     string       `json:"name" validate:"required,notblank,max=128"`
	Kind     string       `json:"kind" validate:"required,oneof=radio checkbox"`
	Position int          `json:"position" validate:"min=0"`
	IsActive *bool        `json:"is_active"`
	Options  []OptionData `json:"options" validate:"required,min=1,dive"`
}

type OptionData struct {
	ID       int64  `json:"id"`
	Label    string `json:"label" validate:"required,notblank,max=128"`
	Position int    `json:"position" validate:"min=0"`
}

func (cd *CategoryData) Validate(validate *validator.Validate) error {
	cd.Name = core.CleanString(cd.Name)
	cd.Kind = core.CleanString(cd.Kind, true)
	for i := range cd.Options {
		cd.Options[i].Label = core.CleanString(cd.Options[i].Label)
	}
	if err := validate.Struct(cd); err != nil {
		return err
	}
	seen := make(map[string]bool, len(cd.Options))
	for _, opt := range cd.Options {
		if seen[opt.Label] {
			return core.NewFieldError("options", "duplicate option "+opt.Label)
		}
		seen[opt.Label] = true
	}
	return nil
}

// Answer is one checked option of a visit checklist.
type Answer struct {
	CategoryID int64 `json:"category_id" validate:"required"`
	OptionID   int64 `json:"option_id" validate:"required"`
}

// Visit is a site-visit (kunjungan) report of a lead.
type Visit struct {
	ID        int64     `json:"id"`
	LeadID    int64     `json:"lead_id"`
	UserID    *int64    `json:"user_id"`
	VisitedAt time.Time `json:"visited_at"`
	Address   string    `json:"address"`
	Summary   string    `json:"summary"`
	Notes     string    `json:"notes"`
	Answers   []Answer  `json:"answers"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// read-only, joined
	UserName string `json:"user_name"`
	BranchID int64  `json:"-"`
	OwnerID  int64  `json:"-"`
}

type NewVisit struct {
	VisitedAt *time.Time `json:"visited_at"`
	Address   string     `json:"address"`
	Summary   string     `json:"summary" validate:"required,notblank"`
	Notes     string     `json:"notes"`
	Answers   []Answer   `json:"answers" validate:"dive"`
}

func (nv *NewVisit) Validate(validate *validator.Validate) error {
	nv.Address = core.CleanString(nv.Address)
	nv.Summary = core.CleanString(nv.Summary)
	nv.Notes = core.CleanString(nv.Notes)
	if err := validate.Struct(nv); err != nil {
		return err
	}
	if nv.VisitedAt != nil && nv.VisitedAt.After(time.Now()) {
		return core.NewFieldError("visited_at", "cannot be in the future")
	}
	return nil
}

// UpdateVisit holds the modifiable fields of a Visit; a non-nil Answers replaces all answers.
type UpdateVisit struct {
	VisitedAt *time.Time `json:"visited_at"`
	Address   *string    `json:"address"`
	Summary   *string    `json:"summary" validate:"omitempty,notblank"`
	Notes     *string    `json:"notes"`
	Answers   []Answer   `json:"answers" validate:"dive"`
}

func (uv *UpdateVisit) Validate(validate *validator.Validate) error {
	for _, s := range []*string{uv.Address, uv.Summary, uv.Notes} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	if err := validate.Struct(uv); err != nil {
		return err
	}
	if uv.VisitedAt != nil && uv.VisitedAt.After(time.Now()) {
		return core.NewFieldError("visited_at", "cannot be in the future")
	}
	return nil
}

func (uv UpdateVisit) apply(v *Visit) {
	if uv.VisitedAt != nil {
		v.VisitedAt = uv.VisitedAt.UTC().Truncate(time.Microsecond)
	}
	if uv.Address != nil {
		v.Address = *uv.Address
	}
	if uv.Summary != nil {
		v.Summary = *uv.Summary
	}
	if uv.Notes != nil {
		v.Notes = *uv.Notes
	}
	if uv.Answers != nil {
		v.Answers = uv.Answers
	}
}
