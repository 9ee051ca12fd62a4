package lead

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/arishrdi/leads-aladdin-sub001/core"
)

type Lead struct {
	ID             int64      `json:"id"`
	BranchID       int64      `json:"branch_id"`
	OwnerID        int64      `json:"owner_id"`
	SourceID       *int64     `json:"source_id"`
	CustomerName   string     `json:"customer_name"`
	Phone          string     `json:"phone"`
	Institution    string     `json:"institution"`
	Address        string     `json:"address"`
	City           string     `json:"city"`
	CarpetType     string     `json:"carpet_type"`
	Needs          string     `json:"needs"`
	EstimatedValue int64      `json:"estimated_value"` // IDR
	Notes          string     `json:"notes"`
	Status         Status     `json:"status"`
	Stage          string     `json:"stage"`
	StageAttempt   int        `json:"stage_attempt"`
	ExitReason     string     `json:"exit_reason"`
	LeadDate       time.Time  `json:"lead_date"`
	ConvertedAt    *time.Time `json:"converted_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// read-only, joined
	BranchName string `json:"branch_name"`
	OwnerName  string `json:"owner_name"`
	SourceName string `json:"source_name"`
}

// NewLead contains information needed to create a new Lead.
// BranchID and OwnerID are ignored for marketing users, who always create leads they own in their branch.
type NewLead struct {
	BranchID       int64      `json:"branch_id"`
	OwnerID        int64      `json:"owner_id"`
	SourceID       *int64     `json:"source_id"`
	CustomerName   string     `json:"customer_name" validate:"required,notblank,max=128"`
	Phone          string     `json:"phone" validate:"required,phone_id"`
	Institution    string     `json:"institution" validate:"max=128"`
	Address        string     `json:"address"`
	City           string     `json:"city" validate:"max=64"`
	CarpetType     string     `json:"carpet_type" validate:"max=64"`
	Needs          string     `json:"needs"`
	EstimatedValue int64      `json:"estimated_value" validate:"min=0"`
	Notes          string     `json:"notes"`
	LeadDate       *time.Time `json:"lead_date"`
	FirstFollowUp  *time.Time `json:"first_follow_up_at"`
}

func (nl *NewLead) Validate(validate *validator.Validate) error {
	nl.CustomerName = core.CleanString(nl.CustomerName)
	nl.Phone = core.NormalizePhone(nl.Phone)
	nl.Institution = core.CleanString(nl.Institution)
	nl.Address = core.CleanString(nl.Address)
	nl.City = core.CleanString(nl.City)
	nl.CarpetType = core.CleanString(nl.CarpetType)
	nl.Needs = core.CleanString(nl.Needs)
	nl.Notes = core.CleanString(nl.Notes)

	if err := validate.Struct(nl); err != nil {
		return err
	}
	if nl.FirstFollowUp != nil && !nl.FirstFollowUp.After(time.Now()) {
		return core.NewFieldError("first_follow_up_at", "must be in the future")
	}
	return nil
}

// UpdateLead holds the editable contact details of a Lead.
// Status, stage, branch and owner change through dedicated operations only.
type UpdateLead struct {
	SourceID       *int64     `json:"source_id"`
	CustomerName   string     `json:"customer_name" validate:"max=128"`
	Phone          string     `json:"phone" validate:"omitempty,phone_id"`
	Institution    *string    `json:"institution" validate:"omitempty,max=128"`
	Address        *string    `json:"address"`
	City           *string    `json:"city" validate:"omitempty,max=64"`
	CarpetType     *string    `json:"carpet_type" validate:"omitempty,max=64"`
	Needs          *string    `json:"needs"`
	EstimatedValue *int64     `json:"estimated_value" validate:"omitempty,min=0"`
	Notes          *string    `json:"notes"`
	LeadDate       *time.Time `json:"lead_date"`
}

func (ul *UpdateLead) Validate(validate *validator.Validate) error {
	ul.CustomerName = core.CleanString(ul.CustomerName)
	ul.Phone = core.NormalizePhone(ul.Phone)
	for _, s := range []*string{ul.Institution, ul.Address, ul.City, ul.CarpetType, ul.Needs, ul.Notes} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	return validate.Struct(ul)
}

// apply copies the provided fields of ul into l.
func (ul UpdateLead) apply(l *Lead) {
	if ul.SourceID != nil {
		if *ul.SourceID == 0 {
			l.SourceID = nil
		} else {
			l.SourceID = ul.SourceID
		}
	}
	if ul.CustomerName != "" {
		l.CustomerName = ul.CustomerName
	}
	if ul.Phone != "" {
		l.Phone = ul.Phone
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&l.Institution, ul.Institution)
	set(&l.Address, ul.Address)
	set(&l.City, ul.City)
	set(&l.CarpetType, ul.CarpetType)
	set(&l.Needs, ul.Needs)
	set(&l.Notes, ul.Notes)
	if ul.EstimatedValue != nil {
		l.EstimatedValue = *ul.EstimatedValue
	}
	if ul.LeadDate != nil {
		l.LeadDate = ul.LeadDate.UTC()
	}
}

// StatusChange is a manual status transition request.
type StatusChange struct {
	Status Status `json:"status" validate:"required,leadstatus"`
	Reason string `json:"reason"`
}

func (sc *StatusChange) Validate(validate *validator.Validate) error {
	sc.Status = Status(core.CleanString(string(sc.Status)))
	sc.Reason = core.CleanString(sc.Reason)
	if err := validate.Struct(sc); err != nil {
		return err
	}
	if sc.Status == StatusExit && sc.Reason == "" {
		return core.NewFieldError("reason", "a reason is required to exit a lead")
	}
	return nil
}

type Assignment struct {
	OwnerID int64 `json:"owner_id" validate:"required,min=1"`
}

type QueryFilter struct {
	Search   string
	Statuses []Status
	BranchID int64
	OwnerID  int64
	SourceID int64
	Stage    string
	DateFrom time.Time
	DateTo   time.Time
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Stage = core.CleanString(qf.Stage)
}

// SortableFields maps the public ordering names to lead columns.
var SortableFields = map[string]string{
	"id":              "l.id",
	"customer_name":   "l.customer_name",
	"institution":     "l.institution",
	"city":            "l.city",
	"status":          "l.status",
	"stage":           "l.stage",
	"estimated_value": "l.estimated_value",
	"lead_date":       "l.lead_date",
	"created_at":      "l.created_at",
	"updated_at":      "l.updated_at",
}

// Source is an acquisition channel (sumber leads).
type Source struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type SourceData struct {
	Name     string `json:"name" validate:"required,notblank,max=64"`
	IsActive *bool  `json:"is_active"`
}

func (sd *SourceData) Validate(validate *validator.Validate) error {
	sd.Name = core.CleanString(sd.Name)
	return validate.Struct(sd)
}
