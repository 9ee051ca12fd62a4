package followup

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
)

// Follow-up statuses
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type Outcome string

const (
	OutcomeAdvance    Outcome = "advance"
	OutcomeNoResponse Outcome = "no_response"
	OutcomeExit       Outcome = "exit"
)

type FollowUp struct {
	ID          int64      `json:"id"`
	LeadID      int64      `json:"lead_id"`
	UserID      *int64     `json:"user_id"`
	Stage       string     `json:"stage"`
	Attempt     int        `json:"attempt"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Status      string     `json:"status"`
	Outcome     Outcome    `json:"outcome"`
	Notes       string     `json:"notes"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// read-only, joined from the lead
	CustomerName string      `json:"customer_name,omitempty"`
	Institution  string      `json:"institution,omitempty"`
	Phone        string      `json:"phone,omitempty"`
	BranchID     int64       `json:"branch_id,omitempty"`
	OwnerID      int64       `json:"owner_id,omitempty"`
	LeadStatus   lead.Status `json:"lead_status,omitempty"`
}

// Completion records the result of a scheduled follow-up.
type Completion struct {
	Outcome Outcome    `json:"outcome" validate:"required,oneof=advance no_response exit"`
	Notes   string     `json:"notes"`
	NextAt  *time.Time `json:"next_at"`
}

func (c *Completion) Validate(validate *validator.Validate) error {
	c.Notes = core.CleanString(c.Notes)
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Outcome == OutcomeExit && c.Notes == "" {
		return core.NewFieldError("notes", "a reason is required to exit a lead")
	}
	if c.NextAt != nil && !c.NextAt.After(time.Now()) {
		return core.NewFieldError("next_at", "must be in the future")
	}
	return nil
}

type Reschedule struct {
	At time.Time `json:"at" validate:"required"`
}

func (r *Reschedule) Validate(validate *validator.Validate) error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if !r.At.After(time.Now()) {
		return core.NewFieldError("at", "must be in the future")
	}
	return nil
}

// Result is the outcome of a completion: the completed follow-up, the updated lead
// and the follow-up scheduled next, if any.
type Result struct {
	FollowUp FollowUp  `json:"followup"`
	Lead     lead.Lead `json:"lead"`
	Next     *FollowUp `json:"next"`
}

// AgendaFilter selects scheduled follow-ups due before Before (and not before From, when set).
type AgendaFilter struct {
	From   time.Time
	Before time.Time
	UserID int64
}

type Agenda struct {
	From    time.Time  `json:"from"`
	To      time.Time  `json:"to"`
	Due     []FollowUp `json:"due"`
	Overdue []FollowUp `json:"overdue"`
}

// Digest lists the follow-ups of one user for a reminder email.
type Digest struct {
	UserID  int64
	Due     []FollowUp
	Overdue []FollowUp
}
