package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/followup"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
)

var followUpColumns = []string{
	"lead_id", "user_id", "stage", "attempt", "scheduled_at", "completed_at", "status", "outcome", "notes",
	"created_at", "updated_at",
}

var followUpSelect = qm.Select(
	"f.id AS id", "f.lead_id AS lead_id", "f.user_id AS user_id", "f.stage AS stage", "f.attempt AS attempt",
	"f.scheduled_at AS scheduled_at", "f.completed_at AS completed_at", "f.status AS status",
	"f.outcome AS outcome", "f.notes AS notes", "f.created_at AS created_at", "f.updated_at AS updated_at",
	"l.customer_name AS customer_name", "l.institution AS institution", "l.phone AS phone",
	"l.branch_id AS branch_id", "l.owner_id AS owner_id", "l.status AS lead_status",
)

type followUpRow struct {
	ID           int64      `db:"id"`
	LeadID       int64      `db:"lead_id"`
	UserID       null.Int64 `db:"user_id"`
	Stage        string     `db:"stage"`
	Attempt      int        `db:"attempt"`
	ScheduledAt  time.Time  `db:"scheduled_at"`
	CompletedAt  null.Time  `db:"completed_at"`
	Status       string     `db:"status"`
	Outcome      string     `db:"outcome"`
	Notes        string     `db:"notes"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	CustomerName string     `db:"customer_name"`
	Institution  string     `db:"institution"`
	Phone        string     `db:"phone"`
	BranchID     int64      `db:"branch_id"`
	OwnerID      int64      `db:"owner_id"`
	LeadStatus   string     `db:"lead_status"`
}

func (row followUpRow) unboil() followup.FollowUp {
	fu := followup.FollowUp{
		ID:           row.ID,
		LeadID:       row.LeadID,
		UserID:       row.UserID.Ptr(),
		Stage:        row.Stage,
		Attempt:      row.Attempt,
		ScheduledAt:  row.ScheduledAt.UTC(),
		Status:       row.Status,
		Outcome:      followup.Outcome(row.Outcome),
		Notes:        row.Notes,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		CustomerName: row.CustomerName,
		Institution:  row.Institution,
		Phone:        row.Phone,
		BranchID:     row.BranchID,
		OwnerID:      row.OwnerID,
		LeadStatus:   lead.Status(row.LeadStatus),
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time.UTC()
		fu.CompletedAt = &t
	}
	return fu
}

func followUpArgs(fu followup.FollowUp) []interface{} {
	var completedAt null.Time
	if fu.CompletedAt != nil {
		completedAt = null.TimeFrom(dbTime(*fu.CompletedAt))
	}
	return []interface{}{
		fu.LeadID, null.Int64FromPtr(fu.UserID), fu.Stage, fu.Attempt, dbTime(fu.ScheduledAt), completedAt,
		fu.Status, string(fu.Outcome), fu.Notes, dbTime(fu.CreatedAt), dbTime(fu.UpdatedAt),
	}
}

func followUpFrom() []qm.QueryMod {
	return []qm.QueryMod{followUpSelect, qm.From("follow_ups f"), qm.InnerJoin("leads l ON l.id = f.lead_id")}
}

type followUpRepository struct {
	repo
}

var _ followup.Repository = (*followUpRepository)(nil)

func NewFollowUpRepository(exec core.DBExecutor) *followUpRepository {
	return &followUpRepository{repo{exec: exec}}
}

func (r followUpRepository) CreateFollowUp(ctx context.Context, fu followup.FollowUp, exec ...core.DBExecutor) (followup.FollowUp, error) {
	exe := r.getExec(exec)
	id, err := insert(ctx, exe, "follow_ups", followUpColumns, followUpArgs(fu)...)
	if err != nil {
		return followup.FollowUp{}, errors.Wrap(err, "inserting follow-up")
	}
	return r.GetFollowUp(ctx, id, exe)
}

func (r followUpRepository) GetFollowUp(ctx context.Context, id int64, exec ...core.DBExecutor) (followup.FollowUp, error) {
	var row followUpRow
	mods := append(followUpFrom(), qm.Where("f.id = ?", id))
	if err := selectOne(ctx, r.getExec(exec), &row, mods...); err != nil {
		return followup.FollowUp{}, trapNoRowsErr(err, followup.ErrNotFound, "finding follow-up")
	}
	return row.unboil(), nil
}

func (r followUpRepository) UpdateScheduled(ctx context.Context, fu followup.FollowUp, exec ...core.DBExecutor) (followup.FollowUp, error) {
	exe := r.getExec(exec)
	cond, condArgs := "status = ?", []interface{}{followup.StatusScheduled}
	found, err := updateIf(ctx, exe, "follow_ups", fu.ID, cond, condArgs, followUpColumns, followUpArgs(fu)...)
	if err != nil {
		return followup.FollowUp{}, errors.Wrap(err, "updating follow-up")
	}
	if !found {
		if _, err = r.GetFollowUp(ctx, fu.ID, exe); err != nil {
			return followup.FollowUp{}, err
		}
		return followup.FollowUp{}, followup.ErrNotScheduled
	}
	return r.GetFollowUp(ctx, fu.ID, exe)
}

func (r followUpRepository) RescheduleScheduled(ctx context.Context, id int64, at, updatedAt time.Time, exec ...core.DBExecutor) (followup.FollowUp, error) {
	exe := r.getExec(exec)
	cond, condArgs := "status = ?", []interface{}{followup.StatusScheduled}
	cols := []string{"scheduled_at", "updated_at"}
	found, err := updateIf(ctx, exe, "follow_ups", id, cond, condArgs, cols, dbTime(at), dbTime(updatedAt))
	if err != nil {
		return followup.FollowUp{}, errors.Wrap(err, "rescheduling follow-up")
	}
	if !found {
		if _, err = r.GetFollowUp(ctx, id, exe); err != nil {
			return followup.FollowUp{}, err
		}
		return followup.FollowUp{}, followup.ErrNotScheduled
	}
	return r.GetFollowUp(ctx, id, exe)
}

func (r followUpRepository) CancelPending(ctx context.Context, leadID int64, at time.Time, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	query := exe.Rebind("UPDATE follow_ups SET status = ?, updated_at = ? WHERE lead_id = ? AND status = ?")
	_, err := exe.ExecContext(ctx, query, followup.StatusCancelled, dbTime(at), leadID, followup.StatusScheduled)
	return errors.Wrap(err, "cancelling pending follow-up")
}

func (r followUpRepository) ReassignPending(ctx context.Context, leadID, userID int64, at time.Time, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	query := exe.Rebind("UPDATE follow_ups SET user_id = ?, updated_at = ? WHERE lead_id = ? AND status = ?")
	_, err := exe.ExecContext(ctx, query, userID, dbTime(at), leadID, followup.StatusScheduled)
	return errors.Wrap(err, "reassigning pending follow-up")
}

func (r followUpRepository) ListByLead(ctx context.Context, leadID int64, exec ...core.DBExecutor) ([]followup.FollowUp, error) {
	mods := append(followUpFrom(), qm.Where("f.lead_id = ?", leadID), qm.OrderBy("f.scheduled_at ASC, f.id ASC"))
	var rows []followUpRow
	if err := selectAll(ctx, r.getExec(exec), &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "listing follow-ups")
	}
	return unboilFollowUps(rows), nil
}

func (r followUpRepository) QueryScheduled(ctx context.Context, scope policy.Scope, filter followup.AgendaFilter, exec ...core.DBExecutor) ([]followup.FollowUp, error) {
	mods := append(followUpFrom(), qm.Where("f.status = ?", followup.StatusScheduled))
	mods = append(mods, scopeMods(scope, "l.branch_id", "l.owner_id")...)
	if !filter.From.IsZero() {
		mods = append(mods, qm.Where("f.scheduled_at >= ?", dbTime(filter.From)))
	}
	if !filter.Before.IsZero() {
		mods = append(mods, qm.Where("f.scheduled_at < ?", dbTime(filter.Before)))
	}
	if filter.UserID != 0 {
		mods = append(mods, qm.Where("f.user_id = ?", filter.UserID))
	}
	mods = append(mods, qm.OrderBy("f.scheduled_at ASC, f.id ASC"))

	var rows []followUpRow
	if err := selectAll(ctx, r.getExec(exec), &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "querying scheduled follow-ups")
	}
	return unboilFollowUps(rows), nil
}

func unboilFollowUps(rows []followUpRow) []followup.FollowUp {
	fus := make([]followup.FollowUp, 0, len(rows))
	for _, row := range rows {
		fus = append(fus, row.unboil())
	}
	return fus
}
