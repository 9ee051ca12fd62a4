// Package testutil provides database fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/branch"
	"github.com/arishrdi/leads-aladdin-sub001/core/followup"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
	"github.com/arishrdi/leads-aladdin-sub001/storage/database"
)

// PrepareDB opens a migrated in-memory SQLite database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(core.NewTestConfig())
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	role string,
	branchIDs []int64,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if branchIDs == nil {
		branchIDs = []int64{}
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		BranchIDs: branchIDs,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateBranch(t *testing.T, repo branch.Repository, code, name string, isActive bool) branch.Branch {
	t.Helper()
	tstamp := now()
	b, err := repo.CreateBranch(context.Background(), branch.Branch{
		Code:      code,
		Name:      name,
		City:      "Jakarta",
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateBranch() failed: %v", err)
	}
	return b
}

// LeadOpt customizes a lead before CreateLead stores it.
type LeadOpt func(l *lead.Lead)

func WithStatus(st lead.Status) LeadOpt {
	return func(l *lead.Lead) { l.Status = st }
}

func WithStage(stage string, attempt int) LeadOpt {
	return func(l *lead.Lead) { l.Stage, l.StageAttempt = stage, attempt }
}

func WithLeadDate(d time.Time) LeadOpt {
	return func(l *lead.Lead) { l.LeadDate = d.UTC() }
}

func WithSource(id int64) LeadOpt {
	return func(l *lead.Lead) { l.SourceID = &id }
}

func CreateLead(t *testing.T, repo lead.Repository, branchID, ownerID int64, name, phone string, opts ...LeadOpt) lead.Lead {
	t.Helper()
	tstamp := now()
	l := lead.Lead{
		BranchID:     branchID,
		OwnerID:      ownerID,
		CustomerName: name,
		Phone:        phone,
		Institution:  "Masjid " + name,
		Status:       lead.StatusNew,
		Stage:        "kontak_awal",
		StageAttempt: 1,
		LeadDate:     tstamp,
		CreatedAt:    tstamp,
		UpdatedAt:    tstamp,
	}
	for _, opt := range opts {
		opt(&l)
	}
	l, err := repo.CreateLead(context.Background(), l)
	if err != nil {
		t.Fatalf("CreateLead() failed: %v", err)
	}
	return l
}

// CreateFollowUp schedules a follow-up of the lead's current stage for its owner.
func CreateFollowUp(t *testing.T, repo followup.Repository, l lead.Lead, at time.Time) followup.FollowUp {
	t.Helper()
	tstamp := now()
	ownerID := l.OwnerID
	fu, err := repo.CreateFollowUp(context.Background(), followup.FollowUp{
		LeadID:      l.ID,
		UserID:      &ownerID,
		Stage:       l.Stage,
		Attempt:     l.StageAttempt,
		ScheduledAt: at.UTC(),
		Status:      followup.StatusScheduled,
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	})
	if err != nil {
		t.Fatalf("CreateFollowUp() failed: %v", err)
	}
	return fu
}
