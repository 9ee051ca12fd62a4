package followup_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/followup"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
	appfs "github.com/arishrdi/leads-aladdin-sub001/fs"
	"github.com/arishrdi/leads-aladdin-sub001/services/email"
	"github.com/arishrdi/leads-aladdin-sub001/services/logger"
	"github.com/arishrdi/leads-aladdin-sub001/storage/database/sqlx"
	"github.com/arishrdi/leads-aladdin-sub001/testutil"
)

func TestService_staleFollowUp(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig()
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	branchRepo := sqlxrepos.NewBranchRepository(db)
	leadRepo := sqlxrepos.NewLeadRepository(db)
	repo := sqlxrepos.NewFollowUpRepository(db)

	pipeline, err := followup.LoadPipeline(appfs.FS, appfs.PipelineFile, "")
	if err != nil {
		t.Fatalf("LoadPipeline() failed: %v", err)
	}
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logsvc.NewRollbarLogger(zap.NewNop(), conf))
	svc := followup.NewService(db, repo, leadRepo, usrRepo, pipeline, mailSvc, conf)

	b := testutil.CreateBranch(t, branchRepo, "JKT", "Jakarta Pusat", true)
	mkt := testutil.CreateUser(t, usrRepo, "Budi", "budi", "budi@aladdin.id", "", user.RoleMarketing, []int64{b.ID}, true)
	actor := policy.NewActor(mkt)
	l := testutil.CreateLead(t, leadRepo, b.ID, mkt.ID, "Al Ikhlas", "6281234567890")
	stale := testutil.CreateFollowUp(t, repo, l, time.Now().Add(time.Hour))

	if _, err = svc.Complete(ctx, actor, stale, followup.Completion{Outcome: followup.OutcomeExit, Notes: "sudah beli"}); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}

	t.Run("reschedule", func(t *testing.T) {
		_, err := svc.Reschedule(ctx, actor, stale, followup.Reschedule{At: time.Now().Add(48 * time.Hour)})
		if !core.IsConflict(err) {
			t.Errorf("Reschedule() err = %v; want a conflict", err)
		}
	})

	t.Run("complete again", func(t *testing.T) {
		_, err := svc.Complete(ctx, actor, stale, followup.Completion{Outcome: followup.OutcomeAdvance})
		if !core.IsConflict(err) {
			t.Errorf("Complete() err = %v; want a conflict", err)
		}
	})

	got, err := repo.GetFollowUp(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetFollowUp() failed: %v", err)
	}
	if got.Status != followup.StatusCompleted || got.Outcome != followup.OutcomeExit || got.CompletedAt == nil {
		t.Errorf("follow-up = %s/%q/%v; want it to stay completed", got.Status, got.Outcome, got.CompletedAt)
	}
	if got.LeadStatus != lead.StatusExit {
		t.Errorf("lead status = %s; want %s", got.LeadStatus, lead.StatusExit)
	}
	pending, err := repo.QueryScheduled(ctx, policy.Scope{All: true}, followup.AgendaFilter{})
	if err != nil {
		t.Fatalf("QueryScheduled() failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("%d follow-ups scheduled for an exited lead", len(pending))
	}
}
