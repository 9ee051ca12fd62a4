package followup

import (
	"context"
	"net/mail"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
)

var (
	ErrNotFound     = core.NewNotFoundError("follow-up")
	ErrNotScheduled = errors.New("follow-up is not scheduled")
)

type (
	Repository interface {
		CreateFollowUp(ctx context.Context, fu FollowUp, exec ...core.DBExecutor) (FollowUp, error)
		GetFollowUp(ctx context.Context, id int64, exec ...core.DBExecutor) (FollowUp, error)
		// UpdateScheduled saves fu only while the stored follow-up is still scheduled,
		// and returns ErrNotScheduled otherwise.
		UpdateScheduled(ctx context.Context, fu FollowUp, exec ...core.DBExecutor) (FollowUp, error)
		// RescheduleScheduled moves a still scheduled follow-up to at, and returns ErrNotScheduled otherwise.
		RescheduleScheduled(ctx context.Context, id int64, at, updatedAt time.Time, exec ...core.DBExecutor) (FollowUp, error)
		// CancelPending cancels the scheduled follow-up of the lead, if any.
		CancelPending(ctx context.Context, leadID int64, at time.Time, exec ...core.DBExecutor) error
		// ReassignPending hands the scheduled follow-up of the lead, if any, over to userID.
		ReassignPending(ctx context.Context, leadID, userID int64, at time.Time, exec ...core.DBExecutor) error
		ListByLead(ctx context.Context, leadID int64, exec ...core.DBExecutor) ([]FollowUp, error)
		// QueryScheduled returns the scheduled follow-ups of leads within scope, oldest first.
		QueryScheduled(ctx context.Context, scope policy.Scope, filter AgendaFilter, exec ...core.DBExecutor) ([]FollowUp, error)
	}

	Service interface {
		lead.Scheduler

		Pipeline() *Pipeline
		Get(ctx context.Context, actor policy.Actor, id int64) (FollowUp, error)
		ListByLead(ctx context.Context, actor policy.Actor, leadID int64) ([]FollowUp, error)
		Complete(ctx context.Context, actor policy.Actor, fu FollowUp, c Completion) (Result, error)
		Reschedule(ctx context.Context, actor policy.Actor, fu FollowUp, r Reschedule) (FollowUp, error)
		Agenda(ctx context.Context, actor policy.Actor, from, to time.Time) (Agenda, error)
		Digests(ctx context.Context, day time.Time) ([]Digest, error)
		SendReminders(ctx context.Context, day time.Time) (int, error)
	}

	service struct {
		db       core.DB
		repo     Repository
		leadRepo lead.Repository
		usrRepo  user.Repository
		pipeline *Pipeline
		mailSvc  core.EmailService
		loc      *time.Location
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	leadRepo lead.Repository,
	usrRepo user.Repository,
	pipeline *Pipeline,
	mailSvc core.EmailService,
	conf *core.Config,
) Service {
	loc := conf.Timezone
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		db:       db,
		repo:     repo,
		leadRepo: leadRepo,
		usrRepo:  usrRepo,
		pipeline: pipeline,
		mailSvc:  mailSvc,
		loc:      loc,
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (svc *service) Pipeline() *Pipeline {
	return svc.pipeline
}

// Scheduler

func (svc *service) FirstStage() string {
	return svc.pipeline.First().Name
}

func (svc *service) Schedule(ctx context.Context, l lead.Lead, at time.Time, exec core.DBExecutor) error {
	stage, ok := svc.pipeline.Stage(l.Stage)
	if !ok {
		return errors.Errorf("unknown stage %q", l.Stage)
	}
	tstamp := now()
	if at.IsZero() {
		at = tstamp.Add(stage.Interval)
	}
	ownerID := l.OwnerID
	_, err := svc.repo.CreateFollowUp(ctx, FollowUp{
		LeadID:      l.ID,
		UserID:      &ownerID,
		Stage:       stage.Name,
		Attempt:     l.StageAttempt,
		ScheduledAt: at.UTC().Truncate(time.Microsecond),
		Status:      StatusScheduled,
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	}, exec)
	return errors.Wrap(err, "creating follow-up")
}

func (svc *service) CancelPending(ctx context.Context, leadID int64, exec core.DBExecutor) error {
	return svc.repo.CancelPending(ctx, leadID, now(), exec)
}

func (svc *service) ReassignPending(ctx context.Context, leadID, userID int64, exec core.DBExecutor) error {
	return svc.repo.ReassignPending(ctx, leadID, userID, now(), exec)
}

// Follow-ups

// Get returns the follow-up if the actor may see its lead.
func (svc *service) Get(ctx context.Context, actor policy.Actor, id int64) (FollowUp, error) {
	fu, err := svc.repo.GetFollowUp(ctx, id)
	if err != nil {
		return FollowUp{}, err
	}
	if !policy.ViewLead(actor, fu.BranchID, fu.OwnerID) {
		return FollowUp{}, ErrNotFound
	}
	return fu, nil
}

func (svc *service) ListByLead(ctx context.Context, actor policy.Actor, leadID int64) ([]FollowUp, error) {
	l, err := svc.leadRepo.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if !policy.ViewLead(actor, l.BranchID, l.OwnerID) {
		return nil, lead.ErrNotFound
	}
	fus, err := svc.repo.ListByLead(ctx, leadID)
	return fus, errors.Wrap(err, "listing follow-ups")
}

// Complete records the outcome of a scheduled follow-up, moves the lead through the pipeline
// and schedules the next follow-up, all in one transaction.
func (svc *service) Complete(ctx context.Context, actor policy.Actor, fu FollowUp, c Completion) (Result, error) {
	if !policy.EditLead(actor, fu.BranchID, fu.OwnerID) {
		return Result{}, core.ErrForbidden
	}

	var res Result
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		cur, err := svc.repo.GetFollowUp(ctx, fu.ID, tx)
		if err != nil {
			return err
		}
		if cur.Status != StatusScheduled {
			return core.NewConflictError(ErrNotScheduled.Error())
		}
		l, err := svc.leadRepo.GetLead(ctx, cur.LeadID, tx)
		if err != nil {
			return errors.Wrap(err, "finding lead")
		}
		if l.Status.IsTerminal() {
			return core.NewConflictError("lead is " + string(l.Status))
		}

		tstamp := now()
		l.Stage, l.StageAttempt = cur.Stage, cur.Attempt
		delay, again, err := svc.pipeline.Advance(&l, c.Outcome, c.Notes, tstamp)
		if err != nil {
			return errors.Wrap(err, "advancing lead")
		}
		l.UpdatedAt = tstamp

		actorID := actor.ID
		cur.Status = StatusCompleted
		cur.Outcome = c.Outcome
		cur.Notes = c.Notes
		cur.CompletedAt = &tstamp
		cur.UserID = &actorID
		cur.UpdatedAt = tstamp
		// the conditional update serializes concurrent completions of the same follow-up
		if res.FollowUp, err = svc.repo.UpdateScheduled(ctx, cur, tx); err != nil {
			if errors.Cause(err) == ErrNotScheduled {
				return core.NewConflictError(ErrNotScheduled.Error())
			}
			return errors.Wrap(err, "updating follow-up")
		}
		if res.Lead, err = svc.leadRepo.UpdateLead(ctx, l, tx); err != nil {
			return errors.Wrap(err, "updating lead")
		}
		if !again {
			return nil
		}

		at := tstamp.Add(delay)
		if c.NextAt != nil {
			at = c.NextAt.UTC().Truncate(time.Microsecond)
		}
		ownerID := l.OwnerID
		next, err := svc.repo.CreateFollowUp(ctx, FollowUp{
			LeadID:      l.ID,
			UserID:      &ownerID,
			Stage:       l.Stage,
			Attempt:     l.StageAttempt,
			ScheduledAt: at,
			Status:      StatusScheduled,
			CreatedAt:   tstamp,
			UpdatedAt:   tstamp,
		}, tx)
		if err != nil {
			return errors.Wrap(err, "scheduling next follow-up")
		}
		res.Next = &next
		return nil
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "completing follow-up")
	}

	if res.Lead, err = svc.leadRepo.GetLead(ctx, res.Lead.ID); err != nil {
		return Result{}, errors.Wrap(err, "finding lead")
	}
	return res, nil
}

// Reschedule moves a scheduled follow-up without consuming an attempt.
func (svc *service) Reschedule(ctx context.Context, actor policy.Actor, fu FollowUp, r Reschedule) (FollowUp, error) {
	if !policy.EditLead(actor, fu.BranchID, fu.OwnerID) {
		return FollowUp{}, core.ErrForbidden
	}
	if fu.Status != StatusScheduled {
		return FollowUp{}, core.NewConflictError(ErrNotScheduled.Error())
	}
	moved, err := svc.repo.RescheduleScheduled(ctx, fu.ID, r.At.UTC().Truncate(time.Microsecond), now())
	if err != nil {
		if errors.Cause(err) == ErrNotScheduled {
			return FollowUp{}, core.NewConflictError(ErrNotScheduled.Error())
		}
		return FollowUp{}, errors.Wrap(err, "rescheduling follow-up")
	}
	return moved, nil
}

// startOfDay returns midnight of t's day in the service time zone, in UTC.
func (svc *service) startOfDay(t time.Time) time.Time {
	lt := t.In(svc.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, svc.loc).UTC()
}

// Agenda returns the actor's scheduled follow-ups due in [from, to) and those overdue before from.
// A zero from means today; a zero to means one day after from.
func (svc *service) Agenda(ctx context.Context, actor policy.Actor, from, to time.Time) (Agenda, error) {
	if from.IsZero() {
		from = svc.startOfDay(time.Now())
	}
	if to.IsZero() || !to.After(from) {
		to = from.Add(24 * time.Hour)
	}
	agenda := Agenda{From: from.UTC(), To: to.UTC(), Due: []FollowUp{}, Overdue: []FollowUp{}}

	scope := policy.ScopeOf(actor)
	if scope.IsEmpty() {
		return agenda, nil
	}
	fus, err := svc.repo.QueryScheduled(ctx, scope, AgendaFilter{Before: agenda.To})
	if err != nil {
		return Agenda{}, errors.Wrap(err, "querying agenda")
	}
	for _, fu := range fus {
		if fu.ScheduledAt.Before(agenda.From) {
			agenda.Overdue = append(agenda.Overdue, fu)
		} else {
			agenda.Due = append(agenda.Due, fu)
		}
	}
	return agenda, nil
}

// Digests groups, per assigned user, the follow-ups due on day and those already overdue.
func (svc *service) Digests(ctx context.Context, day time.Time) ([]Digest, error) {
	from := svc.startOfDay(day)
	fus, err := svc.repo.QueryScheduled(ctx, policy.Scope{All: true}, AgendaFilter{Before: from.Add(24 * time.Hour)})
	if err != nil {
		return nil, errors.Wrap(err, "querying scheduled follow-ups")
	}

	byUser := make(map[int64]*Digest)
	for _, fu := range fus {
		if fu.UserID == nil {
			continue
		}
		d, ok := byUser[*fu.UserID]
		if !ok {
			d = &Digest{UserID: *fu.UserID}
			byUser[*fu.UserID] = d
		}
		if fu.ScheduledAt.Before(from) {
			d.Overdue = append(d.Overdue, fu)
		} else {
			d.Due = append(d.Due, fu)
		}
	}

	digests := make([]Digest, 0, len(byUser))
	for _, d := range byUser {
		digests = append(digests, *d)
	}
	sort.Slice(digests, func(i, j int) bool { return digests[i].UserID < digests[j].UserID })
	return digests, nil
}

// SendReminders emails each active user their digest for day and returns the number of emails sent.
func (svc *service) SendReminders(ctx context.Context, day time.Time) (int, error) {
	digests, err := svc.Digests(ctx, day)
	if err != nil {
		return 0, err
	}

	messages := make([]*core.EmailMessage, 0, len(digests))
	for _, d := range digests {
		usr, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: d.UserID})
		if err != nil {
			if core.IsNotFound(err) {
				continue
			}
			return 0, errors.Wrap(err, "finding user")
		}
		if !usr.IsActive || usr.Email == "" {
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      "Jadwal follow-up " + day.In(svc.loc).Format("02/01/2006"),
			TemplateName: "followup_reminder",
			TemplateData: map[string]interface{}{
				"Name":    usr.Name,
				"Date":    day.In(svc.loc).Format("02/01/2006"),
				"Due":     svc.reminderEntries(d.Due),
				"Overdue": svc.reminderEntries(d.Overdue),
			},
		})
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
	return len(messages), nil
}

type reminderEntry struct {
	Stage        string
	Attempt      int
	CustomerName string
	Phone        string
	Time         string
}

func (svc *service) reminderEntries(fus []FollowUp) []reminderEntry {
	entries := make([]reminderEntry, 0, len(fus))
	for _, fu := range fus {
		label := fu.Stage
		if st, ok := svc.pipeline.Stage(fu.Stage); ok {
			label = st.Label
		}
		entries = append(entries, reminderEntry{
			Stage:        label,
			Attempt:      fu.Attempt,
			CustomerName: fu.CustomerName,
			Phone:        fu.Phone,
			Time:         fu.ScheduledAt.In(svc.loc).Format("02/01 15:04"),
		})
	}
	return entries
}
