package lead

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
)

var (
	ErrNotFound          = core.NewNotFoundError("lead")
	ErrSourceNotFound    = core.NewNotFoundError("lead source")
	ErrSourceExists      = errors.New("a lead source with this name already exists")
	ErrPhoneExists       = errors.New("an active lead with this phone number already exists in this branch")
	ErrInvalidOwner      = errors.New("owner must be an active marketing user of the lead's branch")
	ErrInactiveBranch    = errors.New("unknown or inactive branch")
	ErrInactiveSource    = errors.New("unknown or inactive lead source")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type (
	Repository interface {
		// PhoneExists checks the non-terminal leads of a branch.
		PhoneExists(ctx context.Context, branchID int64, phone string, excludedID int64, exec ...core.DBExecutor) (bool, error)
		CreateLead(ctx context.Context, l Lead, exec ...core.DBExecutor) (Lead, error)
		// QueryLeads returns the page of leads matching filter within scope and the total count;
		// a nil page returns every match.
		QueryLeads(ctx context.Context, scope policy.Scope, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]Lead, int, error)
		GetLead(ctx context.Context, id int64, exec ...core.DBExecutor) (Lead, error)
		UpdateLead(ctx context.Context, l Lead, exec ...core.DBExecutor) (Lead, error)
		DeleteLead(ctx context.Context, id int64, exec ...core.DBExecutor) error

		SourceNameExists(ctx context.Context, name string, excludedID int64, exec ...core.DBExecutor) (bool, error)
		QuerySources(ctx context.Context, activeOnly bool, exec ...core.DBExecutor) ([]Source, error)
		GetSource(ctx context.Context, id int64, exec ...core.DBExecutor) (Source, error)
		CreateSource(ctx context.Context, src Source, exec ...core.DBExecutor) (Source, error)
		UpdateSource(ctx context.Context, src Source, exec ...core.DBExecutor) (Source, error)
		DeleteSource(ctx context.Context, id int64, exec ...core.DBExecutor) error
	}

	// Scheduler keeps the follow-ups of a lead in line with its stage and status.
	Scheduler interface {
		FirstStage() string
		// Schedule plans the follow-up of the lead's current stage and attempt.
		// A zero at schedules it one stage interval from now.
		Schedule(ctx context.Context, l Lead, at time.Time, exec core.DBExecutor) error
		CancelPending(ctx context.Context, leadID int64, exec core.DBExecutor) error
		ReassignPending(ctx context.Context, leadID, userID int64, exec core.DBExecutor) error
	}

	// DocumentPurger removes the stored files of a lead's documents.
	DocumentPurger interface {
		StorageKeys(ctx context.Context, leadID int64, exec ...core.DBExecutor) ([]string, error)
		RemoveFiles(ctx context.Context, keys []string)
	}

	Service interface {
		Create(ctx context.Context, actor policy.Actor, nl NewLead) (Lead, error)
		Query(ctx context.Context, actor policy.Actor, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) (core.Page[Lead], error)
		Get(ctx context.Context, actor policy.Actor, id int64) (Lead, error)
		Update(ctx context.Context, actor policy.Actor, l Lead, ul UpdateLead) (Lead, error)
		ChangeStatus(ctx context.Context, actor policy.Actor, l Lead, sc StatusChange) (Lead, error)
		Assign(ctx context.Context, actor policy.Actor, l Lead, ownerID int64) (Lead, error)
		Delete(ctx context.Context, actor policy.Actor, l Lead) error

		QuerySources(ctx context.Context, activeOnly bool) ([]Source, error)
		GetSource(ctx context.Context, id int64) (Source, error)
		CreateSource(ctx context.Context, actor policy.Actor, data SourceData) (Source, error)
		UpdateSource(ctx context.Context, actor policy.Actor, src Source, data SourceData) (Source, error)
		DeleteSource(ctx context.Context, actor policy.Actor, id int64) error
	}

	service struct {
		db        core.DB
		repo      Repository
		usrRepo   user.Repository
		branches  user.BranchChecker
		scheduler Scheduler
		purger    DocumentPurger
		mailSvc   core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	usrRepo user.Repository,
	branches user.BranchChecker,
	scheduler Scheduler,
	purger DocumentPurger,
	mailSvc core.EmailService,
) Service {
	return &service{
		db:        db,
		repo:      repo,
		usrRepo:   usrRepo,
		branches:  branches,
		scheduler: scheduler,
		purger:    purger,
		mailSvc:   mailSvc,
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// checkOwner returns the owner if it is an active marketing user of the branch.
func (svc *service) checkOwner(ctx context.Context, ownerID, branchID int64) (user.User, error) {
	owner, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: ownerID})
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, core.NewFieldError("owner_id", ErrInvalidOwner.Error())
		}
		return user.User{}, errors.Wrap(err, "finding owner")
	}
	if !owner.IsActive || !owner.IsMarketing() || !owner.HasBranch(branchID) {
		return user.User{}, core.NewFieldError("owner_id", ErrInvalidOwner.Error())
	}
	return owner, nil
}

func (svc *service) checkSource(ctx context.Context, sourceID *int64) error {
	if sourceID == nil {
		return nil
	}
	src, err := svc.repo.GetSource(ctx, *sourceID)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldError("source_id", ErrInactiveSource.Error())
		}
		return errors.Wrap(err, "finding lead source")
	}
	if !src.IsActive {
		return core.NewFieldError("source_id", ErrInactiveSource.Error())
	}
	return nil
}

func (svc *service) checkPhone(ctx context.Context, branchID int64, phone string, excludedID int64) error {
	exists, err := svc.repo.PhoneExists(ctx, branchID, phone, excludedID)
	if err != nil {
		return errors.Wrap(err, "checking phone uniqueness")
	}
	if exists {
		return core.NewFieldError("phone", ErrPhoneExists.Error())
	}
	return nil
}

func (svc *service) Create(ctx context.Context, actor policy.Actor, nl NewLead) (Lead, error) {
	branchID, ownerID := nl.BranchID, nl.OwnerID
	if actor.IsMarketing() {
		if len(actor.BranchIDs) == 0 {
			return Lead{}, core.ErrForbidden
		}
		branchID, ownerID = actor.BranchIDs[0], actor.ID
	}
	if branchID == 0 {
		return Lead{}, core.NewFieldError("branch_id", "this field is required")
	}
	if ownerID == 0 {
		return Lead{}, core.NewFieldError("owner_id", "this field is required")
	}
	if !policy.CreateLeadIn(actor, branchID) {
		return Lead{}, core.ErrForbidden
	}

	active, err := svc.branches.ActiveBranchIDs(ctx, []int64{branchID})
	if err != nil {
		return Lead{}, errors.Wrap(err, "checking branch")
	}
	if len(active) == 0 {
		return Lead{}, core.NewFieldError("branch_id", ErrInactiveBranch.Error())
	}
	owner, err := svc.checkOwner(ctx, ownerID, branchID)
	if err != nil {
		return Lead{}, err
	}
	if err = svc.checkSource(ctx, nl.SourceID); err != nil {
		return Lead{}, err
	}
	if err = svc.checkPhone(ctx, branchID, nl.Phone, 0); err != nil {
		return Lead{}, err
	}

	tstamp := now()
	leadDate := tstamp
	if nl.LeadDate != nil {
		leadDate = nl.LeadDate.UTC()
	}
	l := Lead{
		BranchID:       branchID,
		OwnerID:        ownerID,
		SourceID:       nl.SourceID,
		CustomerName:   nl.CustomerName,
		Phone:          nl.Phone,
		Institution:    nl.Institution,
		Address:        nl.Address,
		City:           nl.City,
		CarpetType:     nl.CarpetType,
		Needs:          nl.Needs,
		EstimatedValue: nl.EstimatedValue,
		Notes:          nl.Notes,
		Status:         StatusNew,
		Stage:          svc.scheduler.FirstStage(),
		StageAttempt:   1,
		LeadDate:       leadDate,
		CreatedAt:      tstamp,
		UpdatedAt:      tstamp,
	}
	var firstAt time.Time
	if nl.FirstFollowUp != nil {
		firstAt = nl.FirstFollowUp.UTC()
	}

	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if l, err = svc.repo.CreateLead(ctx, l, tx); err != nil {
			return errors.Wrap(err, "inserting lead")
		}
		return errors.Wrap(svc.scheduler.Schedule(ctx, l, firstAt, tx), "scheduling first follow-up")
	})
	if err != nil {
		return Lead{}, errors.Wrap(err, "creating lead")
	}

	if owner.ID != actor.ID {
		svc.notifyOwner(owner, l)
	}
	return svc.repo.GetLead(ctx, l.ID)
}

func (svc *service) Query(ctx context.Context, actor policy.Actor, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) (core.Page[Lead], error) {
	page.Clean()
	if filter == nil {
		filter = new(QueryFilter)
	}
	scope := policy.ScopeOf(actor)
	if scope.IsEmpty() {
		return core.NewPage[Lead](nil, 0, page), nil
	}

	leads, total, err := svc.repo.QueryLeads(ctx, scope, filter, ordering, &page)
	if err != nil {
		return core.Page[Lead]{}, errors.Wrap(err, "querying leads")
	}
	return core.NewPage(leads, total, page), nil
}

// Get returns the lead if the actor may see it; invisible leads are reported as not found.
func (svc *service) Get(ctx context.Context, actor policy.Actor, id int64) (Lead, error) {
	l, err := svc.repo.GetLead(ctx, id)
	if err != nil {
		return Lead{}, err
	}
	if !policy.ViewLead(actor, l.BranchID, l.OwnerID) {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (svc *service) Update(ctx context.Context, actor policy.Actor, l Lead, ul UpdateLead) (Lead, error) {
	if !policy.EditLead(actor, l.BranchID, l.OwnerID) {
		return Lead{}, core.ErrForbidden
	}
	if ul.SourceID != nil && *ul.SourceID != 0 && (l.SourceID == nil || *l.SourceID != *ul.SourceID) {
		if err := svc.checkSource(ctx, ul.SourceID); err != nil {
			return Lead{}, err
		}
	}
	if ul.Phone != "" && ul.Phone != l.Phone && !l.Status.IsTerminal() {
		if err := svc.checkPhone(ctx, l.BranchID, ul.Phone, l.ID); err != nil {
			return Lead{}, err
		}
	}

	ul.apply(&l)
	l.UpdatedAt = now()
	if _, err := svc.repo.UpdateLead(ctx, l); err != nil {
		return Lead{}, errors.Wrap(err, "updating lead")
	}
	return svc.repo.GetLead(ctx, l.ID)
}

// ChangeStatus applies a manual status transition.
// Entering a terminal status cancels the pending follow-up; reactivating a COLD lead restarts its stage.
func (svc *service) ChangeStatus(ctx context.Context, actor policy.Actor, l Lead, sc StatusChange) (Lead, error) {
	if !policy.EditLead(actor, l.BranchID, l.OwnerID) {
		return Lead{}, core.ErrForbidden
	}
	reactivate := l.Status == StatusCold && sc.Status == StatusQualified
	if reactivate && !policy.ReactivateLead(actor, l.BranchID) {
		return Lead{}, core.ErrForbidden
	}
	if !CanTransition(l.Status, sc.Status) {
		return Lead{}, core.NewConflictError(ErrInvalidTransition.Error() + ": " + string(l.Status) + " -> " + string(sc.Status))
	}
	if reactivate {
		if err := svc.checkPhone(ctx, l.BranchID, l.Phone, l.ID); err != nil {
			return Lead{}, err
		}
	}

	tstamp := now()
	l.Status = sc.Status
	l.UpdatedAt = tstamp
	switch sc.Status {
	case StatusConverted:
		l.ConvertedAt = &tstamp
	case StatusExit:
		l.ExitReason = sc.Reason
	}
	if reactivate {
		l.StageAttempt = 1
		l.ExitReason = ""
	}

	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if l, err = svc.repo.UpdateLead(ctx, l, tx); err != nil {
			return errors.Wrap(err, "updating lead")
		}
		switch {
		case l.Status.IsTerminal():
			return errors.Wrap(svc.scheduler.CancelPending(ctx, l.ID, tx), "cancelling follow-up")
		case reactivate:
			return errors.Wrap(svc.scheduler.Schedule(ctx, l, time.Time{}, tx), "scheduling follow-up")
		}
		return nil
	})
	if err != nil {
		return Lead{}, errors.Wrap(err, "changing lead status")
	}
	return svc.repo.GetLead(ctx, l.ID)
}

// Assign hands the lead and its pending follow-up over to another marketing user of the branch.
func (svc *service) Assign(ctx context.Context, actor policy.Actor, l Lead, ownerID int64) (Lead, error) {
	if !policy.AssignLead(actor, l.BranchID) {
		return Lead{}, core.ErrForbidden
	}
	if ownerID == l.OwnerID {
		return l, nil
	}
	owner, err := svc.checkOwner(ctx, ownerID, l.BranchID)
	if err != nil {
		return Lead{}, err
	}

	l.OwnerID = owner.ID
	l.UpdatedAt = now()
	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if l, err = svc.repo.UpdateLead(ctx, l, tx); err != nil {
			return errors.Wrap(err, "updating lead")
		}
		return errors.Wrap(svc.scheduler.ReassignPending(ctx, l.ID, owner.ID, tx), "reassigning follow-up")
	})
	if err != nil {
		return Lead{}, errors.Wrap(err, "assigning lead")
	}

	svc.notifyOwner(owner, l)
	return svc.repo.GetLead(ctx, l.ID)
}

// Delete removes the lead with its follow-ups, visits and documents, then the document files.
func (svc *service) Delete(ctx context.Context, actor policy.Actor, l Lead) error {
	if !policy.DeleteLead(actor, l.BranchID) {
		return core.ErrForbidden
	}
	keys, err := svc.purger.StorageKeys(ctx, l.ID)
	if err != nil {
		return errors.Wrap(err, "listing document files")
	}
	if err = svc.repo.DeleteLead(ctx, l.ID); err != nil {
		return errors.Wrap(err, "deleting lead")
	}
	svc.purger.RemoveFiles(ctx, keys)
	return nil
}

func (svc *service) notifyOwner(owner user.User, l Lead) {
	if owner.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: owner.Name, Address: owner.Email}},
		Subject:      "Lead baru: " + l.CustomerName,
		TemplateName: "lead_assigned",
		TemplateData: map[string]interface{}{
			"OwnerName":    owner.Name,
			"CustomerName": l.CustomerName,
			"Institution":  l.Institution,
			"Phone":        l.Phone,
			"Stage":        l.Stage,
			"LeadID":       l.ID,
		},
	})
}

// Lead sources

func (svc *service) checkSourceName(ctx context.Context, name string, excludedID int64) error {
	exists, err := svc.repo.SourceNameExists(ctx, name, excludedID)
	if err != nil {
		return errors.Wrap(err, "checking lead source name")
	}
	if exists {
		return core.NewFieldError("name", ErrSourceExists.Error())
	}
	return nil
}

func (svc *service) QuerySources(ctx context.Context, activeOnly bool) ([]Source, error) {
	sources, err := svc.repo.QuerySources(ctx, activeOnly)
	return sources, errors.Wrap(err, "querying lead sources")
}

func (svc *service) GetSource(ctx context.Context, id int64) (Source, error) {
	return svc.repo.GetSource(ctx, id)
}

func (svc *service) CreateSource(ctx context.Context, actor policy.Actor, data SourceData) (Source, error) {
	if !policy.ManageReferences(actor) {
		return Source{}, core.ErrForbidden
	}
	if err := svc.checkSourceName(ctx, data.Name, 0); err != nil {
		return Source{}, err
	}
	src := Source{Name: data.Name, IsActive: true, CreatedAt: now()}
	if data.IsActive != nil {
		src.IsActive = *data.IsActive
	}
	src, err := svc.repo.CreateSource(ctx, src)
	return src, errors.Wrap(err, "creating lead source")
}

func (svc *service) UpdateSource(ctx context.Context, actor policy.Actor, src Source, data SourceData) (Source, error) {
	if !policy.ManageReferences(actor) {
		return Source{}, core.ErrForbidden
	}
	if err := svc.checkSourceName(ctx, data.Name, src.ID); err != nil {
		return Source{}, err
	}
	src.Name = data.Name
	if data.IsActive != nil {
		src.IsActive = *data.IsActive
	}
	src, err := svc.repo.UpdateSource(ctx, src)
	return src, errors.Wrap(err, "updating lead source")
}

func (svc *service) DeleteSource(ctx context.Context, actor policy.Actor, id int64) error {
	if !policy.ManageReferences(actor) {
		return core.ErrForbidden
	}
	return errors.Wrap(svc.repo.DeleteSource(ctx, id), "deleting lead source")
}
