package document

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
	"github.com/arishrdi/leads-aladdin-sub001/core/visit"
)

var (
	ErrNotFound          = core.NewNotFoundError("document")
	ErrTooLarge          = errors.New("file is too large")
	ErrContentType       = errors.New("file type is not allowed")
	ErrVisitMismatch     = errors.New("visit does not belong to the lead")
	errFileStoreNotFound = core.NewNotFoundError("file")
)

type (
	// FileStore keeps document contents under opaque keys.
	FileStore interface {
		// Save writes r under key and returns the number of bytes written.
		Save(ctx context.Context, key string, r io.Reader) (int64, error)
		Open(ctx context.Context, key string) (io.ReadCloser, error)
		Remove(ctx context.Context, key string) error
	}

	Repository interface {
		CreateDocument(ctx context.Context, doc Document, exec ...core.DBExecutor) (Document, error)
		GetDocument(ctx context.Context, id int64, exec ...core.DBExecutor) (Document, error)
		ListDocuments(ctx context.Context, leadID int64, exec ...core.DBExecutor) ([]Document, error)
		DeleteDocument(ctx context.Context, id int64, exec ...core.DBExecutor) error
		StorageKeys(ctx context.Context, leadID int64, exec ...core.DBExecutor) ([]string, error)
	}

	Service interface {
		Upload(ctx context.Context, actor policy.Actor, l lead.Lead, nd NewDocument) (Document, error)
		Get(ctx context.Context, actor policy.Actor, id int64) (Document, error)
		ListByLead(ctx context.Context, actor policy.Actor, l lead.Lead) ([]Document, error)
		// Download returns the document and its content; callers must close the reader.
		Download(ctx context.Context, actor policy.Actor, id int64) (Document, io.ReadCloser, error)
		Delete(ctx context.Context, actor policy.Actor, doc Document) error
	}

	service struct {
		repo         Repository
		visitRepo    visit.Repository
		store        FileStore
		logger       core.Logger
		maxSize      int64
		allowedTypes map[string]bool
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, visitRepo visit.Repository, store FileStore, conf *core.Config, logger core.Logger) Service {
	allowed := make(map[string]bool, len(conf.Storage.AllowedContentTypes))
	for _, ct := range conf.Storage.AllowedContentTypes {
		allowed[strings.ToLower(ct)] = true
	}
	return &service{
		repo:         repo,
		visitRepo:    visitRepo,
		store:        store,
		logger:       logger,
		maxSize:      conf.Storage.MaxUploadSize,
		allowedTypes: allowed,
	}
}

// sniff detects the content type from the first bytes of r.
func sniff(r *bufio.Reader) string {
	head, _ := r.Peek(512)
	ct, _, err := mime.ParseMediaType(http.DetectContentType(head))
	if err != nil {
		return "application/octet-stream"
	}
	return ct
}

func (svc *service) Upload(ctx context.Context, actor policy.Actor, l lead.Lead, nd NewDocument) (Document, error) {
	if !policy.EditLead(actor, l.BranchID, l.OwnerID) {
		return Document{}, core.ErrForbidden
	}
	if svc.maxSize > 0 && nd.Size > svc.maxSize {
		return Document{}, core.NewFieldError("file", ErrTooLarge.Error())
	}
	if nd.VisitID != nil {
		v, err := svc.visitRepo.GetVisit(ctx, *nd.VisitID)
		if err != nil && !core.IsNotFound(err) {
			return Document{}, errors.Wrap(err, "finding visit")
		}
		if err != nil || v.LeadID != l.ID {
			return Document{}, core.NewFieldError("visit_id", ErrVisitMismatch.Error())
		}
	}

	rdr := bufio.NewReader(nd.Content)
	ct := sniff(rdr)
	if !svc.allowedTypes[ct] {
		return Document{}, core.NewFieldError("file", fmt.Sprintf("%s: %s", ErrContentType, ct))
	}

	key := uuid.NewString() + strings.ToLower(path.Ext(nd.FileName))
	var src io.Reader = rdr
	if svc.maxSize > 0 {
		src = io.LimitReader(rdr, svc.maxSize+1)
	}
	size, err := svc.store.Save(ctx, key, src)
	if err != nil {
		return Document{}, errors.Wrap(err, "storing file")
	}
	if svc.maxSize > 0 && size > svc.maxSize {
		svc.removeFile(ctx, key)
		return Document{}, core.NewFieldError("file", ErrTooLarge.Error())
	}

	actorID := actor.ID
	doc, err := svc.repo.CreateDocument(ctx, Document{
		LeadID:      l.ID,
		VisitID:     nd.VisitID,
		UploadedBy:  &actorID,
		Kind:        nd.Kind,
		FileName:    nd.FileName,
		ContentType: ct,
		Size:        size,
		StorageKey:  key,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		svc.removeFile(ctx, key)
		return Document{}, errors.Wrap(err, "creating document")
	}
	return svc.repo.GetDocument(ctx, doc.ID)
}

// Get returns the document if the actor may see its lead.
func (svc *service) Get(ctx context.Context, actor policy.Actor, id int64) (Document, error) {
	doc, err := svc.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if !policy.ViewLead(actor, doc.BranchID, doc.OwnerID) {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (svc *service) ListByLead(ctx context.Context, actor policy.Actor, l lead.Lead) ([]Document, error) {
	if !policy.ViewLead(actor, l.BranchID, l.OwnerID) {
		return nil, lead.ErrNotFound
	}
	docs, err := svc.repo.ListDocuments(ctx, l.ID)
	return docs, errors.Wrap(err, "listing documents")
}

func (svc *service) Download(ctx context.Context, actor policy.Actor, id int64) (Document, io.ReadCloser, error) {
	doc, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Document{}, nil, err
	}
	rc, err := svc.store.Open(ctx, doc.StorageKey)
	if err != nil {
		if core.IsNotFound(err) {
			svc.logger.Error(fmt.Sprintf("document.Download(%d): missing file %s", doc.ID, doc.StorageKey), err)
			return Document{}, nil, errFileStoreNotFound
		}
		return Document{}, nil, errors.Wrap(err, "opening file")
	}
	return doc, rc, nil
}

func (svc *service) Delete(ctx context.Context, actor policy.Actor, doc Document) error {
	if !policy.EditLead(actor, doc.BranchID, doc.OwnerID) {
		return core.ErrForbidden
	}
	if err := svc.repo.DeleteDocument(ctx, doc.ID); err != nil {
		return errors.Wrap(err, "deleting document")
	}
	svc.removeFile(ctx, doc.StorageKey)
	return nil
}

func (svc *service) removeFile(ctx context.Context, key string) {
	if err := svc.store.Remove(ctx, key); err != nil && !core.IsNotFound(err) {
		svc.logger.Error(fmt.Sprintf("document.removeFile(%s): %v", key, err), err)
	}
}

type purger struct {
	repo   Repository
	store  FileStore
	logger core.Logger
}

// NewPurger returns the lead.DocumentPurger removing document files of deleted leads.
func NewPurger(repo Repository, store FileStore, logger core.Logger) lead.DocumentPurger {
	return &purger{repo: repo, store: store, logger: logger}
}

func (p *purger) StorageKeys(ctx context.Context, leadID int64, exec ...core.DBExecutor) ([]string, error) {
	return p.repo.StorageKeys(ctx, leadID, exec...)
}

func (p *purger) RemoveFiles(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := p.store.Remove(ctx, key); err != nil && !core.IsNotFound(err) {
			p.logger.Error(fmt.Sprintf("document.RemoveFiles(%s): %v", key, err), err)
		}
	}
}
