package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/document"
)

var documentColumns = []string{
	"lead_id", "visit_id", "uploaded_by", "kind", "file_name", "content_type", "size", "storage_key", "created_at",
}

var documentSelect = qm.Select(
	"d.id AS id", "d.lead_id AS lead_id", "d.visit_id AS visit_id", "d.uploaded_by AS uploaded_by",
	"d.kind AS kind", "d.file_name AS file_name", "d.content_type AS content_type", "d.size AS size",
	"d.storage_key AS storage_key", "d.created_at AS created_at", "u.name AS uploader_name",
	"l.branch_id AS branch_id", "l.owner_id AS owner_id",
)

type documentRow struct {
	ID           int64       `db:"id"`
	LeadID       int64       `db:"lead_id"`
	VisitID      null.Int64  `db:"visit_id"`
	UploadedBy   null.Int64  `db:"uploaded_by"`
	Kind         string      `db:"kind"`
	FileName     string      `db:"file_name"`
	ContentType  string      `db:"content_type"`
	Size         int64       `db:"size"`
	StorageKey   string      `db:"storage_key"`
	CreatedAt    time.Time   `db:"created_at"`
	UploaderName null.String `db:"uploader_name"`
	BranchID     int64       `db:"branch_id"`
	OwnerID      int64       `db:"owner_id"`
}

func (row documentRow) unboil() document.Document {
	return document.Document{
		ID:           row.ID,
		LeadID:       row.LeadID,
		VisitID:      row.VisitID.Ptr(),
		UploadedBy:   row.UploadedBy.Ptr(),
		Kind:         row.Kind,
		FileName:     row.FileName,
		ContentType:  row.ContentType,
		Size:         row.Size,
		StorageKey:   row.StorageKey,
		CreatedAt:    row.CreatedAt.UTC(),
		UploaderName: row.UploaderName.String,
		BranchID:     row.BranchID,
		OwnerID:      row.OwnerID,
	}
}

func documentFrom() []qm.QueryMod {
	return []qm.QueryMod{
		documentSelect,
		qm.From("documents d"),
		qm.InnerJoin("leads l ON l.id = d.lead_id"),
		qm.LeftOuterJoin("users u ON u.id = d.uploaded_by"),
	}
}

type documentRepository struct {
	repo
}

var _ document.Repository = (*documentRepository)(nil)

func NewDocumentRepository(exec core.DBExecutor) *documentRepository {
	return &documentRepository{repo{exec: exec}}
}

func (r documentRepository) CreateDocument(ctx context.Context, doc document.Document, exec ...core.DBExecutor) (document.Document, error) {
	exe := r.getExec(exec)
	id, err := insert(ctx, exe, "documents", documentColumns,
		doc.LeadID, null.Int64FromPtr(doc.VisitID), null.Int64FromPtr(doc.UploadedBy), doc.Kind, doc.FileName,
		doc.ContentType, doc.Size, doc.StorageKey, dbTime(doc.CreatedAt))
	if err != nil {
		return document.Document{}, errors.Wrap(err, "inserting document")
	}
	return r.GetDocument(ctx, id, exe)
}

func (r documentRepository) GetDocument(ctx context.Context, id int64, exec ...core.DBExecutor) (document.Document, error) {
	var row documentRow
	if err := selectOne(ctx, r.getExec(exec), &row, append(documentFrom(), qm.Where("d.id = ?", id))...); err != nil {
		return document.Document{}, trapNoRowsErr(err, document.ErrNotFound, "finding document")
	}
	return row.unboil(), nil
}

func (r documentRepository) ListDocuments(ctx context.Context, leadID int64, exec ...core.DBExecutor) ([]document.Document, error) {
	mods := append(documentFrom(), qm.Where("d.lead_id = ?", leadID), qm.OrderBy("d.created_at DESC, d.id DESC"))
	var rows []documentRow
	if err := selectAll(ctx, r.getExec(exec), &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "listing documents")
	}
	docs := make([]document.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.unboil())
	}
	return docs, nil
}

func (r documentRepository) DeleteDocument(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	found, err := deleteByID(ctx, r.getExec(exec), "documents", id)
	if err != nil {
		return errors.Wrap(err, "deleting document")
	}
	if !found {
		return document.ErrNotFound
	}
	return nil
}

func (r documentRepository) StorageKeys(ctx context.Context, leadID int64, exec ...core.DBExecutor) ([]string, error) {
	keys := []string{}
	err := selectAll(ctx, r.getExec(exec), &keys,
		qm.Select("storage_key"), qm.From("documents"), qm.Where("lead_id = ?", leadID))
	return keys, errors.Wrap(err, "querying storage keys")
}
