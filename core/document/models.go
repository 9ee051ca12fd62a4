package document

import (
	"io"
	"path"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/arishrdi/leads-aladdin-sub001/core"
)

// Document kinds
const (
	KindSitePhoto = "foto_lokasi"
	KindQuotation = "penawaran"
	KindInvoice   = "invoice"
	KindContract  = "kontrak"
	KindOther     = "lainnya"
)

var (
	AllKinds = []string{KindSitePhoto, KindQuotation, KindInvoice, KindContract, KindOther}

	docKindTag  = "doc_kind"
	docKindText = "must be one of " + strings.Join(AllKinds, ", ")
)

// InitValidators registers the doc_kind validator and its translation.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(docKindTag, func(fl validator.FieldLevel) bool {
		return IsValidKind(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, docKindTag, docKindText)
}

func IsValidKind(kind string) bool {
	for _, k := range AllKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Document is a file attached to a lead, and optionally to one of its visits.
type Document struct {
	ID          int64     `json:"id"`
	LeadID      int64     `json:"lead_id"`
	VisitID     *int64    `json:"visit_id"`
	UploadedBy  *int64    `json:"uploaded_by"`
	Kind        string    `json:"kind"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StorageKey  string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`

	// read-only, joined
	UploaderName string `json:"uploader_name"`
	BranchID     int64  `json:"-"`
	OwnerID      int64  `json:"-"`
}

// NewDocument is an upload request. Size is the size announced by the client;
// the stored size is the number of bytes actually read from Content.
type NewDocument struct {
	Kind     string    `json:"kind" validate:"required,doc_kind"`
	VisitID  *int64    `json:"visit_id"`
	FileName string    `json:"file_name" validate:"required,max=255"`
	Size     int64     `json:"size"`
	Content  io.Reader `json:"-"`
}

func (nd *NewDocument) Validate(validate *validator.Validate) error {
	nd.Kind = core.CleanString(nd.Kind, true)
	nd.FileName = cleanFileName(nd.FileName)
	if nd.Content == nil {
		return core.NewFieldError("file", "this field is required")
	}
	return validate.Struct(nd)
}

// cleanFileName keeps the base name of a client-provided path.
func cleanFileName(name string) string {
	name = strings.ReplaceAll(core.CleanString(name), "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
