package echoapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arishrdi/leads-aladdin-sub001/core/document"
	"github.com/arishrdi/leads-aladdin-sub001/testutil"
)

// upload posts a multipart form to the lead's documents.
func (app *testApp) upload(t *testing.T, token string, leadID int64, fields map[string]string, fileName string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() failed: %v", err)
		}
	}
	if fileName != "" {
		fw, err := w.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("CreateFormFile() failed: %v", err)
		}
		if _, err = fw.Write(content); err != nil {
			t.Fatalf("Write() failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/v1/leads/%d/documents", leadID), &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func Test_documentApi(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	token := app.getToken(t, f.mkt1)
	l := testutil.CreateLead(t, app.leadRepo, f.b1.ID, f.mkt1.ID, "Al Ikhlas", "6281234567890")
	content := []byte("Penawaran karpet masjid Al Ikhlas\nTurki 12x15m\n")

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name     string
			fields   map[string]string
			fileName string
			content  []byte
			wantErrs map[string]string
		}{
			{
				name: "missing file", fields: map[string]string{"kind": document.KindQuotation},
				wantErrs: map[string]string{"file": "this field is required"},
			},
			{
				name: "unknown kind", fields: map[string]string{"kind": "foto"}, fileName: "a.txt", content: content,
				wantErrs: map[string]string{"kind": "must be one of foto_lokasi, penawaran, invoice, kontrak, lainnya"},
			},
			{
				name: "disallowed type", fields: map[string]string{"kind": document.KindOther}, fileName: "a.zip",
				content:  []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00"),
				wantErrs: map[string]string{"file": "file type is not allowed: application/zip"},
			},
			{
				name: "too large", fields: map[string]string{"kind": document.KindOther}, fileName: "big.txt",
				content:  bytes.Repeat([]byte("a"), 1<<20+1),
				wantErrs: map[string]string{"file": "file is too large"},
			},
			{
				name: "visit of another lead", fields: map[string]string{"kind": document.KindSitePhoto, "visit_id": "9999"},
				fileName: "a.txt", content: content,
				wantErrs: map[string]string{"visit_id": "visit does not belong to the lead"},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := app.upload(t, token, l.ID, tt.fields, tt.fileName, tt.content)
				if rec.Code != http.StatusBadRequest {
					t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
				}
				var got map[string]string
				if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
					t.Fatalf("json.Unmarshal() failed: %v", err)
				}
				if fmt.Sprint(got) != fmt.Sprint(tt.wantErrs) {
					t.Errorf("errors = %v; want %v", got, tt.wantErrs)
				}
			})
		}
	})

	if rec := app.upload(t, app.getToken(t, f.mkt2), l.ID, map[string]string{"kind": document.KindQuotation}, "a.txt", content); rec.Code != http.StatusNotFound {
		t.Errorf("other marketing: code = %v; want %v", rec.Code, http.StatusNotFound)
	}

	rec := app.upload(t, token, l.ID, map[string]string{"kind": document.KindQuotation}, `C:\Dokumen\penawaran.txt`, content)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: code = %v; body %s", rec.Code, rec.Body.String())
	}
	var doc document.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v", err)
	}
	if doc.FileName != "penawaran.txt" || doc.ContentType != "text/plain" || doc.Size != int64(len(content)) || doc.Kind != document.KindQuotation {
		t.Errorf("uploaded = %+v", doc)
	}
	if doc.UploadedBy == nil || *doc.UploadedBy != f.mkt1.ID || doc.UploaderName != f.mkt1.Name {
		t.Errorf("uploader = %v (%q)", doc.UploadedBy, doc.UploaderName)
	}

	docPath := fmt.Sprintf("/v1/documents/%d", doc.ID)
	app.run(t, []httpTest{
		{name: "list", path: fmt.Sprintf("/v1/leads/%d/documents", l.ID), token: token, wantData: marchallList(t, doc)},
		{name: "detail", path: docPath, token: app.getToken(t, f.supervisor), wantData: marchallObj(t, doc)},
		{name: "detail (other marketing)", path: docPath, token: app.getToken(t, f.mkt2), wantCode: http.StatusNotFound},
		{name: "download (other marketing)", path: docPath + "/download", token: app.getToken(t, f.mkt2), wantCode: http.StatusNotFound},
	})

	t.Run("download", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, docPath+"/download", token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
			t.Errorf("Content-Type = %q", ct)
		}
		if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename=penawaran.txt`) {
			t.Errorf("Content-Disposition = %q", cd)
		}
		if !bytes.Equal(rec.Body.Bytes(), content) {
			t.Errorf("content = %q; want %q", rec.Body.String(), content)
		}
	})

	t.Run("delete removes the file", func(t *testing.T) {
		dir := filepath.Join(app.conf.WorkDir, app.conf.Storage.DocumentsDir)
		countFiles := func() int {
			n := 0
			_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
				if err == nil && d.Type().IsRegular() {
					n++
				}
				return nil
			})
			return n
		}
		if n := countFiles(); n != 1 {
			t.Fatalf("%d stored files; want 1", n)
		}

		rec := app.serve(t, http.MethodDelete, docPath, token, nil, nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		if n := countFiles(); n != 0 {
			t.Errorf("%d stored files left; want 0", n)
		}
		rec = app.serve(t, http.MethodGet, docPath, token, nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("deleted: code = %v; want %v", rec.Code, http.StatusNotFound)
		}
	})
}
