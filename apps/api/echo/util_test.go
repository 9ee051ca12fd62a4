package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	echoapi "github.com/arishrdi/leads-aladdin-sub001/apps/api/echo"
	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/branch"
	"github.com/arishrdi/leads-aladdin-sub001/core/document"
	"github.com/arishrdi/leads-aladdin-sub001/core/followup"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
	"github.com/arishrdi/leads-aladdin-sub001/core/report"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
	"github.com/arishrdi/leads-aladdin-sub001/core/visit"
	appfs "github.com/arishrdi/leads-aladdin-sub001/fs"
	"github.com/arishrdi/leads-aladdin-sub001/services/email"
	"github.com/arishrdi/leads-aladdin-sub001/services/logger"
	"github.com/arishrdi/leads-aladdin-sub001/storage/database/sqlx"
	"github.com/arishrdi/leads-aladdin-sub001/storage/files"
	"github.com/arishrdi/leads-aladdin-sub001/testutil"
)

const testPassword = "Kubah#Masjid2024"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// testApp is a Server backed by a fresh database, with direct access to the repositories for fixtures.
type testApp struct {
	echoapi.Server
	conf         *core.Config
	usrRepo      user.Repository
	branchRepo   branch.Repository
	leadRepo     lead.Repository
	followUpRepo followup.Repository
	visitRepo    visit.Repository
}

func setup(t *testing.T) *testApp {
	t.Helper()
	conf := core.NewTestConfig()
	conf.WorkDir = t.TempDir()
	conf.Storage.DocumentsDir = "documents"

	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	branchRepo := sqlxrepos.NewBranchRepository(db)
	leadRepo := sqlxrepos.NewLeadRepository(db)
	followUpRepo := sqlxrepos.NewFollowUpRepository(db)
	visitRepo := sqlxrepos.NewVisitRepository(db)
	documentRepo := sqlxrepos.NewDocumentRepository(db)
	reportRepo := sqlxrepos.NewReportRepository(db)

	// set up services
	logger := logsvc.NewRollbarLogger(zap.NewNop(), conf)
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, logger)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	store, err := files.NewLocalStore(conf)
	if err != nil {
		t.Fatalf("files.NewLocalStore() failed: %v", err)
	}
	pipeline, err := followup.LoadPipeline(appfs.FS, appfs.PipelineFile, "")
	if err != nil {
		t.Fatalf("followup.LoadPipeline() failed: %v", err)
	}

	usrSvc := user.NewServiceMock(db, usrRepo, branchRepo, mailSvc, conf)
	followUpSvc := followup.NewService(db, followUpRepo, leadRepo, usrRepo, pipeline, mailSvc, conf)
	purger := document.NewPurger(documentRepo, store, logger)
	leadSvc := lead.NewService(db, leadRepo, usrRepo, branchRepo, followUpSvc, purger, mailSvc)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	lead.InitValidators(validate, translator)
	document.InitValidators(validate, translator)

	// set up server
	srv := echoapi.NewServer(&echoapi.Options{
		Conf:        conf,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		UserSvc:     usrSvc,
		BranchSvc:   branch.NewService(branchRepo, usrRepo),
		LeadSvc:     leadSvc,
		FollowUpSvc: followUpSvc,
		VisitSvc:    visit.NewService(db, visitRepo),
		DocumentSvc: document.NewService(documentRepo, visitRepo, store, conf, logger),
		ReportSvc:   report.NewService(reportRepo, leadRepo, pipeline, conf),
	})
	t.Cleanup(func() { _ = srv.Close() })

	return &testApp{
		Server:       srv,
		conf:         conf,
		usrRepo:      usrRepo,
		branchRepo:   branchRepo,
		leadRepo:     leadRepo,
		followUpRepo: followUpRepo,
		visitRepo:    visitRepo,
	}
}

// fixtures is the usual cast: a super user, a supervisor of branch 1 and one marketing user per branch.
type fixtures struct {
	b1, b2     branch.Branch
	admin      user.User
	supervisor user.User
	mkt1, mkt2 user.User
}

func (app *testApp) seed(t *testing.T) fixtures {
	t.Helper()
	var f fixtures
	f.b1 = testutil.CreateBranch(t, app.branchRepo, "JKT", "Jakarta Pusat", true)
	f.b2 = testutil.CreateBranch(t, app.branchRepo, "BDG", "Bandung", true)
	f.admin = testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@aladdin.id", testPassword, user.RoleSuperUser, nil, true)
	f.supervisor = testutil.CreateUser(t, app.usrRepo, "Siti", "siti", "siti@aladdin.id", testPassword, user.RoleSupervisor, []int64{f.b1.ID}, true)
	f.mkt1 = testutil.CreateUser(t, app.usrRepo, "Budi", "budi", "budi@aladdin.id", testPassword, user.RoleMarketing, []int64{f.b1.ID}, true)
	f.mkt2 = testutil.CreateUser(t, app.usrRepo, "Rina", "rina", "rina@aladdin.id", testPassword, user.RoleMarketing, []int64{f.b2.ID}, true)
	return f
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(app.conf, echoapi.GetUserClaims(app.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// serve runs the request and decodes a JSON response into dest, when given.
func (app *testApp) serve(t *testing.T, method, path, token string, body []byte, dest interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req, rec := newAuthRequest(method, path, token, body)
	app.ServeHTTP(rec, req)
	if dest != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
			t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
		}
	}
	return rec
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	if _, ok := j2.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if tt.wantCode == 0 {
		tt.wantCode = http.StatusOK
	}
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
