package echoapi_test

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/followup"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
	"github.com/arishrdi/leads-aladdin-sub001/services/email"
	"github.com/arishrdi/leads-aladdin-sub001/testutil"
)

func leadPath(id int64, sub ...string) string {
	p := fmt.Sprintf("/v1/leads/%d", id)
	for _, s := range sub {
		p += "/" + s
	}
	return p
}

func Test_leadApi_create(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	mktToken := app.getToken(t, f.mkt1)

	newLead := func(name, phone string) lead.NewLead {
		return lead.NewLead{
			CustomerName:   name,
			Phone:          phone,
			Institution:    "Masjid " + name,
			City:           "Jakarta",
			CarpetType:     "Turki",
			EstimatedValue: 45000000,
		}
	}

	t.Run("validation", func(t *testing.T) {
		tests := []httpTest{
			{
				name: "required", method: http.MethodPost, path: "/v1/leads", token: mktToken,
				body:     marchallObj(t, lead.NewLead{}),
				wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{
					"customer_name": "this field is required",
					"phone":         "this field is required",
				}),
			},
			{
				name: "bad phone", method: http.MethodPost, path: "/v1/leads", token: mktToken,
				body:     marchallObj(t, newLead("Pak Harun", "12345")),
				wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{
					"phone": "must be a valid Indonesian mobile number (e.g. 0812xxxxxxx)",
				}),
			},
			{
				name: "admin must pick a branch", method: http.MethodPost, path: "/v1/leads", token: app.getToken(t, f.admin),
				body:     marchallObj(t, newLead("Pak Harun", "081234567890")),
				wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"branch_id": "this field is required"}),
			},
		}
		app.run(t, tests)
	})

	emailsvc.ResetSentMessages()

	var created lead.Lead
	t.Run("marketing owns what they create", func(t *testing.T) {
		nl := newLead("Pak Harun", "0812-3456-7890")
		nl.BranchID = f.b2.ID // ignored
		nl.OwnerID = f.mkt2.ID
		rec := app.serve(t, http.MethodPost, "/v1/leads", mktToken, marchallObj(t, nl), &created)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		if created.OwnerID != f.mkt1.ID || created.BranchID != f.b1.ID {
			t.Errorf("owner/branch = %d/%d; want %d/%d", created.OwnerID, created.BranchID, f.mkt1.ID, f.b1.ID)
		}
		if created.Phone != "6281234567890" || created.Status != lead.StatusNew || created.Stage != "kontak_awal" || created.StageAttempt != 1 {
			t.Errorf("created = %+v", created)
		}
		if created.BranchName != f.b1.Name || created.OwnerName != f.mkt1.Name {
			t.Errorf("joined names = %q/%q", created.BranchName, created.OwnerName)
		}
		if n := len(emailsvc.SentMessages()); n != 0 {
			t.Errorf("%d messages sent; owners are not notified of their own leads", n)
		}

		var fus []followup.FollowUp
		rec = app.serve(t, http.MethodGet, leadPath(created.ID, "followups"), mktToken, nil, &fus)
		if rec.Code != http.StatusOK || len(fus) != 1 {
			t.Fatalf("follow-ups: code = %v; body %s", rec.Code, rec.Body.String())
		}
		fu := fus[0]
		if fu.Status != followup.StatusScheduled || fu.Stage != "kontak_awal" || fu.Attempt != 1 || *fu.UserID != f.mkt1.ID {
			t.Errorf("first follow-up = %+v", fu)
		}
		if d := fu.ScheduledAt.Sub(created.CreatedAt); d < 24*time.Hour || d > 24*time.Hour+time.Minute {
			t.Errorf("first follow-up is due %v after creation; want 24h", d)
		}
	})

	t.Run("duplicate phone", func(t *testing.T) {
		var resp map[string]string
		rec := app.serve(t, http.MethodPost, "/v1/leads", mktToken, marchallObj(t, newLead("Bu Aisyah", "081234567890")), &resp)
		if rec.Code != http.StatusBadRequest || resp["phone"] == "" {
			t.Errorf("code = %v; body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("same phone in another branch", func(t *testing.T) {
		rec := app.serve(t, http.MethodPost, "/v1/leads", app.getToken(t, f.mkt2), marchallObj(t, newLead("Bu Aisyah", "081234567890")), nil)
		if rec.Code != http.StatusCreated {
			t.Errorf("code = %v; body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("supervisor assigns an owner", func(t *testing.T) {
		nl := newLead("Ust. Fauzi", "081298765432")
		nl.OwnerID = f.mkt1.ID
		nl.BranchID = f.b1.ID
		var l lead.Lead
		rec := app.serve(t, http.MethodPost, "/v1/leads", app.getToken(t, f.supervisor), marchallObj(t, nl), &l)
		if rec.Code != http.StatusCreated || l.OwnerID != f.mkt1.ID {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		sent := emailsvc.SentMessages()
		if len(sent) != 1 || sent[0].To[0].Address != f.mkt1.Email {
			t.Errorf("sent = %+v; want one notification to %s", sent, f.mkt1.Email)
		}
	})

	t.Run("owner must belong to the branch", func(t *testing.T) {
		nl := newLead("Ust. Salim", "081311112222")
		nl.OwnerID = f.mkt2.ID
		nl.BranchID = f.b1.ID
		var resp map[string]string
		rec := app.serve(t, http.MethodPost, "/v1/leads", app.getToken(t, f.admin), marchallObj(t, nl), &resp)
		if rec.Code != http.StatusBadRequest || resp["owner_id"] == "" {
			t.Errorf("code = %v; body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("supervisor outside the branch", func(t *testing.T) {
		nl := newLead("Ust. Salim", "081311112222")
		nl.OwnerID = f.mkt2.ID
		nl.BranchID = f.b2.ID
		rec := app.serve(t, http.MethodPost, "/v1/leads", app.getToken(t, f.supervisor), marchallObj(t, nl), nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})
}

func Test_leadApi_visibility(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	l1 := testutil.CreateLead(t, app.leadRepo, f.b1.ID, f.mkt1.ID, "Al Ikhlas", "6281234567890")
	l2 := testutil.CreateLead(t, app.leadRepo, f.b2.ID, f.mkt2.ID, "Al Falah", "6281234567891")

	var page core.Page[lead.Lead]
	ids := func(token, query string) []int64 {
		t.Helper()
		page = core.Page[lead.Lead]{}
		rec := app.serve(t, http.MethodGet, "/v1/leads"+query, token, nil, &page)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var res []int64
		for _, l := range page.Items {
			res = append(res, l.ID)
		}
		return res
	}

	tests := []struct {
		name  string
		usr   user.User
		query string
		want  []int64
	}{
		{name: "super user sees all", usr: f.admin, query: "?ordering=id", want: []int64{l1.ID, l2.ID}},
		{name: "supervisor sees the branch", usr: f.supervisor, want: []int64{l1.ID}},
		{name: "marketing sees own leads", usr: f.mkt2, want: []int64{l2.ID}},
		{name: "branch filter", usr: f.admin, query: fmt.Sprintf("?branch_id=%d", f.b2.ID), want: []int64{l2.ID}},
		{name: "status filter", usr: f.admin, query: "?status=hot,warm", want: nil},
		{name: "search", usr: f.admin, query: "?search=falah", want: []int64{l2.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(app.getToken(t, tt.usr), tt.query)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("ids = %v; want %v", got, tt.want)
			}
			if page.Total != len(tt.want) {
				t.Errorf("total = %v; want %v", page.Total, len(tt.want))
			}
		})
	}

	app.run(t, []httpTest{
		{name: "other marketing", path: leadPath(l1.ID), token: app.getToken(t, f.mkt2), wantCode: http.StatusNotFound},
		{name: "other supervisor branch", path: leadPath(l2.ID), token: app.getToken(t, f.supervisor), wantCode: http.StatusNotFound},
		{name: "unknown", path: leadPath(9999), token: app.getToken(t, f.admin), wantCode: http.StatusNotFound},
		{name: "owner", path: leadPath(l1.ID), token: app.getToken(t, f.mkt1)},
		{
			name: "bad date", path: "/v1/leads?date_from=yesterday", token: app.getToken(t, f.admin),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"date_from": "must be a date (YYYY-MM-DD) or an RFC 3339 timestamp"}),
		},
	})
}

func Test_leadApi_pagination(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	for i := 0; i < 5; i++ {
		testutil.CreateLead(t, app.leadRepo, f.b1.ID, f.mkt1.ID, fmt.Sprintf("Masjid %d", i), fmt.Sprintf("62812000000%02d", i))
	}

	var page core.Page[lead.Lead]
	rec := app.serve(t, http.MethodGet, "/v1/leads?page=2&per_page=2&ordering=id", app.getToken(t, f.supervisor), nil, &page)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
	}
	if page.Total != 5 || page.Page != 2 || page.PerPage != 2 || len(page.Items) != 2 {
		t.Errorf("page = total %d, page %d, per_page %d, %d items", page.Total, page.Page, page.PerPage, len(page.Items))
	}
	if len(page.Items) == 2 && page.Items[0].CustomerName != "Masjid 2" {
		t.Errorf("first item = %q; want %q", page.Items[0].CustomerName, "Masjid 2")
	}
}

func Test_leadApi_update(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	l := testutil.CreateLead(t, app.leadRepo, f.b1.ID, f.mkt1.ID, "Al Ikhlas", "6281234567890")
	testutil.CreateLead(t, app.leadRepo, f.b1.ID, f.mkt1.ID, "Al Hikmah", "6281234567899")
	token := app.getToken(t, f.mkt1)

	var got lead.Lead
	rec := app.serve(t, http.MethodPut, leadPath(l.ID), token,
		marchallObj(t, map[string]interface{}{"city": "Depok", "estimated_value": 60000000, "status": "HOT"}), &got)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
	}
	if got.City != "Depok" || got.EstimatedValue != 60000000 || got.CustomerName != l.CustomerName {
		t.Errorf("updated = %+v", got)
	}
	if got.Status != lead.StatusNew {
		t.Errorf("status = %v; status only changes through /status", got.Status)
	}

	var resp map[string]string
	rec = app.serve(t, http.MethodPut, leadPath(l.ID), token, marchallObj(t, map[string]string{"phone": "081234567899"}), &resp)
	if rec.Code != http.StatusBadRequest || resp["phone"] == "" {
		t.Errorf("duplicate phone: code = %v; body %s", rec.Code, rec.Body.String())
	}
}

func Test_leadApi_changeStatus(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	token := app.getToken(t, f.mkt1)

	status := func(st lead.Status, reason string) []byte {
		return marchallObj(t, lead.StatusChange{Status: st, Reason: reason})
	}

	l := testutil.CreateLead(t, app.leadRepo, f.b1.ID, f.mkt1.ID, "Al Ikhlas", "6281234567890")
	testutil.CreateFollowUp(t, app.followUpRepo, l, time.Now().Add(time.Hour))
	cold := testutil.CreateLead(t, app.leadRepo, f.b1.ID, f.mkt1.ID, "Al Amin", "6281234567891",
		testutil.WithStatus(lead.StatusCold), testutil.WithStage("presentasi", 3))

	app.run(t, []httpTest{
		{
			name: "unknown status", method: http.MethodPut, path: leadPath(l.ID, "status"), token: token,
			body: status("LOST", ""), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"status": "invalid lead status"}),
		},
		{
			name: "exit needs a reason", method: http.MethodPut, path: leadPath(l.ID, "status"), token: token,
			body: status(lead.StatusExit, ""), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"reason": "a reason is required to exit a lead"}),
		},
		{
			name: "invalid transition", method: http.MethodPut, path: leadPath(l.ID, "status"), token: token,
			body: status(lead.StatusConverted, ""), wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "invalid status transition: NEW -> CONVERTED"}),
		},
		{
			name: "marketing cannot reactivate", method: http.MethodPut, path: leadPath(cold.ID, "status"), token: token,
			body: status(lead.StatusQualified, ""), wantCode: http.StatusForbidden,
		},
	})

	t.Run("exit cancels the pending follow-up", func(t *testing.T) {
		var got lead.Lead
		rec := app.serve(t, http.MethodPut, leadPath(l.ID, "status"), token, status(lead.StatusExit, "pindah vendor"), &got)
		if rec.Code != http.StatusOK || got.Status != lead.StatusExit || got.ExitReason != "pindah vendor" {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		fus, err := app.followUpRepo.ListByLead(context.Background(), l.ID)
		if err != nil {
			t.Fatalf("ListByLead() failed: %v", err)
		}
		for _, fu := range fus {
			if fu.Status == followup.StatusScheduled {
				t.Errorf("follow-up %d is still scheduled", fu.ID)
			}
		}
	})

	t.Run("supervisor reactivates a cold lead", func(t *testing.T) {
		var got lead.Lead
		rec := app.serve(t, http.MethodPut, leadPath(cold.ID, "status"), app.getToken(t, f.supervisor), status(lead.StatusQualified, ""), &got)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		if got.Status != lead.StatusQualified || got.Stage != "presentasi" || got.StageAttempt != 1 {
			t.Errorf("reactivated = %s/%s/%d", got.Status, got.Stage, got.StageAttempt)
		}
		fus, err := app.followUpRepo.ListByLead(context.Background(), cold.ID)
		if err != nil {
			t.Fatalf("ListByLead() failed: %v", err)
		}
		if len(fus) != 1 || fus[0].Status != followup.StatusScheduled || fus[0].Attempt != 1 {
			t.Errorf("follow-ups = %+v; want one scheduled attempt", fus)
		}
	})
}

func Test_leadApi_assignAndDelete(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	mkt3 := testutil.CreateUser(t, app.usrRepo, "Dedi", "dedi", "dedi@aladdin.id", testPassword, user.RoleMarketing, []int64{f.b1.ID}, true)
	l := testutil.CreateLead(t, app.leadRepo, f.b1.ID, f.mkt1.ID, "Al Ikhlas", "6281234567890")
	testutil.CreateFollowUp(t, app.followUpRepo, l, time.Now().Add(time.Hour))
	supToken := app.getToken(t, f.supervisor)

	assign := func(ownerID int64) []byte { return marchallObj(t, lead.Assignment{OwnerID: ownerID}) }
	app.run(t, []httpTest{
		{
			name: "marketing cannot assign", method: http.MethodPut, path: leadPath(l.ID, "assign"), token: app.getToken(t, f.mkt1),
			body: assign(mkt3.ID), wantCode: http.StatusForbidden,
		},
		{
			name: "owner from another branch", method: http.MethodPut, path: leadPath(l.ID, "assign"), token: supToken,
			body: assign(f.mkt2.ID), wantCode: http.StatusBadRequest,
		},
		{
			name: "missing owner", method: http.MethodPut, path: leadPath(l.ID, "assign"), token: supToken,
			body: assign(0), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"owner_id": "this field is required"}),
		},
	})

	emailsvc.ResetSentMessages()
	var got lead.Lead
	rec := app.serve(t, http.MethodPut, leadPath(l.ID, "assign"), supToken, assign(mkt3.ID), &got)
	if rec.Code != http.StatusOK || got.OwnerID != mkt3.ID {
		t.Fatalf("assign: code = %v; body %s", rec.Code, rec.Body.String())
	}
	fus, err := app.followUpRepo.ListByLead(context.Background(), l.ID)
	if err != nil {
		t.Fatalf("ListByLead() failed: %v", err)
	}
	if len(fus) != 1 || *fus[0].UserID != mkt3.ID {
		t.Errorf("pending follow-up was not reassigned: %+v", fus)
	}
	if sent := emailsvc.SentMessages(); len(sent) != 1 || sent[0].To[0].Address != mkt3.Email {
		t.Errorf("sent = %+v; want one notification to %s", sent, mkt3.Email)
	}

	// the previous owner lost sight of the lead
	app.run(t, []httpTest{
		{name: "previous owner", path: leadPath(l.ID), token: app.getToken(t, f.mkt1), wantCode: http.StatusNotFound},
		{name: "new owner cannot delete", method: http.MethodDelete, path: leadPath(l.ID), token: app.getToken(t, mkt3), wantCode: http.StatusForbidden},
		{name: "supervisor deletes", method: http.MethodDelete, path: leadPath(l.ID), token: supToken, wantCode: http.StatusNoContent},
		{name: "gone", path: leadPath(l.ID), token: supToken, wantCode: http.StatusNotFound},
	})
}

func Test_sourceApi(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	adminToken := app.getToken(t, f.admin)

	var seeded []lead.Source
	rec := app.serve(t, http.MethodGet, "/v1/sources", adminToken, nil, &seeded)
	if rec.Code != http.StatusOK || len(seeded) == 0 {
		t.Fatalf("seeded sources: code = %v; body %s", rec.Code, rec.Body.String())
	}

	var src lead.Source
	rec = app.serve(t, http.MethodPost, "/v1/sources", adminToken, marchallObj(t, lead.SourceData{Name: "Brosur"}), &src)
	if rec.Code != http.StatusCreated || src.ID == 0 || !src.IsActive {
		t.Fatalf("create: code = %v; body %s", rec.Code, rec.Body.String())
	}
	inactive := false
	var other lead.Source
	rec = app.serve(t, http.MethodPost, "/v1/sources", adminToken, marchallObj(t, lead.SourceData{Name: "Pameran", IsActive: &inactive}), &other)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: code = %v; body %s", rec.Code, rec.Body.String())
	}

	// sources are listed by name; the seeded ones are all active
	sorted := func(extra ...lead.Source) []interface{} {
		all := append(append([]lead.Source{}, seeded...), extra...)
		sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
		objs := make([]interface{}, 0, len(all))
		for _, s := range all {
			objs = append(objs, s)
		}
		return objs
	}

	mktToken := app.getToken(t, f.mkt1)
	app.run(t, []httpTest{
		{
			name: "marketing cannot create", method: http.MethodPost, path: "/v1/sources", token: mktToken,
			body: marchallObj(t, lead.SourceData{Name: "Spanduk"}), wantCode: http.StatusForbidden,
		},
		{
			name: "duplicate name", method: http.MethodPost, path: "/v1/sources", token: adminToken,
			body: marchallObj(t, lead.SourceData{Name: "brosur"}), wantCode: http.StatusBadRequest,
		},
		{name: "all", path: "/v1/sources", token: mktToken, wantData: marchallList(t, sorted(src, other)...)},
		{name: "active only", path: "/v1/sources?active=true", token: mktToken, wantData: marchallList(t, sorted(src)...)},
		{name: "detail", path: fmt.Sprintf("/v1/sources/%d", src.ID), token: mktToken, wantData: marchallObj(t, src)},
	})

	t.Run("inactive source is rejected for new leads", func(t *testing.T) {
		var resp map[string]string
		rec := app.serve(t, http.MethodPost, "/v1/leads", mktToken, marchallObj(t, lead.NewLead{
			CustomerName: "Pak Harun", Phone: "081234567890", SourceID: &other.ID,
		}), &resp)
		if rec.Code != http.StatusBadRequest || resp["source_id"] == "" {
			t.Errorf("code = %v; body %s", rec.Code, rec.Body.String())
		}
	})

	rec = app.serve(t, http.MethodDelete, fmt.Sprintf("/v1/sources/%d", other.ID), adminToken, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: code = %v; body %s", rec.Code, rec.Body.String())
	}
}
