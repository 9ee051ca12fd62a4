package echoapi_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/arishrdi/leads-aladdin-sub001/core/visit"
	"github.com/arishrdi/leads-aladdin-sub001/testutil"
)

func categories(cats []visit.Category) []interface{} {
	objs := make([]interface{}, 0, len(cats))
	for _, cat := range cats {
		objs = append(objs, cat)
	}
	return objs
}

// clearChecklist deletes the checklist categories seeded by the migrations.
func clearChecklist(t *testing.T, app *testApp, token string) {
	t.Helper()
	var cats []visit.Category
	app.serve(t, http.MethodGet, "/v1/checklist", token, nil, &cats)
	for _, cat := range cats {
		rec := app.serve(t, http.MethodDelete, fmt.Sprintf("/v1/checklist/%d", cat.ID), token, nil, nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("deleting checklist category %d: code = %v; body %s", cat.ID, rec.Code, rec.Body.String())
		}
	}
}

func Test_visitApi_checklist(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	adminToken := app.getToken(t, f.admin)
	mktToken := app.getToken(t, f.mkt1)

	var seeded []visit.Category
	rec := app.serve(t, http.MethodGet, "/v1/checklist", adminToken, nil, &seeded)
	if rec.Code != http.StatusOK || len(seeded) == 0 {
		t.Fatalf("seeded checklist: code = %v; body %s", rec.Code, rec.Body.String())
	}

	data := visit.CategoryData{
		Name:     "Kondisi Lantai",
		Kind:     visit.KindRadio,
		Position: len(seeded) + 1,
		Options: []visit.OptionData{
			{Label: "Keramik", Position: 1},
			{Label: "Marmer", Position: 2},
		},
	}

	app.run(t, []httpTest{
		{
			name: "marketing cannot create", method: http.MethodPost, path: "/v1/checklist", token: mktToken,
			body: marchallObj(t, data), wantCode: http.StatusForbidden,
		},
		{
			name: "options required", method: http.MethodPost, path: "/v1/checklist", token: adminToken,
			body:     marchallObj(t, visit.CategoryData{Name: "Warna", Kind: visit.KindCheckbox}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"options": "this field is required"}),
		},
		{
			name: "unknown kind", method: http.MethodPost, path: "/v1/checklist", token: adminToken,
			body: marchallObj(t, visit.CategoryData{Name: "Warna", Kind: "dropdown", Options: data.Options}), wantCode: http.StatusBadRequest,
		},
	})

	var cat visit.Category
	rec = app.serve(t, http.MethodPost, "/v1/checklist", adminToken, marchallObj(t, data), &cat)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: code = %v; body %s", rec.Code, rec.Body.String())
	}
	if cat.ID == 0 || !cat.IsActive || len(cat.Options) != 2 || cat.Options[0].Label != "Keramik" {
		t.Errorf("created = %+v", cat)
	}

	app.run(t, []httpTest{
		{name: "list", path: "/v1/checklist", token: mktToken, wantData: marchallList(t, append(categories(seeded), cat)...)},
		{name: "detail", path: fmt.Sprintf("/v1/checklist/%d", cat.ID), token: mktToken, wantData: marchallObj(t, cat)},
	})

	t.Run("update keeps, relabels and drops options", func(t *testing.T) {
		upd := visit.CategoryData{
			Name: "Kondisi Lantai",
			Kind: visit.KindRadio,
			Options: []visit.OptionData{
				{ID: cat.Options[0].ID, Label: "Keramik Polos", Position: 1},
				{Label: "Kayu", Position: 3},
			},
		}
		var got visit.Category
		rec := app.serve(t, http.MethodPut, fmt.Sprintf("/v1/checklist/%d", cat.ID), adminToken, marchallObj(t, upd), &got)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		if len(got.Options) != 2 || got.Options[0].ID != cat.Options[0].ID || got.Options[0].Label != "Keramik Polos" || got.Options[1].Label != "Kayu" {
			t.Errorf("options = %+v", got.Options)
		}
	})
}

func Test_visitApi_visits(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	adminToken := app.getToken(t, f.admin)
	mktToken := app.getToken(t, f.mkt1)
	l := testutil.CreateLead(t, app.leadRepo, f.b1.ID, f.mkt1.ID, "Al Ikhlas", "6281234567890")

	clearChecklist(t, app, adminToken)

	var floor, extras visit.Category
	app.serve(t, http.MethodPost, "/v1/checklist", adminToken, marchallObj(t, visit.CategoryData{
		Name: "Kondisi Lantai", Kind: visit.KindRadio,
		Options: []visit.OptionData{{Label: "Keramik"}, {Label: "Marmer"}},
	}), &floor)
	app.serve(t, http.MethodPost, "/v1/checklist", adminToken, marchallObj(t, visit.CategoryData{
		Name: "Kebutuhan Tambahan", Kind: visit.KindCheckbox,
		Options: []visit.OptionData{{Label: "Underlay"}, {Label: "Pemasangan"}, {Label: "Sajadah"}},
	}), &extras)
	if len(floor.Options) != 2 || len(extras.Options) != 3 {
		t.Fatalf("checklist fixtures were not created: %+v %+v", floor, extras)
	}

	newVisit := func(answers ...visit.Answer) []byte {
		return marchallObj(t, visit.NewVisit{Summary: "Ukur ruang utama 12x15m", Answers: answers})
	}
	visitsPath := fmt.Sprintf("/v1/leads/%d/visits", l.ID)

	app.run(t, []httpTest{
		{
			name: "summary required", method: http.MethodPost, path: visitsPath, token: mktToken,
			body:     marchallObj(t, visit.NewVisit{}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"summary": "this field is required"}),
		},
		{
			name: "radio needs one answer", method: http.MethodPost, path: visitsPath, token: mktToken,
			body:     newVisit(visit.Answer{CategoryID: extras.ID, OptionID: extras.Options[0].ID}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"answers": "Kondisi Lantai: exactly one option must be chosen"}),
		},
		{
			name: "option of another category", method: http.MethodPost, path: visitsPath, token: mktToken,
			body: newVisit(
				visit.Answer{CategoryID: floor.ID, OptionID: floor.Options[0].ID},
				visit.Answer{CategoryID: floor.ID, OptionID: extras.Options[0].ID},
			),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"answers[1]": "option does not belong to the category"}),
		},
		{
			name: "other marketing", method: http.MethodPost, path: visitsPath, token: app.getToken(t, f.mkt2),
			body:     newVisit(visit.Answer{CategoryID: floor.ID, OptionID: floor.Options[0].ID}),
			wantCode: http.StatusNotFound,
		},
	})

	var v visit.Visit
	rec := app.serve(t, http.MethodPost, visitsPath, mktToken, newVisit(
		visit.Answer{CategoryID: extras.ID, OptionID: extras.Options[2].ID},
		visit.Answer{CategoryID: floor.ID, OptionID: floor.Options[1].ID},
		visit.Answer{CategoryID: extras.ID, OptionID: extras.Options[0].ID},
	), &v)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: code = %v; body %s", rec.Code, rec.Body.String())
	}
	wantAnswers := []visit.Answer{
		{CategoryID: floor.ID, OptionID: floor.Options[1].ID},
		{CategoryID: extras.ID, OptionID: extras.Options[0].ID},
		{CategoryID: extras.ID, OptionID: extras.Options[2].ID},
	}
	if fmt.Sprint(v.Answers) != fmt.Sprint(wantAnswers) {
		t.Errorf("answers = %v; want %v", v.Answers, wantAnswers)
	}
	if v.UserID == nil || *v.UserID != f.mkt1.ID || v.UserName != f.mkt1.Name || v.LeadID != l.ID {
		t.Errorf("visit = %+v", v)
	}

	visitPath := fmt.Sprintf("/v1/visits/%d", v.ID)
	app.run(t, []httpTest{
		{name: "list", path: visitsPath, token: app.getToken(t, f.supervisor), wantData: marchallList(t, v)},
		{name: "detail", path: visitPath, token: mktToken, wantData: marchallObj(t, v)},
		{name: "detail (other marketing)", path: visitPath, token: app.getToken(t, f.mkt2), wantCode: http.StatusNotFound},
	})

	t.Run("update", func(t *testing.T) {
		summary := "Ukur ulang, ruang 12x16m"
		var got visit.Visit
		rec := app.serve(t, http.MethodPut, visitPath, mktToken, marchallObj(t, visit.UpdateVisit{
			Summary: &summary,
			Answers: []visit.Answer{{CategoryID: floor.ID, OptionID: floor.Options[0].ID}},
		}), &got)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		if got.Summary != summary || len(got.Answers) != 1 || got.Answers[0].OptionID != floor.Options[0].ID {
			t.Errorf("updated = %+v", got)
		}
	})

	rec = app.serve(t, http.MethodDelete, visitPath, mktToken, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: code = %v; body %s", rec.Code, rec.Body.String())
	}
	app.run(t, []httpTest{{name: "deleted", path: visitPath, token: mktToken, wantCode: http.StatusNotFound}})
}
