package echoapi_test

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"

	echoapi "github.com/arishrdi/leads-aladdin-sub001/apps/api/echo"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
	"github.com/arishrdi/leads-aladdin-sub001/services/email"
	"github.com/arishrdi/leads-aladdin-sub001/testutil"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	testutil.CreateUser(t, app.usrRepo, "Mati", "mati", "mati@aladdin.id", testPassword, user.RoleMarketing, []int64{f.b1.ID}, false)

	body := func(uname, pwd string) []byte {
		return marchallObj(t, echoapi.LoginRequest{Username: uname, Password: pwd})
	}
	tests := []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/v1/users/login", body: body("", ""),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login", body: body("budi", "nope"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/users/login", body: body("ghost", testPassword),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/login", body: body("mati", testPassword),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	app.run(t, tests)

	t.Run("success by username or email", func(t *testing.T) {
		for _, uname := range []string{"BUDI", "budi@aladdin.id"} {
			var resp echoapi.LoginResponse
			rec := app.serve(t, http.MethodPost, "/v1/users/login", "", body(uname, testPassword), &resp)
			if rec.Code != http.StatusOK {
				t.Fatalf("login(%s) code = %v; body %s", uname, rec.Code, rec.Body.String())
			}

			claims := new(echoapi.Claims)
			_, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
				return []byte(app.conf.SecretKey), nil
			})
			if err != nil {
				t.Fatalf("jwt.ParseWithClaims() failed: %v", err)
			}
			if claims.UserID() != f.mkt1.ID || claims.Role != user.RoleMarketing {
				t.Errorf("claims = %+v; want user %d (marketing)", claims, f.mkt1.ID)
			}
		}

		usr, err := app.usrRepo.GetUser(context.Background(), user.GetFilter{ID: f.mkt1.ID})
		if err != nil {
			t.Fatalf("GetUser() failed: %v", err)
		}
		if usr.LastLogin.IsZero() {
			t.Error("last_login was not set")
		}
	})
}

func Test_userApi_auth(t *testing.T) {
	app := setup(t)
	f := app.seed(t)

	expired := echoapi.GetUserClaims(app.conf, f.mkt1)
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	expiredToken, err := echoapi.GenerateToken(app.conf, expired)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}
	ghostToken := app.getToken(t, user.User{ID: 9999, Role: user.RoleSuperUser})

	tests := []httpTest{
		{name: "missing token", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "expired token", path: "/v1/users/me", token: expiredToken, wantCode: http.StatusUnauthorized},
		{
			name: "deleted user", path: "/v1/users/me", token: ghostToken,
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "user not authenticated"}),
		},
		{name: "me", path: "/v1/users/me", token: app.getToken(t, f.mkt1), wantData: marchallObj(t, f.mkt1)},
	}
	app.run(t, tests)

	t.Run("deactivated after login", func(t *testing.T) {
		token := app.getToken(t, f.mkt2)
		f.mkt2.IsActive = false
		if _, err := app.usrRepo.UpdateUser(context.Background(), f.mkt2); err != nil {
			t.Fatalf("UpdateUser() failed: %v", err)
		}
		rec := app.serve(t, http.MethodGet, "/v1/users/me", token, nil, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("token refresh", func(t *testing.T) {
		var resp echoapi.LoginResponse
		rec := app.serve(t, http.MethodPost, "/v1/users/token-refresh", app.getToken(t, f.admin), nil, &resp)
		if rec.Code != http.StatusOK || resp.Token == "" {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}

		stale := echoapi.GetUserClaims(app.conf, f.admin, time.Now().Add(-5*time.Hour).Unix())
		staleToken, err := echoapi.GenerateToken(app.conf, stale)
		if err != nil {
			t.Fatalf("GenerateToken() failed: %v", err)
		}
		rec = app.serve(t, http.MethodPost, "/v1/users/token-refresh", staleToken, nil, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("stale refresh code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	adminToken := app.getToken(t, f.admin)

	path := func(search string, branchID int64, isActive string, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if branchID != 0 {
			v.Add("branch_id", strconv.FormatInt(branchID, 10))
		}
		if isActive != "" {
			v.Add("is_active", isActive)
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}

	tests := []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "super user required", path: "/v1/users", token: app.getToken(t, f.supervisor),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "all", path: "/v1/users", token: adminToken, wantData: marchallList(t, f.admin, f.supervisor, f.mkt1, f.mkt2)},
		{name: "search", path: path("RIN", 0, ""), token: adminToken, wantData: marchallList(t, f.mkt2)},
		{name: "role", path: path("", 0, "", user.RoleMarketing), token: adminToken, wantData: marchallList(t, f.mkt1, f.mkt2)},
		{name: "branch", path: path("", f.b1.ID, ""), token: adminToken, wantData: marchallList(t, f.supervisor, f.mkt1)},
		{name: "inactive", path: path("", 0, "false"), token: adminToken, wantData: marchallList(t)},
		{
			name: "bad is_active", path: path("", 0, "maybe"), token: adminToken, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"is_active": "must be a boolean"}),
		},
		{name: "roles", path: "/v1/users/roles", token: adminToken, wantData: marchallObj(t, user.Roles)},
		{name: "detail", path: "/v1/users/" + strconv.FormatInt(f.mkt1.ID, 10), token: adminToken, wantData: marchallObj(t, f.mkt1)},
		{name: "detail (unknown)", path: "/v1/users/9999", token: adminToken, wantCode: http.StatusNotFound},
		{name: "detail (malformed)", path: "/v1/users/abc", token: adminToken, wantCode: http.StatusNotFound},
	}
	app.run(t, tests)
}

func Test_userApi_create(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	adminToken := app.getToken(t, f.admin)

	body := func(nu user.NewUser) []byte { return marchallObj(t, nu) }
	valid := user.NewUser{
		Name:            "Joko",
		Username:        "joko",
		Email:           "joko@aladdin.id",
		Password:        testPassword,
		PasswordConfirm: testPassword,
		Role:            user.RoleMarketing,
		BranchIDs:       []int64{f.b2.ID},
	}

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name   string
			modify func(nu *user.NewUser)
			field  string
		}{
			{name: "unknown role", modify: func(nu *user.NewUser) { nu.Role = "boss" }, field: "role"},
			{name: "password mismatch", modify: func(nu *user.NewUser) { nu.PasswordConfirm = "other" }, field: "password_confirm"},
			{name: "username taken", modify: func(nu *user.NewUser) { nu.Username = "budi" }, field: "username"},
			{name: "marketing without branch", modify: func(nu *user.NewUser) { nu.BranchIDs = nil }, field: "branch_ids"},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				nu := valid
				tc.modify(&nu)
				var resp map[string]string
				rec := app.serve(t, http.MethodPost, "/v1/users", adminToken, body(nu), &resp)
				if rec.Code != http.StatusBadRequest {
					t.Fatalf("code = %v; want %v (body %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
				}
				if _, ok := resp[tc.field]; !ok {
					t.Errorf("errors = %v; want an error on %q", resp, tc.field)
				}
			})
		}
	})

	t.Run("created", func(t *testing.T) {
		var usr user.User
		rec := app.serve(t, http.MethodPost, "/v1/users", adminToken, body(valid), &usr)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		if usr.ID == 0 || usr.Role != user.RoleMarketing || !usr.IsActive || len(usr.BranchIDs) != 1 || usr.BranchIDs[0] != f.b2.ID {
			t.Errorf("created user = %+v", usr)
		}
		if strings.Contains(rec.Body.String(), "password") {
			t.Error("password hash must not be serialized")
		}
	})
}

func Test_userApi_updateAndDelete(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	adminToken := app.getToken(t, f.admin)
	idPath := func(usr user.User) string { return "/v1/users/" + strconv.FormatInt(usr.ID, 10) }

	t.Run("me cannot change role", func(t *testing.T) {
		rec := app.serve(t, http.MethodPut, "/v1/users/me", app.getToken(t, f.mkt1),
			marchallObj(t, map[string]string{"role": user.RoleSuperUser}), nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("me renames", func(t *testing.T) {
		var usr user.User
		rec := app.serve(t, http.MethodPut, "/v1/users/me", app.getToken(t, f.mkt1),
			marchallObj(t, map[string]string{"name": "Budi Santoso"}), &usr)
		if rec.Code != http.StatusOK || usr.Name != "Budi Santoso" || usr.Role != user.RoleMarketing {
			t.Errorf("code = %v; user %+v", rec.Code, usr)
		}
	})

	t.Run("admin moves marketing to another branch", func(t *testing.T) {
		var usr user.User
		rec := app.serve(t, http.MethodPut, idPath(f.mkt2), adminToken,
			marchallObj(t, map[string]interface{}{"branch_ids": []int64{f.b1.ID}}), &usr)
		if rec.Code != http.StatusOK || len(usr.BranchIDs) != 1 || usr.BranchIDs[0] != f.b1.ID {
			t.Errorf("code = %v; user %+v", rec.Code, usr)
		}
	})

	t.Run("admin cannot demote themselves", func(t *testing.T) {
		rec := app.serve(t, http.MethodPut, idPath(f.admin), adminToken,
			marchallObj(t, map[string]string{"role": user.RoleMarketing}), nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("admin cannot delete themselves", func(t *testing.T) {
		rec := app.serve(t, http.MethodDelete, idPath(f.admin), adminToken, nil, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
		rec = app.serve(t, http.MethodDelete, "/v1/users?id="+strconv.FormatInt(f.admin.ID, 10), adminToken, nil, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("multiple: code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("owner of leads cannot be deleted", func(t *testing.T) {
		testutil.CreateLead(t, app.leadRepo, f.b1.ID, f.mkt1.ID, "Al Ikhlas", "6281234567890")
		rec := app.serve(t, http.MethodDelete, idPath(f.mkt1), adminToken, nil, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want %v (body %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("deleted", func(t *testing.T) {
		rec := app.serve(t, http.MethodDelete, idPath(f.supervisor), adminToken, nil, nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		rec = app.serve(t, http.MethodGet, idPath(f.supervisor), adminToken, nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusNotFound)
		}
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	emailsvc.ResetSentMessages()

	body := marchallObj(t, echoapi.PasswordResetRequest{Email: "nobody@aladdin.id"})
	rec := app.serve(t, http.MethodPost, "/v1/users/password-reset", "", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown email: code = %v", rec.Code)
	}
	if n := len(emailsvc.SentMessages()); n != 0 {
		t.Fatalf("unknown email: %d messages sent; want 0", n)
	}

	body = marchallObj(t, echoapi.PasswordResetRequest{Email: f.mkt1.Email})
	rec = app.serve(t, http.MethodPost, "/v1/users/password-reset", "", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v", rec.Code)
	}
	sent := emailsvc.SentMessages()
	if len(sent) != 1 || sent[0].To[0].Address != f.mkt1.Email {
		t.Fatalf("sent = %+v; want one message to %s", sent, f.mkt1.Email)
	}

	rec = app.serve(t, http.MethodPost, "/v1/users/password-reset-confirm", "", marchallObj(t, user.ResetUserPassword{
		Token: "bogus", UID: "bogus", Password: testPassword + "!", PasswordConfirm: testPassword + "!",
	}), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus token: code = %v; want %v", rec.Code, http.StatusBadRequest)
	}
}
