package tests

import (
	"net/http"
	"testing"

	echoapi "github.com/skoolpay/skoolpay/apps/api/echo"
	"github.com/skoolpay/skoolpay/core/account"
	testutil "github.com/skoolpay/skoolpay/tests"
)

func TestAuthAPI(t *testing.T) {
	app := setup(t)

	usr := testutil.CreateUser(t, app.accountRepo, "Awe Some", "awe@test.pk", "LeeroyJenkins", account.RoleParent, "", true)
	testutil.CreateUser(t, app.accountRepo, "No More", "nomore@test.pk", "LeeroyJenkins", account.RoleParent, "", false)

	t.Run("login", func(t *testing.T) {
		body := marshallObj(t, echoapi.LoginRequest{Email: "awe@test.pk", Password: "LeeroyJenkins"})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		checkCode(t, app.do(req, rec), http.StatusOK)

		var resp echoapi.LoginResponse
		decodeObj(t, rec.Body, &resp)
		if resp.Token == "" {
			t.Error("empty token returned")
		}
	})

	t.Run("login bad password", func(t *testing.T) {
		body := marshallObj(t, echoapi.LoginRequest{Email: "awe@test.pk", Password: "lol"})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		checkCode(t, app.do(req, rec), http.StatusBadRequest)
	})

	t.Run("login unknown email", func(t *testing.T) {
		body := marshallObj(t, echoapi.LoginRequest{Email: "lol@test.pk", Password: "lol"})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		checkCode(t, app.do(req, rec), http.StatusBadRequest)
	})

	t.Run("login deactivated account", func(t *testing.T) {
		body := marshallObj(t, echoapi.LoginRequest{Email: "nomore@test.pk", Password: "LeeroyJenkins"})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		checkCode(t, app.do(req, rec), http.StatusForbidden)
	})

	t.Run("missing token", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/users")
		checkCode(t, app.do(req, rec), http.StatusUnauthorized)
	})

	t.Run("token refresh", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", app.getToken(t, usr))
		checkCode(t, app.do(req, rec), http.StatusOK)

		var resp echoapi.LoginResponse
		decodeObj(t, rec.Body, &resp)
		if resp.Token == "" {
			t.Error("empty token returned")
		}
	})

	t.Run("password reset request", func(t *testing.T) {
		body := marshallObj(t, echoapi.PasswordResetRequest{Email: "awe@test.pk"})
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", body)
		checkCode(t, app.do(req, rec), http.StatusOK)
	})

	t.Run("password reset request unknown email", func(t *testing.T) {
		// same response either way; no account enumeration
		body := marshallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.pk"})
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", body)
		checkCode(t, app.do(req, rec), http.StatusOK)
	})
}

func TestAccountAPI(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, app.accountRepo, "Admin", "admin@test.pk", "LeeroyJenkins", account.RoleAdmin, "", true)
	parent := testutil.CreateUser(t, app.accountRepo, "Parent", "parent@test.pk", "LeeroyJenkins", account.RoleParent, "", true)

	adminToken := app.getToken(t, admin)
	parentToken := app.getToken(t, parent)

	t.Run("signup", func(t *testing.T) {
		body := marshallObj(t, account.NewUser{
			Name: "Self Served", Email: "self@test.pk",
			Password: "LolC@t123", PasswordConfirm: "LolC@t123",
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/signup", body)
		checkCode(t, app.do(req, rec), http.StatusCreated)

		var usr account.User
		decodeObj(t, rec.Body, &usr)
		if !usr.IsParent() {
			t.Errorf("Role = %s, want %s", usr.Role, account.RoleParent)
		}
	})

	t.Run("signup cannot claim other roles", func(t *testing.T) {
		body := marshallObj(t, account.NewUser{
			Name: "Sneaky", Email: "sneaky@test.pk", Role: account.RoleAdmin,
			Password: "LolC@t123", PasswordConfirm: "LolC@t123",
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/signup", body)
		checkCode(t, app.do(req, rec), http.StatusBadRequest)
	})

	t.Run("register requires admin", func(t *testing.T) {
		body := marshallObj(t, account.NewUser{
			Name: "New Parent", Email: "new@test.pk", Role: account.RoleParent,
			Password: "LolC@t123", PasswordConfirm: "LolC@t123",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/register", parentToken, body)
		checkCode(t, app.do(req, rec), http.StatusForbidden)
	})

	t.Run("register", func(t *testing.T) {
		body := marshallObj(t, account.NewUser{
			Name: "New Parent", Email: "new@test.pk", Role: account.RoleParent,
			Password: "LolC@t123", PasswordConfirm: "LolC@t123",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/register", adminToken, body)
		checkCode(t, app.do(req, rec), http.StatusCreated)

		var usr account.User
		decodeObj(t, rec.Body, &usr)
		if usr.Email != "new@test.pk" {
			t.Errorf("Email = %s, want new@test.pk", usr.Email)
		}
	})

	t.Run("register duplicate email", func(t *testing.T) {
		body := marshallObj(t, account.NewUser{
			Name: "Dupe", Email: parent.Email, Role: account.RoleParent,
			Password: "LolC@t123", PasswordConfirm: "LolC@t123",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/register", adminToken, body)
		checkCode(t, app.do(req, rec), http.StatusBadRequest)
	})

	t.Run("query requires admin", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users", parentToken)
		checkCode(t, app.do(req, rec), http.StatusForbidden)
	})

	t.Run("query", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users", adminToken)
		checkCode(t, app.do(req, rec), http.StatusOK)

		var users []account.User
		decodeObj(t, rec.Body, &users)
		if len(users) < 2 {
			t.Errorf("len(users) = %d, want at least 2", len(users))
		}
	})

	t.Run("retrieve self", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+parent.ID, parentToken)
		checkCode(t, app.do(req, rec), http.StatusOK)

		var usr account.User
		decodeObj(t, rec.Body, &usr)
		if usr.ID != parent.ID {
			t.Errorf("ID = %s, want %s", usr.ID, parent.ID)
		}
	})

	t.Run("retrieve other is hidden", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+admin.ID, parentToken)
		checkCode(t, app.do(req, rec), http.StatusNotFound)
	})

	t.Run("non-admin cannot deactivate", func(t *testing.T) {
		isActive := false
		body := marshallObj(t, account.UpdateUser{Name: "Parent", IsActive: &isActive})
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+parent.ID, parentToken, body)
		checkCode(t, app.do(req, rec), http.StatusForbidden)
	})

	t.Run("update self", func(t *testing.T) {
		body := marshallObj(t, account.UpdateUser{Name: "Renamed Parent"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+parent.ID, parentToken, body)
		checkCode(t, app.do(req, rec), http.StatusOK)

		var usr account.User
		decodeObj(t, rec.Body, &usr)
		if usr.Name != "Renamed Parent" {
			t.Errorf("Name = %s, want Renamed Parent", usr.Name)
		}
	})

	t.Run("no self delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+admin.ID, adminToken)
		checkCode(t, app.do(req, rec), http.StatusForbidden)
	})

	t.Run("delete", func(t *testing.T) {
		goner := testutil.CreateUser(t, app.accountRepo, "Goner", "goner@test.pk", "mdr", account.RoleParent, "", true)
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+goner.ID, adminToken)
		checkCode(t, app.do(req, rec), http.StatusNoContent)

		req, rec = newAuthRequest(http.MethodGet, "/v1/users/"+goner.ID, adminToken)
		checkCode(t, app.do(req, rec), http.StatusNotFound)
	})

	t.Run("roles", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/roles", adminToken)
		checkCodeAndData(t, app.do(req, rec), http.StatusOK, marshallObj(t, account.AllRoles))
	})
}
