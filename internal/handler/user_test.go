package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/thoughts/internal/auth"
	"github.com/sakif/thoughts/internal/handler"
	"github.com/sakif/thoughts/internal/model"
)

func register(t *testing.T, e *env, name, email, password string) {
	t.Helper()
	req := jsonRequest(t, http.MethodPost, "/users/create-user", map[string]string{
		"name": name, "email": email, "password": password,
	})
	rr, body := serve(t, e.users.HandleRegister, req)
	require.Equal(t, http.StatusOK, rr.Code, body.Message)
}

func verify(t *testing.T, e *env, token string) string {
	t.Helper()
	req := withParams(jsonRequest(t, http.MethodGet, "/users/verify/"+token, nil), "token", token)
	rr, _ := serve(t, e.users.HandleVerify, req)
	require.Equal(t, http.StatusFound, rr.Code)
	return rr.Header().Get("Location")
}

func login(t *testing.T, e *env, email, password string) (int, envelope, *http.Cookie) {
	t.Helper()
	req := jsonRequest(t, http.MethodPost, "/users/auth-user-login", map[string]string{
		"email": email, "password": password,
	})
	rr, body := serve(t, e.users.HandleLogin, req)
	return rr.Code, body, cookieNamed(rr, handler.RefreshCookieName)
}

// Register, fail with a bad token, verify, then log in.
func TestRegistrationFlow(t *testing.T) {
	e := newEnv(t)

	req := jsonRequest(t, http.MethodPost, "/users/create-user", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "Passw0rd!",
	})
	rr, body := serve(t, e.users.HandleRegister, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, body.Success)
	assert.Equal(t, "Please go to your email at- alice@example.com and complete registration process", body.Message)

	code, body, _ := login(t, e, "alice@example.com", "Passw0rd!")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, body.Message, "You are not verified")

	assert.Equal(t, testFrontEnd+"/expired-credentials", verify(t, e, "not-a-token"))
	assert.Equal(t, testFrontEnd+"/login", verify(t, e, e.mailer.lastToken(t)))

	code, body, cookie := login(t, e, "alice@example.com", "Passw0rd!")
	require.Equal(t, http.StatusOK, code, body.Message)
	assert.Equal(t, "User logged in successfully", body.Message)
	assert.NotEmpty(t, body.AccessToken)

	var id auth.Identity
	decodeData(t, body, &id)
	assert.True(t, strings.HasPrefix(id.UserID, "1-"))
	assert.Equal(t, model.RoleUser, id.Role)

	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, int(auth.RefreshTTL.Seconds()), cookie.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	got, err := e.access.Verify(body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestRegister_Errors(t *testing.T) {
	e := newEnv(t)
	register(t, e, "Alice", "alice@example.com", "Passw0rd!")

	tests := []struct {
		name     string
		fields   map[string]string
		status   int
		contains string
	}{
		{"duplicate email", map[string]string{"name": "Alias", "email": "ALICE@example.com", "password": "Passw0rd!"}, http.StatusConflict, "Email already exists"},
		{"missing name", map[string]string{"email": "b@example.com", "password": "Passw0rd!"}, http.StatusBadRequest, "Name is required"},
		{"bad email", map[string]string{"name": "Bobby", "email": "nope", "password": "Passw0rd!"}, http.StatusBadRequest, "Invalid email address"},
		{"short password", map[string]string{"name": "Bobby", "email": "b@example.com", "password": "pa55"}, http.StatusBadRequest, "Password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := serve(t, e.users.HandleRegister, jsonRequest(t, http.MethodPost, "/users/create-user", tt.fields))
			assert.Equal(t, tt.status, rr.Code)
			assert.False(t, body.Success)
			assert.Contains(t, body.Message, tt.contains)
		})
	}
}

func TestRegister_Avatar(t *testing.T) {
	e := newEnv(t)
	fields := map[string]string{"name": "Alice", "email": "alice@example.com", "password": "Passw0rd!"}

	bad := multipartRequest(t, http.MethodPost, "/users/create-user", fields,
		&upload{field: "avatar", filename: "doc.gif", contentType: "image/gif", data: []byte("GIF89a")})
	rr, body := serve(t, e.users.HandleRegister, bad)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Only .png, .jpg and .jpeg .jfif format allowed!", body.Message)
	assert.Zero(t, e.store.uploads)

	big := multipartRequest(t, http.MethodPost, "/users/create-user", fields,
		&upload{field: "avatar", filename: "me.png", contentType: "image/png", data: make([]byte, maxUpload+1)})
	rr, body = serve(t, e.users.HandleRegister, big)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, body.Message, "File too large")

	good := multipartRequest(t, http.MethodPost, "/users/create-user", fields,
		&upload{field: "avatar", filename: "me.png", contentType: "image/png", data: []byte("png-bytes")})
	rr, body = serve(t, e.users.HandleRegister, good)
	require.Equal(t, http.StatusOK, rr.Code, body.Message)
	assert.Equal(t, 1, e.store.uploads)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	e := newEnv(t)
	register(t, e, "Alice", "alice@example.com", "Passw0rd!")
	verify(t, e, e.mailer.lastToken(t))

	for _, creds := range [][2]string{
		{"alice@example.com", "Wr0ngPassword"},
		{"nobody@example.com", "Passw0rd!"},
	} {
		code, body, cookie := login(t, e, creds[0], creds[1])
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "Invalid credentials", body.Message)
		assert.Nil(t, cookie)
	}

	code, body, _ := login(t, e, "", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Email and password are required", body.Message)
}

func TestLogin_MalformedBody(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/users/auth-user-login", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rr, body := serve(t, e.users.HandleLogin, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, body.Success)
}

func TestRefreshAndLogout(t *testing.T) {
	e := newEnv(t)
	register(t, e, "Alice", "alice@example.com", "Passw0rd!")
	verify(t, e, e.mailer.lastToken(t))
	_, _, cookie := login(t, e, "alice@example.com", "Passw0rd!")
	require.NotNil(t, cookie)

	rr, body := serve(t, e.users.HandleRefresh, jsonRequest(t, http.MethodGet, "/users/auth-manage-token", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Refresh token not found. Login first", body.Message)

	req := jsonRequest(t, http.MethodGet, "/users/auth-manage-token", nil)
	req.AddCookie(&http.Cookie{Name: handler.RefreshCookieName, Value: "garbage"})
	rr, body = serve(t, e.users.HandleRefresh, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid refresh token. Please Login", body.Message)

	req = jsonRequest(t, http.MethodGet, "/users/auth-manage-token", nil)
	req.AddCookie(cookie)
	rr, body = serve(t, e.users.HandleRefresh, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "New access token generate successfully", body.Message)
	_, err := e.access.Verify(body.AccessToken)
	assert.NoError(t, err)

	rr, body = serve(t, e.users.HandleLogout, jsonRequest(t, http.MethodPost, "/users/auth-user-logout", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, body.Success)
	cleared := cookieNamed(rr, handler.RefreshCookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
}

func TestCurrentUser(t *testing.T) {
	e := newEnv(t)
	alice := e.seedUser(t, "1-alice", "Alice", model.RoleUser)

	req := as(jsonRequest(t, http.MethodGet, "/users/find-current-user", nil), alice)
	rr, body := serve(t, e.users.HandleCurrentUser, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, string(body.Data), "password")

	var u model.User
	decodeData(t, body, &u)
	assert.Equal(t, "alice@example.com", u.Email)

	rr, _ = serve(t, e.users.HandleCurrentUser, jsonRequest(t, http.MethodGet, "/users/find-current-user", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	ghost := as(jsonRequest(t, http.MethodGet, "/users/find-current-user", nil), auth.Identity{UserID: "9-ghost", Role: model.RoleUser})
	rr, _ = serve(t, e.users.HandleCurrentUser, ghost)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListUsers(t *testing.T) {
	e := newEnv(t)
	admin := e.seedUser(t, "1-admin", "Admin", model.RoleAdmin)
	e.seedUser(t, "2-bob", "Bob", model.RoleUser)
	e.seedUser(t, "3-cat", "Cat", model.RoleUser)

	req := as(jsonRequest(t, http.MethodGet, "/users/get-all?limit=2&page=1", nil), admin)
	rr, body := serve(t, e.users.HandleListUsers, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, body.DataFound)
	assert.EqualValues(t, 3, *body.DataFound)
	require.NotNil(t, body.Pagination)
	assert.Equal(t, 2, body.Pagination.TotalPages)
	assert.Nil(t, body.Pagination.PreviousPage)
	require.NotNil(t, body.Pagination.NextPage)
	assert.Equal(t, 2, *body.Pagination.NextPage)

	var users []model.User
	decodeData(t, body, &users)
	assert.Len(t, users, 2)
}

func TestModeration(t *testing.T) {
	e := newEnv(t)
	admin := e.seedUser(t, "1-admin", "Admin", model.RoleAdmin)
	bob := e.seedUser(t, "2-bob", "Bob", model.RoleUser)

	ban := func(actor auth.Identity, target string, body any) (int, envelope) {
		req := withParams(jsonRequest(t, http.MethodPatch, "/users/ban/"+target, body), "userId", target)
		rr, out := serve(t, e.users.HandleBan, as(req, actor))
		return rr.Code, out
	}

	code, body := ban(admin, bob.UserID, map[string]bool{"value": true})
	require.Equal(t, http.StatusOK, code, body.Message)
	u, err := e.db.Users().GetByUserID(t.Context(), bob.UserID)
	require.NoError(t, err)
	assert.True(t, u.BannedUser)

	code, body = ban(admin, bob.UserID, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "value must be true or false", body.Message)

	code, _ = ban(bob, admin.UserID, map[string]bool{"value": true})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = ban(admin, admin.UserID, map[string]bool{"value": true})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = ban(admin, "9-ghost", map[string]bool{"value": true})
	assert.Equal(t, http.StatusNotFound, code)

	req := withParams(jsonRequest(t, http.MethodPatch, "/users/remove/"+bob.UserID, map[string]bool{"value": true}), "userId", bob.UserID)
	rr, _ := serve(t, e.users.HandleRemove, as(req, admin))
	require.Equal(t, http.StatusOK, rr.Code)
	u, err = e.db.Users().GetByUserID(t.Context(), bob.UserID)
	require.NoError(t, err)
	assert.True(t, u.DeletedUser)
}
