package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/thoughts/internal/apperror"
	"github.com/sakif/thoughts/internal/auth"
	"github.com/sakif/thoughts/internal/service"
)

// RefreshCookieName carries the refresh token. It is never readable from
// JavaScript.
const RefreshCookieName = "refreshToken"

var refreshMaxAge = auth.RefreshTTL

// Cookies controls the attributes of the cookies the API sets.
//
// The front end lives on another origin, so in production the cookies are
// Secure with SameSite=None. Browsers drop SameSite=None cookies without
// Secure, so plain-HTTP development falls back to Lax.
type Cookies struct {
	Secure bool
}

func (c Cookies) sameSite() http.SameSite {
	if c.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (c Cookies) set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
	})
}

func (c Cookies) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
	})
}

// UserHandler serves the /users endpoints backed by AccountService.
type UserHandler struct {
	accounts  *service.AccountService
	cookies   Cookies
	maxUpload int64
	logger    *slog.Logger
}

func NewUserHandler(accounts *service.AccountService, cookies Cookies, maxUpload int64, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		accounts:  accounts,
		cookies:   cookies,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// HandleRegister creates an account.
//
// HTTP: POST /users/create-user (multipart: name, email, password, avatar?)
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(w, r, h.maxUpload, "avatar", "name", "email", "password")
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Name:     form.get("name"),
		Email:    form.get("email"),
		Password: form.get("password"),
		Avatar:   form.image,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if !res.EmailSent {
		h.logger.Warn("registration completed without verification email",
			slog.String("userID", res.User.UserID))
	}
	writeSuccess(w, http.StatusOK,
		fmt.Sprintf("Please go to your email at- %s and complete registration process", res.User.Email), nil)
}

// HandleVerify consumes the emailed token and redirects the browser.
//
// HTTP: GET /users/verify/{token}
func (h *UserHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	to, err := h.accounts.Activate(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, to, http.StatusFound)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin checks the password, sets the refresh cookie and returns
// the access token in the body.
//
// HTTP: POST /users/auth-user-login {"email": "...", "password": "..."}
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeLogin(w, res)
}

func (h *UserHandler) writeLogin(w http.ResponseWriter, res *service.LoginResult) {
	h.cookies.set(w, RefreshCookieName, res.RefreshToken, refreshMaxAge)
	writeJSON(w, http.StatusOK, Envelope{
		Success:     true,
		Message:     "User logged in successfully",
		Data:        res.Identity,
		AccessToken: res.AccessToken,
	})
}

// HandleLogout clears the refresh cookie. Issued tokens stay valid until
// they expire; there is no server-side revocation.
//
// HTTP: POST /users/auth-user-logout
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w, RefreshCookieName)
	writeSuccess(w, http.StatusOK, "User logged out successfully", nil)
}

// HandleRefresh issues a new access token from the refresh cookie.
//
// HTTP: GET /users/auth-manage-token
func (h *UserHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		token = c.Value
	}

	access, err := h.accounts.Refresh(token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Success:     true,
		Message:     "New access token generate successfully",
		AccessToken: access,
	})
}

// HandleCurrentUser returns the caller's profile. The password hash is
// never serialized.
//
// HTTP: GET|POST /users/find-current-user
func (h *UserHandler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	user, err := h.accounts.CurrentUser(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User retrieved successfully", user)
}

// HandleListUsers lists accounts for admins.
//
// HTTP: GET /users/get-all?search=&page=&limit=
func (h *UserHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := h.accounts.ListUsers(r.Context(), pageQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, "Users retrieved successfully", page)
}

type flagRequest struct {
	Value *bool `json:"value"`
}

// HandleBan sets or clears the banned flag.
//
// HTTP: PATCH /users/ban/{userId} {"value": true}
func (h *UserHandler) HandleBan(w http.ResponseWriter, r *http.Request) {
	h.handleFlag(w, r, h.accounts.SetBanned, "User ban status updated successfully")
}

// HandleRemove sets or clears the deleted flag.
//
// HTTP: PATCH /users/remove/{userId} {"value": true}
func (h *UserHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	h.handleFlag(w, r, h.accounts.SetDeleted, "User delete status updated successfully")
}

type flagSetter func(ctx context.Context, actor auth.Identity, userID string, value bool) error

func (h *UserHandler) handleFlag(w http.ResponseWriter, r *http.Request, set flagSetter, message string) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req flagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Value == nil {
		writeError(w, apperror.ValidationFailed("value", "value must be true or false"))
		return
	}

	if err := set(r.Context(), id, chi.URLParam(r, "userId"), *req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, message, nil)
}

// pageQuery reads search, page and limit. Malformed numbers fall back to
// the defaults.
func pageQuery(r *http.Request) service.PageQuery {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return service.PageQuery{
		Search: q.Get("search"),
		Page:   page,
		Limit:  limit,
	}
}
