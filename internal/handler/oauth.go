package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/thoughts/internal/service"
	"github.com/sakif/thoughts/internal/session"
)

// OAuthHandler manages the Google login flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleStart    → open a handshake session and redirect to Google
//   - HandleCallback → check the session, exchange the code, set the refresh cookie
//
// The browser never sees a JSON body during the flow itself; every outcome
// of the callback is a redirect to the front end.
type OAuthHandler struct {
	federated *service.FederatedService
	cookies   Cookies
	logger    *slog.Logger
}

func NewOAuthHandler(federated *service.FederatedService, cookies Cookies, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		federated: federated,
		cookies:   cookies,
		logger:    logger,
	}
}

// HandleStart redirects the user to Google's consent page.
//
// HTTP: GET /users/google
//
// The session cookie is signed and names a server-side session holding the
// state value. The callback must present both.
func (h *OAuthHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	cookie, target, err := h.federated.Start(r.Context())
	if err != nil {
		h.logger.Error("oauth start: opening session failed", slog.String("error", err.Error()))
		http.Redirect(w, r, h.federated.FailureRedirect(), http.StatusSeeOther)
		return
	}

	h.cookies.set(w, session.CookieName, cookie, time.Duration(h.federated.SessionTTL())*time.Second)
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// HandleCallback completes the login.
//
// HTTP: GET /users/google/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Reject provider errors (user denied consent)
//  2. Consume the handshake session and compare its state
//  3. Exchange the code and resolve the local account
//  4. Set the refresh cookie and redirect to the success page
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	failure := h.federated.FailureRedirect()

	var cookie string
	if c, err := r.Cookie(session.CookieName); err == nil {
		cookie = c.Value
	}
	// Single use, whatever the outcome.
	h.cookies.clear(w, session.CookieName)

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("oauth callback: provider returned error", slog.String("error", errParam))
		http.Redirect(w, r, failure, http.StatusSeeOther)
		return
	}
	if q.Get("code") == "" {
		h.logger.Warn("oauth callback: missing code")
		http.Redirect(w, r, failure, http.StatusSeeOther)
		return
	}

	res, err := h.federated.Callback(r.Context(), cookie, q.Get("state"), q.Get("code"))
	if err != nil {
		h.logger.Warn("oauth callback failed", slog.String("error", err.Error()))
		http.Redirect(w, r, failure, http.StatusSeeOther)
		return
	}

	h.logger.Info("user authenticated with google", slog.String("userID", res.User.UserID))
	h.cookies.set(w, RefreshCookieName, res.RefreshToken, refreshMaxAge)
	http.Redirect(w, r, h.federated.SuccessRedirect(), http.StatusSeeOther)
}

// HandleLoginFailure answers the front end when the flow did not complete.
// It is mounted even when Google login is disabled.
//
// HTTP: GET /users/google-login/failure
func HandleLoginFailure(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusUnauthorized, Envelope{Message: "Login failed"})
}
