package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/thoughts/internal/auth"
	"github.com/sakif/thoughts/internal/handler"
	"github.com/sakif/thoughts/internal/mail"
	"github.com/sakif/thoughts/internal/model"
	"github.com/sakif/thoughts/internal/repository/sqlite"
	"github.com/sakif/thoughts/internal/service"
	"github.com/sakif/thoughts/internal/session"
	"github.com/sakif/thoughts/internal/storage"
)

const (
	testAPIBase  = "http://api.test/api/v2"
	testFrontEnd = "http://front.test"
	maxUpload    = 1 << 20
)

// =========================================================================
// FAKE COLLABORATORS
// =========================================================================

type captureMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

var verifyLink = regexp.MustCompile(`/users/verify/([A-Za-z0-9_.\-]+)`)

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no email sent")
	match := verifyLink.FindStringSubmatch(m.sent[len(m.sent)-1].HTML)
	require.Len(t, match, 2, "no verification link in email")
	return match[1]
}

type memStore struct {
	mu      sync.Mutex
	uploads int
}

func (s *memStore) Upload(_ context.Context, _ []byte, folder string) (storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads++
	id := folder + "/img"
	return storage.Object{ID: id, URL: "https://img.test/" + id}, nil
}

func (s *memStore) Delete(context.Context, string) (string, error) {
	return storage.ResultOK, nil
}

// =========================================================================
// HARNESS
// =========================================================================

// env wires the real services over an in-memory database.
type env struct {
	db       *sqlite.DB
	mailer   *captureMailer
	store    *memStore
	access   *auth.TokenService
	users    *handler.UserHandler
	oauth    *handler.OAuthHandler
	posts    *handler.PostHandler
	comments *handler.CommentHandler
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustTokens(t *testing.T, secret string, ttl time.Duration) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService(secret, ttl)
	require.NoError(t, err)
	return ts
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	comments, err := db.Comments("comments")
	require.NoError(t, err)

	e := &env{
		db:     db,
		mailer: &captureMailer{},
		store:  &memStore{},
		access: mustTokens(t, "access-secret-00000000000", auth.AccessTTL),
	}
	logger := testLogger()
	tokens := service.Tokens{
		Verification: mustTokens(t, "verification-secret-000000", auth.VerificationTTL),
		Access:       e.access,
		Refresh:      mustTokens(t, "refresh-secret-0000000000", auth.RefreshTTL),
	}
	links := service.Links{APIBaseURL: testAPIBase, FrontEndURL: testFrontEnd}

	accounts := service.NewAccountService(db.Users(), tokens, auth.NewPasswordServiceForTest(4), e.mailer, e.store, links, logger)
	sessions, err := session.NewManager(session.NewMemoryStore(), "session-secret-0000000000", time.Minute)
	require.NoError(t, err)
	federated := service.NewFederatedService(accounts, &stubProvider{}, sessions, logger)
	postSvc := service.NewPostService(db.Posts(), comments, db.Users(), e.store, logger)
	commentSvc := service.NewCommentService(comments, db.Posts(), db.Users(), logger)

	cookies := handler.Cookies{Secure: false}
	e.users = handler.NewUserHandler(accounts, cookies, maxUpload, logger)
	e.oauth = handler.NewOAuthHandler(federated, cookies, logger)
	e.posts = handler.NewPostHandler(postSvc, maxUpload, logger)
	e.comments = handler.NewCommentHandler(commentSvc, logger)
	return e
}

// seedUser stores a verified account and returns its identity.
func (e *env) seedUser(t *testing.T, userID, name, role string) auth.Identity {
	t.Helper()
	err := e.db.Users().Create(context.Background(), &model.User{
		UserID:        userID,
		Name:          name,
		Email:         strings.ToLower(name) + "@example.com",
		Role:          role,
		EmailVerified: true,
	})
	require.NoError(t, err)
	return auth.Identity{UserID: userID, Role: role}
}

// stubProvider sends the browser to a fixed consent URL. Exchange always fails.
type stubProvider struct{}

func (stubProvider) AuthURL(state string) string {
	return "https://accounts.test/auth?state=" + state
}

func (stubProvider) Exchange(context.Context, string) (*auth.GoogleUser, error) {
	return nil, io.ErrUnexpectedEOF
}

// =========================================================================
// REQUEST HELPERS
// =========================================================================

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

type upload struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, file *upload) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+file.field+`"; filename="`+file.filename+`"`)
		h.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// withParams sets chi URL params the way the router would.
func withParams(req *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// as attaches the identity that auth.RequireAuth would have set.
func as(req *http.Request, id auth.Identity) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), id))
}

type envelope struct {
	Success     bool                `json:"success"`
	Message     string              `json:"message"`
	DataFound   *int64              `json:"data_found"`
	Pagination  *service.Pagination `json:"pagination"`
	Data        json.RawMessage     `json:"data"`
	AccessToken string              `json:"accessToken"`
}

func serve(t *testing.T, h http.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rr := httptest.NewRecorder()
	h(rr, req)

	var body envelope
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	}
	return rr, body
}

func decodeData(t *testing.T, body envelope, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body.Data, v))
}

func cookieNamed(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
