package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/thoughts/internal/apperror"
	"github.com/sakif/thoughts/internal/auth"
	"github.com/sakif/thoughts/internal/mail"
	"github.com/sakif/thoughts/internal/model"
	"github.com/sakif/thoughts/internal/repository"
	"github.com/sakif/thoughts/internal/session"
	"github.com/sakif/thoughts/internal/storage"
)

// =========================================================================
// FAKE REPOSITORIES
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository. It stores copies
// so tests cannot mutate records behind the service's back.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
	order []string

	createErr error
	countErr  error
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		if user.Email != "" && u.Email == user.Email {
			return apperror.Conflict("Email already exists. Please login")
		}
		if user.GoogleID != "" && u.GoogleID == user.GoogleID {
			return apperror.Conflict("Google account already linked")
		}
	}
	user.CreatedAt = time.Now().UTC()
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	stored := *user
	f.users[user.UserID] = &stored
	f.order = append(f.order, user.UserID)
	return nil
}

func (f *fakeUserRepo) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.users)), nil
}

func (f *fakeUserRepo) GetByUserID(_ context.Context, userID string) (*model.User, error) {
	return f.find(userID, func(u *model.User) bool { return u.UserID == userID })
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return f.find(email, func(u *model.User) bool { return u.Email == email })
}

func (f *fakeUserRepo) GetByGoogleID(_ context.Context, googleID string) (*model.User, error) {
	return f.find(googleID, func(u *model.User) bool { return u.GoogleID != "" && u.GoogleID == googleID })
}

func (f *fakeUserRepo) find(value string, match func(*model.User) bool) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, apperror.NotFound("user", value)
}

func (f *fakeUserRepo) GetAuthors(_ context.Context, userIDs []string) (map[string]model.Author, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]model.Author)
	for _, id := range userIDs {
		if u, ok := f.users[id]; ok {
			out[id] = model.Author{Name: u.Name, Avatar: u.Avatar}
		}
	}
	return out, nil
}

func (f *fakeUserRepo) List(_ context.Context, opts repository.ListOptions) ([]model.User, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []model.User
	for i := len(f.order) - 1; i >= 0; i-- {
		u := f.users[f.order[i]]
		if opts.Search != "" && !containsFold(u.Name, opts.Search) && !containsFold(u.Email, opts.Search) {
			continue
		}
		matched = append(matched, *u)
	}
	return paginate(matched, opts), int64(len(matched)), nil
}

func (f *fakeUserRepo) MarkEmailVerified(_ context.Context, userID string) error {
	return f.update(userID, func(u *model.User) { u.EmailVerified = true })
}

func (f *fakeUserRepo) LinkGoogleID(_ context.Context, userID, googleID string, clearPassword bool) error {
	return f.update(userID, func(u *model.User) {
		u.GoogleID = googleID
		if clearPassword {
			u.Password = ""
		}
	})
}

func (f *fakeUserRepo) SetBanned(_ context.Context, userID string, banned bool) error {
	return f.update(userID, func(u *model.User) { u.BannedUser = banned })
}

func (f *fakeUserRepo) SetDeleted(_ context.Context, userID string, deleted bool) error {
	return f.update(userID, func(u *model.User) { u.DeletedUser = deleted })
}

func (f *fakeUserRepo) update(userID string, fn func(*model.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	fn(u)
	return nil
}

// get returns the stored record without copying, for assertions.
func (f *fakeUserRepo) get(userID string) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID]
}

// fakePostRepo is an in-memory repository.PostRepository.
type fakePostRepo struct {
	mu    sync.Mutex
	posts map[string]*model.Post
	order []string

	incrementErr error
	setCountErr  map[string]error
	deleted      []string
}

var _ repository.PostRepository = (*fakePostRepo)(nil)

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{posts: make(map[string]*model.Post)}
}

func clonePost(p *model.Post) model.Post {
	c := *p
	c.PostAdditional.Likes = slices.Clone(p.PostAdditional.Likes)
	if c.PostAdditional.Likes == nil {
		c.PostAdditional.Likes = []model.Like{}
	}
	return c
}

func (f *fakePostRepo) Create(_ context.Context, post *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	post.CreatedAt = time.Now().UTC()
	stored := clonePost(post)
	f.posts[post.PostID] = &stored
	f.order = append(f.order, post.PostID)
	return nil
}

func (f *fakePostRepo) GetByID(_ context.Context, postID string) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[postID]
	if !ok {
		return nil, apperror.NotFound("post", postID)
	}
	c := clonePost(p)
	return &c, nil
}

func (f *fakePostRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Post, int64, error) {
	return f.list("", opts)
}

func (f *fakePostRepo) ListByCreator(_ context.Context, userID string, opts repository.ListOptions) ([]model.Post, int64, error) {
	return f.list(userID, opts)
}

func (f *fakePostRepo) list(createdBy string, opts repository.ListOptions) ([]model.Post, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []model.Post
	for i := len(f.order) - 1; i >= 0; i-- {
		p, ok := f.posts[f.order[i]]
		if !ok {
			continue
		}
		if createdBy != "" && p.CreatedBy != createdBy {
			continue
		}
		if opts.Search != "" && !containsFold(p.Description, opts.Search) && !containsFold(p.PostID, opts.Search) {
			continue
		}
		matched = append(matched, clonePost(p))
	}
	return paginate(matched, opts), int64(len(matched)), nil
}

func (f *fakePostRepo) UpdateDescription(_ context.Context, postID, description string) error {
	return f.update(postID, func(p *model.Post) { p.Description = description })
}

func (f *fakePostRepo) Delete(_ context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[postID]; !ok {
		return apperror.NotFound("post", postID)
	}
	delete(f.posts, postID)
	f.deleted = append(f.deleted, postID)
	return nil
}

func (f *fakePostRepo) IncrementViews(_ context.Context, postID string) error {
	if f.incrementErr != nil {
		return f.incrementErr
	}
	return f.update(postID, func(p *model.Post) { p.Views++ })
}

func (f *fakePostRepo) AddToCommentCount(_ context.Context, postID string, delta int64) error {
	return f.update(postID, func(p *model.Post) { p.TotalComment = max(p.TotalComment+delta, 0) })
}

func (f *fakePostRepo) SetCommentCount(_ context.Context, postID string, count int64) error {
	if err := f.setCountErr[postID]; err != nil {
		return err
	}
	return f.update(postID, func(p *model.Post) { p.TotalComment = count })
}

func (f *fakePostRepo) ListIDs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, id := range f.order {
		if _, ok := f.posts[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakePostRepo) ToggleLike(_ context.Context, postID string, like model.Like) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[postID]
	if !ok {
		return false, apperror.NotFound("post", postID)
	}
	for i, l := range p.PostAdditional.Likes {
		if l.UserID == like.UserID {
			p.PostAdditional.Likes = slices.Delete(p.PostAdditional.Likes, i, i+1)
			return false, nil
		}
	}
	p.PostAdditional.Likes = append(p.PostAdditional.Likes, like)
	return true, nil
}

func (f *fakePostRepo) update(postID string, fn func(*model.Post)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[postID]
	if !ok {
		return apperror.NotFound("post", postID)
	}
	fn(p)
	return nil
}

func (f *fakePostRepo) get(postID string) *model.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posts[postID]
}

// fakeCommentRepo is an in-memory repository.CommentRepository.
type fakeCommentRepo struct {
	mu       sync.Mutex
	comments map[string]*model.Comment
	order    []string

	createErr error
}

var _ repository.CommentRepository = (*fakeCommentRepo)(nil)

func newFakeCommentRepo() *fakeCommentRepo {
	return &fakeCommentRepo{comments: make(map[string]*model.Comment)}
}

func (f *fakeCommentRepo) Create(_ context.Context, c *model.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	c.CreatedAt = time.Now().UTC()
	stored := *c
	f.comments[c.ID] = &stored
	f.order = append(f.order, c.ID)
	return nil
}

func (f *fakeCommentRepo) GetByID(_ context.Context, id string) (*model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok {
		return nil, apperror.NotFoundMessage("Comment not found")
	}
	cc := *c
	return &cc, nil
}

func (f *fakeCommentRepo) ListByPost(_ context.Context, postID string) ([]model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Comment
	for i := len(f.order) - 1; i >= 0; i-- {
		if c, ok := f.comments[f.order[i]]; ok && c.PostID == postID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCommentRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.comments[id]; !ok {
		return apperror.NotFoundMessage("Comment not found")
	}
	delete(f.comments, id)
	return nil
}

func (f *fakeCommentRepo) DeleteByPost(_ context.Context, postID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, c := range f.comments {
		if c.PostID == postID {
			delete(f.comments, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeCommentRepo) CountByPost(context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64)
	for _, c := range f.comments {
		out[c.PostID]++
	}
	return out, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func paginate[T any](items []T, opts repository.ListOptions) []T {
	if opts.Offset >= len(items) {
		return nil
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// =========================================================================
// FAKE COLLABORATORS
// =========================================================================

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

var verifyLinkRe = regexp.MustCompile(`/users/verify/([A-Za-z0-9_.\-]+)`)

// lastToken extracts the verification token from the most recent email.
func (f *fakeMailer) lastToken(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no email sent")
	}
	m := verifyLinkRe.FindStringSubmatch(f.sent[len(f.sent)-1].HTML)
	if m == nil {
		t.Fatalf("no verification link in %q", f.sent[len(f.sent)-1].HTML)
	}
	return m[1]
}

type fakeStore struct {
	mu           sync.Mutex
	uploads      int
	uploadErr    error
	deleteResult string
	deleteErr    error
	deleted      []string
}

var _ storage.ObjectStore = (*fakeStore)(nil)

func (f *fakeStore) Upload(_ context.Context, data []byte, folder string) (storage.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return storage.Object{}, f.uploadErr
	}
	f.uploads++
	id := folder + "/img-" + string(rune('0'+f.uploads))
	return storage.Object{ID: id, URL: "https://img.test/" + id}, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return "", f.deleteErr
	}
	if f.deleteResult != "" && f.deleteResult != storage.ResultOK {
		return f.deleteResult, nil
	}
	f.deleted = append(f.deleted, id)
	return storage.ResultOK, nil
}

type fakeProvider struct {
	profile *auth.GoogleUser
	err     error
	codes   []string
}

func (f *fakeProvider) AuthURL(state string) string {
	return "https://accounts.test/auth?state=" + state
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (*auth.GoogleUser, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, f.err
	}
	p := *f.profile
	return &p, nil
}

var errBoom = errors.New("boom")

// =========================================================================
// FIXTURE
// =========================================================================

const (
	testAPIBase  = "http://api.test/api/v2"
	testFrontEnd = "http://front.test"
)

type fixture struct {
	users    *fakeUserRepo
	posts    *fakePostRepo
	comments *fakeCommentRepo
	mailer   *fakeMailer
	store    *fakeStore
	provider *fakeProvider
	tokens   Tokens

	accounts   *AccountService
	federated  *FederatedService
	postSvc    *PostService
	commentSvc *CommentService
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTokenService(t *testing.T, secret string, ttl time.Duration) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService(secret, ttl)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:    newFakeUserRepo(),
		posts:    newFakePostRepo(),
		comments: newFakeCommentRepo(),
		mailer:   &fakeMailer{},
		store:    &fakeStore{},
		provider: &fakeProvider{},
		tokens: Tokens{
			Verification: newTokenService(t, "verification-secret-000000", auth.VerificationTTL),
			Access:       newTokenService(t, "access-secret-00000000000", auth.AccessTTL),
			Refresh:      newTokenService(t, "refresh-secret-0000000000", auth.RefreshTTL),
		},
	}
	logger := testLogger()

	// Cost 4 is the bcrypt minimum and keeps the tests fast.
	passwords := auth.NewPasswordServiceForTest(4)
	links := Links{APIBaseURL: testAPIBase, FrontEndURL: testFrontEnd}

	f.accounts = NewAccountService(f.users, f.tokens, passwords, f.mailer, f.store, links, logger)

	sessions, err := session.NewManager(session.NewMemoryStore(), "session-secret-0000000000", time.Minute)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	f.federated = NewFederatedService(f.accounts, f.provider, sessions, logger)
	f.postSvc = NewPostService(f.posts, f.comments, f.users, f.store, logger)
	f.commentSvc = NewCommentService(f.comments, f.posts, f.users, logger)
	return f
}

// seedUser stores a verified account directly and returns its identity.
func (f *fixture) seedUser(t *testing.T, userID, name, role string) auth.Identity {
	t.Helper()
	u := &model.User{
		UserID:        userID,
		Name:          name,
		Email:         strings.ToLower(name) + "@example.com",
		Avatar:        model.Image{ID: "av-" + userID, URL: "https://img.test/av-" + userID},
		Role:          role,
		EmailVerified: true,
	}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return auth.Identity{UserID: userID, Role: role}
}

// seedPost creates a post through the service.
func (f *fixture) seedPost(t *testing.T, owner auth.Identity, description string, image []byte) *model.Post {
	t.Helper()
	p, err := f.postSvc.Create(context.Background(), owner.UserID, description, image)
	if err != nil {
		t.Fatalf("seed post: %v", err)
	}
	return p
}
