package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/thoughts/internal/apperror"
	"github.com/sakif/thoughts/internal/auth"
	"github.com/sakif/thoughts/internal/model"
	"github.com/sakif/thoughts/internal/repository"
	"github.com/sakif/thoughts/internal/storage"
)

const postImageFolder = "thoughts/posts"

// PostService handles posts, their like sets and their counters.
type PostService struct {
	posts    repository.PostRepository
	comments repository.CommentRepository
	users    repository.UserRepository
	store    storage.ObjectStore
	logger   *slog.Logger
}

func NewPostService(
	posts repository.PostRepository,
	comments repository.CommentRepository,
	users repository.UserRepository,
	store storage.ObjectStore,
	logger *slog.Logger,
) *PostService {
	return &PostService{
		posts:    posts,
		comments: comments,
		users:    users,
		store:    store,
		logger:   logger,
	}
}

// Create stores a new post. When image is non-empty it is uploaded first
// and the post is not created if the upload fails.
func (s *PostService) Create(ctx context.Context, authorID, description string, image []byte) (*model.Post, error) {
	description = strings.TrimSpace(description)
	if err := validateFields(check("post_description", description, descriptionRules()...)); err != nil {
		return nil, err
	}

	postID, err := randomHex(16)
	if err != nil {
		return nil, fmt.Errorf("service/post: %w", err)
	}

	var img model.Image
	if len(image) > 0 {
		obj, err := s.store.Upload(ctx, image, postImageFolder)
		if err != nil || obj.ID == "" {
			s.logger.Error("post image upload failed", slog.Any("error", err))
			return nil, apperror.UploadFailed(msgUploadFailed)
		}
		img = model.Image{ID: obj.ID, URL: obj.URL}
	}

	post := &model.Post{
		PostID:         postID,
		PostImage:      img,
		Description:    description,
		PostAdditional: model.PostAdditional{Likes: []model.Like{}},
		CreatedBy:      authorID,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("service/post: creating post: %w", err)
	}

	s.logger.Info("post created",
		slog.String("postID", post.PostID),
		slog.String("createdBy", authorID),
		slog.Bool("image", post.HasImage()),
	)
	return post, nil
}

// List returns one page of posts, newest first, each decorated with its
// author's name and avatar.
func (s *PostService) List(ctx context.Context, q PageQuery) (*Page[model.Post], error) {
	opts, page, limit := q.normalize()
	opts.Search = strings.TrimSpace(opts.Search)

	posts, total, err := s.posts.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/post: listing posts: %w", err)
	}
	if err := s.attachAuthors(ctx, posts); err != nil {
		return nil, err
	}
	return newPage(posts, total, page, limit), nil
}

// ListByUser returns the posts created by userID, newest first.
func (s *PostService) ListByUser(ctx context.Context, userID string, q PageQuery) (*Page[model.Post], error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperror.ValidationFailed("userId", msgInvalidID)
	}
	opts, page, limit := q.normalize()
	opts.Search = ""

	posts, total, err := s.posts.ListByCreator(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("service/post: listing posts of %s: %w", userID, err)
	}
	if err := s.attachAuthors(ctx, posts); err != nil {
		return nil, err
	}
	return newPage(posts, total, page, limit), nil
}

// Get returns a post and counts the read. Every successful read counts,
// repeated reads by the same caller included.
func (s *PostService) Get(ctx context.Context, postID string) (*model.Post, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if s.countView(ctx, postID) {
		post.Views++
	}
	single := []model.Post{*post}
	if err := s.attachAuthors(ctx, single); err != nil {
		s.logger.Error("author not attached", slog.String("postID", postID), slog.Any("error", err))
	} else {
		post.Author = single[0].Author
	}
	return post, nil
}

// Delete removes a post. Only its owner or an admin may do so. A stored
// image is deleted first; if the object store does not confirm the
// deletion, the post is kept.
func (s *PostService) Delete(ctx context.Context, postID string, requester auth.Identity) error {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.CreatedBy != requester.UserID && !requester.IsAdmin() {
		return apperror.Forbidden("You are not allowed to delete this post")
	}

	if post.HasImage() {
		result, err := s.store.Delete(ctx, post.PostImage.ID)
		if err != nil || result != storage.ResultOK {
			s.logger.Error("post image not deleted, keeping post",
				slog.String("postID", postID),
				slog.String("imageID", post.PostImage.ID),
				slog.String("result", result),
				slog.Any("error", err),
			)
			return apperror.Internal("Something went wrong. Image not deleted")
		}
	}

	if err := s.posts.Delete(ctx, postID); err != nil {
		return s.postError(err, postID, "deleting")
	}

	if n, err := s.comments.DeleteByPost(ctx, postID); err != nil {
		s.logger.Error("comments of deleted post not removed",
			slog.String("postID", postID),
			slog.Any("error", err),
		)
	} else if n > 0 {
		s.logger.Info("comments of deleted post removed", slog.String("postID", postID), slog.Int64("count", n))
	}

	s.logger.Info("post deleted",
		slog.String("postID", postID),
		slog.String("by", requester.UserID),
	)
	return nil
}

// Edit replaces the description of a post owned by the requester and
// returns the updated post. An unchanged description is an error.
func (s *PostService) Edit(ctx context.Context, postID string, requester auth.Identity, description string) (*model.Post, error) {
	description = strings.TrimSpace(description)
	if err := ValidateID("postId", postID, PostIDMinLength); err != nil {
		return nil, err
	}
	if err := validateFields(check("post_description", description, descriptionRules()...)); err != nil {
		return nil, err
	}

	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.CreatedBy != requester.UserID {
		return nil, apperror.Forbidden("You are not the owner of this post")
	}
	if post.Description == description {
		return nil, apperror.NoChange("Nothing to update. Post description is unchanged")
	}

	if err := s.posts.UpdateDescription(ctx, postID, description); err != nil {
		return nil, s.postError(err, postID, "updating")
	}
	post.Description = description

	s.logger.Info("post edited", slog.String("postID", postID))
	return post, nil
}

// ToggleLike adds the requester's like, or removes it if present, and
// reports whether the post is liked afterwards. The like entry carries a
// snapshot of the requester's name and avatar.
func (s *PostService) ToggleLike(ctx context.Context, postID string, requester auth.Identity) (bool, error) {
	if err := ValidateID("postId", postID, PostIDMinLength); err != nil {
		return false, err
	}

	user, err := s.users.GetByUserID(ctx, requester.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, apperror.Unauthorized("User not found. Please login")
		}
		return false, fmt.Errorf("service/post: loading user %s: %w", requester.UserID, err)
	}

	like := model.Like{
		ID:     xid.New().String(),
		UserID: user.UserID,
		Name:   user.Name,
		Avatar: user.Avatar,
	}
	liked, err := s.posts.ToggleLike(ctx, postID, like)
	if err != nil {
		return false, s.postError(err, postID, "toggling like on")
	}
	s.countView(ctx, postID)

	s.logger.Info("like toggled",
		slog.String("postID", postID),
		slog.String("userID", user.UserID),
		slog.Bool("liked", liked),
	)
	return liked, nil
}

// ReconcileReport summarizes a counter reconciliation run.
type ReconcileReport struct {
	Posts  int `json:"posts"`
	Failed int `json:"failed"`
}

// ReconcileCounters recomputes total_comment of every post from the comment
// records, repairing drift left by failed increments.
func (s *PostService) ReconcileCounters(ctx context.Context) (*ReconcileReport, error) {
	ids, err := s.posts.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/post: listing post ids: %w", err)
	}
	counts, err := s.comments.CountByPost(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/post: counting comments: %w", err)
	}

	report := &ReconcileReport{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.posts.SetCommentCount(ctx, id, counts[id]); err != nil {
			report.Failed++
			s.logger.Error("comment counter not reconciled",
				slog.String("postID", id),
				slog.Any("error", err),
			)
			continue
		}
		report.Posts++
	}

	s.logger.Info("counters reconciled",
		slog.Int("posts", report.Posts),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

// loadPost validates the id and fetches the post.
func (s *PostService) loadPost(ctx context.Context, postID string) (*model.Post, error) {
	return loadPost(ctx, s.posts, postID)
}

func loadPost(ctx context.Context, posts repository.PostRepository, postID string) (*model.Post, error) {
	if err := ValidateID("postId", postID, PostIDMinLength); err != nil {
		return nil, err
	}
	post, err := posts.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("Post not found")
		}
		return nil, fmt.Errorf("service/post: loading post %s: %w", postID, err)
	}
	return post, nil
}

func (s *PostService) postError(err error, postID, action string) error {
	if errors.Is(err, apperror.ErrNotFound) {
		return apperror.NotFoundMessage("Post not found")
	}
	return fmt.Errorf("service/post: %s post %s: %w", action, postID, err)
}

// countView increments the view counter. Failures are logged and reported
// as false; they never fail the caller's operation.
func (s *PostService) countView(ctx context.Context, postID string) bool {
	return countView(ctx, s.posts, s.logger, postID)
}

func countView(ctx context.Context, posts repository.PostRepository, logger *slog.Logger, postID string) bool {
	if err := posts.IncrementViews(ctx, postID); err != nil {
		logger.Error("view counter not incremented",
			slog.String("postID", postID),
			slog.Any("error", err),
		)
		return false
	}
	return true
}

// attachAuthors sets Author on every post with one batched lookup.
func (s *PostService) attachAuthors(ctx context.Context, posts []model.Post) error {
	if len(posts) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(posts))
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		if !seen[p.CreatedBy] {
			seen[p.CreatedBy] = true
			ids = append(ids, p.CreatedBy)
		}
	}

	authors, err := s.users.GetAuthors(ctx, ids)
	if err != nil {
		return fmt.Errorf("service/post: loading authors: %w", err)
	}
	for i := range posts {
		if a, ok := authors[posts[i].CreatedBy]; ok {
			posts[i].Author = &a
		}
	}
	return nil
}
