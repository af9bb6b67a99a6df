package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/thoughts/internal/apperror"
	"github.com/sakif/thoughts/internal/auth"
	"github.com/sakif/thoughts/internal/model"
	"github.com/sakif/thoughts/internal/repository"
)

// CommentService handles comments and keeps the post's total_comment
// counter in step with them. Every comment action also counts as a view
// of the post.
type CommentService struct {
	comments repository.CommentRepository
	posts    repository.PostRepository
	users    repository.UserRepository
	logger   *slog.Logger
}

func NewCommentService(
	comments repository.CommentRepository,
	posts repository.PostRepository,
	users repository.UserRepository,
	logger *slog.Logger,
) *CommentService {
	return &CommentService{
		comments: comments,
		posts:    posts,
		users:    users,
		logger:   logger,
	}
}

// Add stores a comment on postID with a snapshot of the requester's name
// and avatar.
func (s *CommentService) Add(ctx context.Context, postID string, requester auth.Identity, text string) (*model.Comment, error) {
	post, err := loadPost(ctx, s.posts, postID)
	if err != nil {
		return nil, err
	}
	countView(ctx, s.posts, s.logger, post.PostID)

	text = strings.TrimSpace(text)
	if err := validateFields(check("comment", text, commentRules()...)); err != nil {
		return nil, err
	}

	user, err := s.users.GetByUserID(ctx, requester.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("User not found. Please login")
		}
		return nil, fmt.Errorf("service/comment: loading user %s: %w", requester.UserID, err)
	}

	id, err := randomHex(CommentIDMinLength / 2)
	if err != nil {
		return nil, fmt.Errorf("service/comment: %w", err)
	}
	comment := &model.Comment{
		ID:      id,
		PostID:  post.PostID,
		Comment: text,
		UserID:  user.UserID,
		Name:    user.Name,
		Avatar:  user.Avatar,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("service/comment: creating comment: %w", err)
	}
	s.adjustCount(ctx, post.PostID, 1)

	s.logger.Info("comment added",
		slog.String("commentID", comment.ID),
		slog.String("postID", post.PostID),
		slog.String("userID", user.UserID),
	)
	return comment, nil
}

// List returns the comments of postID, newest first.
func (s *CommentService) List(ctx context.Context, postID string) ([]model.Comment, error) {
	post, err := loadPost(ctx, s.posts, postID)
	if err != nil {
		return nil, err
	}
	countView(ctx, s.posts, s.logger, post.PostID)

	comments, err := s.comments.ListByPost(ctx, post.PostID)
	if err != nil {
		return nil, fmt.Errorf("service/comment: listing comments of %s: %w", post.PostID, err)
	}
	if comments == nil {
		comments = []model.Comment{}
	}
	return comments, nil
}

// Delete removes a comment written by the requester. Someone else's
// comment is reported as not found.
func (s *CommentService) Delete(ctx context.Context, commentID string, requester auth.Identity) error {
	comment, err := s.load(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.UserID != requester.UserID {
		return apperror.NotFoundMessage("Comment not found")
	}
	if err := s.remove(ctx, comment); err != nil {
		return err
	}
	s.logger.Info("comment deleted",
		slog.String("commentID", comment.ID),
		slog.String("by", requester.UserID),
	)
	return nil
}

// Hide removes a comment on a post owned by the requester. Ownership is
// looked up on the post, it is not stored on the comment.
func (s *CommentService) Hide(ctx context.Context, commentID string, requester auth.Identity) error {
	comment, err := s.load(ctx, commentID)
	if err != nil {
		return err
	}

	post, err := s.posts.GetByID(ctx, comment.PostID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("service/comment: loading post %s: %w", comment.PostID, err)
	}
	if err != nil || post.CreatedBy != requester.UserID {
		return apperror.Forbidden("You are not the owner of this post")
	}

	if err := s.remove(ctx, comment); err != nil {
		return err
	}
	s.logger.Info("comment hidden by post owner",
		slog.String("commentID", comment.ID),
		slog.String("postID", post.PostID),
	)
	return nil
}

func (s *CommentService) load(ctx context.Context, commentID string) (*model.Comment, error) {
	if err := ValidateID("commentId", commentID, CommentIDMinLength); err != nil {
		return nil, err
	}
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("Comment not found")
		}
		return nil, fmt.Errorf("service/comment: loading comment %s: %w", commentID, err)
	}
	return comment, nil
}

func (s *CommentService) remove(ctx context.Context, comment *model.Comment) error {
	if err := s.comments.Delete(ctx, comment.ID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFoundMessage("Comment not found")
		}
		return fmt.Errorf("service/comment: deleting comment %s: %w", comment.ID, err)
	}
	s.adjustCount(ctx, comment.PostID, -1)
	return nil
}

func (s *CommentService) adjustCount(ctx context.Context, postID string, delta int64) {
	if err := s.posts.AddToCommentCount(ctx, postID, delta); err != nil {
		s.logger.Error("comment counter not updated",
			slog.String("postID", postID),
			slog.Int64("delta", delta),
			slog.Any("error", err),
		)
	}
}
