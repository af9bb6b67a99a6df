// Package repository declares the storage contracts used by the services.
//
// Two implementations exist: repository/sqlite (default, also used by the
// tests) and repository/mongodb (document store). Neither contains business
// rules. Counter and like-set mutations are single-statement atomic
// operations in both backends; multi-step sequences built on top of them in
// the service layer are not transactional.
package repository

import (
	"context"

	"github.com/sakif/thoughts/internal/model"
)

// ListOptions carries pagination and an optional case-insensitive search term.
type ListOptions struct {
	Search string
	Limit  int
	Offset int
}

// UserRepository is the single source of truth for user records.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	Count(ctx context.Context) (int64, error)
	GetByUserID(ctx context.Context, userID string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	// GetAuthors returns the {name, avatar} snapshot for every known id in one query.
	GetAuthors(ctx context.Context, userIDs []string) (map[string]model.Author, error)
	List(ctx context.Context, opts ListOptions) ([]model.User, int64, error)
	MarkEmailVerified(ctx context.Context, userID string) error
	// LinkGoogleID attaches a federated identity. With clearPassword the
	// stored hash is removed in the same update.
	LinkGoogleID(ctx context.Context, userID, googleID string, clearPassword bool) error
	SetBanned(ctx context.Context, userID string, banned bool) error
	SetDeleted(ctx context.Context, userID string, deleted bool) error
}

// PostRepository stores posts and their like sets.
type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	GetByID(ctx context.Context, postID string) (*model.Post, error)
	// List returns one page sorted newest first plus the total match count.
	List(ctx context.Context, opts ListOptions) ([]model.Post, int64, error)
	ListByCreator(ctx context.Context, userID string, opts ListOptions) ([]model.Post, int64, error)
	UpdateDescription(ctx context.Context, postID, description string) error
	Delete(ctx context.Context, postID string) error

	IncrementViews(ctx context.Context, postID string) error
	AddToCommentCount(ctx context.Context, postID string, delta int64) error
	SetCommentCount(ctx context.Context, postID string, count int64) error
	ListIDs(ctx context.Context) ([]string, error)

	// ToggleLike removes the user's entry if present, otherwise appends
	// like. It reports whether the post is liked by the user afterwards.
	ToggleLike(ctx context.Context, postID string, like model.Like) (bool, error)
}

// CommentRepository stores comments in one selectable backing collection.
type CommentRepository interface {
	Create(ctx context.Context, comment *model.Comment) error
	GetByID(ctx context.Context, id string) (*model.Comment, error)
	ListByPost(ctx context.Context, postID string) ([]model.Comment, error)
	Delete(ctx context.Context, id string) error
	DeleteByPost(ctx context.Context, postID string) (int64, error)
	CountByPost(ctx context.Context) (map[string]int64, error)
}
