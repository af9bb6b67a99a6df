package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/thoughts/internal/apperror"
	"github.com/sakif/thoughts/internal/model"
	"github.com/sakif/thoughts/internal/repository"
)

var _ repository.PostRepository = (*PostDB)(nil)

// PostDB is the posts table plus the post_likes table holding each post's
// like set. Likes are stitched onto posts on read.
type PostDB struct {
	conn *sql.DB
}

const postColumns = `post_id, image_id, image_url, description, views,
	total_comment, restricted, created_by, created_at`

func scanPost(s rowScanner) (*model.Post, error) {
	var p model.Post
	err := s.Scan(
		&p.PostID,
		&p.PostImage.ID,
		&p.PostImage.URL,
		&p.Description,
		&p.Views,
		&p.TotalComment,
		&p.Restricted,
		&p.CreatedBy,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.PostAdditional.Likes = []model.Like{}
	return &p, nil
}

// Create inserts a post with an empty like set and zeroed counters.
func (p *PostDB) Create(ctx context.Context, post *model.Post) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	post.PostAdditional.Likes = []model.Like{}

	_, err := p.conn.ExecContext(ctx,
		`INSERT INTO posts (`+postColumns+`, search_text) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.PostID,
		post.PostImage.ID,
		post.PostImage.URL,
		post.Description,
		post.Views,
		post.TotalComment,
		post.Restricted,
		post.CreatedBy,
		post.CreatedAt,
		searchText(post.Description),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("post already exists")
		}
		return fmt.Errorf("sqlite: inserting post %s: %w", post.PostID, err)
	}
	return nil
}

// GetByID returns the post with its like set.
func (p *PostDB) GetByID(ctx context.Context, postID string) (*model.Post, error) {
	row := p.conn.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE post_id = ?`, postID)
	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("post", postID)
		}
		return nil, fmt.Errorf("sqlite: getting post %s: %w", postID, err)
	}

	likes, err := p.loadLikes(ctx, []string{postID})
	if err != nil {
		return nil, err
	}
	if l, ok := likes[postID]; ok {
		post.PostAdditional.Likes = l
	}
	return post, nil
}

// List returns posts newest first. Search matches the description or the id.
func (p *PostDB) List(ctx context.Context, opts repository.ListOptions) ([]model.Post, int64, error) {
	return p.list(ctx, "", opts)
}

func (p *PostDB) ListByCreator(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Post, int64, error) {
	return p.list(ctx, userID, opts)
}

func (p *PostDB) list(ctx context.Context, createdBy string, opts repository.ListOptions) ([]model.Post, int64, error) {
	where := " WHERE 1 = 1"
	var args []any
	if createdBy != "" {
		where += " AND created_by = ?"
		args = append(args, createdBy)
	}
	if opts.Search != "" {
		where += ` AND (search_text LIKE ? ESCAPE '\' OR post_id LIKE ? ESCAPE '\')`
		pattern := likePattern(searchText(opts.Search))
		args = append(args, pattern, pattern)
	}

	var total int64
	if err := p.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting posts: %w", err)
	}

	rows, err := p.conn.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts`+where+`
		 ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing posts: %w", err)
	}

	posts := []model.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("sqlite: scanning post: %w", err)
		}
		posts = append(posts, *post)
	}
	// Close before the likes query, the pool has a single connection.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating posts: %w", err)
	}

	ids := make([]string, len(posts))
	for i := range posts {
		ids[i] = posts[i].PostID
	}
	likes, err := p.loadLikes(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range posts {
		if l, ok := likes[posts[i].PostID]; ok {
			posts[i].PostAdditional.Likes = l
		}
	}
	return posts, total, nil
}

// loadLikes returns like sets keyed by post id, each in insertion order.
func (p *PostDB) loadLikes(ctx context.Context, postIDs []string) (map[string][]model.Like, error) {
	out := make(map[string][]model.Like, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(postIDs))
	for i, id := range postIDs {
		args[i] = id
	}
	rows, err := p.conn.QueryContext(ctx,
		`SELECT post_id, id, user_id, name, avatar_id, avatar_url FROM post_likes
		 WHERE post_id IN (`+placeholders(len(postIDs))+`) ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading likes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			postID string
			l      model.Like
		)
		if err := rows.Scan(&postID, &l.ID, &l.UserID, &l.Name, &l.Avatar.ID, &l.Avatar.URL); err != nil {
			return nil, fmt.Errorf("sqlite: scanning like: %w", err)
		}
		out[postID] = append(out[postID], l)
	}
	return out, rows.Err()
}

func (p *PostDB) UpdateDescription(ctx context.Context, postID, description string) error {
	return p.update(ctx, postID, `UPDATE posts SET description = ?, search_text = ? WHERE post_id = ?`,
		description, searchText(description), postID)
}

// Delete removes the post and its like set. Comments are removed separately.
func (p *PostDB) Delete(ctx context.Context, postID string) error {
	if err := p.update(ctx, postID, `DELETE FROM posts WHERE post_id = ?`, postID); err != nil {
		return err
	}
	if _, err := p.conn.ExecContext(ctx, `DELETE FROM post_likes WHERE post_id = ?`, postID); err != nil {
		return fmt.Errorf("sqlite: deleting likes of post %s: %w", postID, err)
	}
	return nil
}

func (p *PostDB) IncrementViews(ctx context.Context, postID string) error {
	return p.update(ctx, postID, `UPDATE posts SET views = views + 1 WHERE post_id = ?`, postID)
}

// AddToCommentCount applies delta in a single statement. The counter never
// goes below zero.
func (p *PostDB) AddToCommentCount(ctx context.Context, postID string, delta int64) error {
	return p.update(ctx, postID,
		`UPDATE posts SET total_comment = MAX(total_comment + ?, 0) WHERE post_id = ?`, delta, postID)
}

func (p *PostDB) SetCommentCount(ctx context.Context, postID string, count int64) error {
	return p.update(ctx, postID, `UPDATE posts SET total_comment = ? WHERE post_id = ?`, count, postID)
}

func (p *PostDB) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := p.conn.QueryContext(ctx, `SELECT post_id FROM posts ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing post ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning post id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ToggleLike removes the user's like if there is one, otherwise inserts it.
// The UNIQUE(post_id, user_id) constraint keeps the set free of duplicates
// when two toggles race.
func (p *PostDB) ToggleLike(ctx context.Context, postID string, like model.Like) (bool, error) {
	result, err := p.conn.ExecContext(ctx,
		`DELETE FROM post_likes WHERE post_id = ? AND user_id = ?`, postID, like.UserID)
	if err != nil {
		return false, fmt.Errorf("sqlite: removing like on %s: %w", postID, err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return false, nil
	}

	result, err = p.conn.ExecContext(ctx,
		`INSERT INTO post_likes (id, post_id, user_id, name, avatar_id, avatar_url)
		 SELECT ?, ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM posts WHERE post_id = ?)
		 ON CONFLICT (post_id, user_id) DO NOTHING`,
		like.ID, postID, like.UserID, like.Name, like.Avatar.ID, like.Avatar.URL, postID)
	if err != nil {
		return false, fmt.Errorf("sqlite: adding like on %s: %w", postID, err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return true, nil
	}

	// Nothing inserted: either the post is gone or a concurrent toggle
	// already added the like.
	var exists bool
	err = p.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE post_id = ?)`, postID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking post %s: %w", postID, err)
	}
	if !exists {
		return false, apperror.NotFound("post", postID)
	}
	return true, nil
}

func (p *PostDB) update(ctx context.Context, postID, query string, args ...any) error {
	result, err := p.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: updating post %s: %w", postID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("post", postID)
	}
	return nil
}
