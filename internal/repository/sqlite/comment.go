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

var _ repository.CommentRepository = (*CommentDB)(nil)

// CommentDB stores comments in one of the two comment tables. table is
// validated by DB.Comments and is safe to interpolate.
type CommentDB struct {
	conn  *sql.DB
	table string
}

const commentColumns = `id, post_id, comment, user_id, name, avatar_id, avatar_url, created_at`

func scanComment(s rowScanner) (*model.Comment, error) {
	var c model.Comment
	err := s.Scan(&c.ID, &c.PostID, &c.Comment, &c.UserID, &c.Name, &c.Avatar.ID, &c.Avatar.URL, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *CommentDB) Create(ctx context.Context, comment *model.Comment) error {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	_, err := c.conn.ExecContext(ctx,
		`INSERT INTO `+c.table+` (`+commentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		comment.ID,
		comment.PostID,
		comment.Comment,
		comment.UserID,
		comment.Name,
		comment.Avatar.ID,
		comment.Avatar.URL,
		comment.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("comment already exists")
		}
		return fmt.Errorf("sqlite: inserting comment %s: %w", comment.ID, err)
	}
	return nil
}

func (c *CommentDB) GetByID(ctx context.Context, id string) (*model.Comment, error) {
	row := c.conn.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM `+c.table+` WHERE id = ?`, id)
	comment, err := scanComment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage("Comment not found")
		}
		return nil, fmt.Errorf("sqlite: getting comment %s: %w", id, err)
	}
	return comment, nil
}

// ListByPost returns every comment on the post, newest first.
func (c *CommentDB) ListByPost(ctx context.Context, postID string) ([]model.Comment, error) {
	rows, err := c.conn.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM `+c.table+`
		 WHERE post_id = ? ORDER BY created_at DESC, rowid DESC`, postID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments of %s: %w", postID, err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment: %w", err)
		}
		comments = append(comments, *comment)
	}
	return comments, rows.Err()
}

func (c *CommentDB) Delete(ctx context.Context, id string) error {
	result, err := c.conn.ExecContext(ctx, `DELETE FROM `+c.table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting comment %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFoundMessage("Comment not found")
	}
	return nil
}

// DeleteByPost removes all comments of a post and reports how many went.
func (c *CommentDB) DeleteByPost(ctx context.Context, postID string) (int64, error) {
	result, err := c.conn.ExecContext(ctx, `DELETE FROM `+c.table+` WHERE post_id = ?`, postID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting comments of %s: %w", postID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

// CountByPost returns the true comment count per post. Posts without
// comments are absent.
func (c *CommentDB) CountByPost(ctx context.Context) (map[string]int64, error) {
	rows, err := c.conn.QueryContext(ctx, `SELECT post_id, COUNT(*) FROM `+c.table+` GROUP BY post_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: counting comments: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var (
			postID string
			n      int64
		)
		if err := rows.Scan(&postID, &n); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment count: %w", err)
		}
		counts[postID] = n
	}
	return counts, rows.Err()
}
