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

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the users table.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `user_id, google_id, name, email, password, avatar_id, avatar_url,
	role, banned_user, deleted_user, email_verified, created_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u        model.User
		googleID sql.NullString
		email    sql.NullString
	)
	err := s.Scan(
		&u.UserID,
		&googleID,
		&u.Name,
		&email,
		&u.Password,
		&u.Avatar.ID,
		&u.Avatar.URL,
		&u.Role,
		&u.BannedUser,
		&u.DeletedUser,
		&u.EmailVerified,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.GoogleID = googleID.String
	u.Email = email.String
	return &u, nil
}

// Create inserts a new user. UserID must already be assigned.
// Returns apperror.ErrConflict if the email or Google id is taken.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`, search_text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.UserID,
		nullIfEmpty(user.GoogleID),
		user.Name,
		nullIfEmpty(user.Email),
		user.Password,
		user.Avatar.ID,
		user.Avatar.URL,
		user.Role,
		user.BannedUser,
		user.DeletedUser,
		user.EmailVerified,
		user.CreatedAt,
		searchText(user.Name, user.Email),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("Email already exists. Please login")
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.UserID, err)
	}
	return nil
}

// Count returns the number of user records.
func (u *UserDB) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := u.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting users: %w", err)
	}
	return n, nil
}

// GetByUserID returns apperror.ErrNotFound if no user exists with that id.
func (u *UserDB) GetByUserID(ctx context.Context, userID string) (*model.User, error) {
	return u.getOne(ctx, "user_id", userID)
}

// GetByEmail expects an already normalized (lower-cased) address.
func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getOne(ctx, "email", email)
}

func (u *UserDB) GetByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return u.getOne(ctx, "google_id", googleID)
}

// getOne looks a user up by a column name that is always a literal from
// this file, never caller input.
func (u *UserDB) getOne(ctx context.Context, column, value string) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}
	return user, nil
}

// GetAuthors returns name and avatar for every id that exists. Unknown ids
// are absent from the map.
func (u *UserDB) GetAuthors(ctx context.Context, userIDs []string) (map[string]model.Author, error) {
	authors := make(map[string]model.Author, len(userIDs))
	if len(userIDs) == 0 {
		return authors, nil
	}

	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}

	rows, err := u.conn.QueryContext(ctx,
		`SELECT user_id, name, avatar_id, avatar_url FROM users
		 WHERE user_id IN (`+placeholders(len(userIDs))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading authors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			a  model.Author
		)
		if err := rows.Scan(&id, &a.Name, &a.Avatar.ID, &a.Avatar.URL); err != nil {
			return nil, fmt.Errorf("sqlite: scanning author: %w", err)
		}
		authors[id] = a
	}
	return authors, rows.Err()
}

// List returns users newest first. Search matches name or email.
func (u *UserDB) List(ctx context.Context, opts repository.ListOptions) ([]model.User, int64, error) {
	where := ""
	var args []any
	if opts.Search != "" {
		where = ` WHERE search_text LIKE ? ESCAPE '\'`
		args = append(args, likePattern(searchText(opts.Search)))
	}

	var total int64
	if err := u.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting users: %w", err)
	}

	rows, err := u.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users`+where+`
		 ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, *user)
	}
	return users, total, rows.Err()
}

func (u *UserDB) MarkEmailVerified(ctx context.Context, userID string) error {
	return u.update(ctx, userID, `UPDATE users SET email_verified = 1 WHERE user_id = ?`, userID)
}

// LinkGoogleID attaches a federated identity to an existing account.
func (u *UserDB) LinkGoogleID(ctx context.Context, userID, googleID string, clearPassword bool) error {
	query := `UPDATE users SET google_id = ? WHERE user_id = ?`
	if clearPassword {
		query = `UPDATE users SET google_id = ?, password = '' WHERE user_id = ?`
	}
	err := u.update(ctx, userID, query, googleID, userID)
	if isUniqueViolation(err) {
		return apperror.Conflict("Google account is already linked to another user")
	}
	return err
}

func (u *UserDB) SetBanned(ctx context.Context, userID string, banned bool) error {
	return u.update(ctx, userID, `UPDATE users SET banned_user = ? WHERE user_id = ?`, banned, userID)
}

func (u *UserDB) SetDeleted(ctx context.Context, userID string, deleted bool) error {
	return u.update(ctx, userID, `UPDATE users SET deleted_user = ? WHERE user_id = ?`, deleted, userID)
}

// update runs a single-row UPDATE and maps zero affected rows to NotFound.
// SQLite counts a row as affected even when the new value equals the old one.
func (u *UserDB) update(ctx context.Context, userID, query string, args ...any) error {
	result, err := u.conn.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("sqlite: updating user %s: %w", userID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}
