// Package sqlite implements the repository interfaces on top of SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary
// builds without a C toolchain. Use ":memory:" for an in-memory database
// (the tests do).
//
// The pool is limited to one connection. SQLite allows a single writer
// anyway, and an in-memory database only exists on the connection that
// created it. Because of that no method in this package issues a query
// while another result set is still open.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and hands out the per-entity stores.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Users returns the user store.
func (db *DB) Users() *UserDB {
	return &UserDB{conn: db.conn}
}

// Posts returns the post store.
func (db *DB) Posts() *PostDB {
	return &PostDB{conn: db.conn}
}

// Comments returns the comment store backed by the given table.
// Only "comments" and "like_comments" exist.
func (db *DB) Comments(table string) (*CommentDB, error) {
	switch table {
	case "comments", "like_comments":
		return &CommentDB{conn: db.conn, table: table}, nil
	default:
		return nil, fmt.Errorf("sqlite: unknown comments table %q", table)
	}
}

// migrate creates every table. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			user_id        TEXT PRIMARY KEY,
			google_id      TEXT UNIQUE,
			name           TEXT NOT NULL,
			email          TEXT UNIQUE,
			password       TEXT NOT NULL DEFAULT '',
			avatar_id      TEXT NOT NULL DEFAULT '',
			avatar_url     TEXT NOT NULL DEFAULT '',
			role           TEXT NOT NULL DEFAULT 'user',
			banned_user    INTEGER NOT NULL DEFAULT 0,
			deleted_user   INTEGER NOT NULL DEFAULT 0,
			email_verified INTEGER NOT NULL DEFAULT 0,
			created_at     DATETIME NOT NULL,
			search_text    TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS posts (
			post_id       TEXT PRIMARY KEY,
			image_id      TEXT NOT NULL DEFAULT '',
			image_url     TEXT NOT NULL DEFAULT '',
			description   TEXT NOT NULL,
			views         INTEGER NOT NULL DEFAULT 0,
			total_comment INTEGER NOT NULL DEFAULT 0,
			restricted    INTEGER NOT NULL DEFAULT 0,
			created_by    TEXT NOT NULL,
			created_at    DATETIME NOT NULL,
			search_text   TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);
		CREATE INDEX IF NOT EXISTS idx_posts_created_by ON posts(created_by);
	`)
	if err != nil {
		return fmt.Errorf("creating posts table: %w", err)
	}

	// seq keeps the like set in insertion order.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS post_likes (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL,
			post_id    TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			avatar_id  TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			UNIQUE (post_id, user_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating post_likes table: %w", err)
	}

	for _, table := range []string{"comments", "like_comments"} {
		_, err = db.conn.Exec(fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				id         TEXT PRIMARY KEY,
				post_id    TEXT NOT NULL,
				comment    TEXT NOT NULL,
				user_id    TEXT NOT NULL,
				name       TEXT NOT NULL DEFAULT '',
				avatar_id  TEXT NOT NULL DEFAULT '',
				avatar_url TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_%[1]s_post_id ON %[1]s(post_id);
		`, table))
		if err != nil {
			return fmt.Errorf("creating %s table: %w", table, err)
		}
	}

	return nil
}

// likePattern builds a LIKE pattern matching term anywhere, with the LIKE
// wildcards in term escaped. Use it with ESCAPE '\'.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

// searchText is the lower-cased form stored and matched in search_text
// columns. SQLite's LIKE only folds ASCII letters, strings.ToLower folds
// every script. Fields are joined with a newline so a term cannot span two.
func searchText(fields ...string) string {
	return strings.ToLower(strings.Join(fields, "\n"))
}

// isUniqueViolation reports whether err comes from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
