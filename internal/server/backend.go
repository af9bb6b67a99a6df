package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/thoughts/internal/config"
	"github.com/sakif/thoughts/internal/mail"
	"github.com/sakif/thoughts/internal/repository"
	"github.com/sakif/thoughts/internal/repository/mongodb"
	sqliteRepo "github.com/sakif/thoughts/internal/repository/sqlite"
	"github.com/sakif/thoughts/internal/session"
	"github.com/sakif/thoughts/internal/storage"
)

// stores is the persistence backend chosen by DATABASE_URL.
type stores struct {
	users    repository.UserRepository
	posts    repository.PostRepository
	comments repository.CommentRepository
	kind     string
	close    func(ctx context.Context) error
}

// openStores connects to MongoDB for mongodb:// URLs and opens SQLite
// otherwise.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.IsMongo() {
		db, err := mongodb.Connect(ctx, cfg.DatabaseURL, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		comments, err := db.Comments(cfg.CommentsCollection)
		if err != nil {
			_ = db.Close(ctx)
			return nil, err
		}
		return &stores{
			users:    db.Users(),
			posts:    db.Posts(),
			comments: comments,
			kind:     "mongodb",
			close:    db.Close,
		}, nil
	}

	if cfg.DatabaseURL != ":memory:" {
		// os.MkdirAll is mkdir -p.
		if err := os.MkdirAll(filepath.Dir(cfg.DatabaseURL), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	comments, err := db.Comments(cfg.CommentsCollection)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &stores{
		users:    db.Users(),
		posts:    db.Posts(),
		comments: comments,
		kind:     "sqlite",
		close:    func(context.Context) error { return db.Close() },
	}, nil
}

// openRedis returns nil when REDIS_URL is empty. Both redis://host:port/db
// URLs and bare host:port addresses are accepted.
func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	if rawURL == "" {
		return nil, nil
	}

	var opts *redis.Options
	if strings.Contains(rawURL, "://") {
		parsed, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: rawURL}
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

func newSessionStore(rdb *redis.Client, logger *slog.Logger) session.Store {
	if rdb == nil {
		logger.Warn("REDIS_URL not set, OAuth sessions are kept in memory")
		return session.NewMemoryStore()
	}
	return session.NewRedisStore(rdb)
}

func newMailer(cfg *config.Config, logger *slog.Logger) mail.Sender {
	if !cfg.SMTPEnabled() {
		logger.Warn("SMTP not configured, verification emails are logged instead of sent")
		return mail.NewLogSender(logger)
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
}

func newObjectStore(cfg *config.Config, logger *slog.Logger) (storage.ObjectStore, error) {
	if !cfg.CloudinaryEnabled() {
		logger.Warn("Cloudinary not configured, image uploads are disabled")
		return storage.Disabled{}, nil
	}
	return storage.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
}
