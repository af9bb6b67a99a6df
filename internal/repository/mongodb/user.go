package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/thoughts/internal/apperror"
	"github.com/sakif/thoughts/internal/model"
	"github.com/sakif/thoughts/internal/repository"
)

var _ repository.UserRepository = (*UserStore)(nil)

// UserStore is the users collection.
type UserStore struct {
	coll *mongo.Collection
}

func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if _, err := s.coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("Email already exists. Please login")
		}
		return fmt.Errorf("mongodb: inserting user %s: %w", user.UserID, err)
	}
	return nil
}

func (s *UserStore) Count(ctx context.Context) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("mongodb: counting users: %w", err)
	}
	return n, nil
}

func (s *UserStore) GetByUserID(ctx context.Context, userID string) (*model.User, error) {
	return s.findOne(ctx, "user_id", userID)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findOne(ctx, "email", email)
}

func (s *UserStore) GetByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return s.findOne(ctx, "googleId", googleID)
}

func (s *UserStore) findOne(ctx context.Context, field, value string) (*model.User, error) {
	var u model.User
	if err := s.coll.FindOne(ctx, bson.M{field: value}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("mongodb: finding user by %s: %w", field, err)
	}
	return &u, nil
}

func (s *UserStore) GetAuthors(ctx context.Context, userIDs []string) (map[string]model.Author, error) {
	authors := make(map[string]model.Author, len(userIDs))
	if len(userIDs) == 0 {
		return authors, nil
	}

	opts := options.Find().SetProjection(bson.M{"user_id": 1, "name": 1, "avatar": 1})
	cursor, err := s.coll.Find(ctx, bson.M{"user_id": bson.M{"$in": userIDs}}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: loading authors: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc struct {
			UserID string      `bson:"user_id"`
			Name   string      `bson:"name"`
			Avatar model.Image `bson:"avatar"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongodb: decoding author: %w", err)
		}
		authors[doc.UserID] = model.Author{Name: doc.Name, Avatar: doc.Avatar}
	}
	return authors, cursor.Err()
}

func (s *UserStore) List(ctx context.Context, opts repository.ListOptions) ([]model.User, int64, error) {
	filter := bson.M{}
	if opts.Search != "" {
		filter["$or"] = bson.A{
			bson.M{"name": containsFold(opts.Search)},
			bson.M{"email": containsFold(opts.Search)},
		}
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("mongodb: counting users: %w", err)
	}

	cursor, err := s.coll.Find(ctx, filter, pageOptions(opts.Limit, opts.Offset))
	if err != nil {
		return nil, 0, fmt.Errorf("mongodb: listing users: %w", err)
	}
	users := []model.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, fmt.Errorf("mongodb: decoding users: %w", err)
	}
	return users, total, nil
}

func (s *UserStore) MarkEmailVerified(ctx context.Context, userID string) error {
	return s.set(ctx, userID, bson.M{"email_verified": true})
}

func (s *UserStore) LinkGoogleID(ctx context.Context, userID, googleID string, clearPassword bool) error {
	fields := bson.M{"googleId": googleID}
	if clearPassword {
		fields["password"] = ""
	}
	err := s.set(ctx, userID, fields)
	if mongo.IsDuplicateKeyError(err) {
		return apperror.Conflict("Google account is already linked to another user")
	}
	return err
}

func (s *UserStore) SetBanned(ctx context.Context, userID string, banned bool) error {
	return s.set(ctx, userID, bson.M{"banned_user": banned})
}

func (s *UserStore) SetDeleted(ctx context.Context, userID string, deleted bool) error {
	return s.set(ctx, userID, bson.M{"deleted_user": deleted})
}

func (s *UserStore) set(ctx context.Context, userID string, fields bson.M) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{"$set": fields})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return err
		}
		return fmt.Errorf("mongodb: updating user %s: %w", userID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}
