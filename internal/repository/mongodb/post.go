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

var _ repository.PostRepository = (*PostStore)(nil)

// PostStore is the posts collection. The like set is embedded in each
// document under post_additional.likes.
type PostStore struct {
	coll *mongo.Collection
}

const likesField = "post_additional.likes"

func (s *PostStore) Create(ctx context.Context, post *model.Post) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	post.PostAdditional.Likes = []model.Like{}
	if _, err := s.coll.InsertOne(ctx, post); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("post already exists")
		}
		return fmt.Errorf("mongodb: inserting post %s: %w", post.PostID, err)
	}
	return nil
}

func (s *PostStore) GetByID(ctx context.Context, postID string) (*model.Post, error) {
	var p model.Post
	if err := s.coll.FindOne(ctx, bson.M{"post_id": postID}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("post", postID)
		}
		return nil, fmt.Errorf("mongodb: finding post %s: %w", postID, err)
	}
	if p.PostAdditional.Likes == nil {
		p.PostAdditional.Likes = []model.Like{}
	}
	return &p, nil
}

func (s *PostStore) List(ctx context.Context, opts repository.ListOptions) ([]model.Post, int64, error) {
	return s.list(ctx, bson.M{}, opts)
}

func (s *PostStore) ListByCreator(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Post, int64, error) {
	return s.list(ctx, bson.M{"createdBy": userID}, opts)
}

func (s *PostStore) list(ctx context.Context, filter bson.M, opts repository.ListOptions) ([]model.Post, int64, error) {
	if opts.Search != "" {
		filter["$or"] = bson.A{
			bson.M{"post_description": containsFold(opts.Search)},
			bson.M{"post_id": containsFold(opts.Search)},
		}
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("mongodb: counting posts: %w", err)
	}

	cursor, err := s.coll.Find(ctx, filter, pageOptions(opts.Limit, opts.Offset))
	if err != nil {
		return nil, 0, fmt.Errorf("mongodb: listing posts: %w", err)
	}
	posts := []model.Post{}
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, 0, fmt.Errorf("mongodb: decoding posts: %w", err)
	}
	for i := range posts {
		if posts[i].PostAdditional.Likes == nil {
			posts[i].PostAdditional.Likes = []model.Like{}
		}
	}
	return posts, total, nil
}

func (s *PostStore) UpdateDescription(ctx context.Context, postID, description string) error {
	return s.update(ctx, postID, bson.M{"$set": bson.M{"post_description": description}})
}

func (s *PostStore) Delete(ctx context.Context, postID string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"post_id": postID})
	if err != nil {
		return fmt.Errorf("mongodb: deleting post %s: %w", postID, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("post", postID)
	}
	return nil
}

func (s *PostStore) IncrementViews(ctx context.Context, postID string) error {
	return s.update(ctx, postID, bson.M{"$inc": bson.M{"views": 1}})
}

// AddToCommentCount uses an update pipeline so the clamp at zero happens in
// the same atomic document update as the increment.
func (s *PostStore) AddToCommentCount(ctx context.Context, postID string, delta int64) error {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"total_comment": bson.M{"$max": bson.A{bson.M{"$add": bson.A{"$total_comment", delta}}, 0}},
		}}},
	}
	return s.update(ctx, postID, pipeline)
}

func (s *PostStore) SetCommentCount(ctx context.Context, postID string, count int64) error {
	return s.update(ctx, postID, bson.M{"$set": bson.M{"total_comment": count}})
}

func (s *PostStore) ListIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"post_id": 1}).SetSort(bson.M{"_id": 1})
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing post ids: %w", err)
	}
	defer cursor.Close(ctx)

	ids := []string{}
	for cursor.Next(ctx) {
		var doc struct {
			PostID string `bson:"post_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongodb: decoding post id: %w", err)
		}
		ids = append(ids, doc.PostID)
	}
	return ids, cursor.Err()
}

// ToggleLike pulls the user's entry when present and pushes it otherwise.
// Each step is a single conditional document update, so concurrent toggles
// never leave two entries for the same user.
func (s *PostStore) ToggleLike(ctx context.Context, postID string, like model.Like) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"post_id": postID, likesField + ".user_id": like.UserID},
		bson.M{"$pull": bson.M{likesField: bson.M{"user_id": like.UserID}}},
	)
	if err != nil {
		return false, fmt.Errorf("mongodb: removing like on %s: %w", postID, err)
	}
	if res.ModifiedCount > 0 {
		return false, nil
	}

	res, err = s.coll.UpdateOne(ctx,
		bson.M{"post_id": postID, likesField + ".user_id": bson.M{"$ne": like.UserID}},
		bson.M{"$push": bson.M{likesField: like}},
	)
	if err != nil {
		return false, fmt.Errorf("mongodb: adding like on %s: %w", postID, err)
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"post_id": postID})
	if err != nil {
		return false, fmt.Errorf("mongodb: checking post %s: %w", postID, err)
	}
	if n == 0 {
		return false, apperror.NotFound("post", postID)
	}
	return true, nil
}

func (s *PostStore) update(ctx context.Context, postID string, update any) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"post_id": postID}, update)
	if err != nil {
		return fmt.Errorf("mongodb: updating post %s: %w", postID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("post", postID)
	}
	return nil
}
