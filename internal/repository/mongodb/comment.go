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

var _ repository.CommentRepository = (*CommentStore)(nil)

// CommentStore is either the comments or the like_comments collection.
type CommentStore struct {
	coll *mongo.Collection
}

func (s *CommentStore) Create(ctx context.Context, comment *model.Comment) error {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	if _, err := s.coll.InsertOne(ctx, comment); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("comment already exists")
		}
		return fmt.Errorf("mongodb: inserting comment %s: %w", comment.ID, err)
	}
	return nil
}

func (s *CommentStore) GetByID(ctx context.Context, id string) (*model.Comment, error) {
	var c model.Comment
	if err := s.coll.FindOne(ctx, bson.M{"id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFoundMessage("Comment not found")
		}
		return nil, fmt.Errorf("mongodb: finding comment %s: %w", id, err)
	}
	return &c, nil
}

func (s *CommentStore) ListByPost(ctx context.Context, postID string) ([]model.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.coll.Find(ctx, bson.M{"post_id": postID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing comments of %s: %w", postID, err)
	}
	comments := []model.Comment{}
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, fmt.Errorf("mongodb: decoding comments: %w", err)
	}
	return comments, nil
}

func (s *CommentStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("mongodb: deleting comment %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFoundMessage("Comment not found")
	}
	return nil
}

func (s *CommentStore) DeleteByPost(ctx context.Context, postID string) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"post_id": postID})
	if err != nil {
		return 0, fmt.Errorf("mongodb: deleting comments of %s: %w", postID, err)
	}
	return res.DeletedCount, nil
}

func (s *CommentStore) CountByPost(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$post_id", "n": bson.M{"$sum": 1}}}},
	}
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongodb: counting comments: %w", err)
	}
	defer cursor.Close(ctx)

	counts := map[string]int64{}
	for cursor.Next(ctx) {
		var row struct {
			PostID string `bson:"_id"`
			N      int64  `bson:"n"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("mongodb: decoding comment count: %w", err)
		}
		counts[row.PostID] = row.N
	}
	return counts, cursor.Err()
}
