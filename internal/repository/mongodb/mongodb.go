// Package mongodb implements the repository interfaces on MongoDB.
//
// Documents use the field names declared by the bson tags in package model
// (user_id, post_additional.likes, total_comment, ...). Every lookup is by
// those application ids, never by _id.
package mongodb

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DB holds the client and database handle.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri, pings the primary and makes sure the indexes exist.
func Connect(ctx context.Context, uri, database string) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connecting: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: pinging: %w", err)
	}

	db := &DB{client: client, db: client.Database(database)}
	if err := db.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: creating indexes: %w", err)
	}
	return db, nil
}

// Close disconnects the client.
func (db *DB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

// Drop removes the whole database. Only tests call it.
func (db *DB) Drop(ctx context.Context) error {
	return db.db.Drop(ctx)
}

func (db *DB) Users() *UserStore {
	return &UserStore{coll: db.db.Collection("users")}
}

func (db *DB) Posts() *PostStore {
	return &PostStore{coll: db.db.Collection("posts")}
}

// Comments returns the comment store on the named collection, either
// "comments" or "like_comments".
func (db *DB) Comments(collection string) (*CommentStore, error) {
	switch collection {
	case "comments", "like_comments":
		return &CommentStore{coll: db.db.Collection(collection)}, nil
	default:
		return nil, fmt.Errorf("mongodb: unknown comments collection %q", collection)
	}
}

func (db *DB) ensureIndexes(ctx context.Context) error {
	unique := func(keys bson.D) mongo.IndexModel {
		return mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
	}

	indexes := map[string][]mongo.IndexModel{
		"users": {
			unique(bson.D{{Key: "user_id", Value: 1}}),
			unique(bson.D{{Key: "email", Value: 1}}),
			{
				Keys:    bson.D{{Key: "googleId", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
		},
		"posts": {
			unique(bson.D{{Key: "post_id", Value: 1}}),
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "createdBy", Value: 1}}},
		},
		"comments": {
			unique(bson.D{{Key: "id", Value: 1}}),
			{Keys: bson.D{{Key: "post_id", Value: 1}}},
		},
		"like_comments": {
			unique(bson.D{{Key: "id", Value: 1}}),
			{Keys: bson.D{{Key: "post_id", Value: 1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := db.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%s: %w", coll, err)
		}
	}
	return nil
}

// containsFold matches term anywhere in the field, case-insensitively.
func containsFold(term string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}
}

func pageOptions(limit, offset int) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
}
