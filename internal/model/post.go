package model

import "time"

// Like is one entry of a post's like set. At most one entry exists per UserID.
type Like struct {
	ID     string `json:"id"      bson:"id"`
	UserID string `json:"user_id" bson:"user_id"`
	Name   string `json:"name"    bson:"name"`
	Avatar Image  `json:"avatar"  bson:"avatar"`
}

// PostAdditional groups the mutable engagement data of a post.
type PostAdditional struct {
	Likes []Like `json:"likes" bson:"likes"`
}

// Post is a user-authored entry with an optional image.
//
// Views and TotalComment are counters maintained by increments; they can
// drift from the true counts and are repaired by counter reconciliation.
type Post struct {
	PostID         string         `json:"post_id"          bson:"post_id"`
	PostImage      Image          `json:"post_image"       bson:"post_image"`
	Description    string         `json:"post_description" bson:"post_description"`
	PostAdditional PostAdditional `json:"post_additional"  bson:"post_additional"`
	Views          int64          `json:"views"            bson:"views"`
	TotalComment   int64          `json:"total_comment"    bson:"total_comment"`
	Restricted     bool           `json:"restricted"       bson:"restricted"`
	CreatedBy      string         `json:"createdBy"        bson:"createdBy"`
	CreatedAt      time.Time      `json:"createdAt"        bson:"createdAt"`

	// Author is filled in by list operations, it is not persisted.
	Author *Author `json:"author,omitempty" bson:"-"`
}

// HasImage reports whether the post references a stored image.
func (p *Post) HasImage() bool {
	return p.PostImage.ID != ""
}

// LikedBy reports whether userID has an entry in the like set.
func (p *Post) LikedBy(userID string) bool {
	for _, l := range p.PostAdditional.Likes {
		if l.UserID == userID {
			return true
		}
	}
	return false
}
