package model

import "time"

// Comment belongs to a post. Name and Avatar are a snapshot of the
// commenting user taken at write time and are not kept in sync afterwards.
type Comment struct {
	ID        string    `json:"id"        bson:"id"`
	PostID    string    `json:"post_id"   bson:"post_id"`
	Comment   string    `json:"comment"   bson:"comment"`
	UserID    string    `json:"user_id"   bson:"user_id"`
	Name      string    `json:"name"      bson:"name"`
	Avatar    Image     `json:"avatar"    bson:"avatar"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
