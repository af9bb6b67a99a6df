// Package model defines the data structures used throughout the application.
package model

import "time"

// Role values. Authorization is a binary user/admin check.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Image is a reference to an object held by the object store.
// Both fields are empty strings when there is no image.
type Image struct {
	ID  string `json:"id"  bson:"id"`
	URL string `json:"url" bson:"url"`
}

// User is an account record.
//
// UserID is "{n}-{32 hex chars}" where n is the user count at creation time
// plus one. It is assigned once and never changes. Password holds a bcrypt
// hash and is empty for accounts created through federated login.
type User struct {
	UserID        string    `json:"user_id"        bson:"user_id"`
	GoogleID      string    `json:"-"              bson:"googleId,omitempty"`
	Name          string    `json:"name"           bson:"name"`
	Email         string    `json:"email"          bson:"email"`
	Password      string    `json:"-"              bson:"password,omitempty"`
	Avatar        Image     `json:"avatar"         bson:"avatar"`
	Role          string    `json:"role"           bson:"role"`
	BannedUser    bool      `json:"banned_user"    bson:"banned_user"`
	DeletedUser   bool      `json:"deleted_user"   bson:"deleted_user"`
	EmailVerified bool      `json:"email_verified" bson:"email_verified"`
	CreatedAt     time.Time `json:"createdAt"      bson:"createdAt"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Author is the denormalized {name, avatar} snapshot attached to posts,
// likes and comments.
type Author struct {
	Name   string `json:"name"   bson:"name"`
	Avatar Image  `json:"avatar" bson:"avatar"`
}
