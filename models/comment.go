package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type Comment struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID   `bson:"userId" json:"userId"`
	PostID    primitive.ObjectID   `bson:"postId" json:"postId"`
	Content   string               `bson:"content" json:"content"`
	Likes     []primitive.ObjectID `bson:"likes" json:"likes"`
	Replies   []primitive.ObjectID `bson:"replies" json:"replies"`
	CreatedAt int64                `bson:"createdAt" json:"createdAt"`
	UpdatedAt int64                `bson:"updatedAt" json:"updatedAt"`

	// Populated in responses only.
	User          *UserRef  `bson:"user,omitempty" json:"user,omitempty"`
	RepliesLoaded []Comment `bson:"repliesLoaded,omitempty" json:"repliesLoaded,omitempty"`
}
