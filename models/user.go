package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string             `bson:"name" json:"name"`
	Email          string             `bson:"email" json:"email"`
	PasswordHash   string             `bson:"passwordHash" json:"-"`
	ProfilePicture string             `bson:"profilePicture" json:"profilePicture"`
	Bio            string             `bson:"bio" json:"bio"`
	CreatedAt      int64              `bson:"createdAt" json:"createdAt"`
}

// UserRef is the projection of a user attached to posts and comments.
type UserRef struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string             `bson:"name" json:"name"`
	Email          string             `bson:"email,omitempty" json:"email,omitempty"`
	ProfilePicture string             `bson:"profilePicture,omitempty" json:"profilePicture,omitempty"`
}
