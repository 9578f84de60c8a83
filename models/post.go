package models

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
	MediaTypeText  = "text"

	DefaultCategory        = "General"
	DefaultBackgroundColor = "#000000"
)

// Categories a post can be filed under.
var Categories = []string{
	"General",
	"Fitness",
	"Nutrition",
	"Mental Health",
	"Lifestyle",
	"Motivation",
}

var hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6,8}$`)

type Post struct {
	ID                  primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	UserID              primitive.ObjectID   `bson:"userId" json:"userId"`
	Caption             string               `bson:"caption" json:"caption"`
	MediaURL            string               `bson:"mediaUrl,omitempty" json:"mediaUrl,omitempty"`
	MediaType           string               `bson:"mediaType" json:"mediaType"`
	Category            string               `bson:"category" json:"category"`
	IsPrivate           bool                 `bson:"isPrivate" json:"isPrivate"`
	AllowComments       bool                 `bson:"allowComments" json:"allowComments"`
	Likes               []primitive.ObjectID `bson:"likes" json:"likes"`
	TextBackgroundColor string               `bson:"textBackgroundColor" json:"textBackgroundColor"`
	CreatedAt           int64                `bson:"createdAt" json:"createdAt"`
	UpdatedAt           int64                `bson:"updatedAt" json:"updatedAt"`

	// Populated in responses only.
	User *UserRef `bson:"user,omitempty" json:"user,omitempty"`
}

func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func ValidMediaType(t string) bool {
	return t == MediaTypeImage || t == MediaTypeVideo || t == MediaTypeText
}

// NormalizeHexColor prepends a missing '#' and validates the result against
// the #RRGGBB / #RRGGBBAA pattern.
func NormalizeHexColor(s string) (string, bool) {
	if s == "" {
		return DefaultBackgroundColor, true
	}
	if s[0] != '#' {
		s = "#" + s
	}
	if !hexColorRe.MatchString(s) {
		return "", false
	}
	return s, true
}
