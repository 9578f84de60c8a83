package handlers

import (
	"context"
	"net/http"

	"wellfeed/cache"
	"wellfeed/config"
	"wellfeed/storage"
	"wellfeed/websocket"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Dependencies shared across all handler files, wired once from main.
var (
	jwtSecret       string
	vapidPublicKey  string
	vapidPrivateKey string
	mediaStore      *storage.DiskStore
	photoStore      *storage.PhotoStore
	wsHub           *websocket.Hub
)

func Configure(cfg *config.Config, media *storage.DiskStore, photos *storage.PhotoStore, hub *websocket.Hub) {
	jwtSecret = cfg.JWTSecret
	vapidPublicKey = cfg.VAPIDPublicKey
	vapidPrivateKey = cfg.VAPIDPrivateKey
	mediaStore = media
	photoStore = photos
	wsHub = hub
}

// currentUserID reads the authenticated caller set by the JWT middleware.
// Writes the 401 response itself when the id is missing or malformed.
func currentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	userID, err := primitive.ObjectIDFromHex(c.GetString("userId"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return primitive.NilObjectID, false
	}
	return userID, true
}

func broadcast(eventType string, payload any) {
	if wsHub != nil {
		wsHub.Broadcast(eventType, payload)
	}
}

// Every write that feed pages surface through $lookup goes through this,
// so cached pages never outlive the data they were built from. Variable
// so tests can observe the calls.
var invalidateFeed = func(ctx context.Context) {
	cache.InvalidateFeed(ctx)
}
