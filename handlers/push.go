package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"wellfeed/database"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PushSubscription struct {
	ID     primitive.ObjectID   `bson:"_id,omitempty"`
	UserID primitive.ObjectID   `bson:"userId"`
	Sub    webpush.Subscription `bson:"sub"`
}

func GetVapidPublicKey(c *gin.Context) {
	if vapidPublicKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Push notifications not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"publicKey": vapidPublicKey})
}

func SubscribePush(c *gin.Context) {
	var req struct {
		Endpoint string `json:"endpoint" binding:"required"`
		Keys     struct {
			P256dh string `json:"p256dh" binding:"required"`
			Auth   string `json:"auth" binding:"required"`
		} `json:"keys" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub := PushSubscription{
		UserID: userID,
		Sub: webpush.Subscription{
			Endpoint: req.Endpoint,
			Keys: webpush.Keys{
				P256dh: req.Keys.P256dh,
				Auth:   req.Keys.Auth,
			},
		},
	}

	// One subscription per user: update if exists, insert if not
	_, err := database.PushSubs.UpdateOne(
		ctx,
		bson.M{"userId": userID},
		bson.M{"$set": sub},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		log.Printf("SubscribePush save error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Push subscription saved"})
}

// notifyUser sends a best-effort web push to the user's subscription, if
// any. Runs in the background; delivery failures are only logged.
func notifyUser(userID primitive.ObjectID, title, body string) {
	if vapidPrivateKey == "" || vapidPublicKey == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var sub PushSubscription
		if err := database.PushSubs.FindOne(ctx, bson.M{"userId": userID}).Decode(&sub); err != nil {
			return
		}

		payload, err := json.Marshal(gin.H{"title": title, "body": body})
		if err != nil {
			return
		}

		resp, err := webpush.SendNotification(payload, &sub.Sub, &webpush.Options{
			Subscriber:      "mailto:admin@wellfeed.app",
			VAPIDPublicKey:  vapidPublicKey,
			VAPIDPrivateKey: vapidPrivateKey,
			TTL:             60,
		})
		if err != nil {
			log.Printf("Push delivery error for user %s: %v", userID.Hex(), err)
			return
		}
		resp.Body.Close()
	}()
}
