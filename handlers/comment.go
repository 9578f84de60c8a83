package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"wellfeed/database"
	"wellfeed/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CreateCommentRequest struct {
	PostID  string `json:"postId" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func CreateComment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	postID, err := primitive.ObjectIDFromHex(req.PostID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var post models.Post
	err = database.Posts.FindOne(ctx, bson.M{"_id": postID}).Decode(&post)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if err != nil {
		log.Printf("CreateComment find post error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}

	if !post.AllowComments {
		c.JSON(http.StatusForbidden, gin.H{"error": "Comments are disabled for this post"})
		return
	}

	now := time.Now().Unix()
	comment := models.Comment{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		PostID:    postID,
		Content:   req.Content,
		Likes:     []primitive.ObjectID{},
		Replies:   []primitive.ObjectID{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := database.Comments.InsertOne(ctx, comment); err != nil {
		log.Printf("CreateComment insert error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create comment"})
		return
	}

	invalidateFeed(ctx)
	broadcast("comment.created", comment)

	if post.UserID != userID {
		notifyUser(post.UserID, "New comment", "Someone commented on your post")
	}

	c.JSON(http.StatusCreated, comment)
}

// GetPostComments lists a post's comments newest first, with authors and
// reply documents resolved.
func GetPostComments(c *gin.Context) {
	postID, err := primitive.ObjectIDFromHex(c.Param("postId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "postId", Value: postID}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "users"},
			{Key: "localField", Value: "userId"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "user"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$user"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "comments"},
			{Key: "localField", Value: "replies"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "repliesLoaded"},
		}}},
	}

	cursor, err := database.Comments.Aggregate(ctx, pipeline)
	if err != nil {
		log.Printf("GetPostComments aggregate error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch comments"})
		return
	}
	defer cursor.Close(ctx)

	comments := []models.Comment{}
	if err := cursor.All(ctx, &comments); err != nil {
		log.Printf("GetPostComments decode error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode comments"})
		return
	}

	c.JSON(http.StatusOK, comments)
}

type UpdateCommentRequest struct {
	Content string `json:"content" binding:"required"`
}

func UpdateComment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	commentID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var comment models.Comment
	err = database.Comments.FindOne(ctx, bson.M{"_id": commentID}).Decode(&comment)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}
	if err != nil {
		log.Printf("UpdateComment find error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch comment"})
		return
	}

	if comment.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized"})
		return
	}

	var req UpdateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var updated models.Comment
	err = database.Comments.FindOneAndUpdate(
		ctx,
		bson.M{"_id": commentID},
		bson.M{"$set": bson.M{"content": req.Content, "updatedAt": time.Now().Unix()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		log.Printf("UpdateComment update error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update comment"})
		return
	}

	invalidateFeed(ctx)

	c.JSON(http.StatusOK, updated)
}

func DeleteComment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	commentID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var comment models.Comment
	err = database.Comments.FindOne(ctx, bson.M{"_id": commentID}).Decode(&comment)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}
	if err != nil {
		log.Printf("DeleteComment find error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch comment"})
		return
	}

	if comment.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized"})
		return
	}

	// Detach from any parent comment that references it as a reply
	if _, err := database.Comments.UpdateMany(
		ctx,
		bson.M{"replies": commentID},
		bson.M{"$pull": bson.M{"replies": commentID}},
	); err != nil {
		log.Printf("DeleteComment reply detach error: %v", err)
	}

	if _, err := database.Comments.DeleteOne(ctx, bson.M{"_id": commentID}); err != nil {
		log.Printf("DeleteComment delete error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete comment"})
		return
	}

	invalidateFeed(ctx)

	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted"})
}

func ToggleCommentLike(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	commentID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var comment models.Comment
	err = database.Comments.FindOneAndUpdate(
		ctx,
		bson.M{"_id": commentID},
		likeTogglePipeline(userID),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&comment)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}
	if err != nil {
		log.Printf("ToggleCommentLike error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update comment"})
		return
	}

	invalidateFeed(ctx)

	if comment.UserID != userID && containsID(comment.Likes, userID) {
		notifyUser(comment.UserID, "New like", "Someone liked your comment")
	}

	c.JSON(http.StatusOK, comment)
}

type ReplyRequest struct {
	Content string `json:"content" binding:"required"`
}

// ReplyToComment creates a reply in the same thread and links it to the
// parent's replies list.
func ReplyToComment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	parentID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}

	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var parent models.Comment
	err = database.Comments.FindOne(ctx, bson.M{"_id": parentID}).Decode(&parent)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}
	if err != nil {
		log.Printf("ReplyToComment find error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch comment"})
		return
	}

	now := time.Now().Unix()
	reply := models.Comment{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		PostID:    parent.PostID,
		Content:   req.Content,
		Likes:     []primitive.ObjectID{},
		Replies:   []primitive.ObjectID{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := database.Comments.InsertOne(ctx, reply); err != nil {
		log.Printf("ReplyToComment insert error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create reply"})
		return
	}

	if _, err := database.Comments.UpdateOne(
		ctx,
		bson.M{"_id": parentID},
		bson.M{"$push": bson.M{"replies": reply.ID}},
	); err != nil {
		log.Printf("ReplyToComment link error: %v", err)
	}

	invalidateFeed(ctx)

	if parent.UserID != userID {
		notifyUser(parent.UserID, "New reply", "Someone replied to your comment")
	}

	c.JSON(http.StatusCreated, reply)
}
