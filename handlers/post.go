package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"wellfeed/cache"
	"wellfeed/database"
	"wellfeed/models"
	"wellfeed/storage"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const feedCacheTTL = 30 * time.Second

// populatedPost is a post with its owner and comment thread resolved.
type populatedPost struct {
	models.Post `bson:",inline"`
	LikedBy     []models.UserRef `bson:"likedBy" json:"likedBy"`
	Comments    []models.Comment `bson:"comments" json:"comments"`
}

type FeedResponse struct {
	Posts       []populatedPost `json:"posts"`
	CurrentPage int             `json:"currentPage"`
	TotalPages  int             `json:"totalPages"`
	TotalPosts  int64           `json:"totalPosts"`
}

// postLookupStages resolves the post owner and pulls the post's comments
// (each with its author) out of the comments collection.
func postLookupStages() []bson.D {
	return []bson.D{
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
			{Key: "from", Value: "users"},
			{Key: "localField", Value: "likes"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "likedBy"},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "comments"},
			{Key: "let", Value: bson.D{{Key: "postId", Value: "$_id"}}},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{{Key: "$eq", Value: bson.A{"$postId", "$$postId"}}}}}}},
				bson.D{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}}}},
				bson.D{{Key: "$lookup", Value: bson.D{
					{Key: "from", Value: "users"},
					{Key: "localField", Value: "userId"},
					{Key: "foreignField", Value: "_id"},
					{Key: "as", Value: "user"},
				}}},
				bson.D{{Key: "$unwind", Value: bson.D{
					{Key: "path", Value: "$user"},
					{Key: "preserveNullAndEmptyArrays", Value: true},
				}}},
			}},
			{Key: "as", Value: "comments"},
		}}},
	}
}

// likeTogglePipeline flips the caller's membership in the likes array in a
// single server-side update, so concurrent toggles cannot lose writes.
func likeTogglePipeline(userID primitive.ObjectID) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "likes", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$in", Value: bson.A{userID, "$likes"}}},
				bson.D{{Key: "$setDifference", Value: bson.A{"$likes", bson.A{userID}}}},
				bson.D{{Key: "$concatArrays", Value: bson.A{"$likes", bson.A{userID}}}},
			}}}},
			{Key: "updatedAt", Value: time.Now().Unix()},
		}}},
	}
}

func parsePagination(pageStr, limitStr string) (page, limit, skip int) {
	page = 1
	limit = 10
	if n, err := parsePositive(pageStr); err == nil {
		page = n
	}
	if n, err := parsePositive(limitStr); err == nil && n <= 100 {
		limit = n
	}
	skip = (page - 1) * limit
	return
}

func parsePositive(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, errors.New("empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errors.New("not a number")
		}
		n = n*10 + int(r-'0')
		if n > 1<<20 {
			return 0, errors.New("too large")
		}
	}
	if n < 1 {
		return 0, errors.New("not positive")
	}
	return n, nil
}

func CreatePost(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	caption := c.PostForm("caption")
	if caption == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Caption is required"})
		return
	}

	category := c.PostForm("category")
	if category == "" {
		category = models.DefaultCategory
	}
	if !models.ValidCategory(category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category: " + category})
		return
	}

	color, valid := models.NormalizeHexColor(c.PostForm("textBackgroundColor"))
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid text background color format"})
		return
	}

	isPrivate := c.PostForm("isPrivate") == "true"

	// Comments are allowed unless the caller explicitly disables them
	allowComments := true
	if v, present := c.GetPostForm("allowComments"); present {
		allowComments = v == "true"
	}

	mediaType := c.PostForm("mediaType")
	if mediaType != "" && !models.ValidMediaType(mediaType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid media type: " + mediaType})
		return
	}

	mediaURL := ""
	if fh, err := c.FormFile("media"); err == nil {
		url, err := mediaStore.Save(fh)
		if err != nil {
			var unsupported *storage.ErrUnsupportedMediaType
			if errors.Is(err, storage.ErrFileTooLarge) || errors.As(err, &unsupported) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			log.Printf("CreatePost media save error: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store media"})
			return
		}
		mediaURL = url
		if mediaType == "" {
			mediaType = storage.MediaTypeFor(fh.Header.Get("Content-Type"))
		}
	}
	if mediaType == "" {
		mediaType = models.MediaTypeText
	}

	now := time.Now().Unix()
	post := models.Post{
		ID:                  primitive.NewObjectID(),
		UserID:              userID,
		Caption:             caption,
		MediaURL:            mediaURL,
		MediaType:           mediaType,
		Category:            category,
		IsPrivate:           isPrivate,
		AllowComments:       allowComments,
		Likes:               []primitive.ObjectID{},
		TextBackgroundColor: color,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := database.Posts.InsertOne(ctx, post); err != nil {
		log.Printf("CreatePost error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create post"})
		return
	}

	var owner models.UserRef
	if err := database.Users.FindOne(ctx, bson.M{"_id": userID}).Decode(&owner); err == nil {
		post.User = &owner
	}

	invalidateFeed(ctx)
	broadcast("post.created", post)

	c.JSON(http.StatusCreated, post)
}

func GetFeed(c *gin.Context) {
	page, limit, skip := parsePagination(c.Query("page"), c.Query("limit"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var cached FeedResponse
	if found, err := cache.GetJSON(ctx, cache.FeedKey(page, limit), &cached); err == nil && found {
		c.JSON(http.StatusOK, cached)
		return
	}

	filter := bson.D{{Key: "isPrivate", Value: false}}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$skip", Value: skip}},
		{{Key: "$limit", Value: limit}},
	}
	pipeline = append(pipeline, postLookupStages()...)

	cursor, err := database.Posts.Aggregate(ctx, pipeline)
	if err != nil {
		log.Printf("GetFeed aggregate error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch posts"})
		return
	}
	defer cursor.Close(ctx)

	posts := []populatedPost{}
	if err := cursor.All(ctx, &posts); err != nil {
		log.Printf("GetFeed decode error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode posts"})
		return
	}

	total, err := database.Posts.CountDocuments(ctx, filter)
	if err != nil {
		log.Printf("GetFeed count error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count posts"})
		return
	}

	resp := FeedResponse{
		Posts:       posts,
		CurrentPage: page,
		TotalPages:  totalPages(total, limit),
		TotalPosts:  total,
	}

	_ = cache.SetJSON(ctx, cache.FeedKey(page, limit), resp, feedCacheTTL)

	c.JSON(http.StatusOK, resp)
}

func totalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

// GetUserPosts returns a user's posts: all of them for the owner, public
// ones for everyone else.
func GetUserPosts(c *gin.Context) {
	callerID, ok := currentUserID(c)
	if !ok {
		return
	}

	targetID, err := primitive.ObjectIDFromHex(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "userId", Value: targetID},
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "isPrivate", Value: false}},
				bson.D{{Key: "userId", Value: callerID}},
			}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
	}
	pipeline = append(pipeline, postLookupStages()...)

	cursor, err := database.Posts.Aggregate(ctx, pipeline)
	if err != nil {
		log.Printf("GetUserPosts aggregate error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch posts"})
		return
	}
	defer cursor.Close(ctx)

	posts := []populatedPost{}
	if err := cursor.All(ctx, &posts); err != nil {
		log.Printf("GetUserPosts decode error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode posts"})
		return
	}

	c.JSON(http.StatusOK, posts)
}

// GetPost fetches a single post by id. No visibility filter is applied
// here: private posts are readable by any authenticated caller, as in the
// original API.
func GetPost(c *gin.Context) {
	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "_id", Value: postID}}}},
	}
	pipeline = append(pipeline, postLookupStages()...)

	cursor, err := database.Posts.Aggregate(ctx, pipeline)
	if err != nil {
		log.Printf("GetPost aggregate error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}
	defer cursor.Close(ctx)

	var posts []populatedPost
	if err := cursor.All(ctx, &posts); err != nil {
		log.Printf("GetPost decode error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode post"})
		return
	}
	if len(posts) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}

	c.JSON(http.StatusOK, posts[0])
}

type UpdatePostRequest struct {
	Caption             *string `json:"caption"`
	Category            *string `json:"category"`
	IsPrivate           *bool   `json:"isPrivate"`
	AllowComments       *bool   `json:"allowComments"`
	TextBackgroundColor *string `json:"textBackgroundColor"`
	MediaType           *string `json:"mediaType"`
}

// buildPostPatch turns an update request into a $set document, allowing
// only the caller-editable fields through.
func buildPostPatch(req UpdatePostRequest) (bson.M, error) {
	patch := bson.M{}

	if req.Caption != nil {
		if *req.Caption == "" {
			return nil, errors.New("caption cannot be empty")
		}
		patch["caption"] = *req.Caption
	}
	if req.Category != nil {
		if !models.ValidCategory(*req.Category) {
			return nil, errors.New("invalid category: " + *req.Category)
		}
		patch["category"] = *req.Category
	}
	if req.IsPrivate != nil {
		patch["isPrivate"] = *req.IsPrivate
	}
	if req.AllowComments != nil {
		patch["allowComments"] = *req.AllowComments
	}
	if req.TextBackgroundColor != nil {
		color, valid := models.NormalizeHexColor(*req.TextBackgroundColor)
		if !valid {
			return nil, errors.New("invalid text background color format")
		}
		patch["textBackgroundColor"] = color
	}
	if req.MediaType != nil {
		if !models.ValidMediaType(*req.MediaType) {
			return nil, errors.New("invalid media type: " + *req.MediaType)
		}
		patch["mediaType"] = *req.MediaType
	}

	return patch, nil
}

func UpdatePost(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
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
		log.Printf("UpdatePost find error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}

	// Existence and ownership are decided before the body is even parsed
	if post.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized"})
		return
	}

	var req UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch, err := buildPostPatch(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(patch) == 0 {
		c.JSON(http.StatusOK, post)
		return
	}
	patch["updatedAt"] = time.Now().Unix()

	var updated models.Post
	err = database.Posts.FindOneAndUpdate(
		ctx,
		bson.M{"_id": postID},
		bson.M{"$set": patch},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		log.Printf("UpdatePost update error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update post"})
		return
	}

	invalidateFeed(ctx)

	c.JSON(http.StatusOK, updated)
}

func DeletePost(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
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
		log.Printf("DeletePost find error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}

	if post.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized"})
		return
	}

	if _, err := database.Posts.DeleteOne(ctx, bson.M{"_id": postID}); err != nil {
		log.Printf("DeletePost delete error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete post"})
		return
	}

	// Blob cleanup only once the document is gone; a failed delete must
	// not leave a surviving post pointing at a removed file
	if post.MediaURL != "" {
		if err := mediaStore.Remove(post.MediaURL); err != nil {
			log.Printf("DeletePost media cleanup error: %v", err)
		}
	}

	invalidateFeed(ctx)

	c.JSON(http.StatusOK, gin.H{"message": "Post deleted successfully"})
}

func TogglePostLike(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var post models.Post
	err = database.Posts.FindOneAndUpdate(
		ctx,
		bson.M{"_id": postID},
		likeTogglePipeline(userID),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&post)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if err != nil {
		log.Printf("TogglePostLike error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update post"})
		return
	}

	invalidateFeed(ctx)
	broadcast("post.liked", gin.H{"postId": post.ID.Hex(), "likes": len(post.Likes)})

	// Push only when the toggle added a like, to the post owner
	if post.UserID != userID && containsID(post.Likes, userID) {
		notifyUser(post.UserID, "New like", "Someone liked your post")
	}

	c.JSON(http.StatusOK, post)
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type AddPostCommentRequest struct {
	Text string `json:"text" binding:"required"`
}

// AddPostComment appends a comment to a post's thread. Comments live in
// their own collection; post reads stitch them back in by query.
func AddPostComment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}

	var req AddPostCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
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
		log.Printf("AddPostComment find error: %v", err)
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
		Content:   req.Text,
		Likes:     []primitive.ObjectID{},
		Replies:   []primitive.ObjectID{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := database.Comments.InsertOne(ctx, comment); err != nil {
		log.Printf("AddPostComment insert error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create comment"})
		return
	}

	var author models.UserRef
	if err := database.Users.FindOne(ctx, bson.M{"_id": userID}).Decode(&author); err == nil {
		comment.User = &author
	}

	invalidateFeed(ctx)
	broadcast("comment.created", comment)

	if post.UserID != userID {
		notifyUser(post.UserID, "New comment", "Someone commented on your post")
	}

	c.JSON(http.StatusOK, comment)
}
