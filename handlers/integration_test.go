//go:build integration

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wellfeed/config"
	"wellfeed/database"
	"wellfeed/middleware"
	"wellfeed/models"
	"wellfeed/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// These tests run the real handlers against a live MongoDB. Point
// MONGO_TEST_URI at an instance (defaults to localhost) and run with
// -tags integration.

const itSecret = "integration-test-secret"

var itUploadDir string

func TestMain(m *testing.M) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	dbName := "wellfeed_test_" + primitive.NewObjectID().Hex()

	if err := database.Connect(uri, dbName); err != nil {
		log.Fatalf("integration tests need MongoDB at %s: %v", uri, err)
	}

	var err error
	itUploadDir, err = os.MkdirTemp("", "wellfeed-it")
	if err != nil {
		log.Fatalf("temp upload dir: %v", err)
	}

	gin.SetMode(gin.TestMode)
	Configure(&config.Config{JWTSecret: itSecret, UploadDir: itUploadDir}, storage.NewDiskStore(itUploadDir), nil, nil)

	code := m.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	database.Client.Database(dbName).Drop(ctx)
	cancel()
	database.Disconnect()
	os.RemoveAll(itUploadDir)
	os.Exit(code)
}

// itRouter wires the mutation routes exactly as in production, JWT
// middleware included.
func itRouter() *gin.Engine {
	router := gin.New()
	api := router.Group("/api")
	api.Use(middleware.JWTAuthMiddleware(itSecret))
	api.PUT("/posts/:id", UpdatePost)
	api.DELETE("/posts/:id", DeletePost)
	api.POST("/posts/:id/like", TogglePostLike)
	api.POST("/posts/:id/comments", AddPostComment)
	api.POST("/comments", CreateComment)
	api.PUT("/comments/:id", UpdateComment)
	api.DELETE("/comments/:id", DeleteComment)
	api.POST("/comments/:id/like", ToggleCommentLike)
	api.POST("/comments/:id/reply", ReplyToComment)
	return router
}

func seedUser(t *testing.T, name string) (primitive.ObjectID, string) {
	t.Helper()
	user := models.User{
		ID:        primitive.NewObjectID(),
		Name:      name,
		Email:     fmt.Sprintf("%s-%s@example.com", name, primitive.NewObjectID().Hex()),
		CreatedAt: time.Now().Unix(),
	}
	_, err := database.Users.InsertOne(context.Background(), user)
	require.NoError(t, err)

	token, err := middleware.GenerateToken(itSecret, user.ID.Hex())
	require.NoError(t, err)
	return user.ID, token
}

func seedPost(t *testing.T, owner primitive.ObjectID, allowComments bool) models.Post {
	t.Helper()
	now := time.Now().Unix()
	post := models.Post{
		ID:                  primitive.NewObjectID(),
		UserID:              owner,
		Caption:             "original caption",
		MediaType:           models.MediaTypeText,
		Category:            models.DefaultCategory,
		AllowComments:       allowComments,
		Likes:               []primitive.ObjectID{},
		TextBackgroundColor: models.DefaultBackgroundColor,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	_, err := database.Posts.InsertOne(context.Background(), post)
	require.NoError(t, err)
	return post
}

func doJSON(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func loadPost(t *testing.T, id primitive.ObjectID) models.Post {
	t.Helper()
	var post models.Post
	err := database.Posts.FindOne(context.Background(), bson.M{"_id": id}).Decode(&post)
	require.NoError(t, err)
	return post
}

func countComments(t *testing.T, postID primitive.ObjectID) int64 {
	t.Helper()
	n, err := database.Comments.CountDocuments(context.Background(), bson.M{"postId": postID})
	require.NoError(t, err)
	return n
}

func TestUpdatePostNonOwnerForbidden(t *testing.T) {
	router := itRouter()
	owner, _ := seedUser(t, "owner")
	_, intruderToken := seedUser(t, "intruder")
	post := seedPost(t, owner, true)

	w := doJSON(router, "PUT", "/api/posts/"+post.ID.Hex(), intruderToken,
		gin.H{"caption": "hijacked"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "original caption", loadPost(t, post.ID).Caption)
}

func TestDeletePostNonOwnerForbidden(t *testing.T) {
	router := itRouter()
	owner, _ := seedUser(t, "owner")
	_, intruderToken := seedUser(t, "intruder")
	post := seedPost(t, owner, true)

	w := doJSON(router, "DELETE", "/api/posts/"+post.ID.Hex(), intruderToken, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, post.ID, loadPost(t, post.ID).ID)
}

func TestUpdateCommentNonOwnerForbidden(t *testing.T) {
	router := itRouter()
	owner, _ := seedUser(t, "owner")
	author, authorToken := seedUser(t, "author")
	_, intruderToken := seedUser(t, "intruder")
	post := seedPost(t, owner, true)

	w := doJSON(router, "POST", "/api/comments", authorToken,
		gin.H{"postId": post.ID.Hex(), "content": "first"})
	require.Equal(t, http.StatusCreated, w.Code)
	var comment models.Comment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &comment))
	require.Equal(t, author, comment.UserID)

	w = doJSON(router, "PUT", "/api/comments/"+comment.ID.Hex(), intruderToken,
		gin.H{"content": "rewritten"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	var stored models.Comment
	require.NoError(t, database.Comments.FindOne(context.Background(),
		bson.M{"_id": comment.ID}).Decode(&stored))
	assert.Equal(t, "first", stored.Content)

	w = doJSON(router, "DELETE", "/api/comments/"+comment.ID.Hex(), intruderToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.EqualValues(t, 1, countComments(t, post.ID))
}

func TestCommentingDisabledForbidden(t *testing.T) {
	router := itRouter()
	owner, ownerToken := seedUser(t, "owner")
	post := seedPost(t, owner, false)

	w := doJSON(router, "POST", "/api/posts/"+post.ID.Hex()+"/comments", ownerToken,
		gin.H{"text": "hello"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, "POST", "/api/comments", ownerToken,
		gin.H{"postId": post.ID.Hex(), "content": "hello"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.EqualValues(t, 0, countComments(t, post.ID))
}

func TestTogglePostLikeRoundTrip(t *testing.T) {
	router := itRouter()
	owner, _ := seedUser(t, "owner")
	liker, likerToken := seedUser(t, "liker")
	post := seedPost(t, owner, true)

	w := doJSON(router, "POST", "/api/posts/"+post.ID.Hex()+"/like", likerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []primitive.ObjectID{liker}, loadPost(t, post.ID).Likes)

	// Same caller toggling again removes exactly their own entry
	w = doJSON(router, "POST", "/api/posts/"+post.ID.Hex()+"/like", likerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, loadPost(t, post.ID).Likes)
}

func TestTogglePostLikePreservesOtherLikers(t *testing.T) {
	router := itRouter()
	owner, _ := seedUser(t, "owner")
	first, firstToken := seedUser(t, "first")
	_, secondToken := seedUser(t, "second")
	post := seedPost(t, owner, true)

	require.Equal(t, http.StatusOK,
		doJSON(router, "POST", "/api/posts/"+post.ID.Hex()+"/like", firstToken, nil).Code)
	require.Equal(t, http.StatusOK,
		doJSON(router, "POST", "/api/posts/"+post.ID.Hex()+"/like", secondToken, nil).Code)
	require.Equal(t, http.StatusOK,
		doJSON(router, "POST", "/api/posts/"+post.ID.Hex()+"/like", secondToken, nil).Code)

	assert.Equal(t, []primitive.ObjectID{first}, loadPost(t, post.ID).Likes)
}

func TestDeletePostRemovesMediaAfterDocument(t *testing.T) {
	router := itRouter()
	owner, ownerToken := seedUser(t, "owner")
	post := seedPost(t, owner, true)

	blob := filepath.Join(itUploadDir, "posts", "it-blob.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(blob), 0o755))
	require.NoError(t, os.WriteFile(blob, []byte("jpeg bytes"), 0o644))
	_, err := database.Posts.UpdateOne(context.Background(),
		bson.M{"_id": post.ID},
		bson.M{"$set": bson.M{"mediaUrl": "/uploads/posts/it-blob.jpg"}})
	require.NoError(t, err)

	w := doJSON(router, "DELETE", "/api/posts/"+post.ID.Hex(), ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	n, err := database.Posts.CountDocuments(context.Background(), bson.M{"_id": post.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
	_, err = os.Stat(blob)
	assert.True(t, os.IsNotExist(err))
}

func TestCommentMutationsInvalidateFeedCache(t *testing.T) {
	router := itRouter()
	owner, _ := seedUser(t, "owner")
	_, authorToken := seedUser(t, "author")
	post := seedPost(t, owner, true)

	calls := 0
	prev := invalidateFeed
	invalidateFeed = func(ctx context.Context) { calls++ }
	defer func() { invalidateFeed = prev }()

	w := doJSON(router, "POST", "/api/comments", authorToken,
		gin.H{"postId": post.ID.Hex(), "content": "first"})
	require.Equal(t, http.StatusCreated, w.Code)
	var comment models.Comment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &comment))

	require.Equal(t, http.StatusOK,
		doJSON(router, "PUT", "/api/comments/"+comment.ID.Hex(), authorToken,
			gin.H{"content": "edited"}).Code)
	require.Equal(t, http.StatusOK,
		doJSON(router, "POST", "/api/comments/"+comment.ID.Hex()+"/like", authorToken, nil).Code)
	require.Equal(t, http.StatusCreated,
		doJSON(router, "POST", "/api/comments/"+comment.ID.Hex()+"/reply", authorToken,
			gin.H{"content": "a reply"}).Code)
	require.Equal(t, http.StatusOK,
		doJSON(router, "DELETE", "/api/comments/"+comment.ID.Hex(), authorToken, nil).Code)

	// create, update, like, reply, delete
	assert.Equal(t, 5, calls)
}
