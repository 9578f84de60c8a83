package routes

import (
	"time"

	"wellfeed/config"
	"wellfeed/handlers"
	"wellfeed/middleware"
	"wellfeed/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(cfg *config.Config, hub *websocket.Hub) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Uploaded media is served straight off disk at the same prefix the
	// stored references use
	router.Static("/uploads", cfg.UploadDir)

	// Public routes (no auth required), rate limited
	authLimiter := middleware.NewIPRateLimiter(20, time.Minute)
	auth := router.Group("/api/auth")
	auth.Use(middleware.RateLimitMiddleware(authLimiter))
	auth.POST("/signup", handlers.Signup)
	auth.POST("/login", handlers.Login)

	router.GET("/api/vapid-public-key", handlers.GetVapidPublicKey)

	// Protected routes group
	protected := router.Group("/api")
	protected.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))

	// Profile
	protected.GET("/me", handlers.GetMe)
	protected.POST("/me/photo", handlers.UploadPhoto)
	protected.GET("/users/:id", handlers.GetUser)

	// Posts
	protected.POST("/posts", handlers.CreatePost)
	protected.GET("/posts", handlers.GetFeed)
	protected.GET("/posts/user/:userId", handlers.GetUserPosts)
	protected.GET("/posts/:id", handlers.GetPost)
	protected.PUT("/posts/:id", handlers.UpdatePost)
	protected.DELETE("/posts/:id", handlers.DeletePost)
	protected.POST("/posts/:id/like", handlers.TogglePostLike)
	protected.POST("/posts/:id/comments", handlers.AddPostComment)

	// Comments
	protected.POST("/comments", handlers.CreateComment)
	protected.GET("/comments/post/:postId", handlers.GetPostComments)
	protected.PUT("/comments/:id", handlers.UpdateComment)
	protected.DELETE("/comments/:id", handlers.DeleteComment)
	protected.POST("/comments/:id/like", handlers.ToggleCommentLike)
	protected.POST("/comments/:id/reply", handlers.ReplyToComment)

	// Push subscriptions
	protected.POST("/subscribe", handlers.SubscribePush)

	// Realtime events; token comes in via query param since browsers
	// can't set headers on WebSocket requests
	router.GET("/ws", middleware.JWTAuthMiddleware(cfg.JWTSecret), func(c *gin.Context) {
		websocket.Handler(hub)(c.Writer, c.Request)
	})

	// JSON 404 for unknown API routes
	router.NoRoute(func(c *gin.Context) {
		if len(c.Request.URL.Path) >= 4 && c.Request.URL.Path[:4] == "/api" {
			c.JSON(404, gin.H{
				"error": "Endpoint not found",
				"path":  c.Request.URL.Path,
			})
			return
		}
		c.Next()
	})

	return router
}
