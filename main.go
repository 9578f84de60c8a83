package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wellfeed/cache"
	"wellfeed/config"
	"wellfeed/database"
	"wellfeed/handlers"
	"wellfeed/routes"
	"wellfeed/storage"
	"wellfeed/websocket"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("Starting wellfeed backend...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	log.Println("Connecting to MongoDB...")
	var dbErr error
	for i := 1; i <= 3; i++ {
		if err := database.Connect(cfg.MongoURI, cfg.DBName); err != nil {
			dbErr = err
			log.Printf("MongoDB connection attempt %d failed: %v", i, err)
			time.Sleep(2 * time.Second)
			continue
		}
		dbErr = nil
		break
	}
	if dbErr != nil {
		log.Fatal("Failed to connect to MongoDB:", dbErr)
	}
	defer database.Disconnect()

	cache.Init(cfg.RedisAddr)

	photoStore, err := storage.NewPhotoStore(cfg.CloudinaryURL)
	if err != nil {
		log.Fatal("Cloudinary configuration error:", err)
	}
	mediaStore := storage.NewDiskStore(cfg.UploadDir)

	hub := websocket.NewHub()
	go hub.Run()

	handlers.Configure(cfg, mediaStore, photoStore, hub)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := routes.SetupRouter(cfg, hub)

	router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "wellfeed backend running", "service": "healthy"})
	})
	router.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server running on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server error:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println("Forced shutdown:", err)
	}

	log.Println("Server stopped gracefully")
}
