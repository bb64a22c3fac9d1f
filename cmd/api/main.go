package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"bookdigest/db"
	"bookdigest/internal/handler"
	"bookdigest/internal/repository"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// redisQueue enqueues upload IDs for the worker to pick up.
type redisQueue struct{}

func (redisQueue) Enqueue(uploadID int64) error {
	return db.PushToQueue(db.UploadQueueKey, strconv.FormatInt(uploadID, 10))
}

func main() {

	godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	err := db.Connect()
	if err != nil {
		log.Fatalf("error connecting to DB: %v", err)
	}
	defer db.Close()

	err = db.ConnectRedis()
	if err != nil {
		log.Fatalf("error connecting to Redis: %v", err)
	}
	defer db.CloseRedis()

	uploadDir := os.Getenv("UPLOAD_DIR")
	if uploadDir != "" {
		if err := os.MkdirAll(uploadDir, 0755); err != nil {
			log.Fatalf("error creating upload dir: %v", err)
		}
	}

	uploadRepo := repository.NewUploadRepository(db.DB)
	bookmarkRepo := repository.NewBookmarkRepository(db.DB)
	summaryRepo := repository.NewSummaryRepository(db.DB)
	logRepo := repository.NewLogRepository(db.DB)

	uploadHandler := handler.NewUploadHandler(uploadRepo, bookmarkRepo, summaryRepo, logRepo, redisQueue{}, uploadDir)
	bookmarkHandler := handler.NewBookmarkHandler(bookmarkRepo, logRepo)

	r := gin.Default()

	allowedOrigins := []string{"http://localhost:3000"}

	if frontendURL := os.Getenv("FRONTEND_URL"); frontendURL != "" {
		allowedOrigins = append(allowedOrigins, frontendURL)
	}

	slog.Info("AllowOrigins URL:", "urls", allowedOrigins)

	r.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
	}))

	r.POST("/uploads", uploadHandler.CreateUpload)
	r.GET("/uploads", uploadHandler.ListUploads)
	r.GET("/uploads/:id", uploadHandler.GetUpload)
	r.GET("/uploads/:id/bookmarks", uploadHandler.GetUploadBookmarks)
	r.GET("/uploads/:id/summary", uploadHandler.GetUploadSummary)
	r.GET("/uploads/:id/logs", uploadHandler.GetUploadLogs)
	r.GET("/bookmarks/:id", bookmarkHandler.GetBookmark)
	r.GET("/bookmarks/:id/logs", bookmarkHandler.GetBookmarkLogs)
	r.GET("/health", uploadHandler.GetHealth)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	err = r.Run(":" + port)
	if err != nil {
		log.Fatalf("error starting server: %v", err)
	}
}
