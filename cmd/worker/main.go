package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"bookdigest/db"
	"bookdigest/internal/pipeline"
	"bookdigest/internal/repository"
	"bookdigest/pkg/extract"
	"bookdigest/pkg/llm"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {

	godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	err := db.ConnectRedis()
	if err != nil {
		log.Fatalf("error connecting to Redis: %v", err)
	}
	defer db.CloseRedis()

	err = db.Connect()
	if err != nil {
		log.Fatalf("error connecting to DB: %v", err)
	}
	defer db.Close()

	workers := getEnvInt("WORKER_COUNT", 4)
	maxRetries := getEnvInt("MAX_RETRIES", 3)

	uploadRepo := repository.NewUploadRepository(db.DB)
	bookmarkRepo := repository.NewBookmarkRepository(db.DB)
	summaryRepo := repository.NewSummaryRepository(db.DB)
	logRepo := repository.NewLogRepository(db.DB)

	nuggetClient, digestClient := buildLLMClients()

	audit := pipeline.NewAuditRecorder(logRepo)
	extractor := extract.NewExtractor()
	processor := pipeline.NewProcessor(bookmarkRepo, extractor, nuggetClient, audit, maxRetries)
	aggregator := pipeline.NewAggregator(summaryRepo, bookmarkRepo, digestClient, audit)
	scheduler := pipeline.NewScheduler(uploadRepo, processor, aggregator, audit, workers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker started", "workers", workers, "max_retries", maxRetries)

	for {
		if ctx.Err() != nil {
			slog.Info("worker shutting down")
			return
		}

		raw, err := db.PopFromQueue(db.UploadQueueKey, 5*time.Second)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			slog.Error("error popping from Redis queue", "error", err)
			return
		}

		uploadID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			slog.Error("invalid upload id in queue", "id", raw, "error", err)
			db.PushToQueue(db.DeadLetterKey, raw)
			continue
		}

		upload, err := uploadRepo.GetByID(uploadID)
		if err != nil {
			slog.Error("error getting upload from DB", "error", err, "upload_id", uploadID)
			db.PushToQueue(db.DeadLetterKey, raw)
			continue
		}

		if upload == nil {
			slog.Warn("upload not found in DB", "upload_id", uploadID)
			continue
		}

		bookmarks, err := bookmarkRepo.GetByUploadID(uploadID)
		if err != nil {
			slog.Error("error getting bookmarks from DB", "error", err, "upload_id", uploadID)
			db.PushToQueue(db.DeadLetterKey, raw)
			continue
		}

		slog.Info("processing upload", "upload_id", uploadID, "total_bookmarks", len(bookmarks))

		err = scheduler.Run(ctx, upload, bookmarks)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				// Put the upload back so a restart can finish it.
				db.PushToQueue(db.UploadQueueKey, raw)
				slog.Info("worker shutting down", "requeued_upload_id", uploadID)
				return
			}
			slog.Error("error processing upload", "error", err, "upload_id", uploadID)
			db.PushToQueue(db.DeadLetterKey, raw)
			continue
		}

		slog.Info("upload processed", "upload_id", uploadID)
	}
}

func buildLLMClients() (llm.NuggetClient, llm.DigestClient) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "anthropic" {
		c := llm.NewAnthropicClient(os.Getenv("ANTHROPIC_API_KEY"))
		return c, c
	}
	c := llm.NewOpenAIClient(os.Getenv("OPENAI_API_KEY"))
	return c, c
}

func getEnvInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
