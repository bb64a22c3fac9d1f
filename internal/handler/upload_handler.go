package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"bookdigest/internal/model"
	"bookdigest/pkg/ingest"
)

const maxUploadBytes = 10 << 20

type UploadStore interface {
	Create(upload *model.Upload) error
	GetByID(id int64) (*model.Upload, error)
	List(limit, offset int) ([]model.Upload, error)
	GetTotal() (int, error)
	MarkFailed(id int64, errMsg string, t time.Time) error
}

type BookmarkStore interface {
	CreateBatch(bookmarks []model.Bookmark) error
	GetByID(id int64) (*model.Bookmark, error)
	GetByUploadID(uploadID int64) ([]model.Bookmark, error)
	GetContentByBookmarkID(bookmarkID int64) (*model.ExtractedContent, error)
}

type SummaryStore interface {
	GetLatestByUploadID(uploadID int64) (*model.SummaryJob, error)
}

type LogStore interface {
	GetByUploadID(uploadID int64, limit int) ([]model.ProcessingLog, error)
	GetByBookmarkID(bookmarkID int64, limit int) ([]model.ProcessingLog, error)
}

type UploadQueue interface {
	Enqueue(uploadID int64) error
}

type UploadHandler struct {
	uploads   UploadStore
	bookmarks BookmarkStore
	summaries SummaryStore
	logs      LogStore
	queue     UploadQueue
	uploadDir string
}

func NewUploadHandler(uploads UploadStore, bookmarks BookmarkStore, summaries SummaryStore, logs LogStore, queue UploadQueue, uploadDir string) *UploadHandler {
	return &UploadHandler{
		uploads:   uploads,
		bookmarks: bookmarks,
		summaries: summaries,
		logs:      logs,
		queue:     queue,
		uploadDir: uploadDir,
	}
}

func (h *UploadHandler) CreateUpload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	records, parseErr := ingest.Parse(strings.NewReader(string(data)))

	now := time.Now().UTC()
	upload := &model.Upload{
		Filename:       clipField(filepath.Base(header.Filename), model.MaxFilenameLen),
		FilePath:       h.saveFile(header.Filename, data, now),
		FileSize:       int64(len(data)),
		UploadTime:     now,
		Status:         model.UploadPending,
		TotalBookmarks: len(records),
	}
	if err := h.uploads.Create(upload); err != nil {
		slog.Error("error creating upload", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if parseErr != nil {
		if err := h.uploads.MarkFailed(upload.ID, clipField(parseErr.Error(), model.MaxErrorMessageLen), time.Now().UTC()); err != nil {
			slog.Error("error marking upload failed", "upload_id", upload.ID, "error", err)
		}

		var verr *ingest.ValidationError
		if errors.As(parseErr, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": parseErr.Error(), "upload_id": upload.ID})
			return
		}
		slog.Error("error parsing bookmark file", "upload_id", upload.ID, "error", parseErr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not parse bookmark file", "upload_id": upload.ID})
		return
	}

	bookmarks := make([]model.Bookmark, len(records))
	for i, rec := range records {
		bookmarks[i] = model.Bookmark{
			UploadID:   upload.ID,
			Title:      rec.Title,
			URL:        rec.URL,
			FolderPath: rec.FolderPath,
			DateAdded:  rec.DateAdded,
			Status:     model.BookmarkPending,
		}
	}
	if err := h.bookmarks.CreateBatch(bookmarks); err != nil {
		slog.Error("error creating bookmarks", "upload_id", upload.ID, "error", err)
		if err := h.uploads.MarkFailed(upload.ID, "could not store bookmarks", time.Now().UTC()); err != nil {
			slog.Error("error marking upload failed", "upload_id", upload.ID, "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if err := h.queue.Enqueue(upload.ID); err != nil {
		slog.Error("error enqueueing upload", "upload_id", upload.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not queue upload for processing"})
		return
	}

	slog.Info("upload accepted", "upload_id", upload.ID, "filename", upload.Filename, "total_bookmarks", upload.TotalBookmarks)

	c.JSON(http.StatusCreated, UploadCreatedResponse{
		UploadID:       upload.ID,
		Filename:       upload.Filename,
		Status:         string(upload.Status),
		TotalBookmarks: upload.TotalBookmarks,
	})
}

func (h *UploadHandler) GetUpload(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid upload ID"})
		return
	}

	upload, err := h.uploads.GetByID(id)
	if err != nil {
		slog.Error("error fetching upload", "upload_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if upload == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Upload not found"})
		return
	}

	job, err := h.summaries.GetLatestByUploadID(id)
	if err != nil {
		slog.Error("error fetching summary job", "upload_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, toUploadResponse(*upload, job))
}

func (h *UploadHandler) ListUploads(c *gin.Context) {
	limit := getQueryInt("limit", 20, c)
	offset := getQueryInt("offset", 0, c)

	uploads, err := h.uploads.List(limit, offset)
	if err != nil {
		slog.Error("error fetching uploads", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	total, err := h.uploads.GetTotal()
	if err != nil {
		slog.Error("error fetching upload total", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res := UploadsResponse{
		Uploads: []UploadResponse{},
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}
	for _, u := range uploads {
		res.Uploads = append(res.Uploads, toUploadResponse(u, nil))
	}

	c.JSON(http.StatusOK, res)
}

func (h *UploadHandler) GetUploadBookmarks(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid upload ID"})
		return
	}

	upload, err := h.uploads.GetByID(id)
	if err != nil {
		slog.Error("error fetching upload", "upload_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if upload == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Upload not found"})
		return
	}

	bookmarks, err := h.bookmarks.GetByUploadID(id)
	if err != nil {
		slog.Error("error fetching bookmarks", "upload_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res := BookmarkListResponse{Bookmarks: []BookmarkResponse{}, Total: len(bookmarks)}
	for _, b := range bookmarks {
		content, err := h.bookmarks.GetContentByBookmarkID(b.ID)
		if err != nil {
			slog.Error("error fetching content", "bookmark_id", b.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		res.Bookmarks = append(res.Bookmarks, toBookmarkResponse(b, content))
	}

	c.JSON(http.StatusOK, res)
}

func (h *UploadHandler) GetUploadSummary(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid upload ID"})
		return
	}

	job, err := h.summaries.GetLatestByUploadID(id)
	if err != nil {
		slog.Error("error fetching summary job", "upload_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No summary available"})
		return
	}

	c.JSON(http.StatusOK, toSummaryJobResponse(*job))
}

func (h *UploadHandler) GetUploadLogs(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid upload ID"})
		return
	}

	limit := getQueryInt("limit", 200, c)
	logs, err := h.logs.GetByUploadID(id, limit)
	if err != nil {
		slog.Error("error fetching logs", "upload_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, toLogsResponse(logs))
}

func (h *UploadHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// saveFile keeps the original export on disk for reprocessing. A write
// failure is not fatal to the upload; the parsed records are already in
// memory.
func (h *UploadHandler) saveFile(filename string, data []byte, now time.Time) string {
	if h.uploadDir == "" {
		return ""
	}
	name := now.Format("20060102T150405") + "_" + filepath.Base(filename)
	path := filepath.Join(h.uploadDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		slog.Warn("could not persist upload file", "path", path, "error", err)
		return ""
	}
	return clipField(path, model.MaxFilePathLen)
}

func getQueryInt(name string, fallback int, c *gin.Context) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// clipField trims to the column cap without splitting a multi-byte rune.
func clipField(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toUploadResponse(u model.Upload, job *model.SummaryJob) UploadResponse {
	res := UploadResponse{
		UploadID:              u.ID,
		Filename:              u.Filename,
		Status:                string(u.Status),
		TotalBookmarks:        u.TotalBookmarks,
		ProcessedBookmarks:    u.ProcessedBookmarks,
		ErrorMessage:          optString(u.ErrorMessage),
		UploadTime:            u.UploadTime.Format(time.RFC3339),
		ProcessingCompletedAt: optTime(u.ProcessingCompletedAt),
	}
	if u.ProcessingStartedAt != nil && u.ProcessingCompletedAt != nil {
		secs := int(u.ProcessingCompletedAt.Sub(*u.ProcessingStartedAt).Seconds())
		res.ProcessingTimeSeconds = &secs
	}
	if job != nil {
		res.BookmarksWithSummary = job.BookmarksIncluded
		res.FinalSummary = optString(job.FinalSummary)
	}
	return res
}

func toBookmarkResponse(b model.Bookmark, content *model.ExtractedContent) BookmarkResponse {
	res := BookmarkResponse{
		BookmarkID:   b.ID,
		Title:        b.Title,
		URL:          b.URL,
		FolderPath:   b.FolderPath,
		Status:       string(b.Status),
		RetryCount:   b.RetryCount,
		ErrorMessage: optString(b.ErrorMessage),
	}
	if content != nil {
		res.HasRecentContent = content.HasRecentContent
		res.ContentSummary = optString(content.ContentSummary)
	}
	return res
}

func toSummaryJobResponse(job model.SummaryJob) SummaryJobResponse {
	return SummaryJobResponse{
		JobID:             job.ID,
		UploadID:          job.UploadID,
		Status:            string(job.Status),
		BookmarksIncluded: job.BookmarksIncluded,
		FinalSummary:      optString(job.FinalSummary),
		LLMModelUsed:      optString(job.LLMModelUsed),
		TokenCount:        job.TokenCount,
		SummaryMetadata:   job.SummaryMetadata,
		ErrorMessage:      optString(job.ErrorMessage),
		StartedAt:         optTime(job.StartedAt),
		CompletedAt:       optTime(job.CompletedAt),
	}
}

func toLogsResponse(logs []model.ProcessingLog) LogsResponse {
	res := LogsResponse{Logs: []LogResponse{}}
	for _, l := range logs {
		res.Logs = append(res.Logs, LogResponse{
			ID:              l.ID,
			Timestamp:       l.Timestamp.Format(time.RFC3339),
			UploadID:        l.UploadID,
			BookmarkID:      l.BookmarkID,
			Operation:       l.Operation,
			Status:          l.Status,
			DurationSeconds: l.DurationSeconds,
			Details:         l.Details,
			ErrorDetails:    optString(l.ErrorDetails),
		})
	}
	return res
}
