package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bookdigest/internal/model"
)

type BookmarkHandler struct {
	bookmarks BookmarkStore
	logs      LogStore
}

func NewBookmarkHandler(bookmarks BookmarkStore, logs LogStore) *BookmarkHandler {
	return &BookmarkHandler{bookmarks: bookmarks, logs: logs}
}

func (h *BookmarkHandler) GetBookmark(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bookmark ID"})
		return
	}

	bookmark, err := h.bookmarks.GetByID(id)
	if err != nil {
		slog.Error("error fetching bookmark", "bookmark_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if bookmark == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Bookmark not found"})
		return
	}

	content, err := h.bookmarks.GetContentByBookmarkID(id)
	if err != nil {
		slog.Error("error fetching content", "bookmark_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res := BookmarkDetailResponse{BookmarkResponse: toBookmarkResponse(*bookmark, content)}
	if content != nil {
		res.Content = toContentResponse(*content)
	}

	c.JSON(http.StatusOK, res)
}

func (h *BookmarkHandler) GetBookmarkLogs(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bookmark ID"})
		return
	}

	limit := getQueryInt("limit", 200, c)
	logs, err := h.logs.GetByBookmarkID(id, limit)
	if err != nil {
		slog.Error("error fetching logs", "bookmark_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, toLogsResponse(logs))
}

func toContentResponse(content model.ExtractedContent) *ContentResponse {
	res := &ContentResponse{
		PageTitle:        content.PageTitle,
		PageURL:          content.PageURL,
		HasRecentContent: content.HasRecentContent,
		FilteredContent:  optString(content.FilteredContent),
		ContentSummary:   optString(content.ContentSummary),
		ExtractionMethod: content.ExtractionMethod,
		PageLoadTime:     content.PageLoadTime,
		ContentMetadata:  content.ContentMetadata,
	}
	if content.ContentDate != nil {
		s := content.ContentDate.Format(time.RFC3339)
		res.ContentDate = &s
	}
	if content.SummaryGeneratedAt != nil {
		s := content.SummaryGeneratedAt.Format(time.RFC3339)
		res.SummaryGeneratedAt = &s
	}
	return res
}
