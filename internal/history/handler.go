package history

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/uprightlabs/backend/internal/models"
	"github.com/uprightlabs/backend/pkg/response"
	"github.com/uprightlabs/backend/pkg/storage"
)

// Handler handles stored-session HTTP endpoints.
type Handler struct {
	store  Store
	s3     *storage.S3
	logger *zap.Logger
}

// NewHandler creates a history handler. s3 may be nil when report exports
// are disabled.
func NewHandler(store Store, s3 *storage.S3, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, s3: s3, logger: logger}
}

// List handles GET /posture/history. Returns the last N stored sessions,
// oldest first.
func (h *Handler) List(c *gin.Context) {
	limit := 10
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	sessions, err := h.store.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("load session history", zap.Error(err))
		response.Internal(c, "failed to load session history")
		return
	}
	if sessions == nil {
		sessions = []models.SessionRecord{}
	}
	response.OK(c, gin.H{"count": len(sessions), "sessions": sessions})
}

// Statistics handles GET /posture/statistics. Returns aggregates across all
// stored sessions.
func (h *Handler) Statistics(c *gin.Context) {
	agg, err := h.store.Aggregate(c.Request.Context())
	if err != nil {
		h.logger.Error("aggregate session history", zap.Error(err))
		response.Internal(c, "failed to aggregate session history")
		return
	}
	response.OK(c, gin.H{"statistics": agg})
}

// DeleteSession handles DELETE /posture/session/:session_id. Removes the
// stored record for a finished session.
func (h *Handler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	deleted, err := h.store.Delete(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("delete session record", zap.String("session_id", sessionID), zap.Error(err))
		response.Internal(c, "failed to delete session")
		return
	}
	if !deleted {
		response.NotFound(c, "Session "+sessionID+" not found")
		return
	}
	if h.s3 != nil {
		// The exported report follows its record.
		if err := h.s3.DeleteReport(c.Request.Context(), storage.ReportKey(sessionID)); err != nil {
			h.logger.Warn("delete report object", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	response.OK(c, gin.H{"message": "Session " + sessionID + " deleted successfully"})
}

// Clear handles DELETE /posture/history. Removes every stored record.
func (h *Handler) Clear(c *gin.Context) {
	if err := h.store.Clear(c.Request.Context()); err != nil {
		h.logger.Error("clear session history", zap.Error(err))
		response.Internal(c, "failed to clear session history")
		return
	}
	response.OK(c, gin.H{"message": "Session history cleared"})
}

// ReportURL handles GET /posture/session/:session_id/report-url. Returns a
// pre-signed download URL for the exported session report.
func (h *Handler) ReportURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "report exports are not configured")
		return
	}
	sessionID := c.Param("session_id")
	key := storage.ReportKey(sessionID)
	exists, err := h.s3.HasReport(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("check report object", zap.String("session_id", sessionID), zap.Error(err))
		response.Internal(c, "failed to check report")
		return
	}
	if !exists {
		response.NotFound(c, "No report for session "+sessionID)
		return
	}
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), key, h.s3.PresignExpire())
	if err != nil {
		h.logger.Error("presign report url", zap.String("session_id", sessionID), zap.Error(err))
		response.Internal(c, "failed to sign report url")
		return
	}
	response.OK(c, gin.H{
		"session_id":         sessionID,
		"report_url":         url,
		"expires_in_seconds": int(h.s3.PresignExpire().Seconds()),
	})
}
