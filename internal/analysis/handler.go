package analysis

import (
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uprightlabs/backend/internal/detector"
	"github.com/uprightlabs/backend/internal/history"
	"github.com/uprightlabs/backend/internal/models"
	"github.com/uprightlabs/backend/internal/posture"
	"github.com/uprightlabs/backend/internal/session"
	"github.com/uprightlabs/backend/internal/stream"
	"github.com/uprightlabs/backend/pkg/imaging"
	"github.com/uprightlabs/backend/pkg/response"
)

// Handler handles pose analysis and session lifecycle HTTP endpoints.
type Handler struct {
	registry *session.Registry
	hub      *stream.Hub
	analyzer *posture.Analyzer
	detector detector.Detector
	recorder *history.Recorder
	logger   *zap.Logger
}

// NewHandler creates an analysis handler.
func NewHandler(registry *session.Registry, hub *stream.Hub, analyzer *posture.Analyzer, det detector.Detector, recorder *history.Recorder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry: registry,
		hub:      hub,
		analyzer: analyzer,
		detector: det,
		recorder: recorder,
		logger:   logger,
	}
}

// AnalyzePose handles POST /analyze-pose: raw keypoint detection without
// classification or session tracking.
func (h *Handler) AnalyzePose(c *gin.Context) {
	if h.detector == nil {
		response.ServiceUnavailable(c, "pose detector not configured")
		return
	}
	frame, ok := readFrameFile(c)
	if !ok {
		return
	}
	if _, _, err := imaging.Decode(frame); err != nil {
		response.BadRequest(c, "Invalid image format or corrupted image")
		return
	}
	det, err := h.detector.Detect(c.Request.Context(), frame)
	if err != nil {
		h.logger.Error("pose detection", zap.Error(err))
		response.Internal(c, "Error in pose estimation")
		return
	}
	response.OK(c, gin.H{
		"pose":            det.Pose,
		"keypoints":       det.Landmarks,
		"annotated_image": det.AnnotatedImage,
	})
}

// StartSession handles POST /posture/start-session.
func (h *Handler) StartSession(c *gin.Context) {
	sessionID := uuid.New().String()
	sess := h.registry.Create(sessionID)
	h.logger.Info("posture session started", zap.String("session_id", sessionID))
	response.OK(c, gin.H{
		"session_id": sessionID,
		"message":    "Posture session started successfully",
		"start_time": sess.StartTime().UTC().Format(time.RFC3339),
	})
}

// AnalyzeFrame handles POST /posture/analyze-frame?session_id=. Runs the
// pipeline for one frame and folds the result into the session.
func (h *Handler) AnalyzeFrame(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.BadRequest(c, "session_id required")
		return
	}
	sess, ok := h.registry.Get(sessionID)
	if !ok {
		response.NotFound(c, "Session "+sessionID+" not found. Please start a session first.")
		return
	}
	frame, ok := readFrameFile(c)
	if !ok {
		return
	}
	res := h.runPipeline(c, frame)
	if res == nil {
		return
	}
	if err := sess.Update(res); err != nil {
		response.Conflict(c, "Session "+sessionID+" already ended")
		return
	}
	payload := analysisPayload(res, drawLandmarks(c))
	payload["session_id"] = sessionID
	payload["session_stats"] = sess.Statistics()
	response.OK(c, payload)
}

// EndSession handles POST /posture/end-session?session_id=. Ends the
// session, persists the final snapshot and removes it from the live set.
func (h *Handler) EndSession(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.BadRequest(c, "session_id required")
		return
	}
	sess, ok := h.registry.Get(sessionID)
	if !ok {
		response.NotFound(c, "Session "+sessionID+" not found")
		return
	}
	stats, err := sess.End()
	if err != nil {
		// A stream close or a concurrent call got there first.
		response.Conflict(c, "Session "+sessionID+" already ended")
		return
	}
	h.registry.Remove(sessionID)
	saved := h.recorder.Record(c.Request.Context(), stats)
	msg := "Session ended and saved successfully"
	if !saved {
		msg = "Session ended but save failed"
	}
	h.logger.Info("posture session ended", zap.String("session_id", sessionID), zap.Bool("saved", saved))
	response.OK(c, gin.H{
		"message":            msg,
		"session_statistics": stats,
		"saved_to_database":  saved,
	})
}

// SessionStatus handles GET /posture/session-status/:session_id.
func (h *Handler) SessionStatus(c *gin.Context) {
	sessionID := c.Param("session_id")
	sess, ok := h.registry.Get(sessionID)
	if !ok {
		response.NotFound(c, "Session "+sessionID+" not found")
		return
	}
	response.OK(c, gin.H{
		"session_id": sessionID,
		"statistics": sess.Statistics(),
		"is_active":  true,
	})
}

// ActiveSessions handles GET /posture/active-sessions.
func (h *Handler) ActiveSessions(c *gin.Context) {
	sessions := h.registry.All()
	active := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		active = append(active, gin.H{
			"session_id": s.ID(),
			"statistics": s.Statistics(),
			"streaming":  h.hub.StreamCount(s.ID()),
		})
	}
	response.OK(c, gin.H{"count": len(active), "active_sessions": active})
}

// QuickAnalyze handles POST /posture/quick-analyze: single-image analysis
// with no session tracking.
func (h *Handler) QuickAnalyze(c *gin.Context) {
	frame, ok := readFrameFile(c)
	if !ok {
		return
	}
	res := h.runPipeline(c, frame)
	if res == nil {
		return
	}
	response.OK(c, analysisPayload(res, drawLandmarks(c)))
}

// runPipeline analyzes one frame, translating pipeline errors into HTTP
// responses. Returns nil after responding on failure.
func (h *Handler) runPipeline(c *gin.Context, frame []byte) *posture.Result {
	res, err := h.analyzer.AnalyzeFrame(c.Request.Context(), frame)
	if err != nil {
		switch {
		case errors.Is(err, imaging.ErrInvalidImage):
			response.BadRequest(c, "Invalid image format or corrupted image")
		case errors.Is(err, posture.ErrNoDetector):
			response.ServiceUnavailable(c, "pose detector not configured")
		default:
			h.logger.Error("frame analysis", zap.Error(err))
			response.Internal(c, "Error analyzing posture frame")
		}
		return nil
	}
	return res
}

// analysisPayload builds the classification portion of a response. Metrics,
// landmarks and the annotated image ride along only when a person was
// detected.
func analysisPayload(res *posture.Result, includeImage bool) gin.H {
	out := gin.H{
		"posture_status":  res.Status,
		"posture_score":   res.Score,
		"is_good_posture": res.IsGood,
	}
	if res.Detection != nil {
		m := res.Detection.Metrics
		out["metrics"] = gin.H{
			"neck_angle":             models.Round2(m.NeckAngle),
			"spine_tilt":             models.Round2(m.SpineTilt),
			"shoulder_tilt":          models.Round2(m.ShoulderTilt),
			"nose_shoulder_distance": models.Round2(m.NoseShoulderDist),
		}
		if len(res.Detection.Landmarks) > 0 {
			out["landmarks"] = res.Detection.Landmarks
		}
		if includeImage && res.Detection.AnnotatedImage != "" {
			out["annotated_image"] = res.Detection.AnnotatedImage
		}
	}
	return out
}

// readFrameFile pulls the uploaded image out of the multipart form.
func readFrameFile(c *gin.Context) ([]byte, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file (form field: file)")
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "unreadable file upload")
		return nil, false
	}
	defer f.Close()
	frame, err := io.ReadAll(f)
	if err != nil {
		response.BadRequest(c, "unreadable file upload")
		return nil, false
	}
	return frame, true
}

func drawLandmarks(c *gin.Context) bool {
	v, err := strconv.ParseBool(c.DefaultQuery("draw_landmarks", "true"))
	if err != nil {
		return true
	}
	return v
}
