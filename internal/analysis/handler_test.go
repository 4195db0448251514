package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/uprightlabs/backend/internal/detector"
	"github.com/uprightlabs/backend/internal/history"
	"github.com/uprightlabs/backend/internal/models"
	"github.com/uprightlabs/backend/internal/posture"
	"github.com/uprightlabs/backend/internal/session"
	"github.com/uprightlabs/backend/internal/stream"
)

type stubDetector struct {
	res *detector.Result
	err error
}

func (d *stubDetector) Detect(ctx context.Context, frame []byte) (*detector.Result, error) {
	return d.res, d.err
}

func uprightDetector() *stubDetector {
	return &stubDetector{res: &detector.Result{
		Detected: true,
		Pose:     "sitting",
		Landmarks: []models.Landmark{
			{Name: models.LandmarkNose, X: 0.5, Y: 0.1},
			{Name: models.LandmarkLeftShoulder, X: 0.4, Y: 0.5},
			{Name: models.LandmarkRightShoulder, X: 0.6, Y: 0.5},
			{Name: models.LandmarkLeftHip, X: 0.45, Y: 0.9},
			{Name: models.LandmarkRightHip, X: 0.55, Y: 0.9},
		},
		AnnotatedImage: "b64-annotated",
	}}
}

type fixture struct {
	registry *session.Registry
	store    *history.CSVStore
	router   *gin.Engine
}

func newFixture(t *testing.T, det detector.Detector) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := session.NewRegistry()
	store, err := history.NewCSVStore(filepath.Join(t.TempDir(), "history.csv"), nil)
	if err != nil {
		t.Fatalf("csv store: %v", err)
	}
	h := NewHandler(registry, stream.NewHub(nil), posture.NewAnalyzer(det), det, history.NewRecorder(store, nil, nil), nil)

	r := gin.New()
	r.POST("/analyze-pose", h.AnalyzePose)
	p := r.Group("/posture")
	{
		p.POST("/start-session", h.StartSession)
		p.POST("/analyze-frame", h.AnalyzeFrame)
		p.POST("/end-session", h.EndSession)
		p.GET("/session-status/:session_id", h.SessionStatus)
		p.GET("/active-sessions", h.ActiveSessions)
		p.POST("/quick-analyze", h.QuickAnalyze)
	}
	return &fixture{registry: registry, store: store, router: r}
}

func pngFrame(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 640, 480))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func frameUpload(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "frame.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func (f *fixture) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %s %s: %v (body=%s)", method, path, err, w.Body.String())
	}
	return w.Code, m
}

func (f *fixture) postFrame(t *testing.T, path string, data []byte) (int, map[string]any) {
	t.Helper()
	body, ct := frameUpload(t, data)
	return f.do(t, http.MethodPost, path, body, ct)
}

func TestStartSession(t *testing.T) {
	f := newFixture(t, uprightDetector())
	code, m := f.do(t, http.MethodPost, "/posture/start-session", nil, "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if m["status"] != "success" || m["message"] != "Posture session started successfully" {
		t.Fatalf("body = %v", m)
	}
	id, _ := m["session_id"].(string)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("session id %q not a uuid: %v", id, err)
	}
	if _, err := time.Parse(time.RFC3339, m["start_time"].(string)); err != nil {
		t.Fatalf("start_time %v: %v", m["start_time"], err)
	}
	if f.registry.Len() != 1 {
		t.Fatalf("registry size = %d, want 1", f.registry.Len())
	}
}

func TestAnalyzeFrame_Flow(t *testing.T) {
	f := newFixture(t, uprightDetector())
	_, started := f.do(t, http.MethodPost, "/posture/start-session", nil, "")
	id := started["session_id"].(string)

	code, m := f.postFrame(t, "/posture/analyze-frame?session_id="+id, pngFrame(t))
	if code != http.StatusOK {
		t.Fatalf("status = %d (body=%v)", code, m)
	}
	if m["posture_status"] != "Good Posture" || m["posture_score"] != float64(98) {
		t.Fatalf("classification = %v/%v", m["posture_status"], m["posture_score"])
	}
	if m["session_id"] != id {
		t.Fatalf("session id = %v, want %v", m["session_id"], id)
	}
	metrics := m["metrics"].(map[string]any)
	if metrics["nose_shoulder_distance"] != float64(192) {
		t.Fatalf("nose_shoulder_distance = %v, want 192", metrics["nose_shoulder_distance"])
	}
	if landmarks := m["landmarks"].([]any); len(landmarks) != 5 {
		t.Fatalf("landmarks = %d, want 5", len(landmarks))
	}
	if m["annotated_image"] != "b64-annotated" {
		t.Fatalf("annotated_image = %v", m["annotated_image"])
	}
	stats := m["session_stats"].(map[string]any)
	if stats["total_frames"] != float64(1) || stats["good_frames"] != float64(1) {
		t.Fatalf("session stats = %v", stats)
	}

	// Second frame accumulates.
	_, m = f.postFrame(t, "/posture/analyze-frame?session_id="+id, pngFrame(t))
	if m["session_stats"].(map[string]any)["total_frames"] != float64(2) {
		t.Fatalf("second frame stats = %v", m["session_stats"])
	}
}

func TestAnalyzeFrame_SkipsAnnotatedImageWhenDisabled(t *testing.T) {
	f := newFixture(t, uprightDetector())
	_, started := f.do(t, http.MethodPost, "/posture/start-session", nil, "")
	id := started["session_id"].(string)

	_, m := f.postFrame(t, "/posture/analyze-frame?session_id="+id+"&draw_landmarks=false", pngFrame(t))
	if _, ok := m["annotated_image"]; ok {
		t.Fatal("annotated_image present with draw_landmarks=false")
	}
}

func TestAnalyzeFrame_MissingSession(t *testing.T) {
	f := newFixture(t, uprightDetector())

	code, m := f.postFrame(t, "/posture/analyze-frame", pngFrame(t))
	if code != http.StatusBadRequest || m["message"] != "session_id required" {
		t.Fatalf("code=%d body=%v", code, m)
	}

	code, m = f.postFrame(t, "/posture/analyze-frame?session_id=nope", pngFrame(t))
	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
	if m["message"] != "Session nope not found. Please start a session first." {
		t.Fatalf("message = %v", m["message"])
	}
}

func TestAnalyzeFrame_BadUpload(t *testing.T) {
	f := newFixture(t, uprightDetector())
	f.registry.Create("s1")

	code, m := f.postFrame(t, "/posture/analyze-frame?session_id=s1", []byte("garbage"))
	if code != http.StatusBadRequest || m["message"] != "Invalid image format or corrupted image" {
		t.Fatalf("code=%d body=%v", code, m)
	}

	// No file field at all.
	var empty bytes.Buffer
	w := multipart.NewWriter(&empty)
	w.Close()
	code, m = f.do(t, http.MethodPost, "/posture/analyze-frame?session_id=s1", &empty, w.FormDataContentType())
	if code != http.StatusBadRequest || m["message"] != "missing file (form field: file)" {
		t.Fatalf("code=%d body=%v", code, m)
	}

	// Failed frames never reach the session.
	sess, _ := f.registry.Get("s1")
	if sess.TotalFrames() != 0 {
		t.Fatalf("total frames = %d, want 0", sess.TotalFrames())
	}
}

func TestAnalyzeFrame_SessionAlreadyEnded(t *testing.T) {
	f := newFixture(t, uprightDetector())
	sess := f.registry.Create("s1")
	if _, err := sess.End(); err != nil {
		t.Fatalf("end: %v", err)
	}

	code, m := f.postFrame(t, "/posture/analyze-frame?session_id=s1", pngFrame(t))
	if code != http.StatusConflict || m["message"] != "Session s1 already ended" {
		t.Fatalf("code=%d body=%v", code, m)
	}
}

func TestEndSession(t *testing.T) {
	f := newFixture(t, uprightDetector())
	_, started := f.do(t, http.MethodPost, "/posture/start-session", nil, "")
	id := started["session_id"].(string)
	f.postFrame(t, "/posture/analyze-frame?session_id="+id, pngFrame(t))

	code, m := f.do(t, http.MethodPost, "/posture/end-session?session_id="+id, nil, "")
	if code != http.StatusOK {
		t.Fatalf("status = %d (body=%v)", code, m)
	}
	if m["message"] != "Session ended and saved successfully" || m["saved_to_database"] != true {
		t.Fatalf("body = %v", m)
	}
	stats := m["session_statistics"].(map[string]any)
	if stats["total_frames"] != float64(1) {
		t.Fatalf("final stats = %v", stats)
	}
	if stats["end_time"] == nil || stats["end_time"] == "" {
		t.Fatal("end_time missing from final statistics")
	}

	if f.registry.Len() != 0 {
		t.Fatalf("registry size = %d, want 0", f.registry.Len())
	}
	recs, err := f.store.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 || recs[0].SessionID != id || recs[0].TotalFrames != 1 {
		t.Fatalf("stored records = %+v", recs)
	}

	// The session is gone, so a repeat end is a 404.
	code, m = f.do(t, http.MethodPost, "/posture/end-session?session_id="+id, nil, "")
	if code != http.StatusNotFound || m["message"] != "Session "+id+" not found" {
		t.Fatalf("code=%d body=%v", code, m)
	}
}

func TestEndSession_ConcurrentEndConflicts(t *testing.T) {
	f := newFixture(t, uprightDetector())
	sess := f.registry.Create("s2")
	// Another path (a closing stream) ended the session but has not yet
	// removed it.
	if _, err := sess.End(); err != nil {
		t.Fatalf("end: %v", err)
	}

	code, m := f.do(t, http.MethodPost, "/posture/end-session?session_id=s2", nil, "")
	if code != http.StatusConflict || m["message"] != "Session s2 already ended" {
		t.Fatalf("code=%d body=%v", code, m)
	}
}

func TestSessionStatus(t *testing.T) {
	f := newFixture(t, uprightDetector())
	f.registry.Create("s1")

	code, m := f.do(t, http.MethodGet, "/posture/session-status/s1", nil, "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if m["is_active"] != true || m["session_id"] != "s1" {
		t.Fatalf("body = %v", m)
	}
	if m["statistics"].(map[string]any)["total_frames"] != float64(0) {
		t.Fatalf("statistics = %v", m["statistics"])
	}

	code, m = f.do(t, http.MethodGet, "/posture/session-status/zz", nil, "")
	if code != http.StatusNotFound || m["message"] != "Session zz not found" {
		t.Fatalf("code=%d body=%v", code, m)
	}
}

func TestActiveSessions(t *testing.T) {
	f := newFixture(t, uprightDetector())
	f.registry.Create("a")
	f.registry.Create("b")

	code, m := f.do(t, http.MethodGet, "/posture/active-sessions", nil, "")
	if code != http.StatusOK || m["count"] != float64(2) {
		t.Fatalf("code=%d body=%v", code, m)
	}
	entries := m["active_sessions"].([]any)
	first := entries[0].(map[string]any)
	if first["streaming"] != float64(0) {
		t.Fatalf("streaming = %v, want 0", first["streaming"])
	}
	if _, ok := first["statistics"]; !ok {
		t.Fatalf("entry missing statistics: %v", first)
	}
}

func TestQuickAnalyze(t *testing.T) {
	f := newFixture(t, uprightDetector())
	code, m := f.postFrame(t, "/posture/quick-analyze", pngFrame(t))
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if m["posture_status"] != "Good Posture" || m["is_good_posture"] != true {
		t.Fatalf("body = %v", m)
	}
	if _, ok := m["session_stats"]; ok {
		t.Fatal("quick analyze must not track a session")
	}
	if f.registry.Len() != 0 {
		t.Fatalf("registry size = %d, want 0", f.registry.Len())
	}
}

func TestQuickAnalyze_NoPerson(t *testing.T) {
	f := newFixture(t, &stubDetector{res: &detector.Result{Detected: false}})
	code, m := f.postFrame(t, "/posture/quick-analyze", pngFrame(t))
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if m["posture_status"] != "No person detected" || m["posture_score"] != float64(0) {
		t.Fatalf("body = %v", m)
	}
	for _, key := range []string{"metrics", "landmarks", "annotated_image"} {
		if _, ok := m[key]; ok {
			t.Fatalf("no-person response should not carry %s", key)
		}
	}
}

func TestAnalyzePose(t *testing.T) {
	f := newFixture(t, uprightDetector())
	code, m := f.postFrame(t, "/analyze-pose", pngFrame(t))
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if m["pose"] != "sitting" || m["annotated_image"] != "b64-annotated" {
		t.Fatalf("body = %v", m)
	}
	if kps := m["keypoints"].([]any); len(kps) != 5 {
		t.Fatalf("keypoints = %d, want 5", len(kps))
	}
}

func TestAnalyzePose_NoDetector(t *testing.T) {
	f := newFixture(t, nil)
	code, m := f.postFrame(t, "/analyze-pose", pngFrame(t))
	if code != http.StatusServiceUnavailable || m["message"] != "pose detector not configured" {
		t.Fatalf("code=%d body=%v", code, m)
	}
}

func TestAnalyzePose_DetectorFailure(t *testing.T) {
	f := newFixture(t, &stubDetector{err: errors.New("inference crashed")})
	code, m := f.postFrame(t, "/analyze-pose", pngFrame(t))
	if code != http.StatusInternalServerError || m["message"] != "Error in pose estimation" {
		t.Fatalf("code=%d body=%v", code, m)
	}
}

func TestQuickAnalyze_NoDetector(t *testing.T) {
	f := newFixture(t, nil)
	code, m := f.postFrame(t, "/posture/quick-analyze", pngFrame(t))
	if code != http.StatusServiceUnavailable || m["message"] != "pose detector not configured" {
		t.Fatalf("code=%d body=%v", code, m)
	}
}
