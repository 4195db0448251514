package stream

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uprightlabs/backend/internal/history"
	"github.com/uprightlabs/backend/internal/models"
	"github.com/uprightlabs/backend/internal/posture"
	"github.com/uprightlabs/backend/internal/session"
	"github.com/uprightlabs/backend/pkg/imaging"
	"github.com/uprightlabs/backend/pkg/response"
)

const (
	// pingInterval is the advisory heartbeat period. No read deadline is
	// paired with it: an idle stream never times out.
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	// maxMessageBytes bounds one inbound message (base64 frame + envelope).
	maxMessageBytes = 10 << 20
	// statsEvery embeds a session snapshot in every Nth frame response.
	statsEvery = 10
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// inboundMessage is one client message on the stream.
type inboundMessage struct {
	Type  string `json:"type"`
	Frame string `json:"frame,omitempty"`
}

// Conn pairs one streaming connection with one live session. The read loop
// is the protocol state machine, applying one inbound message at a time;
// the write loop owns the socket for writes.
type Conn struct {
	sessionID string
	sess      *session.Session
	conn      *websocket.Conn
	send      chan any
	done      chan struct{}
	hub       *Hub
	registry  *session.Registry
	analyzer  *posture.Analyzer
	recorder  *history.Recorder
	logger    *zap.Logger
}

// ServeWS returns the handler for GET /posture/ws. The session id comes
// from the query; an unknown id creates a session, so a stream can start
// without a prior start-session call.
func ServeWS(registry *session.Registry, hub *Hub, analyzer *posture.Analyzer, recorder *history.Recorder, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			response.BadRequest(c, "session_id required")
			return
		}
		sess, created := registry.GetOrCreate(sessionID)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		if created {
			logger.Info("session started by stream", zap.String("session_id", sessionID))
		}

		sc := &Conn{
			sessionID: sessionID,
			sess:      sess,
			conn:      conn,
			send:      make(chan any, sendBuffer),
			done:      make(chan struct{}),
			hub:       hub,
			registry:  registry,
			analyzer:  analyzer,
			recorder:  recorder,
			logger:    logger,
		}
		hub.attach(sc)
		go sc.writePump()
		sc.readPump()
	}
}

func (c *Conn) readPump() {
	defer func() {
		c.finalize()
		c.hub.detach(c)
		close(c.send)
	}()

	c.conn.SetReadLimit(maxMessageBytes)

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if !c.handle(msg) {
			return
		}
	}
}

// handle applies one inbound message as a single protocol transition and
// reports whether the stream should keep reading.
func (c *Conn) handle(msg inboundMessage) bool {
	switch msg.Type {
	case "frame":
		c.handleFrame(msg.Frame)
		return true
	case "ping":
		c.queue(map[string]string{"type": "pong"})
		return true
	case "end_session":
		c.handleEnd()
		return false
	default:
		c.queueError("unknown message type")
		return true
	}
}

func (c *Conn) handleFrame(encoded string) {
	frame, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		c.queueError("invalid frame encoding")
		return
	}
	res, err := c.analyzer.AnalyzeFrame(context.Background(), frame)
	if err != nil {
		c.logger.Debug("frame analysis failed", zap.String("session_id", c.sessionID), zap.Error(err))
		if errors.Is(err, imaging.ErrInvalidImage) {
			c.queueError("invalid image")
		} else {
			c.queueError("frame analysis failed")
		}
		return
	}
	if err := c.sess.Update(res); err != nil {
		// The session ended under us, e.g. an end-session call raced the stream.
		c.queueError("session already ended")
		return
	}

	out := frameResponse(res, time.Now())
	if c.sess.TotalFrames()%statsEvery == 0 {
		out["session_stats"] = c.sess.Statistics()
	}
	c.queue(out)
}

func (c *Conn) handleEnd() {
	stats, saved, err := c.endSession()
	if err != nil {
		c.queueError("session already ended")
		return
	}
	msg := "Session ended and saved"
	if !saved {
		msg = "Session ended but save failed"
	}
	c.queue(map[string]any{
		"status":      "success",
		"message":     msg,
		"final_stats": stats,
	})
}

// endSession ends the aggregator, removes it from the live set and persists
// the final snapshot. Only one caller ever wins; the rest see
// session.ErrSessionEnded.
func (c *Conn) endSession() (models.SessionStats, bool, error) {
	stats, err := c.sess.End()
	if err != nil {
		return models.SessionStats{}, false, err
	}
	c.registry.Remove(c.sessionID)
	saved := c.recorder.Record(context.Background(), stats)
	return stats, saved, nil
}

// finalize treats a disconnect without end_session as an implicit end, so
// no session is lost when the transport drops.
func (c *Conn) finalize() {
	if _, _, err := c.endSession(); err == nil {
		c.logger.Info("session ended on disconnect", zap.String("session_id", c.sessionID))
	}
}

// queue hands a message to the write loop, blocking until it is accepted.
// Returns false when the write loop is gone.
func (c *Conn) queue(msg any) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	}
}

func (c *Conn) queueError(msg string) {
	c.queue(map[string]string{"status": "error", "message": msg})
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		close(c.done)
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// frameResponse builds the flat per-frame result message.
func frameResponse(res *posture.Result, now time.Time) map[string]any {
	out := map[string]any{
		"status":          "success",
		"posture_status":  res.Status,
		"posture_score":   res.Score,
		"is_good_posture": res.IsGood,
		"timestamp":       now.UTC().Format(time.RFC3339),
	}
	if res.Detection != nil {
		m := res.Detection.Metrics
		out["metrics"] = map[string]float64{
			"neck_angle":    models.Round2(m.NeckAngle),
			"spine_tilt":    models.Round2(m.SpineTilt),
			"shoulder_tilt": models.Round2(m.ShoulderTilt),
		}
	}
	return out
}
