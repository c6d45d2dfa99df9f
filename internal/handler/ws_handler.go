package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/certeva/certexam-backend/internal/engine"
	"github.com/certeva/certexam-backend/internal/middleware"
	"github.com/certeva/certexam-backend/internal/model"
	"github.com/certeva/certexam-backend/internal/service"
	ws "github.com/certeva/certexam-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the attempt lifecycle over one WebSocket: answers and
// violations flow up, state changes and the terminal outcome flow down.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// wsConn serializes writes; the outcome watcher goroutine and the read
// loop both push frames to the same connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ws.WriteTyped(c.conn, v)
}

func (c *wsConn) writeError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = ws.WriteError(c.conn, msg)
}

// AttemptStream godoc
// WS /ws/v1/exams/:exam_id/stream
// Requires a live attempt; the connection follows the session until its
// terminal transition.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	candidateID := claims.CandidateID

	session, err := h.attemptService.Session(candidateID, examID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active attempt for this exam"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	wsLog := h.log.With().
		Int("candidate_id", candidateID).
		Str("exam_id", examID.String()).
		Logger()
	wsLog.Info().Msg("Candidate connected")

	// The session may reach a terminal state without any client frame:
	// expiry and the violation threshold both finalize server-side. The
	// watcher pushes that outcome so the UI can leave the exam screen.
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-c.Request.Context().Done():
			return
		case <-session.Done():
			h.pushOutcome(conn, session)
		}
	}()

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(raw, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		ctx := c.Request.Context()
		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(ctx, conn, candidateID, examID, &msg)
		case ws.ActionViolation:
			h.handleViolation(ctx, conn, candidateID, examID, &msg)
		case ws.ActionPause:
			h.handlePause(ctx, conn, candidateID, examID, session)
		case ws.ActionResume:
			h.handleResume(ctx, conn, candidateID, examID, session)
		case ws.ActionSubmit:
			h.handleSubmit(ctx, conn, wsLog, candidateID, examID)
		case ws.ActionPing:
			_ = conn.write(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.writeError("unknown action: " + string(msg.Action))
		}
	}

	<-watcherDone
}

func (h *WSHandler) handleAnswer(ctx context.Context, conn *wsConn, candidateID int, examID uuid.UUID, msg *ws.RequestPayload) {
	if msg.QID == "" {
		conn.writeError("q_id is required")
		return
	}
	// QID must be a well-formed UUID to prevent Redis key injection.
	if _, err := uuid.Parse(msg.QID); err != nil {
		conn.writeError("invalid q_id format")
		return
	}

	req := &model.RecordAnswerRequest{
		QuestionID: msg.QID,
		Selected:   msg.Selected,
		Text:       msg.Text,
	}
	if err := h.attemptService.RecordAnswer(ctx, candidateID, examID, req); err != nil {
		conn.writeError(h.lifecycleMessage(err))
		return
	}

	_ = conn.write(ws.SavedResponse{Event: ws.EventSaved, QID: msg.QID})
}

func (h *WSHandler) handleViolation(ctx context.Context, conn *wsConn, candidateID int, examID uuid.UUID, msg *ws.RequestPayload) {
	if msg.Kind == "" {
		conn.writeError("kind is required")
		return
	}

	req := &model.ReportViolationRequest{Kind: msg.Kind, Detail: msg.Detail}
	_, count, err := h.attemptService.ReportViolation(ctx, candidateID, examID, req)
	if err != nil {
		conn.writeError(h.lifecycleMessage(err))
		return
	}

	_ = conn.write(ws.ViolationResponse{
		Event: ws.EventViolation,
		Kind:  msg.Kind,
		Count: count,
	})
}

func (h *WSHandler) handlePause(ctx context.Context, conn *wsConn, candidateID int, examID uuid.UUID, session *engine.Session) {
	if err := h.attemptService.Pause(ctx, candidateID, examID); err != nil {
		conn.writeError(h.lifecycleMessage(err))
		return
	}
	_ = conn.write(ws.StateResponse{
		Event:            ws.EventPaused,
		State:            string(model.AttemptStatePaused),
		RemainingSeconds: session.RemainingSeconds(),
	})
}

func (h *WSHandler) handleResume(ctx context.Context, conn *wsConn, candidateID int, examID uuid.UUID, session *engine.Session) {
	if err := h.attemptService.Resume(ctx, candidateID, examID); err != nil {
		conn.writeError(h.lifecycleMessage(err))
		return
	}
	_ = conn.write(ws.StateResponse{
		Event:            ws.EventResumed,
		State:            string(model.AttemptStateInProgress),
		RemainingSeconds: session.RemainingSeconds(),
	})
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *wsConn, wsLog zerolog.Logger, candidateID int, examID uuid.UUID) {
	score, err := h.attemptService.Submit(ctx, candidateID, examID)
	if err != nil {
		conn.writeError(h.lifecycleMessage(err))
		return
	}
	if score == nil {
		return
	}

	wsLog.Info().
		Int("percentage", score.Percentage).
		Bool("passed", score.Passed).
		Msg("Attempt submitted over WebSocket")

	_ = conn.write(ws.GradedResponse{
		Event:      ws.EventGraded,
		Reason:     string(model.SubmitReasonUserRequested),
		Percentage: score.Percentage,
		Passed:     score.Passed,
	})
}

// pushOutcome sends the terminal frame. A user-requested submit already
// got its graded response from handleSubmit; server-side endings arrive
// here as a terminated event with the distinguishing reason.
func (h *WSHandler) pushOutcome(conn *wsConn, session *engine.Session) {
	outcome := session.Outcome()
	if outcome == nil {
		return
	}
	rec := outcome.Record

	if rec.SubmitReason != nil && *rec.SubmitReason == model.SubmitReasonUserRequested {
		return
	}

	resp := ws.TerminatedResponse{Event: ws.EventTerminated, Reason: string(rec.State)}
	if rec.SubmitReason != nil {
		resp.Reason = string(*rec.SubmitReason)
	}
	if outcome.Score != nil {
		resp.Percentage = outcome.Score.Percentage
		resp.Passed = outcome.Score.Passed
	}
	_ = conn.write(resp)
}

func (h *WSHandler) lifecycleMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrNoActiveAttempt):
		return "no active attempt for this exam"
	case errors.Is(err, engine.ErrPauseNotAllowed):
		return "pausing is not allowed for this exam"
	case errors.Is(err, engine.ErrSessionNotActive):
		return "attempt is not active"
	case errors.Is(err, engine.ErrInvalidTransition):
		return "action not valid in the current state"
	default:
		return "internal error"
	}
}
