package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stdhuman/stdhuman/internal/common/errors"
	"github.com/stdhuman/stdhuman/internal/common/logger"
	"github.com/stdhuman/stdhuman/internal/decision"
	"github.com/stdhuman/stdhuman/internal/mission"
	"github.com/stdhuman/stdhuman/internal/telegram"
)

// Announcer pushes informational messages to the operator channel.
type Announcer interface {
	Announce(ctx context.Context, text string) error
}

// InboundRouter handles raw operator messages arriving over a webhook.
type InboundRouter interface {
	HandleMessage(ctx context.Context, chatID int64, username, text string)
}

// Handler contains the HTTP handlers for the bridge API.
type Handler struct {
	missions  *mission.Manager
	decisions *decision.Service
	announcer Announcer
	inbound   InboundRouter
	logger    *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(missions *mission.Manager, decisions *decision.Service, announcer Announcer, inbound InboundRouter, log *logger.Logger) *Handler {
	return &Handler{
		missions:  missions,
		decisions: decisions,
		announcer: announcer,
		inbound:   inbound,
		logger:    log,
	}
}

// Health reports liveness
// GET /v1/health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Plan defines a mission and announces it to the operator
// POST /v1/plan
func (h *Handler) Plan(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.BadRequest(err.Error()))
		return
	}

	m, err := h.missions.Create(c.Request.Context(), req.Project, req.Steps)
	if err != nil {
		h.logger.Error("failed to create mission", zap.Error(err))
		writeError(c, errors.InternalError("failed to create mission", err))
		return
	}

	// The mission is recorded before delivery is attempted. A plan that
	// cannot be announced still exists, matching the log endpoint.
	lines := []string{fmt.Sprintf("Plan started: %s (%d steps)", m.Project, len(m.Steps)), "Steps:"}
	for i, step := range m.Steps {
		lines = append(lines, fmt.Sprintf("%d) %s", i+1, step))
	}
	if err := h.announcer.Announce(c.Request.Context(), strings.Join(lines, "\n")); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, PlanResponse{MissionID: m.ID})
}

// Log records agent status, optionally completing a mission step, and
// forwards the message to the operator
// POST /v1/log
func (h *Handler) Log(c *gin.Context) {
	var req LogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.BadRequest(err.Error()))
		return
	}

	message := req.Message
	if req.StepIndex != nil {
		if summary, ok := h.missions.CompleteStep(c.Request.Context(), *req.StepIndex); ok {
			message = message + "\n" + summary
		}
	}

	h.logger.Zap().Log(logLevel(req.Level), message)
	h.missions.AppendLog(c.Request.Context(), strings.ToUpper(req.Level)+": "+message)

	if err := h.announcer.Announce(c.Request.Context(), message); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

// Ask hands a decision to the operator, synchronously or asynchronously
// POST /v1/ask
func (h *Handler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.BadRequest(err.Error()))
		return
	}

	var timeout time.Duration
	if req.Timeout != nil {
		timeout = time.Duration(*req.Timeout * float64(time.Second))
	}

	if req.Mode == "async" {
		id, err := h.decisions.AskAsync(c.Request.Context(), req.Question, req.Options)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, AskStatusResponse{RequestID: id, Status: "pending"})
		return
	}

	answer, err := h.decisions.AskSync(c.Request.Context(), req.Question, req.Options, timeout)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, AskResponse{Answer: answer})
}

// AskResult polls an asynchronous decision
// GET /v1/ask/:requestId
func (h *Handler) AskResult(c *gin.Context) {
	requestID := c.Param("requestId")

	answer, status := h.decisions.Poll(requestID)
	switch status {
	case decision.StatusPending:
		c.JSON(http.StatusOK, AskStatusResponse{RequestID: requestID, Status: "pending"})
	case decision.StatusAnswered:
		c.JSON(http.StatusOK, AskStatusResponse{RequestID: requestID, Status: "answered", Answer: answer})
	default:
		writeError(c, errors.NotFound("decision", requestID))
	}
}

// Webhook receives Telegram updates pushed by the Bot API. It always
// acknowledges: Telegram redelivers on non-2xx, and a malformed or
// unauthorized update should be dropped, not retried.
// POST /telegram/webhook
func (h *Handler) Webhook(c *gin.Context) {
	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.logger.Warn("Ignoring malformed webhook payload", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	msg := update.Content()
	if msg == nil || msg.Text == "" || h.inbound == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	username := msg.Chat.Username
	if msg.From != nil && msg.From.Username != "" {
		username = msg.From.Username
	}
	h.inbound.HandleMessage(c.Request.Context(), msg.Chat.ID, username, msg.Text)

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// writeError maps an error onto its HTTP status, falling back to 500.
func writeError(c *gin.Context, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.InternalError("An internal server error occurred", err)
	}
	c.JSON(appErr.HTTPStatus, appErr)
}

// logLevel maps the agent-facing level names onto zap levels. "success" is
// informational; it exists so the operator message can celebrate, not so the
// log does.
func logLevel(level string) zapcore.Level {
	switch level {
	case "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
