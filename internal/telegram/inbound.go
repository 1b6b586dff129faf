package telegram

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stdhuman/stdhuman/internal/auth"
	"github.com/stdhuman/stdhuman/internal/common/logger"
	"github.com/stdhuman/stdhuman/internal/decision"
)

// defaultStartDelay throttles /start responses so the pairing code cannot
// be brute-forced at interactive speed.
const defaultStartDelay = 2500 * time.Millisecond

const (
	msgCodeRequired     = "Send /start <code> with the start code shown by the agent."
	msgCodeMismatch     = "Start code does not match. Check the code shown by the agent."
	msgUsernameRequired = "Your Telegram account is not authorized for this agent."
	msgChatMismatch     = "Another chat is already paired with this agent."
	msgPaired           = "Paired. The agent will send decisions here; reply with plain text or an option number."
	msgNotAuthorized    = "Authorization mismatch. Contact the operator."
)

// Inbound routes operator messages: /start handles pairing, everything
// else from the paired chat is treated as a decision reply.
type Inbound struct {
	client     *Client
	users      *auth.UserStore
	pairing    *auth.Pairing
	decisions  *decision.Service
	operator   string // normalized username, may be empty
	startDelay time.Duration
	logger     *logger.Logger
}

// NewInbound creates the inbound message router. operatorUsername is the
// configured "@name" restriction; empty means any account may pair.
func NewInbound(client *Client, users *auth.UserStore, pairing *auth.Pairing, decisions *decision.Service, operatorUsername string, log *logger.Logger) *Inbound {
	return &Inbound{
		client:     client,
		users:      users,
		pairing:    pairing,
		decisions:  decisions,
		operator:   normalizeUsername(operatorUsername),
		startDelay: defaultStartDelay,
		logger:     log.WithComponent("telegram-inbound"),
	}
}

// HandleUpdate unpacks an update and dispatches its message, if any.
func (i *Inbound) HandleUpdate(ctx context.Context, update *Update) {
	msg := update.Content()
	if msg == nil || msg.Text == "" {
		return
	}
	username := ""
	if msg.From != nil {
		username = msg.From.Username
	}
	i.HandleMessage(ctx, msg.Chat.ID, username, msg.Text)
}

// HandleMessage processes one operator message.
func (i *Inbound) HandleMessage(ctx context.Context, chatID int64, username, text string) {
	if strings.HasPrefix(strings.TrimSpace(text), "/start") {
		i.handleStart(ctx, chatID, username, text)
		return
	}

	if !i.authorized(chatID, username) {
		i.logger.Warn("Ignoring message from unauthorized chat",
			zap.Int64("chat_id", chatID))
		i.reply(ctx, chatID, msgNotAuthorized)
		return
	}

	cleaned := ParseReply(text)
	if cleaned == "" {
		return
	}
	if !i.decisions.ResolveReply(ctx, cleaned) {
		i.logger.Debug("Reply received with no pending decision",
			zap.Int64("chat_id", chatID))
	}
}

func (i *Inbound) handleStart(ctx context.Context, chatID int64, username, text string) {
	// Every /start outcome, success included, waits the same delay before
	// replying so the response time leaks nothing about how far validation
	// got, and brute-forcing the code stays slow.
	i.delay(ctx)

	fields := strings.Fields(text)
	if len(fields) < 2 {
		i.reply(ctx, chatID, msgCodeRequired)
		return
	}

	expected, err := i.pairing.StartCode()
	if err != nil {
		i.logger.Error("Failed to compute start code", zap.Error(err))
		i.reply(ctx, chatID, msgCodeMismatch)
		return
	}
	if fields[1] != expected {
		i.logger.Warn("Start code mismatch", zap.Int64("chat_id", chatID))
		i.reply(ctx, chatID, msgCodeMismatch)
		return
	}

	if i.operator != "" && normalizeUsername(username) != i.operator {
		i.logger.Warn("Username not authorized for pairing",
			zap.Int64("chat_id", chatID),
			zap.String("username", username))
		i.reply(ctx, chatID, msgUsernameRequired)
		return
	}

	if stored, ok := i.users.ChatID(); ok && stored != chatID {
		i.logger.Warn("Pairing refused, another chat already paired",
			zap.Int64("chat_id", chatID))
		i.reply(ctx, chatID, msgChatMismatch)
		return
	}

	if err := i.users.Remember(chatID); err != nil {
		i.logger.Error("Failed to persist paired chat", zap.Error(err))
	}
	i.logger.Info("Operator chat paired", zap.Int64("chat_id", chatID))
	i.reply(ctx, chatID, msgPaired)
}

// authorized reports whether a non-/start message may resolve decisions:
// the chat must be the paired one and, when configured, the sender must be
// the operator account.
func (i *Inbound) authorized(chatID int64, username string) bool {
	stored, ok := i.users.ChatID()
	if !ok || stored != chatID {
		return false
	}
	if i.operator != "" && normalizeUsername(username) != i.operator {
		return false
	}
	return true
}

func (i *Inbound) reply(ctx context.Context, chatID int64, text string) {
	if err := i.client.SendMessage(ctx, chatID, text); err != nil {
		i.logger.Warn("Failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (i *Inbound) delay(ctx context.Context) {
	if i.startDelay <= 0 {
		return
	}
	select {
	case <-time.After(i.startDelay):
	case <-ctx.Done():
	}
}

func normalizeUsername(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}
