package telegram

import (
	"context"
	"fmt"

	"github.com/stdhuman/stdhuman/internal/auth"
	apperrors "github.com/stdhuman/stdhuman/internal/common/errors"
	"github.com/stdhuman/stdhuman/internal/common/logger"
	"github.com/stdhuman/stdhuman/internal/mission"
)

// Notifier delivers decision prompts to the paired operator chat. It
// satisfies the decision service's notifier contract.
type Notifier struct {
	client   *Client
	users    *auth.UserStore
	missions *mission.Manager
	logger   *logger.Logger
}

// NewNotifier creates a prompt notifier.
func NewNotifier(client *Client, users *auth.UserStore, missions *mission.Manager, log *logger.Logger) *Notifier {
	return &Notifier{
		client:   client,
		users:    users,
		missions: missions,
		logger:   log.WithComponent("telegram-notifier"),
	}
}

// Announce sends a plain informational message to the paired chat, used
// for plan summaries and status reports.
func (n *Notifier) Announce(ctx context.Context, text string) error {
	chatID, ok := n.users.ChatID()
	if !ok {
		return apperrors.BadRequest("operator not paired; send /start <code> to the bot")
	}
	if err := n.client.SendMessage(ctx, chatID, text); err != nil {
		return apperrors.DeliveryFailed("failed to deliver message to operator", err)
	}
	return nil
}

// DeliverPrompt sends the question to the paired chat. Without a paired
// chat there is nowhere to deliver, which is the caller's configuration
// problem, not a transport failure.
func (n *Notifier) DeliverPrompt(ctx context.Context, question string, options []string) error {
	chatID, ok := n.users.ChatID()
	if !ok {
		return apperrors.BadRequest("operator not paired; send /start <code> to the bot")
	}

	summary := question
	if n.missions != nil {
		summary = fmt.Sprintf("Last status: %s | Prompt: %s", n.missions.LastStatus(), question)
	}

	if err := n.client.SendMessage(ctx, chatID, RenderPrompt(summary, options)); err != nil {
		return apperrors.DeliveryFailed("failed to deliver prompt to operator", err)
	}
	return nil
}
