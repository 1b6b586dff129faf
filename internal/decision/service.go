package decision

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stdhuman/stdhuman/internal/common/errors"
	"github.com/stdhuman/stdhuman/internal/common/logger"
	"github.com/stdhuman/stdhuman/internal/events"
	"github.com/stdhuman/stdhuman/internal/events/bus"
)

// Notifier delivers a rendered prompt to the human operator. Implementations
// return an AppError so the service can surface a missing destination (bad
// request) differently from a failed send (delivery failed).
type Notifier interface {
	DeliverPrompt(ctx context.Context, question string, options []string) error
}

// Service orchestrates the answer slot: it implements the synchronous
// wait-with-timeout mode and the asynchronous create-and-poll mode, and
// reconciles inbound operator replies with the pending decision.
type Service struct {
	slot           *Slot
	notifier       Notifier
	bus            bus.EventBus
	logger         *logger.Logger
	defaultTimeout time.Duration
}

// NewService creates a decision service around the given slot.
func NewService(slot *Slot, notifier Notifier, eventBus bus.EventBus, defaultTimeout time.Duration, log *logger.Logger) *Service {
	return &Service{
		slot:           slot,
		notifier:       notifier,
		bus:            eventBus,
		logger:         log.WithComponent("decision-service"),
		defaultTimeout: defaultTimeout,
	}
}

// AskSync asks the operator a question and suspends until an answer arrives
// or the timeout elapses. A decision already pending is preempted, not
// rejected: the human has exactly one conversation thread, and a new
// synchronous question supersedes whatever went stale before it.
func (s *Service) AskSync(ctx context.Context, question string, options []string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	if prev, ok := s.slot.Preempt(); ok {
		s.logger.Info("Preempting stale pending decision", zap.String("request_id", prev), zap.String("question", question))
		s.publish(ctx, events.DecisionCancelled, map[string]interface{}{"request_id": prev, "reason": "preempted"})
	}

	id, err := s.slot.Create(question, options)
	if err != nil {
		return "", errors.InternalError("failed to create decision", err)
	}

	if err := s.deliver(ctx, id, question, options); err != nil {
		return "", err
	}

	answer, err := s.slot.Await(ctx, id, timeout)
	switch {
	case err == nil:
		s.slot.Clear(id)
		s.logger.Info("Human decision received", zap.String("request_id", id))
		s.publish(ctx, events.DecisionAnswered, map[string]interface{}{"request_id": id, "answer": answer})
		return answer, nil

	case stderrors.Is(err, ErrTimeout):
		s.slot.Cancel(id)
		s.logger.Warn("Human decision timed out", zap.String("request_id", id), zap.String("question", question))
		s.publish(ctx, events.DecisionTimedOut, map[string]interface{}{"request_id": id})
		return "", errors.Timeout("timeout waiting for human response")

	default:
		// Cancelled: either preempted by a later ask or the caller went away.
		// The id-scoped cancel is a no-op when a successor already owns the slot.
		s.slot.Cancel(id)
		s.publish(ctx, events.DecisionCancelled, map[string]interface{}{"request_id": id})
		return "", errors.Conflict("decision was cancelled before an answer arrived")
	}
}

// AskAsync asks the operator a question and returns a request id immediately.
// Unlike AskSync it does not preempt: a caller that manages its own
// outstanding request must not silently lose a concurrent one, so a live
// decision yields Conflict.
func (s *Service) AskAsync(ctx context.Context, question string, options []string) (string, error) {
	id, err := s.slot.Create(question, options)
	if err != nil {
		if stderrors.Is(err, ErrConflict) {
			return "", errors.Conflict("a decision is already pending")
		}
		return "", errors.InternalError("failed to create decision", err)
	}

	if err := s.deliver(ctx, id, question, options); err != nil {
		return "", err
	}
	return id, nil
}

// Poll reports the state of an asynchronous request. Polling an answered
// result is idempotent until a new decision supersedes it.
func (s *Service) Poll(requestID string) (string, Status) {
	return s.slot.Peek(requestID)
}

// ResolveReply maps an inbound operator reply onto the pending decision and
// resolves it. It returns false when nothing is pending, the reply is blank,
// or the decision was already resolved (first reply wins).
func (s *Service) ResolveReply(ctx context.Context, text string) bool {
	id, options, ok := s.slot.Snapshot()
	if !ok {
		return false
	}

	mapped := MapReply(text, options)
	if mapped == "" {
		return false
	}

	if !s.slot.Resolve(id, mapped) {
		return false
	}
	s.logger.Info("Resolved pending decision", zap.String("request_id", id), zap.String("answer", mapped))
	s.publish(ctx, events.DecisionAnswered, map[string]interface{}{"request_id": id, "answer": mapped})
	return true
}

// Pending reports whether a decision is currently awaiting an answer.
func (s *Service) Pending() bool {
	return s.slot.Pending()
}

// deliver hands the prompt to the notifier, rolling the just-created
// decision back when delivery fails so it does not linger unanswerable.
func (s *Service) deliver(ctx context.Context, id, question string, options []string) error {
	if err := s.notifier.DeliverPrompt(ctx, question, options); err != nil {
		s.slot.Cancel(id)
		s.logger.Error("Prompt delivery failed", zap.String("request_id", id), zap.Error(err))

		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return err
		}
		return errors.DeliveryFailed("failed to deliver prompt", err)
	}

	s.logger.Info("Awaiting human decision", zap.String("request_id", id), zap.String("question", question))
	s.publish(ctx, events.DecisionCreated, map[string]interface{}{"request_id": id, "question": question})
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, eventType, bus.NewEvent(eventType, "decision-service", data)); err != nil {
		s.logger.Warn("Failed to publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}

// MapReply maps an operator's free-text reply to an answer. A purely numeric
// reply in [1, len(options)] selects the corresponding option; anything else
// is taken verbatim after trimming. The answer is never validated against
// the options beyond this convenience mapping.
func MapReply(text string, options []string) string {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return ""
	}
	if n, ok := parseIndex(cleaned); ok && n >= 1 && n <= len(options) {
		return options[n-1]
	}
	return cleaned
}

// parseIndex parses a string of ASCII digits. Unlike strconv.Atoi it rejects
// signs and whitespace, so "+1" and "-2" fall through to verbatim text.
func parseIndex(s string) (int, bool) {
	if len(s) == 0 || len(s) > 9 {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
