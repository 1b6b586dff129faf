package mission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stdhuman/stdhuman/internal/common/logger"
	"github.com/stdhuman/stdhuman/internal/events"
	"github.com/stdhuman/stdhuman/internal/events/bus"
)

// Manager tracks the latest mission context. It is serialized by its own
// mutex, independent of the decision slot.
type Manager struct {
	mu      sync.Mutex
	store   Store
	bus     bus.EventBus
	logger  *logger.Logger
	current *Mission
}

// NewManager creates a mission manager backed by the given store.
func NewManager(store Store, eventBus bus.EventBus, log *logger.Logger) *Manager {
	return &Manager{
		store:  store,
		bus:    eventBus,
		logger: log.WithComponent("mission-manager"),
	}
}

// Create records a new mission and makes it current.
func (m *Manager) Create(ctx context.Context, project string, steps []string) (*Mission, error) {
	mission := &Mission{
		ID:        uuid.New().String(),
		Project:   project,
		Steps:     append([]string(nil), steps...),
		StartedAt: time.Now().UTC(),
	}

	if err := m.store.SaveMission(ctx, mission); err != nil {
		return nil, fmt.Errorf("failed to save mission: %w", err)
	}

	m.mu.Lock()
	m.current = mission
	m.mu.Unlock()

	m.logger.Info("Defined mission",
		zap.String("mission_id", mission.ID),
		zap.String("project", project),
		zap.Int("steps", len(steps)))
	m.publish(ctx, events.MissionCreated, map[string]interface{}{
		"mission_id": mission.ID,
		"project":    project,
		"steps":      len(steps),
	})
	return mission.clone(), nil
}

// AppendLog records a status line against the current mission. It is a
// no-op when no mission has been defined yet.
func (m *Manager) AppendLog(ctx context.Context, line string) {
	m.mu.Lock()
	cur := m.current
	if cur != nil {
		cur.Logs = append(cur.Logs, line)
		cur.LastStatus = line
	}
	m.mu.Unlock()

	if cur == nil {
		return
	}
	if err := m.store.AppendLog(ctx, cur.ID, line); err != nil {
		m.logger.Warn("Failed to persist mission log", zap.Error(err))
	}
	m.publish(ctx, events.MissionLogAppended, map[string]interface{}{
		"mission_id": cur.ID,
		"line":       line,
	})
}

// CompleteStep marks the 1-based step as done and returns a progress
// summary. An out-of-range index or a missing mission is silently ignored.
func (m *Manager) CompleteStep(ctx context.Context, step int) (string, bool) {
	m.mu.Lock()
	cur := m.current
	if cur == nil || step < 1 || step > len(cur.Steps) {
		m.mu.Unlock()
		return "", false
	}
	already := false
	for _, done := range cur.CompletedSteps {
		if done == step {
			already = true
			break
		}
	}
	if !already {
		cur.CompletedSteps = append(cur.CompletedSteps, step)
	}
	summary := fmt.Sprintf("Step %d/%d complete: %s", step, len(cur.Steps), cur.Steps[step-1])
	m.mu.Unlock()

	if err := m.store.MarkStepCompleted(ctx, cur.ID, step); err != nil {
		m.logger.Warn("Failed to persist completed step", zap.Error(err))
	}
	m.publish(ctx, events.MissionStepDone, map[string]interface{}{
		"mission_id": cur.ID,
		"step":       step,
	})
	return summary, true
}

// Current returns a copy of the current mission, or nil when none exists.
func (m *Manager) Current() *Mission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.clone()
}

// LastStatus returns the most recent status line, or "none".
func (m *Manager) LastStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.LastStatus == "" {
		return "none"
	}
	return m.current.LastStatus
}

func (m *Manager) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, eventType, bus.NewEvent(eventType, "mission-manager", data)); err != nil {
		m.logger.Warn("Failed to publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}
