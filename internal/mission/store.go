package mission

import "context"

// Store defines the interface for mission history persistence. In-flight
// decisions are never persisted; mission history is, so a restarted bridge
// can show what the agent was doing.
type Store interface {
	// SaveMission persists a newly created mission.
	SaveMission(ctx context.Context, m *Mission) error

	// AppendLog persists a log line for a mission.
	AppendLog(ctx context.Context, missionID, line string) error

	// MarkStepCompleted persists a completed step index (1-based).
	MarkStepCompleted(ctx context.Context, missionID string, step int) error

	// GetMission retrieves a mission with its logs and completed steps.
	GetMission(ctx context.Context, id string) (*Mission, error)

	// ListMissions returns all missions, most recent first.
	ListMissions(ctx context.Context) ([]*Mission, error)

	// Close closes the store (for database connections).
	Close() error
}
