// Package events defines the event types published on the bridge event bus.
package events

// Event types for human decisions
const (
	DecisionCreated   = "decision.created"
	DecisionAnswered  = "decision.answered"
	DecisionCancelled = "decision.cancelled"
	DecisionTimedOut  = "decision.timed_out"
)

// Event types for missions
const (
	MissionCreated     = "mission.created"
	MissionLogAppended = "mission.log_appended"
	MissionStepDone    = "mission.step_completed"
)
