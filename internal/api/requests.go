// Package api provides the HTTP surface of the bridge: mission planning,
// status reporting, decision requests and the Telegram webhook.
package api

// PlanRequest defines a mission.
type PlanRequest struct {
	Project string   `json:"project" binding:"required"`
	Steps   []string `json:"steps" binding:"required,min=1"`
}

// PlanResponse is returned when a mission is accepted.
type PlanResponse struct {
	MissionID string `json:"mission_id"`
}

// LogRequest reports agent status against the current mission.
type LogRequest struct {
	Level     string `json:"level" binding:"required,oneof=info success warning error"`
	Message   string `json:"message" binding:"required"`
	StepIndex *int   `json:"step_index,omitempty" binding:"omitempty,gte=1"`
}

// AskRequest hands a decision to the human operator.
type AskRequest struct {
	Question string   `json:"question" binding:"required"`
	Options  []string `json:"options"`
	Mode     string   `json:"mode" binding:"omitempty,oneof=sync async"`
	Timeout  *float64 `json:"timeout,omitempty" binding:"omitempty,gt=0"` // seconds
}

// AskResponse is returned for a resolved synchronous decision.
type AskResponse struct {
	Answer string `json:"answer"`
}

// AskStatusResponse reports the state of an asynchronous decision.
type AskStatusResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Answer    string `json:"answer,omitempty"`
}
