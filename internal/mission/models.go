// Package mission tracks mission plans and their progress: an append-only
// log of steps and statuses reported by the agent.
package mission

import "time"

// Mission is a plan the agent announced: a project name and an ordered list
// of steps, plus the progress reported against them.
type Mission struct {
	ID             string    `json:"id"`
	Project        string    `json:"project"`
	Steps          []string  `json:"steps"`
	StartedAt      time.Time `json:"started_at"`
	LastStatus     string    `json:"last_status,omitempty"`
	Logs           []string  `json:"logs"`
	CompletedSteps []int     `json:"completed_steps"`
}

// clone returns a deep copy so callers never share slices with the manager.
func (m *Mission) clone() *Mission {
	if m == nil {
		return nil
	}
	c := *m
	c.Steps = append([]string(nil), m.Steps...)
	c.Logs = append([]string(nil), m.Logs...)
	c.CompletedSteps = append([]int(nil), m.CompletedSteps...)
	return &c
}
