// Package events provides in-process event publication for risk evaluations.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	RiskMultiplierApplied EventType = "RISK_MULTIPLIER_APPLIED"
	RiskEvaluated         EventType = "RISK_EVALUATED"
	ErrorOccurred         EventType = "ERROR_OCCURRED"
)

// AllTypes returns every event type a subscriber may listen to.
func AllTypes() []EventType {
	return []EventType{RiskMultiplierApplied, RiskEvaluated, ErrorOccurred}
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
