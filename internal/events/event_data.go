package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all typed event payloads implement
type EventData interface {
	EventType() EventType
}

// RiskMultiplierAppliedData is published for every risk multiplier below 1
type RiskMultiplierAppliedData struct {
	Date       time.Time `json:"date"`
	Category   string    `json:"category"`
	Measure    *float64  `json:"measure,omitempty"`
	Limit      float64   `json:"limit"`
	Multiplier float64   `json:"multiplier"`
	RunID      string    `json:"run_id,omitempty"`
}

// EventType returns the event type for RiskMultiplierAppliedData
func (d *RiskMultiplierAppliedData) EventType() EventType {
	return RiskMultiplierApplied
}

// RiskEvaluatedData summarises one completed evaluation
type RiskEvaluatedData struct {
	Date        time.Time `json:"date"`
	Instruments int       `json:"instruments"`
	Multiplier  float64   `json:"multiplier"`
	Binding     string    `json:"binding,omitempty"`
	Breaches    int       `json:"breaches"`
	RunID       string    `json:"run_id,omitempty"`
}

// EventType returns the event type for RiskEvaluatedData
func (d *RiskEvaluatedData) EventType() EventType {
	return RiskEvaluated
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// TypedData converts the event's map payload back into its typed form.
// Returns nil for unknown types or malformed payloads.
func (e *Event) TypedData() EventData {
	if e.Data == nil {
		return nil
	}

	var data EventData
	switch e.Type {
	case RiskMultiplierApplied:
		data = &RiskMultiplierAppliedData{}
	case RiskEvaluated:
		data = &RiskEvaluatedData{}
	case ErrorOccurred:
		data = &ErrorEventData{}
	default:
		return nil
	}

	if err := convertMapToStruct(e.Data, data); err != nil {
		return nil
	}
	return data
}

func convertMapToStruct(m map[string]interface{}, v interface{}) error {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}

// convertEventDataToMap flattens typed data into the map carried on the bus
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}
	return result
}
