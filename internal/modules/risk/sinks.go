package risk

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/riskguard/internal/events"
)

// NopSink discards every event.
type NopSink struct{}

// Record implements EventSink
func (NopSink) Record(Event) {}

// LogSink writes each breach as a structured warning.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink that logs breaches
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "risk_events").Logger()}
}

// Record implements EventSink
func (s *LogSink) Record(e Event) {
	entry := s.log.Warn().
		Time("date", e.Date).
		Str("category", string(e.Category)).
		Float64("multiplier", e.Multiplier).
		Float64("limit", e.Limit)
	if e.PriorValue != nil {
		entry = entry.Float64("prior_value", *e.PriorValue)
	}
	if e.RunID != "" {
		entry = entry.Str("run_id", e.RunID)
	}
	entry.Msg("Portfolio multiplier applied")
}

// BusSink publishes breaches as RISK_MULTIPLIER_APPLIED events.
type BusSink struct {
	manager *events.Manager
}

// NewBusSink creates a sink that publishes through the event manager
func NewBusSink(manager *events.Manager) *BusSink {
	return &BusSink{manager: manager}
}

// Record implements EventSink
func (s *BusSink) Record(e Event) {
	s.manager.EmitTyped(events.RiskMultiplierApplied, "risk", &events.RiskMultiplierAppliedData{
		Date:       e.Date,
		Category:   string(e.Category),
		Measure:    e.PriorValue,
		Limit:      e.Limit,
		Multiplier: e.Multiplier,
		RunID:      e.RunID,
	})
}

// MemorySink keeps every recorded event in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record implements EventSink
func (s *MemorySink) Record(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

// Events returns a copy of the recorded events in arrival order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of recorded events
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Reset discards all recorded events
func (s *MemorySink) Reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

// MultiSink fans each event out to several sinks in order.
type MultiSink []EventSink

// NewMultiSink combines sinks, skipping nil entries.
func NewMultiSink(sinks ...EventSink) MultiSink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Record implements EventSink
func (m MultiSink) Record(e Event) {
	for _, s := range m {
		s.Record(e)
	}
}
