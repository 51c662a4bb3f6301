// Package events publishes pipeline lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// EventTypeDomainRunCompleted is published once per domain after its run
	// reaches a terminal stage.
	EventTypeDomainRunCompleted = "domain.run.completed"

	// AggregateTypeDomainRun is the aggregate type of run events.
	AggregateTypeDomainRun = "domain_run"

	defaultSource = "training-evidence-curator"
)

// Event is the envelope written to the message bus.
type Event struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Source        string          `json:"source"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// DomainRunCompleted is the payload of EventTypeDomainRunCompleted.
type DomainRunCompleted struct {
	RunID              string   `json:"run_id"`
	Domain             string   `json:"domain"`
	Stage              string   `json:"stage"`
	Collected          int      `json:"collected"`
	Clusters           int      `json:"clusters"`
	Duplicates         int      `json:"duplicates"`
	Accepted           int      `json:"accepted"`
	Rejected           int      `json:"rejected"`
	Undecidable        int      `json:"undecidable"`
	Enriched           int      `json:"enriched"`
	EnrichmentFailures int      `json:"enrichment_failures"`
	Embedded           int      `json:"embedded"`
	Persisted          int      `json:"persisted"`
	Conflicts          int      `json:"conflicts"`
	FailedSources      []string `json:"failed_sources,omitempty"`
	Error              string   `json:"error,omitempty"`
	DurationMs         int64    `json:"duration_ms"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Emitter builds event envelopes stamped with the service name.
type Emitter struct {
	source string
	now    func() time.Time
}

// NewEmitter creates an emitter. An empty source defaults to the service name.
func NewEmitter(source string) *Emitter {
	if source == "" {
		source = defaultSource
	}
	return &Emitter{source: source, now: time.Now}
}

// Emit wraps payload in an envelope.
func (e *Emitter) Emit(eventType, aggregateID string, payload any) (Event, error) {
	if eventType == "" {
		return Event{}, fmt.Errorf("event_type is required")
	}
	if aggregateID == "" {
		return Event{}, fmt.Errorf("aggregate_id is required")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal payload: %w", err)
	}

	return Event{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		AggregateType: AggregateTypeDomainRun,
		AggregateID:   aggregateID,
		Source:        e.source,
		OccurredAt:    e.now().UTC(),
		Payload:       raw,
	}, nil
}

// EmitDomainRunCompleted builds the completion event for one domain. The
// aggregate id is "<run id>/<domain>".
func (e *Emitter) EmitDomainRunCompleted(payload DomainRunCompleted) (Event, error) {
	if payload.RunID == "" || payload.Domain == "" {
		return Event{}, fmt.Errorf("run_id and domain are required")
	}
	return e.Emit(EventTypeDomainRunCompleted, payload.RunID+"/"+payload.Domain, payload)
}

// NoopPublisher discards events.
type NoopPublisher struct{}

// Publish implements Publisher.
func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NoopPublisher) Close() error { return nil }
