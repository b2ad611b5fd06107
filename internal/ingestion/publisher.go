package ingestion

import (
	"FluxLedger/internal/event"
	"FluxLedger/internal/observability"
	"FluxLedger/internal/store"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	EventStream        = "FLUX_EVENTS"
	EventSubjectPrefix = "flux.events."
)

// OutboundPublisher publishes ledger events to NATS for downstream
// consumers, on flux.events.<EventType>.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan *event.EventEnvelope
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan *event.EventEnvelope, metrics *observability.Metrics, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, env); err != nil {
				// Non-fatal: downstream consumers can read the commit log
				if op.metrics != nil {
					op.metrics.PublishErrors.WithLabelValues(env.EventType.String()).Inc()
				}
				op.logger.Warn().
					Err(err).
					Int64("sequence", env.Sequence).
					Str("event_type", env.EventType.String()).
					Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, env *event.EventEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = op.js.Publish(ctx, Subject(env.EventType), data)
	return err
}

// Subject is the outbound subject for an event type.
func Subject(et event.EventType) string {
	return EventSubjectPrefix + et.String()
}

// Envelopes wraps every event of a commit, stamped with its sequence and
// hash chain position.
func Envelopes(c *store.Commit) ([]*event.EventEnvelope, error) {
	out := make([]*event.EventEnvelope, 0, len(c.Events))
	for _, evt := range c.Events {
		env, err := event.NewEnvelope(c.Sequence, c.IdempotencyKey, c.Timestamp, c.StateHash, c.PrevHash, evt)
		if err != nil {
			return nil, fmt.Errorf("commit %d: %w", c.Sequence, err)
		}
		out = append(out, env)
	}
	return out, nil
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      EventStream,
		Subjects:  []string{EventSubjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
