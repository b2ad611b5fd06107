package ingestion

import (
	"FluxLedger/internal/core"
	"FluxLedger/internal/errs"
	"FluxLedger/internal/event"
	"FluxLedger/internal/observability"
	"FluxLedger/internal/store"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CommandHandler applies a decoded command.
type CommandHandler interface {
	Dispatch(ctx context.Context, cmd core.Command) (*store.Commit, error)
}

// Dispatcher drains raw commands with a fixed worker pool. Commands that
// touch disjoint records are applied in parallel; the store serializes the
// rest.
type Dispatcher struct {
	handler    CommandHandler
	in         <-chan RawCommand
	rejections chan<- *event.EventEnvelope
	workers    int
	clock      core.Clock
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func NewDispatcher(
	handler CommandHandler,
	in <-chan RawCommand,
	rejections chan<- *event.EventEnvelope,
	workers int,
	clock core.Clock,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		handler:    handler,
		in:         in,
		rejections: rejections,
		workers:    workers,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run processes commands until ctx is done or the input channel closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case raw, ok := <-d.in:
					if !ok {
						return
					}
					d.handle(ctx, raw)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (d *Dispatcher) handle(ctx context.Context, raw RawCommand) {
	if d.metrics != nil {
		d.metrics.CommandsReceived.WithLabelValues(raw.Operation).Inc()
	}

	cmd, err := ParseCommand(raw)
	if err != nil {
		// Malformed payloads never parse, so redelivery cannot help.
		if d.metrics != nil {
			d.metrics.ParseErrors.Inc()
		}
		d.logger.Warn().
			Err(err).
			Str("subject", raw.Subject).
			Msg("dropping unparseable command")
		ack(raw)
		return
	}

	_, err = d.handler.Dispatch(ctx, cmd)
	switch {
	case err == nil:
		if d.metrics != nil {
			d.metrics.IngestToApply.WithLabelValues(raw.Operation).Observe(time.Since(raw.Timestamp).Seconds())
		}
		ack(raw)

	case errs.KindOf(err) != errs.KindUnknown:
		// Rejected by the ledger; nothing was applied.
		d.reject(ctx, cmd, err)
		ack(raw)

	default:
		d.logger.Error().
			Err(err).
			Str("operation", raw.Operation).
			Str("request_id", cmd.RequestKey()).
			Msg("command failed, requesting redelivery")
		nak(raw)
	}
}

func (d *Dispatcher) reject(ctx context.Context, cmd core.Command, err error) {
	if d.rejections == nil {
		return
	}
	env, encErr := event.NewEnvelope(0, cmd.RequestKey(), d.clock.Now(), [32]byte{}, [32]byte{}, core.Rejection(cmd, err))
	if encErr != nil {
		d.logger.Error().Err(encErr).Msg("encode rejection")
		return
	}
	select {
	case d.rejections <- env:
	case <-ctx.Done():
	}
}

func ack(raw RawCommand) {
	if raw.AckFunc != nil {
		raw.AckFunc()
	}
}

func nak(raw RawCommand) {
	if raw.NakFunc != nil {
		raw.NakFunc()
	}
}
