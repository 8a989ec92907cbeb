// Package forward ships new console events to a notification sink and can
// remediate them once delivered.
package forward

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/batch"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/cursor"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/notify"
)

type Forwarder struct {
	Sink        notify.Sink
	StripFields []string

	// Mutator and Ops are optional. When both are set the cycle's events
	// are transitioned after they were offered to the sink.
	Mutator *batch.Mutator
	Ops     []batch.Op

	Logger *zerolog.Logger
}

// Handle is a cursor.Handler. Sink failures are logged and skipped; a failed
// bulk call is returned so the cycle is retried.
func (f *Forwarder) Handle(ctx context.Context, events []console.Event) error {
	logger := log.Logger.With().Str("component", "forward").Logger()
	if f.Logger != nil {
		logger = *f.Logger
	}

	ids := make([]int64, 0, len(events))
	sent := 0
	for _, e := range events {
		ids = append(ids, e.ID)
		record := notify.Sanitize(e.Record(), f.StripFields)
		if err := f.Sink.Send(ctx, record); err != nil {
			logger.Error().Err(err).Int64("event_id", e.ID).Msg("Failed to forward event")
			continue
		}
		sent++
	}
	logger.Info().Int("events", len(events)).Int("sent", sent).Msg("Forwarded events")

	if f.Mutator == nil || len(f.Ops) == 0 {
		return nil
	}
	_, err := f.Mutator.Apply(ctx, ids, f.Ops...)
	return err
}

var _ cursor.Handler = (*Forwarder)(nil).Handle
