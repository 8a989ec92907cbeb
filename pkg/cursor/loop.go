package cursor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
)

const tracerName = "github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/cursor"

var ErrAlreadyRunning = errors.New("poll loop is already running")

// Handler processes the events of one cycle. Returning an error keeps the
// watermark where it was so the same events are offered again next cycle.
type Handler func(ctx context.Context, events []console.Event) error

// Status is a point-in-time view of the loop.
type Status struct {
	Watermark   int64     `json:"watermark"`
	Cycles      uint64    `json:"cycles"`
	EventsTotal uint64    `json:"events_total"`
	Failures    uint64    `json:"failures"`
	LastCycleAt time.Time `json:"last_cycle_at"`
	LastError   string    `json:"last_error,omitempty"`
}

type LoopOptions struct {
	Interval       time.Duration
	StartAfter     int64
	Logger         *zerolog.Logger
	TracerProvider trace.TracerProvider
}

// Loop runs one poll, handle and sleep cycle at a time. The watermark is
// owned by the loop; Status exposes a copy for observers.
type Loop struct {
	collector *Collector
	handler   Handler
	interval  time.Duration
	logger    zerolog.Logger
	tracer    trace.Tracer

	watermark int64
	status    atomic.Pointer[Status]
	running   atomic.Bool
}

func NewLoop(c *Collector, h Handler, opts LoopOptions) *Loop {
	logger := log.Logger.With().Str("component", "cursor").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 300 * time.Second
	}
	l := &Loop{
		collector: c,
		handler:   h,
		interval:  interval,
		logger:    logger,
		tracer:    tp.Tracer(tracerName),
		watermark: opts.StartAfter,
	}
	l.status.Store(&Status{Watermark: opts.StartAfter})
	return l
}

// Status returns the latest snapshot. Safe for concurrent use.
func (l *Loop) Status() Status {
	return *l.status.Load()
}

// Run cycles until ctx is done. Cancellation interrupts the sleep between
// cycles and any in-flight request; it is not an error.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)

	l.logger.Info().Int64("watermark", l.watermark).Dur("interval", l.interval).Msg("Starting event poll loop")
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Int64("watermark", l.watermark).Msg("Event poll loop stopped")
			return nil
		case <-timer.C:
		}

		l.Cycle(ctx)
		timer.Reset(l.interval)
	}
}

// Cycle performs a single poll and hand-off. It returns the number of events
// handled; a failed poll or handler counts as zero. It must not be called
// while Run is active.
func (l *Loop) Cycle(ctx context.Context) int {
	ctx, span := l.tracer.Start(ctx, "cursor.cycle")
	defer span.End()
	span.SetAttributes(attribute.Int64("cursor.watermark", l.watermark))

	events, next, err := l.collector.Poll(ctx, l.watermark)
	if err == nil && len(events) > 0 && l.handler != nil {
		err = l.handler(ctx, events)
	}

	prev := l.Status()
	st := Status{
		Watermark:   l.watermark,
		Cycles:      prev.Cycles + 1,
		EventsTotal: prev.EventsTotal,
		Failures:    prev.Failures,
		LastCycleAt: time.Now().UTC(),
	}
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Error().Err(err).Int64("watermark", l.watermark).Msg("Poll cycle failed; retrying from the same watermark next cycle")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		st.Failures++
		st.LastError = err.Error()
		l.status.Store(&st)
		return 0
	}

	if next > l.watermark {
		l.watermark = next
	}
	st.Watermark = l.watermark
	st.EventsTotal += uint64(len(events))
	l.status.Store(&st)
	span.SetAttributes(attribute.Int("cursor.events", len(events)))
	l.logger.Info().Int("events", len(events)).Int64("watermark", l.watermark).Msg("Poll cycle complete")
	return len(events)
}
