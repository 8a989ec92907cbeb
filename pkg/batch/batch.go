// Package batch applies bulk event state changes in size-bounded chunks.
package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
)

const tracerName = "github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/batch"

// DefaultSize is the console's limit on ids per bulk call.
const DefaultSize = 250

var (
	ErrInvalidSize = errors.New("batch size must be positive")
	ErrNoOps       = errors.New("no operation requested")
	ErrUnknownOp   = errors.New("unknown operation")
)

// Op is a bulk state transition.
type Op string

const (
	Close   Op = "close"
	Archive Op = "archive"
)

// ParseOps maps the operator's choice to operations in application order.
func ParseOps(s string) ([]Op, error) {
	switch s {
	case "close":
		return []Op{Close}, nil
	case "archive":
		return []Op{Archive}, nil
	case "both", "close+archive", "remediate":
		return []Op{Close, Archive}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOp, s)
}

// Error identifies the chunk call that stopped an Apply. Chunks before Batch
// completed every operation; chunks after it were not attempted.
type Error struct {
	Batch   int // 1-based
	Batches int
	Op      Op
	IDs     []int64
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("batch %d of %d: %s %d events: %v", e.Batch, e.Batches, e.Op, len(e.IDs), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Chunk splits ids into consecutive slices of at most size elements. The
// split depends only on the input order and size.
func Chunk(ids []int64, size int) ([][]int64, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	var out [][]int64
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end:end])
	}
	return out, nil
}

// Dedupe drops repeated ids keeping the first occurrence.
func Dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Mutator issues bulk calls one chunk at a time. It keeps no state between
// calls and never retries.
type Mutator struct {
	target console.EventMutator
	size   int
	logger zerolog.Logger
	tracer trace.Tracer
}

type Options struct {
	Size           int
	Logger         *zerolog.Logger
	TracerProvider trace.TracerProvider
}

func NewMutator(target console.EventMutator, opts Options) (*Mutator, error) {
	size := opts.Size
	if size == 0 {
		size = DefaultSize
	}
	if size < 0 {
		return nil, ErrInvalidSize
	}
	logger := log.Logger.With().Str("component", "batch").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Mutator{target: target, size: size, logger: logger, tracer: tp.Tracer(tracerName)}, nil
}

// Apply dedupes ids, chunks them and applies ops to each chunk in the given
// order before moving on. The first failed call ends the invocation with an
// *Error; it returns the number of chunks fully applied.
func (m *Mutator) Apply(ctx context.Context, ids []int64, ops ...Op) (int, error) {
	if len(ops) == 0 {
		return 0, ErrNoOps
	}
	for _, op := range ops {
		if op != Close && op != Archive {
			return 0, fmt.Errorf("%w: %q", ErrUnknownOp, op)
		}
	}
	chunks, err := Chunk(Dedupe(ids), m.size)
	if err != nil {
		return 0, err
	}

	for i, chunk := range chunks {
		for _, op := range ops {
			if err := m.call(ctx, op, chunk, i+1, len(chunks)); err != nil {
				e := &Error{Batch: i + 1, Batches: len(chunks), Op: op, IDs: chunk, Err: err}
				m.logger.Error().Err(err).Int("batch", i+1).Int("batches", len(chunks)).Str("op", string(op)).Msg("Bulk call failed; stopping")
				return i, e
			}
		}
	}
	return len(chunks), nil
}

func (m *Mutator) call(ctx context.Context, op Op, ids []int64, n, total int) error {
	ctx, span := m.tracer.Start(ctx, "batch."+string(op))
	defer span.End()
	span.SetAttributes(
		attribute.Int("batch.index", n),
		attribute.Int("batch.total", total),
		attribute.Int("batch.size", len(ids)),
	)

	m.logger.Info().Int("batch", n).Int("batches", total).Int("size", len(ids)).Str("op", string(op)).Msg("Applying bulk call")
	var err error
	switch op {
	case Close:
		err = m.target.CloseEvents(ctx, ids)
	case Archive:
		err = m.target.ArchiveEvents(ctx, ids)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
