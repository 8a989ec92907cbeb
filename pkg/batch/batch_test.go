package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console/consoletest"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/sheet"
)

type call struct {
	op  Op
	ids []int64
}

type recordingTarget struct {
	calls  []call
	failOn int // 1-based call number, 0 never
}

func (r *recordingTarget) record(op Op, ids []int64) error {
	r.calls = append(r.calls, call{op: op, ids: append([]int64(nil), ids...)})
	if r.failOn == len(r.calls) {
		return errors.New("503 from console")
	}
	return nil
}

func (r *recordingTarget) CloseEvents(_ context.Context, ids []int64) error {
	return r.record(Close, ids)
}

func (r *recordingTarget) ArchiveEvents(_ context.Context, ids []int64) error {
	return r.record(Archive, ids)
}

func seq(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids
}

func newMutator(t *testing.T, target console.EventMutator) *Mutator {
	t.Helper()
	logger := zerolog.Nop()
	m, err := NewMutator(target, Options{Logger: &logger})
	require.NoError(t, err)
	return m
}

func TestChunk(t *testing.T) {
	chunks, err := Chunk(seq(600), 250)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 250)
	assert.Len(t, chunks[1], 250)
	assert.Len(t, chunks[2], 100)
	assert.Equal(t, int64(251), chunks[1][0])

	again, _ := Chunk(seq(600), 250)
	assert.Equal(t, chunks, again)

	empty, err := Chunk(nil, 250)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = Chunk(seq(3), 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestApplyIssuesChunksInOrder(t *testing.T) {
	target := &recordingTarget{}
	n, err := newMutator(t, target).Apply(context.Background(), seq(600), Close)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var sizes []int
	for _, c := range target.calls {
		assert.Equal(t, Close, c.op)
		sizes = append(sizes, len(c.ids))
	}
	assert.Equal(t, []int{250, 250, 100}, sizes)
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	target := &recordingTarget{failOn: 2}
	n, err := newMutator(t, target).Apply(context.Background(), seq(600), Close)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, target.calls, 2)

	var batchErr *Error
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 2, batchErr.Batch)
	assert.Equal(t, 3, batchErr.Batches)
	assert.Equal(t, Close, batchErr.Op)
	assert.Equal(t, int64(251), batchErr.IDs[0])
}

func TestApplyBothOpsPerChunk(t *testing.T) {
	target := &recordingTarget{}
	_, err := newMutator(t, target).Apply(context.Background(), seq(300), Close, Archive)
	require.NoError(t, err)

	var got []string
	for _, c := range target.calls {
		got = append(got, fmt.Sprintf("%s:%d", c.op, len(c.ids)))
	}
	assert.Equal(t, []string{"close:250", "archive:250", "close:50", "archive:50"}, got)
}

func TestApplyArchiveFailureLeavesLaterChunksUntouched(t *testing.T) {
	target := &recordingTarget{failOn: 2}
	n, err := newMutator(t, target).Apply(context.Background(), seq(300), Close, Archive)
	var batchErr *Error
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, Archive, batchErr.Op)
	assert.Equal(t, 1, batchErr.Batch)
	assert.Zero(t, n)
	assert.Len(t, target.calls, 2)
}

func TestApplyDedupes(t *testing.T) {
	target := &recordingTarget{}
	_, err := newMutator(t, target).Apply(context.Background(), []int64{3, 1, 3, 2, 1}, Archive)
	require.NoError(t, err)
	require.Len(t, target.calls, 1)
	assert.Equal(t, []int64{3, 1, 2}, target.calls[0].ids)
}

func TestApplyValidation(t *testing.T) {
	m := newMutator(t, &recordingTarget{})
	_, err := m.Apply(context.Background(), seq(3))
	assert.ErrorIs(t, err, ErrNoOps)
	_, err = m.Apply(context.Background(), seq(3), Op("delete"))
	assert.ErrorIs(t, err, ErrUnknownOp)

	n, err := m.Apply(context.Background(), nil, Close)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = NewMutator(&recordingTarget{}, Options{Size: -1})
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestApplyAgainstConsole(t *testing.T) {
	srv := consoletest.New(t)
	logger := zerolog.Nop()
	client, err := console.New(console.Options{URL: srv.URL, APIKey: consoletest.APIKey, Logger: &logger})
	require.NoError(t, err)
	m, err := NewMutator(client, Options{Size: 2, Logger: &logger})
	require.NoError(t, err)

	srv.Fail("/api/v1/events/actions/archive", 500)
	n, err := m.Apply(context.Background(), []int64{1, 2, 3}, Close, Archive)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, [][]int64{{1, 2}}, srv.Closed())
	assert.Empty(t, srv.Archived())
	assert.Equal(t, 1, srv.Requests("/api/v1/events/actions/archive"))
}

func TestParseOps(t *testing.T) {
	ops, err := ParseOps("both")
	require.NoError(t, err)
	assert.Equal(t, []Op{Close, Archive}, ops)
	_, err = ParseOps("purge")
	assert.ErrorIs(t, err, ErrUnknownOp)
}

func TestIDsFromRows(t *testing.T) {
	ids, err := IDsFromRows([]sheet.Row{{"id": "10"}, {"id": "11.0"}, {"id": " 12 "}}, "id")
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11, 12}, ids)

	_, err = IDsFromRows([]sheet.Row{{"id": "10"}, {"id": "abc"}, {"id": ""}}, "id")
	require.Error(t, err)
	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 3, rowErr.Line)
	assert.Contains(t, err.Error(), "line 4")

	_, err = IDsFromRows([]sheet.Row{{"event": "10"}}, "id")
	assert.ErrorIs(t, err, ErrNoIDColumn)

	ids, err = IDsFromRows(nil, "id")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
