package s3blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfall/crossarb/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	err     error
}

func (w *memWriter) Write(_ context.Context, key string, data []byte, _ string) error {
	if w.err != nil {
		return w.err
	}
	if w.objects == nil {
		w.objects = map[string][]byte{}
	}
	w.objects[key] = data
	return nil
}

type memResults struct {
	results []domain.ExecutionResult
	deleted int64
}

func (m *memResults) Create(_ context.Context, res domain.ExecutionResult) error {
	m.results = append(m.results, res)
	return nil
}

func (m *memResults) List(_ context.Context, opts domain.ListOpts) ([]domain.ExecutionResult, error) {
	var out []domain.ExecutionResult
	for _, r := range m.results {
		if opts.Until != nil && r.CompletedAt.After(*opts.Until) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memResults) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	kept := m.results[:0]
	var n int64
	for _, r := range m.results {
		if r.CompletedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.results = kept
	m.deleted = n
	return n, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveBeforeUploadsThenDeletes(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store := &memResults{results: []domain.ExecutionResult{
		{TradeID: "old1", Asset: "BTC", ActualProfitUSD: 1.5, CompletedAt: cutoff.Add(-48 * time.Hour)},
		{TradeID: "old2", Asset: "ETH", StrandedAsset: true, Err: errors.New("sell failed"), CompletedAt: cutoff.Add(-24 * time.Hour)},
		{TradeID: "new1", Asset: "BTC", CompletedAt: cutoff.Add(24 * time.Hour)},
	}}
	w := &memWriter{}

	a := NewArchiver(w, store, nil, testLogger())
	require.NoError(t, a.ArchiveBefore(context.Background(), cutoff))

	data, ok := w.objects["archive/results/2026-08.jsonl"]
	require.True(t, ok)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"trade_id":"old1"`)
	assert.Contains(t, lines[1], `"error":"sell failed"`)

	// Rows past the cutoff survive.
	assert.Equal(t, int64(2), store.deleted)
	require.Len(t, store.results, 1)
	assert.Equal(t, "new1", store.results[0].TradeID)
}

func TestArchiveBeforeKeepsRowsOnUploadFailure(t *testing.T) {
	cutoff := time.Now()
	store := &memResults{results: []domain.ExecutionResult{
		{TradeID: "old1", CompletedAt: cutoff.Add(-time.Hour)},
	}}
	w := &memWriter{err: errors.New("bucket unreachable")}

	a := NewArchiver(w, store, nil, testLogger())
	require.Error(t, a.ArchiveBefore(context.Background(), cutoff))
	assert.Len(t, store.results, 1)
}

func TestArchiveBeforeNoRowsIsNoop(t *testing.T) {
	a := NewArchiver(&memWriter{}, &memResults{}, nil, testLogger())
	require.NoError(t, a.ArchiveBefore(context.Background(), time.Now()))
}
