package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfall/crossarb/internal/domain"
)

// Archiver implements domain.Archiver: it reads execution results older than
// a cutoff from the hot store, uploads them to object storage as JSONL, logs
// the archival, and only then deletes the rows.
type Archiver struct {
	writer  domain.BlobWriter
	results domain.ResultStore
	audit   domain.AuditStore // optional
	logger  *slog.Logger
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, results domain.ResultStore, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  writer,
		results: results,
		audit:   audit,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// archivedResult is the JSONL row format. ExecutionResult's error field does
// not marshal, so it is flattened to a string here.
type archivedResult struct {
	TradeID         string            `json:"trade_id"`
	Asset           string            `json:"asset"`
	BuyVenue        string            `json:"buy_venue"`
	SellVenue       string            `json:"sell_venue"`
	SizeUSD         float64           `json:"size_usd"`
	BuyOrder        *domain.OrderFill `json:"buy_order,omitempty"`
	SellOrder       *domain.OrderFill `json:"sell_order,omitempty"`
	ActualProfitUSD float64           `json:"actual_profit_usd"`
	Stranded        bool              `json:"stranded"`
	DryRun          bool              `json:"dry_run"`
	Error           string            `json:"error,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     time.Time         `json:"completed_at"`
}

// ArchiveBefore uploads every result completed before cutoff and deletes the
// archived rows from the hot store. Deletion happens only after a successful
// upload, so a failed upload leaves the rows in place for the next run.
func (a *Archiver) ArchiveBefore(ctx context.Context, cutoff time.Time) error {
	results, err := a.results.List(ctx, domain.ListOpts{Until: &cutoff})
	if err != nil {
		return fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(results) == 0 {
		return nil
	}

	rows := make([]archivedResult, len(results))
	for i, r := range results {
		rows[i] = archivedResult{
			TradeID:         r.TradeID,
			Asset:           r.Asset,
			BuyVenue:        r.BuyVenue,
			SellVenue:       r.SellVenue,
			SizeUSD:         r.SizeUSD,
			BuyOrder:        r.BuyOrder,
			SellOrder:       r.SellOrder,
			ActualProfitUSD: r.ActualProfitUSD,
			Stranded:        r.StrandedAsset,
			DryRun:          r.DryRun,
			StartedAt:       r.StartedAt,
			CompletedAt:     r.CompletedAt,
		}
		if r.Err != nil {
			rows[i].Error = r.Err.Error()
		}
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	key := archiveKey(cutoff)
	if err := a.writer.Write(ctx, key, buf, "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive upload: %w", err)
	}

	deleted, err := a.results.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("s3blob: archive delete: %w", err)
	}

	a.logger.Info("archived execution results",
		slog.String("key", key),
		slog.Int("archived", len(rows)),
		slog.Int64("deleted", deleted),
	)
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.results", map[string]any{
			"key":     key,
			"count":   len(rows),
			"deleted": deleted,
			"cutoff":  cutoff.Format(time.RFC3339),
		}); err != nil {
			a.logger.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// archiveKey builds the object key, partitioned by the cutoff's year-month:
// archive/results/2026-08.jsonl.
func archiveKey(cutoff time.Time) string {
	return fmt.Sprintf("archive/results/%s.jsonl", cutoff.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
