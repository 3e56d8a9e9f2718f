package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfall/crossarb/internal/domain"
)

// ResultStore implements domain.ResultStore using PostgreSQL. Order fills are
// stored as JSONB so leg details survive without a second table.
type ResultStore struct {
	pool *pgxpool.Pool
}

var _ domain.ResultStore = (*ResultStore)(nil)

// NewResultStore creates a ResultStore backed by the given connection pool.
func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Create persists one execution result.
func (s *ResultStore) Create(ctx context.Context, res domain.ExecutionResult) error {
	buyJSON, err := marshalFill(res.BuyOrder)
	if err != nil {
		return fmt.Errorf("postgres: marshal buy fill: %w", err)
	}
	sellJSON, err := marshalFill(res.SellOrder)
	if err != nil {
		return fmt.Errorf("postgres: marshal sell fill: %w", err)
	}

	var errText *string
	if res.Err != nil {
		t := res.Err.Error()
		errText = &t
	}

	const query = `
		INSERT INTO execution_results (
			trade_id, asset, buy_venue, sell_venue, size_usd,
			buy_fill, sell_fill, actual_profit_usd, stranded, dry_run,
			error, started_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = s.pool.Exec(ctx, query,
		res.TradeID, res.Asset, res.BuyVenue, res.SellVenue, res.SizeUSD,
		buyJSON, sellJSON, res.ActualProfitUSD, res.StrandedAsset, res.DryRun,
		errText, res.StartedAt, res.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create execution result %s: %w", res.TradeID, err)
	}
	return nil
}

// List returns execution results newest first with pagination and optional
// time filtering on completion time.
func (s *ResultStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.ExecutionResult, error) {
	query := `
		SELECT trade_id, asset, buy_venue, sell_venue, size_usd,
		       buy_fill, sell_fill, actual_profit_usd, stranded, dry_run,
		       error, started_at, completed_at
		FROM execution_results WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND completed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND completed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY completed_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list execution results: %w", err)
	}
	defer rows.Close()

	var results []domain.ExecutionResult
	for rows.Next() {
		var res domain.ExecutionResult
		var buyJSON, sellJSON []byte
		var errText *string

		if err := rows.Scan(
			&res.TradeID, &res.Asset, &res.BuyVenue, &res.SellVenue, &res.SizeUSD,
			&buyJSON, &sellJSON, &res.ActualProfitUSD, &res.StrandedAsset, &res.DryRun,
			&errText, &res.StartedAt, &res.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan execution result: %w", err)
		}

		if res.BuyOrder, err = unmarshalFill(buyJSON); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal buy fill: %w", err)
		}
		if res.SellOrder, err = unmarshalFill(sellJSON); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal sell fill: %w", err)
		}
		if errText != nil {
			res.Err = errors.New(*errText)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list execution results rows: %w", err)
	}
	return results, nil
}

// DeleteBefore removes results completed before cutoff and returns the count.
func (s *ResultStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM execution_results WHERE completed_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete execution results before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

func marshalFill(f *domain.OrderFill) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

func unmarshalFill(data []byte) (*domain.OrderFill, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var f domain.OrderFill
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
