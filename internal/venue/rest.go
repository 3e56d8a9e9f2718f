// Package venue provides exchange connectivity: an HMAC-authenticated REST
// client for live trading, a deterministic simulator for paper trading and
// tests, and the static fee table both share.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantfall/crossarb/internal/config"
	"github.com/quantfall/crossarb/internal/crypto"
	"github.com/quantfall/crossarb/internal/domain"
)

// Client is the REST client for one exchange. Quote endpoints are public;
// order placement is HMAC-signed.
type Client struct {
	name       string
	baseURL    string
	auth       *crypto.HMACAuth
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ domain.VenueClient = (*Client)(nil)
	_ domain.BatchQuoter = (*Client)(nil)
)

// New creates a venue client from configuration. The API secret is resolved
// through the key manager, so it may live in an encrypted file instead of the
// config. When batch quoting is disabled the returned client hides the
// BatchQuoter capability so the aggregator falls back to per-asset fetches.
func New(name string, cfg config.VenueConfig, logger *slog.Logger) (domain.VenueClient, error) {
	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:     cfg.APISecret,
		EncryptedPath: cfg.EncryptedKeyPath,
		Password:      cfg.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("venue %s: %w", name, err)
	}

	rps := cfg.RateLimitPerSec
	if rps <= 0 {
		rps = 10
	}

	c := &Client{
		name:    name,
		baseURL: cfg.BaseURL,
		auth:    &crypto.HMACAuth{Key: cfg.APIKey, Secret: secret},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With(slog.String("component", "venue"), slog.String("venue", name)),
	}
	if cfg.BatchQuotes {
		return c, nil
	}
	return singleQuoter{c}, nil
}

// Name returns the venue identifier.
func (c *Client) Name() string { return c.name }

// tickerResponse is the venue's top-of-book payload. Prices come as strings.
type tickerResponse struct {
	Symbol string `json:"symbol"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
	TS     int64  `json:"ts"`
}

// FetchQuotes fetches top-of-book quotes one asset at a time. Assets the
// venue does not list are skipped.
func (c *Client) FetchQuotes(ctx context.Context, assets []string) ([]domain.PriceQuote, error) {
	quotes := make([]domain.PriceQuote, 0, len(assets))
	for _, asset := range assets {
		path := "/api/v1/ticker?symbol=" + url.QueryEscape(asset)
		body, err := c.doRequest(ctx, http.MethodGet, path, nil, false)
		if err != nil {
			var ve *domain.VenueError
			if errors.As(err, &ve) && !ve.Retryable {
				continue // unlisted symbol
			}
			return nil, err
		}
		var t tickerResponse
		if err := json.Unmarshal(body, &t); err != nil {
			return nil, &domain.VenueError{Venue: c.name, Op: "fetch_quotes", Err: fmt.Errorf("decode ticker: %w", err)}
		}
		q, err := c.toQuote(asset, t)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// BatchQuotes fetches the full ticker table in one call and filters it to the
// requested assets.
func (c *Client) BatchQuotes(ctx context.Context, assets []string) ([]domain.PriceQuote, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/ticker/all", nil, false)
	if err != nil {
		return nil, err
	}
	var all []tickerResponse
	if err := json.Unmarshal(body, &all); err != nil {
		return nil, &domain.VenueError{Venue: c.name, Op: "batch_quotes", Err: fmt.Errorf("decode tickers: %w", err)}
	}

	wanted := make(map[string]bool, len(assets))
	for _, a := range assets {
		wanted[a] = true
	}
	quotes := make([]domain.PriceQuote, 0, len(assets))
	for _, t := range all {
		if !wanted[t.Symbol] {
			continue
		}
		q, err := c.toQuote(t.Symbol, t)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func (c *Client) toQuote(asset string, t tickerResponse) (domain.PriceQuote, error) {
	bid, err := strconv.ParseFloat(t.Bid, 64)
	if err != nil {
		return domain.PriceQuote{}, &domain.VenueError{Venue: c.name, Op: "parse_quote", Err: fmt.Errorf("bid %q: %w", t.Bid, err)}
	}
	ask, err := strconv.ParseFloat(t.Ask, 64)
	if err != nil {
		return domain.PriceQuote{}, &domain.VenueError{Venue: c.name, Op: "parse_quote", Err: fmt.Errorf("ask %q: %w", t.Ask, err)}
	}
	observed := time.Now()
	if t.TS > 0 {
		observed = time.UnixMilli(t.TS)
	}
	return domain.PriceQuote{
		Venue:      c.name,
		Asset:      asset,
		Bid:        bid,
		Ask:        ask,
		ObservedAt: observed,
	}, nil
}

// orderRequest is the signed market-order payload.
type orderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Type     string  `json:"type"`
	Quantity float64 `json:"quantity"`
}

type orderResponse struct {
	OrderID   string `json:"order_id"`
	FilledQty string `json:"filled_qty"`
	AvgPrice  string `json:"avg_price"`
	FeeUSD    string `json:"fee_usd"`
	TS        int64  `json:"ts"`
}

// PlaceMarketOrder submits a signed market order and returns the fill.
func (c *Client) PlaceMarketOrder(ctx context.Context, asset string, side domain.OrderSide, qty float64) (domain.OrderFill, error) {
	req := orderRequest{
		Symbol:   asset,
		Side:     string(side),
		Type:     "MARKET",
		Quantity: qty,
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/api/v1/order", req, true)
	if err != nil {
		return domain.OrderFill{}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderFill{}, &domain.VenueError{Venue: c.name, Op: "place_order", Err: fmt.Errorf("decode fill: %w", err)}
	}
	filled, err := strconv.ParseFloat(resp.FilledQty, 64)
	if err != nil {
		return domain.OrderFill{}, &domain.VenueError{Venue: c.name, Op: "place_order", Err: fmt.Errorf("filled_qty %q: %w", resp.FilledQty, err)}
	}
	avg, err := strconv.ParseFloat(resp.AvgPrice, 64)
	if err != nil {
		return domain.OrderFill{}, &domain.VenueError{Venue: c.name, Op: "place_order", Err: fmt.Errorf("avg_price %q: %w", resp.AvgPrice, err)}
	}
	fee, _ := strconv.ParseFloat(resp.FeeUSD, 64)

	placed := time.Now()
	if resp.TS > 0 {
		placed = time.UnixMilli(resp.TS)
	}
	c.logger.Info("order filled",
		slog.String("order_id", resp.OrderID),
		slog.String("asset", asset),
		slog.String("side", string(side)),
		slog.Float64("qty", filled),
		slog.Float64("avg_price", avg),
	)
	return domain.OrderFill{
		OrderID:   resp.OrderID,
		Venue:     c.name,
		Asset:     asset,
		Side:      side,
		FilledQty: filled,
		AvgPrice:  avg,
		FeeUSD:    fee,
		PlacedAt:  placed,
	}, nil
}

// doRequest rate-limits, builds, optionally signs, sends, and reads one HTTP
// request.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any, signed bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.VenueError{Venue: c.name, Op: "rate_wait", Retryable: true, Err: err}
	}

	var bodyBytes []byte
	var bodyReader io.Reader
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("venue %s: marshal request body: %w", c.name, err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("venue %s: create request: %w", c.name, err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if signed {
		for k, v := range c.auth.RequestHeaders(method, path, string(bodyBytes)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.VenueError{Venue: c.name, Op: method + " " + path, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.VenueError{Venue: c.name, Op: method + " " + path, Retryable: true, Err: err}
	}

	if err := c.checkStatus(method+" "+path, resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx status codes to venue errors, marking transient
// classes retryable.
func (c *Client) checkStatus(op string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)

	wrapped := fmt.Errorf("HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &domain.VenueError{Venue: c.name, Op: op, Retryable: true, Err: fmt.Errorf("%w: %v", domain.ErrRateLimited, wrapped)}
	case statusCode >= 500:
		return &domain.VenueError{Venue: c.name, Op: op, Retryable: true, Err: wrapped}
	default:
		return &domain.VenueError{Venue: c.name, Op: op, Retryable: false, Err: wrapped}
	}
}

// singleQuoter hides the BatchQuoter capability for venues configured without
// a bulk ticker endpoint.
type singleQuoter struct {
	c *Client
}

func (s singleQuoter) Name() string { return s.c.Name() }

func (s singleQuoter) FetchQuotes(ctx context.Context, assets []string) ([]domain.PriceQuote, error) {
	return s.c.FetchQuotes(ctx, assets)
}

func (s singleQuoter) PlaceMarketOrder(ctx context.Context, asset string, side domain.OrderSide, qty float64) (domain.OrderFill, error) {
	return s.c.PlaceMarketOrder(ctx, asset, side, qty)
}
