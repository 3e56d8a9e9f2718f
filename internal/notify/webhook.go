package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quantfall/crossarb/internal/domain"
)

// senderTimeout bounds a single delivery attempt. Alerts are fired from
// execution goroutines; a hung channel must not stall result handling.
const senderTimeout = 10 * time.Second

// postJSON delivers one JSON payload and classifies the response the way the
// venue clients do: 429 wraps domain.ErrRateLimited so the notifier's error
// can tell throttling apart from a misconfigured channel.
func postJSON(ctx context.Context, client *http.Client, name, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: %s: marshal payload: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: %s: build request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: %s: deliver: %w", name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("notify: %s: %w", name, domain.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: %s: status %d: %s", name, resp.StatusCode, detail)
	}
	return nil
}
