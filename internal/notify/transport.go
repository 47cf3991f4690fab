package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"tradedesk/internal/model"

	"github.com/rs/zerolog"
)

// httpTransport POSTs the notification payload as JSON to a downstream
// adapter endpoint. Push, email and Telegram adapters all consume the
// same shape, so one transport type covers all three.
type httpTransport struct {
	name   string
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPTransport creates a named JSON-POST transport.
func NewHTTPTransport(name, url string, client *http.Client, logger zerolog.Logger) Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpTransport{
		name:   name,
		url:    url,
		client: client,
		logger: logger.With().Str("transport", name).Logger(),
	}
}

func (t *httpTransport) Name() string {
	return t.name
}

// Send delivers one notification. The context carries the dispatcher's
// timeout; delivery receipts are not tracked.
func (t *httpTransport) Send(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}

	t.logger.Debug().
		Str("user_id", n.UserID.String()).
		Str("kind", string(n.Kind)).
		Msg("notification delivered")
	return nil
}
