package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/peakguard/peakguard/pkg/common"
	"github.com/peakguard/peakguard/pkg/log"
)

// Webhook posts notifications as JSON to a URL.
type Webhook struct {
	client *http.Client
	url    string
	retry  common.RetryConfig
}

// NewWebhook returns a Webhook posting to url.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		client: common.HTTPClient(30 * time.Second),
		url:    url,
		retry:  common.DefaultRetryConfig(),
	}
}

type webhookPayload struct {
	Severity  Severity          `json:"severity"`
	Kind      string            `json:"kind"`
	Subject   string            `json:"subject"`
	Details   map[string]string `json:"details"`
	Timestamp time.Time         `json:"timestamp"`
}

func (w *Webhook) Notify(ctx context.Context, severity Severity, kind string, details map[string]string) bool {
	body, err := json.Marshal(webhookPayload{
		Severity:  severity,
		Kind:      kind,
		Subject:   Subject(severity, kind),
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to marshal notification", slog.Any("error", err))
		return false
	}

	resp, err := common.Do(ctx, w.client, w.retry, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to send notification", slog.String("kind", kind), slog.Any("error", err))
		return false
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Ctx(ctx).ErrorContext(ctx, "notification webhook rejected", slog.String("kind", kind), slog.Any("error", common.StatusError(resp)))
		return false
	}
	resp.Body.Close()
	log.Ctx(ctx).DebugContext(ctx, "notification sent", slog.String("kind", kind))
	return true
}
