package export

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/versecast/backend/internal/config"
)

// Webhook posts a best-effort notification after each successful publish,
// typically to a switcher-side automation hook. Failures are logged and
// otherwise ignored; the timeout keeps a dead endpoint from stalling the
// export pipeline.
type Webhook struct {
	cfg    config.WebhookConfig
	client *http.Client
}

type webhookPayload struct {
	DeliveryID string `json:"deliveryId"`
	SessionID  string `json:"sessionId"`
	ExportURL  string `json:"exportUrl"`
	Timestamp  string `json:"timestamp"`
}

func NewWebhook(cfg config.WebhookConfig) *Webhook {
	if cfg.URL == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify fires the webhook synchronously; callers run it on the export
// worker goroutine after the files are in place.
func (w *Webhook) Notify(ctx context.Context, sessionID, exportURL string) {
	if w == nil {
		return
	}

	body, err := json.Marshal(webhookPayload{
		DeliveryID: uuid.NewString(),
		SessionID:  sessionID,
		ExportURL:  exportURL,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("webhook: marshal: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, w.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		log.Printf("webhook: request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if w.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.Token)
	}
	if w.cfg.Secret != "" {
		req.Header.Set("X-Versecast-Signature", sign(body, w.cfg.Secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		log.Printf("webhook: post %s: %v", w.cfg.URL, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("webhook: post %s: status %d", w.cfg.URL, resp.StatusCode)
	}
}

// sign computes the hex HMAC-SHA256 of the body under the shared secret.
func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}
