package outbox

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/creatorpay/internal/events"
	"go.uber.org/zap"
)

const (
	HeaderSignature  = "X-Creatorpay-Signature"
	HeaderEventID    = "X-Creatorpay-Event-Id"
	HeaderEventType  = "X-Creatorpay-Event-Type"
	HeaderDeliveryID = "X-Creatorpay-Delivery-Id"

	maxErrorBody = 512
)

// WebhookPublisher POSTs the envelope to one endpoint and signs the body
// with HMAC-SHA256 so receivers can verify origin.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *http.Client
	log    *zap.Logger
}

func NewWebhookPublisher(url, secret string, timeout time.Duration, log *zap.Logger) (*WebhookPublisher, error) {
	url = strings.TrimSpace(url)
	if url == "" || strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: webhook url and secret are required", ErrPublisherConfig)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookPublisher{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
		log:    log.Named("outbox.webhook"),
	}, nil
}

func (p *WebhookPublisher) Name() string { return PublisherWebhook }

func (p *WebhookPublisher) Publish(ctx context.Context, evt events.OutboxEvent) error {
	body := []byte(evt.Payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, "sha256="+Sign(p.secret, body))
	req.Header.Set(HeaderEventID, evt.ID.String())
	req.Header.Set(HeaderEventType, string(evt.EventType))
	req.Header.Set(HeaderDeliveryID, ulid.Make().String())

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: status %d: %s", ErrDeliveryRejected, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a header value of the form sha256=<hex>.
func VerifySignature(secret, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(Sign(secret, body)))
}
