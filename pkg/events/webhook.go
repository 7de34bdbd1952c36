package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// WebhookSink POSTs each event as JSON to a single endpoint. Failures are
// logged and dropped; there is no retry queue.
type WebhookSink struct {
	url    string
	secret string
	client *http.Client
	log    *logrus.Entry
}

// NewWebhookSink creates a sink for the given endpoint. If secret is
// non-empty every request carries an HMAC-SHA256 signature header the
// receiver can verify with VerifySignature.
func NewWebhookSink(url, secret string, logger *logrus.Entry) *WebhookSink {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &WebhookSink{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}
}

// Publish delivers the event to the endpoint.
func (s *WebhookSink) Publish(ctx context.Context, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		s.log.WithError(err).Error("failed to marshal event payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		s.log.WithError(err).Error("failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Authcore-Event", string(evt.Type))
	req.Header.Set("X-Authcore-Event-ID", evt.ID)
	req.Header.Set("X-Authcore-Delivery", time.Now().Format(time.RFC3339))
	if s.secret != "" {
		req.Header.Set("X-Authcore-Signature", generateSignature(payload, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.WithError(err).WithField("event_id", evt.ID).Warn("webhook delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.log.WithFields(logrus.Fields{
			"event_id": evt.ID,
			"status":   resp.StatusCode,
		}).Warn("webhook returned non-2xx status")
	}
}

// VerifySignature checks an HMAC-SHA256 signature produced by a WebhookSink.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
