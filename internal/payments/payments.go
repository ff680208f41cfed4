// Package payments creates checkout sessions for ad purchases and verifies
// the provider's webhook signatures.
package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gazette/internal/config"
	"gazette/internal/logger"
)

// ErrBadSignature is returned when a webhook payload fails verification.
var ErrBadSignature = errors.New("webhook signature mismatch")

// Client talks to the checkout provider.
type Client struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	successURL    string
	cancelURL     string
	httpClient    *http.Client
	log           *slog.Logger
}

func NewClient(cfg config.Payments) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		httpClient:    &http.Client{Timeout: timeout},
		log:           logger.Get(),
	}
}

// CheckoutSession is the provider's session handle for one ad purchase.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"` // Hosted checkout page the buyer is redirected to
}

type createSessionRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Reference   string `json:"reference"` // Our advertisement id
	SuccessURL  string `json:"success_url"`
	CancelURL   string `json:"cancel_url"`
}

// CreateSession opens a checkout session for an advertisement. The returned
// session id is stored on the ad so the webhook can match the payment back.
func (c *Client) CreateSession(ctx context.Context, adID, description string, amountCents int64) (*CheckoutSession, error) {
	payload, err := json.Marshal(createSessionRequest{
		AmountCents: amountCents,
		Currency:    "usd",
		Description: description,
		Reference:   adID,
		SuccessURL:  c.successURL,
		CancelURL:   c.cancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("payments API returned %d: %s", resp.StatusCode, string(snippet))
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("payments API returned empty session id")
	}

	c.log.Info("Created checkout session", "session_id", session.ID, "ad_id", adID)
	return &session, nil
}

// WebhookEvent is the payload posted by the provider when a session settles.
type WebhookEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Reference string `json:"reference"`
}

// VerifyWebhook checks the HMAC-SHA256 signature over the raw body and parses
// the event. The signature header carries a hex digest, optionally prefixed
// with "sha256=".
func (c *Client) VerifyWebhook(body []byte, signature string) (*WebhookEvent, error) {
	signature = strings.TrimPrefix(signature, "sha256=")
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return nil, ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return nil, ErrBadSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("parse webhook payload: %w", err)
	}
	return &event, nil
}

// SignPayload computes the signature the provider would send for body. Used by
// tests and the local development webhook simulator.
func (c *Client) SignPayload(body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
