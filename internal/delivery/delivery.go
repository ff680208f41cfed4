// Package delivery talks to the email provider's campaign API.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"gazette/internal/core"
	"gazette/internal/logger"
)

// Client is a thin HTTP client for the provider's campaign endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	listID     string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(baseURL, apiKey, listID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		listID:     listID,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.Get(),
	}
}

type createCampaignRequest struct {
	Subject  string `json:"subject"`
	ListID   string `json:"list_id"`
	SendDate string `json:"send_date"`
}

type campaignResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type metricsResponse struct {
	Delivered int `json:"delivered"`
	Opened    int `json:"opened"`
	Clicked   int `json:"clicked"`
}

// CreateCampaign registers a new campaign at the provider and returns its id.
func (c *Client) CreateCampaign(ctx context.Context, subject, sendDate string) (string, error) {
	var resp campaignResponse
	err := c.do(ctx, http.MethodPost, "/campaigns", createCampaignRequest{
		Subject:  subject,
		ListID:   c.listID,
		SendDate: sendDate,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("provider returned empty campaign id")
	}
	c.log.Info("Created provider campaign", "provider_id", resp.ID, "send_date", sendDate)
	return resp.ID, nil
}

// SetContent uploads the assembled newsletter HTML.
func (c *Client) SetContent(ctx context.Context, providerID, html string) error {
	body := map[string]string{"html": html}
	return c.do(ctx, http.MethodPut, "/campaigns/"+providerID+"/content", body, nil)
}

// SetSubject updates the subject after a regeneration.
func (c *Client) SetSubject(ctx context.Context, providerID, subject string) error {
	body := map[string]string{"subject": subject}
	return c.do(ctx, http.MethodPatch, "/campaigns/"+providerID, body, nil)
}

// Schedule queues the campaign for the given time.
func (c *Client) Schedule(ctx context.Context, providerID string, sendAt time.Time) error {
	body := map[string]string{"send_at": sendAt.UTC().Format(time.RFC3339)}
	return c.do(ctx, http.MethodPost, "/campaigns/"+providerID+"/schedule", body, nil)
}

// Send triggers an immediate send.
func (c *Client) Send(ctx context.Context, providerID string) error {
	return c.do(ctx, http.MethodPost, "/campaigns/"+providerID+"/send", nil, nil)
}

// GetMetrics fetches delivery statistics for a sent campaign.
func (c *Client) GetMetrics(ctx context.Context, providerID string) (*core.CampaignMetrics, error) {
	var resp metricsResponse
	if err := c.do(ctx, http.MethodGet, "/campaigns/"+providerID+"/metrics", nil, &resp); err != nil {
		return nil, err
	}
	return &core.CampaignMetrics{
		Delivered:  resp.Delivered,
		Opened:     resp.Opened,
		Clicked:    resp.Clicked,
		ImportedAt: time.Now().UTC(),
	}, nil
}

// do performs one JSON request. Non-2xx responses become errors carrying the
// provider's message.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned %d for %s %s: %s", resp.StatusCode, method, path, string(snippet))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode provider response: %w", err)
		}
	}
	return nil
}
