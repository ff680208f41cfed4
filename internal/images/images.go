// Package images uploads assets to the external image host.
package images

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"gazette/internal/config"
	"gazette/internal/core"
	"gazette/internal/logger"
)

// Client talks to the image host's upload API.
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Images) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		clientID:   cfg.ClientID,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.Get(),
	}
}

type uploadResponse struct {
	Data struct {
		Link       string `json:"link"`
		DeleteHash string `json:"deletehash"`
	} `json:"data"`
	Success bool `json:"success"`
}

// UploadByURL asks the host to fetch and re-host the image at sourceURL.
// The returned record carries the hosted URL and the delete hash.
func (c *Client) UploadByURL(ctx context.Context, sourceURL, label string) (*core.Image, error) {
	form := url.Values{}
	form.Set("image", sourceURL)
	form.Set("type", "url")
	if label != "" {
		form.Set("title", label)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+c.clientID)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("image host returned %d: %s", resp.StatusCode, string(snippet))
	}

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if !parsed.Success || parsed.Data.Link == "" {
		return nil, fmt.Errorf("image host rejected upload of %s", sourceURL)
	}

	c.log.Info("Uploaded image", "source", sourceURL, "hosted", parsed.Data.Link)
	return &core.Image{
		ID:         uuid.NewString(),
		URL:        parsed.Data.Link,
		DeleteHash: parsed.Data.DeleteHash,
		Label:      label,
	}, nil
}

// Delete removes a hosted image by its delete hash.
func (c *Client) Delete(ctx context.Context, deleteHash string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/image/"+deleteHash, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image host returned %d deleting %s", resp.StatusCode, deleteHash)
	}
	return nil
}
