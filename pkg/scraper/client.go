// Package scraper talks to the external profile-scraping provider. Jobs are
// asynchronous: Trigger starts a scrape and returns a snapshot id, results
// arrive later through the provider's webhook push or by polling Status and
// Fetch.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clipclaim/pkg/domain"
)

// JobState is the provider-reported lifecycle of one scrape job.
type JobState string

const (
	JobRunning  JobState = "running"
	JobReady    JobState = "ready"
	JobFailed   JobState = "failed"
	JobNotFound JobState = "not_found"
)

// ErrNotConfigured is returned before any job is created when provider
// credentials or endpoint are missing.
var ErrNotConfigured = errors.New("scraper provider not configured")

// Config holds provider connection settings.
type Config struct {
	BaseURL    string
	Token      string
	NotifyURL  string
	HTTPClient *http.Client
}

// Client is the HTTP client for the scraping provider.
type Client struct {
	baseURL    string
	token      string
	notifyURL  string
	httpClient *http.Client
}

// NewClient constructs a provider client. Missing credentials are detected
// lazily on the first call so the service can boot without them.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:      strings.TrimSpace(cfg.Token),
		notifyURL:  strings.TrimSpace(cfg.NotifyURL),
		httpClient: httpClient,
	}
}

// Configured reports whether the client can reach the provider.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.token != ""
}

// Trigger starts a scrape of targetURL and returns the provider's snapshot id.
func (c *Client) Trigger(ctx context.Context, targetURL string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	payload, err := json.Marshal(map[string]string{
		"url":        targetURL,
		"notify_url": c.notifyURL,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/trigger", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	body, status, err := c.do(req)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("provider trigger failed: %s", providerError(body, status))
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode trigger response: %w", err)
	}
	snapshotID := ExtractSnapshotID(doc)
	if snapshotID == "" {
		return "", fmt.Errorf("provider trigger response carried no snapshot id")
	}
	return snapshotID, nil
}

// Status queries the state of a previously triggered job.
func (c *Client) Status(ctx context.Context, snapshotID string) (JobState, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/progress/"+snapshotID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	body, status, err := c.do(req)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return JobNotFound, nil
	}
	if status >= 400 {
		return "", fmt.Errorf("provider status failed: %s", providerError(body, status))
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode status response: %w", err)
	}
	raw, _ := probeString(doc, "status")
	switch strings.ToLower(raw) {
	case "ready", "done", "complete", "completed", "finished":
		return JobReady, nil
	case "failed", "error", "canceled", "cancelled":
		return JobFailed, nil
	default:
		// Unknown states count as still running; the reconciler will ask again.
		return JobRunning, nil
	}
}

// Fetch downloads the result payload of a ready job as raw JSON.
func (c *Client) Fetch(ctx context.Context, snapshotID string) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/snapshot/"+snapshotID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("provider fetch failed: %s", providerError(body, status))
	}
	return body, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func providerError(body []byte, status int) string {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &errResp)
	if errResp.Error != "" {
		return errResp.Error
	}
	if errResp.Message != "" {
		return errResp.Message
	}
	return http.StatusText(status)
}

// ProfileTargetURL adjusts a profile URL for scraping where the platform
// only renders the bio on a sub-page.
func ProfileTargetURL(platform domain.Platform, profileURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(profileURL), "/")
	if platform == domain.PlatformYouTube && !strings.HasSuffix(trimmed, "/about") {
		return trimmed + "/about"
	}
	return trimmed
}
