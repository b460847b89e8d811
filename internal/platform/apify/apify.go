package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reviewforge/internal/logger"
)

const defaultBaseURL = "https://api.apify.com"

// ConfigError indicates a required provider secret is absent. It is raised at
// the point of first use, never silently replaced with a default.
type ConfigError struct {
	Env string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("scraping provider is not configured: set %s", e.Env)
}

// ProviderError indicates the provider returned a non-success status or a
// malformed payload.
type ProviderError struct {
	Actor  string
	Status int
	Detail string
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("actor %s returned status %d: %s", e.Actor, e.Status, e.Detail)
	}
	return fmt.Sprintf("actor %s failed: %s", e.Actor, e.Detail)
}

type Options struct {
	Token   string
	BaseURL string
	Timeout time.Duration
}

// Client runs Apify actors synchronously and returns their dataset items.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

func New(opts Options) *Client {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		token:   strings.TrimSpace(opts.Token),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout},
		log:     logger.New("Apify"),
	}
}

func (c *Client) Configured() bool { return c != nil && c.token != "" }

// RunActor starts an actor run with the given input and waits for its dataset
// items. Each item is returned raw so callers can decode defensively.
func (c *Client) RunActor(ctx context.Context, actor string, input any) ([]json.RawMessage, error) {
	if !c.Configured() {
		return nil, &ConfigError{Env: "APIFY_TOKEN"}
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal actor input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items", c.baseURL, actor)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create actor request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts surface the same way as any other transport failure.
		return nil, &ProviderError{Actor: actor, Detail: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Actor: actor, Detail: "read response: " + err.Error()}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &ProviderError{Actor: actor, Status: resp.StatusCode, Detail: summarize(raw)}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &ProviderError{Actor: actor, Detail: "malformed dataset payload"}
	}

	c.log.Info().Str("actor", actor).Int("items", len(items)).Dur("took", time.Since(start)).Msg("actor run complete")
	return items, nil
}

func summarize(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "empty body"
	}
	return s
}
