package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/livite/outreach-backend/internal/errors"
)

const (
	defaultBaseURL    = "https://api.notion.com"
	defaultAPIVersion = "2022-06-28"

	defaultRetries   = 3
	defaultBaseDelay = 100 * time.Millisecond
	defaultMaxDelay  = 2 * time.Second
)

type NotionClientOptions struct {
	BaseURL    string
	Token      string
	APIVersion string
	DatabaseID string
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

type NotionClient struct {
	baseURL    string
	token      string
	apiVersion string
	databaseID string
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewNotionClient(opts NotionClientOptions) *NotionClient {
	c := &NotionClient{
		baseURL:    opts.BaseURL,
		token:      opts.Token,
		apiVersion: opts.APIVersion,
		databaseID: opts.DatabaseID,
		client:     opts.HTTPClient,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.apiVersion == "" {
		c.apiVersion = defaultAPIVersion
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 30 * time.Second}
	}
	if c.maxRetries == 0 {
		c.maxRetries = defaultRetries
	}
	if c.baseDelay == 0 {
		c.baseDelay = defaultBaseDelay
	}
	if c.maxDelay == 0 {
		c.maxDelay = defaultMaxDelay
	}
	return c
}

func (c *NotionClient) CreateOrder(ctx context.Context, o Order) (string, error) {
	props := map[string]any{
		"Order": map[string]any{
			"title": []map[string]any{{"text": map[string]string{"content": o.Title}}},
		},
	}
	if o.School != "" {
		props["School"] = richTextProp(o.School)
	}
	if o.Sport != "" {
		props["Sport"] = map[string]any{"select": map[string]string{"name": o.Sport}}
	}
	if o.GameDate != nil {
		props["Game Date"] = dateProp(*o.GameDate)
	}
	if o.DeliveryDate != nil {
		props["Delivery Date"] = dateProp(*o.DeliveryDate)
	}
	if o.DeliveryLocation != "" {
		props["Delivery Location"] = richTextProp(o.DeliveryLocation)
	}
	if o.Notes != "" {
		props["Notes"] = richTextProp(o.Notes)
	}

	payload := map[string]any{
		"parent":     map[string]string{"database_id": c.databaseID},
		"properties": props,
	}
	raw, err := c.do(ctx, http.MethodPost, "/v1/pages", payload)
	if err != nil {
		return "", err
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	return resp.ID, nil
}

func (c *NotionClient) GetOrder(ctx context.Context, id string) (State, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v1/pages/"+id, nil)
	if err != nil {
		return State{}, err
	}
	var resp struct {
		Archived   bool `json:"archived"`
		Properties map[string]struct {
			Checkbox bool `json:"checkbox"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return State{}, fmt.Errorf("decode page response: %w", err)
	}
	return State{
		Archived: resp.Archived,
		Undo:     resp.Properties["Undo"].Checkbox,
	}, nil
}

func (c *NotionClient) ArchiveOrder(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPatch, "/v1/pages/"+id, map[string]any{"archived": true})
	return err
}

func richTextProp(s string) map[string]any {
	return map[string]any{
		"rich_text": []map[string]any{{"text": map[string]string{"content": s}}},
	}
}

func dateProp(t time.Time) map[string]any {
	return map[string]any{
		"date": map[string]string{"start": t.Format("2006-01-02")},
	}
}

func (c *NotionClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, c.retryDelay(attempt, lastRetryAfter(lastErr))); err != nil {
				return nil, err
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", c.apiVersion)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = &apperrors.TransientError{Op: method + " " + path, Err: err}
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &apperrors.TransientError{Op: method + " " + path, Err: err}
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, apperrors.ErrNotFound
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, &apperrors.AuthError{Provider: "dashboard", Err: fmt.Errorf("status %d: %s", resp.StatusCode, respBody)}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = &retryableError{
				err:        &apperrors.TransientError{Op: method + " " + path, Err: fmt.Errorf("status %d", resp.StatusCode)},
				retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			}
			continue
		default:
			return nil, fmt.Errorf("dashboard %s %s: status %d: %s", method, path, resp.StatusCode, respBody)
		}
	}
	if re, ok := lastErr.(*retryableError); ok {
		return nil, re.err
	}
	return nil, lastErr
}

type retryableError struct {
	err        error
	retryAfter time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }

func lastRetryAfter(err error) time.Duration {
	if re, ok := err.(*retryableError); ok {
		return re.retryAfter
	}
	return 0
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(header, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func (c *NotionClient) retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	delay := c.baseDelay * time.Duration(1<<(attempt-1))
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
