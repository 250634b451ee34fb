package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/livite/outreach-backend/internal/errors"
)

const (
	defaultGmailBaseURL = "https://gmail.googleapis.com"
	defaultTokenURL     = "https://oauth2.googleapis.com/token"

	defaultMailRetries   = 3
	defaultMailBaseDelay = 100 * time.Millisecond
	defaultMailMaxDelay  = 2 * time.Second
)

type GmailOptions struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	HTTPClient   *http.Client
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
}

// Gmail talks to the Gmail REST API with an OAuth refresh token. Access
// tokens are minted lazily and cached until shortly before expiry.
type Gmail struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	refreshToken string
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewGmail(opts GmailOptions) *Gmail {
	g := &Gmail{
		baseURL:      opts.BaseURL,
		tokenURL:     opts.TokenURL,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		refreshToken: opts.RefreshToken,
		client:       opts.HTTPClient,
		maxRetries:   opts.MaxRetries,
		baseDelay:    opts.BaseDelay,
		maxDelay:     opts.MaxDelay,
	}
	if g.baseURL == "" {
		g.baseURL = defaultGmailBaseURL
	}
	if g.tokenURL == "" {
		g.tokenURL = defaultTokenURL
	}
	if g.client == nil {
		g.client = &http.Client{Timeout: 30 * time.Second}
	}
	if g.maxRetries == 0 {
		g.maxRetries = defaultMailRetries
	}
	if g.baseDelay == 0 {
		g.baseDelay = defaultMailBaseDelay
	}
	if g.maxDelay == 0 {
		g.maxDelay = defaultMailMaxDelay
	}
	return g
}

func (g *Gmail) Send(ctx context.Context, to, subject, body, threadID string) (SendResult, error) {
	payload := map[string]string{
		"raw": base64.RawURLEncoding.EncodeToString(buildRFC822(to, subject, body)),
	}
	if threadID != "" {
		payload["threadId"] = threadID
	}
	raw, err := g.do(ctx, http.MethodPost, "/gmail/v1/users/me/messages/send", payload)
	if err != nil {
		return SendResult{}, err
	}
	var resp struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return SendResult{}, fmt.Errorf("decode send response: %w", err)
	}
	return SendResult{MessageID: resp.ID, ThreadID: resp.ThreadID}, nil
}

func (g *Gmail) Thread(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	raw, err := g.do(ctx, http.MethodGet, "/gmail/v1/users/me/threads/"+url.PathEscape(threadID)+"?format=full", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Messages []wireMessage `json:"messages"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode thread response: %w", err)
	}
	msgs := make([]ThreadMessage, 0, len(resp.Messages))
	for _, wm := range resp.Messages {
		msgs = append(msgs, wm.toThreadMessage())
	}
	return msgs, nil
}

func (g *Gmail) Address(ctx context.Context) (string, error) {
	raw, err := g.do(ctx, http.MethodGet, "/gmail/v1/users/me/profile", nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		EmailAddress string `json:"emailAddress"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode profile response: %w", err)
	}
	return resp.EmailAddress, nil
}

type wireMessage struct {
	ID           string      `json:"id"`
	Snippet      string      `json:"snippet"`
	InternalDate string      `json:"internalDate"`
	Payload      wirePayload `json:"payload"`
}

type wirePayload struct {
	MimeType string        `json:"mimeType"`
	Headers  []wireHeader  `json:"headers"`
	Body     wireBody      `json:"body"`
	Parts    []wirePayload `json:"parts"`
}

type wireHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type wireBody struct {
	Data string `json:"data"`
}

func (wm wireMessage) toThreadMessage() ThreadMessage {
	tm := ThreadMessage{
		ID:      wm.ID,
		From:    wm.Payload.header("From"),
		Snippet: wm.Snippet,
		Body:    wm.Payload.plainBody(),
	}
	if ms, err := strconv.ParseInt(wm.InternalDate, 10, 64); err == nil {
		tm.Date = time.UnixMilli(ms).UTC()
	}
	return tm
}

func (p wirePayload) header(name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// plainBody finds the first text/plain part, recursing through multiparts.
func (p wirePayload) plainBody() string {
	if strings.HasPrefix(p.MimeType, "text/plain") && p.Body.Data != "" {
		if decoded, err := base64.RawURLEncoding.DecodeString(p.Body.Data); err == nil {
			return string(decoded)
		}
	}
	for _, part := range p.Parts {
		if body := part.plainBody(); body != "" {
			return body
		}
	}
	return ""
}

func buildRFC822(to, subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}

func (g *Gmail) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, g.retryDelay(attempt)); err != nil {
				return nil, err
			}
		}

		token, err := g.token(ctx)
		if err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := g.client.Do(req)
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
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, &apperrors.AuthError{Provider: "gmail", Err: fmt.Errorf("status %d: %s", resp.StatusCode, respBody)}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = &apperrors.TransientError{Op: method + " " + path, Err: fmt.Errorf("status %d", resp.StatusCode)}
			continue
		default:
			return nil, fmt.Errorf("gmail %s %s: status %d: %s", method, path, resp.StatusCode, respBody)
		}
	}
	return nil, lastErr
}

// token returns a cached access token, minting a new one when within a
// minute of expiry.
func (g *Gmail) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.accessToken != "" && time.Until(g.tokenExpiry) > time.Minute {
		return g.accessToken, nil
	}

	form := url.Values{
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"refresh_token": {g.refreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &apperrors.TransientError{Op: "oauth token", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &apperrors.TransientError{Op: "oauth token", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &apperrors.AuthError{Provider: "gmail", Err: fmt.Errorf("token exchange status %d: %s", resp.StatusCode, body)}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", &apperrors.AuthError{Provider: "gmail", Err: fmt.Errorf("empty access token")}
	}
	g.accessToken = tok.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return g.accessToken, nil
}

func (g *Gmail) retryDelay(attempt int) time.Duration {
	delay := g.baseDelay * time.Duration(1<<(attempt-1))
	if delay > g.maxDelay {
		delay = g.maxDelay
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
