package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/livite/outreach-backend/internal/errors"
)

// titleProperty names the title column of each database. The wire format
// stores titles separately from plain rich text.
var titleProperty = map[EntityType]string{
	EntityGames:      "Game ID",
	EntityContacts:   "Name",
	EntityTemplates:  "Template Name",
	EntityEmailQueue: "Email ID",
	EntityOrders:     "Order ID",
}

// NotionStoreOptions configures the hosted record store client.
type NotionStoreOptions struct {
	BaseURL    string
	Token      string
	APIVersion string
	Databases  map[EntityType]string
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// NotionStore talks to the hosted record store over HTTP. Rate-limited and
// 5xx responses are retried with capped exponential backoff, honoring
// Retry-After when the server sends one.
type NotionStore struct {
	baseURL    string
	token      string
	apiVersion string
	databases  map[EntityType]string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewNotionStore(opts NotionStoreOptions) *NotionStore {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.notion.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "2022-06-28"
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &NotionStore{
		baseURL:    baseURL,
		token:      opts.Token,
		apiVersion: apiVersion,
		databases:  opts.Databases,
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

func (s *NotionStore) Query(ctx context.Context, entity EntityType, q Query) (Page, error) {
	db, ok := s.databases[entity]
	if !ok || db == "" {
		return Page{}, fmt.Errorf("no database configured for %s", entity)
	}
	payload := map[string]any{}
	if f := encodeFilter(q.Filter); f != nil {
		payload["filter"] = f
	}
	if q.Sort != nil {
		direction := "ascending"
		if q.Sort.Descending {
			direction = "descending"
		}
		payload["sorts"] = []map[string]any{{"property": q.Sort.Property, "direction": direction}}
	}
	if q.Cursor != "" {
		payload["start_cursor"] = q.Cursor
	}

	body, err := s.do(ctx, http.MethodPost, "/v1/databases/"+db+"/query", payload)
	if err != nil {
		return Page{}, err
	}

	var resp struct {
		Results    []json.RawMessage `json:"results"`
		HasMore    bool              `json:"has_more"`
		NextCursor string            `json:"next_cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Page{}, fmt.Errorf("decode query response: %w", err)
	}

	page := Page{HasMore: resp.HasMore, NextCursor: resp.NextCursor}
	for _, raw := range resp.Results {
		ent, err := decodePage(raw, entity)
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, ent)
	}
	return page, nil
}

func (s *NotionStore) Get(ctx context.Context, id string) (Entity, error) {
	body, err := s.do(ctx, http.MethodGet, "/v1/pages/"+id, nil)
	if err != nil {
		return Entity{}, err
	}
	return decodePage(body, "")
}

func (s *NotionStore) Create(ctx context.Context, entity EntityType, props Properties) (string, error) {
	db, ok := s.databases[entity]
	if !ok || db == "" {
		return "", fmt.Errorf("no database configured for %s", entity)
	}
	payload := map[string]any{
		"parent":     map[string]any{"database_id": db},
		"properties": encodeProperties(entity, props),
	}
	body, err := s.do(ctx, http.MethodPost, "/v1/pages", payload)
	if err != nil {
		return "", err
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	return resp.ID, nil
}

func (s *NotionStore) Update(ctx context.Context, id string, props Properties) error {
	payload := map[string]any{"properties": encodeProperties("", props)}
	_, err := s.do(ctx, http.MethodPatch, "/v1/pages/"+id, payload)
	return err
}

func (s *NotionStore) Archive(ctx context.Context, id string) error {
	_, err := s.do(ctx, http.MethodPatch, "/v1/pages/"+id, map[string]any{"archived": true})
	return err
}

func (s *NotionStore) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	url := s.baseURL + path

	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+s.token)
		req.Header.Set("Notion-Version", s.apiVersion)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if attempt < s.maxRetries {
				if waitErr := sleepContext(ctx, s.retryDelay(attempt+1, "")); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, &apperrors.TransientError{Op: "record store " + method + " " + path, Err: err}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return respBody, nil
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < s.maxRetries {
			if waitErr := sleepContext(ctx, s.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return nil, apperrors.ErrNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, &apperrors.AuthError{Provider: "record store", Err: apiError(resp.StatusCode, respBody)}
		case http.StatusTooManyRequests:
			return nil, &apperrors.TransientError{Op: "record store " + method + " " + path, Err: apiError(resp.StatusCode, respBody)}
		}
		if resp.StatusCode >= 500 {
			return nil, &apperrors.TransientError{Op: "record store " + method + " " + path, Err: apiError(resp.StatusCode, respBody)}
		}
		return nil, apiError(resp.StatusCode, respBody)
	}
}

func apiError(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var parsed map[string]any
	if json.Unmarshal(body, &parsed) == nil {
		if m, ok := parsed["message"].(string); ok && strings.TrimSpace(m) != "" {
			message = m
		}
		if code, ok := parsed["code"].(string); ok && code != "" {
			return fmt.Errorf("record store error: status=%d code=%s message=%s", status, code, message)
		}
	}
	return fmt.Errorf("record store error: status=%d message=%s", status, message)
}

func (s *NotionStore) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > s.maxDelay {
			return s.maxDelay
		}
		return retryAfter
	}
	delay := s.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.maxDelay {
			return s.maxDelay
		}
	}
	if delay > s.maxDelay {
		return s.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// --- wire encoding ---

func encodeProperties(entity EntityType, props Properties) map[string]any {
	title := ""
	if entity != "" {
		title = titleProperty[entity]
	}
	out := make(map[string]any, len(props))
	for name, v := range props {
		if name == title {
			out[name] = map[string]any{
				"title": []map[string]any{{"text": map[string]any{"content": v.Text}}},
			}
			continue
		}
		out[name] = encodeValue(v)
	}
	return out
}

func encodeValue(v Value) map[string]any {
	switch v.Type {
	case TypeEmail:
		if v.Text == "" {
			return map[string]any{"email": nil}
		}
		return map[string]any{"email": v.Text}
	case TypeSelect:
		if v.Text == "" {
			return map[string]any{"select": nil}
		}
		return map[string]any{"select": map[string]any{"name": v.Text}}
	case TypeCheckbox:
		return map[string]any{"checkbox": v.Checkbox}
	case TypeDate:
		if v.Date == nil {
			return map[string]any{"date": nil}
		}
		return map[string]any{"date": map[string]any{"start": v.Date.Format("2006-01-02")}}
	case TypeRelation:
		rels := make([]map[string]any, 0, len(v.Relation))
		for _, id := range v.Relation {
			rels = append(rels, map[string]any{"id": id})
		}
		return map[string]any{"relation": rels}
	case TypeNumber:
		if v.Number == nil {
			return map[string]any{"number": nil}
		}
		return map[string]any{"number": *v.Number}
	}
	return map[string]any{
		"rich_text": []map[string]any{{"text": map[string]any{"content": v.Text}}},
	}
}

func encodeFilter(f Filter) map[string]any {
	var all []map[string]any
	for _, c := range f.All {
		all = append(all, encodeCond(c))
	}
	if len(f.Any) > 0 {
		var anyConds []map[string]any
		for _, c := range f.Any {
			anyConds = append(anyConds, encodeCond(c))
		}
		all = append(all, map[string]any{"or": anyConds})
	}
	switch len(all) {
	case 0:
		return nil
	case 1:
		return all[0]
	}
	return map[string]any{"and": all}
}

func encodeCond(c Cond) map[string]any {
	typeKey := "rich_text"
	switch c.Value.Type {
	case TypeEmail:
		typeKey = "email"
	case TypeSelect:
		typeKey = "select"
	case TypeCheckbox:
		typeKey = "checkbox"
	case TypeDate:
		typeKey = "date"
	case TypeRelation:
		typeKey = "relation"
	case TypeNumber:
		typeKey = "number"
	}

	var operand any
	switch c.Op {
	case OpIsEmpty, OpIsNotEmpty:
		operand = true
	case OpContains:
		operand = c.Value.FirstRelation()
	default:
		switch c.Value.Type {
		case TypeCheckbox:
			operand = c.Value.Checkbox
		case TypeNumber:
			operand = 0.0
			if c.Value.Number != nil {
				operand = *c.Value.Number
			}
		case TypeDate:
			if c.Value.Date != nil {
				operand = c.Value.Date.Format("2006-01-02")
			}
		default:
			operand = c.Value.Text
		}
	}

	return map[string]any{
		"property": c.Property,
		typeKey:    map[string]any{string(c.Op): operand},
	}
}

// decodePage maps one wire page onto an Entity. The entity type hint picks
// the title property; Get calls pass "" and rely on the title type marker.
func decodePage(raw []byte, entity EntityType) (Entity, error) {
	var page struct {
		ID         string                     `json:"id"`
		Archived   bool                       `json:"archived"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return Entity{}, fmt.Errorf("decode page: %w", err)
	}
	ent := Entity{ID: page.ID, Type: entity, Archived: page.Archived, Properties: make(Properties, len(page.Properties))}
	for name, rawProp := range page.Properties {
		v, err := decodeValue(rawProp)
		if err != nil {
			return Entity{}, fmt.Errorf("decode property %q: %w", name, err)
		}
		ent.Properties[name] = v
	}
	return ent, nil
}

func decodeValue(raw json.RawMessage) (Value, error) {
	var prop struct {
		Type     string `json:"type"`
		Title    []richText
		RichText []richText `json:"rich_text"`
		Email    *string    `json:"email"`
		Select   *struct {
			Name string `json:"name"`
		} `json:"select"`
		Checkbox *bool `json:"checkbox"`
		Date     *struct {
			Start string `json:"start"`
		} `json:"date"`
		Relation []struct {
			ID string `json:"id"`
		} `json:"relation"`
		Number *float64 `json:"number"`
	}
	if err := json.Unmarshal(raw, &prop); err != nil {
		return Value{}, err
	}
	switch prop.Type {
	case "title":
		return Text(plainText(prop.Title)), nil
	case "rich_text":
		return Text(plainText(prop.RichText)), nil
	case "email":
		if prop.Email == nil {
			return Value{Type: TypeEmail}, nil
		}
		return Email(*prop.Email), nil
	case "select":
		if prop.Select == nil {
			return Value{Type: TypeSelect}, nil
		}
		return Select(prop.Select.Name), nil
	case "checkbox":
		if prop.Checkbox == nil {
			return Value{Type: TypeCheckbox}, nil
		}
		return Checkbox(*prop.Checkbox), nil
	case "date":
		if prop.Date == nil || prop.Date.Start == "" {
			return Value{Type: TypeDate}, nil
		}
		t, err := parseWireDate(prop.Date.Start)
		if err != nil {
			return Value{}, err
		}
		return Date(t), nil
	case "relation":
		ids := make([]string, 0, len(prop.Relation))
		for _, r := range prop.Relation {
			ids = append(ids, r.ID)
		}
		return Value{Type: TypeRelation, Relation: ids}, nil
	case "number":
		if prop.Number == nil {
			return Value{Type: TypeNumber}, nil
		}
		return Number(*prop.Number), nil
	}
	return Value{Type: TypeText}, nil
}

type richText struct {
	PlainText string `json:"plain_text"`
}

func plainText(parts []richText) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.PlainText)
	}
	return b.String()
}

func parseWireDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
