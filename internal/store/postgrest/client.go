// Package postgrest implements store.Client on top of the REST interface of a
// hosted PostgreSQL backend (PostgREST, as exposed by Supabase).
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vasiliy-maslov/user-portal/internal/store"
)

const restPath = "/rest/v1/"

// Config describes how to reach the REST endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	// Schema selects a non-default schema through the profile headers.
	Schema  string
	Timeout time.Duration
	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
}

// Client is a store.Client talking to PostgREST.
type Client struct {
	base    *url.URL
	apiKey  string
	token   string
	schema  string
	timeout time.Duration
	http    *http.Client
}

// New validates cfg and returns a client authenticated with the access key.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("postgrest: base url is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("postgrest: api key is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("postgrest: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("postgrest: base url %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = store.DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		base:    base,
		apiKey:  cfg.APIKey,
		token:   cfg.APIKey,
		schema:  cfg.Schema,
		timeout: timeout,
		http:    httpClient,
	}, nil
}

var _ store.TokenScoper = (*Client)(nil)

// WithToken returns a copy of the client that authorizes requests with a
// signed-in user's access token. An empty token falls back to the API key.
// The receiver is left unchanged.
func (c *Client) WithToken(token string) store.Client {
	clone := *c
	if token == "" {
		clone.token = c.apiKey
	} else {
		clone.token = token
	}
	return &clone
}

func (c *Client) Execute(ctx context.Context, q *store.Query) (*store.Response, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := store.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, q)
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("postgrest: %s %s: %w", req.Method, q.Table, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("postgrest: read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, decodeError(res.StatusCode, body)
	}

	if q.CountOnly {
		count, err := ParseContentRange(res.Header.Get("Content-Range"))
		if err != nil {
			return nil, err
		}
		return &store.Response{Data: store.EmptyRows, Count: count}, nil
	}

	data := bytes.TrimSpace(body)
	if len(data) == 0 {
		data = store.EmptyRows
	}
	return &store.Response{Data: data}, nil
}

func (c *Client) newRequest(ctx context.Context, q *store.Query) (*http.Request, error) {
	endpoint := c.base.JoinPath(restPath, q.Table)
	endpoint.RawQuery = BuildParams(q).Encode()

	var (
		method string
		body   io.Reader
	)
	switch q.Action {
	case store.ActionSelect:
		method = http.MethodGet
		if q.CountOnly {
			method = http.MethodHead
		}
	case store.ActionInsert:
		method = http.MethodPost
	case store.ActionUpdate:
		method = http.MethodPatch
	case store.ActionDelete:
		method = http.MethodDelete
	default:
		return nil, fmt.Errorf("postgrest: unsupported action %s", q.Action)
	}

	if q.Payload != nil {
		payload, err := json.Marshal(q.Payload)
		if err != nil {
			return nil, fmt.Errorf("postgrest: encode payload: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("postgrest: build request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.schema != "" {
		if method == http.MethodGet || method == http.MethodHead {
			req.Header.Set("Accept-Profile", c.schema)
		} else {
			req.Header.Set("Content-Profile", c.schema)
		}
	}

	switch {
	case q.CountOnly:
		req.Header.Set("Prefer", "count=exact")
	case q.Action != store.ActionSelect:
		req.Header.Set("Prefer", "return=representation")
	}

	return req, nil
}

// BuildParams renders the query string PostgREST expects for q.
func BuildParams(q *store.Query) url.Values {
	params := url.Values{}

	if q.Action == store.ActionSelect || len(q.Columns) > 0 {
		columns := "*"
		if len(q.Columns) > 0 {
			columns = strings.Join(q.Columns, ",")
		}
		params.Set("select", columns)
	}

	for _, f := range q.Filters {
		if f.Value == nil {
			params.Add(f.Column, "is.null")
			continue
		}
		params.Add(f.Column, "eq."+FormatValue(f.Value))
	}

	if len(q.Orderings) > 0 {
		keys := make([]string, 0, len(q.Orderings))
		for _, o := range q.Orderings {
			dir := "desc"
			if o.Ascending {
				dir = "asc"
			}
			keys = append(keys, o.Column+"."+dir)
		}
		params.Set("order", strings.Join(keys, ","))
	}

	if q.HasRange {
		params.Set("offset", strconv.Itoa(q.Offset))
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	return params
}

// FormatValue renders a filter value the way PostgREST parses it.
func FormatValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return strings.Trim(string(raw), `"`)
	}
}

// ParseContentRange extracts the total from a header such as "0-9/42" or "*/0".
func ParseContentRange(header string) (int64, error) {
	_, total, ok := strings.Cut(header, "/")
	if !ok || total == "" || total == "*" {
		return 0, fmt.Errorf("postgrest: content-range %q carries no total", header)
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("postgrest: content-range %q has invalid total", header)
	}
	return n, nil
}

func decodeError(status int, body []byte) error {
	remote := &store.RemoteError{Status: status}
	if err := json.Unmarshal(body, remote); err != nil || remote.Message == "" {
		remote.Message = strings.TrimSpace(string(body))
	}
	if remote.Message == "" {
		remote.Message = http.StatusText(status)
	}
	return remote
}
