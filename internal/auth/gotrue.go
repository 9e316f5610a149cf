package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vasiliy-maslov/user-portal/internal/store"
)

const authPath = "/auth/v1"

type GoTrueConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// GoTrue is an Authenticator backed by the hosted auth endpoint that sits next
// to the REST store.
type GoTrue struct {
	base    *url.URL
	apiKey  string
	timeout time.Duration
	http    *http.Client
}

func NewGoTrue(cfg GoTrueConfig) (*GoTrue, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return nil, errors.New("gotrue: base url and api key are required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gotrue: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gotrue: base url %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = store.DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &GoTrue{base: base, apiKey: cfg.APIKey, timeout: timeout, http: httpClient}, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenResponse covers both the password grant answer and the signup answer.
// Signup without auto-confirmation returns the bare user object instead.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *User  `json:"user"`

	ID    string `json:"id"`
	Email string `json:"email"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (g *GoTrue) SignIn(ctx context.Context, email, password string) (*Session, error) {
	return g.post(ctx, "token", url.Values{"grant_type": {"password"}}, credentials{Email: email, Password: password})
}

// SignUp registers a user. When the backend requires email confirmation the
// returned session carries the user but no access token.
func (g *GoTrue) SignUp(ctx context.Context, email, password string) (*Session, error) {
	return g.post(ctx, "signup", nil, credentials{Email: email, Password: password})
}

// VerifyToken asks the backend who token belongs to. The expiry is read
// from the token itself once the backend accepted it.
func (g *GoTrue) VerifyToken(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	ctx, cancel := store.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.base.JoinPath(authPath, "user").String(), nil)
	if err != nil {
		return nil, fmt.Errorf("gotrue: build request: %w", err)
	}
	req.Header.Set("apikey", g.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	res, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gotrue: user: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("gotrue: read response: %w", err)
	}

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		var e errorResponse
		_ = json.Unmarshal(raw, &e)
		remote := &store.RemoteError{
			Status:  res.StatusCode,
			Code:    firstNonEmpty(e.ErrorCode, e.Error),
			Message: firstNonEmpty(e.Msg, e.Message, e.ErrorDescription, http.StatusText(res.StatusCode)),
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, remote)
	case res.StatusCode < 200 || res.StatusCode > 299:
		return nil, decodeAuthError(res.StatusCode, raw)
	}

	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("gotrue: decode user: %w", err)
	}

	claims, err := ParseClaims(token)
	if err != nil {
		claims = &Claims{}
	}
	claims.Subject = u.ID
	claims.Email = u.Email
	return claims, nil
}

func (g *GoTrue) post(ctx context.Context, endpoint string, params url.Values, body credentials) (*Session, error) {
	ctx, cancel := store.WithTimeout(ctx, g.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gotrue: encode request: %w", err)
	}

	u := g.base.JoinPath(authPath, endpoint)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gotrue: build request: %w", err)
	}
	req.Header.Set("apikey", g.apiKey)
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gotrue: %s: %w", endpoint, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("gotrue: read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, decodeAuthError(res.StatusCode, raw)
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("gotrue: decode response: %w", err)
	}
	return tr.session(), nil
}

func (tr tokenResponse) session() *Session {
	s := &Session{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}
	if tr.User != nil {
		s.User = *tr.User
	} else {
		s.User = User{ID: tr.ID, Email: tr.Email}
	}

	switch {
	case tr.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tr.ExpiresAt, 0).UTC()
	case tr.ExpiresIn > 0:
		s.ExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second).UTC().Truncate(time.Second)
	}
	return s
}

func decodeAuthError(status int, raw []byte) error {
	var e errorResponse
	_ = json.Unmarshal(raw, &e)

	msg := firstNonEmpty(e.ErrorDescription, e.Msg, e.Message, e.Error, strings.TrimSpace(string(raw)), http.StatusText(status))
	remote := &store.RemoteError{Status: status, Code: firstNonEmpty(e.ErrorCode, e.Error), Message: msg}

	switch {
	case e.ErrorCode == "user_already_exists" || e.ErrorCode == "email_exists",
		status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "already registered"):
		return fmt.Errorf("%w: %w", ErrUserExists, remote)
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, remote)
	}
	return remote
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
