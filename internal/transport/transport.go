// Package transport performs the four authentication exchanges against the
// Thinkora API and maps every failure to an apierror kind. It never retries
// and never touches session state.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"thinkora-client/internal/metrics"
	"thinkora-client/internal/model"
	"thinkora-client/pkg/apierror"
)

const maxResponseBytes = 1 << 20

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit caps token exchanges at rpm per minute. Zero disables it.
func WithRateLimit(rpm int) Option {
	return func(c *Client) {
		if rpm <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// RequestToken exchanges an identifier and secret for a credential.
func (c *Client) RequestToken(ctx context.Context, identifier string, secret string) (model.Credential, error) {
	status, body, err := c.exchange(ctx, "request_token", http.MethodPost, "/token/", "", map[string]string{
		"email":    identifier,
		"password": secret,
	})
	if err != nil {
		return model.Credential{}, err
	}

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return model.Credential{}, apierror.New(apierror.KindInvalidCredentials, "", status)
	case !success(status):
		return model.Credential{}, serverError(status, body)
	}

	var pair tokenPair
	if err := json.Unmarshal(body, &pair); err != nil || strings.TrimSpace(pair.Access) == "" {
		return model.Credential{}, apierror.Wrap(apierror.KindServerError, "token response has no access token", status, err)
	}
	return model.NewCredential(pair.Access, pair.Refresh, c.now()), nil
}

// RefreshToken trades a refresh token for a new access token. When the
// server does not rotate the refresh token the presented one is kept.
// Failures are RefreshRejected or, when the server is unreachable,
// NetworkUnavailable.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (model.Credential, error) {
	status, body, err := c.exchange(ctx, "refresh_token", http.MethodPost, "/token/refresh/", "", map[string]string{
		"refresh": refreshToken,
	})
	if err != nil {
		return model.Credential{}, err
	}

	// Any answer other than a new token ends the session; only a failure to
	// reach the server is retryable.
	if !success(status) {
		return model.Credential{}, apierror.New(apierror.KindRefreshRejected, "", status)
	}

	var pair tokenPair
	if err := json.Unmarshal(body, &pair); err != nil || strings.TrimSpace(pair.Access) == "" {
		return model.Credential{}, apierror.Wrap(apierror.KindRefreshRejected, "", status, err)
	}
	if strings.TrimSpace(pair.Refresh) == "" {
		pair.Refresh = refreshToken
	}
	return model.NewCredential(pair.Access, pair.Refresh, c.now()), nil
}

// Register creates an account. It does not sign the user in.
func (c *Client) Register(ctx context.Context, fields model.RegistrationFields) error {
	status, body, err := c.exchange(ctx, "register", http.MethodPost, "/register/", "", fields)
	if err != nil {
		return err
	}

	switch {
	case success(status):
		return nil
	case status == http.StatusBadRequest:
		return parseValidation(status, body)
	default:
		return serverError(status, body)
	}
}

type profilePayload struct {
	ID          any    `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	UserEmail   string `json:"user_email"`
	DisplayName string `json:"display_name"`
}

// FetchProfile reads the profile of the user owning accessToken.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (model.UserProfile, error) {
	status, body, err := c.do(ctx, "fetch_profile", http.MethodGet, "/test/", accessToken, nil)
	if err != nil {
		return model.UserProfile{}, err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.UserProfile{}, apierror.New(apierror.KindUnauthorized, "", status)
	case !success(status):
		return model.UserProfile{}, serverError(status, body)
	}

	var p profilePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return model.UserProfile{}, apierror.Wrap(apierror.KindServerError, "malformed profile response", status, err)
	}

	profile := model.UserProfile{
		ID:          formatID(p.ID),
		Username:    p.Username,
		Email:       p.Email,
		DisplayName: p.DisplayName,
	}
	if profile.Email == "" {
		profile.Email = p.UserEmail
	}
	return profile, nil
}

// exchange is do behind the client-side limiter.
func (c *Client) exchange(ctx context.Context, op string, method string, path string, token string, payload any) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.metrics.ObserveTransport(op, "rate_limited", time.Now())
			return 0, nil, apierror.Wrap(apierror.KindNetworkUnavailable, "", 0, err)
		}
	}
	return c.do(ctx, op, method, path, token, payload)
}

func (c *Client) do(ctx context.Context, op string, method string, path string, token string, payload any) (int, []byte, error) {
	started := time.Now()

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveTransport(op, "network_error", started)
		return 0, nil, apierror.Wrap(apierror.KindNetworkUnavailable, "", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.ObserveTransport(op, "network_error", started)
		return 0, nil, apierror.Wrap(apierror.KindNetworkUnavailable, "", 0, err)
	}

	c.metrics.ObserveTransport(op, statusClass(resp.StatusCode), started)
	return resp.StatusCode, body, nil
}

func success(status int) bool {
	return status >= 200 && status < 300
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}

func serverError(status int, body []byte) error {
	msg := ""
	if detail := errorDetail(body); detail != "" {
		msg = fmt.Sprintf("server returned %d: %s", status, detail)
	}
	return apierror.New(apierror.KindServerError, msg, status)
}

func errorDetail(body []byte) string {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Detail
}

func formatID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return fmt.Sprint(id)
	}
}
