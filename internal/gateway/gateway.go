// Package gateway wraps outgoing API requests with the session's bearer
// token and recovers from a single authorization failure per request.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"thinkora-client/internal/metrics"
	"thinkora-client/pkg/apierror"
)

// Sessions is the part of session.Manager the gateway depends on.
type Sessions interface {
	AccessToken(ctx context.Context) (string, error)
	RequestRefresh(ctx context.Context, staleAccessToken string) (string, error)
	Invalidate(staleAccessToken string)
}

type Gateway struct {
	sessions Sessions
	base     http.RoundTripper
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Gateway)

func WithTransport(rt http.RoundTripper) Option {
	return func(g *Gateway) {
		if rt != nil {
			g.base = rt
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func New(sessions Sessions, opts ...Option) *Gateway {
	g := &Gateway{
		sessions: sessions,
		base:     http.DefaultTransport,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "gateway")
	return g
}

// Do sends req with the current access token. On 401 it waits for the
// session's shared refresh and replays req exactly once with the new token.
// A replay that is rejected again invalidates the session and yields an
// Unauthorized error; every other response is returned untouched.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	body, err := bufferBody(req)
	if err != nil {
		g.metrics.ObserveGateway("failed")
		return nil, err
	}

	token, err := g.sessions.AccessToken(ctx)
	if err != nil {
		return nil, g.refreshFailed(ctx, err)
	}

	resp, err := g.send(req, body, token)
	if err != nil {
		g.metrics.ObserveGateway("failed")
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		g.metrics.ObserveGateway("ok")
		return resp, nil
	}
	discard(resp)

	fresh, err := g.sessions.RequestRefresh(ctx, token)
	if err != nil {
		return nil, g.refreshFailed(ctx, err)
	}

	g.logger.Debug("replaying request after refresh", "method", req.Method, "path", req.URL.Path)
	resp, err = g.send(req, body, fresh)
	if err != nil {
		g.metrics.ObserveGateway("failed")
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		discard(resp)
		g.sessions.Invalidate(fresh)
		g.metrics.ObserveGateway("unauthorized")
		return nil, apierror.New(apierror.KindUnauthorized, "", http.StatusUnauthorized)
	}

	g.metrics.ObserveGateway("replayed")
	return resp, nil
}

// refreshFailed passes transient and context errors through; anything else
// means the session is gone and the call fails as Unauthorized.
func (g *Gateway) refreshFailed(ctx context.Context, err error) error {
	if apierror.Transient(err) || ctx.Err() != nil {
		g.metrics.ObserveGateway("failed")
		return err
	}
	g.metrics.ObserveGateway("unauthorized")
	if kind, _ := apierror.KindOf(err); kind == apierror.KindUnauthorized {
		return err
	}
	return apierror.Wrap(apierror.KindUnauthorized, "", http.StatusUnauthorized, err)
}

// RoundTrip lets the gateway back an http.Client or a reverse proxy.
func (g *Gateway) RoundTrip(req *http.Request) (*http.Response, error) {
	return g.Do(req)
}

// Client returns an *http.Client whose every request goes through g.
func (g *Gateway) Client() *http.Client {
	return &http.Client{Transport: g}
}

func (g *Gateway) send(orig *http.Request, body []byte, token string) (*http.Response, error) {
	req := orig.Clone(orig.Context())
	if body != nil {
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		req.ContentLength = int64(len(body))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return g.base.RoundTrip(req)
}

// bufferBody reads req's body once so it can be sent twice.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	return data, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
