package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// NewProxy forwards /api/* to the remote API through rt, which attaches
// the session's token. Any Authorization or Cookie header sent by the
// browser is dropped.
func NewProxy(apiBaseURL string, rt http.RoundTripper, logger *slog.Logger) (http.Handler, error) {
	target, err := url.Parse(strings.TrimRight(apiBaseURL, "/"))
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", apiBaseURL)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, "/api")
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.Out.Host = target.Host
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")
		},
		Transport:     rt,
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("proxy request failed", "path", r.URL.Path, "error", err)
			writeError(w, err)
		},
	}
	return proxy, nil
}
