package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinkora-client/internal/model"
	"thinkora-client/internal/session"
	"thinkora-client/internal/store"
	"thinkora-client/pkg/apierror"
)

type stubTransport struct {
	refreshCalls atomic.Int32
	refresh      func(ctx context.Context, refreshToken string) (model.Credential, error)
}

func (s *stubTransport) RequestToken(ctx context.Context, identifier string, secret string) (model.Credential, error) {
	return model.Credential{}, apierror.New(apierror.KindInvalidCredentials, "", 401)
}

func (s *stubTransport) RefreshToken(ctx context.Context, refreshToken string) (model.Credential, error) {
	s.refreshCalls.Add(1)
	if s.refresh != nil {
		return s.refresh(ctx, refreshToken)
	}
	// Widen the window in which concurrent 401s pile up.
	time.Sleep(20 * time.Millisecond)
	return model.Credential{AccessToken: "fresh", RefreshToken: refreshToken}, nil
}

func (s *stubTransport) Register(ctx context.Context, fields model.RegistrationFields) error {
	return nil
}

func (s *stubTransport) FetchProfile(ctx context.Context, accessToken string) (model.UserProfile, error) {
	return model.UserProfile{Username: "sam"}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager(t *testing.T, st *stubTransport, access string) (*session.Manager, *store.CredentialStore) {
	t.Helper()
	cs := store.New(store.NewMemoryBackend(), store.WithLogger(quietLogger()))
	if access != "" {
		cs.Save(model.Credential{AccessToken: access, RefreshToken: "r1"})
	}
	m := session.NewManager(st, cs, session.WithLogger(quietLogger()), session.WithOperationTimeout(2*time.Second))
	return m, cs
}

// apiServer accepts only the tokens in valid and echoes the request body.
func apiServer(t *testing.T, valid ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		for _, v := range valid {
			if auth == v {
				body, _ := io.ReadAll(r.Body)
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(append([]byte(auth+":"), body...))
				return
			}
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Given token not valid for any token type"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestGatewayAttachesToken(t *testing.T) {
	t.Parallel()

	srv, hits := apiServer(t, "a1")
	m, _ := newManager(t, &stubTransport{}, "a1")
	gw := New(m, WithLogger(quietLogger()))

	resp, err := gw.Client().Get(srv.URL + "/chat/history/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "a1:", readAll(t, resp))
	assert.Equal(t, int32(1), hits.Load())
}

func TestGatewayReplaysOnceAfterRefresh(t *testing.T) {
	t.Parallel()

	srv, hits := apiServer(t, "fresh")
	st := &stubTransport{}
	m, cs := newManager(t, st, "stale")
	gw := New(m, WithLogger(quietLogger()))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/chat/", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, err)

	resp, err := gw.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `fresh:{"message":"hi"}`, readAll(t, resp))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), st.refreshCalls.Load())
	assert.Equal(t, "fresh", cs.Load().AccessToken)
}

func TestGatewayConcurrentUnauthorizedRefreshesOnce(t *testing.T) {
	t.Parallel()

	srv, _ := apiServer(t, "fresh")
	st := &stubTransport{}
	m, _ := newManager(t, st, "stale")
	client := New(m, WithLogger(quietLogger())).Client()

	const n = 16
	var wg sync.WaitGroup
	statuses := make([]int, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Get(srv.URL + "/chat/history/")
			errs[i] = err
			if err == nil {
				statuses[i] = resp.StatusCode
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), st.refreshCalls.Load())
	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, statuses[i])
	}
	assert.Equal(t, model.StateAuthenticated, m.Snapshot().State)
}

func TestGatewayReplayRejectedInvalidatesSession(t *testing.T) {
	t.Parallel()

	srv, hits := apiServer(t)
	m, cs := newManager(t, &stubTransport{}, "stale")
	gw := New(m, WithLogger(quietLogger()))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/chat/history/", nil)
	require.NoError(t, err)

	_, err = gw.Do(req)
	require.ErrorIs(t, err, apierror.ErrUnauthorized)
	assert.Equal(t, int32(2), hits.Load())

	snap := m.Snapshot()
	assert.Equal(t, model.StateAnonymous, snap.State)
	require.NotNil(t, snap.LastError)
	assert.Equal(t, apierror.KindUnauthorized, snap.LastError.Kind)
	assert.Nil(t, cs.Load())
}

func TestGatewayRefreshRejected(t *testing.T) {
	t.Parallel()

	srv, hits := apiServer(t)
	st := &stubTransport{
		refresh: func(ctx context.Context, _ string) (model.Credential, error) {
			return model.Credential{}, apierror.New(apierror.KindRefreshRejected, "", 401)
		},
	}
	m, _ := newManager(t, st, "stale")
	gw := New(m, WithLogger(quietLogger()))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/chat/history/", nil)
	require.NoError(t, err)

	_, err = gw.Do(req)
	require.ErrorIs(t, err, apierror.ErrUnauthorized)
	assert.Equal(t, int32(1), hits.Load())

	snap := m.Snapshot()
	assert.Equal(t, model.StateAnonymous, snap.State)
	assert.Equal(t, apierror.KindRefreshRejected, snap.LastError.Kind)
}

func TestGatewayProactiveRefreshRejected(t *testing.T) {
	t.Parallel()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(5 * time.Second).Unix(),
	})
	nearExpiry, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	srv, hits := apiServer(t, nearExpiry)
	st := &stubTransport{
		refresh: func(ctx context.Context, _ string) (model.Credential, error) {
			return model.Credential{}, apierror.New(apierror.KindRefreshRejected, "", 401)
		},
	}
	m, cs := newManager(t, st, nearExpiry)
	gw := New(m, WithLogger(quietLogger()))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/chat/history/", nil)
	require.NoError(t, err)

	_, err = gw.Do(req)
	require.ErrorIs(t, err, apierror.ErrUnauthorized)
	kind, _ := apierror.KindOf(err)
	assert.Equal(t, apierror.KindUnauthorized, kind)
	assert.Zero(t, hits.Load())
	assert.Equal(t, int32(1), st.refreshCalls.Load())

	assert.Equal(t, model.StateAnonymous, m.Snapshot().State)
	assert.Nil(t, cs.Load())
}

func TestGatewayRefreshTransient(t *testing.T) {
	t.Parallel()

	srv, _ := apiServer(t)
	st := &stubTransport{
		refresh: func(ctx context.Context, _ string) (model.Credential, error) {
			return model.Credential{}, apierror.New(apierror.KindNetworkUnavailable, "", 0)
		},
	}
	m, cs := newManager(t, st, "stale")
	gw := New(m, WithLogger(quietLogger()))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/chat/history/", nil)
	require.NoError(t, err)

	_, err = gw.Do(req)
	require.ErrorIs(t, err, apierror.ErrNetworkUnavailable)
	assert.Equal(t, "stale", cs.Load().AccessToken)
	assert.Equal(t, model.StateRefreshing, m.Snapshot().State)
}

func TestGatewayPassesThroughOtherFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	st := &stubTransport{}
	m, _ := newManager(t, st, "a1")

	resp, err := New(m, WithLogger(quietLogger())).Client().Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
	assert.Zero(t, st.refreshCalls.Load())
}

func TestGatewayAnonymous(t *testing.T) {
	t.Parallel()

	srv, hits := apiServer(t, "a1")
	m, _ := newManager(t, &stubTransport{}, "")

	_, err := New(m, WithLogger(quietLogger())).Client().Get(srv.URL)
	require.ErrorIs(t, err, apierror.ErrUnauthorized)
	assert.Zero(t, hits.Load())
}
