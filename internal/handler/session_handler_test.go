package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"thinkora-client/internal/model"
	"thinkora-client/internal/session"
	"thinkora-client/pkg/apierror"
)

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Snapshot() model.Snapshot {
	return m.Called().Get(0).(model.Snapshot)
}

func (m *mockSessions) Login(ctx context.Context, identifier string, secret string) error {
	return m.Called(identifier, secret).Error(0)
}

func (m *mockSessions) Register(ctx context.Context, fields model.RegistrationFields) error {
	return m.Called(fields).Error(0)
}

func (m *mockSessions) Refresh(ctx context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *mockSessions) Logout() {
	m.Called()
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
}

func serve(t *testing.T, h http.HandlerFunc, method string, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, "/session", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestSessionHandlerLogin(t *testing.T) {
	authenticated := model.Snapshot{State: model.StateAuthenticated, User: &model.UserProfile{Username: "sam"}}

	t.Run("success returns the snapshot", func(t *testing.T) {
		sessions := &mockSessions{}
		sessions.On("Login", "sam@x.com", "pw1").Return(nil)
		sessions.On("Snapshot").Return(authenticated)

		rec, env := serve(t, NewSessionHandler(sessions).Login, http.MethodPost, `{"email":" sam@x.com ","password":"pw1"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, env.Success)

		var snap model.Snapshot
		require.NoError(t, json.Unmarshal(env.Data, &snap))
		assert.Equal(t, model.StateAuthenticated, snap.State)
		assert.NotContains(t, rec.Body.String(), "token")
		sessions.AssertExpectations(t)
	})

	t.Run("wrong password", func(t *testing.T) {
		sessions := &mockSessions{}
		sessions.On("Login", "sam@x.com", "nope").Return(apierror.New(apierror.KindInvalidCredentials, "", 401))

		rec, env := serve(t, NewSessionHandler(sessions).Login, http.MethodPost, `{"email":"sam@x.com","password":"nope"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
		assert.Equal(t, "Incorrect email or password.", env.Error.Message)
	})

	t.Run("missing fields never reach the manager", func(t *testing.T) {
		sessions := &mockSessions{}

		rec, env := serve(t, NewSessionHandler(sessions).Login, http.MethodPost, `{"email":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
		assert.Contains(t, env.Error.Fields, "email")
		assert.Contains(t, env.Error.Fields, "password")
		sessions.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec, _ := serve(t, NewSessionHandler(&mockSessions{}).Login, http.MethodPost, `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("superseded by logout", func(t *testing.T) {
		sessions := &mockSessions{}
		sessions.On("Login", "sam@x.com", "pw1").Return(session.ErrSuperseded)

		rec, env := serve(t, NewSessionHandler(sessions).Login, http.MethodPost, `{"email":"sam@x.com","password":"pw1"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "SUPERSEDED", env.Error.Code)
	})
}

func TestSessionHandlerRegister(t *testing.T) {
	t.Run("validation from the server carries fields", func(t *testing.T) {
		sessions := &mockSessions{}
		sessions.On("Register", model.RegistrationFields{Username: "sam", Email: "sam@x.com", Password: "pw"}).
			Return(apierror.Validation("Username already taken", map[string]string{"username": "Username already taken"}, 400))

		rec, env := serve(t, NewSessionHandler(sessions).Register, http.MethodPost, `{"username":"sam","email":"sam@x.com","password":"pw"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Username already taken", env.Error.Fields["username"])
	})

	t.Run("local validation", func(t *testing.T) {
		rec, env := serve(t, NewSessionHandler(&mockSessions{}).Register, http.MethodPost, `{"username":"sam","email":"not-an-email","password":"pw"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Enter a valid email address.", env.Error.Fields["email"])
	})

	t.Run("created", func(t *testing.T) {
		sessions := &mockSessions{}
		sessions.On("Register", mock.Anything).Return(nil)
		sessions.On("Snapshot").Return(model.Snapshot{State: model.StateAuthenticated})

		rec, env := serve(t, NewSessionHandler(sessions).Register, http.MethodPost, `{"username":"sam","email":"sam@x.com","password":"pw123456"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.True(t, env.Success)
	})
}

func TestSessionHandlerRefreshAndLogout(t *testing.T) {
	sessions := &mockSessions{}
	sessions.On("Refresh").Return("", apierror.New(apierror.KindRefreshRejected, "", 401)).Once()
	sessions.On("Logout").Return().Once()
	sessions.On("Snapshot").Return(model.Snapshot{State: model.StateAnonymous})

	h := NewSessionHandler(sessions)

	rec, env := serve(t, h.Refresh, http.MethodPost, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "REFRESH_REJECTED", env.Error.Code)

	rec, env = serve(t, h.Logout, http.MethodPost, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	sessions.AssertExpectations(t)
}

func TestWriteErrorMapsKinds(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apierror.New(apierror.KindNetworkUnavailable, "", 0), http.StatusServiceUnavailable},
		{apierror.New(apierror.KindServerError, "", 500), http.StatusBadGateway},
		{apierror.New(apierror.KindUnauthorized, "", 401), http.StatusUnauthorized},
		{context.Canceled, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, tt.err)
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}
}
