package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"thinkora-client/internal/model"
)

type fixedSnapshot model.State

func (f fixedSnapshot) Snapshot() model.Snapshot {
	return model.Snapshot{State: model.State(f)}
}

func TestRequireSession(t *testing.T) {
	tests := []struct {
		state model.State
		want  int
	}{
		{model.StateAnonymous, http.StatusUnauthorized},
		{model.StateAuthenticating, http.StatusUnauthorized},
		{model.StateExpired, http.StatusUnauthorized},
		{model.StateAuthenticated, http.StatusOK},
		{model.StateRefreshing, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			handler := RequireSession(fixedSnapshot(tt.state))(okHandler)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assistant/status", nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
