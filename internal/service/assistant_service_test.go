package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinkora-client/internal/model"
	"thinkora-client/pkg/apierror"
)

func newAssistant(t *testing.T, handler http.HandlerFunc) *AssistantService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAssistantService(srv.URL, srv.Client(), srv.Client())
}

func TestAssistantChat(t *testing.T) {
	t.Parallel()

	svc := newAssistant(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/", r.URL.Path)
		var req model.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "student", req.Context)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":    true,
			"reply":      "I understand: '" + req.Message + "'. How can I assist you today?",
			"message_id": 9,
			"timestamp":  "2026-01-01T00:00:00Z",
		})
	})

	reply, err := svc.Chat(context.Background(), " hello ", "")
	require.NoError(t, err)
	assert.Equal(t, int64(9), reply.MessageID)
	assert.Contains(t, reply.Reply, "hello")

	_, err = svc.Chat(context.Background(), "   ", "")
	require.ErrorIs(t, err, apierror.ErrValidation)
}

func TestAssistantHistory(t *testing.T) {
	t.Parallel()

	svc := newAssistant(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/history/", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"history": []map[string]any{
				{"id": 1, "sender": "user", "text": "hi", "time": "t1", "context": "student"},
				{"id": 2, "sender": "ai", "text": "hello", "time": "t2", "context": "student"},
			},
		})
	})

	history, err := svc.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "ai", history[1].Sender)
}

func TestAssistantCalculateGPA(t *testing.T) {
	t.Parallel()

	var calls int
	svc := newAssistant(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(model.GPAResult{GPA: 4.43, TotalCredits: 7, Scale: "5.00", GradesCount: 2})
	})

	result, err := svc.CalculateGPA(context.Background(), []string{"A", "B"}, []float64{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 4.43, result.GPA, 0.001)

	tests := []struct {
		name    string
		grades  []string
		credits []float64
		field   string
	}{
		{"empty", nil, nil, "grades"},
		{"length mismatch", []string{"A", "B"}, []float64{3}, "credits"},
		{"blank grade", []string{" "}, []float64{3}, "grades"},
		{"zero credit", []string{"A"}, []float64{0}, "credits"},
	}
	for _, tt := range tests {
		_, err := svc.CalculateGPA(context.Background(), tt.grades, tt.credits)
		require.ErrorIs(t, err, apierror.ErrValidation, tt.name)
		assert.Contains(t, apierror.From(err).Fields, tt.field, tt.name)
	}
	assert.Equal(t, 1, calls)
}

func TestAssistantUpstreamErrors(t *testing.T) {
	t.Parallel()

	svc := newAssistant(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/calculate-gpa/":
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "No valid grades provided"})
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "database is locked"})
		}
	})

	_, err := svc.CalculateGPA(context.Background(), []string{"Z"}, []float64{3})
	require.ErrorIs(t, err, apierror.ErrValidation)
	assert.Equal(t, "No valid grades provided", apierror.From(err).Message)

	_, err = svc.History(context.Background())
	require.ErrorIs(t, err, apierror.ErrServerError)
}

func TestAssistantHealthIsPublic(t *testing.T) {
	t.Parallel()

	svc := newAssistant(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "service": "Thinkora Backend", "version": "1.0"})
	})

	status, err := svc.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "Thinkora Backend", status.Service)
}
