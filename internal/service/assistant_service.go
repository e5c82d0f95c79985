package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"thinkora-client/internal/model"
	"thinkora-client/pkg/apierror"
)

// AssistantService calls the chat and GPA endpoints through the gateway
// client, so every call carries the session's token and survives one
// token rotation.
type AssistantService struct {
	baseURL    string
	authorized *http.Client
	public     *http.Client
}

func NewAssistantService(baseURL string, authorized *http.Client, public *http.Client) *AssistantService {
	if public == nil {
		public = http.DefaultClient
	}
	return &AssistantService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authorized: authorized,
		public:     public,
	}
}

func (s *AssistantService) Chat(ctx context.Context, message string, chatContext string) (model.ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return model.ChatReply{}, apierror.Validation("Message is empty.", map[string]string{"message": "This field may not be blank."}, http.StatusBadRequest)
	}
	if chatContext == "" {
		chatContext = "student"
	}

	var reply model.ChatReply
	err := s.call(ctx, s.authorized, http.MethodPost, "/chat/", model.ChatRequest{Message: message, Context: chatContext}, &reply)
	return reply, err
}

func (s *AssistantService) History(ctx context.Context) ([]model.ChatEntry, error) {
	var payload struct {
		History []model.ChatEntry `json:"history"`
	}
	if err := s.call(ctx, s.authorized, http.MethodGet, "/chat/history/", nil, &payload); err != nil {
		return nil, err
	}
	if payload.History == nil {
		payload.History = []model.ChatEntry{}
	}
	return payload.History, nil
}

// CalculateGPA checks the shape of the input; grading itself is done by the
// server on its 5.00 scale.
func (s *AssistantService) CalculateGPA(ctx context.Context, grades []string, credits []float64) (model.GPAResult, error) {
	if err := validateGPAInput(grades, credits); err != nil {
		return model.GPAResult{}, err
	}

	var result model.GPAResult
	err := s.call(ctx, s.authorized, http.MethodPost, "/calculate-gpa/", model.GPARequest{Grades: grades, Credits: credits}, &result)
	return result, err
}

func (s *AssistantService) Health(ctx context.Context) (model.ServiceStatus, error) {
	var status model.ServiceStatus
	err := s.call(ctx, s.public, http.MethodGet, "/health/", nil, &status)
	return status, err
}

func validateGPAInput(grades []string, credits []float64) error {
	fields := map[string]string{}
	switch {
	case len(grades) == 0:
		fields["grades"] = "At least one grade is required."
	case len(grades) != len(credits):
		fields["credits"] = fmt.Sprintf("Expected %d credit values, got %d.", len(grades), len(credits))
	}
	for i, grade := range grades {
		if strings.TrimSpace(grade) == "" {
			fields["grades"] = fmt.Sprintf("Grade %d is empty.", i+1)
			break
		}
	}
	for i, credit := range credits {
		if credit <= 0 || math.IsNaN(credit) || math.IsInf(credit, 0) {
			fields["credits"] = fmt.Sprintf("Credit %d must be a positive number.", i+1)
			break
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return apierror.Validation("Send one grade and one credit value per course.", fields, http.StatusBadRequest)
}

func (s *AssistantService) call(ctx context.Context, client *http.Client, method string, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		var apiErr *apierror.APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}
		return apierror.Wrap(apierror.KindNetworkUnavailable, "", 0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apierror.Wrap(apierror.KindNetworkUnavailable, "", 0, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return upstreamError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return apierror.Wrap(apierror.KindServerError, "malformed response from the assistant", resp.StatusCode, err)
	}
	return nil
}

func upstreamError(status int, body []byte) error {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	_ = json.Unmarshal(body, &payload)
	msg := payload.Error
	if msg == "" {
		msg = payload.Detail
	}

	switch {
	case status == http.StatusBadRequest:
		return apierror.Validation(msg, nil, status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apierror.New(apierror.KindUnauthorized, "", status)
	default:
		return apierror.New(apierror.KindServerError, msg, status)
	}
}
