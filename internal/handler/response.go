package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"thinkora-client/internal/model"
	"thinkora-client/internal/session"
	"thinkora-client/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected error in the session host",
	}

	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Kind.Status()
		body.Code = string(apiErr.Kind)
		body.Message = apiErr.Message
		body.Fields = apiErr.Fields
	case errors.Is(err, session.ErrSuperseded):
		status = http.StatusConflict
		body.Code = "SUPERSEDED"
		body.Message = "The session changed while this request was in flight."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		body.Code = string(apierror.KindNetworkUnavailable)
		body.Message = "The request was cancelled before it completed."
	default:
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()

	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64<<10))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apierror.Validation("Request body must be a JSON object.", nil, http.StatusBadRequest)
	}
	return nil
}
