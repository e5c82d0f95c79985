package handler

import (
	"net/http"

	"thinkora-client/internal/model"
	"thinkora-client/internal/service"
)

type AssistantHandler struct {
	service *service.AssistantService
}

func NewAssistantHandler(service *service.AssistantService) *AssistantHandler {
	return &AssistantHandler{service: service}
}

func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var payload model.ChatRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	reply, err := h.service.Chat(r.Context(), payload.Message, payload.Context)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, reply)
}

func (h *AssistantHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.History(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, history)
}

func (h *AssistantHandler) GPA(w http.ResponseWriter, r *http.Request) {
	var payload model.GPARequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.CalculateGPA(r.Context(), payload.Grades, payload.Credits)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (h *AssistantHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Health(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, status)
}
