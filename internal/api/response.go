// Package api provides HTTP response utilities for PDIMentor.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/PDIMentor/internal/flow"
	"github.com/BTreeMap/PDIMentor/internal/genai"
	"github.com/BTreeMap/PDIMentor/internal/models"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so encoding errors surface before headers are written.
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writePDFResponse sends data as a downloadable PDF.
func writePDFResponse(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("Server.writePDFResponse: failed to write PDF", "error", err, "filename", filename)
	}
}

// statusFor maps domain and adapter errors onto HTTP status codes.
func statusFor(err error) int {
	var up *genai.UpstreamError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, genai.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.As(err, &up):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrEmptyInput),
		errors.Is(err, models.ErrInputTooLong),
		errors.Is(err, flow.ErrInvalidOption):
		return http.StatusBadRequest
	case errors.Is(err, flow.ErrChoiceRequiresConfirm),
		errors.Is(err, flow.ErrNotChoiceStep),
		errors.Is(err, flow.ErrNoPendingChoice),
		errors.Is(err, flow.ErrIntakeIncomplete):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// userMessage renders err as the inline text shown in the chat.
func userMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrEmptyInput):
		return "Digite uma resposta antes de enviar."
	case errors.Is(err, models.ErrInputTooLong):
		return fmt.Sprintf("Sua mensagem é muito longa. O limite é de %d caracteres.", models.MaxMessageLength)
	case errors.Is(err, flow.ErrChoiceRequiresConfirm):
		return "Escolha uma das opções e confirme para continuar."
	case errors.Is(err, flow.ErrNotChoiceStep):
		return "Não há uma escolha pendente neste momento."
	case errors.Is(err, flow.ErrNoPendingChoice):
		return "Selecione uma opção antes de confirmar."
	case errors.Is(err, flow.ErrInvalidOption):
		return "Essa opção não está disponível. Escolha uma das opções listadas."
	case errors.Is(err, flow.ErrIntakeIncomplete):
		return "Complete o questionário antes de gerar o resumo."
	default:
		return genai.UserMessage(err)
	}
}

// writeErrorResponse writes an error envelope that still carries the current view.
func writeErrorResponse(w http.ResponseWriter, err error, view *flow.View) {
	status := statusFor(err)
	apiStatus := models.APIStatusError
	if errors.Is(err, flow.ErrIntakeIncomplete) {
		apiStatus = models.APIStatusWarning
	}
	resp := models.NewAPIResponseBuilder().
		WithStatus(apiStatus).
		WithMessage(userMessage(err))
	if view != nil {
		resp = resp.WithResult(view)
	}
	writeJSONResponse(w, status, resp.Build())
}
