package common

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/thushan/llamatap/internal/core/constants"
	"github.com/thushan/llamatap/internal/core/domain"
)

// ErrorBody is the JSON written for every error the proxy generates itself
type ErrorBody struct {
	Error  string `json:"error"`
	Model  string `json:"model"`
	Status int    `json:"status"`
}

// Message picks the client-facing text; unknown models always read "Unsupported or Unknown Model: <id>"
func Message(err error) string {
	var modelErr *domain.ModelError
	if errors.As(err, &modelErr) {
		return modelErr.Error()
	}
	return err.Error()
}

func WriteError(w http.ResponseWriter, err error, model, requestID string) int {
	status := StatusFor(err)

	h := w.Header()
	h.Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	h.Set("X-Content-Type-Options", "nosniff")
	if requestID != "" {
		h.Set(constants.HeaderRequestID, requestID)
	}
	w.WriteHeader(status)

	_ = jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(ErrorBody{
		Error:  Message(err),
		Model:  model,
		Status: status,
	})
	return status
}
