package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-blocks/pkg/blocks"
)

// errorStatus maps engine errors to HTTP status codes, checked in order.
var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{blocks.ErrValidation, http.StatusUnprocessableEntity, "validation_failed"},
	{blocks.ErrUnknownVariant, http.StatusBadRequest, "unknown_variant"},
	{blocks.ErrNotFound, http.StatusNotFound, "not_found"},
	{blocks.ErrIncompleteReorder, http.StatusConflict, "incomplete_reorder"},
	{blocks.ErrTransactionFailure, http.StatusServiceUnavailable, "transaction_failed"},
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			status, code = e.status, e.code
			break
		}
	}

	resp := ErrorResponse{Error: err.Error(), Code: code}
	var vErr *blocks.ValidationError
	if errors.As(err, &vErr) {
		resp.Field = vErr.Field
	}

	if status >= http.StatusInternalServerError {
		slog.Error("Block request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: msg, Code: "bad_request"})
}
