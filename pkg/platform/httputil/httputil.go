// Package httputil centralizes JSON encoding, request decoding and error
// translation for HTTP handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	dErrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/sentinel"
)

// maxBodyBytes caps request bodies. Attribute payloads are small; anything
// near this limit is abuse.
const maxBodyBytes = 1 << 20

// Validatable is implemented by request types that validate and parse
// themselves after decoding.
type Validatable interface {
	Validate() error
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// WriteError translates a domain error into an HTTP error response.
// Internal errors never leak their description to the client.
func WriteError(w http.ResponseWriter, err error) {
	code := translateCode(err)
	status := statusFor(code)

	body := map[string]string{"error": string(code)}
	if status < http.StatusInternalServerError {
		var de *dErrors.Error
		if errors.As(err, &de) {
			body["error_description"] = de.Message
		}
	}
	WriteJSON(w, status, body)
}

// DecodeAndPrepare decodes a JSON request body into T and runs its
// validation, writing the error response itself on failure.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *zap.Logger, ctx context.Context, requestID string) (PT, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	req := PT(new(T))
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(req); err != nil {
		logger.Info("request decode failed",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body is not valid JSON"))
		return nil, false
	}

	if err := req.Validate(); err != nil {
		logger.Info("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		WriteError(w, err)
		return nil, false
	}
	return req, true
}

// translateCode resolves the domain code of an error, mapping infrastructure
// sentinels first.
func translateCode(err error) dErrors.Code {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.CodeNotFound
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.CodeConflict
	}
	return dErrors.CodeOf(err)
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeBadRequest, dErrors.CodeUnknownCertifier:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
