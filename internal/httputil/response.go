package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tendant/account-provisioner/pkg/domain"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes {"error": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainError writes e with the status derived from its kind. An upstream
// 5xx is reported as 502.
func DomainError(w http.ResponseWriter, e *domain.Error) {
	status := StatusForKind(e.Kind)
	if e.Kind == domain.KindUnavailable && e.Status >= 500 {
		status = http.StatusBadGateway
	}
	JSON(w, status, ErrorResponse{Error: e.Error(), Code: string(e.Kind)})
}

// StatusForKind maps an error kind to the HTTP status returned to callers.
func StatusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindInvalidCredentials, domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAlreadyExists:
		return http.StatusConflict
	case domain.KindWeakPassword, domain.KindRejected:
		return http.StatusUnprocessableEntity
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes the request body into v. It reports a body that is
// too large separately so callers can answer 413.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return ErrBodyTooLarge
		}
		return ErrInvalidBody
	}
	return nil
}

// Request body errors
var (
	ErrInvalidBody  = errors.New("invalid request body")
	ErrBodyTooLarge = errors.New("request body too large")
)

// BodyError writes the reply for an error returned by DecodeJSON.
func BodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrBodyTooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	Error(w, http.StatusBadRequest, ErrInvalidBody.Error())
}
