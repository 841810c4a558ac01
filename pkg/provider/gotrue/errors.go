package gotrue

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tendant/account-provisioner/pkg/domain"
)

// errorResponse covers both GoTrue error shapes:
// {"code":422,"error_code":"weak_password","msg":"..."} and the OAuth style
// {"error":"invalid_grant","error_description":"..."}.
type errorResponse struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

var kindsByCode = map[string]domain.ErrorKind{
	"user_already_exists":          domain.KindAlreadyExists,
	"email_exists":                 domain.KindAlreadyExists,
	"phone_exists":                 domain.KindAlreadyExists,
	"weak_password":                domain.KindWeakPassword,
	"same_password":                domain.KindWeakPassword,
	"invalid_credentials":          domain.KindInvalidCredentials,
	"invalid_grant":                domain.KindInvalidCredentials,
	"validation_failed":            domain.KindInvalidInput,
	"email_address_invalid":        domain.KindInvalidInput,
	"bad_json":                     domain.KindInvalidInput,
	"over_request_rate_limit":      domain.KindRateLimited,
	"over_email_send_rate_limit":   domain.KindRateLimited,
	"session_not_found":            domain.KindUnauthenticated,
	"session_expired":              domain.KindUnauthenticated,
	"bad_jwt":                      domain.KindUnauthenticated,
	"no_authorization":             domain.KindUnauthenticated,
	"user_not_found":               domain.KindNotFound,
	"signup_disabled":              domain.KindRejected,
	"email_not_confirmed":          domain.KindRejected,
	"email_provider_disabled":      domain.KindRejected,
	"email_address_not_authorized": domain.KindRejected,
	"user_banned":                  domain.KindRejected,
}

// decodeError builds a domain error from a non-2xx GoTrue response.
func decodeError(status int, body []byte) *domain.Error {
	var resp errorResponse
	_ = json.Unmarshal(body, &resp)

	code := resp.ErrorCode
	if code == "" {
		// Older GoTrue puts the string code in "code"; newer uses it for the status.
		var s string
		if json.Unmarshal(resp.Code, &s) == nil {
			code = s
		}
	}
	if code == "" && resp.Error != "" && !strings.Contains(resp.Error, " ") {
		code = resp.Error
	}

	message := firstNonEmpty(resp.Msg, resp.ErrorDescription, resp.Message, resp.Error)
	if message == "" {
		message = http.StatusText(status)
	}

	kind, ok := kindsByCode[code]
	if !ok {
		kind = kindForStatus(status)
	}

	return &domain.Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func kindForStatus(status int) domain.ErrorKind {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return domain.KindInvalidInput
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.KindUnauthenticated
	case status == http.StatusNotFound:
		return domain.KindNotFound
	case status == http.StatusConflict:
		return domain.KindAlreadyExists
	case status == http.StatusTooManyRequests:
		return domain.KindRateLimited
	case status >= 500:
		return domain.KindUnavailable
	default:
		return domain.KindRejected
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
