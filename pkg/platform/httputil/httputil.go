package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	dErrors "authcore/pkg/domain-errors"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses.
// Denials that carry a retry hint also set Retry-After in whole seconds.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		if d, ok := dErrors.RetryAfter(err); ok {
			secs := int((d + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		response := map[string]string{
			"error": string(domainErr.Code),
		}
		if domainErr.Message != "" {
			response["error_description"] = domainErr.Message
		}
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), response)
		return
	}

	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": string(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound, dErrors.CodeSessionNotFound, dErrors.CodeBackupCodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeValidation, dErrors.CodeMissingContact:
		return http.StatusBadRequest
	case dErrors.CodeAlreadyEnabled, dErrors.CodeTwoFactorNotEnabled:
		return http.StatusConflict
	case dErrors.CodeUnauthorized, dErrors.CodeSessionExpired, dErrors.CodeInvalidTwoFactorCode,
		dErrors.CodeTwoFactorRequired:
		return http.StatusUnauthorized
	case dErrors.CodeRateLimitExceeded, dErrors.CodeAccountLocked:
		return http.StatusTooManyRequests
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
