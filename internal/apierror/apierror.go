package apierror

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"

	// Webhook boundary failures. Signature and timestamp rejections happen
	// before any resource is touched and are never audited.
	ErrSignatureInvalid ErrorCode = "SIGNATURE_INVALID"
	ErrTimestampExpired ErrorCode = "TIMESTAMP_EXPIRED"
	ErrMalformedEvent   ErrorCode = "MALFORMED_EVENT"

	// Lifecycle failures surfaced to API callers. Raw gateway error text is
	// never forwarded; callers only ever see these codes.
	ErrRefundExceedsAvailable ErrorCode = "REFUND_EXCEEDS_AVAILABLE"
	ErrEvidenceWindowClosed   ErrorCode = "EVIDENCE_WINDOW_CLOSED"
	ErrRetryExhausted         ErrorCode = "RETRY_EXHAUSTED"
	ErrGatewayTimeout         ErrorCode = "GATEWAY_TIMEOUT"
	ErrGatewayRejected        ErrorCode = "GATEWAY_REJECTED"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

func MapErrorToHTTPStatus(err error) int {
	if apiErr, ok := err.(APIError); ok {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict, ErrRefundExceedsAvailable, ErrRetryExhausted:
			return http.StatusConflict
		case ErrInvalidInput, ErrBadRequest, ErrSignatureInvalid, ErrTimestampExpired, ErrMalformedEvent:
			return http.StatusBadRequest
		case ErrEvidenceWindowClosed:
			return http.StatusGone
		case ErrGatewayTimeout:
			return http.StatusGatewayTimeout
		case ErrGatewayRejected:
			return http.StatusBadGateway
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
