package protocol

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Identity/entity/documentation absent. Clients render an empty state,
	// not an error banner.
	ErrNotFound = "E_NOT_FOUND"

	// No session, or session identity differs from the resource owner.
	ErrUnauthorized = "E_UNAUTHORIZED"

	// Malformed payload, oversized or wrong-type upload. No partial write.
	ErrValidation = "E_VALIDATION"

	// Identity or metadata provider unreachable/rate-limited. Prior state is
	// left untouched; retry is the caller's responsibility.
	ErrUpstream = "E_UPSTREAM"

	// Persistence or object-store binding absent in this deployment.
	ErrStorage = "E_STORAGE"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrNotFound:        {},
	ErrUnauthorized:    {},
	ErrValidation:      {},
	ErrUpstream:        {},
	ErrStorage:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodedError carries an error code across layer boundaries so transports can
// map it to a wire code or HTTP status.
type CodedError struct {
	Code    string
	Message string
}

func (e *CodedError) Error() string { return e.Code + ": " + e.Message }

func Errorf(code, format string, args ...any) error {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from an error chain, "" when uncoded.
func CodeOf(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// HTTPStatus maps an error code to the status the HTTP surface responds with.
func HTTPStatus(code string) int {
	switch code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUnauthorized:
		// Wrong-owner default; the HTTP surface answers 401 instead when no
		// session is present at all.
		return http.StatusForbidden
	case ErrValidation, ErrProtoBadRequest:
		return http.StatusBadRequest
	case ErrUpstream:
		return http.StatusBadGateway
	case ErrStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
