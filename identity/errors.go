package identity

import (
	"fmt"

	"github.com/pkg/errors"
)

// Provider error codes with a defined meaning for callers. Any other code is
// treated as a generic provider failure.
const (
	CodeUserCancelled = "user_cancelled"
	CodePopupBlocked  = "popup_window_error"
)

// Error is a failure reported by the identity provider, carrying the
// provider's own error code for classification.
type Error struct {
	Code    string
	Message string
}

func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return fmt.Sprintf("identity provider error %q: %s", e.Code, e.Message)
}

// CodeOf returns the provider error code carried by err, or an empty string
// if err did not originate from the provider.
func CodeOf(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ""
}
