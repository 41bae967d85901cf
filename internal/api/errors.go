package api

import (
	"errors"
	"fmt"
)

var ErrNoCredential = errors.New("no credential held")

// Error is returned when the service answers with a non-2xx status or with ok=false.
type Error struct {
	Method string
	Status int
	Code   string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: status %d", e.Method, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Method, e.Status, e.Code)
}

// IsAuthFailure reports whether err means the credential was rejected.
func IsAuthFailure(err error) bool {
	if errors.Is(err, ErrNoCredential) {
		return true
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case "not_authed", "invalid_auth", "account_inactive", "token_revoked":
		return true
	}
	return apiErr.Status == 401
}
