package telegram

import (
	"errors"
	"fmt"
	"strings"
)

// APIError is a Bot API call that came back ok=false. Description carries the
// platform's machine-readable failure text; callers classify on it.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
	}
	return fmt.Sprintf("telegram %s: %s", e.Method, e.Description)
}

// IsThreadNotFound reports whether err says the forum topic no longer exists.
// The Bot API is not consistent about the wording, so match both terms.
func IsThreadNotFound(err error) bool {
	desc, ok := description(err)
	if !ok {
		return false
	}
	return strings.Contains(desc, "thread") || strings.Contains(desc, "topic")
}

// IsChatNotFound reports whether err says the destination chat itself is
// invalid. This is a configuration problem, not a transient failure.
func IsChatNotFound(err error) bool {
	desc, ok := description(err)
	if !ok {
		return false
	}
	return strings.Contains(desc, "chat not found")
}

func description(err error) (string, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return "", false
	}
	return strings.ToLower(apiErr.Description), true
}
