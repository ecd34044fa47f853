package main

import (
	"context"
	"errors"
	"strings"
)

// FormatUserError strips low-level wrapping noise from an error before it
// is shown to the operator.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "operation timed out"
	}
	msg := err.Error()
	// Trim the "failed to X: " prefixes accumulated through wrapping; the
	// innermost message is what the operator acts on.
	if i := strings.LastIndex(msg, ": "); i >= 0 && i+2 < len(msg) {
		return msg[i+2:] + " (" + msg[:i] + ")"
	}
	return msg
}
