// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it extracts and logs the message, code, and context.
// For standard errors, it logs the error string.
// Invariant violations carry defect=true so they can be alerted on apart
// from ordinary failures.
func LogError(logger *slog.Logger, msg string, err error) {
	attrs := []any{"error", err.Error()}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
	}
	if KindOf(err) == KindInvariantViolation {
		attrs = append(attrs, "defect", true)
	}
	logger.Error(msg, attrs...)
}
