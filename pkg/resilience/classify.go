// SPDX-License-Identifier: Apache-2.0
// Package resilience wraps model backend calls with error classification,
// backoff retries, per-model cooldown and fallback across models.
package resilience

import (
	"context"
	stderrors "errors"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/jllopis/steward/pkg/errors"
	"github.com/jllopis/steward/pkg/llm"
)

// ErrorClass is the retry-relevant category of a model call failure.
type ErrorClass int

const (
	// ClassRecoverable covers timeouts, dropped connections and 5xx answers.
	ClassRecoverable ErrorClass = iota
	// ClassRateLimited is a 429 answer.
	ClassRateLimited
	// ClassAuth covers 401/403 and permission failures.
	ClassAuth
	// ClassPermanent covers other 4xx and malformed input.
	ClassPermanent
)

// String returns the class name used in logs and metrics.
func (c ErrorClass) String() string {
	switch c {
	case ClassRecoverable:
		return "recoverable"
	case ClassRateLimited:
		return "rate_limited"
	case ClassAuth:
		return "auth"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Retryable reports whether errors of this class are worth another attempt.
func (c ErrorClass) Retryable() bool {
	return c == ClassRecoverable || c == ClassRateLimited
}

// Classify maps err onto an ErrorClass. Unknown failures are treated as
// recoverable.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassRecoverable
	}

	var se *llm.StatusError
	if stderrors.As(err, &se) {
		return classifyStatus(se.StatusCode)
	}

	switch errors.CodeOf(err) {
	case errors.CodeRateLimit:
		return ClassRateLimited
	case errors.CodeUnauthorized:
		return ClassAuth
	case errors.CodeInvalidInput:
		return ClassPermanent
	case errors.CodeTimeout:
		return ClassRecoverable
	case errors.CodeContextLost:
		return ClassPermanent
	}

	if stderrors.Is(err, context.Canceled) {
		return ClassPermanent
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return ClassRecoverable
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return ClassRecoverable
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return ClassRecoverable
	}
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED, syscall.ETIMEDOUT} {
		if stderrors.Is(err, errno) {
			return ClassRecoverable
		}
	}

	if stderrors.Is(err, os.ErrPermission) {
		return ClassAuth
	}
	if stderrors.Is(err, os.ErrNotExist) {
		return ClassPermanent
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return ClassRateLimited
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "unauthorized"):
		return ClassAuth
	}
	return ClassRecoverable
}

func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ClassRateLimited
	case status == 401, status == 403:
		return ClassAuth
	case status == 408:
		return ClassRecoverable
	case status >= 500:
		return ClassRecoverable
	case status >= 400:
		return ClassPermanent
	default:
		return ClassRecoverable
	}
}
