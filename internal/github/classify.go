package github

import (
	"strings"

	apperrors "github.com/campuscode-io/github-harvester/internal/errors"
)

// ErrorClass is the classification of a GraphQL response.
type ErrorClass int

const (
	// ClassNone means the response is clean and pagination may continue.
	ClassNone ErrorClass = iota
	// ClassPartial means errors are present but data is too: process the
	// available data, then halt pagination at this page.
	ClassPartial
	// ClassRetryable means total failure with a transient signature.
	ClassRetryable
	// ClassNonRetryable means total failure that retrying cannot fix.
	ClassNonRetryable
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "NONE"
	case ClassPartial:
		return "PARTIAL"
	case ClassRetryable:
		return "RETRYABLE"
	case ClassNonRetryable:
		return "NON_RETRYABLE"
	}
	return "UNKNOWN"
}

// nonRetryableTypes are error type tags that identify permanently invalid
// requests.
var nonRetryableTypes = map[string]bool{
	"NOT_FOUND": true,
	"FORBIDDEN": true,
}

// retryableSignatures are message fragments of transient failures.
var retryableSignatures = []string{
	"rate limit",
	"timeout",
	"timedout",
	"502",
	"503",
}

// nonRetryableSignatures are message fragments of permanently invalid
// queries. "Something went wrong" is GitHub's resolver-crash message; it
// reproduces deterministically for the same query.
var nonRetryableSignatures = []string{
	"something went wrong",
	"parse error",
	"doesn't exist on type",
	"could not resolve",
}

// Classify turns a raw GraphQL response into an error class. A nil response
// is a total failure. Errors with usable data classify PARTIAL. Ambiguous
// total failures default to RETRYABLE so the bounded retry budget decides.
func Classify[T any](resp *Response[T]) ErrorClass {
	if resp == nil {
		return ClassRetryable
	}
	if !resp.HasErrors() {
		return ClassNone
	}
	if resp.Data != nil {
		return ClassPartial
	}
	return classifyTotalFailure(resp.Errors)
}

func classifyTotalFailure(errs []GraphQLError) ErrorClass {
	for _, e := range errs {
		if nonRetryableTypes[strings.ToUpper(e.Type)] {
			return ClassNonRetryable
		}
		if e.Type == "RATE_LIMITED" {
			return ClassRetryable
		}
		msg := strings.ToLower(e.Message)
		for _, sig := range nonRetryableSignatures {
			if strings.Contains(msg, sig) {
				return ClassNonRetryable
			}
		}
		for _, sig := range retryableSignatures {
			if strings.Contains(msg, sig) {
				return ClassRetryable
			}
		}
	}
	return ClassRetryable
}

// ClassError converts a total-failure class into the matching application
// error so the worker can choose between retry and dead-letter. RATE_LIMITED
// is surfaced separately so the job can be rescheduled after the reset
// instead of consuming its retry budget.
func ClassError[T any](resp *Response[T], entityType, entityID string) error {
	if resp == nil {
		return apperrors.NewRetryableError("no response for "+entityType+" "+entityID, nil)
	}
	class := Classify(resp)
	switch class {
	case ClassNone, ClassPartial:
		return nil
	case ClassNonRetryable:
		return apperrors.NewNonRetryableError(
			"GraphQL query failed for "+entityType+" "+entityID+": "+firstMessage(resp.Errors), nil)
	default:
		if isRateLimitFailure(resp.Errors) {
			return apperrors.NewRateLimitedError(
				"GraphQL rate limited for " + entityType + " " + entityID)
		}
		return apperrors.NewRetryableError(
			"GraphQL query failed for "+entityType+" "+entityID+": "+firstMessage(resp.Errors), nil)
	}
}

func isRateLimitFailure(errs []GraphQLError) bool {
	for _, e := range errs {
		if e.Type == "RATE_LIMITED" || strings.Contains(strings.ToLower(e.Message), "rate limit") {
			return true
		}
	}
	return false
}

func firstMessage(errs []GraphQLError) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0].Message
}
