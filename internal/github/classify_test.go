package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/campuscode-io/github-harvester/internal/errors"
)

type classifyPayload struct {
	Value string
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		resp *Response[classifyPayload]
		want ErrorClass
	}{
		{
			name: "nil response is a transient total failure",
			resp: nil,
			want: ClassRetryable,
		},
		{
			name: "no errors",
			resp: &Response[classifyPayload]{Data: &classifyPayload{Value: "ok"}},
			want: ClassNone,
		},
		{
			name: "errors alongside data",
			resp: &Response[classifyPayload]{
				Data:   &classifyPayload{Value: "partial"},
				Errors: []GraphQLError{{Message: "resolver blew up"}},
			},
			want: ClassPartial,
		},
		{
			name: "not found type",
			resp: &Response[classifyPayload]{
				Errors: []GraphQLError{{Type: "NOT_FOUND", Message: "could not resolve to a Repository"}},
			},
			want: ClassNonRetryable,
		},
		{
			name: "forbidden type",
			resp: &Response[classifyPayload]{
				Errors: []GraphQLError{{Type: "FORBIDDEN", Message: "resource not accessible"}},
			},
			want: ClassNonRetryable,
		},
		{
			name: "resolver crash message",
			resp: &Response[classifyPayload]{
				Errors: []GraphQLError{{Message: "Something went wrong while executing your query"}},
			},
			want: ClassNonRetryable,
		},
		{
			name: "schema mismatch message",
			resp: &Response[classifyPayload]{
				Errors: []GraphQLError{{Message: "Field 'foo' doesn't exist on type 'Repository'"}},
			},
			want: ClassNonRetryable,
		},
		{
			name: "rate limit message",
			resp: &Response[classifyPayload]{
				Errors: []GraphQLError{{Message: "API rate limit exceeded"}},
			},
			want: ClassRetryable,
		},
		{
			name: "rate limited type",
			resp: &Response[classifyPayload]{
				Errors: []GraphQLError{{Type: "RATE_LIMITED", Message: "wait a bit"}},
			},
			want: ClassRetryable,
		},
		{
			name: "timeout message",
			resp: &Response[classifyPayload]{
				Errors: []GraphQLError{{Message: "upstream timeout"}},
			},
			want: ClassRetryable,
		},
		{
			name: "unrecognized error defaults to retryable",
			resp: &Response[classifyPayload]{
				Errors: []GraphQLError{{Message: "weird new failure mode"}},
			},
			want: ClassRetryable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.resp))
		})
	}
}

func TestClassErrorNonRetryable(t *testing.T) {
	resp := &Response[classifyPayload]{
		Errors: []GraphQLError{{Type: "NOT_FOUND", Message: "could not resolve to a Repository"}},
	}
	err := ClassError(resp, "repository", "octo/gone")
	require.Error(t, err)
	assert.False(t, apperrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "octo/gone")
}

func TestClassErrorRateLimited(t *testing.T) {
	resp := &Response[classifyPayload]{
		Errors: []GraphQLError{{Type: "RATE_LIMITED", Message: "API rate limit exceeded"}},
	}
	err := ClassError(resp, "user", "octocat")
	require.Error(t, err)
	assert.True(t, apperrors.IsRateLimited(err))
	// Rate limited is not a job defect: still retryable by classification.
	assert.True(t, apperrors.IsRetryable(err))
}

func TestClassErrorCleanResponses(t *testing.T) {
	assert.NoError(t, ClassError(&Response[classifyPayload]{Data: &classifyPayload{}}, "user", "octocat"))
	assert.NoError(t, ClassError(&Response[classifyPayload]{
		Data:   &classifyPayload{},
		Errors: []GraphQLError{{Message: "partial"}},
	}, "user", "octocat"))
}
