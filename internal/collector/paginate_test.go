package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscode-io/github-harvester/internal/domain"
	apperrors "github.com/campuscode-io/github-harvester/internal/errors"
	"github.com/campuscode-io/github-harvester/internal/github"
)

type testPayload struct {
	Items []string
	Page  domain.PageInfo
}

func strPtr(s string) *string { return &s }

// pagedFetcher serves a fixed page sequence keyed by cursor, recording the
// cursors it was asked for.
func pagedFetcher(pages map[string]*github.Response[testPayload]) (PageFetcher[testPayload], *[]string) {
	var seen []string
	fetch := func(ctx context.Context, cursor *string) (*github.Response[testPayload], error) {
		key := ""
		if cursor != nil {
			key = *cursor
		}
		seen = append(seen, key)
		resp, ok := pages[key]
		if !ok {
			return nil, errors.New("unexpected cursor: " + key)
		}
		return resp, nil
	}
	return fetch, &seen
}

func countItems(ctx context.Context, data *testPayload, cursor *string) (int, error) {
	return len(data.Items), nil
}

func pageInfoOf(data *testPayload) domain.PageInfo { return data.Page }

func TestPaginateSinglePage(t *testing.T) {
	fetch, seen := pagedFetcher(map[string]*github.Response[testPayload]{
		"": {Data: &testPayload{Items: []string{"a", "b"}}},
	})

	total, err := Paginate(context.Background(), "commit", "octo/repo", fetch, pageInfoOf, countItems)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{""}, *seen)
}

func TestPaginateEmptyPage(t *testing.T) {
	fetch, _ := pagedFetcher(map[string]*github.Response[testPayload]{
		"": {Data: &testPayload{}},
	})

	total, err := Paginate(context.Background(), "commit", "octo/repo", fetch, pageInfoOf, countItems)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestPaginateWalksAllPages(t *testing.T) {
	fetch, seen := pagedFetcher(map[string]*github.Response[testPayload]{
		"": {Data: &testPayload{
			Items: []string{"a", "b"},
			Page:  domain.PageInfo{HasNextPage: true, EndCursor: strPtr("c1")},
		}},
		"c1": {Data: &testPayload{
			Items: []string{"c", "d"},
			Page:  domain.PageInfo{HasNextPage: true, EndCursor: strPtr("c2")},
		}},
		"c2": {Data: &testPayload{
			Items: []string{"e"},
		}},
	})

	total, err := Paginate(context.Background(), "commit", "octo/repo", fetch, pageInfoOf, countItems)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, []string{"", "c1", "c2"}, *seen)
}

func TestPaginateStopsOnMissingCursor(t *testing.T) {
	// hasNextPage with no cursor would loop forever re-fetching the first
	// page; the engine must treat it as the end of the stream.
	fetch, seen := pagedFetcher(map[string]*github.Response[testPayload]{
		"": {Data: &testPayload{
			Items: []string{"a"},
			Page:  domain.PageInfo{HasNextPage: true, EndCursor: nil},
		}},
	})

	total, err := Paginate(context.Background(), "commit", "octo/repo", fetch, pageInfoOf, countItems)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{""}, *seen)
}

func TestPaginatePartialPageHaltsAfterProcessing(t *testing.T) {
	fetch, seen := pagedFetcher(map[string]*github.Response[testPayload]{
		"": {Data: &testPayload{
			Items: []string{"a", "b"},
			Page:  domain.PageInfo{HasNextPage: true, EndCursor: strPtr("c1")},
		}},
		"c1": {
			Data: &testPayload{
				Items: []string{"c"},
				Page:  domain.PageInfo{HasNextPage: true, EndCursor: strPtr("c2")},
			},
			Errors: []github.GraphQLError{{Message: "resolver hiccup"}},
		},
	})

	total, err := Paginate(context.Background(), "commit", "octo/repo", fetch, pageInfoOf, countItems)
	require.NoError(t, err)
	// The partial page's items are kept, but its cursor is never followed.
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"", "c1"}, *seen)
}

func TestPaginateTotalFailureKeepsEarlierPages(t *testing.T) {
	fetch, _ := pagedFetcher(map[string]*github.Response[testPayload]{
		"": {Data: &testPayload{
			Items: []string{"a", "b"},
			Page:  domain.PageInfo{HasNextPage: true, EndCursor: strPtr("c1")},
		}},
		"c1": {Errors: []github.GraphQLError{{Message: "upstream timeout"}}},
	})

	total, err := Paginate(context.Background(), "commit", "octo/repo", fetch, pageInfoOf, countItems)
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, 2, total)
}

func TestPaginateNonRetryableFailure(t *testing.T) {
	fetch, _ := pagedFetcher(map[string]*github.Response[testPayload]{
		"": {Errors: []github.GraphQLError{{Type: "NOT_FOUND", Message: "could not resolve to a Repository"}}},
	})

	total, err := Paginate(context.Background(), "repository", "octo/gone", fetch, pageInfoOf, countItems)
	require.Error(t, err)
	assert.False(t, apperrors.IsRetryable(err))
	assert.Equal(t, 0, total)
}

func TestPaginateFetchErrorPropagates(t *testing.T) {
	fetchErr := errors.New("connection reset")
	fetch := func(ctx context.Context, cursor *string) (*github.Response[testPayload], error) {
		return nil, fetchErr
	}

	total, err := Paginate(context.Background(), "commit", "octo/repo", fetch, pageInfoOf, countItems)
	require.ErrorIs(t, err, fetchErr)
	assert.Equal(t, 0, total)
}

func TestPaginateProcessErrorStops(t *testing.T) {
	fetch, _ := pagedFetcher(map[string]*github.Response[testPayload]{
		"": {Data: &testPayload{Items: []string{"a"}}},
	})
	processErr := errors.New("disk full")
	process := func(ctx context.Context, data *testPayload, cursor *string) (int, error) {
		return 0, processErr
	}

	_, err := Paginate(context.Background(), "commit", "octo/repo", fetch, pageInfoOf, process)
	require.ErrorIs(t, err, processErr)
}
