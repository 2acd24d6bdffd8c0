package collector

import (
	"context"
	"log/slog"

	"github.com/campuscode-io/github-harvester/internal/domain"
	"github.com/campuscode-io/github-harvester/internal/github"
)

// PageFetcher fetches one page for the given cursor (nil for the first page).
type PageFetcher[T any] func(ctx context.Context, cursor *string) (*github.Response[T], error)

// PageInfoFunc extracts the page cursor contract from a payload.
type PageInfoFunc[T any] func(data *T) domain.PageInfo

// PageProcessor persists one page's items and returns the number saved.
// The caller supplies the per-entity dedupe logic.
type PageProcessor[T any] func(ctx context.Context, data *T, cursor *string) (int, error)

// Paginate drives a cursor loop over one paginated entity stream. The same
// engine runs commit, PR and issue mining by parameterizing fetch, extract
// and process.
//
// Pages are fetched strictly in cursor order. On any failure the items saved
// so far are kept, never rolled back; the error reports whether the run may
// be retried. A PARTIAL page (errors alongside data) is processed and then
// terminates the loop. A page claiming hasNextPage with no cursor terminates
// instead of looping forever.
func Paginate[T any](
	ctx context.Context,
	entityType, entityID string,
	fetch PageFetcher[T],
	pageInfo PageInfoFunc[T],
	process PageProcessor[T],
) (int, error) {
	total := 0
	var cursor *string

	for {
		resp, err := fetch(ctx, cursor)
		if err != nil {
			slog.Warn("page fetch failed",
				"entity_type", entityType, "entity_id", entityID, "error", err)
			return total, err
		}

		class := github.Classify(resp)
		if class == github.ClassRetryable || class == github.ClassNonRetryable {
			err := github.ClassError(resp, entityType, entityID)
			slog.Warn("pagination stopped by API errors",
				"entity_type", entityType, "entity_id", entityID, "class", class.String())
			return total, err
		}

		if resp.Data == nil {
			return total, nil
		}

		saved, err := process(ctx, resp.Data, cursor)
		if err != nil {
			return total, err
		}
		total += saved

		if class == github.ClassPartial {
			slog.Warn("partial page, halting pagination",
				"entity_type", entityType, "entity_id", entityID)
			return total, nil
		}

		next := pageInfo(resp.Data).NextCursor()
		if next == nil {
			return total, nil
		}
		cursor = next
	}
}
