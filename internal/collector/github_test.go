package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscode-io/github-harvester/internal/domain"
	"github.com/campuscode-io/github-harvester/internal/storage/memory"
)

func commitNode(sha, login string) map[string]any {
	return map[string]any{
		"oid":          sha,
		"message":      "update " + sha,
		"additions":    3,
		"deletions":    1,
		"authoredDate": "2026-03-01T12:00:00Z",
		"author": map[string]any{
			"name":  "Octo Cat",
			"email": "octo@example.com",
			"user":  map[string]any{"login": login},
		},
	}
}

func historyPage(nodes []map[string]any, next string) map[string]any {
	pageInfo := map[string]any{"hasNextPage": next != "", "endCursor": nil}
	if next != "" {
		pageInfo["endCursor"] = next
	}
	return map[string]any{"data": map[string]any{"repository": map[string]any{
		"defaultBranchRef": map[string]any{"target": map[string]any{
			"history": map[string]any{"pageInfo": pageInfo, "nodes": nodes},
		}},
	}}}
}

// commitHistoryServer serves a three-page history for hello-world and an
// empty default branch for empty-nest, keyed on the cursor variable.
func commitHistoryServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		name, _ := req.Variables["name"].(string)
		cursor, _ := req.Variables["cursor"].(string)

		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		if name == "empty-nest" {
			assert.NoError(t, enc.Encode(map[string]any{"data": map[string]any{
				"repository": map[string]any{"defaultBranchRef": nil},
			}}))
			return
		}
		switch cursor {
		case "":
			assert.NoError(t, enc.Encode(historyPage([]map[string]any{
				commitNode("sha-1", "octocat"), commitNode("sha-2", "octocat"),
			}, "page-1")))
		case "page-1":
			assert.NoError(t, enc.Encode(historyPage([]map[string]any{
				commitNode("sha-3", "octocat"), commitNode("sha-4", "octocat"),
			}, "page-2")))
		case "page-2":
			assert.NoError(t, enc.Encode(historyPage([]map[string]any{
				commitNode("sha-5", "octocat"),
			}, "")))
		default:
			t.Errorf("unexpected cursor %q", cursor)
		}
	}))
}

func TestCollectCommitsWalksPagesAndSkipsKnownShas(t *testing.T) {
	ctx := context.Background()
	srv := commitHistoryServer(t)
	defer srv.Close()

	store := memory.NewMemoryStorage()
	coll := NewGitHubCollector(ctx, srv.URL, "test-token", nil, store)
	user := domain.UserRef{UserID: 7, GithubLogin: "octocat"}

	saved, err := coll.CollectCommits(ctx, user, "octocat", "hello-world")
	require.NoError(t, err)
	assert.Equal(t, 5, saved)

	saved, err = coll.CollectCommits(ctx, user, "octocat", "empty-nest")
	require.NoError(t, err)
	assert.Equal(t, 0, saved)

	commits, err := store.CommitsByLogin(ctx, "octocat")
	require.NoError(t, err)
	assert.Len(t, commits, 5)

	// A second harvest walks the same pages but every sha is already
	// stored, so nothing is written.
	saved, err = coll.CollectCommits(ctx, user, "octocat", "hello-world")
	require.NoError(t, err)
	assert.Equal(t, 0, saved)

	saved, err = coll.CollectCommits(ctx, user, "octocat", "empty-nest")
	require.NoError(t, err)
	assert.Equal(t, 0, saved)

	commits, err = store.CommitsByLogin(ctx, "octocat")
	require.NoError(t, err)
	assert.Len(t, commits, 5)
}
