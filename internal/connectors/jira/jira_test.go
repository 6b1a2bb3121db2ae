package jira

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
)

func testRoster() *domain.Roster {
	return domain.NewRoster([]*domain.Member{
		{Name: "Alice Smith", Email: "alice@example.com", Title: "Engineer", GithubID: "alice"},
	})
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "alice@example.com", "api-token")
}

func TestClient_RetryAfter(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/search", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"startAt": 0, "maxResults": 50, "total": 0, "issues": []}`))
	})
	client := newTestClient(t, mux)

	start := time.Now()
	result, err := client.search(context.Background(), "assignee='x'", 0)

	require.NoError(t, err)
	assert.Empty(t, result.Issues)
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestClient_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	client := newTestClient(t, mux)

	_, err := client.comments(context.Background(), "ABC-1", 0)
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
}

func TestClient_MalformedBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})
	client := newTestClient(t, mux)

	_, err := client.search(context.Background(), "assignee='x'", 0)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestClient_ListProjects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/project/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("startAt") == "0" {
			w.Write([]byte(`{"startAt": 0, "maxResults": 2, "total": 3,
				"values": [{"name": "Alpha"}, {"name": "Beta"}]}`))
			return
		}
		w.Write([]byte(`{"startAt": 2, "maxResults": 2, "total": 3,
			"values": [{"name": "Gamma"}]}`))
	})
	client := newTestClient(t, mux)

	projects, err := client.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, projects)
}

func assignmentIssue(id int, key string) string {
	return fmt.Sprintf(`{
		"id": "%d", "key": "%s",
		"fields": {
			"summary": "  Fix the widget  ",
			"created": "2024-01-02T10:24:43.727-0700",
			"resolutiondate": "2024-01-05T10:24:43.727-0700",
			"status": {"name": "Done"},
			"project": {"name": "Alpha"},
			"assignee": {"emailAddress": "alice@example.com", "displayName": "Alice Smith"},
			"reporter": {"displayName": "Bob Jones"}
		}
	}`, id, key)
}

func TestAssignmentFetcher_FetchPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("startAt") == "0" {
			fmt.Fprintf(w, `{"startAt": 0, "maxResults": 1, "total": 2, "issues": [%s]}`,
				assignmentIssue(1001, "AL-1"))
			return
		}
		fmt.Fprintf(w, `{"startAt": 1, "maxResults": 1, "total": 2, "issues": [%s]}`,
			assignmentIssue(1002, "AL-2"))
	})
	fetcher := NewAssignmentFetcher(newTestClient(t, mux), testRoster())

	t.Run("maps issues to rows with the absolute offset cursor", func(t *testing.T) {
		page, err := fetcher.FetchPage(context.Background(), "alice@example.com", domain.Cursor{})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, domain.Cursor{Offset: 1}, page.Next)

		item := page.Items[0]
		assert.Equal(t, int64(1001), item.ID)
		assert.Equal(t, domain.ItemTerminal, item.State)
		require.Len(t, item.Records, 1)

		rec := item.Records[0]
		assert.Equal(t, int64(1001), rec.ID)
		assert.Equal(t, []string{
			"alice@example.com", "Alice Smith", "1001", "Bob Jones", "Alpha", "AL-1",
			"2024-01-02", "2024-01-05", "Done", "Fix the widget",
			"alice@example.com", "Engineer",
		}, rec.Values)
	})

	t.Run("resumes from the offset", func(t *testing.T) {
		page, err := fetcher.FetchPage(context.Background(), "alice@example.com", domain.Cursor{Offset: 1})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, int64(1002), page.Items[0].ID)
	})

	t.Run("rejects entities not on the roster", func(t *testing.T) {
		_, err := fetcher.FetchPage(context.Background(), "stranger@example.com", domain.Cursor{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestAssignmentFetcher_NameFallback(t *testing.T) {
	var jqls []string
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/search", func(w http.ResponseWriter, r *http.Request) {
		jql := r.URL.Query().Get("jql")
		jqls = append(jqls, jql)
		if jql == assignmentJQL("alice@example.com") {
			w.Write([]byte(`{"warningMessages": ["The value 'alice@example.com' does not exist"]}`))
			return
		}
		fmt.Fprintf(w, `{"startAt": 0, "maxResults": 1, "total": 1, "issues": [%s]}`,
			assignmentIssue(1001, "AL-1"))
	})
	fetcher := NewAssignmentFetcher(newTestClient(t, mux), testRoster())

	page, err := fetcher.FetchPage(context.Background(), "alice@example.com", domain.Cursor{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Len(t, jqls, 2)
	assert.Equal(t, assignmentJQL("alice smith"), jqls[1])

	t.Run("fallback sticks for later pages", func(t *testing.T) {
		_, err := fetcher.FetchPage(context.Background(), "alice@example.com", domain.Cursor{Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, assignmentJQL("alice smith"), jqls[len(jqls)-1])
	})
}

func TestAssignmentFetcher_NoMatchEitherWay(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"warningMessages": ["no such user"]}`))
	})
	fetcher := NewAssignmentFetcher(newTestClient(t, mux), testRoster())

	_, err := fetcher.FetchPage(context.Background(), "alice@example.com", domain.Cursor{})
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
}

func TestCommentFetcher_FetchPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("startAt") != "0" {
			w.Write([]byte(`{"startAt": 1, "maxResults": 50, "total": 1, "issues": []}`))
			return
		}
		fmt.Fprintf(w, `{"startAt": 0, "maxResults": 50, "total": 1, "issues": [%s]}`,
			assignmentIssue(2001, "AL-7"))
	})
	mux.HandleFunc("/rest/api/3/issue/AL-7/comment", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("startAt") == "0" {
			w.Write([]byte(`{"startAt": 0, "maxResults": 1, "total": 2, "comments": [
				{"id": "9001", "created": "2024-02-01T00:00:00.000-0700",
				 "author": {"displayName": "Alice Smith"}}
			]}`))
			return
		}
		w.Write([]byte(`{"startAt": 1, "maxResults": 1, "total": 2, "comments": [
			{"id": "9002", "created": "2024-02-02T00:00:00.000-0700",
			 "author": {"displayName": "Bob Jones"}}
		]}`))
	})
	fetcher := NewCommentFetcher(newTestClient(t, mux), testRoster())

	page, err := fetcher.FetchPage(context.Background(), "Alpha", domain.Cursor{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, domain.Cursor{Offset: 1}, page.Next)

	item := page.Items[0]
	assert.Equal(t, int64(2001), item.ID)
	assert.Empty(t, item.Author)

	// Both comment pages were walked; only the roster comment made a row.
	require.Len(t, item.Records, 1)
	rec := item.Records[0]
	assert.Equal(t, int64(2001), rec.ID)
	assert.Equal(t, []string{
		"Alice Smith", "alice@example.com", "Engineer",
		"Alpha", "AL-7", "2001", "9001", "2024-02-01",
	}, rec.Values)
}

func TestStripDate(t *testing.T) {
	assert.Equal(t, "2019-07-12", stripDate("2019-07-12T10:24:43.727-0700"))
	assert.Equal(t, "", stripDate(""))
	assert.Equal(t, "garbage", stripDate("garbage"))
}

func TestClient_PaginatedRequestsSetExplicitPageSize(t *testing.T) {
	// Site settings can shrink the server default, and the offset stride
	// for skipping an unreadable page has to match what was requested.
	var got []string
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/search", func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.Query().Get("maxResults"))
		w.Write([]byte(`{"startAt": 0, "maxResults": 50, "total": 0, "issues": []}`))
	})
	mux.HandleFunc("/rest/api/3/issue/ENG-1/comment", func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.Query().Get("maxResults"))
		w.Write([]byte(`{"startAt": 0, "maxResults": 50, "total": 0, "comments": []}`))
	})
	mux.HandleFunc("/rest/api/3/project/search", func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.Query().Get("maxResults"))
		w.Write([]byte(`{"isLast": true, "values": []}`))
	})
	client := newTestClient(t, mux)

	_, err := client.search(context.Background(), "project=ENG", 0)
	require.NoError(t, err)
	_, err = client.comments(context.Background(), "ENG-1", 0)
	require.NoError(t, err)
	_, err = client.ListProjects(context.Background())
	require.NoError(t, err)

	want := strconv.Itoa(searchPageSize)
	assert.Equal(t, []string{want, want, want}, got)

	fetcher := NewAssignmentFetcher(client, testRoster())
	assert.Equal(t, searchPageSize, fetcher.Capabilities().PageSize)
}
