package forum

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/core/services"
)

func testRoster() *domain.Roster {
	return domain.NewRoster([]*domain.Member{
		{Name: "Alice Smith", Email: "alice@example.com", Title: "Engineer",
			GithubID: "alice", ForumID: "alice-f"},
	})
}

const categoriesBody = `{"category_list": {"categories": [
	{"id": 1, "name": "General", "has_children": true,
	 "subcategory_list": [{"id": 2, "name": "Announcements", "has_children": false}]},
	{"id": 3, "name": "Support", "has_children": false}
]}}`

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	mux.HandleFunc("/categories.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(categoriesBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "api-key")
}

func TestThrottleWait(t *testing.T) {
	t.Run("structured body carries the wait", func(t *testing.T) {
		wait := throttleWait(strings.NewReader(`{"extras": {"wait_seconds": 12}}`))
		assert.Equal(t, 12*time.Second, wait)
	})

	t.Run("plain text body falls back to the default", func(t *testing.T) {
		wait := throttleWait(strings.NewReader("Slow down, too many requests"))
		assert.Equal(t, defaultThrottleWait, wait)
	})
}

func TestClient_ThrottledRequestRepeats(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/user_actions.json", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"extras": {"wait_seconds": 1}}`))
			return
		}
		w.Write([]byte(`{"user_actions": []}`))
	})
	client := newTestClient(t, mux)

	var result userActionsResult
	start := time.Now()
	err := client.getJSON(context.Background(), "/user_actions.json", nil, &result)

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestCategoryIndex(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())
	idx := newCategoryIndex(client)

	name, err := idx.Name(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Announcements", name)

	name, err = idx.Name(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, "", name)
}

func TestPostFetcher_FetchPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/topics/created-by/alice-f.json", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "0" {
			w.Write([]byte(`{"topic_list": {"topics": []}}`))
			return
		}
		w.Write([]byte(`{"topic_list": {"topics": [
			{"id": 301, "created_at": "2024-04-01T08:00:00.000Z", "category_id": 3,
			 "views": 40, "posts_count": 5, "like_count": 2}
		]}}`))
	})
	fetcher := NewPostFetcher(newTestClient(t, mux), testRoster())

	t.Run("maps topics to rows", func(t *testing.T) {
		page, err := fetcher.FetchPage(context.Background(), "alice-f", domain.Cursor{})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, domain.Cursor{Page: 1}, page.Next)

		item := page.Items[0]
		assert.Equal(t, int64(301), item.ID)
		require.Len(t, item.Records, 1)
		assert.Equal(t, []string{
			"alice-f", "alice", "alice@example.com", "Alice Smith", "Engineer",
			"301", "2024-04-01", "Support", "40", "4", "2",
		}, item.Records[0].Values)
	})

	t.Run("empty topic list terminates the stream", func(t *testing.T) {
		page, err := fetcher.FetchPage(context.Background(), "alice-f", domain.Cursor{Page: 1})
		require.NoError(t, err)
		assert.True(t, page.Empty())
	})

	t.Run("rejects usernames not on the roster", func(t *testing.T) {
		_, err := fetcher.FetchPage(context.Background(), "stranger", domain.Cursor{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPostFetcher_NoTopicsIsEmptyStream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/topics/created-by/alice-f.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	fetcher := NewPostFetcher(newTestClient(t, mux), testRoster())

	page, err := fetcher.FetchPage(context.Background(), "alice-f", domain.Cursor{})
	require.NoError(t, err)
	assert.True(t, page.Empty())
}

func TestReplyFetcher_FetchPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user_actions.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "alice-f", r.URL.Query().Get("username"))
		assert.Equal(t, "5", r.URL.Query().Get("filter"))
		if r.URL.Query().Get("offset") != "0" {
			w.Write([]byte(`{"user_actions": []}`))
			return
		}
		w.Write([]byte(`{"user_actions": [
			{"topic_id": 301, "post_id": 7001, "post_number": 2,
			 "created_at": "2024-04-02T08:00:00.000Z", "category_id": 1},
			{"topic_id": 301, "post_id": 7002, "post_number": 3,
			 "created_at": "2024-04-03T08:00:00.000Z", "category_id": 1}
		]}`))
	})
	mux.HandleFunc("/posts/7001.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accepted_answer": true}`))
	})
	mux.HandleFunc("/posts/7002.json", func(w http.ResponseWriter, r *http.Request) {
		// A topic id, not a post id.
		w.WriteHeader(http.StatusNotFound)
	})
	fetcher := NewReplyFetcher(newTestClient(t, mux), testRoster())

	page, err := fetcher.FetchPage(context.Background(), "alice-f", domain.Cursor{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	// The offset steps by the batch size, not a fixed page length.
	assert.Equal(t, domain.Cursor{Offset: 2}, page.Next)

	accepted := page.Items[0]
	assert.Equal(t, int64(7001), accepted.ID)
	require.Len(t, accepted.Records, 1)
	assert.Equal(t, []string{
		"alice-f", "alice", "alice@example.com", "Alice Smith", "Engineer",
		"301", "7001", "2024-04-02", "General", "1",
	}, accepted.Records[0].Values)

	notAPost := page.Items[1]
	require.Len(t, notAPost.Records, 1)
	assert.Equal(t, "0", notAPost.Records[0].Values[9])
}

func TestStripDate(t *testing.T) {
	assert.Equal(t, "2024-04-01", stripDate("2024-04-01T08:00:00.000Z"))
	assert.Equal(t, "2024-04-01", stripDate("2024-04-01T08:00:00Z"))
	assert.Equal(t, "", stripDate(""))
	assert.Equal(t, "garbage", stripDate("garbage"))
}

// engineCheckpoints and engineSink are the minimal fixtures for driving a
// fetcher through a full harvest.
type engineCheckpoints struct{ data []byte }

func (s *engineCheckpoints) Load(context.Context) (*domain.Checkpoint, error) {
	cp := domain.NewCheckpoint()
	if s.data == nil {
		return cp, nil
	}
	if err := json.Unmarshal(s.data, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *engineCheckpoints) Save(_ context.Context, cp *domain.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	s.data = data
	return nil
}

type engineSink struct{ records []*domain.Record }

func (s *engineSink) Write(_ context.Context, rec *domain.Record) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *engineSink) Watermarks(context.Context) (map[domain.Entity]int64, error) {
	marks := make(map[domain.Entity]int64)
	for _, r := range s.records {
		if r.ID > marks[r.Entity] {
			marks[r.Entity] = r.ID
		}
	}
	return marks, nil
}

func (s *engineSink) Close() error { return nil }

func (s *engineSink) ids() []int64 {
	var ids []int64
	for _, r := range s.records {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestReplyFetcher_HarvestsWholeNewestFirstFeed(t *testing.T) {
	// user_actions serves the newest reply first. A fresh harvest must
	// emit the member's whole history, and a later run must pick up the
	// replies that landed at the front of the feed since.
	var mu sync.Mutex
	feed := [][2]int64{{30, 300}, {20, 200}, {10, 100}} // {topic, post}, newest first

	mux := http.NewServeMux()
	mux.HandleFunc("/user_actions.json", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		var b strings.Builder
		b.WriteString(`{"user_actions": [`)
		for i := offset; i < len(feed); i++ {
			if i > offset {
				b.WriteString(",")
			}
			fmt.Fprintf(&b,
				`{"topic_id": %d, "post_id": %d, "post_number": 2, "created_at": "2024-05-01T10:00:00.000Z", "category_id": 3}`,
				feed[i][0], feed[i][1])
		}
		b.WriteString("]}")
		w.Write([]byte(b.String()))
	})
	mux.HandleFunc("/posts/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accepted_answer": false}`))
	})

	fetcher := NewReplyFetcher(newTestClient(t, mux), testRoster())
	checkpoints := &engineCheckpoints{}
	sink := &engineSink{}
	cfg := services.HarvesterConfig{
		Entities:    []domain.Entity{"alice-f"},
		Fetcher:     fetcher,
		Checkpoints: checkpoints,
		Sink:        sink,
		Roster:      testRoster(),
	}

	run := func(t *testing.T) {
		t.Helper()
		h, err := services.NewHarvester(cfg)
		require.NoError(t, err)
		sum, err := h.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 0, sum.Failed())
	}

	run(t)
	assert.ElementsMatch(t, []int64{300, 200, 100}, sink.ids())

	// Two replies posted after the first run appear at offset zero.
	mu.Lock()
	feed = append([][2]int64{{50, 500}, {40, 400}}, feed...)
	mu.Unlock()

	run(t)
	assert.ElementsMatch(t, []int64{500, 400, 300, 200, 100}, sink.ids())
}

func TestReplyFetcher_RequestsExplicitBatchSize(t *testing.T) {
	mux := http.NewServeMux()
	var limit string
	mux.HandleFunc("/user_actions.json", func(w http.ResponseWriter, r *http.Request) {
		limit = r.URL.Query().Get("limit")
		w.Write([]byte(`{"user_actions": []}`))
	})
	fetcher := NewReplyFetcher(newTestClient(t, mux), testRoster())

	_, err := fetcher.FetchPage(context.Background(), "alice-f", domain.Cursor{})

	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(repliesBatchSize), limit)
	assert.Equal(t, repliesBatchSize, fetcher.Capabilities().PageSize)
	assert.True(t, fetcher.Capabilities().NewestFirst)
	assert.True(t, NewPostFetcher(newTestClient(t, http.NewServeMux()), testRoster()).Capabilities().NewestFirst)
}
