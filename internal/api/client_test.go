package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	auditPath := filepath.Join(t.TempDir(), "requests.jsonl")
	audit, err := OpenRequestLog(auditPath)
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	client := NewClient(server.URL, NewLimiter(time.Millisecond), audit)
	return client, auditPath
}

func readAuditEntries(t *testing.T, path string) []RequestEntry {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var entries []RequestEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry RequestEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestListPosts(t *testing.T) {
	var gotQuery url.Values
	client, auditPath := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/post/list", r.URL.Path)
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"posts":[
			{"post":{"id":1,"name":"first","published":"2024-03-01T00:00:00Z"}},
			{"post":{"id":2,"name":"second","published":"2024-03-02T00:00:00Z"}}
		]}`))
	}))

	posts, err := client.ListPosts(context.Background(), "technology@lemmy.world", 3, 50)
	require.NoError(t, err)

	require.Equal(t, "technology@lemmy.world", gotQuery.Get("community"))
	require.Equal(t, "3", gotQuery.Get("page"))
	require.Equal(t, "50", gotQuery.Get("limit"))
	require.Equal(t, "New", gotQuery.Get("sort"))

	require.Len(t, posts, 2)
	require.Equal(t, int64(1), posts[0].Post.ID)
	require.Equal(t, int64(2), posts[1].Post.ID)

	entries := readAuditEntries(t, auditPath)
	require.Len(t, entries, 1)
	require.Equal(t, http.StatusOK, entries[0].Status)
	require.Empty(t, entries[0].Error)
	require.Contains(t, entries[0].URL, "/post/list?")
}

func TestListComments(t *testing.T) {
	var gotQuery url.Values
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/comment/list", r.URL.Path)
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"comments":[{"comment":{"id":7,"post_id":42}}]}`))
	}))

	comments, err := client.ListComments(context.Background(), "technology@lemmy.world", 42)
	require.NoError(t, err)

	require.Equal(t, "42", gotQuery.Get("post_id"))
	require.Equal(t, "technology@lemmy.world", gotQuery.Get("community_name"))
	require.Len(t, comments, 1)
	require.Equal(t, int64(7), comments[0].Comment.ID)
}

func TestGetSite(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/site", r.URL.Path)
		w.Write([]byte(`{"site_view":{"site":{"name":"Reddthat"}},"version":"0.19.3"}`))
	}))

	site, err := client.GetSite(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Reddthat", site.Name)
	require.Equal(t, "0.19.3", site.Version)
}

func TestGetCommunity(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/community", r.URL.Path)
		require.Equal(t, "technology@lemmy.world", r.URL.Query().Get("name"))
		w.Write([]byte(`{"community_view":{"community":{"id":5,"name":"technology","title":"Technology"}}}`))
	}))

	community, err := client.GetCommunity(context.Background(), "technology@lemmy.world")
	require.NoError(t, err)
	require.Equal(t, "Technology", community.Title)
}

func TestServerErrorIsAudited(t *testing.T) {
	client, auditPath := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	_, err := client.ListPosts(context.Background(), "technology@lemmy.world", 1, 50)
	require.ErrorContains(t, err, "429")

	entries := readAuditEntries(t, auditPath)
	require.Len(t, entries, 1)
	require.Equal(t, http.StatusTooManyRequests, entries[0].Status)
	require.NotEmpty(t, entries[0].Error)
}

func TestTransportErrorIsAudited(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "requests.jsonl")
	audit, err := OpenRequestLog(auditPath)
	require.NoError(t, err)
	defer audit.Close()

	// Nothing listens here.
	client := NewClient("http://127.0.0.1:1", NewLimiter(time.Millisecond), audit)

	_, err = client.GetSite(context.Background())
	require.Error(t, err)

	entries := readAuditEntries(t, auditPath)
	require.Len(t, entries, 1)
	require.Zero(t, entries[0].Status)
	require.NotEmpty(t, entries[0].Error)
}
