package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halim/aria/pkg/security"
)

func TestSearchWebDisabled(t *testing.T) {
	root := t.TempDir()
	sec, err := security.New(security.Config{
		AllowedRoots:   []string{root},
		AllowWebSearch: false,
	})
	require.NoError(t, err)

	tool := NewSearchWeb(sec, NewDuckDuckGo())
	_, err = tool.Execute(context.Background(), map[string]any{"query": "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestDuckDuckGoSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "go language", r.URL.Query().Get("q"))
		w.Write([]byte(`{
			"Heading": "Go (programming language)",
			"AbstractText": "Go is a statically typed language.",
			"AbstractURL": "https://example.org/go",
			"RelatedTopics": [
				{"Text": "Goroutines", "FirstURL": "https://example.org/goroutines"},
				{"Topics": [{"Text": "Channels", "FirstURL": "https://example.org/channels"}]}
			]
		}`))
	}))
	defer server.Close()

	ddg := NewDuckDuckGo()
	ddg.baseURL = server.URL

	out, err := ddg.Search(context.Background(), "go language")
	require.NoError(t, err)
	assert.Contains(t, out, "Go (programming language)")
	assert.Contains(t, out, "statically typed")
	assert.Contains(t, out, "1. Goroutines")
	assert.Contains(t, out, "2. Channels")
}

func TestDuckDuckGoNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Heading": "", "AbstractText": "", "AbstractURL": "", "RelatedTopics": []}`))
	}))
	defer server.Close()

	ddg := NewDuckDuckGo()
	ddg.baseURL = server.URL

	out, err := ddg.Search(context.Background(), "gibberish")
	require.NoError(t, err)
	assert.Contains(t, out, "No detailed results")
}

func TestDuckDuckGoUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ddg := NewDuckDuckGo()
	ddg.baseURL = server.URL

	_, err := ddg.Search(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestBraveSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-key", r.Header.Get("X-Subscription-Token"))
		w.Write([]byte(`{"web": {"results": [
			{"title": "Result One", "description": "First hit", "url": "https://example.org/1"},
			{"title": "Result Two", "description": "Second hit", "url": "https://example.org/2"}
		]}}`))
	}))
	defer server.Close()

	brave := NewBrave("secret-key")
	brave.baseURL = server.URL

	out, err := brave.Search(context.Background(), "query")
	require.NoError(t, err)
	assert.Contains(t, out, "1. Result One")
	assert.Contains(t, out, "2. Result Two")
}

func TestNewSearcher(t *testing.T) {
	searcher, err := NewSearcher("", "")
	require.NoError(t, err)
	assert.IsType(t, &DuckDuckGo{}, searcher)

	searcher, err = NewSearcher("brave", "key")
	require.NoError(t, err)
	assert.IsType(t, &Brave{}, searcher)

	_, err = NewSearcher("brave", "")
	assert.Error(t, err)

	_, err = NewSearcher("bing", "")
	assert.Error(t, err)
}
