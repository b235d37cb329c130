package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/halim/aria/pkg/security"
)

// WebSearcher performs a web search and returns a text summary for the
// model. Implementations are selected by configuration.
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// SearchWeb exposes a WebSearcher as the search_web tool, gated by the
// security policy.
type SearchWeb struct {
	sec      *security.Context
	searcher WebSearcher
}

// NewSearchWeb builds the search_web tool.
func NewSearchWeb(sec *security.Context, searcher WebSearcher) *SearchWeb {
	return &SearchWeb{sec: sec, searcher: searcher}
}

func (t *SearchWeb) Name() string { return "search_web" }

func (t *SearchWeb) Description() string {
	return "Search the web for current information. Returns a text summary of the top results."
}

func (t *SearchWeb) Params() []Param {
	return []Param{
		{Name: "query", Type: "string", Description: "Search query", Required: true},
	}
}

func (t *SearchWeb) Execute(ctx context.Context, args map[string]any) (string, error) {
	if !t.sec.AllowWebSearch() {
		return "", errors.New("web search is disabled by configuration")
	}
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return "", errors.New("query is required")
	}
	return t.searcher.Search(ctx, query)
}

const searchTimeout = 10 * time.Second

// DuckDuckGo queries the public instant answer API. No key needed; results
// are abstracts and related topics rather than a full result page.
type DuckDuckGo struct {
	httpClient *http.Client
	baseURL    string
}

// NewDuckDuckGo creates the keyless default searcher.
func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{
		httpClient: &http.Client{Timeout: searchTimeout},
		baseURL:    "https://api.duckduckgo.com",
	}
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) (string, error) {
	endpoint := fmt.Sprintf("%s/?q=%s&format=json", d.baseURL, url.QueryEscape(query))
	body, err := fetch(ctx, d.httpClient, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("duckduckgo search: %w", err)
	}

	var parsed ddgResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse search results: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n\n", query)
	if parsed.Heading != "" {
		fmt.Fprintf(&b, "## %s\n\n", parsed.Heading)
	}
	if parsed.AbstractText != "" {
		fmt.Fprintf(&b, "%s\n", parsed.AbstractText)
		if parsed.AbstractURL != "" {
			fmt.Fprintf(&b, "Source: %s\n\n", parsed.AbstractURL)
		}
	}

	count := 0
	var writeTopics func(topics []ddgTopic)
	writeTopics = func(topics []ddgTopic) {
		for _, topic := range topics {
			if count >= 5 {
				return
			}
			if topic.Text != "" {
				count++
				fmt.Fprintf(&b, "%d. %s\n   %s\n\n", count, topic.Text, topic.FirstURL)
				continue
			}
			writeTopics(topic.Topics)
		}
	}
	if len(parsed.RelatedTopics) > 0 {
		b.WriteString("### Related Information:\n\n")
		writeTopics(parsed.RelatedTopics)
	}

	if parsed.AbstractText == "" && count == 0 {
		b.WriteString("No detailed results found. Try different keywords.\n")
	}
	return b.String(), nil
}

// Brave queries the Brave Search API with a subscription token, giving
// proper ranked web results.
type Brave struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewBrave creates a Brave searcher with the given API key.
func NewBrave(apiKey string) *Brave {
	return &Brave{
		httpClient: &http.Client{Timeout: searchTimeout},
		baseURL:    "https://api.search.brave.com",
		apiKey:     apiKey,
	}
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
		} `json:"results"`
	} `json:"web"`
}

func (br *Brave) Search(ctx context.Context, query string) (string, error) {
	endpoint := fmt.Sprintf("%s/res/v1/web/search?q=%s", br.baseURL, url.QueryEscape(query))
	headers := map[string]string{"X-Subscription-Token": br.apiKey}
	body, err := fetch(ctx, br.httpClient, endpoint, headers)
	if err != nil {
		return "", fmt.Errorf("brave search: %w", err)
	}

	var parsed braveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse search results: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n\n", query)
	if len(parsed.Web.Results) == 0 {
		b.WriteString("No search results found. Try different keywords.\n")
		return b.String(), nil
	}
	b.WriteString("### Top Results:\n\n")
	for i, res := range parsed.Web.Results {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n\n", i+1, res.Title, res.Description, res.URL)
	}
	return b.String(), nil
}

// NewSearcher picks the searcher for the configured mode ("duckduckgo" by
// default, "brave" when a key is configured).
func NewSearcher(mode, braveKey string) (WebSearcher, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "duckduckgo":
		return NewDuckDuckGo(), nil
	case "brave":
		if braveKey == "" {
			return nil, errors.New("brave search requires an API key")
		}
		return NewBrave(braveKey), nil
	default:
		return nil, fmt.Errorf("unknown search mode %q", mode)
	}
}

func fetch(ctx context.Context, client *http.Client, endpoint string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "aria-cli/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
