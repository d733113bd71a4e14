package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yhlin07/when2meet-mcp-2025/internal/capability"
	"github.com/yhlin07/when2meet-mcp-2025/tools/web_fetch"
	"github.com/yhlin07/when2meet-mcp-2025/tools/web_search"
	"github.com/yhlin07/when2meet-mcp-2025/tools/web_search/models"
)

const defaultSearchResults = 5

// WebSearch finds recent public mentions of the person.
type WebSearch struct {
	Searcher   web_search.WebSearcher
	MaxResults int
}

type WebSearchResult struct {
	Query   string          `json:"query"`
	Results []models.Result `json:"results"`
}

func (WebSearch) Name() string { return capability.ToolWebSearch }

func (t WebSearch) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Query   string   `json:"query"`
		K       int      `json:"k"`
		Sites   []string `json:"sites"`
		Recency int      `json:"recency"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	k := in.K
	if k <= 0 {
		k = defaultSearchResults
	}
	if t.MaxResults > 0 && k > t.MaxResults {
		k = t.MaxResults
	}
	results, err := t.Searcher.Discover(ctx, in.Query, k, in.Sites, in.Recency)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	if results == nil {
		results = []models.Result{}
	}
	return WebSearchResult{Query: in.Query, Results: results}, nil
}

// FetchPage renders a page and returns its readable text.
type FetchPage struct {
	Fetcher web_fetch.WebFetcher
}

func (FetchPage) Name() string { return capability.ToolFetchPage }

func (t FetchPage) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	res, err := t.Fetcher.Exec(ctx, in.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	return res, nil
}
