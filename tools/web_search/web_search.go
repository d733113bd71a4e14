package web_search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
	"github.com/yhlin07/when2meet-mcp-2025/tools/web_search/brave"
	"github.com/yhlin07/when2meet-mcp-2025/tools/web_search/models"
	"github.com/yhlin07/when2meet-mcp-2025/tools/web_search/serper"
)

// WebSearcher finds public pages about a person or company. recency is a
// window in days, 0 meaning unrestricted.
type WebSearcher interface {
	Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

// NewWebSearcher builds a backend for provider sharing client for retries.
func NewWebSearcher(provider Provider, apiKey string, client *core.HTTPClient) (WebSearcher, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%s: api key is required", provider)
	}
	switch provider {
	case SerperProvider:
		return serper.Search{ApiKey: apiKey, Client: client}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey, Client: client}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
