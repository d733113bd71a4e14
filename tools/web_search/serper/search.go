package serper

import (
	"context"
	"strings"

	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
	"github.com/yhlin07/when2meet-mcp-2025/tools/web_search/models"
)

const DefaultEndpoint = "https://google.serper.dev/search"

type Search struct {
	ApiKey   string
	Endpoint string
	Client   *core.HTTPClient
}

func (s Search) Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]models.Result, error) {
	// https://serper.dev/ docs
	if len(sites) > 0 {
		filters := make([]string, 0, len(sites))
		for _, site := range sites {
			filters = append(filters, "site:"+site)
		}
		q = q + " " + strings.Join(filters, " OR ")
	}
	payload := map[string]any{"q": q, "num": k}
	if tbs := timeFilter(recency); tbs != "" {
		payload["tbs"] = tbs
	}
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := s.Client
	if client == nil {
		client = core.NewHTTPClient(0, 1, 0)
	}
	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	headers := map[string]string{"X-API-KEY": s.ApiKey}
	if err := client.DoJSON(ctx, "POST", endpoint, headers, payload, &raw); err != nil {
		return nil, err
	}
	var out []models.Result
	for i, it := range raw.Organic {
		if i >= k {
			break
		}
		out = append(out, models.Result{Title: it.Title, URL: it.Link, Snippet: it.Snippet})
	}
	return out, nil
}

func timeFilter(days int) string {
	switch {
	case days <= 0:
		return ""
	case days <= 1:
		return "qdr:d"
	case days <= 7:
		return "qdr:w"
	case days <= 31:
		return "qdr:m"
	default:
		return "qdr:y"
	}
}
