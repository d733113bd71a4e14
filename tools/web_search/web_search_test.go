package web_search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
	"github.com/yhlin07/when2meet-mcp-2025/tools/web_search/brave"
	"github.com/yhlin07/when2meet-mcp-2025/tools/web_search/serper"
)

func TestBraveDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "key" {
			t.Errorf("missing token")
		}
		q := r.URL.Query()
		if !strings.Contains(q.Get("q"), "site:acme.com") || q.Get("freshness") != "pw" || q.Get("count") != "1" {
			t.Errorf("unexpected query %v", q)
		}
		_, _ = w.Write([]byte(`{"web":{"results":[{"title":"A","url":"https://a","description":"x"},{"title":"B","url":"https://b","description":"y"}]}}`))
	}))
	defer srv.Close()

	s := brave.Search{ApiKey: "key", Endpoint: srv.URL, Client: core.NewHTTPClient(time.Second, 0, 0)}
	res, err := s.Discover(context.Background(), "jane doe", 1, []string{"acme.com"}, 5)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res) != 1 || res[0].URL != "https://a" || res[0].Snippet != "x" {
		t.Fatalf("unexpected results: %+v", res)
	}
}

func TestSerperDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["tbs"] != "qdr:m" || !strings.Contains(body["q"].(string), "site:b.com") {
			t.Errorf("unexpected payload %v", body)
		}
		_, _ = w.Write([]byte(`{"organic":[{"title":"A","link":"https://a","snippet":"s"}]}`))
	}))
	defer srv.Close()

	s := serper.Search{ApiKey: "key", Endpoint: srv.URL, Client: core.NewHTTPClient(time.Second, 0, 0)}
	res, err := s.Discover(context.Background(), "jane", 3, []string{"b.com"}, 30)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res) != 1 || res[0].Title != "A" {
		t.Fatalf("unexpected results: %+v", res)
	}
}

func TestNewWebSearcher(t *testing.T) {
	if _, err := NewWebSearcher("bing", "k", nil); err != ErrUnsupportedProvider {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
	if _, err := NewWebSearcher(BraveProvider, "", nil); err == nil {
		t.Fatalf("expected missing key error")
	}
	if s, err := NewWebSearcher(SerperProvider, "k", nil); err != nil || s == nil {
		t.Fatalf("NewWebSearcher: %v", err)
	}
}
