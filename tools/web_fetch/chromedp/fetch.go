package chromedp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"
	"github.com/yhlin07/when2meet-mcp-2025/tools/web_fetch/models"
)

type Fetch struct {
	Timeout  time.Duration
	MaxChars int // maximum characters of article text returned
}

func (f Fetch) Exec(ctx context.Context, rawURL string) (models.Result, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.Result{}, errors.New("invalid url")
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	t0 := time.Now()

	html, err := fetchHTML(ctx, u.String())
	if err != nil {
		return models.Result{}, fmt.Errorf("render %s: %w", u, err)
	}
	return Extract(html, u, f.MaxChars, time.Since(t0))
}

// Extract runs readability over rendered html.
func Extract(html string, u *url.URL, maxChars int, elapsed time.Duration) (models.Result, error) {
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return models.Result{}, fmt.Errorf("extract %s: %w", u, err)
	}
	text := strings.TrimSpace(article.TextContent)
	if maxChars > 0 && len(text) > maxChars {
		text = truncate(text, maxChars)
	}

	sum := sha1.Sum([]byte(html))
	return models.Result{
		URL:      u.String(),
		Title:    strings.TrimSpace(article.Title),
		Byline:   strings.TrimSpace(article.Byline),
		SiteName: strings.TrimSpace(article.SiteName),
		Excerpt:  strings.TrimSpace(article.Excerpt),
		Text:     text,
		HTMLHash: hex.EncodeToString(sum[:]),
		RenderMS: int(elapsed / time.Millisecond),
	}, nil
}

// truncate cuts at a rune boundary at or before n bytes.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func fetchHTML(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("when2meet-dossier/1.0"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}
