package models

// Result is the readable extract of one rendered page.
type Result struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Byline   string `json:"byline,omitempty"`
	SiteName string `json:"site_name,omitempty"`
	Excerpt  string `json:"excerpt,omitempty"`
	Text     string `json:"text"`
	HTMLHash string `json:"html_hash"`
	RenderMS int    `json:"render_ms"`
}
