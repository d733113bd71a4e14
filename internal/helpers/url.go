package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"path"
	"strings"
)

// query parameters that only track the visit and never change the page
var trackingQueryParams = map[string]struct{}{
	"utm_source":        {},
	"utm_medium":        {},
	"utm_campaign":      {},
	"utm_term":          {},
	"utm_content":       {},
	"gclid":             {},
	"fbclid":            {},
	"msclkid":           {},
	"trk":               {},
	"trackingid":        {},
	"lipi":              {},
	"originalsubdomain": {},
	"midtoken":          {},
	"midsig":            {},
}

var (
	ErrEmptyURL    = errors.New("url is empty")
	ErrNotAbsolute = errors.New("url must be an absolute http(s) URL")
	ErrMissingHost = errors.New("url missing host")
)

// ProfileURL validates a caller-supplied profile link. Only absolute http and
// https URLs are accepted.
func ProfileURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrNotAbsolute
	}
	if u.Hostname() == "" {
		return nil, ErrMissingHost
	}
	return u, nil
}

// CanonicalURL normalises a profile link so that the same person maps to the
// same string: lower-case scheme and host, no default port, no "www." prefix,
// cleaned path without trailing slash, no fragment, no tracking parameters and
// sorted query.
func CanonicalURL(raw string) (string, error) {
	u, err := ProfileURL(raw)
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if port := u.Port(); port != "" && !(u.Scheme == "http" && port == "80") && !(u.Scheme == "https" && port == "443") {
		host += ":" + port
	}
	u.Host = host

	p := path.Clean("/" + u.Path)
	if p == "/" {
		p = ""
	}
	u.Path, u.RawPath = p, ""
	u.Fragment, u.RawFragment = "", ""
	u.User = nil

	q := u.Query()
	for key := range q {
		if _, drop := trackingQueryParams[strings.ToLower(key)]; drop {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RequestFingerprint is a stable digest of a profile link plus the meeting
// notes, used to key cached dossiers.
func RequestFingerprint(profileURL, notes string) (string, error) {
	canonical, err := CanonicalURL(profileURL)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(canonical))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(strings.Fields(notes), " ")))
	return hex.EncodeToString(h.Sum(nil)), nil
}
