package dossier

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// ExtractFromText looks for a valid dossier embedded in free model text.
// Fenced code blocks are tried first, then the whole text, then every
// balanced top-level object. The first candidate that validates wins.
func ExtractFromText(text string) (Dossier, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Dossier{}, false
	}
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		if d, ok := tryCandidate(m[1]); ok {
			return d, true
		}
	}
	if d, ok := tryCandidate(text); ok {
		return d, true
	}
	for _, obj := range balancedObjects(text) {
		if d, ok := tryCandidate(obj); ok {
			return d, true
		}
	}
	return Dossier{}, false
}

func tryCandidate(s string) (Dossier, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !json.Valid([]byte(s)) {
		return Dossier{}, false
	}
	d, err := Validate(json.RawMessage(s))
	if err != nil {
		return Dossier{}, false
	}
	return d, true
}

// balancedObjects returns every top-level {...} span, skipping braces that
// appear inside JSON strings.
func balancedObjects(s string) []string {
	var (
		out      []string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, s[start:i+1])
				start = -1
			}
		}
	}
	return out
}
