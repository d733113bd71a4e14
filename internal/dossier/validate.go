package dossier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const (
	QuestionCount     = 3
	MaxVisualizations = 2
	MaxCareerTimeline = 8
	MinFocusBreakdown = 3
	MaxFocusBreakdown = 7
	MinMeetingFlow    = 3
	MaxMeetingFlow    = 5
)

// Schema is the structural contract for a dossier payload. Type-specific
// visualization data and sankey indices are checked in Go afterwards.
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["opener", "questions"],
  "properties": {
    "status": {"type": "string", "enum": ["complete"]},
    "opener": {"type": "string", "minLength": 1},
    "questions": {
      "type": "array",
      "minItems": 3,
      "maxItems": 3,
      "items": {
        "type": "object",
        "required": ["q", "why"],
        "properties": {
          "q": {"type": "string", "minLength": 1},
          "why": {"type": "string", "minLength": 1}
        }
      }
    },
    "analytics": {
      "type": "object",
      "required": ["careerTimeline", "focusBreakdown", "meetingFlow"],
      "properties": {
        "careerTimeline": {"type": "array", "minItems": 1, "maxItems": 8, "items": {"$ref": "#/definitions/timelineItem"}},
        "focusBreakdown": {"type": "array", "minItems": 3, "maxItems": 7, "items": {"$ref": "#/definitions/series"}},
        "meetingFlow": {"type": "array", "minItems": 3, "maxItems": 5, "items": {"$ref": "#/definitions/series"}}
      }
    },
    "visualizations": {
      "type": "array",
      "minItems": 1,
      "maxItems": 2,
      "items": {
        "type": "object",
        "required": ["type", "title", "data"],
        "properties": {
          "type": {"type": "string", "enum": ["bar", "pie", "line", "sankey", "timeline"]},
          "title": {"type": "string"},
          "description": {"type": "string"},
          "data": {"type": ["array", "object"]}
        }
      }
    }
  },
  "definitions": {
    "series": {
      "type": "object",
      "required": ["label", "value"],
      "properties": {"label": {"type": "string"}, "value": {"type": "number"}}
    },
    "timelineItem": {
      "type": "object",
      "required": ["title", "period"],
      "properties": {
        "title": {"type": "string"},
        "period": {"type": "string"},
        "company": {"type": "string"},
        "start": {"type": "string"},
        "end": {"type": "string"},
        "notes": {"type": "string"}
      }
    }
  }
}`

// ShapeError reports every problem found in a candidate dossier.
type ShapeError struct {
	Problems []string
}

func (e *ShapeError) Error() string {
	return "dossier shape invalid: " + strings.Join(e.Problems, "; ")
}

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(Schema))
	})
	return schema, schemaErr
}

// Validate checks raw JSON against the dossier contract and decodes it.
func Validate(raw json.RawMessage) (Dossier, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Dossier{}, &ShapeError{Problems: []string{"empty payload"}}
	}
	if !json.Valid(raw) {
		return Dossier{}, &ShapeError{Problems: []string{"payload is not valid JSON"}}
	}
	s, err := compiledSchema()
	if err != nil {
		return Dossier{}, fmt.Errorf("dossier schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return Dossier{}, &ShapeError{Problems: []string{err.Error()}}
	}
	if !res.Valid() {
		problems := make([]string, 0, len(res.Errors()))
		for _, re := range res.Errors() {
			problems = append(problems, re.String())
		}
		return Dossier{}, &ShapeError{Problems: problems}
	}
	var d Dossier
	if err := json.Unmarshal(raw, &d); err != nil {
		return Dossier{}, &ShapeError{Problems: []string{err.Error()}}
	}
	if err := ValidateDossier(d); err != nil {
		return Dossier{}, err
	}
	return d, nil
}

// ValidateDossier runs the semantic checks on an already decoded dossier.
func ValidateDossier(d Dossier) error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if d.Status != "" && d.Status != StatusComplete {
		add("status must be %q, got %q", StatusComplete, d.Status)
	}
	if strings.TrimSpace(d.Opener) == "" {
		add("opener is required")
	}
	if len(d.Questions) != QuestionCount {
		add("questions must contain exactly %d items, got %d", QuestionCount, len(d.Questions))
	}
	for i, q := range d.Questions {
		if strings.TrimSpace(q.Q) == "" {
			add("questions[%d].q is empty", i)
		}
		if strings.TrimSpace(q.Why) == "" {
			add("questions[%d].why is empty", i)
		}
	}
	if a := d.Analytics; a != nil {
		if n := len(a.CareerTimeline); n < 1 || n > MaxCareerTimeline {
			add("analytics.careerTimeline must have 1..%d items, got %d", MaxCareerTimeline, n)
		}
		if n := len(a.FocusBreakdown); n < MinFocusBreakdown || n > MaxFocusBreakdown {
			add("analytics.focusBreakdown must have %d..%d items, got %d", MinFocusBreakdown, MaxFocusBreakdown, n)
		}
		if n := len(a.MeetingFlow); n < MinMeetingFlow || n > MaxMeetingFlow {
			add("analytics.meetingFlow must have %d..%d items, got %d", MinMeetingFlow, MaxMeetingFlow, n)
		}
	}
	if d.Visualizations != nil {
		if n := len(d.Visualizations); n < 1 || n > MaxVisualizations {
			add("visualizations must have 1..%d items, got %d", MaxVisualizations, n)
		}
	}
	for i, v := range d.Visualizations {
		for _, p := range checkVisualization(v) {
			add("visualizations[%d]: %s", i, p)
		}
	}
	if len(problems) > 0 {
		return &ShapeError{Problems: problems}
	}
	return nil
}

func checkVisualization(v Visualization) []string {
	if len(bytes.TrimSpace(v.Data)) == 0 {
		return []string{"data is required"}
	}
	switch v.Type {
	case VisualizationBar, VisualizationPie, VisualizationLine:
		return checkSeries(v.Data)
	case VisualizationSankey:
		return checkSankey(v.Data)
	case VisualizationTimeline:
		return checkTimeline(v.Data)
	default:
		return []string{fmt.Sprintf("unsupported type %q", v.Type)}
	}
}

func checkSeries(raw json.RawMessage) []string {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{"data must be a list of {label, value}"}
	}
	if len(items) == 0 {
		return []string{"data must not be empty"}
	}
	var problems []string
	for i, item := range items {
		var label string
		if err := json.Unmarshal(item["label"], &label); err != nil {
			problems = append(problems, fmt.Sprintf("data[%d].label must be a string", i))
		}
		var value float64
		if err := json.Unmarshal(item["value"], &value); err != nil {
			problems = append(problems, fmt.Sprintf("data[%d].value must be a number", i))
		}
	}
	return problems
}

func checkSankey(raw json.RawMessage) []string {
	var wire struct {
		Nodes []map[string]json.RawMessage `json:"nodes"`
		Links []map[string]json.RawMessage `json:"links"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil || wire.Nodes == nil || wire.Links == nil {
		return []string{"data must be {nodes: [], links: []}"}
	}
	if len(wire.Nodes) == 0 {
		return []string{"data.nodes must not be empty"}
	}
	var problems []string
	for i, link := range wire.Links {
		for _, key := range []string{"source", "target"} {
			var idx float64
			if err := json.Unmarshal(link[key], &idx); err != nil {
				problems = append(problems, fmt.Sprintf("data.links[%d].%s must be a node index", i, key))
				continue
			}
			if idx != float64(int(idx)) || idx < 0 || int(idx) >= len(wire.Nodes) {
				problems = append(problems, fmt.Sprintf("data.links[%d].%s=%v out of range [0,%d)", i, key, idx, len(wire.Nodes)))
			}
		}
		var value float64
		if err := json.Unmarshal(link["value"], &value); err != nil {
			problems = append(problems, fmt.Sprintf("data.links[%d].value must be a number", i))
		}
	}
	return problems
}

func checkTimeline(raw json.RawMessage) []string {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{"data must be a list of {title, period}"}
	}
	if len(items) == 0 {
		return []string{"data must not be empty"}
	}
	var problems []string
	for i, item := range items {
		for _, key := range []string{"title", "period"} {
			var s string
			if err := json.Unmarshal(item[key], &s); err != nil || strings.TrimSpace(s) == "" {
				problems = append(problems, fmt.Sprintf("data[%d].%s is required", i, key))
			}
		}
	}
	return problems
}
