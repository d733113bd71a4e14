// Package dossier holds the meeting dossier model and its validator.
package dossier

import (
	"encoding/json"
	"fmt"
)

// StatusComplete is the only status value a finished dossier may carry.
const StatusComplete = "complete"

// Question is one discussion prompt plus the reason for asking it.
type Question struct {
	Q   string `json:"q"`
	Why string `json:"why"`
}

// SeriesDatum feeds bar, pie and line charts.
type SeriesDatum struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// TimelineItem is one entry of a career timeline.
type TimelineItem struct {
	Title   string `json:"title"`
	Period  string `json:"period"`
	Company string `json:"company,omitempty"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

type SankeyNode struct {
	Name string `json:"name"`
}

type SankeyLink struct {
	Source int     `json:"source"`
	Target int     `json:"target"`
	Value  float64 `json:"value"`
}

type SankeyData struct {
	Nodes []SankeyNode `json:"nodes"`
	Links []SankeyLink `json:"links"`
}

// VisualizationType names a supported chart.
type VisualizationType string

const (
	VisualizationBar      VisualizationType = "bar"
	VisualizationPie      VisualizationType = "pie"
	VisualizationLine     VisualizationType = "line"
	VisualizationSankey   VisualizationType = "sankey"
	VisualizationTimeline VisualizationType = "timeline"
)

// Visualization is a chart-ready block. Data is kept raw and decoded
// according to Type.
type Visualization struct {
	Type        VisualizationType `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Data        json.RawMessage   `json:"data"`
}

// Series decodes bar/pie/line data.
func (v Visualization) Series() ([]SeriesDatum, error) {
	switch v.Type {
	case VisualizationBar, VisualizationPie, VisualizationLine:
	default:
		return nil, fmt.Errorf("visualization %q is not a series chart", v.Type)
	}
	var out []SeriesDatum
	if err := json.Unmarshal(v.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Sankey decodes sankey data.
func (v Visualization) Sankey() (SankeyData, error) {
	if v.Type != VisualizationSankey {
		return SankeyData{}, fmt.Errorf("visualization %q is not a sankey chart", v.Type)
	}
	var out SankeyData
	if err := json.Unmarshal(v.Data, &out); err != nil {
		return SankeyData{}, err
	}
	return out, nil
}

// Timeline decodes timeline data.
func (v Visualization) Timeline() ([]TimelineItem, error) {
	if v.Type != VisualizationTimeline {
		return nil, fmt.Errorf("visualization %q is not a timeline", v.Type)
	}
	var out []TimelineItem
	if err := json.Unmarshal(v.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Analytics carries the optional chart inputs derived from research.
type Analytics struct {
	CareerTimeline []TimelineItem `json:"careerTimeline"`
	FocusBreakdown []SeriesDatum  `json:"focusBreakdown"`
	MeetingFlow    []SeriesDatum  `json:"meetingFlow"`
}

// Dossier is the terminal artifact of a run.
type Dossier struct {
	Status         string          `json:"status,omitempty"`
	Opener         string          `json:"opener"`
	Questions      []Question      `json:"questions"`
	Analytics      *Analytics      `json:"analytics,omitempty"`
	Visualizations []Visualization `json:"visualizations,omitempty"`
}

// Complete returns a copy stamped with StatusComplete.
func (d Dossier) Complete() Dossier {
	d.Status = StatusComplete
	return d
}

// Fingerprint identifies a candidate by its user-visible text; used to avoid
// streaming the same partial fields twice.
func (d Dossier) Fingerprint() string {
	b, _ := json.Marshal(struct {
		Opener    string     `json:"opener"`
		Questions []Question `json:"questions"`
	}{d.Opener, d.Questions})
	return string(b)
}
