package capability

import (
	"encoding/json"

	"github.com/yhlin07/when2meet-mcp-2025/internal/dossier"
)

// Tool names as the model sees them.
const (
	ToolResearch        = "research"
	ToolAnalyzeContext  = "analyze_meeting_context"
	ToolGenerateDossier = "generate_dossier"
	ToolReturnDossier   = "return_meeting_dossier"
	ToolWebSearch       = "web_search"
	ToolFetchPage       = "fetch_page"
)

// MeetingTypes enumerates the classifications analyze_meeting_context may return.
var MeetingTypes = []string{"coffee_chat", "business_meeting", "networking", "interview", "casual_meetup", "formal_discussion"}

func object(required []string, props map[string]interface{}) map[string]interface{} {
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func strList(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": desc}
}

// DossierSchema returns the dossier contract as a schema map, without the
// $schema marker that function-calling APIs reject.
func DossierSchema() map[string]interface{} {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(dossier.Schema), &m); err != nil {
		panic("capability: dossier schema is not valid JSON: " + err.Error())
	}
	delete(m, "$schema")
	return m
}

func meetingContextSchema() map[string]interface{} {
	enum := make([]interface{}, len(MeetingTypes))
	for i, t := range MeetingTypes {
		enum[i] = t
	}
	return object(
		[]string{"meetingType", "formalityLevel", "primaryGoals", "suggestedTone", "focusAreas", "contextSummary"},
		map[string]interface{}{
			"meetingType":    map[string]interface{}{"type": "string", "enum": enum},
			"formalityLevel": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 5},
			"primaryGoals":   strList("What the user wants out of the meeting"),
			"suggestedTone":  str("Tone to strike"),
			"focusAreas":     strList("Topics worth steering toward"),
			"contextSummary": str("One paragraph summary of the meeting context"),
		},
	)
}

// DefaultToolCards returns the built-in catalogue.
func DefaultToolCards() []ToolCard {
	return []ToolCard{
		{
			Name:        ToolResearch,
			Version:     "v1",
			Description: "Research a person's professional background from their LinkedIn profile URL. Use this first.",
			InputSchema: object([]string{"query"}, map[string]interface{}{
				"query": str("LinkedIn profile URL or a research question about the person"),
			}),
			OutputSchema: object([]string{"content"}, map[string]interface{}{
				"content": str("Research findings"),
				"usage":   map[string]interface{}{"type": "object"},
			}),
			SideEffects: []string{"network"},
		},
		{
			Name:        ToolAnalyzeContext,
			Version:     "v1",
			Description: "Classify the meeting from the user's notes: type, formality, goals and tone.",
			InputSchema: object([]string{"linkedinUrl"}, map[string]interface{}{
				"linkedinUrl":     str("LinkedIn profile URL"),
				"additionalNotes": str("User notes about the meeting"),
			}),
			OutputSchema: meetingContextSchema(),
			SideEffects:  []string{"network"},
		},
		{
			Name:        ToolGenerateDossier,
			Version:     "v1",
			Description: "Generate a meeting dossier (opener, three questions, analytics, visualizations) from research data.",
			InputSchema: object([]string{"researchData", "linkedinUrl"}, map[string]interface{}{
				"researchData":    str("Findings returned by the research tool"),
				"linkedinUrl":     str("LinkedIn profile URL"),
				"additionalNotes": str("User notes about the meeting"),
				"meetingContext":  map[string]interface{}{"type": "object", "description": "Result of analyze_meeting_context"},
			}),
			OutputSchema: DossierSchema(),
			SideEffects:  []string{"network"},
		},
		{
			Name:         ToolReturnDossier,
			Version:      "v1",
			Description:  "Return the final meeting dossier. Call this exactly once when the dossier is ready.",
			InputSchema:  DossierSchema(),
			OutputSchema: DossierSchema(),
		},
		{
			Name:        ToolWebSearch,
			Version:     "v1",
			Description: "Search the web for recent talks, posts or news about the person.",
			InputSchema: object([]string{"query"}, map[string]interface{}{
				"query":   str("Search query"),
				"k":       map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 20},
				"sites":   strList("Restrict results to these domains"),
				"recency": map[string]interface{}{"type": "integer", "minimum": 0, "description": "Only results from the last N days"},
			}),
			SideEffects: []string{"network"},
		},
		{
			Name:        ToolFetchPage,
			Version:     "v1",
			Description: "Fetch a web page and return its readable text.",
			InputSchema: object([]string{"url"}, map[string]interface{}{
				"url": map[string]interface{}{"type": "string", "format": "uri"},
			}),
			SideEffects: []string{"network"},
		},
	}
}
