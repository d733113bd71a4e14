package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yhlin07/when2meet-mcp-2025/internal/capability"
	"github.com/yhlin07/when2meet-mcp-2025/internal/dossier"
)

const summarySystemPrompt = "You are an expert at creating personalized meeting preparation dossiers that help people have meaningful conversations. You understand the nuances of different meeting types (coffee chats, business meetings, networking) and adapt your tone and content accordingly. You excel at finding unique angles and avoiding generic talking points."

const summaryGuidelines = `Important Guidelines:

1. Analyze the meeting context:
   - If it's a coffee chat: Create a warm, friendly tone focused on personal connection
   - If it's business-focused: Maintain professionalism while showing genuine interest
   - Consider any specific goals or topics mentioned in the notes

2. For the ice-breaker:
   - Make it feel conversational and natural, not scripted
   - Reference something specific and recent from the research
   - If information is limited, use company/industry insights creatively
   - For coffee chats: Be more casual and personal
   - For business meetings: Balance professionalism with warmth

3. For the questions:
   - Question 1: Start with something that builds rapport based on their background
   - Question 2: Dive deeper into their expertise or current projects
   - Question 3: Explore future-oriented topics or mutual interests
   - Ensure questions feel organic to the meeting type
   - Avoid generic questions like "What are your biggest challenges?"
   - Make questions specific to their role, company, or interests

4. Special handling for limited profiles:
   - Focus on their company's recent developments
   - Ask about their specific role within larger initiatives
   - Use industry trends as conversation starters
   - Be curious about their unique perspective

Remember: The goal is to facilitate a genuine connection, not conduct an interview.`

const summaryOutputFormat = `Respond with a single JSON object:
{
  "opener": "two-sentence personalized ice-breaker",
  "questions": [{"q": "question", "why": "how it serves the meeting"}, ... exactly 3],
  "analytics": {
    "careerTimeline": [{"title": "", "period": "", "company": ""}],   (1 to 8 roles, oldest first)
    "focusBreakdown": [{"label": "", "value": 0}],                    (3 to 7 areas, values sum to 100)
    "meetingFlow": [{"label": "", "value": 0}]                        (3 to 5 phases, minutes)
  },
  "visualizations": [{"type": "bar|pie|line|sankey|timeline", "title": "", "description": "", "data": ...}]  (1 or 2)
}
Include analytics and visualizations only when the research supports them. bar, pie and line data is a list of {"label","value"};
sankey data is {"nodes":[{"name"}],"links":[{"source","target","value"}]} with node indices; timeline data is a list of career items.`

// GenerateDossier turns research findings into a validated dossier.
type GenerateDossier struct {
	Model Model
}

func (GenerateDossier) Name() string { return capability.ToolGenerateDossier }

func (t GenerateDossier) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		ResearchData    string          `json:"researchData"`
		LinkedInURL     string          `json:"linkedinUrl"`
		AdditionalNotes string          `json:"additionalNotes"`
		MeetingContext  json.RawMessage `json:"meetingContext"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ResearchData) == "" {
		return nil, errors.New("researchData must not be empty; call research first")
	}

	maxTokens := t.Model.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1500
	}
	resp, err := t.Model.chat(ctx, summarySystemPrompt, summaryPrompt(in.ResearchData, in.LinkedInURL, in.AdditionalNotes, in.MeetingContext), summaryTemperature(in.AdditionalNotes), maxTokens, true)
	if err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}
	if d, ok := dossier.ExtractFromText(resp.Text); ok {
		return d, nil
	}
	// report why the output was rejected so the model can retry
	if _, err := dossier.Validate(json.RawMessage(stripFences(resp.Text))); err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}
	return nil, errors.New("generate summary: model returned no dossier")
}

func summaryPrompt(research, linkedinURL, notes string, meetingContext json.RawMessage) string {
	var b strings.Builder
	b.WriteString("Based on the following research data, create a structured meeting preparation dossier.\n\n")
	b.WriteString("Research Data:\n")
	b.WriteString(research)
	b.WriteString("\n\nLinkedIn Profile: ")
	b.WriteString(linkedinURL)
	b.WriteString("\n")
	if n := strings.TrimSpace(notes); n != "" {
		b.WriteString("Meeting Context: " + n)
	} else {
		b.WriteString("Meeting Type: Professional meeting")
	}
	if mc := strings.TrimSpace(string(meetingContext)); mc != "" && mc != "null" {
		b.WriteString("\nMeeting Analysis: " + mc)
	}
	b.WriteString("\n\n")
	b.WriteString(summaryGuidelines)
	b.WriteString("\n\n")
	b.WriteString(summaryOutputFormat)
	return b.String()
}

// casual meetings get a warmer sampling temperature
func summaryTemperature(notes string) float64 {
	n := strings.ToLower(notes)
	if strings.Contains(n, "coffee") || strings.Contains(n, "chat") {
		return 0.8
	}
	return 0.7
}
