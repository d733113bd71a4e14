package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/yhlin07/when2meet-mcp-2025/internal/capability"
)

const contextSystemPrompt = "You are an expert at understanding professional meeting contexts and providing nuanced analysis of interpersonal dynamics. You excel at reading between the lines and understanding both explicit and implicit meeting goals."

// MeetingContext classifies the meeting the user is preparing for.
type MeetingContext struct {
	MeetingType    string   `json:"meetingType"`
	FormalityLevel int      `json:"formalityLevel"`
	PrimaryGoals   []string `json:"primaryGoals"`
	SuggestedTone  string   `json:"suggestedTone"`
	FocusAreas     []string `json:"focusAreas"`
	ContextSummary string   `json:"contextSummary"`
}

func (m MeetingContext) validate() error {
	var problems []string
	if !slices.Contains(capability.MeetingTypes, m.MeetingType) {
		problems = append(problems, fmt.Sprintf("meetingType %q is not one of %s", m.MeetingType, strings.Join(capability.MeetingTypes, ", ")))
	}
	if m.FormalityLevel < 1 || m.FormalityLevel > 5 {
		problems = append(problems, fmt.Sprintf("formalityLevel %d out of range 1..5", m.FormalityLevel))
	}
	if strings.TrimSpace(m.SuggestedTone) == "" {
		problems = append(problems, "suggestedTone is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("meeting context invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

// AnalyzeContext infers meeting type, formality and goals from the notes.
type AnalyzeContext struct {
	Model Model
}

func (AnalyzeContext) Name() string { return capability.ToolAnalyzeContext }

func (t AnalyzeContext) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		LinkedInURL     string `json:"linkedinUrl"`
		AdditionalNotes string `json:"additionalNotes"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(in.AdditionalNotes)
	if notes == "" {
		notes = "No specific notes provided"
	}
	prompt := fmt.Sprintf(`Analyze the following meeting context and provide structured insights:

LinkedIn Profile: %s
Meeting Notes: %s

Please analyze:
1. What type of meeting is this? Consider the language used and implied purpose.
2. How formal or casual should the interaction be?
3. What are the likely goals or objectives?
4. What conversational tone would be most appropriate?
5. What topics or areas should be emphasized?

If the notes are vague or minimal, make reasonable inferences based on common professional meeting scenarios.

Respond with a JSON object with the fields meetingType (one of %s), formalityLevel (1 very casual to 5 very formal), primaryGoals, suggestedTone, focusAreas and contextSummary.`,
		in.LinkedInURL, notes, strings.Join(capability.MeetingTypes, ", "))

	maxTokens := t.Model.MaxTokens
	if maxTokens <= 0 || maxTokens > 500 {
		maxTokens = 500
	}
	resp, err := t.Model.chat(ctx, contextSystemPrompt, prompt, 0.3, maxTokens, true)
	if err != nil {
		return nil, fmt.Errorf("analyze meeting context: %w", err)
	}
	var mc MeetingContext
	if err := json.Unmarshal([]byte(stripFences(resp.Text)), &mc); err != nil {
		return nil, fmt.Errorf("analyze meeting context: decode model output: %w", err)
	}
	if err := mc.validate(); err != nil {
		return nil, err
	}
	return mc, nil
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
