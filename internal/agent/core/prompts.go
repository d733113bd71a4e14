package core

import (
	"fmt"
	"strings"
)

const orchestratorSystemPrompt = `You are an AI orchestrator that prepares meeting dossiers by coordinating research and summary generation.

Your workflow:
1. Use the research tool to research the LinkedIn profile and the person's background
2. Optionally use analyze_meeting_context to understand the meeting type, tone and goals from the notes
3. Use generate_dossier to turn the research into a structured meeting dossier
4. Call return_meeting_dossier exactly once with the final dossier

Always research before generating. If a tool returns an error, read it, correct your arguments and try again.
If return_meeting_dossier rejects the dossier, fix the reported problems and call it again.
Be thorough in your research but efficient in your orchestration.`

// SeedPrompt renders the opening user turn for a run.
func SeedPrompt(req SeedRequest) string {
	notes := "No additional notes provided."
	if n := strings.TrimSpace(req.Notes); n != "" {
		notes = "Additional Notes: " + n
	}
	return fmt.Sprintf(`Please prepare a meeting dossier for this person:

LinkedIn Profile: %s
%s

Please use your tools to:
1. Research their LinkedIn profile, recent activities, company information, and industry context
2. Generate a structured meeting dossier with personalized conversation starters

Make sure to research thoroughly before generating the final dossier.`, req.LinkedInURL, notes)
}
