package stream

import (
	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
	"github.com/yhlin07/when2meet-mcp-2025/internal/capability"
)

const (
	MsgResearching = "🔍 Researching LinkedIn profile and background..."
	MsgResearched  = "✅ Research complete! Analyzing findings..."
	MsgAnalyzing   = "🧭 Reading the meeting context..."
	MsgSearching   = "🌐 Searching the web for recent mentions..."
	MsgFetching    = "📄 Reading a source page..."
	MsgGenerating  = "✨ Generating personalized meeting dossier..."
	MsgReady       = "🎉 Meeting dossier ready!"
	MsgRetrying    = "⚠️ A step failed, adjusting the plan..."
)

var startMessages = map[string]string{
	capability.ToolResearch:        MsgResearching,
	capability.ToolAnalyzeContext:  MsgAnalyzing,
	capability.ToolWebSearch:       MsgSearching,
	capability.ToolFetchPage:       MsgFetching,
	capability.ToolGenerateDossier: MsgGenerating,
}

// progressTracker turns tool lifecycle events into status lines. Only
// touched from the run goroutine.
type progressTracker struct {
	ready bool
}

func newProgressTracker() *progressTracker { return &progressTracker{} }

func (p *progressTracker) message(ev core.Event) string {
	switch ev.Kind {
	case core.EventToolStarted:
		return startMessages[ev.Tool]
	case core.EventToolFinished:
		switch ev.Tool {
		case capability.ToolResearch:
			return MsgResearched
		case capability.ToolGenerateDossier, capability.ToolReturnDossier:
			if p.ready {
				return ""
			}
			p.ready = true
			return MsgReady
		}
	case core.EventToolFailed:
		return MsgRetrying
	}
	return ""
}
