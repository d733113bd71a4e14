package tools

import (
	"context"
	"encoding/json"

	"github.com/yhlin07/when2meet-mcp-2025/internal/capability"
	"github.com/yhlin07/when2meet-mcp-2025/internal/dossier"
)

// ReturnDossier is the completion tool: a successful call ends the run.
type ReturnDossier struct{}

func (ReturnDossier) Name() string { return capability.ToolReturnDossier }

func (ReturnDossier) Invoke(_ context.Context, args json.RawMessage) (any, error) {
	d, err := dossier.Validate(args)
	if err != nil {
		return nil, err
	}
	return d.Complete(), nil
}
