package capability

import (
	"errors"
	"testing"
)

func minimalSchema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}

func mustSign(t *testing.T, tc ToolCard, secret string) ToolCard {
	t.Helper()
	if tc.InputSchema == nil {
		tc.InputSchema = minimalSchema()
	}
	sealed, err := Seal(tc, secret)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return sealed
}

func TestNewRegistryRejectsInvalidSignature(t *testing.T) {
	secret := "top-secret"
	tc := mustSign(t, ToolCard{Name: "research", Version: "v1"}, secret)
	tc.Signature = "deadbeef"

	if _, err := NewRegistry([]ToolCard{tc}, secret, []string{"research"}); err == nil {
		t.Fatalf("expected signature validation to fail")
	}
}

func TestNewRegistrySkipsSignatureWithoutSecret(t *testing.T) {
	tc := ToolCard{Name: "research", Version: "v1", InputSchema: minimalSchema()}
	if _, err := NewRegistry([]ToolCard{tc}, "", []string{"research"}); err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
}

func TestNewRegistryEnforcesRequiredTools(t *testing.T) {
	secret := "top-secret"
	research := mustSign(t, ToolCard{Name: ToolResearch, Version: "v1"}, secret)

	_, err := NewRegistry([]ToolCard{research}, secret, nil)
	if !errors.Is(err, ErrToolMissing) {
		t.Fatalf("expected ErrToolMissing, got %v", err)
	}
}

func TestNewRegistryPrefersLatestVersion(t *testing.T) {
	secret := "top-secret"
	old := mustSign(t, ToolCard{Name: "research", Version: "v1.9"}, secret)
	newer := mustSign(t, ToolCard{Name: "research", Version: "v1.10"}, secret)

	reg, err := NewRegistry([]ToolCard{newer, old}, secret, []string{"research"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	tool, ok := reg.Tool("research")
	if !ok {
		t.Fatalf("expected research tool to exist")
	}
	if tool.Version != "v1.10" {
		t.Fatalf("expected latest version, got %s", tool.Version)
	}
}

func TestValidateToolCard(t *testing.T) {
	if err := ValidateToolCard(ToolCard{Name: "x", Version: "v1", InputSchema: minimalSchema()}); err != nil {
		t.Fatalf("expected valid tool card, got %v", err)
	}
	if err := ValidateToolCard(ToolCard{Version: "v1", InputSchema: minimalSchema()}); err == nil {
		t.Fatalf("expected validation failure for missing name")
	}
	if err := ValidateToolCard(ToolCard{Name: "x", Version: "v1", InputSchema: map[string]interface{}{"type": 123}}); err == nil {
		t.Fatalf("expected validation failure for invalid schema type")
	}
}

func TestDefaultToolCardsFormRegistry(t *testing.T) {
	secret := "s"
	var cards []ToolCard
	for _, tc := range DefaultToolCards() {
		cards = append(cards, mustSign(t, tc, secret))
	}
	reg, err := NewRegistry(cards, secret, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	listed := reg.Cards()
	if len(listed) != 6 {
		t.Fatalf("expected 6 cards, got %d", len(listed))
	}
	for i := 1; i < len(listed); i++ {
		if listed[i-1].Name > listed[i].Name {
			t.Fatalf("cards not sorted: %s before %s", listed[i-1].Name, listed[i].Name)
		}
	}
	ret, _ := reg.Tool(ToolReturnDossier)
	if _, ok := ret.InputSchema["$schema"]; ok {
		t.Fatalf("completion tool schema must not carry $schema")
	}
}
