package capability

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ToolCard represents registry metadata for a tool exposed to the model.
type ToolCard struct {
	Name         string                 `json:"name"`
	Version      string                 `json:"version"`
	Description  string                 `json:"description"`
	InputSchema  map[string]interface{} `json:"input_schema"`
	OutputSchema map[string]interface{} `json:"output_schema,omitempty"`
	SideEffects  []string               `json:"side_effects,omitempty"`
	Checksum     string                 `json:"checksum,omitempty"`
	Signature    string                 `json:"signature,omitempty"`
}

// Registry holds validated ToolCards keyed by tool name.
type Registry struct {
	tools map[string]ToolCard
}

// ErrToolMissing indicates a required tool is not registered.
var ErrToolMissing = fmt.Errorf("required tool missing")

// DefaultRequired are the tools a run cannot complete without.
var DefaultRequired = []string{ToolResearch, ToolGenerateDossier, ToolReturnDossier}

// NewRegistry validates ToolCards and ensures required tools exist.
func NewRegistry(cards []ToolCard, signingSecret string, required []string) (*Registry, error) {
	reg := &Registry{tools: make(map[string]ToolCard)}
	for _, tc := range cards {
		if err := ValidateToolCard(tc); err != nil {
			return nil, err
		}
		if err := validateSignature(tc, signingSecret); err != nil {
			return nil, fmt.Errorf("tool %s@%s signature invalid: %w", tc.Name, tc.Version, err)
		}
		existing, ok := reg.tools[tc.Name]
		if !ok || versionGreater(tc.Version, existing.Version) {
			reg.tools[tc.Name] = tc
		}
	}
	if len(required) == 0 {
		required = DefaultRequired
	}
	for _, r := range required {
		if _, ok := reg.tools[r]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrToolMissing, r)
		}
	}
	return reg, nil
}

// Tool returns the ToolCard for a tool name.
func (r *Registry) Tool(name string) (ToolCard, bool) {
	if r == nil {
		return ToolCard{}, false
	}
	tc, ok := r.tools[name]
	return tc, ok
}

// Cards lists every card sorted by name.
func (r *Registry) Cards() []ToolCard {
	if r == nil {
		return nil
	}
	out := make([]ToolCard, 0, len(r.tools))
	for _, tc := range r.tools {
		out = append(out, tc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidateToolCard checks the fields a card needs before it can be offered
// to the model.
func ValidateToolCard(tc ToolCard) error {
	if strings.TrimSpace(tc.Name) == "" {
		return fmt.Errorf("tool card name is required")
	}
	if strings.TrimSpace(tc.Version) == "" {
		return fmt.Errorf("tool card %s: version is required", tc.Name)
	}
	if tc.InputSchema == nil {
		return fmt.Errorf("tool card %s: input schema is required", tc.Name)
	}
	if t, ok := tc.InputSchema["type"]; ok {
		if s, isStr := t.(string); !isStr || s != "object" {
			return fmt.Errorf("tool card %s: input schema type must be \"object\"", tc.Name)
		}
	}
	return nil
}

// ComputeChecksum returns a deterministic hash of the ToolCard payload (excluding signature field).
func ComputeChecksum(tc ToolCard) (string, error) {
	payload := map[string]interface{}{
		"name":          tc.Name,
		"version":       tc.Version,
		"description":   tc.Description,
		"input_schema":  tc.InputSchema,
		"output_schema": tc.OutputSchema,
		"side_effects":  tc.SideEffects,
	}
	normalized, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:]), nil
}

// SignToolCard computes an HMAC signature using the signing secret.
func SignToolCard(tc ToolCard, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret is empty")
	}
	checksum, err := ComputeChecksum(tc)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(checksum))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Seal fills Checksum and, when a secret is given, Signature.
func Seal(tc ToolCard, secret string) (ToolCard, error) {
	checksum, err := ComputeChecksum(tc)
	if err != nil {
		return ToolCard{}, err
	}
	tc.Checksum = checksum
	if secret == "" {
		return tc, nil
	}
	sig, err := SignToolCard(tc, secret)
	if err != nil {
		return ToolCard{}, err
	}
	tc.Signature = sig
	return tc, nil
}

func validateSignature(tc ToolCard, secret string) error {
	if secret == "" {
		return nil
	}
	expected, err := SignToolCard(tc, secret)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(tc.Signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func versionGreater(a, b string) bool {
	if a == b {
		return false
	}
	return compareVersions(splitVersion(a), splitVersion(b)) > 0
}

func splitVersion(v string) []int {
	parts := strings.Split(strings.TrimPrefix(v, "v"), ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		fmt.Sscanf(p, "%d", &out[i])
	}
	return out
}

func compareVersions(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai, bi := 0, 0
		if i < len(a) {
			ai = a[i]
		}
		if i < len(b) {
			bi = b[i]
		}
		if ai > bi {
			return 1
		}
		if ai < bi {
			return -1
		}
	}
	return 0
}
