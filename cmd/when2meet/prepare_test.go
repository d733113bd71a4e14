package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
)

func TestReadNotesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("coffee chat"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := readNotes(path)
	if err != nil || string(b) != "coffee chat" {
		t.Fatalf("readNotes = %q, %v", b, err)
	}
	if _, err := readNotes(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	obs := progressPrinter(&buf)
	obs.Observe(core.Event{Kind: core.EventToolStarted, Tool: "research"})
	obs.Observe(core.Event{Kind: core.EventToolFinished, Tool: "research"})
	obs.Observe(core.Event{Kind: core.EventToolFailed, Tool: "generate_dossier", Err: "bad json"})
	obs.Observe(core.Event{Kind: core.EventPartialQuestion, Index: 2, Text: "Why?"})

	want := "... research\n!!! generate_dossier failed: bad json\nq3: Why?\n"
	if got := buf.String(); got != want {
		t.Fatalf("unexpected output:\n%s", got)
	}
	if strings.Contains(buf.String(), "finished") {
		t.Fatalf("finished events are not printed")
	}
}

func TestCommandsRegistered(t *testing.T) {
	var cfg string
	cmd := prepareCMD(&cfg)
	if cmd.Flags().Lookup("linkedin") == nil || cmd.Flags().Lookup("notes-file") == nil {
		t.Fatalf("prepare flags missing")
	}
	if serveCMD(&cfg).Flags().Lookup("addr") == nil {
		t.Fatalf("serve --addr missing")
	}
	if mcpCMD(&cfg).Use != "mcp" {
		t.Fatalf("unexpected mcp command")
	}
}
