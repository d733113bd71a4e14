package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
	"github.com/yhlin07/when2meet-mcp-2025/internal/runtime"
)

func prepareCMD(cfgPath *string) *cobra.Command {
	var linkedin, notes, notesFile string
	var quiet bool
	var prepare = &cobra.Command{
		Use:   "prepare",
		Short: "Prepare one dossier and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if notesFile != "" {
				b, err := readNotes(notesFile)
				if err != nil {
					return err
				}
				notes = string(b)
			}
			a, err := newApp(cmd.Context(), *cfgPath, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			req, err := a.agent.Normalize(core.SeedRequest{LinkedInURL: linkedin, Notes: notes})
			if err != nil {
				return err
			}
			var obs core.Observer
			if !quiet {
				obs = progressPrinter(cmd.ErrOrStderr())
			}
			res := a.agent.Prepare(cmd.Context(), req, obs)
			if res.Outcome != core.OutcomeSuccess || res.Dossier == nil {
				return errors.New(runtime.ErrorMessage(res))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res.Dossier)
		},
	}
	prepare.Flags().StringVar(&linkedin, "linkedin", "", "LinkedIn profile URL")
	prepare.Flags().StringVar(&notes, "notes", "", "additional meeting notes")
	prepare.Flags().StringVar(&notesFile, "notes-file", "", "read notes from a file (- for stdin)")
	prepare.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	_ = prepare.MarkFlagRequired("linkedin")
	prepare.MarkFlagsMutuallyExclusive("notes", "notes-file")
	return prepare
}

func readNotes(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read notes: %w", err)
	}
	return b, nil
}

func progressPrinter(w io.Writer) core.Observer {
	return core.ObserverFunc(func(ev core.Event) {
		switch ev.Kind {
		case core.EventToolStarted:
			fmt.Fprintf(w, "... %s\n", ev.Tool)
		case core.EventToolFailed:
			fmt.Fprintf(w, "!!! %s failed: %s\n", ev.Tool, ev.Err)
		case core.EventPartialOpener:
			fmt.Fprintf(w, "opener: %s\n", ev.Text)
		case core.EventPartialQuestion:
			fmt.Fprintf(w, "q%d: %s\n", ev.Index+1, ev.Text)
		}
	})
}
