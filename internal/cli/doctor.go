package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/orchestrate/jarvis/internal/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check queue consistency",
	Long:  `Runs the read-only consistency audit and reports pass/fail for each check.`,
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	root, err := config.ResolveRoot(rootFlag)
	if err != nil {
		return err
	}
	app, err := openApp(cmd.Context(), root, true)
	if err != nil {
		return err
	}
	defer app.Close()

	rep, err := app.Auditor.Run(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	passed := 0
	failed := 0

	fmt.Fprintf(out, "Installation: %s\n", root)
	fmt.Fprintf(out, "  → backend: %s\n", app.Config.Store.Backend)
	fmt.Fprintf(out, "  → %d queued, %d in progress\n", rep.Queued, rep.InProgress)
	if rep.Marker != nil {
		fmt.Fprintf(out, "  → marker held by pid %d for %s\n", rep.Marker.PID, (time.Duration(rep.MarkerAgeSecs) * time.Second).String())
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Checks:")
	for _, c := range rep.Checks {
		if c.OK {
			fmt.Fprintf(out, "  ✓ %s\n", c.Name)
			passed++
			continue
		}
		detail := c.Fix
		if c.Detail != "" {
			detail = c.Detail + "; " + c.Fix
		}
		fmt.Fprintf(out, "  ✗ %s — %s\n", c.Name, detail)
		failed++
	}

	if len(rep.Recent) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Recent tasks:")
		for _, t := range rep.Recent {
			tokens := "no token data"
			if t.TokensInput != nil {
				tokens = fmt.Sprintf("%d input tokens", *t.TokensInput)
			}
			fmt.Fprintf(out, "  %s  %-6s  %s  %s\n", t.TaskID, t.Status, t.CompletedAt, tokens)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Results: %d passed, %d failed\n", passed, failed)

	return nil
}
