// File: cmd/resolve_window.go
package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/identity"
)

func newResolveWindowCmd() *cobra.Command {
	var windowsPath string

	resolveCmd := &cobra.Command{
		Use:   "resolve-window <app_name>",
		Short: "Find the live window an application name refers to",
		Long: `Looks up an application by name in a window snapshot. A single match is
printed; several matches are reported as an ambiguity listing every
candidate, since picking one silently could act on the wrong window.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if windowsPath == "" {
				return fmt.Errorf("--windows is required")
			}
			var snapshot []schemas.WindowSnapshot
			if err := readJSONFile(windowsPath, &snapshot); err != nil {
				return err
			}

			appName := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			matches, err := identity.FindWindows(cmd.Context(), identity.NewStaticSource(snapshot...), appName)

			var ambiguity *identity.AmbiguityError
			switch {
			case err == nil:
				fmt.Fprintf(out, "%s -> %s\n", appName, formatWindow(matches[0]))
				return nil
			case errors.As(err, &ambiguity):
				fmt.Fprintf(out, "%q is ambiguous; %d windows match:\n", appName, len(ambiguity.Candidates))
				for _, w := range ambiguity.Candidates {
					fmt.Fprintf(out, "  %s\n", formatWindow(w))
				}
				return nil
			default:
				return err
			}
		},
	}

	resolveCmd.Flags().StringVar(&windowsPath, "windows", "", "JSON file listing live windows")
	return resolveCmd
}

func formatWindow(w schemas.WindowSnapshot) string {
	title := w.Title
	if title == "" {
		title = "untitled window"
	}
	return fmt.Sprintf("[%d] %s (%s, pid %d)", w.ID, title, w.ProcessName, w.ProcessID)
}
