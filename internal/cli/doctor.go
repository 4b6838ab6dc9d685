package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quick-translate/internal/diagnostics"
)

func newDoctorCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the engine, clipboard, and data directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := diagnostics.NewChecker(e.dataDir).Run(cmd.Context(), e.settings)

			out := cmd.OutOrStdout()
			for _, item := range report.Items {
				fmt.Fprintf(out, "[%s] %s: %s\n", strings.ToUpper(string(item.Status)), item.Name, item.Message)
				if item.Hint != "" {
					fmt.Fprintf(out, "       %s\n", item.Hint)
				}
			}
			if report.HasFailures {
				return errors.New("some checks failed")
			}
			return nil
		},
	}
}
