package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"quick-translate/internal/domain"
	"quick-translate/internal/history"
)

func newHistoryCommand(e *env) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent translations, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := history.Open(e.settings.History.Backend, e.dataDir)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			items, err := store.List(limit)
			if err != nil {
				return fmt.Errorf("load history: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			for _, item := range items {
				fmt.Fprintln(out, formatHistoryItem(item))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of items to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print items as JSON")

	return cmd
}

func formatHistoryItem(item domain.HistoryItem) string {
	from := lo.Ternary(item.From == "", domain.AutoDetect, item.From)
	when := time.UnixMilli(item.CreatedAt).Local().Format("2006-01-02 15:04")
	return fmt.Sprintf("%s  %s>%s  %s => %s", when, from, item.To, oneLine(item.Input), oneLine(item.Output))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
