// Package cli implements the qt command line front end over the same session
// the desktop app uses.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quick-translate/internal/config"
	"quick-translate/internal/domain"
	"quick-translate/internal/engine"
	"quick-translate/internal/jobs"
	"quick-translate/internal/logging"
)

const cliExecutable = "qt"

// GatewayFactory builds the engine gateway for one command run.
type GatewayFactory func(pub engine.Publisher, settings engine.SettingsSource, logger zerolog.Logger) jobs.Gateway

// env is the state prepared by the root command for every subcommand.
type env struct {
	dataDir    string
	store      config.Store
	overrides  config.Overrides
	settings   domain.Settings
	log        zerolog.Logger
	newGateway GatewayFactory
}

// Current returns the effective settings for this run.
func (e *env) Current() domain.Settings {
	return e.settings
}

// NewCommand constructs the top-level qt command using the plamo-translate engine.
func NewCommand() *cobra.Command {
	return newCommand(func(pub engine.Publisher, settings engine.SettingsSource, logger zerolog.Logger) jobs.Gateway {
		return engine.NewGateway(pub, settings, logger)
	})
}

func newCommand(newGateway GatewayFactory) *cobra.Command {
	e := &env{newGateway: newGateway}

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Translate text with a local plamo-translate engine",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			overrides, err := config.LoadOverrides(cmd.Flags())
			if err != nil {
				return err
			}
			e.overrides = overrides

			logging.Setup(logging.Options{
				Level:  overrides.LogLevel("warn"),
				Format: logging.FormatConsole,
				Output: cmd.ErrOrStderr(),
			})
			e.log = logging.Component("cli")

			if e.dataDir == "" {
				e.dataDir = config.DataDir()
			}
			if err := os.MkdirAll(e.dataDir, 0o755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}

			e.store = config.NewJSONStore(filepath.Join(e.dataDir, "settings.json"))
			settings, err := e.store.Load()
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			e.settings = overrides.Apply(settings)

			e.log.Debug().Str("dataDir", e.dataDir).Str("history", string(e.settings.History.Backend)).Msg("settings ready")
			return nil
		},
	}

	cmd.SilenceUsage = true

	flags := cmd.PersistentFlags()
	flags.StringVar(&e.dataDir, "data-dir", "", "Directory holding settings and history (default ~/.quick-translate)")
	flags.String("bin", "", "Path to the plamo-translate executable")
	flags.String("precision", "", "Model precision passed to the engine")
	flags.String("timeout", "", "Engine timeout as a duration or milliseconds")
	flags.String("style", "", "Style preset")
	flags.String("glossary", "", "Glossary file path")
	flags.String("paste", "", "Completion mode: popup or clipboard")
	flags.Bool("copy", false, "Copy the translation to the clipboard when done")
	flags.String("history", "", "History backend: jsonl or sqlite")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newTranslateCommand(e))
	cmd.AddCommand(newQuickCommand(e))
	cmd.AddCommand(newHistoryCommand(e))
	cmd.AddCommand(newDoctorCommand(e))

	return cmd
}
