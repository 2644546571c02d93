// Command yhfinance serves the Yahoo Finance RapidAPI as MCP tools.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/yhfinance/internal/app"
	"github.com/MrWong99/yhfinance/internal/config"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// state holds what every subcommand shares once the root pre-run has
// loaded the configuration.
type state struct {
	cfgPath string
	cfg     *config.Config
	level   *slog.LevelVar

	// appOpts are appended to every app.New call.
	appOpts []app.Option
}

// newRootCmd builds the command tree. extra options reach every app.New
// call; tests use them to inject an HTTP client.
func newRootCmd(extra ...app.Option) *cobra.Command {
	st := &state{level: new(slog.LevelVar), appOpts: extra}

	root := &cobra.Command{
		Use:   "yhfinance",
		Short: "Yahoo Finance MCP server",
		Long: "yhfinance exposes the Yahoo Finance API on RapidAPI as Model Context Protocol tools.\n\n" +
			"The RapidAPI key is read from RAPIDAPI_KEY (a .env file is loaded if present)\n" +
			"or from upstream.api_key in the config file.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return st.load(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&st.cfgPath, "config", "c", "", "Path to the YAML configuration file")
	root.PersistentFlags().StringArray("env-file", nil, "Dotenv file to load (repeatable, default .env)")
	root.PersistentFlags().String("log-level", "", "Override server.log_level (debug, info, warn, error)")

	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("yhfinance version %s\n", version))

	root.AddCommand(newServeCmd(st))
	root.AddCommand(newToolsCmd(st))
	root.AddCommand(newCallCmd(st))
	return root
}

// load reads dotenv files and the config file, overlays the environment and
// installs the logger.
func (st *state) load(cmd *cobra.Command) error {
	envFiles, _ := cmd.Flags().GetStringArray("env-file")
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return exitError(exitConfig, "%v", err)
	}

	cfg, err := config.Load(st.cfgPath)
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}
	config.ApplyEnv(cfg, os.LookupEnv)

	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Server.LogLevel = config.LogLevel(lvl)
		if err := config.Validate(cfg); err != nil {
			return exitError(exitConfig, "%v", err)
		}
	}
	st.cfg = cfg

	st.level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), st.level))
	return nil
}

// newLogger writes text logs to w; stdout stays reserved for the stdio
// transport.
func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
