package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/yhfinance/internal/app"
	"github.com/MrWong99/yhfinance/internal/config"
)

func newServeCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: "Run the MCP server over stdio (default) or streamable HTTP.\n\n" +
			"With --config, the file is watched: log_level and tools.disabled are applied live.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, st)
		},
	}
	cmd.Flags().String("transport", "", "Override server.transport (stdio, streamable-http)")
	cmd.Flags().String("listen", "", "Override server.listen_addr")
	cmd.Flags().Bool("stateless", false, "Serve streamable HTTP without sessions")
	return cmd
}

func runServe(cmd *cobra.Command, st *state) error {
	cfg := st.cfg
	if v, _ := cmd.Flags().GetString("transport"); v != "" {
		cfg.Server.Transport = config.Transport(v)
	}
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if cmd.Flags().Changed("stateless") {
		cfg.Server.Stateless, _ = cmd.Flags().GetBool("stateless")
	}
	if err := config.Validate(cfg); err != nil {
		return exitError(exitConfig, "%v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("yhfinance starting",
		"version", version,
		"config", st.cfgPath,
		"transport", cfg.Server.Transport,
		"log_level", cfg.Server.LogLevel,
	)

	opts := []app.Option{
		app.WithVersion(version),
		app.WithLevelVar(st.level),
		app.WithConfigPath(st.cfgPath),
		app.WithEnv(os.LookupEnv),
	}
	application, err := app.New(ctx, cfg, append(opts, st.appOpts...)...)
	if err != nil {
		return exitError(exitFailure, "%v", err)
	}

	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return exitError(exitFailure, "%v", runErr)
	}
	slog.Info("goodbye")
	return nil
}
