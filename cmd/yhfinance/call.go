package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/yhfinance/internal/app"
	"github.com/MrWong99/yhfinance/internal/credential"
	"github.com/MrWong99/yhfinance/internal/mcp/tools"
	"github.com/MrWong99/yhfinance/internal/mcp/tools/yahoo"
)

func newCallCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <tool> [name=value...]",
		Short: "Invoke one tool and print its result",
		Long: "Invoke one tool outside MCP and print the text an MCP client would receive.\n\n" +
			"Example:\n  yhfinance call get_stock_history symbol=AAPL interval=1wk",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, st, args[0], args[1:])
		},
	}
	cmd.Flags().String("api-key", "", "RapidAPI key for this call, overriding RAPIDAPI_KEY")
	return cmd
}

func runCall(cmd *cobra.Command, st *state, name string, pairs []string) error {
	ep, ok := yahoo.Lookup(name)
	if !ok {
		if hint, found := tools.Closest(name, yahoo.Endpoints()); found {
			return exitError(exitInvalidArgs, "unknown tool %q; did you mean %q?", name, hint)
		}
		return exitError(exitInvalidArgs, "unknown tool %q; run 'yhfinance tools' for the list", name)
	}

	kv := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, found := strings.Cut(p, "=")
		if !found || strings.TrimSpace(k) == "" {
			return exitError(exitInvalidArgs, "argument %q is not name=value", p)
		}
		kv[strings.TrimSpace(k)] = v
	}
	args, err := tools.ParseArgs(ep, kv)
	if err != nil {
		return exitError(exitInvalidArgs, "%v", err)
	}

	ctx := cmd.Context()
	if key, _ := cmd.Flags().GetString("api-key"); key != "" {
		ctx = credential.WithSession(ctx, key)
	}

	opts := append([]app.Option{app.WithTelemetry(false), app.WithVersion(version)}, st.appOpts...)
	application, err := app.New(ctx, st.cfg, opts...)
	if err != nil {
		return exitError(exitFailure, "%v", err)
	}
	defer func() {
		if err := application.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	text, err := application.Invoker().Invoke(ctx, ep, args)
	if err != nil {
		if errors.Is(err, tools.ErrInvalidArgument) {
			return exitError(exitInvalidArgs, "%v", err)
		}
		return exitError(exitFailure, "%v", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), text)
	if text == ep.Fallback {
		return exitError(exitNoData, "%s returned no data", name)
	}
	return nil
}
