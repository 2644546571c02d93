package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/yhfinance/internal/mcp/tools"
	"github.com/MrWong99/yhfinance/internal/mcp/tools/yahoo"
)

func newToolsCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools [name...]",
		Short: "List the available tools",
		Long:  "List every tool in the catalogue, or only the named ones. Tools disabled in the config are marked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTools(cmd, st, args)
		},
	}
	cmd.Flags().Bool("schema", false, "Print each tool's input schema as JSON")
	return cmd
}

func runTools(cmd *cobra.Command, st *state, names []string) error {
	showSchema, _ := cmd.Flags().GetBool("schema")
	out := cmd.OutOrStdout()

	eps := yahoo.Endpoints()
	for _, n := range names {
		if _, ok := yahoo.Lookup(n); !ok {
			if hint, found := tools.Closest(n, eps); found {
				return exitError(exitInvalidArgs, "unknown tool %q; did you mean %q?", n, hint)
			}
			return exitError(exitInvalidArgs, "unknown tool %q", n)
		}
	}

	if showSchema {
		schemas := make(map[string]any, len(eps))
		for _, ep := range eps {
			if len(names) == 0 || slices.Contains(names, ep.Name) {
				schemas[ep.Name] = ep.InputSchema()
			}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "    ")
		return enc.Encode(schemas)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPAGED\tDESCRIPTION")
	for _, ep := range eps {
		if len(names) > 0 && !slices.Contains(names, ep.Name) {
			continue
		}
		name := ep.Name
		if slices.Contains(st.cfg.Tools.Disabled, ep.Name) {
			name += " (disabled)"
		}
		paged := "no"
		if ep.Pageable() {
			paged = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, paged, ep.Description)
	}
	return tw.Flush()
}
