package internal

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goplus/cpm/internal/build"
)

var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Print the build order of a module",
	Long: `Graph loads the manifests of a module and its dependencies and prints
one line per module in build order: name, module type and direct
dependencies.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func init() {
	rootCmd.AddCommand(graphCmd)
}

func runGraph(cmd *cobra.Command, args []string) error {
	root, err := moduleRoot(args)
	if err != nil {
		return err
	}
	plan, err := build.NewBuilder(build.Options{DryRun: true}).Plan(cmd.Context(), root)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for _, u := range plan.Order {
		deps := make([]string, len(u.Deps))
		for i, d := range u.Deps {
			deps[i] = d.Name
		}
		line := fmt.Sprintf("%s (%s)", u.Name, u.Kind())
		if len(deps) > 0 {
			line += ": " + strings.Join(deps, " ")
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
