package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goplus/cpm/internal/publish"
)

var publishCmd = &cobra.Command{
	Use:   "publish [path]",
	Short: "List the files of a module that would be published",
	Long: `Publish walks path (default: the current directory) and prints every
file not excluded by .gitignore, .ignore or .cpmignore. Hidden files are
skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	files, err := publish.List(root)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintln(cmd.OutOrStdout(), f)
	}
	return nil
}
