package internal

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goplus/cpm/internal/build"
	"github.com/goplus/cpm/internal/config"
	"github.com/goplus/cpm/internal/ctxlog"
	"github.com/goplus/cpm/internal/metrics"
	"github.com/goplus/cpm/internal/toolchain"
)

var (
	buildOutput      string
	buildJobs        int
	buildToolchain   string
	buildCompiler    string
	buildDryRun      bool
	buildMetricsFile string
)

var buildCmd = &cobra.Command{
	Use:   "build [path]",
	Short: "Build a module and its dependencies",
	Long: `Build compiles the module in path (default: the current directory).
Dependencies are built first, each into a shared library in modules/lib.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	flags := buildCmd.Flags()
	flags.StringVarP(&buildOutput, "output", "o", "", "Output directory of the root artifact")
	flags.IntVarP(&buildJobs, "jobs", "j", 1, "Number of compiler invocations to run in parallel")
	flags.StringVar(&buildToolchain, "toolchain", "", "Compiler family: gcc, clang or msvc")
	flags.StringVar(&buildCompiler, "cc", "", "Compiler driver name or path")
	flags.BoolVar(&buildDryRun, "dry-run", false, "Print the compiler invocations without running them")
	flags.StringVar(&buildMetricsFile, "metrics-file", "", "Write Prometheus metrics to this file")
	rootCmd.AddCommand(buildCmd)
}

func moduleRoot(args []string) (string, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	return filepath.Abs(root)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	root, err := moduleRoot(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("jobs") {
		cfg.Jobs = buildJobs
	}
	if flags.Changed("toolchain") {
		cfg.Toolchain.Kind = buildToolchain
	}
	if flags.Changed("cc") {
		cfg.Toolchain.Compiler = buildCompiler
	}
	if buildOutput != "" {
		if cfg.OutDir, err = filepath.Abs(buildOutput); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	tc, err := cfg.ToolchainConfig()
	if err != nil {
		return err
	}

	id, err := toolchain.Detect(tc)
	if err != nil {
		if !buildDryRun || !errors.Is(err, toolchain.ErrNoCompiler) {
			return err
		}
		// nothing runs in a dry run; render for the default driver
		id = toolchain.Identity{Kind: toolchain.GCC, Path: "g++"}
		if tc.Kind != toolchain.Auto {
			id.Kind = tc.Kind
		}
	}
	ctxlog.FromContext(ctx).Debug("toolchain detected", ctxlog.Toolchain(id.String()))

	opts := build.Options{
		Toolchain: tc,
		Identity:  id,
		Jobs:      cfg.Jobs,
		OutDir:    cfg.OutDir,
		DryRun:    buildDryRun,
	}
	if buildDryRun {
		opts.Runner = &toolchain.Printer{W: cmd.OutOrStdout()}
	}
	var recorder *metrics.PrometheusRecorder
	if buildMetricsFile != "" {
		recorder = metrics.NewPrometheusRecorder(nil)
		opts.Recorder = recorder
	}

	res, err := build.NewBuilder(opts).Build(ctx, root)
	if recorder != nil {
		if werr := recorder.WriteTextfile(buildMetricsFile); werr != nil {
			ctxlog.FromContext(ctx).Warn("failed to write metrics", ctxlog.Error(werr))
		}
	}
	if err != nil {
		return err
	}
	if !buildDryRun {
		fmt.Fprintln(cmd.OutOrStdout(), res.Artifact)
	}
	return nil
}
