// Package build walks the dependency graph of a module and compiles every
// module in it, dependencies first.
//
// Directory layout of a build:
//
//	root/
//	  module.toml
//	  <name>              # root executable, or Options.OutDir/<name>
//	  modules/
//	    <dep>/module.toml
//	    lib/
//	      lib<dep>.so     # one shared library per dependency
//	      lib<dep>.so.lock
package build

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/goplus/cpm/internal/ctxlog"
	"github.com/goplus/cpm/internal/lockedfile"
	"github.com/goplus/cpm/internal/metrics"
	"github.com/goplus/cpm/internal/modules"
	"github.com/goplus/cpm/internal/toolchain"
	"github.com/goplus/cpm/pkgs/buildsys"
	"github.com/goplus/cpm/pkgs/manifest"
)

// Options configures a Builder.
type Options struct {
	// Toolchain carries the optimization level and target applied to every
	// invocation.
	Toolchain toolchain.Config
	// Identity is the compiler used for every invocation.
	Identity toolchain.Identity
	// Runner runs the rendered invocations. Defaults to an Invoker built
	// from Toolchain.
	Runner toolchain.Runner
	// Recorder receives build metrics. Defaults to metrics.NoopRecorder.
	Recorder metrics.Recorder
	// Jobs bounds the number of concurrent invocations; 0 or 1 builds
	// sequentially.
	Jobs int
	// OutDir receives the root artifact. Defaults to the root directory;
	// a relative path is taken relative to it.
	OutDir string
	// DryRun renders the invocations without running them or touching the
	// file system.
	DryRun bool
}

// Builder builds a module and its dependencies.
type Builder struct {
	toolchain toolchain.Config
	id        toolchain.Identity
	dialect   buildsys.Dialect
	runner    toolchain.Runner
	recorder  metrics.Recorder
	jobs      int
	outDir    string
	dryRun    bool
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	b := &Builder{
		toolchain: opts.Toolchain,
		id:        opts.Identity,
		dialect:   toolchain.Dialect(opts.Identity),
		runner:    opts.Runner,
		recorder:  opts.Recorder,
		jobs:      opts.Jobs,
		outDir:    opts.OutDir,
		dryRun:    opts.DryRun,
	}
	switch {
	case b.runner != nil:
	case b.dryRun:
		b.runner = &toolchain.Printer{W: os.Stdout}
	default:
		b.runner = toolchain.NewInvoker(opts.Toolchain)
	}
	if b.recorder == nil {
		b.recorder = metrics.NoopRecorder{}
	}
	return b
}

// UnitResult describes one compiled unit.
type UnitResult struct {
	Module   string
	Dir      string
	Kind     manifest.ModuleType
	Artifact string
	Args     []string
}

// Result is the outcome of a successful build.
type Result struct {
	BuildID  string
	Root     string // root module directory
	Artifact string // root artifact
	// Units lists the compiled units in the order they completed.
	Units []UnitResult
}

// Plan loads the module at root and every module it depends on and
// returns the build graph without compiling anything.
func (b *Builder) Plan(ctx context.Context, root string) (*Plan, error) {
	layout, err := modules.NewLayout(root)
	if err != nil {
		return nil, err
	}
	return newPlanner(ctx, layout).plan()
}

// Build builds the module at root. Every dependency is built into a shared
// library in root/modules/lib before any module linking against it; the
// first failure aborts the build.
func (b *Builder) Build(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	buildID := uuid.NewString()
	ctx = ctxlog.With(ctx, ctxlog.BuildID(buildID))
	logger := ctxlog.FromContext(ctx)

	res, err := b.build(ctx, root)
	if res != nil {
		res.BuildID = buildID
	}

	elapsed := time.Since(start)
	b.recorder.ObserveBuildDuration(elapsed)
	switch {
	case err != nil:
		b.recorder.IncBuildOutcome(metrics.ResultFailed)
		logger.Debug("build failed", ctxlog.Duration(elapsed), ctxlog.Error(err))
	case b.dryRun:
		b.recorder.IncBuildOutcome(metrics.ResultSkipped)
	default:
		b.recorder.IncBuildOutcome(metrics.ResultSuccess)
		logger.Info("build finished", ctxlog.Artifact(res.Artifact), ctxlog.Duration(elapsed))
	}
	return res, err
}

func (b *Builder) build(ctx context.Context, root string) (*Result, error) {
	layout, err := modules.NewLayout(root)
	if err != nil {
		return nil, err
	}
	plan, err := newPlanner(ctx, layout).plan()
	if err != nil {
		return nil, err
	}
	b.recorder.SetGraphSize(len(plan.Order))
	ctxlog.FromContext(ctx).Debug("build planned",
		ctxlog.Module(plan.Root.Name), slog.Int("modules", len(plan.Order)), ctxlog.Toolchain(b.id.String()))

	e := &executor{Builder: b, layout: layout}
	if b.jobs <= 1 {
		err = e.runSequential(ctx, plan)
	} else {
		err = e.runParallel(ctx, plan)
	}
	if err != nil {
		return nil, err
	}
	return &Result{
		Root:     layout.Root,
		Artifact: e.artifact(plan.Root),
		Units:    e.results,
	}, nil
}

type executor struct {
	*Builder
	layout modules.Layout

	mu      sync.Mutex
	results []UnitResult
}

func (e *executor) runSequential(ctx context.Context, plan *Plan) error {
	for _, u := range plan.Order {
		if err := e.compile(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// runParallel starts one goroutine per unit. A unit waits until each of its
// dependencies is done, then competes for one of the jobs slots.
func (e *executor) runParallel(ctx context.Context, plan *Plan) error {
	g, ctx := errgroup.WithContext(ctx)
	slots := semaphore.NewWeighted(int64(e.jobs))
	for _, u := range plan.Order {
		g.Go(func() error {
			defer close(u.done)
			for _, dep := range u.Deps {
				select {
				case <-dep.done:
				case <-ctx.Done():
					return u.fail(ctx.Err())
				}
				if dep.State() != Done {
					return u.fail(dep.Err())
				}
			}
			if err := slots.Acquire(ctx, 1); err != nil {
				return u.fail(err)
			}
			defer slots.Release(1)
			return e.compile(ctx, u)
		})
	}
	return g.Wait()
}

// compile composes, renders and runs the invocation of u.
func (e *executor) compile(ctx context.Context, u *Unit) error {
	u.state = Compiling
	kind := u.Kind().String()
	logger := ctxlog.FromContext(ctx).With(ctxlog.Module(u.Name), ctxlog.Kind(kind))

	artifact := e.artifact(u)
	opts, err := e.options(u, artifact)
	if err != nil {
		return u.fail(&BuildError{Module: u.Name, Dir: u.Dir(), Err: err})
	}
	args := e.dialect.Render(opts)

	if e.dryRun {
		logger.Debug("dry run", ctxlog.Command(toolchain.CommandLine(e.id, args)))
		if err := e.runner.Run(ctx, u.Dir(), args, e.id); err != nil {
			return u.fail(&BuildError{Module: u.Name, Dir: u.Dir(), Err: err})
		}
		e.recorder.IncUnitResult(kind, metrics.ResultSkipped)
		return e.finish(u, artifact, args)
	}

	unlock, err := e.prepare(artifact)
	if err != nil {
		e.recorder.IncUnitResult(kind, metrics.ResultFailed)
		return u.fail(&BuildError{Module: u.Name, Dir: u.Dir(), Err: err})
	}
	defer unlock()

	logger.Info("compiling", ctxlog.Artifact(artifact))
	logger.Debug("invoking compiler", ctxlog.Command(toolchain.CommandLine(e.id, args)))
	start := time.Now()
	err = e.runner.Run(ctx, u.Dir(), args, e.id)
	e.recorder.ObserveUnitDuration(kind, time.Since(start))
	if err != nil {
		e.recorder.IncUnitResult(kind, metrics.ResultFailed)
		return u.fail(&BuildError{Module: u.Name, Dir: u.Dir(), Err: err})
	}
	e.recorder.IncUnitResult(kind, metrics.ResultSuccess)
	logger.Debug("compiled", ctxlog.Artifact(artifact), ctxlog.Duration(time.Since(start)))
	return e.finish(u, artifact, args)
}

func (e *executor) finish(u *Unit, artifact string, args []string) error {
	u.state = Done
	e.mu.Lock()
	e.results = append(e.results, UnitResult{
		Module:   u.Name,
		Dir:      u.Dir(),
		Kind:     u.Kind(),
		Artifact: artifact,
		Args:     args,
	})
	e.mu.Unlock()
	return nil
}

// prepare creates the directory of artifact and locks it against other
// processes writing the same file.
func (e *executor) prepare(artifact string) (unlock func(), err error) {
	dir := filepath.Dir(artifact)
	if dir == e.layout.LibDir() {
		err = e.layout.EnsureLibDir()
	} else {
		err = os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return nil, &FileSystemError{Op: "mkdir", Path: dir, Err: unwrapPath(err)}
	}
	unlock, err = lockedfile.MutexAt(artifact + ".lock").Lock()
	if err != nil {
		return nil, &FileSystemError{Op: "lock", Path: artifact, Err: unwrapPath(err)}
	}
	return unlock, nil
}

// artifact returns the output path of u. Dependencies go to the shared
// library directory, the root to the output directory.
func (e *executor) artifact(u *Unit) string {
	dir := e.layout.LibDir()
	if u.Root {
		dir = e.outputDir()
	}
	if u.Kind() == manifest.Library {
		return filepath.Join(dir, e.dialect.LibraryFile(u.Name))
	}
	return filepath.Join(dir, e.dialect.ExecutableFile(u.Name))
}

func (e *executor) outputDir() string {
	switch {
	case e.outDir == "":
		return e.layout.Root
	case filepath.IsAbs(e.outDir):
		return filepath.Clean(e.outDir)
	}
	return filepath.Join(e.layout.Root, e.outDir)
}

// options composes the option set of u: sources relative to the module
// directory, the module and dependency include directories, the shared
// library directory with one link library per dependency, then the
// manifest flags in name order and the configured toolchain flags.
func (e *executor) options(u *Unit, artifact string) (*buildsys.Options, error) {
	m := u.Module
	o := buildsys.New()
	for _, src := range m.Sources.Source {
		o.Source(src)
	}
	o.IncludeDir(u.Dir())
	for _, dep := range u.Deps {
		o.IncludeDir(dep.Dir())
	}
	o.LibDir(e.layout.LibDir())
	for _, dep := range u.Deps {
		o.LinkLib(dep.Name)
	}
	for _, name := range m.FlagNames() {
		if v := m.Flags[name]; v == "" {
			o.Flag(name)
		} else {
			o.FlagValue(name, v)
		}
	}
	if err := e.toolchain.Apply(e.id, o); err != nil {
		return nil, err
	}
	if len(u.Deps) > 0 {
		o.RuntimeDir(e.layout.LibDir())
	}
	if u.Kind() == manifest.Library {
		o.Shared()
	}
	return o.Output(artifact), nil
}

func unwrapPath(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

