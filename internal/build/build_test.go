package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/goplus/cpm/internal/toolchain"
	"github.com/goplus/cpm/pkgs/buildsys/gcc"
	"github.com/goplus/cpm/pkgs/manifest"
)

var (
	gxx     = toolchain.Identity{Kind: toolchain.GCC, Path: "g++"}
	dialect = gcc.New(gcc.GCC)
)

// invocation is one call recorded by fakeRunner.
type invocation struct {
	Dir  string
	Args []string
}

// fakeRunner records invocations and writes the -o target like a compiler
// would. Invocations in a directory listed in fail exit with code 1.
type fakeRunner struct {
	mu    sync.Mutex
	calls []invocation
	fail  map[string]bool
}

func (r *fakeRunner) Run(ctx context.Context, dir string, argv []string, id toolchain.Identity) error {
	r.mu.Lock()
	r.calls = append(r.calls, invocation{Dir: dir, Args: argv})
	r.mu.Unlock()
	if r.fail[dir] {
		return &toolchain.Error{Op: toolchain.NonZeroExit, Driver: id.Path, Code: 1}
	}
	for i, a := range argv {
		if a == "-o" && i+1 < len(argv) {
			if err := os.WriteFile(argv[i+1], []byte("artifact"), 0o755); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *fakeRunner) dirs() []string {
	var dirs []string
	for _, c := range r.calls {
		dirs = append(dirs, filepath.Base(c.Dir))
	}
	return dirs
}

// module describes a module.toml for writeModule.
type module struct {
	name  string
	typ   string
	deps  []string
	flags map[string]string
	srcs  []string
}

func (m module) toml() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[project]\nname = %q\nversion = \"1.0.0\"\nmodule_type = %q\n", m.name, m.typ)
	if len(m.deps) > 0 {
		b.WriteString("[dependencies]\n")
		for _, d := range m.deps {
			fmt.Fprintf(&b, "%s = \"1.0.0\"\n", d)
		}
	}
	if len(m.flags) > 0 {
		b.WriteString("[flags]\n")
		for k, v := range m.flags {
			fmt.Fprintf(&b, "%q = %q\n", k, v)
		}
	}
	if m.srcs != nil {
		b.WriteString("[sources]\nsource = [")
		for i, s := range m.srcs {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%q", s)
		}
		b.WriteString("]\n")
	}
	return b.String()
}

func writeModule(t *testing.T, dir string, m module) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(m.toml()), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, src := range m.srcs {
		if err := os.WriteFile(filepath.Join(dir, src), []byte("// "+src+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func writeDep(t *testing.T, root string, m module) string {
	t.Helper()
	dir := filepath.Join(root, "modules", m.name)
	writeModule(t, dir, m)
	return dir
}

func newTestBuilder(r *fakeRunner, jobs int) *Builder {
	return NewBuilder(Options{Identity: gxx, Runner: r, Jobs: jobs})
}

func TestBuildSingleExecutable(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, module{name: "app", typ: "Executable", srcs: []string{"main.cpp"}})

	r := &fakeRunner{}
	res, err := newTestBuilder(r, 1).Build(context.Background(), root)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	app := filepath.Join(root, dialect.ExecutableFile("app"))
	want := []string{"main.cpp", "-I" + root, "-L" + filepath.Join(root, "modules", "lib"), "-o", app}
	if len(r.calls) != 1 {
		t.Fatalf("got %d invocations, want 1", len(r.calls))
	}
	if !reflect.DeepEqual(r.calls[0].Args, want) {
		t.Errorf("args = %v, want %v", r.calls[0].Args, want)
	}
	if r.calls[0].Dir != root {
		t.Errorf("dir = %q, want %q", r.calls[0].Dir, root)
	}
	if res.Artifact != app {
		t.Errorf("Artifact = %q, want %q", res.Artifact, app)
	}
	if _, err := os.Stat(app); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
	if res.BuildID == "" {
		t.Error("BuildID is empty")
	}
}

func TestBuildSourcesInOrder(t *testing.T) {
	root := t.TempDir()
	srcs := []string{"z.cpp", "a.cpp", "m.cpp", "b.cpp"}
	writeModule(t, root, module{name: "app", typ: "Executable", srcs: srcs})

	r := &fakeRunner{}
	if _, err := newTestBuilder(r, 1).Build(context.Background(), root); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	args := r.calls[0].Args
	if !reflect.DeepEqual(args[:len(srcs)], srcs) {
		t.Errorf("leading args = %v, want %v", args[:len(srcs)], srcs)
	}
	if n := len(args); args[n-2] != "-o" {
		t.Errorf("output target not last: %v", args)
	}
}

func TestBuildDependencyFirst(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, module{name: "app", typ: "Executable", deps: []string{"mathlib"}, srcs: []string{"main.cpp"}})
	mathDir := writeDep(t, root, module{name: "mathlib", typ: "Library", srcs: []string{"math.cpp"}})

	r := &fakeRunner{}
	res, err := newTestBuilder(r, 1).Build(context.Background(), root)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	libDir := filepath.Join(root, "modules", "lib")
	lib := filepath.Join(libDir, dialect.LibraryFile("mathlib"))
	app := filepath.Join(root, dialect.ExecutableFile("app"))
	want := []invocation{
		{Dir: mathDir, Args: []string{"math.cpp", "-I" + mathDir, "-L" + libDir, "-shared", "-fPIC", "-o", lib}},
		{Dir: root, Args: []string{"main.cpp", "-I" + root, "-I" + mathDir, "-L" + libDir, "-lmathlib", "-Wl,-rpath," + libDir, "-o", app}},
	}
	if !reflect.DeepEqual(r.calls, want) {
		t.Errorf("invocations:\n got %v\nwant %v", r.calls, want)
	}
	if len(res.Units) != 2 || res.Units[0].Artifact != lib || res.Units[1].Artifact != app {
		t.Errorf("Units = %+v", res.Units)
	}
}

func TestBuildFlags(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, module{
		name:  "app",
		typ:   "Executable",
		flags: map[string]string{"-std": "c++17", "-Wall": ""},
		srcs:  []string{"main.cpp"},
	})

	r := &fakeRunner{}
	b := NewBuilder(Options{
		Identity:  gxx,
		Runner:    r,
		Toolchain: toolchain.Config{OptLevel: "2"},
	})
	if _, err := b.Build(context.Background(), root); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	got := strings.Join(r.calls[0].Args, " ")
	if !strings.Contains(got, "-Wall -std=c++17 -O2 -o") {
		t.Errorf("args = %q, want manifest flags in name order followed by -O2", got)
	}
}

func TestBuildDiamondOnce(t *testing.T) {
	// app -> a -> c, app -> b -> c
	root := t.TempDir()
	writeModule(t, root, module{name: "app", typ: "Executable", deps: []string{"a", "b"}, srcs: []string{"main.cpp"}})
	writeDep(t, root, module{name: "a", typ: "Library", deps: []string{"c"}, srcs: []string{"a.cpp"}})
	writeDep(t, root, module{name: "b", typ: "Library", deps: []string{"c"}, srcs: []string{"b.cpp"}})
	writeDep(t, root, module{name: "c", typ: "Library", srcs: []string{"c.cpp"}})

	for _, jobs := range []int{1, 4} {
		t.Run(fmt.Sprintf("jobs=%d", jobs), func(t *testing.T) {
			r := &fakeRunner{}
			if _, err := newTestBuilder(r, jobs).Build(context.Background(), root); err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			got := r.dirs()
			counts := map[string]int{}
			pos := map[string]int{}
			for i, d := range got {
				counts[d]++
				pos[d] = i
			}
			if len(got) != 4 || counts["c"] != 1 {
				t.Fatalf("invocations = %v, want c built exactly once", got)
			}
			if pos["c"] > pos["a"] || pos["c"] > pos["b"] {
				t.Errorf("c built after a dependent: %v", got)
			}
			if pos[filepath.Base(root)] != 3 {
				t.Errorf("root not built last: %v", got)
			}
		})
	}
}

func TestBuildCycle(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, module{name: "app", typ: "Executable", deps: []string{"a"}, srcs: []string{"main.cpp"}})
	writeDep(t, root, module{name: "a", typ: "Library", deps: []string{"b"}, srcs: []string{"a.cpp"}})
	writeDep(t, root, module{name: "b", typ: "Library", deps: []string{"a"}, srcs: []string{"b.cpp"}})

	r := &fakeRunner{}
	_, err := newTestBuilder(r, 1).Build(context.Background(), root)
	var cerr *CyclicDependencyError
	if !errors.As(err, &cerr) {
		t.Fatalf("Build() error = %v, want *CyclicDependencyError", err)
	}
	if want := []string{"a", "b", "a"}; !reflect.DeepEqual(cerr.Path, want) {
		t.Errorf("Path = %v, want %v", cerr.Path, want)
	}
	if len(r.calls) != 0 {
		t.Errorf("cycle must be detected before compiling, got %v", r.calls)
	}
}

func TestBuildMissingSources(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, module{name: "app", typ: "Executable", deps: []string{"mathlib"}, srcs: []string{"main.cpp"}})
	writeDep(t, root, module{name: "mathlib", typ: "Library"}) // no [sources]

	r := &fakeRunner{}
	_, err := newTestBuilder(r, 1).Build(context.Background(), root)
	var perr *manifest.ParseError
	if !errors.As(err, &perr) || perr.Field != "sources" {
		t.Fatalf("Build() error = %v, want ParseError for field sources", err)
	}
	var berr *BuildError
	if !errors.As(err, &berr) || berr.Module != "mathlib" {
		t.Errorf("Build() error = %v, want BuildError naming mathlib", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("no invocation expected, got %v", r.calls)
	}
}

func TestBuildMissingDependency(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, module{name: "app", typ: "Executable", deps: []string{"nowhere"}, srcs: []string{"main.cpp"}})

	_, err := newTestBuilder(&fakeRunner{}, 1).Build(context.Background(), root)
	if !errors.Is(err, manifest.ErrNotFound) {
		t.Fatalf("Build() error = %v, want manifest.ErrNotFound", err)
	}
}

func TestBuildExecutableDependency(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, module{name: "app", typ: "Executable", deps: []string{"tool"}, srcs: []string{"main.cpp"}})
	writeDep(t, root, module{name: "tool", typ: "Executable", srcs: []string{"tool.cpp"}})

	_, err := newTestBuilder(&fakeRunner{}, 1).Build(context.Background(), root)
	if !errors.Is(err, ErrNotLibrary) {
		t.Fatalf("Build() error = %v, want ErrNotLibrary", err)
	}
}

func TestBuildCompilerFailure(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, module{name: "app", typ: "Executable", deps: []string{"a", "b"}, srcs: []string{"main.cpp"}})
	aDir := writeDep(t, root, module{name: "a", typ: "Library", srcs: []string{"a.cpp"}})
	writeDep(t, root, module{name: "b", typ: "Library", srcs: []string{"b.cpp"}})

	for _, jobs := range []int{1, 2} {
		t.Run(fmt.Sprintf("jobs=%d", jobs), func(t *testing.T) {
			r := &fakeRunner{fail: map[string]bool{aDir: true}}
			b := newTestBuilder(r, jobs)
			res, err := b.Build(context.Background(), root)
			if res != nil {
				t.Errorf("Build() result = %+v, want nil", res)
			}
			var terr *toolchain.Error
			if !errors.As(err, &terr) || terr.Op != toolchain.NonZeroExit || terr.Code != 1 {
				t.Fatalf("Build() error = %v, want NonZeroExit with code 1", err)
			}
			var berr *BuildError
			if !errors.As(err, &berr) || berr.Module != "a" {
				t.Errorf("Build() error = %v, want BuildError naming a", err)
			}
			for _, c := range r.calls {
				if c.Dir == root {
					t.Errorf("root compiled after a dependency failed")
				}
			}
			if _, err := os.Stat(filepath.Join(root, dialect.ExecutableFile("app"))); err == nil {
				t.Error("root artifact exists after a failed build")
			}
		})
	}
}

func TestBuildOutDir(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, module{name: "app", typ: "Executable", srcs: []string{"main.cpp"}})

	r := &fakeRunner{}
	b := NewBuilder(Options{Identity: gxx, Runner: r, OutDir: "bin"})
	res, err := b.Build(context.Background(), root)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if want := filepath.Join(root, "bin", dialect.ExecutableFile("app")); res.Artifact != want {
		t.Errorf("Artifact = %q, want %q", res.Artifact, want)
	}
	if _, err := os.Stat(res.Artifact); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
}

func TestBuildLibDirNotADirectory(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, module{name: "app", typ: "Executable", deps: []string{"a"}, srcs: []string{"main.cpp"}})
	writeDep(t, root, module{name: "a", typ: "Library", srcs: []string{"a.cpp"}})
	// a regular file where the shared output directory belongs
	if err := os.WriteFile(filepath.Join(root, "modules", "lib"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := newTestBuilder(&fakeRunner{}, 1).Build(context.Background(), root)
	var ferr *FileSystemError
	if !errors.As(err, &ferr) {
		t.Fatalf("Build() error = %v, want *FileSystemError", err)
	}
}

func TestBuildLibDirExists(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, module{name: "app", typ: "Executable", deps: []string{"a"}, srcs: []string{"main.cpp"}})
	writeDep(t, root, module{name: "a", typ: "Library", srcs: []string{"a.cpp"}})
	if err := os.MkdirAll(filepath.Join(root, "modules", "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := newTestBuilder(&fakeRunner{}, 1).Build(context.Background(), root); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
}

func TestDryRun(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, module{name: "app", typ: "Executable", deps: []string{"a"}, srcs: []string{"main.cpp"}})
	writeDep(t, root, module{name: "a", typ: "Library", srcs: []string{"a.cpp"}})

	r := &fakeRunner{}
	b := NewBuilder(Options{Identity: gxx, Runner: &dryRunner{r}, DryRun: true})
	if _, err := b.Build(context.Background(), root); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(r.calls) != 2 {
		t.Errorf("got %d rendered invocations, want 2", len(r.calls))
	}
	if _, err := os.Stat(filepath.Join(root, "modules", "lib")); !os.IsNotExist(err) {
		t.Errorf("dry run created the shared output directory: %v", err)
	}
}

// dryRunner records without writing artifacts.
type dryRunner struct{ r *fakeRunner }

func (d *dryRunner) Run(ctx context.Context, dir string, argv []string, id toolchain.Identity) error {
	d.r.mu.Lock()
	defer d.r.mu.Unlock()
	d.r.calls = append(d.r.calls, invocation{Dir: dir, Args: argv})
	return nil
}

func TestPlan(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, module{name: "app", typ: "Executable", deps: []string{"b", "a"}, srcs: []string{"main.cpp"}})
	writeDep(t, root, module{name: "a", typ: "Library", srcs: []string{"a.cpp"}})
	writeDep(t, root, module{name: "b", typ: "Library", deps: []string{"a"}, srcs: []string{"b.cpp"}})

	plan, err := newTestBuilder(&fakeRunner{}, 1).Plan(context.Background(), root)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	var names []string
	for _, u := range plan.Order {
		names = append(names, u.Name)
	}
	if want := []string{"a", "b", "app"}; !reflect.DeepEqual(names, want) {
		t.Errorf("Order = %v, want %v", names, want)
	}
	if plan.Root.Name != "app" || !plan.Root.Root {
		t.Errorf("Root = %+v", plan.Root)
	}
	deps := make([]string, 0, len(plan.Root.Deps))
	for _, d := range plan.Root.Deps {
		deps = append(deps, d.Name)
	}
	if !sort.StringsAreSorted(deps) {
		t.Errorf("dependencies not in name order: %v", deps)
	}
}
