package build

import (
	"context"
	"path/filepath"

	"github.com/goplus/cpm/internal/modules"
	"github.com/goplus/cpm/pkgs/manifest"
)

// State is the build state of a module node.
type State int

const (
	Unvisited State = iota
	Loading
	BuildingDependencies
	Compiling
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "Loading"
	case BuildingDependencies:
		return "BuildingDependencies"
	case Compiling:
		return "Compiling"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	}
	return "Unvisited"
}

// Unit is one module of the build graph.
type Unit struct {
	Name   string          // project name for the root, declared name for a dependency
	Module *modules.Module // nil until loaded
	Deps   []*Unit         // direct dependencies in sorted name order
	Root   bool

	state State
	err   error
	done  chan struct{} // closed when the unit reaches Done or Failed
}

// Dir returns the module directory, the identity of the unit.
func (u *Unit) Dir() string {
	return u.Module.Dir
}

// Kind returns the declared module type.
func (u *Unit) Kind() manifest.ModuleType {
	return u.Module.Project.ModuleType
}

// State returns the state of the unit.
func (u *Unit) State() State {
	return u.state
}

// Err returns the reason of a Failed unit.
func (u *Unit) Err() error {
	return u.err
}

func (u *Unit) fail(err error) error {
	u.state = Failed
	u.err = err
	return err
}

// Plan is the build graph of a root module.
type Plan struct {
	Root *Unit
	// Order lists every unit once, dependencies before dependents.
	Order []*Unit
}

// planner walks the dependency graph depth first. Units are keyed by
// location so that a module reached along several paths is planned once.
type planner struct {
	ctx    context.Context
	layout modules.Layout
	units  map[string]*Unit
	path   []*Unit
	order  []*Unit
}

func newPlanner(ctx context.Context, layout modules.Layout) *planner {
	return &planner{
		ctx:    ctx,
		layout: layout,
		units:  make(map[string]*Unit),
	}
}

func (p *planner) plan() (*Plan, error) {
	root, err := p.visit(p.layout.Root, "", true)
	if err != nil {
		return nil, err
	}
	return &Plan{Root: root, Order: p.order}, nil
}

func (p *planner) visit(dir, name string, root bool) (*Unit, error) {
	dir = filepath.Clean(dir)
	if u, ok := p.units[dir]; ok {
		switch u.state {
		case Loading, BuildingDependencies:
			return nil, p.cycle(u)
		case Failed:
			return nil, u.err
		}
		return u, nil
	}

	if name == "" {
		name = filepath.Base(dir)
	}
	u := &Unit{Name: name, Root: root, state: Loading, done: make(chan struct{})}
	p.units[dir] = u

	m, err := modules.Load(p.ctx, dir)
	if err != nil {
		return nil, u.fail(&BuildError{Module: name, Dir: dir, Err: err})
	}
	u.Module = m
	if root {
		u.Name = m.Name()
	}

	u.state = BuildingDependencies
	p.path = append(p.path, u)
	for _, depName := range m.DependencyNames() {
		depDir, err := p.layout.DirOf(depName)
		if err != nil {
			return nil, u.fail(&BuildError{Module: u.Name, Dir: dir, Err: err})
		}
		dep, err := p.visit(depDir, depName, false)
		if err != nil {
			return nil, u.fail(err)
		}
		if dep.Kind() != manifest.Library {
			return nil, u.fail(&BuildError{Module: depName, Dir: dep.Dir(), Err: ErrNotLibrary})
		}
		u.Deps = append(u.Deps, dep)
	}
	p.path = p.path[:len(p.path)-1]

	// planned; execution moves it on to Compiling
	u.state = Unvisited
	p.order = append(p.order, u)
	return u, nil
}

func (p *planner) cycle(u *Unit) error {
	var names []string
	for i := len(p.path) - 1; i >= 0; i-- {
		if p.path[i] == u {
			for _, v := range p.path[i:] {
				names = append(names, v.Name)
			}
			break
		}
	}
	return &CyclicDependencyError{Path: append(names, u.Name)}
}
