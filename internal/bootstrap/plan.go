package bootstrap

import (
	"fmt"

	"meatycapture/internal/appctx"
	"meatycapture/internal/capability"
	"meatycapture/internal/config"
	"meatycapture/internal/logger"
	"meatycapture/internal/platform"
	"meatycapture/internal/plugins/fs"
	"meatycapture/internal/plugins/shell"
)

// Deps is what a plugin factory may draw on.
type Deps struct {
	Context  *appctx.Context
	Settings *config.Config
	Dirs     appctx.Dirs
	Events   *capability.Events
	Logger   logger.Logger
}

type Factory struct {
	Name string
	New  func(Deps) (capability.Plugin, error)
}

var (
	filesystem = Factory{Name: fs.Name, New: newFS}
	process    = Factory{Name: shell.Name, New: newShell}
)

// plans is the registration order per platform class. The filesystem
// capability always comes first; mobile targets never get the shell.
var plans = map[platform.Class][]Factory{
	platform.Desktop: {filesystem, process},
	platform.Mobile:  {filesystem},
}

// Plan returns the ordered factories for class.
func Plan(class platform.Class) ([]Factory, error) {
	plan, ok := plans[class]
	if !ok {
		return nil, fmt.Errorf("no plugin plan for platform %s", class)
	}
	out := make([]Factory, len(plan))
	copy(out, plan)
	return out, nil
}

func newFS(d Deps) (capability.Plugin, error) {
	roots := make([]string, 0, len(d.Context.FS.Scope)+1)
	for _, entry := range d.Context.FS.Scope {
		root, err := d.Dirs.Expand(entry)
		if err != nil {
			return nil, err
		}
		roots = append(roots, root)
	}
	if d.Settings.FS.DataDir != "" {
		root, err := d.Dirs.Expand(d.Settings.FS.DataDir)
		if err != nil {
			return nil, fmt.Errorf("fs.data_dir: %w", err)
		}
		roots = append(roots, root)
	}

	scope, err := fs.NewScope(roots)
	if err != nil {
		return nil, err
	}
	return fs.New(scope, d.Events, d.Logger), nil
}

func newShell(d Deps) (capability.Plugin, error) {
	scope, err := shell.NewScope(d.Context.Shell)
	if err != nil {
		return nil, err
	}
	return shell.New(scope, d.Events, d.Logger, d.Settings.Shell.Timeout), nil
}
