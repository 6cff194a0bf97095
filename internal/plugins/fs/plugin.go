// Package fs is the filesystem capability: scoped read, write and listing
// of files for the frontend, plus change notifications.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"meatycapture/internal/capability"
	"meatycapture/internal/logger"
)

const Name = "fs"

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

type Plugin struct {
	scope  *Scope
	events *capability.Events
	logger logger.Logger

	mu       sync.Mutex
	watchers map[string]*watch
}

func New(scope *Scope, events *capability.Events, log logger.Logger) *Plugin {
	log.Debug("FSPlugin", "scope configured", map[string]interface{}{
		"roots": scope.Roots(),
	})
	return &Plugin{
		scope:    scope,
		events:   events,
		logger:   log,
		watchers: make(map[string]*watch),
	}
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Commands() []string {
	return []string{
		"read_text_file", "write_text_file", "read_dir", "exists",
		"mkdir", "remove", "rename", "stat", "watch", "unwatch",
	}
}

type pathArgs struct {
	Path string `json:"path" validate:"required"`
}

type writeArgs struct {
	Path       string `json:"path" validate:"required"`
	Contents   string `json:"contents"`
	Append     bool   `json:"append"`
	CreateDirs bool   `json:"create_dirs"`
}

type recursiveArgs struct {
	Path      string `json:"path" validate:"required"`
	Recursive bool   `json:"recursive"`
}

type renameArgs struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

type watchArgs struct {
	Paths     []string `json:"paths" validate:"required,min=1,dive,required"`
	Recursive bool     `json:"recursive"`
}

type unwatchArgs struct {
	ID string `json:"id" validate:"required,uuid"`
}

type DirEntry struct {
	Name      string `json:"name"`
	IsDir     bool   `json:"is_dir"`
	IsFile    bool   `json:"is_file"`
	IsSymlink bool   `json:"is_symlink"`
}

type FileInfo struct {
	Size    int64     `json:"size"`
	IsDir   bool      `json:"is_dir"`
	IsFile  bool      `json:"is_file"`
	ModTime time.Time `json:"mod_time"`
	Mode    string    `json:"mode"`
}

func (p *Plugin) Invoke(ctx context.Context, command string, payload json.RawMessage) (any, error) {
	switch command {
	case "read_text_file":
		var a pathArgs
		if err := capability.Decode(payload, &a); err != nil {
			return nil, err
		}
		return p.ReadTextFile(a.Path)
	case "write_text_file":
		var a writeArgs
		if err := capability.Decode(payload, &a); err != nil {
			return nil, err
		}
		return nil, p.WriteTextFile(a)
	case "read_dir":
		var a pathArgs
		if err := capability.Decode(payload, &a); err != nil {
			return nil, err
		}
		return p.ReadDir(a.Path)
	case "exists":
		var a pathArgs
		if err := capability.Decode(payload, &a); err != nil {
			return nil, err
		}
		return p.Exists(a.Path)
	case "mkdir":
		var a recursiveArgs
		if err := capability.Decode(payload, &a); err != nil {
			return nil, err
		}
		return nil, p.Mkdir(a.Path, a.Recursive)
	case "remove":
		var a recursiveArgs
		if err := capability.Decode(payload, &a); err != nil {
			return nil, err
		}
		return nil, p.Remove(a.Path, a.Recursive)
	case "rename":
		var a renameArgs
		if err := capability.Decode(payload, &a); err != nil {
			return nil, err
		}
		return nil, p.Rename(a.From, a.To)
	case "stat":
		var a pathArgs
		if err := capability.Decode(payload, &a); err != nil {
			return nil, err
		}
		return p.Stat(a.Path)
	case "watch":
		var a watchArgs
		if err := capability.Decode(payload, &a); err != nil {
			return nil, err
		}
		return p.Watch(a.Paths, a.Recursive)
	case "unwatch":
		var a unwatchArgs
		if err := capability.Decode(payload, &a); err != nil {
			return nil, err
		}
		return nil, p.Unwatch(a.ID)
	default:
		return nil, capability.UnknownCommand(Name, command)
	}
}

func (p *Plugin) ReadTextFile(path string) (string, error) {
	resolved, err := p.scope.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func (p *Plugin) WriteTextFile(a writeArgs) error {
	resolved, err := p.scope.Resolve(a.Path)
	if err != nil {
		return err
	}

	if a.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(resolved), dirPerm); err != nil {
			return fmt.Errorf("create parent of %s: %w", a.Path, err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if a.Append {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(resolved, flags, filePerm)
	if err != nil {
		return fmt.Errorf("open %s: %w", a.Path, err)
	}
	if _, err := f.WriteString(a.Contents); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", a.Path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", a.Path, err)
	}

	p.logger.Debug("FSPlugin", "file written", map[string]interface{}{
		"path":   resolved,
		"bytes":  len(a.Contents),
		"append": a.Append,
	})
	return nil
}

// ReadDir lists entries sorted by name.
func (p *Plugin) ReadDir(path string) ([]DirEntry, error) {
	resolved, err := p.scope.Resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", path, err)
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{
			Name:      e.Name(),
			IsDir:     e.IsDir(),
			IsFile:    e.Type().IsRegular(),
			IsSymlink: e.Type()&iofs.ModeSymlink != 0,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (p *Plugin) Exists(path string) (bool, error) {
	resolved, err := p.scope.Resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Lstat(resolved); err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return true, nil
}

func (p *Plugin) Mkdir(path string, recursive bool) error {
	resolved, err := p.scope.Resolve(path)
	if err != nil {
		return err
	}
	if recursive {
		err = os.MkdirAll(resolved, dirPerm)
	} else {
		err = os.Mkdir(resolved, dirPerm)
	}
	if err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// Remove deletes path. A scope root itself is never removed.
func (p *Plugin) Remove(path string, recursive bool) error {
	resolved, err := p.scope.Resolve(path)
	if err != nil {
		return err
	}
	for _, root := range p.scope.roots {
		if resolved == root {
			return fmt.Errorf("%w: cannot remove scope root %s", ErrForbidden, path)
		}
	}

	if recursive {
		err = os.RemoveAll(resolved)
	} else {
		err = os.Remove(resolved)
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (p *Plugin) Rename(from, to string) error {
	src, err := p.scope.Resolve(from)
	if err != nil {
		return err
	}
	dst, err := p.scope.Resolve(to)
	if err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("rename %s: %w", from, err)
	}
	return nil
}

func (p *Plugin) Stat(path string) (FileInfo, error) {
	resolved, err := p.scope.Resolve(path)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return FileInfo{
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		IsFile:  info.Mode().IsRegular(),
		ModTime: info.ModTime(),
		Mode:    info.Mode().String(),
	}, nil
}

// Shutdown closes every active watcher.
func (p *Plugin) Shutdown() {
	p.mu.Lock()
	watchers := p.watchers
	p.watchers = make(map[string]*watch)
	p.mu.Unlock()

	for _, w := range watchers {
		w.close()
	}
}
