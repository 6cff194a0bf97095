package fs

import (
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"meatycapture/internal/capability"
)

// EventWatch is published for every change under a watched path.
const EventWatch = "fs://watch"

type watch struct {
	id      string
	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

func (w *watch) close() {
	w.once.Do(func() {
		w.watcher.Close()
		<-w.done
	})
}

// Watch starts watching paths and returns the watch id. With recursive
// set, every directory below a watched directory is added as well.
func (p *Plugin) Watch(paths []string, recursive bool) (string, error) {
	resolved := make([]string, 0, len(paths))
	for _, path := range paths {
		r, err := p.scope.Resolve(path)
		if err != nil {
			return "", err
		}
		resolved = append(resolved, r)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("create watcher: %w", err)
	}

	for _, r := range resolved {
		if err := addWatch(watcher, r, recursive); err != nil {
			watcher.Close()
			return "", err
		}
	}

	w := &watch{
		id:      uuid.NewString(),
		watcher: watcher,
		done:    make(chan struct{}),
	}
	go p.forward(w)

	p.mu.Lock()
	p.watchers[w.id] = w
	p.mu.Unlock()

	p.logger.Debug("FSPlugin", "watch started", map[string]interface{}{
		"id":        w.id,
		"paths":     resolved,
		"recursive": recursive,
	})
	return w.id, nil
}

func (p *Plugin) Unwatch(id string) error {
	p.mu.Lock()
	w, ok := p.watchers[id]
	delete(p.watchers, id)
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown watch %s", id)
	}
	w.close()
	return nil
}

func addWatch(watcher *fsnotify.Watcher, root string, recursive bool) error {
	if !recursive {
		if err := watcher.Add(root); err != nil {
			return fmt.Errorf("watch %s: %w", root, err)
		}
		return nil
	}
	return filepath.WalkDir(root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root || d.IsDir() {
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
		return nil
	})
}

func (p *Plugin) forward(w *watch) {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			p.events.Publish(capability.Event{
				Type: EventWatch,
				Data: map[string]interface{}{
					"id":   w.id,
					"path": ev.Name,
					"op":   ev.Op.String(),
				},
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warning("FSPlugin", "watch error", map[string]interface{}{
				"id":    w.id,
				"error": err.Error(),
			})
		}
	}
}
