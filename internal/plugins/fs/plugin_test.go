package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meatycapture/internal/capability"
	"meatycapture/internal/logger"
)

func newTestPlugin(t *testing.T) (*Plugin, string, *capability.Events) {
	t.Helper()
	root := t.TempDir()
	scope, err := NewScope([]string{root})
	require.NoError(t, err)

	events := capability.NewEvents(16, logger.Nop())
	p := New(scope, events, logger.Nop())
	t.Cleanup(func() {
		p.Shutdown()
		events.Shutdown()
	})
	return p, canonical(root), events
}

func invoke(t *testing.T, p *Plugin, command string, args any) (any, error) {
	t.Helper()
	payload, err := json.Marshal(args)
	require.NoError(t, err)
	return p.Invoke(context.Background(), command, payload)
}

func TestScope_Resolve(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	scope, err := NewScope([]string{root})
	require.NoError(t, err)

	croot := canonical(root)
	assert.Equal(t, []string{croot}, scope.Roots())

	tests := []struct {
		name    string
		path    string
		allowed bool
	}{
		{"root itself", root, true},
		{"child", filepath.Join(root, "a.md"), true},
		{"nested missing", filepath.Join(root, "x", "y", "z.md"), true},
		{"traversal", filepath.Join(root, "..", "escape.md"), false},
		{"sibling prefix", croot + "-other/file", false},
		{"other dir", filepath.Join(outside, "a.md"), false},
		{"relative", "a.md", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scope.Resolve(tt.path)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestScope_SymlinkCannotEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	scope, err := NewScope([]string{root})
	require.NoError(t, err)

	_, err = scope.Resolve(filepath.Join(link, "secret.md"))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestNewScope_RejectsRelativeRoot(t *testing.T) {
	_, err := NewScope([]string{"notes"})
	assert.Error(t, err)
}

func TestPlugin_WriteReadRoundTrip(t *testing.T) {
	p, root, _ := newTestPlugin(t)
	path := filepath.Join(root, "captures", "2026-10-19.md")

	_, err := invoke(t, p, "write_text_file", map[string]any{"path": path, "contents": "# Log\n"})
	require.Error(t, err, "parent directory does not exist yet")

	_, err = invoke(t, p, "write_text_file", map[string]any{"path": path, "contents": "# Log\n", "create_dirs": true})
	require.NoError(t, err)
	_, err = invoke(t, p, "write_text_file", map[string]any{"path": path, "contents": "- item\n", "append": true})
	require.NoError(t, err)

	got, err := invoke(t, p, "read_text_file", map[string]any{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "# Log\n- item\n", got)

	exists, err := invoke(t, p, "exists", map[string]any{"path": path})
	require.NoError(t, err)
	assert.Equal(t, true, exists)

	info, err := invoke(t, p, "stat", map[string]any{"path": path})
	require.NoError(t, err)
	assert.Equal(t, int64(len("# Log\n- item\n")), info.(FileInfo).Size)
	assert.True(t, info.(FileInfo).IsFile)
}

func TestPlugin_DirectoryOperations(t *testing.T) {
	p, root, _ := newTestPlugin(t)

	_, err := invoke(t, p, "mkdir", map[string]any{"path": filepath.Join(root, "a", "b"), "recursive": true})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "z.md"), []byte("z"), 0o644))

	entries, err := p.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, DirEntry{Name: "a", IsDir: true}, entries[0])
	assert.Equal(t, "z.md", entries[1].Name)
	assert.True(t, entries[1].IsFile)

	_, err = invoke(t, p, "rename", map[string]any{"from": filepath.Join(root, "z.md"), "to": filepath.Join(root, "a", "z.md")})
	require.NoError(t, err)
	ok, err := p.Exists(filepath.Join(root, "a", "z.md"))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = invoke(t, p, "remove", map[string]any{"path": filepath.Join(root, "a")})
	assert.Error(t, err, "non-empty directory needs recursive")

	_, err = invoke(t, p, "remove", map[string]any{"path": filepath.Join(root, "a"), "recursive": true})
	require.NoError(t, err)
	ok, err = p.Exists(filepath.Join(root, "a"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPlugin_RejectsOutOfScope(t *testing.T) {
	p, root, _ := newTestPlugin(t)
	outside := filepath.Join(t.TempDir(), "x.md")

	_, err := invoke(t, p, "read_text_file", map[string]any{"path": outside})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = invoke(t, p, "rename", map[string]any{"from": filepath.Join(root, "a"), "to": outside})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = invoke(t, p, "remove", map[string]any{"path": root, "recursive": true})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPlugin_InvalidRequests(t *testing.T) {
	p, _, _ := newTestPlugin(t)

	_, err := invoke(t, p, "read_text_file", map[string]any{})
	assert.ErrorIs(t, err, capability.ErrInvalidPayload)

	_, err = invoke(t, p, "unwatch", map[string]any{"id": "not-a-uuid"})
	assert.ErrorIs(t, err, capability.ErrInvalidPayload)

	_, err = invoke(t, p, "truncate", map[string]any{"path": "/"})
	assert.ErrorIs(t, err, capability.ErrUnknownCommand)
}

func TestPlugin_WatchPublishesEvents(t *testing.T) {
	p, root, events := newTestPlugin(t)

	var mu sync.Mutex
	var paths []string
	events.Subscribe(EventWatch, capability.HandlerFunc(func(e capability.Event) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, e.Data["path"].(string))
	}))

	id, err := p.Watch([]string{root}, true)
	require.NoError(t, err)

	target := filepath.Join(root, "new.md")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range paths {
			if p == target {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Unwatch(id))
	assert.Error(t, p.Unwatch(id))
}
