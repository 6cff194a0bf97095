package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrForbidden = errors.New("path not allowed by filesystem scope")

// Scope restricts access to a set of directory roots. Symlinks are
// resolved before the containment check so a link cannot lead outside.
type Scope struct {
	roots []string
}

func NewScope(roots []string) (*Scope, error) {
	s := &Scope{}
	for _, r := range roots {
		if !filepath.IsAbs(r) {
			return nil, fmt.Errorf("scope root %q is not absolute", r)
		}
		s.roots = append(s.roots, canonical(filepath.Clean(r)))
	}
	return s, nil
}

func (s *Scope) Roots() []string {
	out := make([]string, len(s.roots))
	copy(out, s.roots)
	return out
}

// Resolve returns the canonical form of p or ErrForbidden when it falls
// outside every root.
func (s *Scope) Resolve(p string) (string, error) {
	if p == "" || !filepath.IsAbs(p) {
		return "", fmt.Errorf("%w: %q is not an absolute path", ErrForbidden, p)
	}
	resolved := canonical(filepath.Clean(p))

	for _, root := range s.roots {
		if within(root, resolved) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrForbidden, p)
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// canonical resolves symlinks along the longest existing prefix of p.
func canonical(p string) string {
	if real, err := filepath.EvalSymlinks(p); err == nil {
		return real
	}
	parent := filepath.Dir(p)
	if parent == p {
		return p
	}
	return filepath.Join(canonical(parent), filepath.Base(p))
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
