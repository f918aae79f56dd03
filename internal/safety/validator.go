package safety

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath   = errors.New("invalid path")
	ErrDangerousPath = errors.New("dangerous path")
	ErrOutsideBase   = errors.New("path outside the target directory")
)

// minSegments is the shallowest depth (root included) a target may have.
// "/mnt" has two segments and is rejected, "/mnt/backups" has three.
const minSegments = 3

// Guard decides whether a directory is too dangerous to clean.
// It is a conservative heuristic, not a proof of safety.
type Guard struct {
	ProtectedPaths []string
	// HomeDir reports the current user's home. An error skips that check.
	HomeDir func() (string, error)
}

// NewGuard creates a guard protecting the default roots plus any extras.
func NewGuard(extraProtected []string) *Guard {
	return &Guard{
		ProtectedPaths: defaultProtected(extraProtected),
		HomeDir:        os.UserHomeDir,
	}
}

// IsDangerous reports whether the resolved form of p is a protected root,
// the user's home, or too shallow to be a backup directory.
func (g *Guard) IsDangerous(p string) bool {
	rp, err := Resolve(p)
	if err != nil {
		return true
	}

	for _, f := range g.forbidden() {
		if rp == f {
			return true
		}
	}

	return segments(rp) < minSegments
}

// Check is IsDangerous expressed as an error.
func (g *Guard) Check(p string) error {
	if g.IsDangerous(p) {
		rp, err := Resolve(p)
		if err != nil {
			rp = p
		}
		return fmt.Errorf("%w: %s", ErrDangerousPath, rp)
	}
	return nil
}

// CheckTarget authorizes the removal of one file below base. The parent
// directory is resolved so a subdirectory swapped for a symlink after the
// scan cannot redirect the removal. The file itself is not resolved: removing
// a symlink never touches its target.
func (g *Guard) CheckTarget(base, path string) error {
	p, err := NormalizePath(path)
	if err != nil {
		return err
	}
	if DetectTraversal(path) {
		return fmt.Errorf("%w: %s", ErrOutsideBase, path)
	}

	root, err := Resolve(base)
	if err != nil {
		return err
	}
	target := p
	parent, err := filepath.EvalSymlinks(filepath.Dir(p))
	switch {
	case err == nil:
		target = filepath.Join(parent, filepath.Base(p))
	case errors.Is(err, fs.ErrNotExist):
		// Nothing left to escape through; judge the path as written.
		if root, err = NormalizePath(base); err != nil {
			return err
		}
	default:
		return fmt.Errorf("resolve %s: %w", filepath.Dir(p), err)
	}

	if !IsWithin(target, root) {
		return fmt.Errorf("%w: %s", ErrOutsideBase, path)
	}
	for _, f := range g.forbidden() {
		if target == f || p == f {
			return fmt.Errorf("%w: %s", ErrDangerousPath, path)
		}
	}
	return nil
}

// IsWithin reports whether path lies strictly below root. Both must be clean
// absolute paths.
func IsWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// DetectTraversal reports any ".." segment in raw input
func DetectTraversal(raw string) bool {
	for _, part := range strings.Split(filepath.ToSlash(raw), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

func (g *Guard) forbidden() []string {
	out := make([]string, 0, len(g.ProtectedPaths)+1)
	for _, p := range g.ProtectedPaths {
		if rp, err := Resolve(p); err == nil {
			out = append(out, rp)
		}
	}

	if g.HomeDir != nil {
		if home, err := g.HomeDir(); err == nil && strings.TrimSpace(home) != "" {
			if rp, err := Resolve(home); err == nil {
				out = append(out, rp)
			}
		}
	}
	return out
}

// Resolve returns the absolute, cleaned, symlink-resolved form of path.
// When the path (or part of it) does not exist, the cleaned absolute form
// is returned instead.
func Resolve(path string) (string, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return p, nil
	}
	return NormalizePath(resolved)
}

// NormalizePath converts path to absolute, cleaned form
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ErrInvalidPath
	}
	return filepath.Clean(abs), nil
}

// segments counts path components with the root counted as one.
func segments(cleanAbs string) int {
	n := 1
	for _, part := range strings.Split(filepath.ToSlash(cleanAbs), "/") {
		if part != "" {
			n++
		}
	}
	return n
}

// defaultProtected returns the base set of protected paths plus any extras
func defaultProtected(extra []string) []string {
	base := []string{
		"/",
		"/home",
		"/root",
	}
	return append(base, extra...)
}
