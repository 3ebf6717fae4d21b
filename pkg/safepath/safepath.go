// Package safepath turns entity supplied folder names into directories that
// are guaranteed to stay inside a single output root.
package safepath

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path would resolve outside the output root
var ErrOutsideRoot = errors.New("path resolves outside the output root")

// DefaultFragment replaces fragments that are empty after cleaning
const DefaultFragment = "default"

// Resolver confines output paths to OutputRoot. DataRoot is the base that
// relative artifact paths are expressed against; OutputRoot must live inside it.
type Resolver struct {
	DataRoot   string
	OutputRoot string
}

// New creates a resolver with both roots made absolute and cleaned
func New(dataRoot, outputRoot string) (*Resolver, error) {
	data, err := filepath.Abs(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve data root: %w", err)
	}
	out, err := filepath.Abs(outputRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve output root: %w", err)
	}
	return &Resolver{DataRoot: data, OutputRoot: out}, nil
}

// Fragment normalises a single folder fragment: separators are unified,
// leading "/" and ".." segments and any "." segments are dropped. Interior
// ".." segments are kept so the containment check can reject them.
func Fragment(s string) string {
	s = strings.ReplaceAll(s, `\`, "/")
	// drop a Windows volume such as "C:"
	if len(s) >= 2 && s[1] == ':' {
		s = s[2:]
	}

	segments := strings.Split(s, "/")
	out := make([]string, 0, len(segments))
	leading := true
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." {
			continue
		}
		if leading && seg == ".." {
			continue
		}
		leading = false
		out = append(out, seg)
	}
	return strings.Join(out, "/")
}

// Within reports whether target is root itself or lies below it. The check
// compares whole path segments, so "/data/output-evil" is not within
// "/data/output".
func Within(root, target string) bool {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	if root == target {
		return true
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// strictlyWithin is Within minus the root itself
func strictlyWithin(root, target string) bool {
	return filepath.Clean(root) != filepath.Clean(target) && Within(root, target)
}

func orDefault(fragment string) string {
	if fragment == "" {
		return DefaultFragment
	}
	return fragment
}

// ProjectDir returns the directory for a project's output root fragment
func (r *Resolver) ProjectDir(outputRoot string) (string, error) {
	frag := orDefault(Fragment(outputRoot))
	dir := filepath.Join(r.OutputRoot, filepath.FromSlash(frag))
	if !strictlyWithin(r.OutputRoot, dir) {
		return "", fmt.Errorf("%w: project folder %q", ErrOutsideRoot, outputRoot)
	}
	return dir, nil
}

// CardDir returns the directory for a project/card fragment pair. The card
// directory has to stay inside the project directory as well as the root.
func (r *Resolver) CardDir(outputRoot, outputSubfolder string) (string, error) {
	projectDir, err := r.ProjectDir(outputRoot)
	if err != nil {
		return "", err
	}
	frag := orDefault(Fragment(outputSubfolder))
	dir := filepath.Join(projectDir, filepath.FromSlash(frag))
	if !strictlyWithin(projectDir, dir) || !strictlyWithin(r.OutputRoot, dir) {
		return "", fmt.Errorf("%w: card folder %q", ErrOutsideRoot, outputSubfolder)
	}
	return dir, nil
}

// Resolve converts a path relative to DataRoot into an absolute path that
// must lie strictly inside OutputRoot.
func (r *Resolver) Resolve(relPath string) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", fmt.Errorf("%w: empty path", ErrOutsideRoot)
	}
	var abs string
	if filepath.IsAbs(relPath) {
		abs = filepath.Clean(relPath)
	} else {
		abs = filepath.Join(r.DataRoot, filepath.FromSlash(strings.ReplaceAll(relPath, `\`, "/")))
	}
	if !strictlyWithin(r.OutputRoot, abs) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, relPath)
	}
	return abs, nil
}

// Rel expresses an absolute path relative to DataRoot with forward slashes
func (r *Resolver) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(r.DataRoot, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
