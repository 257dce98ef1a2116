package debug

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultSourcePatterns selects the script files searched under each root.
var DefaultSourcePatterns = []string{"**/*.lua"}

// PathMapper translates between script paths as the engine reports them
// (usually relative to the game's data directory) and paths the front end can
// open. With no roots configured paths pass through unchanged.
type PathMapper struct {
	roots    []string
	patterns []string

	mu    sync.Mutex
	cache map[string]string
}

// NewPathMapper creates a mapper over the given source roots. Empty patterns
// fall back to DefaultSourcePatterns. Invalid patterns are rejected.
func NewPathMapper(roots, patterns []string) (*PathMapper, error) {
	if len(patterns) == 0 {
		patterns = DefaultSourcePatterns
	}
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid source pattern %q", pattern)
		}
	}

	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("source root %q: %w", root, err)
		}
		cleaned = append(cleaned, abs)
	}

	return &PathMapper{
		roots:    cleaned,
		patterns: patterns,
		cache:    make(map[string]string),
	}, nil
}

// ToClient resolves a runtime-reported script path to a local file. Paths
// that cannot be resolved are returned as given.
func (m *PathMapper) ToClient(runtimePath string) string {
	if m == nil || runtimePath == "" || len(m.roots) == 0 {
		return runtimePath
	}

	m.mu.Lock()
	if resolved, ok := m.cache[runtimePath]; ok {
		m.mu.Unlock()
		return resolved
	}
	m.mu.Unlock()

	resolved := m.resolve(runtimePath)

	m.mu.Lock()
	m.cache[runtimePath] = resolved
	m.mu.Unlock()
	return resolved
}

// ToRuntime converts a front-end path to the engine's form: relative to the
// containing source root with forward slashes. Paths outside every root are
// returned as given.
func (m *PathMapper) ToRuntime(clientPath string) string {
	if m == nil || clientPath == "" {
		return clientPath
	}
	for _, root := range m.roots {
		rel, err := filepath.Rel(root, clientPath)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return filepath.ToSlash(rel)
	}
	return clientPath
}

// Roots returns the absolute source roots.
func (m *PathMapper) Roots() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.roots...)
}

func (m *PathMapper) resolve(runtimePath string) string {
	native := filepath.FromSlash(normalizeSeparators(runtimePath))

	if filepath.IsAbs(native) && fileExists(native) {
		return native
	}

	for _, root := range m.roots {
		candidate := filepath.Join(root, native)
		if fileExists(candidate) {
			return candidate
		}
	}

	// Fall back to a search by suffix, so "scripts/player.lua" still
	// resolves when the engine's data directory is not a configured root.
	suffix := strings.TrimPrefix(normalizeSeparators(runtimePath), "/")
	for _, root := range m.roots {
		if match, ok := m.search(root, suffix); ok {
			return match
		}
	}

	return runtimePath
}

func (m *PathMapper) search(root, suffix string) (string, bool) {
	fsys := os.DirFS(root)
	for _, pattern := range m.patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			continue
		}
		for _, match := range matches {
			if match != suffix && !strings.HasSuffix(match, "/"+suffix) {
				continue
			}
			full := filepath.Join(root, filepath.FromSlash(match))
			if fileExists(full) {
				return full, true
			}
		}
	}
	return "", false
}

// MatchesSource reports whether a front-end path is a script the mapper
// would search for.
func (m *PathMapper) MatchesSource(clientPath string) bool {
	if m == nil {
		return true
	}
	name := filepath.ToSlash(m.ToRuntime(clientPath))
	for _, pattern := range m.patterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func normalizeSeparators(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// sourceName returns the file name of a script path reported by the engine,
// which may use either separator.
func sourceName(p string) string {
	return path.Base(normalizeSeparators(p))
}
