// Package files discovers, reads, and tracks project files, delegating
// context injection to the context assembler, and applies model-generated
// patches safely.
package files

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	ctxmgr "patchpilot/internal/context"
	"patchpilot/internal/logging"
)

// Manager loads project files into the context assembler and keeps the full
// raw content around for patch generation.
type Manager struct {
	assembler  *ctxmgr.Manager
	maxFiles   int
	extensions []string
	logger     logging.Logger

	mu    sync.Mutex
	store map[string]string
	order []string
}

// NewManager creates a file manager bound to a context assembler.
func NewManager(assembler *ctxmgr.Manager, maxFiles int, defaultExtensions []string) *Manager {
	return &Manager{
		assembler:  assembler,
		maxFiles:   maxFiles,
		extensions: append([]string(nil), defaultExtensions...),
		logger:     logging.NewComponentLogger("files"),
		store:      make(map[string]string),
	}
}

// Load reads a single file and injects it into the document layer. The
// canonical absolute path is the document identifier.
func (m *Manager) Load(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	content, err := readText(abs)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.store[abs]; !exists {
		m.order = append(m.order, abs)
	}
	m.store[abs] = content
	m.mu.Unlock()

	m.assembler.UpsertDocument(abs, content)
	m.logger.Debug("loaded %s (%d bytes)", abs, len(content))
	return nil
}

// Unload removes a file from context. Returns false when the file is pinned
// and force is not set.
func (m *Manager) Unload(path string, force bool) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	if !m.assembler.RemoveDocument(abs, force) {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.store[abs]; exists {
		delete(m.store, abs)
		for i, p := range m.order {
			if p == abs {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	return true
}

// UnloadAll removes every loaded file, skipping pinned ones unless
// keepPinned is false. Returns the number of files unloaded.
func (m *Manager) UnloadAll(keepPinned bool) int {
	count := 0
	for _, p := range m.LoadedPaths() {
		if m.Unload(p, !keepPinned) {
			count++
		}
	}
	return count
}

// UnloadFolder removes all loaded files under folder.
func (m *Manager) UnloadFolder(folder string) int {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return 0
	}
	prefix := abs + string(filepath.Separator)

	count := 0
	for _, p := range m.LoadedPaths() {
		if strings.HasPrefix(p, prefix) {
			if m.Unload(p, false) {
				count++
			}
		}
	}
	return count
}

// UnloadPattern removes loaded files whose base name or full path matches a
// glob pattern.
func (m *Manager) UnloadPattern(pattern string) int {
	count := 0
	for _, p := range m.LoadedPaths() {
		baseMatch, _ := filepath.Match(pattern, filepath.Base(p))
		fullMatch, _ := filepath.Match(pattern, p)
		if baseMatch || fullMatch {
			if m.Unload(p, false) {
				count++
			}
		}
	}
	return count
}

// LoadFolder discovers and loads up to the max-files cap of matching files.
// Returns the loaded count and per-file error descriptions.
func (m *Manager) LoadFolder(folder string, extensions []string) (int, []string) {
	if len(extensions) == 0 {
		extensions = m.extensions
	}
	discovered := m.discover(folder, extensions)

	var errs []string
	loaded := 0
	for _, path := range discovered {
		if err := m.Load(path); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		loaded++
	}
	return loaded, errs
}

// Content returns the full raw content of a loaded file.
func (m *Manager) Content(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.store[abs]
	return content, ok
}

// LoadedPaths returns the loaded file paths in load order.
func (m *Manager) LoadedPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// IsLoaded reports whether path is currently loaded.
func (m *Manager) IsLoaded(path string) bool {
	_, ok := m.Content(path)
	return ok
}

// IsPinned reports the pin status of a loaded file.
func (m *Manager) IsPinned(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return m.assembler.IsPinned(abs)
}

func (m *Manager) discover(folder string, extensions []string) []string {
	seen := make(map[string]struct{})
	var found []string

	_ = filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		for _, ext := range extensions {
			if ok, _ := filepath.Match(ext, d.Name()); ok {
				abs, absErr := filepath.Abs(path)
				if absErr != nil {
					return nil
				}
				if _, dup := seen[abs]; !dup {
					seen[abs] = struct{}{}
					found = append(found, abs)
				}
				return nil
			}
		}
		return nil
	})

	sort.Strings(found)
	if len(found) > m.maxFiles {
		found = found[:m.maxFiles]
	}
	return found
}

// readText reads a file and verifies it decodes as UTF-8 text. Binary or
// non-UTF-8 files are rejected; format adapters live outside this tool.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8 text", path)
	}
	return string(data), nil
}
