package files

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"patchpilot/internal/diff"
)

var codeBlockPattern = regexp.MustCompile("(?s)```(?:\\w+)?\\n(.*?)```")

// PatchManager applies model-generated replacements to files safely:
// unified diff preview, confirmation, timestamped backup with rotation, and
// atomic write (temp file + rename).
type PatchManager struct {
	backup      bool
	diffPreview bool
	backupCount int
	backupDir   string
	generator   *diff.Generator
	out         io.Writer
	confirm     func(prompt string) bool
}

// NewPatchManager creates a patch manager. Diff previews are written to out;
// confirm is consulted before writes (nil means always apply).
func NewPatchManager(backup, diffPreview bool, generator *diff.Generator, out io.Writer, confirm func(prompt string) bool) *PatchManager {
	return &PatchManager{
		backup:      backup,
		diffPreview: diffPreview,
		backupCount: 5,
		backupDir:   "backups",
		generator:   generator,
		out:         out,
		confirm:     confirm,
	}
}

// ExtractCodeBlock pulls the first fenced code block out of a model
// response.
func (p *PatchManager) ExtractCodeBlock(response string) (string, bool) {
	match := codeBlockPattern.FindStringSubmatch(response)
	if match == nil {
		return "", false
	}
	return strings.TrimRight(match[1], "\n"), true
}

// Apply writes newContent to path. Returns whether the file was written and
// a human-readable message.
func (p *PatchManager) Apply(path, newContent string, askConfirm, dryRun bool) (bool, string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Sprintf("Resolve failed: %v", err)
	}

	oldContent, existed := readIfExists(abs)

	if p.diffPreview {
		result := p.generator.GenerateUnified(oldContent, newContent, abs)
		if result.UnifiedDiff == "" {
			fmt.Fprintln(p.out, "  (No changes detected in diff)")
		} else {
			fmt.Fprintf(p.out, "\n--- Diff for %s ---\n%s--- End diff ---\n", abs, result.UnifiedDiff)
		}
	}

	if dryRun {
		return true, "[DRY-RUN] No changes applied."
	}

	if askConfirm && p.confirm != nil {
		if !p.confirm(fmt.Sprintf("Apply patch to %s? [y/N] ", abs)) {
			return false, "Patch not applied."
		}
	}

	if existed && p.backup {
		backupPath, err := p.backupFile(abs)
		if err != nil {
			return false, fmt.Sprintf("Backup failed: %v", err)
		}
		fmt.Fprintf(p.out, "  Backup saved: %s\n", backupPath)
	}

	if err := atomicWrite(abs, newContent); err != nil {
		return false, fmt.Sprintf("Write failed: %v", err)
	}
	return true, fmt.Sprintf("File written: %s", abs)
}

func (p *PatchManager) backupFile(path string) (string, error) {
	if err := os.MkdirAll(p.backupDir, 0o755); err != nil {
		return "", err
	}

	base := filepath.Base(path)
	backup := filepath.Join(p.backupDir, fmt.Sprintf("%s.%s.bak", base, time.Now().Format("20060102_150405")))

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return "", err
	}

	p.rotateBackups(base)
	return backup, nil
}

// rotateBackups keeps only the newest backupCount copies of a file.
func (p *PatchManager) rotateBackups(base string) {
	entries, err := os.ReadDir(p.backupDir)
	if err != nil {
		return
	}

	type backup struct {
		path string
		mod  time.Time
	}
	var backups []backup
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), base) && strings.HasSuffix(e.Name(), ".bak") {
			info, err := e.Info()
			if err != nil {
				continue
			}
			backups = append(backups, backup{filepath.Join(p.backupDir, e.Name()), info.ModTime()})
		}
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].mod.Before(backups[j].mod) })

	for len(backups) > p.backupCount {
		_ = os.Remove(backups[0].path)
		backups = backups[1:]
	}
}

func atomicWrite(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".patchpilot-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func readIfExists(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// SnippetManager keeps named in-memory code snippets that can be inserted
// into prompts without loading full files.
type SnippetManager struct {
	mu       sync.Mutex
	snippets map[string]string
}

// NewSnippetManager creates an empty snippet store.
func NewSnippetManager() *SnippetManager {
	return &SnippetManager{snippets: make(map[string]string)}
}

func (s *SnippetManager) Save(name, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snippets[name] = code
}

func (s *SnippetManager) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.snippets[name]
	return code, ok
}

func (s *SnippetManager) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snippets[name]; !ok {
		return false
	}
	delete(s.snippets, name)
	return true
}

func (s *SnippetManager) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.snippets))
	for name := range s.snippets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AsContextBlock renders a snippet as a tagged prompt block.
func (s *SnippetManager) AsContextBlock(name string) (string, bool) {
	code, ok := s.Get(name)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("[SNIPPET] %s\n%s", name, code), true
}
