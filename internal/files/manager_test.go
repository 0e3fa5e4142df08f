package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctxmgr "patchpilot/internal/context"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestFileManager(maxFiles int) (*Manager, *ctxmgr.Manager) {
	assembler := ctxmgr.NewManager("system", 100000, 1500, 40)
	return NewManager(assembler, maxFiles, []string{"*.go", "*.txt"}), assembler
}

func TestLoadAndContent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hello.go", "package hello")
	m, assembler := newTestFileManager(10)

	require.NoError(t, m.Load(path))

	assert.True(t, m.IsLoaded(path))
	content, ok := m.Content(path)
	require.True(t, ok)
	assert.Equal(t, "package hello", content)
	assert.Equal(t, []string{path}, assembler.DocumentIDs())
}

func TestLoadMissingFile(t *testing.T) {
	m, _ := newTestFileManager(10)
	err := m.Load(filepath.Join(t.TempDir(), "nope.go"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")
}

func TestLoadRejectsBinary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.txt")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x80}, 0o644))

	m, _ := newTestFileManager(10)
	err := m.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid UTF-8")
}

func TestReloadKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.go", "package a")
	b := writeFile(t, dir, "b.go", "package b")
	m, _ := newTestFileManager(10)

	require.NoError(t, m.Load(a))
	require.NoError(t, m.Load(b))
	require.NoError(t, os.WriteFile(a, []byte("package a // v2"), 0o644))
	require.NoError(t, m.Load(a))

	assert.Equal(t, []string{a, b}, m.LoadedPaths())
	content, _ := m.Content(a)
	assert.Contains(t, content, "v2")
}

func TestUnloadRespectsPin(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pinned.go", "package pinned")
	m, assembler := newTestFileManager(10)

	require.NoError(t, m.Load(path))
	require.True(t, assembler.Pin(path))

	assert.False(t, m.Unload(path, false))
	assert.True(t, m.IsLoaded(path))

	assert.True(t, m.Unload(path, true))
	assert.False(t, m.IsLoaded(path))
	assert.False(t, m.IsPinned(path))
}

func TestUnloadAllKeepsPinned(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.go", "package a")
	b := writeFile(t, dir, "b.go", "package b")
	m, assembler := newTestFileManager(10)

	require.NoError(t, m.Load(a))
	require.NoError(t, m.Load(b))
	require.True(t, assembler.Pin(a))

	count := m.UnloadAll(true)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{a}, m.LoadedPaths())

	count = m.UnloadAll(false)
	assert.Equal(t, 1, count)
	assert.Empty(t, m.LoadedPaths())
}

func TestUnloadFolder(t *testing.T) {
	dir := t.TempDir()
	inner := writeFile(t, dir, filepath.Join("sub", "inner.go"), "package inner")
	outer := writeFile(t, dir, "outer.go", "package outer")
	m, _ := newTestFileManager(10)

	require.NoError(t, m.Load(inner))
	require.NoError(t, m.Load(outer))

	count := m.UnloadFolder(filepath.Join(dir, "sub"))
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{outer}, m.LoadedPaths())
}

func TestUnloadPattern(t *testing.T) {
	dir := t.TempDir()
	goFile := writeFile(t, dir, "keep.go", "package keep")
	txtFile := writeFile(t, dir, "notes.txt", "notes")
	m, _ := newTestFileManager(10)

	require.NoError(t, m.Load(goFile))
	require.NoError(t, m.Load(txtFile))

	count := m.UnloadPattern("*.txt")
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{goFile}, m.LoadedPaths())
}

func TestLoadFolderDiscoversAndCaps(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a")
	writeFile(t, dir, "b.go", "package b")
	writeFile(t, dir, "c.go", "package c")
	writeFile(t, dir, "skip.bin", "binary-ish")
	m, _ := newTestFileManager(2)

	count, errs := m.LoadFolder(dir, nil)
	assert.Empty(t, errs)
	assert.Equal(t, 2, count, "capped at max files")
	assert.Len(t, m.LoadedPaths(), 2)
}

func TestLoadFolderWithExplicitGlobs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.py", "print('hi')")
	writeFile(t, dir, "main.go", "package main")
	m, _ := newTestFileManager(10)

	count, errs := m.LoadFolder(dir, []string{"*.py"})
	assert.Empty(t, errs)
	assert.Equal(t, 1, count)
	require.Len(t, m.LoadedPaths(), 1)
	assert.Contains(t, m.LoadedPaths()[0], "main.py")
}
