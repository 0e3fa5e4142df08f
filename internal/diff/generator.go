// Package diff renders unified-style diffs for patch previews.
package diff

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Generator produces colorized unified diffs between file revisions.
type Generator struct {
	colorEnabled bool
}

// NewGenerator creates a diff generator.
func NewGenerator(colorEnabled bool) *Generator {
	return &Generator{colorEnabled: colorEnabled}
}

// Result contains the rendered diff and change statistics.
type Result struct {
	UnifiedDiff  string
	AddedLines   int
	DeletedLines int
}

// maxDiffSize skips diffing for very large contents.
const maxDiffSize = 10 * 1024 * 1024

// GenerateUnified creates a line-based unified diff between old and new
// content. Identical contents yield an empty diff.
func (g *Generator) GenerateUnified(oldContent, newContent, filename string) *Result {
	if oldContent == newContent {
		return &Result{}
	}

	if len(oldContent) > maxDiffSize || len(newContent) > maxDiffSize {
		return &Result{
			UnifiedDiff: fmt.Sprintf("--- a/%s\n+++ b/%s\n@@ large file, diff skipped @@\n", filename, filename),
		}
	}

	dmp := diffmatchpatch.New()
	oldChars, newChars, lines := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(oldChars, newChars, false), lines)

	var out strings.Builder
	out.WriteString(g.colorize("--- a/"+filename+"\n", color.FgRed))
	out.WriteString(g.colorize("+++ b/"+filename+"\n", color.FgGreen))

	added, deleted := 0, 0
	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				out.WriteString(g.colorize("+"+line+"\n", color.FgGreen))
				added++
			case diffmatchpatch.DiffDelete:
				out.WriteString(g.colorize("-"+line+"\n", color.FgRed))
				deleted++
			case diffmatchpatch.DiffEqual:
				out.WriteString(" " + line + "\n")
			}
		}
	}

	return &Result{
		UnifiedDiff:  out.String(),
		AddedLines:   added,
		DeletedLines: deleted,
	}
}

func (g *Generator) colorize(text string, attr color.Attribute) string {
	if !g.colorEnabled {
		return text
	}
	return color.New(attr).Sprint(text)
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
