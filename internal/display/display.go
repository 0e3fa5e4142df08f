// Package display centralises terminal output so the rest of the app stays
// I/O-free. All calls are fire-and-forget; nothing reads a result back.
package display

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Display writes user-facing output to stdout. Colors are disabled when
// stdout is not a terminal or NO_COLOR is set.
type Display struct {
	dim       *color.Color
	red       *color.Color
	green     *color.Color
	yellow    *color.Color
	blue      *color.Color
	magenta   *color.Color
	bold      *color.Color
	separator *color.Color
}

// New creates a display bound to stdout.
func New() *Display {
	if !term.IsTerminal(int(os.Stdout.Fd())) || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
	return &Display{
		dim:       color.New(color.FgHiBlack),
		red:       color.New(color.FgRed),
		green:     color.New(color.FgGreen),
		yellow:    color.New(color.FgYellow),
		blue:      color.New(color.FgBlue),
		magenta:   color.New(color.FgMagenta),
		bold:      color.New(color.Bold),
		separator: color.New(color.FgHiBlack),
	}
}

// Stream prints streamed model content inline, unbuffered.
func (d *Display) Stream(text string) {
	fmt.Print(text)
}

// Reasoning prints reasoning/thinking tokens dimmed, inline.
func (d *Display) Reasoning(text string) {
	d.dim.Print(text)
}

func (d *Display) Info(text string) {
	d.blue.Println(text)
}

func (d *Display) Success(text string) {
	d.green.Printf("✓ %s\n", text)
}

func (d *Display) Warning(text string) {
	d.yellow.Printf("⚠ %s\n", text)
}

func (d *Display) Error(text string) {
	d.red.Printf("Error: %s\n", text)
}

func (d *Display) Newline() {
	fmt.Println()
}

func (d *Display) Separator() {
	d.separator.Println(strings.Repeat("-", 60))
}

// AssistantHeader prints the prompt prefix before a streamed reply.
func (d *Display) AssistantHeader() {
	fmt.Println()
	d.magenta.Print("Assistant: ")
}

// Table prints a simple aligned ASCII table.
func (d *Display) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, val := range row {
			if i < len(widths) && len(val) > widths[i] {
				widths[i] = len(val)
			}
		}
	}

	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = pad(h, widths[i])
	}
	d.bold.Println(strings.Join(cells, "  "))

	total := 0
	for _, w := range widths {
		total += w
	}
	d.separator.Println(strings.Repeat("-", total+2*(len(headers)-1)))

	for _, row := range rows {
		for i, val := range row {
			cells[i] = pad(val, widths[i])
		}
		fmt.Println(strings.Join(cells[:len(row)], "  "))
	}
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
