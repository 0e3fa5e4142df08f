package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"patchpilot/internal/diff"
	"patchpilot/internal/files"
	"patchpilot/internal/token"
)

// dispatcher routes REPL input: slash commands locally, everything else to
// the streaming session.
type dispatcher struct {
	app      *app
	patches  *files.PatchManager
	snippets *files.SnippetManager
	rl       *readline.Instance

	lastResponse string
}

func newDispatcher(a *app) *dispatcher {
	d := &dispatcher{
		app:      a,
		snippets: files.NewSnippetManager(),
	}
	generator := diff.NewGenerator(a.cfg.DiffPreview)
	d.patches = files.NewPatchManager(a.cfg.BackupOnWrite, a.cfg.DiffPreview, generator, os.Stdout, d.confirm)
	return d
}

func (d *dispatcher) confirm(prompt string) bool {
	if d.rl == nil {
		return false
	}
	d.rl.SetPrompt(prompt)
	defer d.rl.SetPrompt("patchpilot> ")
	answer, err := d.rl.Readline()
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// Dispatch handles one input line. Returns false when the REPL should exit.
func (d *dispatcher) Dispatch(line string) bool {
	if !strings.HasPrefix(line, "/") {
		d.chat(line)
		return true
	}

	cmd, rest := splitCommand(line)
	switch cmd {
	case "/exit", "/quit":
		d.app.disp.Info("Goodbye.")
		return false
	case "/help":
		d.help()
	case "/file":
		d.loadFile(rest)
	case "/folder":
		d.loadFolder(rest)
	case "/list":
		d.list()
	case "/show":
		d.show(rest)
	case "/unload":
		d.unload(rest)
	case "/unload-all":
		d.unloadAll(rest)
	case "/unload-folder":
		d.unloadFolder(rest)
	case "/unload-pattern":
		d.unloadPattern(rest)
	case "/pin":
		d.pin(rest, true)
	case "/unpin":
		d.pin(rest, false)
	case "/tokens":
		d.tokens()
	case "/context-info":
		d.contextInfo()
	case "/fix":
		d.codeCommand("fix", rest)
	case "/refactor":
		d.codeCommand("refactor", rest)
	case "/patch":
		d.patch(rest)
	case "/snippet":
		d.snippet(rest)
	case "/reset":
		d.app.session.Reset()
		d.app.disp.Success("Conversation history cleared (files and pins kept).")
	default:
		d.app.disp.Warning(fmt.Sprintf("Unknown command %s. Type /help.", cmd))
	}
	return true
}

func splitCommand(line string) (string, string) {
	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToLower(parts[0])
	rest := ""
	if len(parts) == 2 {
		rest = strings.TrimSpace(parts[1])
	}
	return cmd, rest
}

func (d *dispatcher) chat(text string) {
	d.app.disp.AssistantHeader()
	d.app.withInterrupt(func(ctx context.Context) {
		response, err := d.app.session.Send(ctx, text, true)
		if err == nil && response != "" {
			d.lastResponse = response
		}
	})
}

func (d *dispatcher) help() {
	disp := d.app.disp
	disp.Info("Commands:")
	for _, line := range []string{
		"/file <path>                 Load a file into context",
		"/folder <path> [globs...]    Load matching files from a folder",
		"/list                        Show loaded files",
		"/show <path>                 Print a loaded file",
		"/unload <path>               Remove a file (pinned files refuse)",
		"/unload-all [--force]        Remove all files (--force includes pinned)",
		"/unload-folder <path>        Remove all files under a folder",
		"/unload-pattern <glob>       Remove files matching a glob",
		"/pin <path>  /unpin <path>   Protect a file from eviction",
		"/tokens                      Show token budget usage",
		"/context-info                Show the full context breakdown",
		"/fix <path>: <instructions>      Ask for a fix, preview and apply it",
		"/refactor <path>: <instructions> Ask for a refactor, preview and apply it",
		"/patch <path>                Apply the code block from the last reply",
		"/snippet save <name> | show <name> | del <name> | list",
		"/reset                       Clear conversation history",
		"/exit                        Quit",
	} {
		fmt.Println("  " + line)
	}
}

func (d *dispatcher) loadFile(path string) {
	if path == "" {
		d.app.disp.Warning("Usage: /file <path>")
		return
	}
	if err := d.app.files.Load(path); err != nil {
		d.app.disp.Error(err.Error())
		return
	}
	d.app.disp.Success(fmt.Sprintf("Loaded %s", path))
	d.tokens()
}

func (d *dispatcher) loadFolder(rest string) {
	if rest == "" {
		d.app.disp.Warning("Usage: /folder <path> [globs...]")
		return
	}
	args := strings.Fields(rest)
	folder := args[0]
	extensions := args[1:]

	count, errs := d.app.files.LoadFolder(folder, extensions)
	for _, e := range errs {
		d.app.disp.Warning(e)
	}
	d.app.disp.Success(fmt.Sprintf("Loaded %d file(s) from %s", count, folder))
	d.tokens()
}

func (d *dispatcher) list() {
	stats := d.app.assembler.Stats()
	if len(stats.Documents) == 0 {
		d.app.disp.Info("No files loaded. Use /file or /folder.")
		return
	}

	rows := make([][]string, 0, len(stats.Documents))
	for _, doc := range stats.Documents {
		pinned := ""
		if doc.Pinned {
			pinned = "📌"
		}
		rows = append(rows, []string{doc.ID, strconv.Itoa(doc.Tokens), pinned})
	}
	d.app.disp.Table([]string{"File", "Tokens", "Pinned"}, rows)
}

func (d *dispatcher) show(path string) {
	if path == "" {
		d.app.disp.Warning("Usage: /show <path>")
		return
	}
	content, ok := d.app.files.Content(path)
	if !ok {
		d.app.disp.Error(fmt.Sprintf("%s is not loaded", path))
		return
	}
	d.app.disp.Separator()
	fmt.Println(content)
	d.app.disp.Separator()
}

func (d *dispatcher) unload(path string) {
	if path == "" {
		d.app.disp.Warning("Usage: /unload <path>")
		return
	}
	if !d.app.files.Unload(path, false) {
		d.app.disp.Warning(fmt.Sprintf("%s is pinned; /unpin it first", path))
		return
	}
	d.app.disp.Success(fmt.Sprintf("Unloaded %s", path))
}

func (d *dispatcher) unloadAll(rest string) {
	force := rest == "--force"
	count := d.app.files.UnloadAll(!force)
	d.app.disp.Success(fmt.Sprintf("Unloaded %d file(s)", count))
	if !force {
		remaining := len(d.app.files.LoadedPaths())
		if remaining > 0 {
			d.app.disp.Info(fmt.Sprintf("%d pinned file(s) kept. Use /unload-all --force to remove them.", remaining))
		}
	}
}

func (d *dispatcher) unloadFolder(folder string) {
	if folder == "" {
		d.app.disp.Warning("Usage: /unload-folder <path>")
		return
	}
	count := d.app.files.UnloadFolder(folder)
	d.app.disp.Success(fmt.Sprintf("Unloaded %d file(s) under %s", count, folder))
}

func (d *dispatcher) unloadPattern(pattern string) {
	if pattern == "" {
		d.app.disp.Warning("Usage: /unload-pattern <glob>")
		return
	}
	count := d.app.files.UnloadPattern(pattern)
	d.app.disp.Success(fmt.Sprintf("Unloaded %d file(s) matching %s", count, pattern))
}

func (d *dispatcher) pin(path string, pin bool) {
	if path == "" {
		d.app.disp.Warning("Usage: /pin <path> or /unpin <path>")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		d.app.disp.Error(err.Error())
		return
	}
	if pin {
		if !d.app.assembler.Pin(abs) {
			d.app.disp.Error(fmt.Sprintf("%s is not loaded; /file it first", path))
			return
		}
		d.app.disp.Success(fmt.Sprintf("Pinned %s", abs))
		return
	}
	d.app.assembler.Unpin(abs)
	d.app.disp.Success(fmt.Sprintf("Unpinned %s", abs))
}

func (d *dispatcher) tokens() {
	stats := d.app.assembler.Stats()
	d.app.disp.Info(fmt.Sprintf("Context: ~%d / %d tokens (%d file(s), %d pinned, %d conversation message(s))",
		stats.TotalTokens, stats.MaxTotal, stats.DocumentCount, stats.PinnedCount, stats.ConversationLen))
}

func (d *dispatcher) contextInfo() {
	stats := d.app.assembler.Stats()
	d.tokens()

	rows := make([][]string, 0, len(stats.Documents))
	for _, doc := range stats.Documents {
		pinned := "no"
		if doc.Pinned {
			pinned = "yes"
		}
		precise := "-"
		if content, ok := d.app.files.Content(doc.ID); ok {
			precise = strconv.Itoa(token.Count(content))
		}
		rows = append(rows, []string{doc.ID, strconv.Itoa(doc.Tokens), precise, pinned})
	}
	if len(rows) > 0 {
		d.app.disp.Table([]string{"File", "Est. tokens", "Precise", "Pinned"}, rows)
	}
	d.app.disp.Info(fmt.Sprintf("Model: %s  Temperature: %.2f  API key: %s",
		d.app.cfg.Model, d.app.cfg.Temperature, d.app.cfg.MaskedAPIKey()))
}

// codeCommand handles /fix and /refactor. The synthesized full-file prompt is
// sent ephemerally; only a short summary is recorded in history.
func (d *dispatcher) codeCommand(verb, rest string) {
	path, instructions, ok := strings.Cut(rest, ":")
	if !ok || strings.TrimSpace(path) == "" {
		d.app.disp.Warning(fmt.Sprintf("Usage: /%s <path>: <instructions>", verb))
		return
	}
	path = strings.TrimSpace(path)
	instructions = strings.TrimSpace(instructions)

	content, loaded := d.app.files.Content(path)
	if !loaded {
		if err := d.app.files.Load(path); err != nil {
			d.app.disp.Error(err.Error())
			return
		}
		content, _ = d.app.files.Content(path)
	}

	prompt := buildCodePrompt(verb, path, instructions, content)
	d.app.assembler.AppendUser(fmt.Sprintf("/%s %s: %s", verb, path, instructions))

	d.app.disp.AssistantHeader()
	var response string
	d.app.withInterrupt(func(ctx context.Context) {
		response, _ = d.app.session.Send(ctx, prompt, false)
	})
	if response == "" {
		return
	}
	d.lastResponse = response

	code, found := d.patches.ExtractCodeBlock(response)
	if !found {
		d.app.disp.Warning("No code block found in the reply; nothing to apply.")
		return
	}
	applied, message := d.patches.Apply(path, code, true, false)
	if applied {
		d.app.disp.Success(message)
		// Refresh the document layer so the next prompt sees the new version.
		_ = d.app.files.Load(path)
	} else {
		d.app.disp.Info(message)
	}
}

func buildCodePrompt(verb, path, instructions, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please %s the file %s.\n", verb, path)
	if instructions != "" {
		fmt.Fprintf(&b, "Instructions: %s\n", instructions)
	}
	b.WriteString("\nCurrent content:\n```\n")
	b.WriteString(content)
	b.WriteString("\n```\n\nReturn the complete updated file in a single fenced code block.")
	return b.String()
}

func (d *dispatcher) patch(path string) {
	if path == "" {
		d.app.disp.Warning("Usage: /patch <path>")
		return
	}
	if d.lastResponse == "" {
		d.app.disp.Warning("No previous reply to take a patch from.")
		return
	}
	code, found := d.patches.ExtractCodeBlock(d.lastResponse)
	if !found {
		d.app.disp.Warning("The last reply contains no code block.")
		return
	}
	applied, message := d.patches.Apply(path, code, true, false)
	if applied {
		d.app.disp.Success(message)
		if d.app.files.IsLoaded(path) {
			_ = d.app.files.Load(path)
		}
	} else {
		d.app.disp.Info(message)
	}
}

func (d *dispatcher) snippet(rest string) {
	sub, arg := splitCommand("/" + rest)
	sub = strings.TrimPrefix(sub, "/")

	switch sub {
	case "save":
		if arg == "" {
			d.app.disp.Warning("Usage: /snippet save <name>")
			return
		}
		if d.lastResponse == "" {
			d.app.disp.Warning("No previous reply to save from.")
			return
		}
		code, found := d.patches.ExtractCodeBlock(d.lastResponse)
		if !found {
			code = d.lastResponse
		}
		d.snippets.Save(arg, code)
		d.app.disp.Success(fmt.Sprintf("Snippet %q saved (%d tokens est.)", arg, token.Estimate(code)))
	case "show":
		code, ok := d.snippets.Get(arg)
		if !ok {
			d.app.disp.Error(fmt.Sprintf("No snippet named %q", arg))
			return
		}
		d.app.disp.Separator()
		fmt.Println(code)
		d.app.disp.Separator()
	case "del", "delete":
		if d.snippets.Delete(arg) {
			d.app.disp.Success(fmt.Sprintf("Snippet %q deleted", arg))
		} else {
			d.app.disp.Error(fmt.Sprintf("No snippet named %q", arg))
		}
	case "list":
		names := d.snippets.Names()
		if len(names) == 0 {
			d.app.disp.Info("No snippets saved.")
			return
		}
		for _, name := range names {
			fmt.Println("  " + name)
		}
	default:
		d.app.disp.Warning("Usage: /snippet save|show|del|list [name]")
	}
}
