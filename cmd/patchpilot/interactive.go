package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
)

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".patchpilot_history"
	}
	return filepath.Join(home, ".patchpilot_history")
}

func (a *app) completer() *readline.PrefixCompleter {
	loadedPaths := func(string) []string { return a.files.LoadedPaths() }
	snippetNames := func(string) []string { return a.dispatch.snippets.Names() }

	return readline.NewPrefixCompleter(
		readline.PcItem("/file"),
		readline.PcItem("/folder"),
		readline.PcItem("/list"),
		readline.PcItem("/show", readline.PcItemDynamic(loadedPaths)),
		readline.PcItem("/unload", readline.PcItemDynamic(loadedPaths)),
		readline.PcItem("/unload-all"),
		readline.PcItem("/unload-folder"),
		readline.PcItem("/unload-pattern"),
		readline.PcItem("/pin", readline.PcItemDynamic(loadedPaths)),
		readline.PcItem("/unpin", readline.PcItemDynamic(loadedPaths)),
		readline.PcItem("/tokens"),
		readline.PcItem("/context-info"),
		readline.PcItem("/fix", readline.PcItemDynamic(loadedPaths)),
		readline.PcItem("/refactor", readline.PcItemDynamic(loadedPaths)),
		readline.PcItem("/patch", readline.PcItemDynamic(loadedPaths)),
		readline.PcItem("/snippet",
			readline.PcItem("save"),
			readline.PcItem("show", readline.PcItemDynamic(snippetNames)),
			readline.PcItem("del", readline.PcItemDynamic(snippetNames)),
			readline.PcItem("list"),
		),
		readline.PcItem("/reset"),
		readline.PcItem("/help"),
		readline.PcItem("/exit"),
	)
}

// runREPL is the interactive loop. Ctrl-C on an empty prompt is ignored;
// Ctrl-C during a streaming reply cancels just that stream; Ctrl-D exits.
func (a *app) runREPL() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "patchpilot> ",
		HistoryFile:     historyFile(),
		AutoComplete:    a.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	a.dispatch.rl = rl

	a.disp.Info(fmt.Sprintf("PatchPilot %s  (model: %s)", version, a.cfg.Model))
	a.disp.Info("Type /help for commands, /exit to quit.")
	a.disp.Newline()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !a.dispatch.Dispatch(line) {
			return nil
		}
	}
}

// withInterrupt runs fn under a context cancelled by SIGINT, so Ctrl-C stops
// the in-flight stream instead of killing the REPL.
func (a *app) withInterrupt(fn func(ctx context.Context)) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	fn(ctx)
}
