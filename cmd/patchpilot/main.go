// Command patchpilot is an interactive AI assistant for project files: it
// loads documents into a token-budgeted context, streams model replies, and
// can apply model-generated patches safely.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"patchpilot/internal/config"
	ctxmgr "patchpilot/internal/context"
	"patchpilot/internal/display"
	apperrors "patchpilot/internal/errors"
	"patchpilot/internal/files"
	"patchpilot/internal/llm"
	"patchpilot/internal/logging"
	"patchpilot/internal/session"
)

var version = "0.2.0"

func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

type app struct {
	cfg       *config.Config
	disp      *display.Display
	assembler *ctxmgr.Manager
	session   *session.Manager
	files     *files.Manager
	dispatch  *dispatcher
}

func newRootCommand() *cobra.Command {
	var (
		flagModel       string
		flagTemperature float64
		flagDebug       bool
	)

	rootCmd := &cobra.Command{
		Use:   "patchpilot [prompt]",
		Short: "AI assistant for reading, explaining, and patching project files",
		Long: `PatchPilot keeps a token-budgeted context of project files and a rolling
conversation, streams replies from an OpenAI-compatible or Ollama endpoint,
and can apply model-generated patches with diff preview and backups.

Run without arguments for the interactive REPL; pass a prompt for a single
exchange.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				logging.SetLevel(logging.LevelDebug)
			} else {
				logging.SetLevel(logging.LevelInfo)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if flagModel != "" {
				cfg.Model = flagModel
			}
			if cmd.Flags().Changed("temperature") {
				cfg.Temperature = flagTemperature
			}

			a, err := buildApp(cfg)
			if err != nil {
				return err
			}

			if len(args) > 0 {
				return a.runSinglePrompt(strings.Join(args, " "))
			}
			if !isTTY() {
				return cmd.Help()
			}
			return a.runREPL()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "Model override")
	rootCmd.PersistentFlags().Float64VarP(&flagTemperature, "temperature", "t", 0.4, "Sampling temperature")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "Verbose debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("patchpilot %s\n", version)
		},
	})

	return rootCmd
}

func buildApp(cfg *config.Config) (*app, error) {
	disp := display.New()

	if cfg.Provider != "ollama" && cfg.APIKey == "" {
		if key, ok := promptForAPIKey(); ok {
			cfg.APIKey = key
		} else {
			return nil, fmt.Errorf("no API key provided (set OPENAI_API_KEY or PATCHPILOT_API_KEY)")
		}
	}

	providerCfg := llm.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	}
	var provider llm.Provider
	if cfg.Provider == "ollama" {
		provider = llm.NewOllamaProvider(providerCfg)
	} else {
		provider = llm.NewOpenAIProvider(providerCfg)
	}

	assembler := ctxmgr.NewManager(cfg.SystemPrompt, cfg.MaxTotalTokens, cfg.MaxFileTokens, cfg.MaxConvoMessages)

	retry := apperrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	retry.BaseDelay = cfg.RetryDelay

	sess := session.NewManager(provider, assembler, disp, cfg.Temperature, cfg.MaxResponseTokens, retry)
	fileMgr := files.NewManager(assembler, cfg.MaxFiles, cfg.DefaultExtensions)

	a := &app{
		cfg:       cfg,
		disp:      disp,
		assembler: assembler,
		session:   sess,
		files:     fileMgr,
	}
	a.dispatch = newDispatcher(a)
	return a, nil
}

func promptForAPIKey() (string, bool) {
	if !isTTY() {
		return "", false
	}
	fmt.Print("Enter API key (or set OPENAI_API_KEY env var): ")
	var key string
	if _, err := fmt.Scanln(&key); err != nil {
		return "", false
	}
	key = strings.TrimSpace(key)
	return key, key != ""
}

// runSinglePrompt sends one prompt and exits. SIGINT cancels the stream.
func (a *app) runSinglePrompt(prompt string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.disp.AssistantHeader()
	_, err := a.session.Send(ctx, prompt, true)
	return err
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Printf("%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}
