package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vbonduro/pillpal/internal/assistant"
	"github.com/vbonduro/pillpal/internal/assistant/claude"
	"github.com/vbonduro/pillpal/internal/assistant/gemini"
	"github.com/vbonduro/pillpal/internal/assistant/ollama"
	"github.com/vbonduro/pillpal/internal/assistant/openai"
	"github.com/vbonduro/pillpal/internal/config"
	"github.com/vbonduro/pillpal/internal/intake"
	"github.com/vbonduro/pillpal/internal/logging"
	"github.com/vbonduro/pillpal/internal/prompts"
)

// app holds what every subcommand needs once configuration is loaded.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	prompts      *prompts.Set
	decoder      *intake.Decoder
	identifier   *assistant.Identifier
	conversation *assistant.Conversation
	cleanup      func()
}

// loader builds the app for a subcommand. Interactive commands log quietly.
type loader func(ctx context.Context, interactive bool) (*app, error)

func newRootCmd() *cobra.Command {
	var (
		backendFlag string
		verbose     bool
	)

	root := &cobra.Command{
		Use:   "pillpal",
		Short: "Identify medications from a photo and ask about them",
		Long: `pillpal identifies a pill from a photo with a vision-capable AI model and
answers follow-up questions about it. It is informational only and never a
substitute for professional medical advice.

Examples:
  pillpal serve                 Start the web interface
  pillpal identify pill.jpg     Identify a pill and print the result
  pillpal chat pill.jpg         Identify a pill and ask questions about it`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&backendFlag, "backend", "b", "", "AI backend: gemini, claude, openai or ollama (overrides AI_BACKEND)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured level in interactive commands")

	var load loader = func(ctx context.Context, interactive bool) (*app, error) {
		cfg := config.Load()
		if backendFlag != "" {
			cfg.AIBackend = backendFlag
		}
		if interactive && !verbose {
			// Keep the terminal for the conversation.
			cfg.LogLevel = "warn"
			cfg.LogFormat = "text"
		}
		return newApp(ctx, cfg)
	}

	root.AddCommand(newServeCmd(load))
	root.AddCommand(newIdentifyCmd(load))
	root.AddCommand(newChatCmd(load))
	return root
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, cleanup, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	p, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		cleanup()
		return nil, err
	}

	backend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	return &app{
		cfg:          cfg,
		logger:       logger,
		prompts:      p,
		decoder:      intake.NewDecoder(cfg.MaxImageBytes, cfg.MaxImageDimension),
		identifier:   assistant.NewIdentifier(backend, p, logger),
		conversation: assistant.NewConversation(backend, p, logger),
		cleanup:      cleanup,
	}, nil
}

func newBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (assistant.Backend, error) {
	switch cfg.AIBackend {
	case "gemini", "":
		logger.Info("using Gemini backend", "model", cfg.GeminiModel)
		return gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)
	case "claude":
		logger.Info("using Claude backend", "model", cfg.ClaudeModel)
		return claude.New(cfg.ClaudeAPIKey, cfg.ClaudeModel, "")
	case "openai":
		logger.Info("using OpenAI backend", "model", cfg.OpenAIModel)
		return openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	case "ollama":
		logger.Info("using Ollama backend", "model", cfg.OllamaModel)
		return ollama.New(cfg.OllamaHost, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("unknown AI backend %q", cfg.AIBackend)
	}
}
