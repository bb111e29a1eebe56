package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"querynerd/internal/action"
	"querynerd/internal/agent"
	"querynerd/internal/config"
	"querynerd/internal/decision"
	"querynerd/internal/logging"
	"querynerd/internal/memory"
	"querynerd/internal/perception"
)

var (
	// Global flags
	configPath string
	apiKey     string
	dbPath     string
	strategy   string
	debugMode  bool

	cfg *config.Config
)

// rootCmd starts the interactive session when run without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "querynerd",
	Short: "querynerd - an agentic query assistant",
	Long: `querynerd answers natural-language queries through a perceive-decide-act
control loop. Each query becomes a session: the agent judges the input,
plans steps, executes tools, and replans when a step does not help. When
the plan fails repeatedly the agent escalates to you, the human operator.

Run without arguments to start the interactive prompt.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if apiKey != "" {
			cfg.LLM.APIKey = apiKey
		}
		if dbPath != "" {
			cfg.Memory.DBPath = dbPath
		}
		if strategy != "" {
			cfg.Agent.Strategy = strategy
		}
		if debugMode {
			cfg.Logging.Debug = true
		}

		cats := make(map[string]bool, len(cfg.Logging.Categories))
		for _, c := range cfg.Logging.Categories {
			cats[c] = true
		}
		if err := logging.Initialize(logging.Options{
			DebugMode:  cfg.Logging.Debug,
			Level:      cfg.Logging.Level,
			Categories: cats,
			Dir:        cfg.Logging.Dir,
		}); err != nil {
			return err
		}
		logging.Boot("querynerd starting, db=%s model=%s", cfg.Memory.DBPath, cfg.LLM.Model)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive()
	},
}

// askCmd answers a single query and exits.
var askCmd = &cobra.Command{
	Use:   "ask [query...]",
	Short: "Answer a single query and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(strings.Join(args, " "))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (overrides config and GEMINI_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "memory database path")
	rootCmd.PersistentFlags().StringVar(&strategy, "strategy", "", "planning strategy (default exploratory)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable diagnostic logging")
	rootCmd.AddCommand(askCmd)
}

// buildLoop wires the collaborators into a control loop. The returned
// cleanup closes the memory store.
func buildLoop(human agent.HumanInput, trace func(string)) (*agent.Loop, func(), error) {
	client := perception.NewGeminiClientWithConfig(perception.GeminiConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		Temperature: cfg.LLM.Temperature,
	})

	var perc agent.Perceiver
	var err error
	if cfg.Agent.PerceptionPrompt != "" {
		perc, err = perception.NewFromPromptFile(client, cfg.Agent.PerceptionPrompt)
		if err != nil {
			return nil, nil, err
		}
	} else {
		perc = perception.New(client)
	}

	var dec agent.Decider
	if cfg.Agent.DecisionPrompt != "" {
		dec, err = decision.NewFromPromptFile(client, cfg.Agent.DecisionPrompt)
		if err != nil {
			return nil, nil, err
		}
	} else {
		dec = decision.New(client)
	}

	store, err := memory.Open(cfg.Memory.DBPath)
	if err != nil {
		return nil, nil, err
	}

	registry := action.NewRegistry()
	registry.SetMetrics(store)
	if err := registerTools(registry); err != nil {
		store.Close()
		return nil, nil, err
	}

	loop, err := agent.NewLoop(agent.LoopConfig{
		Perceiver:   perc,
		Decider:     dec,
		Executor:    registry,
		Human:       human,
		Memory:      store,
		Performance: store,
		Recorder:    store,
		Strategy:    cfg.Agent.Strategy,
		AgentName:   cfg.Agent.Name,
		Trace:       trace,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return loop, func() { store.Close() }, nil
}

// registerTools installs the built-in tools. Generated code blocks are not
// executed in this build; the tool reports an error so the loop's human
// fallback supplies the step result instead.
func registerTools(registry *action.Registry) error {
	return registry.Register("raw_code_block", func(ctx context.Context, args map[string]any) (string, error) {
		return "", fmt.Errorf("code execution is disabled in this build")
	})
}

func runOnce(query string) error {
	reader, err := newLineReader()
	if err != nil {
		return err
	}
	defer reader.Close()

	loop, cleanup, err := buildLoop(reader, printTrace)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := loop.Run(ctx, query)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func runInteractive() error {
	reader, err := newLineReader()
	if err != nil {
		return err
	}
	defer reader.Close()

	loop, cleanup, err := buildLoop(reader, printTrace)
	if err != nil {
		return err
	}
	defer cleanup()

	printBanner()
	for {
		query, err := reader.ReadQuery()
		if err != nil {
			fmt.Println()
			return nil
		}
		switch strings.ToLower(query) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		result, err := loop.Run(ctx, query)
		stop()
		if err != nil {
			printError(err)
			continue
		}
		printResult(result)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
