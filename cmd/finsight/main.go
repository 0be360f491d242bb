// finsight answers financial questions from the command line: one shot with
// a query argument, or an interactive prompt without one.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/finsight-ai/finsight/pkg/agent"
	"github.com/finsight-ai/finsight/pkg/config"
	"github.com/finsight-ai/finsight/pkg/graph"
	"github.com/finsight-ai/finsight/pkg/llm"
	"github.com/finsight-ai/finsight/pkg/model"
	"github.com/finsight-ai/finsight/pkg/ticker"
	"github.com/finsight-ai/finsight/pkg/tools"
	"github.com/finsight-ai/finsight/pkg/tools/fin"
)

// Exit codes.
const (
	exitOK        = 0
	exitConfig    = 1
	exitRuntime   = 2
	exitCancelled = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "finsight.yaml", "path to the configuration file")
	queryFlag := flag.String("query", "", "single-shot query (alternative to the positional argument)")
	debug := flag.Bool("debug", false, "emit node trace lines to stderr")
	flag.Parse()

	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded environment from .env")
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "path", *configPath, "error", err)
		return exitConfig
	}
	if cfg.LLM.APIKey == "" {
		logger.Error("No LLM API key configured", "provider", cfg.LLM.Provider)
		return exitConfig
	}

	client, err := llm.New(llm.Provider(cfg.LLM.Provider), llm.Options{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		logger.Error("Failed to create LLM client", "error", err)
		return exitConfig
	}

	registry, err := tools.NewRegistry(fin.FromEnv(logger)...)
	if err != nil {
		logger.Error("Failed to build tool registry", "error", err)
		return exitConfig
	}
	logger.Info("Tool registry ready", "tools", len(registry.Names()))

	var observer graph.Observer = agent.NewMetricsObserver()
	if *debug {
		observer = agent.MultiObserver{observer, traceObserver{}}
	}

	pipeline, err := agent.NewPipeline(agent.Dependencies{
		LLM:       client,
		Registry:  registry,
		Extractor: ticker.NewCatalogExtractor(),
		Engine:    cfg.Engine,
		Logger:    logger,
		Observer:  observer,
	})
	if err != nil {
		logger.Error("Failed to build pipeline", "error", err)
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	query := strings.TrimSpace(*queryFlag)
	if query == "" && flag.NArg() > 0 {
		query = strings.TrimSpace(strings.Join(flag.Args(), " "))
	}
	if query != "" {
		return runQuery(ctx, pipeline, query, *debug)
	}
	return runREPL(ctx, pipeline, *debug)
}

// runQuery executes one query and maps its outcome to an exit code.
func runQuery(ctx context.Context, pipeline *agent.Pipeline, query string, debug bool) int {
	state, err := pipeline.Execute(ctx, uuid.NewString(), query)
	if debug && state != nil {
		for _, line := range state.DebugMessages {
			fmt.Fprintln(os.Stderr, line)
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "cancelled")
		return exitCancelled
	case errors.Is(err, agent.ErrBudgetExhausted):
		fmt.Fprintln(os.Stderr, "query aborted: graph step limit exceeded")
		return exitRuntime
	case err != nil:
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		return exitRuntime
	}

	printResult(state)
	return exitOK
}

// runREPL reads queries from stdin until EOF, "exit" or interrupt.
func runREPL(ctx context.Context, pipeline *agent.Pipeline, debug bool) int {
	fmt.Println("finsight interactive mode. Type a question, or \"exit\" to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	for {
		fmt.Print("finsight> ")
		if !scanner.Scan() {
			fmt.Println()
			return exitOK
		}
		if ctx.Err() != nil {
			return exitCancelled
		}

		query := strings.TrimSpace(scanner.Text())
		switch query {
		case "":
			continue
		case "exit", "quit":
			return exitOK
		}

		code := runQuery(ctx, pipeline, query, debug)
		if code == exitCancelled {
			return exitCancelled
		}
		fmt.Println()
	}
}

// traceObserver streams graph transitions to stderr as they happen, so a
// --debug run shows progress before the final trace dump.
type traceObserver struct{}

func (traceObserver) NodeStarted(runID, node string, step int) {
	fmt.Fprintf(os.Stderr, "[%s] step %d: %s\n", runID, step, node)
}

func (traceObserver) NodeFinished(string, string, int) {}

func (traceObserver) Routed(runID, from, to string) {
	fmt.Fprintf(os.Stderr, "[%s] %s -> %s\n", runID, from, to)
}

// printResult renders the structured artifact for a terminal.
func printResult(state *model.FinanceState) {
	out := state.StructuredOutput
	if out == nil {
		return
	}
	fmt.Println(out.Summary)

	for _, block := range out.ContentBlocks {
		if block.Type == model.BlockText && block.Text != out.Summary {
			fmt.Println()
			fmt.Println(block.Text)
		}
	}
	if len(out.KeyInsights) > 0 {
		fmt.Println("\nKey insights:")
		for _, insight := range out.KeyInsights {
			fmt.Printf("  - %s\n", insight)
		}
	}
	if len(out.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, rec := range out.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
	}
}
