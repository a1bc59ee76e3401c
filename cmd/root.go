package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/strategy-eval/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "strategy-eval",
	Short: "Compare prompting strategies for LLM question answering",
	Long: `strategy-eval benchmarks prompting strategies on short-answer question sets.
Every sampled question is answered once with chain of thought (cot) and once with
a staged pyramid of thought (pot). Answers are graded against gold answers with a
deterministic normalized edit-distance metric and summarized per answer type and
question complexity.

Models can be hosted APIs or open-weight models served on the cluster through
KServe. All functionality is also exposed via an MCP server with OAuth 2.1
authentication and a small REST API.

When run without subcommands, it starts the MCP server (equivalent to 'strategy-eval serve').`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = c

		level := parseLogLevel(cfg.LogLevel)
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = slog.LevelDebug
		}
		// Logs go to stderr so the stdio MCP transport keeps stdout to itself.
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
		return nil
	},
}

// cfg is loaded before any subcommand runs.
var cfg = &config.Config{LogLevel: "info"}

// serveCmd is stored so the root command can delegate to it by default.
var serveCmd *cobra.Command

var (
	buildCommit = "unknown"
	buildDate   = "unknown"
)

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// SetBuildInfo sets the commit and build date for the version command.
func SetBuildInfo(commit, date string) {
	buildCommit = commit
	buildDate = date
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "strategy-eval version %s\n" .Version}}`)

	// Default to the serve command when invoked without arguments.
	// The root command cannot parse serve-specific flags (like --transport),
	// so it runs serve with its defaults.
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(os.Stderr, "No subcommand specified. Defaulting to 'serve' (stdio transport).")
		fmt.Fprintln(os.Stderr, "For HTTP transport or OAuth, use: strategy-eval serve --transport streamable-http")
		fmt.Fprintln(os.Stderr)
		if err := serveCmd.RunE(serveCmd, args); err != nil {
			slog.Error("serve failed", "error", err)
			os.Exit(1)
		}
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func init() {
	serveCmd = newServeCmd()
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newScoreCmd())
	rootCmd.AddCommand(newEvaluateCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newSurveyCmd())
	rootCmd.AddCommand(newReportCmd())

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().String("kubeconfig", "", "Path to kubeconfig file")
	rootCmd.PersistentFlags().StringP("namespace", "n", "strategy-eval", "Kubernetes namespace for served models")
}
