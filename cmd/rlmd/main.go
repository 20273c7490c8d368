// Package main implements rlmd, the command-line entry point for the RLM
// runtime.
//
// # File Index
//
// Entry Point & Global State:
//   - main.go      - Entry point, rootCmd, global flags, init()
//   - runtime.go   - buildRuntime(), the shared dependency-wiring helper
//     every subcommand calls to assemble only what it needs
//
// Commands:
//   - cmd_execute.go  - executeCmd: run a query through the orchestrator
//   - cmd_status.go   - statusCmd: report configuration/environment status
//   - cmd_verify.go   - verifyCmd: run epistemic verification over a claim
//   - cmd_trace.go    - traceCmd: render a reasoning-trace graph export
//   - cmd_speclink.go - speclinkCmd: build/report the spec-coverage index
//   - cmd_cascade.go  - cascadeCmd: run the proof-automation cascade on a goal
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rlm-systems/rlm-runtime/internal/logging"
)

var (
	verbose    bool
	apiKey     string
	workspace  string
	configPath string
	timeout    time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rlmd",
	Short: "rlmd - recursive language-model orchestration runtime",
	Long: `rlmd drives queries through the RLM orchestrator: complexity
classification, typed predict pipelines, a sandboxed REPL, epistemic
verification, and adversarial review, all under a cost/budget ceiling.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if env := envFilePath(); env != "" {
			if err := godotenv.Load(env); err != nil && !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", env, err)
			}
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func envFilePath() string {
	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}
	if ws == "" {
		return ""
	}
	return ws + string(os.PathSeparator) + ".env"
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "LLM provider API key (or set RLM_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to rlmd.toml (default: built-in defaults)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(executeCmd, statusCmd, verifyCmd, traceCmd, speclinkCmd, cascadeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
