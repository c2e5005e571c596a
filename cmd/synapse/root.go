package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/riaworks/aios-core-sub000/internal/config"
	"github.com/riaworks/aios-core-sub000/internal/engine"
	"github.com/riaworks/aios-core-sub000/internal/logging"
)

var (
	// Global flags
	verbose    bool
	output     string
	cfgFile    string
	synapseDir string

	// Set by the root pre-run.
	cfg    = config.Default()
	logger = zap.NewNop()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "synapse",
	Short: "Context assembly engine for agent sessions",
	Long: `synapse assembles a bounded rules document for every user prompt.

It reads the .synapse manifest and domain files, decides how much context
budget the session has left, runs the eight rule layers and emits the
<synapse-rules> document for the agent to consume.

Commands:
  init       Create a starter .synapse directory
  hook       UserPromptSubmit hook (JSON on stdin, JSON on stdout)
  run        Assemble a document for a prompt from the command line
  diagnose   Score the pipelines from their metrics files
  cache      Inspect or clear the squad discovery cache
  config     Show resolved configuration
  version    Show version information`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		syncConfigFlagToEnv()
		c, err := config.Load(&config.Config{
			Output:     output,
			Verbose:    verbose,
			SynapseDir: synapseDir,
		})
		if err != nil {
			return err
		}
		cfg = c
		logger = logging.Must(logging.Options{Verbose: cfg.Verbose, File: cfg.LogFile})
		if err := cfg.Validate(); err != nil {
			logger.Warn("using default settings", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "synapse:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output format (text, json)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: .synapse/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&synapseDir, "synapse-dir", "", "Synapse directory (default: .synapse)")
}

// GetOutput returns the resolved output format.
func GetOutput() string {
	return cfg.Output
}

func syncConfigFlagToEnv() {
	path := strings.TrimSpace(cfgFile)
	if path == "" {
		return
	}
	_ = os.Setenv("SYNAPSE_CONFIG", path)
}

// workingDir returns dir, or the process working directory when dir is empty.
func workingDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}

func newEngine(cwd string) *engine.Engine {
	return engine.New(cfg.EngineConfig(cwd), engine.WithLogger(logger))
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
