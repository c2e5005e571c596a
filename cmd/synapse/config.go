package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/riaworks/aios-core-sub000/internal/config"
)

var (
	configShow bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View synapse configuration.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (SYNAPSE_*)
  3. Project config (.synapse/config.yaml)
  4. Home config (~/.synapse/config.yaml)
  5. Defaults

Environment variables:
  SYNAPSE_CONFIG          - Explicit project config file path
  SYNAPSE_OUTPUT          - Output format (text, json)
  SYNAPSE_DIR             - Synapse directory
  SYNAPSE_SQUADS_DIR      - Squads directory
  SYNAPSE_VERBOSE         - Enable debug logging (true/1)
  SYNAPSE_DEVMODE         - Append diagnostics to every document (true/1)
  SYNAPSE_LOG_FILE        - Log file path (default: stderr)
  SYNAPSE_MAX_TOKENS      - Context window size
  SYNAPSE_SQUAD_CACHE_TTL - Squad cache TTL (e.g. 60s)
  SYNAPSE_HISTORY_DB      - Diagnostics history database

Examples:
  synapse config --show           # Show resolved configuration
  synapse config --show -o json   # Output as JSON`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configShow, "show", false, "Show resolved configuration with sources")
}

var configEnvVars = []string{
	"SYNAPSE_CONFIG",
	"SYNAPSE_OUTPUT",
	"SYNAPSE_DIR",
	"SYNAPSE_SQUADS_DIR",
	"SYNAPSE_VERBOSE",
	"SYNAPSE_DEVMODE",
	"SYNAPSE_LOG_FILE",
	"SYNAPSE_MAX_TOKENS",
	"SYNAPSE_SQUAD_CACHE_TTL",
	"SYNAPSE_HISTORY_DB",
}

func runConfig(cmd *cobra.Command, args []string) error {
	if !configShow {
		return cmd.Help()
	}

	resolved := config.Resolve(&config.Config{
		Output:     output,
		Verbose:    verbose,
		SynapseDir: synapseDir,
	})

	w := cmd.OutOrStdout()
	if GetOutput() == "json" {
		return writeJSON(w, resolved)
	}

	fmt.Fprintln(w, "Synapse Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Config files:")
	home, _ := os.UserHomeDir()
	printConfigFile(w, "Home:   ", filepath.Join(home, ".synapse", "config.yaml"))
	project := os.Getenv("SYNAPSE_CONFIG")
	if project == "" {
		cwd, _ := os.Getwd()
		project = filepath.Join(cwd, ".synapse", "config.yaml")
	}
	printConfigFile(w, "Project:", project)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Resolved values:")
	fmt.Fprintf(w, "  output:          %v  (from %s)\n", resolved.Output.Value, resolved.Output.Source)
	fmt.Fprintf(w, "  synapse_dir:     %v  (from %s)\n", resolved.SynapseDir.Value, resolved.SynapseDir.Source)
	fmt.Fprintf(w, "  squads_dir:      %v  (from %s)\n", displayOrDefault(resolved.SquadsDir.Value, "<synapse_dir>/squads"), resolved.SquadsDir.Source)
	fmt.Fprintf(w, "  log_file:        %v  (from %s)\n", displayOrDefault(resolved.LogFile.Value, "stderr"), resolved.LogFile.Source)
	fmt.Fprintf(w, "  verbose:         %v  (from %s)\n", resolved.Verbose.Value, resolved.Verbose.Source)
	fmt.Fprintf(w, "  devmode:         %v  (from %s)\n", resolved.Devmode.Value, resolved.Devmode.Source)
	fmt.Fprintf(w, "  squad_cache.ttl: %v  (from %s)\n", resolved.SquadCacheTTL.Value, resolved.SquadCacheTTL.Source)
	fmt.Fprintf(w, "  history_db:      %v  (from %s)\n", displayOrDefault(resolved.HistoryDB.Value, "<synapse_dir>/diagnostics.db"), resolved.HistoryDB.Source)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables (if set):")
	anySet := false
	for _, env := range configEnvVars {
		if v := os.Getenv(env); v != "" {
			fmt.Fprintf(w, "  %s=%s\n", env, v)
			anySet = true
		}
	}
	if !anySet {
		fmt.Fprintln(w, "  (none set)")
	}
	return nil
}

func printConfigFile(w io.Writer, label, path string) {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  ✓ %s %s\n", label, path)
	} else {
		fmt.Fprintf(w, "  ✗ %s %s (not found)\n", label, path)
	}
}

func displayOrDefault(v interface{}, def string) interface{} {
	if s, ok := v.(string); ok && s == "" {
		return def
	}
	return v
}
