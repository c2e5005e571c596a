package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/riaworks/aios-core-sub000/embedded"
	"github.com/riaworks/aios-core-sub000/internal/storage"
)

var (
	initForce bool
	initHooks bool
	initCwd   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter .synapse directory",
	Long: `Write the default manifest, domain files and config.yaml into the
synapse directory. Existing files are kept unless --force is given.

With --hooks, also register "synapse hook" for UserPromptSubmit in
.claude/settings.json. Other settings and hooks are preserved.

Safe to run multiple times.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing scaffold files")
	initCmd.Flags().BoolVar(&initHooks, "hooks", false, "Register the hook in .claude/settings.json")
	initCmd.Flags().StringVar(&initCwd, "cwd", "", "Project directory (default: current directory)")
}

// initResult is the JSON view of an init run.
type initResult struct {
	SynapseDir     string   `json:"synapse_dir"`
	Written        []string `json:"written"`
	Skipped        []string `json:"skipped,omitempty"`
	HooksInstalled bool     `json:"hooks_installed"`
	SettingsPath   string   `json:"settings_path,omitempty"`
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := workingDir(initCwd)
	if err != nil {
		return err
	}
	root := cfg.SynapseRoot(cwd)

	ex, err := embedded.Extract(root, initForce)
	if err != nil {
		return fmt.Errorf("write scaffold: %w", err)
	}
	res := initResult{SynapseDir: root, Written: ex.Written, Skipped: ex.Skipped}

	if initHooks {
		res.SettingsPath = filepath.Join(cwd, ".claude", "settings.json")
		added, err := installHook(res.SettingsPath)
		if err != nil {
			return fmt.Errorf("install hook: %w", err)
		}
		res.HooksInstalled = added
	}
	logger.Debug("init complete", zap.String("dir", root), zap.Int("written", len(res.Written)))

	if GetOutput() == "json" {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	printInitSummary(cmd.OutOrStdout(), res)
	return nil
}

// installHook merges the embedded UserPromptSubmit registration into the
// settings file. It reports false when an identical command is already there.
func installHook(settingsPath string) (bool, error) {
	settings := make(map[string]any)
	if _, err := storage.ReadJSON(settingsPath, &settings); err != nil {
		return false, fmt.Errorf("parse existing settings: %w", err)
	}

	var want map[string][]any
	if err := json.Unmarshal(embedded.HooksJSON, &want); err != nil {
		return false, fmt.Errorf("parse embedded hooks: %w", err)
	}

	hooks, _ := settings["hooks"].(map[string]any)
	if hooks == nil {
		hooks = make(map[string]any)
	}

	changed := false
	for event, groups := range want {
		existing, _ := hooks[event].([]any)
		for _, g := range groups {
			if hasHookCommand(existing, hookCommands(g)) {
				continue
			}
			existing = append(existing, g)
			changed = true
		}
		hooks[event] = existing
	}
	if !changed {
		return false, nil
	}

	settings["hooks"] = hooks
	if err := storage.WriteJSON(settingsPath, settings); err != nil {
		return false, err
	}
	return true, nil
}

// hookCommands lists the command strings of one hook group.
func hookCommands(group any) []string {
	g, _ := group.(map[string]any)
	entries, _ := g["hooks"].([]any)
	var out []string
	for _, e := range entries {
		m, _ := e.(map[string]any)
		if c, ok := m["command"].(string); ok {
			out = append(out, c)
		}
	}
	return out
}

func hasHookCommand(groups []any, commands []string) bool {
	for _, g := range groups {
		for _, have := range hookCommands(g) {
			for _, c := range commands {
				if have == c {
					return true
				}
			}
		}
	}
	return false
}

func printInitSummary(w io.Writer, res initResult) {
	fmt.Fprintf(w, "Initialized %s\n", res.SynapseDir)
	for _, f := range res.Written {
		fmt.Fprintf(w, "  + %s\n", f)
	}
	for _, f := range res.Skipped {
		fmt.Fprintf(w, "  = %s (exists)\n", f)
	}
	switch {
	case res.HooksInstalled:
		fmt.Fprintf(w, "Registered UserPromptSubmit hook in %s\n", res.SettingsPath)
	case res.SettingsPath != "":
		fmt.Fprintf(w, "Hook already registered in %s\n", res.SettingsPath)
	}
}
