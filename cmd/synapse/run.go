package main

import (
	"fmt"

	"github.com/spf13/cobra"

	contextbudget "github.com/riaworks/aios-core-sub000/internal/context"
	"github.com/riaworks/aios-core-sub000/internal/engine"
	"github.com/riaworks/aios-core-sub000/internal/layers"
	"github.com/riaworks/aios-core-sub000/internal/session"
	"github.com/riaworks/aios-core-sub000/internal/storage"
)

var (
	runPrompt      string
	runSessionID   string
	runPromptCount int
	runAgent       string
	runWorkflow    string
	runSquad       string
	runTask        string
	runDevmode     bool
	runCwd         string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Assemble a document for a prompt",
	Long: `Run the pipeline once and print the document. Nothing is recorded in
the session store; hook metrics are written as usual.

Examples:
  synapse run --prompt "*help"
  synapse run --prompt "fix the login bug" --agent dev --prompt-count 80
  synapse run --prompt "deploy" --session abc123 --devmode -o json`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "", "Prompt text")
	runCmd.Flags().StringVar(&runSessionID, "session", "", "Load this stored session")
	runCmd.Flags().IntVar(&runPromptCount, "prompt-count", -1, "Override the session prompt count")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "Active agent id")
	runCmd.Flags().StringVar(&runWorkflow, "workflow", "", "Active workflow id")
	runCmd.Flags().StringVar(&runSquad, "squad", "", "Active squad name")
	runCmd.Flags().StringVar(&runTask, "task", "", "Active task id")
	runCmd.Flags().BoolVar(&runDevmode, "devmode", false, "Append the diagnostics section")
	runCmd.Flags().StringVar(&runCwd, "cwd", "", "Project directory (default: current directory)")
}

// runLayerSummary is the JSON view of one layer outcome.
type runLayerSummary struct {
	Layer      int     `json:"layer"`
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Rules      int     `json:"rules"`
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

type runResult struct {
	Document   string                    `json:"document"`
	Bracket    contextbudget.BracketInfo `json:"bracket"`
	TokensUsed int                       `json:"tokens_used"`
	Included   []string                  `json:"included"`
	Dropped    []string                  `json:"dropped,omitempty"`
	Layers     []runLayerSummary         `json:"layers"`
}

func runRun(cmd *cobra.Command, args []string) error {
	cwd, err := workingDir(runCwd)
	if err != nil {
		return err
	}

	sess, err := runSession(cwd)
	if err != nil {
		return err
	}

	res := newEngine(cwd).Process(runPrompt, sess, engine.ProcessOptions{Devmode: runDevmode})

	if GetOutput() == "json" {
		return writeJSON(cmd.OutOrStdout(), summarizeRun(res))
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), res.Document)
	return err
}

// runSession loads the stored session when asked and applies flag overrides.
func runSession(cwd string) (*session.Session, error) {
	sess := session.New("")
	if runSessionID != "" {
		s, err := session.NewFileStore(cfg.SynapseRoot(cwd)).Load(runSessionID)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		sess = s
	}
	if runPromptCount >= 0 {
		sess.PromptCount = runPromptCount
	}
	if runAgent != "" {
		sess.ActiveAgent = &session.Agent{ID: runAgent}
	}
	if runWorkflow != "" {
		sess.ActiveWorkflow = &session.Workflow{ID: runWorkflow}
	}
	if runSquad != "" {
		sess.ActiveSquad = &session.Squad{Name: runSquad}
	}
	if runTask != "" {
		sess.ActiveTask = &session.Task{ID: runTask}
	}
	return sess, nil
}

func summarizeRun(res *engine.Result) runResult {
	out := runResult{
		Document:   res.Document,
		Bracket:    res.Bracket,
		TokensUsed: res.Output.TokensUsed,
		Included:   res.Output.Included,
		Dropped:    res.Output.Dropped,
	}
	for _, o := range res.Layers {
		out.Layers = append(out.Layers, layerSummary(o))
	}
	return out
}

func layerSummary(o layers.Outcome) runLayerSummary {
	s := runLayerSummary{
		Layer:      o.Layer,
		Name:       o.Name,
		Status:     o.Status,
		Rules:      o.Rules(),
		DurationMs: storage.DurationMillis(o.Duration),
	}
	if o.Err != nil {
		s.Error = o.Err.Error()
	}
	return s
}
