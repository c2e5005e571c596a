package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/riaworks/aios-core-sub000/internal/diagnostics"
	"github.com/riaworks/aios-core-sub000/internal/formatter"
	"github.com/riaworks/aios-core-sub000/internal/history"
	"github.com/riaworks/aios-core-sub000/internal/session"
	"github.com/riaworks/aios-core-sub000/internal/storage"
)

var (
	diagnoseMarkdown  bool
	diagnoseNoHistory bool
	diagnoseSession   string
	diagnosePrompt    string
	diagnoseCwd       string
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Score the activation and hook pipelines",
	Long: `Read the pipeline metrics files and report quality grades, cross-pipeline
consistency, timing against layer budgets, relevance to the active session,
and a numbered list of gaps with recommendations.

Each run is recorded in the history database so the next report can show
the trend. Pass --no-history to skip it.

Examples:
  synapse diagnose
  synapse diagnose --markdown > report.md
  synapse diagnose --session abc123 -o json`,
	Args: cobra.NoArgs,
	RunE: runDiagnose,
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
	diagnoseCmd.Flags().BoolVar(&diagnoseMarkdown, "markdown", false, "Print the full markdown report")
	diagnoseCmd.Flags().BoolVar(&diagnoseNoHistory, "no-history", false, "Do not read or record run history")
	diagnoseCmd.Flags().StringVar(&diagnoseSession, "session", "", "Judge relevance against this stored session")
	diagnoseCmd.Flags().StringVar(&diagnosePrompt, "prompt", "", "Judge keyword relevance against this prompt")
	diagnoseCmd.Flags().StringVar(&diagnoseCwd, "cwd", "", "Project directory (default: current directory)")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	cwd, err := workingDir(diagnoseCwd)
	if err != nil {
		return err
	}
	root := cfg.SynapseRoot(cwd)

	signals, err := diagnoseSignals(root)
	if err != nil {
		return err
	}

	report, err := diagnostics.Run(cmd.Context(), storage.NewMetricsStore(root), signals, cfg.DiagnosticsOptions())
	if err != nil {
		return fmt.Errorf("diagnose: %w", err)
	}

	if !diagnoseNoHistory {
		recordHistory(cmd, cfg.HistoryPath(cwd), report)
	}

	w := cmd.OutOrStdout()
	switch {
	case GetOutput() == "json":
		return writeJSON(w, report)
	case diagnoseMarkdown:
		return diagnostics.WriteMarkdown(w, report)
	default:
		return writeDiagnoseSummary(w, report)
	}
}

func diagnoseSignals(root string) (diagnostics.Signals, error) {
	s := diagnostics.Signals{Prompt: diagnosePrompt}
	if diagnoseSession == "" {
		return s, nil
	}
	sess, err := session.NewFileStore(root).Load(diagnoseSession)
	if err != nil {
		return s, fmt.Errorf("load session: %w", err)
	}
	s.Agent = sess.AgentID()
	s.Workflow = sess.WorkflowID()
	s.Squad = sess.SquadName()
	if sess.ActiveTask != nil {
		s.Task = sess.ActiveTask.ID
	}
	return s, nil
}

// recordHistory attaches the trend and appends this run. History problems
// never fail the report.
func recordHistory(cmd *cobra.Command, path string, report *diagnostics.Report) {
	h, err := history.Open(path)
	if err != nil {
		logger.Warn("history unavailable", zap.String("path", path), zap.Error(err))
		return
	}
	defer h.Close()

	prev, err := h.Latest(cmd.Context())
	if err != nil {
		logger.Warn("history read failed", zap.Error(err))
	}
	report.SetTrend(prev)

	if err := h.Record(cmd.Context(), report.Snapshot()); err != nil {
		logger.Warn("history write failed", zap.Error(err))
	}
}

func writeDiagnoseSummary(w io.Writer, r *diagnostics.Report) error {
	fmt.Fprintln(w, "Synapse Diagnostics")
	fmt.Fprintln(w, "===================")
	fmt.Fprintln(w)

	tbl := formatter.NewTable(w, "PIPELINE", "GRADE", "SCORE", "TREND")
	for _, q := range r.Qualities() {
		trend := "-"
		if r.Trend != nil {
			delta := r.Trend.ActivationDelta
			if q.Pipeline == diagnostics.PipelineHook {
				delta = r.Trend.HookDelta
			}
			trend = fmt.Sprintf("%+.1f", delta)
		}
		score := fmt.Sprintf("%.1f%%", q.Percent)
		if q.Stale {
			score += " (stale)"
		}
		tbl.AddRow(q.Pipeline, q.Grade, score, trend)
	}
	if err := tbl.Render(); err != nil {
		return err
	}

	passed := 0
	for _, c := range r.Consistency {
		if c.Passed {
			passed++
		}
	}
	fmt.Fprintf(w, "\nConsistency: %d/%d checks passed\n", passed, len(r.Consistency))
	fmt.Fprintf(w, "Pipeline:    %.2fms (%s)\n", r.Timing.Total, r.Timing.Verdict)

	if len(r.Gaps) == 0 {
		fmt.Fprintln(w, "\nNo gaps found.")
		return nil
	}
	fmt.Fprintf(w, "\nGaps (%d):\n", len(r.Gaps))
	for i, g := range r.Gaps {
		fmt.Fprintf(w, "  %d. [%s] %s: %s\n", i+1, g.Severity, g.Area, g.Message)
		fmt.Fprintf(w, "     -> %s\n", g.Recommendation)
	}
	return nil
}
