package main

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/riaworks/aios-core-sub000/internal/engine"
	"github.com/riaworks/aios-core-sub000/internal/session"
	"github.com/riaworks/aios-core-sub000/internal/transcript"
)

// hookEventName is the only hook event synapse answers.
const hookEventName = "UserPromptSubmit"

// hookInput is the payload the agent runtime writes to stdin.
type hookInput struct {
	SessionID      string `json:"session_id"`
	Prompt         string `json:"prompt"`
	Cwd            string `json:"cwd"`
	TranscriptPath string `json:"transcript_path,omitempty"`
	HookEventName  string `json:"hook_event_name,omitempty"`
}

type hookOutput struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
}

type hookSpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext"`
}

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Run as a UserPromptSubmit hook",
	Long: `Read a UserPromptSubmit payload from stdin and answer with the assembled
rules document as additionalContext.

The hook never fails the prompt: malformed input produces no output and a
logged warning, and every pipeline failure degrades to a smaller document.

Input (stdin):
  {"session_id": "...", "prompt": "...", "cwd": "...", "transcript_path": "..."}

Output (stdout):
  {"hookSpecificOutput": {"hookEventName": "UserPromptSubmit", "additionalContext": "<synapse-rules>..."}}`,
	Args: cobra.NoArgs,
	RunE: runHook,
}

func init() {
	rootCmd.AddCommand(hookCmd)
}

func runHook(cmd *cobra.Command, args []string) error {
	in, err := readHookInput(cmd.InOrStdin())
	if err != nil {
		logger.Warn("ignoring hook payload", zap.Error(err))
		return nil
	}

	cwd, err := workingDir(in.Cwd)
	if err != nil {
		logger.Warn("no working directory", zap.Error(err))
		return nil
	}

	ec := cfg.EngineConfig(cwd)
	store := session.NewFileStore(ec.SynapseRoot)
	sess, err := store.Load(in.SessionID)
	if err != nil {
		logger.Warn("session unavailable, using a fresh one",
			zap.String("session", in.SessionID), zap.Error(err))
		sess = session.New("")
	}
	applyTranscriptUsage(sess, in.TranscriptPath, ec.Context.MaxTokens)

	res := engine.New(ec, engine.WithLogger(logger)).Process(in.Prompt, sess, engine.ProcessOptions{})

	if in.SessionID != "" && sess.ID == in.SessionID {
		state := session.ContextState{
			LastBracket:        string(res.Bracket.Bracket),
			LastTokensUsed:     sess.Context.LastTokensUsed,
			LastContextPercent: res.Bracket.ContextPercent,
		}
		if err := store.RecordPrompt(sess, state); err != nil {
			logger.Warn("failed to record prompt", zap.String("session", sess.ID), zap.Error(err))
		}
	}

	return writeHookOutput(cmd.OutOrStdout(), res.Document)
}

func readHookInput(r io.Reader) (*hookInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, errors.New("empty stdin")
	}
	var in hookInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	if in.HookEventName != "" && in.HookEventName != hookEventName {
		return nil, errors.New("unsupported hook event " + in.HookEventName)
	}
	return &in, nil
}

// applyTranscriptUsage feeds the transcript's measured usage into the
// session so the tracker can use it over the prompt-count estimate.
func applyTranscriptUsage(sess *session.Session, path string, maxTokens int) {
	if path == "" {
		return
	}
	usage, err := transcript.ReadUsage(path)
	if err != nil {
		logger.Debug("transcript unreadable", zap.String("path", path), zap.Error(err))
		return
	}
	if usage.Total() == 0 {
		return
	}
	pct := usage.RemainingPercent(maxTokens)
	if pct <= 0 {
		// The tracker reads zero as "unknown"; a full window must still count.
		pct = 0.01
	}
	sess.Context.LastContextPercent = pct
	sess.Context.LastTokensUsed = usage.Total()
}

func writeHookOutput(w io.Writer, document string) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(hookOutput{
		HookSpecificOutput: hookSpecificOutput{
			HookEventName:     hookEventName,
			AdditionalContext: document,
		},
	})
}
