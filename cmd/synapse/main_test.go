package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riaworks/aios-core-sub000/internal/config"
	"github.com/riaworks/aios-core-sub000/internal/session"
	"github.com/riaworks/aios-core-sub000/internal/storage"
)

// resetFlags restores every package-level flag variable between runs of the
// shared root command.
func resetFlags() {
	verbose, output, cfgFile, synapseDir = false, "", "", ""
	runPrompt, runSessionID, runAgent, runWorkflow, runSquad, runTask, runCwd = "", "", "", "", "", "", ""
	runPromptCount, runDevmode = -1, false
	diagnoseMarkdown, diagnoseNoHistory = false, false
	diagnoseSession, diagnosePrompt, diagnoseCwd = "", "", ""
	cacheCwd = ""
	configShow = false
	initForce, initHooks, initCwd = false, false, ""
	cfg = config.Default()
}

func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// setupProject creates a project with a non-negotiable constitution and a
// *help command, and isolates config lookups from the developer's machine.
func setupProject(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SYNAPSE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	for _, k := range configEnvVars[1:] {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(dir, ".synapse", rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("manifest", "CONSTITUTION_STATE=active\nCONSTITUTION_ALWAYS_ON=true\nCONSTITUTION_NON_NEGOTIABLE=true\n")
	write("constitution", "CLI First is non-negotiable\n")
	write("commands", "[*help] COMMAND:\n0. Show available commands\n")
	return dir
}

func hookPayload(t *testing.T, in hookInput) string {
	t.Helper()
	data, err := json.Marshal(in)
	require.NoError(t, err)
	return string(data)
}

func decodeHook(t *testing.T, out string) hookSpecificOutput {
	t.Helper()
	var ho hookOutput
	require.NoError(t, json.Unmarshal([]byte(out), &ho), out)
	return ho.HookSpecificOutput
}

func TestHook_EmitsDocumentAndRecordsPrompt(t *testing.T) {
	dir := setupProject(t)
	payload := hookPayload(t, hookInput{SessionID: "s1", Prompt: "*help", Cwd: dir})

	out, err := executeCommand(t, payload, "hook")
	require.NoError(t, err)

	ho := decodeHook(t, out)
	assert.Equal(t, "UserPromptSubmit", ho.HookEventName)
	assert.True(t, strings.HasPrefix(ho.AdditionalContext, "<synapse-rules>\n"))
	assert.Contains(t, ho.AdditionalContext, "[CONSTITUTION (NON-NEGOTIABLE)]")
	assert.Contains(t, ho.AdditionalContext, "[STAR-COMMANDS]\n1. Show available commands")
	assert.NotContains(t, out, `\u003c`, "document must not be HTML-escaped")

	_, err = executeCommand(t, payload, "hook")
	require.NoError(t, err)

	sess, err := session.NewFileStore(filepath.Join(dir, ".synapse")).Load("s1")
	require.NoError(t, err)
	assert.Equal(t, 2, sess.PromptCount)
	assert.Equal(t, "FRESH", sess.Context.LastBracket)

	_, err = os.Stat(filepath.Join(dir, ".synapse", storage.MetricsDir, storage.HookMetricsFile))
	assert.NoError(t, err, "hook metrics should be written")
}

func TestHook_MalformedInputIsSilent(t *testing.T) {
	setupProject(t)
	for _, stdin := range []string{"", "not json", `{"hook_event_name":"Stop"}`} {
		out, err := executeCommand(t, stdin, "hook")
		require.NoError(t, err, "stdin %q", stdin)
		assert.Empty(t, out, "stdin %q", stdin)
	}
}

func TestHook_InvalidSessionIDStillAnswers(t *testing.T) {
	dir := setupProject(t)
	out, err := executeCommand(t, hookPayload(t, hookInput{SessionID: "../escape", Cwd: dir}), "hook")
	require.NoError(t, err)
	assert.Contains(t, decodeHook(t, out).AdditionalContext, "CLI First")

	entries, _ := os.ReadDir(filepath.Join(dir, ".synapse", session.SessionsDir))
	assert.Empty(t, entries, "no session file for an unsafe id")
}

func TestHook_TranscriptUsageDrivesBracket(t *testing.T) {
	dir := setupProject(t)
	tr := filepath.Join(t.TempDir(), "t.jsonl")
	require.NoError(t, os.WriteFile(tr, []byte(
		`{"type":"assistant","message":{"usage":{"input_tokens":20000,"cache_read_input_tokens":150000}}}`+"\n"), 0o644))

	out, err := executeCommand(t, hookPayload(t, hookInput{SessionID: "s2", Cwd: dir, TranscriptPath: tr}), "hook")
	require.NoError(t, err)

	doc := decodeHook(t, out).AdditionalContext
	assert.Contains(t, doc, "CRITICAL (15.0% context remaining)")
	assert.Contains(t, doc, "[HANDOFF WARNING]")
}

func TestRun_Text(t *testing.T) {
	dir := setupProject(t)
	out, err := executeCommand(t, "", "run", "--cwd", dir, "--prompt", "*help")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "</synapse-rules>\n"))
	assert.Contains(t, out, "Show available commands")
}

func TestRun_JSON(t *testing.T) {
	dir := setupProject(t)
	out, err := executeCommand(t, "", "run", "--cwd", dir, "--prompt", "hello", "--prompt-count", "100", "--agent", "dev", "-o", "json")
	require.NoError(t, err)

	var res runResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, "DEPLETED", string(res.Bracket.Bracket))
	assert.Len(t, res.Layers, 8)
	assert.Equal(t, "constitution", res.Layers[0].Name)
	assert.Equal(t, storage.StatusOK, res.Layers[0].Status)
	assert.Contains(t, res.Included, "CONSTITUTION")
}

func TestRun_DevmodeFlag(t *testing.T) {
	dir := setupProject(t)
	out, err := executeCommand(t, "", "run", "--cwd", dir, "--devmode")
	require.NoError(t, err)
	assert.Contains(t, out, "[DEVMODE")
}

func TestDiagnose_MarkdownWithTrend(t *testing.T) {
	dir := setupProject(t)
	_, err := executeCommand(t, hookPayload(t, hookInput{SessionID: "s3", Prompt: "hi", Cwd: dir}), "hook")
	require.NoError(t, err)

	out, err := executeCommand(t, "", "diagnose", "--cwd", dir, "--markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "## HOOK Quality")
	assert.Contains(t, out, "uap-metrics.json not found")
	assert.NotContains(t, out, "## Trend")

	out, err = executeCommand(t, "", "diagnose", "--cwd", dir, "--markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "## Trend")

	_, err = os.Stat(filepath.Join(dir, ".synapse", "diagnostics.db"))
	assert.NoError(t, err)
}

func TestDiagnose_SummaryNoHistory(t *testing.T) {
	dir := setupProject(t)
	out, err := executeCommand(t, "", "diagnose", "--cwd", dir, "--no-history")
	require.NoError(t, err)
	assert.Contains(t, out, "Synapse Diagnostics")
	assert.Contains(t, out, "Gaps (")

	_, err = os.Stat(filepath.Join(dir, ".synapse", "diagnostics.db"))
	assert.True(t, os.IsNotExist(err), "history must not be touched")
}

func TestCache_StatusRefreshClear(t *testing.T) {
	dir := setupProject(t)
	squadManifest := filepath.Join(dir, ".synapse", "squads", "alpha", ".synapse", "manifest")
	require.NoError(t, os.MkdirAll(filepath.Dir(squadManifest), 0o755))
	require.NoError(t, os.WriteFile(squadManifest, []byte("OPS_STATE=active\n"), 0o644))

	out, err := executeCommand(t, "", "cache", "status", "--cwd", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "empty")

	out, err = executeCommand(t, "", "cache", "refresh", "--cwd", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Discovered 1 squad(s)")

	out, err = executeCommand(t, "", "cache", "status", "--cwd", dir, "-o", "json")
	require.NoError(t, err)
	var st cacheStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st), out)
	assert.True(t, st.Present)
	assert.True(t, st.Fresh)
	assert.Equal(t, map[string]int{"alpha": 1}, st.Squads)

	_, err = executeCommand(t, "", "cache", "clear", "--cwd", dir)
	require.NoError(t, err)
	_, err = os.Stat(st.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestConfigShow_JSON(t *testing.T) {
	setupProject(t)
	t.Setenv("SYNAPSE_SQUAD_CACHE_TTL", "2m")

	out, err := executeCommand(t, "", "config", "--show", "-o", "json")
	require.NoError(t, err)

	var rc map[string]struct {
		Value  any    `json:"value"`
		Source string `json:"source"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rc), out)
	assert.Equal(t, "2m", rc["squad_cache_ttl"].Value)
	assert.Equal(t, "environment", rc["squad_cache_ttl"].Source)
	assert.Equal(t, "flag", rc["output"].Source)
}

func TestInit_ScaffoldRunsEndToEnd(t *testing.T) {
	setupProject(t)
	dir := t.TempDir()

	out, err := executeCommand(t, "", "init", "--cwd", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "+ manifest")

	out, err = executeCommand(t, "", "run", "--cwd", dir, "--prompt", "*help")
	require.NoError(t, err)
	assert.Contains(t, out, "[CONSTITUTION (NON-NEGOTIABLE)]")
	assert.Contains(t, out, "Never commit secrets")
	assert.Contains(t, out, "explore before committing")
	assert.NotContains(t, out, "Write a handoff note now")
	assert.Contains(t, out, "List the star-commands")

	out, err = executeCommand(t, "", "init", "--cwd", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "= manifest (exists)")
}

func TestInit_HooksMergeIntoSettings(t *testing.T) {
	setupProject(t)
	dir := t.TempDir()
	settings := filepath.Join(dir, ".claude", "settings.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(settings), 0o755))
	require.NoError(t, os.WriteFile(settings, []byte(`{"model":"opus","hooks":{"Stop":[{"hooks":[{"type":"command","command":"other"}]}]}}`), 0o644))

	out, err := executeCommand(t, "", "init", "--cwd", dir, "--hooks", "-o", "json")
	require.NoError(t, err)
	var res initResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.True(t, res.HooksInstalled)

	_, err = executeCommand(t, "", "init", "--cwd", dir, "--hooks", "-o", "json")
	require.NoError(t, err)

	var got struct {
		Model string                       `json:"model"`
		Hooks map[string][]json.RawMessage `json:"hooks"`
	}
	data, err := os.ReadFile(settings)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "opus", got.Model)
	assert.Len(t, got.Hooks["Stop"], 1)
	assert.Len(t, got.Hooks["UserPromptSubmit"], 1, "second init must not duplicate the hook")
	assert.Contains(t, string(got.Hooks["UserPromptSubmit"][0]), "synapse hook")
}

func TestVersion(t *testing.T) {
	setupProject(t)
	out, err := executeCommand(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "synapse version dev")
}
