package layers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contextbudget "github.com/riaworks/aios-core-sub000/internal/context"
	"github.com/riaworks/aios-core-sub000/internal/manifest"
	"github.com/riaworks/aios-core-sub000/internal/session"
	"github.com/riaworks/aios-core-sub000/internal/squad"
)

// fixture is a synapse root on disk.
type fixture struct {
	t    *testing.T
	root string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{t: t, root: t.TempDir()}
}

func (f *fixture) write(rel, content string) string {
	f.t.Helper()
	path := filepath.Join(f.root, rel)
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(f.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// context builds a pipeline context in a bracket where all layers run.
func (f *fixture) context(manifestText, prompt string, sess *session.Session) *Context {
	if sess == nil {
		sess = &session.Session{ID: "test"}
	}
	return &Context{
		Prompt:      prompt,
		Session:     sess,
		Manifest:    manifest.Parse(manifestText),
		SynapseRoot: f.root,
		SquadsRoot:  filepath.Join(f.root, "squads"),
		Bracket:     contextbudget.Track(60, 0, contextbudget.DefaultConfig()),
		SquadCache:  squad.NewCache(f.root, time.Minute),
	}
}

func TestDefault_FixedOrder(t *testing.T) {
	procs := Default()
	require.Len(t, procs, Count)
	for i, p := range procs {
		assert.Equal(t, i, p.Index(), "processor %s out of order", p.Name())
		assert.Positive(t, p.Timeout())
	}
	assert.Equal(t, 5*time.Millisecond, DefaultTimeouts()[LayerConstitution])
	assert.Equal(t, 20*time.Millisecond, DefaultTimeouts()[LayerSquad])
}

func TestConstitution_SingleRule(t *testing.T) {
	f := newFixture(t)
	f.write("constitution", "CLI First is non-negotiable\n")
	lc := f.context("CONSTITUTION_STATE=active\nCONSTITUTION_ALWAYS_ON=true\nCONSTITUTION_NON_NEGOTIABLE=true\n", "", nil)

	res, err := Constitution{}.Process(lc)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"CLI First is non-negotiable"}, res.Rules)
	assert.True(t, res.Bool(MetaNonNegotiable))
	assert.Equal(t, "manifest", res.Metadata[MetaSource])
}

func TestConstitution_AbsentIsNil(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		manifest string
	}{
		{"undeclared", ""},
		{"inactive", "CONSTITUTION_STATE=inactive\n"},
		{"missing file", "CONSTITUTION_STATE=active\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Constitution{}.Process(f.context(tt.manifest, "", nil))
			assert.NoError(t, err)
			assert.Nil(t, res)
		})
	}
}

func TestGlobal_SkipsConstitutionAndFiltersTier(t *testing.T) {
	f := newFixture(t)
	f.write("constitution", "never here\n")
	f.write("coding", "CODING_RULE_FRESH_1=fresh only\nCODING_RULE_MODERATE_1=moderate only\n")
	f.write("style", "Use gofmt\n")
	f.write("off", "disabled\n")

	lc := f.context(`CONSTITUTION_ALWAYS_ON=true
CODING_ALWAYS_ON=true
STYLE_ALWAYS_ON=true
OFF_ALWAYS_ON=true
OFF_STATE=inactive
`, "", nil)

	res, err := Global{}.Process(lc)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"moderate only", "Use gofmt"}, res.Rules)
	assert.Equal(t, []string{"CODING", "STYLE"}, res.Strings(MetaDomains))
}

func TestAgentWorkflowTask_Triggers(t *testing.T) {
	f := newFixture(t)
	f.write("agent-dev", "Write tests first\n")
	f.write("wf-story", "Follow the story checklist\n")
	f.write("task-qa", "Run the QA gate\n")

	manifestText := `AGENT_DEV_AGENT_TRIGGER=dev
WF_STORY_WORKFLOW_TRIGGER=story-dev
TASK_QA_TASK_TRIGGER=qa
`
	sess := &session.Session{
		ActiveAgent:    &session.Agent{ID: "dev"},
		ActiveWorkflow: &session.Workflow{ID: "story-dev"},
		ActiveTask:     &session.Task{ID: "T-7", Story: "3.2", ExecutorType: "qa"},
	}
	lc := f.context(manifestText, "", sess)

	agent, err := Agent{}.Process(lc)
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, []string{"Write tests first"}, agent.Rules)
	assert.Equal(t, "dev", agent.Metadata[MetaAgentID])

	wf, err := Workflow{}.Process(lc)
	require.NoError(t, err)
	require.NotNil(t, wf)
	assert.Equal(t, []string{"Follow the story checklist"}, wf.Rules)

	task, err := Task{}.Process(lc)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, []string{"Task: T-7", "Story: 3.2", "Executor: qa", "Run the QA gate"}, task.Rules)

	other := f.context(manifestText, "", &session.Session{ActiveAgent: &session.Agent{ID: "pm"}})
	for _, p := range []Processor{Agent{}, Workflow{}, Task{}} {
		res, err := p.Process(other)
		assert.NoError(t, err)
		assert.Nil(t, res, "%s should not trigger", p.Name())
	}
}

func TestSquad_DiscoveryAndNamespacing(t *testing.T) {
	f := newFixture(t)
	f.write("squads/alpha/.synapse/manifest", "CODING_STATE=active\nSKIPPED_EXTENDS=none\n")
	f.write("squads/alpha/.synapse/coding", "alpha coding rule\n")
	f.write("squads/alpha/.synapse/skipped", "never loaded\n")
	f.write("squads/beta/.synapse/manifest", "CODING_STATE=active\nDEVONLY_AGENT_TRIGGER=dev\n")
	f.write("squads/beta/.synapse/coding", "beta coding rule\n")
	f.write("squads/beta/.synapse/devonly", "dev only rule\n")

	sess := &session.Session{ActiveSquad: &session.Squad{Name: "beta"}}
	lc := f.context("", "", sess)

	res, err := Squad{}.Process(lc)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"beta coding rule", "alpha coding rule"}, res.Rules, "active squad first")
	assert.Equal(t, []string{"BETA_CODING", "ALPHA_CODING"}, res.Strings(MetaDomainsLoaded))
	assert.Equal(t, []string{"alpha", "beta"}, res.Strings(MetaSquadsFound))
	assert.False(t, res.Bool(MetaCacheHit))

	again, err := Squad{}.Process(lc)
	require.NoError(t, err)
	assert.True(t, again.Bool(MetaCacheHit))
	assert.Equal(t, res.Rules, again.Rules)
	assert.Equal(t, res.Strings(MetaSquadsFound), again.Strings(MetaSquadsFound))

	sess.ActiveAgent = &session.Agent{ID: "dev"}
	withAgent, err := Squad{}.Process(lc)
	require.NoError(t, err)
	assert.Contains(t, withAgent.Rules, "dev only rule")
}

func TestSquad_NoSquadsIsNil(t *testing.T) {
	f := newFixture(t)
	lc := f.context("", "", nil)

	res, err := Squad{}.Process(lc)
	assert.NoError(t, err)
	assert.Nil(t, res, "missing squads dir")

	f.write("squads/readme", "not a squad\n")
	res, err = Squad{}.Process(lc)
	assert.NoError(t, err)
	assert.Nil(t, res, "no valid squad")
}

func TestKeyword_GlobalExcludeWins(t *testing.T) {
	f := newFixture(t)
	f.write("tasks", "Track tasks in the board\n")
	lc := f.context("GLOBAL_EXCLUDE=skip\nTASKS_RECALL=task\n", "please skip this task", nil)

	res, err := Keyword{}.Process(lc)
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestKeyword_MatchAndOwnExclude(t *testing.T) {
	f := newFixture(t)
	f.write("testing", "Cover edge cases\n")
	f.write("deploy", "Deploy via pipeline\n")
	lc := f.context("TESTING_RECALL=Test,coverage\nDEPLOY_RECALL=deploy\nDEPLOY_EXCLUDE=dry\n",
		"Add a TEST and a dry deploy", nil)

	res, err := Keyword{}.Process(lc)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"TESTING"}, res.Strings(MetaMatchedDomains))
	assert.Equal(t, []string{"Cover edge cases"}, res.Rules)
}

func TestKeyword_EmptyPromptIsNil(t *testing.T) {
	f := newFixture(t)
	res, err := Keyword{}.Process(f.context("TESTING_RECALL=test\n", "   ", nil))
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestKeyword_SkipsDomainsDeliveredEarlier(t *testing.T) {
	f := newFixture(t)
	f.write("agent-dev", "Write tests first\n")
	f.write("style", "Use gofmt\n")
	manifestText := "AGENT_DEV_AGENT_TRIGGER=dev\nAGENT_DEV_RECALL=implement\nSTYLE_ALWAYS_ON=true\nSTYLE_RECALL=format\n"

	sess := &session.Session{ActiveAgent: &session.Agent{ID: "dev"}}
	lc := f.context(manifestText, "implement and format the parser", sess)

	global, err := Global{}.Process(lc)
	require.NoError(t, err)
	agent, err := Agent{}.Process(lc)
	require.NoError(t, err)
	lc.Previous = []*Result{global, agent}

	res, err := Keyword{}.Process(lc)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.ElementsMatch(t, []string{"AGENT_DEV", "STYLE"}, res.Strings(MetaSkippedDuplicates))
	assert.Empty(t, res.Strings(MetaMatchedDomains))
	assert.Empty(t, res.Rules)

	// The agent binding alone is enough to dedup.
	lc.Previous = nil
	res, err = Keyword{}.Process(lc)
	require.NoError(t, err)
	assert.Contains(t, res.Strings(MetaSkippedDuplicates), "AGENT_DEV")
	assert.NotContains(t, res.Strings(MetaMatchedDomains), "AGENT_DEV")
}

func TestKeyword_SquadDomainNamesAreNamespaced(t *testing.T) {
	f := newFixture(t)
	f.write("coding", "main coding rule\n")
	squadFile := f.write("squads/alpha/.synapse/coding", "squad coding rule\n")
	lc := f.context("CODING_RECALL=code\n", "write some code", nil)
	lc.Previous = []*Result{{
		Layer: LayerSquad,
		Name:  "squad",
		Rules: []string{"squad coding rule"},
		Metadata: map[string]any{
			MetaDomainsLoaded: []string{"ALPHA_CODING"},
			MetaSourceDomains: []string{"CODING"},
			MetaFiles:         []string{squadFile},
		},
	}}

	res, err := Keyword{}.Process(lc)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"CODING"}, res.Strings(MetaMatchedDomains))
	assert.Empty(t, res.Strings(MetaSkippedDuplicates))
	assert.Equal(t, []string{"main coding rule"}, res.Rules)
}

func TestKeyword_SkipsDomainsLoadedFromSameFile(t *testing.T) {
	f := newFixture(t)
	shared := f.write("coding", "main coding rule\n")
	lc := f.context("CODING_RECALL=code\n", "write code", nil)
	lc.Previous = []*Result{{
		Layer: LayerSquad,
		Name:  "squad",
		Rules: []string{"main coding rule"},
		Metadata: map[string]any{
			MetaDomainsLoaded: []string{"ALPHA_CODING"},
			MetaFiles:         []string{shared},
		},
	}}

	res, err := Keyword{}.Process(lc)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"CODING"}, res.Strings(MetaSkippedDuplicates))
	assert.Empty(t, res.Rules)
}

func TestCommands_Help(t *testing.T) {
	f := newFixture(t)
	f.write("commands", "[*help] COMMAND:\n0. Show available commands\n")

	res, err := Commands{}.Process(f.context("", "*help", nil))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"help"}, res.Strings(MetaCommands))
	assert.Equal(t, []string{"Show available commands"}, res.Rules)
}

func TestCommands_InlineDedupAndUnknown(t *testing.T) {
	f := newFixture(t)
	f.write("cmds.txt", `[*status] COMMAND: Report current state
1. List open tasks
[*help] COMMAND:
0. Show available commands
`)
	lc := f.context("COMMANDS_FILE=cmds.txt\n", "*STATUS then *status again, *unknown and *help", nil)

	res, err := Commands{}.Process(lc)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"status", "help"}, res.Strings(MetaCommands))
	assert.Equal(t, []string{"Report current state", "List open tasks", "Show available commands"}, res.Rules)
}

func TestCommands_NilCases(t *testing.T) {
	f := newFixture(t)

	res, err := Commands{}.Process(f.context("", "*help", nil))
	assert.NoError(t, err)
	assert.Nil(t, res, "no commands file")

	f.write("commands", "[*help] COMMAND:\n0. Show available commands\n")
	res, err = Commands{}.Process(f.context("", "no commands here", nil))
	assert.NoError(t, err)
	assert.Nil(t, res, "no mentions")

	res, err = Commands{}.Process(f.context("", "*deploy", nil))
	assert.NoError(t, err)
	assert.Nil(t, res, "unknown command")
}

func TestParseStarCommands(t *testing.T) {
	assert.Equal(t, []string{"help", "run-tests"}, ParseStarCommands("*help me *Run-Tests *help"))
	assert.Empty(t, ParseStarCommands("2 * 3 and *1abc"))
}
