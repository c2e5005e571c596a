package layers

import (
	"time"

	"github.com/riaworks/aios-core-sub000/internal/manifest"
)

// Agent is L2: domains bound to the active agent.
type Agent struct{}

func (Agent) Name() string           { return "agent" }
func (Agent) Index() int             { return LayerAgent }
func (Agent) Timeout() time.Duration { return 15 * time.Millisecond }

func (Agent) Process(lc *Context) (*Result, error) {
	id := lc.Session.AgentID()
	domains := triggered(lc.Manifest, id, func(d *manifest.DomainConfig) string { return d.AgentTrigger })
	if len(domains) == 0 {
		return nil, nil
	}
	rules, names, files, err := lc.loadDomains(domains)
	if err != nil {
		return nil, err
	}
	res := domainResult(LayerAgent, "agent", "agent_trigger", rules, names, files)
	if res != nil {
		res.Metadata[MetaAgentID] = id
	}
	return res, nil
}

// Workflow is L3: domains bound to the active workflow.
type Workflow struct{}

func (Workflow) Name() string           { return "workflow" }
func (Workflow) Index() int             { return LayerWorkflow }
func (Workflow) Timeout() time.Duration { return 15 * time.Millisecond }

func (Workflow) Process(lc *Context) (*Result, error) {
	id := lc.Session.WorkflowID()
	domains := triggered(lc.Manifest, id, func(d *manifest.DomainConfig) string { return d.WorkflowTrigger })
	if len(domains) == 0 {
		return nil, nil
	}
	rules, names, files, err := lc.loadDomains(domains)
	if err != nil {
		return nil, err
	}
	res := domainResult(LayerWorkflow, "workflow", "workflow_trigger", rules, names, files)
	if res != nil {
		res.Metadata[MetaWorkflowID] = id
	}
	return res, nil
}

// Task is L4. It always describes the active task, then adds the rules of
// domains whose task trigger names the task id or the executor type.
type Task struct{}

func (Task) Name() string           { return "task" }
func (Task) Index() int             { return LayerTask }
func (Task) Timeout() time.Duration { return 20 * time.Millisecond }

func (Task) Process(lc *Context) (*Result, error) {
	if lc.Session == nil || lc.Session.ActiveTask == nil || lc.Session.ActiveTask.ID == "" {
		return nil, nil
	}
	task := lc.Session.ActiveTask

	rules := []string{"Task: " + task.ID}
	if task.Story != "" {
		rules = append(rules, "Story: "+task.Story)
	}
	if task.ExecutorType != "" {
		rules = append(rules, "Executor: "+task.ExecutorType)
	}

	var domains []*manifest.DomainConfig
	for _, d := range lc.Manifest.Ordered() {
		if !d.Active() || d.TaskTrigger == "" {
			continue
		}
		if d.TaskTrigger == task.ID || (task.ExecutorType != "" && d.TaskTrigger == task.ExecutorType) {
			domains = append(domains, d)
		}
	}
	domainRules, names, files, err := lc.loadDomains(domains)
	if err != nil {
		return nil, err
	}

	return &Result{
		Layer: LayerTask,
		Name:  "task",
		Rules: append(rules, domainRules...),
		Metadata: map[string]any{
			MetaSource:  "task_trigger",
			MetaTaskID:  task.ID,
			MetaDomains: names,
			MetaFiles:   files,
		},
	}, nil
}
