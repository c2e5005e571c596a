// Package session models the agent session the engine reads on every
// invocation, and provides a file-backed store for it.
//
// The engine treats a Session as read-only input. Only the hook command
// records prompts back to the store.
package session

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/riaworks/aios-core-sub000/internal/storage"
)

// SessionsDir holds one JSON file per session under the synapse root.
const SessionsDir = "sessions"

// ErrInvalidID is returned for session ids that are unsafe as file names.
var ErrInvalidID = errors.New("invalid session id")

var validID = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Agent is the active agent.
type Agent struct {
	ID string `json:"id"`
}

// Workflow is the active workflow.
type Workflow struct {
	ID    string `json:"id"`
	Phase string `json:"phase,omitempty"`
}

// Squad is the active squad.
type Squad struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// Task is the active task.
type Task struct {
	ID           string `json:"id"`
	Story        string `json:"story,omitempty"`
	ExecutorType string `json:"executor_type,omitempty"`
}

// ContextState is what the last invocation observed about the context window.
type ContextState struct {
	LastBracket        string  `json:"last_bracket,omitempty"`
	LastTokensUsed     int     `json:"last_tokens_used,omitempty"`
	LastContextPercent float64 `json:"last_context_percent,omitempty"`
}

// Session is one agent conversation.
type Session struct {
	ID             string       `json:"id"`
	PromptCount    int          `json:"prompt_count"`
	ActiveAgent    *Agent       `json:"active_agent,omitempty"`
	ActiveWorkflow *Workflow    `json:"active_workflow,omitempty"`
	ActiveSquad    *Squad       `json:"active_squad,omitempty"`
	ActiveTask     *Task        `json:"active_task,omitempty"`
	Context        ContextState `json:"context"`
	StartedAt      time.Time    `json:"started_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// New returns a fresh session. An empty id gets a random UUID.
func New(id string) *Session {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Session{ID: id, StartedAt: now, UpdatedAt: now}
}

// AgentID returns the active agent id or "".
func (s *Session) AgentID() string {
	if s == nil || s.ActiveAgent == nil {
		return ""
	}
	return s.ActiveAgent.ID
}

// WorkflowID returns the active workflow id or "".
func (s *Session) WorkflowID() string {
	if s == nil || s.ActiveWorkflow == nil {
		return ""
	}
	return s.ActiveWorkflow.ID
}

// SquadName returns the active squad name or "".
func (s *Session) SquadName() string {
	if s == nil || s.ActiveSquad == nil {
		return ""
	}
	return s.ActiveSquad.Name
}

// Provider supplies the session for one invocation.
type Provider interface {
	Load(id string) (*Session, error)
}

// FileStore keeps sessions as JSON files.
type FileStore struct {
	// Dir is the sessions directory (e.g., .synapse/sessions).
	Dir string
}

// NewFileStore creates a store under the synapse root.
func NewFileStore(synapseRoot string) *FileStore {
	return &FileStore{Dir: filepath.Join(synapseRoot, SessionsDir)}
}

// Path returns the file for a session id.
func (fs *FileStore) Path(id string) string {
	return filepath.Join(fs.Dir, id+".json")
}

// Load returns the stored session, or a fresh one when none exists or the
// stored file is corrupt.
func (fs *FileStore) Load(id string) (*Session, error) {
	if id == "" {
		return New(""), nil
	}
	if !validID.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	var s Session
	found, err := storage.ReadJSON(fs.Path(id), &s)
	if errors.Is(err, storage.ErrCorrupt) || (err == nil && !found) {
		return New(id), nil
	}
	if err != nil {
		return nil, err
	}
	if s.ID == "" {
		s.ID = id
	}
	return &s, nil
}

// Save writes the session atomically.
func (fs *FileStore) Save(s *Session) error {
	if !validID.MatchString(s.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, s.ID)
	}
	s.UpdatedAt = time.Now().UTC()
	return storage.WriteJSON(fs.Path(s.ID), s)
}

// RecordPrompt bumps the prompt count and stores what the engine observed.
func (fs *FileStore) RecordPrompt(s *Session, state ContextState) error {
	s.PromptCount++
	s.Context = state
	return fs.Save(s)
}
