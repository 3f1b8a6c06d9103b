package models

import (
	"time"
)

// Session is one continuous agent interaction, backed by a single transcript file.
type Session struct {
	ID         string    `json:"id"`
	Project    string    `json:"project"`
	Display    string    `json:"display,omitempty"`
	CWD        string    `json:"cwd,omitempty"`
	GitBranch  string    `json:"git_branch,omitempty"`
	Model      string    `json:"model,omitempty"`
	SourcePath string    `json:"source_path"`
	StartedAt  time.Time `json:"started_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	Messages   []Message `json:"messages,omitempty"`

	MessageCount int `json:"message_count,omitempty"`
}

// TokenUsage is the token accounting reported with an assistant turn.
type TokenUsage struct {
	InputTokens         int64 `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens" yaml:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens" yaml:"cache_creation_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens" yaml:"cache_read_tokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	u.CacheReadTokens += other.CacheReadTokens
}

// Total is the sum of every token class.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheCreationTokens + u.CacheReadTokens
}

// IsZero reports whether no tokens were recorded.
func (u TokenUsage) IsZero() bool {
	return u.Total() == 0
}

// Message is one turn within a session. Seq is the source line number.
type Message struct {
	SessionID    string     `json:"session_id"`
	Seq          int64      `json:"seq"`
	UUID         string     `json:"uuid,omitempty"`
	ParentUUID   string     `json:"parent_uuid,omitempty"`
	APIMessageID string     `json:"api_message_id,omitempty"`
	Role         string     `json:"role"`
	Content      string     `json:"content"`
	Model        string     `json:"model,omitempty"`
	Usage        TokenUsage `json:"usage"`
	Timestamp    time.Time  `json:"timestamp"`
}

// ToolCall is one tool invocation attributed to a message.
type ToolCall struct {
	SessionID   string         `json:"session_id"`
	MessageSeq  int64          `json:"message_seq"`
	BlockIndex  int            `json:"block_index"`
	ToolUseID   string         `json:"tool_use_id,omitempty"`
	Name        string         `json:"name"`
	Input       string         `json:"input,omitempty"`
	Output      string         `json:"output,omitempty"`
	IsError     bool           `json:"is_error"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Duration    *time.Duration `json:"duration,omitempty"`
	Project     string         `json:"project,omitempty"`
}

// Complete reports whether a completion record was observed for the call.
func (c ToolCall) Complete() bool {
	return c.CompletedAt != nil
}

// Todo statuses as written by the agent.
const (
	TodoPending    = "pending"
	TodoInProgress = "in_progress"
	TodoCompleted  = "completed"
)

// Todo is a work item tracked by the agent, scoped to a project.
type Todo struct {
	Project    string    `json:"project"`
	Content    string    `json:"content"`
	Status     string    `json:"status"`
	ActiveForm string    `json:"active_form,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SyncState is the ingestion cursor of one transcript file.
type SyncState struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Offset   int64     `json:"offset"`
	Line     int64     `json:"line"`
	Checksum string    `json:"checksum"`
	SyncedAt time.Time `json:"synced_at"`
}
