package capture

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jasperwreed/agent-index/internal/models"
)

// Kind discriminates the closed set of record variants.
type Kind int

const (
	KindUnknown Kind = iota
	KindSessionMeta
	KindMessage
	KindToolCall
	KindToolResult
	KindTodo
	KindParseError
)

func (k Kind) String() string {
	switch k {
	case KindSessionMeta:
		return "session_meta"
	case KindMessage:
		return "message"
	case KindToolCall:
		return "tool_call"
	case KindToolResult:
		return "tool_result"
	case KindTodo:
		return "todo"
	case KindParseError:
		return "parse_error"
	default:
		return "unknown"
	}
}

// Record is a typed value decoded from one transcript line. A single line may
// yield several records; each can be applied to the store on its own. The
// variants below are the only implementations.
type Record interface {
	Kind() Kind
	isRecord()
}

// SessionMeta carries the session-level fields found on any transcript line.
type SessionMeta struct {
	SessionID string
	CWD       string
	GitBranch string
	Version   string
	Timestamp time.Time
}

// Message is one user, assistant or system turn.
type Message struct {
	UUID         string
	ParentUUID   string
	APIMessageID string
	Role         string
	Content      string
	Model        string
	Usage        models.TokenUsage
	Timestamp    time.Time
}

// ToolCall is the start of a tool invocation, taken from a tool_use block.
type ToolCall struct {
	ToolUseID  string
	Name       string
	Input      json.RawMessage
	BlockIndex int
	Timestamp  time.Time
}

// ToolResult completes a previously started tool invocation.
type ToolResult struct {
	ToolUseID string
	Output    string
	IsError   bool
	Timestamp time.Time
}

// TodoEvent is one entry of a todo list written by the agent.
type TodoEvent struct {
	Content    string
	Status     string
	ActiveForm string
	Timestamp  time.Time
}

// ParseError marks a terminated line that could not be decoded.
type ParseError struct {
	Line   int64
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d (offset %d): %v", e.Line, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Unknown is a well-formed line whose type this package does not model.
type Unknown struct {
	Type string
}

func (*SessionMeta) Kind() Kind { return KindSessionMeta }
func (*Message) Kind() Kind     { return KindMessage }
func (*ToolCall) Kind() Kind    { return KindToolCall }
func (*ToolResult) Kind() Kind  { return KindToolResult }
func (*TodoEvent) Kind() Kind   { return KindTodo }
func (*ParseError) Kind() Kind  { return KindParseError }
func (*Unknown) Kind() Kind     { return KindUnknown }

func (*SessionMeta) isRecord() {}
func (*Message) isRecord()     {}
func (*ToolCall) isRecord()    {}
func (*ToolResult) isRecord()  {}
func (*TodoEvent) isRecord()   {}
func (*ParseError) isRecord()  {}
func (*Unknown) isRecord()     {}
