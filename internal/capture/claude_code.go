package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jasperwreed/agent-index/internal/models"
)

// todoWriteTool is the tool whose input carries the agent's todo list.
const todoWriteTool = "TodoWrite"

type claudeEntry struct {
	Type       string          `json:"type"`
	UUID       string          `json:"uuid"`
	ParentUUID string          `json:"parentUuid"`
	SessionID  string          `json:"sessionId"`
	Timestamp  string          `json:"timestamp"`
	CWD        string          `json:"cwd"`
	GitBranch  string          `json:"gitBranch"`
	Version    string          `json:"version"`
	Message    json.RawMessage `json:"message"`
	Content    json.RawMessage `json:"content"`
}

type claudeMessage struct {
	ID      string          `json:"id"`
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   *claudeUsage    `json:"usage"`
}

type claudeUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

type claudeContentItem struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type todoWriteInput struct {
	Todos []struct {
		Content    string `json:"content"`
		Status     string `json:"status"`
		ActiveForm string `json:"activeForm"`
	} `json:"todos"`
}

// decodeLine turns one complete transcript line into records. Session metadata
// comes first, followed by the message and the records hanging off it.
func decodeLine(line []byte) ([]Record, error) {
	var entry claudeEntry
	if err := json.Unmarshal(line, &entry); err != nil {
		return nil, err
	}

	ts := parseTimestamp(entry.Timestamp)

	var records []Record
	if entry.SessionID != "" || entry.CWD != "" || entry.GitBranch != "" || entry.Version != "" {
		records = append(records, &SessionMeta{
			SessionID: entry.SessionID,
			CWD:       entry.CWD,
			GitBranch: entry.GitBranch,
			Version:   entry.Version,
			Timestamp: ts,
		})
	}

	switch entry.Type {
	case "user":
		rest, err := decodeUser(&entry, ts)
		if err != nil {
			return nil, err
		}
		records = append(records, rest...)
	case "assistant":
		rest, err := decodeAssistant(&entry, ts)
		if err != nil {
			return nil, err
		}
		records = append(records, rest...)
	case "system":
		text, _, err := decodeContent(entry.Content)
		if err != nil {
			return nil, fmt.Errorf("system content: %w", err)
		}
		if text != "" {
			records = append(records, &Message{
				UUID:       entry.UUID,
				ParentUUID: entry.ParentUUID,
				Role:       "system",
				Content:    text,
				Timestamp:  ts,
			})
		}
	default:
		records = append(records, &Unknown{Type: entry.Type})
	}

	return records, nil
}

func decodeUser(entry *claudeEntry, ts time.Time) ([]Record, error) {
	var msg claudeMessage
	if err := unmarshalMessage(entry.Message, &msg); err != nil {
		return nil, err
	}

	text, blocks, err := decodeContent(msg.Content)
	if err != nil {
		return nil, fmt.Errorf("user content: %w", err)
	}

	var records []Record
	var results []Record
	var parts []string
	if text != "" {
		parts = append(parts, text)
	}
	for _, block := range blocks {
		switch block.Type {
		case "text":
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		case "tool_result":
			if block.ToolUseID == "" {
				continue
			}
			results = append(results, &ToolResult{
				ToolUseID: block.ToolUseID,
				Output:    flattenToolOutput(block.Content),
				IsError:   block.IsError,
				Timestamp: ts,
			})
		}
	}

	if len(parts) > 0 {
		records = append(records, &Message{
			UUID:       entry.UUID,
			ParentUUID: entry.ParentUUID,
			Role:       "user",
			Content:    strings.Join(parts, "\n"),
			Timestamp:  ts,
		})
	}
	return append(records, results...), nil
}

func decodeAssistant(entry *claudeEntry, ts time.Time) ([]Record, error) {
	var msg claudeMessage
	if err := unmarshalMessage(entry.Message, &msg); err != nil {
		return nil, err
	}

	text, blocks, err := decodeContent(msg.Content)
	if err != nil {
		return nil, fmt.Errorf("assistant content: %w", err)
	}

	var parts []string
	if text != "" {
		parts = append(parts, text)
	}

	var calls []Record
	var todos []Record
	for i, block := range blocks {
		switch block.Type {
		case "text":
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		case "tool_use":
			parts = append(parts, fmt.Sprintf("[Used tool: %s]", block.Name))
			calls = append(calls, &ToolCall{
				ToolUseID:  block.ID,
				Name:       block.Name,
				Input:      block.Input,
				BlockIndex: i,
				Timestamp:  ts,
			})
			if block.Name == todoWriteTool {
				todos = append(todos, decodeTodos(block.Input, ts)...)
			}
		}
	}

	message := &Message{
		UUID:         entry.UUID,
		ParentUUID:   entry.ParentUUID,
		APIMessageID: msg.ID,
		Role:         "assistant",
		Content:      strings.Join(parts, "\n"),
		Model:        msg.Model,
		Timestamp:    ts,
	}
	if msg.Usage != nil {
		message.Usage = models.TokenUsage{
			InputTokens:         msg.Usage.InputTokens,
			OutputTokens:        msg.Usage.OutputTokens,
			CacheCreationTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadTokens:     msg.Usage.CacheReadInputTokens,
		}
	}

	records := []Record{message}
	records = append(records, calls...)
	return append(records, todos...), nil
}

func unmarshalMessage(raw json.RawMessage, msg *claudeMessage) error {
	if isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, msg); err != nil {
		return fmt.Errorf("message: %w", err)
	}
	return nil
}

// decodeContent accepts either a plain string or an array of content blocks.
func decodeContent(raw json.RawMessage) (string, []claudeContentItem, error) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return "", nil, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", nil, err
		}
		return s, nil, nil
	}

	var blocks []claudeContentItem
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", nil, err
	}
	return "", blocks, nil
}

// flattenToolOutput renders a tool_result payload as text. Structured payloads
// that are not text blocks are kept as raw JSON.
func flattenToolOutput(raw json.RawMessage) string {
	text, blocks, err := decodeContent(raw)
	if err != nil {
		return string(raw)
	}
	if text != "" || len(blocks) == 0 {
		return text
	}

	var parts []string
	for _, block := range blocks {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return string(raw)
	}
	return strings.Join(parts, "\n")
}

func decodeTodos(raw json.RawMessage, ts time.Time) []Record {
	if isNull(raw) {
		return nil
	}

	var input todoWriteInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil
	}

	var records []Record
	for _, todo := range input.Todos {
		if strings.TrimSpace(todo.Content) == "" {
			continue
		}
		records = append(records, &TodoEvent{
			Content:    todo.Content,
			Status:     todo.Status,
			ActiveForm: todo.ActiveForm,
			Timestamp:  ts,
		})
	}
	return records
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
