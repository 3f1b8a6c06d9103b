package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userLine      = `{"type":"user","uuid":"u1","sessionId":"s1","cwd":"/work/app","gitBranch":"main","version":"1.0.0","timestamp":"2025-01-02T10:00:00Z","message":{"role":"user","content":"fix the auth bug"}}`
	assistantLine = `{"type":"assistant","uuid":"a1","parentUuid":"u1","sessionId":"s1","timestamp":"2025-01-02T10:00:05Z","message":{"id":"msg_1","role":"assistant","model":"claude-sonnet-4-5-20250929","content":[{"type":"text","text":"Looking at it"},{"type":"tool_use","id":"toolu_1","name":"Bash","input":{"command":"go test ./..."}}],"usage":{"input_tokens":100,"output_tokens":20,"cache_creation_input_tokens":5,"cache_read_input_tokens":7}}}`
	resultLine    = `{"type":"user","uuid":"u2","sessionId":"s1","timestamp":"2025-01-02T10:00:09Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":[{"type":"text","text":"ok"}],"is_error":false}]}}`
	todoLine      = `{"type":"assistant","uuid":"a2","sessionId":"s1","timestamp":"2025-01-02T10:01:00Z","message":{"id":"msg_2","role":"assistant","model":"claude-sonnet-4-5-20250929","content":[{"type":"tool_use","id":"toolu_2","name":"TodoWrite","input":{"todos":[{"content":"Write tests","status":"pending","activeForm":"Writing tests"},{"content":"Ship it","status":"completed","activeForm":"Shipping"}]}}]}}`
	summaryLine   = `{"type":"summary","summary":"Auth fixes","leafUuid":"a2"}`
)

func parseAll(t *testing.T, input string, start Position) ([]Record, Position) {
	t.Helper()
	p := NewParser(strings.NewReader(input[start.Offset:]), start)
	var records []Record
	for p.Next() {
		records = append(records, p.Record())
	}
	require.NoError(t, p.Err())
	return records, p.Position()
}

func kinds(records []Record) []Kind {
	out := make([]Kind, 0, len(records))
	for _, r := range records {
		out = append(out, r.Kind())
	}
	return out
}

func TestParserDecodesVariants(t *testing.T) {
	input := strings.Join([]string{userLine, assistantLine, resultLine, todoLine, summaryLine}, "\n") + "\n"

	records, pos := parseAll(t, input, Position{})

	assert.Equal(t, []Kind{
		KindSessionMeta, KindMessage,
		KindSessionMeta, KindMessage, KindToolCall,
		KindSessionMeta, KindToolResult,
		KindSessionMeta, KindMessage, KindToolCall, KindTodo, KindTodo,
		KindUnknown,
	}, kinds(records))
	assert.Equal(t, Position{Offset: int64(len(input)), Line: 5}, pos)

	meta := records[0].(*SessionMeta)
	assert.Equal(t, "/work/app", meta.CWD)
	assert.Equal(t, "main", meta.GitBranch)

	user := records[1].(*Message)
	assert.Equal(t, "user", user.Role)
	assert.Equal(t, "fix the auth bug", user.Content)

	assistant := records[3].(*Message)
	assert.Equal(t, "msg_1", assistant.APIMessageID)
	assert.Equal(t, "claude-sonnet-4-5-20250929", assistant.Model)
	assert.Equal(t, int64(100), assistant.Usage.InputTokens)
	assert.Equal(t, int64(20), assistant.Usage.OutputTokens)
	assert.Equal(t, int64(5), assistant.Usage.CacheCreationTokens)
	assert.Equal(t, int64(7), assistant.Usage.CacheReadTokens)
	assert.Contains(t, assistant.Content, "[Used tool: Bash]")

	call := records[4].(*ToolCall)
	assert.Equal(t, "toolu_1", call.ToolUseID)
	assert.Equal(t, "Bash", call.Name)
	assert.Equal(t, 1, call.BlockIndex)
	assert.JSONEq(t, `{"command":"go test ./..."}`, string(call.Input))

	result := records[6].(*ToolResult)
	assert.Equal(t, "toolu_1", result.ToolUseID)
	assert.Equal(t, "ok", result.Output)
	assert.False(t, result.IsError)

	todo := records[10].(*TodoEvent)
	assert.Equal(t, "Write tests", todo.Content)
	assert.Equal(t, "pending", todo.Status)

	assert.Equal(t, "summary", records[12].(*Unknown).Type)
}

func TestParserLeavesPartialLine(t *testing.T) {
	complete := userLine + "\n"
	input := complete + assistantLine[:40]

	records, pos := parseAll(t, input, Position{})

	assert.Equal(t, []Kind{KindSessionMeta, KindMessage}, kinds(records))
	assert.Equal(t, int64(len(complete)), pos.Offset)
	assert.Equal(t, int64(1), pos.Line)

	// The writer finishes the line; resuming picks it up exactly once.
	finished := complete + assistantLine + "\n"
	rest, pos := parseAll(t, finished, pos)
	assert.Equal(t, []Kind{KindSessionMeta, KindMessage, KindToolCall}, kinds(rest))
	assert.Equal(t, Position{Offset: int64(len(finished)), Line: 2}, pos)
}

func TestParserSkipsMalformedLine(t *testing.T) {
	input := userLine + "\n" + `{"type":"user", broken` + "\n" + summaryLine + "\n"

	records, pos := parseAll(t, input, Position{})

	require.Len(t, records, 4)
	perr, ok := records[2].(*ParseError)
	require.True(t, ok)
	assert.Equal(t, int64(2), perr.Line)
	assert.Equal(t, int64(len(userLine)+1), perr.Offset)
	assert.Equal(t, Position{Offset: int64(len(input)), Line: 3}, pos)
}

func TestParserBlankLinesAndCRLF(t *testing.T) {
	input := "\n" + userLine + "\r\n\n"

	records, pos := parseAll(t, input, Position{})

	assert.Equal(t, []Kind{KindSessionMeta, KindMessage}, kinds(records))
	assert.Equal(t, Position{Offset: int64(len(input)), Line: 3}, pos)
}

func TestParserRejectsWrongShapes(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "top level array", line: `[1,2,3]`},
		{name: "message is a string", line: `{"type":"assistant","message":"oops"}`},
		{name: "content is a number", line: `{"type":"user","message":{"role":"user","content":42}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, pos := parseAll(t, tt.line+"\n", Position{})
			require.Len(t, records, 1)
			assert.Equal(t, KindParseError, records[0].Kind())
			assert.Equal(t, int64(1), pos.Line)
		})
	}
}

func TestParserResumesAtEveryLineBoundary(t *testing.T) {
	input := strings.Join([]string{userLine, assistantLine, resultLine, todoLine, summaryLine}, "\n") + "\n"
	all, _ := parseAll(t, input, Position{})

	p := NewParser(strings.NewReader(input), Position{})
	consumed := 0
	for p.Next() {
		consumed++
		if len(p.pending) > 0 {
			continue
		}
		rest, _ := parseAll(t, input, p.Position())
		assert.Equal(t, kinds(all[consumed:]), kinds(rest), "resume after %d records", consumed)
	}
}

func TestParserDigestCoversConsumedBytes(t *testing.T) {
	complete := userLine + "\n" + assistantLine + "\n"
	input := complete + `{"type":"us`

	h := sha256.New()
	p := NewParser(strings.NewReader(input), Position{}).WithDigest(h)
	for p.Next() {
	}
	require.NoError(t, p.Err())

	want := sha256.Sum256([]byte(complete))
	assert.Equal(t, hex.EncodeToString(want[:]), hex.EncodeToString(h.Sum(nil)))
}

func TestParserSystemMessage(t *testing.T) {
	line := `{"type":"system","uuid":"y1","content":"Conversation compacted","timestamp":"2025-01-02T11:00:00Z"}`

	records, _ := parseAll(t, line+"\n", Position{})

	require.Len(t, records, 1)
	msg := records[0].(*Message)
	assert.Equal(t, "system", msg.Role)
	assert.Equal(t, "Conversation compacted", msg.Content)
	assert.Equal(t, 11, msg.Timestamp.Hour())
}
