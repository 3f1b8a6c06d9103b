package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/scanner"
)

type env struct {
	claudeDir string
	db        string
	config    string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		claudeDir: filepath.Join(dir, "claude"),
		db:        filepath.Join(dir, "index.db"),
		config:    filepath.Join(dir, "config.yaml"),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(e.claudeDir, "projects"), 0755))
	require.NoError(t, os.WriteFile(e.config, []byte("log:\n  level: error\n"), 0644))

	at := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339Nano)
	lines := []string{
		fmt.Sprintf(`{"type":"user","uuid":"u1","sessionId":"sess-cli","cwd":"/home/dev/app","gitBranch":"feature/login","timestamp":%q,"message":{"role":"user","content":"fix the auth bug in login"}}`, at),
		fmt.Sprintf(`{"type":"assistant","uuid":"a1","sessionId":"sess-cli","timestamp":%q,"message":{"id":"msg_a1","role":"assistant","model":"claude-sonnet-4-5-20250929","content":[{"type":"tool_use","id":"toolu_1","name":"Bash","input":{"command":"go test ./..."}}],"usage":{"input_tokens":1000,"output_tokens":500}}}`, at),
		fmt.Sprintf(`{"type":"user","uuid":"u2","sessionId":"sess-cli","timestamp":%q,"message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"ok"}]}}`, at),
	}
	path := filepath.Join(e.claudeDir, "projects", scanner.EncodeProjectPath("/home/dev/app"), "sess-cli.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return e
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.config, "--db", e.db, "--claude-dir", e.claudeDir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	for _, flag := range []string{"config", "db", "claude-dir", "log-level", "json"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "persistent flag %q", flag)
	}

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"sync", "stats", "search", "tools", "pricing", "branches", "errors", "sessions", "session", "todos", "browse", "config"} {
		assert.Contains(t, names, want)
	}
}

func TestCommandFlags(t *testing.T) {
	search := NewSearchCommand()
	assert.Equal(t, "search <query>", search.Use)
	assert.Equal(t, "10", search.Flags().Lookup("limit").DefValue)
	assert.NotNil(t, search.Flags().Lookup("project"))
	assert.NotNil(t, search.Flags().Lookup("role"))

	assert.Equal(t, "20", NewToolsCommand().Flags().Lookup("limit").DefValue)
	assert.Equal(t, "7", NewErrorsCommand().Flags().Lookup("recent").DefValue)
	assert.Equal(t, "20", NewBranchesCommand().Flags().Lookup("limit").DefValue)
	assert.NotNil(t, NewSyncCommand().Flags().Lookup("force"))
	assert.NotNil(t, NewStatsCommand().Flags().Lookup("today"))
	assert.NotNil(t, NewPricingCommand().Flags().Lookup("billing-day"))
	assert.NotNil(t, NewTodosCommand().Flags().Lookup("pending"))
}

func TestSyncThenQuery(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "sync", "--json")
	require.NoError(t, err)
	var rep models.SyncReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 1, rep.FilesScanned)
	assert.Equal(t, 1, rep.FilesUpdated)
	assert.Positive(t, rep.RecordsIngested)

	out, err = e.run(t, "sync", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 1, rep.FilesSkipped)
	assert.Equal(t, 0, rep.RecordsIngested)

	t.Run("stats", func(t *testing.T) {
		out, err := e.run(t, "stats", "--json")
		require.NoError(t, err)
		var stats models.UsageStats
		require.NoError(t, json.Unmarshal([]byte(out), &stats))
		assert.Equal(t, 1, stats.Sessions)
		assert.Equal(t, int64(1000), stats.Usage.InputTokens)
		assert.Equal(t, int64(500), stats.Usage.OutputTokens)
		assert.InDelta(t, 0.0105, stats.Cost, 1e-9)
	})

	t.Run("search", func(t *testing.T) {
		out, err := e.run(t, "search", "auth", "bug")
		require.NoError(t, err)
		assert.Contains(t, out, "Found 1 result(s) for 'auth bug'")

		out, err = e.run(t, "search", "auth", "--role", "assistant")
		require.NoError(t, err)
		assert.Contains(t, out, "No results found.")

		_, err = e.run(t, "search", "auth", "--limit", "0")
		assert.Error(t, err)
	})

	t.Run("tools", func(t *testing.T) {
		out, err := e.run(t, "tools", "--json")
		require.NoError(t, err)
		var stats []models.ToolStat
		require.NoError(t, json.Unmarshal([]byte(out), &stats))
		require.Len(t, stats, 1)
		assert.Equal(t, "Bash", stats[0].Name)
		assert.Equal(t, 1, stats[0].Completed)

		out, err = e.run(t, "tools", "--tool", "bash")
		require.NoError(t, err)
		assert.Contains(t, out, "Did you mean: Bash?")
	})

	t.Run("branches", func(t *testing.T) {
		out, err := e.run(t, "branches", "--branch", "login")
		require.NoError(t, err)
		assert.Contains(t, out, "feature/login")
	})

	t.Run("sessions", func(t *testing.T) {
		out, err := e.run(t, "sessions")
		require.NoError(t, err)
		assert.Contains(t, out, "sess-cli")
		assert.Contains(t, out, "TITLE")

		out, err = e.run(t, "session", "sess-c")
		require.NoError(t, err)
		assert.Contains(t, out, "fix the auth bug in login")
	})

	t.Run("pricing", func(t *testing.T) {
		out, err := e.run(t, "pricing", "--json", "--subscription", "pro", "--billing-day", "1")
		require.NoError(t, err)
		var rep models.PricingReport
		require.NoError(t, json.Unmarshal([]byte(out), &rep))
		assert.Equal(t, "pro", rep.Tier)
		assert.Equal(t, 20.0, rep.SubscriptionPrice)

		_, err = e.run(t, "pricing", "--subscription", "enterprise")
		assert.Error(t, err)
	})
}

func TestErrorsCommand(t *testing.T) {
	e := newEnv(t)
	debugDir := filepath.Join(e.claudeDir, "debug")
	require.NoError(t, os.MkdirAll(debugDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(debugDir, "run.txt"),
		[]byte("starting\nERROR: connection refused\nfine\n"), 0644))

	out, err := e.run(t, "errors")
	require.NoError(t, err)
	assert.Contains(t, out, "connection refused")

	_, err = e.run(t, "errors", "--recent", "0")
	assert.Error(t, err)
}

func TestMissingClaudeDir(t *testing.T) {
	e := newEnv(t)
	e.claudeDir = filepath.Join(e.claudeDir, "absent")

	_, err := e.run(t, "sync")
	assert.Error(t, err)
}

func TestSyncHistoryAndTodos(t *testing.T) {
	e := newEnv(t)
	history := `{"display":"fix the login flow","timestamp":1749546000000,"project":"/home/dev/app","sessionId":"sess-cli"}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(e.claudeDir, "history.jsonl"), []byte(history), 0644))
	todosDir := filepath.Join(e.claudeDir, "todos")
	require.NoError(t, os.MkdirAll(todosDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(todosDir, "sess-cli-agent-sess-cli.json"),
		[]byte(`[{"content":"Reproduce the redirect loop","status":"in_progress","activeForm":"Reproducing"}]`), 0644))

	out, err := e.run(t, "sync", "--json")
	require.NoError(t, err)
	var rep models.SyncReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 1, rep.HistoryTitles)
	assert.Equal(t, 1, rep.TodoFiles)
	assert.Empty(t, rep.Errors)

	out, err = e.run(t, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "fix the login flow")

	out, err = e.run(t, "session", "sess-cli")
	require.NoError(t, err)
	assert.Contains(t, out, "fix the login flow")

	out, err = e.run(t, "todos", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, "Reproduce the redirect loop")
}

func TestConfigCommand(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, e.config)
	assert.Contains(t, out, e.db)
	assert.Contains(t, out, filepath.Join(e.claudeDir, "history.jsonl"))
	assert.Contains(t, out, "error (text)")
	assert.Contains(t, out, "claude-sonnet-4-5")

	out, err = e.run(t, "config", "--json")
	require.NoError(t, err)
	var view struct {
		Source      string `json:"source"`
		ProjectsDir string `json:"projects_dir"`
		TodosDir    string `json:"todos_dir"`
		Config      struct {
			Paths struct {
				ClaudeDir string `json:"claude_dir"`
				Database  string `json:"database"`
			} `json:"paths"`
			Log struct {
				Level string `json:"level"`
			} `json:"log"`
			Pricing struct {
				Models []struct {
					Name string `json:"name"`
				} `json:"models"`
			} `json:"pricing"`
		} `json:"config"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, e.config, view.Source)
	assert.Equal(t, filepath.Join(e.claudeDir, "projects"), view.ProjectsDir)
	assert.Equal(t, filepath.Join(e.claudeDir, "todos"), view.TodosDir)
	assert.Equal(t, e.claudeDir, view.Config.Paths.ClaudeDir)
	assert.Equal(t, e.db, view.Config.Paths.Database)
	assert.Equal(t, "error", view.Config.Log.Level)
	assert.NotEmpty(t, view.Config.Pricing.Models)

	_, err = e.run(t, "config", "extra")
	assert.Error(t, err)
}
