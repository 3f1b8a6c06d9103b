package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/scanner"
	"github.com/jasperwreed/agent-index/internal/storage"
)

const testModel = "claude-sonnet-4-5-20250929"

var t0 = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

func ts(offset time.Duration) string {
	return t0.Add(offset).Format(time.RFC3339Nano)
}

func userLine(uuid string, at time.Duration, text string) string {
	return fmt.Sprintf(`{"type":"user","uuid":%q,"sessionId":"sess","cwd":"/home/dev/app","gitBranch":"main","timestamp":%q,"message":{"role":"user","content":%q}}`,
		uuid, ts(at), text)
}

func assistantLine(uuid string, at time.Duration, text string, in, out int) string {
	return fmt.Sprintf(`{"type":"assistant","uuid":%q,"sessionId":"sess","timestamp":%q,"message":{"id":"msg_%s","role":"assistant","model":%q,"content":[{"type":"text","text":%q}],"usage":{"input_tokens":%d,"output_tokens":%d}}}`,
		uuid, ts(at), uuid, testModel, text, in, out)
}

func toolUseLine(uuid string, at time.Duration, toolID, name string, in, out int) string {
	return fmt.Sprintf(`{"type":"assistant","uuid":%q,"sessionId":"sess","timestamp":%q,"message":{"id":"msg_%s","role":"assistant","model":%q,"content":[{"type":"tool_use","id":%q,"name":%q,"input":{"command":"make test"}}],"usage":{"input_tokens":%d,"output_tokens":%d}}}`,
		uuid, ts(at), uuid, testModel, toolID, name, in, out)
}

func toolResultLine(uuid string, at time.Duration, toolID, output string) string {
	return fmt.Sprintf(`{"type":"user","uuid":%q,"sessionId":"sess","timestamp":%q,"message":{"role":"user","content":[{"type":"tool_result","tool_use_id":%q,"content":%q}]}}`,
		uuid, ts(at), toolID, output)
}

func join(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

type fixture struct {
	root   string
	store  *storage.SQLiteStore
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	root := filepath.Join(dir, "projects")
	require.NoError(t, os.MkdirAll(root, 0755))
	return &fixture{root: root, store: store, engine: NewEngine(store)}
}

func (f *fixture) path(session string) string {
	return filepath.Join(f.root, scanner.EncodeProjectPath("/home/dev/app"), session+".jsonl")
}

func (f *fixture) write(t *testing.T, session, content string) string {
	t.Helper()
	p := f.path(session)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func (f *fixture) append(t *testing.T, session, content string) {
	t.Helper()
	fh, err := os.OpenFile(f.path(session), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = fh.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, fh.Close())
}

func (f *fixture) sync(t *testing.T, force bool) *models.SyncReport {
	t.Helper()
	report, err := f.engine.Sync(context.Background(), Options{Root: f.root, Force: force})
	require.NoError(t, err)
	return report
}

func (f *fixture) counts(t *testing.T) map[string]int {
	t.Helper()
	counts, err := f.store.TableCounts(context.Background())
	require.NoError(t, err)
	return counts
}

func (f *fixture) messages(t *testing.T, session string) []models.Message {
	t.Helper()
	sess, err := f.store.GetSession(context.Background(), session)
	require.NoError(t, err)
	return sess.Messages
}

func TestSyncEmptyDirectory(t *testing.T) {
	f := newFixture(t)

	report := f.sync(t, false)

	assert.Equal(t, 0, report.FilesScanned)
	assert.Equal(t, 0, report.FilesUpdated)
	assert.Equal(t, 0, report.RecordsIngested)
	assert.Empty(t, report.Errors)
	assert.NoError(t, report.Err())
	assert.NotEmpty(t, report.RunID)
}

func TestSyncMissingRoot(t *testing.T) {
	f := newFixture(t)

	report, err := f.engine.Sync(context.Background(), Options{Root: filepath.Join(f.root, "nope")})

	require.NoError(t, err)
	assert.Equal(t, 0, report.FilesScanned)
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "sess", join(
		userLine("u1", 0, "hello"),
		toolUseLine("a1", time.Second, "toolu_1", "Bash", 10, 5),
		toolResultLine("u2", 3*time.Second, "toolu_1", "PASS"),
		assistantLine("a2", 4*time.Second, "done", 20, 8),
	))

	first := f.sync(t, false)
	require.Equal(t, 1, first.FilesUpdated)
	require.Greater(t, first.RecordsIngested, 0)
	countsAfterFirst := f.counts(t)
	statesAfterFirst, err := f.store.SyncStates(context.Background())
	require.NoError(t, err)

	second := f.sync(t, false)

	assert.Equal(t, 1, second.FilesScanned)
	assert.Equal(t, 0, second.FilesUpdated)
	assert.Equal(t, 1, second.FilesSkipped)
	assert.Equal(t, 0, second.RecordsIngested)
	assert.Equal(t, countsAfterFirst, f.counts(t))
	statesAfterSecond, err := f.store.SyncStates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, statesAfterFirst, statesAfterSecond)
}

func TestSyncForceReappliesHarmlessly(t *testing.T) {
	f := newFixture(t)
	f.write(t, "sess", join(
		userLine("u1", 0, "hello"),
		toolUseLine("a1", time.Second, "toolu_1", "Bash", 10, 5),
		toolResultLine("u2", 2*time.Second, "toolu_1", "ok"),
	))
	f.sync(t, false)
	before := f.counts(t)

	report := f.sync(t, true)

	assert.Equal(t, 1, report.FilesUpdated)
	assert.Equal(t, 1, report.FilesReset)
	assert.Equal(t, before, f.counts(t))
}

func TestSyncForceAfterRewriteReplacesRows(t *testing.T) {
	f := newFixture(t)
	f.write(t, "sess", join(
		userLine("u1", 0, "old one"),
		userLine("u2", time.Second, "old two"),
		userLine("u3", 2*time.Second, "old three"),
	))
	f.sync(t, false)

	f.write(t, "sess", join(userLine("n1", time.Hour, "new one")))
	report := f.sync(t, true)

	assert.Equal(t, 1, report.FilesReset)
	msgs := f.messages(t, "sess")
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(1), msgs[0].Seq)
	assert.Equal(t, "new one", msgs[0].Content)

	again := f.sync(t, false)
	assert.Equal(t, 1, again.FilesSkipped)
	assert.Len(t, f.messages(t, "sess"), 1)
}

func TestSyncForceSameSizeRewrite(t *testing.T) {
	f := newFixture(t)
	first := join(userLine("u1", 0, "aaaa"))
	f.write(t, "sess", first)
	f.sync(t, false)

	rewritten := join(userLine("u1", 0, "bbbb"))
	require.Equal(t, len(first), len(rewritten))
	f.write(t, "sess", rewritten)
	f.sync(t, true)

	msgs := f.messages(t, "sess")
	require.Len(t, msgs, 1)
	assert.Equal(t, "bbbb", msgs[0].Content)
}

func TestSyncResumableInHalves(t *testing.T) {
	lines := []string{
		userLine("u1", 0, "first question"),
		toolUseLine("a1", time.Second, "toolu_1", "Read", 100, 10),
		toolResultLine("u2", 2*time.Second, "toolu_1", "contents"),
		assistantLine("a2", 3*time.Second, "answer", 120, 40),
		userLine("u3", 4*time.Second, "second question"),
		assistantLine("a3", 5*time.Second, "second answer", 130, 50),
	}
	full := join(lines...)

	whole := newFixture(t)
	whole.write(t, "sess", full)
	whole.sync(t, false)

	for _, split := range []int{len(join(lines[:2]...)), len(join(lines[:3]...)) + 17} {
		t.Run(fmt.Sprintf("split at %d", split), func(t *testing.T) {
			halves := newFixture(t)
			halves.write(t, "sess", full[:split])
			halves.sync(t, false)
			halves.append(t, "sess", full[split:])
			halves.sync(t, false)

			assert.Equal(t, whole.counts(t), halves.counts(t))
			assert.Equal(t, whole.messages(t, "sess"), halves.messages(t, "sess"))

			wantCalls, err := whole.store.ToolCalls(context.Background(), "Read", 10)
			require.NoError(t, err)
			gotCalls, err := halves.store.ToolCalls(context.Background(), "Read", 10)
			require.NoError(t, err)
			assert.Equal(t, wantCalls, gotCalls)

			assert.Equal(t, cursor(t, whole), cursor(t, halves))
		})
	}
}

func cursor(t *testing.T, f *fixture) [3]any {
	t.Helper()
	states, err := f.store.SyncStates(context.Background())
	require.NoError(t, err)
	st := states[f.path("sess")]
	return [3]any{st.Offset, st.Line, st.Checksum}
}

func TestSyncOrdersByLineNotTimestamp(t *testing.T) {
	f := newFixture(t)
	f.write(t, "sess", join(
		userLine("u1", 10*time.Minute, "one"),
		assistantLine("a1", 0, "two", 1, 1),
		userLine("u2", 0, "three"),
		assistantLine("a2", -time.Hour, "four", 1, 1),
	))

	f.sync(t, false)
	msgs := f.messages(t, "sess")

	require.Len(t, msgs, 4)
	for i, want := range []string{"one", "two", "three", "four"} {
		assert.Equal(t, want, msgs[i].Content)
		assert.Equal(t, int64(i+1), msgs[i].Seq)
		if i > 0 {
			assert.Greater(t, msgs[i].Seq, msgs[i-1].Seq)
		}
	}
}

func TestSyncPartialTrailingLine(t *testing.T) {
	f := newFixture(t)
	complete := join(userLine("u1", 0, "hello"))
	tail := assistantLine("a1", time.Second, "partial answer", 5, 5)
	f.write(t, "sess", complete+tail[:len(tail)/2])

	f.sync(t, false)

	assert.Len(t, f.messages(t, "sess"), 1)
	states, err := f.store.SyncStates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(len(complete)), states[f.path("sess")].Offset)

	f.append(t, "sess", tail[len(tail)/2:]+"\n")
	report := f.sync(t, false)

	assert.Equal(t, 1, report.RecordsIngested)
	msgs := f.messages(t, "sess")
	require.Len(t, msgs, 2)
	assert.Equal(t, "partial answer", msgs[1].Content)

	f.sync(t, false)
	assert.Len(t, f.messages(t, "sess"), 2)
}

func TestSyncToleratesMalformedLine(t *testing.T) {
	f := newFixture(t)
	content := join(
		userLine("u1", 0, "a"),
		assistantLine("a1", time.Second, "b", 1, 1),
		`{"type":"user","message":{"role":"user","content":"unterminated string}}`,
		userLine("u2", 2*time.Second, "c"),
		assistantLine("a2", 3*time.Second, "d", 1, 1),
	)
	f.write(t, "sess", content)

	report := f.sync(t, false)

	assert.Equal(t, 1, report.ParseErrors)
	assert.Equal(t, 4, report.RecordsIngested)
	assert.Empty(t, report.Errors)
	assert.Len(t, f.messages(t, "sess"), 4)
	states, err := f.store.SyncStates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), states[f.path("sess")].Offset)
	assert.Equal(t, int64(5), states[f.path("sess")].Line)
}

func TestSyncTruncatedFileResets(t *testing.T) {
	f := newFixture(t)
	f.write(t, "sess", join(
		userLine("u1", 0, "original question"),
		assistantLine("a1", time.Second, "original answer", 10, 10),
		userLine("u2", 2*time.Second, "follow up"),
	))
	f.sync(t, false)

	f.write(t, "sess", join(userLine("n1", time.Hour, "replaced")))
	report := f.sync(t, false)

	assert.Equal(t, 1, report.FilesReset)
	msgs := f.messages(t, "sess")
	require.Len(t, msgs, 1)
	assert.Equal(t, "replaced", msgs[0].Content)
}

func TestSyncChecksumMismatchResyncs(t *testing.T) {
	f := newFixture(t)
	first := join(userLine("u1", 0, "aaaa"))
	f.write(t, "sess", first)
	f.sync(t, false)

	// Same length prefix with different bytes, then new content.
	rewritten := join(userLine("u1", 0, "bbbb"))
	require.Equal(t, len(first), len(rewritten))
	f.write(t, "sess", rewritten+join(assistantLine("a1", time.Second, "reply", 1, 1)))

	report := f.sync(t, false)

	assert.Equal(t, 1, report.FilesReset)
	msgs := f.messages(t, "sess")
	require.Len(t, msgs, 2)
	assert.Equal(t, "bbbb", msgs[0].Content)
}

func TestSyncCompletesToolCallAcrossRuns(t *testing.T) {
	f := newFixture(t)
	f.write(t, "sess", join(toolUseLine("a1", 0, "toolu_9", "Grep", 1, 1)))
	f.sync(t, false)

	stat, err := f.store.ToolStat(context.Background(), "Grep")
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Equal(t, 0, stat.Completed)

	f.append(t, "sess", join(toolResultLine("u1", 2*time.Second, "toolu_9", "match")))
	f.sync(t, false)

	stat, err = f.store.ToolStat(context.Background(), "Grep")
	require.NoError(t, err)
	assert.Equal(t, 1, stat.Completed)
	assert.Equal(t, 2*time.Second, stat.MeanDuration)
}

func TestSyncSessionAttributes(t *testing.T) {
	f := newFixture(t)
	f.write(t, "sess", join(
		userLine("u1", time.Minute, "hi"),
		assistantLine("a1", 2*time.Minute, "hello", 1, 1),
	))
	f.sync(t, false)

	f.append(t, "sess", join(strings.Replace(userLine("u2", 5*time.Minute, "more"), `"gitBranch":"main"`, `"gitBranch":"feature/x"`, 1)))
	f.sync(t, false)

	sess, err := f.store.GetSession(context.Background(), "sess")
	require.NoError(t, err)
	assert.Equal(t, "/home/dev/app", sess.Project)
	assert.Equal(t, "/home/dev/app", sess.CWD)
	assert.Equal(t, "feature/x", sess.GitBranch)
	assert.Equal(t, testModel, sess.Model)
	assert.True(t, sess.StartedAt.Equal(t0.Add(time.Minute)))
	assert.True(t, sess.LastSeenAt.Equal(t0.Add(5*time.Minute)))
}

func TestSyncResetClearsSessionAttributes(t *testing.T) {
	f := newFixture(t)
	f.write(t, "sess", join(
		userLine("u1", 0, "first"),
		assistantLine("a1", time.Second, "reply", 1, 1),
		userLine("u2", 2*time.Second, "second"),
	))
	f.sync(t, false)

	replaced := strings.Replace(userLine("n1", 10*time.Hour, "new"), `"gitBranch":"main"`, `"gitBranch":"feature/y"`, 1)
	f.write(t, "sess", join(replaced))
	report := f.sync(t, false)
	require.Equal(t, 1, report.FilesReset)

	sess, err := f.store.GetSession(context.Background(), "sess")
	require.NoError(t, err)
	assert.True(t, sess.StartedAt.Equal(t0.Add(10*time.Hour)), "started_at = %v", sess.StartedAt)
	assert.True(t, sess.LastSeenAt.Equal(t0.Add(10*time.Hour)), "last_seen_at = %v", sess.LastSeenAt)
	assert.Equal(t, "feature/y", sess.GitBranch)
	assert.Empty(t, sess.Model)
}

func TestSyncRollsBackFailedFile(t *testing.T) {
	f := newFixture(t)
	db, err := sql.Open("sqlite", f.store.Path())
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TRIGGER reject_boom BEFORE INSERT ON messages
		WHEN NEW.content = 'boom'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	f.write(t, "bad", join(userLine("u1", 0, "fine"), userLine("u2", time.Second, "boom")))
	f.write(t, "good", join(userLine("u1", 0, "ok")))

	report := f.sync(t, false)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, f.path("bad"), report.Errors[0].Path)
	assert.Equal(t, "apply", report.Errors[0].Op)
	assert.Equal(t, 1, report.FilesUpdated)

	counts := f.counts(t)
	assert.Equal(t, 1, counts["messages"])
	assert.Equal(t, 1, counts["sessions"])
	states, err := f.store.SyncStates(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, states, f.path("bad"))
	assert.Contains(t, states, f.path("good"))

	_, err = db.Exec(`DROP TRIGGER reject_boom`)
	require.NoError(t, err)
	retry := f.sync(t, false)
	assert.Empty(t, retry.Errors)
	assert.Equal(t, 1, retry.FilesUpdated)
	assert.Equal(t, 3, f.counts(t)["messages"])
}

func TestSyncConcurrentStores(t *testing.T) {
	const files, lines, workers = 4, 400, 4

	f := newFixture(t)
	for i := 0; i < files; i++ {
		content := make([]string, lines)
		for j := range content {
			content[j] = userLine(fmt.Sprintf("u%d", j), time.Duration(j)*time.Second, fmt.Sprintf("line %d", j))
		}
		f.write(t, fmt.Sprintf("sess-%d", i), join(content...))
	}

	engines := []*Engine{f.engine}
	for len(engines) < workers {
		store, err := storage.NewSQLiteStore(f.store.Path())
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		engines = append(engines, NewEngine(store))
	}

	reports := make([]*models.SyncReport, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i, e := range engines {
		wg.Add(1)
		go func(i int, e *Engine) {
			defer wg.Done()
			reports[i], errs[i] = e.Sync(context.Background(), Options{Root: f.root})
		}(i, e)
	}
	wg.Wait()

	updated, records := 0, 0
	for i := range reports {
		require.NoError(t, errs[i])
		assert.Empty(t, reports[i].Errors)
		updated += reports[i].FilesUpdated
		records += reports[i].RecordsIngested
	}
	assert.Equal(t, files, updated)
	assert.Equal(t, files*lines, records)

	counts := f.counts(t)
	assert.Equal(t, files*lines, counts["messages"])
	assert.Equal(t, files, counts["sync_state"])
}

func TestSyncTodos(t *testing.T) {
	f := newFixture(t)
	todo := func(uuid string, at time.Duration, status string) string {
		return fmt.Sprintf(`{"type":"assistant","uuid":%q,"sessionId":"sess","timestamp":%q,"message":{"id":"msg_%s","role":"assistant","model":%q,"content":[{"type":"tool_use","id":"t_%s","name":"TodoWrite","input":{"todos":[{"content":"Add  retries","status":%q,"activeForm":"Adding retries"}]}}]}}`,
			uuid, ts(at), uuid, testModel, uuid, status)
	}
	f.write(t, "sess", join(todo("a1", 0, "pending"), todo("a2", time.Minute, "in_progress"), todo("a3", 2*time.Minute, "completed")))

	f.sync(t, false)

	todos, err := f.store.ListTodos(context.Background(), "", nil)
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Equal(t, "completed", todos[0].Status)
	assert.Equal(t, "/home/dev/app", todos[0].Project)
}

func TestSyncRecordsFileErrorsAndContinues(t *testing.T) {
	f := newFixture(t)
	f.write(t, "good", join(userLine("u1", 0, "fine")))
	broken := f.path("broken")
	require.NoError(t, os.Symlink(filepath.Join(f.root, "missing-target"), broken))

	report := f.sync(t, false)

	assert.Equal(t, 2, report.FilesScanned)
	assert.Equal(t, 1, report.FilesUpdated)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, broken, report.Errors[0].Path)
	assert.Equal(t, "open", report.Errors[0].Op)
	assert.Error(t, report.Err())
	assert.Len(t, f.messages(t, "good"), 1)
}

func TestSyncCancelled(t *testing.T) {
	f := newFixture(t)
	f.write(t, "sess", join(userLine("u1", 0, "hi")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Sync(ctx, Options{Root: f.root})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.counts(t)["messages"])
}
