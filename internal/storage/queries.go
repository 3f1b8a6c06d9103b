package storage

// Schema, version 1: core entities
const (
	queryCreateSchemaVersionTable = `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`

	queryCreateSessionsTable = `CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		source_path TEXT NOT NULL,
		cwd TEXT,
		git_branch TEXT,
		model TEXT,
		started_at INTEGER NOT NULL DEFAULT 0,
		last_seen_at INTEGER NOT NULL DEFAULT 0
	)`

	queryCreateMessagesTable = `CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		uuid TEXT,
		parent_uuid TEXT,
		api_message_id TEXT,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		model TEXT,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cache_creation_tokens INTEGER NOT NULL DEFAULT 0,
		cache_read_tokens INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT 0,
		UNIQUE (session_id, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	)`

	queryCreateToolCallsTable = `CREATE TABLE IF NOT EXISTS tool_calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		message_seq INTEGER NOT NULL,
		block_index INTEGER NOT NULL,
		tool_use_id TEXT,
		tool_name TEXT NOT NULL,
		input TEXT,
		output TEXT,
		is_error INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL DEFAULT 0,
		completed_at INTEGER,
		duration_ms INTEGER,
		UNIQUE (session_id, message_seq, block_index),
		FOREIGN KEY (session_id, message_seq) REFERENCES messages(session_id, seq) ON DELETE CASCADE
	)`

	queryCreateTodosTable = `CREATE TABLE IF NOT EXISTS todos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project TEXT NOT NULL,
		content TEXT NOT NULL,
		normalized TEXT NOT NULL,
		status TEXT NOT NULL,
		active_form TEXT,
		session_id TEXT,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		UNIQUE (project, normalized)
	)`

	queryCreateSyncStateTable = `CREATE TABLE IF NOT EXISTS sync_state (
		path TEXT PRIMARY KEY,
		size INTEGER NOT NULL,
		mtime_ns INTEGER NOT NULL,
		byte_offset INTEGER NOT NULL,
		line_count INTEGER NOT NULL,
		checksum TEXT NOT NULL,
		synced_at INTEGER NOT NULL
	)`
)

// Schema, version 2: full-text index over message content
const (
	queryCreateMessagesFTS = `CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
		content,
		content=messages,
		content_rowid=id,
		tokenize='porter unicode61'
	)`

	queryCreateMessagesInsertTrigger = `CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages
	BEGIN
		INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
	END`

	queryCreateMessagesDeleteTrigger = `CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages
	BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
	END`

	queryCreateMessagesUpdateTrigger = `CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages
	BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
		INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
	END`

	queryRebuildMessagesFTS = `INSERT INTO messages_fts(messages_fts) VALUES ('rebuild')`
)

// Schema, version 3: query indexes
const (
	queryCreateIndexMessagesCreated  = `CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at)`
	queryCreateIndexMessagesAPIID    = `CREATE INDEX IF NOT EXISTS idx_messages_api_id ON messages(session_id, api_message_id)`
	queryCreateIndexToolCallsName    = `CREATE INDEX IF NOT EXISTS idx_tool_calls_name ON tool_calls(tool_name, started_at)`
	queryCreateIndexToolCallsUseID   = `CREATE INDEX IF NOT EXISTS idx_tool_calls_use_id ON tool_calls(session_id, tool_use_id)`
	queryCreateIndexSessionsBranch   = `CREATE INDEX IF NOT EXISTS idx_sessions_branch ON sessions(git_branch)`
	queryCreateIndexSessionsProject  = `CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project)`
	queryCreateIndexSessionsLastSeen = `CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON sessions(last_seen_at)`
	queryCreateIndexTodosStatus      = `CREATE INDEX IF NOT EXISTS idx_todos_status ON todos(status)`
)

// Schema, version 4: display titles from the prompt history
const (
	queryCreateSessionTitlesTable = `CREATE TABLE IF NOT EXISTS session_titles (
		session_id TEXT PRIMARY KEY,
		project TEXT NOT NULL DEFAULT '',
		display TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT 0
	)`
)

// Write path, used inside a file transaction
const (
	querySelectSyncState = `SELECT path, size, mtime_ns, byte_offset, line_count, checksum, synced_at
		FROM sync_state WHERE path = ?`

	querySelectSyncStates = `SELECT path, size, mtime_ns, byte_offset, line_count, checksum, synced_at
		FROM sync_state`

	queryUpsertSyncState = `INSERT INTO sync_state (path, size, mtime_ns, byte_offset, line_count, checksum, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mtime_ns = excluded.mtime_ns,
			byte_offset = excluded.byte_offset,
			line_count = excluded.line_count,
			checksum = excluded.checksum,
			synced_at = excluded.synced_at`

	queryEnsureSession = `INSERT OR IGNORE INTO sessions (id, project, source_path) VALUES (?, ?, ?)`

	querySelectSessionRow = `SELECT id, project, source_path, COALESCE(cwd, ''), COALESCE(git_branch, ''),
		COALESCE(model, ''), started_at, last_seen_at
		FROM sessions WHERE id = ?`

	queryUpdateSession = `UPDATE sessions SET
			cwd = NULLIF(?, ''),
			git_branch = NULLIF(?, ''),
			model = NULLIF(?, ''),
			started_at = ?,
			last_seen_at = ?
		WHERE id = ?`

	queryClearSession = `UPDATE sessions SET
			cwd = NULL,
			git_branch = NULL,
			model = NULL,
			started_at = 0,
			last_seen_at = 0
		WHERE id = ?`

	queryInsertSessionTitle = `INSERT INTO session_titles (session_id, project, display, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING`

	querySelectSessionProject = `SELECT project FROM sessions WHERE id = ?`

	queryDeleteSessionToolCalls = `DELETE FROM tool_calls WHERE session_id = ?`
	queryDeleteSessionMessages  = `DELETE FROM messages WHERE session_id = ?`

	queryInsertMessage = `INSERT INTO messages (session_id, seq, uuid, parent_uuid, api_message_id, role, content, model,
			input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING`

	querySelectUsageCounted = `SELECT 1 FROM messages
		WHERE session_id = ? AND api_message_id = ? AND seq < ? LIMIT 1`

	queryInsertToolCall = `INSERT INTO tool_calls (session_id, message_seq, block_index, tool_use_id, tool_name, input, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, message_seq, block_index) DO NOTHING`

	queryCompleteToolCall = `UPDATE tool_calls SET
			output = ?,
			is_error = ?,
			completed_at = ?,
			duration_ms = CASE WHEN ? > 0 AND started_at > 0 THEN MAX(0, ? - started_at) ELSE NULL END
		WHERE session_id = ? AND tool_use_id = ? AND completed_at IS NULL`

	queryUpsertTodo = `INSERT INTO todos (project, content, normalized, status, active_form, session_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project, normalized) DO UPDATE SET
			content = excluded.content,
			status = excluded.status,
			active_form = excluded.active_form,
			session_id = excluded.session_id,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= todos.updated_at`
)

// Read path
const (
	querySearchMessages = `
		SELECT m.session_id, s.project, m.seq, m.role, m.created_at,
			snippet(messages_fts, 0, '[', ']', '...', 16) AS snippet,
			bm25(messages_fts) AS score
		FROM messages_fts
		JOIN messages m ON messages_fts.rowid = m.id
		JOIN sessions s ON s.id = m.session_id
		WHERE messages_fts MATCH ?
		ORDER BY score ASC, m.created_at DESC
		LIMIT ?`

	queryUsageTotals = `SELECT COUNT(DISTINCT session_id), COUNT(*)
		FROM messages WHERE created_at >= ? AND created_at < ?`

	queryToolCallTotal = `SELECT COUNT(*) FROM tool_calls WHERE started_at >= ? AND started_at < ?`

	queryUsageByModel = `SELECT COALESCE(model, ''), COUNT(*),
			COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(cache_creation_tokens), 0), COALESCE(SUM(cache_read_tokens), 0)
		FROM messages
		WHERE created_at >= ? AND created_at < ?
		GROUP BY COALESCE(model, '')
		ORDER BY SUM(input_tokens) + SUM(output_tokens) DESC`

	queryUsageBySlotModel = `SELECT (created_at / 900000) * 900000 AS slot,
			COALESCE(model, ''), COUNT(*),
			COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(cache_creation_tokens), 0), COALESCE(SUM(cache_read_tokens), 0)
		FROM messages
		WHERE created_at >= ? AND created_at < ?
		GROUP BY slot, COALESCE(model, '')
		ORDER BY slot`

	querySessionSlots = `SELECT DISTINCT (created_at / 900000) * 900000 AS slot, session_id
		FROM messages
		WHERE created_at >= ? AND created_at < ?
		ORDER BY slot`

	queryUsageBySessionModel = `SELECT m.session_id, s.project, s.last_seen_at, COALESCE(m.model, ''), COUNT(*),
			COALESCE(SUM(m.input_tokens), 0), COALESCE(SUM(m.output_tokens), 0),
			COALESCE(SUM(m.cache_creation_tokens), 0), COALESCE(SUM(m.cache_read_tokens), 0)
		FROM messages m
		JOIN sessions s ON s.id = m.session_id
		WHERE m.created_at >= ? AND m.created_at < ?
		GROUP BY m.session_id, COALESCE(m.model, '')
		ORDER BY s.last_seen_at DESC`

	queryToolStats = `SELECT tool_name, COUNT(*),
			COUNT(completed_at),
			COALESCE(SUM(is_error), 0),
			COALESCE(AVG(duration_ms), 0),
			COALESCE(MAX(duration_ms), 0),
			MAX(started_at)
		FROM tool_calls
		GROUP BY tool_name
		ORDER BY COUNT(*) DESC, tool_name`

	queryToolStat = `SELECT tool_name, COUNT(*),
			COUNT(completed_at),
			COALESCE(SUM(is_error), 0),
			COALESCE(AVG(duration_ms), 0),
			COALESCE(MAX(duration_ms), 0),
			MAX(started_at)
		FROM tool_calls
		WHERE tool_name = ?
		GROUP BY tool_name`

	queryToolCallsByName = `SELECT t.session_id, t.message_seq, t.block_index, COALESCE(t.tool_use_id, ''), t.tool_name,
			COALESCE(t.input, ''), COALESCE(t.output, ''), t.is_error, t.started_at, t.completed_at, t.duration_ms,
			s.project
		FROM tool_calls t
		JOIN sessions s ON s.id = t.session_id
		WHERE t.tool_name = ?
		ORDER BY t.started_at DESC, t.id DESC
		LIMIT ?`

	queryToolNames = `SELECT DISTINCT tool_name FROM tool_calls ORDER BY tool_name`

	queryBranches = `SELECT COALESCE(s.git_branch, ''), s.project,
			COUNT(DISTINCT s.id),
			COALESCE(SUM(u.messages), 0),
			COALESCE(SUM(u.input_tokens), 0),
			COALESCE(SUM(u.output_tokens), 0),
			COALESCE(SUM(u.cache_creation_tokens), 0),
			COALESCE(SUM(u.cache_read_tokens), 0),
			MAX(s.last_seen_at),
			GROUP_CONCAT(s.id)
		FROM sessions s
		LEFT JOIN (
			SELECT session_id, COUNT(*) AS messages,
				SUM(input_tokens) AS input_tokens, SUM(output_tokens) AS output_tokens,
				SUM(cache_creation_tokens) AS cache_creation_tokens, SUM(cache_read_tokens) AS cache_read_tokens
			FROM messages GROUP BY session_id
		) u ON u.session_id = s.id
		WHERE s.git_branch IS NOT NULL AND s.git_branch LIKE ? ESCAPE '\'
		GROUP BY s.git_branch, s.project
		ORDER BY MAX(s.last_seen_at) DESC
		LIMIT ?`

	querySessions = `SELECT s.id, s.project, s.source_path, COALESCE(s.cwd, ''), COALESCE(s.git_branch, ''),
			COALESCE(s.model, ''), s.started_at, s.last_seen_at,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id),
			COALESCE(t.display, '')
		FROM sessions s
		LEFT JOIN session_titles t ON t.session_id = s.id
		WHERE s.project LIKE ? ESCAPE '\'
		ORDER BY s.last_seen_at DESC
		LIMIT ?`

	querySessionTitle = `SELECT display FROM session_titles WHERE session_id = ?`

	querySessionIDsByPrefix = `SELECT id FROM sessions WHERE id LIKE ? ESCAPE '\' ORDER BY id LIMIT 2`

	querySessionMessages = `SELECT session_id, seq, COALESCE(uuid, ''), COALESCE(parent_uuid, ''), COALESCE(api_message_id, ''),
			role, content, COALESCE(model, ''),
			input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens, created_at
		FROM messages WHERE session_id = ? ORDER BY seq`

	queryTodos = `SELECT project, content, status, COALESCE(active_form, ''), COALESCE(session_id, ''), created_at, updated_at
		FROM todos
		WHERE project LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC`
)
