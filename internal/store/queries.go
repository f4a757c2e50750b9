package store

const (
	// schema bootstrap; failure here aborts startup since no correct
	// operation is possible without the sessions table
	queryCreateSessionsTable = `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			code TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT 'javascript',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`

	queryCreateActivityLogsTable = `
		CREATE TABLE IF NOT EXISTS activity_logs (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			action TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`

	queryCreateSessionUpdatedIndex = `
		CREATE INDEX IF NOT EXISTS idx_session_updated ON sessions (updated_at DESC)
	`

	queryCreateActivitySessionIndex = `
		CREATE INDEX IF NOT EXISTS idx_activity_session ON activity_logs (session_id, timestamp)
	`

	queryCreateActivityUserIndex = `
		CREATE INDEX IF NOT EXISTS idx_activity_user ON activity_logs (user_id, timestamp)
	`

	// session queries
	querySaveSession = `
		INSERT INTO sessions (id, name, code, language)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			code = EXCLUDED.code,
			language = EXCLUDED.language,
			updated_at = NOW()
		RETURNING id, name, code, language, created_at, updated_at
	`

	queryGetSession = `
		SELECT id, name, code, language, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`

	queryListRecentSessions = `
		SELECT id, name, language, created_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC
		LIMIT $1
	`

	queryDeleteSession = `
		DELETE FROM sessions
		WHERE id = $1
	`

	// activity queries
	queryAppendActivity = `
		INSERT INTO activity_logs (user_id, session_id, action, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	querySessionStats = `
		SELECT
			s.id,
			s.name,
			s.language,
			s.created_at,
			COUNT(DISTINCT a.user_id) AS unique_users,
			COUNT(CASE WHEN a.action = 'edit' THEN 1 END) AS total_edits,
			MAX(a.timestamp) AS last_activity
		FROM sessions s
		LEFT JOIN activity_logs a ON s.id = a.session_id
		WHERE s.id = $1
		GROUP BY s.id
	`

	queryMostActiveSessions = `
		SELECT
			s.id,
			s.name,
			s.language,
			COUNT(DISTINCT a.user_id) AS user_count,
			COUNT(CASE WHEN a.action = 'edit' THEN 1 END) AS edit_count
		FROM sessions s
		JOIN activity_logs a ON s.id = a.session_id
		WHERE a.timestamp > $1
		GROUP BY s.id
		ORDER BY edit_count DESC
		LIMIT $2
	`
)
