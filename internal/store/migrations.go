package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Guardian bindings - chat destinations notified for a student
		`CREATE TABLE IF NOT EXISTS guardian_bindings (
			student_id TEXT NOT NULL,
			chat_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (student_id, chat_id)
		)`,

		// Pending tokens - single-use codes that bind a chat to a student
		`CREATE TABLE IF NOT EXISTS pending_tokens (
			token TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Notification events - every confirmed event the cooldown gate allowed
		`CREATE TABLE IF NOT EXISTS notification_events (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			score REAL NOT NULL,
			occurred_at DATETIME NOT NULL,
			destinations INTEGER NOT NULL DEFAULT 0,
			delivered INTEGER NOT NULL DEFAULT 0,
			failures INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE INDEX IF NOT EXISTS idx_guardian_bindings_chat_id ON guardian_bindings(chat_id)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_tokens_student_id ON pending_tokens(student_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_events_occurred_at ON notification_events(occurred_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
