package migrations

import "database/sql"

// InitChatMigrations registers the chat database schema.
func InitChatMigrations(runner *Runner) {
	runner.AddMigration(1, "Create conversations table", `
		CREATE TABLE conversations (
			conversation_id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			icon_url TEXT NOT NULL DEFAULT '',
			announcement TEXT NOT NULL DEFAULT '',
			code_url TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			pin_time TEXT,
			last_message_id TEXT,
			last_message_created_at TEXT,
			draft TEXT NOT NULL DEFAULT '',
			unseen_message_count INTEGER NOT NULL DEFAULT 0,
			status INTEGER NOT NULL DEFAULT 0,
			mute_until TEXT,
			expire_in INTEGER NOT NULL DEFAULT 0
		)`)

	runner.AddMigration(2, "Create participants table", `
		CREATE TABLE participants (
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (conversation_id, user_id)
		)`)

	runner.AddMigration(3, "Create users table", `
		CREATE TABLE users (
			user_id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL DEFAULT '',
			biography TEXT NOT NULL DEFAULT '',
			identity_number TEXT NOT NULL DEFAULT '',
			relationship TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			phone TEXT,
			is_verified INTEGER NOT NULL DEFAULT 0,
			is_scam INTEGER NOT NULL DEFAULT 0,
			app_id TEXT,
			mute_until TEXT,
			created_at TEXT
		)`)

	runner.AddMigration(4, "Create assets table", `
		CREATE TABLE assets (
			asset_id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			name TEXT NOT NULL,
			icon_url TEXT NOT NULL DEFAULT '',
			balance TEXT NOT NULL DEFAULT '0',
			destination TEXT NOT NULL DEFAULT '',
			tag TEXT,
			price_btc TEXT NOT NULL DEFAULT '0',
			price_usd TEXT NOT NULL DEFAULT '0',
			change_usd TEXT NOT NULL DEFAULT '0',
			chain_id TEXT NOT NULL DEFAULT '',
			confirmations INTEGER NOT NULL DEFAULT 0,
			asset_key TEXT,
			reserve TEXT
		)`)

	runner.AddMigration(5, "Create snapshots table", `
		CREATE TABLE snapshots (
			snapshot_id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			asset_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			opponent_id TEXT,
			transaction_hash TEXT,
			sender TEXT,
			receiver TEXT,
			memo TEXT,
			confirmations INTEGER,
			trace_id TEXT,
			created_at TEXT NOT NULL
		)`)

	runner.AddMigration(6, "Create stickers table", `
		CREATE TABLE stickers (
			sticker_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			asset_url TEXT NOT NULL,
			asset_type TEXT NOT NULL,
			asset_width INTEGER NOT NULL,
			asset_height INTEGER NOT NULL,
			last_used_at TEXT,
			album_id TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`)

	runner.AddMigration(7, "Create pin_messages table", `
		CREATE TABLE pin_messages (
			message_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`)

	runner.AddMigration(8, "Create transcript_messages table", `
		CREATE TABLE transcript_messages (
			transcript_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			user_id TEXT,
			user_full_name TEXT,
			category TEXT NOT NULL,
			content TEXT,
			media_url TEXT,
			media_name TEXT,
			media_size INTEGER,
			media_width INTEGER,
			media_height INTEGER,
			media_mime_type TEXT,
			media_duration INTEGER,
			media_status TEXT,
			media_key BLOB,
			media_digest BLOB,
			thumb_image TEXT,
			sticker_id TEXT,
			quote_id TEXT,
			quote_content TEXT,
			created_at TEXT NOT NULL,
			PRIMARY KEY (transcript_id, message_id)
		)`)

	runner.AddMigration(9, "Create messages table", `
		CREATE TABLE messages (
			message_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			content TEXT,
			media_url TEXT,
			media_mime_type TEXT,
			media_size INTEGER,
			media_duration INTEGER,
			media_width INTEGER,
			media_height INTEGER,
			media_key BLOB,
			media_digest BLOB,
			media_status TEXT,
			media_waveform BLOB,
			thumb_image TEXT,
			status TEXT NOT NULL,
			action TEXT,
			participant_id TEXT,
			snapshot_id TEXT,
			name TEXT,
			sticker_id TEXT,
			shared_user_id TEXT,
			quote_message_id TEXT,
			quote_content TEXT,
			album_id TEXT,
			created_at TEXT NOT NULL
		)`)

	runner.AddMigration(10, "Create index on messages conversation", `
		CREATE INDEX idx_messages_conversation_id_created_at ON messages(conversation_id, created_at)`)

	runner.AddMigration(11, "Create expired_messages table", `
		CREATE TABLE expired_messages (
			message_id TEXT PRIMARY KEY,
			expire_in INTEGER NOT NULL,
			expire_at INTEGER
		)`)

	runner.AddMigration(12, "Create metadata table", `
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
}

// BootstrapChat brings a chat database up to the current schema.
func BootstrapChat(db *sql.DB) error {
	runner := NewRunner(db)
	InitChatMigrations(runner)
	return runner.Run()
}

// InitJournalMigrations registers the device transfer journal schema.
func InitJournalMigrations(runner *Runner) {
	runner.AddMigration(1, "Create sessions table", `
		CREATE TABLE sessions (
			id TEXT PRIMARY KEY,
			direction TEXT NOT NULL,
			peer TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT -1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_active TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)

	runner.AddMigration(2, "Create records table", `
		CREATE TABLE records (
			session_id TEXT NOT NULL,
			record_type TEXT NOT NULL,
			record_id TEXT NOT NULL,
			outcome TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, record_type, record_id),
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`)

	runner.AddMigration(3, "Create dead_letters table", `
		CREATE TABLE dead_letters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			type_tag TEXT NOT NULL,
			body BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`)

	runner.AddMigration(4, "Create trigger for session activity", `
		CREATE TRIGGER trig_records_session_active
		AFTER INSERT ON records
		BEGIN
			UPDATE sessions SET last_active = CURRENT_TIMESTAMP WHERE id = NEW.session_id;
		END`)
}

// BootstrapJournal brings a journal database up to the current schema.
func BootstrapJournal(db *sql.DB) error {
	runner := NewRunner(db)
	InitJournalMigrations(runner)
	return runner.Run()
}
