package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS talks (
            id BIGSERIAL PRIMARY KEY,
            talk_mode SMALLINT NOT NULL,
            user1_id BIGINT,
            user2_id BIGINT,
            group_id BIGINT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS talks_direct_pair_idx
            ON talks (user1_id, user2_id) WHERE talk_mode = 1;`,
		`CREATE UNIQUE INDEX IF NOT EXISTS talks_group_idx
            ON talks (group_id) WHERE talk_mode = 2;`,
		`CREATE TABLE IF NOT EXISTS talk_sequences (
            talk_id BIGINT PRIMARY KEY REFERENCES talks(id),
            current_seq BIGINT NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            talk_id BIGINT NOT NULL REFERENCES talks(id),
            sequence BIGINT NOT NULL,
            talk_mode SMALLINT NOT NULL,
            msg_type SMALLINT NOT NULL,
            sender_id BIGINT NOT NULL,
            receiver_id BIGINT NOT NULL DEFAULT 0,
            group_id BIGINT NOT NULL DEFAULT 0,
            content_text TEXT NOT NULL DEFAULT '',
            extra JSONB,
            quote_msg_id TEXT NOT NULL DEFAULT '',
            is_revoked BOOLEAN NOT NULL DEFAULT FALSE,
            revoked_by BIGINT NOT NULL DEFAULT 0,
            revoke_time TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (talk_id, sequence)
        );`,
		`CREATE INDEX IF NOT EXISTS messages_talk_seq_idx
            ON messages (talk_id, sequence DESC);`,
		`CREATE TABLE IF NOT EXISTS talk_sessions (
            user_id BIGINT NOT NULL,
            talk_id BIGINT NOT NULL REFERENCES talks(id),
            last_msg_id TEXT,
            last_msg_type SMALLINT,
            last_sender_id BIGINT,
            last_digest TEXT,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (user_id, talk_id)
        );`,
		`CREATE INDEX IF NOT EXISTS talk_sessions_last_msg_idx
            ON talk_sessions (talk_id, last_msg_id);`,
		`CREATE TABLE IF NOT EXISTS message_user_deletes (
            msg_id TEXT NOT NULL,
            user_id BIGINT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (msg_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS message_forward_links (
            forwarded_msg_id TEXT NOT NULL,
            src_msg_id TEXT NOT NULL,
            src_talk_id BIGINT NOT NULL,
            src_sender_id BIGINT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (forwarded_msg_id, src_msg_id)
        );`,
		`CREATE TABLE IF NOT EXISTS users (
            id BIGINT PRIMARY KEY,
            nickname TEXT NOT NULL DEFAULT '',
            avatar TEXT NOT NULL DEFAULT ''
        );`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	logrus.Info("database migrations applied")
	return nil
}
