package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Connect initializes the database connection and runs migrations.
// vectorDimensions must match the width produced by the embedding model.
func Connect(dsn string, vectorDimensions int) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(database, vectorDimensions); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return database, nil
}

func runMigrations(database *sqlx.DB, vectorDimensions int) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            username TEXT NOT NULL UNIQUE
        );`,
		`CREATE TABLE IF NOT EXISTS channels (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL UNIQUE,
            owner_id BIGINT NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS channel_members (
            channel_id BIGINT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            joined_at TIMESTAMPTZ DEFAULT NOW(),
            PRIMARY KEY(channel_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS dm_threads (
            id BIGSERIAL PRIMARY KEY,
            user1_id BIGINT NOT NULL,
            user2_id BIGINT NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            UNIQUE(user1_id, user2_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            channel_id BIGINT REFERENCES channels(id) ON DELETE CASCADE,
            dm_id BIGINT REFERENCES dm_threads(id) ON DELETE CASCADE,
            parent_id BIGINT REFERENCES messages(id) ON DELETE SET NULL,
            sender_id BIGINT NOT NULL,
            content TEXT NOT NULL,
            edited BOOLEAN DEFAULT FALSE,
            file_id TEXT,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            updated_at TIMESTAMPTZ DEFAULT NOW(),
            CHECK ((channel_id IS NULL) <> (dm_id IS NULL))
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages (channel_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_dm_created ON messages (dm_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS reactions (
            message_id BIGINT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            emoji TEXT NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            PRIMARY KEY(message_id, user_id, emoji)
        );`,
		`CREATE TABLE IF NOT EXISTS message_analyses (
            message_id BIGINT PRIMARY KEY,
            payload JSONB NOT NULL,
            created_by BIGINT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS message_vectors (
            id TEXT PRIMARY KEY,
            message_id BIGINT NOT NULL,
            content TEXT NOT NULL,
            embedding vector(%d) NOT NULL,
            metadata JSONB NOT NULL DEFAULT '{}',
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`, vectorDimensions),
		`CREATE INDEX IF NOT EXISTS idx_message_vectors_message ON message_vectors (message_id);`,
	}

	for _, m := range migrations {
		if _, err := database.Exec(m); err != nil {
			return err
		}
	}
	logrus.Info("database migrations applied")
	return nil
}
