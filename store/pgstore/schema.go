package pgstore

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	profile_image TEXT NOT NULL DEFAULT '',
	age           INTEGER NOT NULL DEFAULT 0,
	sex           TEXT NOT NULL DEFAULT '',
	country       TEXT NOT NULL DEFAULT '',
	interests     TEXT NOT NULL DEFAULT '',
	language      TEXT[] NOT NULL DEFAULT '{}',
	pref_age_from INTEGER NOT NULL DEFAULT 0,
	pref_age_to   INTEGER NOT NULL DEFAULT 0,
	pref_sex      TEXT NOT NULL DEFAULT '',
	has_liked     TEXT[] NOT NULL DEFAULT '{}',
	has_disliked  TEXT[] NOT NULL DEFAULT '{}',
	has_matched   TEXT[] NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	version       BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS conversations (
	pair_key     TEXT PRIMARY KEY,
	id           TEXT NOT NULL UNIQUE,
	user_a       TEXT NOT NULL,
	user_b       TEXT NOT NULL,
	last_message TEXT NOT NULL DEFAULT '',
	seen_by_a    BOOLEAN NOT NULL DEFAULT TRUE,
	seen_by_b    BOOLEAN NOT NULL DEFAULT TRUE,
	last_order   BIGINT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	version      BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS conversations_user_a_updated_idx ON conversations (user_a, updated_at DESC)`,
	`CREATE INDEX IF NOT EXISTS conversations_user_b_updated_idx ON conversations (user_b, updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS messages (
	conversation_id TEXT NOT NULL,
	chat_order      BIGINT NOT NULL,
	id              TEXT NOT NULL,
	sender_id       TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (conversation_id, chat_order)
)`,
}

// Migrate creates the tables and indexes when they do not exist yet
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Ping reports whether the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}
