package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
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
		`CREATE TABLE IF NOT EXISTS profiles (
            id SERIAL PRIMARY KEY,
            username TEXT NOT NULL,
            avatar_url TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS listings (
            id SERIAL PRIMARY KEY,
            seller_id INT NOT NULL REFERENCES profiles(id),
            title TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS conversations (
            id SERIAL PRIMARY KEY,
            buyer_id INT NOT NULL REFERENCES profiles(id),
            seller_id INT NOT NULL REFERENCES profiles(id),
            listing_id INT NOT NULL REFERENCES listings(id),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE(buyer_id, listing_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            conversation_id INT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id INT NOT NULL,
            body TEXT NOT NULL,
            read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
            ON messages (conversation_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS blocked_users (
            user_id INT NOT NULL,
            blocked_id INT NOT NULL,
            PRIMARY KEY(user_id, blocked_id)
        );`,
		`CREATE TABLE IF NOT EXISTS bookmarked_users (
            user_id INT NOT NULL,
            bookmarked_id INT NOT NULL,
            PRIMARY KEY(user_id, bookmarked_id)
        );`,
		`CREATE TABLE IF NOT EXISTS archived_conversations (
            user_id INT NOT NULL,
            conversation_id INT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            PRIMARY KEY(user_id, conversation_id)
        );`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
