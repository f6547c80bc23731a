package database

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

type dialect struct {
	id        string
	timestamp string
	blob      string
	least     string
	greatest  string
}

var (
	postgresDialect = dialect{id: "BIGSERIAL PRIMARY KEY", timestamp: "TIMESTAMPTZ", blob: "BYTEA", least: "LEAST", greatest: "GREATEST"}
	sqliteDialect   = dialect{id: "INTEGER PRIMARY KEY AUTOINCREMENT", timestamp: "DATETIME", blob: "BLOB", least: "min", greatest: "max"}
)

// FriendshipPairIndex keeps at most one friendship per unordered pair of users.
const FriendshipPairIndex = "friendships_pair_key"

// schema uses {{id}}, {{ts}} and {{blob}} placeholders for the column
// types that differ between PostgreSQL and SQLite, and {{least}} and
// {{greatest}} for the two-argument min and max functions.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id             {{id}},
		email          TEXT NOT NULL UNIQUE,
		username       TEXT NOT NULL UNIQUE,
		points         BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0),
		icon           TEXT NOT NULL DEFAULT 'default',
		otp_hash       TEXT,
		otp_expires_at {{ts}},
		created_at     {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS friendships (
		id           {{id}},
		requester_id BIGINT NOT NULL REFERENCES users(id),
		addressee_id BIGINT NOT NULL REFERENCES users(id),
		status       TEXT NOT NULL CHECK (status IN ('pending', 'accepted')),
		created_at   {{ts}} NOT NULL,
		UNIQUE (requester_id, addressee_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + FriendshipPairIndex + ` ON friendships (
		{{least}}(requester_id, addressee_id),
		{{greatest}}(requester_id, addressee_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_friendships_addressee ON friendships(addressee_id)`,
	`CREATE TABLE IF NOT EXISTS actions (
		id            {{id}},
		user_id       BIGINT NOT NULL REFERENCES users(id),
		action_type   TEXT NOT NULL,
		points_earned BIGINT NOT NULL,
		timestamp     {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_actions_user ON actions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_actions_timestamp ON actions(timestamp)`,
	`CREATE TABLE IF NOT EXISTS images (
		id          {{id}},
		user_id     BIGINT NOT NULL REFERENCES users(id),
		filename    TEXT NOT NULL,
		mimetype    TEXT NOT NULL,
		data        {{blob}} NOT NULL,
		uploaded_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_images_user ON images(user_id)`,
	`CREATE TABLE IF NOT EXISTS device_tokens (
		id         {{id}},
		user_id    BIGINT NOT NULL REFERENCES users(id),
		token      TEXT NOT NULL UNIQUE,
		platform   TEXT NOT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
}

// Migrate creates every table and index that does not exist yet.
func Migrate(db *sqlx.DB) error {
	d := postgresDialect
	if db.DriverName() != "postgres" {
		d = sqliteDialect
	}

	replacer := strings.NewReplacer(
		"{{id}}", d.id,
		"{{ts}}", d.timestamp,
		"{{blob}}", d.blob,
		"{{least}}", d.least,
		"{{greatest}}", d.greatest,
	)
	for i, stmt := range schema {
		if _, err := db.Exec(replacer.Replace(stmt)); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", i, err)
		}
	}
	return nil
}
