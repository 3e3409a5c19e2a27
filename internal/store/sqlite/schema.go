package sqlite

// Schema is applied at startup. Constraints carry the durable invariants:
// one membership per (user, room) pair, memberships cascade with their room
// or user, messages survive room/user deletion with the reference nulled.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT UNIQUE,
	password_hash TEXT NOT NULL,
	is_guest      BOOLEAN NOT NULL DEFAULT 0,
	session_id    TEXT,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rooms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL CHECK (length(name) > 0 AND length(name) <= 100),
	is_private BOOLEAN NOT NULL DEFAULT 0,
	created_by INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS memberships (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	room_id   INTEGER NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	is_admin  BOOLEAN NOT NULL DEFAULT 0,
	is_banned BOOLEAN NOT NULL DEFAULT 0,
	joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (user_id, room_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id    INTEGER REFERENCES rooms(id) ON DELETE SET NULL,
	user_id    INTEGER REFERENCES users(id) ON DELETE SET NULL,
	body       TEXT NOT NULL CHECK (length(body) > 0),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships(user_id);
CREATE INDEX IF NOT EXISTS idx_memberships_room ON memberships(room_id);
CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, id);
`
