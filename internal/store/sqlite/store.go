// Package sqlite is the persistence collaborator backed by an SQLite file.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

// Store implements core.Store.
type Store struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

var _ core.Store = (*Store)(nil)

// Open opens (creating if needed) the database at dbPath and applies the schema.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps PRAGMAs in effect and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Info().Str("module", "store").Str("path", dbPath).Msg("database ready")
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		userid INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		phone TEXT,
		address TEXT,
		password TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rooms (
		roomid INTEGER PRIMARY KEY AUTOINCREMENT,
		roomname TEXT NOT NULL,
		ownerid INTEGER NOT NULL,
		FOREIGN KEY (ownerid) REFERENCES users (userid) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS room_members (
		userid INTEGER NOT NULL,
		roomid INTEGER NOT NULL,
		PRIMARY KEY (userid, roomid),
		FOREIGN KEY (userid) REFERENCES users (userid) ON DELETE CASCADE,
		FOREIGN KEY (roomid) REFERENCES rooms (roomid) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS friends (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		userid1 INTEGER NOT NULL,
		userid2 INTEGER NOT NULL,
		UNIQUE (userid1, userid2),
		FOREIGN KEY (userid1) REFERENCES users (userid) ON DELETE CASCADE,
		FOREIGN KEY (userid2) REFERENCES users (userid) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS messages (
		messageid INTEGER PRIMARY KEY AUTOINCREMENT,
		roomid INTEGER,
		friendid INTEGER,
		author INTEGER NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		filename TEXT,
		actualname TEXT,
		created_at TEXT NOT NULL,
		FOREIGN KEY (roomid) REFERENCES rooms (roomid) ON DELETE CASCADE,
		FOREIGN KEY (friendid) REFERENCES friends (id) ON DELETE CASCADE,
		FOREIGN KEY (author) REFERENCES users (userid) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_room_members_roomid ON room_members(roomid);
	CREATE INDEX IF NOT EXISTS idx_messages_roomid ON messages(roomid);
	CREATE INDEX IF NOT EXISTS idx_messages_friendid ON messages(friendid);
	`
	_, err := s.db.Exec(schema)
	return err
}

// mapError translates driver errors into core sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", core.ErrConflict, err)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %v", core.ErrNotFound, err)
		}
	}
	return err
}

// affected turns a zero-row write into core.ErrNotFound.
func affected(res sql.Result, err error) error {
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func orderPair(a, b domain.UserID) (domain.UserID, domain.UserID) {
	if a > b {
		return b, a
	}
	return a, b
}
