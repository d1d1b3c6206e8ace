package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const currentSessionKey = "current_session_id"

// Store owns the set of chat sessions and the active-session pointer, backed
// by SQLite so both survive a restart. All mutation goes through the Store;
// callers never edit session message slices in place.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	currentID  string
	lastIDMs   int64
	processing map[string]struct{}
}

func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db, processing: make(map[string]struct{})}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrateLegacyRoles(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.loadCurrentID(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT 'New Chat',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'text',
			data TEXT,
			meta TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id)`,
		`CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// migrateLegacyRoles rewrites the retired "agent" role to "assistant" before
// any session is exposed to callers.
func (s *Store) migrateLegacyRoles() error {
	res, err := s.db.Exec(`UPDATE messages SET role = ? WHERE role = ?`, RoleAssistant, legacyRoleAgent)
	if err != nil {
		return fmt.Errorf("migrate legacy roles: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("[session] migrated %d legacy agent messages to assistant", n)
	}
	return nil
}

func (s *Store) loadCurrentID() error {
	var id string
	err := s.db.QueryRow(`SELECT value FROM state WHERE key = ?`, currentSessionKey).Scan(&id)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load current session id: %w", err)
	}
	s.currentID = id
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// newSessionID returns a time-ordered id, bumping the millisecond when two
// sessions are created inside the same one.
func (s *Store) newSessionID(now time.Time) string {
	ms := now.UnixMilli()
	if ms <= s.lastIDMs {
		ms = s.lastIDMs + 1
	}
	s.lastIDMs = ms
	return fmt.Sprintf("session_%d", ms)
}

// CreateSession allocates a new session, optionally seeded with an initial
// message, makes it the active session and persists it. A seeding user
// message also sets the derived title.
func (s *Store) CreateSession(initial *Message) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := &Session{
		ID:        s.newSessionID(now),
		Title:     "New Chat",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if initial != nil && initial.Role == RoleUser && initial.Content != "" {
		sess.Title = DeriveTitle(initial.Content)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin create session: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Title, now.UnixMilli(), now.UnixMilli(),
	); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if initial != nil {
		msg := normalizeMessage(*initial, now)
		if err := insertMessage(tx, sess.ID, msg); err != nil {
			return nil, err
		}
		sess.Messages = append(sess.Messages, msg)
	}

	if err := setStateTx(tx, currentSessionKey, sess.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create session: %w", err)
	}

	s.currentID = sess.ID
	return sess, nil
}

// AppendMessage appends to a session's transcript and bumps its updated
// timestamp. The first user message landing in an empty session sets the
// derived title.
func (s *Store) AppendMessage(sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	msg = normalizeMessage(msg, now)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}

	var exists int
	err = tx.QueryRow(`SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("session %q not found", sessionID)
	}

	if err := insertMessage(tx, sessionID, msg); err != nil {
		return err
	}

	if count == 0 && msg.Role == RoleUser && msg.Content != "" {
		if _, err := tx.Exec(`UPDATE sessions SET title = ? WHERE id = ?`, DeriveTitle(msg.Content), sessionID); err != nil {
			return fmt.Errorf("update title: %w", err)
		}
	}
	if _, err := tx.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, now.UnixMilli(), sessionID); err != nil {
		return fmt.Errorf("bump updated_at: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func normalizeMessage(msg Message, now time.Time) Message {
	if msg.Role == legacyRoleAgent {
		msg.Role = RoleAssistant
	}
	if msg.Type == "" {
		msg.Type = TypeText
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	return msg
}

func insertMessage(tx *sql.Tx, sessionID string, msg Message) error {
	var dataJSON, metaJSON any
	if msg.Data != nil {
		b, err := json.Marshal(msg.Data)
		if err != nil {
			return fmt.Errorf("marshal message data: %w", err)
		}
		dataJSON = string(b)
	}
	if msg.Meta != nil {
		b, err := json.Marshal(msg.Meta)
		if err != nil {
			return fmt.Errorf("marshal message meta: %w", err)
		}
		metaJSON = string(b)
	}

	if _, err := tx.Exec(
		`INSERT INTO messages (session_id, role, content, type, data, meta, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, msg.Role, msg.Content, msg.Type, dataJSON, metaJSON, msg.Timestamp.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func setStateTx(tx *sql.Tx, key, value string) error {
	if _, err := tx.Exec(
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	); err != nil {
		return fmt.Errorf("set state %q: %w", key, err)
	}
	return nil
}

// GetSession loads one session with its full transcript.
func (s *Store) GetSession(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSessionLocked(id)
}

func (s *Store) getSessionLocked(id string) (*Session, error) {
	var sess Session
	var createdMs, updatedMs int64
	err := s.db.QueryRow(
		`SELECT id, title, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Title, &createdMs, &updatedMs)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	sess.CreatedAt = time.UnixMilli(createdMs)
	sess.UpdatedAt = time.UnixMilli(updatedMs)

	msgs, err := s.loadMessages(id)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return &sess, nil
}

func (s *Store) loadMessages(sessionID string) ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT role, content, type, data, meta, created_at
		 FROM messages WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var msg Message
		var dataJSON, metaJSON sql.NullString
		var createdMs int64
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.Type, &dataJSON, &metaJSON, &createdMs); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Timestamp = time.UnixMilli(createdMs)
		if dataJSON.Valid && dataJSON.String != "" {
			var data any
			if err := json.Unmarshal([]byte(dataJSON.String), &data); err != nil {
				return nil, fmt.Errorf("parse message data: %w", err)
			}
			msg.Data = data
		}
		if metaJSON.Valid && metaJSON.String != "" {
			var meta Meta
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err != nil {
				return nil, fmt.Errorf("parse message meta: %w", err)
			}
			msg.Meta = &meta
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// ListSessions returns all sessions, most recently created first, each with
// its full transcript.
func (s *Store) ListSessions() ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id FROM sessions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.getSessionLocked(id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// SwitchSession makes id the active session. An unknown id still becomes
// active; the UI renders an empty state for it.
func (s *Store) SwitchSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setState(currentSessionKey, id); err != nil {
		return err
	}
	s.currentID = id
	return nil
}

// DeleteSession removes a session. If it was active the pointer is cleared;
// no other session is auto-selected.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if s.currentID == id {
		if err := s.setState(currentSessionKey, ""); err != nil {
			return err
		}
		s.currentID = ""
	}
	return nil
}

// ClearAll empties the session list and the active pointer.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM messages`); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	if err := s.setState(currentSessionKey, ""); err != nil {
		return err
	}
	s.currentID = ""
	return nil
}

func (s *Store) setState(key, value string) error {
	if _, err := s.db.Exec(
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	); err != nil {
		return fmt.Errorf("set state %q: %w", key, err)
	}
	return nil
}

// CurrentSessionID returns the active session id, or "" when none is active.
func (s *Store) CurrentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// BeginProcessing marks a session as having a completion in flight. It
// returns false when the session already has one; callers must treat that as
// a rejected send. Sessions other than sessionID are unaffected.
func (s *Store) BeginProcessing(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.processing[sessionID]; busy {
		return false
	}
	s.processing[sessionID] = struct{}{}
	return true
}

func (s *Store) EndProcessing(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processing, sessionID)
}

func (s *Store) IsProcessing(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.processing[sessionID]
	return busy
}
