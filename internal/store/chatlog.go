package store

import (
	"fmt"
	"time"
)

// LoggedMessage is one chat line written to the local chat log.
type LoggedMessage struct {
	ID         int64
	Room       string
	Username   string
	Message    string
	ReceivedAt time.Time
}

// ChatLog records chat messages as they arrive so history survives restarts
// and room-list refreshes.
type ChatLog struct {
	db *DB
}

// NewChatLog creates a chat log using the given database.
func NewChatLog(db *DB) *ChatLog {
	return &ChatLog{db: db}
}

// Append records a message.
func (l *ChatLog) Append(room, username, message string) error {
	_, err := l.db.sql.Exec(
		`INSERT INTO chat_messages (room, username, message, received_at) VALUES (?, ?, ?, ?)`,
		room, username, message, time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("appending chat message: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest messages in room, oldest first.
func (l *ChatLog) Recent(room string, limit int) ([]LoggedMessage, error) {
	rows, err := l.db.sql.Query(
		`SELECT id, room, username, message, received_at FROM (
			SELECT id, room, username, message, received_at
			FROM chat_messages WHERE room = ?
			ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`, room, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying chat log: %w", err)
	}
	defer rows.Close()

	var out []LoggedMessage
	for rows.Next() {
		var m LoggedMessage
		var receivedAt string
		if err := rows.Scan(&m.ID, &m.Room, &m.Username, &m.Message, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning chat log: %w", err)
		}
		m.ReceivedAt, _ = time.Parse(time.DateTime, receivedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Rooms returns every room that has logged messages, sorted by name.
func (l *ChatLog) Rooms() ([]string, error) {
	rows, err := l.db.sql.Query(`SELECT DISTINCT room FROM chat_messages ORDER BY room`)
	if err != nil {
		return nil, fmt.Errorf("querying chat rooms: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var room string
		if err := rows.Scan(&room); err != nil {
			return nil, fmt.Errorf("scanning chat room: %w", err)
		}
		out = append(out, room)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep messages of every room.
func (l *ChatLog) Prune(keep int) (int64, error) {
	res, err := l.db.sql.Exec(
		`DELETE FROM chat_messages WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY room ORDER BY id DESC) AS rn
				FROM chat_messages
			) WHERE rn > ?
		 )`, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning chat log: %w", err)
	}
	return res.RowsAffected()
}
