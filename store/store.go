package store

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Store owns the PostgreSQL side of the messenger: accounts, private
// chats, membership and message history. The real-time core only talks to
// it through narrow call sites, one query per operation.
type Store struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "pgx pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pg ping")
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT UNIQUE NOT NULL,
	display_name  TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	avatar_color  TEXT NOT NULL DEFAULT '#5B9BD5',
	avatar_url    TEXT NOT NULL DEFAULT '',
	is_online     BOOLEAN NOT NULL DEFAULT FALSE,
	last_seen     TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL DEFAULT 'private',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_members (
	chat_id   TEXT NOT NULL REFERENCES chats(id),
	user_id   TEXT NOT NULL REFERENCES users(id),
	joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chat_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id                TEXT PRIMARY KEY,
	chat_id           TEXT NOT NULL REFERENCES chats(id),
	sender_id         TEXT NOT NULL REFERENCES users(id),
	type              TEXT NOT NULL DEFAULT 'text',
	text              TEXT NOT NULL DEFAULT '',
	audio_data        TEXT NOT NULL DEFAULT '',
	audio_duration    DOUBLE PRECISION NOT NULL DEFAULT 0,
	reply_to_id       TEXT NOT NULL DEFAULT '',
	forwarded_from    TEXT NOT NULL DEFAULT '',
	forwarded_from_id TEXT NOT NULL DEFAULT '',
	is_read           BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_read ON messages(chat_id, is_read);
CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members(user_id);
`

// Migrate applies the schema. Idempotent, run at every start.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return errors.Wrap(err, "migrate")
}

var avatarColors = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4",
	"#FFEAA7", "#DDA0DD", "#98D8C8", "#F7DC6F",
	"#BB8FCE", "#85C1E9", "#F0B27A", "#82E0AA",
	"#F1948A", "#85929E", "#73C6B6",
}

func RandomAvatarColor() string {
	return avatarColors[rand.Intn(len(avatarColors))]
}

// ===== users =====

func (s *Store) CreateUser(ctx context.Context, username, displayName, passwordHash, avatarColor string) (*User, error) {
	u := &User{
		ID:          uuid.NewString(),
		Username:    username,
		DisplayName: displayName,
		AvatarColor: avatarColor,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, display_name, password_hash, avatar_color) VALUES ($1,$2,$3,$4,$5)`,
		u.ID, u.Username, u.DisplayName, passwordHash, u.AvatarColor)
	if err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, username, display_name, password_hash, avatar_color, avatar_url, is_online, last_seen
		 FROM users WHERE username = $1`, username)
	var u User
	var lastSeen time.Time
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.AvatarColor, &u.AvatarURL, &u.IsOnline, &lastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user by username")
	}
	u.LastSeen = &lastSeen
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, username, display_name, avatar_color, avatar_url, is_online, last_seen
		 FROM users WHERE id = $1`, id)
	var u User
	var lastSeen time.Time
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarColor, &u.AvatarURL, &u.IsOnline, &lastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	u.LastSeen = &lastSeen
	return &u, nil
}

func (s *Store) SearchUsers(ctx context.Context, query, excludeUserID string) ([]*User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, display_name, avatar_color, avatar_url, is_online, last_seen
		 FROM users
		 WHERE (username ILIKE $1 OR display_name ILIKE $1) AND id != $2
		 LIMIT 20`, "%"+query+"%", excludeUserID)
	if err != nil {
		return nil, errors.Wrap(err, "search users")
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var u User
		var lastSeen time.Time
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarColor, &u.AvatarURL, &u.IsOnline, &lastSeen); err != nil {
			return nil, errors.Wrap(err, "search users scan")
		}
		u.LastSeen = &lastSeen
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *Store) SetAvatar(ctx context.Context, userID, avatarURL string) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET avatar_url = $2 WHERE id = $1`, userID, avatarURL)
	return errors.Wrap(err, "set avatar")
}

// SetOnline / SetOffline keep the persisted flag roughly in sync with the
// in-memory registry so offline clients see last-seen data. Best effort.
func (s *Store) SetOnline(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET is_online = TRUE, last_seen = now() WHERE id = $1`, userID)
	return errors.Wrap(err, "set online")
}

func (s *Store) SetOffline(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET is_online = FALSE, last_seen = now() WHERE id = $1`, userID)
	return errors.Wrap(err, "set offline")
}

// ===== chats =====

// FindPrivateChat returns the chat ID shared by the two users, or "".
func (s *Store) FindPrivateChat(ctx context.Context, userA, userB string) (string, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT cm1.chat_id FROM chat_members cm1
		 JOIN chat_members cm2 ON cm1.chat_id = cm2.chat_id
		 JOIN chats c ON c.id = cm1.chat_id
		 WHERE cm1.user_id = $1 AND cm2.user_id = $2 AND c.type = 'private'`, userA, userB)
	var chatID string
	err := row.Scan(&chatID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "find private chat")
	}
	return chatID, nil
}

// CreatePrivateChat creates the chat and both memberships in one tx.
func (s *Store) CreatePrivateChat(ctx context.Context, userA, userB string) (string, error) {
	chatID := uuid.NewString()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO chats (id, type) VALUES ($1, 'private')`, chatID); err != nil {
		return "", errors.Wrap(err, "create chat")
	}
	for _, uid := range []string{userA, userB} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, chatID, uid); err != nil {
			return "", errors.Wrap(err, "add member")
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return "", errors.Wrap(err, "commit")
	}
	return chatID, nil
}

func (s *Store) IsChatMember(ctx context.Context, chatID, userID string) (bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2)`, chatID, userID)
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, errors.Wrap(err, "is chat member")
	}
	return ok, nil
}

// ChatMemberIDs lists members of a chat excluding the given user.
func (s *Store) ChatMemberIDs(ctx context.Context, chatID, excludeUserID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM chat_members WHERE chat_id = $1 AND user_id != $2`, chatID, excludeUserID)
	if err != nil {
		return nil, errors.Wrap(err, "chat member ids")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "chat member ids scan")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListUserChats builds the sidebar: one row per private chat with the
// other participant, the latest message preview and the unread count.
func (s *Store) ListUserChats(ctx context.Context, userID string) ([]*ChatSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			c.id, c.type,
			u.id, u.username, u.display_name, u.avatar_color, u.avatar_url, u.is_online, u.last_seen,
			lm.text, lm.type, lm.sender_id, lm.created_at,
			(SELECT COUNT(*) FROM messages WHERE chat_id = c.id AND is_read = FALSE AND sender_id != $1)
		FROM chats c
		JOIN chat_members cm  ON cm.chat_id  = c.id AND cm.user_id  = $1
		JOIN chat_members cm2 ON cm2.chat_id = c.id AND cm2.user_id != $1
		JOIN users u ON u.id = cm2.user_id
		LEFT JOIN LATERAL (
			SELECT text, type, sender_id, created_at
			FROM messages WHERE chat_id = c.id
			ORDER BY created_at DESC LIMIT 1
		) lm ON TRUE
		WHERE c.type = 'private'
		ORDER BY lm.created_at DESC NULLS LAST`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list chats")
	}
	defer rows.Close()

	var out []*ChatSummary
	for rows.Next() {
		var cs ChatSummary
		var lastSeen time.Time
		if err := rows.Scan(
			&cs.ChatID, &cs.Type,
			&cs.OtherUserID, &cs.OtherUsername, &cs.OtherDisplayName, &cs.OtherAvatarColor, &cs.OtherAvatarURL, &cs.OtherIsOnline, &lastSeen,
			&cs.LastMessage, &cs.LastMessageType, &cs.LastMessageSender, &cs.LastMessageTime,
			&cs.UnreadCount,
		); err != nil {
			return nil, errors.Wrap(err, "list chats scan")
		}
		cs.OtherLastSeen = &lastSeen
		out = append(out, &cs)
	}
	return out, rows.Err()
}

// ===== messages =====

const messageColumns = `
	m.id, m.chat_id, m.sender_id, m.type, m.text, m.audio_data, m.audio_duration,
	m.reply_to_id, m.forwarded_from, m.forwarded_from_id, m.is_read, m.created_at,
	u.username, u.display_name, u.avatar_color, u.avatar_url,
	COALESCE(r.text, ''), COALESCE(r.type, ''), COALESCE(ru.display_name, '')`

const messageJoins = `
	JOIN users u ON u.id = m.sender_id
	LEFT JOIN messages r ON r.id = NULLIF(m.reply_to_id, '')
	LEFT JOIN users ru ON ru.id = r.sender_id`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	if err := row.Scan(
		&m.ID, &m.ChatID, &m.SenderID, &m.Type, &m.Text, &m.AudioData, &m.AudioDuration,
		&m.ReplyToID, &m.ForwardedFrom, &m.ForwardedFromID, &m.IsRead, &m.CreatedAt,
		&m.SenderUsername, &m.SenderDisplayName, &m.SenderAvatarColor, &m.SenderAvatarURL,
		&m.ReplyText, &m.ReplyType, &m.ReplySenderName,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMessage persists the message and returns the hydrated row (sender
// and reply preview joined in) so the caller can fan it out verbatim.
func (s *Store) CreateMessage(ctx context.Context, nm NewMessage) (*Message, error) {
	id := uuid.NewString()
	if nm.Type == "" {
		nm.Type = "text"
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, chat_id, sender_id, type, text, audio_data, audio_duration, reply_to_id, forwarded_from, forwarded_from_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		id, nm.ChatID, nm.SenderID, nm.Type, nm.Text, nm.AudioData, nm.AudioDuration, nm.ReplyToID, nm.ForwardedFrom, nm.ForwardedFromID)
	if err != nil {
		return nil, errors.Wrap(err, "create message")
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages m `+messageJoins+` WHERE m.id = $1`, id)
	m, err := scanMessage(row)
	if err != nil {
		return nil, errors.Wrap(err, "read back message")
	}
	return m, nil
}

func (s *Store) ListChatMessages(ctx context.Context, chatID string) ([]*Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages m `+messageJoins+`
		 WHERE m.chat_id = $1 ORDER BY m.created_at ASC`, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "list messages scan")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkMessagesRead marks everything the reader has not sent as read.
func (s *Store) MarkMessagesRead(ctx context.Context, chatID, readerID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE messages SET is_read = TRUE WHERE chat_id = $1 AND sender_id != $2 AND is_read = FALSE`,
		chatID, readerID)
	return errors.Wrap(err, "mark read")
}
