package store

import "time"

// Row shapes returned to the web client. Field names follow the wire
// contract (snake_case, SQL-ish) rather than Go conventions because the
// browser renders these objects as-is.

type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	AvatarColor string     `json:"avatar_color"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	IsOnline    bool       `json:"is_online"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`

	// Never serialized; populated only by GetUserByUsername for login.
	PasswordHash string `json:"-"`
}

type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Type      string    `json:"type"` // "text" | "voice"
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	IsRead    bool      `json:"is_read"`

	AudioData     string  `json:"audio_data,omitempty"`
	AudioDuration float64 `json:"audio_duration,omitempty"`

	ReplyToID       string `json:"reply_to_id,omitempty"`
	ReplyText       string `json:"reply_text,omitempty"`
	ReplyType       string `json:"reply_type,omitempty"`
	ReplySenderName string `json:"reply_sender_name,omitempty"`

	ForwardedFrom   string `json:"forwarded_from,omitempty"`
	ForwardedFromID string `json:"forwarded_from_id,omitempty"`

	SenderUsername    string `json:"sender_username"`
	SenderDisplayName string `json:"sender_display_name"`
	SenderAvatarColor string `json:"sender_avatar_color"`
	SenderAvatarURL   string `json:"sender_avatar_url,omitempty"`
}

// ChatSummary is one row of the sidebar chat list.
type ChatSummary struct {
	ChatID            string     `json:"chat_id"`
	Type              string     `json:"type"`
	OtherUserID       string     `json:"other_user_id"`
	OtherUsername     string     `json:"other_username"`
	OtherDisplayName  string     `json:"other_display_name"`
	OtherAvatarColor  string     `json:"other_avatar_color"`
	OtherAvatarURL    string     `json:"other_avatar_url,omitempty"`
	OtherIsOnline     bool       `json:"other_is_online"`
	OtherLastSeen     *time.Time `json:"other_last_seen,omitempty"`
	LastMessage       *string    `json:"last_message"`
	LastMessageType   *string    `json:"last_message_type"`
	LastMessageSender *string    `json:"last_message_sender"`
	LastMessageTime   *time.Time `json:"last_message_time"`
	UnreadCount       int        `json:"unread_count"`
}

// NewMessage is the write-side shape for CreateMessage.
type NewMessage struct {
	ChatID        string
	SenderID      string
	Type          string
	Text          string
	AudioData     string
	AudioDuration float64
	ReplyToID     string

	ForwardedFrom   string
	ForwardedFromID string
}
