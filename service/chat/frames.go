package chat

import (
	"encoding/json"
	"fmt"

	"Messenger/tools/errs"
)

// Wire contract: one JSON frame per websocket message.
//
//	client request:  {"id": 7, "type": "message:send", "data": {...}}
//	server ack:      {"type": "ack", "id": 7, "data": {...}}
//	                 {"type": "ack", "id": 7, "error": {"code": 1100, "msg": "..."}}
//	server push:     {"type": "message:new", "data": {...}}
//
// Requests without an id are fire-and-forget (typing indicators).

// Client -> server request types.
const (
	EvtUserMe           = "user:me"
	EvtUsersSearch      = "users:search"
	EvtChatsList        = "chats:list"
	EvtChatStart        = "chat:start"
	EvtChatOpen         = "chat:open"
	EvtMessageSend      = "message:send"
	EvtMessagesMarkRead = "messages:markRead"
	EvtTypingStart      = "typing:start"
	EvtTypingStop       = "typing:stop"
	EvtAvatarUpdated    = "avatar:updated"
	EvtCallInitiate     = "call:initiate"
	EvtCallAccept       = "call:accept"
	EvtCallReject       = "call:reject"
	EvtCallEnd          = "call:end"
	EvtCallOffer        = "call:offer"
	EvtCallAnswer       = "call:answer"
	EvtCallICE          = "call:ice-candidate"
)

// Server -> client push types.
const (
	EvtAck               = "ack"
	EvtMessageNew        = "message:new"
	EvtChatsUpdated      = "chats:updated"
	EvtMessagesRead      = "messages:read"
	EvtUserOnline        = "user:online"
	EvtUserOffline       = "user:offline"
	EvtUserAvatarUpdated = "user:avatar-updated"
	EvtCallIncoming      = "call:incoming"
	EvtCallAccepted      = "call:accepted"
	EvtCallRejected      = "call:rejected"
	EvtCallEnded         = "call:ended"
)

type Frame struct {
	ID   int64           `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ackError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type ackFrame struct {
	Type  string    `json:"type"`
	ID    int64     `json:"id"`
	Data  any       `json:"data,omitempty"`
	Error *ackError `json:"error,omitempty"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("frame without type")
	}
	return f, nil
}

// BuildPush encodes a server push frame.
func BuildPush(event string, data any) ([]byte, error) {
	return json.Marshal(Frame{Type: event, Data: mustRaw(data)})
}

func BuildAck(id int64, data any) ([]byte, error) {
	return json.Marshal(ackFrame{Type: EvtAck, ID: id, Data: data})
}

func BuildErrAck(id int64, ce *errs.CodeError) ([]byte, error) {
	return json.Marshal(ackFrame{Type: EvtAck, ID: id, Error: &ackError{Code: ce.Code, Msg: ce.Msg}})
}

func mustRaw(data any) json.RawMessage {
	if data == nil {
		return nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		// Payloads are our own structs; a marshal failure is a programming error.
		panic(fmt.Sprintf("marshal push payload: %v", err))
	}
	return b
}

// ===== request payloads =====

type userSearchReq struct {
	Query string `json:"query"`
}

type chatStartReq struct {
	UserID string `json:"userId"`
}

type chatRef struct {
	ChatID string `json:"chatId"`
}

type messageSendReq struct {
	ChatID        string  `json:"chatId"`
	Type          string  `json:"type,omitempty"` // "" == text
	Text          string  `json:"text,omitempty"`
	AudioData     string  `json:"audioData,omitempty"`
	AudioDuration float64 `json:"audioDuration,omitempty"`
	ReplyToID     string  `json:"replyToId,omitempty"`

	ForwardedFrom   string `json:"forwardedFrom,omitempty"`
	ForwardedFromID string `json:"forwardedFromId,omitempty"`
}

type avatarUpdateReq struct {
	AvatarURL string `json:"avatarUrl"`
}

type callTargetReq struct {
	TargetUserID string `json:"targetUserId"`
}

type callSignalReq struct {
	TargetUserID string          `json:"targetUserId"`
	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

// ===== push payloads =====

type userPresencePush struct {
	UserID string `json:"userId"`
}

type typingPush struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type messagesReadPush struct {
	ChatID string `json:"chatId"`
	ReadBy string `json:"readBy"`
}

type avatarPush struct {
	UserID    string `json:"userId"`
	AvatarURL string `json:"avatarUrl"`
}

type callIncomingPush struct {
	CallerID          string `json:"callerId"`
	CallerName        string `json:"callerName"`
	CallerAvatarColor string `json:"callerAvatarColor"`
	CallerAvatarURL   string `json:"callerAvatarUrl,omitempty"`
}

type callEndedPush struct {
	By     string `json:"by"`
	Reason string `json:"reason,omitempty"`
}

type callSignalPush struct {
	From      string          `json:"from"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}
