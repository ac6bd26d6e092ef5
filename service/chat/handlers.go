package chat

import (
	"context"
	"encoding/json"
	"strings"

	"Messenger/store"
	"Messenger/tools/errs"
)

// Request handlers. Every handler trusts c.UserID (pinned by the gateway
// at upgrade) and never an identity found in the payload.

func decode[T any](data json.RawMessage) (T, error) {
	var req T
	if len(data) == 0 {
		return req, errs.ErrValidation.WithDetail("missing data")
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, errs.ErrValidation.WithDetail("bad payload")
	}
	return req, nil
}

func (s *Server) handleUserMe(ctx context.Context, c *Client, _ json.RawMessage) (any, error) {
	u, err := s.store.GetUser(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errs.ErrInvalidToken
	}
	return u, nil
}

func (s *Server) handleUsersSearch(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decode[userSearchReq](data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return []*store.User{}, nil
	}
	users, err := s.store.SearchUsers(ctx, strings.TrimSpace(req.Query), c.UserID)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*store.User{}
	}
	return users, nil
}

func (s *Server) handleChatsList(ctx context.Context, c *Client, _ json.RawMessage) (any, error) {
	chats, err := s.store.ListUserChats(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	if chats == nil {
		chats = []*store.ChatSummary{}
	}
	return chats, nil
}

type chatOpenResp struct {
	ChatID    string           `json:"chatId"`
	OtherUser *store.User      `json:"otherUser,omitempty"`
	Messages  []*store.Message `json:"messages"`
}

// handleChatStart finds or creates the private chat with another user,
// joins its room and returns the full history. Mirrors a fresh open, so
// unread messages are marked read on the way.
func (s *Server) handleChatStart(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decode[chatStartReq](data)
	if err != nil {
		return nil, err
	}
	if req.UserID == "" || req.UserID == c.UserID {
		return nil, errs.ErrValidation.WithDetail("bad chat peer")
	}

	other, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return nil, errs.ErrValidation.WithDetail("unknown user")
	}

	chatID, err := s.store.FindPrivateChat(ctx, c.UserID, req.UserID)
	if err != nil {
		return nil, err
	}
	if chatID == "" {
		chatID, err = s.store.CreatePrivateChat(ctx, c.UserID, req.UserID)
		if err != nil {
			return nil, err
		}
	}

	messages, err := s.store.ListChatMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkMessagesRead(ctx, chatID, c.UserID); err != nil {
		return nil, err
	}

	s.rooms.Join(chatID, c)

	if messages == nil {
		messages = []*store.Message{}
	}
	return chatOpenResp{ChatID: chatID, OtherUser: other, Messages: messages}, nil
}

// handleChatOpen re-opens a known chat (including after reconnect: the
// client re-requests history instead of relying on replay). The sender
// side of pending messages learns about the read marks.
func (s *Server) handleChatOpen(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decode[chatRef](data)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, req.ChatID, c.UserID); err != nil {
		return nil, err
	}

	messages, err := s.store.ListChatMessages(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkMessagesRead(ctx, req.ChatID, c.UserID); err != nil {
		return nil, err
	}

	s.rooms.Join(req.ChatID, c)
	s.disp.EmitToRoom(req.ChatID, EvtMessagesRead, messagesReadPush{ChatID: req.ChatID, ReadBy: c.UserID}, c)

	if messages == nil {
		messages = []*store.Message{}
	}
	return chatOpenResp{ChatID: req.ChatID, Messages: messages}, nil
}

// handleMessageSend persists first, fans out only after the write is
// acknowledged: a reconnecting client re-fetching history never sees a
// broadcast-only message that storage does not have.
func (s *Server) handleMessageSend(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decode[messageSendReq](data)
	if err != nil {
		return nil, err
	}
	if err := s.validateMessage(&req); err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, req.ChatID, c.UserID); err != nil {
		return nil, err
	}

	msg, err := s.store.CreateMessage(ctx, store.NewMessage{
		ChatID:          req.ChatID,
		SenderID:        c.UserID,
		Type:            req.Type,
		Text:            strings.TrimSpace(req.Text),
		AudioData:       req.AudioData,
		AudioDuration:   req.AudioDuration,
		ReplyToID:       req.ReplyToID,
		ForwardedFrom:   req.ForwardedFrom,
		ForwardedFromID: req.ForwardedFromID,
	})
	if err != nil {
		return nil, err
	}

	// Everyone with the chat open, the sender's other tabs included; the
	// sending tab renders from the ack and dedupes by message id.
	s.disp.EmitToRoom(req.ChatID, EvtMessageNew, msg, nil)

	// Members without the chat open refresh their sidebar.
	memberIDs, err := s.store.ChatMemberIDs(ctx, req.ChatID, c.UserID)
	if err == nil {
		for _, uid := range memberIDs {
			s.disp.EmitToUser(uid, EvtChatsUpdated, nil)
		}
	}

	return msg, nil
}

func (s *Server) validateMessage(req *messageSendReq) error {
	if req.ChatID == "" {
		return errs.ErrValidation.WithDetail("missing chatId")
	}
	switch req.Type {
	case "", "text":
		req.Type = "text"
		if strings.TrimSpace(req.Text) == "" {
			return errs.ErrValidation.WithDetail("empty message")
		}
	case "voice":
		if req.AudioData == "" {
			return errs.ErrValidation.WithDetail("missing audio")
		}
		if len(req.AudioData) > s.cfg.MaxVoiceBytes {
			return errs.ErrValidation.WithDetail("voice message too large")
		}
	default:
		return errs.ErrValidation.WithDetail("unknown message type")
	}
	return nil
}

func (s *Server) handleMarkRead(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decode[chatRef](data)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, req.ChatID, c.UserID); err != nil {
		return nil, err
	}
	if err := s.store.MarkMessagesRead(ctx, req.ChatID, c.UserID); err != nil {
		return nil, err
	}
	s.disp.EmitToRoom(req.ChatID, EvtMessagesRead, messagesReadPush{ChatID: req.ChatID, ReadBy: c.UserID}, c)
	return nil, nil
}

func (s *Server) handleTypingStart(_ context.Context, c *Client, data json.RawMessage) (any, error) {
	return s.typing(c, data, EvtTypingStart)
}

func (s *Server) handleTypingStop(_ context.Context, c *Client, data json.RawMessage) (any, error) {
	return s.typing(c, data, EvtTypingStop)
}

// Typing indicators are pure fan-out, no persistence and no membership
// round trip; only connections with the room open receive them anyway.
func (s *Server) typing(c *Client, data json.RawMessage, event string) (any, error) {
	req, err := decode[chatRef](data)
	if err != nil {
		return nil, err
	}
	s.disp.EmitToRoom(req.ChatID, event, typingPush{ChatID: req.ChatID, UserID: c.UserID}, c)
	return nil, nil
}

func (s *Server) handleAvatarUpdated(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decode[avatarUpdateReq](data)
	if err != nil {
		return nil, err
	}
	if req.AvatarURL == "" {
		return nil, errs.ErrValidation.WithDetail("missing avatar")
	}
	if len(req.AvatarURL) > s.cfg.MaxAvatarBytes {
		return nil, errs.ErrValidation.WithDetail("avatar too large")
	}
	if err := s.store.SetAvatar(ctx, c.UserID, req.AvatarURL); err != nil {
		return nil, err
	}
	s.disp.Broadcast(EvtUserAvatarUpdated, avatarPush{UserID: c.UserID, AvatarURL: req.AvatarURL})
	return nil, nil
}

func (s *Server) requireMember(ctx context.Context, chatID, userID string) error {
	if chatID == "" {
		return errs.ErrValidation.WithDetail("missing chatId")
	}
	ok, err := s.store.IsChatMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrNotChatMember
	}
	return nil
}

// ===== call signaling =====

func (s *Server) handleCallInitiate(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decode[callTargetReq](data)
	if err != nil {
		return nil, err
	}
	caller, err := s.store.GetUser(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	if caller == nil {
		return nil, errs.ErrInvalidToken
	}
	if err := s.calls.Initiate(CallerInfo{
		ID:          caller.ID,
		Name:        caller.DisplayName,
		AvatarColor: caller.AvatarColor,
		AvatarURL:   caller.AvatarURL,
	}, req.TargetUserID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleCallAccept(_ context.Context, c *Client, data json.RawMessage) (any, error) {
	if _, err := decode[callTargetReq](data); err != nil {
		return nil, err
	}
	return nil, s.calls.Accept(c.UserID)
}

func (s *Server) handleCallReject(_ context.Context, c *Client, data json.RawMessage) (any, error) {
	if _, err := decode[callTargetReq](data); err != nil {
		return nil, err
	}
	return nil, s.calls.Reject(c.UserID)
}

func (s *Server) handleCallEnd(_ context.Context, c *Client, _ json.RawMessage) (any, error) {
	s.calls.End(c.UserID)
	return nil, nil
}

// relayHandler serves call:offer / call:answer / call:ice-candidate; the
// push type matches the request type and the payload passes through
// untouched.
func (s *Server) relayHandler(event string) HandlerFunc {
	return func(_ context.Context, c *Client, data json.RawMessage) (any, error) {
		req, err := decode[callSignalReq](data)
		if err != nil {
			return nil, err
		}
		return nil, s.calls.Relay(c.UserID, event, req)
	}
}
