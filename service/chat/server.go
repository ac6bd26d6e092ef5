package chat

import (
	"context"
	"encoding/json"
	"time"

	"Messenger/global"
	"Messenger/logger"
	"Messenger/store"
	"Messenger/tools/errs"
)

// Store is the persistence collaborator the real-time core consumes. The
// concrete implementation lives in the store package; tests substitute a
// fake.
type Store interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	SearchUsers(ctx context.Context, query, excludeUserID string) ([]*store.User, error)
	SetAvatar(ctx context.Context, userID, avatarURL string) error
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error

	FindPrivateChat(ctx context.Context, userA, userB string) (string, error)
	CreatePrivateChat(ctx context.Context, userA, userB string) (string, error)
	IsChatMember(ctx context.Context, chatID, userID string) (bool, error)
	ChatMemberIDs(ctx context.Context, chatID, excludeUserID string) ([]string, error)
	ListUserChats(ctx context.Context, userID string) ([]*store.ChatSummary, error)

	CreateMessage(ctx context.Context, nm store.NewMessage) (*store.Message, error)
	ListChatMessages(ctx context.Context, chatID string) ([]*store.Message, error)
	MarkMessagesRead(ctx context.Context, chatID, readerID string) error
}

// PresenceMirror receives best-effort online/offline notifications
// (implemented by service/storage on Redis; a nil mirror is valid).
type PresenceMirror interface {
	MarkOnline(userID string)
	MarkOffline(userID string)
}

// HandlerFunc serves one client request. The returned value becomes the
// ack payload; a *errs.CodeError becomes the ack error.
type HandlerFunc func(ctx context.Context, c *Client, data json.RawMessage) (any, error)

// Server is the session gateway: it owns connection lifecycle, the
// presence registry, room membership, the dispatcher and call signaling,
// and routes every decoded frame to its registered handler.
type Server struct {
	cfg      *global.Config
	store    Store
	presence PresenceMirror

	reg    *Registry
	rooms  *Rooms
	fanout *Fanout
	disp   *Dispatcher
	calls  *CallManager

	handlers map[string]HandlerFunc
}

func NewServer(cfg *global.Config, st Store, presence PresenceMirror) *Server {
	reg := NewRegistry()
	rooms := NewRooms()
	// One worker keeps fan-out delivery in submit order; the queue only
	// absorbs bursts.
	fanout := NewFanout(1, 1024)
	disp := NewDispatcher(reg, rooms, fanout)

	s := &Server{
		cfg:      cfg,
		store:    st,
		presence: presence,
		reg:      reg,
		rooms:    rooms,
		fanout:   fanout,
		disp:     disp,
		calls:    NewCallManager(reg, disp, cfg.CallRingTimeout),
	}
	s.registerHandlers()
	return s
}

func (s *Server) Registry() *Registry     { return s.reg }
func (s *Server) Dispatcher() *Dispatcher { return s.disp }
func (s *Server) Calls() *CallManager     { return s.calls }

func (s *Server) Stop() { s.fanout.Stop() }

func (s *Server) register(event string, h HandlerFunc) {
	s.handlers[event] = h
}

func (s *Server) registerHandlers() {
	s.handlers = make(map[string]HandlerFunc)

	s.register(EvtUserMe, s.handleUserMe)
	s.register(EvtUsersSearch, s.handleUsersSearch)
	s.register(EvtChatsList, s.handleChatsList)
	s.register(EvtChatStart, s.handleChatStart)
	s.register(EvtChatOpen, s.handleChatOpen)
	s.register(EvtMessageSend, s.handleMessageSend)
	s.register(EvtMessagesMarkRead, s.handleMarkRead)
	s.register(EvtTypingStart, s.handleTypingStart)
	s.register(EvtTypingStop, s.handleTypingStop)
	s.register(EvtAvatarUpdated, s.handleAvatarUpdated)

	s.register(EvtCallInitiate, s.handleCallInitiate)
	s.register(EvtCallAccept, s.handleCallAccept)
	s.register(EvtCallReject, s.handleCallReject)
	s.register(EvtCallEnd, s.handleCallEnd)
	s.register(EvtCallOffer, s.relayHandler(EvtCallOffer))
	s.register(EvtCallAnswer, s.relayHandler(EvtCallAnswer))
	s.register(EvtCallICE, s.relayHandler(EvtCallICE))
}

// dispatch runs in the connection's read goroutine, so requests from one
// connection execute in arrival order and a message is persisted before
// its broadcast is submitted.
func (s *Server) dispatch(c *Client, f *Frame) {
	h, ok := s.handlers[f.Type]
	if !ok {
		logger.Infof("[ws] no handler for type=%s conn=%s", f.Type, c.ConnID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data, err := h(ctx, c, f.Data)
	if f.ID == 0 {
		return // fire-and-forget request, response dropped by contract
	}

	var payload []byte
	if err != nil {
		ce, ok := errs.AsCode(err)
		if !ok {
			logger.Errorf("[ws] %s failed conn=%s user=%s: %v", f.Type, c.ConnID, c.UserID, err)
			ce = errs.ErrInternal
		}
		payload, err = BuildErrAck(f.ID, ce)
	} else {
		payload, err = BuildAck(f.ID, data)
	}
	if err != nil {
		logger.Errorf("[ws] encode ack type=%s: %v", f.Type, err)
		return
	}
	c.Enqueue(payload)
}

// onConnect registers the connection; the user's first connection flips
// presence and is announced to everyone.
func (s *Server) onConnect(c *Client) {
	if first := s.reg.Add(c); first {
		s.markOnline(c.UserID)
		s.disp.Broadcast(EvtUserOnline, userPresencePush{UserID: c.UserID})
	}
	logger.Infof("[ws] connected user=%s conn=%s", c.UserID, c.ConnID)
}

// onDisconnect tears the connection down. Call cleanup happens
// synchronously here; the persistence writes are fire-and-forget so the
// disconnect path never waits on I/O.
func (s *Server) onDisconnect(c *Client) {
	s.rooms.LeaveAll(c)
	if last := s.reg.Remove(c); last {
		s.calls.HandleOffline(c.UserID)
		s.markOffline(c.UserID)
		s.disp.Broadcast(EvtUserOffline, userPresencePush{UserID: c.UserID})
	}
	c.Close()
	logger.Infof("[ws] disconnected user=%s conn=%s", c.UserID, c.ConnID)
}

func (s *Server) markOnline(userID string) {
	if s.presence != nil {
		s.presence.MarkOnline(userID)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.SetOnline(ctx, userID); err != nil {
			logger.Warnf("[ws] set online user=%s: %v", userID, err)
		}
	}()
}

func (s *Server) markOffline(userID string) {
	if s.presence != nil {
		s.presence.MarkOffline(userID)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.SetOffline(ctx, userID); err != nil {
			logger.Warnf("[ws] set offline user=%s: %v", userID, err)
		}
	}()
}
