package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"Messenger/global"
	"Messenger/store"
)

// Shared fixtures. Clients are built without a socket; nothing in these
// tests starts WritePump, so frames pile up in Send where the helpers
// read them back.

func testConfig() *global.Config {
	return &global.Config{
		JWTSecret:       []byte("test-secret"),
		CallRingTimeout: 0,
		MaxVoiceBytes:   1 << 10,
		MaxAvatarBytes:  1 << 10,
	}
}

func newConn(connID, userID string) *Client {
	return NewClient(connID, userID, nil)
}

// wireAck mirrors the ack frame shape including the error branch, which
// the request Frame struct does not carry.
type wireAck struct {
	Type  string          `json:"type"`
	ID    int64           `json:"id"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

func recvFrame(t *testing.T, c *Client) *Frame {
	t.Helper()
	select {
	case payload := <-c.Send:
		f, err := ParseFrame(payload)
		if err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame delivered to conn=%s", c.ConnID)
		return nil
	}
}

func recvAck(t *testing.T, c *Client) *wireAck {
	t.Helper()
	select {
	case payload := <-c.Send:
		a := &wireAck{}
		if err := json.Unmarshal(payload, a); err != nil {
			t.Fatalf("bad ack: %v", err)
		}
		if a.Type != EvtAck {
			t.Fatalf("expected ack, got %s", a.Type)
		}
		return a
	case <-time.After(2 * time.Second):
		t.Fatalf("no ack delivered to conn=%s", c.ConnID)
		return nil
	}
}

func expectSilence(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.Send:
		t.Fatalf("unexpected frame on conn=%s: %s", c.ConnID, payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.Send:
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}

// fakeStore is an in-memory Store; error injection per method via the
// err* fields.
type fakeStore struct {
	mu sync.Mutex

	users    map[string]*store.User
	members  map[string][]string // chat -> user ids
	messages map[string][]*store.Message
	reads    []string // "<chat>:<reader>" in call order
	nextID   int

	errCreateMessage error
	errMarkRead      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*store.User),
		members:  make(map[string][]string),
		messages: make(map[string][]*store.Message),
	}
}

func (f *fakeStore) addUser(id, name string) *store.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &store.User{ID: id, Username: id, DisplayName: name, AvatarColor: "#FF6B6B"}
	f.users[id] = u
	return u
}

func (f *fakeStore) addChat(chatID string, userIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[chatID] = userIDs
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id], nil
}

func (f *fakeStore) SearchUsers(_ context.Context, query, exclude string) ([]*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.User
	for _, u := range f.users {
		if u.ID != exclude && u.Username == query {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) SetAvatar(_ context.Context, userID, avatarURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u := f.users[userID]; u != nil {
		u.AvatarURL = avatarURL
	}
	return nil
}

func (f *fakeStore) SetOnline(context.Context, string) error  { return nil }
func (f *fakeStore) SetOffline(context.Context, string) error { return nil }

func (f *fakeStore) FindPrivateChat(_ context.Context, a, b string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, m := range f.members {
		if len(m) == 2 && ((m[0] == a && m[1] == b) || (m[0] == b && m[1] == a)) {
			return id, nil
		}
	}
	return "", nil
}

func (f *fakeStore) CreatePrivateChat(_ context.Context, a, b string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("chat-%d", f.nextID)
	f.members[id] = []string{a, b}
	return id, nil
}

func (f *fakeStore) IsChatMember(_ context.Context, chatID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members[chatID] {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ChatMemberIDs(_ context.Context, chatID, exclude string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.members[chatID] {
		if m != exclude {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) ListUserChats(_ context.Context, userID string) ([]*store.ChatSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.ChatSummary
	for id, m := range f.members {
		for _, u := range m {
			if u == userID {
				out = append(out, &store.ChatSummary{ChatID: id, Type: "private"})
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CreateMessage(_ context.Context, nm store.NewMessage) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errCreateMessage != nil {
		return nil, f.errCreateMessage
	}
	f.nextID++
	msg := &store.Message{
		ID:        fmt.Sprintf("msg-%d", f.nextID),
		ChatID:    nm.ChatID,
		SenderID:  nm.SenderID,
		Type:      nm.Type,
		Text:      nm.Text,
		CreatedAt: time.Now(),
	}
	f.messages[nm.ChatID] = append(f.messages[nm.ChatID], msg)
	return msg, nil
}

func (f *fakeStore) ListChatMessages(_ context.Context, chatID string) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[chatID], nil
}

func (f *fakeStore) MarkMessagesRead(_ context.Context, chatID, readerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errMarkRead != nil {
		return f.errMarkRead
	}
	f.reads = append(f.reads, chatID+":"+readerID)
	return nil
}

func (f *fakeStore) storedMessages(chatID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[chatID])
}

func newTestServer(t *testing.T, fs *fakeStore) *Server {
	t.Helper()
	s := NewServer(testConfig(), fs, nil)
	t.Cleanup(s.Stop)
	return s
}
