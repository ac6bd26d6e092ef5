package chat

import (
	"sync"
	"time"

	"Messenger/tools/errs"
)

// Call signaling. The server keeps one CallSession per negotiating pair
// and relays the WebRTC handshake (offer/answer/ICE) verbatim between the
// two users; it never inspects the media payloads. ICE restarts and the
// client's forced-relay retry are just more offer/answer traffic on the
// same session, so no transition happens here for them.

type CallState int

const (
	CallIdle    CallState = iota // no session
	CallRinging                  // caller outgoing, callee ringing
	CallActive                   // callee accepted
)

type CallSession struct {
	CallerID string
	CalleeID string
	State    CallState

	CreatedAt time.Time
	ringTimer *time.Timer
}

func (s *CallSession) peerOf(userID string) string {
	if s.CallerID == userID {
		return s.CalleeID
	}
	return s.CallerID
}

// CallerInfo is what the callee's ring screen renders.
type CallerInfo struct {
	ID          string
	Name        string
	AvatarColor string
	AvatarURL   string
}

// CallManager owns every live call session. Both participants key to the
// same session value, which is what enforces one call per user: a second
// initiate against either participant fails with busy instead of ringing
// a user who is already talking. Reads presence, never mutates it.
type CallManager struct {
	mu     sync.Mutex
	byUser map[string]*CallSession

	reg  *Registry
	disp *Dispatcher

	// Ring timeout bounds an incoming call that is never answered. Zero
	// disables it.
	ringTimeout time.Duration
}

func NewCallManager(reg *Registry, disp *Dispatcher, ringTimeout time.Duration) *CallManager {
	return &CallManager{
		byUser:      make(map[string]*CallSession),
		reg:         reg,
		disp:        disp,
		ringTimeout: ringTimeout,
	}
}

// StateOf reports the user's call state, CallIdle when not in a call.
func (m *CallManager) StateOf(userID string) CallState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.byUser[userID]
	if s == nil {
		return CallIdle
	}
	return s.State
}

// Initiate starts ringing the callee on every device. Fails synchronously
// when the callee is offline (no session is created) or when either side
// is already in a call.
func (m *CallManager) Initiate(caller CallerInfo, calleeID string) error {
	if calleeID == "" || calleeID == caller.ID {
		return errs.ErrValidation.WithDetail("bad call target")
	}

	m.mu.Lock()
	if m.byUser[caller.ID] != nil {
		m.mu.Unlock()
		return errs.ErrUserBusy
	}
	if m.byUser[calleeID] != nil {
		m.mu.Unlock()
		return errs.ErrUserBusy.WithDetail("callee in another call")
	}
	if !m.reg.IsOnline(calleeID) {
		m.mu.Unlock()
		return errs.ErrUserOffline
	}

	sess := &CallSession{
		CallerID:  caller.ID,
		CalleeID:  calleeID,
		State:     CallRinging,
		CreatedAt: time.Now(),
	}
	if m.ringTimeout > 0 {
		sess.ringTimer = time.AfterFunc(m.ringTimeout, func() { m.ringExpired(sess) })
	}
	m.byUser[caller.ID] = sess
	m.byUser[calleeID] = sess
	m.mu.Unlock()

	m.disp.EmitToUser(calleeID, EvtCallIncoming, callIncomingPush{
		CallerID:          caller.ID,
		CallerName:        caller.Name,
		CallerAvatarColor: caller.AvatarColor,
		CallerAvatarURL:   caller.AvatarURL,
	})
	return nil
}

// Accept moves ringing -> active and tells the caller to start its offer.
// The callee signals accept only after its media stack is ready, so the
// offer it triggers cannot outrun the receiver.
func (m *CallManager) Accept(calleeID string) error {
	m.mu.Lock()
	sess := m.byUser[calleeID]
	if sess == nil || sess.CalleeID != calleeID || sess.State != CallRinging {
		m.mu.Unlock()
		return errs.ErrValidation.WithDetail("no ringing call")
	}
	if sess.ringTimer != nil {
		sess.ringTimer.Stop()
	}
	sess.State = CallActive
	callerID := sess.CallerID
	m.mu.Unlock()

	m.disp.EmitToUser(callerID, EvtCallAccepted, nil)
	return nil
}

// Reject tears the ringing session down and notifies the caller.
func (m *CallManager) Reject(calleeID string) error {
	m.mu.Lock()
	sess := m.byUser[calleeID]
	if sess == nil || sess.CalleeID != calleeID || sess.State != CallRinging {
		m.mu.Unlock()
		return errs.ErrValidation.WithDetail("no ringing call")
	}
	m.dropLocked(sess)
	callerID := sess.CallerID
	m.mu.Unlock()

	m.disp.EmitToUser(callerID, EvtCallRejected, nil)
	return nil
}

// End terminates the user's session from any state: caller cancel while
// ringing, either party hanging up mid-call. No-op when idle, since the
// peer may have ended first and both hang-ups race.
func (m *CallManager) End(userID string) {
	m.mu.Lock()
	sess := m.byUser[userID]
	if sess == nil {
		m.mu.Unlock()
		return
	}
	m.dropLocked(sess)
	peer := sess.peerOf(userID)
	m.mu.Unlock()

	m.disp.EmitToUser(peer, EvtCallEnded, callEndedPush{By: userID})
}

// HandleOffline is the implicit End on disconnect. Runs synchronously in
// the disconnect path and does no I/O, so the peer learns promptly and no
// session leaks with a vanished counterpart.
func (m *CallManager) HandleOffline(userID string) {
	m.End(userID)
}

// Relay routes an offer/answer/ICE frame to every connection of the
// target. Valid only while a session pairs the two users; candidates may
// flow while still ringing because the callee's stack warms up before it
// signals accept.
func (m *CallManager) Relay(fromUserID, event string, req callSignalReq) error {
	m.mu.Lock()
	sess := m.byUser[fromUserID]
	paired := sess != nil && sess.peerOf(fromUserID) == req.TargetUserID
	m.mu.Unlock()

	if !paired {
		return errs.ErrValidation.WithDetail("no call with this user")
	}

	m.disp.EmitToUser(req.TargetUserID, event, callSignalPush{
		From:      fromUserID,
		Offer:     req.Offer,
		Answer:    req.Answer,
		Candidate: req.Candidate,
	})
	return nil
}

func (m *CallManager) ringExpired(sess *CallSession) {
	m.mu.Lock()
	if m.byUser[sess.CallerID] != sess || sess.State != CallRinging {
		m.mu.Unlock()
		return
	}
	m.dropLocked(sess)
	m.mu.Unlock()

	// Caller sees "no answer", callee devices stop ringing.
	m.disp.EmitToUser(sess.CallerID, EvtCallEnded, callEndedPush{By: sess.CalleeID, Reason: "no-answer"})
	m.disp.EmitToUser(sess.CalleeID, EvtCallEnded, callEndedPush{By: sess.CallerID, Reason: "no-answer"})
}

func (m *CallManager) dropLocked(sess *CallSession) {
	if sess.ringTimer != nil {
		sess.ringTimer.Stop()
	}
	if m.byUser[sess.CallerID] == sess {
		delete(m.byUser, sess.CallerID)
	}
	if m.byUser[sess.CalleeID] == sess {
		delete(m.byUser, sess.CalleeID)
	}
}
