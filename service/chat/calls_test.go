package chat

import (
	"encoding/json"
	"testing"
	"time"

	"Messenger/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCallRig(t *testing.T, ringTimeout time.Duration) (*Registry, *CallManager) {
	t.Helper()
	reg := NewRegistry()
	fanout := NewFanout(1, 64)
	t.Cleanup(fanout.Stop)
	disp := NewDispatcher(reg, NewRooms(), fanout)
	return reg, NewCallManager(reg, disp, ringTimeout)
}

func alice() CallerInfo {
	return CallerInfo{ID: "alice", Name: "Alice", AvatarColor: "#FF6B6B"}
}

func TestCallInitiateOfflineCallee(t *testing.T) {
	_, cm := newCallRig(t, 0)

	err := cm.Initiate(alice(), "bob")
	require.Error(t, err)
	ce, ok := errs.AsCode(err)
	require.True(t, ok)
	assert.Equal(t, errs.ErrUserOffline.Code, ce.Code)
	assert.Equal(t, CallIdle, cm.StateOf("alice"), "failed initiate leaves no session")
}

func TestCallInitiateSelf(t *testing.T) {
	_, cm := newCallRig(t, 0)
	err := cm.Initiate(alice(), "alice")
	require.Error(t, err)
	ce, _ := errs.AsCode(err)
	assert.Equal(t, errs.ErrValidation.Code, ce.Code)
}

func TestCallHandshake(t *testing.T) {
	reg, cm := newCallRig(t, 0)
	caller := newConn("c1", "alice")
	phone := newConn("c2", "bob")
	laptop := newConn("c3", "bob")
	reg.Add(caller)
	reg.Add(phone)
	reg.Add(laptop)

	require.NoError(t, cm.Initiate(alice(), "bob"))
	assert.Equal(t, CallRinging, cm.StateOf("alice"))
	assert.Equal(t, CallRinging, cm.StateOf("bob"))

	// Every callee device rings with the caller's identity.
	for _, c := range []*Client{phone, laptop} {
		f := recvFrame(t, c)
		require.Equal(t, EvtCallIncoming, f.Type)
		var push callIncomingPush
		require.NoError(t, json.Unmarshal(f.Data, &push))
		assert.Equal(t, "alice", push.CallerID)
		assert.Equal(t, "Alice", push.CallerName)
	}

	require.NoError(t, cm.Accept("bob"))
	assert.Equal(t, CallActive, cm.StateOf("alice"))
	assert.Equal(t, CallActive, cm.StateOf("bob"))
	assert.Equal(t, EvtCallAccepted, recvFrame(t, caller).Type)

	// Signaling relays both directions while the session lives.
	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	require.NoError(t, cm.Relay("alice", EvtCallOffer, callSignalReq{TargetUserID: "bob", Offer: offer}))
	f := recvFrame(t, phone)
	require.Equal(t, EvtCallOffer, f.Type)
	var sig callSignalPush
	require.NoError(t, json.Unmarshal(f.Data, &sig))
	assert.Equal(t, "alice", sig.From)
	assert.JSONEq(t, string(offer), string(sig.Offer))
	drain(laptop)

	cm.End("bob")
	f = recvFrame(t, caller)
	require.Equal(t, EvtCallEnded, f.Type)
	var ended callEndedPush
	require.NoError(t, json.Unmarshal(f.Data, &ended))
	assert.Equal(t, "bob", ended.By)
	assert.Equal(t, CallIdle, cm.StateOf("alice"))
	assert.Equal(t, CallIdle, cm.StateOf("bob"))
}

func TestCallBusy(t *testing.T) {
	reg, cm := newCallRig(t, 0)
	reg.Add(newConn("c1", "alice"))
	bob := newConn("c2", "bob")
	reg.Add(bob)
	reg.Add(newConn("c3", "carol"))

	require.NoError(t, cm.Initiate(alice(), "bob"))
	drain(bob)

	// Caller already in a call.
	err := cm.Initiate(alice(), "carol")
	ce, _ := errs.AsCode(err)
	require.NotNil(t, ce)
	assert.Equal(t, errs.ErrUserBusy.Code, ce.Code)

	// Callee already in a call, even one still ringing.
	err = cm.Initiate(CallerInfo{ID: "carol", Name: "Carol"}, "bob")
	ce, _ = errs.AsCode(err)
	require.NotNil(t, ce)
	assert.Equal(t, errs.ErrUserBusy.Code, ce.Code)
	assert.Equal(t, CallIdle, cm.StateOf("carol"))
}

func TestCallReject(t *testing.T) {
	reg, cm := newCallRig(t, 0)
	caller := newConn("c1", "alice")
	bob := newConn("c2", "bob")
	reg.Add(caller)
	reg.Add(bob)

	require.NoError(t, cm.Initiate(alice(), "bob"))
	drain(bob)

	require.NoError(t, cm.Reject("bob"))
	assert.Equal(t, EvtCallRejected, recvFrame(t, caller).Type)
	assert.Equal(t, CallIdle, cm.StateOf("alice"))

	// The pair can negotiate again immediately.
	require.NoError(t, cm.Initiate(alice(), "bob"))
}

func TestCallRejectRequiresRingingCallee(t *testing.T) {
	reg, cm := newCallRig(t, 0)
	reg.Add(newConn("c1", "alice"))
	bob := newConn("c2", "bob")
	reg.Add(bob)

	assert.Error(t, cm.Reject("bob"), "no call to reject")

	require.NoError(t, cm.Initiate(alice(), "bob"))
	drain(bob)
	assert.Error(t, cm.Accept("alice"), "caller cannot accept its own call")
	assert.Error(t, cm.Reject("alice"), "caller cancels with end, not reject")
}

func TestCallCancelWhileRinging(t *testing.T) {
	reg, cm := newCallRig(t, 0)
	reg.Add(newConn("c1", "alice"))
	bob := newConn("c2", "bob")
	reg.Add(bob)

	require.NoError(t, cm.Initiate(alice(), "bob"))
	drain(bob)

	cm.End("alice")
	f := recvFrame(t, bob)
	require.Equal(t, EvtCallEnded, f.Type)
	var ended callEndedPush
	require.NoError(t, json.Unmarshal(f.Data, &ended))
	assert.Equal(t, "alice", ended.By)

	// Racing hang-ups: the second End finds no session and stays quiet.
	cm.End("bob")
	expectSilence(t, bob)
}

func TestCallRelayRequiresPairing(t *testing.T) {
	reg, cm := newCallRig(t, 0)
	reg.Add(newConn("c1", "alice"))
	bob := newConn("c2", "bob")
	carol := newConn("c3", "carol")
	reg.Add(bob)
	reg.Add(carol)

	// No session at all.
	err := cm.Relay("alice", EvtCallICE, callSignalReq{TargetUserID: "bob"})
	assert.Error(t, err)

	require.NoError(t, cm.Initiate(alice(), "bob"))
	drain(bob)

	// Session exists but the target is not the peer.
	err = cm.Relay("alice", EvtCallICE, callSignalReq{TargetUserID: "carol"})
	assert.Error(t, err)
	expectSilence(t, carol)

	// Early candidates flow while still ringing.
	cand := json.RawMessage(`{"candidate":"candidate:1"}`)
	require.NoError(t, cm.Relay("alice", EvtCallICE, callSignalReq{TargetUserID: "bob", Candidate: cand}))
	f := recvFrame(t, bob)
	assert.Equal(t, EvtCallICE, f.Type)
}

func TestCallRingTimeout(t *testing.T) {
	reg, cm := newCallRig(t, 30*time.Millisecond)
	caller := newConn("c1", "alice")
	bob := newConn("c2", "bob")
	reg.Add(caller)
	reg.Add(bob)

	require.NoError(t, cm.Initiate(alice(), "bob"))
	require.Equal(t, EvtCallIncoming, recvFrame(t, bob).Type)

	f := recvFrame(t, caller)
	require.Equal(t, EvtCallEnded, f.Type)
	var ended callEndedPush
	require.NoError(t, json.Unmarshal(f.Data, &ended))
	assert.Equal(t, "no-answer", ended.Reason)

	f = recvFrame(t, bob)
	require.Equal(t, EvtCallEnded, f.Type, "callee devices stop ringing")

	assert.Equal(t, CallIdle, cm.StateOf("alice"))
	assert.Equal(t, CallIdle, cm.StateOf("bob"))
}

func TestCallAcceptStopsRingTimer(t *testing.T) {
	reg, cm := newCallRig(t, 30*time.Millisecond)
	caller := newConn("c1", "alice")
	bob := newConn("c2", "bob")
	reg.Add(caller)
	reg.Add(bob)

	require.NoError(t, cm.Initiate(alice(), "bob"))
	drain(bob)
	require.NoError(t, cm.Accept("bob"))
	drain(caller)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, CallActive, cm.StateOf("alice"), "accepted call outlives the ring timeout")
	expectSilence(t, caller)
}

func TestCallPeerDisconnectEndsCall(t *testing.T) {
	reg, cm := newCallRig(t, 0)
	caller := newConn("c1", "alice")
	bob := newConn("c2", "bob")
	reg.Add(caller)
	reg.Add(bob)

	require.NoError(t, cm.Initiate(alice(), "bob"))
	drain(bob)
	require.NoError(t, cm.Accept("bob"))
	drain(caller)

	cm.HandleOffline("bob")
	f := recvFrame(t, caller)
	require.Equal(t, EvtCallEnded, f.Type)
	assert.Equal(t, CallIdle, cm.StateOf("alice"))
}
