package chat

import (
	"Messenger/logger"
)

// Dispatcher resolves a logical target (user, room, everyone) to the
// current set of live connections and hands the encoded frame to the
// fan-out pool. All sends are fire-and-forget: a vanished connection is
// skipped, never surfaced to the caller.
type Dispatcher struct {
	reg    *Registry
	rooms  *Rooms
	fanout *Fanout
}

func NewDispatcher(reg *Registry, rooms *Rooms, fanout *Fanout) *Dispatcher {
	return &Dispatcher{reg: reg, rooms: rooms, fanout: fanout}
}

// EmitToUser pushes to every connection of one user (multi-device).
func (d *Dispatcher) EmitToUser(userID, event string, data any) {
	d.deliver(d.reg.ConnectionsOf(userID), event, data, nil)
}

// EmitToRoom pushes to every connection inside the chat. except, when
// non-nil, skips the originator so an action is not echoed back to the
// connection that already applied it locally.
func (d *Dispatcher) EmitToRoom(chatID, event string, data any, except *Client) {
	d.deliver(d.rooms.Members(chatID), event, data, except)
}

// Broadcast pushes to every connected client.
func (d *Dispatcher) Broadcast(event string, data any) {
	d.deliver(d.reg.All(), event, data, nil)
}

func (d *Dispatcher) deliver(conns []*Client, event string, data any, except *Client) {
	if len(conns) == 0 {
		return
	}
	payload, err := BuildPush(event, data)
	if err != nil {
		logger.Errorf("[dispatch] encode %s: %v", event, err)
		return
	}
	if except != nil {
		kept := conns[:0]
		for _, c := range conns {
			if c.ConnID != except.ConnID {
				kept = append(kept, c)
			}
		}
		conns = kept
	}
	d.fanout.Deliver(conns, payload)
}
