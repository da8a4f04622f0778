// broadcast/broadcast.go
package broadcast

import (
	"errors"
	"sync"

	"github.com/wfunc/trailparty/logger"
	"github.com/wfunc/trailparty/models"
	"github.com/wfunc/trailparty/network"
	"github.com/wfunc/trailparty/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// Broadcaster fans events out to connections.
type Broadcaster interface {
	NotifyRoom(roomID, event string, payload any) error
	NotifyOne(connID, event string, payload any) error
	Snapshot(roomID string, st models.GameState, members int) error
}

// RoomBroadcaster keeps its own room -> connection index so that notifying a
// room never needs the room's lock.
type RoomBroadcaster struct {
	sessionManager *session.Manager
	rooms          map[string][]string
	mutex          sync.RWMutex
}

func NewRoomBroadcaster(sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		sessionManager: sessionManager,
		rooms:          make(map[string][]string),
	}
}

func (b *RoomBroadcaster) Subscribe(roomID, connID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for _, id := range b.rooms[roomID] {
		if id == connID {
			return
		}
	}
	b.rooms[roomID] = append(b.rooms[roomID], connID)
}

func (b *RoomBroadcaster) Unsubscribe(roomID, connID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	subs := b.rooms[roomID]
	for i, id := range subs {
		if id == connID {
			b.rooms[roomID] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.rooms[roomID]) == 0 {
		delete(b.rooms, roomID)
	}
}

// Subscribers returns the connection ids of a room in subscription order.
func (b *RoomBroadcaster) Subscribers(roomID string) []string {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return append([]string(nil), b.rooms[roomID]...)
}

// NotifyRoom encodes once and delivers best-effort: a member whose buffer is
// full misses the frame, everyone else still gets it.
func (b *RoomBroadcaster) NotifyRoom(roomID, event string, payload any) error {
	frame, err := network.Encode(event, payload)
	if err != nil {
		return err
	}

	for _, connID := range b.Subscribers(roomID) {
		s, ok := b.sessionManager.Get(connID)
		if !ok {
			continue
		}
		if err := s.Send(frame); err != nil {
			logger.Log.Warnf("broadcast %s to %s in room %s failed: %v", event, connID, roomID, err)
		}
	}
	return nil
}

func (b *RoomBroadcaster) NotifyOne(connID, event string, payload any) error {
	s, ok := b.sessionManager.Get(connID)
	if !ok {
		return ErrSessionNotFound
	}
	frame, err := network.Encode(event, payload)
	if err != nil {
		return err
	}
	return s.Send(frame)
}

// Snapshot emits the four views of one state back to back: progress,
// inventory, the raw document and the membership count.
func (b *RoomBroadcaster) Snapshot(roomID string, st models.GameState, members int) error {
	views := []struct {
		event   string
		payload any
	}{
		{network.EventProgressUpdate, st.Progress()},
		{network.EventInventoryUpdate, st.Inventory()},
		{network.EventJSONUpdate, st},
		{network.EventRoomInfo, network.RoomMembersPayload{RoomID: roomID, Members: members}},
	}
	for _, v := range views {
		if err := b.NotifyRoom(roomID, v.event, v.payload); err != nil {
			return err
		}
	}
	return nil
}
