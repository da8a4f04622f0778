package session

import (
	"net"
	"testing"
	"time"

	"github.com/wfunc/trailparty/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	sent   [][]byte
	closed bool
}

func (m *MockConnection) Send(frame []byte) error                  { m.sent = append(m.sent, frame); return nil }
func (m *MockConnection) Close() error                             { m.closed = true; return nil }
func (m *MockConnection) RemoteAddr() net.Addr                     { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)      {}
func (m *MockConnection) ReadEnvelope() (*network.Envelope, error) { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{})

	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}

	manager.Remove(sessionID)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}

	if _, exists = manager.Get(sessionID); exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestManager_GetByUserID(t *testing.T) {
	manager := NewManager()

	sess1 := NewSession("session1", &MockConnection{})
	sess1.Bind("room", "alice")
	sess2 := NewSession("session2", &MockConnection{})
	sess2.Bind("room", "bob")
	sess3 := NewSession("session3", &MockConnection{})
	sess3.Bind("other", "alice")

	manager.Add(sess1)
	manager.Add(sess2)
	manager.Add(sess3)

	if got := len(manager.GetByUserID("alice")); got != 2 {
		t.Errorf("Expected 2 sessions for alice, got %d", got)
	}
	if got := len(manager.GetByUserID("bob")); got != 1 {
		t.Errorf("Expected 1 session for bob, got %d", got)
	}
	if got := len(manager.GetByUserID("carol")); got != 0 {
		t.Errorf("Expected 0 sessions for carol, got %d", got)
	}
}

func TestSession_BindUnbind(t *testing.T) {
	sess := NewSession("s", &MockConnection{})
	sess.Bind("room-1", "alice")

	if sess.RoomID() != "room-1" || sess.UserID() != "alice" {
		t.Fatalf("Bind did not record room and user: %q %q", sess.RoomID(), sess.UserID())
	}

	sess.Unbind()
	if sess.RoomID() != "" {
		t.Errorf("Expected empty room after Unbind, got %q", sess.RoomID())
	}
	if sess.UserID() != "alice" {
		t.Errorf("Unbind should keep the user id, got %q", sess.UserID())
	}
}

func TestSession_SendAndTouch(t *testing.T) {
	conn := &MockConnection{}
	sess := NewSession("s", conn)
	before := sess.LastActive()

	time.Sleep(time.Millisecond)
	sess.Touch()
	if !sess.LastActive().After(before) {
		t.Error("Touch should advance LastActive")
	}

	if err := sess.Send([]byte("hi")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(conn.sent) != 1 {
		t.Errorf("Expected 1 frame sent, got %d", len(conn.sent))
	}
}

func TestManager_CloseAll(t *testing.T) {
	manager := NewManager()
	a, b := &MockConnection{}, &MockConnection{}
	manager.Add(NewSession("a", a))
	manager.Add(NewSession("b", b))

	manager.CloseAll()

	if !a.closed || !b.closed {
		t.Error("CloseAll should close every connection")
	}
}
