package broadcast

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/trailparty/models"
	"github.com/wfunc/trailparty/network"
	"github.com/wfunc/trailparty/session"
)

type MockConnection struct {
	mu     sync.Mutex
	frames []network.Envelope
	full   bool
}

func (m *MockConnection) Send(frame []byte) error {
	if m.full {
		return network.ErrBackpressure
	}
	var env network.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, env)
	return nil
}
func (m *MockConnection) Close() error                             { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                     { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)      {}
func (m *MockConnection) ReadEnvelope() (*network.Envelope, error) { return nil, nil }

func (m *MockConnection) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.frames))
	for _, f := range m.frames {
		out = append(out, f.Event)
	}
	return out
}

func setup(t *testing.T, ids ...string) (*RoomBroadcaster, map[string]*MockConnection) {
	t.Helper()
	sessions := session.NewManager()
	conns := make(map[string]*MockConnection)
	for _, id := range ids {
		c := &MockConnection{}
		conns[id] = c
		sessions.Add(session.NewSession(id, c))
	}
	return NewRoomBroadcaster(sessions), conns
}

func TestRoomBroadcaster_NotifyRoomOnlyReachesSubscribers(t *testing.T) {
	b, conns := setup(t, "c1", "c2", "c3")
	b.Subscribe("room", "c1")
	b.Subscribe("room", "c2")
	b.Subscribe("other", "c3")

	require.NoError(t, b.NotifyRoom("room", network.EventNarrative, network.NarrativePayload{Text: "hi"}))

	assert.Equal(t, []string{network.EventNarrative}, conns["c1"].events())
	assert.Equal(t, []string{network.EventNarrative}, conns["c2"].events())
	assert.Empty(t, conns["c3"].events())

	var payload network.NarrativePayload
	require.NoError(t, json.Unmarshal(conns["c1"].frames[0].Data, &payload))
	assert.Equal(t, "hi", payload.Text)
}

func TestRoomBroadcaster_SubscribeIsIdempotent(t *testing.T) {
	b, _ := setup(t, "c1")
	b.Subscribe("room", "c1")
	b.Subscribe("room", "c1")
	assert.Equal(t, []string{"c1"}, b.Subscribers("room"))

	b.Unsubscribe("room", "c1")
	assert.Empty(t, b.Subscribers("room"))
	b.Unsubscribe("room", "c1")
}

func TestRoomBroadcaster_FullBufferDoesNotStopFanOut(t *testing.T) {
	b, conns := setup(t, "c1", "c2")
	conns["c1"].full = true
	b.Subscribe("room", "c1")
	b.Subscribe("room", "c2")

	require.NoError(t, b.NotifyRoom("room", network.EventNarrative, network.NarrativePayload{Text: "x"}))
	assert.Len(t, conns["c2"].events(), 1)
}

func TestRoomBroadcaster_NotifyOne(t *testing.T) {
	b, conns := setup(t, "c1", "c2")

	require.NoError(t, b.NotifyOne("c2", network.EventNarrative, network.NarrativePayload{Text: "only you"}))
	assert.Empty(t, conns["c1"].events())
	assert.Equal(t, []string{network.EventNarrative}, conns["c2"].events())

	assert.ErrorIs(t, b.NotifyOne("missing", network.EventNarrative, nil), ErrSessionNotFound)
}

func TestRoomBroadcaster_SnapshotEmitsFourViews(t *testing.T) {
	b, conns := setup(t, "c1")
	b.Subscribe("room", "c1")

	st := models.NewGameState()
	st[models.KeyPace] = "fast"
	require.NoError(t, b.Snapshot("room", st, 3))

	assert.Equal(t, []string{
		network.EventProgressUpdate,
		network.EventInventoryUpdate,
		network.EventJSONUpdate,
		network.EventRoomInfo,
	}, conns["c1"].events())

	var progress map[string]any
	require.NoError(t, json.Unmarshal(conns["c1"].frames[0].Data, &progress))
	assert.Equal(t, "fast", progress["pace"])

	var info network.RoomMembersPayload
	require.NoError(t, json.Unmarshal(conns["c1"].frames[3].Data, &info))
	assert.Equal(t, network.RoomMembersPayload{RoomID: "room", Members: 3}, info)
}
