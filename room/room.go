package room

import (
	"sort"
	"sync"
	"time"

	"github.com/wfunc/trailparty/logger"
	"github.com/wfunc/trailparty/models"
	"github.com/wfunc/trailparty/state"
)

type member struct {
	connID string
	userID string
}

// decisionPhase is the per-room collection window.
type decisionPhase struct {
	active    bool
	responses map[string]string
	order     []string // user ids in first-submission order
	deadline  time.Time
	timerID   int64
	remaining time.Duration // set while paused
	token     uint64        // bumps on every schedule and cancel
}

// Room 是游戏房间的核心结构. All fields are guarded by mu.
type Room struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	leader     string
	members    []member
	directory  *models.Directory
	state      models.GameState
	machine    *state.BaseStateMachine
	decision   decisionPhase
	generating bool
	closed     bool
}

// NewRoom creates a room in the lobby with leader as its first leader.
func NewRoom(id, leader string) *Room {
	r := &Room{
		ID:        id,
		CreatedAt: time.Now(),
		leader:    leader,
		directory: models.NewDirectory(),
		state:     models.NewGameState(),
		machine:   state.NewRoomStateMachine(),
	}
	r.machine.OnTransition(func(from, to state.Phase) {
		logger.Log.Debugf("room %s phase %s -> %s", id, from, to)
	})
	return r
}

// Summary is a read-only view of a room.
type Summary struct {
	ID             string            `json:"id"`
	Leader         string            `json:"leader"`
	Members        int               `json:"members"`
	Phase          state.Phase       `json:"phase"`
	Started        bool              `json:"started"`
	DecisionActive bool              `json:"decisionActive"`
	Generating     bool              `json:"generating"`
	Roster         []string          `json:"roster"`
	Responses      map[string]string `json:"responses,omitempty"`
	State          models.GameState  `json:"state,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Summary returns a copy of the room's observable state. The game state
// document is only included when full is set.
func (r *Room) Summary(full bool) Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{
		ID:             r.ID,
		Leader:         r.leader,
		Members:        len(r.members),
		Phase:          r.machine.GetCurrentState(),
		Started:        r.state.Started(),
		DecisionActive: r.decision.active,
		Generating:     r.generating,
		Roster:         r.state.Roster(),
		CreatedAt:      r.CreatedAt,
	}
	if full {
		s.State = r.state.Clone()
		if len(r.decision.responses) > 0 {
			s.Responses = make(map[string]string, len(r.decision.responses))
			for k, v := range r.decision.responses {
				s.Responses[k] = v
			}
		}
	}
	return s
}

func (r *Room) memberIndex(connID string) int {
	for i, m := range r.members {
		if m.connID == connID {
			return i
		}
	}
	return -1
}

func (r *Room) hasUser(userID string) bool {
	for _, m := range r.members {
		if m.userID == userID {
			return true
		}
	}
	return false
}

// memberUsers returns the distinct user ids of current members in join order.
func (r *Room) memberUsers() []string {
	seen := make(map[string]bool, len(r.members))
	out := make([]string, 0, len(r.members))
	for _, m := range r.members {
		if !seen[m.userID] {
			seen[m.userID] = true
			out = append(out, m.userID)
		}
	}
	return out
}

func (r *Room) refreshRoster() {
	r.state.SetRoster(r.directory.Roster())
}

// --- 房间管理器 ---

// Manager 管理所有房间
type Manager struct {
	rooms map[string]*Room
	mutex sync.RWMutex
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager() *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
	}
}

// GetOrCreate returns the room with id, creating it with creator as leader
// when it does not exist. created reports whether a new room was made.
func (m *Manager) GetOrCreate(id, creator string) (room *Room, created bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if room, exists := m.rooms[id]; exists {
		return room, false
	}
	room = NewRoom(id, creator)
	m.rooms[id] = room
	return room, true
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

// RemoveRoom drops id from the registry.
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.rooms, id)
}

// removeIf drops id only while it still maps to room.
func (m *Manager) removeIf(id string, room *Room) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.rooms[id] == room {
		delete(m.rooms, id)
	}
}

// Rooms returns every registered room ordered by id.
func (m *Manager) Rooms() []*Room {
	m.mutex.RLock()
	out := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		out = append(out, room)
	}
	m.mutex.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}
