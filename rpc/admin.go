package rpc

import (
	"sort"
	"time"

	"github.com/wfunc/trailparty/room"
	"github.com/wfunc/trailparty/session"
)

// AdminService exposes read-only room inspection. Methods follow the net/rpc
// signature: exported method, exported arguments, pointer reply, error.
type AdminService struct {
	rooms    *room.Manager
	sessions *session.Manager
}

func NewAdminService(rooms *room.Manager, sessions *session.Manager) *AdminService {
	return &AdminService{rooms: rooms, sessions: sessions}
}

type ListRoomsArgs struct{}

type ListRoomsReply struct {
	Rooms []room.Summary
}

func (a *AdminService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	rooms := a.rooms.Rooms()
	reply.Rooms = make([]room.Summary, 0, len(rooms))
	for _, r := range rooms {
		reply.Rooms = append(reply.Rooms, r.Summary(false))
	}
	return nil
}

type GetRoomArgs struct {
	RoomID string
}

type GetRoomReply struct {
	Room room.Summary
}

// GetRoom returns the full summary, game state included.
func (a *AdminService) GetRoom(args *GetRoomArgs, reply *GetRoomReply) error {
	r, ok := a.rooms.GetRoom(args.RoomID)
	if !ok {
		return room.ErrRoomNotFound
	}
	reply.Room = r.Summary(true)
	return nil
}

type SessionsArgs struct {
	UserID string
}

type SessionInfo struct {
	ID         string
	RoomID     string
	CreatedAt  time.Time
	LastActive time.Time
}

type SessionsReply struct {
	Sessions []SessionInfo
}

// Sessions lists the open connections of one user, oldest first.
func (a *AdminService) Sessions(args *SessionsArgs, reply *SessionsReply) error {
	if args.UserID == "" {
		return room.ErrInvalidRequest
	}
	found := a.sessions.GetByUserID(args.UserID)
	reply.Sessions = make([]SessionInfo, 0, len(found))
	for _, s := range found {
		reply.Sessions = append(reply.Sessions, SessionInfo{
			ID:         s.GetID(),
			RoomID:     s.RoomID(),
			CreatedAt:  s.CreatedAt,
			LastActive: s.LastActive(),
		})
	}
	sort.Slice(reply.Sessions, func(i, j int) bool {
		return reply.Sessions[i].CreatedAt.Before(reply.Sessions[j].CreatedAt)
	})
	return nil
}
