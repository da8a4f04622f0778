package network

import "github.com/wfunc/trailparty/models"

// Client -> server events.
const (
	EventJoinRoom            = "join_room"
	EventUpdateCharacterInfo = "update_character_info"
	EventStartDecisionPhase  = "start_decision_phase"
	EventStartGame           = "start_game"
	EventRoomResponse        = "room_response"
	EventPauseTimer          = "pause_timer"
	EventResumeTimer         = "resume_timer"
	EventUserChatMessage     = "user_chat_message"
	EventHeartbeat           = "heartbeat"
)

// Server -> client events. pause_timer and resume_timer share the client
// event names above.
const (
	EventNarrative          = "narrative"
	EventPlayerStatsUpdate  = "player_stats_update"
	EventRoomLeader         = "room_leader"
	EventRoomInfo           = "room_info"
	EventStartTimer         = "start_timer"
	EventUpdateTimerDisplay = "update_timer_display"
	EventProgressUpdate     = "progress_update"
	EventInventoryUpdate    = "inventory_update"
	EventJSONUpdate         = "json_update"
	EventUserChatUpdate     = "user_chat_update"
)

type JoinRoomRequest struct {
	RoomID     string         `json:"roomId"`
	UserID     string         `json:"userId"`
	ChosenName string         `json:"chosenName"`
	Info       map[string]any `json:"info"`
}

type UpdateCharacterInfoRequest struct {
	RoomID string         `json:"roomId"`
	UserID string         `json:"userId"`
	Info   map[string]any `json:"info"`
}

// RoomRequest carries the leader-only controls.
type RoomRequest struct {
	RoomID string `json:"roomId"`
}

type RoomResponseRequest struct {
	RoomID  string `json:"roomId"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type ChatMessageRequest struct {
	RoomID  string `json:"roomId"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type NarrativePayload struct {
	Text string `json:"text"`
}

type RoomMembersPayload struct {
	RoomID  string `json:"roomId"`
	Members int    `json:"members"`
}

type TimerPayload struct {
	Remaining int `json:"remaining"`
}

type TimerDisplayPayload struct {
	Text string `json:"text"`
}

type ChatUpdatePayload struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type PlayerStatsPayload struct {
	Directory map[string]models.PlayerProfile `json:"directory"`
}
