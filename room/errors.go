package room

import "errors"

var (
	ErrInvalidRequest     = errors.New("room: room id and user id are required")
	ErrRoomNotFound       = errors.New("room: not found")
	ErrRoomFull           = errors.New("room: full")
	ErrNotMember          = errors.New("room: not a member")
	ErrPermissionDenied   = errors.New("room: only the leader may do that")
	ErrPhaseActive        = errors.New("room: decision phase already active")
	ErrPhaseInactive      = errors.New("room: no decision phase active")
	ErrGenerationInFlight = errors.New("room: narrative generation in progress")
	ErrNotPaused          = errors.New("room: timer is not paused")
	ErrNoTimer            = errors.New("room: no running timer")
)
