package room

import (
	"context"
	"time"

	"github.com/wfunc/trailparty/models"
	"github.com/wfunc/trailparty/narrative"
)

// Notifier delivers room events. It is defined here to break the import
// cycle between room and broadcast.
type Notifier interface {
	Subscribe(roomID, connID string)
	Unsubscribe(roomID, connID string)
	NotifyRoom(roomID, event string, payload any) error
	NotifyOne(connID, event string, payload any) error
	Snapshot(roomID string, st models.GameState, members int) error
}

// Scheduler runs one-shot callbacks after a delay.
type Scheduler interface {
	AddTimer(delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerID int64) bool
}

// Narrator turns a room snapshot into a narrative and a state delta.
type Narrator interface {
	Generate(ctx context.Context, req narrative.Request) (*narrative.Result, error)
}

// Archive stores completed turns.
type Archive interface {
	SaveTurn(ctx context.Context, rec models.TurnRecord) error
}

// Metrics receives room lifecycle observations.
type Metrics interface {
	RoomOpened()
	RoomClosed()
	PhaseCompiled()
	ObserveGeneration(kind string, elapsed time.Duration, err error)
}

type nopArchive struct{}

func (nopArchive) SaveTurn(context.Context, models.TurnRecord) error { return nil }

type nopMetrics struct{}

func (nopMetrics) RoomOpened()                                    {}
func (nopMetrics) RoomClosed()                                    {}
func (nopMetrics) PhaseCompiled()                                 {}
func (nopMetrics) ObserveGeneration(string, time.Duration, error) {}
