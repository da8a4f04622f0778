// persistence/interface.go
package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/trailparty/models"
)

// Archive stores narrative turns. Rooms never read them back.
type Archive interface {
	SaveTurn(ctx context.Context, rec models.TurnRecord) error
	Close() error
}

// 错误定义
var (
	ErrEmptyRoomID = errors.New("persistence: turn record without room id")
)

// NopArchive drops every record. It is used when no database is configured.
type NopArchive struct{}

func (NopArchive) SaveTurn(context.Context, models.TurnRecord) error { return nil }
func (NopArchive) Close() error                                      { return nil }
