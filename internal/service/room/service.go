package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/syncroom/server/internal/repository/room"
	"github.com/syncroom/server/internal/repository/session"
)

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrRoomNotFound      = errors.New("room not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrQueueItemNotFound = errors.New("queue item not found")
)

type iRoomRepo interface {
	Get(ctx context.Context, roomId string) (*room.Room, error)
	Set(ctx context.Context, rm *room.Room) error
	Delete(ctx context.Context, roomId string) error
	ForEach(ctx context.Context, f func(*room.Room) error) error
}

type iSessionRepo interface {
	SetSession(ctx context.Context, params *session.SetSessionParams) error
	GetSession(ctx context.Context, token string) (session.Session, error)
}

type Config struct {
	// BroadcastInterval bounds how often coalescible state-change broadcasts
	// fire per room. Discrete play/pause/seek events are never coalesced.
	BroadcastInterval time.Duration
}

type service struct {
	roomRepo    iRoomRepo
	sessionRepo iSessionRepo
	clock       clockwork.Clock
	logger      *slog.Logger

	broadcastInterval time.Duration

	// mu serializes all room mutations. The original system relied on a
	// single-threaded event loop for this; here one writer at a time is
	// enforced explicitly.
	mu sync.Mutex

	limiters   map[string]*rate.Limiter
	limitersMu sync.Mutex
}

func NewService(roomRepo iRoomRepo, sessionRepo iSessionRepo, clock clockwork.Clock, logger *slog.Logger, cfg *Config) *service {
	return &service{
		roomRepo:          roomRepo,
		sessionRepo:       sessionRepo,
		clock:             clock,
		logger:            logger,
		broadcastInterval: cfg.BroadcastInterval,
		limiters:          make(map[string]*rate.Limiter),
	}
}
