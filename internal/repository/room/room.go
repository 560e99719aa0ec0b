// Package room holds the room store contract and the entities it stores.
// The store is injected into the service so tests can substitute a fake;
// production uses the single in-memory implementation.
package room

import (
	"errors"
	"time"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrAlreadyExists = errors.New("room already exists")
)

type User struct {
	ConnectionId string
	Username     string
	SessionToken string
	IsHost       bool
}

// VideoState is a checkpoint: while playing, the true position is
// CurrentTime plus the time elapsed since LastUpdate; while paused,
// CurrentTime is exact.
type VideoState struct {
	VideoId     *string
	IsPlaying   bool
	CurrentTime float64
	LastUpdate  time.Time
}

type QueueItem struct {
	Id        string
	VideoId   string
	Title     string
	AddedById string
}

type Room struct {
	Id string
	// HostConnectionId is always a key of Users in a non-empty room.
	HostConnectionId string
	// HostSessionToken names the original host. It survives host handoffs
	// caused by disconnects so the original host can reclaim the room; it is
	// reassigned only on creation or on a fresh join into an empty room.
	HostSessionToken string
	Users            map[string]User
	VideoState       VideoState
	Queue            []QueueItem
}
