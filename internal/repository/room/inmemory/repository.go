package inmemory

import (
	"context"
	"sync"

	"github.com/syncroom/server/internal/repository/room"
)

type repo struct {
	rooms map[string]*room.Room
	mu    sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		rooms: make(map[string]*room.Room),
	}
}

func (r *repo) Get(_ context.Context, roomId string) (*room.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomId]
	if !ok {
		return nil, room.ErrRoomNotFound
	}

	return rm, nil
}

func (r *repo) Set(_ context.Context, rm *room.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rooms[rm.Id] = rm

	return nil
}

func (r *repo) Delete(_ context.Context, roomId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[roomId]; !ok {
		return room.ErrRoomNotFound
	}

	delete(r.rooms, roomId)

	return nil
}

func (r *repo) ForEach(_ context.Context, f func(*room.Room) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rm := range r.rooms {
		if err := f(rm); err != nil {
			return err
		}
	}

	return nil
}
