package inmemory

import (
	"context"
	"sync"

	"github.com/syncroom/server/internal/repository/session"
)

type repo struct {
	sessions map[string]session.Session
	mu       sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		sessions: make(map[string]session.Session),
	}
}

func (r *repo) SetSession(_ context.Context, params *session.SetSessionParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[params.Token] = session.Session{
		RoomId: params.RoomId,
		IsHost: params.IsHost,
	}

	return nil
}

func (r *repo) GetSession(_ context.Context, token string) (session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[token]
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}

	return s, nil
}
