package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/syncroom/server/internal/repository/session"
)

type repo struct {
	rc             *redis.Client
	expireDuration time.Duration
}

func NewRepo(rc *redis.Client, expireDuration time.Duration) *repo {
	return &repo{
		rc:             rc,
		expireDuration: expireDuration,
	}
}

func (r repo) getSessionKey(token string) string {
	return "session:" + token
}

func (r repo) SetSession(ctx context.Context, params *session.SetSessionParams) error {
	sessionKey := r.getSessionKey(params.Token)
	s := session.Session{
		RoomId: params.RoomId,
		IsHost: params.IsHost,
	}
	if err := r.rc.HSet(ctx, sessionKey, s).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	r.rc.Expire(ctx, sessionKey, r.expireDuration)

	return nil
}

func (r repo) GetSession(ctx context.Context, token string) (session.Session, error) {
	sessionKey := r.getSessionKey(token)
	res, err := r.rc.Exists(ctx, sessionKey).Result()
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to check if session exists: %w", err)
	}
	if res == 0 {
		return session.Session{}, session.ErrSessionNotFound
	}

	var s session.Session
	if err := r.rc.HGetAll(ctx, sessionKey).Scan(&s); err != nil {
		return session.Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	r.rc.Expire(ctx, sessionKey, r.expireDuration)

	return s, nil
}
