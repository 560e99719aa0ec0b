// Package session holds the session directory contract: a durable client
// token mapped to the last room it was seen in and whether it held host
// status there.
package session

import "errors"

var ErrSessionNotFound = errors.New("session not found")

type Session struct {
	RoomId string `redis:"room_id"`
	IsHost bool   `redis:"is_host"`
}

type SetSessionParams struct {
	Token  string
	RoomId string
	IsHost bool
}
