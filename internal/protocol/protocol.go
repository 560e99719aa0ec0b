// Package protocol defines the closed set of messages exchanged over a room
// connection. Every frame is {"type": ..., "payload": ...}; payload shapes
// are fixed per type so an invalid message fails at decode time.
package protocol

// Client to server message types.
const (
	TypeJoinRoom        = "join-room"
	TypeStateChange     = "state-change"
	TypePlay            = "play"
	TypePause           = "pause"
	TypeSeek            = "seek"
	TypeChangeVideo     = "change-video"
	TypeSendMessage     = "send-message"
	TypeAddToQueue      = "add-to-queue"
	TypeRemoveFromQueue = "remove-from-queue"
)

// Server to client message types. TypePlay, TypePause and TypeSeek are
// reused in this direction as discrete playback events.
const (
	TypeRoomState    = "room-state"
	TypeUserJoined   = "user-joined"
	TypeUserLeft     = "user-left"
	TypeHostChanged  = "host-changed"
	TypeSyncVideo    = "sync-video"
	TypeVideoChanged = "video-changed"
	TypeNewMessage   = "new-message"
	TypeQueueUpdated = "queue-updated"
	TypeError        = "error"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type JoinRoomInput struct {
	RoomId       string `json:"room_id" validate:"required,min=1,max=64"`
	Username     string `json:"username" validate:"required,min=1,max=64"`
	SessionToken string `json:"session_token" validate:"max=128"`
}

type StateChangeInput struct {
	RoomId    string  `json:"room_id" validate:"required"`
	Position  float64 `json:"position"`
	IsPlaying bool    `json:"is_playing"`
}

type PlayInput struct {
	RoomId    string  `json:"room_id" validate:"required"`
	Position  float64 `json:"position"`
	Timestamp int64   `json:"timestamp" validate:"required"`
}

type PauseInput struct {
	RoomId   string  `json:"room_id" validate:"required"`
	Position float64 `json:"position"`
}

type SeekInput struct {
	RoomId   string  `json:"room_id" validate:"required"`
	Position float64 `json:"position"`
}

type ChangeVideoInput struct {
	RoomId  string `json:"room_id" validate:"required"`
	VideoId string `json:"video_id" validate:"required,min=1,max=64"`
}

type SendMessageInput struct {
	RoomId  string `json:"room_id" validate:"required"`
	Message string `json:"message" validate:"required,min=1,max=2000"`
}

type AddToQueueInput struct {
	RoomId  string `json:"room_id" validate:"required"`
	VideoId string `json:"video_id" validate:"required,min=1,max=64"`
	Title   string `json:"title" validate:"max=200"`
}

type RemoveFromQueueInput struct {
	RoomId string `json:"room_id" validate:"required"`
	ItemId string `json:"item_id" validate:"required"`
}

type User struct {
	Id       string `json:"id"`
	Username string `json:"username"`
	IsHost   bool   `json:"is_host"`
}

// VideoState is the checkpoint the server holds for a room. While playing,
// the live position is CurrentTime plus the wall-clock time elapsed since
// LastUpdate (milliseconds since epoch).
type VideoState struct {
	VideoId     *string `json:"video_id"`
	IsPlaying   bool    `json:"is_playing"`
	CurrentTime float64 `json:"current_time"`
	LastUpdate  int64   `json:"last_update"`
}

type QueueItem struct {
	Id        string `json:"id"`
	VideoId   string `json:"video_id"`
	Title     string `json:"title"`
	AddedById string `json:"added_by_id"`
}

type RoomState struct {
	Id         string      `json:"id"`
	HostId     string      `json:"host_id"`
	Users      []User      `json:"users"`
	VideoState VideoState  `json:"video_state"`
	Queue      []QueueItem `json:"queue"`
}

type UserJoinedEvent struct {
	User User `json:"user"`
}

type UserLeftEvent struct {
	ConnectionId string `json:"connection_id"`
}

type HostChangedEvent struct {
	NewHostId string `json:"new_host_id"`
}

// PlayEvent always carries the instant the position was captured at, so
// viewers can extrapolate how far the host has progressed since.
type PlayEvent struct {
	Position  float64 `json:"position"`
	Timestamp int64   `json:"timestamp"`
}

type PauseEvent struct {
	Position float64 `json:"position"`
}

type SeekEvent struct {
	Position float64 `json:"position"`
}

type VideoChangedEvent struct {
	VideoId string `json:"video_id"`
}

type NewMessageEvent struct {
	Id        string `json:"id"`
	UserId    string `json:"user_id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type QueueUpdatedEvent struct {
	AddedItem *QueueItem  `json:"added_item,omitempty"`
	Queue     []QueueItem `json:"queue"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}
