// Package player defines the capability a video widget must expose to the
// playback synchronization code. The widget itself lives outside this module;
// anything bridging one in implements Player.
package player

// State mirrors the widget's playback lifecycle.
type State int

const (
	StateUnstarted State = iota
	StatePlaying
	StatePaused
	StateBuffering
	StateEnded
	StateCued
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateEnded:
		return "ended"
	case StateCued:
		return "cued"
	default:
		return "unknown"
	}
}

// Player is an opaque playback handle. Every method can fail once the
// underlying widget is torn down; callers are expected to stop driving the
// handle at the first error instead of retrying.
//
// Play in particular fails when the platform's autoplay policy blocks
// unmuted playback without a user gesture.
type Player interface {
	SeekTo(seconds float64, allowSeekAhead bool) error
	Play() error
	Pause() error
	CurrentTime() (float64, error)
	State() State
	// SetPlaybackRate adjusts playback speed, 1.0 being normal.
	SetPlaybackRate(rate float64) error
	LoadVideo(videoId string) error
	CueVideo(videoId string) error
}
