// Package playback holds the two client-side synchronization algorithms: the
// host's seek detector, which turns local scrubs into upstream commands, and
// the viewer's drift corrector, which keeps local playback converged on the
// host's timeline.
package playback

import "time"

// Sender carries host commands upstream. The room connection implements it;
// tests substitute a recorder.
type Sender interface {
	SendPlay(position float64, timestamp time.Time) error
	SendPause(position float64) error
	SendSeek(position float64) error
	SendStateChange(position float64, isPlaying bool) error
}
