package playback

import (
	"time"

	"github.com/syncroom/server/internal/client/player"
)

// fakePlayer records every command the algorithms issue. Setting failErr
// makes every method fail, simulating a torn-down widget handle.
type fakePlayer struct {
	pos     float64
	state   player.State
	rate    float64
	playErr error
	failErr error

	seeks  []float64
	played int
	paused int
	rates  []float64
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{state: player.StatePlaying, rate: 1.0}
}

func (p *fakePlayer) SeekTo(seconds float64, _ bool) error {
	if p.failErr != nil {
		return p.failErr
	}
	p.seeks = append(p.seeks, seconds)
	p.pos = seconds
	return nil
}

func (p *fakePlayer) Play() error {
	if p.failErr != nil {
		return p.failErr
	}
	if p.playErr != nil {
		return p.playErr
	}
	p.played++
	p.state = player.StatePlaying
	return nil
}

func (p *fakePlayer) Pause() error {
	if p.failErr != nil {
		return p.failErr
	}
	p.paused++
	p.state = player.StatePaused
	return nil
}

func (p *fakePlayer) CurrentTime() (float64, error) {
	if p.failErr != nil {
		return 0, p.failErr
	}
	return p.pos, nil
}

func (p *fakePlayer) State() player.State {
	return p.state
}

func (p *fakePlayer) SetPlaybackRate(rate float64) error {
	if p.failErr != nil {
		return p.failErr
	}
	p.rates = append(p.rates, rate)
	p.rate = rate
	return nil
}

func (p *fakePlayer) LoadVideo(string) error { return p.failErr }
func (p *fakePlayer) CueVideo(string) error  { return p.failErr }

type sentPlay struct {
	position  float64
	timestamp time.Time
}

type sentState struct {
	position  float64
	isPlaying bool
}

// recorderSender captures upstream commands instead of sending them.
type recorderSender struct {
	plays  []sentPlay
	pauses []float64
	seeks  []float64
	states []sentState
	err    error
}

func (s *recorderSender) SendPlay(position float64, timestamp time.Time) error {
	s.plays = append(s.plays, sentPlay{position: position, timestamp: timestamp})
	return s.err
}

func (s *recorderSender) SendPause(position float64) error {
	s.pauses = append(s.pauses, position)
	return s.err
}

func (s *recorderSender) SendSeek(position float64) error {
	s.seeks = append(s.seeks, position)
	return s.err
}

func (s *recorderSender) SendStateChange(position float64, isPlaying bool) error {
	s.states = append(s.states, sentState{position: position, isPlaying: isPlaying})
	return s.err
}
