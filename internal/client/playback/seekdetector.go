package playback

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/syncroom/server/internal/client/player"
)

const (
	defaultPollInterval  = 500 * time.Millisecond
	defaultSeekThreshold = 2.0
	// defaultPauseGate filters the spurious pause the widget reports when
	// autoplay stalls right after a play. A real user pause inside this
	// window is lost, which beats pausing every viewer on a buffer hiccup.
	defaultPauseGate = 2 * time.Second
)

type SeekDetectorConfig struct {
	PollInterval  time.Duration
	SeekThreshold float64
	PauseGate     time.Duration
}

// SeekDetector runs on the host. It polls the local playback position and
// infers a manual scrub when the position jumps farther than normal playback
// could move it in one poll interval. It also translates widget state
// transitions into play/pause commands and reports the position each tick so
// the server can refresh its checkpoint.
type SeekDetector struct {
	player player.Player
	sender Sender
	clock  clockwork.Clock
	logger *slog.Logger

	pollInterval  time.Duration
	seekThreshold float64
	pauseGate     time.Duration

	mu      sync.Mutex
	prevPos float64
	// skipTick drops seek detection on the tick right after a play, pause
	// or buffering transition, where a position jump is not a scrub.
	skipTick bool
	// suppressed counts self-generated widget notifications still in
	// flight. Commands the host applied locally echo back as state
	// changes; a counter survives two overlapping commands where a bare
	// flag would not.
	suppressed int
	lastPlayAt time.Time
	stopped    bool
}

func NewSeekDetector(p player.Player, sender Sender, clock clockwork.Clock, logger *slog.Logger, cfg *SeekDetectorConfig) *SeekDetector {
	d := &SeekDetector{
		player:        p,
		sender:        sender,
		clock:         clock,
		logger:        logger,
		pollInterval:  defaultPollInterval,
		seekThreshold: defaultSeekThreshold,
		pauseGate:     defaultPauseGate,
	}
	if cfg != nil {
		if cfg.PollInterval > 0 {
			d.pollInterval = cfg.PollInterval
		}
		if cfg.SeekThreshold > 0 {
			d.seekThreshold = cfg.SeekThreshold
		}
		if cfg.PauseGate > 0 {
			d.pauseGate = cfg.PauseGate
		}
	}

	// seed the baseline so attaching mid-video does not read as a scrub
	if pos, err := p.CurrentTime(); err == nil {
		d.prevPos = pos
	}

	return d
}

// Run polls until ctx is cancelled or Stop is called.
func (d *SeekDetector) Run(ctx context.Context) {
	ticker := d.clock.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !d.tick(ctx) {
				return
			}
		}
	}
}

// Stop prevents any further use of the playback handle. Safe to call more
// than once.
func (d *SeekDetector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
}

// Suppress tells the detector to ignore the next n widget notifications,
// which are echoes of commands this client already applied.
func (d *SeekDetector) Suppress(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suppressed += n
}

func (d *SeekDetector) tick(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}

	pos, err := d.player.CurrentTime()
	if err != nil {
		d.logger.WarnContext(ctx, "playback handle lost, stopping seek detection", "error", err)
		d.stopped = true
		return false
	}

	jumped := math.Abs(pos-d.prevPos) > d.seekThreshold
	if jumped && !d.skipTick {
		if err := d.sender.SendSeek(pos); err != nil {
			d.logger.WarnContext(ctx, "failed to send seek", "error", err)
		}
	}

	// prevPos advances even when no seek fired, so one jump is reported
	// once instead of every tick after it.
	d.prevPos = pos
	d.skipTick = false

	isPlaying := d.player.State() == player.StatePlaying
	if err := d.sender.SendStateChange(pos, isPlaying); err != nil {
		d.logger.WarnContext(ctx, "failed to send state change", "error", err)
	}

	return true
}

// HandlePlayerStateChange receives widget transition notifications and turns
// host-initiated ones into upstream play/pause commands.
func (d *SeekDetector) HandlePlayerStateChange(ctx context.Context, state player.State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if d.suppressed > 0 {
		d.suppressed--
		d.skipTick = true
		return
	}

	switch state {
	case player.StatePlaying:
		d.skipTick = true
		now := d.clock.Now()
		d.lastPlayAt = now

		pos, err := d.player.CurrentTime()
		if err != nil {
			d.logger.WarnContext(ctx, "playback handle lost on play", "error", err)
			d.stopped = true
			return
		}
		if err := d.sender.SendPlay(pos, now); err != nil {
			d.logger.WarnContext(ctx, "failed to send play", "error", err)
		}
	case player.StatePaused:
		d.skipTick = true
		if !d.lastPlayAt.IsZero() && d.clock.Since(d.lastPlayAt) < d.pauseGate {
			return
		}

		pos, err := d.player.CurrentTime()
		if err != nil {
			d.logger.WarnContext(ctx, "playback handle lost on pause", "error", err)
			d.stopped = true
			return
		}
		if err := d.sender.SendPause(pos); err != nil {
			d.logger.WarnContext(ctx, "failed to send pause", "error", err)
		}
	case player.StateBuffering:
		d.skipTick = true
	}
}
