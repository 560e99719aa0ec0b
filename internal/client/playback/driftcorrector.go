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
	defaultTickInterval = 2 * time.Second

	// Correction tiers, in seconds of drift. Below minor playback is left
	// alone. Between minor and major a temporary rate change converges
	// without a visible jump. At major and above only a hard seek is fast
	// enough, and emergency bounds worst-case desync on any device.
	defaultMinorThreshold     = 1.0
	defaultMajorThreshold     = 2.0
	defaultEmergencyThreshold = 10.0

	slowRate = 0.9
	fastRate = 1.1

	// The nudge runs for driftx4 capped at maxNudge. A 0.1x rate offset
	// does not fully recover the drift in that window; the remainder is
	// picked up by later ticks, or escalates to a hard seek if it grows.
	nudgeSecondsPerDriftSecond = 4
	maxNudge                   = 8 * time.Second
)

type DriftCorrectorConfig struct {
	TickInterval       time.Duration
	MinorThreshold     float64
	MajorThreshold     float64
	EmergencyThreshold float64
}

// DriftCorrector runs on every viewer. It keeps a reference tuple of where
// the host's timeline was at a known instant, and on a periodic tick nudges
// or hard-seeks local playback toward the extrapolated host position.
//
// Any playback handle error stops correction for good; broken correction must
// degrade to unsynchronized playback, never take playback down with it.
type DriftCorrector struct {
	player player.Player
	clock  clockwork.Clock
	logger *slog.Logger

	tickInterval       time.Duration
	minorThreshold     float64
	majorThreshold     float64
	emergencyThreshold float64

	mu        sync.Mutex
	refPos    float64
	refAt     time.Time
	hasRef    bool
	isPlaying bool
	// needsManualStart is set when the platform's autoplay policy rejects
	// Play; the UI must offer a gesture that calls Resume.
	needsManualStart bool
	nudging          bool
	nudgeTimer       clockwork.Timer
	stopped          bool
}

func NewDriftCorrector(p player.Player, clock clockwork.Clock, logger *slog.Logger, cfg *DriftCorrectorConfig) *DriftCorrector {
	c := &DriftCorrector{
		player:             p,
		clock:              clock,
		logger:             logger,
		tickInterval:       defaultTickInterval,
		minorThreshold:     defaultMinorThreshold,
		majorThreshold:     defaultMajorThreshold,
		emergencyThreshold: defaultEmergencyThreshold,
	}
	if cfg != nil {
		if cfg.TickInterval > 0 {
			c.tickInterval = cfg.TickInterval
		}
		if cfg.MinorThreshold > 0 {
			c.minorThreshold = cfg.MinorThreshold
		}
		if cfg.MajorThreshold > 0 {
			c.majorThreshold = cfg.MajorThreshold
		}
		if cfg.EmergencyThreshold > 0 {
			c.emergencyThreshold = cfg.EmergencyThreshold
		}
	}

	return c
}

// Run corrects drift until ctx is cancelled or Stop is called.
func (c *DriftCorrector) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !c.tick(ctx) {
				return
			}
		}
	}
}

// Stop cancels any pending rate reversion and prevents any further use of the
// playback handle.
func (c *DriftCorrector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.cancelNudgeLocked()
}

// NeedsManualStart reports whether playback is blocked on a user gesture.
func (c *DriftCorrector) NeedsManualStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needsManualStart
}

// Resume is the user gesture that unblocks autoplay-rejected playback.
func (c *DriftCorrector) Resume(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || !c.needsManualStart {
		return
	}

	if err := c.player.Play(); err != nil {
		c.logger.WarnContext(ctx, "manual start rejected", "error", err)
		return
	}
	c.needsManualStart = false
}

// OnPlay handles a play event from the server. The timestamp is the instant
// the host captured the position, so the viewer seeks to where the host
// already is by the time the event arrives.
func (c *DriftCorrector) OnPlay(ctx context.Context, position float64, timestamp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	now := c.clock.Now()
	if timestamp.IsZero() || timestamp.After(now) {
		timestamp = now
	}

	c.refPos = position
	c.refAt = timestamp
	c.hasRef = true
	c.isPlaying = true
	c.cancelNudgeLocked()

	target := position + now.Sub(timestamp).Seconds()
	if err := c.player.SeekTo(target, true); err != nil {
		c.degradeLocked(ctx, "seek on play", err)
		return
	}
	if err := c.player.Play(); err != nil {
		c.needsManualStart = true
		c.logger.InfoContext(ctx, "autoplay blocked, waiting for user gesture", "error", err)
		return
	}
	// a later play event can succeed where an earlier one was blocked;
	// the tap-to-sync affordance must not outlive the block
	c.needsManualStart = false
}

// OnPause handles a pause event: paused playback sits at an exact position,
// so no reference extrapolation applies until the next play.
func (c *DriftCorrector) OnPause(ctx context.Context, position float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	c.refPos = position
	c.refAt = c.clock.Now()
	c.hasRef = true
	c.isPlaying = false
	c.cancelNudgeLocked()

	if err := c.player.Pause(); err != nil {
		c.degradeLocked(ctx, "pause", err)
		return
	}
	if err := c.player.SeekTo(position, true); err != nil {
		c.degradeLocked(ctx, "seek on pause", err)
	}
}

// OnSeek handles a discrete seek event from the host.
func (c *DriftCorrector) OnSeek(ctx context.Context, position float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	c.refPos = position
	c.refAt = c.clock.Now()
	c.hasRef = true
	c.cancelNudgeLocked()

	if err := c.player.SeekTo(position, true); err != nil {
		c.degradeLocked(ctx, "seek", err)
	}
}

// OnSyncState refreshes the reference from a coalesced checkpoint broadcast.
// lastUpdate is milliseconds since epoch.
func (c *DriftCorrector) OnSyncState(position float64, isPlaying bool, lastUpdate int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	refAt := time.UnixMilli(lastUpdate)
	if lastUpdate == 0 || refAt.After(c.clock.Now()) {
		refAt = c.clock.Now()
	}

	c.refPos = position
	c.refAt = refAt
	c.hasRef = true
	c.isPlaying = isPlaying
}

// OnVideoChanged drops all tracking state for the previous video.
func (c *DriftCorrector) OnVideoChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hasRef = false
	c.isPlaying = false
	c.needsManualStart = false
	c.cancelNudgeLocked()
}

func (c *DriftCorrector) tick(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return false
	}
	if !c.hasRef || !c.isPlaying || c.needsManualStart || c.nudging {
		return true
	}
	if c.player.State() != player.StatePlaying {
		return true
	}

	local, err := c.player.CurrentTime()
	if err != nil {
		c.degradeLocked(ctx, "read position", err)
		return false
	}

	expected := c.refPos + c.clock.Now().Sub(c.refAt).Seconds()
	drift := local - expected

	switch abs := math.Abs(drift); {
	case abs < c.minorThreshold:
	case abs >= c.emergencyThreshold:
		c.logger.WarnContext(ctx, "emergency resync", "drift", drift)
		if err := c.player.SeekTo(expected, true); err != nil {
			c.degradeLocked(ctx, "corrective seek", err)
			return false
		}
	case abs >= c.majorThreshold:
		if err := c.player.SeekTo(expected, true); err != nil {
			c.degradeLocked(ctx, "corrective seek", err)
			return false
		}
	default:
		rate := fastRate
		if drift > 0 {
			rate = slowRate
		}
		if err := c.player.SetPlaybackRate(rate); err != nil {
			c.degradeLocked(ctx, "rate nudge", err)
			return false
		}

		dur := time.Duration(abs*nudgeSecondsPerDriftSecond) * time.Second
		if dur > maxNudge {
			dur = maxNudge
		}

		c.nudging = true
		c.nudgeTimer = c.clock.AfterFunc(dur, func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			c.nudging = false
			if c.stopped {
				return
			}
			if err := c.player.SetPlaybackRate(1.0); err != nil {
				c.degradeLocked(ctx, "rate restore", err)
			}
		})
	}

	return true
}

func (c *DriftCorrector) cancelNudgeLocked() {
	if c.nudgeTimer != nil {
		c.nudgeTimer.Stop()
		c.nudgeTimer = nil
	}
	if c.nudging {
		c.nudging = false
		if !c.stopped {
			// best effort; the handle may already be gone
			if err := c.player.SetPlaybackRate(1.0); err != nil {
				c.stopped = true
			}
		}
	}
}

func (c *DriftCorrector) degradeLocked(ctx context.Context, op string, err error) {
	c.logger.WarnContext(ctx, "playback handle failed, stopping drift correction", "op", op, "error", err)
	c.stopped = true
	c.cancelNudgeLocked()
}
