package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/wagate/pkg/config"
	"github.com/wagate/pkg/utils"
)

const (
	ReasonCooldown  = "cooldown active"
	ReasonHourLimit = "hourly rate limit reached"
	ReasonDayLimit  = "daily rate limit reached"
)

// Decision is the admission verdict for one prospective send.
type Decision struct {
	CanSend bool
	DelayMs int64
	Reason  string
}

type Limiter struct {
	cfg   config.RateLimit
	repo  Repository
	clock utils.Clock
	rng   utils.Rand

	// Per-session serialization of the get-then-save cycle.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLimiter(cfg config.RateLimit, repo Repository, clock utils.Clock, rng utils.Rand) *Limiter {
	return &Limiter{
		cfg:   cfg,
		repo:  repo,
		clock: clock,
		rng:   rng,
		locks: make(map[string]*sync.Mutex),
	}
}

func (l *Limiter) sessionLock(sessionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[sessionID] = lock
	}
	return lock
}

// Check decides whether the session may send now. The returned delay is
// either the mandatory wait on denial or the adaptive pacing delay on
// admission.
func (l *Limiter) Check(ctx context.Context, sessionID string) (Decision, error) {
	lock := l.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	bucket, err := l.repo.GetOrCreate(ctx, sessionID)
	if err != nil {
		return Decision{}, err
	}

	now := l.clock.Now()

	// Refresh expired windows before judging.
	changed := false
	if bucket.LastSentAt != nil {
		if now.Sub(*bucket.LastSentAt) >= time.Hour && bucket.MessagesSentHour > 0 {
			bucket.MessagesSentHour = 0
			changed = true
		}
		if now.Sub(*bucket.LastSentAt) >= 24*time.Hour && bucket.MessagesSentDay > 0 {
			bucket.MessagesSentDay = 0
			changed = true
		}
	}
	if bucket.CooldownUntil != nil && !now.Before(*bucket.CooldownUntil) {
		bucket.CooldownUntil = nil
		changed = true
	}
	if changed {
		if err := l.repo.Save(ctx, &bucket); err != nil {
			return Decision{}, err
		}
	}

	if bucket.CooldownUntil != nil {
		return Decision{CanSend: false, DelayMs: bucket.CooldownUntil.Sub(now).Milliseconds(), Reason: ReasonCooldown}, nil
	}
	if bucket.MessagesSentHour >= l.cfg.MessagesPerHour {
		return Decision{CanSend: false, DelayMs: time.Hour.Milliseconds(), Reason: ReasonHourLimit}, nil
	}
	if bucket.MessagesSentDay >= l.cfg.MessagesPerDay {
		return Decision{CanSend: false, DelayMs: (24 * time.Hour).Milliseconds(), Reason: ReasonDayLimit}, nil
	}

	return Decision{CanSend: true, DelayMs: l.adaptiveDelayMs(bucket.MessagesSentHour)}, nil
}

// adaptiveDelayMs scales the pacing delay with hourly load and applies
// ±20% jitter, clamped to the configured envelope.
func (l *Limiter) adaptiveDelayMs(hourCount int) int64 {
	min := float64(l.cfg.MinDelayMs)
	max := float64(l.cfg.MaxDelayMs)
	load := float64(hourCount) / float64(l.cfg.MessagesPerHour)

	base := min + (max-min)*load
	jitter := 1 + (l.rng.Float64()*0.4 - 0.2)
	delay := base * jitter

	if delay < min {
		delay = min
	}
	if delay > max {
		delay = max
	}
	return int64(delay)
}

// RecordSent accounts one completed send and arms the cooldown once the
// hourly volume crosses the configured threshold.
func (l *Limiter) RecordSent(ctx context.Context, sessionID string) error {
	lock := l.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	bucket, err := l.repo.GetOrCreate(ctx, sessionID)
	if err != nil {
		return err
	}

	now := l.clock.Now()
	bucket.MessagesSentHour++
	bucket.MessagesSentDay++
	bucket.LastSentAt = &now

	if bucket.MessagesSentHour >= l.cfg.CooldownAfterMessages {
		until := now.Add(time.Duration(l.cfg.CooldownDurationMs) * time.Millisecond)
		bucket.CooldownUntil = &until
	}

	return l.repo.Save(ctx, &bucket)
}
