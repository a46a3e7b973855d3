package realtime

import "time"

// Policy holds every timing and retry parameter of the reconnect state machine.
type Policy struct {
	// MaxAttempts caps reconnect attempts; reaching it is terminal until a
	// visibility change or ForceReconnect resets the counter.
	MaxAttempts int
	// AutoRetryLimit is how many attempts a channel error may trigger on its own.
	AutoRetryLimit int
	// RetryDelay is the fixed wait between a channel error and the reconnect it schedules.
	RetryDelay time.Duration
	// BaseDelay and MaxDelay shape the linear backoff used after a failed reinitialization.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// SettleDelay is the pause between unsubscribing and resubscribing.
	SettleDelay time.Duration
	// ForceDelay is the pause between ForceReconnect and its connection check.
	ForceDelay time.Duration
	// SubscribeTimeout bounds a single subscribe acknowledgment or reinitialization.
	SubscribeTimeout time.Duration
}

// DefaultPolicy returns the production reconnect policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      5,
		AutoRetryLimit:   2,
		RetryDelay:       2 * time.Second,
		BaseDelay:        5 * time.Second,
		MaxDelay:         60 * time.Second,
		SettleDelay:      time.Second,
		ForceDelay:       500 * time.Millisecond,
		SubscribeTimeout: 10 * time.Second,
	}
}

// Backoff returns min(BaseDelay*attempt, MaxDelay).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay * time.Duration(attempt)
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.AutoRetryLimit < 0 {
		p.AutoRetryLimit = 0
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = def.RetryDelay
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.SettleDelay <= 0 {
		p.SettleDelay = def.SettleDelay
	}
	if p.ForceDelay <= 0 {
		p.ForceDelay = def.ForceDelay
	}
	if p.SubscribeTimeout <= 0 {
		p.SubscribeTimeout = def.SubscribeTimeout
	}
	return p
}
