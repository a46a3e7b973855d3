package realtime

import (
	"context"
	"time"
)

// Status is the acknowledgment a channel reports for a subscribe request.
type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
	StatusClosed       Status = "CLOSED"
)

// StatusFunc receives subscribe acknowledgments and later failures of a subscription.
type StatusFunc func(status Status, err error)

// Transport is the pub/sub backend a Client talks to.
type Transport interface {
	// Connect (re)initializes the underlying connection.
	Connect(ctx context.Context) error
	// Channel returns a handle for the named channel. No network traffic happens
	// until Subscribe is called.
	Channel(name string) Channel
}

// Channel is one named pub/sub topic.
//
// Subscribe must return without invoking either callback; acknowledgments and
// payloads are delivered later from the transport's own goroutine, one at a time
// per subscription.
type Channel interface {
	Subscribe(onPayload func([]byte), onStatus StatusFunc)
	Unsubscribe() error
}

// Timer is a pending scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler creates timers. Tests substitute a manual implementation.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
