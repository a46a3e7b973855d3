package realtime

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// manualScheduler records timers and fires them only when a test asks.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) pending() []*manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fireOnly asserts exactly one timer is pending, fires it and returns its delay.
func (s *manualScheduler) fireOnly(t *testing.T) time.Duration {
	t.Helper()
	p := s.pending()
	require.Len(t, p, 1, "expected exactly one pending timer")
	p[0].fired = true
	p[0].f()
	return p[0].d
}

type fakeTransport struct {
	mu         sync.Mutex
	connectErr error
	connects   int
	channels   map[string][]*fakeChannel
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{channels: make(map[string][]*fakeChannel)}
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeTransport) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func (f *fakeTransport) Channel(name string) Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := &fakeChannel{name: name}
	f.channels[name] = append(f.channels[name], ch)
	return ch
}

// last returns the most recently created handle for name.
func (f *fakeTransport) last(t *testing.T, name string) *fakeChannel {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	chs := f.channels[name]
	require.NotEmpty(t, chs, "no channel created for %s", name)
	return chs[len(chs)-1]
}

func (f *fakeTransport) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels[name])
}

type fakeChannel struct {
	mu           sync.Mutex
	name         string
	subs         []fakeSub
	unsubscribed int
}

type fakeSub struct {
	onPayload func([]byte)
	onStatus  StatusFunc
}

func (c *fakeChannel) Subscribe(onPayload func([]byte), onStatus StatusFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fakeSub{onPayload: onPayload, onStatus: onStatus})
}

func (c *fakeChannel) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed++
	return nil
}

func (c *fakeChannel) sub(t *testing.T) fakeSub {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.subs, "channel %s was never subscribed", c.name)
	return c.subs[len(c.subs)-1]
}

func (c *fakeChannel) ack(t *testing.T, status Status, err error) {
	t.Helper()
	c.sub(t).onStatus(status, err)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
