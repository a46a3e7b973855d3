// internal/realtime/client.go
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrDestroyed is returned by every operation on a closed client.
	ErrDestroyed = errors.New("realtime client destroyed")
	// ErrInitFailed is returned when the transport could not be initialized at construction.
	ErrInitFailed = errors.New("realtime client failed to initialize")
)

// RoomHandlers receive lobby events from the room channel.
type RoomHandlers struct {
	OnParticipants func(ParticipantUpdate)
	OnRoom         func(RoomUpdate)
	OnWinStats     func(WinStatsUpdate)
}

// GameHandlers receive in-game events from the game channel.
type GameHandlers struct {
	OnGameState func(GameStateUpdate)
	OnGameEnded func(GameEnded)
}

// Options configures a Client. The zero value uses DefaultPolicy, wall-clock
// timers and the logrus standard logger.
type Options struct {
	Policy    Policy
	Scheduler Scheduler
	Logger    *logrus.Logger
	// OnStateChange is called after every connection state change, outside the
	// client's lock. Snapshots may arrive out of order; compare Version.
	OnStateChange func(ConnectionState)
}

// Client keeps the room and game channels of one room subscribed, reconnecting
// with bounded backoff when they fail.
//
// All transitions happen under mu. Deferred work (timers, transport callbacks)
// checks the lifecycle phase before touching state, so nothing acts after Close.
type Client struct {
	roomID    uuid.UUID
	transport Transport
	sched     Scheduler
	policy    Policy
	log       *logrus.Entry
	onState   func(ConnectionState)

	// ctx bounds transport reinitialization and is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	phase        Phase
	state        ConnectionState
	dirty        bool
	initErr      error
	attempts     int
	channels     [2]Channel
	gens         [2]uint64
	wanted       [2]bool
	roomHandlers RoomHandlers
	gameHandlers GameHandlers

	timers     map[uint64]Timer
	nextTimer  uint64
	retryTimer uint64 // pending reconnect timer, 0 if none
	// reconnecting is set between an attempt's unsubscribe and its resubscribe.
	reconnecting bool
	// epoch invalidates an in-flight reinitialization when bumped.
	epoch uint64
}

// NewClient initializes transport for roomID. A failed initialization is
// terminal: both channels report StateError and every subscribe call fails.
func NewClient(ctx context.Context, roomID uuid.UUID, transport Transport, opts Options) *Client {
	policy := opts.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}
	policy = policy.withDefaults()

	sched := opts.Scheduler
	if sched == nil {
		sched = wallScheduler{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Client{
		roomID:    roomID,
		transport: transport,
		sched:     sched,
		policy:    policy,
		log:       logger.WithField("room_id", roomID),
		onState:   opts.OnStateChange,
		state: ConnectionState{
			Room: StateDisconnected,
			Game: StateDisconnected,
		},
		timers: make(map[uint64]Timer),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	initCtx, cancel := context.WithTimeout(ctx, policy.SubscribeTimeout)
	err := transport.Connect(initCtx)
	cancel()
	if err != nil {
		c.mu.Lock()
		c.initErr = err
		c.setChannel(roomChannel, StateError)
		c.setChannel(gameChannel, StateError)
		c.setLastError(fmt.Sprintf("failed to initialize realtime client: %v", err))
		c.log.WithError(err).Error("realtime client initialization failed")
		c.unlockAndNotify()
	}
	return c
}

// RoomID returns the room this client is bound to.
func (c *Client) RoomID() uuid.UUID {
	return c.roomID
}

// State returns a snapshot of the connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the current reconnect attempt counter.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Phase returns the lifecycle phase.
func (c *Client) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// SubscribeToRoom registers h and subscribes the room channel if it is not
// already connected or connecting.
func (c *Client) SubscribeToRoom(h RoomHandlers) error {
	return c.subscribe(roomChannel, func() { c.roomHandlers = h })
}

// SubscribeToGame registers h and subscribes the game channel if it is not
// already connected or connecting.
func (c *Client) SubscribeToGame(h GameHandlers) error {
	return c.subscribe(gameChannel, func() { c.gameHandlers = h })
}

func (c *Client) subscribe(k channelKind, register func()) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	register()
	c.wanted[k] = true
	// a pending resubscribe picks the channel up once the transport settles
	if !c.reconnecting {
		switch c.stateOf(k) {
		case StateConnecting, StateConnected:
		default:
			c.subscribeLocked(k)
		}
	}
	c.unlockAndNotify()
	return nil
}

// HandleVisibilityChange is called when the page hosting the client is shown or
// hidden. Becoming visible resets the attempt counter and reconnects right away
// if a subscribed channel is not connected.
func (c *Client) HandleVisibilityChange(visible bool) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if visible {
		c.attempts = 0
		c.checkConnectionLocked()
	}
	c.unlockAndNotify()
	return nil
}

// ForceReconnect resets the attempt counter, drops every pending timer and
// subscription, and checks the connection again after Policy.ForceDelay.
func (c *Client) ForceReconnect() error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.log.Info("forcing realtime reconnect")
	c.attempts = 0
	c.epoch++
	c.stopTimersLocked()
	c.reconnecting = false
	_ = c.unsubscribeAllLocked()
	c.schedule(c.policy.ForceDelay, c.checkConnectionLocked)
	c.unlockAndNotify()
	return nil
}

// Close tears the client down. It is idempotent; after the first call every
// pending timer is stopped, both channels are unsubscribed and no deferred
// callback changes state again.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.phase == PhaseDestroyed {
		c.mu.Unlock()
		return nil
	}
	c.phase = PhaseDestroyed
	c.epoch++
	c.stopTimersLocked()
	c.cancel()
	c.reconnecting = false
	err := c.unsubscribeAllLocked()
	c.log.Debug("realtime client closed")
	c.unlockAndNotify()
	return err
}

func (c *Client) usableLocked() error {
	if c.phase == PhaseDestroyed {
		return ErrDestroyed
	}
	if c.initErr != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, c.initErr)
	}
	return nil
}

// subscribeLocked creates the channel if needed and issues a subscribe whose
// callbacks are tagged with a fresh generation.
func (c *Client) subscribeLocked(k channelKind) {
	if c.channels[k] == nil {
		c.channels[k] = c.transport.Channel(c.channelName(k))
	}
	c.gens[k]++
	gen := c.gens[k]
	c.setChannel(k, StateConnecting)
	c.log.WithField("channel", c.channelName(k)).Debug("subscribing")

	c.channels[k].Subscribe(
		func(data []byte) { c.handlePayload(k, gen, data) },
		func(status Status, err error) { c.handleStatus(k, gen, status, err) },
	)
}

func (c *Client) unsubscribeAllLocked() error {
	var errs []error
	for i := range c.channels {
		k := channelKind(i)
		ch := c.channels[k]
		if ch == nil {
			continue
		}
		c.gens[k]++
		c.channels[k] = nil
		if err := ch.Unsubscribe(); err != nil {
			c.log.WithError(err).WithField("channel", c.channelName(k)).Warn("unsubscribe failed")
			errs = append(errs, err)
		}
		c.setChannel(k, StateDisconnected)
	}
	return errors.Join(errs...)
}

func (c *Client) handleStatus(k channelKind, gen uint64, status Status, err error) {
	c.mu.Lock()
	if c.phase == PhaseDestroyed || gen != c.gens[k] {
		c.mu.Unlock()
		return
	}

	entry := c.log.WithFields(logrus.Fields{"channel": c.channelName(k), "status": status})
	switch status {
	case StatusSubscribed:
		c.setChannel(k, StateConnected)
		// attempts reset only once every wanted channel is up
		if c.allWantedConnectedLocked() {
			c.attempts = 0
			c.setLastError("")
		}
		entry.Debug("channel subscribed")
	default:
		c.setChannel(k, StateError)
		msg := fmt.Sprintf("%s channel: %s", k, status)
		if err != nil {
			msg = fmt.Sprintf("%s: %v", msg, err)
		}
		c.setLastError(msg)
		entry.WithError(err).Warn("channel failed")

		if c.attempts < c.policy.AutoRetryLimit && c.retryTimer == 0 && !c.reconnecting {
			c.retryTimer = c.schedule(c.policy.RetryDelay, c.retryLocked)
		}
	}
	c.unlockAndNotify()
}

func (c *Client) handlePayload(k channelKind, gen uint64, data []byte) {
	c.mu.Lock()
	if c.phase == PhaseDestroyed || gen != c.gens[k] {
		c.mu.Unlock()
		return
	}
	rh, gh := c.roomHandlers, c.gameHandlers
	c.mu.Unlock()

	m, err := Decode(data)
	if err != nil {
		c.log.WithError(err).WithField("channel", c.channelName(k)).Warn("dropping broadcast")
		return
	}
	if channelFor(m.Kind()) != k {
		c.log.WithFields(logrus.Fields{"channel": c.channelName(k), "kind": m.Kind()}).Warn("dropping broadcast sent on the wrong channel")
		return
	}
	dispatch(m, rh, gh)
}

func dispatch(m Message, rh RoomHandlers, gh GameHandlers) {
	switch v := m.(type) {
	case ParticipantUpdate:
		if rh.OnParticipants != nil {
			rh.OnParticipants(v)
		}
	case RoomUpdate:
		if rh.OnRoom != nil {
			rh.OnRoom(v)
		}
	case WinStatsUpdate:
		if rh.OnWinStats != nil {
			rh.OnWinStats(v)
		}
	case GameStateUpdate:
		if gh.OnGameState != nil {
			gh.OnGameState(v)
		}
	case GameEnded:
		if gh.OnGameEnded != nil {
			gh.OnGameEnded(v)
		}
	}
}

func (c *Client) retryLocked() {
	c.retryTimer = 0
	c.attemptReconnectLocked()
}

// checkConnectionLocked starts an attempt if a subscribed channel is not connected.
func (c *Client) checkConnectionLocked() {
	if c.reconnecting || c.allWantedConnectedLocked() {
		return
	}
	if c.retryTimer != 0 {
		c.stopTimerLocked(c.retryTimer)
		c.retryTimer = 0
	}
	c.attemptReconnectLocked()
}

func (c *Client) attemptReconnectLocked() {
	if c.attempts >= c.policy.MaxAttempts {
		c.reconnecting = false
		c.setChannel(roomChannel, StateError)
		c.setChannel(gameChannel, StateError)
		c.setLastError(fmt.Sprintf("giving up after %d reconnect attempts", c.attempts))
		c.log.WithField("attempts", c.attempts).Warn("realtime reconnect abandoned")
		return
	}

	c.attempts++
	c.reconnecting = true
	c.log.WithField("attempt", c.attempts).Info("reconnecting realtime channels")
	_ = c.unsubscribeAllLocked()
	c.schedule(c.policy.SettleDelay, c.reinitLocked)
}

// reinitLocked reconnects the transport and resubscribes the wanted channels.
// mu is released while the transport connects.
func (c *Client) reinitLocked() {
	epoch := c.epoch
	c.mu.Unlock()
	ctx, cancel := context.WithTimeout(c.ctx, c.policy.SubscribeTimeout)
	err := c.transport.Connect(ctx)
	cancel()
	c.mu.Lock()

	if c.phase == PhaseDestroyed || epoch != c.epoch {
		return
	}
	c.reconnecting = false

	if err != nil {
		for i, want := range c.wanted {
			if want {
				c.setChannel(channelKind(i), StateError)
			}
		}
		c.setLastError(fmt.Sprintf("reconnect attempt %d failed: %v", c.attempts, err))
		delay := c.policy.Backoff(c.attempts)
		c.log.WithError(err).WithFields(logrus.Fields{"attempt": c.attempts, "retry_in": delay}).Warn("realtime reinitialization failed")
		c.retryTimer = c.schedule(delay, c.retryLocked)
		return
	}

	for i, want := range c.wanted {
		if want {
			c.subscribeLocked(channelKind(i))
		}
	}
}

// schedule runs fn with mu held after d, unless the client is closed or the
// timer is stopped first.
func (c *Client) schedule(d time.Duration, fn func()) uint64 {
	c.nextTimer++
	id := c.nextTimer
	c.timers[id] = c.sched.AfterFunc(d, func() { c.fire(id, fn) })
	return id
}

func (c *Client) fire(id uint64, fn func()) {
	c.mu.Lock()
	if c.phase == PhaseDestroyed {
		c.mu.Unlock()
		return
	}
	if _, ok := c.timers[id]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.timers, id)
	fn()
	c.unlockAndNotify()
}

func (c *Client) stopTimerLocked(id uint64) {
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Client) stopTimersLocked() {
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.retryTimer = 0
}

func (c *Client) allWantedConnectedLocked() bool {
	for i, want := range c.wanted {
		if want && c.stateOf(channelKind(i)) != StateConnected {
			return false
		}
	}
	return true
}

func (c *Client) channelName(k channelKind) string {
	if k == gameChannel {
		return GameChannel(c.roomID)
	}
	return RoomChannel(c.roomID)
}

func (c *Client) stateOf(k channelKind) ChannelState {
	if k == gameChannel {
		return c.state.Game
	}
	return c.state.Room
}

func (c *Client) setChannel(k channelKind, s ChannelState) {
	cur := &c.state.Room
	if k == gameChannel {
		cur = &c.state.Game
	}
	if *cur == s {
		return
	}
	*cur = s
	c.touch()
}

func (c *Client) setLastError(msg string) {
	if c.state.LastError == msg {
		return
	}
	c.state.LastError = msg
	c.touch()
}

func (c *Client) touch() {
	c.state.Version++
	c.dirty = true
}

// unlockAndNotify releases mu and reports the state to the listener if it changed.
func (c *Client) unlockAndNotify() {
	notify := c.dirty && c.onState != nil
	snapshot := c.state
	c.dirty = false
	c.mu.Unlock()
	if notify {
		c.onState(snapshot)
	}
}
