// internal/realtime/redis.go
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// defaultHealthInterval is how long a subscription may stay silent before it is pinged.
const defaultHealthInterval = 30 * time.Second

// RedisTransport implements Transport on Redis PUBLISH/SUBSCRIBE.
// The *redis.Client is shared; one RedisTransport may serve many Clients.
type RedisTransport struct {
	rdb              *redis.Client
	log              *logrus.Logger
	subscribeTimeout time.Duration
	healthInterval   time.Duration
}

// NewRedisTransport wraps rdb. subscribeTimeout bounds the wait for a SUBSCRIBE
// acknowledgment; zero uses the default policy's value.
func NewRedisTransport(rdb *redis.Client, logger *logrus.Logger, subscribeTimeout time.Duration) *RedisTransport {
	if subscribeTimeout <= 0 {
		subscribeTimeout = DefaultPolicy().SubscribeTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisTransport{
		rdb:              rdb,
		log:              logger,
		subscribeTimeout: subscribeTimeout,
		healthInterval:   defaultHealthInterval,
	}
}

// Connect checks the broker is reachable.
func (t *RedisTransport) Connect(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}

// Channel returns a handle on the named Redis channel.
func (t *RedisTransport) Channel(name string) Channel {
	return &redisChannel{t: t, name: name}
}

type redisChannel struct {
	t    *RedisTransport
	name string

	mu     sync.Mutex
	ps     *redis.PubSub
	cancel context.CancelFunc
}

// Subscribe starts a SUBSCRIBE in the background. The first reply is reported
// through onStatus; payloads follow on the same goroutine.
func (c *redisChannel) Subscribe(onPayload func([]byte), onStatus StatusFunc) {
	c.mu.Lock()
	c.closeLocked()
	ctx, cancel := context.WithCancel(context.Background())
	// without channels no command is sent, so nothing dials here
	ps := c.t.rdb.Subscribe(ctx)
	c.ps, c.cancel = ps, cancel
	c.mu.Unlock()

	go c.run(ctx, ps, onPayload, onStatus)
}

// Unsubscribe closes the subscription. The run goroutine exits without
// reporting a status.
func (c *redisChannel) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *redisChannel) closeLocked() error {
	if c.ps == nil {
		return nil
	}
	c.cancel()
	err := c.ps.Close()
	c.ps, c.cancel = nil, nil
	return err
}

// fail closes ps if it is still the live subscription and reports status.
func (c *redisChannel) fail(ctx context.Context, ps *redis.PubSub, onStatus StatusFunc, status Status, err error) {
	c.mu.Lock()
	if c.ps == ps {
		if cerr := c.closeLocked(); cerr != nil {
			c.t.log.WithError(cerr).WithField("channel", c.name).Debug("closing failed subscription")
		}
	}
	c.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	onStatus(status, err)
}

func (c *redisChannel) run(ctx context.Context, ps *redis.PubSub, onPayload func([]byte), onStatus StatusFunc) {
	ackCtx, cancel := context.WithTimeout(ctx, c.t.subscribeTimeout)
	err := ps.Subscribe(ackCtx, c.name)
	var reply interface{}
	if err == nil {
		reply, err = ps.Receive(ackCtx)
	}
	cancel()
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if isTimeout(err) {
			c.fail(ctx, ps, onStatus, StatusTimedOut, err)
		} else {
			c.fail(ctx, ps, onStatus, StatusChannelError, err)
		}
		return
	}
	if _, ok := reply.(*redis.Subscription); !ok {
		c.fail(ctx, ps, onStatus, StatusChannelError, fmt.Errorf("unexpected subscribe reply %T", reply))
		return
	}
	onStatus(StatusSubscribed, nil)

	// A silent subscription is pinged; a ping left unanswered for another
	// interval, or any receive error, ends it.
	pinged := false
	for {
		msg, err := ps.ReceiveTimeout(ctx, c.t.healthInterval)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !isTimeout(err) {
				c.fail(ctx, ps, onStatus, StatusChannelError, err)
				return
			}
			if pinged {
				c.fail(ctx, ps, onStatus, StatusTimedOut, errors.New("health ping unanswered"))
				return
			}
			if err := ps.Ping(ctx); err != nil {
				c.fail(ctx, ps, onStatus, StatusChannelError, err)
				return
			}
			pinged = true
			continue
		}
		pinged = false

		switch m := msg.(type) {
		case *redis.Message:
			onPayload([]byte(m.Payload))
		case *redis.Subscription:
			if m.Kind == "unsubscribe" {
				c.fail(ctx, ps, onStatus, StatusClosed, nil)
				return
			}
		case *redis.Pong:
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// RedisPublisher broadcasts messages on a room's channels.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher wraps rdb.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Publish encodes m and publishes it on the room or game channel of roomID,
// whichever carries m's kind.
func (p *RedisPublisher) Publish(ctx context.Context, roomID uuid.UUID, m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	channel := RoomChannel(roomID)
	if channelFor(m.Kind()) == gameChannel {
		channel = GameChannel(roomID)
	}
	if err := p.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", m.Kind(), channel, err)
	}
	return nil
}
