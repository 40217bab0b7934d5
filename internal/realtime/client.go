package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/lalith-99/campuslink/internal/models"
)

// sendQueueSize bounds the per-connection outbound queue. A client
// that cannot drain this many frames is effectively dead; broadcasts
// never block on it (see Directory.Broadcast).
const sendQueueSize = 256

// Client is one live connection. It belongs to exactly one Identity;
// an identity may own several concurrent clients (multi-device).
//
// Client carries no transport: the websocket layer drains Events()
// into the socket, and tests read the channel directly.
type Client struct {
	ID       uuid.UUID
	Identity models.Identity

	send      chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(identity models.Identity) *Client {
	return &Client{
		ID:       uuid.New(),
		Identity: identity,
		send:     make(chan Event, sendQueueSize),
		done:     make(chan struct{}),
	}
}

// Enqueue queues an outbound event without blocking. It reports false
// when the client is closed or its queue is full; the caller decides
// whether that is fatal for the connection.
func (c *Client) Enqueue(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Events is the outbound queue, drained by the transport write pump.
func (c *Client) Events() <-chan Event { return c.send }

// Done is closed when the client is shut down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close marks the client dead. Idempotent. It does not drain or close
// the send channel; pending events are simply abandoned.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
