package realtime

import (
	"sync"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/pkg/logger"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/metrics"
)

// DefaultQueueSize bounds each connection's outbound queue.
const DefaultQueueSize = 64

// Sink is the transport a Client drains its queue into. Calls come from a
// single goroutine.
type Sink interface {
	Write(Message) error
	Ping() error
	Close() error
}

// Client is a Conn with a bounded outbound queue and its own writer
// goroutine. When the queue is full the oldest queued message is dropped,
// so a slow reader loses stale events instead of stalling publishers.
type Client struct {
	id     string
	userID string
	sink   Sink

	mu      sync.Mutex
	queue   chan Message
	dropped uint64

	done      chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}
}

// NewClient starts the writer goroutine. A pingInterval of zero disables
// keepalive pings.
func NewClient(id, userID string, sink Sink, queueSize int, pingInterval time.Duration) *Client {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	c := &Client{
		id:      id,
		userID:  userID,
		sink:    sink,
		queue:   make(chan Message, queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	metrics.RealtimeConnections.Inc()
	go c.writeLoop(pingInterval)
	return c
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Dropped returns how many messages were discarded on overflow.
func (c *Client) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Client) Send(m Message) bool {
	select {
	case <-c.done:
		metrics.BroadcastDropped.WithLabelValues("closed").Inc()
		return false
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		select {
		case c.queue <- m:
			return true
		default:
		}
		select {
		case <-c.queue:
			c.dropped++
			metrics.BroadcastDropped.WithLabelValues("overflow").Inc()
		default:
		}
	}
}

// Close stops the writer and closes the sink. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		metrics.RealtimeConnections.Dec()
	})
}

// Wait blocks until the writer goroutine has exited.
func (c *Client) Wait() {
	<-c.stopped
}

func (c *Client) writeLoop(pingInterval time.Duration) {
	defer close(c.stopped)
	defer func() {
		if err := c.sink.Close(); err != nil {
			logger.Debugf("realtime: close sink %s: %v", c.id, err)
		}
	}()

	var tick <-chan time.Time
	if pingInterval > 0 {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-c.done:
			return
		case m := <-c.queue:
			if err := c.sink.Write(m); err != nil {
				logger.Debugf("realtime: write to %s failed: %v", c.id, err)
				c.Close()
				return
			}
		case <-tick:
			if err := c.sink.Ping(); err != nil {
				logger.Debugf("realtime: ping %s failed: %v", c.id, err)
				c.Close()
				return
			}
		}
	}
}
