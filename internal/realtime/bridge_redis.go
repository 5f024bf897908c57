package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ChannelPrefix namespaces the per-document Redis Pub/Sub channels.
const ChannelPrefix = "collab:doc:"

type envelope struct {
	Node    string  `json:"node"`
	Origin  string  `json:"origin,omitempty"`
	Message Message `json:"message"`
}

// RedisBridge fans publishes out to every process subscribed to the same
// Redis. Each process tags envelopes with its node id and ignores its own.
type RedisBridge struct {
	client *redis.Client
	nodeID string

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisBridge creates a bridge; an empty nodeID gets a random one.
func NewRedisBridge(client *redis.Client, nodeID string) *RedisBridge {
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	return &RedisBridge{client: client, nodeID: nodeID}
}

func (b *RedisBridge) NodeID() string { return b.nodeID }

// Start subscribes to every document channel and delivers remote messages
// into hub. It returns once the subscription is confirmed.
func (b *RedisBridge) Start(ctx context.Context, hub *Hub) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return apperr.InvalidArgument("bridge already started")
	}
	ps := b.client.PSubscribe(ctx, ChannelPrefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return apperr.Wrap(apperr.KindUnavailable, err, "subscribe realtime bridge")
	}
	b.pubsub = ps
	b.done = make(chan struct{})
	go b.loop(ps.Channel(), hub, b.done)
	return nil
}

func (b *RedisBridge) loop(ch <-chan *redis.Message, hub *Hub, done chan struct{}) {
	defer close(done)
	log := logger.With("node", b.nodeID)
	for msg := range ch {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Warnw("realtime bridge: bad envelope", "channel", msg.Channel, "error", err)
			continue
		}
		if env.Node == b.nodeID {
			continue
		}
		docID := strings.TrimPrefix(msg.Channel, ChannelPrefix)
		hub.Deliver(docID, env.Origin, env.Message)
	}
}

func (b *RedisBridge) Publish(ctx context.Context, docID, originID string, m Message) error {
	data, err := json.Marshal(envelope{Node: b.nodeID, Origin: originID, Message: m})
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "encode envelope")
	}
	if err := b.client.Publish(ctx, ChannelPrefix+docID, data).Err(); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, err, "publish realtime bridge")
	}
	return nil
}

// Close unsubscribes and waits for the delivery loop to exit.
func (b *RedisBridge) Close() error {
	b.mu.Lock()
	ps, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()
	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}
