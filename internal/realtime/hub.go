package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/logger"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/metrics"
)

// Bridge relays publishes to hubs in other processes.
type Bridge interface {
	Publish(ctx context.Context, docID, originID string, m Message) error
	Close() error
}

// topic is the set of connections joined to one document.
type topic struct {
	conns map[string]Conn
}

// RelayQueueSize bounds the publishes waiting for the bridge.
const RelayQueueSize = 256

type relayJob struct {
	docID    string
	originID string
	msg      Message
}

// Hub owns every topic and the reverse index from connection to topics.
// A topic exists only while at least one connection is joined.
type Hub struct {
	mu          sync.RWMutex
	topics      map[string]*topic
	memberships map[string]map[string]struct{}
	closed      bool

	bridge        Bridge
	bridgeTimeout time.Duration
	relay         chan relayJob
	relayDone     chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		topics:        make(map[string]*topic),
		memberships:   make(map[string]map[string]struct{}),
		bridgeTimeout: 2 * time.Second,
	}
}

// SetBridge attaches a cross-process relay and starts the goroutine that
// feeds it. Call before serving traffic.
func (h *Hub) SetBridge(b Bridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.relay != nil {
		return
	}
	h.bridge = b
	h.relay = make(chan relayJob, RelayQueueSize)
	h.relayDone = make(chan struct{})
	go h.relayLoop(b, h.relay, h.relayDone)
}

func (h *Hub) relayLoop(b Bridge, jobs <-chan relayJob, done chan struct{}) {
	defer close(done)
	for job := range jobs {
		ctx, cancel := context.WithTimeout(context.Background(), h.bridgeTimeout)
		if err := b.Publish(ctx, job.docID, job.originID, job.msg); err != nil {
			logger.Warnf("realtime: bridge publish for %s failed: %v", job.docID, err)
		}
		cancel()
	}
}

// Join adds conn to docID's topic, creating the topic on first join.
// Joining twice is a no-op.
func (h *Hub) Join(conn Conn, docID string) error {
	if docID == "" {
		return apperr.InvalidArgument("documentId is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return apperr.Unavailable("realtime hub closed")
	}
	t, ok := h.topics[docID]
	if !ok {
		t = &topic{conns: make(map[string]Conn)}
		h.topics[docID] = t
		metrics.RealtimeTopics.Inc()
	}
	t.conns[conn.ID()] = conn
	m, ok := h.memberships[conn.ID()]
	if !ok {
		m = make(map[string]struct{})
		h.memberships[conn.ID()] = m
	}
	m[docID] = struct{}{}
	return nil
}

// Leave removes conn from docID's topic and reports whether it was joined.
// Leaving a topic that was never joined is a no-op.
func (h *Hub) Leave(conn Conn, docID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(conn.ID(), docID)
}

func (h *Hub) leaveLocked(connID, docID string) bool {
	member := false
	if t, ok := h.topics[docID]; ok {
		if _, ok := t.conns[connID]; ok {
			member = true
			delete(t.conns, connID)
		}
		if len(t.conns) == 0 {
			delete(h.topics, docID)
			metrics.RealtimeTopics.Dec()
		}
	}
	if m, ok := h.memberships[connID]; ok {
		delete(m, docID)
		if len(m) == 0 {
			delete(h.memberships, connID)
		}
	}
	return member
}

// Disconnect removes conn from every topic it joined. Transports call it
// when a connection goes away without leaving.
func (h *Hub) Disconnect(conn Conn) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.memberships[conn.ID()]
	left := make([]string, 0, len(m))
	for docID := range m {
		left = append(left, docID)
	}
	for _, docID := range left {
		h.leaveLocked(conn.ID(), docID)
	}
	sort.Strings(left)
	return left
}

// Publish delivers m to every participant of docID except originID and
// queues it for the bridge. It returns the number of local connections the
// message was queued for. Dead or saturated peers never fail the call, and a
// slow bridge never blocks it: when the relay queue is full the message is
// not forwarded.
//
// Two server events also change membership. TypeRestrict removes every
// connection whose user is not a listed reader and tells it TypeRevoked.
// TypeDeleted is delivered and then the topic is dropped.
func (h *Hub) Publish(docID, originID string, m Message) int {
	if m.DocumentID == "" {
		m.DocumentID = docID
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	n := h.dispatch(docID, originID, m)

	h.mu.RLock()
	if h.relay != nil && !h.closed {
		select {
		case h.relay <- relayJob{docID: docID, originID: originID, msg: m}:
		default:
			metrics.BroadcastDropped.WithLabelValues("bridge").Inc()
			logger.Warnf("realtime: relay queue full, %s not forwarded for %s", m.Type, docID)
		}
	}
	h.mu.RUnlock()
	return n
}

// Deliver applies m to local participants only. Bridges call it for
// messages received from other processes.
func (h *Hub) Deliver(docID, originID string, m Message) int {
	return h.dispatch(docID, originID, m)
}

func (h *Hub) dispatch(docID, originID string, m Message) int {
	switch m.Type {
	case TypeRestrict:
		return h.restrict(docID, m)
	case TypeDeleted:
		n := h.deliver(docID, originID, m)
		h.drop(docID)
		return n
	}
	return h.deliver(docID, originID, m)
}

// restrict evicts the connections of users missing from the restriction and
// returns how many were evicted.
func (h *Hub) restrict(docID string, m Message) int {
	var r Restriction
	if err := json.Unmarshal(m.Payload, &r); err != nil {
		logger.Warnf("realtime: bad restriction for %s: %v", docID, err)
		return 0
	}
	readers := make(map[string]struct{}, len(r.Readers))
	for _, u := range r.Readers {
		readers[u] = struct{}{}
	}

	h.mu.Lock()
	var evicted []Conn
	if t, ok := h.topics[docID]; ok {
		for _, c := range t.conns {
			if _, ok := readers[c.UserID()]; !ok {
				evicted = append(evicted, c)
			}
		}
		for _, c := range evicted {
			h.leaveLocked(c.ID(), docID)
		}
	}
	h.mu.Unlock()

	for _, c := range evicted {
		c.Send(Message{Type: TypeRevoked, DocumentID: docID, Timestamp: m.Timestamp})
	}
	return len(evicted)
}

func (h *Hub) drop(docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[docID]
	if !ok {
		return
	}
	ids := make([]string, 0, len(t.conns))
	for id := range t.conns {
		ids = append(ids, id)
	}
	for _, id := range ids {
		h.leaveLocked(id, docID)
	}
}

func (h *Hub) deliver(docID, originID string, m Message) int {
	h.mu.RLock()
	t, ok := h.topics[docID]
	if !ok {
		h.mu.RUnlock()
		return 0
	}
	targets := make([]Conn, 0, len(t.conns))
	for id, c := range t.conns {
		if id != originID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Send(m) {
			delivered++
		}
	}
	metrics.BroadcastDelivered.Add(float64(delivered))
	return delivered
}

// Participants returns the connection ids joined to docID.
func (h *Hub) Participants(docID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.topics[docID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(t.conns))
	for id := range t.conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Topics returns the documents that currently have participants.
func (h *Hub) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.topics))
	for id := range h.topics {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close drops every topic, closes all joined connections, flushes the relay
// queue and closes the bridge.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make(map[string]Conn)
	for _, t := range h.topics {
		for id, c := range t.conns {
			conns[id] = c
		}
	}
	metrics.RealtimeTopics.Sub(float64(len(h.topics)))
	h.topics = make(map[string]*topic)
	h.memberships = make(map[string]map[string]struct{})
	b, relay, relayDone := h.bridge, h.relay, h.relayDone
	h.bridge, h.relay = nil, nil
	if relay != nil {
		close(relay)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	if relayDone != nil {
		<-relayDone
	}
	if b != nil {
		if err := b.Close(); err != nil {
			logger.Warnf("realtime: close bridge: %v", err)
		}
	}
}
