package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recConn struct {
	id     string
	user   string
	mu     sync.Mutex
	msgs   []Message
	closed bool
}

func newRecConn(id string) *recConn { return &recConn{id: id, user: id} }

func newUserConn(id, user string) *recConn { return &recConn{id: id, user: user} }

func (c *recConn) ID() string     { return c.id }
func (c *recConn) UserID() string { return c.user }

func (c *recConn) Send(m Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.msgs = append(c.msgs, m)
	return true
}

func (c *recConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *recConn) received() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

func change(payload string) Message {
	return Message{Type: TypeUpdated, Payload: json.RawMessage(payload)}
}

func TestPublishDoesNotEchoToSender(t *testing.T) {
	h := NewHub()
	x, y := newRecConn("x"), newRecConn("y")
	require.NoError(t, h.Join(x, "D"))
	require.NoError(t, h.Join(y, "D"))

	n := h.Publish("D", x.ID(), change(`{"cursor":5}`))
	require.Equal(t, 1, n)

	got := y.received()
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"cursor":5}`, string(got[0].Payload))
	assert.Equal(t, "D", got[0].DocumentID)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.Empty(t, x.received())
}

func TestServerOriginatedPublishReachesEveryone(t *testing.T) {
	h := NewHub()
	x, y := newRecConn("x"), newRecConn("y")
	require.NoError(t, h.Join(x, "D"))
	require.NoError(t, h.Join(y, "D"))

	require.Equal(t, 2, h.Publish("D", "", Message{Type: TypeSaved}))
}

func TestDisconnectRemovesEveryMembership(t *testing.T) {
	h := NewHub()
	x, y := newRecConn("x"), newRecConn("y")
	require.NoError(t, h.Join(x, "D1"))
	require.NoError(t, h.Join(x, "D2"))
	require.NoError(t, h.Join(y, "D1"))

	require.Equal(t, []string{"D1", "D2"}, h.Disconnect(x))
	x.Close()

	require.Equal(t, 1, h.Publish("D1", "", change(`{}`)))
	require.Equal(t, 0, h.Publish("D2", "", change(`{}`)))
	require.Empty(t, x.received())
	require.Equal(t, []string{"y"}, h.Participants("D1"))
	require.Equal(t, []string{"D1"}, h.Topics())

	// second disconnect is harmless
	require.Empty(t, h.Disconnect(x))
}

func TestTopicDiscardedWhenEmpty(t *testing.T) {
	h := NewHub()
	x := newRecConn("x")
	require.NoError(t, h.Join(x, "D"))
	require.NoError(t, h.Join(x, "D"))
	require.Equal(t, []string{"x"}, h.Participants("D"))

	require.True(t, h.Leave(x, "D"))
	require.Empty(t, h.Topics())
	require.Nil(t, h.Participants("D"))

	// leaving again or leaving an unknown topic is a no-op
	require.False(t, h.Leave(x, "D"))
	require.False(t, h.Leave(x, "other"))
	require.Equal(t, 0, h.Publish("D", "", change(`{}`)))
}

func TestDeadPeerDoesNotFailPublish(t *testing.T) {
	h := NewHub()
	dead, live := newRecConn("dead"), newRecConn("live")
	require.NoError(t, h.Join(dead, "D"))
	require.NoError(t, h.Join(live, "D"))
	dead.Close()

	require.Equal(t, 1, h.Publish("D", "", change(`{"n":1}`)))
	require.Len(t, live.received(), 1)
}

func TestJoinValidation(t *testing.T) {
	h := NewHub()
	err := h.Join(newRecConn("x"), "")
	require.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))

	h.Close()
	err = h.Join(newRecConn("x"), "D")
	require.True(t, apperr.IsKind(err, apperr.KindUnavailable))
}

func TestCloseClosesJoinedConnections(t *testing.T) {
	h := NewHub()
	x := newRecConn("x")
	require.NoError(t, h.Join(x, "D"))
	h.Close()
	require.False(t, x.Send(Message{}))
	require.Empty(t, h.Topics())
	h.Close()
}

func TestConcurrentMembershipChanges(t *testing.T) {
	h := NewHub()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newRecConn(fmt.Sprintf("c%d", i))
			doc := fmt.Sprintf("D%d", i%5)
			_ = h.Join(c, doc)
			h.Publish(doc, c.ID(), change(`{}`))
			if i%2 == 0 {
				h.Leave(c, doc)
			} else {
				h.Disconnect(c)
			}
		}(i)
	}
	wg.Wait()
	require.Empty(t, h.Topics())
}

func TestLeaveReportsMembershipOnly(t *testing.T) {
	h := NewHub()
	x, y := newRecConn("x"), newRecConn("y")
	require.NoError(t, h.Join(x, "D"))

	require.False(t, h.Leave(y, "D"))
	require.Equal(t, []string{"x"}, h.Participants("D"))
	require.True(t, h.Leave(x, "D"))
}

func TestRestrictEvictsUsersWithoutAccess(t *testing.T) {
	h := NewHub()
	alice := newUserConn("c1", "alice")
	aliceTab := newUserConn("c2", "alice")
	bob := newUserConn("c3", "bob")
	carol := newUserConn("c4", "carol")
	for _, c := range []*recConn{alice, aliceTab, bob, carol} {
		require.NoError(t, h.Join(c, "D"))
	}
	require.NoError(t, h.Join(bob, "other"))

	require.Equal(t, 2, h.Publish("D", "", RestrictMessage("D", []string{"alice"})))
	require.Equal(t, []string{"c1", "c2"}, h.Participants("D"))
	require.Equal(t, []string{"c3"}, h.Participants("other"))

	for _, c := range []*recConn{bob, carol} {
		got := c.received()
		require.Len(t, got, 1)
		assert.Equal(t, TypeRevoked, got[0].Type)
		assert.Equal(t, "D", got[0].DocumentID)
		assert.Empty(t, got[0].Payload)
	}
	// the reader list is never written to a client
	assert.Empty(t, alice.received())

	require.Equal(t, 1, h.Publish("D", "c1", change(`{"content":"private"}`)))
	assert.Len(t, bob.received(), 1)
	assert.Len(t, aliceTab.received(), 1)
}

func TestDeletedEventDropsTopic(t *testing.T) {
	h := NewHub()
	x, y := newRecConn("x"), newRecConn("y")
	require.NoError(t, h.Join(x, "D"))
	require.NoError(t, h.Join(y, "D"))
	require.NoError(t, h.Join(y, "E"))

	require.Equal(t, 2, h.Publish("D", "", Message{Type: TypeDeleted}))
	require.Equal(t, TypeDeleted, x.received()[0].Type)
	require.Equal(t, []string{"E"}, h.Topics())
	require.Equal(t, 0, h.Publish("D", "", change(`{}`)))
	require.Equal(t, []string{"E"}, h.Disconnect(y))
}

type fakeBridge struct {
	mu     sync.Mutex
	sent   []string
	closed bool
}

func (b *fakeBridge) Publish(_ context.Context, docID, originID string, m Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, docID+"/"+originID)
	return nil
}

func (b *fakeBridge) published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

func (b *fakeBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func TestPublishForwardsToBridge(t *testing.T) {
	h := NewHub()
	b := &fakeBridge{}
	h.SetBridge(b)

	// no local participants; remote nodes may still have some
	require.Equal(t, 0, h.Publish("D", "x", change(`{}`)))
	require.Eventually(t, func() bool { return len(b.published()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"D/x"}, b.published())

	// Deliver stays local
	h.Deliver("D", "x", change(`{}`))
	h.Close()
	require.Len(t, b.published(), 1)
	require.True(t, b.closed)
}

// stuckBridge blocks every publish until released.
type stuckBridge struct {
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (b *stuckBridge) Publish(ctx context.Context, _, _ string, _ Message) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func (b *stuckBridge) Close() error { return nil }

func TestSlowBridgeDoesNotBlockPublish(t *testing.T) {
	h := NewHub()
	b := &stuckBridge{release: make(chan struct{})}
	h.SetBridge(b)
	x, y := newRecConn("x"), newRecConn("y")
	require.NoError(t, h.Join(x, "D"))
	require.NoError(t, h.Join(y, "D"))

	before := testutil.ToFloat64(metrics.BroadcastDropped.WithLabelValues("bridge"))
	start := time.Now()
	for i := 0; i < RelayQueueSize+10; i++ {
		require.Equal(t, 1, h.Publish("D", "x", change(`{}`)))
	}
	require.Less(t, time.Since(start), time.Second)
	require.Len(t, y.received(), RelayQueueSize+10)
	require.Greater(t, testutil.ToFloat64(metrics.BroadcastDropped.WithLabelValues("bridge")), before)

	close(b.release)
	h.Close()
}
