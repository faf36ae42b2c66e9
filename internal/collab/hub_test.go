package collab

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// The tests drive the hub's step functions directly, the way Run does,
// so every assertion sees the state right after one event.

func newTestHub(opts Options) *Hub {
	return NewHub(testLogger(), opts)
}

func newTestClient(h *Hub, id string, buffer int) *Client {
	return &Client{
		ID:           id,
		hub:          h,
		send:         make(chan []byte, buffer),
		storeTimeout: h.storeTimeout,
		log:          h.log.With("conn", id),
	}
}

// step runs fn as one loop iteration. In bus mode it also publishes what
// the iteration queued, standing in for the publish goroutine.
func step(h *Hub, fn func()) {
	fn()
	h.reap()
	for h.bus != nil && len(h.outbound) > 0 {
		h.publish(<-h.outbound)
	}
}

// drain returns the frames queued for c. closed reports whether the hub
// closed the queue.
func drain(t *testing.T, c *Client) (out []Frame, closed bool) {
	t.Helper()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out, true
			}
			var f Frame
			require.NoError(t, json.Unmarshal(msg, &f))
			out = append(out, f)
		default:
			return out, false
		}
	}
}

func eventsOf(frames []Frame) []string {
	return lo.Map(frames, func(f Frame, _ int) string { return f.Event })
}

func connIDs(t *testing.T, f Frame) []string {
	return lo.Map(entries(t, f), func(e PresenceEntry, _ int) string { return e.ConnectionID })
}

func TestHub_DocumentScenario(t *testing.T) {
	req := require.New(t)
	h := newTestHub(Options{})
	a := newTestClient(h, "A", 16)
	b := newTestClient(h, "B", 16)

	// Given A and B in doc1
	step(h, func() { h.register(a) })
	step(h, func() { h.register(b) })
	step(h, func() { h.dispatch(a, JoinDocument{DocumentID: "doc1", UserID: "uA", DisplayName: "Ann"}) })
	step(h, func() { h.dispatch(b, JoinDocument{DocumentID: "doc1", UserID: "uB", DisplayName: "Bob"}) })

	aFrames, _ := drain(t, a)
	bFrames, _ := drain(t, b)
	req.Equal([]string{EventOnlineUsers, EventOnlineUsers}, eventsOf(aFrames))
	req.Equal([]string{"A", "B"}, connIDs(t, aFrames[1]))
	req.Equal([]string{EventOnlineUsers}, eventsOf(bFrames), "the joiner gets the snapshot too")
	req.Equal([]string{"A", "B"}, connIDs(t, bFrames[0]))

	// When A edits
	step(h, func() { h.dispatch(a, DocumentUpdate{DocumentID: "doc1", Title: "T1", Content: "x"}) })

	// Then only B hears about it
	aFrames, _ = drain(t, a)
	bFrames, _ = drain(t, b)
	req.Empty(aFrames)
	req.Len(bFrames, 1)
	var update ReceiveUpdate
	req.NoError(json.Unmarshal(bFrames[0].Data, &update))
	req.Equal(ReceiveUpdate{Title: "T1", Content: "x", UserID: "uA"}, update)

	// When B disconnects
	step(h, func() { h.unregister(b) })

	// Then A sees itself alone and B's queue is closed
	aFrames, _ = drain(t, a)
	req.Len(aFrames, 1)
	req.Equal([]string{"A"}, connIDs(t, aFrames[0]))
	_, closed := drain(t, b)
	req.True(closed)
	req.Equal([]string{"A"}, h.channels.MembersOf(DocumentChannel("doc1")))

	// Once A leaves too the channel is gone
	step(h, func() { h.unregister(a) })
	req.Equal(0, h.channels.Len())
	req.Equal(0, h.registry.Len())
}

func TestHub_ChatIncludesSender(t *testing.T) {
	req := require.New(t)
	h := newTestHub(Options{})
	c := newTestClient(h, "C", 16)
	step(h, func() { h.register(c) })

	step(h, func() { h.dispatch(c, JoinChatRoom{RoomID: "general", UserID: "u1", DisplayName: "Ann"}) })
	joined, _ := drain(t, c)
	req.Empty(joined, "the joiner is not told about itself")

	step(h, func() { h.dispatch(c, SendChatMessage{RoomID: "general", Text: "hello"}) })

	frames, _ := drain(t, c)
	req.Len(frames, 1)
	req.Equal(EventReceiveChatMessage, frames[0].Event)
	var msg ChatMessage
	req.NoError(json.Unmarshal(frames[0].Data, &msg))
	req.Equal("hello", msg.Text)
	req.Equal("u1", msg.SenderID)
	req.Equal("Ann", msg.SenderName)
	req.NotEmpty(msg.ID)
	req.False(msg.Timestamp.IsZero())
}

func TestHub_ChatJoinAndLeaveNotices(t *testing.T) {
	req := require.New(t)
	h := newTestHub(Options{})
	a := newTestClient(h, "A", 16)
	b := newTestClient(h, "B", 16)
	step(h, func() { h.register(a) })
	step(h, func() { h.register(b) })
	step(h, func() { h.dispatch(a, JoinChatRoom{RoomID: "general", UserID: "uA", DisplayName: "Ann"}) })

	step(h, func() { h.dispatch(b, JoinChatRoom{RoomID: "general", UserID: "uB", DisplayName: "Bob"}) })
	aFrames, _ := drain(t, a)
	req.Equal([]string{EventUserJoined}, eventsOf(aFrames))
	var notice SystemNotice
	req.NoError(json.Unmarshal(aFrames[0].Data, &notice))
	req.Equal("Bob joined the chat", notice.Message)

	step(h, func() { h.dispatch(b, LeaveChatRoom{RoomID: "general", DisplayName: "Bob"}) })
	aFrames, _ = drain(t, a)
	bFrames, _ := drain(t, b)
	req.Equal([]string{EventUserLeft}, eventsOf(aFrames))
	req.Empty(bFrames)
	req.NoError(json.Unmarshal(aFrames[0].Data, &notice))
	req.Equal("Bob left the chat", notice.Message)

	// A disconnecting from the room is a leave as well, nobody is left to hear it
	step(h, func() { h.unregister(a) })
	req.Equal(0, h.channels.Len())
}

func TestHub_ProtocolViolationsAreDropped(t *testing.T) {
	h := newTestHub(Options{})
	a := newTestClient(h, "A", 16)
	b := newTestClient(h, "B", 16)
	a.UserID, a.DisplayName = "7", "Ann"
	step(h, func() { h.register(a) })
	step(h, func() { h.register(b) })
	step(h, func() { h.dispatch(a, JoinDocument{DocumentID: "doc1"}) })
	drain(t, a)

	tests := []struct {
		name string
		from *Client
		cmd  any
	}{
		{name: "edit without joining", from: b, cmd: DocumentUpdate{DocumentID: "doc1", UserID: "uB", Title: "x"}},
		{name: "join without identity", from: b, cmd: JoinDocument{DocumentID: "doc1"}},
		{name: "payload user clashes with token", from: a, cmd: DocumentUpdate{DocumentID: "doc1", UserID: "8"}},
		{name: "chat without joining", from: a, cmd: SendChatMessage{RoomID: "general", Text: "hi"}},
		{name: "unknown command", from: a, cmd: struct{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			step(h, func() { h.dispatch(tt.from, tt.cmd) })

			aFrames, _ := drain(t, a)
			bFrames, _ := drain(t, b)
			req.Empty(aFrames)
			req.Empty(bFrames)
			req.Equal([]string{"A"}, h.channels.MembersOf(DocumentChannel("doc1")))
		})
	}
}

func TestHub_VerifiedIdentityIsUsed(t *testing.T) {
	req := require.New(t)
	h := newTestHub(Options{})
	a := newTestClient(h, "A", 16)
	a.UserID, a.DisplayName = "7", "Ann"
	step(h, func() { h.register(a) })

	step(h, func() { h.dispatch(a, JoinDocument{DocumentID: "doc1", UserID: "7"}) })

	frames, _ := drain(t, a)
	req.Len(frames, 1)
	req.Equal([]PresenceEntry{{UserID: "7", DisplayName: "Ann", ConnectionID: "A"}}, entries(t, frames[0]))
}

func TestHub_SwitchingChannelLeavesThePreviousOne(t *testing.T) {
	req := require.New(t)
	h := newTestHub(Options{})
	a := newTestClient(h, "A", 16)
	b := newTestClient(h, "B", 16)
	step(h, func() { h.register(a) })
	step(h, func() { h.register(b) })
	step(h, func() { h.dispatch(a, JoinDocument{DocumentID: "doc1", UserID: "uA"}) })
	step(h, func() { h.dispatch(b, JoinDocument{DocumentID: "doc1", UserID: "uB"}) })
	drain(t, a)
	drain(t, b)

	step(h, func() { h.dispatch(a, JoinDocument{DocumentID: "doc2", UserID: "uA"}) })

	bFrames, _ := drain(t, b)
	req.Len(bFrames, 1)
	req.Equal([]string{"B"}, connIDs(t, bFrames[0]))
	aFrames, _ := drain(t, a)
	req.Len(aFrames, 1)
	req.Equal([]string{"A"}, connIDs(t, aFrames[0]))

	conn, _ := h.registry.Lookup("A")
	req.Equal(DocumentChannel("doc2"), conn.Channel)
}

func TestHub_RejoinRefreshesSnapshot(t *testing.T) {
	req := require.New(t)
	h := newTestHub(Options{})
	a := newTestClient(h, "A", 16)
	step(h, func() { h.register(a) })
	step(h, func() { h.dispatch(a, JoinDocument{DocumentID: "doc1", UserID: "uA", DisplayName: "Ann"}) })
	drain(t, a)

	step(h, func() { h.dispatch(a, JoinDocument{DocumentID: "doc1", UserID: "uA", DisplayName: "Annie"}) })

	frames, _ := drain(t, a)
	req.Len(frames, 1)
	req.Equal([]PresenceEntry{{UserID: "uA", DisplayName: "Annie", ConnectionID: "A"}}, entries(t, frames[0]))
}

func TestHub_SlowClientIsReaped(t *testing.T) {
	req := require.New(t)
	h := newTestHub(Options{})
	a := newTestClient(h, "A", 16)
	c := newTestClient(h, "C", 16)
	slow := newTestClient(h, "S", 1)
	for _, cl := range []*Client{a, c, slow} {
		step(h, func() { h.register(cl) })
		step(h, func() { h.dispatch(cl, JoinDocument{DocumentID: "doc1", UserID: "u" + cl.ID}) })
	}
	drain(t, a)
	drain(t, c)
	// slow still holds one unread snapshot, its queue is full

	step(h, func() { h.dispatch(a, DocumentUpdate{DocumentID: "doc1", Title: "T"}) })

	// C got the update despite S, then everyone left sees S gone
	cFrames, _ := drain(t, c)
	req.Equal([]string{EventReceiveUpdate, EventOnlineUsers}, eventsOf(cFrames))
	req.Equal([]string{"A", "C"}, connIDs(t, cFrames[1]))
	_, closed := drain(t, slow)
	req.True(closed)
	_, ok := h.registry.Lookup("S")
	req.False(ok)
}

func TestHub_StaleUnregisterIsIgnored(t *testing.T) {
	req := require.New(t)
	h := newTestHub(Options{})
	a := newTestClient(h, "A", 16)
	step(h, func() { h.register(a) })
	step(h, func() { h.unregister(a) })

	// A second unregister of an already reaped client must not panic on close
	req.NotPanics(func() { step(h, func() { h.unregister(a) }) })

	impostor := newTestClient(h, "A", 1)
	step(h, func() { h.register(impostor) })
	step(h, func() { h.unregister(a) })
	_, ok := h.registry.Lookup("A")
	req.True(ok, "only the registered pointer can unregister its id")
}

func TestHub_ShutdownDropsEveryone(t *testing.T) {
	req := require.New(t)
	h := newTestHub(Options{})
	a := newTestClient(h, "A", 16)
	b := newTestClient(h, "B", 16)
	step(h, func() { h.register(a) })
	step(h, func() { h.register(b) })
	step(h, func() { h.dispatch(a, JoinDocument{DocumentID: "doc1", UserID: "uA"}) })

	h.shutdown()

	_, aClosed := drain(t, a)
	_, bClosed := drain(t, b)
	req.True(aClosed)
	req.True(bClosed)
	req.Equal(0, h.registry.Len())
	req.Equal(0, h.channels.Len())
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	req := require.New(t)
	h := newTestHub(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	a := newTestClient(h, "A", 16)
	req.True(h.Connect(a))
	req.True(h.Submit(a, JoinChatRoom{RoomID: "r", UserID: "u"}))
	cancel()
	<-h.Done()

	req.False(h.Connect(newTestClient(h, "B", 1)))
	req.False(h.Submit(a, SendChatMessage{RoomID: "r", Text: "late"}))
	_, closed := drain(t, a)
	req.True(closed)
}

type recordingBus struct {
	published []Envelope
	err       error
}

func (b *recordingBus) Publish(_ context.Context, env Envelope) error {
	b.published = append(b.published, env)
	return b.err
}

func TestHub_BusModeDeliversOnlyRemoteEnvelopes(t *testing.T) {
	req := require.New(t)
	bus := &recordingBus{}
	h := newTestHub(Options{Bus: bus})
	a := newTestClient(h, "A", 16)
	step(h, func() { h.register(a) })

	step(h, func() { h.dispatch(a, JoinDocument{DocumentID: "doc1", UserID: "uA"}) })

	// The snapshot went to the bus, not straight to A
	frames, _ := drain(t, a)
	req.Empty(frames)
	req.Len(bus.published, 1)
	req.Equal(DocumentChannel("doc1"), bus.published[0].Channel)

	// When it comes back from the bus
	step(h, func() { h.fanout(bus.published[0]) })
	frames, _ = drain(t, a)
	req.Equal([]string{EventOnlineUsers}, eventsOf(frames))
}

func TestHub_BusFailureIsLoggedNotFatal(t *testing.T) {
	req := require.New(t)
	h := newTestHub(Options{Bus: &recordingBus{err: errors.New("redis down")}})
	a := newTestClient(h, "A", 16)
	step(h, func() { h.register(a) })

	req.NotPanics(func() {
		step(h, func() { h.dispatch(a, JoinDocument{DocumentID: "doc1", UserID: "uA"}) })
	})
	req.True(h.channels.IsMember("A", DocumentChannel("doc1")))
}

// blockingBus holds every publish until release is closed.
type blockingBus struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	got     []Envelope
}

func (b *blockingBus) Publish(_ context.Context, env Envelope) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, env)
	return nil
}

func TestHub_SlowBusDoesNotStallLoop(t *testing.T) {
	req := require.New(t)
	bus := &blockingBus{started: make(chan struct{}), release: make(chan struct{})}
	h := newTestHub(Options{Bus: bus})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	a := newTestClient(h, "A", 16)
	req.True(h.Connect(a))
	req.True(h.Submit(a, JoinDocument{DocumentID: "doc1", UserID: "uA"}))

	// Given the snapshot publish is stuck in Redis
	select {
	case <-bus.started:
	case <-time.After(2 * time.Second):
		t.Fatal("nothing was published")
	}

	// When another client connects, the loop still takes it
	connected := make(chan bool, 1)
	go func() { connected <- h.Connect(newTestClient(h, "B", 16)) }()
	select {
	case ok := <-connected:
		req.True(ok)
	case <-time.After(time.Second):
		t.Fatal("hub loop blocked behind the bus")
	}

	// Then everything queued is flushed before Done
	close(bus.release)
	cancel()
	<-h.Done()
	bus.mu.Lock()
	defer bus.mu.Unlock()
	req.NotEmpty(bus.got)
	req.Equal(DocumentChannel("doc1"), bus.got[0].Channel)
}

// flakyPresenceStore fails Add while addErr is set.
type flakyPresenceStore struct {
	*MemoryPresenceStore
	addErr error
}

func (s *flakyPresenceStore) Add(ctx context.Context, documentID string, entry PresenceEntry) error {
	if s.addErr != nil {
		return s.addErr
	}
	return s.MemoryPresenceStore.Add(ctx, documentID, entry)
}

func TestHub_FailedPresenceAddRollsBackJoin(t *testing.T) {
	req := require.New(t)
	store := &flakyPresenceStore{MemoryPresenceStore: NewMemoryPresenceStore()}
	h := newTestHub(Options{Presence: store})
	a := newTestClient(h, "A", 16)
	b := newTestClient(h, "B", 16)
	step(h, func() { h.register(a) })
	step(h, func() { h.register(b) })
	step(h, func() { h.dispatch(b, JoinDocument{DocumentID: "doc1", UserID: "uB"}) })

	// When A's presence write fails
	store.addErr = errors.New("redis down")
	step(h, func() { h.dispatch(a, JoinDocument{DocumentID: "doc1", UserID: "uA"}) })

	// Then A is not a member and gets no updates
	req.Equal([]string{"B"}, h.channels.MembersOf(DocumentChannel("doc1")))
	conn, ok := h.registry.Lookup("A")
	req.True(ok)
	req.True(conn.Channel.IsZero())

	drain(t, a)
	step(h, func() { h.dispatch(b, DocumentUpdate{DocumentID: "doc1", UserID: "uB", Content: "x"}) })
	frames, _ := drain(t, a)
	req.Empty(frames)

	// And an edit from A is refused
	store.addErr = nil
	drain(t, b)
	step(h, func() { h.dispatch(a, DocumentUpdate{DocumentID: "doc1", UserID: "uA", Content: "y"}) })
	frames, _ = drain(t, b)
	req.Empty(frames)
}

func TestHub_FailedRefreshKeepsExistingMember(t *testing.T) {
	req := require.New(t)
	store := &flakyPresenceStore{MemoryPresenceStore: NewMemoryPresenceStore()}
	h := newTestHub(Options{Presence: store})
	a := newTestClient(h, "A", 16)
	step(h, func() { h.register(a) })
	step(h, func() { h.dispatch(a, JoinDocument{DocumentID: "doc1", UserID: "uA"}) })

	store.addErr = errors.New("redis down")
	step(h, func() { h.dispatch(a, JoinDocument{DocumentID: "doc1", UserID: "uA", DisplayName: "Ann"}) })

	req.Equal([]string{"A"}, h.channels.MembersOf(DocumentChannel("doc1")))
	list, err := store.List(context.Background(), "doc1")
	req.NoError(err)
	req.Len(list, 1)
}

type staticAuthorizer struct {
	allowed map[string]bool
	err     error
}

func (s staticAuthorizer) CanAccess(_ context.Context, userID, documentID string) (bool, error) {
	return s.allowed[userID+"/"+documentID], s.err
}

func TestClient_MayJoin(t *testing.T) {
	h := newTestHub(Options{Authorizer: staticAuthorizer{allowed: map[string]bool{"7/doc1": true}}})

	tests := []struct {
		name   string
		userID string
		join   JoinDocument
		want   bool
	}{
		{name: "token user with access", userID: "7", join: JoinDocument{DocumentID: "doc1"}, want: true},
		{name: "token user wins over payload", userID: "7", join: JoinDocument{DocumentID: "doc1", UserID: "8"}, want: true},
		{name: "no access", userID: "8", join: JoinDocument{DocumentID: "doc1"}, want: false},
		{name: "payload user with access", join: JoinDocument{DocumentID: "doc1", UserID: "7"}, want: true},
		{name: "anonymous", join: JoinDocument{DocumentID: "doc1"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(h, "A", 1)
			c.UserID = tt.userID
			require.Equal(t, tt.want, c.mayJoin(tt.join))
		})
	}
}

func TestClient_MayJoinFailsClosedOnError(t *testing.T) {
	h := newTestHub(Options{Authorizer: staticAuthorizer{err: errors.New("db down")}})
	c := newTestClient(h, "A", 1)
	c.UserID = "7"

	require.False(t, c.mayJoin(JoinDocument{DocumentID: "doc1"}))
}
