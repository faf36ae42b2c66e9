package collab

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Hub is the one event loop of an instance. Run is the only goroutine that
// touches the registry, the channel table and the presence state, so every
// inbound event is applied as a whole before the next one starts.
type Hub struct {
	log *slog.Logger

	registry *Registry
	channels *Channels
	presence *Presence
	updates  UpdateRelay
	chat     *ChatRelay

	clients    map[string]*Client
	bus        Bus // nil fans out in-process
	authorizer DocumentAuthorizer

	Register   chan *Client
	Unregister chan *Client
	inbound    chan inbound
	remote     chan Envelope // Bus subscriber -> local fan-out
	outbound   chan Envelope // local broadcasts -> Bus publisher

	dead         []string
	storeTimeout time.Duration
	done         chan struct{}
}

type inbound struct {
	client *Client
	cmd    any
}

// Options wires the optional collaborators. Zero values give a
// self-contained single-instance hub.
type Options struct {
	Bus          Bus
	Presence     PresenceStore
	Messages     MessageStore
	Authorizer   DocumentAuthorizer
	StoreTimeout time.Duration
	// NewUpdateRelay replaces the last-write-wins relay.
	NewUpdateRelay func(out Broadcaster, log *slog.Logger) UpdateRelay
}

func NewHub(log *slog.Logger, opts Options) *Hub {
	h := &Hub{
		log:          log,
		registry:     NewRegistry(),
		clients:      make(map[string]*Client),
		bus:          opts.Bus,
		authorizer:   opts.Authorizer,
		Register:     make(chan *Client),
		Unregister:   make(chan *Client),
		inbound:      make(chan inbound, 64),
		remote:       make(chan Envelope, 256),
		outbound:     make(chan Envelope, 256),
		storeTimeout: opts.StoreTimeout,
		done:         make(chan struct{}),
	}
	if h.storeTimeout <= 0 {
		h.storeTimeout = 5 * time.Second
	}

	store := opts.Presence
	if store == nil {
		store = NewMemoryPresenceStore()
	}
	newRelay := opts.NewUpdateRelay
	if newRelay == nil {
		newRelay = func(out Broadcaster, log *slog.Logger) UpdateRelay { return NewBroadcastRelay(out, log) }
	}

	h.channels = NewChannels(h.deliver)
	h.presence = NewPresence(store, h, log)
	h.updates = newRelay(h, log)
	h.chat = NewChatRelay(h, opts.Messages, log)
	return h
}

// Run processes events until ctx is cancelled, then disconnects everyone.
// In bus mode the broadcasts queued during shutdown are flushed before Done
// is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.bus != nil {
		flushed := make(chan struct{})
		go h.publishLoop(flushed)
		defer func() {
			close(h.outbound)
			<-flushed
		}()
	}
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.register(client)

		case client := <-h.Unregister:
			h.unregister(client)

		case in := <-h.inbound:
			h.dispatch(in.client, in.cmd)

		case env := <-h.remote:
			h.fanout(env)
		}
		h.reap()
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Remote is where a Bus subscriber hands envelopes from other instances.
func (h *Hub) Remote() chan<- Envelope { return h.remote }

// Submit queues an inbound event. It returns false once the hub is stopped.
func (h *Hub) Submit(c *Client, cmd any) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.inbound <- inbound{client: c, cmd: cmd}:
		return true
	case <-h.done:
		return false
	}
}

// Connect hands a new client to the loop.
func (h *Hub) Connect(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Disconnect is called by the transport when the peer is gone.
func (h *Hub) Disconnect(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// Broadcast implements Broadcaster for the relays and the presence tracker.
// In bus mode it only queues the envelope; the loop blocks only once the
// publish queue is full.
func (h *Hub) Broadcast(key ChannelKey, payload []byte, exclude string) {
	env := Envelope{Channel: key, Exclude: exclude, Payload: payload}
	if h.bus == nil {
		h.fanout(env)
		return
	}
	h.outbound <- env
}

// publishLoop is the only caller of Bus.Publish, so envelopes leave in the
// order the loop produced them.
func (h *Hub) publishLoop(flushed chan<- struct{}) {
	defer close(flushed)
	for env := range h.outbound {
		h.publish(env)
	}
}

func (h *Hub) publish(env Envelope) {
	ctx, cancel := h.storeContext()
	defer cancel()
	if err := h.bus.Publish(ctx, env); err != nil {
		h.log.Error("Bus publish failed", "channel", env.Channel.String(), "error", err)
	}
}

func (h *Hub) register(c *Client) {
	if c == nil {
		h.log.Warn("Received nil client registration; skipping")
		return
	}

	h.clients[c.ID] = c
	h.registry.Register(c.ID)
	if c.UserID != "" {
		h.registry.Verify(c.ID, c.UserID, c.DisplayName)
	}
	h.log.Info("Client registered", "conn", c.ID, "user", c.UserID, "clients", len(h.clients))
}

func (h *Hub) unregister(c *Client) {
	if c == nil {
		return
	}
	// Always check they still exist, a dead client may already be reaped
	if known, ok := h.clients[c.ID]; !ok || known != c {
		return
	}
	h.drop(c.ID)
	h.log.Info("Client unregistered", "conn", c.ID, "clients", len(h.clients))
}

// drop runs the whole disconnect cascade: channel leave, presence removal
// and re-broadcast, record removal, and closing the outbound queue.
func (h *Hub) drop(id string) {
	c, ok := h.clients[id]
	if !ok {
		return
	}
	if conn, ok := h.registry.Lookup(id); ok && !conn.Channel.IsZero() {
		h.leave(conn)
	}
	h.registry.Unregister(id)
	delete(h.clients, id)
	close(c.send)
}

func (h *Hub) dispatch(c *Client, cmd any) {
	if c == nil {
		return
	}
	conn, ok := h.registry.Lookup(c.ID)
	if !ok {
		h.log.Warn("Event from unregistered connection", "conn", c.ID)
		return
	}

	var (
		event string
		err   error
	)
	switch cmd := cmd.(type) {
	case JoinDocument:
		event, err = EventJoinDocument, h.joinDocument(conn, cmd)
	case DocumentUpdate:
		event, err = EventDocumentUpdate, h.documentUpdate(conn, cmd)
	case JoinChatRoom:
		event, err = EventJoinChatRoom, h.joinChatRoom(conn, cmd)
	case SendChatMessage:
		event, err = EventSendChatMessage, h.sendChatMessage(conn, cmd)
	case LeaveChatRoom:
		event, err = EventLeaveChatRoom, h.leaveChatRoom(conn, cmd)
	default:
		event, err = "", ErrUnknownEvent
	}
	if err == nil {
		return
	}

	if isViolation(err) {
		h.log.Warn("Protocol violation, event dropped", "conn", conn.ID, "event", event, "reason", err)
		return
	}
	h.log.Error("Event failed", "conn", conn.ID, "event", event, "error", err)
}

func (h *Hub) joinDocument(conn Connection, cmd JoinDocument) error {
	userID, name, err := resolveIdentity(conn, cmd.UserID, cmd.DisplayName)
	if err != nil {
		return err
	}
	h.registry.Identify(conn.ID, userID, name)

	key := DocumentChannel(cmd.DocumentID)
	rejoin := h.channels.IsMember(conn.ID, key)
	h.join(conn, key)

	ctx, cancel := h.storeContext()
	defer cancel()
	err = h.presence.OnJoin(ctx, cmd.DocumentID, PresenceEntry{
		UserID:       userID,
		DisplayName:  name,
		ConnectionID: conn.ID,
	})
	if err != nil && !rejoin {
		// A member without a presence entry would get updates unseen
		h.channels.Leave(conn.ID, key)
		h.registry.SetChannel(conn.ID, ChannelKey{})

		undo, cancelUndo := h.storeContext()
		defer cancelUndo()
		h.presence.Discard(undo, cmd.DocumentID, conn.ID)
	}
	return err
}

func (h *Hub) documentUpdate(conn Connection, cmd DocumentUpdate) error {
	userID, _, err := resolveIdentity(conn, cmd.UserID, "")
	if err != nil {
		return err
	}
	if !h.channels.IsMember(conn.ID, DocumentChannel(cmd.DocumentID)) {
		return ErrNotJoined
	}

	ctx, cancel := h.storeContext()
	defer cancel()
	return h.updates.PublishUpdate(ctx, Update{
		DocumentID:   cmd.DocumentID,
		OriginConnID: conn.ID,
		OriginUserID: userID,
		Title:        cmd.Title,
		Content:      cmd.Content,
	})
}

func (h *Hub) joinChatRoom(conn Connection, cmd JoinChatRoom) error {
	userID, name, err := resolveIdentity(conn, cmd.UserID, cmd.DisplayName)
	if err != nil {
		return err
	}
	h.registry.Identify(conn.ID, userID, name)

	key := ChatRoomChannel(cmd.RoomID)
	if h.channels.IsMember(conn.ID, key) {
		return nil
	}
	h.join(conn, key)
	h.chat.Joined(cmd.RoomID, conn.ID, userID, name)
	return nil
}

func (h *Hub) sendChatMessage(conn Connection, cmd SendChatMessage) error {
	userID, name, err := resolveIdentity(conn, cmd.UserID, cmd.DisplayName)
	if err != nil {
		return err
	}
	if !h.channels.IsMember(conn.ID, ChatRoomChannel(cmd.RoomID)) {
		return ErrNotJoined
	}

	ctx, cancel := h.storeContext()
	defer cancel()
	return h.chat.PublishMessage(ctx, cmd.RoomID, userID, name, cmd.Text)
}

func (h *Hub) leaveChatRoom(conn Connection, cmd LeaveChatRoom) error {
	if !h.channels.IsMember(conn.ID, ChatRoomChannel(cmd.RoomID)) {
		return nil
	}
	if cmd.DisplayName != "" {
		conn.DisplayName = cmd.DisplayName
	}
	h.leave(conn)
	return nil
}

// join moves the connection into key, running the leave side effects of
// the channel it was in before.
func (h *Hub) join(conn Connection, key ChannelKey) {
	left, moved := h.channels.Join(conn.ID, key)
	h.registry.SetChannel(conn.ID, key)
	if moved {
		h.afterLeave(conn, left)
	}
}

func (h *Hub) leave(conn Connection) {
	key := conn.Channel
	h.channels.Leave(conn.ID, key)
	h.registry.SetChannel(conn.ID, ChannelKey{})
	h.afterLeave(conn, key)
}

func (h *Hub) afterLeave(conn Connection, key ChannelKey) {
	switch key.Kind {
	case KindDocument:
		ctx, cancel := h.storeContext()
		defer cancel()
		if err := h.presence.OnLeave(ctx, key.ID, conn.ID); err != nil {
			h.log.Error("Presence cleanup failed", "conn", conn.ID, "document", key.ID, "error", err)
		}
	case KindChatRoom:
		h.chat.Left(key.ID, conn.DisplayName)
	}
}

func (h *Hub) fanout(env Envelope) {
	failed := h.channels.Broadcast(env.Channel, env.Payload, env.Exclude)
	h.dead = append(h.dead, failed...)
}

// deliver never blocks: a client whose queue is full is considered dead.
func (h *Hub) deliver(connID string, payload []byte) bool {
	c, ok := h.clients[connID]
	if !ok {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		h.log.Warn("Send buffer full, dropping client", "conn", connID)
		return false
	}
}

// reap disconnects the clients that failed a delivery during the last step.
// Their cascade may broadcast again and fail others, hence the loop.
func (h *Hub) reap() {
	for len(h.dead) > 0 {
		id := h.dead[0]
		h.dead = h.dead[1:]
		h.drop(id)
	}
}

func (h *Hub) shutdown() {
	h.log.Info("Shutting down hub", "clients", len(h.clients))
	for _, id := range h.registry.IDs() {
		h.drop(id)
	}
	h.reap()
}

func (h *Hub) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.storeTimeout)
}

// resolveIdentity picks the user behind an event: the payload wins unless
// the connection carries a verified identity it disagrees with.
func resolveIdentity(conn Connection, userID, displayName string) (string, string, error) {
	if conn.Verified && userID != "" && userID != conn.UserID {
		return "", "", ErrIdentityClash
	}
	if userID == "" {
		userID = conn.UserID
	}
	if userID == "" {
		return "", "", ErrMissingIdentity
	}
	if displayName == "" {
		displayName = conn.DisplayName
	}
	return userID, displayName, nil
}

func isViolation(err error) bool {
	for _, target := range []error{
		ErrUnknownEvent, ErrMalformedEvent, ErrMissingIdentity,
		ErrIdentityClash, ErrNotJoined, ErrEmptyMessage,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
