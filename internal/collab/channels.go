package collab

import "github.com/samber/lo"

// Kind separates document channels from chat rooms so a document and a
// room sharing an id never see each other's traffic.
type Kind string

const (
	KindDocument Kind = "document"
	KindChatRoom Kind = "chat"
)

// ChannelKey identifies one broadcast group.
type ChannelKey struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func DocumentChannel(id string) ChannelKey { return ChannelKey{Kind: KindDocument, ID: id} }
func ChatRoomChannel(id string) ChannelKey { return ChannelKey{Kind: KindChatRoom, ID: id} }

// IsZero reports whether the key names no channel at all.
func (k ChannelKey) IsZero() bool { return k.ID == "" }

func (k ChannelKey) String() string { return string(k.Kind) + ":" + k.ID }

// DeliverFunc hands a payload to one connection's outbound queue.
// It must not block and returns false when the connection could not take it.
type DeliverFunc func(connID string, payload []byte) bool

// Channels is the membership table behind every relay.
// Members are kept in join order so fan-out is deterministic.
type Channels struct {
	members map[ChannelKey][]string
	current map[string]ChannelKey // connection -> the one channel it is in
	deliver DeliverFunc
}

func NewChannels(deliver DeliverFunc) *Channels {
	return &Channels{
		members: make(map[ChannelKey][]string),
		current: make(map[string]ChannelKey),
		deliver: deliver,
	}
}

// Join adds connID to key. A connection lives in one channel at a time, so
// it is first removed from whatever channel it was in before.
// It returns the channel that was left, if any.
func (c *Channels) Join(connID string, key ChannelKey) (left ChannelKey, moved bool) {
	prev, ok := c.current[connID]
	if ok && prev == key {
		return ChannelKey{}, false
	}
	if ok {
		c.Leave(connID, prev)
	}

	c.members[key] = append(c.members[key], connID)
	c.current[connID] = key
	return prev, ok
}

// Leave removes connID from key and discards the channel once it is empty.
// It reports whether connID was actually a member.
func (c *Channels) Leave(connID string, key ChannelKey) bool {
	members, ok := c.members[key]
	if !ok || !lo.Contains(members, connID) {
		return false
	}

	members = lo.Without(members, connID)
	if len(members) == 0 {
		delete(c.members, key)
	} else {
		c.members[key] = members
	}
	delete(c.current, connID)
	return true
}

// Broadcast delivers payload to every member of key except exclude.
// Delivery failures never stop the loop; the ids that failed are returned
// so the caller can reap them once the broadcast is over.
func (c *Channels) Broadcast(key ChannelKey, payload []byte, exclude string) []string {
	var failed []string
	for _, connID := range c.members[key] {
		if exclude != "" && connID == exclude {
			continue
		}
		if !c.deliver(connID, payload) {
			failed = append(failed, connID)
		}
	}
	return failed
}

// MembersOf returns a copy of the member ids of key, in join order.
func (c *Channels) MembersOf(key ChannelKey) []string {
	return append([]string(nil), c.members[key]...)
}

// IsMember reports whether connID is currently joined to key.
func (c *Channels) IsMember(connID string, key ChannelKey) bool {
	cur, ok := c.current[connID]
	return ok && cur == key
}

// Len is the number of live channels.
func (c *Channels) Len() int { return len(c.members) }
