package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

// BroadcastTopic is the Redis pub/sub channel every instance listens on.
const BroadcastTopic = "collab:broadcast"

// Envelope is one broadcast in flight between instances.
type Envelope struct {
	Channel ChannelKey      `json:"channel"`
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Bus carries broadcasts to every instance, this one included.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
}

// RedisBus fans broadcasts out through Redis pub/sub. Each instance
// delivers what it receives to its own members only.
type RedisBus struct {
	redis *redis.Client
	topic string
	log   *slog.Logger
}

func NewRedisBus(client *redis.Client, log *slog.Logger) *RedisBus {
	return &RedisBus{redis: client, topic: BroadcastTopic, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return b.redis.Publish(ctx, b.topic, data).Err()
}

// Subscribe listens for envelopes from every instance and hands them to
// deliver until ctx is done.
func (b *RedisBus) Subscribe(ctx context.Context, deliver chan<- Envelope) error {
	pubsub := b.redis.Subscribe(ctx, b.topic)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting ready
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.topic, err)
	}
	b.log.Info("Subscribed to broadcast topic", "topic", b.topic)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			env, err := decodeEnvelope(msg.Payload)
			if err != nil {
				b.log.Warn("Dropping undecodable envelope", "error", err)
				continue
			}
			select {
			case deliver <- env:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func decodeEnvelope(payload string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Envelope{}, err
	}
	if env.Channel.IsZero() {
		return Envelope{}, fmt.Errorf("envelope without channel")
	}
	return env, nil
}

// RedisPresenceStore keeps presence in one Redis list per document so
// every instance computes the same snapshot. Every entry names the instance
// that wrote it. An instance whose heartbeat key has expired is gone, and
// its entries are pruned by the next script that touches the list.
type RedisPresenceStore struct {
	redis    *redis.Client
	prefix   string
	alive    string
	instance string
	ttl      time.Duration
	log      *slog.Logger
}

// presenceRecord is what the list holds: the entry plus its instance.
type presenceRecord struct {
	Instance string `json:"instance"`
	PresenceEntry
}

func NewRedisPresenceStore(client *redis.Client, ttl time.Duration, log *slog.Logger) *RedisPresenceStore {
	return &RedisPresenceStore{
		redis:    client,
		prefix:   "collab:presence:",
		alive:    "collab:instance:",
		instance: uuid.NewString(),
		ttl:      ttl,
		log:      log,
	}
}

func (s *RedisPresenceStore) key(documentID string) string { return s.prefix + documentID }

func (s *RedisPresenceStore) heartbeatKey() string { return s.alive + s.instance }

// prunePresence drops entries of dead instances and undecodable items, then
// returns the survivors in list order. Scripts run atomically, so the list
// they see is the list they change.
const prunePresence = `
local function prune(list, alive)
  local items = redis.call('LRANGE', list, 0, -1)
  local seen = {}
  local kept = {}
  for _, item in ipairs(items) do
    local ok, rec = pcall(cjson.decode, item)
    local live = false
    if ok and type(rec) == 'table' and type(rec.instance) == 'string' then
      live = seen[rec.instance]
      if live == nil then
        live = redis.call('EXISTS', alive .. rec.instance) == 1
        seen[rec.instance] = live
      end
    end
    if live then
      table.insert(kept, {item = item, rec = rec})
    else
      redis.call('LREM', list, 0, item)
    end
  end
  return kept
end
`

// KEYS: list, own heartbeat. ARGV: connection id, record, ttl ms, heartbeat prefix.
var addPresence = redis.NewScript(prunePresence + `
redis.call('SET', KEYS[2], '1', 'PX', ARGV[3])
for i, k in ipairs(prune(KEYS[1], ARGV[4])) do
  if k.rec.connectionId == ARGV[1] then
    redis.call('LSET', KEYS[1], i - 1, ARGV[2])
    return 0
  end
end
redis.call('RPUSH', KEYS[1], ARGV[2])
return 0
`)

// KEYS: list, own heartbeat. ARGV: connection id, ttl ms, heartbeat prefix.
var removePresence = redis.NewScript(prunePresence + `
redis.call('SET', KEYS[2], '1', 'PX', ARGV[2])
for _, k in ipairs(prune(KEYS[1], ARGV[3])) do
  if k.rec.connectionId == ARGV[1] then
    redis.call('LREM', KEYS[1], 1, k.item)
  end
end
return redis.call('LLEN', KEYS[1])
`)

// KEYS: list. ARGV: heartbeat prefix.
var listPresence = redis.NewScript(prunePresence + `
local out = {}
for i, k in ipairs(prune(KEYS[1], ARGV[1])) do
  out[i] = k.item
end
return out
`)

func (s *RedisPresenceStore) Add(ctx context.Context, documentID string, entry PresenceEntry) error {
	data, err := json.Marshal(presenceRecord{Instance: s.instance, PresenceEntry: entry})
	if err != nil {
		return err
	}
	keys := []string{s.key(documentID), s.heartbeatKey()}
	return addPresence.Run(ctx, s.redis, keys, entry.ConnectionID, data, s.ttl.Milliseconds(), s.alive).Err()
}

func (s *RedisPresenceStore) Remove(ctx context.Context, documentID, connectionID string) (int, error) {
	keys := []string{s.key(documentID), s.heartbeatKey()}
	return removePresence.Run(ctx, s.redis, keys, connectionID, s.ttl.Milliseconds(), s.alive).Int()
}

func (s *RedisPresenceStore) List(ctx context.Context, documentID string) ([]PresenceEntry, error) {
	raw, err := listPresence.Run(ctx, s.redis, []string{s.key(documentID)}, s.alive).StringSlice()
	if err != nil {
		return nil, err
	}
	entries := lo.FilterMap(raw, func(item string, _ int) (PresenceEntry, bool) {
		var rec presenceRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return PresenceEntry{}, false
		}
		return rec.PresenceEntry, true
	})
	return entries, nil
}

// Heartbeat marks this instance alive for one ttl.
func (s *RedisPresenceStore) Heartbeat(ctx context.Context) error {
	return s.redis.Set(ctx, s.heartbeatKey(), 1, s.ttl).Err()
}

// KeepAlive refreshes the heartbeat three times per ttl until ctx is done.
// Once it stops, the entries of this instance expire with the key.
func (s *RedisPresenceStore) KeepAlive(ctx context.Context) {
	ticker := time.NewTicker(s.ttl / 3)
	defer ticker.Stop()
	for {
		if err := s.Heartbeat(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("Presence heartbeat failed", "instance", s.instance, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
