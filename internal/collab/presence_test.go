package collab

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type sent struct {
	key     ChannelKey
	frame   Frame
	exclude string
}

// recorder is a Broadcaster that keeps every call.
type recorder struct {
	calls []sent
}

func (r *recorder) Broadcast(key ChannelKey, payload []byte, exclude string) {
	var f Frame
	_ = json.Unmarshal(payload, &f)
	r.calls = append(r.calls, sent{key: key, frame: f, exclude: exclude})
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func entries(t *testing.T, f Frame) []PresenceEntry {
	t.Helper()
	var out []PresenceEntry
	require.NoError(t, json.Unmarshal(f.Data, &out))
	return out
}

func TestPresence_SnapshotsInJoinOrderToEveryone(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	out := &recorder{}
	p := NewPresence(NewMemoryPresenceStore(), out, testLogger())

	// Given three connections, two of them from the same user
	req.NoError(p.OnJoin(ctx, "doc1", PresenceEntry{UserID: "u1", DisplayName: "Ann", ConnectionID: "a"}))
	req.NoError(p.OnJoin(ctx, "doc1", PresenceEntry{UserID: "u2", DisplayName: "Bob", ConnectionID: "b"}))
	req.NoError(p.OnJoin(ctx, "doc1", PresenceEntry{UserID: "u1", DisplayName: "Ann", ConnectionID: "c"}))

	// Then the last snapshot lists all three in join order
	req.Len(out.calls, 3)
	last := out.calls[2]
	req.Equal(DocumentChannel("doc1"), last.key)
	req.Equal(EventOnlineUsers, last.frame.Event)
	req.Empty(last.exclude)
	got := entries(t, last.frame)
	req.Equal([]string{"a", "b", "c"}, []string{got[0].ConnectionID, got[1].ConnectionID, got[2].ConnectionID})
}

func TestPresence_LeaveRebroadcastsUntilEmpty(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	out := &recorder{}
	p := NewPresence(NewMemoryPresenceStore(), out, testLogger())
	req.NoError(p.OnJoin(ctx, "doc1", PresenceEntry{UserID: "u1", ConnectionID: "a"}))
	req.NoError(p.OnJoin(ctx, "doc1", PresenceEntry{UserID: "u2", ConnectionID: "b"}))
	out.calls = nil

	req.NoError(p.OnLeave(ctx, "doc1", "b"))
	req.Len(out.calls, 1)
	req.Equal([]PresenceEntry{{UserID: "u1", ConnectionID: "a"}}, entries(t, out.calls[0].frame))

	// The last one leaving produces no broadcast
	req.NoError(p.OnLeave(ctx, "doc1", "a"))
	req.Len(out.calls, 1)
	snap, err := p.Snapshot(ctx, "doc1")
	req.NoError(err)
	req.Empty(snap)
}

func TestMemoryPresenceStore_AddIsIdempotentPerConnection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewMemoryPresenceStore()

	req.NoError(s.Add(ctx, "d", PresenceEntry{UserID: "u1", DisplayName: "Ann", ConnectionID: "a"}))
	req.NoError(s.Add(ctx, "d", PresenceEntry{UserID: "u2", ConnectionID: "b"}))
	req.NoError(s.Add(ctx, "d", PresenceEntry{UserID: "u1", DisplayName: "Annie", ConnectionID: "a"}))

	list, err := s.List(ctx, "d")
	req.NoError(err)
	req.Len(list, 2)
	req.Equal("Annie", list[0].DisplayName)

	n, err := s.Remove(ctx, "d", "missing")
	req.NoError(err)
	req.Equal(2, n)
}
