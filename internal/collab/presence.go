package collab

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

// Broadcaster fans a payload out to a channel. An empty exclude means everyone.
type Broadcaster interface {
	Broadcast(key ChannelKey, payload []byte, exclude string)
}

// MemoryPresenceStore is the single-instance PresenceStore.
type MemoryPresenceStore struct {
	entries map[string][]PresenceEntry
}

func NewMemoryPresenceStore() *MemoryPresenceStore {
	return &MemoryPresenceStore{entries: make(map[string][]PresenceEntry)}
}

func (s *MemoryPresenceStore) Add(_ context.Context, documentID string, entry PresenceEntry) error {
	entries := s.entries[documentID]
	_, idx, found := lo.FindIndexOf(entries, func(e PresenceEntry) bool {
		return e.ConnectionID == entry.ConnectionID
	})
	if found {
		// keep the join position, refresh the name
		entries[idx] = entry
		return nil
	}
	s.entries[documentID] = append(entries, entry)
	return nil
}

func (s *MemoryPresenceStore) Remove(_ context.Context, documentID, connectionID string) (int, error) {
	entries := lo.Reject(s.entries[documentID], func(e PresenceEntry, _ int) bool {
		return e.ConnectionID == connectionID
	})
	if len(entries) == 0 {
		delete(s.entries, documentID)
		return 0, nil
	}
	s.entries[documentID] = entries
	return len(entries), nil
}

func (s *MemoryPresenceStore) List(_ context.Context, documentID string) ([]PresenceEntry, error) {
	return append([]PresenceEntry(nil), s.entries[documentID]...), nil
}

// Presence tracks who is in each document and pushes onlineUsers snapshots.
// Snapshots go to every member, the joiner included.
type Presence struct {
	store PresenceStore
	out   Broadcaster
	log   *slog.Logger
}

func NewPresence(store PresenceStore, out Broadcaster, log *slog.Logger) *Presence {
	return &Presence{store: store, out: out, log: log}
}

func (p *Presence) OnJoin(ctx context.Context, documentID string, entry PresenceEntry) error {
	if err := p.store.Add(ctx, documentID, entry); err != nil {
		return fmt.Errorf("presence add %s: %w", documentID, err)
	}
	return p.publish(ctx, documentID)
}

// Discard drops the entry of a join that did not go through. Nobody is told.
func (p *Presence) Discard(ctx context.Context, documentID, connectionID string) {
	if _, err := p.store.Remove(ctx, documentID, connectionID); err != nil {
		p.log.Warn("Presence discard failed", "document", documentID, "conn", connectionID, "error", err)
	}
}

// OnLeave removes the entry. Nobody is left to tell when the document empties.
func (p *Presence) OnLeave(ctx context.Context, documentID, connectionID string) error {
	remaining, err := p.store.Remove(ctx, documentID, connectionID)
	if err != nil {
		return fmt.Errorf("presence remove %s: %w", documentID, err)
	}
	if remaining == 0 {
		p.log.Debug("Document is empty, no presence broadcast", "document", documentID)
		return nil
	}
	return p.publish(ctx, documentID)
}

func (p *Presence) Snapshot(ctx context.Context, documentID string) ([]PresenceEntry, error) {
	return p.store.List(ctx, documentID)
}

func (p *Presence) publish(ctx context.Context, documentID string) error {
	entries, err := p.store.List(ctx, documentID)
	if err != nil {
		return fmt.Errorf("presence list %s: %w", documentID, err)
	}
	if entries == nil {
		entries = []PresenceEntry{}
	}
	payload, err := Encode(EventOnlineUsers, entries)
	if err != nil {
		return err
	}
	p.out.Broadcast(DocumentChannel(documentID), payload, "")
	return nil
}
