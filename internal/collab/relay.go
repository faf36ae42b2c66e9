package collab

import (
	"context"
	"log/slog"
)

// Update is one editor mutation of a document.
type Update struct {
	DocumentID   string
	OriginConnID string
	OriginUserID string
	Title        string
	Content      string
}

// UpdateRelay decides what an edit turns into on the other editors.
// A merging implementation (OT, CRDT) can replace BroadcastRelay without
// touching channels or presence.
type UpdateRelay interface {
	PublishUpdate(ctx context.Context, u Update) error
}

// BroadcastRelay forwards every edit as-is: the last update a client
// receives is what it shows. It never reads or writes storage.
type BroadcastRelay struct {
	out Broadcaster
	log *slog.Logger
}

func NewBroadcastRelay(out Broadcaster, log *slog.Logger) *BroadcastRelay {
	return &BroadcastRelay{out: out, log: log}
}

// PublishUpdate sends the edit to every connection of the document except
// the one that made it. Other tabs of the same user do get it.
func (r *BroadcastRelay) PublishUpdate(_ context.Context, u Update) error {
	if u.OriginUserID == "" {
		return ErrMissingIdentity
	}

	payload, err := Encode(EventReceiveUpdate, ReceiveUpdate{
		Title:   u.Title,
		Content: u.Content,
		UserID:  u.OriginUserID,
	})
	if err != nil {
		return err
	}

	r.out.Broadcast(DocumentChannel(u.DocumentID), payload, u.OriginConnID)
	r.log.Debug("Update relayed", "document", u.DocumentID, "conn", u.OriginConnID)
	return nil
}
