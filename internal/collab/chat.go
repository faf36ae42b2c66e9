package collab

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChatRelay broadcasts room messages. Unlike document updates the sender is
// part of the audience: clients render their own message from the echo.
type ChatRelay struct {
	out   Broadcaster
	store MessageStore // optional
	now   func() time.Time
	log   *slog.Logger
}

func NewChatRelay(out Broadcaster, store MessageStore, log *slog.Logger) *ChatRelay {
	return &ChatRelay{out: out, store: store, now: time.Now, log: log}
}

// PublishMessage persists the message when a store is configured, then
// sends it to the whole room. A message that could not be saved is not sent.
func (r *ChatRelay) PublishMessage(ctx context.Context, roomID, senderID, senderName, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if senderID == "" {
		return ErrMissingIdentity
	}

	msg := &ChatMessage{
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
	}
	if r.store != nil {
		if err := r.store.SaveMessage(ctx, msg); err != nil {
			return fmt.Errorf("save chat message in %s: %w", roomID, err)
		}
	} else {
		msg.ID = uuid.NewString()
		msg.Timestamp = r.now().UTC()
	}

	payload, err := Encode(EventReceiveChatMessage, msg)
	if err != nil {
		return err
	}
	r.out.Broadcast(ChatRoomChannel(roomID), payload, "")
	return nil
}

// Joined tells the rest of the room that someone arrived.
func (r *ChatRelay) Joined(roomID, connID, userID, displayName string) {
	r.notice(roomID, connID, EventUserJoined, SystemNotice{
		Message:     displayName + " joined the chat",
		UserID:      userID,
		DisplayName: displayName,
		Timestamp:   r.now().UTC(),
	})
}

// Left is sent after the connection is already out of the room.
func (r *ChatRelay) Left(roomID, displayName string) {
	r.notice(roomID, "", EventUserLeft, SystemNotice{
		Message:     displayName + " left the chat",
		DisplayName: displayName,
		Timestamp:   r.now().UTC(),
	})
}

func (r *ChatRelay) notice(roomID, exclude, event string, n SystemNotice) {
	payload, err := Encode(event, n)
	if err != nil {
		r.log.Error("Failed to encode chat notice", "room", roomID, "event", event, "error", err)
		return
	}
	r.out.Broadcast(ChatRoomChannel(roomID), payload, exclude)
}
