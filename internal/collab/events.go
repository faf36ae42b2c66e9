package collab

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Inbound event names.
const (
	EventJoinDocument    = "joinDocument"
	EventDocumentUpdate  = "documentUpdate"
	EventJoinChatRoom    = "joinChatRoom"
	EventSendChatMessage = "sendChatMessage"
	EventLeaveChatRoom   = "leaveChatRoom"
)

// Outbound event names.
const (
	EventReceiveUpdate      = "receiveUpdate"
	EventOnlineUsers        = "onlineUsers"
	EventReceiveChatMessage = "receiveChatMessage"
	EventUserJoined         = "userJoined"
	EventUserLeft           = "userLeft"
)

var (
	ErrUnknownEvent    = errors.New("unknown event")
	ErrMalformedEvent  = errors.New("malformed event")
	ErrMissingIdentity = errors.New("event has no user identity")
	ErrIdentityClash   = errors.New("event user does not match the authenticated user")
	ErrNotJoined       = errors.New("connection has not joined the channel")
	ErrEmptyMessage    = errors.New("chat message is empty")
)

// Frame is the JSON envelope of every WebSocket text frame.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// --- inbound payloads ---

type JoinDocument struct {
	DocumentID  string `json:"documentId"`
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type DocumentUpdate struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	UserID     string `json:"userId,omitempty"`
}

type JoinChatRoom struct {
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type SendChatMessage struct {
	RoomID      string `json:"roomId"`
	Text        string `json:"text"`
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type LeaveChatRoom struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName,omitempty"`
}

// --- outbound payloads ---

// ReceiveUpdate is the last-write-wins snapshot sent to the other editors.
type ReceiveUpdate struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	UserID  string `json:"userId"`
}

// PresenceEntry is one joined connection of a document.
type PresenceEntry struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	ConnectionID string `json:"connectionId"`
}

// ChatMessage is both the persisted chat record and the receiveChatMessage payload.
type ChatMessage struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// SystemNotice is the display-only userJoined / userLeft payload.
type SystemNotice struct {
	Message     string    `json:"message"`
	UserID      string    `json:"userId,omitempty"`
	DisplayName string    `json:"displayName"`
	Timestamp   time.Time `json:"timestamp"`
}

// Encode builds an outbound frame.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// Decode turns one inbound frame into its typed payload.
func Decode(message []byte) (any, error) {
	var frame Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var cmd any
	switch frame.Event {
	case EventJoinDocument:
		cmd = &JoinDocument{}
	case EventDocumentUpdate:
		cmd = &DocumentUpdate{}
	case EventJoinChatRoom:
		cmd = &JoinChatRoom{}
	case EventSendChatMessage:
		cmd = &SendChatMessage{}
	case EventLeaveChatRoom:
		cmd = &LeaveChatRoom{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Event)
	}

	if len(frame.Data) == 0 {
		return nil, fmt.Errorf("%w: %s without data", ErrMalformedEvent, frame.Event)
	}
	if err := json.Unmarshal(frame.Data, cmd); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, frame.Event, err)
	}

	switch c := cmd.(type) {
	case *JoinDocument:
		if c.DocumentID == "" {
			return nil, fmt.Errorf("%w: documentId is required", ErrMalformedEvent)
		}
		return *c, nil
	case *DocumentUpdate:
		if c.DocumentID == "" {
			return nil, fmt.Errorf("%w: documentId is required", ErrMalformedEvent)
		}
		return *c, nil
	case *JoinChatRoom:
		if c.RoomID == "" {
			return nil, fmt.Errorf("%w: roomId is required", ErrMalformedEvent)
		}
		return *c, nil
	case *SendChatMessage:
		if c.RoomID == "" {
			return nil, fmt.Errorf("%w: roomId is required", ErrMalformedEvent)
		}
		return *c, nil
	case *LeaveChatRoom:
		if c.RoomID == "" {
			return nil, fmt.Errorf("%w: roomId is required", ErrMalformedEvent)
		}
		return *c, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Event)
}
