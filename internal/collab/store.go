//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_collab_store.go -package=mocks
package collab

import "context"

// PresenceStore keeps the ordered presence entries of every document.
// Add must be idempotent per connection; Remove reports how many entries remain.
type PresenceStore interface {
	Add(ctx context.Context, documentID string, entry PresenceEntry) error
	Remove(ctx context.Context, documentID, connectionID string) (int, error)
	List(ctx context.Context, documentID string) ([]PresenceEntry, error)
}

// MessageStore persists chat messages. SaveMessage fills in ID and Timestamp.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *ChatMessage) error
}

// DocumentAuthorizer decides whether a user may join a document channel.
type DocumentAuthorizer interface {
	CanAccess(ctx context.Context, userID, documentID string) (bool, error)
}
