package document

import (
	"time"

	"github.com/samber/lo"
)

// UserRef is the public face of a user attached to a document.
type UserRef struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
}

type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Owner      UserRef   `json:"owner"`
	SharedWith []UserRef `json:"sharedWith"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// IsOwner reports whether userID owns d.
func (d *Document) IsOwner(userID int) bool {
	return d.Owner.ID == userID
}

// IsShared reports whether d is shared with userID.
func (d *Document) IsShared(userID int) bool {
	return lo.ContainsBy(d.SharedWith, func(u UserRef) bool { return u.ID == userID })
}

func (d *Document) CanRead(userID int) bool {
	return d.IsOwner(userID) || d.IsShared(userID)
}

type Permissions struct {
	CanRead   bool `json:"canRead"`
	CanWrite  bool `json:"canWrite"`
	CanShare  bool `json:"canShare"`
	CanDelete bool `json:"canDelete"`
	IsOwner   bool `json:"isOwner"`
}

type CreateRequest struct {
	Title   string `json:"title" validate:"required,max=500"`
	Content string `json:"content"`
}

// UpdateRequest leaves a field untouched when it is nil.
type UpdateRequest struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

type ShareRequest struct {
	UserID int `json:"userId" validate:"required,gt=0"`
}

type ShareResponse struct {
	Message    string    `json:"message"`
	SharedWith []UserRef `json:"sharedWith"`
}
