package document

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrForbidden     = errors.New("access denied")
	ErrEmptyTitle    = errors.New("document title is required")
	ErrShareWithSelf = errors.New("cannot share document with yourself")
	ErrAlreadyShared = errors.New("document already shared with this user")
	ErrNotShared     = errors.New("document is not shared with this user")
)

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns the documents userID owns or has been given, newest update first.
func (s *Service) List(ctx context.Context, userID int) ([]Document, error) {
	return s.store.ListForUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID int, id string) (*Document, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.CanRead(userID) {
		return nil, ErrForbidden
	}
	return doc, nil
}

func (s *Service) Create(ctx context.Context, userID int, req *CreateRequest) (*Document, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	doc := &Document{
		ID:      uuid.NewString(),
		Title:   title,
		Content: req.Content,
		Owner:   UserRef{ID: userID},
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, doc.ID)
}

// Update is the explicit save: owner and shared users may write.
func (s *Service) Update(ctx context.Context, userID int, id string, req *UpdateRequest) (*Document, error) {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, ErrEmptyTitle
		}
		doc.Title = title
	}
	if req.Content != nil {
		doc.Content = *req.Content
	}

	if err := s.store.Save(ctx, doc); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, doc.ID)
}

func (s *Service) Delete(ctx context.Context, userID int, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}

func (s *Service) SharedWith(ctx context.Context, userID int, id string) ([]UserRef, error) {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return doc.SharedWith, nil
}

func (s *Service) Share(ctx context.Context, userID int, id string, targetID int) ([]UserRef, error) {
	doc, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if targetID == userID {
		return nil, ErrShareWithSelf
	}
	if doc.IsShared(targetID) {
		return nil, ErrAlreadyShared
	}

	if err := s.store.AddShare(ctx, id, targetID); err != nil {
		return nil, err
	}
	return s.sharesAfterChange(ctx, id)
}

func (s *Service) Unshare(ctx context.Context, userID int, id string, targetID int) ([]UserRef, error) {
	doc, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !doc.IsShared(targetID) {
		return nil, ErrNotShared
	}

	if err := s.store.RemoveShare(ctx, id, targetID); err != nil {
		return nil, err
	}
	return s.sharesAfterChange(ctx, id)
}

func (s *Service) Permissions(ctx context.Context, userID int, id string) (*Permissions, error) {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	owner := doc.IsOwner(userID)
	return &Permissions{
		CanRead:   true,
		CanWrite:  true,
		CanShare:  owner,
		CanDelete: owner,
		IsOwner:   owner,
	}, nil
}

// CanAccess gates joinDocument on the realtime channel. Unknown documents
// and malformed ids are a plain "no", not an error.
func (s *Service) CanAccess(ctx context.Context, userID, documentID string) (bool, error) {
	id, err := strconv.Atoi(userID)
	if err != nil {
		return false, nil
	}
	doc, err := s.load(ctx, documentID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return doc.CanRead(id), nil
}

// load maps ids that are not UUIDs to ErrNotFound before touching the store.
func (s *Service) load(ctx context.Context, id string) (*Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

func (s *Service) owned(ctx context.Context, userID int, id string) (*Document, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.IsOwner(userID) {
		return nil, ErrForbidden
	}
	return doc, nil
}

func (s *Service) sharesAfterChange(ctx context.Context, id string) ([]UserRef, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.SharedWith, nil
}
