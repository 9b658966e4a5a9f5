package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"landregistry/internal/document/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// InMemoryDocumentStore keeps documents in a map guarded by a RWMutex.
type InMemoryDocumentStore struct {
	mu        sync.RWMutex
	documents map[id.DocumentID]*models.Document
}

func New() *InMemoryDocumentStore {
	return &InMemoryDocumentStore{documents: make(map[id.DocumentID]*models.Document)}
}

func (s *InMemoryDocumentStore) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.documents[doc.ID]; taken {
		return fmt.Errorf("document id: %w", sentinel.ErrAlreadyUsed)
	}
	s.documents[doc.ID] = doc.Clone()
	return nil
}

func (s *InMemoryDocumentStore) FindByID(_ context.Context, docID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return doc.Clone(), nil
}

// List returns documents uploaded by one of uploaders, newest first. A nil
// uploaders slice lists everything.
func (s *InMemoryDocumentStore) List(_ context.Context, uploaders []id.UserID, filter models.ListFilter) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*models.Document, 0)
	for _, doc := range s.documents {
		if !uploadedBy(uploaders, doc.UploadedBy) || !filter.Matches(doc) {
			continue
		}
		result = append(result, doc.Clone())
	}
	sortNewestFirst(result)
	return result, nil
}

// Update writes title, type and metadata while the document is unverified.
func (s *InMemoryDocumentStore) Update(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.documents[doc.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.IsVerified {
		return sentinel.ErrInvalidState
	}
	next := stored.Clone()
	next.Title = doc.Title
	next.DocumentType = doc.DocumentType
	next.Metadata = doc.Clone().Metadata
	next.UpdatedAt = doc.UpdatedAt
	s.documents[doc.ID] = next
	return nil
}

// Verify marks an unverified document as verified by verifier.
func (s *InMemoryDocumentStore) Verify(_ context.Context, docID id.DocumentID, verifier id.UserID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.documents[docID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.IsVerified {
		return sentinel.ErrInvalidState
	}
	next := stored.Clone()
	next.IsVerified = true
	next.VerifiedBy = &verifier
	next.VerifiedAt = &now
	next.UpdatedAt = now
	s.documents[docID] = next
	return nil
}
