package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"driftnote/internal/domain"
	"driftnote/internal/domain/models"
	"driftnote/internal/domain/repositories"
)

// memStore backs the full handler stack in tests: one type satisfies every
// repository interface the services need, so a test server wires up exactly
// like main does, just without postgres.
type memStore struct {
	mu         sync.Mutex
	docs       map[uuid.UUID]*models.Document
	workspaces map[uuid.UUID]*models.Workspace
	settings   map[string]*models.Settings
	snapshots  map[uuid.UUID]*repositories.RoomSnapshot
}

func newMemStore() *memStore {
	return &memStore{
		docs:       make(map[uuid.UUID]*models.Document),
		workspaces: make(map[uuid.UUID]*models.Workspace),
		settings:   make(map[string]*models.Settings),
		snapshots:  make(map[uuid.UUID]*repositories.RoomSnapshot),
	}
}

func (s *memStore) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

func (s *memStore) getDoc(id uuid.UUID, userID string) (*models.Document, error) {
	doc, ok := s.docs[id]
	if !ok || doc.UserID != userID {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	cp := *doc
	return &cp, nil
}

func (s *memStore) GetByID(ctx context.Context, id uuid.UUID, userID string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getDoc(id, userID)
}

func (s *memStore) GetForUpdate(ctx context.Context, id uuid.UUID, userID string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getDoc(id, userID)
}

func (s *memStore) Insert(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrConflict)
	}
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *memStore) Update(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; !exists {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrNotFound)
	}
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *memStore) ListChangedSince(ctx context.Context, userID string, since time.Time, includeDeleted bool) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Document{}
	for _, doc := range s.docs {
		if doc.UserID != userID || !doc.UpdatedAt.After(since) {
			continue
		}
		if doc.Deleted && !includeDeleted {
			continue
		}
		out = append(out, *doc)
	}
	return out, nil
}

func (s *memStore) ListDeletedIDsSince(ctx context.Context, userID string, since time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []uuid.UUID{}
	for _, doc := range s.docs {
		if doc.UserID == userID && doc.Deleted && doc.DeletedAt != nil && doc.DeletedAt.After(since) {
			out = append(out, doc.ID)
		}
	}
	return out, nil
}

func (s *memStore) ListActive(ctx context.Context, userID string) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Document{}
	for _, doc := range s.docs {
		if doc.UserID == userID && !doc.Deleted {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (s *memStore) UpdateContent(ctx context.Context, id uuid.UUID, content json.RawMessage, plainText string, wordCount int, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	doc.Content = content
	doc.PlainText = plainText
	doc.WordCount = wordCount
	doc.UpdatedAt = updatedAt
	return nil
}

func (s *memStore) DetachWorkspace(ctx context.Context, userID string, workspaceID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.docs {
		if doc.UserID == userID && doc.WorkspaceID != nil && *doc.WorkspaceID == workspaceID {
			doc.WorkspaceID = nil
		}
	}
	return nil
}

func (s *memStore) Purge(ctx context.Context, id uuid.UUID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; !ok || doc.UserID != userID {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	delete(s.docs, id)
	return nil
}

// workspaceRepo adapts memStore to the workspace interface; the method set
// collides with the document one on names, so it lives on a wrapper.
type workspaceRepo struct{ *memStore }

func (s workspaceRepo) getWorkspace(id uuid.UUID, userID string) (*models.Workspace, error) {
	ws, ok := s.workspaces[id]
	if !ok || ws.UserID != userID {
		return nil, fmt.Errorf("workspace %s: %w", id, domain.ErrNotFound)
	}
	cp := *ws
	return &cp, nil
}

func (s workspaceRepo) GetByID(ctx context.Context, id uuid.UUID, userID string) (*models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getWorkspace(id, userID)
}

func (s workspaceRepo) GetForUpdate(ctx context.Context, id uuid.UUID, userID string) (*models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getWorkspace(id, userID)
}

func (s workspaceRepo) Insert(ctx context.Context, ws *models.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workspaces[ws.ID]; exists {
		return fmt.Errorf("workspace %s: %w", ws.ID, domain.ErrConflict)
	}
	cp := *ws
	s.workspaces[ws.ID] = &cp
	return nil
}

func (s workspaceRepo) Update(ctx context.Context, ws *models.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workspaces[ws.ID]; !exists {
		return fmt.Errorf("workspace %s: %w", ws.ID, domain.ErrNotFound)
	}
	cp := *ws
	s.workspaces[ws.ID] = &cp
	return nil
}

func (s workspaceRepo) ListChangedSince(ctx context.Context, userID string, since time.Time) ([]models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Workspace{}
	for _, ws := range s.workspaces {
		if ws.UserID == userID && ws.UpdatedAt.After(since) {
			out = append(out, *ws)
		}
	}
	return out, nil
}

func (s workspaceRepo) IsAncestor(ctx context.Context, userID string, candidate, node uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := node
	for i := 0; i < 1000; i++ {
		if current == candidate {
			return true, nil
		}
		ws, ok := s.workspaces[current]
		if !ok || ws.ParentID == nil {
			return false, nil
		}
		current = *ws.ParentID
	}
	return false, fmt.Errorf("ancestry walk did not terminate")
}

func (s workspaceRepo) ReparentChildren(ctx context.Context, userID string, oldParent uuid.UUID, newParent *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.workspaces {
		if ws.UserID == userID && ws.ParentID != nil && *ws.ParentID == oldParent {
			ws.ParentID = newParent
		}
	}
	return nil
}

func (s workspaceRepo) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ws, ok := s.workspaces[id]; !ok || ws.UserID != userID {
		return fmt.Errorf("workspace %s: %w", id, domain.ErrNotFound)
	}
	delete(s.workspaces, id)
	return nil
}

type settingsRepo struct{ *memStore }

func (s settingsRepo) GetByUser(ctx context.Context, userID string) (*models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[userID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s settingsRepo) Upsert(ctx context.Context, settings *models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.settings[settings.UserID]; ok {
		settings.Version = existing.Version + 1
	} else {
		settings.Version = 1
	}
	cp := *settings
	s.settings[settings.UserID] = &cp
	return nil
}

type snapshotRepo struct{ *memStore }

func (s snapshotRepo) Get(ctx context.Context, documentID uuid.UUID) (*repositories.RoomSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[documentID]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

func (s snapshotRepo) Save(ctx context.Context, snapshot *repositories.RoomSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snapshot
	s.snapshots[snapshot.DocumentID] = &cp
	return nil
}

func (s snapshotRepo) Delete(ctx context.Context, documentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, documentID)
	return nil
}
