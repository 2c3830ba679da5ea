package sync

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

// In-memory fakes for the repository interfaces. The service is exercised
// through the same interfaces the postgres implementations satisfy.

type fakeTxManager struct{}

func (fakeTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

type failingTxManager struct{ err error }

func (f failingTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return f.err
}

type fakeDocumentRepo struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*models.Document

	failInsertFor map[uuid.UUID]bool
	detachCalls   []uuid.UUID
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{
		docs:          make(map[uuid.UUID]*models.Document),
		failInsertFor: make(map[uuid.UUID]bool),
	}
}

func (r *fakeDocumentRepo) get(id uuid.UUID, userID string) (*models.Document, error) {
	doc, ok := r.docs[id]
	if !ok || doc.UserID != userID {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeDocumentRepo) GetByID(ctx context.Context, id uuid.UUID, userID string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id, userID)
}

func (r *fakeDocumentRepo) GetForUpdate(ctx context.Context, id uuid.UUID, userID string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id, userID)
}

func (r *fakeDocumentRepo) Insert(ctx context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failInsertFor[doc.ID] {
		return fmt.Errorf("storage unavailable")
	}
	if _, exists := r.docs[doc.ID]; exists {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrConflict)
	}
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *fakeDocumentRepo) Update(ctx context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.docs[doc.ID]; !exists {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrNotFound)
	}
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *fakeDocumentRepo) ListChangedSince(ctx context.Context, userID string, since time.Time, includeDeleted bool) ([]models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Document{}
	for _, doc := range r.docs {
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

func (r *fakeDocumentRepo) ListDeletedIDsSince(ctx context.Context, userID string, since time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []uuid.UUID{}
	for _, doc := range r.docs {
		if doc.UserID == userID && doc.Deleted && doc.DeletedAt != nil && doc.DeletedAt.After(since) {
			out = append(out, doc.ID)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) ListActive(ctx context.Context, userID string) ([]models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Document{}
	for _, doc := range r.docs {
		if doc.UserID == userID && !doc.Deleted {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) UpdateContent(ctx context.Context, id uuid.UUID, content json.RawMessage, plainText string, wordCount int, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	doc.Content = content
	doc.PlainText = plainText
	doc.WordCount = wordCount
	doc.UpdatedAt = updatedAt
	return nil
}

func (r *fakeDocumentRepo) DetachWorkspace(ctx context.Context, userID string, workspaceID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detachCalls = append(r.detachCalls, workspaceID)
	for _, doc := range r.docs {
		if doc.UserID == userID && doc.WorkspaceID != nil && *doc.WorkspaceID == workspaceID {
			doc.WorkspaceID = nil
		}
	}
	return nil
}

func (r *fakeDocumentRepo) Purge(ctx context.Context, id uuid.UUID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	delete(r.docs, id)
	return nil
}

type fakeWorkspaceRepo struct {
	mu         sync.Mutex
	workspaces map[uuid.UUID]*models.Workspace
}

func newFakeWorkspaceRepo() *fakeWorkspaceRepo {
	return &fakeWorkspaceRepo{workspaces: make(map[uuid.UUID]*models.Workspace)}
}

func (r *fakeWorkspaceRepo) get(id uuid.UUID, userID string) (*models.Workspace, error) {
	ws, ok := r.workspaces[id]
	if !ok || ws.UserID != userID {
		return nil, fmt.Errorf("workspace %s: %w", id, domain.ErrNotFound)
	}
	cp := *ws
	return &cp, nil
}

func (r *fakeWorkspaceRepo) GetByID(ctx context.Context, id uuid.UUID, userID string) (*models.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id, userID)
}

func (r *fakeWorkspaceRepo) GetForUpdate(ctx context.Context, id uuid.UUID, userID string) (*models.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id, userID)
}

func (r *fakeWorkspaceRepo) Insert(ctx context.Context, ws *models.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workspaces[ws.ID]; exists {
		return fmt.Errorf("workspace %s: %w", ws.ID, domain.ErrConflict)
	}
	cp := *ws
	r.workspaces[ws.ID] = &cp
	return nil
}

func (r *fakeWorkspaceRepo) Update(ctx context.Context, ws *models.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workspaces[ws.ID]; !exists {
		return fmt.Errorf("workspace %s: %w", ws.ID, domain.ErrNotFound)
	}
	cp := *ws
	r.workspaces[ws.ID] = &cp
	return nil
}

func (r *fakeWorkspaceRepo) ListChangedSince(ctx context.Context, userID string, since time.Time) ([]models.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Workspace{}
	for _, ws := range r.workspaces {
		if ws.UserID == userID && ws.UpdatedAt.After(since) {
			out = append(out, *ws)
		}
	}
	return out, nil
}

func (r *fakeWorkspaceRepo) IsAncestor(ctx context.Context, userID string, candidate, node uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := node
	for i := 0; i < 1000; i++ {
		if current == candidate {
			return true, nil
		}
		ws, ok := r.workspaces[current]
		if !ok || ws.ParentID == nil {
			return false, nil
		}
		current = *ws.ParentID
	}
	return false, fmt.Errorf("ancestry walk did not terminate")
}

func (r *fakeWorkspaceRepo) ReparentChildren(ctx context.Context, userID string, oldParent uuid.UUID, newParent *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ws := range r.workspaces {
		if ws.UserID == userID && ws.ParentID != nil && *ws.ParentID == oldParent {
			ws.ParentID = newParent
		}
	}
	return nil
}

func (r *fakeWorkspaceRepo) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workspaces[id]; !ok {
		return fmt.Errorf("workspace %s: %w", id, domain.ErrNotFound)
	}
	delete(r.workspaces, id)
	return nil
}

type fakeSettingsRepo struct {
	mu       sync.Mutex
	settings map[string]*models.Settings
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{settings: make(map[string]*models.Settings)}
}

func (r *fakeSettingsRepo) GetByUser(ctx context.Context, userID string) (*models.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[userID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSettingsRepo) Upsert(ctx context.Context, settings *models.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.settings[settings.UserID]; ok {
		settings.Version = existing.Version + 1
	} else {
		settings.Version = 1
	}
	cp := *settings
	r.settings[settings.UserID] = &cp
	return nil
}
