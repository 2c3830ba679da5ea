// Package sync implements the authoritative server side of the pull/push
// protocol: optimistic-concurrency writes gated on a per-row version
// counter, watermark-based pulls, workspace deletion with re-parenting, and
// whole-blob last-write-wins settings.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"driftnote/internal/doctree"
	"driftnote/internal/domain"
	"driftnote/internal/domain/models"
	"driftnote/internal/domain/repositories"
)

// Service is the server-side sync engine. All cross-device consistency
// comes from the version gate inside pushDocument/pushWorkspace; no client
// ever holds a lock.
type Service struct {
	docs       repositories.DocumentRepository
	workspaces repositories.WorkspaceRepository
	settings   repositories.SettingsRepository
	txManager  repositories.TransactionManager
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a new sync service
func NewService(
	docs repositories.DocumentRepository,
	workspaces repositories.WorkspaceRepository,
	settings repositories.SettingsRepository,
	txManager repositories.TransactionManager,
	logger *slog.Logger,
) *Service {
	return &Service{
		docs:       docs,
		workspaces: workspaces,
		settings:   settings,
		txManager:  txManager,
		logger:     logger,
		now:        time.Now,
	}
}

// Pull returns every entity of the user changed strictly after since, plus
// the server clock the client must adopt as its next watermark. Idempotent:
// the same watermark returns the same or a superset if new writes landed.
func (s *Service) Pull(ctx context.Context, userID string, since time.Time, includeDeleted bool) (*models.PullResponse, error) {
	docs, err := s.docs.ListChangedSince(ctx, userID, since, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("pull documents: %w", err)
	}

	workspaces, err := s.workspaces.ListChangedSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("pull workspaces: %w", err)
	}

	deletedIDs, err := s.docs.ListDeletedIDsSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("pull deleted ids: %w", err)
	}

	resp := &models.PullResponse{
		Documents:          docs,
		Workspaces:         workspaces,
		DeletedDocumentIDs: deletedIDs,
		ServerTime:         s.now().UnixMilli(),
	}

	stored, err := s.settings.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("pull settings: %w", err)
	}
	if stored != nil && stored.UpdatedAt.After(since) {
		resp.Settings = stored
	}

	return resp, nil
}

// Push processes a batch of entities. Each entity runs in its own
// transaction; a conflict or storage failure on one never aborts its
// siblings.
func (s *Service) Push(ctx context.Context, userID string, req *models.PushRequest) (*models.PushResponse, error) {
	resp := &models.PushResponse{Results: []models.PushResult{}}

	for i := range req.Documents {
		resp.Results = append(resp.Results, s.pushDocument(ctx, userID, &req.Documents[i]))
	}
	for i := range req.Workspaces {
		resp.Results = append(resp.Results, s.pushWorkspace(ctx, userID, &req.Workspaces[i]))
	}

	if req.Settings != nil {
		applied, stored, err := s.MergeSettings(ctx, userID, req.Settings)
		if err != nil {
			s.logger.Error("settings push failed", "user_id", userID, "error", err)
		} else {
			resp.SettingsApplied = applied
			resp.Settings = stored
		}
	}

	resp.ServerTime = s.now().UnixMilli()
	return resp, nil
}

// pushDocument applies the optimistic-concurrency write for one document.
// The row lock taken by GetForUpdate serializes concurrent pushes for the
// same id, so exactly one of two racing version-N submissions wins.
func (s *Service) pushDocument(ctx context.Context, userID string, in *models.Document) models.PushResult {
	result := models.PushResult{ID: in.ID, Kind: "document"}

	if err := validateDocument(in); err != nil {
		result.Outcome = models.PushError
		result.Message = err.Error()
		return result
	}

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		existing, err := s.docs.GetForUpdate(txCtx, in.ID, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		now := s.now()

		if existing == nil {
			doc := *in
			doc.UserID = userID
			doc.Version = 1
			if doc.CreatedAt.IsZero() {
				doc.CreatedAt = now
			}
			doc.UpdatedAt = now
			s.deriveContent(&doc)
			s.applyDeletion(&doc, now)
			if err := s.docs.Insert(txCtx, &doc); err != nil {
				return err
			}
			result.Outcome = models.PushCreated
			result.ServerVersion = doc.Version
			result.UpdatedAt = doc.UpdatedAt
			return nil
		}

		if in.Version < existing.Version {
			// Stale submission. The stored row is left untouched and the
			// authoritative version is reported back.
			result.Outcome = models.PushConflict
			result.ServerVersion = existing.Version
			result.UpdatedAt = existing.UpdatedAt
			return nil
		}

		doc := *in
		doc.UserID = userID
		doc.Version = existing.Version + 1
		doc.CreatedAt = existing.CreatedAt
		doc.UpdatedAt = now
		s.deriveContent(&doc)
		s.applyDeletion(&doc, now)
		if err := s.docs.Update(txCtx, &doc); err != nil {
			return err
		}
		result.Outcome = models.PushUpdated
		result.ServerVersion = doc.Version
		result.UpdatedAt = doc.UpdatedAt
		return nil
	})

	if err != nil {
		s.logger.Error("document push failed", "document_id", in.ID, "error", err)
		result.Outcome = models.PushError
		result.Message = "storage failure"
	}

	return result
}

// pushWorkspace is the workspace counterpart of pushDocument.
func (s *Service) pushWorkspace(ctx context.Context, userID string, in *models.Workspace) models.PushResult {
	result := models.PushResult{ID: in.ID, Kind: "workspace"}

	if err := validateWorkspace(in); err != nil {
		result.Outcome = models.PushError
		result.Message = err.Error()
		return result
	}

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		existing, err := s.workspaces.GetForUpdate(txCtx, in.ID, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		now := s.now()

		if in.ParentID != nil {
			if err := s.checkWorkspaceCycle(txCtx, userID, in); err != nil {
				result.Outcome = models.PushError
				result.Message = err.Error()
				return nil
			}
		}

		if existing == nil {
			ws := *in
			ws.UserID = userID
			ws.Version = 1
			if ws.CreatedAt.IsZero() {
				ws.CreatedAt = now
			}
			ws.UpdatedAt = now
			if err := s.workspaces.Insert(txCtx, &ws); err != nil {
				return err
			}
			result.Outcome = models.PushCreated
			result.ServerVersion = ws.Version
			result.UpdatedAt = ws.UpdatedAt
			return nil
		}

		if in.Version < existing.Version {
			result.Outcome = models.PushConflict
			result.ServerVersion = existing.Version
			result.UpdatedAt = existing.UpdatedAt
			return nil
		}

		ws := *in
		ws.UserID = userID
		ws.Version = existing.Version + 1
		ws.CreatedAt = existing.CreatedAt
		ws.UpdatedAt = now
		if err := s.workspaces.Update(txCtx, &ws); err != nil {
			return err
		}
		result.Outcome = models.PushUpdated
		result.ServerVersion = ws.Version
		result.UpdatedAt = ws.UpdatedAt
		return nil
	})

	if err != nil {
		s.logger.Error("workspace push failed", "workspace_id", in.ID, "error", err)
		result.Outcome = models.PushError
		result.Message = "storage failure"
	}

	return result
}

// checkWorkspaceCycle refuses a parent assignment that would make the
// workspace its own ancestor.
func (s *Service) checkWorkspaceCycle(ctx context.Context, userID string, ws *models.Workspace) error {
	if *ws.ParentID == ws.ID {
		return fmt.Errorf("%w: workspace cannot be its own parent", domain.ErrValidation)
	}
	cyclic, err := s.workspaces.IsAncestor(ctx, userID, ws.ID, *ws.ParentID)
	if err != nil {
		return err
	}
	if cyclic {
		return fmt.Errorf("%w: workspace cannot be moved under its own descendant", domain.ErrValidation)
	}
	return nil
}

// deriveContent recomputes plain text and word count from the submitted
// tree. Malformed content is stored as-is with empty derived fields; task
// extraction degrades on it but the write is never the point of failure.
func (s *Service) deriveContent(doc *models.Document) {
	if len(doc.Content) == 0 {
		doc.PlainText = ""
		doc.WordCount = 0
		return
	}

	tree, err := doctree.Parse(doc.Content)
	if err != nil {
		s.logger.Warn("unparsable content on push", "document_id", doc.ID, "error", err)
		doc.PlainText = ""
		doc.WordCount = 0
		return
	}

	if doctree.EnsureTaskIDs(tree) > 0 {
		if data, err := tree.Marshal(); err == nil {
			doc.Content = data
		}
	}

	doc.PlainText = tree.PlainText()
	doc.WordCount = tree.WordCount()
}

func (s *Service) applyDeletion(doc *models.Document, now time.Time) {
	if doc.Deleted && doc.DeletedAt == nil {
		doc.DeletedAt = &now
	}
	if !doc.Deleted {
		doc.DeletedAt = nil
	}
}

// DeleteWorkspace removes a workspace without orphaning anything: children
// move to the deleted node's parent (or become roots), documents lose their
// workspace reference, all inside one transaction.
func (s *Service) DeleteWorkspace(ctx context.Context, userID string, id uuid.UUID) error {
	return s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		ws, err := s.workspaces.GetForUpdate(txCtx, id, userID)
		if err != nil {
			return err
		}

		if err := s.workspaces.ReparentChildren(txCtx, userID, id, ws.ParentID); err != nil {
			return err
		}
		if err := s.docs.DetachWorkspace(txCtx, userID, id); err != nil {
			return err
		}
		return s.workspaces.Delete(txCtx, id, userID)
	})
}

// PurgeDocument removes a document row unconditionally. This is the only
// destructive delete; the normal path is the soft flag through push.
func (s *Service) PurgeDocument(ctx context.Context, userID string, id uuid.UUID) error {
	return s.docs.Purge(ctx, id, userID)
}

// GetDocument returns one document, soft-deleted included. The room
// handlers use it as the ownership check before opening a session.
func (s *Service) GetDocument(ctx context.Context, userID string, id uuid.UUID) (*models.Document, error) {
	return s.docs.GetByID(ctx, id, userID)
}

// MergeSettings resolves a submitted settings blob against the stored one
// by whole-object last-write-wins on updatedAt. Returns whether the
// submission was applied and the blob that won.
func (s *Service) MergeSettings(ctx context.Context, userID string, in *models.Settings) (bool, *models.Settings, error) {
	stored, err := s.settings.GetByUser(ctx, userID)
	if err != nil {
		return false, nil, err
	}

	if stored != nil && !in.NewerThan(stored) {
		return false, stored, nil
	}

	merged := *in
	merged.UserID = userID
	if merged.UpdatedAt.IsZero() {
		merged.UpdatedAt = s.now()
	}
	if err := s.settings.Upsert(ctx, &merged); err != nil {
		return false, nil, err
	}

	return true, &merged, nil
}
