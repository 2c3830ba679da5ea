package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"driftnote/internal/domain/models"
)

// SyncAPI is the server surface the syncer needs. *APIClient implements it.
type SyncAPI interface {
	Pull(ctx context.Context, since time.Time, includeDeleted bool) (*models.PullResponse, error)
	Push(ctx context.Context, req models.PushRequest) (*models.PushResponse, error)
}

// SyncState is the syncer's observable phase.
type SyncState string

const (
	StateIdle     SyncState = "idle"
	StatePulling  SyncState = "pulling"
	StateApplying SyncState = "applying"
	StatePushing  SyncState = "pushing"
)

// Conflict is one rejected push, paired with the server's copy of the
// entity from the same cycle's pull. Exactly one of ServerDocument and
// ServerWorkspace is set when the pull carried the row; both nil means the
// row changed after the pull, and the cycle held the watermark back so the
// next pull fetches it.
type Conflict struct {
	Result          models.PushResult
	ServerDocument  *models.Document
	ServerWorkspace *models.Workspace
}

// SyncResult summarizes one completed cycle. Conflicts are entities the
// server rejected: they stay dirty locally and resolution is the caller's
// policy, never automated here.
type SyncResult struct {
	Applied   int
	Removed   int
	Pushed    int
	Conflicts []Conflict
	Failed    []models.PushResult
}

// SyncerConfig tunes cycle scheduling.
type SyncerConfig struct {
	// Interval re-runs a cycle periodically. Zero disables the timer.
	Interval time.Duration

	// Debounce delays an explicit trigger so bursts of edits coalesce into
	// one cycle. A newer trigger restarts the wait.
	Debounce time.Duration
}

// Syncer reconciles the local store with the server:
// Idle -> Pulling -> Applying -> Pushing -> Idle. One cycle runs at a time;
// triggers arriving mid-cycle schedule the next one rather than interrupt.
type Syncer struct {
	store  *Store
	api    SyncAPI
	cfg    SyncerConfig
	logger *slog.Logger

	trigger chan struct{}

	mu    sync.Mutex
	state SyncState
}

// NewSyncer creates a new syncer
func NewSyncer(store *Store, api SyncAPI, cfg SyncerConfig, logger *slog.Logger) *Syncer {
	return &Syncer{
		store:   store,
		api:     api,
		cfg:     cfg,
		logger:  logger,
		trigger: make(chan struct{}, 1),
		state:   StateIdle,
	}
}

// State reports the current phase.
func (s *Syncer) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Syncer) setState(state SyncState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Trigger requests a cycle soon. Non-blocking; coalesces with a pending
// trigger. Network-regain and explicit user sync both land here.
func (s *Syncer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run drives cycles until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	var intervalC <-chan time.Time
	if s.cfg.Interval > 0 {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		intervalC = ticker.C
	}

	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
			// Restart the wait: the newest trigger wins.
			if pending && !debounce.Stop() {
				<-debounce.C
			}
			debounce.Reset(s.cfg.Debounce)
			pending = true
		case <-debounce.C:
			pending = false
			s.runLogged(ctx)
		case <-intervalC:
			s.runLogged(ctx)
		}
	}
}

func (s *Syncer) runLogged(ctx context.Context) {
	result, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Warn("sync cycle aborted", "error", err)
		return
	}
	s.logger.Info("sync cycle complete",
		"applied", result.Applied,
		"pushed", result.Pushed,
		"conflicts", len(result.Conflicts))
}

// RunOnce executes one full cycle. Transient errors abort the cycle with
// all dirty state intact; the next cycle retries from the same watermark.
func (s *Syncer) RunOnce(ctx context.Context) (*SyncResult, error) {
	defer s.setState(StateIdle)
	result := &SyncResult{}

	s.setState(StatePulling)
	pull, err := s.api.Pull(ctx, s.store.Watermark(), false)
	if err != nil {
		return nil, err
	}

	s.setState(StateApplying)
	if err := s.apply(pull, result); err != nil {
		return nil, err
	}

	s.setState(StatePushing)
	if err := s.push(ctx, result); err != nil {
		return nil, err
	}

	// Rejected entities are re-pulled: each conflict gets the server's copy
	// from this cycle's pull attached for resolution. A copy missing from
	// the pull means the winning write landed after it; advancing the
	// watermark would then skip that row forever, so hold it back and let
	// the next cycle pull the copy in.
	if s.settleConflicts(pull, result) {
		if err := s.store.SetWatermark(time.UnixMilli(pull.ServerTime)); err != nil {
			return nil, fmt.Errorf("advance watermark: %w", err)
		}
	}
	return result, nil
}

// settleConflicts attaches server copies to the cycle's conflicts and
// reports whether the watermark may advance.
func (s *Syncer) settleConflicts(pull *models.PullResponse, result *SyncResult) bool {
	advance := true
	for i := range result.Conflicts {
		c := &result.Conflicts[i]
		switch c.Result.Kind {
		case "workspace":
			for j := range pull.Workspaces {
				if pull.Workspaces[j].ID == c.Result.ID {
					c.ServerWorkspace = &pull.Workspaces[j]
					break
				}
			}
			if c.ServerWorkspace == nil {
				advance = false
			}
		default:
			for j := range pull.Documents {
				if pull.Documents[j].ID == c.Result.ID {
					c.ServerDocument = &pull.Documents[j]
					break
				}
			}
			if c.ServerDocument == nil {
				advance = false
			}
		}
	}
	return advance
}

// apply writes pulled state into the store. Entities that are locally
// dirty are never overwritten: their push (and its conflict outcome, if
// any) settles who wins first.
func (s *Syncer) apply(pull *models.PullResponse, result *SyncResult) error {
	for i := range pull.Documents {
		doc := pull.Documents[i]
		if s.isDocumentDirty(doc) {
			s.logger.Debug("skipping pulled document, local copy dirty", "document_id", doc.ID)
			continue
		}
		if err := s.store.ApplyDocument(&doc); err != nil {
			return fmt.Errorf("apply document %s: %w", doc.ID, err)
		}
		result.Applied++
	}

	for i := range pull.Workspaces {
		ws := pull.Workspaces[i]
		if s.isWorkspaceDirty(ws) {
			s.logger.Debug("skipping pulled workspace, local copy dirty", "workspace_id", ws.ID)
			continue
		}
		if err := s.store.ApplyWorkspace(&ws); err != nil {
			return fmt.Errorf("apply workspace %s: %w", ws.ID, err)
		}
		result.Applied++
	}

	for _, id := range pull.DeletedDocumentIDs {
		local, err := s.store.GetDocument(id)
		if err == nil && local.IsDirty {
			continue
		}
		if err := s.store.RemoveDocument(id); err != nil {
			return fmt.Errorf("remove deleted document %s: %w", id, err)
		}
		result.Removed++
	}

	if pull.Settings != nil {
		local, _ := s.store.Settings()
		if pull.Settings.NewerThan(local) {
			if err := s.store.ApplySettings(pull.Settings); err != nil {
				return fmt.Errorf("apply settings: %w", err)
			}
		}
	}
	return nil
}

func (s *Syncer) isDocumentDirty(doc models.Document) bool {
	local, err := s.store.GetDocument(doc.ID)
	return err == nil && local.IsDirty
}

func (s *Syncer) isWorkspaceDirty(ws models.Workspace) bool {
	local, err := s.store.GetWorkspace(ws.ID)
	return err == nil && local.IsDirty
}

// push submits every dirty entity and settles the outcomes.
func (s *Syncer) push(ctx context.Context, result *SyncResult) error {
	docs, err := s.store.DirtyDocuments()
	if err != nil {
		return err
	}
	workspaces, err := s.store.DirtyWorkspaces()
	if err != nil {
		return err
	}
	settings, settingsDirty := s.store.Settings()

	req := models.PushRequest{Documents: docs, Workspaces: workspaces}
	if settingsDirty {
		req.Settings = settings
	}
	if len(docs) == 0 && len(workspaces) == 0 && req.Settings == nil {
		return nil
	}

	resp, err := s.api.Push(ctx, req)
	if err != nil {
		return err
	}

	for _, pr := range resp.Results {
		switch pr.Outcome {
		case models.PushCreated, models.PushUpdated:
			if err := s.confirm(pr); err != nil {
				return err
			}
			result.Pushed++
		case models.PushConflict:
			// Stays dirty; the caller decides how to reconcile.
			result.Conflicts = append(result.Conflicts, Conflict{Result: pr})
		default:
			result.Failed = append(result.Failed, pr)
		}
	}

	if req.Settings != nil && resp.Settings != nil {
		// resp.Settings is whichever blob won the LWW merge; adopting it
		// covers both the accepted and the discarded-whole case.
		if err := s.store.ApplySettings(resp.Settings); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) confirm(pr models.PushResult) error {
	switch pr.Kind {
	case "workspace":
		return s.store.ConfirmWorkspace(pr.ID, pr.ServerVersion, pr.UpdatedAt)
	default:
		return s.store.ConfirmDocument(pr.ID, pr.ServerVersion, pr.UpdatedAt)
	}
}
