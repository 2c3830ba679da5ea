// Package client is the device side of the engine: a file-backed local
// entity store that works fully offline, and a syncer that reconciles it
// with the server when connectivity allows.
package client

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"driftnote/internal/domain"
	"driftnote/internal/domain/models"
)

const (
	documentsDir = "documents"
	workspaceDir = "workspaces"
	stateFile    = "state.yaml"
)

// storeState is the per-device sync bookkeeping kept next to the entities.
type storeState struct {
	// WatermarkMS is the server clock from the last confirmed pull,
	// unix milliseconds. Zero means never synced.
	WatermarkMS int64 `yaml:"watermark_ms"`

	Settings      *settingsFront `yaml:"settings,omitempty"`
	SettingsDirty bool           `yaml:"settings_dirty"`
}

// Store is the single source of truth on a device. Documents are files with
// yaml frontmatter and the serialized content tree as body; workspaces are
// plain yaml. One writer mutex serializes every mutation so partial updates
// never interleave.
type Store struct {
	root string
	now  func() time.Time

	mu    sync.Mutex
	state storeState
}

// NewStore opens (or initializes) a store rooted at dir.
func NewStore(dir string) (*Store, error) {
	for _, sub := range []string{documentsDir, workspaceDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
	}

	s := &Store{root: dir, now: time.Now}
	if err := s.loadState(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadState() error {
	data, err := os.ReadFile(filepath.Join(s.root, stateFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store state: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.state); err != nil {
		return fmt.Errorf("parse store state: %w", err)
	}
	return nil
}

func (s *Store) saveStateLocked() error {
	data, err := yaml.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("encode store state: %w", err)
	}
	return writeAtomic(filepath.Join(s.root, stateFile), data)
}

// writeAtomic writes via a temp file and rename so a crash never leaves a
// half-written entity behind.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) documentPath(id uuid.UUID) string {
	return filepath.Join(s.root, documentsDir, id.String()+".md")
}

func (s *Store) workspacePath(id uuid.UUID) string {
	return filepath.Join(s.root, workspaceDir, id.String()+".yaml")
}

// --- documents ---

// SaveDocument records a local edit: updatedAt is stamped and the document
// marked dirty. Version is left alone; only server confirmations move it.
func (s *Store) SaveDocument(doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc.UpdatedAt = s.now()
	doc.IsDirty = true
	return s.writeDocumentLocked(doc)
}

// ApplyDocument writes server state, clearing dirty and recording the
// confirmed version. Callers are responsible for the never-overwrite-dirty
// rule; the syncer checks before calling.
func (s *Store) ApplyDocument(doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc.IsDirty = false
	doc.ServerVersion = doc.Version
	now := s.now()
	doc.LastSyncedAt = &now
	return s.writeDocumentLocked(doc)
}

// ConfirmDocument applies a push acknowledgment: adopt the server-assigned
// version and timestamp, clear dirty.
func (s *Store) ConfirmDocument(id uuid.UUID, version int64, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument(id)
	if err != nil {
		return err
	}
	doc.Version = version
	doc.ServerVersion = version
	doc.UpdatedAt = updatedAt
	doc.IsDirty = false
	now := s.now()
	doc.LastSyncedAt = &now
	return s.writeDocumentLocked(doc)
}

// GetDocument loads one document, dirty or not.
func (s *Store) GetDocument(id uuid.UUID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readDocument(id)
}

// ListDocuments loads every document in the store.
func (s *Store) ListDocuments() ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.root, documentsDir))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var docs []models.Document
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(entry.Name(), ".md"))
		if err != nil {
			continue
		}
		doc, err := s.readDocument(id)
		if err != nil {
			continue
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

// DirtyDocuments returns documents with unpushed local changes.
func (s *Store) DirtyDocuments() ([]models.Document, error) {
	docs, err := s.ListDocuments()
	if err != nil {
		return nil, err
	}
	dirty := docs[:0]
	for _, doc := range docs {
		if doc.IsDirty {
			dirty = append(dirty, doc)
		}
	}
	return dirty, nil
}

// RemoveDocument drops the local file, used when the server reports the
// document deleted or purged.
func (s *Store) RemoveDocument(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.documentPath(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *Store) readDocument(id uuid.UUID) (*models.Document, error) {
	data, err := os.ReadFile(s.documentPath(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	parts := bytes.SplitN(data, []byte("---"), 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("document %s: missing frontmatter", id)
	}

	var front documentFront
	if err := yaml.Unmarshal(parts[1], &front); err != nil {
		return nil, fmt.Errorf("parse document frontmatter: %w", err)
	}
	doc, err := front.toModel()
	if err != nil {
		return nil, err
	}
	doc.Content = bytes.TrimSpace(parts[2])
	return doc, nil
}

func (s *Store) writeDocumentLocked(doc *models.Document) error {
	var buf bytes.Buffer
	buf.WriteString("---\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(documentToFront(doc)); err != nil {
		return fmt.Errorf("encode document frontmatter: %w", err)
	}
	enc.Close()

	buf.WriteString("---\n\n")
	buf.Write(doc.Content)

	return writeAtomic(s.documentPath(doc.ID), buf.Bytes())
}

// --- workspaces ---

// SaveWorkspace records a local edit, stamping updatedAt and dirty.
func (s *Store) SaveWorkspace(ws *models.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws.UpdatedAt = s.now()
	ws.IsDirty = true
	return s.writeWorkspaceLocked(ws)
}

// ApplyWorkspace writes server state, clearing dirty.
func (s *Store) ApplyWorkspace(ws *models.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws.IsDirty = false
	ws.ServerVersion = ws.Version
	now := s.now()
	ws.LastSyncedAt = &now
	return s.writeWorkspaceLocked(ws)
}

// ConfirmWorkspace applies a push acknowledgment.
func (s *Store) ConfirmWorkspace(id uuid.UUID, version int64, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.readWorkspace(id)
	if err != nil {
		return err
	}
	ws.Version = version
	ws.ServerVersion = version
	ws.UpdatedAt = updatedAt
	ws.IsDirty = false
	now := s.now()
	ws.LastSyncedAt = &now
	return s.writeWorkspaceLocked(ws)
}

// GetWorkspace loads one workspace.
func (s *Store) GetWorkspace(id uuid.UUID) (*models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readWorkspace(id)
}

// ListWorkspaces loads every workspace in the store.
func (s *Store) ListWorkspaces() ([]models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.root, workspaceDir))
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}

	var all []models.Workspace
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(entry.Name(), ".yaml"))
		if err != nil {
			continue
		}
		ws, err := s.readWorkspace(id)
		if err != nil {
			continue
		}
		all = append(all, *ws)
	}
	return all, nil
}

// DirtyWorkspaces returns workspaces with unpushed local changes.
func (s *Store) DirtyWorkspaces() ([]models.Workspace, error) {
	all, err := s.ListWorkspaces()
	if err != nil {
		return nil, err
	}
	dirty := all[:0]
	for _, ws := range all {
		if ws.IsDirty {
			dirty = append(dirty, ws)
		}
	}
	return dirty, nil
}

func (s *Store) readWorkspace(id uuid.UUID) (*models.Workspace, error) {
	data, err := os.ReadFile(s.workspacePath(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("workspace %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read workspace: %w", err)
	}

	var front workspaceFront
	if err := yaml.Unmarshal(data, &front); err != nil {
		return nil, fmt.Errorf("parse workspace: %w", err)
	}
	return front.toModel()
}

func (s *Store) writeWorkspaceLocked(ws *models.Workspace) error {
	data, err := yaml.Marshal(workspaceToFront(ws))
	if err != nil {
		return fmt.Errorf("encode workspace: %w", err)
	}
	return writeAtomic(s.workspacePath(ws.ID), data)
}

// --- settings and watermark ---

// SaveSettings records a local settings edit; it competes with the server
// blob by updatedAt alone.
func (s *Store) SaveSettings(settings *models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.UpdatedAt = s.now()
	s.state.Settings = settingsToFront(settings)
	s.state.SettingsDirty = true
	return s.saveStateLocked()
}

// ApplySettings replaces the local blob with the server's (LWW loser is
// discarded whole, never merged per key).
func (s *Store) ApplySettings(settings *models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Settings = settingsToFront(settings)
	s.state.SettingsDirty = false
	return s.saveStateLocked()
}

// Settings returns the local blob and whether it is dirty.
func (s *Store) Settings() (*models.Settings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Settings.toModel(), s.state.SettingsDirty
}

// Watermark is the server clock of the last confirmed pull.
func (s *Store) Watermark() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.WatermarkMS == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.state.WatermarkMS)
}

// SetWatermark records the server clock after a completed cycle.
func (s *Store) SetWatermark(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.WatermarkMS = t.UnixMilli()
	return s.saveStateLocked()
}
