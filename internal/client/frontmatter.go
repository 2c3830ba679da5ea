package client

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"driftnote/internal/domain/models"
)

// The on-disk schema is owned here, separate from the wire models: yaml
// cannot decode uuid.UUID directly, and the device files carry sync state
// the wire never sees.

type documentFront struct {
	ID          string     `yaml:"id"`
	Title       string     `yaml:"title"`
	WordCount   int        `yaml:"word_count"`
	WorkspaceID string     `yaml:"workspace_id,omitempty"`
	Tags        []string   `yaml:"tags,omitempty"`
	Favorite    bool       `yaml:"favorite"`
	Pinned      bool       `yaml:"pinned"`
	Deleted     bool       `yaml:"deleted"`
	DeletedAt   *time.Time `yaml:"deleted_at,omitempty"`
	Version     int64      `yaml:"version"`
	CreatedAt   time.Time  `yaml:"created_at"`
	UpdatedAt   time.Time  `yaml:"updated_at"`

	IsDirty       bool       `yaml:"is_dirty"`
	ServerVersion int64      `yaml:"server_version"`
	LastSyncedAt  *time.Time `yaml:"last_synced_at,omitempty"`
}

func documentToFront(doc *models.Document) documentFront {
	front := documentFront{
		ID:            doc.ID.String(),
		Title:         doc.Title,
		WordCount:     doc.WordCount,
		Tags:          doc.Tags,
		Favorite:      doc.Favorite,
		Pinned:        doc.Pinned,
		Deleted:       doc.Deleted,
		DeletedAt:     doc.DeletedAt,
		Version:       doc.Version,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
		IsDirty:       doc.IsDirty,
		ServerVersion: doc.ServerVersion,
		LastSyncedAt:  doc.LastSyncedAt,
	}
	if doc.WorkspaceID != nil {
		front.WorkspaceID = doc.WorkspaceID.String()
	}
	return front
}

func (f documentFront) toModel() (*models.Document, error) {
	id, err := uuid.Parse(f.ID)
	if err != nil {
		return nil, fmt.Errorf("document frontmatter id: %w", err)
	}
	doc := &models.Document{
		ID:            id,
		Title:         f.Title,
		WordCount:     f.WordCount,
		Tags:          f.Tags,
		Favorite:      f.Favorite,
		Pinned:        f.Pinned,
		Deleted:       f.Deleted,
		DeletedAt:     f.DeletedAt,
		Version:       f.Version,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
		IsDirty:       f.IsDirty,
		ServerVersion: f.ServerVersion,
		LastSyncedAt:  f.LastSyncedAt,
	}
	if f.WorkspaceID != "" {
		wsID, err := uuid.Parse(f.WorkspaceID)
		if err != nil {
			return nil, fmt.Errorf("document frontmatter workspace id: %w", err)
		}
		doc.WorkspaceID = &wsID
	}
	return doc, nil
}

type workspaceFront struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Icon      string    `yaml:"icon,omitempty"`
	Color     string    `yaml:"color,omitempty"`
	SortOrder int       `yaml:"sort_order"`
	ParentID  string    `yaml:"parent_id,omitempty"`
	Expanded  bool      `yaml:"expanded"`
	Version   int64     `yaml:"version"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`

	IsDirty       bool       `yaml:"is_dirty"`
	ServerVersion int64      `yaml:"server_version"`
	LastSyncedAt  *time.Time `yaml:"last_synced_at,omitempty"`
}

func workspaceToFront(ws *models.Workspace) workspaceFront {
	front := workspaceFront{
		ID:            ws.ID.String(),
		Name:          ws.Name,
		Icon:          ws.Icon,
		Color:         ws.Color,
		SortOrder:     ws.SortOrder,
		Expanded:      ws.Expanded,
		Version:       ws.Version,
		CreatedAt:     ws.CreatedAt,
		UpdatedAt:     ws.UpdatedAt,
		IsDirty:       ws.IsDirty,
		ServerVersion: ws.ServerVersion,
		LastSyncedAt:  ws.LastSyncedAt,
	}
	if ws.ParentID != nil {
		front.ParentID = ws.ParentID.String()
	}
	return front
}

func (f workspaceFront) toModel() (*models.Workspace, error) {
	id, err := uuid.Parse(f.ID)
	if err != nil {
		return nil, fmt.Errorf("workspace frontmatter id: %w", err)
	}
	ws := &models.Workspace{
		ID:            id,
		Name:          f.Name,
		Icon:          f.Icon,
		Color:         f.Color,
		SortOrder:     f.SortOrder,
		Expanded:      f.Expanded,
		Version:       f.Version,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
		IsDirty:       f.IsDirty,
		ServerVersion: f.ServerVersion,
		LastSyncedAt:  f.LastSyncedAt,
	}
	if f.ParentID != "" {
		parentID, err := uuid.Parse(f.ParentID)
		if err != nil {
			return nil, fmt.Errorf("workspace frontmatter parent id: %w", err)
		}
		ws.ParentID = &parentID
	}
	return ws, nil
}

type settingsFront struct {
	Data      map[string]any `yaml:"data"`
	Version   int64          `yaml:"version"`
	UpdatedAt time.Time      `yaml:"updated_at"`
}

func settingsToFront(s *models.Settings) *settingsFront {
	if s == nil {
		return nil
	}
	return &settingsFront{Data: s.Data, Version: s.Version, UpdatedAt: s.UpdatedAt}
}

func (f *settingsFront) toModel() *models.Settings {
	if f == nil {
		return nil
	}
	return &models.Settings{Data: models.JSONMap(f.Data), Version: f.Version, UpdatedAt: f.UpdatedAt}
}
