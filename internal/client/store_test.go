package client

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"driftnote/internal/domain"
	"driftnote/internal/domain/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func sampleDocument() *models.Document {
	return &models.Document{
		ID:      uuid.New(),
		Title:   "Field notes",
		Content: json.RawMessage(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"hello"}]}]}`),
		Tags:    []string{"fieldwork"},
		Version: 3,
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	store := newTestStore(t)
	doc := sampleDocument()
	wsID := uuid.New()
	doc.WorkspaceID = &wsID

	if err := store.SaveDocument(doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	got, err := store.GetDocument(doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Title != doc.Title || got.Version != 3 {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.WorkspaceID == nil || *got.WorkspaceID != wsID {
		t.Errorf("workspace ref lost: %v", got.WorkspaceID)
	}
	if string(got.Content) != string(doc.Content) {
		t.Errorf("content body mismatch:\n%s\n%s", got.Content, doc.Content)
	}
	if !got.IsDirty {
		t.Error("local save should mark dirty")
	}
	if got.UpdatedAt.IsZero() {
		t.Error("local save should stamp updatedAt")
	}
}

func TestDirtyLifecycle(t *testing.T) {
	store := newTestStore(t)
	doc := sampleDocument()

	if err := store.SaveDocument(doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	dirty, err := store.DirtyDocuments()
	if err != nil {
		t.Fatalf("DirtyDocuments: %v", err)
	}
	if len(dirty) != 1 {
		t.Fatalf("expected 1 dirty document, got %d", len(dirty))
	}

	confirmedAt := time.Now().Add(time.Minute).Truncate(time.Second)
	if err := store.ConfirmDocument(doc.ID, 4, confirmedAt); err != nil {
		t.Fatalf("ConfirmDocument: %v", err)
	}

	got, err := store.GetDocument(doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.IsDirty {
		t.Error("confirmation should clear dirty")
	}
	if got.Version != 4 || got.ServerVersion != 4 {
		t.Errorf("versions not adopted: v=%d sv=%d", got.Version, got.ServerVersion)
	}
	if got.LastSyncedAt == nil {
		t.Error("lastSyncedAt not recorded")
	}

	dirty, err = store.DirtyDocuments()
	if err != nil {
		t.Fatalf("DirtyDocuments: %v", err)
	}
	if len(dirty) != 0 {
		t.Errorf("expected no dirty documents, got %d", len(dirty))
	}
}

func TestApplyClearsDirtyAndRecordsServerVersion(t *testing.T) {
	store := newTestStore(t)
	doc := sampleDocument()
	doc.Version = 7

	if err := store.ApplyDocument(doc); err != nil {
		t.Fatalf("ApplyDocument: %v", err)
	}
	got, err := store.GetDocument(doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.IsDirty || got.ServerVersion != 7 || got.LastSyncedAt == nil {
		t.Errorf("apply state wrong: %+v", got)
	}
}

func TestRemoveDocument(t *testing.T) {
	store := newTestStore(t)
	doc := sampleDocument()
	if err := store.SaveDocument(doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	if err := store.RemoveDocument(doc.ID); err != nil {
		t.Fatalf("RemoveDocument: %v", err)
	}
	if _, err := store.GetDocument(doc.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
	// Removing again is a no-op.
	if err := store.RemoveDocument(doc.ID); err != nil {
		t.Errorf("second remove: %v", err)
	}
}

func TestWorkspaceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	parent := uuid.New()
	ws := &models.Workspace{
		ID:        uuid.New(),
		Name:      "Research",
		Icon:      "flask",
		SortOrder: 2,
		ParentID:  &parent,
		Expanded:  true,
		Version:   1,
	}
	if err := store.SaveWorkspace(ws); err != nil {
		t.Fatalf("SaveWorkspace: %v", err)
	}

	got, err := store.GetWorkspace(ws.ID)
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	if got.Name != "Research" || got.ParentID == nil || *got.ParentID != parent || !got.Expanded {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if !got.IsDirty {
		t.Error("local save should mark dirty")
	}
}

func TestSettingsAndWatermarkPersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if err := store.SaveSettings(&models.Settings{Data: models.JSONMap{"theme": "dark"}}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	mark := time.Now().Truncate(time.Millisecond)
	if err := store.SetWatermark(mark); err != nil {
		t.Fatalf("SetWatermark: %v", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	settings, dirty := reopened.Settings()
	if settings == nil || settings.Data["theme"] != "dark" {
		t.Fatalf("settings lost on reopen: %+v", settings)
	}
	if !dirty {
		t.Error("settings dirty flag lost on reopen")
	}
	if !reopened.Watermark().Equal(mark) {
		t.Errorf("watermark = %v, want %v", reopened.Watermark(), mark)
	}
}
