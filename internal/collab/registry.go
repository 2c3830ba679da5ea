package collab

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"driftnote/internal/domain/repositories"
)

// RegistryConfig tunes room lifecycle.
type RegistryConfig struct {
	// FlushInterval is how often each room persists its snapshot.
	FlushInterval time.Duration

	// GracePeriod is how long a room may sit with zero peers before the
	// janitor evicts it. The room stays addressable meanwhile: reconnecting
	// inside the window reuses the live state, reconnecting after it
	// reloads the snapshot.
	GracePeriod time.Duration
}

// Registry hands out rooms, one per document id, and evicts idle ones.
type Registry struct {
	snapshots repositories.SnapshotRepository
	docs      repositories.DocumentRepository
	logger    *slog.Logger
	cfg       RegistryConfig

	mu     sync.Mutex
	rooms  map[uuid.UUID]*roomEntry
	closed bool

	janitorStop chan struct{}
	janitorDone chan struct{}
}

type roomEntry struct {
	room *Room

	// idleSince is zero while the room has peers.
	idleSince time.Time
}

// NewRegistry creates a new room registry and starts its janitor.
func NewRegistry(snapshots repositories.SnapshotRepository, docs repositories.DocumentRepository, cfg RegistryConfig, logger *slog.Logger) *Registry {
	reg := &Registry{
		snapshots:   snapshots,
		docs:        docs,
		logger:      logger,
		cfg:         cfg,
		rooms:       make(map[uuid.UUID]*roomEntry),
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	go reg.janitor()
	return reg
}

// Room returns the live room for a document, creating it from the last
// snapshot when none is resident.
func (reg *Registry) Room(ctx context.Context, docID uuid.UUID) (*Room, error) {
	reg.mu.Lock()
	if reg.closed {
		reg.mu.Unlock()
		return nil, ErrRoomClosed
	}
	if entry, ok := reg.rooms[docID]; ok {
		reg.mu.Unlock()
		return entry.room, nil
	}
	reg.mu.Unlock()

	// Snapshot load happens outside the lock; racing creators are resolved
	// below and the loser's room is discarded before it ever flushes.
	snap, err := reg.snapshots.Get(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("load room snapshot: %w", err)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.closed {
		return nil, ErrRoomClosed
	}
	if entry, ok := reg.rooms[docID]; ok {
		return entry.room, nil
	}

	room := newRoom(docID, snap, reg.snapshots, reg.docs, reg.cfg.FlushInterval, reg.logger)
	reg.rooms[docID] = &roomEntry{room: room, idleSince: time.Now()}
	reg.logger.Info("room opened", "document_id", docID)
	return room, nil
}

func (reg *Registry) janitor() {
	defer close(reg.janitorDone)

	interval := reg.cfg.GracePeriod / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reg.sweep()
		case <-reg.janitorStop:
			return
		}
	}
}

// sweep evicts rooms that have been empty for longer than the grace period.
func (reg *Registry) sweep() {
	cutoff := time.Now().Add(-reg.cfg.GracePeriod)

	reg.mu.Lock()
	var evict []*roomEntry
	ids := make(map[*roomEntry]uuid.UUID)
	for id, entry := range reg.rooms {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		peers, err := entry.room.PeerCount(ctx)
		cancel()
		if err != nil {
			continue
		}
		if peers > 0 {
			entry.idleSince = time.Time{}
			continue
		}
		if entry.idleSince.IsZero() {
			entry.idleSince = time.Now()
			continue
		}
		if entry.idleSince.Before(cutoff) {
			evict = append(evict, entry)
			ids[entry] = id
			delete(reg.rooms, id)
		}
	}
	reg.mu.Unlock()

	// Stopping flushes; keep it off the registry lock.
	for _, entry := range evict {
		entry.room.stop()
		reg.logger.Info("room evicted", "document_id", ids[entry])
	}
}

// FlushAll persists every resident room. Used on graceful shutdown before
// Close.
func (reg *Registry) FlushAll(ctx context.Context) error {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, entry := range reg.rooms {
		rooms = append(rooms, entry.room)
	}
	reg.mu.Unlock()

	var firstErr error
	for _, room := range rooms {
		if err := room.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close stops the janitor and every room, flushing each.
func (reg *Registry) Close() {
	reg.mu.Lock()
	if reg.closed {
		reg.mu.Unlock()
		return
	}
	reg.closed = true
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, entry := range reg.rooms {
		rooms = append(rooms, entry.room)
	}
	reg.rooms = make(map[uuid.UUID]*roomEntry)
	reg.mu.Unlock()

	close(reg.janitorStop)
	<-reg.janitorDone

	for _, room := range rooms {
		room.stop()
	}
}
