package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"driftnote/internal/doctree"
	"driftnote/internal/domain/models"
	"driftnote/internal/domain/repositories"
)

// ErrRoomClosed is returned by room calls made after shutdown or eviction.
var ErrRoomClosed = errors.New("room closed")

const flushTimeout = 10 * time.Second

// Summary is the room's control-surface read: current metadata plus the
// word count derived from the live tree.
type Summary struct {
	DocumentID uuid.UUID      `json:"document_id"`
	Title      string         `json:"title"`
	Meta       map[string]any `json:"meta"`
	WordCount  int            `json:"word_count"`
	Peers      int            `json:"peers"`
	Seq        uint64         `json:"seq"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Room is the live session for one document. A single goroutine owns all
// mutable state; every entry point posts a closure to the inbox and the
// loop runs them one at a time, so peer operations apply in arrival order.
type Room struct {
	docID     uuid.UUID
	snapshots repositories.SnapshotRepository
	docs      repositories.DocumentRepository
	logger    *slog.Logger
	now       func() time.Time

	inbox chan func()
	quit  chan struct{}
	done  chan struct{}

	// Loop-owned. Never touched outside run().
	state     *docState
	peers     map[*Peer]struct{}
	seq       uint64
	dirty     bool
	updatedAt time.Time
}

func newRoom(docID uuid.UUID, snap *repositories.RoomSnapshot, snapshots repositories.SnapshotRepository, docs repositories.DocumentRepository, flushInterval time.Duration, logger *slog.Logger) *Room {
	r := &Room{
		docID:     docID,
		snapshots: snapshots,
		docs:      docs,
		logger:    logger.With("document_id", docID),
		now:       time.Now,
		inbox:     make(chan func(), 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		peers:     make(map[*Peer]struct{}),
	}
	r.state = newDocState(r.loadTree(snap))
	if snap != nil {
		r.seq = snap.Seq
		r.updatedAt = snap.UpdatedAt
		at := stamp{clock: r.state.clock, origin: "snapshot"}
		for k, v := range snap.Meta {
			r.state.setMeta(k, v, at)
		}
	}

	go r.run(flushInterval)
	return r
}

// loadTree parses the snapshot tree. Missing or corrupt snapshots yield the
// empty baseline so the room always comes up connectable.
func (r *Room) loadTree(snap *repositories.RoomSnapshot) *doctree.Node {
	if snap == nil {
		return doctree.Empty()
	}
	tree, err := doctree.Parse(snap.Tree)
	if err != nil {
		r.logger.Warn("snapshot corrupt, starting from empty baseline", "error", err)
		return doctree.Empty()
	}
	return tree
}

func (r *Room) run(flushInterval time.Duration) {
	defer close(r.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case fn := <-r.inbox:
			fn()
		case <-ticker.C:
			r.flush()
		case <-r.quit:
			r.flush()
			for p := range r.peers {
				p.close()
			}
			return
		}
	}
}

// do posts fn to the room loop and waits for it to run.
func (r *Room) do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case r.inbox <- func() { fn(); close(ran) }:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect registers a peer and hands it the current state frame.
func (r *Room) Connect(ctx context.Context, p *Peer) error {
	return r.do(ctx, func() {
		r.peers[p] = struct{}{}
		if frame, err := r.stateFrame(); err == nil {
			p.enqueue(frame)
		} else {
			r.logger.Error("encode state for joining peer", "error", err)
		}
	})
}

func (r *Room) disconnect(p *Peer) {
	select {
	case r.inbox <- func() { delete(r.peers, p) }:
	case <-r.done:
	}
}

// submitOp merges one peer op and relays the frame to the other peers.
// Relaying happens even when the op lost its register race: every replica
// applies the same deterministic rules, so forwarding keeps them converged.
func (r *Room) submitOp(from *Peer, op Op, raw []byte) {
	select {
	case r.inbox <- func() {
		if err := op.validate(); err != nil {
			r.logger.Warn("dropping invalid op", "error", err)
			return
		}
		if r.state.apply(op) {
			r.dirty = true
			r.updatedAt = r.now()
		}
		r.broadcast(from, raw)
	}:
	case <-r.done:
	}
}

// updateMeta is the metadata side channel: last writer wins per key,
// stamped with the room clock at arrival.
func (r *Room) updateMeta(from *Peer, meta map[string]any) {
	origin := ""
	if from != nil {
		origin = from.id
	}
	select {
	case r.inbox <- func() {
		r.state.tick(0)
		at := stamp{clock: r.state.clock, origin: origin}
		changed := false
		for k, v := range meta {
			if r.state.setMeta(k, v, at) {
				changed = true
			}
		}
		if !changed {
			return
		}
		r.dirty = true
		r.updatedAt = r.now()
		if frame, err := encodeFrame(Frame{Kind: FrameState, Meta: r.state.metaMap()}); err == nil {
			r.broadcast(from, frame)
		}
	}:
	case <-r.done:
	}
}

// Summary answers the control-surface read query.
func (r *Room) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	err := r.do(ctx, func() {
		s = Summary{
			DocumentID: r.docID,
			Meta:       r.state.metaMap(),
			WordCount:  r.state.tree.WordCount(),
			Peers:      len(r.peers),
			Seq:        r.seq,
			UpdatedAt:  r.updatedAt,
		}
		if title, ok := s.Meta["title"].(string); ok {
			s.Title = title
		}
	})
	return s, err
}

// Reset clears content back to a single empty block and flushes.
func (r *Room) Reset(ctx context.Context) error {
	var flushErr error
	err := r.do(ctx, func() {
		r.state.reset()
		r.dirty = true
		r.updatedAt = r.now()
		r.broadcastState()
		flushErr = r.flush()
	})
	if err != nil {
		return err
	}
	return flushErr
}

// RemoveCorruptNodes replaces malformed task subtrees with placeholders
// and reports how many were repaired.
func (r *Room) RemoveCorruptNodes(ctx context.Context) (int, error) {
	var (
		repaired int
		flushErr error
	)
	err := r.do(ctx, func() {
		repaired = doctree.RepairCorrupt(r.state.tree)
		if repaired == 0 {
			return
		}
		r.dirty = true
		r.updatedAt = r.now()
		r.broadcastState()
		flushErr = r.flush()
	})
	if err != nil {
		return 0, err
	}
	return repaired, flushErr
}

// PeerCount is used by the registry janitor to find idle rooms.
func (r *Room) PeerCount(ctx context.Context) (int, error) {
	n := 0
	err := r.do(ctx, func() { n = len(r.peers) })
	return n, err
}

// Flush forces a snapshot write, used on shutdown.
func (r *Room) Flush(ctx context.Context) error {
	var flushErr error
	if err := r.do(ctx, func() { flushErr = r.flush() }); err != nil {
		return err
	}
	return flushErr
}

// stop shuts the loop down after a final flush. Idempotent via registry.
func (r *Room) stop() {
	close(r.quit)
	<-r.done
}

func (r *Room) stateFrame() ([]byte, error) {
	tree, err := r.state.tree.Marshal()
	if err != nil {
		return nil, err
	}
	return encodeFrame(Frame{Kind: FrameState, Tree: tree, Meta: r.state.metaMap()})
}

func (r *Room) broadcastState() {
	frame, err := r.stateFrame()
	if err != nil {
		r.logger.Error("encode state frame", "error", err)
		return
	}
	r.broadcast(nil, frame)
}

func (r *Room) broadcast(from *Peer, frame []byte) {
	for p := range r.peers {
		if p == from {
			continue
		}
		if !p.enqueue(frame) {
			// Peer is too far behind to ever catch up; cut it loose.
			r.logger.Warn("dropping slow peer", "peer_id", p.id)
			delete(r.peers, p)
			p.close()
		}
	}
}

// flush persists the merged tree and its derived fields. The document row's
// version counter is untouched: collaboration output reaches REST pulls
// through updated_at alone.
func (r *Room) flush() error {
	if !r.dirty {
		return nil
	}

	tree, err := r.state.tree.Marshal()
	if err != nil {
		return fmt.Errorf("marshal room tree: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	r.seq++
	snap := &repositories.RoomSnapshot{
		DocumentID: r.docID,
		Tree:       tree,
		Meta:       models.JSONMap(r.state.metaMap()),
		Seq:        r.seq,
		UpdatedAt:  r.updatedAt,
	}
	if err := r.snapshots.Save(ctx, snap); err != nil {
		r.seq--
		return fmt.Errorf("save room snapshot: %w", err)
	}

	if err := r.docs.UpdateContent(ctx, r.docID, tree, r.state.tree.PlainText(), r.state.tree.WordCount(), r.updatedAt); err != nil {
		// Snapshot is durable; stay dirty so the next tick retries the row.
		return fmt.Errorf("propagate room content to document: %w", err)
	}

	r.dirty = false
	r.logger.Debug("room flushed", "seq", r.seq)
	return nil
}
