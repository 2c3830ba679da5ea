package collab

import (
	"driftnote/internal/doctree"
)

// docState is the merge core: the tree plus the bookkeeping that makes op
// application order-independent. It is not safe for concurrent use; the
// room goroutine is its only caller.
type docState struct {
	tree *doctree.Node

	// clock is the room's lamport time, advanced past every op seen.
	clock uint64

	// inserted remembers ids already placed so redelivered inserts are
	// no-ops. tombstones remembers deletes so a delete arriving before its
	// concurrent insert still wins when their order says it should.
	inserted   map[string]stamp
	tombstones map[string]stamp

	// Per-node write registers, one per mutable facet.
	textRegs map[string]stamp
	attrRegs map[string]stamp

	meta map[string]metaEntry
}

type metaEntry struct {
	value any
	at    stamp
}

func newDocState(tree *doctree.Node) *docState {
	return &docState{
		tree:       tree,
		inserted:   make(map[string]stamp),
		tombstones: make(map[string]stamp),
		textRegs:   make(map[string]stamp),
		attrRegs:   make(map[string]stamp),
		meta:       make(map[string]metaEntry),
	}
}

func (s *docState) tick(remote uint64) {
	if remote > s.clock {
		s.clock = remote
	}
	s.clock++
}

// apply merges one op into the state. Returns false when the op had no
// effect (duplicate, superseded by a newer write, or target gone). Either
// way the lamport clock advances, so ops the room originates afterwards
// order after everything it has seen.
func (s *docState) apply(op Op) bool {
	s.tick(op.Clock)

	switch op.Kind {
	case OpInsert:
		return s.applyInsert(op)
	case OpDelete:
		return s.applyDelete(op)
	case OpSetText:
		return s.applyRegister(op, s.textRegs, func(n *doctree.Node) bool {
			if n.Type != doctree.TypeText {
				return false
			}
			n.Text = op.Text
			return true
		})
	case OpSetAttr:
		return s.applyRegister(op, s.attrRegs, func(n *doctree.Node) bool {
			attrs := doctree.Attrs{}
			if op.Attrs != nil {
				attrs = *op.Attrs
			}
			// The stable id is structural identity, not a mutable facet.
			attrs.NodeID = op.NodeID
			trial := doctree.Node{Type: n.Type, Text: n.Text, Attrs: &attrs}
			if trial.Validate() != nil {
				return false
			}
			n.Attrs = &attrs
			return true
		})
	}
	return false
}

func (s *docState) applyInsert(op Op) bool {
	at := op.stamp()

	if prev, ok := s.inserted[op.NodeID]; ok && !at.newerThan(prev) {
		return false
	}
	if dead, ok := s.tombstones[op.NodeID]; ok && dead.newerThan(at) {
		// The delete is ordered after this insert; honor it without ever
		// materializing the node.
		s.inserted[op.NodeID] = at
		return false
	}
	s.inserted[op.NodeID] = at
	if s.tree.FindByID(op.NodeID) != nil {
		return false
	}

	parent := s.tree
	if op.ParentID != "" {
		parent = s.tree.FindByID(op.ParentID)
		if parent == nil {
			// Parent was concurrently removed; the subtree goes with it.
			return false
		}
	}

	node := op.Node.Clone()
	ensureNodeID(node, op.NodeID)

	idx := 0
	if op.After != "" {
		for i, sibling := range parent.Content {
			if sibling.Attrs != nil && sibling.Attrs.NodeID == op.After {
				idx = i + 1
				break
			}
		}
	}
	parent.Content = append(parent.Content, nil)
	copy(parent.Content[idx+1:], parent.Content[idx:])
	parent.Content[idx] = node
	return true
}

func (s *docState) applyDelete(op Op) bool {
	at := op.stamp()

	if prev, ok := s.tombstones[op.NodeID]; ok && !at.newerThan(prev) {
		return false
	}
	s.tombstones[op.NodeID] = at

	if born, ok := s.inserted[op.NodeID]; ok && born.newerThan(at) {
		// An insert ordered after this delete already won.
		return false
	}
	return removeByID(s.tree, op.NodeID)
}

func (s *docState) applyRegister(op Op, regs map[string]stamp, mutate func(*doctree.Node) bool) bool {
	at := op.stamp()

	if prev, ok := regs[op.NodeID]; ok && !at.newerThan(prev) {
		return false
	}

	if dead, ok := s.tombstones[op.NodeID]; ok && dead.newerThan(at) {
		regs[op.NodeID] = at
		return false
	}
	node := s.tree.FindByID(op.NodeID)
	if node == nil {
		regs[op.NodeID] = at
		return false
	}
	// A payload illegal for this node is dropped without consuming the
	// register, so it cannot suppress a legal concurrent write.
	if !mutate(node) {
		return false
	}
	regs[op.NodeID] = at
	return true
}

// setMeta is the last-writer-wins register for the metadata side channel.
func (s *docState) setMeta(key string, value any, at stamp) bool {
	if prev, ok := s.meta[key]; ok && !at.newerThan(prev.at) {
		return false
	}
	s.meta[key] = metaEntry{value: value, at: at}
	return true
}

func (s *docState) metaMap() map[string]any {
	out := make(map[string]any, len(s.meta))
	for k, v := range s.meta {
		out[k] = v.value
	}
	return out
}

// reset replaces content with the empty baseline. Registers are cleared:
// ops addressing the old nodes can no longer find their targets.
func (s *docState) reset() {
	s.tree = doctree.Empty()
	s.inserted = make(map[string]stamp)
	s.tombstones = make(map[string]stamp)
	s.textRegs = make(map[string]stamp)
	s.attrRegs = make(map[string]stamp)
	s.clock++
}

func ensureNodeID(n *doctree.Node, id string) {
	if n.Attrs == nil {
		n.Attrs = &doctree.Attrs{}
	}
	n.Attrs.NodeID = id
}

func removeByID(root *doctree.Node, id string) bool {
	for i, child := range root.Content {
		if child.Attrs != nil && child.Attrs.NodeID == id {
			root.Content = append(root.Content[:i], root.Content[i+1:]...)
			return true
		}
		if removeByID(child, id) {
			return true
		}
	}
	return false
}
