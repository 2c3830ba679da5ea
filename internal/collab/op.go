// Package collab hosts live editing rooms. One room per document: a single
// goroutine owns the tree, peers feed it operations over websockets, and the
// room periodically flushes a snapshot so offline sync sees the result.
package collab

import (
	"encoding/json"
	"fmt"

	"driftnote/internal/doctree"
)

// OpKind enumerates the structural operations peers exchange.
type OpKind string

const (
	OpInsert  OpKind = "insert"
	OpDelete  OpKind = "delete"
	OpSetText OpKind = "setText"
	OpSetAttr OpKind = "setAttr"
)

// Op is one structural edit. Origin is the editing peer's id and Clock its
// lamport timestamp; together they give every op a total order, which is
// what makes same-node merges deterministic.
type Op struct {
	Kind   OpKind `json:"kind"`
	Origin string `json:"origin"`
	Clock  uint64 `json:"clock"`

	// Target node. Inserts carry the new node's id here too.
	NodeID string `json:"node_id"`

	// Insert placement: parent node id ("" means root) and the sibling to
	// insert after ("" means prepend).
	ParentID string `json:"parent_id,omitempty"`
	After    string `json:"after,omitempty"`

	// Payloads.
	Node  *doctree.Node  `json:"node,omitempty"`
	Text  string         `json:"text,omitempty"`
	Attrs *doctree.Attrs `json:"attrs,omitempty"`
}

// stamp orders concurrent writes: higher clock wins, origin id breaks ties.
type stamp struct {
	clock  uint64
	origin string
}

func (s stamp) newerThan(other stamp) bool {
	if s.clock != other.clock {
		return s.clock > other.clock
	}
	return s.origin > other.origin
}

func (op Op) stamp() stamp {
	return stamp{clock: op.Clock, origin: op.Origin}
}

func (op Op) validate() error {
	switch op.Kind {
	case OpInsert:
		if op.Node == nil {
			return fmt.Errorf("insert op without node payload")
		}
		if op.Node.Type == doctree.TypeDoc {
			return fmt.Errorf("insert op carries a doc root")
		}
		// A payload outside the closed node set would survive in memory but
		// fail Parse on the next snapshot load, losing the document. Reject
		// it here so it never reaches the tree.
		if err := op.Node.Validate(); err != nil {
			return fmt.Errorf("insert op payload: %w", err)
		}
	case OpDelete, OpSetText, OpSetAttr:
	default:
		return fmt.Errorf("unknown op kind %q", op.Kind)
	}
	if op.NodeID == "" {
		return fmt.Errorf("op without node id")
	}
	if op.Origin == "" {
		return fmt.Errorf("op without origin")
	}
	return nil
}

// Frame kinds on the binary channel. Ops flow both ways; state flows to a
// peer once on join and after a reset or repair rewrites the tree wholesale.
const (
	FrameOp    = "op"
	FrameState = "state"
)

// Frame is the binary websocket payload.
type Frame struct {
	Kind string          `json:"kind"`
	Op   *Op             `json:"op,omitempty"`
	Tree json.RawMessage `json:"tree,omitempty"`
	Meta map[string]any  `json:"meta,omitempty"`
}

func encodeFrame(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

func decodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}
