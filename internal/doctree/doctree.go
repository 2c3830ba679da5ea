// Package doctree is the canonical in-memory representation of a document's
// content: a closed set of typed block and inline nodes. Both batch sync and
// the live collaboration session operate on this tree. Parsing is strict so
// malformed content fails at the boundary instead of deep inside a traversal.
package doctree

import (
	"encoding/json"
	"fmt"

	"driftnote/internal/domain"
)

// NodeType enumerates the closed set of node variants.
type NodeType string

const (
	TypeDoc            NodeType = "doc"
	TypeParagraph      NodeType = "paragraph"
	TypeHeading        NodeType = "heading"
	TypeBulletList     NodeType = "bulletList"
	TypeOrderedList    NodeType = "orderedList"
	TypeListItem       NodeType = "listItem"
	TypeBlockquote     NodeType = "blockquote"
	TypeCodeBlock      NodeType = "codeBlock"
	TypeHorizontalRule NodeType = "horizontalRule"
	TypeTask           NodeType = "task"
	TypeTaskTitle      NodeType = "taskTitle"
	TypeTaskDesc       NodeType = "taskDescription"
	TypeText           NodeType = "text"
	TypeHardBreak      NodeType = "hardBreak"
)

var knownTypes = map[NodeType]bool{
	TypeDoc: true, TypeParagraph: true, TypeHeading: true,
	TypeBulletList: true, TypeOrderedList: true, TypeListItem: true,
	TypeBlockquote: true, TypeCodeBlock: true, TypeHorizontalRule: true,
	TypeTask: true, TypeTaskTitle: true, TypeTaskDesc: true,
	TypeText: true, TypeHardBreak: true,
}

// Attrs holds the typed attributes a node may carry. Zero values are elided
// from the serialized form.
type Attrs struct {
	Level    int    `json:"level,omitempty"`    // heading level 1-6
	Language string `json:"language,omitempty"` // codeBlock language
	Checked  bool   `json:"checked,omitempty"`  // task completion
	NodeID   string `json:"nodeId,omitempty"`   // stable identity, assigned at creation
}

// Node is one node of the structured content tree.
type Node struct {
	Type    NodeType `json:"type"`
	Attrs   *Attrs   `json:"attrs,omitempty"`
	Content []*Node  `json:"content,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// Empty returns the reset baseline: a doc with a single empty paragraph.
// Corruption recovery and brand-new rooms both start here.
func Empty() *Node {
	return &Node{
		Type:    TypeDoc,
		Content: []*Node{{Type: TypeParagraph}},
	}
}

// Parse decodes and validates a serialized tree. Any unknown node type,
// misplaced text, or non-doc root is rejected with ErrMalformedContent.
func Parse(data []byte) (*Node, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty content", domain.ErrMalformedContent)
	}

	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedContent, err)
	}

	if root.Type != TypeDoc {
		return nil, fmt.Errorf("%w: root must be %q, got %q", domain.ErrMalformedContent, TypeDoc, root.Type)
	}

	if err := validate(&root); err != nil {
		return nil, err
	}

	return &root, nil
}

// Marshal serializes the tree.
func (n *Node) Marshal() ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal content tree: %w", err)
	}
	return data, nil
}

// Validate checks a tree built in memory against the same rules Parse
// enforces on serialized content. Callers assembling nodes from untrusted
// input (live editing ops) run this before grafting them in.
func (n *Node) Validate() error {
	return validate(n)
}

func validate(n *Node) error {
	if !knownTypes[n.Type] {
		return fmt.Errorf("%w: unknown node type %q", domain.ErrMalformedContent, n.Type)
	}

	switch n.Type {
	case TypeText:
		if len(n.Content) > 0 {
			return fmt.Errorf("%w: text node may not have children", domain.ErrMalformedContent)
		}
	case TypeHeading:
		if n.Attrs == nil || n.Attrs.Level < 1 || n.Attrs.Level > 6 {
			return fmt.Errorf("%w: heading level out of range", domain.ErrMalformedContent)
		}
	default:
		if n.Text != "" {
			return fmt.Errorf("%w: %s node may not carry text", domain.ErrMalformedContent, n.Type)
		}
	}

	for _, child := range n.Content {
		if child == nil {
			return fmt.Errorf("%w: null child node", domain.ErrMalformedContent)
		}
		if child.Type == TypeDoc {
			return fmt.Errorf("%w: nested doc node", domain.ErrMalformedContent)
		}
		if err := validate(child); err != nil {
			return err
		}
	}

	return nil
}

// Walk visits every node depth-first in document order. Returning false from
// fn stops the walk. Traversal order is deterministic: it is the order task
// ordinals are assigned in.
func (n *Node) Walk(fn func(*Node) bool) {
	n.walk(fn)
}

func (n *Node) walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, child := range n.Content {
		if !child.walk(fn) {
			return false
		}
	}
	return true
}

// FindByID returns the node with the given stable id, or nil.
func (n *Node) FindByID(id string) *Node {
	if id == "" {
		return nil
	}
	var found *Node
	n.Walk(func(node *Node) bool {
		if node.Attrs != nil && node.Attrs.NodeID == id {
			found = node
			return false
		}
		return true
	})
	return found
}

// Clone returns a deep copy of the tree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Type: n.Type, Text: n.Text}
	if n.Attrs != nil {
		attrs := *n.Attrs
		out.Attrs = &attrs
	}
	if n.Content != nil {
		out.Content = make([]*Node, len(n.Content))
		for i, child := range n.Content {
			out.Content[i] = child.Clone()
		}
	}
	return out
}
