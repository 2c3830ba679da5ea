package doctree

import "github.com/google/uuid"

// isCorruptTask reports whether a task subtree is malformed: a task node
// must have a taskTitle as its first child. Editors that crashed mid-write
// have produced task nodes with missing or misordered children; those
// subtrees make extraction and toggling ambiguous.
func isCorruptTask(n *Node) bool {
	if n.Type != TypeTask {
		return false
	}
	if len(n.Content) == 0 {
		return true
	}
	return n.Content[0].Type != TypeTaskTitle
}

// RepairCorrupt replaces every corrupt task subtree with an empty paragraph
// placeholder and returns the number of repairs made. Sibling order is
// preserved so surrounding content keeps its position.
func RepairCorrupt(root *Node) int {
	repaired := 0
	var fix func(n *Node)
	fix = func(n *Node) {
		for i, child := range n.Content {
			if isCorruptTask(child) {
				n.Content[i] = &Node{Type: TypeParagraph}
				repaired++
				continue
			}
			fix(child)
		}
	}
	fix(root)
	return repaired
}

// EnsureTaskIDs assigns a stable node id to every task node that lacks one
// and returns how many ids were assigned. Stable ids make toggles immune to
// positional drift; content that predates them falls back to ordinal scans.
func EnsureTaskIDs(root *Node) int {
	assigned := 0
	root.Walk(func(n *Node) bool {
		if n.Type == TypeTask {
			if n.Attrs == nil {
				n.Attrs = &Attrs{}
			}
			if n.Attrs.NodeID == "" {
				n.Attrs.NodeID = uuid.NewString()
				assigned++
			}
		}
		return true
	})
	return assigned
}
