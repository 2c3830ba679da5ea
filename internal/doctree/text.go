package doctree

import (
	"strings"
	"unicode"
)

// blockBoundary lists the node types that terminate a line of plain text.
var blockBoundary = map[NodeType]bool{
	TypeParagraph: true, TypeHeading: true, TypeListItem: true,
	TypeCodeBlock: true, TypeTaskTitle: true, TypeTaskDesc: true,
}

// PlainText flattens the tree into display text. Block nodes are separated
// by newlines, inline text is concatenated as-is.
func (n *Node) PlainText() string {
	var b strings.Builder
	n.writeText(&b)
	return strings.TrimSpace(b.String())
}

func (n *Node) writeText(b *strings.Builder) {
	switch n.Type {
	case TypeText:
		b.WriteString(n.Text)
	case TypeHardBreak:
		b.WriteString("\n")
	}

	for _, child := range n.Content {
		child.writeText(b)
	}

	if blockBoundary[n.Type] {
		b.WriteString("\n")
	}
}

// InlineText concatenates only the direct inline text of this subtree,
// without block separators. Task titles use this.
func (n *Node) InlineText() string {
	var b strings.Builder
	n.Walk(func(node *Node) bool {
		if node.Type == TypeText {
			b.WriteString(node.Text)
		}
		return true
	})
	return strings.TrimSpace(b.String())
}

// WordCount counts whitespace-separated tokens in the flattened text.
func (n *Node) WordCount() int {
	words := strings.FieldsFunc(n.PlainText(), unicode.IsSpace)
	count := 0
	for _, w := range words {
		if len(strings.TrimSpace(w)) > 0 {
			count++
		}
	}
	return count
}
