package collab

import (
	"testing"

	"driftnote/internal/doctree"
)

func block(id, text string) *doctree.Node {
	return &doctree.Node{
		Type:    doctree.TypeParagraph,
		Attrs:   &doctree.Attrs{NodeID: id},
		Content: []*doctree.Node{{Type: doctree.TypeText, Text: text}},
	}
}

func baseTree(ids ...string) *doctree.Node {
	root := &doctree.Node{Type: doctree.TypeDoc}
	for _, id := range ids {
		root.Content = append(root.Content, block(id, "seed "+id))
	}
	return root
}

func insertOp(origin string, clock uint64, id, after string) Op {
	return Op{
		Kind:   OpInsert,
		Origin: origin,
		Clock:  clock,
		NodeID: id,
		After:  after,
		Node:   block(id, "from "+origin),
	}
}

func setTextOp(origin string, clock uint64, id, text string) Op {
	// Register writes address the inline text of a block's first child by
	// rewriting the whole node text through the target id here, which for
	// these tests is the text node itself.
	return Op{Kind: OpSetText, Origin: origin, Clock: clock, NodeID: id, Text: text}
}

func applyAll(s *docState, ops []Op) {
	for _, op := range ops {
		s.apply(op)
	}
}

func topLevelIDs(tree *doctree.Node) []string {
	var ids []string
	for _, n := range tree.Content {
		if n.Attrs != nil {
			ids = append(ids, n.Attrs.NodeID)
		}
	}
	return ids
}

func TestDisjointEditsBothSurvive(t *testing.T) {
	opA := insertOp("peer-a", 5, "a1", "x")
	opB := insertOp("peer-b", 5, "b1", "y")

	orders := map[string][]Op{
		"a then b": {opA, opB},
		"b then a": {opB, opA},
	}
	for name, ops := range orders {
		t.Run(name, func(t *testing.T) {
			s := newDocState(baseTree("x", "y"))
			applyAll(s, ops)

			if s.tree.FindByID("a1") == nil {
				t.Error("peer-a insert missing from merged tree")
			}
			if s.tree.FindByID("b1") == nil {
				t.Error("peer-b insert missing from merged tree")
			}
			ids := topLevelIDs(s.tree)
			if len(ids) != 4 {
				t.Fatalf("expected 4 top-level nodes, got %v", ids)
			}
		})
	}
}

func TestSameNodeWriteIsDeterministic(t *testing.T) {
	opA := setTextOp("peer-a", 7, "n1", "from a")
	opB := setTextOp("peer-b", 7, "n1", "from b")

	resolve := func(ops []Op) string {
		tree := &doctree.Node{Type: doctree.TypeDoc, Content: []*doctree.Node{
			{Type: doctree.TypeParagraph, Content: []*doctree.Node{
				{Type: doctree.TypeText, Attrs: &doctree.Attrs{NodeID: "n1"}, Text: "seed"},
			}},
		}}
		s := newDocState(tree)
		applyAll(s, ops)
		return s.tree.FindByID("n1").Text
	}

	first := resolve([]Op{opA, opB})
	second := resolve([]Op{opB, opA})
	if first != second {
		t.Fatalf("arrival order changed the winner: %q vs %q", first, second)
	}
	// Equal clocks tie-break on origin; peer-b sorts higher.
	if first != "from b" {
		t.Errorf("expected peer-b to win the tie, got %q", first)
	}
}

func TestHigherClockWinsRegardlessOfArrival(t *testing.T) {
	older := setTextOp("peer-z", 3, "n1", "older")
	newer := setTextOp("peer-a", 9, "n1", "newer")

	tree := func() *doctree.Node {
		return &doctree.Node{Type: doctree.TypeDoc, Content: []*doctree.Node{
			{Type: doctree.TypeParagraph, Content: []*doctree.Node{
				{Type: doctree.TypeText, Attrs: &doctree.Attrs{NodeID: "n1"}, Text: "seed"},
			}},
		}}
	}

	s := newDocState(tree())
	applyAll(s, []Op{newer, older})
	if got := s.tree.FindByID("n1").Text; got != "newer" {
		t.Errorf("late arrival of an older write overwrote a newer one: %q", got)
	}

	s = newDocState(tree())
	applyAll(s, []Op{older, newer})
	if got := s.tree.FindByID("n1").Text; got != "newer" {
		t.Errorf("newer write lost: %q", got)
	}
}

func TestInsertDeleteRaceConverges(t *testing.T) {
	ins := insertOp("peer-a", 4, "n1", "")
	del := Op{Kind: OpDelete, Origin: "peer-b", Clock: 8, NodeID: "n1"}

	for name, ops := range map[string][]Op{
		"insert then delete": {ins, del},
		"delete then insert": {del, ins},
	} {
		t.Run(name, func(t *testing.T) {
			s := newDocState(baseTree())
			applyAll(s, ops)
			if s.tree.FindByID("n1") != nil {
				t.Error("delete with the higher clock should win")
			}
		})
	}

	// Flip the clocks: the insert is ordered after the delete and survives.
	ins.Clock, del.Clock = 8, 4
	for name, ops := range map[string][]Op{
		"insert then delete": {ins, del},
		"delete then insert": {del, ins},
	} {
		t.Run("reinsert "+name, func(t *testing.T) {
			s := newDocState(baseTree())
			applyAll(s, ops)
			if s.tree.FindByID("n1") == nil {
				t.Error("insert ordered after the delete should survive")
			}
		})
	}
}

func TestDuplicateInsertIsNoOp(t *testing.T) {
	s := newDocState(baseTree())
	op := insertOp("peer-a", 2, "n1", "")
	if !s.apply(op) {
		t.Fatal("first insert should apply")
	}
	if s.apply(op) {
		t.Error("redelivered insert should be a no-op")
	}
	if got := len(s.tree.Content); got != 1 {
		t.Errorf("expected 1 node, got %d", got)
	}
}

func TestWriteToDeletedNodeStaysDead(t *testing.T) {
	s := newDocState(baseTree("x"))
	s.apply(Op{Kind: OpDelete, Origin: "peer-a", Clock: 10, NodeID: "x"})
	if s.apply(setTextOp("peer-b", 4, "x", "ghost")) {
		t.Error("write ordered before the delete should not apply")
	}
	if s.tree.FindByID("x") != nil {
		t.Error("deleted node resurfaced")
	}
}

func TestInsertAfterAnchor(t *testing.T) {
	s := newDocState(baseTree("x", "y"))
	s.apply(insertOp("peer-a", 2, "mid", "x"))

	ids := topLevelIDs(s.tree)
	want := []string{"x", "mid", "y"}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("order mismatch: got %v, want %v", ids, want)
		}
	}

	// Unknown anchor prepends rather than dropping the node.
	s.apply(insertOp("peer-a", 3, "front", "vanished"))
	if got := topLevelIDs(s.tree)[0]; got != "front" {
		t.Errorf("insert with missing anchor should prepend, got head %q", got)
	}
}

func TestLamportClockAdvancesPastRemote(t *testing.T) {
	s := newDocState(baseTree())
	s.apply(insertOp("peer-a", 40, "n1", ""))
	if s.clock <= 40 {
		t.Errorf("clock %d not advanced past remote 40", s.clock)
	}
}

func TestMetaLastWriterWins(t *testing.T) {
	s := newDocState(baseTree())
	if !s.setMeta("title", "first", stamp{clock: 1, origin: "a"}) {
		t.Fatal("initial meta write rejected")
	}
	if s.setMeta("title", "stale", stamp{clock: 1, origin: "a"}) {
		t.Error("equal-stamp rewrite should lose")
	}
	if !s.setMeta("title", "second", stamp{clock: 2, origin: "a"}) {
		t.Fatal("newer meta write rejected")
	}
	if got := s.metaMap()["title"]; got != "second" {
		t.Errorf("meta map = %v", got)
	}
}

func TestResetClearsContentAndRegisters(t *testing.T) {
	tree := &doctree.Node{Type: doctree.TypeDoc, Content: []*doctree.Node{
		{Type: doctree.TypeParagraph, Content: []*doctree.Node{
			{Type: doctree.TypeText, Attrs: &doctree.Attrs{NodeID: "x"}, Text: "seed"},
		}},
	}}
	s := newDocState(tree)
	if !s.apply(setTextOp("peer-a", 5, "x", "edited")) {
		t.Fatal("text write rejected")
	}
	s.apply(Op{Kind: OpDelete, Origin: "peer-a", Clock: 6, NodeID: "gone"})
	s.reset()

	if len(s.tree.Content) != 1 || s.tree.Content[0].Type != doctree.TypeParagraph {
		t.Fatalf("reset tree not the empty baseline: %+v", s.tree)
	}
	if len(s.textRegs) != 0 || len(s.tombstones) != 0 {
		t.Error("registers survived reset")
	}
}

func TestValidateRejectsMalformedInsertPayload(t *testing.T) {
	// Any of these, once merged, would fail Parse on the next snapshot
	// load and cost the whole document.
	payloads := map[string]*doctree.Node{
		"unknown node type":   {Type: "script"},
		"nested unknown type": {Type: doctree.TypeParagraph, Content: []*doctree.Node{{Type: "iframe"}}},
		"doc root":            {Type: doctree.TypeDoc},
		"nested doc":          {Type: doctree.TypeBlockquote, Content: []*doctree.Node{{Type: doctree.TypeDoc}}},
		"heading level out of range": {
			Type: doctree.TypeHeading, Attrs: &doctree.Attrs{Level: 9},
		},
		"text on block node": {Type: doctree.TypeParagraph, Text: "inline"},
	}
	for name, node := range payloads {
		t.Run(name, func(t *testing.T) {
			op := Op{Kind: OpInsert, Origin: "peer-a", Clock: 1, NodeID: "n1", Node: node}
			if err := op.validate(); err == nil {
				t.Error("malformed payload passed validation")
			}
		})
	}

	ok := Op{Kind: OpInsert, Origin: "peer-a", Clock: 1, NodeID: "n1", Node: block("n1", "fine")}
	if err := ok.validate(); err != nil {
		t.Errorf("well-formed insert rejected: %v", err)
	}
}

func TestTextWriteToBlockNodeIsDropped(t *testing.T) {
	s := newDocState(baseTree("x"))
	// "x" is a paragraph; inline text lives only on text nodes.
	if s.apply(setTextOp("peer-a", 5, "x", "inline")) {
		t.Fatal("text write to a block node applied")
	}
	if s.tree.FindByID("x").Text != "" {
		t.Error("block node carries text after rejected write")
	}
}

func TestAttrWriteKeepsTreeValid(t *testing.T) {
	tree := &doctree.Node{Type: doctree.TypeDoc, Content: []*doctree.Node{
		{Type: doctree.TypeHeading, Attrs: &doctree.Attrs{Level: 2, NodeID: "h1"}},
	}}
	s := newDocState(tree)

	bad := Op{Kind: OpSetAttr, Origin: "peer-b", Clock: 9, NodeID: "h1", Attrs: &doctree.Attrs{Level: 9}}
	if s.apply(bad) {
		t.Fatal("out-of-range heading level applied")
	}

	// The rejected write consumed no register, so an older legal write
	// still lands.
	good := Op{Kind: OpSetAttr, Origin: "peer-a", Clock: 5, NodeID: "h1", Attrs: &doctree.Attrs{Level: 4}}
	if !s.apply(good) {
		t.Fatal("legal attr write rejected")
	}

	h := s.tree.FindByID("h1")
	if h == nil {
		t.Fatal("attr write lost the node's stable id")
	}
	if h.Attrs.Level != 4 {
		t.Errorf("heading level = %d, want 4", h.Attrs.Level)
	}

	// What this state persists must load again.
	data, err := s.tree.Marshal()
	if err != nil {
		t.Fatalf("marshal merged tree: %v", err)
	}
	if _, err := doctree.Parse(data); err != nil {
		t.Errorf("merged tree does not round-trip: %v", err)
	}
}
