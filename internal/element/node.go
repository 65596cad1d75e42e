package element

import (
	"fmt"
	"strconv"
)

// Node is an in-memory Element. Sources build a tree of Nodes and wrap it in
// a Tree before handing it to the serializer.
type Node struct {
	id     string
	typ    Type
	name   string
	text   string
	states States
	bounds Rect

	parent   *Node
	index    int // position within parent.children
	children []*Node
}

// NewNode creates a detached node. An empty id is filled in by NewTree.
func NewNode(id string, t Type) *Node {
	return &Node{id: id, typ: t}
}

// SetName sets the accessible name and returns the node for chaining.
func (n *Node) SetName(name string) *Node { n.name = name; return n }

// SetText sets the textual content.
func (n *Node) SetText(text string) *Node { n.text = text; return n }

// SetStates replaces the state bitset.
func (n *Node) SetStates(s States) *Node { n.states = s; return n }

// AddStates sets additional states.
func (n *Node) AddStates(s States) *Node { n.states |= s; return n }

// SetBounds sets the bounding rectangle.
func (n *Node) SetBounds(r Rect) *Node { n.bounds = r; return n }

// SetType changes the element type.
func (n *Node) SetType(t Type) *Node { n.typ = t; return n }

// Append attaches child as the last child of n and returns child.
func (n *Node) Append(child *Node) *Node {
	if child.parent != nil {
		child.parent.remove(child)
	}
	child.parent = n
	child.index = len(n.children)
	n.children = append(n.children, child)
	return child
}

func (n *Node) remove(child *Node) {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			break
		}
	}
	for i, c := range n.children {
		c.index = i
	}
	child.parent = nil
}

// Kids returns the concrete child nodes.
func (n *Node) Kids() []*Node { return n.children }

// Up returns the concrete parent node, nil for a root.
func (n *Node) Up() *Node { return n.parent }

// RawText returns the full text without a length limit.
func (n *Node) RawText() string { return n.text }

func (n *Node) ID() string     { return n.id }
func (n *Node) Type() Type     { return n.typ }
func (n *Node) Name() string   { return n.name }
func (n *Node) States() States { return n.states }
func (n *Node) Bounds() Rect   { return n.bounds }

func (n *Node) Text(maxLength int) string {
	if maxLength < 0 || len(n.text) <= maxLength {
		return n.text
	}
	runes := []rune(n.text)
	if len(runes) <= maxLength {
		return n.text
	}
	return string(runes[:maxLength])
}

func (n *Node) Parent() Element {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *Node) Children() []Element {
	out := make([]Element, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

func (n *Node) PreviousSibling() Element {
	if n.parent == nil || n.index == 0 {
		return nil
	}
	return n.parent.children[n.index-1]
}

func (n *Node) NextSibling() Element {
	if n.parent == nil || n.index+1 >= len(n.parent.children) {
		return nil
	}
	return n.parent.children[n.index+1]
}

func (n *Node) String() string {
	return fmt.Sprintf("%s#%s", n.typ, n.id)
}

// Tree is a rooted snapshot of Nodes indexed by id.
type Tree struct {
	Title string
	Root  *Node

	byID map[string]*Node
}

// NewTree indexes the tree under root. The first node in pre-order to carry
// an id owns it. Other nodes get a positional id such as "0.2.1", suffixed
// with "#N" when that id is owned elsewhere.
func NewTree(title string, root *Node) *Tree {
	t := &Tree{Title: title, Root: root, byID: make(map[string]*Node)}
	if root == nil {
		return t
	}
	owners := make(map[string]*Node)
	t.Walk(func(n *Node, _ int) {
		if _, taken := owners[n.id]; n.id != "" && !taken {
			owners[n.id] = n
		}
	})
	var walk func(n *Node, path string)
	walk = func(n *Node, path string) {
		if n.id == "" || owners[n.id] != n {
			n.id = t.freeID(path, owners)
		}
		t.byID[n.id] = n
		for i, c := range n.children {
			walk(c, path+"."+strconv.Itoa(i))
		}
	}
	walk(root, "0")
	return t
}

func (t *Tree) freeID(path string, owners map[string]*Node) string {
	id := path
	for i := 1; ; i++ {
		_, owned := owners[id]
		_, used := t.byID[id]
		if !owned && !used {
			return id
		}
		id = path + "#" + strconv.Itoa(i)
	}
}

// Len returns the number of indexed nodes.
func (t *Tree) Len() int { return len(t.byID) }

// Find looks a node up by id.
func (t *Tree) Find(id string) (*Node, bool) {
	n, ok := t.byID[id]
	return n, ok
}

// Walk visits every node in pre-order.
func (t *Tree) Walk(fn func(n *Node, depth int)) {
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		fn(n, depth)
		for _, c := range n.children {
			walk(c, depth+1)
		}
	}
	if t.Root != nil {
		walk(t.Root, 0)
	}
}

// Seeds resolves the starting elements for serialization: the named ids when
// given, otherwise every focused node, otherwise the root.
func (t *Tree) Seeds(ids []string) ([]Element, error) {
	if t.Root == nil {
		return nil, nil
	}
	if len(ids) > 0 {
		out := make([]Element, 0, len(ids))
		for _, id := range ids {
			n, ok := t.byID[id]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownElement, id)
			}
			out = append(out, n)
		}
		return out, nil
	}

	var focused []Element
	t.Walk(func(n *Node, _ int) {
		if n.states.Has(Focused) {
			focused = append(focused, n)
		}
	})
	if len(focused) > 0 {
		return focused, nil
	}
	return []Element{t.Root}, nil
}
