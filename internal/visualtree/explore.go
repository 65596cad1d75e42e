package visualtree

import (
	"context"
	"slices"
	"strings"

	"github.com/dgallion1/treegest/internal/element"
)

// Token cost model of one emitted tag.
const (
	baseCost             = 8 // indentation, start tag and id
	descriptionOverhead  = 3
	lineOverhead         = 4 // indentation of a content line
	multilineTagOverhead = 8 // end tag
	// textCharsPerToken caps the text fetched from an element relative to the
	// remaining budget; Truncate does the precise cut.
	textCharsPerToken = 16
)

// origin is the edge a work item was discovered through.
type origin uint8

const (
	originSeed origin = iota
	originParent
	originPreviousSibling
	originNextSibling
	originFirstChild
)

type workItem struct {
	el       element.Element
	origin   origin
	parentID string
}

// workQueue is a slice-backed FIFO.
type workQueue struct {
	items []workItem
	head  int
}

func (q *workQueue) push(it workItem) { q.items = append(q.items, it) }

func (q *workQueue) len() int { return len(q.items) - q.head }

func (q *workQueue) pop() workItem {
	it := q.items[q.head]
	q.items[q.head] = workItem{}
	q.head++
	if q.head >= 64 && q.head*2 >= len(q.items) {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return it
}

// node is the builder's own copy of an explored element.
type node struct {
	el          element.Element
	id          string
	description string
	contents    []string
	tokenCount  int

	parent   *node
	children []*node

	shouldRender          bool
	hasInformativeContent bool
	informativeChildCount int
}

// link attaches child under n unless that would close a cycle.
func (n *node) link(child *node, front bool) {
	if child.parent != nil || child.isAncestorOf(n) {
		return
	}
	child.parent = n
	if front {
		n.children = slices.Insert(n.children, 0, child)
	} else {
		n.children = append(n.children, child)
	}
}

// adopt links nodes that were explored before n and named n as their parent,
// in the order the element itself lists its children.
func (n *node) adopt(orphans []*node) {
	if len(orphans) > 1 {
		pos := make(map[string]int)
		for i, c := range n.el.Children() {
			if c != nil {
				pos[c.ID()] = i
			}
		}
		slices.SortStableFunc(orphans, func(a, b *node) int {
			pa, oka := pos[a.id]
			pb, okb := pos[b.id]
			switch {
			case oka && okb:
				return pa - pb
			case oka:
				return -1
			case okb:
				return 1
			}
			return 0
		})
	}
	for _, o := range orphans {
		n.link(o, false)
	}
}

func (n *node) isAncestorOf(other *node) bool {
	for cur := other; cur != nil; cur = cur.parent {
		if cur == n {
			return true
		}
	}
	return false
}

func idOf(el element.Element) string {
	if el == nil {
		return ""
	}
	return el.ID()
}

// explore walks the element graph from the seeds until the queue drains or
// the budget is spent. The node that overdraws the budget is kept.
func (b *Builder) explore(ctx context.Context) ([]*node, error) {
	var queue workQueue
	for _, s := range b.seeds {
		queue.push(workItem{el: s, origin: originSeed, parentID: idOf(s.Parent())})
	}

	visited := make(map[string]*node)
	orphans := make(map[string][]*node)
	var order []*node
	accumulated := 0

	unvisited := func(el element.Element) bool {
		if el == nil {
			return false
		}
		_, seen := visited[el.ID()]
		return !seen
	}

	for queue.len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}

		remaining := b.opts.TokenLimit - accumulated
		if remaining <= 0 {
			break
		}

		it := queue.pop()
		el := it.el
		id := el.ID()
		if _, seen := visited[id]; seen {
			continue
		}

		n := b.newNode(el, remaining)
		visited[id] = n
		order = append(order, n)
		accumulated += n.tokenCount

		if it.parentID != "" {
			if p, ok := visited[it.parentID]; ok {
				p.link(n, it.origin == originPreviousSibling)
			} else {
				orphans[it.parentID] = append(orphans[it.parentID], n)
			}
		}
		if waiting, ok := orphans[id]; ok {
			delete(orphans, id)
			n.adopt(waiting)
		}

		if remaining-n.tokenCount < 0 {
			break
		}

		if it.origin != originFirstChild {
			if p := el.Parent(); unvisited(p) {
				queue.push(workItem{el: p, origin: originParent, parentID: idOf(p.Parent())})
			}
		}
		// a first child has no previous sibling
		if it.origin != originNextSibling && it.origin != originFirstChild {
			if prev := el.PreviousSibling(); unvisited(prev) {
				queue.push(workItem{el: prev, origin: originPreviousSibling, parentID: it.parentID})
			}
		}
		if it.origin != originPreviousSibling {
			if next := el.NextSibling(); unvisited(next) {
				queue.push(workItem{el: next, origin: originNextSibling, parentID: it.parentID})
			}
		}
		if it.origin != originParent {
			if kids := el.Children(); len(kids) > 0 && unvisited(kids[0]) {
				queue.push(workItem{el: kids[0], origin: originFirstChild, parentID: id})
			}
		}
	}

	return order, nil
}

// newNode copies what the serializer needs out of el and prices it.
func (b *Builder) newNode(el element.Element, remaining int) *node {
	typ := el.Type()
	name := el.Name()
	text := el.Text(remaining * textCharsPerToken)

	var description, content string
	if name != "" {
		switch {
		case typ.IsTextBearing() && text == "":
			content = b.est.Truncate(name, remaining)
		case !typ.IsTextBearing() || name != text:
			// text elements often repeat their text as the name
			description = b.est.Truncate(name, remaining)
		}
	}
	if content == "" && text != "" {
		content = b.est.Truncate(text, remaining)
	}

	var contents []string
	if content != "" {
		contents = strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	}

	cost := baseCost
	if description != "" {
		cost += b.est.Estimate(description) + descriptionOverhead
	}
	switch {
	case len(contents) == 1:
		cost += b.est.Estimate(contents[0])
	case len(contents) > 1:
		for _, line := range contents {
			cost += b.est.Estimate(line) + lineOverhead
		}
		cost += multilineTagOverhead
	}

	return &node{
		el:           el,
		id:           el.ID(),
		description:  description,
		contents:     contents,
		tokenCount:   cost,
		shouldRender: true,
	}
}

// findRoots returns the distinct topmost ancestors in visit order.
func findRoots(nodes []*node) []*node {
	seen := make(map[*node]struct{})
	var roots []*node
	for _, n := range nodes {
		top := n
		for top.parent != nil {
			top = top.parent
		}
		if _, ok := seen[top]; ok {
			continue
		}
		seen[top] = struct{}{}
		roots = append(roots, top)
	}
	return roots
}
