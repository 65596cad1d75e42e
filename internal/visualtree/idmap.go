package visualtree

import "github.com/dgallion1/treegest/internal/element"

// IDMap resolves the sequential ids of an emitted tree. Ids are contiguous
// from Start in emission order.
type IDMap struct {
	start int
	elems []element.Element
}

func newIDMap(start int) *IDMap {
	return &IDMap{start: start}
}

func (m *IDMap) add(el element.Element) int {
	m.elems = append(m.elems, el)
	return m.start + len(m.elems) - 1
}

// Start is the id of the first emitted element.
func (m *IDMap) Start() int { return m.start }

// Len is the number of emitted elements.
func (m *IDMap) Len() int { return len(m.elems) }

// Get returns the element emitted with id.
func (m *IDMap) Get(id int) (element.Element, bool) {
	i := id - m.start
	if i < 0 || i >= len(m.elems) {
		return nil, false
	}
	return m.elems[i], true
}

// IDs lists the emitted ids in order.
func (m *IDMap) IDs() []int {
	out := make([]int, len(m.elems))
	for i := range m.elems {
		out[i] = m.start + i
	}
	return out
}

// Range calls fn for each id in order until fn returns false.
func (m *IDMap) Range(fn func(id int, el element.Element) bool) {
	for i, el := range m.elems {
		if !fn(m.start+i, el) {
			return
		}
	}
}
