package visualtree

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/dgallion1/treegest/internal/element"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nameCounter counts Name calls across every element reachable from a wrapped one.
type nameCounter struct {
	calls int
	hook  func(calls int)
}

type counted struct {
	element.Element
	p *nameCounter
}

func (p *nameCounter) wrap(el element.Element) element.Element {
	if el == nil {
		return nil
	}
	return counted{Element: el, p: p}
}

func (e counted) Name() string {
	e.p.calls++
	if e.p.hook != nil {
		e.p.hook(e.p.calls)
	}
	return e.Element.Name()
}

func (e counted) Parent() element.Element          { return e.p.wrap(e.Element.Parent()) }
func (e counted) PreviousSibling() element.Element { return e.p.wrap(e.Element.PreviousSibling()) }
func (e counted) NextSibling() element.Element     { return e.p.wrap(e.Element.NextSibling()) }

func (e counted) Children() []element.Element {
	kids := e.Element.Children()
	out := make([]element.Element, len(kids))
	for i, k := range kids {
		out[i] = e.p.wrap(k)
	}
	return out
}

func build(t *testing.T, seeds []element.Element, opts Options) (*Builder, string) {
	t.Helper()
	if opts.TokenLimit == 0 {
		opts.TokenLimit = 10000
	}
	b := New(seeds, opts)
	xml, err := b.BuildXML(context.Background())
	require.NoError(t, err)
	return b, xml
}

func find(t *testing.T, tree *element.Tree, id string) element.Element {
	t.Helper()
	n, ok := tree.Find(id)
	require.True(t, ok, "missing %s", id)
	return n
}

func chainTree() *element.Tree {
	root := element.NewNode("root", element.Panel)
	mid := root.Append(element.NewNode("mid", element.Panel))
	mid.Append(element.NewNode("leaf", element.Button).SetName("OK"))
	return element.NewTree("chain", root)
}

func siblingsTree() *element.Tree {
	p := element.NewNode("p", element.Panel)
	p.Append(element.NewNode("a", element.Label).SetText("first"))
	p.Append(element.NewNode("b", element.Label).SetText("second"))
	p.Append(element.NewNode("c", element.Label).SetText("third"))
	return element.NewTree("siblings", p)
}

func wideTree(n int) *element.Tree {
	root := element.NewNode("root", element.Panel)
	for i := 0; i < n; i++ {
		root.Append(element.NewNode("l"+strconv.Itoa(i), element.Label).SetText("word word word"))
	}
	return element.NewTree("wide", root)
}

func walk(n *node, fn func(*node)) {
	fn(n)
	for _, c := range n.children {
		walk(c, fn)
	}
}

func TestBuildXML_FlattensUninformativeChain(t *testing.T) {
	tree := chainTree()
	_, xml := build(t, []element.Element{find(t, tree, "leaf")}, Options{Detail: Minimal})

	want := "<Panel id=\"0\">\n" +
		"  <Button id=\"1\" description=\"OK\"/>\n" +
		"</Panel>"
	assert.Equal(t, want, xml)
}

func TestBuildXML_WarningHeuristic(t *testing.T) {
	big := element.NewNode("big", element.Panel).SetBounds(element.Rect{Width: 300, Height: 300})
	tree := element.NewTree("w", big)
	seeds := []element.Element{find(t, tree, "big")}

	_, compact := build(t, seeds, Options{Detail: Compact})
	assert.Equal(t, `<Panel id="0" x="0" y="0" width="300" height="300" warning="XML content may be inaccessible!"/>`, compact)

	_, minimal := build(t, seeds, Options{Detail: Minimal})
	assert.Equal(t, `<Panel id="0"/>`, minimal)

	mid := element.NewNode("mid", element.Panel).SetBounds(element.Rect{Width: 100, Height: 100})
	midTree := element.NewTree("m", mid)
	midSeeds := []element.Element{find(t, midTree, "mid")}

	_, detailed := build(t, midSeeds, Options{Detail: Detailed})
	assert.Contains(t, detailed, "warning=")
	_, compact = build(t, midSeeds, Options{Detail: Compact})
	assert.NotContains(t, compact, "warning=")
}

func TestBuildXML_NoWarningWithContent(t *testing.T) {
	doc := element.NewNode("doc", element.Document).
		SetText("body").
		SetBounds(element.Rect{Width: 500, Height: 500})
	tree := element.NewTree("d", doc)
	_, xml := build(t, []element.Element{find(t, tree, "doc")}, Options{Detail: Compact})
	assert.NotContains(t, xml, "warning=")
	assert.Contains(t, xml, `content="body"`)
}

func TestBuildXML_PreviousSiblingsKeepDocumentOrder(t *testing.T) {
	tree := siblingsTree()
	_, xml := build(t, []element.Element{find(t, tree, "c")}, Options{Detail: Minimal})

	want := "<Panel id=\"0\">\n" +
		"  <Label id=\"1\" content=\"first\"/>\n" +
		"  <Label id=\"2\" content=\"second\"/>\n" +
		"  <Label id=\"3\" content=\"third\"/>\n" +
		"</Panel>"
	assert.Equal(t, want, xml)
}

func TestBuildXML_LateParentAdoptsChildrenInOrder(t *testing.T) {
	p := element.NewNode("p", element.Panel)
	p.Append(element.NewNode("a", element.Label).SetText("first"))
	p.Append(element.NewNode("c", element.Label).SetText("third"))
	tree := element.NewTree("t", p)

	b, xml := build(t, []element.Element{find(t, tree, "c"), find(t, tree, "a")}, Options{Detail: Minimal})

	assert.Less(t, strings.Index(xml, "first"), strings.Index(xml, "third"))
	roots, err := b.RootElements(context.Background())
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "p", roots[0].ID())
}

func TestBuildXML_MultilineContent(t *testing.T) {
	label := element.NewNode("x", element.Label).SetText("line one\n\nline two")
	tree := element.NewTree("m", label)
	_, xml := build(t, []element.Element{find(t, tree, "x")}, Options{Detail: Compact})

	want := "<Label id=\"0\">\n" +
		"  line one\n" +
		"  line two\n" +
		"</Label>"
	assert.Equal(t, want, xml)
}

func TestBuildXML_SingleLineContentWithChildren(t *testing.T) {
	label := element.NewNode("x", element.Label).SetText("Heading")
	label.Append(element.NewNode("ok", element.Button).SetName("OK"))
	tree := element.NewTree("s", label)
	_, xml := build(t, []element.Element{find(t, tree, "x")}, Options{Detail: Detailed})

	want := "<Label id=\"0\" content=\"Heading\">\n" +
		"  <Button id=\"1\" description=\"OK\"/>\n" +
		"</Label>"
	assert.Equal(t, want, xml)
}

func TestBuildXML_EscapesAttributes(t *testing.T) {
	label := element.NewNode("x", element.Label).SetText(`a<b & "c" 'd'>`)
	btn := element.NewNode("y", element.Button).SetName("Save & <Close>")
	root := element.NewNode("r", element.Panel)
	root.Append(label)
	root.Append(btn)
	tree := element.NewTree("e", root)

	_, xml := build(t, []element.Element{find(t, tree, "x")}, Options{Detail: Minimal})
	assert.Contains(t, xml, `content="a&lt;b &amp; &quot;c&quot; &apos;d&apos;&gt;"`)
	assert.Contains(t, xml, `description="Save &amp; &lt;Close&gt;"`)
}

func TestBuildXML_DescriptionAndContentRules(t *testing.T) {
	root := element.NewNode("r", element.Panel)
	root.Append(element.NewNode("same", element.Label).SetName("Hello").SetText("Hello"))
	root.Append(element.NewNode("diff", element.Label).SetName("Greeting").SetText("Hello"))
	root.Append(element.NewNode("nameonly", element.Label).SetName("Caption"))
	root.Append(element.NewNode("btn", element.Button).SetName("Go").SetText("Go"))
	tree := element.NewTree("d", root)

	_, xml := build(t, []element.Element{find(t, tree, "r")}, Options{Detail: Minimal})
	lines := strings.Split(xml, "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, `  <Label id="1" content="Hello"/>`, lines[1])
	assert.Equal(t, `  <Label id="2" description="Greeting" content="Hello"/>`, lines[2])
	assert.Equal(t, `  <Label id="3" content="Caption"/>`, lines[3])
	assert.Equal(t, `  <Button id="4" description="Go" content="Go"/>`, lines[4])
}

func TestBuildXML_TruncatesOverBudget(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("lorem ", 100))
	label := element.NewNode("x", element.Label).SetText(long)
	tree := element.NewTree("t", label)

	_, xml := build(t, []element.Element{find(t, tree, "x")}, Options{TokenLimit: 20})
	assert.True(t, strings.HasSuffix(xml, `…"/>`), xml)
	assert.Less(t, len(xml), len(long))
}

func TestBuildXML_CompactRetention(t *testing.T) {
	root := element.NewNode("top", element.TopLevel).SetBounds(element.Rect{Width: 800, Height: 600})
	single := root.Append(element.NewNode("p1", element.Panel))
	single.Append(element.NewNode("alone", element.Label).SetText("alone"))
	pair := root.Append(element.NewNode("p2", element.Panel))
	pair.Append(element.NewNode("x", element.Label).SetText("x"))
	pair.Append(element.NewNode("y", element.Label).SetText("y"))
	tree := element.NewTree("c", root)

	b, xml := build(t, []element.Element{find(t, tree, "top")}, Options{Detail: Compact})

	assert.Equal(t, 1, strings.Count(xml, "<Panel"), xml)
	assert.Contains(t, xml, "\n  <Label id=\"1\" content=\"alone\"/>\n")
	assert.Contains(t, xml, "\n  <Panel id=\"2\" x=\"0\" y=\"0\" width=\"0\" height=\"0\">\n")
	assert.Equal(t, 5, b.BuiltElements().Len())

	t.Run("document keeps a single child", func(t *testing.T) {
		screen := element.NewNode("s", element.Screen)
		doc := screen.Append(element.NewNode("d", element.Document))
		doc.Append(element.NewNode("t", element.Label).SetText("text"))
		tree := element.NewTree("s", screen)

		_, xml := build(t, []element.Element{find(t, tree, "t")}, Options{Detail: Compact})
		assert.Contains(t, xml, "<Document")
		assert.Contains(t, xml, "<Screen")
	})

	t.Run("nested screen with one child is dropped", func(t *testing.T) {
		panel := element.NewNode("p", element.Panel)
		inner := panel.Append(element.NewNode("inner", element.TopLevel))
		inner.Append(element.NewNode("t", element.Label).SetText("text"))
		tree := element.NewTree("n", panel)

		_, xml := build(t, []element.Element{find(t, tree, "t")}, Options{Detail: Compact})
		assert.NotContains(t, xml, "<TopLevel")
		assert.Contains(t, xml, "<Panel")
	})
}

func TestBuildXML_DetailedRendersEverything(t *testing.T) {
	tree := chainTree()
	b, xml := build(t, []element.Element{find(t, tree, "leaf")}, Options{Detail: Detailed})

	require.Len(t, b.nodes, 3)
	for _, n := range b.nodes {
		assert.True(t, n.shouldRender, n.id)
	}
	assert.Equal(t, 2, strings.Count(xml, "<Panel"))
}

func TestBuildXML_InformativenessIsMonotonic(t *testing.T) {
	tree := chainTree()
	for _, d := range []DetailLevel{Minimal, Compact, Detailed} {
		b, _ := build(t, []element.Element{find(t, tree, "leaf")}, Options{Detail: d})
		for _, r := range b.roots {
			walk(r, func(n *node) {
				assert.True(t, n.hasInformativeContent, "%s at %s", n.id, d)
			})
		}
		mid := b.roots[0].children[0]
		assert.Equal(t, 1, mid.informativeChildCount)
	}
}

func TestBuildXML_SequentialIDs(t *testing.T) {
	tree := siblingsTree()
	b, xml := build(t, []element.Element{find(t, tree, "b")}, Options{StartingID: 10, Detail: Detailed})

	var got []int
	for _, m := range regexp.MustCompile(`id="(\d+)"`).FindAllStringSubmatch(xml, -1) {
		id, err := strconv.Atoi(m[1])
		require.NoError(t, err)
		got = append(got, id)
	}
	ids := b.BuiltElements()
	assert.Equal(t, []int{10, 11, 12, 13}, got)
	assert.Equal(t, got, ids.IDs())
	assert.Equal(t, 10, ids.Start())

	seen := map[string]bool{}
	ids.Range(func(id int, el element.Element) bool {
		assert.False(t, seen[el.ID()], "element %s mapped twice", el.ID())
		seen[el.ID()] = true
		return true
	})

	first, ok := ids.Get(10)
	require.True(t, ok)
	assert.Equal(t, "p", first.ID())
	_, ok = ids.Get(14)
	assert.False(t, ok)
	_, ok = ids.Get(9)
	assert.False(t, ok)
}

func TestBuildXML_NoDuplicateVisits(t *testing.T) {
	tree := siblingsTree()
	seeds := []element.Element{find(t, tree, "a"), find(t, tree, "b"), find(t, tree, "c"), find(t, tree, "b")}
	b, _ := build(t, seeds, Options{Detail: Detailed})

	seen := map[string]bool{}
	for _, n := range b.nodes {
		assert.False(t, seen[n.id], "visited %s twice", n.id)
		seen[n.id] = true
	}
	assert.Len(t, b.nodes, 4)
}

func TestBuildXML_BudgetBound(t *testing.T) {
	tree := wideTree(50)
	const budget = 100
	b, _ := build(t, []element.Element{tree.Root}, Options{TokenLimit: budget, Detail: Detailed})

	require.NotEmpty(t, b.nodes)
	total := 0
	for _, n := range b.nodes {
		total += n.tokenCount
	}
	last := b.nodes[len(b.nodes)-1]
	assert.Greater(t, total, budget)
	assert.LessOrEqual(t, total-last.tokenCount, budget)
	assert.Less(t, len(b.nodes), 51)
	assert.Equal(t, total, b.Stats().Tokens)
}

func TestBuildXML_Memoized(t *testing.T) {
	tree := siblingsTree()
	p := &nameCounter{}
	b := New([]element.Element{p.wrap(find(t, tree, "b"))}, Options{TokenLimit: 1000})

	first, err := b.BuildXML(context.Background())
	require.NoError(t, err)
	calls := p.calls
	require.Positive(t, calls)

	second, err := b.BuildXML(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, calls, p.calls)

	_, err = b.RootElements(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls, p.calls)
}

func TestBuildXML_NoSeeds(t *testing.T) {
	b := New(nil, Options{TokenLimit: 100})
	_, err := b.BuildXML(context.Background())
	assert.ErrorIs(t, err, ErrNoSeeds)
	_, err = b.RootElements(context.Background())
	assert.ErrorIs(t, err, ErrNoSeeds)

	b = New([]element.Element{nil}, Options{TokenLimit: 100})
	_, err = b.BuildXML(context.Background())
	assert.ErrorIs(t, err, ErrNoSeeds)
}

func TestBuildXML_Cancelled(t *testing.T) {
	tree := wideTree(10)

	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		b := New([]element.Element{tree.Root}, Options{TokenLimit: 1000})
		_, err := b.BuildXML(ctx)
		assert.ErrorIs(t, err, ErrCancelled)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("during traversal", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p := &nameCounter{hook: func(calls int) {
			if calls == 3 {
				cancel()
			}
		}}
		b := New([]element.Element{p.wrap(tree.Root)}, Options{TokenLimit: 1000})

		xml, err := b.BuildXML(ctx)
		assert.ErrorIs(t, err, ErrCancelled)
		assert.Empty(t, xml)
		assert.Zero(t, b.BuiltElements().Len())

		xml, err = b.BuildXML(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 10, strings.Count(xml, "<Label"))
	})
}

func TestRootElements_Disconnected(t *testing.T) {
	left := siblingsTree()
	right := chainTree()
	b := New([]element.Element{find(t, right, "leaf"), find(t, left, "a")}, Options{TokenLimit: 1000})

	roots, err := b.RootElements(context.Background())
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, "root", roots[0].ID())
	assert.Equal(t, "p", roots[1].ID())
	assert.Equal(t, 2, b.Stats().Roots)
}

func TestParseDetailLevel(t *testing.T) {
	assert.Equal(t, Minimal, ParseDetailLevel("Minimal"))
	assert.Equal(t, Detailed, ParseDetailLevel(" detailed "))
	assert.Equal(t, Compact, ParseDetailLevel("compact"))
	assert.Equal(t, Compact, ParseDetailLevel(""))
	assert.Equal(t, Compact, ParseDetailLevel("verbose"))
	assert.Equal(t, "minimal", Minimal.String())
}
