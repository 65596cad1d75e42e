// Package visualtree compresses a live visual element tree into a bounded,
// indented XML-like text for a token-limited language model.
//
// A Builder runs three passes, once, over the elements reachable from its
// seeds:
//
//   - explore: breadth-first from every seed along parent, sibling and first
//     child edges until the approximate token budget is spent;
//   - classify: bottom-up decision of which explored nodes are worth a tag at
//     the configured DetailLevel;
//   - serialize: depth-first emission, flattening the nodes that were
//     classified away into their nearest rendered ancestor.
//
// The result is memoized on the Builder. A Builder is not safe for concurrent
// use; separate Builders share no state.
package visualtree

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgallion1/treegest/internal/element"
	"github.com/dgallion1/treegest/internal/tokens"
	"go.uber.org/zap"
)

var (
	// ErrNoSeeds is returned when a Builder has no seed elements to start from.
	ErrNoSeeds = errors.New("visualtree: no seed elements")
	// ErrCancelled wraps the context error observed during exploration.
	ErrCancelled = errors.New("visualtree: build cancelled")
)

// DetailLevel controls how aggressively uninformative structure is collapsed.
type DetailLevel int

const (
	// Minimal keeps roots with informative descendants and self-informative nodes.
	Minimal DetailLevel = iota
	// Compact drops uninformative containers that do not group several informative children.
	Compact
	// Detailed renders every explored node.
	Detailed
)

func (d DetailLevel) String() string {
	switch d {
	case Minimal:
		return "minimal"
	case Detailed:
		return "detailed"
	default:
		return "compact"
	}
}

// ParseDetailLevel normalizes a detail level name, defaulting to Compact for
// empty or unrecognized values.
func ParseDetailLevel(s string) DetailLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return Minimal
	case "detailed":
		return Detailed
	default:
		return Compact
	}
}

// Options configures a Builder.
type Options struct {
	// TokenLimit is the approximate token budget for exploration.
	TokenLimit int
	// StartingID is the first sequential id assigned to an emitted element.
	StartingID int
	Detail     DetailLevel
	// Estimator defaults to tokens.Default() when both ratios are zero.
	Estimator tokens.Estimator
	Logger    *zap.Logger
}

// Stats describes a finished build.
type Stats struct {
	Visited  int           `json:"visited"`
	Tokens   int           `json:"tokens"`
	Roots    int           `json:"roots"`
	Rendered int           `json:"rendered"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Builder serializes the visual tree around a set of seed elements.
type Builder struct {
	seeds   []element.Element
	seedIDs map[string]struct{}
	opts    Options
	est     tokens.Estimator
	log     *zap.Logger

	built bool
	xml   string
	nodes []*node
	roots []*node
	ids   *IDMap
	stats Stats
}

// New creates a Builder. Nil seeds are ignored.
func New(seeds []element.Element, opts Options) *Builder {
	b := &Builder{
		seedIDs: make(map[string]struct{}, len(seeds)),
		opts:    opts,
		est:     opts.Estimator,
		log:     opts.Logger,
		ids:     newIDMap(opts.StartingID),
	}
	for _, s := range seeds {
		if s == nil {
			continue
		}
		b.seeds = append(b.seeds, s)
		if id := s.ID(); id != "" {
			b.seedIDs[id] = struct{}{}
		}
	}
	if b.est.LatinRatio == 0 && b.est.CJKRatio == 0 {
		b.est = tokens.Default()
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	return b
}

// BuildXML returns the serialized tree. The first successful call does the
// work; later calls return the same text.
func (b *Builder) BuildXML(ctx context.Context) (string, error) {
	if err := b.ensureBuilt(ctx); err != nil {
		return "", err
	}
	return b.xml, nil
}

// BuiltElements maps the sequential ids that appear in the XML back to the
// elements they describe. It is empty until BuildXML succeeds.
func (b *Builder) BuiltElements() *IDMap {
	return b.ids
}

// RootElements returns the topmost explored element of every disconnected
// part of the explored graph.
func (b *Builder) RootElements(ctx context.Context) ([]element.Element, error) {
	if err := b.ensureBuilt(ctx); err != nil {
		return nil, err
	}
	out := make([]element.Element, len(b.roots))
	for i, r := range b.roots {
		out[i] = r.el
	}
	return out, nil
}

// Stats returns figures about the last successful build.
func (b *Builder) Stats() Stats {
	return b.stats
}

func (b *Builder) ensureBuilt(ctx context.Context) error {
	if len(b.seeds) == 0 {
		return ErrNoSeeds
	}
	if b.built {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	start := time.Now()
	nodes, err := b.explore(ctx)
	if err != nil {
		return err
	}
	roots := findRoots(nodes)
	b.classify(roots)

	ids := newIDMap(b.opts.StartingID)
	xml := serialize(roots, b.opts.Detail, ids)

	total := 0
	for _, n := range nodes {
		total += n.tokenCount
	}

	b.nodes, b.roots, b.ids, b.xml = nodes, roots, ids, xml
	b.stats = Stats{
		Visited:  len(nodes),
		Tokens:   total,
		Roots:    len(roots),
		Rendered: ids.Len(),
		Elapsed:  time.Since(start),
	}
	b.built = true

	b.log.Debug("visual tree built",
		zap.Int("seeds", len(b.seeds)),
		zap.Int("visited", b.stats.Visited),
		zap.Int("tokens", b.stats.Tokens),
		zap.Int("token_limit", b.opts.TokenLimit),
		zap.Int("roots", b.stats.Roots),
		zap.Int("rendered", b.stats.Rendered),
		zap.Stringer("detail", b.opts.Detail),
		zap.Duration("elapsed", b.stats.Elapsed),
	)
	return nil
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}
