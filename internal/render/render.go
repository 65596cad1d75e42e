// Package render is the request-level entry point: it loads a document or
// takes a captured tree, resolves seeds and defaults, runs the visual tree
// builder and caches results by content.
package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgallion1/treegest/internal/element"
	"github.com/dgallion1/treegest/internal/source"
	"github.com/dgallion1/treegest/internal/tokens"
	"github.com/dgallion1/treegest/internal/visualtree"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrBadDocument wraps failures of a source to read its input.
	ErrBadDocument = errors.New("document could not be loaded")
	// ErrInvalidParams is returned for out-of-range request parameters.
	ErrInvalidParams = errors.New("invalid render parameters")
)

// Params are the per-request knobs. Zero values fall back to the service
// defaults.
type Params struct {
	TokenLimit int      `json:"token_limit,omitempty"`
	StartingID *int     `json:"starting_id,omitempty"`
	Detail     string   `json:"detail_level,omitempty"`
	Seeds      []string `json:"seeds,omitempty"`
}

// Validate rejects a negative token limit or starting id and a detail level
// other than detailed, compact or minimal. Empty fields are valid.
func (p Params) Validate() error {
	if p.TokenLimit < 0 {
		return fmt.Errorf("%w: token_limit must be a positive integer", ErrInvalidParams)
	}
	if p.StartingID != nil && *p.StartingID < 0 {
		return fmt.Errorf("%w: starting_id must be a non-negative integer", ErrInvalidParams)
	}
	switch strings.ToLower(strings.TrimSpace(p.Detail)) {
	case "", "detailed", "compact", "minimal":
	default:
		return fmt.Errorf("%w: detail_level must be detailed, compact or minimal", ErrInvalidParams)
	}
	return nil
}

// Request is one document to render.
type Request struct {
	Filename string
	Content  []byte
	Params   Params
}

// ElementRef maps an emitted id back to the element it describes.
type ElementRef struct {
	ID        int    `json:"id"`
	ElementID string `json:"element_id"`
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
}

// Result is a rendered tree.
type Result struct {
	Title     string       `json:"title,omitempty"`
	XML       string       `json:"xml"`
	Elements  []ElementRef `json:"elements"`
	Roots     []string     `json:"roots"`
	Detail    string       `json:"detail_level"`
	Visited   int          `json:"visited"`
	Rendered  int          `json:"rendered"`
	Tokens    int          `json:"tokens"`
	ElapsedMs int64        `json:"elapsed_ms"`
	Cached    bool         `json:"cached"`
}

// BatchItem is the outcome of one request of a batch.
type BatchItem struct {
	Filename string  `json:"filename"`
	Result   *Result `json:"result,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Stats reports build and cache figures for the recent window.
type Stats struct {
	Latency      LatencySummary        `json:"latency"`
	Levels       map[string]LevelStats `json:"detail_levels"`
	CacheEntries int                   `json:"cache_entries"`
	CacheHits    int64                 `json:"cache_hits"`
	CacheMisses  int64                 `json:"cache_misses"`
}

// Options configures a Service.
type Options struct {
	TokenLimit    int
	StartingID    int
	Detail        visualtree.DetailLevel
	Estimator     tokens.Estimator
	CacheSize     int
	MaxConcurrent int
	StatsWindow   time.Duration
	// PDFFallback lets PDF loading shell out to pdftotext when the Go
	// extractor fails.
	PDFFallback bool
	Logger      *zap.Logger
}

// Service renders documents and trees. It is safe for concurrent use; every
// render gets its own builder.
type Service struct {
	opts  Options
	cache *lru.Cache[string, *Result]
	stats *BuildWindow
	log   *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

func NewService(opts Options) (*Service, error) {
	if opts.TokenLimit <= 0 {
		opts.TokenLimit = 8000
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.Estimator.LatinRatio == 0 && opts.Estimator.CJKRatio == 0 {
		opts.Estimator = tokens.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	cache, err := lru.New[string, *Result](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Service{
		opts:  opts,
		cache: cache,
		stats: NewBuildWindow(opts.StatsWindow),
		log:   opts.Logger,
	}, nil
}

type resolved struct {
	limit  int
	start  int
	detail visualtree.DetailLevel
	seeds  []string
}

func (s *Service) resolve(p Params) resolved {
	r := resolved{limit: s.opts.TokenLimit, start: s.opts.StartingID, detail: s.opts.Detail, seeds: p.Seeds}
	if p.TokenLimit > 0 {
		r.limit = p.TokenLimit
	}
	if p.StartingID != nil {
		r.start = *p.StartingID
	}
	if strings.TrimSpace(p.Detail) != "" {
		r.detail = visualtree.ParseDetailLevel(p.Detail)
	}
	return r
}

func (r resolved) key(hash, ext string) string {
	return strings.Join([]string{
		hash, ext,
		strconv.Itoa(r.limit), strconv.Itoa(r.start), r.detail.String(),
		strings.Join(r.seeds, "\x1f"),
	}, "|")
}

// Render loads req with the source for its extension and serializes it.
// Identical content and parameters are served from the cache.
func (s *Service) Render(ctx context.Context, req Request) (*Result, error) {
	src, err := source.ForFile(req.Filename)
	if err != nil {
		return nil, err
	}
	if err := req.Params.Validate(); err != nil {
		return nil, err
	}
	if pdf, ok := src.(*source.PDFSource); ok {
		pdf.FallbackPdftotext = s.opts.PDFFallback
	}
	p := s.resolve(req.Params)
	key := p.key(ContentHashHex(req.Content), strings.ToLower(filepath.Ext(req.Filename)))

	if cached, ok := s.cache.Get(key); ok {
		s.hits.Add(1)
		out := cached.clone()
		out.Cached = true
		return out, nil
	}
	s.misses.Add(1)

	tree, err := src.Load(bytes.NewReader(req.Content), req.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadDocument, req.Filename, err)
	}
	res, err := s.build(ctx, tree, p)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, res)
	return res.clone(), nil
}

func (r *Result) clone() *Result {
	out := *r
	out.Elements = slices.Clone(r.Elements)
	out.Roots = slices.Clone(r.Roots)
	return &out
}

// RenderTree serializes an already built tree. Results are not cached.
func (s *Service) RenderTree(ctx context.Context, tree *element.Tree, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.build(ctx, tree, s.resolve(params))
}

// RenderBatch renders every request with bounded concurrency. A failed item
// does not stop the others; items come back in request order.
func (s *Service) RenderBatch(ctx context.Context, reqs []Request) []BatchItem {
	items := make([]BatchItem, len(reqs))
	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrent)
	for i, req := range reqs {
		items[i].Filename = req.Filename
		g.Go(func() error {
			res, err := s.Render(ctx, req)
			if err != nil {
				items[i].Error = err.Error()
				return nil
			}
			items[i].Result = res
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func (s *Service) build(ctx context.Context, tree *element.Tree, p resolved) (*Result, error) {
	start := time.Now()

	seeds, err := tree.Seeds(p.seeds)
	if err != nil {
		return nil, err
	}
	b := visualtree.New(seeds, visualtree.Options{
		TokenLimit: p.limit,
		StartingID: p.start,
		Detail:     p.detail,
		Estimator:  s.opts.Estimator,
		Logger:     s.log,
	})
	xml, err := b.BuildXML(ctx)
	if err != nil {
		return nil, err
	}
	roots, err := b.RootElements(ctx)
	if err != nil {
		return nil, err
	}

	ids := b.BuiltElements()
	refs := make([]ElementRef, 0, ids.Len())
	ids.Range(func(id int, el element.Element) bool {
		refs = append(refs, ElementRef{ID: id, ElementID: el.ID(), Type: el.Type().String(), Name: el.Name()})
		return true
	})
	rootIDs := make([]string, len(roots))
	for i, r := range roots {
		rootIDs[i] = r.ID()
	}

	st := b.Stats()
	elapsed := time.Since(start)
	s.stats.add(buildRecord{
		detail:   p.detail,
		elapsed:  elapsed,
		limit:    p.limit,
		visited:  st.Visited,
		rendered: st.Rendered,
		tokens:   st.Tokens,
	})

	return &Result{
		Title:     tree.Title,
		XML:       xml,
		Elements:  refs,
		Roots:     rootIDs,
		Detail:    p.detail.String(),
		Visited:   st.Visited,
		Rendered:  st.Rendered,
		Tokens:    st.Tokens,
		ElapsedMs: elapsed.Milliseconds(),
	}, nil
}

// Stats returns the current build and cache figures.
func (s *Service) Stats() Stats {
	return Stats{
		Latency:      s.stats.Latency(),
		Levels:       s.stats.Levels(),
		CacheEntries: s.cache.Len(),
		CacheHits:    s.hits.Load(),
		CacheMisses:  s.misses.Load(),
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}
