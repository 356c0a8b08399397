// Package explore implements the recursive lineage exploration engine:
// candidate retrieval, the thread expansion state machine, and the
// top-level analysis session. Execution is a single logical thread of
// control; every external call is a sequential suspension point, so
// session state needs no locking, only consistent ordering.
package explore

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/matsen/lineage/internal/paper"
	"github.com/matsen/lineage/internal/relevance"
)

// ErrCancelled is the distinguished cancellation condition. It is not a
// bug: it unwinds all active scopes cleanly and preserves partial
// results.
var ErrCancelled = errors.New("analysis cancelled")

// PaperSource is the slice of the bibliographic API the explorer needs.
type PaperSource interface {
	Search(ctx context.Context, query string, minYear int) ([]paper.Paper, error)
	Citations(ctx context.Context, paperID string) ([]paper.Paper, error)
	Recommendations(ctx context.Context, paperID string) ([]paper.Paper, error)
	ResolveID(ctx context.Context, title string) (string, error)
}

// Relevance is the set of LLM-mediated decision functions the explorer
// drives. *relevance.Engine implements it; tests use scripted fakes.
type Relevance interface {
	ExtractThemes(ctx context.Context, p paper.Paper) ([]paper.Theme, error)
	RankByRelevance(ctx context.Context, candidates []paper.Paper, theme string, frontier paper.Paper) ([]paper.Paper, error)
	SelectSuccessors(ctx context.Context, ranked []paper.Paper, t *paper.Thread, seeds []paper.Paper) ([]paper.Paper, error)
	DetectDivergence(ctx context.Context, candidate paper.Paper, parentTheme string, seeds []paper.Paper) (relevance.Divergence, error)
	ClusterLeftovers(ctx context.Context, leftovers []paper.Paper, seeds []paper.Paper, maxClusters int) ([]relevance.Cluster, error)
}

// ProgressFunc receives a milestone event. percent < 0 means
// indeterminate (used for sub-steps). threads is a read-only snapshot.
type ProgressFunc func(message, detail string, percent float64, threads []paper.Summary)

// Config holds the session knobs.
type Config struct {
	MaxThreads         int  // session-wide thread cap, shared across recursion
	MaxPapersPerThread int  // bound on one thread's growth
	MaxPerYear         int  // per-year per-thread cap
	PresentYear        int  // upper bound for year progress; 0 = current year
	BroadSearch        bool // broad domain search on first expansion
	PoolEnabled        bool // accumulate every seen candidate for the post-pass
	PoolMinSize        int  // minimum unclaimed pool size to run the post-pass
	PoolMaxThreads     int  // extra threads the post-pass may propose
	CandidateCap       int  // score-and-truncate cap on one retrieval
}

// DefaultConfig returns the default knobs.
func DefaultConfig() Config {
	return Config{
		MaxThreads:         8,
		MaxPapersPerThread: 12,
		MaxPerYear:         3,
		PresentYear:        time.Now().Year(),
		BroadSearch:        true,
		PoolEnabled:        true,
		PoolMinSize:        20,
		PoolMaxThreads:     2,
		CandidateCap:       50,
	}
}

// PoolEntry records one paper ever seen by retrieval, with its discovery
// provenance.
type PoolEntry struct {
	Paper  paper.Paper
	Source string // "citations", "recommendations", "search"
}

// stack is the transient LIFO chain of threads currently being expanded.
type stack struct {
	ids []string
}

func (s *stack) push(id string) { s.ids = append(s.ids, id) }
func (s *stack) pop()           { s.ids = s.ids[:len(s.ids)-1] }

// Depth returns the current nesting depth.
func (s *stack) Depth() int { return len(s.ids) }

// Session bundles all session-scoped mutable state and the collaborators
// that act on it. Create one per analysis run, or call Reset between
// runs.
type Session struct {
	cfg    Config
	source PaperSource
	engine Relevance
	logger *slog.Logger

	seeds       []paper.Paper
	threads     []*paper.Thread
	claimed     map[paper.Key]struct{} // GlobalDedupeSet
	pool        map[paper.Key]PoolEntry
	stack       stack
	decisions   Log
	threadCount int

	progress    ProgressFunc
	isCancelled func() bool // external cancellation source, may be nil
	cancelled   atomic.Bool // fast local flag
}

// Option configures a Session.
type Option func(*Session)

// WithProgress registers the progress sink.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Session) { s.progress = fn }
}

// WithCancelCheck registers an external cancellation predicate. It is
// polled after the fast local flag, so it may be comparatively slow.
func WithCancelCheck(fn func() bool) Option {
	return func(s *Session) { s.isCancelled = fn }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// NewSession creates a session.
func NewSession(source PaperSource, engine Relevance, cfg Config, opts ...Option) *Session {
	if cfg.PresentYear == 0 {
		cfg.PresentYear = time.Now().Year()
	}
	s := &Session{
		cfg:     cfg,
		source:  source,
		engine:  engine,
		logger:  slog.Default(),
		claimed: make(map[paper.Key]struct{}),
		pool:    make(map[paper.Key]PoolEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reset clears all session-scoped state for a new run.
func (s *Session) Reset() {
	s.seeds = nil
	s.threads = nil
	s.claimed = make(map[paper.Key]struct{})
	s.pool = make(map[paper.Key]PoolEntry)
	s.stack = stack{}
	s.decisions.Reset()
	s.threadCount = 0
	s.cancelled.Store(false)
}

// Cancel requests cooperative cancellation.
func (s *Session) Cancel() { s.cancelled.Store(true) }

// StackDepth reports the current expansion nesting depth.
func (s *Session) StackDepth() int { return s.stack.Depth() }

// Decisions returns the decision log so far.
func (s *Session) Decisions() []Decision { return s.decisions.Records() }

// checkCancel polls the cheap local flag first, then the context, then
// the (possibly slow) external predicate.
func (s *Session) checkCancel(ctx context.Context) error {
	if s.cancelled.Load() {
		return ErrCancelled
	}
	if ctx.Err() != nil {
		return ErrCancelled
	}
	if s.isCancelled != nil && s.isCancelled() {
		s.cancelled.Store(true)
		return ErrCancelled
	}
	return nil
}

// emit sends a progress event. percent < 0 means indeterminate.
func (s *Session) emit(message, detail string, percent float64) {
	if s.progress == nil {
		return
	}
	snapshots := make([]paper.Summary, 0, len(s.threads))
	for _, t := range s.threads {
		snapshots = append(snapshots, t.Summarize())
	}
	s.progress(message, detail, percent, snapshots)
}

// claim marks a paper identity as placed in a thread. Returns false if
// it was already claimed by any thread this session. Every key the
// paper answers to is registered, so an id-less record of a claimed
// work cannot slip into a sibling thread.
func (s *Session) claim(p paper.Paper) bool {
	if s.isClaimed(p) {
		return false
	}
	for _, key := range p.Keys() {
		s.claimed[key] = struct{}{}
	}
	return true
}

// isClaimed reports whether any of the paper's identity keys is taken.
func (s *Session) isClaimed(p paper.Paper) bool {
	for _, key := range p.Keys() {
		if _, taken := s.claimed[key]; taken {
			return true
		}
	}
	return false
}

// recordSeen stores a retrieval candidate in the pool for the optional
// final clustering pass. First provenance wins.
func (s *Session) recordSeen(p paper.Paper, source string) {
	if !s.cfg.PoolEnabled {
		return
	}
	key := p.Identity()
	if _, ok := s.pool[key]; !ok {
		s.pool[key] = PoolEntry{Paper: p, Source: source}
	}
}
