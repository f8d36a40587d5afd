package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/ddx/ddx/internal/domain/concept"
	"github.com/ddx/ddx/internal/domain/knowledge"
)

var (
	// ErrNotLoaded is returned when no knowledge base has been loaded yet.
	ErrNotLoaded = errors.New("knowledge base not loaded")
	// ErrUnknownDisease is returned by LookupDisease for slugs not in the knowledge base.
	ErrUnknownDisease = errors.New("unknown disease")
	// ErrNoExtractor is returned by DiagnoseText when no mention extractor is configured.
	ErrNoExtractor = errors.New("free-text extraction is not configured")
)

// MentionExtractor finds symptom mentions in free text.
type MentionExtractor interface {
	Extract(text string) []string
}

// ExplainerFactory builds the query backend for a freshly loaded knowledge base.
type ExplainerFactory func(kb *knowledge.KnowledgeBase) (Explainer, error)

// ExtractorFactory builds a mention extractor for a freshly loaded knowledge base.
type ExtractorFactory func(kb *knowledge.KnowledgeBase) MentionExtractor

// Options tunes a Service.
type Options struct {
	ShowCode    bool
	MaxDistance int
	CacheTTL    time.Duration
	Explainer   ExplainerFactory
	Extractor   ExtractorFactory
}

// state is everything derived from one knowledge base generation. It is
// replaced wholesale on reload and never mutated.
type state struct {
	kb         *knowledge.KnowledgeBase
	generation int64
	loadedAt   time.Time
	resolver   *Resolver
	explainer  Explainer
	extractor  MentionExtractor
	renderer   *Renderer
}

// Service answers diagnosis queries against the current knowledge base and
// reloads it from its source on demand.
type Service struct {
	source   knowledge.Source
	snapshot *knowledge.Snapshot
	current  atomic.Pointer[state]
	results  *cache.Cache
	opts     Options
	logger   zerolog.Logger
	reloadMu sync.Mutex
}

// NewService creates a service reading relation records from src. Call
// Reload before serving queries.
func NewService(src knowledge.Source, logger zerolog.Logger, opts Options) *Service {
	if opts.Explainer == nil {
		opts.Explainer = IndexExplainer
	}
	s := &Service{
		source: src,
		opts:   opts,
		logger: logger.With().Str("component", "diagnosis").Logger(),
	}
	if opts.CacheTTL > 0 {
		s.results = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return s
}

// IndexExplainer answers queries straight from the knowledge base's reverse index.
func IndexExplainer(kb *knowledge.KnowledgeBase) (Explainer, error) {
	return kb, nil
}

// Reload rebuilds the knowledge base from the source and atomically
// publishes it. Queries in flight keep the base they started with.
func (s *Service) Reload(ctx context.Context) (knowledge.Stats, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	kb, err := knowledge.LoadSource(ctx, s.source, s.logger)
	if err != nil {
		return knowledge.Stats{}, err
	}
	ex, err := s.opts.Explainer(kb)
	if err != nil {
		return knowledge.Stats{}, fmt.Errorf("build query engine: %w", err)
	}

	next := &state{
		kb:        kb,
		resolver:  NewResolver(kb, WithMaxDistance(s.opts.MaxDistance)),
		explainer: ex,
		renderer:  NewRenderer(s.opts.ShowCode),
	}
	if s.opts.Extractor != nil {
		next.extractor = s.opts.Extractor(kb)
	}

	if s.snapshot == nil {
		s.snapshot = knowledge.NewSnapshot(kb)
		next.generation = s.snapshot.Generation()
	} else {
		next.generation = s.snapshot.Swap(kb)
	}
	next.loadedAt = s.snapshot.LoadedAt()
	s.current.Store(next)
	if s.results != nil {
		s.results.Flush()
	}

	st := kb.Stats()
	s.logger.Info().
		Int64("generation", next.generation).
		Int("facts", st.Facts).
		Int("skipped", st.Skipped).
		Msg("knowledge base published")
	return st, nil
}

func (s *Service) load() (*state, error) {
	st := s.current.Load()
	if st == nil {
		return nil, ErrNotLoaded
	}
	return st, nil
}

// Outcome is a diagnosis result together with the generation that produced it.
type Outcome struct {
	Mentions   []string
	Result     *Result
	Generation int64
	renderer   *Renderer
}

// Report builds the serializable report.
func (o *Outcome) Report() *Report {
	return o.renderer.Report(o.Result, o.Generation)
}

// WriteText renders the console table.
func (o *Outcome) WriteText(w io.Writer) error {
	return o.renderer.WriteText(w, o.Result)
}

// DiagnoseMentions resolves mentions and ranks the explaining diseases.
func (s *Service) DiagnoseMentions(ctx context.Context, mentions []string) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	return s.outcome(st, mentions), nil
}

// DiagnoseText extracts symptom mentions from free text and diagnoses them.
// Text with no recognizable mention yields an empty outcome.
func (s *Service) DiagnoseText(ctx context.Context, text string) (*Outcome, error) {
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	if st.extractor == nil {
		return nil, ErrNoExtractor
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mentions := st.extractor.Extract(text)
	s.logger.Debug().Strs("mentions", mentions).Msg("extracted mentions")
	return s.outcome(st, mentions), nil
}

func (s *Service) outcome(st *state, mentions []string) *Outcome {
	return &Outcome{
		Mentions:   mentions,
		Result:     s.run(st, mentions),
		Generation: st.generation,
		renderer:   st.renderer,
	}
}

func (s *Service) run(st *state, mentions []string) *Result {
	if s.results == nil {
		return Run(mentions, st.resolver, st.explainer)
	}
	key := cacheKey(st.generation, mentions)
	if cached, ok := s.results.Get(key); ok {
		return cached.(*Result)
	}
	res := Run(mentions, st.resolver, st.explainer)
	s.results.SetDefault(key, res)
	return res
}

// cacheKey length-prefixes every mention so that no two mention lists share
// a key.
func cacheKey(generation int64, mentions []string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(generation, 10))
	for _, m := range mentions {
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(len(m)))
		b.WriteByte(':')
		b.WriteString(m)
	}
	return b.String()
}

// SymptomMatch is one entry of a symptom search.
type SymptomMatch struct {
	ConceptView
	Diseases int `json:"disease_count"`
}

// SearchSymptoms lists known symptoms whose label or slug contains q, in
// label order. An empty q matches everything.
func (s *Service) SearchSymptoms(q string) ([]SymptomMatch, error) {
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(q))
	slugNeedle := strings.ReplaceAll(needle, " ", "_")
	out := []SymptomMatch{}
	for _, slug := range st.kb.SortedSymptoms() {
		label := strings.ToLower(st.kb.Label(slug))
		if needle != "" && !strings.Contains(label, needle) && !strings.Contains(slug, slugNeedle) {
			continue
		}
		out = append(out, SymptomMatch{
			ConceptView: st.renderer.view(slug),
			Diseases:    len(st.kb.ExplainingDiseases(slug)),
		})
	}
	return out, nil
}

// DiseaseDetail describes one disease and its symptoms.
type DiseaseDetail struct {
	ConceptView
	Symptoms []ConceptView `json:"symptoms"`
}

// LookupDisease returns the symptoms of a disease. The key may be a slug or
// a raw label; it is normalized first.
func (s *Service) LookupDisease(key string) (*DiseaseDetail, error) {
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	slug := concept.Normalize(key)
	symptoms, ok := st.kb.SymptomsOf(slug)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDisease, slug)
	}
	return &DiseaseDetail{
		ConceptView: st.renderer.view(slug),
		Symptoms:    st.renderer.views(symptoms),
	}, nil
}

// StatsReport describes the published knowledge base.
type StatsReport struct {
	knowledge.Stats
	Source     string                 `json:"source"`
	Generation int64                  `json:"generation"`
	LoadedAt   time.Time              `json:"loaded_at"`
	TopSkipped []*knowledge.LoadError `json:"skipped_sample,omitempty"`
}

// Stats summarises the published knowledge base.
func (s *Service) Stats() (*StatsReport, error) {
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	skipped := st.kb.Skipped()
	if len(skipped) > 10 {
		skipped = skipped[:10]
	}
	return &StatsReport{
		Stats:      st.kb.Stats(),
		Source:     s.source.Name(),
		Generation: st.generation,
		LoadedAt:   st.loadedAt.UTC(),
		TopSkipped: skipped,
	}, nil
}

// KnowledgeBase returns the published knowledge base.
func (s *Service) KnowledgeBase() (*knowledge.KnowledgeBase, error) {
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	return st.kb, nil
}
