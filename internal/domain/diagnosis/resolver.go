package diagnosis

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/ddx/ddx/internal/domain/concept"
	"github.com/ddx/ddx/internal/domain/knowledge"
)

type resolverEntry struct {
	slug     string
	label    string // lowercased raw label
	freeText string // rendered label without code
}

// Resolver maps loosely worded symptom mentions onto known symptom slugs.
//
// Matching walks the knowledge base symptoms in first-seen order and returns
// the first one whose raw label contains the mention, or whose slug contains
// the mention with spaces turned into underscores. When MaxDistance is set, a
// miss falls through to the symptom whose label is closest by edit distance.
// Anything still unmatched resolves to the normalized mention itself.
type Resolver struct {
	entries     []resolverEntry
	maxDistance int
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMaxDistance enables edit-distance matching up to d edits. Zero disables it.
func WithMaxDistance(d int) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.maxDistance = d
		}
	}
}

// NewResolver indexes the symptom labels of kb.
func NewResolver(kb *knowledge.KnowledgeBase, opts ...ResolverOption) *Resolver {
	symptoms := kb.Symptoms()
	r := &Resolver{entries: make([]resolverEntry, 0, len(symptoms))}
	for _, slug := range symptoms {
		r.entries = append(r.entries, resolverEntry{
			slug:     slug,
			label:    strings.ToLower(kb.Label(slug)),
			freeText: concept.Render(slug, false),
		})
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the canonical symptom slug for mention.
func (r *Resolver) Resolve(mention string) string {
	mentionSlug := concept.Normalize(mention)
	text := strings.ToLower(strings.TrimSpace(mention))
	if text == "" {
		return mentionSlug
	}

	underscored := strings.ReplaceAll(text, " ", "_")
	for _, e := range r.entries {
		if strings.Contains(e.label, text) || strings.Contains(e.slug, underscored) {
			return e.slug
		}
	}

	if slug, ok := r.nearest(text); ok {
		return slug
	}
	return mentionSlug
}

// ResolveAll resolves each non-blank mention, keeping order and duplicates.
func (r *Resolver) ResolveAll(mentions []string) []string {
	out := make([]string, 0, len(mentions))
	for _, m := range mentions {
		if strings.TrimSpace(m) == "" {
			continue
		}
		out = append(out, r.Resolve(m))
	}
	return out
}

// nearest returns the symptom with the smallest edit distance to text, if
// it is within maxDistance. Ties keep the earlier symptom.
func (r *Resolver) nearest(text string) (string, bool) {
	if r.maxDistance <= 0 {
		return "", false
	}
	best, bestDist := "", r.maxDistance+1
	for _, e := range r.entries {
		d := levenshtein.ComputeDistance(text, e.freeText)
		if d < bestDist {
			best, bestDist = e.slug, d
		}
	}
	return best, best != ""
}
