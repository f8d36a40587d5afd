package knowledge

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/ddx/ddx/internal/domain/concept"
)

// Builder accumulates facts and produces an immutable KnowledgeBase. A
// Builder must not be used after Build.
type Builder struct {
	logger zerolog.Logger
	kb     *KnowledgeBase
	row    int
}

// NewBuilder creates an empty builder that logs skipped facts to logger.
func NewBuilder(logger zerolog.Logger) *Builder {
	return &Builder{
		logger: logger,
		kb: &KnowledgeBase{
			forward: make(map[string]*orderedSet),
			reverse: make(map[string]*orderedSet),
			labels:  make(map[string]string),
		},
	}
}

// Add asserts every (disease, symptom) pair of rec. Unusable pieces are
// logged and skipped; Add never aborts the build. It returns the number of
// new facts.
func (b *Builder) Add(rec Record) int {
	b.row++
	rawDisease := strings.TrimSpace(rec.Disease)
	if rawDisease == "" || strings.TrimSpace(rec.Symptom) == "" {
		b.skip(&LoadError{Row: b.row, Disease: rawDisease, Symptom: strings.TrimSpace(rec.Symptom), Reason: "missing disease or symptom field"})
		return 0
	}

	disease, err := concept.NormalizeStrict(rawDisease)
	if err != nil {
		b.skip(&LoadError{Row: b.row, Disease: rawDisease, Reason: err.Error()})
		return 0
	}

	added := 0
	for _, piece := range strings.Split(rec.Symptom, ",") {
		rawSymptom := strings.TrimSpace(piece)
		symptom, err := concept.NormalizeStrict(rawSymptom)
		if err != nil {
			b.skip(&LoadError{Row: b.row, Disease: disease, Symptom: rawSymptom, Reason: err.Error()})
			continue
		}
		if b.assert(disease, rawDisease, symptom, rawSymptom) {
			added++
		}
	}
	return added
}

// assert updates the forward store, the reverse index and the label table
// together so the two indexes never disagree.
func (b *Builder) assert(disease, rawDisease, symptom, rawSymptom string) bool {
	kb := b.kb
	fwd, ok := kb.forward[disease]
	if !ok {
		fwd = newOrderedSet()
		kb.forward[disease] = fwd
		kb.diseases = append(kb.diseases, disease)
	}
	rev, ok := kb.reverse[symptom]
	if !ok {
		rev = newOrderedSet()
		kb.reverse[symptom] = rev
		kb.symptoms = append(kb.symptoms, symptom)
	}
	b.register(disease, rawDisease)
	b.register(symptom, rawSymptom)

	if !fwd.add(symptom) {
		return false
	}
	rev.add(disease)
	kb.facts = append(kb.facts, Fact{Disease: disease, Symptom: symptom})
	return true
}

// register keeps the first raw label seen for a slug.
func (b *Builder) register(slug, raw string) {
	if _, ok := b.kb.labels[slug]; !ok {
		b.kb.labels[slug] = raw
	}
}

func (b *Builder) skip(e *LoadError) {
	b.kb.skipped = append(b.kb.skipped, e)
	b.logger.Warn().
		Int("row", e.Row).
		Str("disease", e.Disease).
		Str("symptom", e.Symptom).
		Str("reason", e.Reason).
		Msg("skipping fact")
}

// Build returns the finished knowledge base.
func (b *Builder) Build() *KnowledgeBase {
	kb := b.kb
	b.kb = nil
	st := kb.Stats()
	b.logger.Info().
		Int("facts", st.Facts).
		Int("diseases", st.Diseases).
		Int("symptoms", st.Symptoms).
		Int("skipped", st.Skipped).
		Msg("knowledge base built")
	return kb
}

// Load builds a knowledge base from records in one pass.
func Load(records []Record, logger zerolog.Logger) *KnowledgeBase {
	b := NewBuilder(logger)
	for _, rec := range records {
		b.Add(rec)
	}
	return b.Build()
}
