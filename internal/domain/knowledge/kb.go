// Package knowledge holds the disease/symptom fact base: a forward store of
// disease -> symptoms, the reverse symptom -> diseases index used for
// abduction, and the raw label table used for rendering and resolution.
//
// A KnowledgeBase is immutable once built. Reloading means building a new one
// and swapping it into a Snapshot.
package knowledge

import (
	"sort"

	"github.com/ddx/ddx/internal/domain/concept"
)

// orderedSet is a duplicate-free slice that remembers insertion order.
type orderedSet struct {
	items []string
	index map[string]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

func (s *orderedSet) has(v string) bool {
	_, ok := s.index[v]
	return ok
}

// KnowledgeBase is safe for concurrent reads.
type KnowledgeBase struct {
	forward  map[string]*orderedSet // disease -> symptoms
	reverse  map[string]*orderedSet // symptom -> diseases
	labels   map[string]string      // slug -> first-seen raw label
	diseases []string               // first-seen order
	symptoms []string               // first-seen order
	facts    []Fact                 // assertion order
	skipped  []*LoadError
}

// ExplainingDiseases returns the diseases presenting with symptom, in fact
// insertion order. Unknown symptoms yield an empty slice.
func (kb *KnowledgeBase) ExplainingDiseases(symptom string) []string {
	set, ok := kb.reverse[symptom]
	if !ok {
		return []string{}
	}
	return append([]string(nil), set.items...)
}

// SymptomsOf returns the symptoms of disease in insertion order, and whether
// the disease is known.
func (kb *KnowledgeBase) SymptomsOf(disease string) ([]string, bool) {
	set, ok := kb.forward[disease]
	if !ok {
		return nil, false
	}
	return append([]string(nil), set.items...), true
}

// HasFact reports whether (disease, symptom) was asserted.
func (kb *KnowledgeBase) HasFact(disease, symptom string) bool {
	set, ok := kb.forward[disease]
	return ok && set.has(symptom)
}

// Label returns the raw label registered for slug. Slugs never registered are
// rendered without their code.
func (kb *KnowledgeBase) Label(slug string) string {
	if l, ok := kb.labels[slug]; ok {
		return l
	}
	return concept.Render(slug, false)
}

// IsSymptom reports whether slug appears as a symptom in any fact.
func (kb *KnowledgeBase) IsSymptom(slug string) bool {
	_, ok := kb.reverse[slug]
	return ok
}

// Symptoms returns every symptom slug in first-seen order. This is the
// iteration order used by symptom resolution.
func (kb *KnowledgeBase) Symptoms() []string {
	return append([]string(nil), kb.symptoms...)
}

// Diseases returns every disease slug in first-seen order.
func (kb *KnowledgeBase) Diseases() []string {
	return append([]string(nil), kb.diseases...)
}

// Facts lists every fact in assertion order.
func (kb *KnowledgeBase) Facts() []Fact {
	return append([]Fact(nil), kb.facts...)
}

// Skipped returns the load errors recorded while building.
func (kb *KnowledgeBase) Skipped() []*LoadError {
	return append([]*LoadError(nil), kb.skipped...)
}

// Stats returns fact and concept counts.
func (kb *KnowledgeBase) Stats() Stats {
	return Stats{
		Facts:    len(kb.facts),
		Diseases: len(kb.diseases),
		Symptoms: len(kb.symptoms),
		Skipped:  len(kb.skipped),
	}
}

// SortedSymptoms returns symptom slugs ordered by rendered label, for
// listings meant for people rather than for resolution.
func (kb *KnowledgeBase) SortedSymptoms() []string {
	out := kb.Symptoms()
	sort.SliceStable(out, func(i, j int) bool {
		return concept.Render(out[i], false) < concept.Render(out[j], false)
	})
	return out
}
