package diagnosis

// Explainer answers "which diseases present with this symptom". The
// knowledge base index and the Prolog engine both implement it.
type Explainer interface {
	ExplainingDiseases(symptom string) []string
}

// ExplanationMap maps each candidate disease to the observed symptoms it
// explains. Diseases keep the order in which they were first encountered.
type ExplanationMap struct {
	order   []string
	matched map[string][]string
}

func newExplanationMap() *ExplanationMap {
	return &ExplanationMap{matched: make(map[string][]string)}
}

func (m *ExplanationMap) add(disease, symptom string) {
	syms, ok := m.matched[disease]
	if !ok {
		m.order = append(m.order, disease)
	}
	for _, s := range syms {
		if s == symptom {
			return
		}
	}
	m.matched[disease] = append(syms, symptom)
}

// Diseases returns the candidate diseases in encounter order.
func (m *ExplanationMap) Diseases() []string {
	return append([]string(nil), m.order...)
}

// Matched returns the observed symptoms explained by disease.
func (m *ExplanationMap) Matched(disease string) []string {
	return append([]string(nil), m.matched[disease]...)
}

// Len is the number of candidate diseases.
func (m *ExplanationMap) Len() int {
	return len(m.order)
}

// Abduce collects, for every disease sharing at least one symptom with
// observed, the subset of observed symptoms it explains. Duplicate
// observations are looked up once. No parsimony filtering is applied.
func Abduce(observed []string, ex Explainer) *ExplanationMap {
	em := newExplanationMap()
	for _, symptom := range Distinct(observed) {
		for _, disease := range ex.ExplainingDiseases(symptom) {
			em.add(disease, symptom)
		}
	}
	return em
}

// Distinct returns observed without repeats, keeping first occurrences.
func Distinct(observed []string) []string {
	seen := make(map[string]struct{}, len(observed))
	out := make([]string, 0, len(observed))
	for _, s := range observed {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
