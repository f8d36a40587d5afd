// Package diagnosis implements abductive differential diagnosis over a
// knowledge base: mentions are resolved to symptom slugs, every disease
// sharing at least one symptom is collected with the symptoms it explains,
// and the candidates are ranked by coverage.
package diagnosis

import "github.com/ddx/ddx/internal/domain/knowledge"

// Result is the outcome of one diagnosis query. Observed keeps extraction
// order and duplicates; every other set operation uses distinct symptoms.
type Result struct {
	Observed         []string      `json:"observed"`
	Ranked           []RankedEntry `json:"ranked"`
	FullyExplanatory []RankedEntry `json:"fully_explanatory"`
	Unexplained      []string      `json:"unexplained"`
}

// ObservedCount is the number of distinct observed symptoms.
func (r *Result) ObservedCount() int {
	return len(Distinct(r.Observed))
}

// Diagnose resolves mentions against kb and runs the query with the
// knowledge base's own reverse index.
func Diagnose(mentions []string, kb *knowledge.KnowledgeBase) *Result {
	return Run(mentions, NewResolver(kb), kb)
}

// Run resolves mentions with resolver and queries ex. An empty mention list
// yields an empty result, never an error.
func Run(mentions []string, resolver *Resolver, ex Explainer) *Result {
	return Evaluate(resolver.ResolveAll(mentions), ex)
}

// Evaluate runs the abductive query and ranking over already resolved
// symptom slugs.
func Evaluate(observed []string, ex Explainer) *Result {
	if observed == nil {
		observed = []string{}
	}
	ranked := Rank(Abduce(observed, ex))
	n := len(Distinct(observed))
	return &Result{
		Observed:         observed,
		Ranked:           ranked,
		FullyExplanatory: FullyExplanatory(ranked, n),
		Unexplained:      Unexplained(ranked, observed),
	}
}
