package diagnosis

import "sort"

// RankedEntry is one line of the differential.
type RankedEntry struct {
	Rank    int      `json:"rank"`
	Disease string   `json:"disease"`
	Matched []string `json:"matched"`
}

// Rank orders candidates by the number of symptoms they explain, most first.
// The sort is stable, so ties keep encounter order. Ranks start at 1.
func Rank(em *ExplanationMap) []RankedEntry {
	entries := make([]RankedEntry, 0, em.Len())
	for _, d := range em.order {
		entries = append(entries, RankedEntry{Disease: d, Matched: em.Matched(d)})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return len(entries[i].Matched) > len(entries[j].Matched)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Coverage is the percentage of observed symptoms the entry explains; zero
// when nothing was observed.
func Coverage(entry RankedEntry, observedCount int) float64 {
	if observedCount == 0 {
		return 0
	}
	return 100 * float64(len(entry.Matched)) / float64(observedCount)
}

// FullyExplanatory keeps the entries explaining every distinct observed
// symptom, with their original rank.
func FullyExplanatory(ranked []RankedEntry, observedCount int) []RankedEntry {
	out := []RankedEntry{}
	if observedCount == 0 {
		return out
	}
	for _, e := range ranked {
		if len(e.Matched) == observedCount {
			out = append(out, e)
		}
	}
	return out
}

// Unexplained lists the observed symptoms no candidate explains, in
// observation order, each reported once.
func Unexplained(ranked []RankedEntry, observed []string) []string {
	explained := make(map[string]struct{})
	for _, e := range ranked {
		for _, s := range e.Matched {
			explained[s] = struct{}{}
		}
	}
	out := []string{}
	for _, s := range Distinct(observed) {
		if _, ok := explained[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
