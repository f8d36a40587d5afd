package diagnosis

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/ddx/ddx/internal/domain/concept"
)

// ConceptView is a slug paired with its display label.
type ConceptView struct {
	Slug  string `json:"slug"`
	Label string `json:"label"`
}

// CandidateView is one ranked disease as returned to API clients.
type CandidateView struct {
	Rank     int           `json:"rank"`
	Disease  ConceptView   `json:"disease"`
	Matched  []ConceptView `json:"matched"`
	Count    int           `json:"matched_count"`
	Total    int           `json:"observed_count"`
	Coverage float64       `json:"coverage"`
}

// Report is the serializable form of a Result.
type Report struct {
	ID               uuid.UUID       `json:"id"`
	Generation       int64           `json:"kb_generation"`
	CreatedAt        time.Time       `json:"created_at"`
	Observed         []ConceptView   `json:"observed"`
	Ranked           []CandidateView `json:"ranked"`
	FullyExplanatory []CandidateView `json:"fully_explanatory"`
	Unexplained      []ConceptView   `json:"unexplained"`
}

// Renderer turns results into reports and console tables.
type Renderer struct {
	ShowCode bool
}

// NewRenderer creates a renderer in the given code display mode.
func NewRenderer(showCode bool) *Renderer {
	return &Renderer{ShowCode: showCode}
}

// Display renders slug for people: "C0015967: fever" with codes shown,
// "fever" without. Uncoded slugs render as their free text in either mode.
func (r *Renderer) Display(slug string) string {
	return concept.Render(slug, r.ShowCode)
}

func (r *Renderer) view(slug string) ConceptView {
	return ConceptView{Slug: slug, Label: r.Display(slug)}
}

func (r *Renderer) views(slugs []string) []ConceptView {
	out := make([]ConceptView, 0, len(slugs))
	for _, s := range slugs {
		out = append(out, r.view(s))
	}
	return out
}

func (r *Renderer) candidates(entries []RankedEntry, n int) []CandidateView {
	out := make([]CandidateView, 0, len(entries))
	for _, e := range entries {
		out = append(out, CandidateView{
			Rank:     e.Rank,
			Disease:  r.view(e.Disease),
			Matched:  r.views(e.Matched),
			Count:    len(e.Matched),
			Total:    n,
			Coverage: Coverage(e, n),
		})
	}
	return out
}

// Report builds the serializable report for res.
func (r *Renderer) Report(res *Result, generation int64) *Report {
	n := res.ObservedCount()
	return &Report{
		ID:               uuid.New(),
		Generation:       generation,
		CreatedAt:        time.Now().UTC(),
		Observed:         r.views(res.Observed),
		Ranked:           r.candidates(res.Ranked, n),
		FullyExplanatory: r.candidates(res.FullyExplanatory, n),
		Unexplained:      r.views(res.Unexplained),
	}
}

// WriteText prints res as a console table followed by the verdict.
func (r *Renderer) WriteText(w io.Writer, res *Result) error {
	heading := color.New(color.Bold)
	good := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)

	heading.Fprintln(w, "\n=== Differential Diagnosis ===")
	if len(res.Ranked) == 0 {
		_, err := warn.Fprintln(w, "No diseases in the knowledge base explain any of the observed symptoms.")
		return err
	}

	fmt.Fprintln(w, "Observed symptoms:")
	for _, s := range res.Observed {
		fmt.Fprintf(w, "  - %s\n", r.Display(s))
	}
	fmt.Fprintln(w)

	n := res.ObservedCount()
	r.writeTable(w, heading, res.Ranked, n)

	if len(res.FullyExplanatory) > 0 {
		good.Fprintln(w, "\nMost plausible (explain all symptoms):")
		r.writeTable(w, heading, res.FullyExplanatory, n)
	} else {
		warn.Fprintln(w, "\nNo single disease explains all symptoms. Highest coverage shown above.")
	}

	if len(res.Unexplained) > 0 {
		_, err := fmt.Fprintf(w, "\nUnexplained symptoms: %s\n", r.join(res.Unexplained))
		return err
	}
	return nil
}

func (r *Renderer) writeTable(w io.Writer, heading *color.Color, entries []RankedEntry, n int) {
	heading.Fprintf(w, "%4s | %-30s | %-12s | %-5s | %s\n", "Rank", "Disease", "#Match/Total", "%", "Matched Symptoms")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, e := range entries {
		fmt.Fprintf(w, "%4d | %-30s | %d/%-10d | %5.1f | %s\n",
			e.Rank, r.Display(e.Disease), len(e.Matched), n, Coverage(e, n), r.join(e.Matched))
	}
}

func (r *Renderer) join(slugs []string) string {
	parts := make([]string, 0, len(slugs))
	for _, s := range slugs {
		parts = append(parts, r.Display(s))
	}
	return strings.Join(parts, ", ")
}
