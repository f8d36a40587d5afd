package knowledge

import (
	"context"
	"fmt"
)

// Record is one row of the tabular relation source: a disease and a
// comma-separated list of its symptoms.
type Record struct {
	Disease string `db:"disease" json:"disease" yaml:"disease"`
	Symptom string `db:"symptom" json:"symptom" yaml:"symptom"`
}

// Fact states that a disease presents with a symptom. Both sides are slugs.
type Fact struct {
	Disease string `json:"disease" yaml:"disease"`
	Symptom string `json:"symptom" yaml:"symptom"`
}

// Source supplies relation records. Rows with missing fields are returned as
// records with empty fields; the builder skips them.
type Source interface {
	Records(ctx context.Context) ([]Record, error)
	Name() string
}

// LoadError describes a single fact or record skipped during a build.
type LoadError struct {
	Row     int    `json:"row"`
	Disease string `json:"disease,omitempty"`
	Symptom string `json:"symptom,omitempty"`
	Reason  string `json:"reason"`
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("row %d: has_symptom(%q, %q): %s", e.Row, e.Disease, e.Symptom, e.Reason)
}

// Stats summarises a built knowledge base.
type Stats struct {
	Facts    int `json:"facts"`
	Diseases int `json:"diseases"`
	Symptoms int `json:"symptoms"`
	Skipped  int `json:"skipped"`
}
