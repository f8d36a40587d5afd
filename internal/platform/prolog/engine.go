// Package prolog answers abductive queries with a Prolog interpreter loaded
// with has_symptom/2 facts, and exports knowledge bases as Prolog text.
package prolog

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ichiban/prolog"
	"github.com/rs/zerolog"

	"github.com/ddx/ddx/internal/domain/knowledge"
)

// Engine is an explainer backed by a Prolog interpreter. The interpreter is
// not safe for concurrent queries, so calls are serialized.
type Engine struct {
	mu     sync.Mutex
	interp *prolog.Interpreter
	logger zerolog.Logger
	facts  int
}

// NewEngine consults the facts of kb into a fresh interpreter.
func NewEngine(kb *knowledge.KnowledgeBase, logger zerolog.Logger) (*Engine, error) {
	var program strings.Builder
	if err := WriteFacts(&program, kb); err != nil {
		return nil, err
	}
	interp := prolog.New(nil, nil)
	if err := interp.Exec(program.String()); err != nil {
		return nil, fmt.Errorf("consult has_symptom/2: %w", err)
	}
	return &Engine{
		interp: interp,
		logger: logger.With().Str("component", "prolog").Logger(),
		facts:  len(kb.Facts()),
	}, nil
}

// Facts is the number of has_symptom/2 clauses consulted.
func (e *Engine) Facts() int {
	return e.facts
}

// ExplainingDiseases runs has_symptom(Disease, symptom) and returns the
// bindings in clause order. Query failures are logged and yield no diseases.
func (e *Engine) ExplainingDiseases(symptom string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := []string{}
	sols, err := e.interp.Query(fmt.Sprintf("has_symptom(Disease, %s).", Atom(symptom)))
	if err != nil {
		e.logger.Error().Err(err).Str("symptom", symptom).Msg("query failed")
		return out
	}
	defer sols.Close()

	for sols.Next() {
		var binding struct {
			Disease string
		}
		if err := sols.Scan(&binding); err != nil {
			e.logger.Error().Err(err).Str("symptom", symptom).Msg("scan failed")
			continue
		}
		out = append(out, binding.Disease)
	}
	if err := sols.Err(); err != nil {
		e.logger.Error().Err(err).Str("symptom", symptom).Msg("query failed")
	}
	return out
}

// WriteFacts writes kb as a consultable Prolog program, one has_symptom/2
// clause per fact in assertion order.
func WriteFacts(w io.Writer, kb *knowledge.KnowledgeBase) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, ":- dynamic(has_symptom/2).")
	for _, f := range kb.Facts() {
		fmt.Fprintf(bw, "has_symptom(%s, %s).\n", Atom(f.Disease), Atom(f.Symptom))
	}
	return bw.Flush()
}

// Atom renders s as a Prolog atom, quoting it unless it is already a valid
// unquoted atom.
func Atom(s string) string {
	if isPlainAtom(s) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

func isPlainAtom(s string) bool {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			return false
		}
	}
	return true
}
