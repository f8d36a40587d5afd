package prolog

import (
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ddx/ddx/internal/domain/knowledge"
)

func testKB() *knowledge.KnowledgeBase {
	return knowledge.Load([]knowledge.Record{
		{Disease: "Flu", Symptom: "UMLS:C0015967_fever, UMLS:C0010200_cough"},
		{Disease: "Cold", Symptom: "UMLS:C0010200_cough"},
		{Disease: "UMLS:C0032285_pneumonia", Symptom: "UMLS:C0010200_cough, UMLS:C0013404_dyspnea"},
	}, zerolog.Nop())
}

func TestWriteFacts(t *testing.T) {
	var b strings.Builder
	if err := WriteFacts(&b, testKB()); err != nil {
		t.Fatalf("WriteFacts: %v", err)
	}
	want := `:- dynamic(has_symptom/2).
has_symptom(umls_flu, umls_c0015967_fever).
has_symptom(umls_flu, umls_c0010200_cough).
has_symptom(umls_cold, umls_c0010200_cough).
has_symptom(umls_c0032285_pneumonia, umls_c0010200_cough).
has_symptom(umls_c0032285_pneumonia, umls_c0013404_dyspnea).
`
	if b.String() != want {
		t.Errorf("WriteFacts =\n%s\nwant\n%s", b.String(), want)
	}
}

func TestEngine_MatchesReverseIndex(t *testing.T) {
	kb := testKB()
	e, err := NewEngine(kb, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if e.Facts() != 5 {
		t.Errorf("Facts = %d, want 5", e.Facts())
	}
	for _, s := range kb.Symptoms() {
		got := e.ExplainingDiseases(s)
		want := kb.ExplainingDiseases(s)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ExplainingDiseases(%s) = %v, want %v", s, got, want)
		}
	}
}

func TestEngine_UnknownSymptom(t *testing.T) {
	e, err := NewEngine(testKB(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	got := e.ExplainingDiseases("umls_headache")
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestEngine_EmptyKnowledgeBase(t *testing.T) {
	e, err := NewEngine(knowledge.Load(nil, zerolog.Nop()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if got := e.ExplainingDiseases("umls_fever"); len(got) != 0 {
		t.Errorf("expected no diseases, got %v", got)
	}
}

func TestEngine_ConcurrentQueries(t *testing.T) {
	e, err := NewEngine(testKB(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if got := e.ExplainingDiseases("umls_c0010200_cough"); len(got) != 3 {
					t.Errorf("expected 3 diseases, got %v", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestAtom(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"umls_flu", "umls_flu"},
		{"Flu", "'Flu'"},
		{"", "''"},
		{"it's", `'it\'s'`},
		{"_x", "'_x'"},
		{"chest pain", "'chest pain'"},
	}
	for _, tt := range tests {
		if got := Atom(tt.in); got != tt.want {
			t.Errorf("Atom(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
