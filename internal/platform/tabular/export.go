package tabular

import (
	"encoding/csv"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ddx/ddx/internal/domain/knowledge"
)

// factRecords turns every fact back into a single-symptom record carrying
// the raw labels, so that reloading the output reproduces kb.
func factRecords(kb *knowledge.KnowledgeBase) []knowledge.Record {
	facts := kb.Facts()
	out := make([]knowledge.Record, 0, len(facts))
	for _, f := range facts {
		out = append(out, knowledge.Record{Disease: kb.Label(f.Disease), Symptom: kb.Label(f.Symptom)})
	}
	return out
}

// WriteCSV writes kb as a Disease,Symptom table with one fact per row.
func WriteCSV(w io.Writer, kb *knowledge.KnowledgeBase) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{DiseaseColumn, SymptomColumn}); err != nil {
		return err
	}
	for _, rec := range factRecords(kb) {
		if err := cw.Write([]string{rec.Disease, rec.Symptom}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteYAML writes kb in the document form read by YAMLSource.
func WriteYAML(w io.Writer, kb *knowledge.KnowledgeBase) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(yamlDocument{Records: factRecords(kb)}); err != nil {
		return err
	}
	return enc.Close()
}
