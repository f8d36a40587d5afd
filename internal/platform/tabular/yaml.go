package tabular

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ddx/ddx/internal/domain/knowledge"
)

// YAMLSource reads a YAML document of the form
//
//	records:
//	  - disease: Flu
//	    symptom: "UMLS:C0015967_fever, UMLS:C0010200_cough"
type YAMLSource struct {
	noopCloser
	path string
}

func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

type yamlDocument struct {
	Records []knowledge.Record `yaml:"records"`
}

func (s *YAMLSource) Name() string { return "yaml:" + s.path }

func (s *YAMLSource) Records(ctx context.Context) ([]knowledge.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read yaml: %w", err)
	}
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return doc.Records, nil
}
