package concept

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"UMLS:C0015967_fever", "umls_c0015967_fever"},
		{"umls:C0010200_cough", "umls_c0010200_cough"},
		{"  Flu ", "umls_flu"},
		{"chest pain", "umls_chest_pain"},
		{"Heart-Attack (acute)", "umls_heartattack_acute"},
		{"umls_c0008031_chest_pain", "umls_c0008031_chest_pain"},
		{"Fièvre", "umls_fievre"},
		{"!!!", "umls_"},
		{"", "umls_"},
		{"a:b", "umls_a_b"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.raw); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"UMLS:C0015967_fever",
		"Flu",
		"umls",
		"UMLS:UMLS:x",
		"  spaced   out  ",
		"Ünïcödé label",
		"%%%",
		"umls_",
		"C0008031_chest pain",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeStrict(t *testing.T) {
	if _, err := NormalizeStrict("   "); !errors.Is(err, ErrUnusableLabel) {
		t.Errorf("expected ErrUnusableLabel for blank input, got %v", err)
	}
	if _, err := NormalizeStrict("???"); !errors.Is(err, ErrUnusableLabel) {
		t.Errorf("expected ErrUnusableLabel for punctuation-only input, got %v", err)
	}
	slug, err := NormalizeStrict("UMLS:C0015967_fever")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slug != "umls_c0015967_fever" {
		t.Errorf("got %q", slug)
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		slug     string
		showCode bool
		want     string
	}{
		{"umls_c0008031_chest_pain", true, "C0008031: chest pain"},
		{"umls_c0008031_chest_pain", false, "chest pain"},
		{"umls_flu", true, "flu"},
		{"umls_flu", false, "flu"},
		{"umls_headache", true, "headache"},
		{"c0015967_fever", true, "fever"},
		{"umls_", true, ""},
		{"umls_c123", true, "c123"},
	}
	for _, tt := range tests {
		if got := Render(tt.slug, tt.showCode); got != tt.want {
			t.Errorf("Render(%q, %v) = %q, want %q", tt.slug, tt.showCode, got, tt.want)
		}
	}
}

func TestRender_RoundTripFreeText(t *testing.T) {
	raws := map[string]string{
		"UMLS:C0015967_fever":        "fever",
		"UMLS:C0008031_chest pain":   "chest pain",
		"Flu":                        "flu",
		"UMLS:C0020538_Hypertensive": "hypertensive",
	}
	for raw, want := range raws {
		if got := Render(Normalize(raw), false); got != want {
			t.Errorf("Render(Normalize(%q)) = %q, want %q", raw, got, want)
		}
	}
}

func TestSplit(t *testing.T) {
	code, label := Split("umls_c0010200_dry_cough")
	if code != "c0010200" || label != "dry cough" {
		t.Errorf("Split = (%q, %q)", code, label)
	}
	code, label = Split("umls_dry_cough")
	if code != "" || label != "dry cough" {
		t.Errorf("Split without code = (%q, %q)", code, label)
	}
}

func TestFreeText(t *testing.T) {
	tests := map[string]string{
		"UMLS:C0008031_Chest_Pain": "chest pain",
		"umls:C0010200_cough":      "cough",
		"Shortness of breath":      "shortness of breath",
	}
	for raw, want := range tests {
		if got := FreeText(raw); got != want {
			t.Errorf("FreeText(%q) = %q, want %q", raw, got, want)
		}
	}
}
