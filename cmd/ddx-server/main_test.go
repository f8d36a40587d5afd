package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/ddx/ddx/internal/config"
	"github.com/ddx/ddx/internal/domain/diagnosis"
	"github.com/ddx/ddx/internal/platform/auth"
	"github.com/ddx/ddx/internal/platform/db"
)

func init() {
	color.NoColor = true
}

const testKB = `Disease,Symptom
UMLS:C0021400_influenza,"UMLS:C0015967_fever, UMLS:C0010200_cough"
UMLS:C0009443_common_cold,"UMLS:C0010200_cough, UMLS:C0037384_sneezing"
UMLS:C0002962_angina,UMLS:C0008031_chest_pain
`

func writeKB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kb.csv")
	if err := os.WriteFile(path, []byte(testKB), 0o644); err != nil {
		t.Fatalf("write kb: %v", err)
	}
	return path
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Env:            "development",
		KBSource:       writeKB(t),
		ShowCode:       true,
		QueryEngine:    config.EngineIndex,
		CacheTTL:       time.Minute,
		BodyLimit:      "1M",
		RequestTimeout: 5 * time.Second,
		CORSOrigins:    []string{"http://localhost:3000"},
	}
}

// runCmd executes the root command with args, using the KB written by writeKB.
func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("KB_SOURCE", writeKB(t))
	t.Setenv("ENV", "test")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDiagnoseCmd_Mentions(t *testing.T) {
	out, err := runCmd(t, "", "diagnose", "--mentions", "fever, cough")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"=== Differential Diagnosis ===",
		"C0021400: influenza",
		"Most plausible (explain all symptoms):",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestDiagnoseCmd_TextJSON(t *testing.T) {
	out, err := runCmd(t, "", "diagnose", "--json", "--text", "Three days of fever and chest pain.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var report diagnosis.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON report: %v\n%s", err, out)
	}
	if len(report.Observed) != 2 {
		t.Fatalf("expected 2 observed symptoms, got %+v", report.Observed)
	}
	if len(report.FullyExplanatory) != 0 {
		t.Errorf("expected no single disease to explain fever and chest pain, got %+v", report.FullyExplanatory)
	}
	if len(report.Ranked) != 2 {
		t.Errorf("expected influenza and angina ranked, got %+v", report.Ranked)
	}
}

func TestDiagnoseCmd_RequiresExactlyOneInput(t *testing.T) {
	if _, err := runCmd(t, "", "diagnose"); err == nil {
		t.Error("expected error without input")
	}
	if _, err := runCmd(t, "", "diagnose", "--text", "fever", "--mentions", "fever"); err == nil {
		t.Error("expected error with both inputs")
	}
}

func TestReplCmd(t *testing.T) {
	out, err := runCmd(t, "fever and a dry cough\nnothing relevant\nEXIT\n", "repl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"Type a symptom list or clinical text. Type 'exit' to quit.",
		"C0021400: influenza",
		"No symptoms recognized in your input.",
		"Goodbye!",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestReplCmd_EndOfInput(t *testing.T) {
	out, err := runCmd(t, "sneezing\n", "repl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "C0009443: common cold") {
		t.Errorf("expected common cold in output:\n%s", out)
	}
}

func TestKBStatsCmd(t *testing.T) {
	out, err := runCmd(t, "", "kb", "stats")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Facts:    5", "Diseases: 3", "Symptoms: 4", "Skipped:  0"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestKBExportCmd(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"prolog", "has_symptom(umls_c0021400_influenza, umls_c0015967_fever)."},
		{"csv", "UMLS:C0002962_angina,UMLS:C0008031_chest_pain"},
		{"yaml", "disease: UMLS:C0009443_common_cold"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out, err := runCmd(t, "", "kb", "export", "--format", tt.format)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("expected %q in output:\n%s", tt.want, out)
			}
		})
	}

	if _, err := runCmd(t, "", "kb", "export", "--format", "json"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestOpenService_PrologEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.QueryEngine = config.EngineProlog

	svc, src, err := openService(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("openService: %v", err)
	}
	defer src.Close()

	out, err := svc.DiagnoseMentions(context.Background(), []string{"cough"})
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if len(out.Result.Ranked) != 2 {
		t.Errorf("expected influenza and common cold, got %+v", out.Result.Ranked)
	}
}

func TestOpenService_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.QueryEngine = "sql"
	if _, _, err := openService(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("expected validation error")
	}

	cfg = testConfig(t)
	cfg.KBSource = filepath.Join(t.TempDir(), "missing.csv")
	if _, _, err := openService(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("expected load error for missing source")
	}
}

func newTestServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	svc, src, err := openService(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("openService: %v", err)
	}
	t.Cleanup(func() { src.Close() })

	e, err := newServer(serverDeps{cfg: cfg, svc: svc, logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	return e
}

func serve(h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	h := newTestServer(t, testConfig(t))

	rec := serve(h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["kb_generation"] != float64(1) || body["facts"] != float64(5) {
		t.Errorf("unexpected health body %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestServer_DiagnoseAndLookups(t *testing.T) {
	h := newTestServer(t, testConfig(t))

	rec := serve(h, http.MethodPost, "/api/v1/diagnose", `{"mentions":["fever","cough"]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("diagnose: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("diagnose: expected Cache-Control no-store, got %q", cc)
	}
	var report diagnosis.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(report.FullyExplanatory) != 1 || report.FullyExplanatory[0].Disease.Label != "C0021400: influenza" {
		t.Errorf("unexpected fully explanatory %+v", report.FullyExplanatory)
	}

	rec = serve(h, http.MethodGet, "/api/v1/symptoms?q=cough", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("symptoms: expected 200, got %d", rec.Code)
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag on symptom search")
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "private, max-age=60" {
		t.Errorf("symptoms: expected Cache-Control private, max-age=60, got %q", cc)
	}
	rec = serve(h, http.MethodGet, "/api/v1/symptoms?q=cough", "", map[string]string{"If-None-Match": etag})
	if rec.Code != http.StatusNotModified {
		t.Errorf("expected 304 for matching ETag, got %d", rec.Code)
	}

	rec = serve(h, http.MethodGet, "/api/v1/diseases/UMLS:C0002962_angina", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("disease lookup: expected 200, got %d", rec.Code)
	}
	rec = serve(h, http.MethodGet, "/api/v1/diseases/measles", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown disease: expected 404, got %d", rec.Code)
	}
}

func TestServer_Reload(t *testing.T) {
	h := newTestServer(t, testConfig(t))

	rec := serve(h, http.MethodPost, "/api/v1/kb/reload", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reload: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var st map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st["generation"] != float64(2) {
		t.Errorf("expected generation 2, got %v", st["generation"])
	}
}

func TestServer_JWTInProduction(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	cfg := testConfig(t)
	cfg.Env = "production"
	cfg.AuthIssuer = "ddx"
	cfg.AuthSigningKey = strings.Repeat("42", 32)
	h := newTestServer(t, cfg)

	if rec := serve(h, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health should be public, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "/api/v1/kb/stats", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	if rec := serve(h, http.MethodGet, "/api/openapi.json", "", nil); rec.Code != http.StatusOK {
		t.Errorf("API document should be public, got %d", rec.Code)
	}

	sign := func(roles ...string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "dr-1",
				Issuer:    "ddx",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Roles: roles,
		})
		s, err := tok.SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return "Bearer " + s
	}

	clinician := map[string]string{"Authorization": sign(auth.RoleClinician)}
	if rec := serve(h, http.MethodGet, "/api/v1/kb/stats", "", clinician); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for clinician, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodPost, "/api/v1/kb/reload", "", clinician); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for clinician reload, got %d", rec.Code)
	}
	admin := map[string]string{"Authorization": sign(auth.RoleAdmin)}
	if rec := serve(h, http.MethodPost, "/api/v1/kb/reload", "", admin); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for admin reload, got %d", rec.Code)
	}
}

func fsReadDir(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func TestNewServer_RequiresKeyOutsideDevelopment(t *testing.T) {
	cfg := testConfig(t)
	svc, src, err := openService(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("openService: %v", err)
	}
	defer src.Close()

	cfg.Env = "staging"
	if _, err := newServer(serverDeps{cfg: cfg, svc: svc, logger: zerolog.Nop()}); err == nil {
		t.Error("expected error without signing key")
	}
}

func TestMigrationSource(t *testing.T) {
	entries, err := fsReadDir(migrationSource(""))
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 || entries[0] != "001_disease_symptom.sql" {
		t.Errorf("unexpected embedded migrations %v", entries)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "002_extra.sql"), []byte("SELECT 1;"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	entries, err = fsReadDir(migrationSource(dir))
	if err != nil {
		t.Fatalf("read dir migrations: %v", err)
	}
	if len(entries) != 1 || entries[0] != "002_extra.sql" {
		t.Errorf("unexpected dir migrations %v", entries)
	}
}

func TestPrintStatus(t *testing.T) {
	applied := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "disease_symptom", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "extra"},
	})
	out := buf.String()
	if !strings.Contains(out, "applied    2026-01-02 03:04:05") {
		t.Errorf("expected applied row, got:\n%s", out)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("expected pending row, got:\n%s", out)
	}
}
