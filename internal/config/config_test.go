package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/habitat.report/internal/habitat"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty config should validate: %v", err)
	}

	if got := cfg.GetRepetitions(); got != 100 {
		t.Errorf("GetRepetitions() = %d, want 100", got)
	}
	if got := cfg.GetWorkers(); got != 1 {
		t.Errorf("GetWorkers() = %d, want 1", got)
	}
	if got := cfg.GetSeed(); got != 1 {
		t.Errorf("GetSeed() = %d, want 1", got)
	}
	if got := cfg.GetBufferMeters(); got != 1000 {
		t.Errorf("GetBufferMeters() = %f, want 1000", got)
	}
	if got := cfg.GetHabitatProperty(); got != "habitat" {
		t.Errorf("GetHabitatProperty() = %q, want habitat", got)
	}
	if got := cfg.GetExcludeQuality(); len(got) != 1 || got[0] != "Z" {
		t.Errorf("GetExcludeQuality() = %v, want [Z]", got)
	}
	if got := cfg.GetInitialSigma(); got != 5000 {
		t.Errorf("GetInitialSigma() = %f, want 5000", got)
	}
	if got := cfg.GetInitialBeta(); got != 1 {
		t.Errorf("GetInitialBeta() = %f, want 1", got)
	}
	if got := cfg.GetMaxEvaluations(); got != 400 {
		t.Errorf("GetMaxEvaluations() = %d, want 400", got)
	}
	if got := cfg.GetOutputDir(); got != "out" {
		t.Errorf("GetOutputDir() = %q, want out", got)
	}
	if cfg.GetDatabasePath() != "" || cfg.GetIndividual() != "" || cfg.GetFixesPath() != "" || cfg.GetHabitatPath() != "" {
		t.Errorf("path defaults should be empty")
	}
	o, err := cfg.GetOrdering()
	if err != nil {
		t.Fatalf("GetOrdering() error: %v", err)
	}
	if o.String() != habitat.DefaultOrdering.String() {
		t.Errorf("GetOrdering() = %s, want %s", o, habitat.DefaultOrdering)
	}
}

func TestDefaultOrderingIsCopied(t *testing.T) {
	want := habitat.DefaultOrdering.String()
	o, err := (&Config{}).GetOrdering()
	if err != nil {
		t.Fatalf("GetOrdering() error: %v", err)
	}
	o[0] = "scribbled"
	if got := habitat.DefaultOrdering.String(); got != want {
		t.Errorf("mutating GetOrdering() result changed habitat.DefaultOrdering to %s", got)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "habitat.json", `{
  "repetitions": 250,
  "workers": 4,
  "seed": 99,
  "ordering": ["High change", "intermediate", "low_change", "not_assigned"],
  "buffer_meters": 500,
  "exclude_quality": ["Z", "B"],
  "output_dir": "reports"
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetRepetitions() != 250 || cfg.GetWorkers() != 4 || cfg.GetSeed() != 99 {
		t.Errorf("sampling values not loaded: %d %d %d", cfg.GetRepetitions(), cfg.GetWorkers(), cfg.GetSeed())
	}
	if cfg.GetBufferMeters() != 500 {
		t.Errorf("GetBufferMeters() = %f, want 500", cfg.GetBufferMeters())
	}
	if cfg.GetOutputDir() != "reports" {
		t.Errorf("GetOutputDir() = %q, want reports", cfg.GetOutputDir())
	}
	o, err := cfg.GetOrdering()
	if err != nil {
		t.Fatalf("GetOrdering() error: %v", err)
	}
	want := "high_change,intermediate,low_change,unassigned,none"
	if o.String() != want {
		t.Errorf("GetOrdering() = %s, want %s", o, want)
	}
	// Unset fields keep their defaults.
	if cfg.GetInitialSigma() != 5000 {
		t.Errorf("GetInitialSigma() = %f, want default 5000", cfg.GetInitialSigma())
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "habitat.yml", `
repetitions: 10
initial_sigma: 2500
initial_beta: 0.5
habitat_path: data/habitat.geojson
fixes_path: data/fixes.csv
database_path: out/habitat.db
individual: ct36
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetRepetitions() != 10 {
		t.Errorf("GetRepetitions() = %d, want 10", cfg.GetRepetitions())
	}
	if cfg.GetInitialSigma() != 2500 || cfg.GetInitialBeta() != 0.5 {
		t.Errorf("model values not loaded: %f %f", cfg.GetInitialSigma(), cfg.GetInitialBeta())
	}
	if cfg.GetHabitatPath() != "data/habitat.geojson" || cfg.GetFixesPath() != "data/fixes.csv" {
		t.Errorf("paths not loaded: %q %q", cfg.GetHabitatPath(), cfg.GetFixesPath())
	}
	if cfg.GetDatabasePath() != "out/habitat.db" || cfg.GetIndividual() != "ct36" {
		t.Errorf("database/individual not loaded: %q %q", cfg.GetDatabasePath(), cfg.GetIndividual())
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"extension", "habitat.toml", "repetitions = 1", "extension"},
		{"bad json", "habitat.json", "{", "failed to parse"},
		{"bad yaml", "habitat.yaml", "repetitions: [", "failed to parse"},
		{"zero repetitions", "habitat.json", `{"repetitions": 0}`, "Repetitions"},
		{"negative buffer", "habitat.json", `{"buffer_meters": -5}`, "BufferMeters"},
		{"too many workers", "habitat.yaml", "workers: 5000", "Workers"},
		{"quality class", "habitat.json", `{"exclude_quality": ["Q"]}`, "ExcludeQuality"},
		{"empty ordering entry", "habitat.json", `{"ordering": ["high_change", ""]}`, "Ordering"},
		{"blank ordering entry", "habitat.json", `{"ordering": ["  "]}`, "ordering"},
		{"sigma", "habitat.json", `{"initial_sigma": 0}`, "InitialSigma"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadTooLarge(t *testing.T) {
	big := `{"output_dir": "` + strings.Repeat("x", maxFileSize) + `"}`
	path := writeFile(t, "big.json", big)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected too large error, got %v", err)
	}
}

func TestPtr(t *testing.T) {
	p := Ptr(3)
	if *p != 3 {
		t.Errorf("Ptr(3) = %d", *p)
	}
}
