package factor

import (
	"errors"
	"testing"

	"gofactor/domain/core"
)

func TestKMOBands(t *testing.T) {
	tests := []struct {
		kmo  float64
		want string
	}{
		{0.3, "unacceptable"},
		{0.49, "unacceptable"},
		{0.55, "miserable"},
		{0.65, "mediocre"},
		{0.75, "middling"},
		{0.85, "meritorious"},
		{0.9, "marvelous"},
		{0.97, "marvelous"},
	}
	for _, tt := range tests {
		if got := KMOBand(tt.kmo); got != tt.want {
			t.Errorf("KMOBand(%.2f) = %q, want %q", tt.kmo, got, tt.want)
		}
	}
}

func TestPhiBands(t *testing.T) {
	tests := []struct {
		phi  float64
		want string
	}{
		{0.05, "negligible"},
		{0.1, "small"},
		{0.29, "small"},
		{0.3, "medium"},
		{0.5, "large"},
		{0.8, "large"},
	}
	for _, tt := range tests {
		if got := PhiBand(tt.phi); got != tt.want {
			t.Errorf("PhiBand(%.2f) = %q, want %q", tt.phi, got, tt.want)
		}
	}
}

func TestUpperTriangle(t *testing.T) {
	c := &CorrelationMatrix{
		Items: []core.ItemKey{"a", "b", "c"},
		Values: [][]float64{
			{1.0, 0.5, 0.2},
			{0.5, 1.0, 0.7},
			{0.2, 0.7, 1.0},
		},
	}

	tri := c.UpperTriangle()
	want := []float64{0.5, 0.2, 0.7}
	if len(tri) != len(want) {
		t.Fatalf("expected %d fingerprint entries, got %d", len(want), len(tri))
	}
	for i := range want {
		if tri[i] != want[i] {
			t.Errorf("triangle[%d] = %v, want %v", i, tri[i], want[i])
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AnalysisConfig)
		valid  bool
	}{
		{"defaults", func(c *AnalysisConfig) {}, true},
		{"zero factors", func(c *AnalysisConfig) { c.FactorCount = 0 }, false},
		{"negative factors", func(c *AnalysisConfig) { c.FactorCount = -2 }, false},
		{"bad rotation", func(c *AnalysisConfig) { c.Rotation = "oblimin" }, false},
		{"bad association", func(c *AnalysisConfig) { c.Association = "biserial" }, false},
		{"zero iterations", func(c *AnalysisConfig) { c.BootstrapIterations = 0 }, false},
		{"fraction zero", func(c *AnalysisConfig) { c.BootstrapFraction = 0 }, false},
		{"fraction above one", func(c *AnalysisConfig) { c.BootstrapFraction = 1.2 }, false},
		{"fraction exactly one", func(c *AnalysisConfig) { c.BootstrapFraction = 1.0 }, true},
		{"rotation none", func(c *AnalysisConfig) { c.Rotation = RotationNone }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.valid {
				if err == nil {
					t.Fatalf("expected configuration error")
				}
				if !errors.Is(err, core.ErrInvalidConfiguration) {
					t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
				}
			}
		})
	}
}

func TestSphericitySupported(t *testing.T) {
	r := &AdequacyReport{SphericityPValue: 0.0004}
	if !r.SphericitySupported() {
		t.Errorf("p=0.0004 should support factor analysis")
	}
	r.SphericityPValue = 0.01
	if r.SphericitySupported() {
		t.Errorf("p=0.01 is above the reporting threshold")
	}
}
