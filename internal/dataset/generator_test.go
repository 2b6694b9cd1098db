package dataset

import (
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/stratabench/stratabench/internal/errors"
)

func TestGenerate_Deterministic(t *testing.T) {
	cfg := GeneratorConfig{FactRows: 5000, DimRows: 100, Seed: 42}

	a, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	b, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !reflect.DeepEqual(a.Facts, b.Facts) {
		t.Error("fact tables differ between runs with identical seed and sizes")
	}
	if !reflect.DeepEqual(a.Dims, b.Dims) {
		t.Error("dimension tables differ between runs with identical seed and sizes")
	}
}

func TestGenerate_SeedChangesContent(t *testing.T) {
	a, err := Generate(GeneratorConfig{FactRows: 1000, DimRows: 50, Seed: 1})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	b, err := Generate(GeneratorConfig{FactRows: 1000, DimRows: 50, Seed: 2})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if reflect.DeepEqual(a.Facts, b.Facts) {
		t.Error("different seeds produced identical fact tables")
	}
}

func TestGenerate_ReferentialIntegrity(t *testing.T) {
	ds, err := Generate(GeneratorConfig{FactRows: 10_000, DimRows: 200, Seed: 7})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if err := ValidateReferentialIntegrity(ds); err != nil {
		t.Errorf("generated dataset violates referential integrity: %v", err)
	}
}

func TestGenerate_InvalidSizes(t *testing.T) {
	tests := []struct {
		name string
		cfg  GeneratorConfig
	}{
		{"zero facts", GeneratorConfig{FactRows: 0, DimRows: 10, Seed: 1}},
		{"negative facts", GeneratorConfig{FactRows: -5, DimRows: 10, Seed: 1}},
		{"zero dims", GeneratorConfig{FactRows: 10, DimRows: 0, Seed: 1}},
		{"negative dims", GeneratorConfig{FactRows: 10, DimRows: -1, Seed: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.cfg)
			if err == nil {
				t.Fatal("expected error for invalid size")
			}
			if !stderrors.Is(err, errors.NewInvalidConfiguration("")) {
				t.Errorf("expected INVALID_CONFIGURATION, got %v", err)
			}
		})
	}
}

func TestGenerate_Domains(t *testing.T) {
	ds, err := Generate(GeneratorConfig{FactRows: 2000, DimRows: 100, Seed: 3})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	regions := make(map[string]bool, len(Regions))
	for _, r := range Regions {
		regions[r] = true
	}
	segments := make(map[string]bool, len(Segments))
	for _, s := range Segments {
		segments[s] = true
	}

	for _, f := range ds.Facts {
		if !regions[f.Region] {
			t.Fatalf("fact row has region %q outside the closed domain", f.Region)
		}
		if f.Quantity < 1 || f.Quantity > 10 {
			t.Fatalf("fact row quantity %d out of range", f.Quantity)
		}
		if f.AmountCents < 100 {
			t.Fatalf("fact row amount %d below minimum", f.AmountCents)
		}
	}
	for _, d := range ds.Dims {
		if !segments[d.Segment] {
			t.Fatalf("dim row has segment %q outside the closed domain", d.Segment)
		}
	}
}
