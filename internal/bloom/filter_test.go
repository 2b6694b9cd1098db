package bloom

import (
	"testing"
)

func TestFilter_NoFalseNegatives(t *testing.T) {
	f := New(10_000, 0.01)

	for i := int64(0); i < 10_000; i++ {
		f.AddInt64(i)
	}
	for i := int64(0); i < 10_000; i++ {
		if !f.ContainsInt64(i) {
			t.Fatalf("filter reported added key %d as absent", i)
		}
	}
}

func TestFilter_FalsePositiveRate(t *testing.T) {
	f := New(10_000, 0.01)
	for i := int64(0); i < 10_000; i++ {
		f.AddInt64(i)
	}

	falsePositives := 0
	const probes = 10_000
	for i := int64(1_000_000); i < 1_000_000+probes; i++ {
		if f.ContainsInt64(i) {
			falsePositives++
		}
	}

	// Target is 1%; allow generous slack to keep the test stable.
	if rate := float64(falsePositives) / probes; rate > 0.05 {
		t.Errorf("false positive rate %.4f exceeds 0.05", rate)
	}
}

func TestFilter_MarshalRoundTrip(t *testing.T) {
	f := New(1000, 0.01)
	for i := int64(0); i < 500; i++ {
		f.AddInt64(i * 3)
	}

	restored, err := Unmarshal(f.Marshal())
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if restored.Count() != f.Count() {
		t.Errorf("count = %d, want %d", restored.Count(), f.Count())
	}
	for i := int64(0); i < 500; i++ {
		if !restored.ContainsInt64(i * 3) {
			t.Fatalf("restored filter lost key %d", i*3)
		}
	}
}

func TestUnmarshal_Truncated(t *testing.T) {
	if _, err := Unmarshal([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated data")
	}

	f := New(1000, 0.01)
	data := f.Marshal()
	if _, err := Unmarshal(data[:len(data)-4]); err == nil {
		t.Error("expected error for short payload")
	}
}
