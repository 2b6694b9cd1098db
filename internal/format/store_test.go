package format

import (
	"context"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"testing"

	"github.com/stratabench/stratabench/internal/dataset"
	"github.com/stratabench/stratabench/pkg/types"
)

func testDataset(t *testing.T, factRows, dimRows int) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.Generate(dataset.GeneratorConfig{FactRows: factRows, DimRows: dimRows, Seed: 42})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return ds
}

func sortFacts(facts []dataset.FactRow) {
	sort.Slice(facts, func(i, j int) bool { return facts[i].SaleID < facts[j].SaleID })
}

func sortDims(dims []dataset.DimRow) {
	sort.Slice(dims, func(i, j int) bool { return dims[i].CustomerID < dims[j].CustomerID })
}

func TestStore_RoundTrip(t *testing.T) {
	ds := testDataset(t, 20_000, 500)
	ctx := context.Background()

	for _, enc := range types.AllEncodings() {
		t.Run(string(enc), func(t *testing.T) {
			store := NewStore(t.TempDir())

			factArt, err := store.WriteFacts(ctx, ds.Facts, enc)
			if err != nil {
				t.Fatalf("WriteFacts failed: %v", err)
			}
			if factArt.RowCount != int64(len(ds.Facts)) {
				t.Errorf("artifact row count = %d, want %d", factArt.RowCount, len(ds.Facts))
			}
			if factArt.SizeBytes <= 0 {
				t.Error("artifact size must be positive")
			}

			if _, err := store.WriteDims(ctx, ds.Dims, enc); err != nil {
				t.Fatalf("WriteDims failed: %v", err)
			}

			gotFacts, err := store.ReadFacts(ctx, enc)
			if err != nil {
				t.Fatalf("ReadFacts failed: %v", err)
			}
			gotDims, err := store.ReadDims(ctx, enc)
			if err != nil {
				t.Fatalf("ReadDims failed: %v", err)
			}

			// Round-trip equality is order-insensitive: the versioned
			// encoding rewrites physical order by clustering key.
			wantFacts := make([]dataset.FactRow, len(ds.Facts))
			copy(wantFacts, ds.Facts)
			sortFacts(wantFacts)
			sortFacts(gotFacts)
			if !reflect.DeepEqual(gotFacts, wantFacts) {
				t.Error("fact table did not survive the round trip")
			}

			wantDims := make([]dataset.DimRow, len(ds.Dims))
			copy(wantDims, ds.Dims)
			sortDims(wantDims)
			sortDims(gotDims)
			if !reflect.DeepEqual(gotDims, wantDims) {
				t.Error("dimension table did not survive the round trip")
			}
		})
	}
}

func TestStore_IdempotentRewrite(t *testing.T) {
	ds := testDataset(t, 5_000, 100)
	ctx := context.Background()

	for _, enc := range types.AllEncodings() {
		t.Run(string(enc), func(t *testing.T) {
			store := NewStore(t.TempDir())

			if _, err := store.WriteFacts(ctx, ds.Facts, enc); err != nil {
				t.Fatalf("first write failed: %v", err)
			}
			if _, err := store.WriteFacts(ctx, ds.Facts, enc); err != nil {
				t.Fatalf("second write failed: %v", err)
			}

			got, err := store.ReadFacts(ctx, enc)
			if err != nil {
				t.Fatalf("ReadFacts failed: %v", err)
			}
			if len(got) != len(ds.Facts) {
				t.Errorf("read %d rows after rewrite, want %d (no duplication)", len(got), len(ds.Facts))
			}
		})
	}
}

func TestStore_VersionedKeepsHistory(t *testing.T) {
	ds := testDataset(t, 5_000, 100)
	ctx := context.Background()
	store := NewStore(t.TempDir())

	art1, err := store.WriteFacts(ctx, ds.Facts, types.EncodingVersioned)
	if err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	art2, err := store.WriteFacts(ctx, ds.Facts, types.EncodingVersioned)
	if err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	if art1.Version != 1 || art2.Version != 2 {
		t.Errorf("versions = %d, %d; want 1, 2", art1.Version, art2.Version)
	}

	n, err := store.VersionCount(ctx, dataset.FactTableName)
	if err != nil {
		t.Fatalf("VersionCount failed: %v", err)
	}
	if n != 2 {
		t.Errorf("version count = %d, want 2", n)
	}

	if len(art2.ClusteringKey) == 0 {
		t.Error("versioned artifact must declare its clustering key")
	}
}

func TestStore_VersionedPruning(t *testing.T) {
	ds := testDataset(t, 60_000, 500)
	ctx := context.Background()
	store := NewStore(t.TempDir())

	if _, err := store.WriteFacts(ctx, ds.Facts, types.EncodingVersioned); err != nil {
		t.Fatalf("WriteFacts failed: %v", err)
	}

	pred := &Predicate{Column: dataset.ColRegion, Value: "emea"}

	pruned, prunedStats, err := store.ScanFacts(ctx, types.EncodingVersioned, pred, true)
	if err != nil {
		t.Fatalf("pruned scan failed: %v", err)
	}
	full, fullStats, err := store.ScanFacts(ctx, types.EncodingVersioned, pred, false)
	if err != nil {
		t.Fatalf("full scan failed: %v", err)
	}

	if prunedStats.SegmentsSkipped == 0 {
		t.Error("clustering on region should let a region predicate skip segments")
	}
	if prunedStats.BytesRead >= fullStats.BytesRead {
		t.Errorf("pruned scan read %d bytes, full scan %d; pruning should read less",
			prunedStats.BytesRead, fullStats.BytesRead)
	}

	// Pruning must never drop matching rows.
	count := func(rows []dataset.FactRow) int {
		n := 0
		for _, f := range rows {
			if f.Region == "emea" {
				n++
			}
		}
		return n
	}
	if count(pruned) != count(full) {
		t.Errorf("pruned scan returned %d emea rows, full scan %d", count(pruned), count(full))
	}
}

func TestStore_VersionedBloomPruning(t *testing.T) {
	ds := testDataset(t, 60_000, 500)
	ctx := context.Background()
	store := NewStore(t.TempDir())

	if _, err := store.WriteFacts(ctx, ds.Facts, types.EncodingVersioned); err != nil {
		t.Fatalf("WriteFacts failed: %v", err)
	}

	// A key far outside the generated range: every segment's bloom filter
	// should exclude it.
	pred := &Predicate{Column: dataset.ColCustomerID, Value: strconv.Itoa(9_999_999)}

	rows, stats, err := store.ScanFacts(ctx, types.EncodingVersioned, pred, true)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	if stats.SegmentsSkipped != stats.SegmentsTotal {
		t.Errorf("skipped %d of %d segments; an absent key should skip all",
			stats.SegmentsSkipped, stats.SegmentsTotal)
	}
	if len(rows) != 0 {
		t.Errorf("scan returned %d rows for an absent key", len(rows))
	}
}

func TestStore_CreatesRootOnFirstWrite(t *testing.T) {
	// The store owns its directory layout: writing into a root that does
	// not exist yet must succeed for every encoding, with no setup step.
	ds := testDataset(t, 1_000, 50)
	ctx := context.Background()

	for _, enc := range types.AllEncodings() {
		t.Run(string(enc), func(t *testing.T) {
			store := NewStore(filepath.Join(t.TempDir(), "nested", "data"))

			if _, err := store.WriteFacts(ctx, ds.Facts, enc); err != nil {
				t.Fatalf("WriteFacts on a fresh root failed: %v", err)
			}
			if _, err := store.WriteDims(ctx, ds.Dims, enc); err != nil {
				t.Fatalf("WriteDims on a fresh root failed: %v", err)
			}

			got, err := store.ReadFacts(ctx, enc)
			if err != nil {
				t.Fatalf("ReadFacts failed: %v", err)
			}
			if len(got) != len(ds.Facts) {
				t.Errorf("read %d rows, want %d", len(got), len(ds.Facts))
			}
		})
	}
}

func TestStore_EncodingSize(t *testing.T) {
	ds := testDataset(t, 5_000, 100)
	ctx := context.Background()
	store := NewStore(t.TempDir())

	if _, err := store.WriteFacts(ctx, ds.Facts, types.EncodingColumnar); err != nil {
		t.Fatalf("WriteFacts failed: %v", err)
	}
	if _, err := store.WriteDims(ctx, ds.Dims, types.EncodingColumnar); err != nil {
		t.Fatalf("WriteDims failed: %v", err)
	}

	size, err := store.EncodingSize(types.EncodingColumnar)
	if err != nil {
		t.Fatalf("EncodingSize failed: %v", err)
	}
	if size <= 0 {
		t.Error("encoding size must be positive after writes")
	}
}

func TestStore_VersionedSizeExcludesSupersededVersions(t *testing.T) {
	// A rewrite appends a new manifest version and keeps the old segments
	// on disk. The reported size covers the current version only, so a
	// resumed run records the same storage footprint as the first one.
	ds := testDataset(t, 5_000, 100)
	ctx := context.Background()
	store := NewStore(t.TempDir())

	if _, err := store.WriteFacts(ctx, ds.Facts, types.EncodingVersioned); err != nil {
		t.Fatalf("WriteFacts failed: %v", err)
	}
	if _, err := store.WriteDims(ctx, ds.Dims, types.EncodingVersioned); err != nil {
		t.Fatalf("WriteDims failed: %v", err)
	}

	first, err := store.EncodingSize(types.EncodingVersioned)
	if err != nil {
		t.Fatalf("EncodingSize failed: %v", err)
	}
	if first <= 0 {
		t.Fatal("encoding size must be positive after writes")
	}

	if _, err := store.WriteFacts(ctx, ds.Facts, types.EncodingVersioned); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}
	if _, err := store.WriteDims(ctx, ds.Dims, types.EncodingVersioned); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	second, err := store.EncodingSize(types.EncodingVersioned)
	if err != nil {
		t.Fatalf("EncodingSize after rewrite failed: %v", err)
	}
	if second != first {
		t.Errorf("size after rewriting identical content = %d, want %d", second, first)
	}
}

func TestStore_ReadMissingArtifact(t *testing.T) {
	store := NewStore(t.TempDir())

	for _, enc := range types.AllEncodings() {
		if _, err := store.ReadFacts(context.Background(), enc); err == nil {
			t.Errorf("%s: expected error reading before any write", enc)
		}
	}
}
