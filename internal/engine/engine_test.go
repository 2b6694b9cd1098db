package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stratabench/stratabench/internal/dataset"
	"github.com/stratabench/stratabench/internal/format"
	"github.com/stratabench/stratabench/pkg/types"
)

func testEngine(t *testing.T, factRows, dimRows int) *Engine {
	t.Helper()

	ds, err := dataset.Generate(dataset.GeneratorConfig{FactRows: factRows, DimRows: dimRows, Seed: 7})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	store := format.NewStore(t.TempDir())
	ctx := context.Background()
	for _, enc := range types.AllEncodings() {
		if _, err := store.WriteFacts(ctx, ds.Facts, enc); err != nil {
			t.Fatalf("WriteFacts(%s) failed: %v", enc, err)
		}
		if _, err := store.WriteDims(ctx, ds.Dims, enc); err != nil {
			t.Fatalf("WriteDims(%s) failed: %v", enc, err)
		}
	}

	e := New(store)
	e.SetTableStats(TableStats{FactRows: int64(factRows), DimRows: int64(dimRows)})
	return e
}

func mustWorkload(t *testing.T, name string) types.Workload {
	t.Helper()
	w, ok := types.WorkloadByName(name)
	if !ok {
		t.Fatalf("unknown workload %q", name)
	}
	return w
}

func TestSession_RestoresGlobalSettings(t *testing.T) {
	e := testEngine(t, 1_000, 100)
	before := e.GlobalSettings()

	s := e.Acquire(Settings{BroadcastForced: true, CacheEnabled: true})
	if got := e.GlobalSettings(); !got.BroadcastForced {
		t.Error("acquire did not apply settings globally")
	}

	s.Release()
	if got := e.GlobalSettings(); got != before {
		t.Errorf("release left settings %+v, want %+v", got, before)
	}

	// A second release must be a no-op.
	s.Release()
	if got := e.GlobalSettings(); got != before {
		t.Errorf("double release corrupted settings: %+v", got)
	}
}

func TestPlan_ForcedBroadcast(t *testing.T) {
	e := testEngine(t, 1_000, 100)
	s := e.Acquire(Settings{BroadcastForced: true})
	defer s.Release()

	desc, err := s.Plan(mustWorkload(t, "join-by-segment"), types.EncodingRow)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if desc.JoinStrategy != JoinBroadcastHash {
		t.Errorf("strategy = %q, want %q", desc.JoinStrategy, JoinBroadcastHash)
	}
	if !strings.Contains(desc.Physical, "BroadcastHashJoin") {
		t.Errorf("physical plan missing broadcast join:\n%s", desc.Physical)
	}
	if desc.HasShuffle {
		t.Error("broadcast join plan must not contain a shuffle exchange")
	}
}

func TestPlan_AdaptiveDowngradesSmallBuildSide(t *testing.T) {
	e := testEngine(t, 1_000, 100)
	s := e.Acquire(Settings{AdaptiveEnabled: true})
	defer s.Release()

	desc, err := s.Plan(mustWorkload(t, "join-by-segment"), types.EncodingRow)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if desc.JoinStrategy != JoinBroadcastHash {
		t.Errorf("adaptive with a tiny build side chose %q, want %q", desc.JoinStrategy, JoinBroadcastHash)
	}
}

func TestPlan_AdaptiveOffChoosesSortMerge(t *testing.T) {
	e := testEngine(t, 1_000, 100)
	s := e.Acquire(Settings{})
	defer s.Release()

	desc, err := s.Plan(mustWorkload(t, "join-by-segment"), types.EncodingRow)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if desc.JoinStrategy != JoinSortMerge {
		t.Errorf("strategy = %q, want %q", desc.JoinStrategy, JoinSortMerge)
	}
	if !desc.HasShuffle {
		t.Error("sort-merge plan must contain a shuffle exchange")
	}
	if !strings.Contains(desc.Physical, "ShuffleExchange") || !strings.Contains(desc.Physical, "Sort") {
		t.Errorf("physical plan missing sort-merge stages:\n%s", desc.Physical)
	}
}

func TestPlan_ForcedBroadcastOverCeiling(t *testing.T) {
	e := testEngine(t, 1_000, 100)
	// Planning uses registered stats, not physical row counts, so an
	// oversized build side can be simulated without writing the rows.
	e.SetTableStats(TableStats{FactRows: 1_000, DimRows: maxBroadcastRows + 1})

	s := e.Acquire(Settings{BroadcastForced: true})
	defer s.Release()

	desc, err := s.Plan(mustWorkload(t, "join-by-segment"), types.EncodingRow)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if desc.JoinStrategy != JoinSortMerge {
		t.Errorf("over-ceiling forced broadcast chose %q, want %q", desc.JoinStrategy, JoinSortMerge)
	}
}

func TestPlan_HashIsStable(t *testing.T) {
	e := testEngine(t, 1_000, 100)
	s := e.Acquire(Settings{AdaptiveEnabled: true})
	defer s.Release()

	w := mustWorkload(t, "agg-by-region")
	a, err := s.Plan(w, types.EncodingColumnar)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	b, err := s.Plan(w, types.EncodingColumnar)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if a.Hash != b.Hash {
		t.Errorf("identical plans hashed differently: %s vs %s", a.Hash, b.Hash)
	}

	c, err := s.Plan(w, types.EncodingRow)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if a.Hash == c.Hash {
		t.Error("plans over different encodings should hash differently")
	}
}

func TestExecute_ResultsMatchAcrossEncodings(t *testing.T) {
	e := testEngine(t, 20_000, 500)
	ctx := context.Background()

	for _, w := range types.DefaultWorkloads() {
		t.Run(w.Name, func(t *testing.T) {
			var baseline *Result
			for _, enc := range types.AllEncodings() {
				s := e.Acquire(Settings{AdaptiveEnabled: true, PruningEnabled: true})
				res, _, err := s.Execute(ctx, w, enc)
				s.Release()
				if err != nil {
					t.Fatalf("Execute(%s) failed: %v", enc, err)
				}
				if baseline == nil {
					baseline = res
					continue
				}
				if res.Rows != baseline.Rows || res.Checksum != baseline.Checksum {
					t.Errorf("%s: rows=%d checksum=%016x, baseline rows=%d checksum=%016x",
						enc, res.Rows, res.Checksum, baseline.Rows, baseline.Checksum)
				}
			}
		})
	}
}

func TestExecute_JoinStrategiesAgree(t *testing.T) {
	e := testEngine(t, 20_000, 500)
	ctx := context.Background()
	w := mustWorkload(t, "join-by-segment")

	s := e.Acquire(Settings{BroadcastForced: true})
	broadcast, bdesc, err := s.Execute(ctx, w, types.EncodingRow)
	s.Release()
	if err != nil {
		t.Fatalf("broadcast execute failed: %v", err)
	}

	s = e.Acquire(Settings{})
	merged, mdesc, err := s.Execute(ctx, w, types.EncodingRow)
	s.Release()
	if err != nil {
		t.Fatalf("sort-merge execute failed: %v", err)
	}

	if bdesc.JoinStrategy != JoinBroadcastHash || mdesc.JoinStrategy != JoinSortMerge {
		t.Fatalf("strategies = %q, %q; want broadcast vs sort-merge", bdesc.JoinStrategy, mdesc.JoinStrategy)
	}

	// The join result is a logical property of the data; strategy must not
	// change it.
	if broadcast.Rows != merged.Rows || broadcast.Checksum != merged.Checksum {
		t.Errorf("strategies disagree: broadcast rows=%d checksum=%016x, sort-merge rows=%d checksum=%016x",
			broadcast.Rows, broadcast.Checksum, merged.Rows, merged.Checksum)
	}

	if broadcast.Stats.ShuffleBytesWritten != 0 || broadcast.Stats.ShuffleBytesRead != 0 {
		t.Errorf("broadcast join shuffled %d/%d bytes, want zero",
			broadcast.Stats.ShuffleBytesRead, broadcast.Stats.ShuffleBytesWritten)
	}
	if merged.Stats.ShuffleBytesWritten == 0 || merged.Stats.ShuffleBytesRead == 0 {
		t.Error("sort-merge join reported zero shuffle bytes")
	}
}

func TestExecute_PruningReadsLess(t *testing.T) {
	e := testEngine(t, 60_000, 500)
	ctx := context.Background()
	w := mustWorkload(t, "filtered-scan")

	s := e.Acquire(Settings{PruningEnabled: true})
	pruned, _, err := s.Execute(ctx, w, types.EncodingVersioned)
	s.Release()
	if err != nil {
		t.Fatalf("pruned execute failed: %v", err)
	}

	s = e.Acquire(Settings{})
	full, _, err := s.Execute(ctx, w, types.EncodingVersioned)
	s.Release()
	if err != nil {
		t.Fatalf("unpruned execute failed: %v", err)
	}

	if pruned.Rows != full.Rows || pruned.Checksum != full.Checksum {
		t.Error("pruning changed the logical result")
	}
	if pruned.Stats.SegmentsSkipped == 0 {
		t.Error("pruning skipped no segments on a clustered predicate column")
	}
	if pruned.Stats.BytesRead >= full.Stats.BytesRead {
		t.Errorf("pruned read %d bytes, unpruned %d; pruning should read less",
			pruned.Stats.BytesRead, full.Stats.BytesRead)
	}
}

func TestExecute_CacheHitsWithinSession(t *testing.T) {
	e := testEngine(t, 5_000, 100)
	ctx := context.Background()
	w := mustWorkload(t, "agg-by-region")

	s := e.Acquire(Settings{CacheEnabled: true})
	cold, _, err := s.Execute(ctx, w, types.EncodingRow)
	if err != nil {
		t.Fatalf("cold execute failed: %v", err)
	}
	if cold.Stats.CacheHit {
		t.Error("first execution must not be a cache hit")
	}

	warm, _, err := s.Execute(ctx, w, types.EncodingRow)
	if err != nil {
		t.Fatalf("warm execute failed: %v", err)
	}
	if !warm.Stats.CacheHit {
		t.Error("repeated execution in the same session should hit the cache")
	}
	if warm.Rows != cold.Rows || warm.Checksum != cold.Checksum {
		t.Error("cached result differs from computed result")
	}
	s.Release()

	// A new session starts cold even with caching on.
	s = e.Acquire(Settings{CacheEnabled: true})
	defer s.Release()
	again, _, err := s.Execute(ctx, w, types.EncodingRow)
	if err != nil {
		t.Fatalf("execute in fresh session failed: %v", err)
	}
	if again.Stats.CacheHit {
		t.Error("fresh session must not inherit a prior session's cache")
	}
}

func TestExecute_CacheDisabledNeverHits(t *testing.T) {
	e := testEngine(t, 5_000, 100)
	ctx := context.Background()
	w := mustWorkload(t, "full-scan")

	s := e.Acquire(Settings{})
	defer s.Release()

	for i := 0; i < 2; i++ {
		res, _, err := s.Execute(ctx, w, types.EncodingRow)
		if err != nil {
			t.Fatalf("execute %d failed: %v", i, err)
		}
		if res.Stats.CacheHit {
			t.Errorf("execution %d hit the cache with caching disabled", i)
		}
	}
}
