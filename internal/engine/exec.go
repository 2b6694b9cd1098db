package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"sort"

	"github.com/spaolacci/murmur3"

	"github.com/stratabench/stratabench/internal/dataset"
	"github.com/stratabench/stratabench/internal/errors"
	"github.com/stratabench/stratabench/internal/format"
	"github.com/stratabench/stratabench/pkg/types"
)

// ExecStats are the engine-reported counters for one execution.
type ExecStats struct {
	BytesRead           int64
	ShuffleBytesRead    int64
	ShuffleBytesWritten int64
	SegmentsTotal       int
	SegmentsSkipped     int
	CacheHit            bool
}

// Result is the logical outcome of a workload execution. Rows and
// Checksum depend only on the logical result set: they are identical
// across encodings and optimizer configurations by construction, which is
// what makes cross-encoding verification possible.
type Result struct {
	Rows     int64
	Checksum uint64
	Stats    ExecStats
}

// Execute plans and runs a workload against one encoding's artifact,
// returning the result and the captured plan. This is the action that
// forces evaluation; callers time around it.
func (s *Session) Execute(ctx context.Context, w types.Workload, enc types.Encoding) (*Result, *PlanDescriptor, error) {
	desc, err := s.Plan(w, enc)
	if err != nil {
		return nil, nil, err
	}

	key := cacheKey{workload: w.Name, encoding: enc}
	if s.settings.CacheEnabled {
		if cached, ok := s.cache[key]; ok {
			hit := &Result{Rows: cached.Rows, Checksum: cached.Checksum}
			hit.Stats.CacheHit = true
			return hit, desc, nil
		}
	}

	var res *Result
	switch w.Kind {
	case types.WorkloadFullScan:
		res, err = s.execFullScan(ctx, enc)
	case types.WorkloadFilteredScan:
		res, err = s.execFilteredScan(ctx, w, enc)
	case types.WorkloadAggregation:
		res, err = s.execAggregation(ctx, enc)
	case types.WorkloadJoin:
		res, err = s.execJoin(ctx, enc, desc.JoinStrategy)
	default:
		return nil, nil, errors.NewInvalidConfiguration(fmt.Sprintf("unknown workload kind %q", w.Kind))
	}
	if err != nil {
		return nil, nil, err
	}

	if s.settings.CacheEnabled {
		s.cache[key] = res
	}
	return res, desc, nil
}

func (s *Session) scanFacts(ctx context.Context, enc types.Encoding, pred *format.Predicate) ([]dataset.FactRow, *format.ScanStats, error) {
	rows, stats, err := s.engine.store.ScanFacts(ctx, enc, pred, s.settings.PruningEnabled)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, err
		}
		return nil, nil, errors.NewExecutionFailure("fact scan", err)
	}
	return rows, stats, nil
}

func (s *Session) scanDims(ctx context.Context, enc types.Encoding) ([]dataset.DimRow, *format.ScanStats, error) {
	rows, stats, err := s.engine.store.ScanDims(ctx, enc)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, err
		}
		return nil, nil, errors.NewExecutionFailure("dimension scan", err)
	}
	return rows, stats, nil
}

func (s *Session) execFullScan(ctx context.Context, enc types.Encoding) (*Result, error) {
	facts, stats, err := s.scanFacts(ctx, enc, nil)
	if err != nil {
		return nil, err
	}

	var checksum uint64
	for i := range facts {
		checksum += factDigest(&facts[i])
	}

	res := &Result{Rows: int64(len(facts)), Checksum: checksum}
	res.Stats = scanExecStats(stats)
	return res, nil
}

func (s *Session) execFilteredScan(ctx context.Context, w types.Workload, enc types.Encoding) (*Result, error) {
	pred := &format.Predicate{Column: dataset.ColRegion, Value: w.Region}
	facts, stats, err := s.scanFacts(ctx, enc, pred)
	if err != nil {
		return nil, err
	}

	// The pushdown is a segment-level hint; the exact predicate is always
	// applied here so results do not depend on pruning being enabled.
	var rows int64
	var checksum uint64
	for i := range facts {
		if facts[i].Region == w.Region {
			rows++
			checksum += factDigest(&facts[i])
		}
	}

	res := &Result{Rows: rows, Checksum: checksum}
	res.Stats = scanExecStats(stats)
	return res, nil
}

func (s *Session) execAggregation(ctx context.Context, enc types.Encoding) (*Result, error) {
	facts, stats, err := s.scanFacts(ctx, enc, nil)
	if err != nil {
		return nil, err
	}

	type agg struct {
		sumCents int64
		count    int64
	}
	groups := make(map[string]*agg, len(dataset.Regions))
	for i := range facts {
		g := groups[facts[i].Region]
		if g == nil {
			g = &agg{}
			groups[facts[i].Region] = g
		}
		g.sumCents += facts[i].AmountCents
		g.count++
	}

	var checksum uint64
	for region, g := range groups {
		checksum += digest(region, g.sumCents, g.count)
	}

	res := &Result{Rows: int64(len(groups)), Checksum: checksum}
	res.Stats = scanExecStats(stats)
	return res, nil
}

func (s *Session) execJoin(ctx context.Context, enc types.Encoding, strategy string) (*Result, error) {
	facts, fstats, err := s.scanFacts(ctx, enc, nil)
	if err != nil {
		return nil, err
	}
	dims, dstats, err := s.scanDims(ctx, enc)
	if err != nil {
		return nil, err
	}

	stats := ExecStats{
		BytesRead:       fstats.BytesRead + dstats.BytesRead,
		SegmentsTotal:   fstats.SegmentsTotal + dstats.SegmentsTotal,
		SegmentsSkipped: fstats.SegmentsSkipped + dstats.SegmentsSkipped,
	}

	type agg struct {
		sumCents int64
		count    int64
	}
	groups := make(map[string]*agg, len(dataset.Segments))
	addMatch := func(f *dataset.FactRow, segment string) {
		g := groups[segment]
		if g == nil {
			g = &agg{}
			groups[segment] = g
		}
		g.sumCents += f.AmountCents
		g.count++
	}

	switch strategy {
	case JoinBroadcastHash:
		// Build side fits in memory everywhere, so no rows move: the
		// dimension table is replicated and probed in place.
		build := make(map[int64]string, len(dims))
		for i := range dims {
			build[dims[i].CustomerID] = dims[i].Segment
		}
		for i := range facts {
			if segment, ok := build[facts[i].CustomerID]; ok {
				addMatch(&facts[i], segment)
			}
		}

	case JoinSortMerge:
		factParts, factBytes, err := shuffleRows(facts, func(f dataset.FactRow) int64 { return f.CustomerID })
		if err != nil {
			return nil, err
		}
		dimParts, dimBytes, err := shuffleRows(dims, func(d dataset.DimRow) int64 { return d.CustomerID })
		if err != nil {
			return nil, err
		}
		// Every shuffled byte is written by the map side and read back by
		// the reduce side.
		stats.ShuffleBytesWritten = factBytes + dimBytes
		stats.ShuffleBytesRead = factBytes + dimBytes

		for p := 0; p < shufflePartitions; p++ {
			if err := ctx.Err(); err != nil {
				return nil, errors.NewExecutionFailure("join cancelled", err)
			}
			mergeJoinPartition(factParts[p], dimParts[p], addMatch)
		}

	default:
		return nil, errors.NewInternal(fmt.Sprintf("unknown join strategy %q", strategy), nil)
	}

	var checksum uint64
	for segment, g := range groups {
		checksum += digest(segment, g.sumCents, g.count)
	}

	res := &Result{Rows: int64(len(groups)), Checksum: checksum, Stats: stats}
	return res, nil
}

// shuffleRows hash-partitions rows by key, materializing each partition
// through the wire encoding so shuffle volume is measured rather than
// estimated.
func shuffleRows[T any](rows []T, key func(T) int64) ([][]T, int64, error) {
	buckets := make([][]T, shufflePartitions)
	for _, r := range rows {
		p := keyPartition(key(r))
		buckets[p] = append(buckets[p], r)
	}

	var total int64
	parts := make([][]T, shufflePartitions)
	for p, bucket := range buckets {
		if len(bucket) == 0 {
			parts[p] = nil
			continue
		}
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(bucket); err != nil {
			return nil, 0, errors.NewExecutionFailure("encoding shuffle partition", err)
		}
		total += int64(buf.Len())

		var decoded []T
		if err := gob.NewDecoder(&buf).Decode(&decoded); err != nil {
			return nil, 0, errors.NewExecutionFailure("decoding shuffle partition", err)
		}
		parts[p] = decoded
	}
	return parts, total, nil
}

func keyPartition(key int64) int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return int(murmur3.Sum64(buf[:]) % shufflePartitions)
}

// mergeJoinPartition sorts both sides by key and merges. Customer IDs are
// unique on the dimension side, so each fact row matches at most once.
func mergeJoinPartition(facts []dataset.FactRow, dims []dataset.DimRow, emit func(*dataset.FactRow, string)) {
	sort.Slice(facts, func(i, j int) bool { return facts[i].CustomerID < facts[j].CustomerID })
	sort.Slice(dims, func(i, j int) bool { return dims[i].CustomerID < dims[j].CustomerID })

	i, j := 0, 0
	for i < len(facts) && j < len(dims) {
		switch {
		case facts[i].CustomerID < dims[j].CustomerID:
			i++
		case facts[i].CustomerID > dims[j].CustomerID:
			j++
		default:
			emit(&facts[i], dims[j].Segment)
			i++
		}
	}
}

func scanExecStats(stats *format.ScanStats) ExecStats {
	return ExecStats{
		BytesRead:       stats.BytesRead,
		SegmentsTotal:   stats.SegmentsTotal,
		SegmentsSkipped: stats.SegmentsSkipped,
	}
}

// factDigest is a per-row fingerprint; summing digests gives an
// order-insensitive checksum of a row set.
func factDigest(f *dataset.FactRow) uint64 {
	return digest(f.Region, f.SaleID, f.CustomerID, int64(f.Quantity), f.AmountCents, int64(f.SaleDay))
}

func digest(parts ...any) uint64 {
	var buf bytes.Buffer
	for _, p := range parts {
		fmt.Fprintf(&buf, "%v|", p)
	}
	return murmur3.Sum64(buf.Bytes())
}
