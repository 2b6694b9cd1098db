package engine

import (
	"fmt"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/stratabench/stratabench/internal/dataset"
	"github.com/stratabench/stratabench/internal/errors"
	"github.com/stratabench/stratabench/pkg/types"
)

// Join strategy markers as they appear in physical plans.
const (
	JoinBroadcastHash = "broadcast-hash"
	JoinSortMerge     = "sort-merge"
)

// shufflePartitions is the hash-partition fan-out of a shuffle exchange.
const shufflePartitions = 8

// maxBroadcastRows is the hard ceiling on a broadcast build side. Even a
// forced broadcast is refused above it; the planner falls back to
// sort-merge and the plan controller surfaces the mismatch.
const maxBroadcastRows = 500_000

// adaptiveBroadcastRows is the build-side threshold below which adaptive
// execution downgrades a sort-merge join to a broadcast join.
const adaptiveBroadcastRows = 50_000

// PlanNode is one operator in a logical or physical plan tree.
type PlanNode struct {
	Name     string
	Detail   string
	Children []*PlanNode
}

func node(name, detail string, children ...*PlanNode) *PlanNode {
	return &PlanNode{Name: name, Detail: detail, Children: children}
}

// Render returns the tree in indented explain form.
func (n *PlanNode) Render() string {
	var b strings.Builder
	n.render(&b, 0)
	return b.String()
}

func (n *PlanNode) render(b *strings.Builder, depth int) {
	if depth > 0 {
		b.WriteString(strings.Repeat("   ", depth-1))
		b.WriteString("+- ")
	}
	b.WriteString(n.Name)
	if n.Detail != "" {
		fmt.Fprintf(b, "(%s)", n.Detail)
	}
	b.WriteString("\n")
	for _, c := range n.Children {
		c.render(b, depth+1)
	}
}

// Contains reports whether any node in the tree has the given name.
func (n *PlanNode) Contains(name string) bool {
	if n.Name == name {
		return true
	}
	for _, c := range n.Children {
		if c.Contains(name) {
			return true
		}
	}
	return false
}

// PlanDescriptor is the structured, comparable form of a captured plan.
type PlanDescriptor struct {
	// Logical and Physical are the plan trees in explain-text form.
	Logical  string
	Physical string

	// JoinStrategy is the strategy the physical plan actually chose:
	// broadcast-hash or sort-merge. Empty for workloads without a join.
	JoinStrategy string

	// HasShuffle reports whether a shuffle exchange stage was inserted.
	HasShuffle bool

	// Hash fingerprints the physical plan text.
	Hash string
}

func describe(logical, physical *PlanNode, joinStrategy string) *PlanDescriptor {
	physText := physical.Render()
	return &PlanDescriptor{
		Logical:      logical.Render(),
		Physical:     physText,
		JoinStrategy: joinStrategy,
		HasShuffle:   physical.Contains("ShuffleExchange"),
		Hash:         fmt.Sprintf("%016x", murmur3.Sum64([]byte(physText))),
	}
}

// Plan builds the logical plan for a workload and lowers it to a physical
// plan under the session's settings. Planning is pure: no data is read.
func (s *Session) Plan(w types.Workload, enc types.Encoding) (*PlanDescriptor, error) {
	scanDetail := func(table string) string {
		d := fmt.Sprintf("table=%s, encoding=%s", table, enc)
		if enc == types.EncodingVersioned && s.settings.PruningEnabled {
			d += ", pruning=on"
		}
		return d
	}

	switch w.Kind {
	case types.WorkloadFullScan:
		logical := node("Scan", "table="+dataset.FactTableName)
		physical := node("Scan", scanDetail(dataset.FactTableName))
		return describe(logical, physical, ""), nil

	case types.WorkloadFilteredScan:
		logical := node("Filter", fmt.Sprintf("%s = '%s'", dataset.ColRegion, w.Region),
			node("Scan", "table="+dataset.FactTableName))
		physical := node("Filter", fmt.Sprintf("%s = '%s'", dataset.ColRegion, w.Region),
			node("Scan", scanDetail(dataset.FactTableName)))
		return describe(logical, physical, ""), nil

	case types.WorkloadAggregation:
		logical := node("Aggregate",
			fmt.Sprintf("keys=[%s], aggs=[sum(%s), count(*)]", dataset.ColRegion, dataset.ColAmountCents),
			node("Scan", "table="+dataset.FactTableName))
		physical := node("HashAggregate",
			fmt.Sprintf("keys=[%s]", dataset.ColRegion),
			node("Scan", scanDetail(dataset.FactTableName)))
		return describe(logical, physical, ""), nil

	case types.WorkloadJoin:
		logical := node("Aggregate",
			fmt.Sprintf("keys=[%s], aggs=[sum(%s), count(*)]", dataset.ColSegment, dataset.ColAmountCents),
			node("Join", fmt.Sprintf("key=%s, type=inner", dataset.ColCustomerID),
				node("Scan", "table="+dataset.FactTableName),
				node("Scan", "table="+dataset.DimTableName)))

		strategy := s.chooseJoinStrategy()

		var joinNode *PlanNode
		if strategy == JoinBroadcastHash {
			joinNode = node("BroadcastHashJoin",
				fmt.Sprintf("key=%s, buildSide=%s", dataset.ColCustomerID, dataset.DimTableName),
				node("Scan", scanDetail(dataset.FactTableName)),
				node("BroadcastExchange", "",
					node("Scan", scanDetail(dataset.DimTableName))))
		} else {
			exchange := fmt.Sprintf("hashpartitioning(%s, %d)", dataset.ColCustomerID, shufflePartitions)
			joinNode = node("SortMergeJoin",
				fmt.Sprintf("key=%s", dataset.ColCustomerID),
				node("Sort", "key="+dataset.ColCustomerID,
					node("ShuffleExchange", exchange,
						node("Scan", scanDetail(dataset.FactTableName)))),
				node("Sort", "key="+dataset.ColCustomerID,
					node("ShuffleExchange", exchange,
						node("Scan", scanDetail(dataset.DimTableName)))))
		}

		physical := node("HashAggregate",
			fmt.Sprintf("keys=[%s]", dataset.ColSegment), joinNode)
		return describe(logical, physical, strategy), nil
	}

	return nil, errors.NewInvalidConfiguration(fmt.Sprintf("unknown workload kind %q", w.Kind))
}

// chooseJoinStrategy applies the optimizer directives. The dimension table
// is always the build side.
func (s *Session) chooseJoinStrategy() string {
	buildRows := s.engine.tableStats().DimRows

	if s.settings.BroadcastForced && buildRows <= maxBroadcastRows {
		return JoinBroadcastHash
	}
	if s.settings.BroadcastForced {
		// Forced but over the ceiling: refuse. The caller's mismatch
		// check turns this into a hard failure rather than silently
		// benchmarking the wrong strategy.
		return JoinSortMerge
	}
	if s.settings.AdaptiveEnabled && buildRows > 0 && buildRows <= adaptiveBroadcastRows {
		return JoinBroadcastHash
	}
	return JoinSortMerge
}
