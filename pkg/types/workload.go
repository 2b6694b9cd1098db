package types

// WorkloadKind classifies a query template.
type WorkloadKind string

const (
	WorkloadFullScan     WorkloadKind = "full_scan"
	WorkloadFilteredScan WorkloadKind = "filtered_scan"
	WorkloadAggregation  WorkloadKind = "aggregation"
	WorkloadJoin         WorkloadKind = "join"
)

// Workload is a named query template. The logical result of a workload is
// identical across encodings and optimizer configurations; only the
// execution strategy and timing may differ.
type Workload struct {
	// Name identifies the workload in the metrics log.
	Name string `json:"name" yaml:"name"`

	// Kind selects the query template.
	Kind WorkloadKind `json:"kind" yaml:"kind"`

	// Region is the equality predicate for filtered scans. Selectivity is
	// controlled by how many fact rows the generator assigns to the region.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
}

// DefaultWorkloads returns the fixed battery of query workloads.
func DefaultWorkloads() []Workload {
	return []Workload{
		{Name: "full-scan", Kind: WorkloadFullScan},
		{Name: "filtered-scan", Kind: WorkloadFilteredScan, Region: "emea"},
		{Name: "agg-by-region", Kind: WorkloadAggregation},
		{Name: "join-by-segment", Kind: WorkloadJoin},
	}
}

// WorkloadByName resolves a workload from the default battery.
func WorkloadByName(name string) (Workload, bool) {
	for _, w := range DefaultWorkloads() {
		if w.Name == name {
			return w, true
		}
	}
	return Workload{}, false
}
