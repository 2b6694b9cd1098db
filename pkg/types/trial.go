package types

import (
	"fmt"
	"time"
)

// TrialStatus marks whether a trial completed or failed.
type TrialStatus string

const (
	TrialSuccess TrialStatus = "SUCCESS"
	TrialFailed  TrialStatus = "FAILED"
)

// CellID identifies one cell of the benchmark matrix. Trials are tagged
// with their cell so analysis of the log is order-independent and resumed
// runs can skip cells that already have a record.
type CellID struct {
	Workload string
	Encoding Encoding
	Config   string
}

// String renders the cell in "workload/encoding/config" form.
func (c CellID) String() string {
	return fmt.Sprintf("%s/%s/%s", c.Workload, c.Encoding, c.Config)
}

// Trial is one execution of (Workload x Encoding x OptimizerConfig).
// A Trial is immutable once recorded; superseded trials are appended to
// the log, never overwritten.
type Trial struct {
	// RunID groups trials belonging to one benchmark invocation.
	RunID string

	// Matrix-cell identity.
	Workload string
	Encoding Encoding
	Config   string

	// Seed is the dataset generator seed the artifacts were built from.
	Seed int64

	// Elapsed is the wall-clock time around the action that forced
	// evaluation. Zero for failed trials.
	Elapsed time.Duration

	// StorageBytes is the on-disk size of the encoding's artifacts.
	StorageBytes int64

	// Engine-reported counters for the execution.
	BytesRead           int64
	ShuffleBytesRead    int64
	ShuffleBytesWritten int64

	// RowsReturned is the logical result cardinality.
	RowsReturned int64

	// ResultChecksum is the order-insensitive checksum of the logical
	// result, used to verify equality across encodings.
	ResultChecksum uint64

	// PlanHash fingerprints the captured physical plan.
	PlanHash string

	Status    TrialStatus
	ErrorKind string
	StartedAt time.Time
}

// Cell returns the trial's matrix-cell identity.
func (t *Trial) Cell() CellID {
	return CellID{Workload: t.Workload, Encoding: t.Encoding, Config: t.Config}
}
