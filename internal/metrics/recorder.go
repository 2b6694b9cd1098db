// Package metrics persists trial results to an append-only CSV log.
// The log is the benchmark's source of truth: every trial appends exactly
// one row, failures included, and a resumed run reads the log back to
// decide which matrix cells still need running.
package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/stratabench/stratabench/internal/errors"
	"github.com/stratabench/stratabench/pkg/types"
)

// logHeader is the CSV schema. Appending is the only write operation;
// superseded trials get new rows rather than updates, so the file can be
// tailed while a run is in progress.
var logHeader = []string{
	"timestamp",
	"run_id",
	"workload",
	"encoding",
	"config",
	"seed",
	"status",
	"elapsed_ms",
	"storage_bytes",
	"bytes_read",
	"shuffle_bytes_read",
	"shuffle_bytes_written",
	"rows_returned",
	"result_checksum",
	"plan_hash",
	"error_kind",
}

// Recorder appends trials to a durable CSV log.
type Recorder struct {
	path string
	file *os.File
	w    *csv.Writer
}

// Open opens (or creates) the log at path for appending. The header is
// written once, only when the file is new or empty.
func Open(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(errors.CategoryMetrics, errors.CodeAppendFailed,
			fmt.Sprintf("opening log %s", path), err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(errors.CategoryMetrics, errors.CodeAppendFailed,
			"stat log", err)
	}

	r := &Recorder{path: path, file: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := r.w.Write(logHeader); err != nil {
			f.Close()
			return nil, errors.Wrap(errors.CategoryMetrics, errors.CodeAppendFailed,
				"writing header", err)
		}
		if err := r.flush(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return r, nil
}

// Path returns the log file path.
func (r *Recorder) Path() string {
	return r.path
}

// Append durably records one trial. Each append is flushed and synced so
// a crashed run loses at most the trial in flight.
func (r *Recorder) Append(t *types.Trial) error {
	record := []string{
		t.StartedAt.UTC().Format(time.RFC3339),
		t.RunID,
		t.Workload,
		string(t.Encoding),
		t.Config,
		strconv.FormatInt(t.Seed, 10),
		string(t.Status),
		strconv.FormatInt(t.Elapsed.Milliseconds(), 10),
		strconv.FormatInt(t.StorageBytes, 10),
		strconv.FormatInt(t.BytesRead, 10),
		strconv.FormatInt(t.ShuffleBytesRead, 10),
		strconv.FormatInt(t.ShuffleBytesWritten, 10),
		strconv.FormatInt(t.RowsReturned, 10),
		strconv.FormatUint(t.ResultChecksum, 16),
		t.PlanHash,
		t.ErrorKind,
	}
	if err := r.w.Write(record); err != nil {
		return errors.Wrap(errors.CategoryMetrics, errors.CodeAppendFailed,
			"writing trial record", err)
	}
	return r.flush()
}

func (r *Recorder) flush() error {
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		return errors.Wrap(errors.CategoryMetrics, errors.CodeAppendFailed,
			"flushing log", err)
	}
	if err := r.file.Sync(); err != nil {
		return errors.Wrap(errors.CategoryMetrics, errors.CodeAppendFailed,
			"syncing log", err)
	}
	return nil
}

// Close closes the underlying file.
func (r *Recorder) Close() error {
	r.w.Flush()
	return r.file.Close()
}

// ReadAll parses every trial recorded in the log at path. A missing file
// is an empty log, not an error; that is what a first run sees.
func ReadAll(path string) ([]types.Trial, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewReadError(fmt.Sprintf("opening log %s", path), err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = len(logHeader)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewReadError("reading log header", err)
	}
	if len(header) != len(logHeader) || header[0] != logHeader[0] {
		return nil, errors.New(errors.CategoryMetrics, errors.CodeSchemaMismatch,
			fmt.Sprintf("log %s has an unexpected schema", path))
	}

	var trials []types.Trial
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewReadError("reading log record", err)
		}
		t, err := parseRecord(record)
		if err != nil {
			return nil, err
		}
		trials = append(trials, t)
	}
	return trials, nil
}

// Completed returns the matrix cells that already have a SUCCESS record
// in the log. Failed cells are deliberately excluded: a resumed run
// retries them.
func Completed(path string) (map[types.CellID]bool, error) {
	trials, err := ReadAll(path)
	if err != nil {
		return nil, err
	}
	done := make(map[types.CellID]bool, len(trials))
	for i := range trials {
		if trials[i].Status == types.TrialSuccess {
			done[trials[i].Cell()] = true
		}
	}
	return done, nil
}

func parseRecord(record []string) (types.Trial, error) {
	fail := func(field string, err error) (types.Trial, error) {
		return types.Trial{}, errors.NewReadError(fmt.Sprintf("parsing %s", field), err)
	}

	startedAt, err := time.Parse(time.RFC3339, record[0])
	if err != nil {
		return fail("timestamp", err)
	}
	seed, err := strconv.ParseInt(record[5], 10, 64)
	if err != nil {
		return fail("seed", err)
	}
	elapsedMS, err := strconv.ParseInt(record[7], 10, 64)
	if err != nil {
		return fail("elapsed_ms", err)
	}
	storageBytes, err := strconv.ParseInt(record[8], 10, 64)
	if err != nil {
		return fail("storage_bytes", err)
	}
	bytesRead, err := strconv.ParseInt(record[9], 10, 64)
	if err != nil {
		return fail("bytes_read", err)
	}
	shuffleRead, err := strconv.ParseInt(record[10], 10, 64)
	if err != nil {
		return fail("shuffle_bytes_read", err)
	}
	shuffleWritten, err := strconv.ParseInt(record[11], 10, 64)
	if err != nil {
		return fail("shuffle_bytes_written", err)
	}
	rows, err := strconv.ParseInt(record[12], 10, 64)
	if err != nil {
		return fail("rows_returned", err)
	}
	checksum, err := strconv.ParseUint(record[13], 16, 64)
	if err != nil {
		return fail("result_checksum", err)
	}

	return types.Trial{
		StartedAt:           startedAt,
		RunID:               record[1],
		Workload:            record[2],
		Encoding:            types.Encoding(record[3]),
		Config:              record[4],
		Seed:                seed,
		Status:              types.TrialStatus(record[6]),
		Elapsed:             time.Duration(elapsedMS) * time.Millisecond,
		StorageBytes:        storageBytes,
		BytesRead:           bytesRead,
		ShuffleBytesRead:    shuffleRead,
		ShuffleBytesWritten: shuffleWritten,
		RowsReturned:        rows,
		ResultChecksum:      checksum,
		PlanHash:            record[14],
		ErrorKind:           record[15],
	}, nil
}
