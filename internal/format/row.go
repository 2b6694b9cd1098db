package format

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/stratabench/stratabench/internal/dataset"
	"github.com/stratabench/stratabench/internal/errors"
	"github.com/stratabench/stratabench/pkg/types"
)

// The row encoding is plain CSV with a header row and no compression,
// matching the row-oriented baseline of the benchmark.

var factHeader = []string{
	dataset.ColSaleID, dataset.ColCustomerID, dataset.ColQuantity,
	dataset.ColAmountCents, dataset.ColSaleDay, dataset.ColRegion,
}

var dimHeader = []string{
	dataset.ColCustomerID, dataset.ColSegment, dataset.ColRegion, dataset.ColSignupDay,
}

func (s *Store) csvPath(table string) string {
	return filepath.Join(s.encodingDir(types.EncodingRow), table+".csv")
}

func (s *Store) writeFactsCSV(facts []dataset.FactRow) (*Artifact, error) {
	path := s.csvPath(dataset.FactTableName)
	w, finish, err := openCSV(path, factHeader)
	if err != nil {
		return nil, err
	}

	for _, f := range facts {
		rec := []string{
			strconv.FormatInt(f.SaleID, 10),
			strconv.FormatInt(f.CustomerID, 10),
			strconv.FormatInt(int64(f.Quantity), 10),
			strconv.FormatInt(f.AmountCents, 10),
			strconv.FormatInt(int64(f.SaleDay), 10),
			f.Region,
		}
		if err := w.Write(rec); err != nil {
			return nil, errors.NewWriteError("writing fact row", err)
		}
	}
	if err := finish(); err != nil {
		return nil, err
	}

	return fileArtifact(dataset.FactTableName, types.EncodingRow, path, int64(len(facts)))
}

func (s *Store) writeDimsCSV(dims []dataset.DimRow) (*Artifact, error) {
	path := s.csvPath(dataset.DimTableName)
	w, finish, err := openCSV(path, dimHeader)
	if err != nil {
		return nil, err
	}

	for _, d := range dims {
		rec := []string{
			strconv.FormatInt(d.CustomerID, 10),
			d.Segment,
			d.Region,
			strconv.FormatInt(int64(d.SignupDay), 10),
		}
		if err := w.Write(rec); err != nil {
			return nil, errors.NewWriteError("writing dim row", err)
		}
	}
	if err := finish(); err != nil {
		return nil, err
	}

	return fileArtifact(dataset.DimTableName, types.EncodingRow, path, int64(len(dims)))
}

// openCSV creates (or truncates) the file and writes the header.
// Truncation is what makes the row encoding idempotent.
func openCSV(path string, header []string) (*csv.Writer, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, errors.NewWriteError("creating encoding directory", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.NewWriteError(fmt.Sprintf("creating %s", path), err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, nil, errors.NewWriteError("writing header", err)
	}

	finish := func() error {
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return errors.NewWriteError("flushing csv", err)
		}
		if err := f.Close(); err != nil {
			return errors.NewWriteError("closing csv", err)
		}
		return nil
	}
	return w, finish, nil
}

func (s *Store) readFactsCSV() ([]dataset.FactRow, *ScanStats, error) {
	path := s.csvPath(dataset.FactTableName)
	records, stats, err := readCSV(path, len(factHeader))
	if err != nil {
		return nil, nil, err
	}

	facts := make([]dataset.FactRow, 0, len(records))
	for i, rec := range records {
		saleID, err1 := strconv.ParseInt(rec[0], 10, 64)
		custID, err2 := strconv.ParseInt(rec[1], 10, 64)
		qty, err3 := strconv.ParseInt(rec[2], 10, 32)
		amount, err4 := strconv.ParseInt(rec[3], 10, 64)
		day, err5 := strconv.ParseInt(rec[4], 10, 32)
		if err := firstError(err1, err2, err3, err4, err5); err != nil {
			return nil, nil, errors.NewReadError(fmt.Sprintf("parsing fact row %d", i+1), err)
		}
		facts = append(facts, dataset.FactRow{
			SaleID:      saleID,
			CustomerID:  custID,
			Quantity:    int32(qty),
			AmountCents: amount,
			SaleDay:     int32(day),
			Region:      rec[5],
		})
	}
	stats.RowsRead = int64(len(facts))
	return facts, stats, nil
}

func (s *Store) readDimsCSV() ([]dataset.DimRow, *ScanStats, error) {
	path := s.csvPath(dataset.DimTableName)
	records, stats, err := readCSV(path, len(dimHeader))
	if err != nil {
		return nil, nil, err
	}

	dims := make([]dataset.DimRow, 0, len(records))
	for i, rec := range records {
		custID, err1 := strconv.ParseInt(rec[0], 10, 64)
		day, err2 := strconv.ParseInt(rec[3], 10, 32)
		if err := firstError(err1, err2); err != nil {
			return nil, nil, errors.NewReadError(fmt.Sprintf("parsing dim row %d", i+1), err)
		}
		dims = append(dims, dataset.DimRow{
			CustomerID: custID,
			Segment:    rec[1],
			Region:     rec[2],
			SignupDay:  int32(day),
		})
	}
	stats.RowsRead = int64(len(dims))
	return dims, stats, nil
}

// readCSV reads all data records (header stripped) and accounts the whole
// file as bytes read: a row encoding has no way to read less.
func readCSV(path string, fields int) ([][]string, *ScanStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.NewReadError(fmt.Sprintf("opening %s", path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, errors.NewReadError(fmt.Sprintf("stat %s", path), err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = fields
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, errors.NewReadError(fmt.Sprintf("reading %s", path), err)
	}
	if len(records) == 0 {
		return nil, nil, errors.NewReadError(fmt.Sprintf("%s is missing its header", path), nil)
	}

	return records[1:], &ScanStats{BytesRead: info.Size()}, nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
