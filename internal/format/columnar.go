package format

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/stratabench/stratabench/internal/dataset"
	"github.com/stratabench/stratabench/internal/errors"
	"github.com/stratabench/stratabench/pkg/types"
)

// The columnar encoding is Parquet with the Snappy codec. The codec is
// fixed: varying it would add an uncontrolled axis to the experiment.

func (s *Store) parquetPath(table string) string {
	return filepath.Join(s.encodingDir(types.EncodingColumnar), table+".parquet")
}

func (s *Store) writeFactsParquet(facts []dataset.FactRow) (*Artifact, error) {
	path := s.parquetPath(dataset.FactTableName)
	if err := writeParquet(path, facts); err != nil {
		return nil, err
	}
	return fileArtifact(dataset.FactTableName, types.EncodingColumnar, path, int64(len(facts)))
}

func (s *Store) writeDimsParquet(dims []dataset.DimRow) (*Artifact, error) {
	path := s.parquetPath(dataset.DimTableName)
	if err := writeParquet(path, dims); err != nil {
		return nil, err
	}
	return fileArtifact(dataset.DimTableName, types.EncodingColumnar, path, int64(len(dims)))
}

func writeParquet[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewWriteError("creating encoding directory", err)
	}

	// os.Create truncates, which keeps the write idempotent.
	f, err := os.Create(path)
	if err != nil {
		return errors.NewWriteError(fmt.Sprintf("creating %s", path), err)
	}

	w := parquet.NewGenericWriter[T](f, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return errors.NewWriteError(fmt.Sprintf("writing %s", path), err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return errors.NewWriteError(fmt.Sprintf("closing %s", path), err)
	}
	if err := f.Close(); err != nil {
		return errors.NewWriteError(fmt.Sprintf("closing %s", path), err)
	}
	return nil
}

func (s *Store) readFactsParquet() ([]dataset.FactRow, *ScanStats, error) {
	return readParquet[dataset.FactRow](s.parquetPath(dataset.FactTableName))
}

func (s *Store) readDimsParquet() ([]dataset.DimRow, *ScanStats, error) {
	return readParquet[dataset.DimRow](s.parquetPath(dataset.DimTableName))
}

func readParquet[T any](path string) ([]T, *ScanStats, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, errors.NewReadError(fmt.Sprintf("stat %s", path), err)
	}

	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, nil, errors.NewReadError(fmt.Sprintf("reading %s", path), err)
	}

	return rows, &ScanStats{BytesRead: info.Size(), RowsRead: int64(len(rows))}, nil
}
