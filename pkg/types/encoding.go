// Package types provides core data types for Stratabench.
package types

// Encoding identifies a physical storage representation of a table.
// The set is closed: the benchmark matrix is generated by enumerating it.
type Encoding string

const (
	// EncodingRow is the row-oriented uncompressed representation (CSV).
	EncodingRow Encoding = "row"

	// EncodingColumnar is the column-oriented compressed representation
	// (Parquet with the Snappy codec).
	EncodingColumnar Encoding = "columnar"

	// EncodingVersioned is the versioned, indexed representation: sorted
	// Snappy-compressed segments tracked in a SQLite manifest with zone
	// maps and bloom filters for data skipping.
	EncodingVersioned Encoding = "versioned"
)

// AllEncodings returns every encoding in a stable order.
func AllEncodings() []Encoding {
	return []Encoding{EncodingRow, EncodingColumnar, EncodingVersioned}
}

// Valid reports whether e is one of the enumerated encodings.
func (e Encoding) Valid() bool {
	switch e {
	case EncodingRow, EncodingColumnar, EncodingVersioned:
		return true
	}
	return false
}
