package format

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stratabench/stratabench/internal/bloom"
)

// The versioned encoding's manifest is a SQLite catalog tracking every
// write as a new version. Segments carry zone maps (per-column min/max)
// and bloom filters so scans can skip segments that cannot match a
// predicate. Prior versions are never rewritten; the current pointer moves.

const manifestSchema = `
CREATE TABLE IF NOT EXISTS versions (
	table_name     TEXT NOT NULL,
	version        INTEGER NOT NULL,
	clustering_key TEXT NOT NULL,
	row_count      INTEGER NOT NULL,
	created_at     INTEGER NOT NULL,
	current        INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (table_name, version)
);

CREATE TABLE IF NOT EXISTS segments (
	table_name TEXT NOT NULL,
	version    INTEGER NOT NULL,
	seq        INTEGER NOT NULL,
	path       TEXT NOT NULL,
	row_count  INTEGER NOT NULL,
	size_bytes INTEGER NOT NULL,
	zone_json  TEXT NOT NULL,
	PRIMARY KEY (table_name, version, seq)
);

CREATE TABLE IF NOT EXISTS segment_blooms (
	table_name  TEXT NOT NULL,
	version     INTEGER NOT NULL,
	seq         INTEGER NOT NULL,
	column_name TEXT NOT NULL,
	bloom       BLOB NOT NULL,
	PRIMARY KEY (table_name, version, seq, column_name)
);
`

// zone is a per-segment min/max range for one column. Values are strings;
// integer columns are stored zero-padded so lexical order matches numeric.
type zone struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// segmentMeta is one manifest segment row.
type segmentMeta struct {
	Seq       int
	Path      string
	RowCount  int64
	SizeBytes int64
	Zones     map[string]zone
}

type manifest struct {
	db *sql.DB
}

func openManifest(path string) (*manifest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("manifest: creating directory for %s: %w", path, err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: enabling WAL: %w", err)
	}
	if _, err := db.Exec(manifestSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: initializing schema: %w", err)
	}
	return &manifest{db: db}, nil
}

func (m *manifest) Close() error {
	return m.db.Close()
}

// nextVersion allocates the next version number for a table.
func (m *manifest) nextVersion(ctx context.Context, table string) (int64, error) {
	var max sql.NullInt64
	err := m.db.QueryRowContext(ctx,
		"SELECT MAX(version) FROM versions WHERE table_name = ?", table).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("manifest: reading max version for %s: %w", table, err)
	}
	if !max.Valid {
		return 1, nil
	}
	return max.Int64 + 1, nil
}

// addSegment registers one segment of an in-progress version.
func (m *manifest) addSegment(ctx context.Context, table string, version int64, seg segmentMeta, blooms map[string]*bloom.Filter) error {
	zoneJSON, err := json.Marshal(seg.Zones)
	if err != nil {
		return fmt.Errorf("manifest: marshalling zone map: %w", err)
	}

	_, err = m.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO segments
			(table_name, version, seq, path, row_count, size_bytes, zone_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		table, version, seg.Seq, seg.Path, seg.RowCount, seg.SizeBytes, string(zoneJSON))
	if err != nil {
		return fmt.Errorf("manifest: inserting segment %d: %w", seg.Seq, err)
	}

	for column, f := range blooms {
		_, err = m.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO segment_blooms
				(table_name, version, seq, column_name, bloom)
			 VALUES (?, ?, ?, ?, ?)`,
			table, version, seg.Seq, column, f.Marshal())
		if err != nil {
			return fmt.Errorf("manifest: inserting bloom for %s: %w", column, err)
		}
	}
	return nil
}

// commitVersion makes a fully written version current. The flip happens in
// one transaction so readers never observe a table without a current
// version.
func (m *manifest) commitVersion(ctx context.Context, table string, version int64, clusteringKey []string, rowCount int64) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: beginning commit: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE versions SET current = 0 WHERE table_name = ?", table); err != nil {
		return fmt.Errorf("manifest: clearing current flag: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO versions (table_name, version, clustering_key, row_count, created_at, current)
		 VALUES (?, ?, ?, ?, ?, 1)`,
		table, version, strings.Join(clusteringKey, ","), rowCount, time.Now().Unix()); err != nil {
		return fmt.Errorf("manifest: inserting version %d: %w", version, err)
	}

	return tx.Commit()
}

// currentVersion resolves the current version of a table.
func (m *manifest) currentVersion(ctx context.Context, table string) (int64, []string, error) {
	var version int64
	var clusteringKey string
	err := m.db.QueryRowContext(ctx,
		"SELECT version, clustering_key FROM versions WHERE table_name = ? AND current = 1",
		table).Scan(&version, &clusteringKey)
	if err == sql.ErrNoRows {
		return 0, nil, fmt.Errorf("manifest: no current version for table %s", table)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("manifest: reading current version for %s: %w", table, err)
	}
	return version, strings.Split(clusteringKey, ","), nil
}

// segments lists the segments of one version in sequence order.
func (m *manifest) segments(ctx context.Context, table string, version int64) ([]segmentMeta, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT seq, path, row_count, size_bytes, zone_json
		 FROM segments WHERE table_name = ? AND version = ? ORDER BY seq`,
		table, version)
	if err != nil {
		return nil, fmt.Errorf("manifest: listing segments for %s v%d: %w", table, version, err)
	}
	defer rows.Close()

	var out []segmentMeta
	for rows.Next() {
		var seg segmentMeta
		var zoneJSON string
		if err := rows.Scan(&seg.Seq, &seg.Path, &seg.RowCount, &seg.SizeBytes, &zoneJSON); err != nil {
			return nil, fmt.Errorf("manifest: scanning segment: %w", err)
		}
		if err := json.Unmarshal([]byte(zoneJSON), &seg.Zones); err != nil {
			return nil, fmt.Errorf("manifest: decoding zone map: %w", err)
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// segmentBloom loads one segment's bloom filter for a column.
// Returns nil, nil when the column has no filter.
func (m *manifest) segmentBloom(ctx context.Context, table string, version int64, seq int, column string) (*bloom.Filter, error) {
	var data []byte
	err := m.db.QueryRowContext(ctx,
		`SELECT bloom FROM segment_blooms
		 WHERE table_name = ? AND version = ? AND seq = ? AND column_name = ?`,
		table, version, seq, column).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: reading bloom for %s/%s: %w", table, column, err)
	}
	return bloom.Unmarshal(data)
}

// currentFootprint sums the storage footprint of every table's current
// version: segment bytes plus the index metadata (zone maps and bloom
// filters) attached to those segments. Superseded versions are excluded,
// so the footprint of identical content is stable across rewrites.
func (m *manifest) currentFootprint(ctx context.Context) (int64, error) {
	var segBytes int64
	err := m.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(s.size_bytes + LENGTH(s.zone_json)), 0)
		 FROM segments s
		 JOIN versions v ON v.table_name = s.table_name AND v.version = s.version
		 WHERE v.current = 1`).Scan(&segBytes)
	if err != nil {
		return 0, fmt.Errorf("manifest: summing current segment bytes: %w", err)
	}

	var bloomBytes int64
	err = m.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(b.bloom)), 0)
		 FROM segment_blooms b
		 JOIN versions v ON v.table_name = b.table_name AND v.version = b.version
		 WHERE v.current = 1`).Scan(&bloomBytes)
	if err != nil {
		return 0, fmt.Errorf("manifest: summing current bloom bytes: %w", err)
	}

	return segBytes + bloomBytes, nil
}

// versionCount returns how many versions exist for a table.
func (m *manifest) versionCount(ctx context.Context, table string) (int64, error) {
	var n int64
	err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM versions WHERE table_name = ?", table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("manifest: counting versions for %s: %w", table, err)
	}
	return n, nil
}
