package regions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/jobrunner/mapcore/internal/domain"
)

// GeoPackage SRS identifiers accepted as longitude/latitude.
const (
	srsWGS84               = 4326
	srsUndefinedGeographic = 0
)

// GeoPackageReader reads regions from the feature tables of a GeoPackage.
// Only tables in WGS84 are accepted; nothing is reprojected.
type GeoPackageReader struct{}

// NewGeoPackageReader creates a GeoPackage region reader.
func NewGeoPackageReader() *GeoPackageReader {
	return &GeoPackageReader{}
}

// Supports reports whether path is a GeoPackage.
func (r *GeoPackageReader) Supports(path string) bool {
	return hasExt(path, ".gpkg")
}

// featureTable describes one entry of gpkg_geometry_columns.
type featureTable struct {
	Name           string
	GeometryColumn string
	GeometryType   string
	SRID           int
}

// ReadRegions reads every polygon feature of every feature table. Tables in
// other projections are reported and skipped.
func (r *GeoPackageReader) ReadRegions(ctx context.Context, path string) ([]domain.RegionCandidate, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}

	tables, err := readFeatureTables(ctx, db)
	if err != nil {
		return nil, err
	}

	var (
		out  []domain.RegionCandidate
		errs []error
	)
	for _, t := range tables {
		if t.SRID != srsWGS84 && t.SRID != srsUndefinedGeographic {
			errs = append(errs, fmt.Errorf("table %s srs %d: %w", t.Name, t.SRID, domain.ErrUnsupportedProjection))
			continue
		}
		candidates, err := readTable(ctx, db, t)
		if err != nil {
			errs = append(errs, fmt.Errorf("table %s: %w", t.Name, err))
			continue
		}
		out = append(out, candidates...)
	}

	if len(out) == 0 {
		errs = append(errs, fmt.Errorf("%w: no polygon features in %s", domain.ErrInvalidGeometry, path))
		return nil, errors.Join(errs...)
	}
	return out, errors.Join(errs...)
}

func readFeatureTables(ctx context.Context, db *sql.DB) ([]featureTable, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT g.table_name, g.column_name, g.geometry_type_name, g.srs_id
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON c.table_name = g.table_name
		WHERE c.data_type = 'features'
		ORDER BY g.table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("reading feature tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []featureTable
	for rows.Next() {
		var t featureTable
		if err := rows.Scan(&t.Name, &t.GeometryColumn, &t.GeometryType, &t.SRID); err != nil {
			return nil, fmt.Errorf("scanning feature table: %w", err)
		}
		switch strings.ToUpper(t.GeometryType) {
		case "POLYGON", "MULTIPOLYGON", "GEOMETRY":
			tables = append(tables, t)
		}
	}
	return tables, rows.Err()
}

func readTable(ctx context.Context, db *sql.DB, t featureTable) ([]domain.RegionCandidate, error) {
	nameCol, err := nameColumn(ctx, db, t.Name)
	if err != nil {
		return nil, err
	}
	nameExpr := "NULL"
	if nameCol != "" {
		nameExpr = quote(nameCol)
	}

	query := fmt.Sprintf(`SELECT rowid, %s, %s FROM %s WHERE %s IS NOT NULL`,
		quote(t.GeometryColumn), nameExpr, quote(t.Name), quote(t.GeometryColumn),
	) //#nosec G201 -- identifiers from gpkg_geometry_columns, quoted
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.RegionCandidate
	for rows.Next() {
		var (
			rowid int64
			blob  []byte
			name  sql.NullString
		)
		if err := rows.Scan(&rowid, &blob, &name); err != nil {
			return nil, err
		}
		g, err := decodeGeometry(blob)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowid, err)
		}
		mp, ok := domain.ToMultiPolygon(g)
		if !ok {
			continue
		}
		n := strings.TrimSpace(name.String)
		if n == "" {
			n = fmt.Sprintf("%s %d", t.Name, rowid)
		}
		out = append(out, domain.RegionCandidate{Name: n, Geometry: mp})
	}
	return out, rows.Err()
}

// nameColumn returns the first text column whose name matches a name key.
func nameColumn(ctx context.Context, db *sql.DB, table string) (string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quote(table))) //#nosec G201 -- quoted identifier
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()

	columns := make(map[string]string)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &primaryKey); err != nil {
			return "", err
		}
		if strings.HasPrefix(strings.ToUpper(typ), "TEXT") {
			columns[strings.ToLower(name)] = name
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	for _, key := range nameKeys {
		if col, ok := columns[key]; ok {
			return col, nil
		}
	}
	return "", nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// decodeGeometry strips the GeoPackage binary header and decodes the WKB
// payload behind it.
func decodeGeometry(blob []byte) (orb.Geometry, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, fmt.Errorf("%w: not a GeoPackage geometry blob", domain.ErrInvalidGeometry)
	}
	flags := blob[3]
	if flags&0x20 != 0 {
		return nil, fmt.Errorf("%w: extended GeoPackage geometry", domain.ErrUnsupported)
	}

	var envelope int
	switch (flags >> 1) & 0x07 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, fmt.Errorf("%w: bad envelope indicator", domain.ErrInvalidGeometry)
	}

	offset := 8 + envelope
	if len(blob) < offset {
		return nil, fmt.Errorf("%w: truncated header", domain.ErrInvalidGeometry)
	}
	g, err := wkb.Unmarshal(blob[offset:])
	if err != nil {
		return nil, errors.Join(domain.ErrInvalidGeometry, err)
	}
	return g, nil
}
