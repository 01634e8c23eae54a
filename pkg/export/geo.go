package export

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/parcelworks/parcelsync/pkg/models"
)

// Latitude/longitude column names recognized for geometry building.
const (
	latColumn = "latitude"
	lonColumn = "longitude"
)

// Coordinate extracts a float coordinate from a row value.
func coordinate(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	}
	return 0, false
}

// BuildFeatureCollection converts rows with latitude/longitude into a
// GeoJSON FeatureCollection of Point features. Rows without valid
// coordinates are skipped; all other columns become feature properties.
func BuildFeatureCollection(columns []string, rows []models.Row) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, row := range rows {
		lat, latOK := coordinate(row[latColumn])
		lon, lonOK := coordinate(row[lonColumn])
		if !latOK || !lonOK {
			continue
		}

		feature := geojson.NewFeature(orb.Point{lon, lat})
		for _, col := range columns {
			if col == latColumn || col == lonColumn {
				continue
			}
			feature.Properties[col] = row[col]
		}
		fc.Append(feature)
	}

	return fc
}

func writeGeoJSON(path string, columns []string, rows []models.Row) error {
	fc := BuildFeatureCollection(columns, rows)

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write geojson file: %w", err)
	}
	return nil
}

func writeShapefile(path string, columns []string, rows []models.Row) error {
	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return fmt.Errorf("create shapefile: %w", err)
	}
	defer w.Close()

	// DBF attribute columns: everything except the coordinate pair.
	var attrCols []string
	for _, col := range columns {
		if col != latColumn && col != lonColumn {
			attrCols = append(attrCols, col)
		}
	}

	fields := make([]shp.Field, len(attrCols))
	for i, col := range attrCols {
		fields[i] = shp.StringField(dbfFieldName(col), 254)
	}
	if err := w.SetFields(fields); err != nil {
		return fmt.Errorf("set shapefile fields: %w", err)
	}

	written := 0
	for _, row := range rows {
		lat, latOK := coordinate(row[latColumn])
		lon, lonOK := coordinate(row[lonColumn])
		if !latOK || !lonOK {
			continue
		}

		w.Write(&shp.Point{X: lon, Y: lat})
		for i, col := range attrCols {
			if err := w.WriteAttribute(written, i, formatValue(row[col])); err != nil {
				return fmt.Errorf("write shapefile attribute: %w", err)
			}
		}
		written++
	}

	return nil
}

// dbfFieldName truncates a column name to the 10-character DBF limit.
func dbfFieldName(name string) string {
	upper := strings.ToUpper(name)
	if len(upper) > 10 {
		return upper[:10]
	}
	return upper
}
