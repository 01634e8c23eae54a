package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/parcelworks/parcelsync/pkg/models"
)

// Format identifies an export file format.
type Format string

const (
	FormatCSV       Format = "csv"
	FormatJSON      Format = "json"
	FormatExcel     Format = "xlsx"
	FormatGeoJSON   Format = "geojson"
	FormatShapefile Format = "shp"
)

// ParseFormat validates a format string, accepting common aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "xlsx", "excel":
		return FormatExcel, nil
	case "geojson":
		return FormatGeoJSON, nil
	case "shp", "shapefile":
		return FormatShapefile, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Write replaces the destination file with the given rows. Column order is
// preserved in formats that have one. GeoJSON and Shapefile formats require
// latitude/longitude columns.
func Write(path string, format Format, columns []string, rows []models.Row) error {
	switch format {
	case FormatCSV:
		return writeCSV(path, columns, rows)
	case FormatJSON:
		return writeJSON(path, columns, rows)
	case FormatExcel:
		return writeExcel(path, columns, rows)
	case FormatGeoJSON:
		return writeGeoJSON(path, columns, rows)
	case FormatShapefile:
		return writeShapefile(path, columns, rows)
	}
	return fmt.Errorf("unknown export format %q", format)
}

func writeCSV(path string, columns []string, rows []models.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = formatValue(row[col])
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

func writeJSON(path string, columns []string, rows []models.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	defer f.Close()

	// Emit an empty array rather than null for zero rows.
	out := make([]models.Row, 0, len(rows))
	out = append(out, rows...)

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func writeExcel(path string, columns []string, rows []models.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"

	header := make([]any, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write excel header: %w", err)
	}

	for i, row := range rows {
		values := make([]any, len(columns))
		for j, col := range columns {
			values[j] = row[col]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("excel cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write excel row: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save excel file: %w", err)
	}
	return nil
}

func formatValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
