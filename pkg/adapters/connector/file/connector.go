package file

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/export"
	"github.com/parcelworks/parcelsync/pkg/models"
)

// Connector serves flat-file sources and targets. Reads support CSV,
// JSON, and Excel; writes additionally support GeoJSON and Shapefile via
// the exporter.
type Connector struct {
	path   string
	format export.Format
}

// FromMap creates a Connector from a generic data source config map. The
// format defaults from the file extension when not given explicitly.
func FromMap(config map[string]any) (*Connector, error) {
	path, ok := config["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("path is required")
	}

	formatStr, _ := config["format"].(string)
	if formatStr == "" {
		formatStr = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	format, err := export.ParseFormat(formatStr)
	if err != nil {
		return nil, err
	}

	return &Connector{path: path, format: format}, nil
}

// Ping verifies the file's directory exists. The file itself may not exist
// yet when the connector is a pure export target.
func (c *Connector) Ping(ctx context.Context) error {
	dir := filepath.Dir(c.path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("file backend directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("file backend parent %q is not a directory", dir)
	}
	return nil
}

func (c *Connector) Kind() models.BackendType { return models.BackendFile }

func (c *Connector) Path() string { return c.path }

func (c *Connector) Close() error { return nil }

// ReadAll extracts every row plus column order from the file.
func (c *Connector) ReadAll(ctx context.Context) ([]models.Row, []string, error) {
	switch c.format {
	case export.FormatCSV:
		return c.readCSV()
	case export.FormatJSON:
		return c.readJSON()
	case export.FormatExcel:
		return c.readExcel()
	}
	return nil, nil, fmt.Errorf("format %q does not support extraction", c.format)
}

// ReplaceAll overwrites the destination wholesale.
func (c *Connector) ReplaceAll(ctx context.Context, columns []string, rows []models.Row) error {
	return export.Write(c.path, c.format, columns, rows)
}

func (c *Connector) readCSV() ([]models.Row, []string, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv file: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	columns := records[0]
	var rows []models.Row
	for _, record := range records[1:] {
		row := make(models.Row, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, columns, nil
}

func (c *Connector) readJSON() ([]models.Row, []string, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, nil, fmt.Errorf("read json file: %w", err)
	}

	var rows []models.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, nil, fmt.Errorf("parse json file: %w", err)
	}

	// JSON objects carry no column order; derive a stable one.
	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for _, col := range models.SortedColumns(row) {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}
	return rows, columns, nil
}

func (c *Connector) readExcel() ([]models.Row, []string, error) {
	f, err := excelize.OpenFile(c.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("excel file has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read excel sheet: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	columns := records[0]
	var rows []models.Row
	for _, record := range records[1:] {
		row := make(models.Row, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, columns, nil
}

var _ connector.FileConnector = (*Connector)(nil)
