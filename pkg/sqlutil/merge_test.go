package sqlutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSQLServerType(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"bool", true, "BIT"},
		{"int", 42, "BIGINT"},
		{"int64", int64(42), "BIGINT"},
		{"float", 1.5, "FLOAT"},
		{"time", time.Now(), "DATETIME2"},
		{"string", "x", "NVARCHAR(MAX)"},
		{"nil", nil, "NVARCHAR(MAX)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SQLServerType(tt.value))
		})
	}
}

func TestStageTableName(t *testing.T) {
	assert.Equal(t, "#stage_properties", StageTableName("properties"))
	assert.Equal(t, "#stage_dbo_sales", StageTableName("dbo.sales"))
}

func TestCreateStageTable(t *testing.T) {
	got := CreateStageTable("sales",
		[]string{"parcel_id", "sale_price", "qualified"},
		map[string]any{"parcel_id": "A-1", "sale_price": 100.0, "qualified": true})
	assert.Equal(t, "CREATE TABLE #stage_sales ([parcel_id] NVARCHAR(MAX), [sale_price] FLOAT, [qualified] BIT)", got)
}

func TestMergeFromStage(t *testing.T) {
	got := MergeFromStage("sales", []string{"parcel_id", "sale_date"}, []string{"sale_price"})
	want := "MERGE [sales] AS target USING #stage_sales AS source " +
		"ON target.[parcel_id] = source.[parcel_id] AND target.[sale_date] = source.[sale_date] " +
		"WHEN MATCHED THEN UPDATE SET target.[sale_price] = source.[sale_price] " +
		"WHEN NOT MATCHED THEN INSERT ([parcel_id], [sale_date], [sale_price]) " +
		"VALUES (source.[parcel_id], source.[sale_date], source.[sale_price]);"
	assert.Equal(t, want, got)
}
