package models

import (
	"reflect"
	"testing"
)

func TestRecordKey(t *testing.T) {
	sale := CanonicalSchema{
		RecordType: RecordTypeSale,
		Fields: []CanonicalField{
			{Name: "parcel_id", Type: FieldTypeString, Key: true, Required: true},
			{Name: "sale_date", Type: FieldTypeDatetime, Key: true, Required: true},
			{Name: "sale_price", Type: FieldTypeFloat},
		},
	}

	row := Row{"parcel_id": "12-34-56", "sale_date": "2024-01-15", "sale_price": 300000.0}
	key := sale.RecordKey(row)
	want := "parcel_id=12-34-56|sale_date=2024-01-15"
	if key != want {
		t.Errorf("RecordKey = %q, want %q", key, want)
	}

	parsed := ParseRecordKey(key)
	if !reflect.DeepEqual(parsed, map[string]string{"parcel_id": "12-34-56", "sale_date": "2024-01-15"}) {
		t.Errorf("ParseRecordKey = %v", parsed)
	}
}

func TestSchemaFieldHelpers(t *testing.T) {
	s := CanonicalSchema{
		Fields: []CanonicalField{
			{Name: "a", Key: true},
			{Name: "b"},
			{Name: "c", Key: true},
		},
	}

	if got := s.KeyFields(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("KeyFields = %v", got)
	}
	if got := s.NonKeyFields(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("NonKeyFields = %v", got)
	}
	if got := s.FieldNames(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("FieldNames = %v", got)
	}

	if _, ok := s.Field("b"); !ok {
		t.Error("Field(b) not found")
	}
	if _, ok := s.Field("z"); ok {
		t.Error("Field(z) unexpectedly found")
	}
}

func TestParseRecordType(t *testing.T) {
	if rt, err := ParseRecordType("Property"); err != nil || rt != RecordTypeProperty {
		t.Errorf("ParseRecordType(Property) = %v, %v", rt, err)
	}
	if _, err := ParseRecordType("lease"); err == nil {
		t.Error("expected error for unknown record type")
	}
}

func TestSortedColumns(t *testing.T) {
	cols := SortedColumns(Row{"z": 1, "a": 2, "m": 3})
	if !reflect.DeepEqual(cols, []string{"a", "m", "z"}) {
		t.Errorf("SortedColumns = %v", cols)
	}
}
