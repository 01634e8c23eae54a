package schema

import (
	"github.com/parcelworks/parcelsync/pkg/models"
)

// The three canonical record schemas. Every source table is normalized
// into exactly one of these before load; primary keys are stable across
// source systems.

var propertySchema = models.CanonicalSchema{
	RecordType: models.RecordTypeProperty,
	Fields: []models.CanonicalField{
		{Name: "parcel_id", Type: models.FieldTypeString, Key: true, Required: true},
		{Name: "situs_address", Type: models.FieldTypeString},
		{Name: "owner_name", Type: models.FieldTypeString},
		{Name: "property_class", Type: models.FieldTypeString},
		{Name: "land_area_sqft", Type: models.FieldTypeFloat},
		{Name: "living_area_sqft", Type: models.FieldTypeFloat},
		{Name: "year_built", Type: models.FieldTypeInt},
		{Name: "land_value", Type: models.FieldTypeFloat},
		{Name: "improvement_value", Type: models.FieldTypeFloat},
		{Name: "assessed_value", Type: models.FieldTypeFloat},
		{Name: "latitude", Type: models.FieldTypeFloat},
		{Name: "longitude", Type: models.FieldTypeFloat},
		{Name: "updated_at", Type: models.FieldTypeDatetime},
	},
}

var saleSchema = models.CanonicalSchema{
	RecordType: models.RecordTypeSale,
	Fields: []models.CanonicalField{
		{Name: "parcel_id", Type: models.FieldTypeString, Key: true, Required: true},
		{Name: "sale_date", Type: models.FieldTypeDatetime, Key: true, Required: true},
		{Name: "sale_price", Type: models.FieldTypeFloat},
		{Name: "buyer_name", Type: models.FieldTypeString},
		{Name: "seller_name", Type: models.FieldTypeString},
		{Name: "deed_type", Type: models.FieldTypeString},
		{Name: "qualified", Type: models.FieldTypeBoolean},
		{Name: "updated_at", Type: models.FieldTypeDatetime},
	},
}

var valuationSchema = models.CanonicalSchema{
	RecordType: models.RecordTypeValuation,
	Fields: []models.CanonicalField{
		{Name: "parcel_id", Type: models.FieldTypeString, Key: true, Required: true},
		{Name: "tax_year", Type: models.FieldTypeInt, Key: true, Required: true},
		{Name: "land_value", Type: models.FieldTypeFloat},
		{Name: "improvement_value", Type: models.FieldTypeFloat},
		{Name: "total_value", Type: models.FieldTypeFloat},
		{Name: "exemption_value", Type: models.FieldTypeFloat},
		{Name: "taxable_value", Type: models.FieldTypeFloat},
		{Name: "valuation_method", Type: models.FieldTypeString},
		{Name: "updated_at", Type: models.FieldTypeDatetime},
	},
}

// SchemaFor returns the canonical schema for a record type.
func SchemaFor(recordType models.RecordType) (*models.CanonicalSchema, bool) {
	switch recordType {
	case models.RecordTypeProperty:
		return &propertySchema, true
	case models.RecordTypeSale:
		return &saleSchema, true
	case models.RecordTypeValuation:
		return &valuationSchema, true
	}
	return nil, false
}
