package utils

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/mcptools/odata-bridge/internal/models"
)

func TestLegacyDateToISO(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"epoch", "/Date(0)/", "1970-01-01T00:00:00Z"},
		{"positive ms", "/Date(1672531200000)/", "2023-01-01T00:00:00Z"},
		{"negative ms", "/Date(-86400000)/", "1969-12-31T00:00:00Z"},
		{"with offset", "/Date(1672531200000+0100)/", "2023-01-01T00:00:00Z"},
		{"sub-second", "/Date(1123)/", "1970-01-01T00:00:01.123Z"},
		{"sub-second negative", "/Date(-86399877)/", "1969-12-31T00:00:00.123Z"},
		{"sub-second modern", "/Date(1672531200123)/", "2023-01-01T00:00:00.123Z"},
		{"not a date", "hello", "hello"},
		{"embedded not converted", "x/Date(0)/", "x/Date(0)/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LegacyDateToISO(tt.input); got != tt.want {
				t.Errorf("LegacyDateToISO(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestISOToLegacyDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"rfc3339", "2023-01-01T00:00:00Z", "/Date(1672531200000)/"},
		{"no zone", "2023-01-01T00:00:00", "/Date(1672531200000)/"},
		{"date only", "2023-01-01", "/Date(1672531200000)/"},
		{"unparseable", "not-a-date", "not-a-date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ISOToLegacyDate(tt.input); got != tt.want {
				t.Errorf("ISOToLegacyDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLegacyDateRoundTrip(t *testing.T) {
	for _, ms := range []int64{0, 1123, -1, -86399877, 1672531200123, 999} {
		legacy := fmt.Sprintf("/Date(%d)/", ms)
		iso := LegacyDateToISO(legacy)
		if got := ISOToLegacyDate(iso); got != legacy {
			t.Errorf("round trip %s -> %s -> %s", legacy, iso, got)
		}
	}
}

func TestParseLegacyDateOffset(t *testing.T) {
	ms, offset, ok := ParseLegacyDate("/Date(1000-0530)/")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if ms != 1000 {
		t.Errorf("ms = %d, want 1000", ms)
	}
	if offset != "-0530" {
		t.Errorf("offset = %q, want -0530", offset)
	}
}

func TestConvertDatesRecursive(t *testing.T) {
	input := map[string]interface{}{
		"CreatedAt": "/Date(0)/",
		"Name":      "unchanged",
		"Nested": map[string]interface{}{
			"ChangedOn": "/Date(86400000)/",
		},
		"Items": []interface{}{
			map[string]interface{}{"DueDate": "/Date(0)/"},
		},
	}

	got := ConvertDates(input, true)
	want := map[string]interface{}{
		"CreatedAt": "1970-01-01T00:00:00Z",
		"Name":      "unchanged",
		"Nested": map[string]interface{}{
			"ChangedOn": "1970-01-02T00:00:00Z",
		},
		"Items": []interface{}{
			map[string]interface{}{"DueDate": "1970-01-01T00:00:00Z"},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ConvertDates() = %#v, want %#v", got, want)
	}
}

func TestConvertDatesToLegacyUsesFieldName(t *testing.T) {
	input := map[string]interface{}{
		"DeliveryDate": "2023-01-01T00:00:00Z",
		"Description":  "2023-01-01T00:00:00Z", // not a date field
	}
	got := ConvertDates(input, false).(map[string]interface{})
	if got["DeliveryDate"] != "/Date(1672531200000)/" {
		t.Errorf("DeliveryDate = %v, want legacy literal", got["DeliveryDate"])
	}
	if got["Description"] != "2023-01-01T00:00:00Z" {
		t.Errorf("Description should stay ISO, got %v", got["Description"])
	}
}

func TestConvertDatesForWriteSchemaDriven(t *testing.T) {
	input := map[string]interface{}{
		"Availability": "2023-01-01T00:00:00Z", // Edm.DateTime despite the name
		"DeliveryDate": "2023-01-01T00:00:00Z", // Edm.String despite the name
	}

	got := ConvertDatesForWrite(input, map[string]bool{"Availability": true}).(map[string]interface{})
	if got["Availability"] != "/Date(1672531200000)/" {
		t.Errorf("Availability = %v, want legacy literal for a schema-marked field", got["Availability"])
	}
	if got["DeliveryDate"] != "2023-01-01T00:00:00Z" {
		t.Errorf("DeliveryDate should stay ISO when the schema marks it a string, got %v", got["DeliveryDate"])
	}

	// Empty map means the schema is known and has no date properties.
	got = ConvertDatesForWrite(input, map[string]bool{}).(map[string]interface{})
	if got["DeliveryDate"] != "2023-01-01T00:00:00Z" {
		t.Errorf("DeliveryDate = %v, want untouched with an empty field set", got["DeliveryDate"])
	}

	// Nil falls back to the name heuristic.
	got = ConvertDatesForWrite(input, nil).(map[string]interface{})
	if got["DeliveryDate"] != "/Date(1672531200000)/" {
		t.Errorf("DeliveryDate = %v, want legacy literal from the heuristic", got["DeliveryDate"])
	}
}

func TestIdentifyDateFields(t *testing.T) {
	et := &models.EntityType{
		Name: "Order",
		Properties: []*models.EntityProperty{
			{Name: "OrderID", Type: "Edm.String"},
			{Name: "Availability", Type: "Edm.DateTime"},
			{Name: "ChangedAt", Type: "Edm.DateTimeOffset"},
			{Name: "PickupSlot", Type: "Edm.Time"},
			{Name: "DeliveryDate", Type: "Edm.String"},
		},
	}

	got := IdentifyDateFields(et)
	want := map[string]bool{"Availability": true, "ChangedAt": true, "PickupSlot": true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("IdentifyDateFields() = %v, want %v", got, want)
	}

	if IdentifyDateFields(nil) != nil {
		t.Error("nil entity type should yield nil")
	}
}
