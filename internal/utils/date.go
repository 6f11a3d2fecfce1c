package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mcptools/odata-bridge/internal/models"
)

// Legacy OData v2 date literal: /Date(milliseconds[±HHMM])/
var legacyDateRegex = regexp.MustCompile(`^/Date\((-?\d+)([\+\-]\d{4})?\)/$`)

// Field name fragments that usually carry date or time values in SAP
// services. Matching is case-insensitive.
var dateFieldPatterns = []string{
	"date", "time", "timestamp",
	"created", "modified", "updated", "changed", "posted",
	"valid", "expired", "due", "delivery",
	"start", "end", "from", "to", "since", "until",
}

// IsLegacyDate reports whether s is a /Date(ms)/ literal.
func IsLegacyDate(s string) bool {
	return legacyDateRegex.MatchString(s)
}

// ParseLegacyDate extracts the epoch milliseconds and optional ±HHMM offset
// from a legacy date literal.
func ParseLegacyDate(s string) (ms int64, offset string, ok bool) {
	m := legacyDateRegex.FindStringSubmatch(s)
	if len(m) < 2 {
		return 0, "", false
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	if len(m) > 2 {
		offset = m[2]
	}
	return ms, offset, true
}

// LegacyDateToISO converts a legacy date literal to RFC 3339 UTC. Values
// that are not legacy literals come back unchanged. Millisecond precision
// is kept so the literal survives a round trip through ISOToLegacyDate.
func LegacyDateToISO(legacy string) string {
	ms, _, ok := ParseLegacyDate(legacy)
	if !ok {
		return legacy
	}
	t := time.UnixMilli(ms).UTC()
	if ms%1000 == 0 {
		return t.Format(time.RFC3339)
	}
	return t.Format("2006-01-02T15:04:05.000Z07:00")
}

// ISOToLegacyDate converts an ISO 8601 datetime (or bare date) to the
// legacy /Date(ms)/ form. Unparseable values come back unchanged.
func ISOToLegacyDate(iso string) string {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, iso); err == nil {
			return fmt.Sprintf("/Date(%d)/", t.UnixMilli())
		}
	}
	return iso
}

// IsISODateTime reports whether s looks like an ISO 8601 date or datetime.
func IsISODateTime(s string) bool {
	if len(s) < 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	if len(s) == 10 {
		return true
	}
	return s[10] == 'T' || s[10] == ' '
}

// IsLikelyDateField reports whether a property name suggests a date value.
func IsLikelyDateField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, pattern := range dateFieldPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// IdentifyDateFields returns the names of an entity type's date and time
// typed properties. The write path converts exactly these fields. A type
// without any yields an empty map (convert nothing); only a nil type yields
// nil, which makes ConvertDatesForWrite fall back to the name heuristic.
func IdentifyDateFields(entityType *models.EntityType) map[string]bool {
	if entityType == nil {
		return nil
	}
	fields := make(map[string]bool)
	for _, prop := range entityType.Properties {
		switch prop.Type {
		case "Edm.DateTime", "Edm.DateTimeOffset", "Edm.Time":
			fields[prop.Name] = true
		}
	}
	return fields
}

// ConvertDates walks an arbitrary decoded JSON value and converts date
// representations. With toISO true, legacy literals become RFC 3339; with
// toISO false it behaves like ConvertDatesForWrite without schema
// information.
func ConvertDates(value interface{}, toISO bool) interface{} {
	if toISO {
		return convertReadValue(value)
	}
	return ConvertDatesForWrite(value, nil)
}

func convertReadValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		if IsLegacyDate(v) {
			return LegacyDateToISO(v)
		}
		return v
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = convertReadValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = convertReadValue(item)
		}
		return out
	default:
		return value
	}
}

// ConvertDatesForWrite converts ISO date strings in an outbound payload to
// legacy literals. Fields listed in dateFields (the schema's date and time
// typed properties, see IdentifyDateFields) convert regardless of name;
// with a nil dateFields the name heuristic decides, which keeps synthesized
// and service-document schemas working. Legacy literals pass through
// untouched either way.
func ConvertDatesForWrite(value interface{}, dateFields map[string]bool) interface{} {
	return convertWriteValue(value, dateFields, "")
}

func convertWriteValue(value interface{}, dateFields map[string]bool, fieldName string) interface{} {
	switch v := value.(type) {
	case string:
		if !IsISODateTime(v) {
			return v
		}
		if dateFields != nil {
			if dateFields[fieldName] {
				return ISOToLegacyDate(v)
			}
			return v
		}
		if IsLikelyDateField(fieldName) {
			return ISOToLegacyDate(v)
		}
		return v
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = convertWriteValue(item, dateFields, k)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = convertWriteValue(item, dateFields, "")
		}
		return out
	default:
		return value
	}
}

// FormatDateForOData renders t for the given Edm type on the write path.
func FormatDateForOData(t time.Time, edmType string, legacy bool) string {
	switch edmType {
	case "Edm.DateTime":
		if legacy {
			return fmt.Sprintf("/Date(%d)/", t.UnixMilli())
		}
		return t.Format("2006-01-02T15:04:05")
	case "Edm.DateTimeOffset":
		if legacy {
			_, offset := t.Zone()
			sign := "+"
			if offset < 0 {
				sign = "-"
				offset = -offset
			}
			return fmt.Sprintf("/Date(%d%s%02d%02d)/", t.UnixMilli(), sign, offset/3600, (offset%3600)/60)
		}
		return t.Format(time.RFC3339)
	case "Edm.Time":
		return fmt.Sprintf("PT%dH%dM%dS", t.Hour(), t.Minute(), t.Second())
	default:
		return t.Format(time.RFC3339)
	}
}
