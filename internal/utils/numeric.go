package utils

import (
	"strconv"
	"strings"
)

// Field name fragments that typically map to Edm.Decimal in SAP schemas.
var decimalFieldPatterns = []string{
	"quantity", "qty",
	"amount", "amt",
	"price", "cost",
	"value", "val",
	"total", "sum",
	"net", "gross",
	"tax", "vat",
	"discount", "disc",
	"rate", "percentage", "percent", "pct",
	"weight", "wgt",
	"volume", "vol",
	"length", "width", "height",
	"balance", "credit", "debit",
	"fee", "charge",
	"margin", "profit",
	"budget", "revenue",
	"units", "count",
}

// IsLikelyDecimalField reports whether a property name suggests Edm.Decimal.
func IsLikelyDecimalField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, pattern := range decimalFieldPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	for _, suffix := range []string{"_qty", "_amt", "_val", "_num"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// NumericToString renders a numeric value as a plain decimal string, never
// scientific notation. Non-numeric values come back unchanged. OData v2
// services reject JSON numbers for Edm.Decimal and Edm.Int64 properties.
func NumericToString(value interface{}) interface{} {
	switch v := value.(type) {
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return value
	}
}

// ConvertDecimalsForWrite walks an entity payload and stringifies numeric
// values in fields that look like decimals. System fields ($... and __...)
// pass through untouched.
func ConvertDecimalsForWrite(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		if strings.HasPrefix(key, "$") || strings.HasPrefix(key, "__") {
			out[key] = value
			continue
		}
		out[key] = convertDecimalValue(value, IsLikelyDecimalField(key))
	}
	return out
}

func convertDecimalValue(value interface{}, force bool) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return ConvertDecimalsForWrite(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = convertDecimalValue(item, false)
		}
		return out
	default:
		if force {
			return NumericToString(v)
		}
		return v
	}
}
