package utils

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/mcptools/odata-bridge/internal/models"
)

// SAP services expose 16-byte RAW GUIDs as Edm.Binary, which arrive as
// base64 in JSON payloads. These helpers convert them to and from the
// canonical hyphenated form so tool callers never see base64.

var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// IsBase64 reports whether s is plausibly base64 encoded.
func IsBase64(s string) bool {
	if s == "" || len(s)%4 != 0 {
		return false
	}
	return base64Pattern.MatchString(s)
}

// Base64ToGUID converts a base64-encoded 16-byte value to an uppercase
// hyphenated GUID string.
func Base64ToGUID(b64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("invalid base64 value: %w", err)
	}
	if len(raw) != 16 {
		return "", fmt.Errorf("expected 16 bytes for GUID, got %d", len(raw))
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(u.String()), nil
}

// GUIDToBase64 converts a hyphenated (or bare 32-hex) GUID string to the
// base64 form expected by Edm.Binary properties.
func GUIDToBase64(guid string) (string, error) {
	u, err := uuid.Parse(guid)
	if err != nil {
		return "", fmt.Errorf("invalid GUID %q: %w", guid, err)
	}
	return base64.StdEncoding.EncodeToString(u[:]), nil
}

// IdentifyGUIDFields returns the names of properties on an entity type that
// hold binary GUIDs: Edm.Binary typed, with a GUID-ish name (contains ID or
// GUID, or the SAP from/to columns F and T) or a description mentioning
// GUID.
func IdentifyGUIDFields(entityType *models.EntityType) []string {
	if entityType == nil {
		return nil
	}
	var fields []string
	for _, prop := range entityType.Properties {
		if prop.Type != "Edm.Binary" {
			continue
		}
		upper := strings.ToUpper(prop.Name)
		nameMatch := strings.Contains(upper, "ID") || strings.Contains(upper, "GUID") ||
			upper == "F" || upper == "T"
		descMatch := prop.Description != nil && strings.Contains(strings.ToUpper(*prop.Description), "GUID")
		if nameMatch || descMatch {
			fields = append(fields, prop.Name)
		}
	}
	return fields
}

// DecodeGUIDsInResponse rewrites base64 GUID values in the named fields to
// hyphenated form. Works on a single entity map or a slice of them; values
// that fail to decode are left alone.
func DecodeGUIDsInResponse(data interface{}, guidFields []string) interface{} {
	if len(guidFields) == 0 {
		return data
	}
	fieldSet := make(map[string]bool, len(guidFields))
	for _, f := range guidFields {
		fieldSet[f] = true
	}
	return decodeGUIDValue(data, fieldSet)
}

func decodeGUIDValue(data interface{}, fieldSet map[string]bool) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			if s, ok := value.(string); ok && fieldSet[key] && IsBase64(s) {
				if guid, err := Base64ToGUID(s); err == nil {
					out[key] = guid
					continue
				}
			}
			out[key] = decodeGUIDValue(value, fieldSet)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = decodeGUIDValue(item, fieldSet)
		}
		return out
	default:
		return data
	}
}

// EncodeGUIDsForWrite rewrites hyphenated GUID strings in the named fields
// back to base64 for the wire.
func EncodeGUIDsForWrite(data map[string]interface{}, guidFields []string) map[string]interface{} {
	if len(guidFields) == 0 {
		return data
	}
	fieldSet := make(map[string]bool, len(guidFields))
	for _, f := range guidFields {
		fieldSet[f] = true
	}
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		if s, ok := value.(string); ok && fieldSet[key] {
			if _, err := uuid.Parse(s); err == nil {
				if b64, err := GUIDToBase64(s); err == nil {
					out[key] = b64
					continue
				}
			}
		}
		out[key] = value
	}
	return out
}
