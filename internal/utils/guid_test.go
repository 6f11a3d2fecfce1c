package utils

import (
	"testing"

	"github.com/mcptools/odata-bridge/internal/models"
)

func strPtr(s string) *string { return &s }

func TestBase64GUIDRoundTrip(t *testing.T) {
	// 16 bytes 0x00..0x0f
	b64 := "AAECAwQFBgcICQoLDA0ODw=="
	guid, err := Base64ToGUID(b64)
	if err != nil {
		t.Fatalf("Base64ToGUID() error: %v", err)
	}
	if guid != "00010203-0405-0607-0809-0A0B0C0D0E0F" {
		t.Errorf("guid = %q", guid)
	}

	back, err := GUIDToBase64(guid)
	if err != nil {
		t.Fatalf("GUIDToBase64() error: %v", err)
	}
	if back != b64 {
		t.Errorf("round trip = %q, want %q", back, b64)
	}
}

func TestBase64ToGUIDRejectsWrongLength(t *testing.T) {
	if _, err := Base64ToGUID("AAEC"); err == nil {
		t.Error("expected error for 3-byte value")
	}
	if _, err := Base64ToGUID("!!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestIsBase64(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"AAECAwQFBgcICQoLDA0ODw==", true},
		{"QUJDRA==", true},
		{"", false},
		{"abc", false},     // length not multiple of 4
		{"ab c=", false},   // invalid chars
		{"====", false},    // too much padding
		{"12345678", true}, // plausible
	}
	for _, tt := range tests {
		if got := IsBase64(tt.input); got != tt.want {
			t.Errorf("IsBase64(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestIdentifyGUIDFields(t *testing.T) {
	et := &models.EntityType{
		Name: "Node",
		Properties: []*models.EntityProperty{
			{Name: "NodeId", Type: "Edm.Binary"},
			{Name: "ParentGuid", Type: "Edm.Binary"},
			{Name: "F", Type: "Edm.Binary"},
			{Name: "T", Type: "Edm.Binary"},
			{Name: "Payload", Type: "Edm.Binary"},
			{Name: "Marker", Type: "Edm.Binary", Description: strPtr("GUID of the marker")},
			{Name: "OrderId", Type: "Edm.String"}, // not binary
		},
	}

	got := IdentifyGUIDFields(et)
	want := []string{"NodeId", "ParentGuid", "F", "T", "Marker"}
	if len(got) != len(want) {
		t.Fatalf("IdentifyGUIDFields() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("field[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDecodeGUIDsInResponse(t *testing.T) {
	data := []interface{}{
		map[string]interface{}{
			"NodeId": "AAECAwQFBgcICQoLDA0ODw==",
			"Name":   "AAECAwQFBgcICQoLDA0ODw==", // not a GUID field
		},
	}
	out := DecodeGUIDsInResponse(data, []string{"NodeId"}).([]interface{})
	entity := out[0].(map[string]interface{})
	if entity["NodeId"] != "00010203-0405-0607-0809-0A0B0C0D0E0F" {
		t.Errorf("NodeId = %v", entity["NodeId"])
	}
	if entity["Name"] != "AAECAwQFBgcICQoLDA0ODw==" {
		t.Errorf("Name should be untouched, got %v", entity["Name"])
	}
}

func TestEncodeGUIDsForWrite(t *testing.T) {
	data := map[string]interface{}{
		"NodeId": "00010203-0405-0607-0809-0A0B0C0D0E0F",
		"Label":  "not a guid",
	}
	out := EncodeGUIDsForWrite(data, []string{"NodeId", "Label"})
	if out["NodeId"] != "AAECAwQFBgcICQoLDA0ODw==" {
		t.Errorf("NodeId = %v", out["NodeId"])
	}
	if out["Label"] != "not a guid" {
		t.Errorf("Label should be untouched, got %v", out["Label"])
	}
}
