package config

import (
	"reflect"
	"testing"
)

func TestResolveOperationsEnable(t *testing.T) {
	tests := []struct {
		name     string
		enable   string
		disable  string
		wantErr  bool
		enabled  string
		disabled string
	}{
		{
			name:    "no flags enables everything",
			enabled: "CSFGUDA",
		},
		{
			name:     "enable read set only",
			enable:   "R",
			enabled:  "SFG",
			disabled: "CUDA",
		},
		{
			name:     "enable create and get",
			enable:   "CG",
			enabled:  "CG",
			disabled: "SFUDA",
		},
		{
			name:     "disable updates and deletes",
			disable:  "UD",
			enabled:  "CSFGA",
			disabled: "UD",
		},
		{
			name:     "lowercase and separators accepted",
			enable:   "c, s f",
			enabled:  "CSF",
			disabled: "GUDA",
		},
		{
			name:     "R combines with explicit codes",
			enable:   "RA",
			enabled:  "SFGA",
			disabled: "CUD",
		},
		{
			name:    "invalid code rejected",
			enable:  "CX",
			wantErr: true,
		},
		{
			name:    "mutually exclusive flags rejected",
			enable:  "C",
			disable: "U",
			wantErr: true,
		},
		{
			name:    "empty after cleaning rejected",
			enable:  ", ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EnableOps: tt.enable, DisableOps: tt.disable}
			err := cfg.ResolveOperations()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolveOperations() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveOperations() unexpected error: %v", err)
			}
			for _, code := range tt.enabled {
				if !cfg.OperationEnabled(code) {
					t.Errorf("operation %q should be enabled", string(code))
				}
			}
			for _, code := range tt.disabled {
				if cfg.OperationEnabled(code) {
					t.Errorf("operation %q should be disabled", string(code))
				}
			}
		})
	}
}

func TestResolveEntityOverrides(t *testing.T) {
	tests := []struct {
		name      string
		overrides []string
		wantErr   bool
		want      map[string]map[string]bool
	}{
		{
			name: "no overrides",
		},
		{
			name:      "single flag",
			overrides: []string{"ProgramSet:creatable=true"},
			want:      map[string]map[string]bool{"ProgramSet": {"creatable": true}},
		},
		{
			name:      "multiple flags with spacing",
			overrides: []string{"Orders: creatable=true, Deletable=false"},
			want:      map[string]map[string]bool{"Orders": {"creatable": true, "deletable": false}},
		},
		{
			name:      "repeated values merge",
			overrides: []string{"Orders:creatable=true", "Orders:creatable=false,updatable=true"},
			want:      map[string]map[string]bool{"Orders": {"creatable": false, "updatable": true}},
		},
		{
			name:      "missing set name rejected",
			overrides: []string{":creatable=true"},
			wantErr:   true,
		},
		{
			name:      "missing flags rejected",
			overrides: []string{"Orders"},
			wantErr:   true,
		},
		{
			name:      "unknown flag rejected",
			overrides: []string{"Orders:visible=true"},
			wantErr:   true,
		},
		{
			name:      "non-boolean value rejected",
			overrides: []string{"Orders:creatable=yes please"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EntityOverrides: tt.overrides}
			err := cfg.ResolveEntityOverrides()
			if tt.wantErr {
				if err == nil {
					t.Fatal("ResolveEntityOverrides() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveEntityOverrides() unexpected error: %v", err)
			}
			if tt.want == nil {
				if cfg.HasCapabilityOverrides() {
					t.Error("no overrides should leave HasCapabilityOverrides false")
				}
				return
			}
			if !reflect.DeepEqual(cfg.CapabilityOverrides(), tt.want) {
				t.Errorf("overrides = %v, want %v", cfg.CapabilityOverrides(), tt.want)
			}
		})
	}
}

func TestReadOnlyHelpers(t *testing.T) {
	cfg := &Config{ReadOnly: true}
	if !cfg.IsReadOnly() {
		t.Error("ReadOnly should imply IsReadOnly")
	}
	if cfg.AllowModifyingFunctions() {
		t.Error("ReadOnly should hide modifying functions")
	}

	cfg = &Config{ReadOnlyButFunctions: true}
	if !cfg.IsReadOnly() {
		t.Error("ReadOnlyButFunctions should imply IsReadOnly")
	}
	if !cfg.AllowModifyingFunctions() {
		t.Error("ReadOnlyButFunctions should keep modifying functions")
	}
}
