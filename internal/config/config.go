package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mcptools/odata-bridge/internal/constants"
)

// Config holds all configuration options for the bridge.
type Config struct {
	// Service configuration
	ServiceURL string `mapstructure:"service_url"`

	// Authentication
	Username     string            `mapstructure:"username"`
	Password     string            `mapstructure:"password"`
	CookieFile   string            `mapstructure:"cookie_file"`
	CookieString string            `mapstructure:"cookie_string"`
	Cookies      map[string]string // Parsed cookies

	// Tool naming options
	ToolPrefix  string `mapstructure:"tool_prefix"`
	ToolPostfix string `mapstructure:"tool_postfix"`
	NoPostfix   bool   `mapstructure:"no_postfix"`
	ToolShrink  bool   `mapstructure:"tool_shrink"`

	// Entity and function filtering
	Entities         string   `mapstructure:"entities"`
	Functions        string   `mapstructure:"functions"`
	AllowedEntities  []string // Parsed from Entities
	AllowedFunctions []string // Parsed from Functions

	// Operation type filtering (--enable / --disable)
	EnableOps  string `mapstructure:"enable"`
	DisableOps string `mapstructure:"disable"`
	// Resolved set of enabled operation codes (subset of C,S,F,G,U,D,A).
	// Empty means all operations are enabled.
	enabledOps map[rune]bool

	// Output and debugging
	Verbose   bool `mapstructure:"verbose"`
	Debug     bool `mapstructure:"debug"`
	SortTools bool `mapstructure:"sort_tools"`
	Trace     bool `mapstructure:"trace"`

	// Response enhancement options
	PaginationHints  bool `mapstructure:"pagination_hints"`
	LegacyDates      bool `mapstructure:"legacy_dates"`
	NoLegacyDates    bool `mapstructure:"no_legacy_dates"`
	VerboseErrors    bool `mapstructure:"verbose_errors"`
	ResponseMetadata bool `mapstructure:"response_metadata"`

	// Response size limits
	MaxResponseSize int `mapstructure:"max_response_size"`
	MaxItems        int `mapstructure:"max_items"`

	// Read-only mode flags
	ReadOnly             bool `mapstructure:"read_only"`
	ReadOnlyButFunctions bool `mapstructure:"read_only_but_functions"`

	// Capability overrides, applied to the parsed schema before tools are
	// generated
	OverrideReadonly bool     `mapstructure:"override_readonly"`
	EntityOverrides  []string `mapstructure:"entity_override"`
	entityOverrides  map[string]map[string]bool

	// Hint configuration
	HintsFile string `mapstructure:"hints_file"`
	Hint      string `mapstructure:"hint"`
}

// HasBasicAuth returns true if username and password are configured.
func (c *Config) HasBasicAuth() bool {
	return c.Username != "" && c.Password != ""
}

// HasCookieAuth returns true if cookies are configured.
func (c *Config) HasCookieAuth() bool {
	return len(c.Cookies) > 0
}

// UsePostfix returns true if tool postfix should be used instead of prefix.
func (c *Config) UsePostfix() bool {
	return !c.NoPostfix
}

// IsReadOnly returns true if either read-only mode is enabled.
func (c *Config) IsReadOnly() bool {
	return c.ReadOnly || c.ReadOnlyButFunctions
}

// AllowModifyingFunctions returns true if modifying function imports may be
// registered.
func (c *Config) AllowModifyingFunctions() bool {
	return !c.ReadOnly
}

// ResolveOperations validates the --enable / --disable strings and builds
// the enabled-operation set. The two flags are mutually exclusive. Codes are
// case-insensitive and may be separated by commas or spaces; R expands to
// the read set S, F and G.
func (c *Config) ResolveOperations() error {
	if c.EnableOps != "" && c.DisableOps != "" {
		return fmt.Errorf("cannot use both --enable and --disable flags at the same time")
	}

	if c.EnableOps == "" && c.DisableOps == "" {
		c.enabledOps = nil
		return nil
	}

	spec := c.EnableOps
	enable := true
	if spec == "" {
		spec = c.DisableOps
		enable = false
	}

	requested, err := parseOpCodes(spec)
	if err != nil {
		return err
	}

	set := make(map[rune]bool, len(constants.ValidOpCodes))
	for _, code := range constants.ValidOpCodes {
		if enable {
			set[code] = requested[code]
		} else {
			set[code] = !requested[code]
		}
	}
	c.enabledOps = set
	return nil
}

// OperationEnabled reports whether the given operation code is permitted.
// With no --enable / --disable flag every operation is permitted.
func (c *Config) OperationEnabled(code rune) bool {
	if c.enabledOps == nil {
		return true
	}
	return c.enabledOps[code]
}

// EnabledOpsString renders the effective operation set for trace output.
func (c *Config) EnabledOpsString() string {
	if c.enabledOps == nil {
		return ""
	}
	var b strings.Builder
	for _, code := range constants.ValidOpCodes {
		if c.enabledOps[code] {
			b.WriteRune(code)
		}
	}
	return b.String()
}

// ResolveEntityOverrides validates and parses the --entity-override values.
// Each value has the form SetName:flag=bool[,flag=bool...] with the flags
// creatable, updatable, deletable, searchable and pageable. Repeated values
// for the same set merge, later ones winning.
func (c *Config) ResolveEntityOverrides() error {
	if len(c.EntityOverrides) == 0 {
		c.entityOverrides = nil
		return nil
	}

	parsed := make(map[string]map[string]bool)
	for _, spec := range c.EntityOverrides {
		name, flagSpec, ok := strings.Cut(spec, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.TrimSpace(flagSpec) == "" {
			return fmt.Errorf("invalid entity override %q: expected SetName:flag=true[,flag=false,...]", spec)
		}

		flags := parsed[name]
		if flags == nil {
			flags = make(map[string]bool)
			parsed[name] = flags
		}
		for _, pair := range strings.Split(flagSpec, ",") {
			key, val, ok := strings.Cut(pair, "=")
			key = strings.ToLower(strings.TrimSpace(key))
			if !ok || !validCapabilityFlags[key] {
				return fmt.Errorf("invalid capability flag in override %q: valid flags are creatable, updatable, deletable, searchable, pageable", spec)
			}
			value, err := strconv.ParseBool(strings.TrimSpace(val))
			if err != nil {
				return fmt.Errorf("invalid value for %s in override %q: %v", key, spec, err)
			}
			flags[key] = value
		}
	}
	c.entityOverrides = parsed
	return nil
}

var validCapabilityFlags = map[string]bool{
	"creatable":  true,
	"updatable":  true,
	"deletable":  true,
	"searchable": true,
	"pageable":   true,
}

// CapabilityOverrides returns the parsed per-entity-set flag overrides.
func (c *Config) CapabilityOverrides() map[string]map[string]bool {
	return c.entityOverrides
}

// HasCapabilityOverrides reports whether any override step is configured.
func (c *Config) HasCapabilityOverrides() bool {
	return c.OverrideReadonly || len(c.entityOverrides) > 0
}

func parseOpCodes(spec string) (map[rune]bool, error) {
	valid := make(map[rune]bool, len(constants.ValidOpCodes))
	for _, code := range constants.ValidOpCodes {
		valid[code] = true
	}

	requested := make(map[rune]bool)
	cleaned := strings.NewReplacer(",", "", " ", "").Replace(spec)
	for _, r := range strings.ToUpper(cleaned) {
		if r == constants.OpCodeReadExpn {
			requested[constants.OpCodeSearch] = true
			requested[constants.OpCodeFilter] = true
			requested[constants.OpCodeGet] = true
			continue
		}
		if !valid[r] {
			return nil, fmt.Errorf("invalid operation type %q: valid types are C, S, F, G, U, D, A (R = S+F+G)", string(r))
		}
		requested[r] = true
	}

	if len(requested) == 0 {
		return nil, fmt.Errorf("no valid operation types in %q", spec)
	}
	return requested, nil
}
