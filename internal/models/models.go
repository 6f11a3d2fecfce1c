package models

import "time"

// EntityProperty is a single property of an entity type.
type EntityProperty struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"` // Edm type, e.g. "Edm.String"
	Nullable    bool    `json:"nullable"`
	IsKey       bool    `json:"is_key"`
	Description *string `json:"description,omitempty"`
}

// EntityType is an entity type definition from the service schema.
type EntityType struct {
	Name            string                `json:"name"`
	Properties      []*EntityProperty     `json:"properties"`
	KeyProperties   []string              `json:"key_properties"`
	Description     *string               `json:"description,omitempty"`
	NavigationProps []*NavigationProperty `json:"navigation_properties,omitempty"`
	// Synthesized is set when the type was built from the service document
	// because $metadata could not be parsed.
	Synthesized bool `json:"synthesized,omitempty"`
}

// NavigationProperty is a v2 navigation property (association based).
type NavigationProperty struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
	FromRole     string `json:"from_role,omitempty"`
	ToRole       string `json:"to_role,omitempty"`
}

// EntitySet is an entity set with its SAP capability annotations resolved.
// Creatable, Updatable, Deletable and Pageable default to true when the
// annotation is absent; Searchable defaults to false.
type EntitySet struct {
	Name        string  `json:"name"`
	EntityType  string  `json:"entity_type"`
	Creatable   bool    `json:"creatable"`
	Updatable   bool    `json:"updatable"`
	Deletable   bool    `json:"deletable"`
	Searchable  bool    `json:"searchable"`
	Pageable    bool    `json:"pageable"`
	Description *string `json:"description,omitempty"`
}

// FunctionParameter is an input parameter of a function import. Parameters
// with mode Out or ReturnValue are dropped during parsing.
type FunctionParameter struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Mode     string `json:"mode,omitempty"` // In or InOut
	Nullable bool   `json:"nullable"`
}

// FunctionImport is a service operation exposed by the entity container.
type FunctionImport struct {
	Name        string               `json:"name"`
	HTTPMethod  string               `json:"http_method"`
	ReturnType  string               `json:"return_type,omitempty"`
	Parameters  []*FunctionParameter `json:"parameters"`
	Description *string              `json:"description,omitempty"`
}

// ODataMetadata is the parsed capability model of a service.
type ODataMetadata struct {
	ServiceRoot     string                     `json:"service_root"`
	EntityTypes     map[string]*EntityType     `json:"entity_types"`
	EntitySets      map[string]*EntitySet      `json:"entity_sets"`
	FunctionImports map[string]*FunctionImport `json:"function_imports"`
	SchemaNamespace string                     `json:"schema_namespace"`
	ContainerName   string                     `json:"container_name"`
	Version         string                     `json:"version"`
	ParsedAt        time.Time                  `json:"parsed_at"`
	// FromServiceDoc marks a model synthesized from the AtomPub service
	// document fallback rather than $metadata.
	FromServiceDoc bool `json:"from_service_document,omitempty"`
}

// ODataError is a structured OData error payload.
type ODataError struct {
	Code       string                 `json:"code,omitempty"`
	Message    string                 `json:"message"`
	Details    []ODataErrorDetail     `json:"details,omitempty"`
	InnerError map[string]interface{} `json:"innererror,omitempty"`
}

// ODataErrorDetail is one entry of an error detail list.
type ODataErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ODataResponse is a normalized v2 response. Collection reads populate
// Results; single reads and function calls populate Value. A 204 populates
// Message only.
type ODataResponse struct {
	Results    []interface{}   `json:"results,omitempty"`
	Value      interface{}     `json:"value,omitempty"`
	Count      *int64          `json:"total_count,omitempty"`
	NextLink   string          `json:"next_link,omitempty"`
	Message    string          `json:"message,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
	Pagination *PaginationInfo `json:"pagination,omitempty"`
}

// PaginationInfo describes where a collection read stopped and how to
// continue it.
type PaginationInfo struct {
	TotalCount        *int64  `json:"total_count,omitempty"`
	CurrentCount      int     `json:"current_count"`
	HasMore           bool    `json:"has_more"`
	SuggestedNextCall *string `json:"suggested_next_call,omitempty"`
	Skip              int     `json:"skip,omitempty"`
	SkipToken         string  `json:"skiptoken,omitempty"`
	Top               int     `json:"top,omitempty"`
}

// ToolInfo describes a registered MCP tool.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	EntitySet   string          `json:"entity_set,omitempty"`
	Operation   string          `json:"operation,omitempty"`
	Function    string          `json:"function,omitempty"`
}

// ToolParameter describes one tool input parameter.
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// TraceInfo is the full dump printed by --trace.
type TraceInfo struct {
	ServiceURL      string          `json:"service_url"`
	MCPName         string          `json:"mcp_name"`
	ToolNaming      string          `json:"tool_naming"`
	ToolPrefix      string          `json:"tool_prefix,omitempty"`
	ToolPostfix     string          `json:"tool_postfix,omitempty"`
	ToolShrink      bool            `json:"tool_shrink"`
	SortTools       bool            `json:"sort_tools"`
	EntityFilter    []string        `json:"entity_filter,omitempty"`
	FunctionFilter  []string        `json:"function_filter,omitempty"`
	EnabledOps      string          `json:"enabled_operations,omitempty"`
	Authentication  string          `json:"authentication"`
	ReadOnlyMode    string          `json:"read_only_mode,omitempty"`
	MetadataSummary MetadataSummary `json:"metadata_summary"`
	RegisteredTools []ToolInfo      `json:"registered_tools"`
	TotalTools      int             `json:"total_tools"`
}

// MetadataSummary counts the parsed schema elements.
type MetadataSummary struct {
	EntityTypes     int `json:"entity_types"`
	EntitySets      int `json:"entity_sets"`
	FunctionImports int `json:"function_imports"`
}
