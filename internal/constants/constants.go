package constants

// XML namespaces used in OData v2 metadata documents
const (
	EdmxNamespace     = "http://schemas.microsoft.com/ado/2007/06/edmx"
	EdmNamespace      = "http://schemas.microsoft.com/ado/2008/09/edm"
	MetadataNamespace = "http://schemas.microsoft.com/ado/2007/08/dataservices/metadata"
	DataNamespace     = "http://schemas.microsoft.com/ado/2007/08/dataservices"
	SAPNamespace      = "http://www.sap.com/Protocols/SAPData"
	AtomNamespace     = "http://www.w3.org/2005/Atom"
	AppNamespace      = "http://www.w3.org/2007/app"
)

// Older EDM schema namespaces still emitted by some services. The parser
// accepts any of these.
var LegacyEdmNamespaces = []string{
	"http://schemas.microsoft.com/ado/2006/04/edm",
	"http://schemas.microsoft.com/ado/2007/05/edm",
	"http://schemas.microsoft.com/ado/2009/11/edm",
}

// ODataTypeMap maps Edm primitive types to the Go types used when building
// tool input schemas. Decimal, dates, GUIDs and binary travel as strings on
// the v2 wire.
var ODataTypeMap = map[string]string{
	"Edm.String":         "string",
	"Edm.Int16":          "int16",
	"Edm.Int32":          "int32",
	"Edm.Int64":          "int64",
	"Edm.Boolean":        "bool",
	"Edm.Byte":           "byte",
	"Edm.SByte":          "int8",
	"Edm.Single":         "float32",
	"Edm.Double":         "float64",
	"Edm.Decimal":        "string",
	"Edm.DateTime":       "string",
	"Edm.DateTimeOffset": "string",
	"Edm.Time":           "string",
	"Edm.Guid":           "string",
	"Edm.Binary":         "string",
}

// HTTP methods used against OData v2 services. MERGE is the v2-era partial
// update verb and remains the preferred one for SAP services.
const (
	GET    = "GET"
	POST   = "POST"
	PUT    = "PUT"
	PATCH  = "PATCH"
	MERGE  = "MERGE"
	DELETE = "DELETE"
)

// OData system query options
const (
	QueryFilter      = "$filter"
	QuerySelect      = "$select"
	QueryExpand      = "$expand"
	QueryOrderBy     = "$orderby"
	QueryTop         = "$top"
	QuerySkip        = "$skip"
	QueryCount       = "$count"
	QuerySearch      = "$search"
	QueryFormat      = "$format"
	QuerySkipToken   = "$skiptoken"
	QueryInlineCount = "$inlinecount"
)

// CSRF token handling (SAP convention)
const (
	CSRFTokenHeader      = "X-CSRF-Token"
	CSRFTokenFetch       = "Fetch"
	CSRFTokenHeaderLower = "x-csrf-token"
)

// HTTP headers
const (
	ContentType   = "Content-Type"
	Accept        = "Accept"
	Authorization = "Authorization"
	UserAgent     = "User-Agent"
)

// Content types
const (
	ContentTypeJSON      = "application/json"
	ContentTypeXML       = "application/xml"
	ContentTypeAtomXML   = "application/atom+xml"
	ContentTypeODataJSON = "application/json;odata=verbose"
)

// Service endpoints relative to the service root
const (
	MetadataEndpoint = "$metadata"
	CountSegment     = "$count"
)

// Tool operation types
const (
	OpFilter = "filter"
	OpCount  = "count"
	OpSearch = "search"
	OpGet    = "get"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpInfo   = "info"
)

// Operation type codes accepted by --enable / --disable.
// R is shorthand for the read set S, F and G.
const (
	OpCodeCreate   = 'C'
	OpCodeSearch   = 'S'
	OpCodeFilter   = 'F'
	OpCodeGet      = 'G'
	OpCodeUpdate   = 'U'
	OpCodeDelete   = 'D'
	OpCodeAction   = 'A'
	OpCodeReadExpn = 'R'
)

// ValidOpCodes is the full set of individual operation codes.
var ValidOpCodes = []rune{OpCodeCreate, OpCodeSearch, OpCodeFilter, OpCodeGet, OpCodeUpdate, OpCodeDelete, OpCodeAction}

// ShortenedToolOperationNames is used when --tool-shrink is active.
var ShortenedToolOperationNames = map[string]string{
	OpFilter: "filter",
	OpCount:  "count",
	OpSearch: "search",
	OpGet:    "get",
	OpCreate: "create",
	OpUpdate: "upd",
	OpDelete: "del",
	OpInfo:   "info",
}

// Default values
const (
	DefaultUserAgent         = "odata-bridge/1.0 (Go)"
	DefaultTimeout           = 30              // seconds
	DefaultMetadataTimeout   = 60              // seconds, SAP metadata documents can be large
	DefaultMaxResponseSize   = 5 * 1024 * 1024 // bytes
	DefaultMaxItems          = 100
	DefaultToolNameMaxLength = 64
)

// MCP protocol constants
const (
	MCPProtocolVersion = "2024-11-05"
	MCPServerName      = "odata-bridge"
	MCPServerVersion   = "1.0.0"
)

// GetToolOperationName returns the operation prefix for a tool name,
// shortened when shrink is requested.
func GetToolOperationName(operation string, shrink bool) string {
	if shrink {
		if name, ok := ShortenedToolOperationNames[operation]; ok {
			return name
		}
	}
	return operation
}
