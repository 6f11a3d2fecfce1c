// Package bridge turns a parsed OData service model into a set of MCP tools
// and routes tool calls to the OData client.
package bridge

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mcptools/odata-bridge/internal/client"
	"github.com/mcptools/odata-bridge/internal/config"
	"github.com/mcptools/odata-bridge/internal/constants"
	"github.com/mcptools/odata-bridge/internal/hint"
	"github.com/mcptools/odata-bridge/internal/mcp"
	"github.com/mcptools/odata-bridge/internal/metadata"
	"github.com/mcptools/odata-bridge/internal/models"
	"github.com/mcptools/odata-bridge/internal/namer"
	"github.com/mcptools/odata-bridge/internal/transport"
)

// Bridge owns the OData client, the MCP server and the generated tool set.
type Bridge struct {
	config    *config.Config
	client    *client.ODataClient
	server    *mcp.Server
	hints     *hint.Manager
	shortener *namer.Shortener
	metadata  *models.ODataMetadata
	tools     map[string]*models.ToolInfo
	// guidFields caches the base64-GUID property names per entity set.
	guidFields map[string][]string
	// dateFields caches the date/time-typed property names per entity set
	// for the write path.
	dateFields map[string]map[string]bool
	mu         sync.RWMutex
	running    bool
}

// NewBridge builds a bridge for the configured service: it fetches metadata,
// loads hints and registers one tool per permitted operation.
func NewBridge(cfg *config.Config) (*Bridge, error) {
	odataClient := client.NewODataClient(cfg.ServiceURL, cfg.Verbose)
	odataClient.SetVerboseErrors(cfg.VerboseErrors)
	if cfg.HasBasicAuth() {
		odataClient.SetBasicAuth(cfg.Username, cfg.Password)
	} else if cfg.HasCookieAuth() {
		odataClient.SetCookies(cfg.Cookies)
	}

	hints := hint.NewManager()
	if err := hints.LoadFromFile(cfg.HintsFile); err != nil {
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Failed to load hints: %v\n", err)
		}
	}
	if cfg.Hint != "" {
		if err := hints.SetCLIHint(cfg.Hint); err != nil && cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Failed to parse CLI hint: %v\n", err)
		}
	}

	b := &Bridge{
		config:     cfg,
		client:     odataClient,
		server:     mcp.NewServer(constants.MCPServerName, constants.MCPServerVersion),
		hints:      hints,
		shortener:  namer.NewShortener(cfg.ToolShrink),
		tools:      make(map[string]*models.ToolInfo),
		guidFields: make(map[string][]string),
		dateFields: make(map[string]map[string]bool),
	}

	if err := b.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize bridge: %w", err)
	}
	return b, nil
}

func (b *Bridge) initialize() error {
	meta, err := b.client.GetMetadata(context.Background())
	if err != nil {
		return fmt.Errorf("failed to fetch metadata: %w", err)
	}
	b.metadata = meta

	if meta.FromServiceDoc && b.config.Verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] Using service document fallback: %d entity sets with generic schemas\n",
			len(meta.EntitySets))
	}

	b.applyCapabilityOverrides()
	b.generateTools()
	return nil
}

// applyCapabilityOverrides is the single mutation step between schema
// parsing and tool generation.
func (b *Bridge) applyCapabilityOverrides() {
	if !b.config.HasCapabilityOverrides() {
		return
	}
	changed := metadata.ApplyOverrides(b.metadata, b.config.OverrideReadonly, b.config.CapabilityOverrides())
	if b.config.Verbose && len(changed) > 0 {
		fmt.Fprintf(os.Stderr, "[VERBOSE] Capability overrides changed: %s\n", strings.Join(changed, ", "))
	}
}

func (b *Bridge) generateTools() {
	b.generateServiceInfoTool()

	entityNames := make([]string, 0, len(b.metadata.EntitySets))
	for name := range b.metadata.EntitySets {
		if b.includeEntity(name) {
			entityNames = append(entityNames, name)
		}
	}
	sort.Strings(entityNames)
	for _, name := range entityNames {
		b.generateEntitySetTools(name, b.metadata.EntitySets[name])
	}

	functionNames := make([]string, 0, len(b.metadata.FunctionImports))
	for name := range b.metadata.FunctionImports {
		if b.includeFunction(name) {
			functionNames = append(functionNames, name)
		}
	}
	sort.Strings(functionNames)
	for _, name := range functionNames {
		fn := b.metadata.FunctionImports[name]
		if !b.config.OperationEnabled(constants.OpCodeAction) {
			continue
		}
		if b.config.ReadOnly || (b.isFunctionModifying(fn) && !b.config.AllowModifyingFunctions()) {
			if b.config.Verbose {
				fmt.Fprintf(os.Stderr, "[VERBOSE] Skipping function %s in read-only mode (HTTP method: %s)\n",
					name, fn.HTTPMethod)
			}
			continue
		}
		b.generateFunctionTool(name, fn)
	}

	if b.config.SortTools {
		b.server.SortTools()
	}
}

func (b *Bridge) includeEntity(name string) bool {
	return matchesAnyPattern(name, b.config.AllowedEntities)
}

func (b *Bridge) includeFunction(name string) bool {
	return matchesAnyPattern(name, b.config.AllowedFunctions)
}

// matchesAnyPattern matches a name against filter patterns with leading or
// trailing wildcards. An empty pattern list admits everything.
func matchesAnyPattern(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		switch {
		case pattern == name:
			return true
		case strings.HasSuffix(pattern, "*") && strings.HasPrefix(name, strings.TrimSuffix(pattern, "*")):
			return true
		case strings.HasPrefix(pattern, "*") && strings.HasSuffix(name, strings.TrimPrefix(pattern, "*")):
			return true
		}
	}
	return false
}

// isFunctionModifying treats any non-GET function import as modifying.
func (b *Bridge) isFunctionModifying(fn *models.FunctionImport) bool {
	return !strings.EqualFold(fn.HTTPMethod, constants.GET)
}

func (b *Bridge) generateServiceInfoTool() {
	toolName := b.formatToolName("odata_service_info", "")

	tool := &mcp.Tool{
		Name:        toolName,
		Description: "Get information about the OData service: entity sets, types, function imports and usage hints",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"include_metadata": map[string]interface{}{
					"type":        "boolean",
					"description": "Include the full parsed schema",
					"default":     false,
				},
			},
		},
	}

	b.registerTool(tool, &models.ToolInfo{
		Name:        toolName,
		Description: tool.Description,
		Operation:   constants.OpInfo,
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return b.handleServiceInfo(ctx, args)
	})
}

func (b *Bridge) generateEntitySetTools(name string, es *models.EntitySet) {
	et, ok := b.metadata.EntityTypes[es.EntityType]
	if !ok {
		if b.config.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Entity type %s not found for entity set %s\n", es.EntityType, name)
		}
		return
	}

	if b.config.OperationEnabled(constants.OpCodeFilter) {
		b.generateFilterTool(name, et)
		b.generateCountTool(name)
	}
	if es.Searchable && b.config.OperationEnabled(constants.OpCodeSearch) {
		b.generateSearchTool(name)
	}
	if b.config.OperationEnabled(constants.OpCodeGet) {
		b.generateGetTool(name, et)
	}
	if es.Creatable && !b.config.IsReadOnly() && b.config.OperationEnabled(constants.OpCodeCreate) {
		b.generateCreateTool(name, et)
	}
	if es.Updatable && !b.config.IsReadOnly() && b.config.OperationEnabled(constants.OpCodeUpdate) {
		b.generateUpdateTool(name, et)
	}
	if es.Deletable && !b.config.IsReadOnly() && b.config.OperationEnabled(constants.OpCodeDelete) {
		b.generateDeleteTool(name, et)
	}
}

func (b *Bridge) generateFilterTool(entitySet string, et *models.EntityType) {
	toolName := b.formatToolName(constants.OpFilter, entitySet)
	description := fmt.Sprintf("List/filter %s entities with OData query options", entitySet)

	properties := map[string]interface{}{
		"$filter":    schemaString("OData filter expression, e.g. \"Price gt 100\""),
		"$select":    schemaString("Comma-separated list of properties to return"),
		"$expand":    schemaString("Navigation properties to expand"),
		"$orderby":   schemaString("Properties to order by, e.g. \"Name desc\""),
		"$top":       schemaInteger("Maximum number of entities to return"),
		"$skip":      schemaInteger("Number of entities to skip"),
		"$skiptoken": schemaString("Opaque continuation token from a previous page's __next link"),
	}

	tool := &mcp.Tool{
		Name:        toolName,
		Description: description,
		InputSchema: map[string]interface{}{"type": "object", "properties": properties},
	}

	b.registerTool(tool, &models.ToolInfo{
		Name:        toolName,
		Description: description,
		EntitySet:   entitySet,
		Operation:   constants.OpFilter,
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return b.handleEntityFilter(ctx, toolName, entitySet, args)
	})
}

func (b *Bridge) generateCountTool(entitySet string) {
	toolName := b.formatToolName(constants.OpCount, entitySet)
	description := fmt.Sprintf("Get the number of %s entities, with an optional filter", entitySet)

	tool := &mcp.Tool{
		Name:        toolName,
		Description: description,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"$filter": schemaString("OData filter expression"),
			},
		},
	}

	b.registerTool(tool, &models.ToolInfo{
		Name:        toolName,
		Description: description,
		EntitySet:   entitySet,
		Operation:   constants.OpCount,
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return b.handleEntityCount(ctx, toolName, entitySet, args)
	})
}

func (b *Bridge) generateSearchTool(entitySet string) {
	toolName := b.formatToolName(constants.OpSearch, entitySet)
	description := fmt.Sprintf("Full-text search %s entities", entitySet)

	tool := &mcp.Tool{
		Name:        toolName,
		Description: description,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"search":  schemaString("Search term"),
				"$select": schemaString("Comma-separated list of properties to return"),
				"$top":    schemaInteger("Maximum number of entities to return"),
				"$skip":   schemaInteger("Number of entities to skip"),
			},
			"required": []string{"search"},
		},
	}

	b.registerTool(tool, &models.ToolInfo{
		Name:        toolName,
		Description: description,
		EntitySet:   entitySet,
		Operation:   constants.OpSearch,
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return b.handleEntitySearch(ctx, toolName, entitySet, args)
	})
}

func (b *Bridge) generateGetTool(entitySet string, et *models.EntityType) {
	toolName := b.formatToolName(constants.OpGet, entitySet)
	description := fmt.Sprintf("Get a single %s entity by key", entitySet)

	properties, required := keyPropertySchema(et)
	properties["$select"] = schemaString("Comma-separated list of properties to return")
	properties["$expand"] = schemaString("Navigation properties to expand")

	inputSchema := map[string]interface{}{"type": "object", "properties": properties}
	if len(required) > 0 {
		inputSchema["required"] = required
	}

	tool := &mcp.Tool{
		Name:        toolName,
		Description: description,
		InputSchema: inputSchema,
	}

	b.registerTool(tool, &models.ToolInfo{
		Name:        toolName,
		Description: description,
		EntitySet:   entitySet,
		Operation:   constants.OpGet,
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return b.handleEntityGet(ctx, toolName, entitySet, et, args)
	})
}

func (b *Bridge) generateCreateTool(entitySet string, et *models.EntityType) {
	toolName := b.formatToolName(constants.OpCreate, entitySet)
	description := fmt.Sprintf("Create a new %s entity", entitySet)

	properties := make(map[string]interface{})
	required := make([]string, 0)
	for _, prop := range et.Properties {
		properties[prop.Name] = propertySchema(prop)
		// Keys and non-nullable properties must be supplied. SAP services
		// with server-generated keys mark them nullable.
		if prop.IsKey || !prop.Nullable {
			required = append(required, prop.Name)
		}
	}

	inputSchema := map[string]interface{}{"type": "object", "properties": properties}
	if len(required) > 0 {
		inputSchema["required"] = required
	}

	tool := &mcp.Tool{
		Name:        toolName,
		Description: description,
		InputSchema: inputSchema,
	}

	b.registerTool(tool, &models.ToolInfo{
		Name:        toolName,
		Description: description,
		EntitySet:   entitySet,
		Operation:   constants.OpCreate,
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return b.handleEntityCreate(ctx, toolName, entitySet, args)
	})
}

func (b *Bridge) generateUpdateTool(entitySet string, et *models.EntityType) {
	toolName := b.formatToolName(constants.OpUpdate, entitySet)
	description := fmt.Sprintf("Update an existing %s entity", entitySet)

	properties, required := keyPropertySchema(et)
	for _, prop := range et.Properties {
		if !prop.IsKey {
			properties[prop.Name] = propertySchema(prop)
		}
	}
	properties["_method"] = map[string]interface{}{
		"type":        "string",
		"description": "Force a specific update verb instead of the MERGE/PUT/PATCH fallback chain",
		"enum":        []string{constants.MERGE, constants.PUT, constants.PATCH},
	}

	tool := &mcp.Tool{
		Name:        toolName,
		Description: description,
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}

	b.registerTool(tool, &models.ToolInfo{
		Name:        toolName,
		Description: description,
		EntitySet:   entitySet,
		Operation:   constants.OpUpdate,
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return b.handleEntityUpdate(ctx, toolName, entitySet, et, args)
	})
}

func (b *Bridge) generateDeleteTool(entitySet string, et *models.EntityType) {
	toolName := b.formatToolName(constants.OpDelete, entitySet)
	description := fmt.Sprintf("Delete a %s entity by key", entitySet)

	properties, required := keyPropertySchema(et)

	tool := &mcp.Tool{
		Name:        toolName,
		Description: description,
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}

	b.registerTool(tool, &models.ToolInfo{
		Name:        toolName,
		Description: description,
		EntitySet:   entitySet,
		Operation:   constants.OpDelete,
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return b.handleEntityDelete(ctx, toolName, entitySet, et, args)
	})
}

func (b *Bridge) generateFunctionTool(functionName string, fn *models.FunctionImport) {
	toolName := b.formatToolName("", functionName)

	description := fmt.Sprintf("Call function import %s (HTTP %s)", functionName, fn.HTTPMethod)
	if fn.Description != nil && *fn.Description != "" {
		description = *fn.Description
	}

	properties := make(map[string]interface{})
	required := make([]string, 0)
	for _, param := range fn.Parameters {
		properties[param.Name] = map[string]interface{}{
			"type":        jsonSchemaType(param.Type),
			"description": fmt.Sprintf("Parameter %s (%s)", param.Name, param.Type),
		}
		if !param.Nullable {
			required = append(required, param.Name)
		}
	}

	inputSchema := map[string]interface{}{"type": "object", "properties": properties}
	if len(required) > 0 {
		inputSchema["required"] = required
	}

	tool := &mcp.Tool{
		Name:        toolName,
		Description: description,
		InputSchema: inputSchema,
	}

	b.registerTool(tool, &models.ToolInfo{
		Name:        toolName,
		Description: description,
		Function:    functionName,
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return b.handleFunctionCall(ctx, toolName, functionName, fn, args)
	})
}

func (b *Bridge) registerTool(tool *mcp.Tool, info *models.ToolInfo, handler mcp.ToolHandler) {
	b.server.AddTool(tool, handler)
	b.tools[tool.Name] = info
}

// formatToolName builds "<op>_<Entity>" (or "<Entity>_<op>" in prefix mode)
// plus the service affix, keeping the result inside the MCP tool name budget.
// The operation part and the affix are preserved; the entity part shrinks
// first and gets truncated as a last resort.
func (b *Bridge) formatToolName(operation, entityName string) string {
	entity := entityName
	if b.config.ToolShrink && entity != "" {
		entity = b.shortener.ShortenEntityName(entity, 0)
	}

	name := b.composeToolName(operation, entity)
	if len(name) <= constants.DefaultToolNameMaxLength || entityName == "" {
		return name
	}

	// Over budget: shrink the entity part aggressively.
	aggressive := namer.NewShortener(true)
	entity = aggressive.ShortenEntityName(entityName, 0)
	name = b.composeToolName(operation, entity)
	if len(name) <= constants.DefaultToolNameMaxLength {
		return name
	}

	// Still over: cut the entity part down to whatever room remains.
	overflow := len(name) - constants.DefaultToolNameMaxLength
	if overflow < len(entity) {
		entity = entity[:len(entity)-overflow]
	} else {
		entity = entity[:1]
	}
	return b.composeToolName(operation, entity)
}

func (b *Bridge) composeToolName(operation, entity string) string {
	var name string
	opName := constants.GetToolOperationName(operation, b.config.ToolShrink)
	switch {
	case operation == "" || entity == "":
		name = opName + entity
	case b.config.UsePostfix():
		name = opName + "_" + entity
	default:
		name = entity + "_" + opName
	}

	if b.config.UsePostfix() {
		postfix := b.config.ToolPostfix
		if postfix == "" {
			postfix = "for_" + namer.ServiceID(b.config.ServiceURL)
		}
		return name + "_" + postfix
	}
	if b.config.ToolPrefix != "" {
		return b.config.ToolPrefix + "_" + name
	}
	return name
}

func keyPropertySchema(et *models.EntityType) (map[string]interface{}, []string) {
	properties := make(map[string]interface{})
	required := make([]string, 0, len(et.KeyProperties))
	for _, keyName := range et.KeyProperties {
		for _, prop := range et.Properties {
			if prop.Name == keyName {
				properties[keyName] = map[string]interface{}{
					"type":        jsonSchemaType(prop.Type),
					"description": fmt.Sprintf("Key property %s (%s)", keyName, prop.Type),
				}
				required = append(required, keyName)
				break
			}
		}
	}
	return properties, required
}

func propertySchema(prop *models.EntityProperty) map[string]interface{} {
	description := fmt.Sprintf("Property %s (%s)", prop.Name, prop.Type)
	if prop.Description != nil && *prop.Description != "" {
		description = *prop.Description
	}
	return map[string]interface{}{
		"type":        jsonSchemaType(prop.Type),
		"description": description,
	}
}

func schemaString(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func schemaInteger(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

// jsonSchemaType maps an Edm primitive type to its JSON schema type. Decimals
// travel as strings on the v2 wire but are accepted as numbers here; the
// client stringifies them on writes.
func jsonSchemaType(edmType string) string {
	switch edmType {
	case "Edm.String", "Edm.Guid", "Edm.DateTime", "Edm.DateTimeOffset", "Edm.Time", "Edm.Binary":
		return "string"
	case "Edm.Int16", "Edm.Int32", "Edm.Int64", "Edm.Byte", "Edm.SByte":
		return "integer"
	case "Edm.Single", "Edm.Double", "Edm.Decimal":
		return "number"
	case "Edm.Boolean":
		return "boolean"
	default:
		return "string"
	}
}

// GetServer returns the MCP server instance.
func (b *Bridge) GetServer() *mcp.Server {
	return b.server
}

// SetTransport wires a transport into the MCP server.
func (b *Bridge) SetTransport(t transport.Transport) {
	b.server.SetTransport(t)
}

// HandleMessage forwards a transport message to the MCP server.
func (b *Bridge) HandleMessage(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	return b.server.HandleMessage(ctx, msg)
}

// Run starts the MCP server on its transport and blocks until it stops.
func (b *Bridge) Run() error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bridge is already running")
	}
	b.running = true
	b.mu.Unlock()

	return b.server.Run()
}

// Stop shuts the MCP server down.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.running = false
	b.server.Stop()
}

// GetTraceInfo collects the full configuration and tool dump for --trace.
func (b *Bridge) GetTraceInfo() (*models.TraceInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	authType := "None (anonymous)"
	if b.config.HasBasicAuth() {
		authType = fmt.Sprintf("Basic (user: %s)", b.config.Username)
	} else if b.config.HasCookieAuth() {
		authType = fmt.Sprintf("Cookie (%d cookies)", len(b.config.Cookies))
	}

	toolNaming := "Postfix"
	if !b.config.UsePostfix() {
		toolNaming = "Prefix"
	}

	readOnlyMode := ""
	if b.config.ReadOnly {
		readOnlyMode = "Full read-only (no modifying operations)"
	} else if b.config.ReadOnlyButFunctions {
		readOnlyMode = "Read-only except function imports"
	}

	tools := make([]models.ToolInfo, 0, len(b.tools))
	for _, tool := range b.tools {
		tools = append(tools, *tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	return &models.TraceInfo{
		ServiceURL:     b.config.ServiceURL,
		MCPName:        constants.MCPServerName,
		ToolNaming:     toolNaming,
		ToolPrefix:     b.config.ToolPrefix,
		ToolPostfix:    b.config.ToolPostfix,
		ToolShrink:     b.config.ToolShrink,
		SortTools:      b.config.SortTools,
		EntityFilter:   b.config.AllowedEntities,
		FunctionFilter: b.config.AllowedFunctions,
		EnabledOps:     b.config.EnabledOpsString(),
		Authentication: authType,
		ReadOnlyMode:   readOnlyMode,
		MetadataSummary: models.MetadataSummary{
			EntityTypes:     len(b.metadata.EntityTypes),
			EntitySets:      len(b.metadata.EntitySets),
			FunctionImports: len(b.metadata.FunctionImports),
		},
		RegisteredTools: tools,
		TotalTools:      len(tools),
	}, nil
}
