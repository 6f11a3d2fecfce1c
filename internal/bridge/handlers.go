package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mcptools/odata-bridge/internal/constants"
	"github.com/mcptools/odata-bridge/internal/models"
	"github.com/mcptools/odata-bridge/internal/utils"
)

func (b *Bridge) handleServiceInfo(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	includeMetadata, _ := args["include_metadata"].(bool)

	info := map[string]interface{}{
		"service_url":      b.config.ServiceURL,
		"entity_sets":      len(b.metadata.EntitySets),
		"entity_types":     len(b.metadata.EntityTypes),
		"function_imports": len(b.metadata.FunctionImports),
		"schema_namespace": b.metadata.SchemaNamespace,
		"container_name":   b.metadata.ContainerName,
		"odata_version":    b.metadata.Version,
		"parsed_at":        b.metadata.ParsedAt.Format("2006-01-02T15:04:05Z"),
	}
	if b.metadata.FromServiceDoc {
		info["schema_source"] = "service document (generic schemas, $metadata was unavailable)"
	}

	if includeMetadata {
		info["entity_sets_detail"] = b.metadata.EntitySets
		info["entity_types_detail"] = b.metadata.EntityTypes
		info["function_imports_detail"] = b.metadata.FunctionImports
	}

	toolNames := make([]string, 0, len(b.tools))
	for name := range b.tools {
		toolNames = append(toolNames, name)
	}
	info["registered_tools"] = len(toolNames)

	if hints := b.hints.GetHints(b.config.ServiceURL); hints != nil {
		info["hints"] = hints
	}

	return marshalResult(info)
}

func (b *Bridge) handleEntityFilter(ctx context.Context, toolName, entitySet string, args map[string]interface{}) (interface{}, error) {
	options := make(map[string]string)
	for _, opt := range []string{constants.QueryFilter, constants.QuerySelect, constants.QueryExpand, constants.QueryOrderBy, constants.QuerySkipToken} {
		if v, ok := args[opt].(string); ok && v != "" {
			options[opt] = v
		}
	}
	if err := collectPagingOptions(args, options); err != nil {
		return nil, err
	}

	resp, err := b.client.GetEntitySet(ctx, entitySet, options)
	if err != nil {
		return nil, err
	}

	b.enhanceResponse(resp, entitySet, toolName, options)
	return marshalResult(resp)
}

// collectPagingOptions copies $top and $skip from tool arguments into query
// options. Both must be whole numbers; anything else is rejected rather than
// silently dropped or truncated.
func collectPagingOptions(args map[string]interface{}, options map[string]string) error {
	for _, opt := range []string{constants.QueryTop, constants.QuerySkip} {
		v, present := args[opt]
		if !present {
			continue
		}
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("Invalid value for %s: must be an integer", opt)
		}
		options[opt] = fmt.Sprintf("%d", int64(f))
	}
	return nil
}

func (b *Bridge) handleEntityCount(ctx context.Context, toolName, entitySet string, args map[string]interface{}) (interface{}, error) {
	filter, _ := args[constants.QueryFilter].(string)

	count, err := b.client.GetEntityCount(ctx, entitySet, filter)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{"count": count}
	if filter != "" {
		result["filter"] = filter
	}
	return marshalResult(result)
}

func (b *Bridge) handleEntitySearch(ctx context.Context, toolName, entitySet string, args map[string]interface{}) (interface{}, error) {
	term, _ := args["search"].(string)
	if term == "" {
		return nil, fmt.Errorf("Missing required parameters: search")
	}

	options := map[string]string{constants.QuerySearch: term}
	if v, ok := args[constants.QuerySelect].(string); ok && v != "" {
		options[constants.QuerySelect] = v
	}
	if err := collectPagingOptions(args, options); err != nil {
		return nil, err
	}

	resp, err := b.client.GetEntitySet(ctx, entitySet, options)
	if err != nil {
		return nil, err
	}

	b.enhanceResponse(resp, entitySet, toolName, options)
	return marshalResult(resp)
}

func (b *Bridge) handleEntityGet(ctx context.Context, toolName, entitySet string, et *models.EntityType, args map[string]interface{}) (interface{}, error) {
	key, err := b.collectKeyValues(entitySet, et, args)
	if err != nil {
		return nil, err
	}

	options := make(map[string]string)
	for _, opt := range []string{constants.QuerySelect, constants.QueryExpand} {
		if v, ok := args[opt].(string); ok && v != "" {
			options[opt] = v
		}
	}

	resp, err := b.client.GetEntity(ctx, entitySet, key, options)
	if err != nil {
		return nil, err
	}

	b.enhanceResponse(resp, entitySet, toolName, nil)
	return marshalResult(resp)
}

func (b *Bridge) handleEntityCreate(ctx context.Context, toolName, entitySet string, args map[string]interface{}) (interface{}, error) {
	data := make(map[string]interface{}, len(args))
	for k, v := range args {
		if !strings.HasPrefix(k, "$") && k != "_method" {
			data[k] = v
		}
	}
	data = b.prepareWriteData(entitySet, data)

	resp, err := b.client.CreateEntity(ctx, entitySet, data)
	if err != nil {
		return nil, err
	}

	b.enhanceResponse(resp, entitySet, toolName, nil)
	return marshalResult(resp)
}

func (b *Bridge) handleEntityUpdate(ctx context.Context, toolName, entitySet string, et *models.EntityType, args map[string]interface{}) (interface{}, error) {
	method := ""
	if m, ok := args["_method"].(string); ok {
		method = strings.ToUpper(m)
	}

	isKey := make(map[string]bool, len(et.KeyProperties))
	for _, name := range et.KeyProperties {
		isKey[name] = true
	}

	key := make(map[string]interface{})
	data := make(map[string]interface{})
	for k, v := range args {
		switch {
		case k == "_method" || strings.HasPrefix(k, "$"):
		case isKey[k]:
			key[k] = v
		default:
			data[k] = v
		}
	}

	if missing := missingKeyNames(et, key); len(missing) > 0 {
		return nil, fmt.Errorf("Missing required key parameters: %s", strings.Join(missing, ", "))
	}

	data = b.prepareWriteData(entitySet, data)

	resp, err := b.client.UpdateEntity(ctx, entitySet, key, data, method)
	if err != nil {
		return nil, err
	}

	b.enhanceResponse(resp, entitySet, toolName, nil)
	return marshalResult(resp)
}

func (b *Bridge) handleEntityDelete(ctx context.Context, toolName, entitySet string, et *models.EntityType, args map[string]interface{}) (interface{}, error) {
	key, err := b.collectKeyValues(entitySet, et, args)
	if err != nil {
		return nil, err
	}

	if _, err := b.client.DeleteEntity(ctx, entitySet, key); err != nil {
		return nil, err
	}

	return marshalResult(map[string]interface{}{
		"status":  "success",
		"message": fmt.Sprintf("%s entity deleted", entitySet),
	})
}

func (b *Bridge) handleFunctionCall(ctx context.Context, toolName, functionName string, fn *models.FunctionImport, args map[string]interface{}) (interface{}, error) {
	parameters := make(map[string]interface{})
	var missing []string
	for _, param := range fn.Parameters {
		if value, ok := args[param.Name]; ok {
			parameters[param.Name] = value
		} else if !param.Nullable {
			missing = append(missing, param.Name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("Missing required parameters: %s", strings.Join(missing, ", "))
	}

	method := fn.HTTPMethod
	if method == "" {
		method = constants.GET
	}

	resp, err := b.client.CallFunction(ctx, functionName, parameters, method)
	if err != nil {
		return nil, err
	}

	b.enhanceResponse(resp, "", toolName, nil)
	return marshalResult(resp)
}

// collectKeyValues pulls all key properties out of the arguments, decoding
// GUID values, and reports every missing key at once.
func (b *Bridge) collectKeyValues(entitySet string, et *models.EntityType, args map[string]interface{}) (map[string]interface{}, error) {
	key := make(map[string]interface{}, len(et.KeyProperties))
	for _, name := range et.KeyProperties {
		if value, ok := args[name]; ok {
			key[name] = value
		}
	}
	if missing := missingKeyNames(et, key); len(missing) > 0 {
		return nil, fmt.Errorf("Missing required key parameters: %s", strings.Join(missing, ", "))
	}
	return b.encodeGUIDKeys(entitySet, key), nil
}

func missingKeyNames(et *models.EntityType, key map[string]interface{}) []string {
	var missing []string
	for _, name := range et.KeyProperties {
		if _, ok := key[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// prepareWriteData applies the outbound conversions: human-readable GUIDs
// back to base64 and ISO dates back to the legacy wire format. Date
// conversion follows the schema's date/time-typed properties; the field
// name heuristic only applies when the entity type is unknown or generic.
func (b *Bridge) prepareWriteData(entitySet string, data map[string]interface{}) map[string]interface{} {
	if fields := b.guidFieldsFor(entitySet); len(fields) > 0 {
		data = utils.EncodeGUIDsForWrite(data, fields)
	}
	if b.config.LegacyDates {
		if converted, ok := utils.ConvertDatesForWrite(data, b.dateFieldsFor(entitySet)).(map[string]interface{}); ok {
			data = converted
		}
	}
	return data
}

func (b *Bridge) encodeGUIDKeys(entitySet string, key map[string]interface{}) map[string]interface{} {
	fields := b.guidFieldsFor(entitySet)
	if len(fields) == 0 {
		return key
	}
	return utils.EncodeGUIDsForWrite(key, fields)
}

// guidFieldsFor returns the cached base64-GUID property names of an entity
// set's type.
func (b *Bridge) guidFieldsFor(entitySet string) []string {
	if entitySet == "" {
		return nil
	}

	b.mu.RLock()
	fields, ok := b.guidFields[entitySet]
	b.mu.RUnlock()
	if ok {
		return fields
	}

	es, ok := b.metadata.EntitySets[entitySet]
	if !ok {
		return nil
	}
	et, ok := b.metadata.EntityTypes[es.EntityType]
	if !ok {
		return nil
	}

	fields = utils.IdentifyGUIDFields(et)
	b.mu.Lock()
	b.guidFields[entitySet] = fields
	b.mu.Unlock()
	return fields
}

// dateFieldsFor returns the cached date/time-typed property names of an
// entity set's type. Nil for unknown or synthesized types, which defers to
// the name heuristic.
func (b *Bridge) dateFieldsFor(entitySet string) map[string]bool {
	if entitySet == "" {
		return nil
	}

	b.mu.RLock()
	fields, ok := b.dateFields[entitySet]
	b.mu.RUnlock()
	if ok {
		return fields
	}

	es, ok := b.metadata.EntitySets[entitySet]
	if !ok {
		return nil
	}
	et, ok := b.metadata.EntityTypes[es.EntityType]
	if !ok || et.Synthesized {
		return nil
	}

	fields = utils.IdentifyDateFields(et)
	b.mu.Lock()
	b.dateFields[entitySet] = fields
	b.mu.Unlock()
	return fields
}

func marshalResult(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to format response: %w", err)
	}
	return string(data), nil
}
