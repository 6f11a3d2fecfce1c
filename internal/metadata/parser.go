package metadata

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/mcptools/odata-bridge/internal/constants"
	"github.com/mcptools/odata-bridge/internal/models"
)

// EDMX is the root of an OData v2 $metadata document.
type EDMX struct {
	XMLName      xml.Name     `xml:"Edmx"`
	Version      string       `xml:"Version,attr"`
	DataServices DataServices `xml:"DataServices"`
}

// DataServices wraps one or more schemas. SAP services commonly split entity
// types and the container across schemas.
type DataServices struct {
	Schemas []Schema `xml:"Schema"`
}

// Schema holds entity types and, optionally, the entity container.
type Schema struct {
	Namespace       string           `xml:"Namespace,attr"`
	EntityTypes     []EntityType     `xml:"EntityType"`
	EntityContainer *EntityContainer `xml:"EntityContainer"`
}

// EntityType is an entity type definition.
type EntityType struct {
	Name                 string               `xml:"Name,attr"`
	Label                string               `xml:"label,attr"`
	Key                  Key                  `xml:"Key"`
	Properties           []Property           `xml:"Property"`
	NavigationProperties []NavigationProperty `xml:"NavigationProperty"`
	Documentation        *Documentation       `xml:"Documentation"`
}

// Key lists the key property references.
type Key struct {
	PropertyRefs []PropertyRef `xml:"PropertyRef"`
}

// PropertyRef names one key property.
type PropertyRef struct {
	Name string `xml:"Name,attr"`
}

// Property is a structural property of an entity type.
type Property struct {
	Name            string         `xml:"Name,attr"`
	Type            string         `xml:"Type,attr"`
	Nullable        string         `xml:"Nullable,attr"`
	Label           string         `xml:"label,attr"` // sap:label
	LongDescription string         `xml:"LongDescription,attr"`
	Summary         string         `xml:"Summary,attr"`
	Documentation   *Documentation `xml:"Documentation"`
}

// Documentation is the nested EDM documentation element.
type Documentation struct {
	Summary         string `xml:"Summary"`
	LongDescription string `xml:"LongDescription"`
}

// NavigationProperty is a v2 association-based navigation property.
type NavigationProperty struct {
	Name         string `xml:"Name,attr"`
	Relationship string `xml:"Relationship,attr"`
	FromRole     string `xml:"FromRole,attr"`
	ToRole       string `xml:"ToRole,attr"`
}

// EntityContainer holds entity sets and function imports.
type EntityContainer struct {
	Name            string           `xml:"Name,attr"`
	EntitySets      []EntitySet      `xml:"EntitySet"`
	FunctionImports []FunctionImport `xml:"FunctionImport"`
}

// EntitySet carries the SAP capability annotations as raw attribute text.
type EntitySet struct {
	Name       string `xml:"Name,attr"`
	EntityType string `xml:"EntityType,attr"`
	Label      string `xml:"label,attr"`
	Creatable  string `xml:"creatable,attr"`
	Updatable  string `xml:"updatable,attr"`
	Deletable  string `xml:"deletable,attr"`
	Searchable string `xml:"searchable,attr"`
	Pageable   string `xml:"pageable,attr"`
}

// FunctionImport is a service operation declaration.
type FunctionImport struct {
	Name       string      `xml:"Name,attr"`
	ReturnType string      `xml:"ReturnType,attr"`
	HTTPMethod string      `xml:"HttpMethod,attr"` // m:HttpMethod
	Label      string      `xml:"label,attr"`
	Parameters []Parameter `xml:"Parameter"`
}

// Parameter is a function import parameter.
type Parameter struct {
	Name     string `xml:"Name,attr"`
	Type     string `xml:"Type,attr"`
	Mode     string `xml:"Mode,attr"`
	Nullable string `xml:"Nullable,attr"`
}

// ParseMetadata parses an OData v2 $metadata document into the capability
// model.
func ParseMetadata(data []byte, serviceRoot string) (*models.ODataMetadata, error) {
	var edmx EDMX
	if err := xml.Unmarshal(data, &edmx); err != nil {
		return nil, fmt.Errorf("failed to parse metadata XML: %w", err)
	}
	if len(edmx.DataServices.Schemas) == 0 {
		return nil, fmt.Errorf("metadata document contains no schema")
	}

	meta := &models.ODataMetadata{
		ServiceRoot:     serviceRoot,
		EntityTypes:     make(map[string]*models.EntityType),
		EntitySets:      make(map[string]*models.EntitySet),
		FunctionImports: make(map[string]*models.FunctionImport),
		Version:         edmx.Version,
		ParsedAt:        time.Now(),
	}

	for _, schema := range edmx.DataServices.Schemas {
		if meta.SchemaNamespace == "" {
			meta.SchemaNamespace = schema.Namespace
		}
		for _, et := range schema.EntityTypes {
			meta.EntityTypes[et.Name] = parseEntityType(et)
		}
		if schema.EntityContainer == nil {
			continue
		}
		meta.ContainerName = schema.EntityContainer.Name
		for _, es := range schema.EntityContainer.EntitySets {
			meta.EntitySets[es.Name] = parseEntitySet(es)
		}
		for _, fi := range schema.EntityContainer.FunctionImports {
			meta.FunctionImports[fi.Name] = parseFunctionImport(fi)
		}
	}

	// An entity set may reference a type the document never defines (seen
	// with split or trimmed schemas). Operation generation needs a type, so
	// synthesize the same minimal ID-keyed one the service-document
	// fallback uses.
	for _, es := range meta.EntitySets {
		if _, ok := meta.EntityTypes[es.EntityType]; !ok {
			meta.EntityTypes[es.EntityType] = synthesizeEntityType(es.EntityType)
		}
	}

	return meta, nil
}

func parseEntityType(et EntityType) *models.EntityType {
	out := &models.EntityType{
		Name:          et.Name,
		Properties:    make([]*models.EntityProperty, 0, len(et.Properties)),
		KeyProperties: make([]string, 0, len(et.Key.PropertyRefs)),
	}
	if desc := typeDescription(et); desc != "" {
		out.Description = &desc
	}

	for _, ref := range et.Key.PropertyRefs {
		out.KeyProperties = append(out.KeyProperties, ref.Name)
	}

	for _, prop := range et.Properties {
		p := &models.EntityProperty{
			Name:     prop.Name,
			Type:     prop.Type,
			Nullable: prop.Nullable != "false",
			IsKey:    contains(out.KeyProperties, prop.Name),
		}
		if desc := propertyDescription(prop); desc != "" {
			p.Description = &desc
		}
		out.Properties = append(out.Properties, p)
	}

	for _, nav := range et.NavigationProperties {
		out.NavigationProps = append(out.NavigationProps, &models.NavigationProperty{
			Name:         nav.Name,
			Relationship: nav.Relationship,
			FromRole:     nav.FromRole,
			ToRole:       nav.ToRole,
		})
	}

	return out
}

// propertyDescription resolves a human-readable description, preferring the
// SAP label.
func propertyDescription(prop Property) string {
	if prop.Label != "" {
		return prop.Label
	}
	if prop.LongDescription != "" {
		return prop.LongDescription
	}
	if prop.Summary != "" {
		return prop.Summary
	}
	if prop.Documentation != nil {
		if prop.Documentation.Summary != "" {
			return prop.Documentation.Summary
		}
		return prop.Documentation.LongDescription
	}
	return ""
}

func typeDescription(et EntityType) string {
	if et.Label != "" {
		return et.Label
	}
	if et.Documentation != nil {
		if et.Documentation.Summary != "" {
			return et.Documentation.Summary
		}
		return et.Documentation.LongDescription
	}
	return ""
}

func parseEntitySet(es EntitySet) *models.EntitySet {
	out := &models.EntitySet{
		Name:       es.Name,
		EntityType: simpleTypeName(es.EntityType),
		Creatable:  es.Creatable != "false",
		Updatable:  es.Updatable != "false",
		Deletable:  es.Deletable != "false",
		Searchable: es.Searchable == "true",
		Pageable:   es.Pageable != "false",
	}
	if es.Label != "" {
		label := es.Label
		out.Description = &label
	}
	return out
}

func parseFunctionImport(fi FunctionImport) *models.FunctionImport {
	out := &models.FunctionImport{
		Name:       fi.Name,
		ReturnType: fi.ReturnType,
		HTTPMethod: fi.HTTPMethod,
		Parameters: make([]*models.FunctionParameter, 0, len(fi.Parameters)),
	}
	if out.HTTPMethod == "" {
		out.HTTPMethod = constants.GET
	}
	if fi.Label != "" {
		label := fi.Label
		out.Description = &label
	}

	for _, param := range fi.Parameters {
		mode := param.Mode
		if mode == "" {
			mode = "In"
		}
		// Output-only parameters are not tool inputs.
		if mode == "Out" || mode == "ReturnValue" {
			continue
		}
		out.Parameters = append(out.Parameters, &models.FunctionParameter{
			Name:     param.Name,
			Type:     param.Type,
			Mode:     mode,
			Nullable: param.Nullable != "false",
		})
	}

	return out
}

// simpleTypeName strips the schema namespace from a fully qualified type.
func simpleTypeName(fqn string) string {
	if idx := strings.LastIndex(fqn, "."); idx >= 0 {
		return fqn[idx+1:]
	}
	return fqn
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
