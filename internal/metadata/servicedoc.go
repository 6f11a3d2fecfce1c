package metadata

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/mcptools/odata-bridge/internal/models"
)

// AtomPub service document, the fallback schema source when $metadata is
// unavailable or unparseable.

type serviceDocument struct {
	XMLName    xml.Name       `xml:"service"`
	Workspaces []appWorkspace `xml:"workspace"`
}

type appWorkspace struct {
	Title       string          `xml:"title"`
	Collections []appCollection `xml:"collection"`
}

type appCollection struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title"`
}

// ParseServiceDocument builds a minimal capability model from an AtomPub
// service document. Each collection becomes an entity set backed by a
// synthesized entity type with a single string key property named ID;
// synthesized sets are never searchable.
func ParseServiceDocument(data []byte, serviceRoot string) (*models.ODataMetadata, error) {
	var doc serviceDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse service document: %w", err)
	}

	meta := &models.ODataMetadata{
		ServiceRoot:     serviceRoot,
		EntityTypes:     make(map[string]*models.EntityType),
		EntitySets:      make(map[string]*models.EntitySet),
		FunctionImports: make(map[string]*models.FunctionImport),
		Version:         "2.0",
		ParsedAt:        time.Now(),
		FromServiceDoc:  true,
	}

	for _, ws := range doc.Workspaces {
		for _, coll := range ws.Collections {
			name := collectionName(coll)
			if name == "" || meta.EntitySets[name] != nil {
				continue
			}

			typeName := name + "Type"
			desc := fmt.Sprintf("Entity set %s (properties unknown, schema derived from service document)", name)
			meta.EntityTypes[typeName] = synthesizeEntityType(typeName)
			meta.EntitySets[name] = &models.EntitySet{
				Name:        name,
				EntityType:  typeName,
				Creatable:   true,
				Updatable:   true,
				Deletable:   true,
				Searchable:  false,
				Pageable:    true,
				Description: &desc,
			}
		}
	}

	if len(meta.EntitySets) == 0 {
		return nil, fmt.Errorf("service document contains no collections")
	}
	return meta, nil
}

func collectionName(coll appCollection) string {
	name := strings.TrimSpace(coll.Href)
	if name == "" {
		name = strings.TrimSpace(coll.Title)
	}
	// hrefs can be relative paths; keep the last segment
	name = strings.Trim(name, "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

func synthesizeEntityType(typeName string) *models.EntityType {
	desc := "Generic identifier (actual key properties unknown)"
	return &models.EntityType{
		Name: typeName,
		Properties: []*models.EntityProperty{
			{Name: "ID", Type: "Edm.String", Nullable: false, IsKey: true, Description: &desc},
		},
		KeyProperties: []string{"ID"},
		Synthesized:   true,
	}
}
