package metadata

import (
	"sort"

	"github.com/mcptools/odata-bridge/internal/models"
)

// ApplyOverrides mutates entity set capability flags after parsing and
// before operation generation. This is the only step allowed to change a
// parsed schema: forceWritable switches creatable, updatable and deletable
// on for every set (SAP gateways frequently annotate sets read-only even
// when writes work), while perSet flips individual flags on named sets and
// takes precedence. Returns the names of the sets whose flags changed,
// sorted for stable log output.
func ApplyOverrides(meta *models.ODataMetadata, forceWritable bool, perSet map[string]map[string]bool) []string {
	changed := make(map[string]bool)

	if forceWritable {
		for name, es := range meta.EntitySets {
			if !es.Creatable || !es.Updatable || !es.Deletable {
				changed[name] = true
			}
			es.Creatable = true
			es.Updatable = true
			es.Deletable = true
		}
	}

	for name, flags := range perSet {
		es, ok := meta.EntitySets[name]
		if !ok {
			continue
		}
		for flag, value := range flags {
			if setCapabilityFlag(es, flag, value) {
				changed[name] = true
			}
		}
	}

	names := make([]string, 0, len(changed))
	for name := range changed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// setCapabilityFlag assigns one named flag and reports whether the value
// actually changed. Unknown flag names are rejected during config parsing,
// so they are silently ignored here.
func setCapabilityFlag(es *models.EntitySet, flag string, value bool) bool {
	var target *bool
	switch flag {
	case "creatable":
		target = &es.Creatable
	case "updatable":
		target = &es.Updatable
	case "deletable":
		target = &es.Deletable
	case "searchable":
		target = &es.Searchable
	case "pageable":
		target = &es.Pageable
	default:
		return false
	}
	if *target == value {
		return false
	}
	*target = value
	return true
}
