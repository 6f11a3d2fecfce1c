package bridge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mcptools/odata-bridge/internal/client"
	"github.com/mcptools/odata-bridge/internal/constants"
	"github.com/mcptools/odata-bridge/internal/models"
	"github.com/mcptools/odata-bridge/internal/utils"
)

// enhanceResponse applies the configured response shaping in place: size
// limits, GUID decoding, date conversion, metadata stripping and pagination
// hints.
func (b *Bridge) enhanceResponse(resp *models.ODataResponse, entitySet, toolName string, options map[string]string) {
	b.applySizeLimits(resp)

	if fields := b.guidFieldsFor(entitySet); len(fields) > 0 {
		if resp.Results != nil {
			resp.Results = utils.DecodeGUIDsInResponse(resp.Results, fields).([]interface{})
		}
		if resp.Value != nil {
			resp.Value = utils.DecodeGUIDsInResponse(resp.Value, fields)
		}
	}

	if b.config.LegacyDates {
		if resp.Results != nil {
			resp.Results = utils.ConvertDates(resp.Results, true).([]interface{})
		}
		if resp.Value != nil {
			resp.Value = utils.ConvertDates(resp.Value, true)
		}
	}

	if !b.config.ResponseMetadata {
		if resp.Results != nil {
			resp.Results = stripMetadata(resp.Results).([]interface{})
		}
		if resp.Value != nil {
			resp.Value = stripMetadata(resp.Value)
		}
	}

	if b.config.PaginationHints {
		b.addPaginationHint(resp, toolName, options)
	} else {
		resp.Pagination = nil
	}
}

// applySizeLimits truncates oversized collections, recording a warning so
// the caller knows data was dropped.
func (b *Bridge) applySizeLimits(resp *models.ODataResponse) {
	if resp.Results == nil {
		return
	}

	if b.config.MaxItems > 0 && len(resp.Results) > b.config.MaxItems {
		original := len(resp.Results)
		resp.Results = resp.Results[:b.config.MaxItems]
		resp.Warnings = append(resp.Warnings,
			fmt.Sprintf("Response truncated from %d to %d items (--max-items limit)", original, b.config.MaxItems))
	}

	if b.config.MaxResponseSize > 0 && len(resp.Results) > 0 {
		encoded, err := json.Marshal(resp.Results)
		if err != nil || len(encoded) <= b.config.MaxResponseSize {
			return
		}

		avgItemSize := len(encoded) / len(resp.Results)
		if avgItemSize == 0 {
			return
		}
		keep := b.config.MaxResponseSize / avgItemSize
		if keep < 1 {
			keep = 1
		}
		if keep < len(resp.Results) {
			original := len(resp.Results)
			resp.Results = resp.Results[:keep]
			resp.Warnings = append(resp.Warnings,
				fmt.Sprintf("Response truncated from %d to %d items to stay under %d bytes",
					original, keep, b.config.MaxResponseSize))
		}
	}
}

// addPaginationHint fills in SuggestedNextCall when the collection has more
// pages, carrying the caller's query options forward with an advanced $skip
// or the server's $skiptoken.
func (b *Bridge) addPaginationHint(resp *models.ODataResponse, toolName string, options map[string]string) {
	if resp.Pagination == nil || !resp.Pagination.HasMore {
		return
	}

	nextArgs := make(map[string]string)
	for _, opt := range client.ContinuationOptions {
		if v, ok := options[opt]; ok && v != "" {
			nextArgs[opt] = v
		}
	}
	// Server-driven paging hands out an opaque token; replay it instead of
	// a numeric position.
	if resp.Pagination.SkipToken != "" {
		nextArgs[constants.QuerySkipToken] = resp.Pagination.SkipToken
	} else {
		nextArgs[constants.QuerySkip] = fmt.Sprintf("%d", resp.Pagination.Skip)
	}

	keys := make([]string, 0, len(nextArgs))
	for k := range nextArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%q: %q", k, nextArgs[k]))
	}

	call := fmt.Sprintf("%s({%s})", toolName, strings.Join(parts, ", "))
	resp.Pagination.SuggestedNextCall = &call
}

// stripMetadata removes __metadata blocks from entities recursively.
func stripMetadata(data interface{}) interface{} {
	switch v := data.(type) {
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = stripMetadata(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			if key != "__metadata" {
				out[key] = stripMetadata(value)
			}
		}
		return out
	default:
		return data
	}
}
