package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mcptools/odata-bridge/internal/constants"
	"github.com/mcptools/odata-bridge/internal/models"
)

// normalizeResponse unwraps the OData v2 "d" envelope into a flat response.
// d.results becomes Results, __count becomes Count, __next becomes
// NextLink. A 204 yields a success message; a JSON body without the "d"
// wrapper is unusual but not fatal.
func normalizeResponse(body []byte, statusCode int) (*models.ODataResponse, error) {
	if statusCode == http.StatusNoContent || len(body) == 0 {
		return &models.ODataResponse{Message: "Operation completed successfully (no content returned)"}, nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	out := &models.ODataResponse{}

	d, hasWrapper := raw["d"].(map[string]interface{})
	if !hasWrapper {
		// Some gateways return a bare list under "d" on function results.
		if list, ok := raw["d"].([]interface{}); ok {
			out.Results = list
			return out, nil
		}
		out.Warnings = append(out.Warnings, "response is missing the OData v2 'd' wrapper")
		d = raw
	}

	if results, ok := d["results"].([]interface{}); ok {
		out.Results = results
	} else if len(d) > 0 {
		out.Value = stripODataControlFields(d)
	}

	if count, ok := d["__count"]; ok {
		if n, ok := parseCount(count); ok {
			out.Count = &n
		}
	}
	if next, ok := d["__next"].(string); ok {
		out.NextLink = next
	}

	return out, nil
}

// parseCount handles __count arriving as either a JSON string or number.
func parseCount(v interface{}) (int64, bool) {
	switch c := v.(type) {
	case string:
		n, err := strconv.ParseInt(c, 10, 64)
		return n, err == nil
	case float64:
		return int64(c), true
	}
	return 0, false
}

// stripODataControlFields removes the collection-level __count/__next keys
// from a single-entity payload. Entity-level __metadata is left for the
// response shaping layer, which strips it unless configured otherwise.
func stripODataControlFields(d map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(d))
	for k, v := range d {
		if k == "__count" || k == "__next" {
			continue
		}
		out[k] = v
	}
	return out
}

// extractPagination derives continuation info for a collection read. The
// next-link's $skip wins when present; otherwise the position is
// synthesized from the total count and the requested $skip/$top.
func extractPagination(resp *models.ODataResponse, requested map[string]string) *models.PaginationInfo {
	if resp.Results == nil {
		return nil
	}

	info := &models.PaginationInfo{
		TotalCount:   resp.Count,
		CurrentCount: len(resp.Results),
	}

	currentSkip := 0
	if s, ok := requested[constants.QuerySkip]; ok {
		if n, err := strconv.Atoi(s); err == nil {
			currentSkip = n
		}
	}
	currentTop := 0
	if s, ok := requested[constants.QueryTop]; ok {
		if n, err := strconv.Atoi(s); err == nil {
			currentTop = n
		}
	}
	info.Top = currentTop

	if resp.NextLink != "" {
		info.HasMore = true
		info.SkipToken = skipTokenFromLink(resp.NextLink)
		info.Skip = nextSkipFromLink(resp.NextLink, currentSkip, len(resp.Results))
		return info
	}

	if resp.Count != nil {
		consumed := int64(currentSkip + len(resp.Results))
		if *resp.Count > consumed {
			info.HasMore = true
			if currentTop > 0 {
				info.Skip = currentSkip + currentTop
			} else {
				info.Skip = currentSkip + len(resp.Results)
			}
		}
	}
	return info
}

// nextSkipFromLink pulls $skip out of a __next URL. Skiptoken-based links
// don't carry a numeric position, so the arithmetic fallback applies.
func nextSkipFromLink(nextLink string, currentSkip, resultCount int) int {
	if parsed, err := url.Parse(nextLink); err == nil {
		if s := parsed.Query().Get(constants.QuerySkip); s != "" {
			if n, err := strconv.Atoi(s); err == nil {
				return n
			}
		}
	}
	return currentSkip + resultCount
}

// skipTokenFromLink pulls $skiptoken out of a __next URL. Server-driven
// paging backends hand out opaque tokens instead of numeric positions; the
// token must be replayed verbatim on the following call.
func skipTokenFromLink(nextLink string) string {
	if parsed, err := url.Parse(nextLink); err == nil {
		return parsed.Query().Get(constants.QuerySkipToken)
	}
	return ""
}

// ContinuationOptions lists the query options carried over into a suggested
// follow-up call.
var ContinuationOptions = []string{
	constants.QueryFilter,
	constants.QuerySelect,
	constants.QueryExpand,
	constants.QueryOrderBy,
	constants.QuerySearch,
	constants.QueryTop,
}

var xmlMessagePattern = regexp.MustCompile(`<(?:message|error|Message|Error)[^>]*>([^<]+)<`)

// ExtractErrorMessage digs the most useful human-readable message out of an
// OData error payload. The extraction ladder follows what SAP gateways
// actually emit: the standard error envelope first, then progressively
// deeper inner-error fields, then XML bodies, then raw text. Verbose mode
// prepends the error code and appends inner error details.
func ExtractErrorMessage(body []byte, verbose bool) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "no error details provided"
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		if m := xmlMessagePattern.FindSubmatch(body); len(m) > 1 {
			return strings.TrimSpace(string(m[1]))
		}
		return truncateText(text, 500)
	}

	if errObj, ok := payload["error"].(map[string]interface{}); ok {
		if msg := messageFromErrorObject(errObj, verbose); msg != "" {
			return msg
		}
	}

	// Non-standard envelopes seen in the wild.
	if msg, ok := payload["Message"].(string); ok && msg != "" {
		return msg
	}
	if msg, ok := payload["ExceptionMessage"].(string); ok && msg != "" {
		return msg
	}

	return truncateText(text, 500)
}

func messageFromErrorObject(errObj map[string]interface{}, verbose bool) string {
	var base string

	// error.message is either {"lang": ..., "value": ...} or a plain string.
	switch msg := errObj["message"].(type) {
	case map[string]interface{}:
		if v, ok := msg["value"].(string); ok {
			base = v
		}
	case string:
		base = msg
	}

	code, _ := errObj["code"].(string)
	if base == "" && code != "" {
		base = code
	} else if base != "" && code != "" && verbose {
		base = fmt.Sprintf("%s: %s", code, base)
	}

	inner, _ := errObj["innererror"].(map[string]interface{})
	if inner == nil {
		return base
	}

	if details := innerErrorDetails(inner); details != "" {
		if base == "" {
			return details
		}
		if verbose {
			return base + " | " + details
		}
		return base
	}

	if base != "" {
		return base
	}

	// No details list; dig for an application message.
	if app, ok := inner["application"].(map[string]interface{}); ok {
		for _, key := range []string{"message_text", "message", "error_text", "text"} {
			if v, ok := app[key].(string); ok && v != "" {
				return v
			}
		}
	}
	if v, ok := inner["message"].(string); ok && v != "" {
		return v
	}
	return ""
}

// innerErrorDetails joins innererror.errordetails messages with "; ".
func innerErrorDetails(inner map[string]interface{}) string {
	details, _ := inner["errordetails"].([]interface{})
	if len(details) == 0 {
		return ""
	}
	var messages []string
	for _, d := range details {
		entry, ok := d.(map[string]interface{})
		if !ok {
			continue
		}
		if msg, ok := entry["message"].(string); ok && msg != "" {
			messages = append(messages, msg)
		}
	}
	return strings.Join(messages, "; ")
}

func truncateText(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
