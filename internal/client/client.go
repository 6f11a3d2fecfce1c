package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mcptools/odata-bridge/internal/constants"
	"github.com/mcptools/odata-bridge/internal/debug"
	"github.com/mcptools/odata-bridge/internal/metadata"
	"github.com/mcptools/odata-bridge/internal/models"
	"github.com/mcptools/odata-bridge/internal/utils"
)

// ODataClient speaks OData v2 to a single service. It owns the CSRF token
// lifecycle, session cookies and retry behavior.
type ODataClient struct {
	baseURL        string
	httpClient     *http.Client
	cookies        map[string]string
	username       string
	password       string
	csrfToken      string
	verbose        bool
	verboseErrors  bool
	sessionCookies []*http.Cookie
	retryConfig    *RetryConfig
	meta           *models.ODataMetadata
	mu             sync.RWMutex // guards csrfToken, sessionCookies, cookies, meta
}

// NewODataClient creates a client for the given service root.
func NewODataClient(baseURL string, verbose bool) *ODataClient {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &ODataClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(constants.DefaultTimeout) * time.Second,
		},
		verbose:     verbose,
		retryConfig: DefaultRetryConfig(),
	}
}

// SetBasicAuth configures basic authentication.
func (c *ODataClient) SetBasicAuth(username, password string) {
	c.username = username
	c.password = password
}

// SetCookies configures cookie authentication.
func (c *ODataClient) SetCookies(cookies map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies = cookies
}

// SetVerboseErrors switches error extraction into its detailed mode,
// which keeps vendor error codes and inner-error detail chains.
func (c *ODataClient) SetVerboseErrors(enabled bool) {
	c.verboseErrors = enabled
}

// SetRetryConfig overrides the retry behavior.
func (c *ODataClient) SetRetryConfig(cfg *RetryConfig) {
	if cfg != nil {
		c.retryConfig = cfg
	}
}

// ServiceRoot returns the normalized base URL.
func (c *ODataClient) ServiceRoot() string {
	return c.baseURL
}

// encodeQueryParams encodes query parameters with %20 for spaces. OData
// services reject the '+' form inside $filter expressions.
func encodeQueryParams(params url.Values) string {
	return strings.ReplaceAll(params.Encode(), "+", "%20")
}

func (c *ODataClient) buildRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	fullURL := c.baseURL + strings.TrimPrefix(endpoint, "/")

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(constants.UserAgent, constants.DefaultUserAgent)
	req.Header.Set(constants.Accept, constants.ContentTypeJSON)

	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, value := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	for _, cookie := range c.sessionCookies {
		req.AddCookie(cookie)
	}

	if c.csrfToken != "" {
		req.Header.Set(constants.CSRFTokenHeader, c.csrfToken)
	}

	return req, nil
}

func isModifyingMethod(method string) bool {
	switch method {
	case constants.POST, constants.PUT, constants.MERGE, constants.PATCH, constants.DELETE:
		return true
	}
	return false
}

// doRequest executes a request with retry and CSRF recovery. The returned
// response body is fully buffered and safe to read.
func (c *ODataClient) doRequest(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil && req.ContentLength > 0 {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}
	return c.doRequestWithRetry(req, bodyBytes)
}

func (c *ODataClient) doRequestWithRetry(req *http.Request, bodyBytes []byte) (*http.Response, error) {
	var lastErr error
	var lastResp *http.Response
	var lastBody []byte
	csrfRetried := false
	modifying := isModifyingMethod(req.Method)

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retryConfig.CalculateBackoff(attempt - 1)
			if c.verbose {
				fmt.Fprintf(os.Stderr, "[VERBOSE] Retry attempt %d/%d after %v\n",
					attempt, c.retryConfig.MaxRetries, backoff)
			}
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(backoff):
			}
		}

		if len(bodyBytes) > 0 {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		if c.verbose && attempt == 0 {
			fmt.Fprintf(os.Stderr, "[VERBOSE] %s %s\n", req.Method, debug.MaskURL(req.URL.String()))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", readErr)
			continue
		}

		lastResp = resp
		lastBody = respBody

		// CSRF recovery: clear the token, fetch a fresh one and replay the
		// request exactly once. The replay does not consume a retry.
		if resp.StatusCode == http.StatusForbidden && modifying && !csrfRetried {
			if IsCSRFFailure(resp, respBody) {
				if c.verbose {
					fmt.Fprintf(os.Stderr, "[VERBOSE] CSRF token rejected, refetching...\n")
				}
				csrfRetried = true
				c.mu.Lock()
				c.csrfToken = ""
				c.mu.Unlock()

				if fetchErr := c.fetchCSRFToken(req.Context()); fetchErr != nil {
					return nil, fmt.Errorf("CSRF token required but refetch failed (HTTP %d): %s",
						resp.StatusCode, ExtractErrorMessage(respBody, false))
				}

				c.mu.RLock()
				req.Header.Set(constants.CSRFTokenHeader, c.csrfToken)
				c.mu.RUnlock()
				attempt--
				continue
			}
		}

		if c.retryConfig.ShouldRetry(resp.StatusCode, attempt) {
			if c.verbose {
				fmt.Fprintf(os.Stderr, "[VERBOSE] Received status %d, will retry\n", resp.StatusCode)
			}
			if ra := retryAfter(resp); ra > 0 {
				select {
				case <-req.Context().Done():
					return nil, req.Context().Err()
				case <-time.After(ra):
				}
			}
			continue
		}

		resp.Body = io.NopCloser(bytes.NewReader(respBody))
		return resp, nil
	}

	if lastResp != nil {
		lastResp.Body = io.NopCloser(bytes.NewReader(lastBody))
		return lastResp, nil
	}
	return nil, fmt.Errorf("all %d retries failed: %w", c.retryConfig.MaxRetries, lastErr)
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// fetchCSRFToken requests a token from the service root using the Fetch
// sentinel. Session cookies from the response are retained for subsequent
// requests. Header values "Fetch" or "Required" are echoes, not tokens.
func (c *ODataClient) fetchCSRFToken(ctx context.Context) error {
	c.mu.Lock()
	c.csrfToken = ""
	c.mu.Unlock()

	req, err := c.buildRequest(ctx, constants.GET, "", nil)
	if err != nil {
		return err
	}
	req.Header.Set(constants.CSRFTokenHeader, constants.CSRFTokenFetch)

	if c.verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] Fetching CSRF token from %s\n", debug.MaskURL(req.URL.String()))
	}

	// Plain Do: token fetches must not recurse into the retry loop.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("CSRF token request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if cookies := resp.Cookies(); len(cookies) > 0 {
		c.mu.Lock()
		c.sessionCookies = append(c.sessionCookies, cookies...)
		c.mu.Unlock()
		if c.verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Received %d session cookies during token fetch\n", len(cookies))
		}
	}

	token := resp.Header.Get(constants.CSRFTokenHeader)
	if token == "" {
		token = resp.Header.Get(constants.CSRFTokenHeaderLower)
	}

	lower := strings.ToLower(token)
	if token == "" || lower == "fetch" || lower == "required" {
		return fmt.Errorf("no usable CSRF token in response headers")
	}

	c.mu.Lock()
	c.csrfToken = token
	c.mu.Unlock()
	if c.verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] CSRF token fetched: %s\n", debug.MaskToken(token))
	}
	return nil
}

// GetMetadata fetches $metadata and parses it. When the document is
// unreachable or unparseable it falls back to the AtomPub service document
// and synthesizes a minimal schema.
func (c *ODataClient) GetMetadata(ctx context.Context) (*models.ODataMetadata, error) {
	req, err := c.buildRequest(ctx, constants.GET, constants.MetadataEndpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(constants.Accept, constants.ContentTypeXML)

	var parseErr error
	resp, err := c.doRequest(req)
	if err != nil {
		parseErr = err
	} else {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			parseErr = c.errorFromResponse(resp)
		} else {
			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				parseErr = fmt.Errorf("failed to read metadata response: %w", readErr)
			} else {
				meta, err := metadata.ParseMetadata(body, c.baseURL)
				if err == nil && len(meta.EntitySets) > 0 {
					c.storeMetadata(meta)
					return meta, nil
				}
				if err != nil {
					parseErr = err
				} else {
					parseErr = fmt.Errorf("metadata document defines no entity sets")
				}
			}
		}
	}

	if c.verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] $metadata unavailable (%v), trying service document fallback\n", parseErr)
	}
	meta, fallbackErr := c.getServiceDocument(ctx)
	if fallbackErr != nil {
		return nil, fmt.Errorf("metadata parsing failed: %w (service document fallback also failed: %v)", parseErr, fallbackErr)
	}
	c.storeMetadata(meta)
	return meta, nil
}

func (c *ODataClient) storeMetadata(meta *models.ODataMetadata) {
	c.mu.Lock()
	c.meta = meta
	c.mu.Unlock()
}

// getServiceDocument fetches the service root as an AtomPub service document
// and synthesizes a minimal capability model from its collections.
func (c *ODataClient) getServiceDocument(ctx context.Context) (*models.ODataMetadata, error) {
	req, err := c.buildRequest(ctx, constants.GET, "", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(constants.Accept, constants.ContentTypeAtomXML+", "+constants.ContentTypeXML)

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read service document: %w", err)
	}
	return metadata.ParseServiceDocument(body, c.baseURL)
}

// GetEntitySet reads a collection. JSON format and inline count are always
// requested; caller options override the defaults.
func (c *ODataClient) GetEntitySet(ctx context.Context, entitySet string, options map[string]string) (*models.ODataResponse, error) {
	params := url.Values{}
	params.Add(constants.QueryFormat, "json")
	if _, ok := options[constants.QueryInlineCount]; !ok {
		params.Add(constants.QueryInlineCount, "allpages")
	}
	for key, value := range options {
		if value != "" {
			params.Set(key, value)
		}
	}

	endpoint := entitySet + "?" + encodeQueryParams(params)
	req, err := c.buildRequest(ctx, constants.GET, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return c.handleResponse(resp, options)
}

// GetEntity reads a single entity by key.
func (c *ODataClient) GetEntity(ctx context.Context, entitySet string, key map[string]interface{}, options map[string]string) (*models.ODataResponse, error) {
	predicate, err := c.buildKeyPredicate(entitySet, key)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add(constants.QueryFormat, "json")
	for k, v := range options {
		if v != "" {
			params.Set(k, v)
		}
	}

	endpoint := fmt.Sprintf("%s(%s)?%s", entitySet, predicate, encodeQueryParams(params))
	req, err := c.buildRequest(ctx, constants.GET, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return c.handleResponse(resp, nil)
}

// GetEntityCount returns the number of entities matching the optional
// filter. The dedicated /$count endpoint is tried first; services that do
// not implement it get the $top=0 inline count fallback.
func (c *ODataClient) GetEntityCount(ctx context.Context, entitySet, filter string) (int64, error) {
	endpoint := entitySet + "/" + constants.CountSegment
	if filter != "" {
		params := url.Values{}
		params.Set(constants.QueryFilter, filter)
		endpoint += "?" + encodeQueryParams(params)
	}

	req, err := c.buildRequest(ctx, constants.GET, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set(constants.Accept, "text/plain")

	resp, err := c.doRequest(req)
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			body, readErr := io.ReadAll(resp.Body)
			if readErr == nil {
				if count, parseErr := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64); parseErr == nil {
					return count, nil
				}
			}
			// Unparseable body, fall through to the inline count path.
		case http.StatusNotFound, http.StatusBadRequest, http.StatusMethodNotAllowed:
			if c.verbose {
				fmt.Fprintf(os.Stderr, "[VERBOSE] /$count returned %d, falling back to $inlinecount\n", resp.StatusCode)
			}
		default:
			return 0, c.errorFromResponse(resp)
		}
	}

	options := map[string]string{
		constants.QueryTop:         "0",
		constants.QueryInlineCount: "allpages",
	}
	if filter != "" {
		options[constants.QueryFilter] = filter
	}
	fallback, err := c.GetEntitySet(ctx, entitySet, options)
	if err != nil {
		return 0, err
	}
	if fallback.Count == nil {
		return 0, fmt.Errorf("service returned no count for %s", entitySet)
	}
	return *fallback.Count, nil
}

// CreateEntity creates a new entity via POST.
func (c *ODataClient) CreateEntity(ctx context.Context, entitySet string, data map[string]interface{}) (*models.ODataResponse, error) {
	c.prepareModifyingCall(ctx)

	payload := utils.ConvertDecimalsForWrite(data)
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity data: %w", err)
	}

	endpoint := entitySet + "?" + constants.QueryFormat + "=json"
	req, err := c.buildRequest(ctx, constants.POST, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set(constants.ContentType, constants.ContentTypeJSON)
	req.ContentLength = int64(len(jsonData))

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return c.handleResponse(resp, nil)
}

// UpdateEntity updates an entity. With an explicit method only that verb is
// used; otherwise MERGE is tried first, then PUT, then PATCH, advancing on
// 405 responses only.
func (c *ODataClient) UpdateEntity(ctx context.Context, entitySet string, key map[string]interface{}, data map[string]interface{}, method string) (*models.ODataResponse, error) {
	predicate, err := c.buildKeyPredicate(entitySet, key)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s(%s)", entitySet, predicate)

	payload := utils.ConvertDecimalsForWrite(data)
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity data: %w", err)
	}

	methods := []string{constants.MERGE, constants.PUT, constants.PATCH}
	if method != "" {
		methods = []string{method}
	}

	var lastErr error
	for i, verb := range methods {
		c.prepareModifyingCall(ctx)

		req, buildErr := c.buildRequest(ctx, verb, endpoint, bytes.NewReader(jsonData))
		if buildErr != nil {
			return nil, buildErr
		}
		req.Header.Set(constants.ContentType, constants.ContentTypeJSON)
		req.ContentLength = int64(len(jsonData))

		resp, doErr := c.doRequest(req)
		if doErr != nil {
			return nil, doErr
		}

		if resp.StatusCode == http.StatusMethodNotAllowed && i < len(methods)-1 {
			resp.Body.Close()
			if c.verbose {
				fmt.Fprintf(os.Stderr, "[VERBOSE] %s not allowed for %s, trying %s\n", verb, entitySet, methods[i+1])
			}
			lastErr = fmt.Errorf("%s not allowed", verb)
			continue
		}

		out, parseErr := c.handleResponse(resp, nil)
		resp.Body.Close()
		return out, parseErr
	}

	return nil, fmt.Errorf("update failed for %s: %v", entitySet, lastErr)
}

// DeleteEntity deletes an entity by key.
func (c *ODataClient) DeleteEntity(ctx context.Context, entitySet string, key map[string]interface{}) (*models.ODataResponse, error) {
	c.prepareModifyingCall(ctx)

	predicate, err := c.buildKeyPredicate(entitySet, key)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s(%s)", entitySet, predicate)

	req, err := c.buildRequest(ctx, constants.DELETE, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return c.handleResponse(resp, nil)
}

// CallFunction invokes a function import. GET puts parameters into the
// query string with OData literal formatting; POST sends them as a JSON
// body with $format in the query.
func (c *ODataClient) CallFunction(ctx context.Context, functionName string, parameters map[string]interface{}, method string) (*models.ODataResponse, error) {
	var req *http.Request
	var err error

	if method == "" || method == constants.GET {
		parts := []string{constants.QueryFormat + "=json"}
		names := make([]string, 0, len(parameters))
		for name := range parameters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			parts = append(parts, formatFunctionParameter(name, parameters[name]))
		}
		endpoint := functionName + "?" + strings.Join(parts, "&")
		req, err = c.buildRequest(ctx, constants.GET, endpoint, nil)
	} else {
		c.prepareModifyingCall(ctx)

		jsonData, marshalErr := json.Marshal(parameters)
		if marshalErr != nil {
			return nil, fmt.Errorf("failed to marshal function parameters: %w", marshalErr)
		}
		endpoint := functionName + "?" + constants.QueryFormat + "=json"
		req, err = c.buildRequest(ctx, method, endpoint, bytes.NewReader(jsonData))
		if err == nil {
			req.Header.Set(constants.ContentType, constants.ContentTypeJSON)
			req.ContentLength = int64(len(jsonData))
		}
	}
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return c.handleResponse(resp, nil)
}

// prepareModifyingCall refreshes the CSRF token before a write. Services
// without CSRF protection simply don't return a token; the write proceeds
// without one.
func (c *ODataClient) prepareModifyingCall(ctx context.Context) {
	if err := c.fetchCSRFToken(ctx); err != nil && c.verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] CSRF token fetch failed, proceeding without it: %v\n", err)
	}
}

// buildKeyPredicate renders a key predicate: ('v') shorthand for single
// keys, (K1='a',K2=2) with sorted property names for composite keys.
// Literal formatting is type-aware when metadata is available.
func (c *ODataClient) buildKeyPredicate(entitySet string, key map[string]interface{}) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("no key values provided")
	}

	types := c.keyPropertyTypes(entitySet)

	if len(key) == 1 {
		for name, value := range key {
			return formatKeyLiteral(value, types[name]), nil
		}
	}

	names := make([]string, 0, len(key))
	for name := range key {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, formatKeyLiteral(key[name], types[name])))
	}
	return strings.Join(parts, ","), nil
}

func (c *ODataClient) keyPropertyTypes(entitySet string) map[string]string {
	types := make(map[string]string)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.meta == nil {
		return types
	}
	es, ok := c.meta.EntitySets[entitySet]
	if !ok {
		return types
	}
	et, ok := c.meta.EntityTypes[es.EntityType]
	if !ok {
		return types
	}
	for _, prop := range et.Properties {
		if prop.IsKey {
			types[prop.Name] = prop.Type
		}
	}
	return types
}

// formatKeyLiteral renders a single key value as an OData URL literal.
// Single quotes inside string values are doubled, then the value is
// percent-encoded: key predicates sit in the URL path, so characters like
// / in SAP object names would otherwise break the path.
func formatKeyLiteral(value interface{}, edmType string) string {
	switch v := value.(type) {
	case string:
		escaped := strings.ReplaceAll(v, "'", "''")
		switch edmType {
		case "Edm.Guid":
			return fmt.Sprintf("guid'%s'", escaped)
		case "Edm.DateTime":
			return fmt.Sprintf("datetime'%s'", escaped)
		case "Edm.Int16", "Edm.Int32", "Edm.Int64", "Edm.Byte", "Edm.SByte",
			"Edm.Single", "Edm.Double", "Edm.Decimal":
			return v
		default:
			return fmt.Sprintf("'%s'", strings.ReplaceAll(url.QueryEscape(escaped), "+", "%20"))
		}
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("'%v'", v)
	}
}

// formatFunctionParameter renders one GET function parameter. Strings are
// quoted and URL-escaped, booleans lowercase, numbers bare.
func formatFunctionParameter(name string, value interface{}) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("%s='%s'", name, url.QueryEscape(strings.ReplaceAll(v, "'", "''")))
	case bool:
		return fmt.Sprintf("%s=%t", name, v)
	case int:
		return fmt.Sprintf("%s=%d", name, v)
	case int64:
		return fmt.Sprintf("%s=%d", name, v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%s=%d", name, int64(v))
		}
		return fmt.Sprintf("%s=%g", name, v)
	default:
		return fmt.Sprintf("%s='%s'", name, url.QueryEscape(fmt.Sprintf("%v", v)))
	}
}

// handleResponse turns an HTTP response into a normalized ODataResponse or
// an extracted error.
func (c *ODataClient) handleResponse(resp *http.Response, requestOptions map[string]string) (*models.ODataResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("OData error (HTTP %d): %s", resp.StatusCode, ExtractErrorMessage(body, c.verboseErrors))
	}

	out, err := normalizeResponse(body, resp.StatusCode)
	if err != nil {
		return nil, err
	}

	if out.Pagination == nil && requestOptions != nil {
		out.Pagination = extractPagination(out, requestOptions)
	}
	return out, nil
}

func (c *ODataClient) errorFromResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("HTTP %d: failed to read error response", resp.StatusCode)
	}
	return fmt.Errorf("OData error (HTTP %d): %s", resp.StatusCode, ExtractErrorMessage(body, c.verboseErrors))
}
