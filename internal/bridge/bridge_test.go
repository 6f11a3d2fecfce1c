package bridge

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mcptools/odata-bridge/internal/client"
	"github.com/mcptools/odata-bridge/internal/config"
	"github.com/mcptools/odata-bridge/internal/hint"
	"github.com/mcptools/odata-bridge/internal/mcp"
	"github.com/mcptools/odata-bridge/internal/models"
	"github.com/mcptools/odata-bridge/internal/namer"
)

func sampleMetadata() *models.ODataMetadata {
	return &models.ODataMetadata{
		ServiceRoot: "https://host/sap/opu/odata/sap/ZSHOP_SRV/",
		EntityTypes: map[string]*models.EntityType{
			"Product": {
				Name: "Product",
				Properties: []*models.EntityProperty{
					{Name: "ProductID", Type: "Edm.String", IsKey: true},
					{Name: "Name", Type: "Edm.String", Nullable: false},
					{Name: "Price", Type: "Edm.Decimal", Nullable: true},
				},
				KeyProperties: []string{"ProductID"},
			},
			"Order": {
				Name: "Order",
				Properties: []*models.EntityProperty{
					{Name: "OrderID", Type: "Edm.Int32", IsKey: true},
					{Name: "ItemNo", Type: "Edm.Int32", IsKey: true},
					{Name: "Status", Type: "Edm.String", Nullable: true},
				},
				KeyProperties: []string{"OrderID", "ItemNo"},
			},
		},
		EntitySets: map[string]*models.EntitySet{
			"Products": {Name: "Products", EntityType: "Product", Creatable: true, Updatable: true, Deletable: true, Pageable: true},
			"Orders":   {Name: "Orders", EntityType: "Order", Creatable: false, Updatable: true, Deletable: false, Searchable: true, Pageable: true},
		},
		FunctionImports: map[string]*models.FunctionImport{
			"GetOrderTotal": {Name: "GetOrderTotal", HTTPMethod: "GET", Parameters: []*models.FunctionParameter{
				{Name: "OrderID", Type: "Edm.Int32", Mode: "In", Nullable: false},
			}},
			"CancelOrder": {Name: "CancelOrder", HTTPMethod: "POST", Parameters: []*models.FunctionParameter{
				{Name: "OrderID", Type: "Edm.Int32", Mode: "In", Nullable: false},
			}},
		},
		SchemaNamespace: "ZSHOP",
		ContainerName:   "ZSHOP_Entities",
		Version:         "2.0",
		ParsedAt:        time.Now(),
	}
}

func testBridge(t *testing.T, cfg *config.Config) *Bridge {
	t.Helper()
	return testBridgeWithMetadata(t, cfg, sampleMetadata())
}

func testBridgeWithMetadata(t *testing.T, cfg *config.Config, meta *models.ODataMetadata) *Bridge {
	t.Helper()
	if cfg.ServiceURL == "" {
		cfg.ServiceURL = "https://host/sap/opu/odata/sap/ZSHOP_SRV/"
	}
	if err := cfg.ResolveOperations(); err != nil {
		t.Fatalf("ResolveOperations failed: %v", err)
	}
	if err := cfg.ResolveEntityOverrides(); err != nil {
		t.Fatalf("ResolveEntityOverrides failed: %v", err)
	}
	b := &Bridge{
		config:     cfg,
		client:     client.NewODataClient(cfg.ServiceURL, false),
		server:     mcp.NewServer("test", "0.0.0"),
		hints:      hint.NewManager(),
		shortener:  namer.NewShortener(cfg.ToolShrink),
		metadata:   meta,
		tools:      make(map[string]*models.ToolInfo),
		guidFields: make(map[string][]string),
		dateFields: make(map[string]map[string]bool),
	}
	b.applyCapabilityOverrides()
	b.generateTools()
	return b
}

func toolNames(b *Bridge) map[string]bool {
	names := make(map[string]bool, len(b.tools))
	for name := range b.tools {
		names[name] = true
	}
	return names
}

func findToolByOperation(b *Bridge, entitySet, operation string) *models.ToolInfo {
	for _, info := range b.tools {
		if info.EntitySet == entitySet && info.Operation == operation {
			return info
		}
	}
	return nil
}

func TestGenerateToolsDefault(t *testing.T) {
	b := testBridge(t, &config.Config{})

	// The postfix carries the SAP service ID derived from the URL.
	names := toolNames(b)
	for _, want := range []string{
		"odata_service_info_for_ZSHOP",
		"filter_Products_for_ZSHOP",
		"count_Products_for_ZSHOP",
		"get_Products_for_ZSHOP",
		"create_Products_for_ZSHOP",
		"update_Products_for_ZSHOP",
		"delete_Products_for_ZSHOP",
		"search_Orders_for_ZSHOP",
		"GetOrderTotal_for_ZSHOP",
		"CancelOrder_for_ZSHOP",
	} {
		if !names[want] {
			t.Errorf("missing tool %q; have %v", want, names)
		}
	}

	// Orders is sap:creatable=false and sap:deletable=false.
	if names["create_Orders_for_ZSHOP"] {
		t.Error("create tool generated for a non-creatable entity set")
	}
	if names["delete_Orders_for_ZSHOP"] {
		t.Error("delete tool generated for a non-deletable entity set")
	}
	// Products is not sap:searchable.
	if names["search_Products_for_ZSHOP"] {
		t.Error("search tool generated for a non-searchable entity set")
	}
}

func TestGenerateToolsReadOnly(t *testing.T) {
	b := testBridge(t, &config.Config{ReadOnly: true})

	for _, info := range b.tools {
		switch info.Operation {
		case "create", "update", "delete":
			t.Errorf("modifying tool %s generated in read-only mode", info.Name)
		}
		if info.Function != "" {
			t.Errorf("function tool %s generated in read-only mode", info.Name)
		}
	}
	if findToolByOperation(b, "Products", "filter") == nil {
		t.Error("filter tool missing in read-only mode")
	}
}

func TestGenerateToolsReadOnlyButFunctions(t *testing.T) {
	b := testBridge(t, &config.Config{ReadOnlyButFunctions: true})

	names := toolNames(b)
	if !names["GetOrderTotal_for_ZSHOP"] || !names["CancelOrder_for_ZSHOP"] {
		t.Errorf("function tools should survive read-only-but-functions mode; have %v", names)
	}
	if findToolByOperation(b, "Products", "create") != nil {
		t.Error("create tool generated in read-only-but-functions mode")
	}
}

func TestGenerateToolsEnableFilter(t *testing.T) {
	b := testBridge(t, &config.Config{EnableOps: "R"})

	for _, info := range b.tools {
		switch info.Operation {
		case "create", "update", "delete":
			t.Errorf("tool %s generated despite --enable R", info.Name)
		}
		if info.Function != "" {
			t.Errorf("function tool %s generated despite --enable R", info.Name)
		}
	}
	if findToolByOperation(b, "Products", "filter") == nil {
		t.Error("filter tool missing with --enable R")
	}
	if findToolByOperation(b, "Orders", "search") == nil {
		t.Error("search tool missing with --enable R")
	}
}

func TestGenerateToolsDisableDelete(t *testing.T) {
	b := testBridge(t, &config.Config{DisableOps: "D"})

	if findToolByOperation(b, "Products", "delete") != nil {
		t.Error("delete tool generated despite --disable D")
	}
	if findToolByOperation(b, "Products", "create") == nil {
		t.Error("create tool missing with --disable D")
	}
}

func TestGenerateToolsEntityFilter(t *testing.T) {
	b := testBridge(t, &config.Config{AllowedEntities: []string{"Prod*"}})

	if findToolByOperation(b, "Products", "filter") == nil {
		t.Error("Products should match the Prod* filter")
	}
	if findToolByOperation(b, "Orders", "filter") != nil {
		t.Error("Orders should not match the Prod* filter")
	}
}

func TestFormatToolNamePrefixMode(t *testing.T) {
	b := testBridge(t, &config.Config{NoPostfix: true, ToolPrefix: "shop"})

	names := toolNames(b)
	if !names["shop_Products_filter"] {
		t.Errorf("prefix-mode name missing; have %v", names)
	}
}

func TestFormatToolNameCustomPostfix(t *testing.T) {
	b := testBridge(t, &config.Config{ToolPostfix: "myshop"})

	if !toolNames(b)["filter_Products_myshop"] {
		t.Errorf("custom postfix name missing; have %v", toolNames(b))
	}
}

func TestFormatToolNameBudget(t *testing.T) {
	b := testBridge(t, &config.Config{})

	long := "BusinessPartnerScreeningAddressDeterminationCollection"
	name := b.formatToolName("filter", long)
	if len(name) > 64 {
		t.Errorf("tool name %q exceeds 64 characters (%d)", name, len(name))
	}
	if !strings.HasPrefix(name, "filter_") {
		t.Errorf("operation prefix lost: %q", name)
	}
	if !strings.HasSuffix(name, "_for_ZSHOP") {
		t.Errorf("service postfix lost: %q", name)
	}
}

func TestFormatToolNameShrink(t *testing.T) {
	b := testBridge(t, &config.Config{ToolShrink: true})

	names := toolNames(b)
	if !names["upd_Products_for_ZSHOP"] {
		t.Errorf("shrunk update name missing; have %v", names)
	}
	if !names["del_Products_for_ZSHOP"] {
		t.Errorf("shrunk delete name missing; have %v", names)
	}
}

func TestMatchesAnyPattern(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		want     bool
	}{
		{"Products", nil, true},
		{"Products", []string{"Products"}, true},
		{"Products", []string{"Prod*"}, true},
		{"Products", []string{"*ucts"}, true},
		{"Products", []string{"Orders"}, false},
		{"Products", []string{"Ord*", "*ders"}, false},
	}
	for _, tt := range tests {
		if got := matchesAnyPattern(tt.name, tt.patterns); got != tt.want {
			t.Errorf("matchesAnyPattern(%q, %v) = %v, want %v", tt.name, tt.patterns, got, tt.want)
		}
	}
}

func TestJSONSchemaType(t *testing.T) {
	tests := []struct {
		edm  string
		want string
	}{
		{"Edm.String", "string"},
		{"Edm.Guid", "string"},
		{"Edm.DateTime", "string"},
		{"Edm.Binary", "string"},
		{"Edm.Int32", "integer"},
		{"Edm.Decimal", "number"},
		{"Edm.Boolean", "boolean"},
		{"Edm.Unknown", "string"},
	}
	for _, tt := range tests {
		if got := jsonSchemaType(tt.edm); got != tt.want {
			t.Errorf("jsonSchemaType(%q) = %q, want %q", tt.edm, got, tt.want)
		}
	}
}

func TestCollectKeyValuesReportsAllMissing(t *testing.T) {
	b := testBridge(t, &config.Config{})
	et := b.metadata.EntityTypes["Order"]

	_, err := b.collectKeyValues("Orders", et, map[string]interface{}{})
	if err == nil {
		t.Fatal("expected error for missing keys")
	}
	msg := err.Error()
	if !strings.Contains(msg, "OrderID") || !strings.Contains(msg, "ItemNo") {
		t.Errorf("error %q should name every missing key", msg)
	}
	if !strings.HasPrefix(msg, "Missing required key parameters:") {
		t.Errorf("unexpected error format: %q", msg)
	}
}

func TestEnhanceResponseTruncation(t *testing.T) {
	b := testBridge(t, &config.Config{MaxItems: 2})

	results := []interface{}{
		map[string]interface{}{"ProductID": "1"},
		map[string]interface{}{"ProductID": "2"},
		map[string]interface{}{"ProductID": "3"},
	}
	resp := &models.ODataResponse{Results: results}

	b.enhanceResponse(resp, "Products", "filter_Products", nil)
	if len(resp.Results) != 2 {
		t.Errorf("Results length = %d, want 2", len(resp.Results))
	}
	if len(resp.Warnings) == 0 || !strings.Contains(resp.Warnings[0], "truncated") {
		t.Errorf("Warnings = %v, want a truncation warning", resp.Warnings)
	}
}

func TestEnhanceResponseStripsMetadata(t *testing.T) {
	b := testBridge(t, &config.Config{})

	resp := &models.ODataResponse{
		Value: map[string]interface{}{
			"ProductID":  "1",
			"__metadata": map[string]interface{}{"uri": "x"},
		},
	}
	b.enhanceResponse(resp, "Products", "get_Products", nil)

	entity := resp.Value.(map[string]interface{})
	if _, ok := entity["__metadata"]; ok {
		t.Error("__metadata should be stripped by default")
	}
}

func TestEnhanceResponseKeepsMetadataWhenRequested(t *testing.T) {
	b := testBridge(t, &config.Config{ResponseMetadata: true})

	resp := &models.ODataResponse{
		Value: map[string]interface{}{
			"ProductID":  "1",
			"__metadata": map[string]interface{}{"uri": "x"},
		},
	}
	b.enhanceResponse(resp, "Products", "get_Products", nil)

	entity := resp.Value.(map[string]interface{})
	if _, ok := entity["__metadata"]; !ok {
		t.Error("__metadata should survive with --response-metadata")
	}
}

func TestEnhanceResponseLegacyDates(t *testing.T) {
	b := testBridge(t, &config.Config{LegacyDates: true})

	resp := &models.ODataResponse{
		Value: map[string]interface{}{"CreatedDate": "/Date(0)/"},
	}
	b.enhanceResponse(resp, "Products", "get_Products", nil)

	entity := resp.Value.(map[string]interface{})
	if entity["CreatedDate"] != "1970-01-01T00:00:00Z" {
		t.Errorf("CreatedDate = %v, want ISO form", entity["CreatedDate"])
	}
}

func TestEnhanceResponsePaginationHint(t *testing.T) {
	count := int64(50)
	b := testBridge(t, &config.Config{PaginationHints: true})

	resp := &models.ODataResponse{
		Results: []interface{}{map[string]interface{}{"ProductID": "1"}},
		Count:   &count,
		Pagination: &models.PaginationInfo{
			TotalCount:   &count,
			CurrentCount: 1,
			HasMore:      true,
			Skip:         10,
			Top:          10,
		},
	}
	options := map[string]string{"$top": "10", "$filter": "Price gt 5"}
	b.enhanceResponse(resp, "Products", "filter_Products_for_ZSHOP", options)

	if resp.Pagination.SuggestedNextCall == nil {
		t.Fatal("SuggestedNextCall missing")
	}
	call := *resp.Pagination.SuggestedNextCall
	if !strings.Contains(call, "filter_Products_for_ZSHOP") {
		t.Errorf("suggested call %q should name the tool", call)
	}
	if !strings.Contains(call, `"$skip": "10"`) {
		t.Errorf("suggested call %q should advance $skip", call)
	}
	if !strings.Contains(call, `"$filter": "Price gt 5"`) {
		t.Errorf("suggested call %q should carry the filter", call)
	}
}

func TestPrepareWriteDataSchemaDrivenDates(t *testing.T) {
	meta := sampleMetadata()
	meta.EntityTypes["Product"].Properties = append(meta.EntityTypes["Product"].Properties,
		&models.EntityProperty{Name: "Availability", Type: "Edm.DateTime", Nullable: true},
		&models.EntityProperty{Name: "DeliveryDate", Type: "Edm.String", Nullable: true})
	b := testBridgeWithMetadata(t, &config.Config{LegacyDates: true}, meta)

	data := b.prepareWriteData("Products", map[string]interface{}{
		"Availability": "2023-01-01T00:00:00Z",
		"DeliveryDate": "2023-01-01T00:00:00Z",
	})
	if data["Availability"] != "/Date(1672531200000)/" {
		t.Errorf("Availability = %v, want legacy literal for the DateTime-typed field", data["Availability"])
	}
	if data["DeliveryDate"] != "2023-01-01T00:00:00Z" {
		t.Errorf("DeliveryDate = %v, a String-typed field must not convert on its name", data["DeliveryDate"])
	}
}

func TestEntityOverrideEnablesCreate(t *testing.T) {
	base := testBridge(t, &config.Config{})
	if toolNames(base)["create_Orders_for_ZSHOP"] {
		t.Fatal("create_Orders_for_ZSHOP registered for a non-creatable set")
	}

	b := testBridge(t, &config.Config{EntityOverrides: []string{"Orders:creatable=true"}})
	names := toolNames(b)
	if !names["create_Orders_for_ZSHOP"] {
		t.Error("create_Orders_for_ZSHOP missing after the creatable override")
	}
	if names["delete_Orders_for_ZSHOP"] {
		t.Error("creatable override should not enable delete")
	}
}

func TestOverrideReadonlyForcesWritable(t *testing.T) {
	b := testBridge(t, &config.Config{OverrideReadonly: true})
	names := toolNames(b)
	for _, want := range []string{"create_Orders_for_ZSHOP", "update_Orders_for_ZSHOP", "delete_Orders_for_ZSHOP"} {
		if !names[want] {
			t.Errorf("%s missing with --override-readonly", want)
		}
	}
}

func TestCollectPagingOptions(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]interface{}
		want    map[string]string
		wantErr string
	}{
		{
			name: "whole numbers pass through",
			args: map[string]interface{}{"$top": float64(10), "$skip": float64(20)},
			want: map[string]string{"$top": "10", "$skip": "20"},
		},
		{
			name: "absent options are fine",
			args: map[string]interface{}{"$filter": "Price gt 5"},
			want: map[string]string{},
		},
		{
			name:    "string rejected",
			args:    map[string]interface{}{"$top": "ten"},
			wantErr: "Invalid value for $top",
		},
		{
			name:    "fractional rejected",
			args:    map[string]interface{}{"$skip": 2.5},
			wantErr: "Invalid value for $skip",
		},
		{
			name:    "boolean rejected",
			args:    map[string]interface{}{"$top": true},
			wantErr: "Invalid value for $top",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options := make(map[string]string)
			err := collectPagingOptions(tt.args, options)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("collectPagingOptions: %v", err)
			}
			if !reflect.DeepEqual(options, tt.want) {
				t.Errorf("options = %v, want %v", options, tt.want)
			}
		})
	}
}

func TestEnhanceResponsePaginationHintSkipToken(t *testing.T) {
	b := testBridge(t, &config.Config{PaginationHints: true})

	resp := &models.ODataResponse{
		Results: []interface{}{map[string]interface{}{"ProductID": "1"}},
		Pagination: &models.PaginationInfo{
			CurrentCount: 1,
			HasMore:      true,
			Skip:         20,
			SkipToken:    "ABC123",
		},
	}
	b.enhanceResponse(resp, "Products", "filter_Products_for_ZSHOP", nil)

	if resp.Pagination.SuggestedNextCall == nil {
		t.Fatal("SuggestedNextCall missing")
	}
	call := *resp.Pagination.SuggestedNextCall
	if !strings.Contains(call, `"$skiptoken": "ABC123"`) {
		t.Errorf("suggested call %q should replay the server token", call)
	}
	if strings.Contains(call, `"$skip"`) {
		t.Errorf("suggested call %q should not mix $skip with a skiptoken", call)
	}
}

func TestEnhanceResponseDropsPaginationWithoutHints(t *testing.T) {
	b := testBridge(t, &config.Config{})

	resp := &models.ODataResponse{
		Results:    []interface{}{},
		Pagination: &models.PaginationInfo{HasMore: true},
	}
	b.enhanceResponse(resp, "Products", "filter_Products", nil)
	if resp.Pagination != nil {
		t.Error("pagination block should be dropped when hints are disabled")
	}
}

func TestGetTraceInfo(t *testing.T) {
	b := testBridge(t, &config.Config{EnableOps: "R", Username: "demo", Password: "secret"})

	trace, err := b.GetTraceInfo()
	if err != nil {
		t.Fatalf("GetTraceInfo failed: %v", err)
	}
	if trace.TotalTools != len(b.tools) {
		t.Errorf("TotalTools = %d, want %d", trace.TotalTools, len(b.tools))
	}
	if !strings.Contains(trace.Authentication, "demo") {
		t.Errorf("Authentication = %q, want the basic auth user", trace.Authentication)
	}
	if trace.EnabledOps != "SFG" {
		t.Errorf("EnabledOps = %q, want SFG", trace.EnabledOps)
	}
	if strings.Contains(trace.Authentication, "secret") {
		t.Error("trace output must not leak the password")
	}
}
