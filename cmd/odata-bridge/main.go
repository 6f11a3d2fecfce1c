package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcptools/odata-bridge/internal/bridge"
	"github.com/mcptools/odata-bridge/internal/config"
	"github.com/mcptools/odata-bridge/internal/debug"
	"github.com/mcptools/odata-bridge/internal/transport"
	httptransport "github.com/mcptools/odata-bridge/internal/transport/http"
	"github.com/mcptools/odata-bridge/internal/transport/stdio"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "odata-bridge [service-url]",
	Short: "OData to MCP Bridge - Universal OData v2 to Model Context Protocol bridge",
	Long: `OData to MCP Bridge - Universal OData v2 to Model Context Protocol bridge.

This tool creates a bridge between OData v2 services and the Model Context Protocol
(MCP), dynamically generating MCP tools based on OData metadata.

Examples:
  odata-bridge https://services.odata.org/V2/Northwind/Northwind.svc/
  odata-bridge --service https://my-sap-service.com/sap/opu/odata/sap/SERVICE_NAME/
  odata-bridge --user admin --password secret https://my-service.com/odata/
  odata-bridge --cookie-file cookies.txt https://my-service.com/odata/
  odata-bridge --enable "R" https://my-service.com/odata/
  odata-bridge --disable "D" https://my-service.com/odata/`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBridge,
}

func init() {
	// Load .env file if it exists
	godotenv.Load()

	cfg = &config.Config{}

	// Service URL
	rootCmd.Flags().StringVar(&cfg.ServiceURL, "service", "", "URL of the OData service (overrides positional argument and ODATA_SERVICE_URL env var)")

	// Authentication flags (mutually exclusive, validated at startup)
	rootCmd.Flags().StringVarP(&cfg.Username, "user", "u", "", "Username for basic authentication (overrides ODATA_USERNAME env var)")
	rootCmd.Flags().StringVarP(&cfg.Password, "password", "p", "", "Password for basic authentication (overrides ODATA_PASSWORD env var)")
	rootCmd.Flags().StringVar(&cfg.Password, "pass", "", "Password for basic authentication (alias for --password)")
	rootCmd.Flags().StringVar(&cfg.CookieFile, "cookie-file", "", "Path to cookie file in Netscape format")
	rootCmd.Flags().StringVar(&cfg.CookieFile, "cookies", "", "Path to cookie file in Netscape format (alias for --cookie-file)")
	rootCmd.Flags().StringVar(&cfg.CookieString, "cookie-string", "", "Cookie string (key1=val1; key2=val2)")

	// Tool naming options
	rootCmd.Flags().StringVar(&cfg.ToolPrefix, "tool-prefix", "", "Custom prefix for tool names (use with --no-postfix)")
	rootCmd.Flags().StringVar(&cfg.ToolPostfix, "tool-postfix", "", "Custom postfix for tool names (default: _for_<service_id>)")
	rootCmd.Flags().BoolVar(&cfg.NoPostfix, "no-postfix", false, "Use prefix instead of postfix for tool naming")
	rootCmd.Flags().BoolVar(&cfg.ToolShrink, "tool-shrink", false, "Use shortened tool names (create_, get_, upd_, del_, search_, filter_)")

	// Entity, function, and operation filtering
	rootCmd.Flags().StringVar(&cfg.Entities, "entities", "", "Comma-separated list of entities to generate tools for (e.g., 'Products,Categories,Orders'). Supports wildcards: 'Product*,Order*'")
	rootCmd.Flags().StringVar(&cfg.Functions, "functions", "", "Comma-separated list of function imports to generate tools for (e.g., 'GetProducts,CreateOrder'). Supports wildcards: 'Get*,Create*'")
	rootCmd.Flags().StringVar(&cfg.EnableOps, "enable", "", "Enable only these operation types: C(reate), S(earch), F(ilter), G(et), U(pdate), D(elete), A(ctions/functions). R expands to S,F,G")
	rootCmd.Flags().StringVar(&cfg.DisableOps, "disable", "", "Disable these operation types (same codes as --enable)")

	// Output and debugging options
	rootCmd.Flags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output to stderr")
	rootCmd.Flags().BoolVar(&cfg.Debug, "debug", false, "Alias for --verbose")
	rootCmd.Flags().BoolVar(&cfg.SortTools, "sort-tools", true, "Sort tools alphabetically in the output")
	rootCmd.Flags().BoolVar(&cfg.Trace, "trace", false, "Initialize the bridge and print all tools and parameters, then exit (useful for debugging)")

	// Response enhancement options
	rootCmd.Flags().BoolVar(&cfg.PaginationHints, "pagination-hints", false, "Add pagination support with suggested_next_call and has_more indicators")
	rootCmd.Flags().BoolVar(&cfg.LegacyDates, "legacy-dates", true, "Support epoch timestamp format (/Date(1234567890000)/) - enabled by default for SAP")
	rootCmd.Flags().BoolVar(&cfg.NoLegacyDates, "no-legacy-dates", false, "Disable legacy date format conversion")
	rootCmd.Flags().BoolVar(&cfg.VerboseErrors, "verbose-errors", false, "Provide detailed error context and debugging information")
	rootCmd.Flags().BoolVar(&cfg.ResponseMetadata, "response-metadata", false, "Include detailed __metadata blocks in entity responses")

	// Response size limits
	rootCmd.Flags().IntVar(&cfg.MaxResponseSize, "max-response-size", 5*1024*1024, "Maximum response size in bytes (default: 5MB)")
	rootCmd.Flags().IntVar(&cfg.MaxItems, "max-items", 100, "Maximum number of items in response (default: 100)")

	// Read-only mode flags
	rootCmd.Flags().BoolVar(&cfg.ReadOnly, "read-only", false, "Read-only mode: hide all modifying operations (create, update, delete, and functions)")
	rootCmd.Flags().BoolVar(&cfg.ReadOnly, "ro", false, "Read-only mode (shorthand for --read-only)")
	rootCmd.Flags().BoolVar(&cfg.ReadOnlyButFunctions, "read-only-but-functions", false, "Read-only mode but allow function imports")
	rootCmd.Flags().BoolVar(&cfg.ReadOnlyButFunctions, "robf", false, "Read-only but functions (shorthand for --read-only-but-functions)")

	// Capability override flags
	rootCmd.Flags().BoolVar(&cfg.OverrideReadonly, "override-readonly", false, "Treat all entity sets as creatable, updatable and deletable regardless of service annotations")
	rootCmd.Flags().StringSliceVar(&cfg.EntityOverrides, "entity-override", nil, "Override capability flags for one entity set, e.g. 'ProgramSet:creatable=true,deletable=false' (repeatable)")

	// Transport options
	rootCmd.Flags().String("transport", "stdio", "Transport type: 'stdio', 'http' (streamable HTTP), or 'sse' (legacy SSE)")
	rootCmd.Flags().String("http-addr", ":8080", "HTTP server address (used with --transport http or sse)")
	rootCmd.Flags().Bool("i-am-security-expert-i-know-what-i-am-doing", false, "Allow remote connections to the HTTP transport (dangerous)")

	// Debug options
	rootCmd.Flags().Bool("trace-mcp", false, "Enable trace logging to debug MCP communication")

	// Hint options
	rootCmd.Flags().StringVar(&cfg.HintsFile, "hints-file", "", "Path to hints JSON file (defaults to hints.json in same directory as binary)")
	rootCmd.Flags().StringVar(&cfg.Hint, "hint", "", "Direct hint JSON or text to inject into service info")

	// Bind flags to viper for environment variable support
	viper.BindPFlag("service", rootCmd.Flags().Lookup("service"))
	viper.BindPFlag("username", rootCmd.Flags().Lookup("user"))
	viper.BindPFlag("password", rootCmd.Flags().Lookup("password"))
	viper.BindPFlag("verbose", rootCmd.Flags().Lookup("verbose"))

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.SetEnvPrefix("ODATA")
}

func runBridge(cmd *cobra.Command, args []string) error {
	if cfg.Debug {
		cfg.Verbose = true
	}

	if cfg.NoLegacyDates {
		cfg.LegacyDates = false
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Legacy date format conversion disabled.\n")
		}
	} else if !cmd.Flags().Changed("legacy-dates") {
		// SAP services ship epoch dates by default
		cfg.LegacyDates = true
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Legacy date format enabled by default for SAP compatibility. Use --no-legacy-dates to disable.\n")
		}
	}

	if cfg.ReadOnly && cfg.ReadOnlyButFunctions {
		return fmt.Errorf("cannot use both --read-only and --read-only-but-functions flags at the same time")
	}
	if cfg.IsReadOnly() && cfg.Verbose {
		if cfg.ReadOnly {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Read-only mode enabled. All modifying operations (create, update, delete, and functions) will be hidden.\n")
		} else {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Read-only mode enabled with function exception. Create, update, and delete operations will be hidden, but function imports will be available.\n")
		}
	}

	if err := cfg.ResolveOperations(); err != nil {
		return err
	}
	if err := cfg.ResolveEntityOverrides(); err != nil {
		return err
	}
	if cfg.HasCapabilityOverrides() && cfg.Verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] Capability overrides configured; schema flags will be adjusted before tool generation.\n")
	}
	if cfg.Verbose {
		if ops := cfg.EnabledOpsString(); ops != "" {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Enabled operation types: %s\n", ops)
		}
	}

	// Service URL priority: --service flag > positional arg > env vars
	if cfg.ServiceURL == "" && len(args) > 0 {
		cfg.ServiceURL = args[0]
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Using OData service URL from positional argument.\n")
		}
	}
	if cfg.ServiceURL == "" {
		cfg.ServiceURL = viper.GetString("URL")
		if cfg.ServiceURL == "" {
			cfg.ServiceURL = viper.GetString("SERVICE_URL")
		}
		if cfg.ServiceURL != "" && cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Using ODATA_URL from environment.\n")
		}
	}
	if cfg.ServiceURL == "" {
		return fmt.Errorf("OData service URL not provided. Use --service flag, positional argument, or ODATA_URL environment variable")
	}

	if err := processAuthentication(cfg); err != nil {
		return err
	}

	if cfg.Entities != "" {
		cfg.AllowedEntities = parseCommaSeparated(cfg.Entities)
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Filtering tools to only these entities: %v\n", cfg.AllowedEntities)
		}
	}
	if cfg.Functions != "" {
		cfg.AllowedFunctions = parseCommaSeparated(cfg.Functions)
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Filtering tools to only these functions: %v\n", cfg.AllowedFunctions)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	odataBridge, err := bridge.NewBridge(cfg)
	if err != nil {
		return fmt.Errorf("failed to create OData MCP bridge: %w", err)
	}

	if cfg.Trace {
		return printTraceInfo(odataBridge)
	}

	mcpServer := odataBridge.GetServer()
	if mcpServer == nil {
		return fmt.Errorf("failed to get MCP server from bridge")
	}

	enableTrace, _ := cmd.Flags().GetBool("trace-mcp")
	var tracer *debug.TraceLogger
	if enableTrace {
		tracer, err = debug.NewTraceLogger(true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] Failed to create trace logger: %v\n", err)
		} else {
			defer tracer.Close()
			fmt.Fprintf(os.Stderr, "[TRACE] Trace logging enabled. Output file: %s\n", tracer.GetFilename())
		}
	}

	handler := func(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
		return mcpServer.HandleMessage(ctx, msg)
	}

	transportType, _ := cmd.Flags().GetString("transport")
	var trans transport.Transport
	switch transportType {
	case "http":
		httpAddr, _ := cmd.Flags().GetString("http-addr")
		allowRemote, _ := cmd.Flags().GetBool("i-am-security-expert-i-know-what-i-am-doing")
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Starting streamable HTTP transport on %s\n", httpAddr)
		}
		trans = httptransport.NewStreamableHTTP(httpAddr, handler, allowRemote)
	case "sse":
		httpAddr, _ := cmd.Flags().GetString("http-addr")
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Starting HTTP/SSE transport on %s\n", httpAddr)
		}
		trans = httptransport.NewSSE(httpAddr, handler)
	default:
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Using stdio transport\n")
		}
		stdioTrans := stdio.New(handler)
		if tracer != nil {
			stdioTrans.SetTracer(tracer)
		}
		trans = stdioTrans
	}

	mcpServer.SetTransport(trans)

	errChan := make(chan error, 1)
	go func() {
		errChan <- odataBridge.Run()
	}()

	select {
	case sig := <-sigChan:
		fmt.Fprintf(os.Stderr, "\n%s received, shutting down server...\n", sig)
		odataBridge.Stop()
		return nil
	case err := <-errChan:
		return err
	}
}

// processAuthentication validates the auth flags and loads cookies.
// Cookie file, cookie string, and basic auth are mutually exclusive;
// environment variables fill the gaps when no flag is given.
func processAuthentication(cfg *config.Config) error {
	authMethods := 0
	if cfg.CookieFile != "" {
		authMethods++
	}
	if cfg.CookieString != "" {
		authMethods++
	}
	if cfg.Username != "" {
		authMethods++
	}
	if authMethods > 1 {
		return fmt.Errorf("only one authentication method can be used at a time")
	}

	if cfg.CookieFile != "" {
		if _, err := os.Stat(cfg.CookieFile); os.IsNotExist(err) {
			return fmt.Errorf("cookie file not found: %s", cfg.CookieFile)
		}
		cookies, err := loadCookiesFromFile(cfg.CookieFile)
		if err != nil {
			return fmt.Errorf("failed to load cookies from file: %w", err)
		}
		cfg.Cookies = cookies
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Loaded %d cookies from file: %s\n", len(cookies), cfg.CookieFile)
		}
		return nil
	}

	if cfg.CookieString != "" {
		cookies := parseCookieString(cfg.CookieString)
		if len(cookies) == 0 {
			return fmt.Errorf("failed to parse cookie string")
		}
		cfg.Cookies = cookies
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Parsed %d cookies from string\n", len(cookies))
		}
		return nil
	}

	// Fall back to environment for basic auth
	if cfg.Username == "" {
		cfg.Username = viper.GetString("USER")
		if cfg.Username == "" {
			cfg.Username = viper.GetString("USERNAME")
		}
	}
	if cfg.Password == "" {
		cfg.Password = viper.GetString("PASS")
		if cfg.Password == "" {
			cfg.Password = viper.GetString("PASSWORD")
		}
	}

	// Cookie environment variables apply only when basic auth is absent
	if cfg.Username == "" {
		envCookieFile := viper.GetString("COOKIE_FILE")
		envCookieString := viper.GetString("COOKIE_STRING")

		if envCookieFile != "" {
			if _, err := os.Stat(envCookieFile); err == nil {
				cookies, err := loadCookiesFromFile(envCookieFile)
				if err == nil {
					cfg.Cookies = cookies
					if cfg.Verbose {
						fmt.Fprintf(os.Stderr, "[VERBOSE] Loaded %d cookies from environment ODATA_COOKIE_FILE\n", len(cookies))
					}
				}
			}
		} else if envCookieString != "" {
			cookies := parseCookieString(envCookieString)
			if len(cookies) > 0 {
				cfg.Cookies = cookies
				if cfg.Verbose {
					fmt.Fprintf(os.Stderr, "[VERBOSE] Parsed %d cookies from environment ODATA_COOKIE_STRING\n", len(cookies))
				}
			}
		}
	}

	if cfg.Verbose {
		if cfg.HasBasicAuth() {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Using basic authentication for user: %s\n", cfg.Username)
		} else if len(cfg.Cookies) == 0 {
			fmt.Fprintf(os.Stderr, "[VERBOSE] No authentication provided or configured. Attempting anonymous access.\n")
		}
	}
	return nil
}

// loadCookiesFromFile reads a Netscape-format cookie file. Lines with
// fewer than seven tab-separated fields fall back to key=value parsing.
func loadCookiesFromFile(cookieFile string) (map[string]string, error) {
	cookies := make(map[string]string)

	file, err := os.Open(cookieFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// domain, flag, path, secure, expiration, name, value
		parts := strings.Split(line, "\t")
		if len(parts) >= 7 {
			cookies[parts[5]] = parts[6]
		} else if strings.Contains(line, "=") {
			kv := strings.SplitN(line, "=", 2)
			if len(kv) == 2 {
				cookies[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
			}
		}
	}

	return cookies, scanner.Err()
}

func parseCookieString(cookieString string) map[string]string {
	cookies := make(map[string]string)
	for _, cookie := range strings.Split(cookieString, ";") {
		cookie = strings.TrimSpace(cookie)
		if strings.Contains(cookie, "=") {
			kv := strings.SplitN(cookie, "=", 2)
			if len(kv) == 2 {
				cookies[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
			}
		}
	}
	return cookies
}

func parseCommaSeparated(input string) []string {
	var result []string
	for _, item := range strings.Split(input, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

func printTraceInfo(b *bridge.Bridge) error {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("OData MCP Bridge Trace Information")
	fmt.Println(strings.Repeat("=", 80))

	info, err := b.GetTraceInfo()
	if err != nil {
		return fmt.Errorf("failed to get trace info: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal trace info: %w", err)
	}
	fmt.Println(string(data))

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("Trace complete - MCP bridge initialized successfully but not started")
	fmt.Println("Use without --trace to start the actual MCP server")
	fmt.Println(strings.Repeat("=", 80))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\n--- FATAL ERROR ---\n")
		fmt.Fprintf(os.Stderr, "An unexpected error occurred: %v\n", err)
		fmt.Fprintf(os.Stderr, "-------------------\n")
		os.Exit(1)
	}
}
