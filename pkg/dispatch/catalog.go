package dispatch

import (
	"github.com/aretw0/fastly-mcp/pkg/domain"
)

// Default tool names.
const (
	DefaultAPITool = "fastly_api"
	DefaultCLITool = "fastly_cli"
)

var apiDescription = "Make requests to the Fastly API. Allows accessing all endpoints of the Fastly API with custom paths, methods and parameters.\n\n" +
	"IMPORTANT USAGE NOTES FOR LLMs:\n" +
	"1. When making multiple API calls, summarize the results between calls. The user doesn't see raw API responses.\n" +
	"2. Base URL is automatically added - just provide the path (e.g. '/service').\n" +
	"3. Authentication is handled automatically - no need to include API keys or know API keys.\n" +
	"4. Common paths:\n" +
	"   - List services: GET /service\n" +
	"   - Get service details: GET /service/{service_id}\n" +
	"   - Get domains: GET /service/{service_id}/version/{version}/domain\n" +
	"   - Get backends: GET /service/{service_id}/version/{version}/backend\n" +
	"   - Purge cache: POST /service/{service_id}/purge_all\n" +
	"   - Get stats: GET /stats (with params: service_id, from, to)\n" +
	"5. Always check status codes in responses. Status 200-299 indicates success.\n" +
	"6. Include simple explanations of what you're doing and what the results mean before and after each API call." +
	"\n\n# Creating Fastly Compute@Edge Sites\n\n" +
	"To create a Compute@Edge site, you can use a combination of API calls and terminal commands. The API handles service creation and configuration, while terminal commands handle the local build and deployment process.\n\n" +
	"Follow these general steps:\n" +
	`1. Create a new service using the API: POST /service with {"name": "My Site", "type": "wasm"}` + "\n" +
	"2. Initialize a local Compute project using the Fastly CLI\n" +
	"3. Build the project using the appropriate build tools\n" +
	"4. Deploy using the Fastly CLI with the service ID from step 1\n\n" +
	"# COMMON PITFALLS TO AVOID:\n\n" +
	"1. DO NOT use --name flag with fastly compute init (use interactive mode or -d -y flags instead)\n" +
	"2. PowerShell requires semicolons (;) not ampersands (&&) for command chaining\n" +
	"3. Fastly compute build creates the package archive AFTER you've built the Wasm binary\n" +
	"4. Build is a TWO-STEP process: first compile to Wasm, then create the package archive\n" +
	"5. Deploy command needs -d flag to avoid hanging on interactive prompts\n" +
	"6. NEVER attempt to extract or use the user's API key directly - auth is handled by MCP\n" +
	"7. To create a service from scratch, you must use API calls for configuration and CLI for local build\n" +
	"8. Check current directory paths carefully before running commands\n" +
	"9. Full URL paths aren't needed in API calls - just use the path portion (e.g. '/service')\n\n" +
	"See the full guide for detailed instructions on handling common errors and PowerShell-specific commands."

var cliDescription = "Execute Fastly CLI commands securely without exposing API keys.\n\n" +
	"This tool allows you to run Fastly CLI commands while the MCP server handles authentication automatically. " +
	"The LLM never sees or needs to handle the API key directly.\n\n" +
	"USAGE EXAMPLES:\n" +
	"1. Initialize a Compute project: fastly_cli('compute init --language javascript -d -y')\n" +
	"2. Build a package: fastly_cli('compute build')\n" +
	"3. Deploy a service: fastly_cli('compute deploy --service-id SERVICE_ID -d -y')\n\n" +
	"COMMON COMMANDS:\n" +
	"- compute init: Initialize a new Compute project\n" +
	"- compute build: Build a Compute package\n" +
	"- compute deploy: Deploy a Compute package\n" +
	"- compute publish: Build and deploy in one step\n" +
	"- whoami: Check authentication status\n\n" +
	"SECURITY NOTE: Authentication is handled automatically. Never attempt to pass API keys in commands."

// Catalog returns the two advertised tools, API tool first.
func Catalog(apiName, cliName string) []domain.ToolDescriptor {
	return []domain.ToolDescriptor{
		{
			Name:        apiName,
			Description: apiDescription,
			InputSchema: domain.Schema{
				Type: "object",
				Properties: []domain.Property{
					{
						Name:        "path",
						Type:        domain.PropertyString,
						Description: "API path (e.g., '/service' or '/service/{service_id}/purge_all'). Don't include base URL.",
					},
					{
						Name:        "method",
						Type:        domain.PropertyString,
						Description: "HTTP method (GET, POST, PUT, DELETE)",
						Enum:        []string{"GET", "POST", "PUT", "DELETE"},
					},
					{
						Name:        "body",
						Type:        domain.PropertyObject,
						Description: "Request body for POST/PUT requests (optional). Will be JSON-encoded automatically.",
					},
					{
						Name:        "params",
						Type:        domain.PropertyObject,
						Description: "URL parameters to add to the request (optional). For filtering, pagination, etc.",
					},
				},
				Required: []string{"path", "method"},
			},
		},
		{
			Name:        cliName,
			Description: cliDescription,
			InputSchema: domain.Schema{
				Type: "object",
				Properties: []domain.Property{
					{
						Name:        "command",
						Type:        domain.PropertyString,
						Description: "The Fastly CLI command to execute (without the 'fastly' prefix)",
					},
					{
						Name:        "working_directory",
						Type:        domain.PropertyString,
						Description: "Optional working directory for command execution",
					},
				},
				Required: []string{"command"},
			},
		},
	}
}
