package tools

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// WebDev tag endpoint defaults. The main OpenAPI document does not cover
// tag value operations; they go through a gateway WebDev resource instead.
const (
	defaultTagPath   = "/system/webdev/tags"
	defaultTagMethod = http.MethodPost
)

// builtinTools returns the hand-authored tool set. These are not derivable
// from the OpenAPI document and carry their own validation.
func (d *Dispatcher) builtinTools() []customTool {
	return []customTool{
		{
			tool: Tool{
				Name:        "create_or_update_tag",
				Description: "Create or update an Ignition tag via the WebDev endpoint",
				InputSchema: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"tagPath":        {Type: "string", Description: "Full tag path, e.g. Tanks/Level1"},
						"value":          {Description: "Value to write; null is allowed but the key must be present"},
						"dataType":       {Type: "string", Description: "Ignition data type, e.g. Int4"},
						"attributes":     {Type: "object", Description: "Additional tag attributes merged into the payload"},
						"valueTimestamp": {Type: "string", Description: "Timestamp to record with the value"},
						"quality":        {Type: "string", Description: "Quality code to record with the value"},
						"payloadOverride": {
							Types:       []string{"object", "array"},
							Description: "Explicit payload sent as-is, bypassing payload assembly",
						},
						"httpMethod": {
							Type:        "string",
							Enum:        []any{http.MethodPost, http.MethodPut, http.MethodPatch},
							Description: "HTTP method override for the WebDev call",
						},
						"headers":     {Type: "object", Description: "Extra request headers"},
						"queryParams": {Type: "object", Description: "Extra query parameters"},
					},
				},
			},
			handler: d.createOrUpdateTag,
		},
		{
			tool: Tool{
				Name:        "read_tag",
				Description: "Read the current value of an Ignition tag",
				InputSchema: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"tagPath": {Type: "string", Description: "Full tag path, e.g. Tanks/Level1"},
					},
					Required:             []string{"tagPath"},
					AdditionalProperties: falseSchema(),
				},
			},
			handler: d.readTag,
		},
		{
			tool: Tool{
				Name:        "delete_tag",
				Description: "Delete an Ignition tag",
				InputSchema: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"tagPath": {Type: "string", Description: "Full tag path, e.g. Tanks/Level1"},
					},
					Required:             []string{"tagPath"},
					AdditionalProperties: falseSchema(),
				},
			},
			handler: d.deleteTag,
		},
		{
			tool: Tool{
				Name:        "get_gateway_status",
				Description: "Get Ignition Gateway status information",
				InputSchema: &jsonschema.Schema{
					Type:                 "object",
					Properties:           map[string]*jsonschema.Schema{},
					AdditionalProperties: falseSchema(),
				},
			},
			handler: d.gatewayStatus,
		},
		{
			tool: Tool{
				Name:        "test_connection",
				Description: "Test connection to the Ignition Gateway",
				InputSchema: &jsonschema.Schema{
					Type:                 "object",
					Properties:           map[string]*jsonschema.Schema{},
					AdditionalProperties: falseSchema(),
				},
			},
			handler: d.testConnection,
		},
		{
			tool: Tool{
				Name:        "list_available_tools",
				Description: "Summarize the generated gateway tools by category",
				InputSchema: &jsonschema.Schema{
					Type:                 "object",
					Properties:           map[string]*jsonschema.Schema{},
					AdditionalProperties: falseSchema(),
				},
			},
			handler: d.toolSummary,
		},
	}
}

// createOrUpdateTag writes a tag value through the WebDev endpoint. The
// caller either supplies payloadOverride verbatim, or a tagPath/value pair
// that gets assembled into the canonical payload. All validation happens
// before any network attempt.
func (d *Dispatcher) createOrUpdateTag(ctx context.Context, args map[string]any) Result {
	method := d.tagMethod
	if raw, ok := args["httpMethod"]; ok {
		s, ok := raw.(string)
		if !ok {
			return errorResult("httpMethod must be a string")
		}
		if s != "" {
			method = strings.ToUpper(s)
		}
	}

	headerArg, _, err := objectArg(args, "headers")
	if err != nil {
		return errorResult("%v", err)
	}
	queryArg, _, err := objectArg(args, "queryParams")
	if err != nil {
		return errorResult("%v", err)
	}

	var payload any
	if override, ok := args["payloadOverride"]; ok {
		switch override.(type) {
		case map[string]any, []any:
			payload = override
		default:
			return errorResult("payloadOverride must be an object or array")
		}
	} else {
		tagPath, _ := args["tagPath"].(string)
		if tagPath == "" {
			return errorResult("tagPath is required when payloadOverride is not provided")
		}
		value, ok := args["value"]
		if !ok {
			return errorResult("value is required when payloadOverride is not provided")
		}

		assembled := map[string]any{
			"path":  tagPath,
			"value": value,
		}
		if dataType, ok := args["dataType"].(string); ok && dataType != "" {
			assembled["dataType"] = dataType
		}
		if timestamp, ok := args["valueTimestamp"].(string); ok && timestamp != "" {
			assembled["timestamp"] = timestamp
		}
		if quality, ok := args["quality"].(string); ok && quality != "" {
			assembled["quality"] = quality
		}
		attributes, _, err := objectArg(args, "attributes")
		if err != nil {
			return errorResult("%v", err)
		}
		for key, value := range attributes {
			if _, exists := assembled[key]; !exists {
				assembled[key] = value
			}
		}
		payload = assembled
	}

	data, err := d.client.Do(ctx, method, d.tagPath, toQuery(queryArg), payload, toHeader(headerArg))
	if err != nil {
		d.logger.Error("tag write failed", "tool", "create_or_update_tag", "arguments", args, "error", err)
		return errorResult("error executing tool %q: the request could not be completed; contact your gateway administrator", "create_or_update_tag")
	}
	return Result{Success: true, Data: data}
}

func (d *Dispatcher) readTag(ctx context.Context, args map[string]any) Result {
	tagPath, _ := args["tagPath"].(string)
	if tagPath == "" {
		return errorResult("tagPath is required")
	}

	query := toQuery(map[string]any{"tagPath": tagPath})
	data, err := d.client.Do(ctx, http.MethodGet, d.tagPath, query, nil, nil)
	if err != nil {
		d.logger.Error("tag read failed", "tool", "read_tag", "arguments", args, "error", err)
		return errorResult("error executing tool %q: the request could not be completed; contact your gateway administrator", "read_tag")
	}
	return Result{Success: true, Data: data}
}

func (d *Dispatcher) deleteTag(ctx context.Context, args map[string]any) Result {
	tagPath, _ := args["tagPath"].(string)
	if tagPath == "" {
		return errorResult("tagPath is required")
	}

	body := map[string]any{"tagPath": tagPath}
	data, err := d.client.Do(ctx, http.MethodDelete, d.tagPath, nil, body, nil)
	if err != nil {
		d.logger.Error("tag delete failed", "tool", "delete_tag", "arguments", args, "error", err)
		return errorResult("error executing tool %q: the request could not be completed; contact your gateway administrator", "delete_tag")
	}
	return Result{Success: true, Data: data}
}

func (d *Dispatcher) gatewayStatus(ctx context.Context, args map[string]any) Result {
	data, err := d.client.GatewayStatus(ctx)
	if err != nil {
		d.logger.Error("gateway status failed", "tool", "get_gateway_status", "error", err)
		return errorResult("error executing tool %q: the request could not be completed; contact your gateway administrator", "get_gateway_status")
	}
	return Result{Success: true, Data: data}
}

// testConnection probes the gateway and reports the outcome as data. A
// failed probe is still a successful tool call; the status field carries
// the verdict.
func (d *Dispatcher) testConnection(ctx context.Context, args map[string]any) Result {
	if _, err := d.client.GatewayStatus(ctx); err != nil {
		d.logger.Debug("connection test failed", "error", err)
		return Result{Success: true, Data: map[string]any{
			"status":  "error",
			"message": "gateway is not reachable with the configured credentials",
		}}
	}
	return Result{Success: true, Data: map[string]any{
		"status":  "success",
		"message": "Connection successful",
	}}
}

// toolSummary buckets the generated tools by their management-plane
// category segment.
func (d *Dispatcher) toolSummary(ctx context.Context, args map[string]any) Result {
	generated := d.generator.Generate()

	categories := map[string][]map[string]any{}
	for _, tool := range generated {
		category := "general"
		if parts := strings.Split(tool.path, "/"); len(parts) > 4 {
			category = parts[4]
		}
		categories[category] = append(categories[category], map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"method":      tool.method,
			"path":        tool.path,
		})
	}

	return Result{Success: true, Data: map[string]any{
		"total_tools": len(generated),
		"categories":  categories,
	}}
}
