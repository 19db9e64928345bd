package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/loopwork-ai/ignition-mcp/gateway"
	"github.com/loopwork-ai/ignition-mcp/sessions"
)

// bodyPrefix marks argument keys destined for the JSON request body.
const bodyPrefix = "body_"

// Result is the uniform envelope every tool invocation resolves to. No
// error value ever crosses the dispatch boundary; failures become Results.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func errorResult(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Handler executes a custom tool against its raw argument mapping. Handlers
// do their own validation and are opaque to the generic routing logic.
type Handler func(ctx context.Context, args map[string]any) Result

type customTool struct {
	tool    Tool
	handler Handler
}

// Dispatcher resolves tool names to either a hand-authored custom handler
// or a generated-tool execution path, and reports a uniform Result.
type Dispatcher struct {
	generator *Generator
	client    *gateway.Client
	rules     *gateway.Client
	store     sessions.Store
	logger    *slog.Logger

	tagPath   string
	tagMethod string

	custom []customTool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithGenerator sets the tool generator backing the dispatcher.
func WithGenerator(g *Generator) DispatcherOption {
	return func(d *Dispatcher) {
		d.generator = g
	}
}

// WithGatewayClient sets the authenticated transport used for execution.
func WithGatewayClient(c *gateway.Client) DispatcherOption {
	return func(d *Dispatcher) {
		d.client = c
	}
}

// WithLogger sets the dispatcher's logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithRulesEngine sets the client used to reach the script validation
// rules engine. Without one, validation tools still manage sessions but
// report the engine as unconfigured.
func WithRulesEngine(c *gateway.Client) DispatcherOption {
	return func(d *Dispatcher) {
		d.rules = c
	}
}

// WithSessionStore overrides the in-memory validation session store.
func WithSessionStore(store sessions.Store) DispatcherOption {
	return func(d *Dispatcher) {
		d.store = store
	}
}

// WithTagEndpoint overrides the WebDev resource path and default HTTP
// method used by the tag tools.
func WithTagEndpoint(path, defaultMethod string) DispatcherOption {
	return func(d *Dispatcher) {
		if path != "" {
			d.tagPath = path
		}
		if defaultMethod != "" {
			d.tagMethod = strings.ToUpper(defaultMethod)
		}
	}
}

// WithCustomTool registers an additional hand-authored tool. Custom tools
// are checked before the generated cache, so their names shadow generated
// ones.
func WithCustomTool(tool Tool, handler Handler) DispatcherOption {
	return func(d *Dispatcher) {
		d.custom = append(d.custom, customTool{tool: tool, handler: handler})
	}
}

// NewDispatcher creates a Dispatcher. The built-in custom tools (tag
// read/write/delete via the WebDev endpoint, gateway status, connection
// test, tool summary, script validation sessions) are always registered
// ahead of any WithCustomTool additions.
func NewDispatcher(opts ...DispatcherOption) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		store:     sessions.NewMemoryStore(),
		tagPath:   defaultTagPath,
		tagMethod: defaultTagMethod,
	}

	var extra []customTool
	for _, opt := range opts {
		opt(d)
	}
	extra, d.custom = d.custom, nil

	if d.generator == nil {
		return nil, fmt.Errorf("dispatcher requires a generator")
	}
	if d.client == nil {
		return nil, fmt.Errorf("dispatcher requires a gateway client")
	}

	d.custom = append(d.builtinTools(), d.validationTools()...)
	d.custom = append(d.custom, extra...)

	return d, nil
}

// List returns every tool the dispatcher can execute: custom definitions
// first, then the generated set in its cached order.
func (d *Dispatcher) List() []Tool {
	tools := make([]Tool, 0, len(d.custom))
	for _, ct := range d.custom {
		tools = append(tools, ct.tool)
	}
	return append(tools, d.generator.Generate()...)
}

// Execute runs the named tool against a flat argument mapping.
//
// Custom tools are consulted first; otherwise the name is resolved in the
// generated cache, the arguments are validated against the tool's input
// schema, partitioned into path/query/body buckets, and the call is issued
// through the gateway client. Transport and HTTP failures are logged in
// full but surfaced only as a generic error naming the tool.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any) Result {
	for _, ct := range d.custom {
		if ct.tool.Name == name {
			return ct.handler(ctx, args)
		}
	}

	tool, ok := d.generator.Lookup(name)
	if !ok {
		return errorResult("tool %q not found", name)
	}

	bound, err := bindArguments(tool.resolved, args)
	if err != nil {
		return errorResult("invalid arguments for tool %q: %v", name, err)
	}

	path := tool.path
	query := url.Values{}
	body := map[string]any{}

	for key, value := range bound {
		switch {
		case strings.HasPrefix(key, bodyPrefix):
			body[strings.TrimPrefix(key, bodyPrefix)] = value
		case strings.Contains(tool.path, "{"+key+"}"):
			path = strings.ReplaceAll(path, "{"+key+"}", fmt.Sprint(value))
		default:
			query.Set(key, fmt.Sprint(value))
		}
	}

	var jsonBody any
	if len(body) > 0 {
		jsonBody = body
	}

	data, err := d.client.Do(ctx, tool.method, path, query, jsonBody, nil)
	if err != nil {
		d.logger.Error("tool execution failed",
			"tool", name, "arguments", args, "error", err)
		return errorResult("error executing tool %q: the request could not be completed; contact your gateway administrator", name)
	}

	return Result{Success: true, Data: data}
}

// bindArguments validates a flat argument mapping against a tool's resolved
// input schema before any routing happens. Unknown keys, missing required
// parameters, and mistyped values are all rejected here, so misnamed
// arguments can no longer be silently dropped into the wrong bucket. A nil
// resolved schema (resolution failed at generation time) skips validation.
func bindArguments(resolved *jsonschema.Resolved, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	if resolved == nil {
		return args, nil
	}
	if err := resolved.Validate(args); err != nil {
		return nil, err
	}
	return args, nil
}

// objectArg fetches an optionally present object-shaped argument.
func objectArg(args map[string]any, key string) (map[string]any, bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, false, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false, fmt.Errorf("%s must be an object", key)
	}
	return m, true, nil
}

func toHeader(m map[string]any) http.Header {
	header := http.Header{}
	for key, value := range m {
		header.Set(key, fmt.Sprint(value))
	}
	return header
}

func toQuery(m map[string]any) url.Values {
	query := url.Values{}
	for key, value := range m {
		query.Set(key, fmt.Sprint(value))
	}
	return query
}
