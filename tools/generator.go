// Package tools turns an Ignition Gateway OpenAPI document into callable,
// schema-described tools and dispatches invocations against the gateway.
package tools

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/pb33f/libopenapi"
	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"
)

// managementPrefixes is the allow-list of management-plane path prefixes
// exposed as tools. Operations outside these prefixes (runtime and process
// data endpoints in particular) are deliberately excluded to bound the
// surface an automation agent can reach.
var managementPrefixes = []string{
	"/data/api/v1/projects",
	"/data/api/v1/tags",
	"/data/api/v1/devices",
	"/data/api/v1/connections",
	"/data/api/v1/modules",
	"/data/api/v1/certificates",
	"/data/api/v1/users",
	"/data/api/v1/roles",
	"/system/gateway",
	"/data/api/v1/activation",
	"/data/api/v1/backup",
	"/data/api/v1/logs",
}

// droppedSegments are path segments elided when deriving a tool name from a
// path template.
var droppedSegments = map[string]bool{
	"data": true,
	"api":  true,
	"v1":   true,
}

const maxToolNameLength = 50

// Tool describes one callable operation: its stable name, a human-readable
// description, and a JSON-Schema contract for its arguments. Generated tools
// additionally carry private routing metadata binding them back to the
// gateway operation they were derived from.
type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`

	// Routing metadata for generated tools. Custom tools leave these empty
	// and carry a handler instead.
	path      string
	method    string
	operation *v3.Operation
	resolved  *jsonschema.Resolved
}

// Generator derives the tool set from an OpenAPI document. The set is built
// lazily on first use and cached for the generator's lifetime; the sync.Once
// guard makes the first build safe under concurrent callers.
type Generator struct {
	specData []byte
	prefixes []string
	logger   *slog.Logger

	once  sync.Once
	tools []Tool
	index map[string]int
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithPathPrefixes overrides the default management-plane allow-list.
func WithPathPrefixes(prefixes []string) GeneratorOption {
	return func(g *Generator) {
		g.prefixes = prefixes
	}
}

// WithGeneratorLogger sets the logger used during generation.
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = logger
	}
}

// NewGenerator creates a Generator over a raw OpenAPI document. The document
// is never mutated; a malformed document degrades to an empty tool set
// rather than an error.
func NewGenerator(specData []byte, opts ...GeneratorOption) *Generator {
	g := &Generator{
		specData: specData,
		prefixes: managementPrefixes,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the full tool set, sorted by the operation's raw path.
// The result is cached; callers must not mutate it.
func (g *Generator) Generate() []Tool {
	g.once.Do(g.build)
	return g.tools
}

// Lookup resolves a generated tool by name, building the cache on first use.
func (g *Generator) Lookup(name string) (Tool, bool) {
	g.once.Do(g.build)
	i, ok := g.index[name]
	if !ok {
		return Tool{}, false
	}
	return g.tools[i], true
}

func (g *Generator) build() {
	g.tools = []Tool{}
	g.index = map[string]int{}

	doc, err := libopenapi.NewDocument(g.specData)
	if err != nil {
		g.logger.Warn("unable to parse OpenAPI document", "error", err)
		return
	}

	model, errs := doc.BuildV3Model()
	if len(errs) > 0 || model == nil {
		g.logger.Warn("unable to build OpenAPI model", "errors", errs)
		return
	}

	paths := model.Model.Paths
	if paths == nil || paths.PathItems == nil {
		return
	}

	var generated []Tool
	for pair := paths.PathItems.First(); pair != nil; pair = pair.Next() {
		path := pair.Key()
		item := pair.Value()

		for _, entry := range []struct {
			method string
			op     *v3.Operation
		}{
			{"GET", item.Get},
			{"POST", item.Post},
			{"PUT", item.Put},
			{"PATCH", item.Patch},
			{"DELETE", item.Delete},
		} {
			if entry.op == nil || !g.include(path, entry.op) {
				continue
			}
			generated = append(generated, g.newTool(entry.method, path, entry.op))
		}
	}

	// Sorted by raw path for listing friendliness; the order also fixes
	// which operation wins a name collision.
	sort.SliceStable(generated, func(i, j int) bool {
		return generated[i].path < generated[j].path
	})

	for _, tool := range generated {
		if i, ok := g.index[tool.Name]; ok {
			kept := g.tools[i]
			g.logger.Warn("duplicate tool name, keeping first",
				"name", tool.Name,
				"kept", kept.method+" "+kept.path,
				"skipped", tool.method+" "+tool.path)
			continue
		}
		g.index[tool.Name] = len(g.tools)
		g.tools = append(g.tools, tool)
	}
}

// include applies the inclusion policy: not deprecated, and inside the
// management-plane allow-list.
func (g *Generator) include(path string, op *v3.Operation) bool {
	if op.Deprecated != nil && *op.Deprecated {
		return false
	}
	for _, prefix := range g.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (g *Generator) newTool(method, path string, op *v3.Operation) Tool {
	description := op.Summary
	if description == "" {
		description = fmt.Sprintf("%s %s", method, path)
	}

	schema := operationSchema(op)

	tool := Tool{
		Name:        toolName(method, path, op.OperationId),
		Description: description,
		InputSchema: schema,
		path:        path,
		method:      method,
		operation:   op,
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		// Routing still works; calls just skip pre-dispatch validation.
		g.logger.Warn("unable to resolve input schema", "tool", tool.Name, "error", err)
	} else {
		tool.resolved = resolved
	}

	return tool
}

// toolName derives a stable identifier for an operation. A declared
// operationId is normalized; otherwise the name comes from the method plus
// the path segments, with known prefix segments dropped and the whole name
// capped in length. Uniqueness is not guaranteed here; the build step
// resolves collisions first-wins.
func toolName(method, path, operationID string) string {
	if operationID != "" {
		name := strings.NewReplacer("-", "_", " ", "_").Replace(operationID)
		return strings.ToLower(name)
	}

	var parts []string
	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		if segment == "" || droppedSegments[segment] {
			continue
		}
		segment = strings.ReplaceAll(segment, "{", "")
		segment = strings.ReplaceAll(segment, "}", "")
		parts = append(parts, segment)
	}

	name := strings.ToLower(method) + "_" + strings.ReplaceAll(strings.Join(parts, "_"), "-", "_")
	if len(name) > maxToolNameLength {
		name = name[:maxToolNameLength]
	}
	return name
}

// operationSchema merges an operation's declared parameters and JSON request
// body into a single flat object schema. Body properties are re-namespaced
// under a body_ prefix, which is what later lets the dispatcher tell body
// fields apart from path and query fields by key alone.
func operationSchema(op *v3.Operation) *jsonschema.Schema {
	properties := map[string]*jsonschema.Schema{}
	var required []string

	for _, param := range op.Parameters {
		if param == nil || param.Name == "" {
			continue
		}

		typ := "string"
		if param.Schema != nil {
			if s := param.Schema.Schema(); s != nil && len(s.Type) > 0 {
				typ = s.Type[0]
			}
		}

		description := param.Description
		if description == "" {
			description = fmt.Sprintf("%s parameter", param.Name)
		}

		properties[param.Name] = &jsonschema.Schema{Type: typ, Description: description}
		if param.Required != nil && *param.Required {
			required = append(required, param.Name)
		}
	}

	if op.RequestBody != nil && op.RequestBody.Content != nil {
		if mediaType, ok := op.RequestBody.Content.Get("application/json"); ok && mediaType != nil && mediaType.Schema != nil {
			if schema := mediaType.Schema.Schema(); schema != nil && hasType(schema.Type, "object") && schema.Properties != nil {
				for pair := schema.Properties.First(); pair != nil; pair = pair.Next() {
					name := pair.Key()

					typ := "string"
					description := fmt.Sprintf("%s in request body", name)
					if prop := pair.Value().Schema(); prop != nil {
						if len(prop.Type) > 0 {
							typ = prop.Type[0]
						}
						if prop.Description != "" {
							description = prop.Description
						}
					}

					// Body properties are never marked required.
					properties[bodyPrefix+name] = &jsonschema.Schema{Type: typ, Description: description}
				}
			}
		}
	}

	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           properties,
		Required:             required,
		AdditionalProperties: falseSchema(),
	}
}

func hasType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

// falseSchema is jsonschema-go's spelling of the `false` schema: nothing
// validates against it, which closes the object to undeclared properties.
func falseSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Not: &jsonschema.Schema{}}
}
