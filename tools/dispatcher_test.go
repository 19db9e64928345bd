package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopwork-ai/ignition-mcp/gateway"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Body   map[string]any
	Header http.Header
}

type recorder struct {
	requests []recordedRequest
	status   int
	response string
}

func (r *recorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		rec := recordedRequest{
			Method: req.Method,
			Path:   req.URL.Path,
			Query:  map[string]string{},
			Header: req.Header.Clone(),
		}
		for key := range req.URL.Query() {
			rec.Query[key] = req.URL.Query().Get(key)
		}
		if data, err := io.ReadAll(req.Body); err == nil && len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		r.requests = append(r.requests, rec)

		status := r.status
		if status == 0 {
			status = http.StatusOK
		}
		response := r.response
		if response == "" {
			response = `{"ok": true}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}
}

func newTestDispatcher(t *testing.T, rec *recorder, opts ...DispatcherOption) *Dispatcher {
	t.Helper()

	server := httptest.NewServer(rec.handler())
	t.Cleanup(server.Close)

	client := gateway.NewClient(server.URL, gateway.WithAPIKey("test-token"))
	generator := NewGenerator(newTestSpec(t))

	opts = append([]DispatcherOption{
		WithGenerator(generator),
		WithGatewayClient(client),
	}, opts...)

	d, err := NewDispatcher(opts...)
	require.NoError(t, err)
	return d
}

func TestNewDispatcher_RequiresGeneratorAndClient(t *testing.T) {
	_, err := NewDispatcher(WithGatewayClient(gateway.NewClient("http://localhost")))
	assert.ErrorContains(t, err, "generator")

	_, err = NewDispatcher(WithGenerator(NewGenerator(nil)))
	assert.ErrorContains(t, err, "gateway client")
}

func TestList_CustomToolsFirst(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(t, rec)

	tools := d.List()
	require.Greater(t, len(tools), 6)
	assert.Equal(t, "create_or_update_tag", tools[0].Name)
	assert.Equal(t, "read_tag", tools[1].Name)
	assert.Equal(t, "delete_tag", tools[2].Name)

	names := toolNames(tools)
	assert.Contains(t, names, "get_projects")
	assert.Contains(t, names, "post_tags_provider")
}

func TestExecute_PathSubstitution(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(t, rec)

	result := d.Execute(context.Background(), "get_projects_name", map[string]any{"name": "SiteA"})

	require.True(t, result.Success)
	require.Len(t, rec.requests, 1)
	assert.Equal(t, "GET", rec.requests[0].Method)
	assert.Equal(t, "/data/api/v1/projects/SiteA", rec.requests[0].Path)

	// Substituted path parameters must not leak into the query string
	assert.Empty(t, rec.requests[0].Query)
}

func TestExecute_QueryParameters(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(t, rec)

	result := d.Execute(context.Background(), "get_devices", map[string]any{
		"filter": "plc",
		"limit":  5,
	})

	require.True(t, result.Success)
	require.Len(t, rec.requests, 1)
	assert.Equal(t, "/data/api/v1/devices", rec.requests[0].Path)
	assert.Equal(t, map[string]string{"filter": "plc", "limit": "5"}, rec.requests[0].Query)
}

func TestExecute_BodyArguments(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(t, rec)

	result := d.Execute(context.Background(), "post_tags_provider", map[string]any{
		"provider":     "default",
		"body_value":   42,
		"body_quality": "Good",
	})

	require.True(t, result.Success)
	require.Len(t, rec.requests, 1)

	req := rec.requests[0]
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/data/api/v1/tags/default", req.Path)
	assert.Empty(t, req.Query)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	// body_ prefixes are stripped before the payload goes over the wire
	assert.Equal(t, map[string]any{"value": float64(42), "quality": "Good"}, req.Body)
}

func TestExecute_UnknownTool(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(t, rec)

	result := d.Execute(context.Background(), "no_such_tool", nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, `tool "no_such_tool" not found`)
	assert.Empty(t, rec.requests, "no network call for an unknown tool")
}

func TestExecute_InvalidArguments(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(t, rec)

	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{
			name: "unknown argument key",
			tool: "get_devices",
			args: map[string]any{"bogus": "x"},
		},
		{
			name: "missing required path parameter",
			tool: "get_projects_name",
			args: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := d.Execute(context.Background(), tt.tool, tt.args)
			assert.False(t, result.Success)
			assert.Contains(t, result.Error, "invalid arguments")
			assert.Empty(t, rec.requests, "invalid arguments are rejected before any network call")
		})
	}
}

func TestExecute_GatewayErrorIsOpaque(t *testing.T) {
	rec := &recorder{status: http.StatusInternalServerError, response: `{"stack": "secret internal trace"}`}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	d := newTestDispatcher(t, rec, WithLogger(logger))

	result := d.Execute(context.Background(), "get_projects", map[string]any{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, `error executing tool "get_projects"`)
	assert.NotContains(t, result.Error, "secret internal trace")

	// Full failure detail lands in the log, including the tool name
	assert.Contains(t, logs.String(), "get_projects")
	assert.Contains(t, logs.String(), "500")
}

func TestCreateOrUpdateTag(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]any
		options  []DispatcherOption
		wantErr  string
		validate func(t *testing.T, rec *recorder)
	}{
		{
			name: "assembles payload from tagPath and value",
			args: map[string]any{"tagPath": "Tanks/Level1", "value": 42},
			validate: func(t *testing.T, rec *recorder) {
				require.Len(t, rec.requests, 1)
				req := rec.requests[0]
				assert.Equal(t, http.MethodPost, req.Method)
				assert.Equal(t, "/system/webdev/tags", req.Path)
				assert.Equal(t, map[string]any{"path": "Tanks/Level1", "value": float64(42)}, req.Body)
			},
		},
		{
			name: "includes optional fields and attributes",
			args: map[string]any{
				"tagPath":        "Tanks/Level1",
				"value":          42,
				"dataType":       "Int4",
				"quality":        "Good",
				"valueTimestamp": "2024-01-01T00:00:00Z",
				"attributes":     map[string]any{"engUnit": "gal", "value": 99},
			},
			validate: func(t *testing.T, rec *recorder) {
				require.Len(t, rec.requests, 1)
				body := rec.requests[0].Body
				assert.Equal(t, "Int4", body["dataType"])
				assert.Equal(t, "Good", body["quality"])
				assert.Equal(t, "2024-01-01T00:00:00Z", body["timestamp"])
				assert.Equal(t, "gal", body["engUnit"])

				// Attributes never override assembled fields
				assert.Equal(t, float64(42), body["value"])
			},
		},
		{
			name: "null value is an explicit write",
			args: map[string]any{"tagPath": "Tanks/Level1", "value": nil},
			validate: func(t *testing.T, rec *recorder) {
				require.Len(t, rec.requests, 1)
				body := rec.requests[0].Body
				require.Contains(t, body, "value")
				assert.Nil(t, body["value"])
			},
		},
		{
			name: "payloadOverride object sent verbatim",
			args: map[string]any{"payloadOverride": map[string]any{"custom": "shape"}},
			validate: func(t *testing.T, rec *recorder) {
				require.Len(t, rec.requests, 1)
				assert.Equal(t, map[string]any{"custom": "shape"}, rec.requests[0].Body)
			},
		},
		{
			name: "httpMethod override",
			args: map[string]any{"tagPath": "Tanks/Level1", "value": 1, "httpMethod": "put"},
			validate: func(t *testing.T, rec *recorder) {
				require.Len(t, rec.requests, 1)
				assert.Equal(t, http.MethodPut, rec.requests[0].Method)
			},
		},
		{
			name: "headers and query params forwarded",
			args: map[string]any{
				"tagPath":     "Tanks/Level1",
				"value":       1,
				"headers":     map[string]any{"X-Trace": "abc"},
				"queryParams": map[string]any{"provider": "default"},
			},
			validate: func(t *testing.T, rec *recorder) {
				require.Len(t, rec.requests, 1)
				assert.Equal(t, "abc", rec.requests[0].Header.Get("X-Trace"))
				assert.Equal(t, "default", rec.requests[0].Query["provider"])
			},
		},
		{
			name: "custom tag endpoint",
			args: map[string]any{"tagPath": "Tanks/Level1", "value": 1},
			options: []DispatcherOption{
				WithTagEndpoint("/system/webdev/custom-tags", http.MethodPut),
			},
			validate: func(t *testing.T, rec *recorder) {
				require.Len(t, rec.requests, 1)
				assert.Equal(t, "/system/webdev/custom-tags", rec.requests[0].Path)
				assert.Equal(t, http.MethodPut, rec.requests[0].Method)
			},
		},
		{
			name:    "missing tagPath and payloadOverride",
			args:    map[string]any{"value": 1},
			wantErr: "tagPath is required",
		},
		{
			name:    "missing value",
			args:    map[string]any{"tagPath": "Tanks/Level1"},
			wantErr: "value is required",
		},
		{
			name:    "payloadOverride of wrong type",
			args:    map[string]any{"payloadOverride": "not an object"},
			wantErr: "payloadOverride must be an object or array",
		},
		{
			name:    "httpMethod of wrong type",
			args:    map[string]any{"tagPath": "Tanks/Level1", "value": 1, "httpMethod": 7},
			wantErr: "httpMethod must be a string",
		},
		{
			name:    "headers of wrong type",
			args:    map[string]any{"tagPath": "Tanks/Level1", "value": 1, "headers": "nope"},
			wantErr: "headers must be an object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			d := newTestDispatcher(t, rec, tt.options...)

			result := d.Execute(context.Background(), "create_or_update_tag", tt.args)

			if tt.wantErr != "" {
				assert.False(t, result.Success)
				assert.Contains(t, result.Error, tt.wantErr)
				assert.Empty(t, rec.requests, "validation failures never reach the network")
				return
			}

			require.True(t, result.Success, result.Error)
			tt.validate(t, rec)
		})
	}
}

func TestReadTag(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(t, rec)

	result := d.Execute(context.Background(), "read_tag", map[string]any{"tagPath": "Tanks/Level1"})

	require.True(t, result.Success)
	require.Len(t, rec.requests, 1)
	assert.Equal(t, http.MethodGet, rec.requests[0].Method)
	assert.Equal(t, "/system/webdev/tags", rec.requests[0].Path)
	assert.Equal(t, "Tanks/Level1", rec.requests[0].Query["tagPath"])
}

func TestReadTag_MissingPath(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(t, rec)

	result := d.Execute(context.Background(), "read_tag", map[string]any{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "tagPath is required")
	assert.Empty(t, rec.requests)
}

func TestDeleteTag(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(t, rec)

	result := d.Execute(context.Background(), "delete_tag", map[string]any{"tagPath": "Tanks/Level1"})

	require.True(t, result.Success)
	require.Len(t, rec.requests, 1)
	assert.Equal(t, http.MethodDelete, rec.requests[0].Method)
	assert.Equal(t, map[string]any{"tagPath": "Tanks/Level1"}, rec.requests[0].Body)
}

func TestGatewayStatusTool(t *testing.T) {
	rec := &recorder{response: `{"state": "RUNNING"}`}
	d := newTestDispatcher(t, rec)

	result := d.Execute(context.Background(), "get_gateway_status", nil)

	require.True(t, result.Success)
	require.Len(t, rec.requests, 1)
	assert.Equal(t, "/system/gateway-network/remote-servers/status", rec.requests[0].Path)
	assert.Equal(t, map[string]any{"state": "RUNNING"}, result.Data)
}

func TestTestConnection(t *testing.T) {
	t.Run("reachable gateway", func(t *testing.T) {
		rec := &recorder{}
		d := newTestDispatcher(t, rec)

		result := d.Execute(context.Background(), "test_connection", nil)
		require.True(t, result.Success)
		data, ok := result.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "success", data["status"])
	})

	t.Run("unreachable gateway still resolves", func(t *testing.T) {
		rec := &recorder{status: http.StatusForbidden}
		d := newTestDispatcher(t, rec)

		result := d.Execute(context.Background(), "test_connection", nil)
		require.True(t, result.Success)
		data, ok := result.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "error", data["status"])
	})
}

func TestToolSummary(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(t, rec)

	result := d.Execute(context.Background(), "list_available_tools", nil)

	require.True(t, result.Success)
	data, ok := result.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 4, data["total_tools"])

	categories, ok := data["categories"].(map[string][]map[string]any)
	require.True(t, ok)
	assert.Contains(t, categories, "projects")
	assert.Contains(t, categories, "devices")
	assert.Contains(t, categories, "tags")
	assert.Len(t, categories["projects"], 2)
	assert.Empty(t, rec.requests, "tool summary is served locally")
}

func TestExecute_CustomToolOverride(t *testing.T) {
	rec := &recorder{}

	called := false
	d := newTestDispatcher(t, rec, WithCustomTool(
		Tool{Name: "echo", Description: "Echo arguments back"},
		func(ctx context.Context, args map[string]any) Result {
			called = true
			return Result{Success: true, Data: args}
		},
	))

	result := d.Execute(context.Background(), "echo", map[string]any{"hello": "world"})

	assert.True(t, called)
	require.True(t, result.Success)
	assert.Equal(t, map[string]any{"hello": "world"}, result.Data)
	assert.Empty(t, rec.requests)
}
