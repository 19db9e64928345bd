package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopwork-ai/ignition-mcp/jsonrpc"
)

type echoHandler struct {
	calls []string
}

func (h *echoHandler) Handle(ctx context.Context, request jsonrpc.Request) jsonrpc.Response {
	h.calls = append(h.calls, request.Method)
	return jsonrpc.NewResponse(request.Id, map[string]string{"method": request.Method}, nil)
}

func TestTransportRun(t *testing.T) {
	handler := &echoHandler{}
	in := strings.NewReader(`{"jsonrpc": "2.0", "method": "ping", "id": 1}` + "\n")
	var out, errOut bytes.Buffer

	transport := NewStdioTransport(handler, in, &out, &errOut)
	require.NoError(t, transport.Run(context.Background()))

	assert.Equal(t, []string{"ping"}, handler.calls)
	assert.JSONEq(t, `{"jsonrpc": "2.0", "result": {"method": "ping"}, "id": 1}`, out.String())
	assert.Empty(t, errOut.String())
}

func TestTransportRun_MultipleRequests(t *testing.T) {
	handler := &echoHandler{}
	in := strings.NewReader(
		`{"jsonrpc": "2.0", "method": "initialize", "id": 1}` + "\n" +
			`{"jsonrpc": "2.0", "method": "tools/list", "id": 2}` + "\n")
	var out, errOut bytes.Buffer

	transport := NewStdioTransport(handler, in, &out, &errOut)
	require.NoError(t, transport.Run(context.Background()))

	assert.Equal(t, []string{"initialize", "tools/list"}, handler.calls)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 2)
}

func TestTransportRun_NotificationProducesNoOutput(t *testing.T) {
	handler := &echoHandler{}
	in := strings.NewReader(`{"jsonrpc": "2.0", "method": "notifications/initialized"}` + "\n")
	var out, errOut bytes.Buffer

	transport := NewStdioTransport(handler, in, &out, &errOut)
	require.NoError(t, transport.Run(context.Background()))

	// The notification is delivered to the handler but never answered
	assert.Equal(t, []string{"notifications/initialized"}, handler.calls)
	assert.Empty(t, out.String())
}

func TestTransportRun_ParseError(t *testing.T) {
	handler := &echoHandler{}
	in := strings.NewReader("this is not json\n")
	var out, errOut bytes.Buffer

	transport := NewStdioTransport(handler, in, &out, &errOut)
	require.NoError(t, transport.Run(context.Background()))

	assert.Empty(t, handler.calls)

	var response struct {
		Error *jsonrpc.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &response))
	require.NotNil(t, response.Error)
	assert.Equal(t, jsonrpc.ErrParse, response.Error.Code)
}

func TestTransportRun_SkipsBlankLines(t *testing.T) {
	handler := &echoHandler{}
	in := strings.NewReader("\n\n" + `{"jsonrpc": "2.0", "method": "ping", "id": 1}` + "\n")
	var out, errOut bytes.Buffer

	transport := NewStdioTransport(handler, in, &out, &errOut)
	require.NoError(t, transport.Run(context.Background()))

	assert.Equal(t, []string{"ping"}, handler.calls)
}

func TestTransportRun_ContextCancellation(t *testing.T) {
	handler := &echoHandler{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport := NewStdioTransport(handler, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	err := transport.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
