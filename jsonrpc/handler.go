package jsonrpc

import "context"

// Handler defines the interface for handling JSON-RPC requests. The context
// is the transport's run context; handlers that perform I/O must honor it.
type Handler interface {
	Handle(ctx context.Context, request Request) Response
}
