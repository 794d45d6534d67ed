package binding

import "encoding/json"

// JSON-RPC 2.0 message shapes for the embedded checkout protocol.

const jsonRPCVersion = "2.0"

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// Notification is a server-initiated message without an id; the UI
// discards any notification whose seq is not greater than the last one
// it rendered.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC 2.0 error codes plus protocol-specific ones in the
// -32000..-32099 range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeCheckoutNotFound       = -32003
	CodeInvalidState           = -32004
	CodeVersionConflict        = -32005
	CodeIncompleteRequirements = -32006
)

// Protocol methods. Requests map one to one onto engine operations;
// ec.ready is the handshake, the rest of the ec.* names are pushed as
// notifications.
const (
	MethodReady    = "ec.ready"
	MethodGet      = "ec.checkout.get"
	MethodUpdate   = "ec.checkout.update"
	MethodComplete = "ec.checkout.complete"
	MethodCancel   = "ec.checkout.cancel"

	MethodStart          = "ec.start"
	MethodCompleteNotice = "ec.complete"
	MethodChangeNotice   = "ec.checkout.change"
)
