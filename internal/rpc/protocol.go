// Package rpc serves the summarization surface over framed msgpack on TCP.
package rpc

type Method string

const (
	MethodPing      Method = "Ping"
	MethodHealth    Method = "Health"
	MethodSummarize Method = "Summarize"
)

// Status codes follow the gRPC names.
const (
	CodeOK               = "OK"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeUnavailable      = "UNAVAILABLE"
	CodeDeadlineExceeded = "DEADLINE_EXCEEDED"
	CodeInternal         = "INTERNAL"
	CodeUnimplemented    = "UNIMPLEMENTED"
)

const TransportRPC = "rpc"

type Request struct {
	ID      string `msgpack:"id"`
	Method  Method `msgpack:"method"`
	Caption string `msgpack:"caption,omitempty"`
	// TimeoutMs bounds the call on the server side. Zero means no bound.
	TimeoutMs int64 `msgpack:"timeout_ms,omitempty"`
}

type Response struct {
	ID          string `msgpack:"id"`
	Code        string `msgpack:"code"`
	Error       string `msgpack:"error,omitempty"`
	Summary     string `msgpack:"summary,omitempty"`
	ModelLoaded bool   `msgpack:"model_loaded"`
	State       string `msgpack:"state,omitempty"`
}
