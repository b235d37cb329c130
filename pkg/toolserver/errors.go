package toolserver

import "fmt"

// ErrorKind classifies a tool server failure.
type ErrorKind string

const (
	// KindConnectFailed means the transport could not be established.
	KindConnectFailed ErrorKind = "connect_failed"
	// KindToolNotFound means the server does not serve the named tool.
	KindToolNotFound ErrorKind = "tool_not_found"
	// KindInvalidParams means the server rejected the call arguments.
	KindInvalidParams ErrorKind = "invalid_params"
	// KindTimeout means no response arrived within the call deadline.
	KindTimeout ErrorKind = "timeout"
	// KindProtocolError means the server sent something unintelligible.
	KindProtocolError ErrorKind = "protocol_error"
	// KindDisconnected means the session dropped mid-use.
	KindDisconnected ErrorKind = "disconnected"
)

// Error is a classified tool server failure.
type Error struct {
	Kind    ErrorKind
	Address string
	Message string
}

func (e *Error) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("tool server %s: %s: %s", e.Address, e.Kind, e.Message)
	}
	return fmt.Sprintf("tool server: %s: %s", e.Kind, e.Message)
}

// Wire error codes, JSON-RPC flavored.
const (
	codeToolNotFound  = -32601
	codeInvalidParams = -32602
)

func kindForCode(code int) ErrorKind {
	switch code {
	case codeToolNotFound:
		return KindToolNotFound
	case codeInvalidParams:
		return KindInvalidParams
	default:
		return KindProtocolError
	}
}
