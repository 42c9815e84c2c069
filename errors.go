package duplexrpc

import "errors"

// ErrClosed is returned by Call when the endpoint is closed while the
// call is outstanding — the teacher's heartbeatLoop/receive-loop has no
// equivalent notion of a pending-call table, but without it a caller
// would simply hang forever on a reply that will never arrive.
var ErrClosed = errors.New("duplexrpc: endpoint closed")

// HostError carries a remote handler's failure back across the wire.
// The peer's error text is opaque to this side — there is no shared
// exception hierarchy, only the message string.
type HostError struct {
	Message string
}

func (e *HostError) Error() string {
	return "duplexrpc: remote error: " + e.Message
}
