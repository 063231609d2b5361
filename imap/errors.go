package imap

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// ErrorKind classifies the failures a Connection can surface, per the
// propagation rules of each kind (transport/timeout/protocol errors are
// fatal to the connection; CommandFailed/ParseError/Auth are not). Execute
// moves the Connection to StateDisconnected when it returns a fatal kind, so
// every later command fails with KindBadState; the AUTHENTICATE and IDLE
// paths return such errors without changing the state.
type ErrorKind int

const (
	// KindTransport covers connect/read/write/TLS handshake failures.
	KindTransport ErrorKind = iota
	// KindTimeout covers an exceeded connect or command deadline.
	KindTimeout
	// KindProtocol covers an invalid sequence, unexpected state, or a BAD
	// response from the server.
	KindProtocol
	// KindCommandFailed covers a NO response to an otherwise well-formed command.
	KindCommandFailed
	// KindParseError covers a malformed response; the offending response is
	// discarded and the connection continues.
	KindParseError
	// KindAuth covers a NO during LOGIN/AUTHENTICATE, or a mechanism mismatch.
	KindAuth
	// KindInvalidArgument covers caller-side misuse before any bytes are sent.
	KindInvalidArgument
	// KindBadState covers execute() called from a state that disallows the command.
	KindBadState
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindCommandFailed:
		return "command_failed"
	case KindParseError:
		return "parse_error"
	case KindAuth:
		return "auth"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindBadState:
		return "bad_state"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every exported operation in this
// package. ServerText, when non-empty, carries the raw text the server sent.
type Error struct {
	Kind       ErrorKind
	ServerText string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.ServerText != "" && e.Err != nil:
		return fmt.Sprintf("imap: %s: %v (server: %s)", e.Kind, e.Err, e.ServerText)
	case e.ServerText != "":
		return fmt.Sprintf("imap: %s: %s", e.Kind, e.ServerText)
	case e.Err != nil:
		return fmt.Sprintf("imap: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("imap: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error, serverText string) *Error {
	return &Error{Kind: kind, Err: err, ServerText: serverText}
}

// MalformedError is returned by the Scanner when a byte sequence cannot be
// interpreted under the response grammar. It is fatal only to the current
// response; the parser resynchronizes at the next CRLF.
type MalformedError struct {
	Offset   int
	Expected string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("imap: malformed input at offset %d, expected %s", e.Offset, e.Expected)
}

// LiteralTooLargeError is returned when a literal's announced size exceeds
// Config.MaxLiteralOctets.
type LiteralTooLargeError struct {
	Size, Max int64
}

func (e *LiteralTooLargeError) Error() string {
	return fmt.Sprintf("imap: literal of %s exceeds the %s limit",
		humanize.Bytes(uint64(e.Size)), humanize.Bytes(uint64(e.Max)))
}
