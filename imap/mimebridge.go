package imap

import (
	"bytes"
	"io"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // registers non-UTF-8 charset decoders used by message.Read
)

// OpenMessage wraps the raw bytes fetched via BODY[] or RFC822 so callers
// can hand them to github.com/emersion/go-message for full MIME parsing
// (multipart walking, attachment extraction, header decoding) rather than
// re-implementing a MIME reader in this package. This is the documented
// handoff point from the wire-level FETCH payload to a general MIME
// library: the engine stops at structured IMAP data, everything past
// BODY[]'s raw bytes is go-message's job.
func OpenMessage(raw []byte) (*message.Entity, error) {
	return message.Read(bytes.NewReader(raw))
}

// OpenMessageReader is like OpenMessage but takes an io.Reader directly,
// for callers streaming a large message rather than holding the whole
// FETCH payload in memory.
func OpenMessageReader(r io.Reader) (*message.Entity, error) {
	return message.Read(r)
}
