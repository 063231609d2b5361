package imap

import "fmt"

// Status is the three-way (plus PREAUTH/BYE) server status reported by a
// tagged response or an untagged status update.
type Status int

const (
	StatusOK Status = iota
	StatusNO
	StatusBAD
	StatusPreAuth
	StatusBye
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNO:
		return "NO"
	case StatusBAD:
		return "BAD"
	case StatusPreAuth:
		return "PREAUTH"
	case StatusBye:
		return "BYE"
	default:
		return "UNKNOWN"
	}
}

func parseStatusWord(w string) (Status, bool) {
	switch w {
	case "OK":
		return StatusOK, true
	case "NO":
		return StatusNO, true
	case "BAD":
		return StatusBAD, true
	case "PREAUTH":
		return StatusPreAuth, true
	case "BYE":
		return StatusBye, true
	}
	return 0, false
}

// StatusCode is the parsed bracketed prefix of a status response's text,
// e.g. "[UIDNEXT 45]". At most one of the typed fields is populated
// according to Name; unrecognised codes keep their atom in Name and their
// arguments in OtherArgs.
type StatusCode struct {
	Name string // e.g. "ALERT", "UIDNEXT", "PERMANENTFLAGS", or the raw atom of an unrecognised code

	PermanentFlags []string
	UIDNext        uint64
	UIDValidity    uint64
	Unseen         uint64
	BadCharset     []string
	Capabilities   []string

	OtherArgs string // raw remaining text for unrecognised/argument-less codes
}

// Tagged is a command-completing response: "Axxx OK|NO|BAD [code] text".
type Tagged struct {
	Tag    string
	Status Status
	Code   *StatusCode
	Text   string
}

// UntaggedKind identifies the shape of payload an Untagged response carries.
type UntaggedKind int

const (
	UntaggedStatus UntaggedKind = iota
	UntaggedCapability
	UntaggedList
	UntaggedLSub
	UntaggedStatusData
	UntaggedSearch
	UntaggedFlags
	UntaggedExists
	UntaggedRecent
	UntaggedExpunge
	UntaggedFetch
)

// Untagged is one server-initiated "* ..." response.
type Untagged struct {
	Kind    UntaggedKind
	Payload interface{}
}

// Continuation is a "+ text" continuation request, granting permission to
// send the next literal or SASL challenge response.
type Continuation struct {
	Text string
}

// ResponseStatusData is the payload of an untagged OK/NO/BAD/BYE/PREAUTH
// response that is not itself the command's tagged completion (e.g. the
// server greeting, or an asynchronous BYE).
type ResponseStatusData struct {
	Status Status
	Code   *StatusCode
	Text   string
}

// ResponseCapability is the payload of "* CAPABILITY ...".
type ResponseCapability struct {
	Capabilities []string
}

// ResponseList is the payload of "* LIST (...) delim name" and "* LSUB ...".
type ResponseList struct {
	Attributes []MailboxAttribute
	Extra      []string // non-standard atoms the server sent, kept verbatim
	Delim      *string  // nil if NIL
	Name       string   // still in modified UTF-7; the mapper decodes it
}

// ResponseStatusMailbox is the payload of "* STATUS mailbox (...)".
type ResponseStatusMailbox struct {
	Name   string
	Values map[string]uint64
}

// ResponseSearch is the payload of "* SEARCH n1 n2 ...".
type ResponseSearch struct {
	Numbers []uint64
}

// ResponseFlags is the payload of "* FLAGS (...)".
type ResponseFlags struct {
	Flags []string
}

// ResponseExists/ResponseRecent/ResponseExpunge carry a single count/seqnum.
type ResponseExists struct{ Count uint32 }
type ResponseRecent struct{ Count uint32 }
type ResponseExpunge struct{ SeqNum uint32 }

// ResponseFetch is the payload of "* n FETCH (...)".
type ResponseFetch struct {
	SeqNum uint32
	Attrs  FetchAttrs
}

func (t Tagged) String() string {
	if t.Code != nil {
		return fmt.Sprintf("%s %s [%s] %s", t.Tag, t.Status, t.Code.Name, t.Text)
	}
	return fmt.Sprintf("%s %s %s", t.Tag, t.Status, t.Text)
}
