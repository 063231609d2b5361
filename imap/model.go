package imap

import "fmt"

// Flag is a message flag: either a system flag (leading backslash, matched
// case-insensitively against the fixed set) or a keyword (a bare atom).
type Flag string

const (
	FlagSeen     Flag = `\Seen`
	FlagAnswered Flag = `\Answered`
	FlagFlagged  Flag = `\Flagged`
	FlagDeleted  Flag = `\Deleted`
	FlagDraft    Flag = `\Draft`
	FlagRecent   Flag = `\Recent`
)

// IsSystem reports whether the flag is one of the six RFC 3501 system flags,
// matched case-insensitively.
func (f Flag) IsSystem() bool {
	switch asciiLower(string(f)) {
	case `\seen`, `\answered`, `\flagged`, `\deleted`, `\draft`, `\recent`:
		return true
	}
	return false
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Address is one address within an envelope's address-list field. A group
// marker opens when Host == nil && Mailbox != nil; it closes on an address
// with Mailbox == nil && Host == nil (RFC 3501 section 6.4.4 / 7.4.2 group
// syntax). The envelope parser folds these sentinels into AddressGroup
// entries, so callers of AddressList never see the sentinel addresses.
type Address struct {
	Name    *string
	ADL     *string
	Mailbox *string
	Host    *string
}

// String renders the address as "name <mailbox@host>" or "mailbox@host",
// falling back to "mailbox" alone when Host is absent.
func (a Address) String() string {
	addr := ""
	if a.Mailbox != nil {
		addr = *a.Mailbox
		if a.Host != nil {
			addr += "@" + *a.Host
		}
	}
	if a.Name != nil && *a.Name != "" {
		return fmt.Sprintf("%s <%s>", *a.Name, addr)
	}
	return addr
}

// isGroupStart reports whether this address opens a named group.
func (a Address) isGroupStart() bool {
	return a.Host == nil && a.Mailbox != nil
}

// isGroupEnd reports whether this address closes the innermost open group.
func (a Address) isGroupEnd() bool {
	return a.Host == nil && a.Mailbox == nil
}

// AddressGroup is a named collection of addresses introduced by RFC 3501's
// group-start/group-end sentinel pair within an address-list.
type AddressGroup struct {
	Name      string
	Addresses []Address
}

// AddressList is the result of parsing one envelope address-list field: a
// flat sequence of ungrouped addresses interspersed with named groups, in
// the order the server sent them.
type AddressList struct {
	Entries []AddressListEntry
}

// AddressListEntry is exactly one of Address or Group set.
type AddressListEntry struct {
	Address *Address
	Group   *AddressGroup
}

// Flatten returns every individual address across both ungrouped entries and
// group members, discarding group membership — useful to callers who only
// want "all the recipients".
func (l AddressList) Flatten() []Address {
	var out []Address
	for _, e := range l.Entries {
		if e.Address != nil {
			out = append(out, *e.Address)
		} else if e.Group != nil {
			out = append(out, e.Group.Addresses...)
		}
	}
	return out
}

// Envelope is the ten-field RFC 3501 section 7.4.2 header summary. Date is
// kept as the server's raw string; best-effort RFC 5322 parsing happens in
// the mapper, not here, so the wire-level Envelope never loses information.
type Envelope struct {
	Date       *string
	Subject    *string
	From       AddressList
	Sender     AddressList
	ReplyTo    AddressList
	To         AddressList
	CC         AddressList
	BCC        AddressList
	InReplyTo  *string
	MessageID  *string
}

// BodyStructureKind distinguishes a leaf (single) part from a multipart
// container.
type BodyStructureKind int

const (
	BodyLeaf BodyStructureKind = iota
	BodyMultipart
)

// BodyStructure is the recursive RFC 3501 section 7.4.2 BODYSTRUCTURE tree.
// For a leaf part, Type/Subtype/Params/Encoding/Size are populated and
// Children is empty; for multipart, Children holds the ordered parts and
// Subtype carries the multipart subtype ("mixed", "alternative", ...).
type BodyStructure struct {
	Kind BodyStructureKind

	// Leaf fields.
	Type        string
	Subtype     string
	Params      map[string]string
	ID          *string
	Description *string
	Encoding    string
	Size        uint64 // octet count
	Lines       *uint64 // set for text/* and message/rfc822 leaves
	Envelope    *Envelope       // set for message/rfc822 leaves
	Nested      *BodyStructure  // set for message/rfc822 leaves

	// Multipart fields.
	Children []BodyStructure

	// Extension fields, tolerated as absent when the server truncates them.
	Disposition     *string
	DispositionParams map[string]string
	Language        []string
	Location        *string
}

// MailboxAttribute is a \Flag-style LIST/LSUB response attribute.
type MailboxAttribute string

const (
	AttrNoinferiors  MailboxAttribute = `\Noinferiors`
	AttrNoselect     MailboxAttribute = `\Noselect`
	AttrMarked       MailboxAttribute = `\Marked`
	AttrUnmarked     MailboxAttribute = `\Unmarked`
	AttrHasChildren  MailboxAttribute = `\HasChildren`
	AttrHasNoChildren MailboxAttribute = `\HasNoChildren`
)

// FetchAttrName identifies a single FETCH data item name (the map keys of
// ResponseFetch.Attrs).
type FetchAttrName string

const (
	AttrUID           FetchAttrName = "UID"
	AttrFlags         FetchAttrName = "FLAGS"
	AttrInternalDate  FetchAttrName = "INTERNALDATE"
	AttrRFC822Size    FetchAttrName = "RFC822.SIZE"
	AttrRFC822        FetchAttrName = "RFC822"
	AttrRFC822Header  FetchAttrName = "RFC822.HEADER"
	AttrRFC822Text    FetchAttrName = "RFC822.TEXT"
	AttrEnvelope      FetchAttrName = "ENVELOPE"
	AttrBody          FetchAttrName = "BODY"
	AttrBodyStructure FetchAttrName = "BODYSTRUCTURE"
)

// BodySection identifies a BODY[<section>]<origin.octet> data item: the
// exact section path the server/client negotiated.
type BodySection struct {
	// Parts is the dotted part-number path, e.g. []int{1, 2, 3}; empty means
	// the message top-level.
	Parts []int
	// Specifier is "", "HEADER", "TEXT", "HEADER.FIELDS", or "HEADER.FIELDS.NOT".
	Specifier string
	// Fields lists the header field names for HEADER.FIELDS[.NOT].
	Fields []string
	// Partial is set when the FETCH requested/returned a byte range.
	Partial    bool
	PartialOrigin uint64
	PartialLen    uint64
}

// String renders the section the way it appears on the wire, e.g.
// "1.2.HEADER.FIELDS (SUBJECT TO)".
func (b BodySection) String() string {
	s := ""
	for i, p := range b.Parts {
		if i > 0 {
			s += "."
		}
		s += fmt.Sprintf("%d", p)
	}
	if b.Specifier != "" {
		if s != "" {
			s += "."
		}
		s += b.Specifier
	}
	if b.Specifier == "HEADER.FIELDS" || b.Specifier == "HEADER.FIELDS.NOT" {
		s += " ("
		for i, f := range b.Fields {
			if i > 0 {
				s += " "
			}
			s += f
		}
		s += ")"
	}
	return s
}

// FetchAttrs is the unordered, never-lossily-deduplicated map of attribute
// name to value for one FETCH response. Because a FETCH may report the same
// named BODY section only once but may report several distinct BODY[...]
// sections, those live under distinct string keys (BodySection.String()).
type FetchAttrs struct {
	Scalars       map[FetchAttrName]Value
	Bodies        map[string]FetchBodyValue
	Envelope      *Envelope
	BodyStructure *BodyStructure
}

// FetchBodyValue is the value of one BODY[<section>]<...> data item.
type FetchBodyValue struct {
	Section BodySection
	Origin  *uint64 // set when the server echoed <origin> in the response
	Data    []byte  // the section's bytes; may be nil for an empty quoted string
	Present bool    // false means NIL (section absent), true means present (possibly empty)
}
