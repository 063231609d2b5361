package imap

import (
	"io"
	"mime"
	"net/mail"
	"time"

	"golang.org/x/text/encoding/htmlindex"
)

// UserAddress is a mapped, display-ready form of an ENVELOPE address: no
// NIL/pointer fields, RFC 2047 encoded words already decoded.
type UserAddress struct {
	Name    string
	Mailbox string
	Host    string
}

// UserAddressGroup is the mapped form of an RFC 3501 section 6.4.4/7.4.2
// address-list group: a named collection of addresses (e.g. a mailing list
// expansion), preserved as a unit rather than spilled into the surrounding
// flat list.
type UserAddressGroup struct {
	Name      string
	Addresses []UserAddress
}

// UserAddressEntry is exactly one of Address or Group set, mirroring
// AddressListEntry but with decoded, display-ready addresses.
type UserAddressEntry struct {
	Address *UserAddress
	Group   *UserAddressGroup
}

// UserEnvelope is the Response-to-Model Mapper's output for ENVELOPE: the
// wire-level Envelope with dates parsed, RFC 2047 encoded words decoded, and
// address lists mapped entry-by-entry so group membership survives.
type UserEnvelope struct {
	Date      time.Time
	HasDate   bool
	Subject   string
	From      []UserAddressEntry
	Sender    []UserAddressEntry
	ReplyTo   []UserAddressEntry
	To        []UserAddressEntry
	CC        []UserAddressEntry
	BCC       []UserAddressEntry
	InReplyTo string
	MessageID string
}

// MessageSummary is the mapped form of one FETCH response.
type MessageSummary struct {
	SeqNum        uint32
	UID           uint32
	Flags         []Flag
	InternalDate  time.Time
	HasInternalDate bool
	Size          uint64
	Envelope      *UserEnvelope
	BodyStructure *BodyStructure
	Bodies        map[string]FetchBodyValue
}

// Mailbox is the mapped form of a LIST/LSUB response: the name decoded out
// of modified UTF-7 back to plain Unicode.
type Mailbox struct {
	Name       string
	Delimiter  string
	Attributes []MailboxAttribute
}

// MailboxStatus is the mapped form of a STATUS response.
type MailboxStatus struct {
	Name   string
	Values map[string]uint64
}

// charsetReader adapts golang.org/x/text/encoding's registry to the
// signature mime.WordDecoder expects, so RFC 2047 encoded words using a
// charset other than UTF-8/US-ASCII still decode instead of erroring out
// the whole header.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return input, nil
	}
	return enc.NewDecoder().Reader(input), nil
}

func decodeHeaderWord(s string) string {
	dec := mime.WordDecoder{CharsetReader: charsetReader}
	out, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

func mapAddress(a Address) UserAddress {
	ua := UserAddress{}
	if a.Name != nil {
		ua.Name = decodeHeaderWord(*a.Name)
	}
	if a.Mailbox != nil {
		ua.Mailbox = *a.Mailbox
	}
	if a.Host != nil {
		ua.Host = *a.Host
	}
	return ua
}

// mapAddressList maps each AddressListEntry in order, keeping named groups
// intact instead of flattening them — flattening would silently discard
// which addresses belong to which group (RFC 3501 section 6.4.4).
func mapAddressList(l AddressList) []UserAddressEntry {
	if len(l.Entries) == 0 {
		return nil
	}
	out := make([]UserAddressEntry, 0, len(l.Entries))
	for _, e := range l.Entries {
		switch {
		case e.Address != nil:
			ua := mapAddress(*e.Address)
			out = append(out, UserAddressEntry{Address: &ua})
		case e.Group != nil:
			addrs := make([]UserAddress, len(e.Group.Addresses))
			for i, a := range e.Group.Addresses {
				addrs[i] = mapAddress(a)
			}
			out = append(out, UserAddressEntry{Group: &UserAddressGroup{Name: decodeHeaderWord(e.Group.Name), Addresses: addrs}})
		}
	}
	return out
}

// MapEnvelope converts a wire-level Envelope into a UserEnvelope. It
// returns nil if e is nil (the FETCH response had no ENVELOPE item).
func MapEnvelope(e *Envelope) *UserEnvelope {
	if e == nil {
		return nil
	}
	out := &UserEnvelope{
		From:    mapAddressList(e.From),
		Sender:  mapAddressList(e.Sender),
		ReplyTo: mapAddressList(e.ReplyTo),
		To:      mapAddressList(e.To),
		CC:      mapAddressList(e.CC),
		BCC:     mapAddressList(e.BCC),
	}
	if e.Subject != nil {
		out.Subject = decodeHeaderWord(*e.Subject)
	}
	if e.InReplyTo != nil {
		out.InReplyTo = *e.InReplyTo
	}
	if e.MessageID != nil {
		out.MessageID = *e.MessageID
	}
	if e.Date != nil {
		if t, err := mail.ParseDate(*e.Date); err == nil {
			out.Date = t
			out.HasDate = true
		}
	}
	return out
}

// internalDateLayout is the wire format of INTERNALDATE / APPEND date-time
// arguments (RFC 3501 section 4.3.1).
const internalDateLayout = "2-Jan-2006 15:04:05 -0700"

// MapFetch converts one FETCH response into a MessageSummary.
func MapFetch(r ResponseFetch) MessageSummary {
	sum := MessageSummary{SeqNum: r.SeqNum, Bodies: r.Attrs.Bodies}
	if v, ok := r.Attrs.Scalars[AttrUID]; ok {
		sum.UID = uint32(v.Number)
	}
	if v, ok := r.Attrs.Scalars[AttrFlags]; ok {
		for _, f := range v.List {
			sum.Flags = append(sum.Flags, Flag(f.Text))
		}
	}
	if v, ok := r.Attrs.Scalars[AttrInternalDate]; ok {
		if s, present := v.NilOrString(); present {
			if t, err := time.Parse(internalDateLayout, s); err == nil {
				sum.InternalDate = t
				sum.HasInternalDate = true
			}
		}
	}
	if v, ok := r.Attrs.Scalars[AttrRFC822Size]; ok {
		sum.Size = v.Number
	}
	sum.Envelope = MapEnvelope(r.Attrs.Envelope)
	sum.BodyStructure = r.Attrs.BodyStructure
	return sum
}

// MapList converts a LIST/LSUB response into a Mailbox, decoding the
// mailbox name out of modified UTF-7. A name that fails to decode (a
// non-conformant server) is kept verbatim rather than dropped.
func MapList(r ResponseList) Mailbox {
	name, err := DecodeMUTF7(r.Name)
	if err != nil {
		name = r.Name
	}
	delim := ""
	if r.Delim != nil {
		delim = *r.Delim
	}
	return Mailbox{Name: name, Delimiter: delim, Attributes: r.Attributes}
}

// MapStatus converts a STATUS response into a MailboxStatus.
func MapStatus(r ResponseStatusMailbox) MailboxStatus {
	name, err := DecodeMUTF7(r.Name)
	if err != nil {
		name = r.Name
	}
	return MailboxStatus{Name: name, Values: r.Values}
}
