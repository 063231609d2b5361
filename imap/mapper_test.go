package imap

import "testing"

func strp(s string) *string { return &s }

func TestMapEnvelopeNilReturnsNil(t *testing.T) {
	if MapEnvelope(nil) != nil {
		t.Fatal("expected MapEnvelope(nil) to return nil")
	}
}

func TestMapEnvelopeDecodesRFC2047Subject(t *testing.T) {
	env := &Envelope{
		Subject: strp("=?UTF-8?Q?Caf=C3=A9?="),
		From: AddressList{Entries: []AddressListEntry{
			{Address: &Address{Name: strp("Alice"), Mailbox: strp("alice"), Host: strp("example.com")}},
		}},
	}
	out := MapEnvelope(env)
	if out.Subject != "Café" {
		t.Fatalf("Subject = %q, want decoded %q", out.Subject, "Café")
	}
	if len(out.From) != 1 || out.From[0].Address == nil ||
		out.From[0].Address.Mailbox != "alice" || out.From[0].Address.Host != "example.com" {
		t.Fatalf("unexpected From: %+v", out.From)
	}
}

func TestMapEnvelopePreservesAddressGroups(t *testing.T) {
	env := &Envelope{
		To: AddressList{Entries: []AddressListEntry{
			{Address: &Address{Mailbox: strp("solo"), Host: strp("example.com")}},
			{Group: &AddressGroup{
				Name: "friends",
				Addresses: []Address{
					{Mailbox: strp("alice"), Host: strp("example.com")},
					{Mailbox: strp("bob"), Host: strp("example.com")},
				},
			}},
		}},
	}
	out := MapEnvelope(env)
	if len(out.To) != 2 {
		t.Fatalf("expected 2 entries (1 solo address + 1 group), got %d: %+v", len(out.To), out.To)
	}
	if out.To[0].Address == nil || out.To[0].Address.Mailbox != "solo" {
		t.Fatalf("expected first entry to be the ungrouped address, got %+v", out.To[0])
	}
	g := out.To[1].Group
	if g == nil || g.Name != "friends" || len(g.Addresses) != 2 ||
		g.Addresses[0].Mailbox != "alice" || g.Addresses[1].Mailbox != "bob" {
		t.Fatalf("expected a preserved group entry, got %+v", out.To[1])
	}
}

func TestMapEnvelopeParsesDate(t *testing.T) {
	env := &Envelope{Date: strp("Wed, 1 Jan 2025 10:00:00 +0000")}
	out := MapEnvelope(env)
	if !out.HasDate {
		t.Fatal("expected HasDate to be true for a parseable date")
	}
	if out.Date.Year() != 2025 {
		t.Fatalf("unexpected parsed date: %v", out.Date)
	}
}

func TestMapEnvelopeTreatsUnparsableDateAsAbsent(t *testing.T) {
	env := &Envelope{Date: strp("not a date")}
	out := MapEnvelope(env)
	if out.HasDate {
		t.Fatalf("expected HasDate=false for an unparseable date, got %v", out.Date)
	}
}

func TestMapFetchPopulatesScalarsAndEnvelope(t *testing.T) {
	r := ResponseFetch{
		SeqNum: 3,
		Attrs: FetchAttrs{
			Scalars: map[FetchAttrName]Value{
				AttrUID:          {Kind: KindNumber, Number: 42},
				AttrFlags:        {Kind: KindList, List: []Value{{Kind: KindAtom, Text: `\Seen`}}},
				AttrInternalDate: {Kind: KindString, Bytes: []byte("1-Jan-2025 00:00:00 +0000")},
				AttrRFC822Size:   {Kind: KindNumber, Number: 1024},
			},
			Bodies: map[string]FetchBodyValue{},
		},
	}
	sum := MapFetch(r)
	if sum.UID != 42 || sum.SeqNum != 3 || sum.Size != 1024 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(sum.Flags) != 1 || sum.Flags[0] != FlagSeen {
		t.Fatalf("unexpected flags: %v", sum.Flags)
	}
	if !sum.HasInternalDate || sum.InternalDate.Year() != 2025 {
		t.Fatalf("unexpected internal date: %+v", sum)
	}
}

func TestMapListDecodesMailboxName(t *testing.T) {
	delim := "/"
	r := ResponseList{
		Attributes: []MailboxAttribute{AttrHasNoChildren},
		Delim:      &delim,
		Name:       "Entw&APw-rfe",
	}
	mb := MapList(r)
	if mb.Name != "Entwürfe" {
		t.Fatalf("Name = %q, want decoded Unicode", mb.Name)
	}
	if mb.Delimiter != "/" {
		t.Fatalf("Delimiter = %q", mb.Delimiter)
	}
}

func TestMapListFallsBackOnBadMUTF7(t *testing.T) {
	r := ResponseList{Name: "&!!!-broken"}
	mb := MapList(r)
	if mb.Name != "&!!!-broken" {
		t.Fatalf("expected the raw name to survive a decode failure, got %q", mb.Name)
	}
}

func TestMapStatusDecodesName(t *testing.T) {
	r := ResponseStatusMailbox{Name: "INBOX", Values: map[string]uint64{"MESSAGES": 10, "UNSEEN": 2}}
	st := MapStatus(r)
	if st.Name != "INBOX" || st.Values["MESSAGES"] != 10 || st.Values["UNSEEN"] != 2 {
		t.Fatalf("unexpected status: %+v", st)
	}
}
