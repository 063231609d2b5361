package imap

import "testing"

func mustParse(t *testing.T, raw string) interface{} {
	t.Helper()
	s := NewScanner()
	s.Feed([]byte(raw))
	resp, err := ParseResponse(s)
	if err != nil {
		t.Fatalf("ParseResponse(%q): %v", raw, err)
	}
	return resp
}

func TestParseTaggedOK(t *testing.T) {
	resp := mustParse(t, "A0001 OK LOGIN completed\r\n")
	tagged, ok := resp.(*Tagged)
	if !ok {
		t.Fatalf("expected *Tagged, got %T", resp)
	}
	if tagged.Tag != "A0001" || tagged.Status != StatusOK || tagged.Text != "LOGIN completed" {
		t.Fatalf("unexpected Tagged: %+v", tagged)
	}
}

func TestParseTaggedBareNoCodeOrText(t *testing.T) {
	resp := mustParse(t, "A0002 OK\r\n")
	tagged := resp.(*Tagged)
	if tagged.Status != StatusOK || tagged.Text != "" {
		t.Fatalf("unexpected Tagged: %+v", tagged)
	}
}

func TestParseTaggedWithStatusCode(t *testing.T) {
	resp := mustParse(t, "A0003 OK [READ-WRITE] SELECT completed\r\n")
	tagged := resp.(*Tagged)
	if tagged.Code == nil || tagged.Code.Name != "READ-WRITE" {
		t.Fatalf("expected READ-WRITE code, got %+v", tagged.Code)
	}
}

func TestParseContinuation(t *testing.T) {
	resp := mustParse(t, "+ ready for literal\r\n")
	cont, ok := resp.(*Continuation)
	if !ok || cont.Text != "ready for literal" {
		t.Fatalf("unexpected Continuation: %+v (%T)", resp, resp)
	}
}

func TestParseCapability(t *testing.T) {
	resp := mustParse(t, "* CAPABILITY IMAP4rev1 STARTTLS AUTH=PLAIN\r\n")
	u := resp.(*Untagged)
	if u.Kind != UntaggedCapability {
		t.Fatalf("expected UntaggedCapability, got %v", u.Kind)
	}
	caps := u.Payload.(ResponseCapability).Capabilities
	if len(caps) != 3 || caps[0] != "IMAP4rev1" {
		t.Fatalf("unexpected capabilities: %v", caps)
	}
}

func TestParseStatusUntaggedWithUIDNext(t *testing.T) {
	resp := mustParse(t, "* OK [UIDNEXT 4392] Predicted next UID\r\n")
	u := resp.(*Untagged)
	data := u.Payload.(ResponseStatusData)
	if data.Code == nil || data.Code.Name != "UIDNEXT" || data.Code.UIDNext != 4392 {
		t.Fatalf("unexpected status code: %+v", data.Code)
	}
}

func TestParseListWithExtraAtoms(t *testing.T) {
	resp := mustParse(t, `* LIST (\HasNoChildren \Unknownflag) "/" "INBOX"` + "\r\n")
	u := resp.(*Untagged)
	data := u.Payload.(ResponseList)
	if len(data.Attributes) != 1 || data.Attributes[0] != AttrHasNoChildren {
		t.Fatalf("unexpected recognized attributes: %v", data.Attributes)
	}
	if len(data.Extra) != 1 || data.Extra[0] != `\Unknownflag` {
		t.Fatalf("unexpected extra atoms: %v", data.Extra)
	}
	if data.Name != "INBOX" {
		t.Fatalf("unexpected name: %q", data.Name)
	}
}

func TestParseSearchNumbers(t *testing.T) {
	resp := mustParse(t, "* SEARCH 1 2 3 42\r\n")
	u := resp.(*Untagged)
	nums := u.Payload.(ResponseSearch).Numbers
	if len(nums) != 4 || nums[3] != 42 {
		t.Fatalf("unexpected search numbers: %v", nums)
	}
}

func TestParseFetchEnvelopeNilVsEmptyString(t *testing.T) {
	raw := `* 1 FETCH (ENVELOPE ("date" "" NIL NIL NIL NIL NIL NIL NIL NIL))` + "\r\n"
	resp := mustParse(t, raw)
	u := resp.(*Untagged)
	env := u.Payload.(ResponseFetch).Attrs.Envelope
	if env == nil {
		t.Fatal("expected a non-nil Envelope")
	}
	if env.Subject == nil || *env.Subject != "" {
		t.Fatalf("expected Subject to be a present-but-empty string, got %+v", env.Subject)
	}
	if env.InReplyTo != nil {
		t.Fatalf("expected InReplyTo to be NIL, got %+v", env.InReplyTo)
	}
}

func TestParseFetchEnvelopeGroupAddress(t *testing.T) {
	raw := `* 1 FETCH (ENVELOPE ("date" "subj" ` +
		`((NIL NIL "undisclosed-recipients" NIL)("A" NIL "a" "x.com")(NIL NIL NIL NIL)) ` +
		`NIL NIL NIL NIL NIL NIL NIL))` + "\r\n"
	resp := mustParse(t, raw)
	env := resp.(*Untagged).Payload.(ResponseFetch).Attrs.Envelope
	if len(env.From.Entries) != 1 || env.From.Entries[0].Group == nil {
		t.Fatalf("expected exactly one group entry, got %+v", env.From.Entries)
	}
	group := env.From.Entries[0].Group
	if group.Name != "undisclosed-recipients" || len(group.Addresses) != 1 {
		t.Fatalf("unexpected group: %+v", group)
	}
	flat := env.From.Flatten()
	if len(flat) != 1 || flat[0].Mailbox == nil || *flat[0].Mailbox != "a" {
		t.Fatalf("unexpected flattened addresses: %+v", flat)
	}
}

func TestParseFetchMultipleLiterals(t *testing.T) {
	raw := "* 3 FETCH (BODY[HEADER] {11}\r\nSubject: hi BODY[TEXT] {5}\r\nhello)\r\n"
	resp := mustParse(t, raw)
	attrs := resp.(*Untagged).Payload.(ResponseFetch).Attrs
	header, ok := attrs.Bodies["HEADER"]
	if !ok || string(header.Data) != "Subject: hi" {
		t.Fatalf("unexpected HEADER body: %+v", header)
	}
	text, ok := attrs.Bodies["TEXT"]
	if !ok || string(text.Data) != "hello" {
		t.Fatalf("unexpected TEXT body: %+v", text)
	}
}

func TestParseFetchBodyStructureSimple(t *testing.T) {
	raw := `* 4 FETCH (BODYSTRUCTURE ("TEXT" "PLAIN" ("CHARSET" "us-ascii") NIL NIL "7BIT" 120 5))` + "\r\n"
	resp := mustParse(t, raw)
	bs := resp.(*Untagged).Payload.(ResponseFetch).Attrs.BodyStructure
	if bs == nil || bs.Kind != BodyLeaf || bs.Type != "TEXT" || bs.Subtype != "PLAIN" {
		t.Fatalf("unexpected body structure: %+v", bs)
	}
	if bs.Lines == nil || *bs.Lines != 5 {
		t.Fatalf("expected Lines=5, got %+v", bs.Lines)
	}
	if bs.Params["CHARSET"] != "us-ascii" {
		t.Fatalf("unexpected params: %+v", bs.Params)
	}
}

func TestParseFetchBodyStructureMultipart(t *testing.T) {
	raw := `* 5 FETCH (BODYSTRUCTURE (` +
		`("TEXT" "PLAIN" NIL NIL NIL "7BIT" 10 1)` +
		`("TEXT" "HTML" NIL NIL NIL "7BIT" 20 2)` +
		` "ALTERNATIVE"))` + "\r\n"
	resp := mustParse(t, raw)
	bs := resp.(*Untagged).Payload.(ResponseFetch).Attrs.BodyStructure
	if bs == nil || bs.Kind != BodyMultipart || bs.Subtype != "ALTERNATIVE" {
		t.Fatalf("unexpected body structure: %+v", bs)
	}
	if len(bs.Children) != 2 || bs.Children[1].Subtype != "HTML" {
		t.Fatalf("unexpected children: %+v", bs.Children)
	}
}

func TestParseResponseResyncsAfterMalformedLine(t *testing.T) {
	s := NewScanner()
	s.Feed([]byte("* GARBLED ((((\r\n* 7 EXISTS\r\n"))
	_, err := ParseResponse(s)
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("expected *ParseError for the malformed line, got %v (%T)", err, err)
	}
	resp, err := ParseResponse(s)
	if err != nil {
		t.Fatalf("expected the next line to parse cleanly, got %v", err)
	}
	u := resp.(*Untagged)
	if u.Kind != UntaggedExists || u.Payload.(ResponseExists).Count != 7 {
		t.Fatalf("unexpected response after resync: %+v", u)
	}
}

func TestParseResponseIncompleteDoesNotConsume(t *testing.T) {
	s := NewScanner()
	s.Feed([]byte("* 1 EXI"))
	_, err := ParseResponse(s)
	if err != ErrIncomplete {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	s.Feed([]byte("STS\r\n"))
	resp, err := ParseResponse(s)
	if err != nil {
		t.Fatalf("ParseResponse after feed: %v", err)
	}
	if resp.(*Untagged).Kind != UntaggedExists {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
