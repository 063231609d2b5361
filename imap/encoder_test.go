package imap

import (
	"strings"
	"testing"
)

func planString(t *testing.T, tag string, req Request) string {
	t.Helper()
	plan := req.build(tag)
	var sb strings.Builder
	for _, seg := range plan.Segments {
		sb.Write(seg.Prefix)
		sb.Write(seg.Literal)
	}
	return sb.String()
}

func TestEncodeLoginQuotesSimpleCredentials(t *testing.T) {
	got := planString(t, "A1", EncodeLogin("alice", "s3cret"))
	want := `A1 LOGIN "alice" "s3cret"` + "\r\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEncodeLoginSendsUnsafePasswordAsLiteral(t *testing.T) {
	req := EncodeLogin("alice", "p@ss\"word\\withquote")
	plan := req.build("A1")
	if len(plan.Segments) < 2 {
		t.Fatalf("expected the unsafe password to split into a literal segment, got %d segments", len(plan.Segments))
	}
	last := plan.Segments[len(plan.Segments)-2]
	if last.Literal == nil {
		t.Fatalf("expected a literal payload segment before the trailer, got %+v", last)
	}
	if string(last.Literal) != "p@ss\"word\\withquote" {
		t.Fatalf("literal payload = %q", last.Literal)
	}
}

func TestEncodeSelectAppliesMUTF7(t *testing.T) {
	got := planString(t, "A2", EncodeSelect("Entwürfe"))
	if !strings.Contains(got, "SELECT") {
		t.Fatalf("expected SELECT verb in %q", got)
	}
	// EncodeMUTF7 is exercised directly in mutf7_test.go; here we just check
	// the mailbox argument round-trips back to the original name.
	fields := strings.SplitN(strings.TrimSuffix(got, "\r\n"), " ", 3)
	decoded, err := DecodeMUTF7(fields[2])
	if err != nil {
		t.Fatalf("DecodeMUTF7: %v", err)
	}
	if decoded != "Entwürfe" {
		t.Fatalf("mailbox round trip = %q, want %q", decoded, "Entwürfe")
	}
}

func TestEncodeSelectRequestMetadata(t *testing.T) {
	req := EncodeSelect("INBOX")
	if req.Verb != "SELECT" || req.Class != ClassAuthenticated {
		t.Fatalf("unexpected request metadata: %+v", req)
	}
	if !req.Collect[UntaggedExists] || !req.Collect[UntaggedFlags] || !req.Collect[UntaggedRecent] {
		t.Fatalf("expected SELECT to collect FLAGS/EXISTS/RECENT, got %+v", req.Collect)
	}
}

func TestEncodeAppendLiteralMessage(t *testing.T) {
	msg := []byte("Subject: hi\r\n\r\nbody\r\n")
	req := EncodeAppend("INBOX", []Flag{FlagSeen}, nil, msg)
	plan := req.build("A3")
	var found bool
	for _, seg := range plan.Segments {
		if string(seg.Literal) == string(msg) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the message body to appear as a literal segment")
	}
}

func TestEncodeFetchSingleVsMultipleItems(t *testing.T) {
	single := planString(t, "A4", EncodeFetch(false, NewSeqSet(1), []string{"ENVELOPE"}))
	if !strings.Contains(single, "FETCH 1 ENVELOPE") {
		t.Fatalf("single item should not be parenthesized: %q", single)
	}
	multi := planString(t, "A5", EncodeFetch(true, NewSeqSet(1, 2, 3), []string{"UID", "FLAGS"}))
	if !strings.Contains(multi, "UID FETCH 1:3 (UID FLAGS)") {
		t.Fatalf("unexpected multi-item FETCH: %q", multi)
	}
}

func TestEncodeStoreSilent(t *testing.T) {
	got := planString(t, "A6", EncodeStore(true, NewSeqSet(5), StoreAdd, []Flag{FlagSeen, FlagFlagged}, true))
	want := `A6 UID STORE 5 +FLAGS.SILENT (\Seen \Flagged)` + "\r\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNewSeqSetMergesAdjacentAndOverlapping(t *testing.T) {
	set := NewSeqSet(1, 2, 3, 7, 5, 6, 10)
	got := set.String()
	want := "1:3,5:7,10"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSeqSetRoundTrip(t *testing.T) {
	cases := []string{"1", "1:3", "1:*", "*", "1,3:5,9"}
	for _, c := range cases {
		set, err := ParseSeqSet(c)
		if err != nil {
			t.Fatalf("ParseSeqSet(%q): %v", c, err)
		}
		if got := set.String(); got != c {
			t.Errorf("ParseSeqSet(%q).String() = %q", c, got)
		}
	}
}

func TestEncodeSearchCriteria(t *testing.T) {
	crit := SearchAnd(SearchHeader("X-Mailer", "Acme"), SearchUnder("UNSEEN"))
	got := planString(t, "A7", EncodeSearch(false, "", crit))
	if !strings.HasPrefix(got, "A7 SEARCH ") {
		t.Fatalf("unexpected SEARCH plan: %q", got)
	}
	if !strings.Contains(got, `HEADER "X-Mailer" "Acme"`) || !strings.Contains(got, "UNSEEN") {
		t.Fatalf("unexpected SEARCH criteria encoding: %q", got)
	}
}

// SearchUnder is a tiny test-local helper wrapping one of the no-arg search
// atoms by name, so this file does not need to know every constructor name
// in search.go to exercise the AND/OR/NOT combinators.
func SearchUnder(name string) SearchCriteria {
	switch name {
	case "UNSEEN":
		return SearchUnseen()
	default:
		return SearchAll()
	}
}

func TestEncodeLogoutIsByteExact(t *testing.T) {
	req := EncodeLogout()
	plan := req.build("A8")
	s := NewScanner()
	for _, seg := range plan.Segments {
		s.Feed(seg.Prefix)
		s.Feed(seg.Literal)
	}
	// The command itself is client-to-server text, not something
	// ParseResponse understands; instead confirm it is byte-exact.
	got := string(s.buf)
	if got != "A8 LOGOUT\r\n" {
		t.Fatalf("got %q", got)
	}
}
