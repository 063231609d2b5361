package imap

import "testing"

func TestEncodeMUTF7(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"INBOX", "INBOX"},
		{"Entwürfe", "Entw&APw-rfe"},
		{"&", "&-"},
		{"A&B", "A&-B"},
		{"", ""},
	}
	for _, c := range cases {
		got := EncodeMUTF7(c.in)
		if got != c.want {
			t.Errorf("EncodeMUTF7(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMUTF7RoundTrip(t *testing.T) {
	names := []string{"INBOX", "Entwürfe", "Sent Items", "日本語", "&weird&name&"}
	for _, name := range names {
		encoded := EncodeMUTF7(name)
		decoded, err := DecodeMUTF7(encoded)
		if err != nil {
			t.Fatalf("DecodeMUTF7(%q) returned error: %v", encoded, err)
		}
		if decoded != name {
			t.Errorf("round trip of %q produced %q via %q", name, decoded, encoded)
		}
	}
}

func TestDecodeMUTF7Malformed(t *testing.T) {
	if _, err := DecodeMUTF7("&!!!-"); err == nil {
		t.Fatal("expected an error decoding an invalid base64 run")
	}
}

func TestDecodeMUTF7UnterminatedRun(t *testing.T) {
	// A '&' with no closing '-' consumes to the end of the string rather
	// than looping forever.
	if _, err := DecodeMUTF7("&APw"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
