package imap

import (
	"encoding/base64"
	"fmt"

	gosasl "github.com/emersion/go-sasl"
)

// saslClientFor builds the go-sasl client and wire mechanism name for the
// given AuthMethod. AuthLogin and AuthExternal are not SASL mechanisms in
// this package's model (LOGIN uses the plain LOGIN command; EXTERNAL has no
// credentials for this client to supply), so only PLAIN and XOAUTH2 reach
// here.
func saslClientFor(method AuthMethod, cfg Config) (gosasl.Client, string, error) {
	switch method {
	case AuthPlain:
		return gosasl.NewPlainClient("", cfg.Username, cfg.Password), "PLAIN", nil
	case AuthXOAuth2:
		return gosasl.NewXoauth2Client(cfg.Username, cfg.AccessToken), "XOAUTH2", nil
	default:
		return nil, "", &Error{Kind: KindInvalidArgument, Err: fmt.Errorf("no SASL mechanism for auth method %d", method)}
	}
}

// decodeSASLChallenge turns a continuation's base64 text into the raw
// challenge bytes go-sasl expects. A continuation with an empty text field
// ("+ \r\n" or "+\r\n") is a request for the client's initial response with
// no extra challenge data.
func decodeSASLChallenge(text string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Err: fmt.Errorf("malformed base64 SASL challenge: %w", err)}
	}
	return decoded, nil
}

func encodeSASLResponse(b []byte) string {
	if b == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}
