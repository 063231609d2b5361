package imap

import "golang.org/x/net/idna"

// encodeHostname converts a Unicode server hostname to its ASCII
// (punycode) form before dialing, tolerating hostnames that are already
// ASCII or that idna cannot confidently transform (IP literals, for
// instance) by returning them unchanged.
func encodeHostname(host string) string {
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return host
	}
	return ascii
}
