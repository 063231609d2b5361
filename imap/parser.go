package imap

import "bytes"

// ParseError wraps a malformed response the parser could not make sense of.
// The Connection Actor logs it and resynchronizes to the next CRLF rather
// than treating it as fatal; a single garbled line from a buggy server
// should not take the whole connection down.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "imap: parse error: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// ParseResponse reads exactly one IMAP response (tagged, untagged, or
// continuation) from s, returning one of *Tagged, *Untagged, *Continuation.
// ErrIncomplete means "call again once more bytes have been Fed"; any other
// error means the response was malformed, and the scanner has already been
// resynchronized past it.
func ParseResponse(s *Scanner) (interface{}, error) {
	cp := s.checkpoint()
	v, err := parseResponseInner(s)
	if err == nil {
		return v, nil
	}
	if err == ErrIncomplete {
		s.rollback(cp)
		return nil, ErrIncomplete
	}
	s.rollback(cp)
	if _, skipErr := s.ScanToEOL(); skipErr != nil {
		// Not even a full line is buffered yet; let the caller feed more and
		// retry the same malformed response from scratch.
		return nil, ErrIncomplete
	}
	return nil, &ParseError{Err: err}
}

func parseResponseInner(s *Scanner) (interface{}, error) {
	b, err := s.PeekByte()
	if err != nil {
		return nil, err
	}
	switch b {
	case '+':
		return parseContinuation(s)
	case '*':
		return parseUntagged(s)
	default:
		return parseTagged(s)
	}
}

func parseContinuation(s *Scanner) (*Continuation, error) {
	if _, err := s.Advance(); err != nil {
		return nil, err
	}
	s.skipSpaces()
	text, err := s.ScanToEOL()
	if err != nil {
		return nil, err
	}
	return &Continuation{Text: text}, nil
}

func parseTagged(s *Scanner) (*Tagged, error) {
	tag, err := s.ScanAtom()
	if err != nil {
		return nil, err
	}
	if err := s.ExpectSP(); err != nil {
		return nil, err
	}
	word, err := s.ScanAtom()
	if err != nil {
		return nil, err
	}
	status, ok := parseStatusWord(word)
	if !ok {
		return nil, &MalformedError{s.pos, "status word"}
	}
	b, err := s.PeekByte()
	if err != nil {
		return nil, err
	}
	if b == '\r' {
		if err := s.ExpectCRLF(); err != nil {
			return nil, err
		}
		return &Tagged{Tag: tag, Status: status}, nil
	}
	if err := s.ExpectSP(); err != nil {
		return nil, err
	}
	code, text, err := parseStatusCodeAndText(s)
	if err != nil {
		return nil, err
	}
	return &Tagged{Tag: tag, Status: status, Code: code, Text: text}, nil
}

func parseUntagged(s *Scanner) (*Untagged, error) {
	if _, err := s.Advance(); err != nil {
		return nil, err
	}
	if err := s.ExpectSP(); err != nil {
		return nil, err
	}
	b, err := s.PeekByte()
	if err != nil {
		return nil, err
	}
	if b >= '0' && b <= '9' {
		return parseNumericUntagged(s)
	}
	word, err := s.ScanAtom()
	if err != nil {
		return nil, err
	}
	if status, ok := parseStatusWord(word); ok {
		return parseStatusUntagged(s, status)
	}
	switch word {
	case "CAPABILITY":
		return parseCapabilityUntagged(s)
	case "LIST", "LSUB":
		return parseListUntagged(s, word)
	case "STATUS":
		return parseStatusDataUntagged(s)
	case "SEARCH":
		return parseSearchUntagged(s)
	case "FLAGS":
		return parseFlagsUntagged(s)
	default:
		return nil, &MalformedError{s.pos, "untagged response keyword"}
	}
}

func parseNumericUntagged(s *Scanner) (*Untagged, error) {
	n, err := s.ScanNumber()
	if err != nil {
		return nil, err
	}
	if err := s.ExpectSP(); err != nil {
		return nil, err
	}
	kw, err := s.ScanAtom()
	if err != nil {
		return nil, err
	}
	switch kw {
	case "EXISTS":
		if err := s.ExpectCRLF(); err != nil {
			return nil, err
		}
		return &Untagged{Kind: UntaggedExists, Payload: ResponseExists{Count: uint32(n)}}, nil
	case "RECENT":
		if err := s.ExpectCRLF(); err != nil {
			return nil, err
		}
		return &Untagged{Kind: UntaggedRecent, Payload: ResponseRecent{Count: uint32(n)}}, nil
	case "EXPUNGE":
		if err := s.ExpectCRLF(); err != nil {
			return nil, err
		}
		return &Untagged{Kind: UntaggedExpunge, Payload: ResponseExpunge{SeqNum: uint32(n)}}, nil
	case "FETCH":
		if err := s.ExpectSP(); err != nil {
			return nil, err
		}
		attrs, err := parseFetchAttrs(s)
		if err != nil {
			return nil, err
		}
		if err := s.ExpectCRLF(); err != nil {
			return nil, err
		}
		return &Untagged{Kind: UntaggedFetch, Payload: ResponseFetch{SeqNum: uint32(n), Attrs: attrs}}, nil
	default:
		return nil, &MalformedError{s.pos, "numeric untagged response keyword"}
	}
}

func parseStatusUntagged(s *Scanner, status Status) (*Untagged, error) {
	b, err := s.PeekByte()
	if err != nil {
		return nil, err
	}
	if b == '\r' {
		if err := s.ExpectCRLF(); err != nil {
			return nil, err
		}
		return &Untagged{Kind: UntaggedStatus, Payload: ResponseStatusData{Status: status}}, nil
	}
	if err := s.ExpectSP(); err != nil {
		return nil, err
	}
	code, text, err := parseStatusCodeAndText(s)
	if err != nil {
		return nil, err
	}
	return &Untagged{Kind: UntaggedStatus, Payload: ResponseStatusData{Status: status, Code: code, Text: text}}, nil
}

func parseCapabilityUntagged(s *Scanner) (*Untagged, error) {
	var caps []string
	b, err := s.PeekByte()
	if err != nil {
		return nil, err
	}
	if b != '\r' {
		if err := s.ExpectSP(); err != nil {
			return nil, err
		}
		caps, err = scanCapabilityWords(s)
		if err != nil {
			return nil, err
		}
	}
	if err := s.ExpectCRLF(); err != nil {
		return nil, err
	}
	return &Untagged{Kind: UntaggedCapability, Payload: ResponseCapability{Capabilities: caps}}, nil
}

func parseListUntagged(s *Scanner, word string) (*Untagged, error) {
	if err := s.ExpectSP(); err != nil {
		return nil, err
	}
	attrItems, err := s.ScanParenStringList()
	if err != nil {
		return nil, err
	}
	var attrs []MailboxAttribute
	var extra []string
	for _, a := range attrItems {
		switch MailboxAttribute(a) {
		case AttrNoinferiors, AttrNoselect, AttrMarked, AttrUnmarked, AttrHasChildren, AttrHasNoChildren:
			attrs = append(attrs, MailboxAttribute(a))
		default:
			extra = append(extra, a)
		}
	}
	if err := s.ExpectSP(); err != nil {
		return nil, err
	}
	delimVal, err := s.ScanNString()
	if err != nil {
		return nil, err
	}
	var delim *string
	if db, ok := delimVal.NilOrBytes(); ok {
		d := string(db)
		delim = &d
	}
	if err := s.ExpectSP(); err != nil {
		return nil, err
	}
	nameVal, err := s.ScanAString()
	if err != nil {
		return nil, err
	}
	if err := s.ExpectCRLF(); err != nil {
		return nil, err
	}
	kind := UntaggedList
	if word == "LSUB" {
		kind = UntaggedLSub
	}
	return &Untagged{Kind: kind, Payload: ResponseList{Attributes: attrs, Extra: extra, Delim: delim, Name: valueText(nameVal)}}, nil
}

func parseStatusDataUntagged(s *Scanner) (*Untagged, error) {
	if err := s.ExpectSP(); err != nil {
		return nil, err
	}
	nameVal, err := s.ScanAString()
	if err != nil {
		return nil, err
	}
	if err := s.ExpectSP(); err != nil {
		return nil, err
	}
	items, err := s.ScanList()
	if err != nil {
		return nil, err
	}
	values := make(map[string]uint64, len(items)/2)
	for i := 0; i+1 < len(items); i += 2 {
		k, v := items[i], items[i+1]
		if k.Kind != KindAtom || v.Kind != KindNumber {
			return nil, &MalformedError{s.pos, "STATUS item pair"}
		}
		values[k.Text] = v.Number
	}
	if err := s.ExpectCRLF(); err != nil {
		return nil, err
	}
	return &Untagged{Kind: UntaggedStatusData, Payload: ResponseStatusMailbox{Name: valueText(nameVal), Values: values}}, nil
}

func parseSearchUntagged(s *Scanner) (*Untagged, error) {
	var nums []uint64
	for {
		b, err := s.PeekByte()
		if err != nil {
			return nil, err
		}
		if b == '\r' {
			break
		}
		if err := s.ExpectSP(); err != nil {
			return nil, err
		}
		n, err := s.ScanNumber()
		if err != nil {
			return nil, err
		}
		nums = append(nums, n)
	}
	if err := s.ExpectCRLF(); err != nil {
		return nil, err
	}
	return &Untagged{Kind: UntaggedSearch, Payload: ResponseSearch{Numbers: nums}}, nil
}

func parseFlagsUntagged(s *Scanner) (*Untagged, error) {
	if err := s.ExpectSP(); err != nil {
		return nil, err
	}
	items, err := s.ScanParenStringList()
	if err != nil {
		return nil, err
	}
	if err := s.ExpectCRLF(); err != nil {
		return nil, err
	}
	return &Untagged{Kind: UntaggedFlags, Payload: ResponseFlags{Flags: items}}, nil
}

func parseStatusCodeAndText(s *Scanner) (*StatusCode, string, error) {
	b, err := s.PeekByte()
	if err != nil {
		return nil, "", err
	}
	var code *StatusCode
	if b == '[' {
		c, err := parseStatusCode(s)
		if err != nil {
			return nil, "", err
		}
		code = c
		s.skipSpaces()
	}
	text, err := s.ScanToEOL()
	if err != nil {
		return nil, "", err
	}
	return code, text, nil
}

func parseStatusCode(s *Scanner) (*StatusCode, error) {
	cp := s.checkpoint()
	if _, err := s.Advance(); err != nil {
		return nil, err
	}
	name, err := s.ScanAtom()
	if err != nil {
		s.rollback(cp)
		return nil, err
	}
	code := &StatusCode{Name: name}
	switch name {
	case "ALERT", "PARSE", "READ-ONLY", "READ-WRITE", "TRYCREATE":
		// no arguments
	case "PERMANENTFLAGS":
		if err := s.ExpectSP(); err != nil {
			s.rollback(cp)
			return nil, err
		}
		flags, err := s.ScanParenStringList()
		if err != nil {
			s.rollback(cp)
			return nil, err
		}
		code.PermanentFlags = flags
	case "UIDNEXT", "UIDVALIDITY", "UNSEEN":
		if err := s.ExpectSP(); err != nil {
			s.rollback(cp)
			return nil, err
		}
		n, err := s.ScanNumber()
		if err != nil {
			s.rollback(cp)
			return nil, err
		}
		switch name {
		case "UIDNEXT":
			code.UIDNext = n
		case "UIDVALIDITY":
			code.UIDValidity = n
		case "UNSEEN":
			code.Unseen = n
		}
	case "CAPABILITY":
		if err := s.ExpectSP(); err != nil {
			s.rollback(cp)
			return nil, err
		}
		caps, err := scanCapabilityWords(s)
		if err != nil {
			s.rollback(cp)
			return nil, err
		}
		code.Capabilities = caps
	case "BADCHARSET":
		if err := s.ExpectSP(); err == nil {
			list, err := s.ScanParenStringList()
			if err != nil {
				s.rollback(cp)
				return nil, err
			}
			code.BadCharset = list
		}
	default:
		if err := s.ExpectSP(); err == nil {
			rest, err := scanUntilCloseBracket(s)
			if err != nil {
				s.rollback(cp)
				return nil, err
			}
			code.OtherArgs = rest
		}
	}
	b, err := s.PeekByte()
	if err != nil {
		s.rollback(cp)
		return nil, err
	}
	if b != ']' {
		rest, err := scanUntilCloseBracket(s)
		if err != nil {
			s.rollback(cp)
			return nil, err
		}
		code.OtherArgs = rest
	}
	if err := expectByte(s, ']'); err != nil {
		s.rollback(cp)
		return nil, err
	}
	return code, nil
}

func scanCapabilityWords(s *Scanner) ([]string, error) {
	var out []string
	for {
		atom, err := s.ScanAtom()
		if err != nil {
			return nil, err
		}
		out = append(out, atom)
		b, err := s.PeekByte()
		if err != nil {
			return nil, err
		}
		if b == ' ' {
			s.skipSpaces()
			continue
		}
		return out, nil
	}
}

func scanUntilCloseBracket(s *Scanner) (string, error) {
	idx := bytes.IndexByte(s.buf[s.pos:], ']')
	if idx < 0 {
		return "", ErrIncomplete
	}
	text := string(s.buf[s.pos : s.pos+idx])
	s.pos += idx
	return text, nil
}
