package imap

// parseEnvelope reads a ten-field ENVELOPE (RFC 3501 section 7.4.2) directly
// off the scanner. It is used both for the top-level FETCH ENVELOPE item and,
// via envelopeFromValue, for the nested envelope inside a message/rfc822
// BODYSTRUCTURE leaf.
func parseEnvelope(s *Scanner) (*Envelope, error) {
	v, err := s.ScanValue(0)
	if err != nil {
		return nil, err
	}
	return envelopeFromValue(v)
}

func envelopeFromValue(v Value) (*Envelope, error) {
	if v.Kind == KindNil {
		return nil, nil
	}
	if v.Kind != KindList || len(v.List) != 10 {
		return nil, &MalformedError{0, "10-field ENVELOPE"}
	}
	env := &Envelope{
		Date:      nstringPtr(v.List[0]),
		Subject:   nstringPtr(v.List[1]),
		InReplyTo: nstringPtr(v.List[8]),
		MessageID: nstringPtr(v.List[9]),
	}
	var err error
	if env.From, err = parseAddressList(v.List[2]); err != nil {
		return nil, err
	}
	if env.Sender, err = parseAddressList(v.List[3]); err != nil {
		return nil, err
	}
	if env.ReplyTo, err = parseAddressList(v.List[4]); err != nil {
		return nil, err
	}
	if env.To, err = parseAddressList(v.List[5]); err != nil {
		return nil, err
	}
	if env.CC, err = parseAddressList(v.List[6]); err != nil {
		return nil, err
	}
	if env.BCC, err = parseAddressList(v.List[7]); err != nil {
		return nil, err
	}
	return env, nil
}

func nstringPtr(v Value) *string {
	b, ok := v.NilOrBytes()
	if !ok {
		return nil
	}
	str := string(b)
	return &str
}

// parseAddressList converts an envelope address-list field (NIL or a list
// of 4-field addresses, possibly containing group start/end sentinels) into
// an AddressList.
func parseAddressList(v Value) (AddressList, error) {
	if v.Kind == KindNil {
		return AddressList{}, nil
	}
	if v.Kind != KindList {
		return AddressList{}, &MalformedError{0, "address list"}
	}
	var out AddressList
	var curGroup *AddressGroup
	for _, item := range v.List {
		addr, err := parseAddress(item)
		if err != nil {
			return AddressList{}, err
		}
		switch {
		case addr.isGroupStart():
			curGroup = &AddressGroup{Name: derefOr(addr.Mailbox, "")}
		case addr.isGroupEnd():
			if curGroup != nil {
				out.Entries = append(out.Entries, AddressListEntry{Group: curGroup})
				curGroup = nil
			}
		case curGroup != nil:
			curGroup.Addresses = append(curGroup.Addresses, addr)
		default:
			a := addr
			out.Entries = append(out.Entries, AddressListEntry{Address: &a})
		}
	}
	if curGroup != nil {
		// Server omitted the closing group-end sentinel; surface what we have
		// rather than silently dropping it.
		out.Entries = append(out.Entries, AddressListEntry{Group: curGroup})
	}
	return out, nil
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func parseAddress(v Value) (Address, error) {
	if v.Kind != KindList || len(v.List) != 4 {
		return Address{}, &MalformedError{0, "4-field address"}
	}
	return Address{
		Name:    nstringPtr(v.List[0]),
		ADL:     nstringPtr(v.List[1]),
		Mailbox: nstringPtr(v.List[2]),
		Host:    nstringPtr(v.List[3]),
	}, nil
}
