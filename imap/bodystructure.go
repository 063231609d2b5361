package imap

// parseBodyStructure reads a BODYSTRUCTURE/BODY tree (RFC 3501 section
// 7.4.2) directly off the scanner.
func parseBodyStructure(s *Scanner) (*BodyStructure, error) {
	v, err := s.ScanValue(0)
	if err != nil {
		return nil, err
	}
	return bodyStructureFromValue(v)
}

func bodyStructureFromValue(v Value) (*BodyStructure, error) {
	if v.Kind != KindList || len(v.List) == 0 {
		return nil, &MalformedError{0, "body structure"}
	}
	if v.List[0].Kind == KindList {
		return parseMultipart(v.List)
	}
	return parseLeaf(v.List)
}

func valueText(v Value) string {
	switch v.Kind {
	case KindAtom:
		return v.Text
	case KindString:
		return string(v.Bytes)
	}
	return ""
}

func asciiUpperLocal(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

func parseMultipart(items []Value) (*BodyStructure, error) {
	bs := &BodyStructure{Kind: BodyMultipart}
	i := 0
	for ; i < len(items) && items[i].Kind == KindList; i++ {
		child, err := bodyStructureFromValue(items[i])
		if err != nil {
			return nil, err
		}
		bs.Children = append(bs.Children, *child)
	}
	if i >= len(items) {
		return bs, nil
	}
	if items[i].Kind != KindAtom && items[i].Kind != KindString {
		return nil, &MalformedError{0, "multipart subtype"}
	}
	bs.Subtype = valueText(items[i])
	i++
	if i < len(items) {
		params, err := paramsFromValue(items[i])
		if err != nil {
			return nil, err
		}
		bs.Params = params
		i++
	}
	applyBodyExtension(bs, items, i)
	return bs, nil
}

func parseLeaf(items []Value) (*BodyStructure, error) {
	if len(items) < 7 {
		return nil, &MalformedError{0, "body leaf fields"}
	}
	bs := &BodyStructure{Kind: BodyLeaf}
	bs.Type = valueText(items[0])
	bs.Subtype = valueText(items[1])
	params, err := paramsFromValue(items[2])
	if err != nil {
		return nil, err
	}
	bs.Params = params
	if id, ok := items[3].NilOrString(); ok {
		bs.ID = &id
	}
	if desc, ok := items[4].NilOrString(); ok {
		bs.Description = &desc
	}
	bs.Encoding = valueText(items[5])
	if items[6].Kind != KindNumber {
		return nil, &MalformedError{0, "body size"}
	}
	bs.Size = items[6].Number

	i := 7
	typ, subtype := asciiUpperLocal(bs.Type), asciiUpperLocal(bs.Subtype)
	switch {
	case typ == "MESSAGE" && subtype == "RFC822":
		if i+1 >= len(items) {
			return bs, nil
		}
		env, err := envelopeFromValue(items[i])
		if err != nil {
			return nil, err
		}
		bs.Envelope = env
		i++
		nested, err := bodyStructureFromValue(items[i])
		if err != nil {
			return nil, err
		}
		bs.Nested = nested
		i++
		if i < len(items) && items[i].Kind == KindNumber {
			lines := items[i].Number
			bs.Lines = &lines
			i++
		}
	case typ == "TEXT":
		if i < len(items) && items[i].Kind == KindNumber {
			lines := items[i].Number
			bs.Lines = &lines
			i++
		}
	}

	// body MD5 (extension field, not separately modeled); then disposition,
	// language, location, each tolerated as absent if the server truncated.
	if i < len(items) {
		i++
	}
	applyBodyExtension(bs, items, i)
	return bs, nil
}

// applyBodyExtension parses the trailing, commonly-truncated extension
// fields shared by leaf and multipart bodies: disposition, language,
// location. Absence beyond what the server sent is tolerated.
func applyBodyExtension(bs *BodyStructure, items []Value, i int) {
	if i < len(items) {
		disp, dispParams, err := dispositionFromValue(items[i])
		if err == nil {
			bs.Disposition = disp
			bs.DispositionParams = dispParams
		}
		i++
	}
	if i < len(items) {
		bs.Language = languageFromValue(items[i])
		i++
	}
	if i < len(items) {
		if loc, ok := items[i].NilOrString(); ok {
			bs.Location = &loc
		}
	}
}

func paramsFromValue(v Value) (map[string]string, error) {
	if v.Kind == KindNil {
		return nil, nil
	}
	if v.Kind != KindList {
		return nil, &MalformedError{0, "body parameter list"}
	}
	out := make(map[string]string, len(v.List)/2)
	for i := 0; i+1 < len(v.List); i += 2 {
		out[asciiUpperLocal(valueText(v.List[i]))] = valueText(v.List[i+1])
	}
	return out, nil
}

func dispositionFromValue(v Value) (*string, map[string]string, error) {
	if v.Kind == KindNil {
		return nil, nil, nil
	}
	if v.Kind != KindList || len(v.List) < 1 {
		return nil, nil, &MalformedError{0, "body disposition"}
	}
	typ := valueText(v.List[0])
	var params map[string]string
	if len(v.List) > 1 {
		params, _ = paramsFromValue(v.List[1])
	}
	return &typ, params, nil
}

func languageFromValue(v Value) []string {
	switch v.Kind {
	case KindNil:
		return nil
	case KindList:
		out := make([]string, 0, len(v.List))
		for _, it := range v.List {
			out = append(out, valueText(it))
		}
		return out
	default:
		return []string{valueText(v)}
	}
}
