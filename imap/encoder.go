package imap

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Segment is one piece of a command's wire-bytes plan. Prefix is always
// written immediately; Literal, when non-nil, must wait for a continuation
// ("+") response before it is written (RFC 3501 section 4.3 synchronizing
// literals).
type Segment struct {
	Prefix  []byte
	Literal []byte
}

// Plan is the Command Encoder's output: the full sequence of writes needed
// to put one command on the wire, already split at every synchronizing
// literal boundary.
type Plan struct {
	Tag      string
	Segments []Segment
}

// Request couples an encoded command with the connection-state discipline
// and untagged-response collection the Connection Actor needs to execute it.
type Request struct {
	Verb    string
	Class   StateClass
	Collect map[UntaggedKind]bool
	build   func(tag string) Plan
}

func newRequest(verb string, class StateClass, build func(tag string) Plan, kinds ...UntaggedKind) Request {
	r := Request{Verb: verb, Class: class, build: build}
	if len(kinds) > 0 {
		r.Collect = make(map[UntaggedKind]bool, len(kinds))
		for _, k := range kinds {
			r.Collect[k] = true
		}
	}
	return r
}

// cmdBuilder assembles a Plan incrementally, inserting a segment boundary
// whenever a string argument decides it must travel as a literal.
type cmdBuilder struct {
	cur      strings.Builder
	segments []Segment
}

func newCmdBuilder(tag string) *cmdBuilder {
	b := &cmdBuilder{}
	b.cur.WriteString(tag)
	return b
}

func (b *cmdBuilder) lit(s string) *cmdBuilder {
	b.cur.WriteString(s)
	return b
}

func (b *cmdBuilder) sp() *cmdBuilder {
	b.cur.WriteByte(' ')
	return b
}

type stringForm int

const (
	formEmpty stringForm = iota
	formAtom
	formQuoted
	formLiteral
)

// decideStringForm implements the Command Encoder policy from spec.md
// section 4.3: non-empty safe ASCII up to 64 octets is quoted (or, when the
// argument position allows it and the value is a pure atom, sent as a bare
// atom); anything else synchronizes as a literal.
func decideStringForm(s string, allowAtom bool) stringForm {
	if s == "" {
		return formEmpty
	}
	unsafe := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x80 || c == '"' || c == '\\' || c == '\r' || c == '\n' {
			unsafe = true
			break
		}
	}
	if unsafe || len(s) > 64 {
		return formLiteral
	}
	if allowAtom && isPureAtom(s) {
		return formAtom
	}
	return formQuoted
}

func isPureAtom(s string) bool {
	for i := 0; i < len(s); i++ {
		if isAtomSpecial(s[i]) {
			return false
		}
	}
	return true
}

func quoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}

// stringArg appends a string argument, choosing its wire form and, if it
// must be a literal, closing out the current segment so the Connection
// Actor can wait for "+" before sending the payload.
func (b *cmdBuilder) stringArg(s string) *cmdBuilder {
	return b.stringArgPos(s, false)
}

func (b *cmdBuilder) atomOrStringArg(s string) *cmdBuilder {
	return b.stringArgPos(s, true)
}

func (b *cmdBuilder) stringArgPos(s string, allowAtom bool) *cmdBuilder {
	switch decideStringForm(s, allowAtom) {
	case formEmpty:
		b.cur.WriteString(`""`)
	case formAtom:
		b.cur.WriteString(s)
	case formQuoted:
		b.cur.WriteString(quoteString(s))
	case formLiteral:
		payload := []byte(s)
		b.cur.WriteString(fmt.Sprintf("{%d}", len(payload)))
		b.segments = append(b.segments, Segment{Prefix: []byte(b.cur.String()), Literal: payload})
		b.cur.Reset()
	}
	return b
}

// mailbox appends a mailbox name argument, applying modified UTF-7 encoding
// first (spec.md section 4.3).
func (b *cmdBuilder) mailbox(name string) *cmdBuilder {
	return b.atomOrStringArg(EncodeMUTF7(name))
}

func (b *cmdBuilder) finish(tag string) Plan {
	b.cur.WriteString("\r\n")
	b.segments = append(b.segments, Segment{Prefix: []byte(b.cur.String())})
	return Plan{Tag: tag, Segments: b.segments}
}

// --- Commands allowed in any connected state ---

func EncodeCapability() Request {
	return newRequest("CAPABILITY", ClassAny, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("CAPABILITY").finish(tag)
	}, UntaggedCapability)
}

func EncodeNoop() Request {
	return newRequest("NOOP", ClassAny, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("NOOP").finish(tag)
	})
}

func EncodeLogout() Request {
	return newRequest("LOGOUT", ClassAny, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("LOGOUT").finish(tag)
	})
}

// --- notAuthenticated ---

func EncodeStartTLS() Request {
	return newRequest("STARTTLS", ClassNotAuthenticated, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("STARTTLS").finish(tag)
	})
}

func EncodeLogin(user, pass string) Request {
	return newRequest("LOGIN", ClassNotAuthenticated, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("LOGIN").sp().stringArg(user).sp().stringArg(pass).finish(tag)
	})
}

// EncodeAuthenticate starts a SASL exchange; the mechanism name is sent
// inline and subsequent challenge/response bytes are driven by the
// Connection Actor's continuation loop, not by this Plan (see imap/auth.go).
func EncodeAuthenticate(mechanism string) Request {
	return newRequest("AUTHENTICATE", ClassNotAuthenticated, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("AUTHENTICATE").sp().lit(mechanism).finish(tag)
	})
}

// --- authenticated ---

func EncodeSelect(mailbox string) Request {
	return newRequest("SELECT", ClassAuthenticated, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("SELECT").sp().mailbox(mailbox).finish(tag)
	}, UntaggedFlags, UntaggedExists, UntaggedRecent)
}

func EncodeExamine(mailbox string) Request {
	return newRequest("EXAMINE", ClassAuthenticated, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("EXAMINE").sp().mailbox(mailbox).finish(tag)
	}, UntaggedFlags, UntaggedExists, UntaggedRecent)
}

func EncodeCreate(mailbox string) Request {
	return newRequest("CREATE", ClassAuthenticated, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("CREATE").sp().mailbox(mailbox).finish(tag)
	})
}

func EncodeDelete(mailbox string) Request {
	return newRequest("DELETE", ClassAuthenticated, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("DELETE").sp().mailbox(mailbox).finish(tag)
	})
}

func EncodeRename(from, to string) Request {
	return newRequest("RENAME", ClassAuthenticated, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("RENAME").sp().mailbox(from).sp().mailbox(to).finish(tag)
	})
}

func EncodeSubscribe(mailbox string) Request {
	return newRequest("SUBSCRIBE", ClassAuthenticated, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("SUBSCRIBE").sp().mailbox(mailbox).finish(tag)
	})
}

func EncodeUnsubscribe(mailbox string) Request {
	return newRequest("UNSUBSCRIBE", ClassAuthenticated, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("UNSUBSCRIBE").sp().mailbox(mailbox).finish(tag)
	})
}

func EncodeList(reference, mailbox string) Request {
	return newRequest("LIST", ClassAuthenticated, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("LIST").sp().mailbox(reference).sp().mailbox(mailbox).finish(tag)
	}, UntaggedList)
}

func EncodeLSub(reference, mailbox string) Request {
	return newRequest("LSUB", ClassAuthenticated, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("LSUB").sp().mailbox(reference).sp().mailbox(mailbox).finish(tag)
	}, UntaggedLSub)
}

func EncodeStatus(mailbox string, items []string) Request {
	return newRequest("STATUS", ClassAuthenticated, func(tag string) Plan {
		b := newCmdBuilder(tag).sp().lit("STATUS").sp().mailbox(mailbox).sp().lit("(")
		for i, it := range items {
			if i > 0 {
				b.sp()
			}
			b.lit(it)
		}
		return b.lit(")").finish(tag)
	}, UntaggedStatusData)
}

// EncodeAppend encodes APPEND mailbox [(flags)] [date-time] {n}CRLF<message>;
// the message body always travels as a literal (arbitrary binary content).
func EncodeAppend(mailbox string, flags []Flag, when *time.Time, message []byte) Request {
	return newRequest("APPEND", ClassAuthenticated, func(tag string) Plan {
		b := newCmdBuilder(tag).sp().lit("APPEND").sp().mailbox(mailbox)
		if len(flags) > 0 {
			b.sp().lit("(")
			for i, f := range flags {
				if i > 0 {
					b.sp()
				}
				b.lit(string(f))
			}
			b.lit(")")
		}
		if when != nil {
			b.sp().stringArg(when.Format("2-Jan-2006 15:04:05 -0700"))
		}
		b.sp()
		b.cur.WriteString(fmt.Sprintf("{%d}", len(message)))
		b.segments = append(b.segments, Segment{Prefix: []byte(b.cur.String()), Literal: append([]byte(nil), message...)})
		b.cur.Reset()
		return b.finish(tag)
	})
}

func EncodeIdle() Request {
	return newRequest("IDLE", ClassAuthenticated, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("IDLE").finish(tag)
	})
}

// EncodeDone is not tagged: it terminates an in-progress IDLE.
func EncodeDone() []byte {
	return []byte("DONE\r\n")
}

// --- selected ---

func EncodeCheck() Request {
	return newRequest("CHECK", ClassSelected, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("CHECK").finish(tag)
	})
}

func EncodeClose() Request {
	return newRequest("CLOSE", ClassSelected, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("CLOSE").finish(tag)
	})
}

func EncodeExpunge() Request {
	return newRequest("EXPUNGE", ClassSelected, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("EXPUNGE").finish(tag)
	}, UntaggedExpunge)
}

func EncodeSearch(uid bool, charset string, criteria SearchCriteria) Request {
	verb := "SEARCH"
	if uid {
		verb = "UID SEARCH"
	}
	return newRequest(verb, ClassSelected, func(tag string) Plan {
		b := newCmdBuilder(tag).sp()
		if uid {
			b.lit("UID").sp()
		}
		b.lit("SEARCH")
		if charset != "" {
			b.sp().lit("CHARSET").sp().lit(charset)
		}
		b.sp().searchCriteria(criteria)
		return b.finish(tag)
	}, UntaggedSearch)
}

func EncodeFetch(uid bool, set SeqSet, items []string) Request {
	verb := "FETCH"
	if uid {
		verb = "UID FETCH"
	}
	return newRequest(verb, ClassSelected, func(tag string) Plan {
		b := newCmdBuilder(tag).sp()
		if uid {
			b.lit("UID").sp()
		}
		b.lit("FETCH").sp().lit(set.String()).sp()
		if len(items) == 1 {
			b.lit(items[0])
		} else {
			b.lit("(")
			for i, it := range items {
				if i > 0 {
					b.sp()
				}
				b.lit(it)
			}
			b.lit(")")
		}
		return b.finish(tag)
	}, UntaggedFetch)
}

// StoreOp is the +/-/= prefix of a STORE command.
type StoreOp int

const (
	StoreReplace StoreOp = iota
	StoreAdd
	StoreRemove
)

func EncodeStore(uid bool, set SeqSet, op StoreOp, flags []Flag, silent bool) Request {
	verb := "STORE"
	if uid {
		verb = "UID STORE"
	}
	return newRequest(verb, ClassSelected, func(tag string) Plan {
		b := newCmdBuilder(tag).sp()
		if uid {
			b.lit("UID").sp()
		}
		b.lit("STORE").sp().lit(set.String()).sp()
		switch op {
		case StoreAdd:
			b.lit("+")
		case StoreRemove:
			b.lit("-")
		}
		b.lit("FLAGS")
		if silent {
			b.lit(".SILENT")
		}
		b.sp().lit("(")
		for i, f := range flags {
			if i > 0 {
				b.sp()
			}
			b.lit(string(f))
		}
		return b.lit(")").finish(tag)
	}, UntaggedFetch)
}

func EncodeCopy(uid bool, set SeqSet, mailbox string) Request {
	verb := "COPY"
	if uid {
		verb = "UID COPY"
	}
	return newRequest(verb, ClassSelected, func(tag string) Plan {
		b := newCmdBuilder(tag).sp()
		if uid {
			b.lit("UID").sp()
		}
		b.lit("COPY").sp().lit(set.String()).sp().mailbox(mailbox)
		return b.finish(tag)
	})
}

func EncodeMove(uid bool, set SeqSet, mailbox string) Request {
	verb := "MOVE"
	if uid {
		verb = "UID MOVE"
	}
	return newRequest(verb, ClassSelected, func(tag string) Plan {
		b := newCmdBuilder(tag).sp()
		if uid {
			b.lit("UID").sp()
		}
		b.lit("MOVE").sp().lit(set.String()).sp().mailbox(mailbox)
		return b.finish(tag)
	})
}

func EncodeUIDExpunge(set SeqSet) Request {
	return newRequest("UID EXPUNGE", ClassSelected, func(tag string) Plan {
		return newCmdBuilder(tag).sp().lit("UID EXPUNGE").sp().lit(set.String()).finish(tag)
	}, UntaggedExpunge)
}

// --- sequence sets ---

// SeqRange is an inclusive sequence-number or UID range; End == 0 means "*"
// (the highest numbered message/UID in the mailbox).
type SeqRange struct {
	Start uint32
	End   uint32
}

// SeqSet is a normalized, ascending, deduplicated set of SeqRanges.
type SeqSet struct {
	Ranges []SeqRange
	Star   bool // a lone "*" with no Start, meaning "the last message only"
}

// NewSeqSet builds a normalized SeqSet out of individual numbers, merging
// adjacent/overlapping values into ranges.
func NewSeqSet(nums ...uint32) SeqSet {
	if len(nums) == 0 {
		return SeqSet{}
	}
	sorted := append([]uint32(nil), nums...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	var out []SeqRange
	start, end := sorted[0], sorted[0]
	for _, n := range sorted[1:] {
		if n == end || n == end+1 {
			end = n
			continue
		}
		out = append(out, SeqRange{start, end})
		start, end = n, n
	}
	out = append(out, SeqRange{start, end})
	return SeqSet{Ranges: out}
}

func (s SeqSet) String() string {
	if s.Star && len(s.Ranges) == 0 {
		return "*"
	}
	parts := make([]string, 0, len(s.Ranges))
	for _, r := range s.Ranges {
		if r.Start == r.End {
			if r.End == 0 {
				parts = append(parts, "*")
			} else {
				parts = append(parts, strconv.FormatUint(uint64(r.Start), 10))
			}
			continue
		}
		endStr := "*"
		if r.End != 0 {
			endStr = strconv.FormatUint(uint64(r.End), 10)
		}
		parts = append(parts, fmt.Sprintf("%d:%s", r.Start, endStr))
	}
	return strings.Join(parts, ",")
}

// ParseSeqSet parses a wire-format sequence set back into a SeqSet.
func ParseSeqSet(s string) (SeqSet, error) {
	if s == "*" {
		return SeqSet{Star: true}, nil
	}
	var ranges []SeqRange
	for _, part := range strings.Split(s, ",") {
		if part == "" {
			return SeqSet{}, &MalformedError{0, "sequence set"}
		}
		if colon := strings.IndexByte(part, ':'); colon >= 0 {
			startStr, endStr := part[:colon], part[colon+1:]
			start, err := strconv.ParseUint(startStr, 10, 32)
			if err != nil {
				return SeqSet{}, &MalformedError{0, "sequence number"}
			}
			var end uint64
			if endStr != "*" {
				end, err = strconv.ParseUint(endStr, 10, 32)
				if err != nil {
					return SeqSet{}, &MalformedError{0, "sequence number"}
				}
			}
			ranges = append(ranges, SeqRange{uint32(start), uint32(end)})
			continue
		}
		if part == "*" {
			ranges = append(ranges, SeqRange{0, 0})
			continue
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return SeqSet{}, &MalformedError{0, "sequence number"}
		}
		ranges = append(ranges, SeqRange{uint32(n), uint32(n)})
	}
	return SeqSet{Ranges: ranges}, nil
}
