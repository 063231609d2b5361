package imap

import (
	"strconv"
	"time"
)

// SearchCriteria is one node of a SEARCH command's key tree (RFC 3501
// section 6.4.4). Build one with the Search* constructors below and combine
// with SearchAnd/SearchOr/SearchNot.
type SearchCriteria interface {
	isSearchCriteria()
}

type searchAtom string

func (searchAtom) isSearchCriteria() {}

func SearchAll() SearchCriteria        { return searchAtom("ALL") }
func SearchAnswered() SearchCriteria   { return searchAtom("ANSWERED") }
func SearchDeleted() SearchCriteria    { return searchAtom("DELETED") }
func SearchFlagged() SearchCriteria    { return searchAtom("FLAGGED") }
func SearchNew() SearchCriteria        { return searchAtom("NEW") }
func SearchOld() SearchCriteria        { return searchAtom("OLD") }
func SearchRecent() SearchCriteria     { return searchAtom("RECENT") }
func SearchSeen() SearchCriteria       { return searchAtom("SEEN") }
func SearchUnanswered() SearchCriteria { return searchAtom("UNANSWERED") }
func SearchUndeleted() SearchCriteria  { return searchAtom("UNDELETED") }
func SearchUnflagged() SearchCriteria  { return searchAtom("UNFLAGGED") }
func SearchUnseen() SearchCriteria     { return searchAtom("UNSEEN") }
func SearchDraft() SearchCriteria      { return searchAtom("DRAFT") }
func SearchUndraft() SearchCriteria    { return searchAtom("UNDRAFT") }

type searchKV struct{ key, val string }

func (searchKV) isSearchCriteria() {}

func SearchBcc(s string) SearchCriteria      { return searchKV{"BCC", s} }
func SearchBody(s string) SearchCriteria     { return searchKV{"BODY", s} }
func SearchCc(s string) SearchCriteria       { return searchKV{"CC", s} }
func SearchFrom(s string) SearchCriteria     { return searchKV{"FROM", s} }
func SearchKeyword(s string) SearchCriteria  { return searchKV{"KEYWORD", s} }
func SearchSubject(s string) SearchCriteria  { return searchKV{"SUBJECT", s} }
func SearchText(s string) SearchCriteria     { return searchKV{"TEXT", s} }
func SearchTo(s string) SearchCriteria       { return searchKV{"TO", s} }
func SearchUnkeyword(s string) SearchCriteria { return searchKV{"UNKEYWORD", s} }

type searchHeader struct{ field, value string }

func (searchHeader) isSearchCriteria() {}

func SearchHeader(field, value string) SearchCriteria { return searchHeader{field, value} }

type searchDate struct {
	key string
	t   time.Time
}

func (searchDate) isSearchCriteria() {}

func SearchBefore(t time.Time) SearchCriteria     { return searchDate{"BEFORE", t} }
func SearchOn(t time.Time) SearchCriteria         { return searchDate{"ON", t} }
func SearchSince(t time.Time) SearchCriteria      { return searchDate{"SINCE", t} }
func SearchSentBefore(t time.Time) SearchCriteria { return searchDate{"SENTBEFORE", t} }
func SearchSentOn(t time.Time) SearchCriteria     { return searchDate{"SENTON", t} }
func SearchSentSince(t time.Time) SearchCriteria  { return searchDate{"SENTSINCE", t} }

type searchNum struct {
	key string
	n   uint64
}

func (searchNum) isSearchCriteria() {}

func SearchLarger(n uint64) SearchCriteria  { return searchNum{"LARGER", n} }
func SearchSmaller(n uint64) SearchCriteria { return searchNum{"SMALLER", n} }

type searchSeq struct {
	uid bool
	set SeqSet
}

func (searchSeq) isSearchCriteria() {}

func SearchSeqSet(set SeqSet) SearchCriteria { return searchSeq{false, set} }
func SearchUID(set SeqSet) SearchCriteria    { return searchSeq{true, set} }

type searchAnd []SearchCriteria

func (searchAnd) isSearchCriteria() {}

// SearchAnd combines criteria with implicit AND (plain space-separated
// keys); IMAP's SEARCH grammar has no explicit AND operator.
func SearchAnd(cs ...SearchCriteria) SearchCriteria { return searchAnd(cs) }

type searchOr struct{ a, b SearchCriteria }

func (searchOr) isSearchCriteria() {}

func SearchOr(a, b SearchCriteria) SearchCriteria { return searchOr{a, b} }

type searchNot struct{ c SearchCriteria }

func (searchNot) isSearchCriteria() {}

func SearchNot(c SearchCriteria) SearchCriteria { return searchNot{c} }

// searchCriteria appends the wire form of c to the builder, threading any
// string argument through stringArg so it can synchronize as a literal.
func (b *cmdBuilder) searchCriteria(c SearchCriteria) *cmdBuilder {
	switch v := c.(type) {
	case searchAtom:
		b.lit(string(v))
	case searchKV:
		b.lit(v.key).sp().stringArg(v.val)
	case searchHeader:
		b.lit("HEADER").sp().stringArg(v.field).sp().stringArg(v.value)
	case searchDate:
		b.lit(v.key).sp().lit(v.t.UTC().Format("2-Jan-2006"))
	case searchNum:
		b.lit(v.key).sp().lit(strconv.FormatUint(v.n, 10))
	case searchSeq:
		if v.uid {
			b.lit("UID").sp()
		}
		b.lit(v.set.String())
	case searchAnd:
		for i, cc := range v {
			if i > 0 {
				b.sp()
			}
			b.searchCriteria(cc)
		}
	case searchOr:
		b.lit("OR").sp()
		b.searchCompound(v.a).sp()
		b.searchCompound(v.b)
	case searchNot:
		b.lit("NOT").sp()
		b.searchCompound(v.c)
	}
	return b
}

// searchCompound wraps c in parens only when it is a multi-key AND group;
// OR and NOT each take exactly one search-key argument (RFC 3501 section
// 6.4.4), so a compound child must collapse to a single parenthesized key.
func (b *cmdBuilder) searchCompound(c SearchCriteria) *cmdBuilder {
	if and, ok := c.(searchAnd); ok && len(and) > 1 {
		b.lit("(")
		b.searchCriteria(c)
		b.lit(")")
		return b
	}
	return b.searchCriteria(c)
}
