package pagination

import "strconv"

// MaxUntruncated is the largest page count shown without an ellipsis.
const MaxUntruncated = 7

// Token is one entry of a page-control sequence: either a page number or
// an ellipsis marker.
type Token struct {
	Page     int
	Ellipsis bool
}

// PageToken returns a numeric token.
func PageToken(n int) Token {
	return Token{Page: n}
}

// EllipsisToken returns an ellipsis marker.
func EllipsisToken() Token {
	return Token{Ellipsis: true}
}

// String renders the token as a page number or "…".
func (t Token) String() string {
	if t.Ellipsis {
		return "…"
	}
	return strconv.Itoa(t.Page)
}

// Sequence returns the bounded page-control sequence for the current page.
//
// Up to MaxUntruncated pages are listed in full. Above that, the sequence
// always keeps the first two and last two pages and one of three windows:
//
//	near start (current <= 3):   1 2 3 4 … n-1 n
//	near end   (current >= n-2): 1 2 … n-3 n-2 n-1 n
//	middle:                      1 2 … c-1 c c+1 … n-1 n
//
// A current page beyond pageCount lands in the near-end window.
func Sequence(current, pageCount int) []Token {
	if pageCount <= 0 {
		return []Token{}
	}
	if current < 1 {
		current = 1
	}

	if pageCount <= MaxUntruncated {
		return pages(1, pageCount)
	}

	switch {
	case current <= 3:
		seq := pages(1, 4)
		seq = append(seq, EllipsisToken())
		return append(seq, pages(pageCount-1, pageCount)...)
	case current >= pageCount-2:
		seq := pages(1, 2)
		seq = append(seq, EllipsisToken())
		return append(seq, pages(pageCount-3, pageCount)...)
	default:
		seq := pages(1, 2)
		seq = append(seq, EllipsisToken())
		seq = append(seq, pages(current-1, current+1)...)
		seq = append(seq, EllipsisToken())
		return append(seq, pages(pageCount-1, pageCount)...)
	}
}

// Window holds the neighbours of the current page for previous/next
// controls. Zero means the control is absent.
type Window struct {
	Current int
	Prev    int
	Next    int
}

// NewWindow computes the previous/next neighbours of current.
func NewWindow(current, pageCount int) Window {
	if current < 1 {
		current = 1
	}
	w := Window{Current: current}
	if current > 1 {
		w.Prev = current - 1
		if pageCount > 0 && w.Prev > pageCount {
			w.Prev = pageCount
		}
	}
	if current < pageCount {
		w.Next = current + 1
	}
	return w
}

func pages(from, to int) []Token {
	seq := make([]Token, 0, to-from+1)
	for n := from; n <= to; n++ {
		seq = append(seq, PageToken(n))
	}
	return seq
}
