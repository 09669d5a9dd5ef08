package tgui

import "fmt"

// Page is one window over a list shown in a chat message.
type Page[T any] struct {
	Items []T
	Index int // 0-based, clamped to the last page
	Size  int
	Total int
}

// Paginate cuts items into pages of size and returns page index.
func Paginate[T any](items []T, index, size int) Page[T] {
	if size <= 0 {
		size = 10
	}
	p := Page[T]{Index: max(index, 0), Size: size, Total: len(items)}
	if last := p.Pages() - 1; p.Index > last {
		p.Index = last
	}
	from := p.Index * size
	p.Items = items[from:min(from+size, len(items))]
	return p
}

// Pages is the page count; an empty list still has one page.
func (p Page[T]) Pages() int { return max(1, (p.Total+p.Size-1)/p.Size) }

func (p Page[T]) HasPrev() bool { return p.Index > 0 }
func (p Page[T]) HasNext() bool { return p.Index < p.Pages()-1 }

// Label renders "Page 2/3 • 21-40 of 55".
func (p Page[T]) Label() string {
	if p.Total == 0 {
		return "Page 1/1"
	}
	from := p.Index*p.Size + 1
	return fmt.Sprintf("Page %d/%d • %d-%d of %d", p.Index+1, p.Pages(), from, from+len(p.Items)-1, p.Total)
}
