package tgui

import (
	"strings"
	"testing"
)

func TestHTMLHelpersEscape(t *testing.T) {
	t.Parallel()

	if got := B("A&B <x>").String(); got != "<b>A&amp;B &lt;x&gt;</b>" {
		t.Fatalf("B=%q", got)
	}
	if got := Link("src", `https://x.test/?a=1&b="2"`).String(); got != `<a href="https://x.test/?a=1&amp;b=&#34;2&#34;">src</a>` {
		t.Fatalf("Link=%q", got)
	}
	if got := Link("src", "").String(); got != "src" {
		t.Fatalf("Link without url=%q", got)
	}
	if got := Lines(B("a"), "", Code("b")).String(); got != "<b>a</b>\n<code>b</code>" {
		t.Fatalf("Lines=%q", got)
	}
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	items := []int{1, 2, 3, 4, 5, 6, 7}
	cases := []struct {
		index, size int
		first, n    int
		prev, next  bool
		label       string
	}{
		{0, 3, 1, 3, false, true, "Page 1/3 • 1-3 of 7"},
		{1, 3, 4, 3, true, true, "Page 2/3 • 4-6 of 7"},
		{2, 3, 7, 1, true, false, "Page 3/3 • 7-7 of 7"},
		{9, 3, 7, 1, true, false, "Page 3/3 • 7-7 of 7"},
		{-1, 10, 1, 7, false, false, "Page 1/1 • 1-7 of 7"},
	}
	for _, tc := range cases {
		p := Paginate(items, tc.index, tc.size)
		if len(p.Items) != tc.n || p.Items[0] != tc.first || p.HasPrev() != tc.prev || p.HasNext() != tc.next {
			t.Fatalf("Paginate(%d,%d)=%+v prev=%v next=%v", tc.index, tc.size, p, p.HasPrev(), p.HasNext())
		}
		if got := p.Label(); got != tc.label {
			t.Fatalf("Label(%d,%d)=%q want %q", tc.index, tc.size, got, tc.label)
		}
	}

	empty := Paginate([]string(nil), 0, 5)
	if len(empty.Items) != 0 || empty.Pages() != 1 || empty.Label() != "Page 1/1" {
		t.Fatalf("empty=%+v label=%q", empty, empty.Label())
	}
}

func TestTruncRunesAndData(t *testing.T) {
	t.Parallel()

	if got := TruncRunes("héllo", 3); got != "hél…" {
		t.Fatalf("trunc=%q", got)
	}
	if got := TruncRunes("hi", 3); got != "hi" {
		t.Fatalf("trunc short=%q", got)
	}
	if got := OneLine(" Board\n meeting \t outcome "); got != "Board meeting outcome" {
		t.Fatalf("oneline=%q", got)
	}
	if got := Data("alert", "rm", "12"); got != "alert:rm:12" {
		t.Fatalf("data=%q", got)
	}
	long := make([]byte, MaxCallbackDataLen+1)
	if err := CheckData(string(long)); err != ErrCallbackDataTooLong {
		t.Fatalf("err=%v", err)
	}
}

func TestInlineGridAndDataCheck(t *testing.T) {
	t.Parallel()

	btns := []Button{Btn("a", "m:go:a"), Btn("b", "m:go:b"), Btn("c", "m:go:c")}
	kb := NewInline().Grid(2, btns...).Row()
	if got := kb.Markup().InlineKeyboard; len(got) != 2 || len(got[0]) != 2 || len(got[1]) != 1 {
		t.Fatalf("grid=%v", got)
	}
	if kb.Err() != nil {
		t.Fatalf("unexpected err %v", kb.Err())
	}

	long := Btn("x", Data("alert", "rm", strings.Repeat("9", MaxCallbackDataLen)))
	if err := NewInline().Row(long).Err(); err != ErrCallbackDataTooLong {
		t.Fatalf("err=%v", err)
	}
}
