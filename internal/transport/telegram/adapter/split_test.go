package adapter

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "stockalert/internal/transport"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()

	got := splitText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got=%q", got)
	}
}

func TestSplitTextPrefersNewline(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitText(s, 12, "")
	if len(got) != 2 || got[0] != strings.Repeat("a", 8) || got[1] != strings.Repeat("b", 8) {
		t.Fatalf("got=%q", got)
	}
}

func TestSplitTextKeepsHTMLTagsWhole(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("x", 9) + "<b>TCS</b>"
	got := splitText(s, 11, "HTML")
	if len(got) < 2 {
		t.Fatalf("expected split, got=%q", got)
	}
	if got[0] != strings.Repeat("x", 9) {
		t.Fatalf("first chunk=%q", got[0])
	}
	if !strings.HasPrefix(got[1], "<b>") {
		t.Fatalf("second chunk=%q", got[1])
	}
}

func TestSplitTextRuneSafe(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("🔔", 25)
	for _, c := range splitText(s, 10, "") {
		if n := len([]rune(c)); n > 10 {
			t.Fatalf("chunk has %d runes", n)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	if err := classify(tele.ErrBlockedByUser); !errors.Is(err, kit.ErrRecipientUnreachable) {
		t.Fatalf("blocked user not unreachable: %v", err)
	}
	var fe *kit.FloodError
	if err := classify(tele.FloodError{RetryAfter: 3}); !errors.As(err, &fe) || fe.RetryAfter.Seconds() != 3 {
		t.Fatalf("flood not mapped: %v", err)
	}
	plain := errors.New("x")
	if classify(plain) != plain {
		t.Fatalf("plain error changed")
	}
}
