package tgui

import (
	"html"
	"strings"
)

// H is HTML already escaped for Telegram's HTML parse mode.
type H string

func (h H) String() string { return string(h) }

// Esc escapes plain text.
func Esc(s string) H { return H(html.EscapeString(s)) }

func B(s string) H    { return H("<b>" + html.EscapeString(s) + "</b>") }
func Code(s string) H { return H("<code>" + html.EscapeString(s) + "</code>") }

// Link renders an anchor. An empty url yields the escaped text alone.
func Link(text, url string) H {
	if strings.TrimSpace(url) == "" {
		return Esc(text)
	}
	return H(`<a href="` + html.EscapeString(url) + `">` + html.EscapeString(text) + `</a>`)
}

// Lines joins non-empty parts with newlines.
func Lines(parts ...H) H {
	var b strings.Builder
	for _, p := range parts {
		if strings.TrimSpace(string(p)) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(p))
	}
	return H(b.String())
}
