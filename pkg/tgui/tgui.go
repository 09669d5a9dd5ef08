package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Button is an inline keyboard button.
type Button = tele.Btn

// Btn creates a callback button.
func Btn(text, data string) Button { return Button{Text: text, Data: data} }

// Inline builds an inline keyboard row by row. The first button whose
// callback data Telegram would reject is remembered and reported by Err.
type Inline struct {
	rm   tele.ReplyMarkup
	rows []tele.Row
	err  error
}

func NewInline() *Inline { return &Inline{} }

// Row appends a row. Empty rows are ignored.
func (i *Inline) Row(btns ...Button) *Inline {
	if len(btns) == 0 {
		return i
	}
	for _, b := range btns {
		if err := CheckData(b.Data); err != nil && i.err == nil {
			i.err = err
		}
	}
	i.rows = append(i.rows, i.rm.Row(btns...))
	return i
}

// Grid lays btns out cols per row.
func (i *Inline) Grid(cols int, btns ...Button) *Inline {
	for _, row := range i.rm.Split(max(cols, 1), btns) {
		i.Row(row...)
	}
	return i
}

func (i *Inline) Err() error { return i.err }

func (i *Inline) Markup() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rm.Inline(i.rows...)
	return rm
}
