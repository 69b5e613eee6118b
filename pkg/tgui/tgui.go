package tgui

import (
	kit "funnelbot/internal/transport"

	tele "gopkg.in/telebot.v4"
)

// Inline is a small builder for inline keyboards (ReplyMarkup).
// It stores rows as tele.Row ([]tele.Btn) and applies them via ReplyMarkup.Inline().
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a new row (buttons) to the inline keyboard.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Markup returns underlying reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button with raw callback_data (we do NOT encode it).
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// URLBtn creates a URL button.
func URLBtn(text, url string) tele.Btn {
	return tele.Btn{Text: text, URL: url}
}

// FromKeyboard converts a transport keyboard into telebot markup.
// Empty rows are skipped; nil is returned for an empty keyboard.
func FromKeyboard(k *kit.Keyboard) *tele.ReplyMarkup {
	if k.Empty() {
		return nil
	}
	in := NewInline()
	for _, r := range k.Rows {
		if len(r) == 0 {
			continue
		}
		row := make([]tele.Btn, 0, len(r))
		for _, b := range r {
			if b.URL != "" {
				row = append(row, URLBtn(b.Text, b.URL))
				continue
			}
			row = append(row, Btn(b.Text, b.Data))
		}
		in.Row(row...)
	}
	return in.Markup()
}
