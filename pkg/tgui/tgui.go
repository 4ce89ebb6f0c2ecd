package tgui

import tele "gopkg.in/telebot.v4"

// Inline builds an inline keyboard row by row.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a row of buttons.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Rows returns the callback data of every button, row-major. Used in tests
// and logs; telebot keeps the real layout in the markup.
func (i *Inline) Rows() [][]string {
	out := make([][]string, 0, len(i.rows))
	for _, r := range i.rows {
		row := make([]string, 0, len(r))
		for _, b := range r {
			row = append(row, b.Data)
		}
		out = append(out, row)
	}
	return out
}

// Btn creates a callback button with raw callback_data.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}
