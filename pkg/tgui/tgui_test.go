package tgui

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestDataRoundTrip(t *testing.T) {
	d, err := Data("reg", "choose", "tok.en:medium")
	if err != nil {
		t.Fatal(err)
	}
	scope, action, payload, ok := ParseData(d)
	if !ok || scope != "reg" || action != "choose" || payload != "tok.en:medium" {
		t.Fatalf("got %q %q %q %v", scope, action, payload, ok)
	}
}

func TestDataTooLong(t *testing.T) {
	if _, err := Data("reg", "choose", strings.Repeat("x", 60)); err != ErrCallbackDataTooLong {
		t.Fatalf("err=%v", err)
	}
}

func TestParseDataRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "reg", ":x", "reg:"} {
		if _, _, _, ok := ParseData(in); ok {
			t.Fatalf("%q accepted", in)
		}
	}
}

func TestHTMLEscaping(t *testing.T) {
	got := JoinH("\n", B("a<b"), "", Code("x&y"), Mention("<me>", 5))
	want := "<b>a&lt;b</b>\n<code>x&amp;y</code>\n" + `<a href="tg://user?id=5">&lt;me&gt;</a>`
	if got.String() != want {
		t.Fatalf("got %q", got)
	}
}

func TestInlineRows(t *testing.T) {
	kb := NewInline().Row(Btn("a", "x:1"), Btn("b", "x:2")).Row(Btn("c", "x:3"))
	rows := kb.Rows()
	if len(rows) != 2 || len(rows[0]) != 2 || rows[1][0] != "x:3" {
		t.Fatalf("rows=%v", rows)
	}
	if len(kb.Markup().InlineKeyboard) != 2 {
		t.Fatalf("markup rows=%d", len(kb.Markup().InlineKeyboard))
	}
	opt := HTML(kb)
	if opt.ParseMode != "HTML" || opt.ReplyMarkupAdapter.(*tele.ReplyMarkup) != kb.Markup() {
		t.Fatalf("opt=%+v", opt)
	}
}
