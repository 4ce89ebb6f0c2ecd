// Package tgui holds small Telegram UI helpers: inline keyboards, callback
// data encoding and escaping for ParseMode="HTML".
package tgui
