// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders (transport keyboards → telebot markup)
//   - Callback data helpers (prefix:key:payload) bounded by Telegram's limit
package tgui
