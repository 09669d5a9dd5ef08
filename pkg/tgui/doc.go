// Package tgui holds Telegram HTML and inline-keyboard helpers shared by
// the alert formatter and the bot commands.
package tgui
